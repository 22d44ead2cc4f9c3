package scheduler

import (
	"context"
	"errors"
	"strings"
	"time"

	natsgo "github.com/nats-io/nats.go"
	"go.uber.org/zap"

	enginenats "github.com/wehubfusion/Daedalus/internal/nats"
	"github.com/wehubfusion/Daedalus/pkg/storage"
)

// WebhookSource subscribes to webhook trigger events on NATS and fires runs
// for matching webhook triggers. The subject's last token is the workflow id;
// the message payload is ignored.
type WebhookSource struct {
	conn     *natsgo.Conn
	subject  string
	store    storage.Store
	launcher RunLauncher
	logger   *zap.Logger
	sub      *natsgo.Subscription
}

// NewWebhookSource connects to NATS and prepares a webhook trigger source.
func NewWebhookSource(ctx context.Context, cfg *enginenats.ConnectionConfig, store storage.Store, launcher RunLauncher, logger *zap.Logger) (*WebhookSource, error) {
	if store == nil {
		return nil, errors.New("store cannot be nil")
	}
	if launcher == nil {
		return nil, errors.New("launcher cannot be nil")
	}
	if logger == nil {
		return nil, errors.New("logger cannot be nil")
	}
	if cfg == nil {
		return nil, errors.New("connection config cannot be nil")
	}

	conn, err := enginenats.Connect(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}
	return &WebhookSource{
		conn:     conn,
		subject:  cfg.TriggerSubject,
		store:    store,
		launcher: launcher,
		logger:   logger,
	}, nil
}

// Start subscribes to the trigger subject. Message handling runs on the NATS
// delivery goroutine; each event makes at most one run per enabled trigger.
func (w *WebhookSource) Start(ctx context.Context) error {
	sub, err := w.conn.Subscribe(w.subject, func(msg *natsgo.Msg) {
		w.handle(ctx, msg.Subject)
	})
	if err != nil {
		return err
	}
	w.sub = sub
	w.logger.Info("Webhook trigger source started", zap.String("subject", w.subject))
	return nil
}

// Close unsubscribes and drains the connection.
func (w *WebhookSource) Close() error {
	if w.sub != nil {
		if err := w.sub.Unsubscribe(); err != nil {
			w.logger.Warn("Failed to unsubscribe webhook source", zap.Error(err))
		}
	}
	return enginenats.Close(w.conn)
}

// handle fires the webhook triggers registered for the workflow named by the
// subject's last token. Webhook firings record LastTriggeredAt but never
// compute a next fire time.
func (w *WebhookSource) handle(ctx context.Context, subject string) {
	workflowID := subject[strings.LastIndex(subject, ".")+1:]
	if workflowID == "" {
		w.logger.Warn("Webhook event with empty workflow id", zap.String("subject", subject))
		return
	}

	triggers, err := w.store.ListWebhookTriggers(ctx, workflowID)
	if err != nil {
		w.logger.Error("Failed to list webhook triggers",
			zap.String("workflow_id", workflowID),
			zap.Error(err))
		return
	}
	if len(triggers) == 0 {
		w.logger.Debug("Webhook event for workflow without triggers",
			zap.String("workflow_id", workflowID))
		return
	}

	now := time.Now().UTC()
	for i := range triggers {
		trigger := &triggers[i]
		if reason := checkPreconditions(ctx, w.store, trigger); reason != "" {
			w.logger.Debug("Webhook trigger skipped",
				zap.String("trigger_id", trigger.ID),
				zap.String("reason", reason))
			continue
		}
		run, err := w.launcher.StartRun(ctx, trigger.WorkflowID)
		if err != nil {
			w.logger.Warn("Webhook trigger did not start a run",
				zap.String("trigger_id", trigger.ID),
				zap.Error(err))
			continue
		}
		if err := w.store.MarkTriggered(ctx, trigger.ID, &now, nil); err != nil {
			w.logger.Error("Failed to record webhook fire",
				zap.String("trigger_id", trigger.ID),
				zap.Error(err))
		}
		w.logger.Info("Webhook trigger fired",
			zap.String("trigger_id", trigger.ID),
			zap.String("workflow_id", trigger.WorkflowID),
			zap.String("run_id", run.ID))
	}
}
