package storage

import (
	"context"
	"encoding/base64"
	"fmt"
	"strings"

	"go.uber.org/zap"
)

// MediaOffloader rewrites oversized data-URI media values in node outputs
// into media-store references. Values below the threshold, and values that are
// not data URIs, pass through untouched.
type MediaOffloader struct {
	store     MediaStore
	threshold int
	logger    *zap.Logger
}

// DefaultOffloadThreshold is the data-URI byte length above which media is
// moved to the media store.
const DefaultOffloadThreshold = 256 * 1024

// NewMediaOffloader creates an offloader. threshold <= 0 selects the default.
func NewMediaOffloader(store MediaStore, threshold int, logger *zap.Logger) *MediaOffloader {
	if threshold <= 0 {
		threshold = DefaultOffloadThreshold
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &MediaOffloader{store: store, threshold: threshold, logger: logger}
}

// OffloadOutput walks one node output map and replaces qualifying data URIs
// (including those nested in string slices) with uploaded blob references.
// Failures to upload leave the original value in place; offloading is an
// optimization, not a correctness requirement.
func (m *MediaOffloader) OffloadOutput(ctx context.Context, runID, nodeID string, output map[string]any) map[string]any {
	if m.store == nil || output == nil {
		return output
	}
	result := make(map[string]any, len(output))
	seq := 0
	for key, value := range output {
		switch v := value.(type) {
		case string:
			result[key] = m.offloadValue(ctx, runID, nodeID, key, &seq, v)
		case []string:
			items := make([]string, len(v))
			for i, item := range v {
				items[i] = m.offloadValue(ctx, runID, nodeID, key, &seq, item)
			}
			result[key] = items
		case []any:
			items := make([]any, len(v))
			for i, item := range v {
				if s, ok := item.(string); ok {
					items[i] = m.offloadValue(ctx, runID, nodeID, key, &seq, s)
				} else {
					items[i] = item
				}
			}
			result[key] = items
		default:
			result[key] = value
		}
	}
	return result
}

func (m *MediaOffloader) offloadValue(ctx context.Context, runID, nodeID, port string, seq *int, value string) string {
	if len(value) < m.threshold || !strings.HasPrefix(value, "data:") {
		return value
	}
	contentType, data, err := decodeDataURI(value)
	if err != nil {
		m.logger.Warn("Skipping media offload for undecodable data URI",
			zap.String("run_id", runID),
			zap.String("node_id", nodeID),
			zap.Error(err))
		return value
	}
	*seq++
	blobPath := fmt.Sprintf("%s/%s/%s-%d%s", runID, nodeID, port, *seq, extensionFor(contentType))
	reference, err := m.store.UploadMedia(ctx, blobPath, data, contentType, map[string]string{
		"run_id":  runID,
		"node_id": nodeID,
	})
	if err != nil {
		m.logger.Warn("Media offload failed, keeping inline data URI",
			zap.String("run_id", runID),
			zap.String("node_id", nodeID),
			zap.Error(err))
		return value
	}
	return reference
}

// decodeDataURI splits a data URI into its content type and decoded bytes.
func decodeDataURI(uri string) (string, []byte, error) {
	rest := strings.TrimPrefix(uri, "data:")
	idx := strings.Index(rest, ",")
	if idx < 0 {
		return "", nil, fmt.Errorf("malformed data URI")
	}
	meta, payload := rest[:idx], rest[idx+1:]
	contentType := meta
	base64Encoded := false
	if strings.HasSuffix(meta, ";base64") {
		contentType = strings.TrimSuffix(meta, ";base64")
		base64Encoded = true
	}
	if contentType == "" {
		contentType = "text/plain"
	}
	if !base64Encoded {
		return contentType, []byte(payload), nil
	}
	data, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		return "", nil, fmt.Errorf("invalid base64 payload: %w", err)
	}
	return contentType, data, nil
}

func extensionFor(contentType string) string {
	switch contentType {
	case "image/png":
		return ".png"
	case "image/jpeg":
		return ".jpg"
	case "image/webp":
		return ".webp"
	case "video/mp4":
		return ".mp4"
	default:
		return ""
	}
}
