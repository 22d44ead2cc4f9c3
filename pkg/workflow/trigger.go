package workflow

import "time"

// TriggerType distinguishes how a trigger fires.
type TriggerType string

const (
	TriggerScheduled TriggerType = "scheduled"
	TriggerWebhook   TriggerType = "webhook"
)

// Frequency is the recurrence pattern of a scheduled trigger.
type Frequency string

const (
	FrequencyDaily        Frequency = "daily"
	FrequencyWeekly       Frequency = "weekly"
	FrequencySpecificDays Frequency = "specific_days"
)

// Schedule holds the recurrence configuration of a scheduled trigger.
type Schedule struct {
	// Frequency is daily, weekly or specific_days
	Frequency Frequency `json:"frequency"`
	// Days are weekday numbers 0 (Sunday) through 6 (Saturday).
	// Required for weekly and specific_days.
	Days []int `json:"days,omitempty"`
	// Time is the local firing time in 24-hour HH:MM form
	Time string `json:"time"`
	// Timezone is an IANA timezone name, e.g. "Europe/Amsterdam"
	Timezone string `json:"timezone"`
}

// Trigger automatically starts runs for a workflow.
type Trigger struct {
	// ID is the unique identifier of the trigger
	ID string `json:"id"`
	// WorkflowID references the workflow to run
	WorkflowID string `json:"workflowId"`
	// Type is scheduled or webhook
	Type TriggerType `json:"type"`
	// Schedule is the recurrence configuration for scheduled triggers
	Schedule Schedule `json:"schedule"`
	// Enabled gates firing without losing the configuration
	Enabled bool `json:"enabled"`
	// NextTriggerAt is the next computed firing instant. Recomputed on every
	// create, update and fire decision.
	NextTriggerAt *time.Time `json:"nextTriggerAt,omitempty"`
	// LastTriggeredAt is the last firing instant
	LastTriggeredAt *time.Time `json:"lastTriggeredAt,omitempty"`
	// MaxConcurrentRuns caps simultaneously active runs spawned for the workflow
	MaxConcurrentRuns int `json:"maxConcurrentRuns"`
}
