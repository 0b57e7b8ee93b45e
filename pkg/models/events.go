package models

import "time"

// Session event types published by the scheduling service.
const (
	SessionEventCompleted = "session.completed"
	SessionEventCancelled = "session.cancelled"
)

// SessionEvent is the payload the scheduling service publishes when a
// session changes state. Billing only acts on completions.
type SessionEvent struct {
	EventType   string    `json:"event_type"`
	SessionID   string    `json:"session_id"`
	WorkspaceID string    `json:"workspace_id"`
	TrainerID   string    `json:"trainer_id"`
	ClientID    string    `json:"client_id"`
	OccurredAt  time.Time `json:"occurred_at"`
}
