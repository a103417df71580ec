package events

import "time"

// DispatchEvent is published to Kafka after every dispatch, successful or not.
type DispatchEvent struct {
	DispatchID   string    `json:"dispatch_id"`
	TaskName     string    `json:"task_name"`
	AgentURL     string    `json:"agent_url"`
	Status       string    `json:"status"`
	ErrorKind    string    `json:"error_kind,omitempty"`
	DispatchedAt string    `json:"dispatched_at,omitempty"`
	OccurredAt   time.Time `json:"occurred_at"`
}
