package models

import (
	"encoding/json"
	"time"
)

// DispatchRequest is what a caller posts to the orchestrator.
// It lives for one call and is never persisted.
type DispatchRequest struct {
	AgentURL        string `json:"agent_url"`
	TaskName        string `json:"task_name"`
	Username        string `json:"username"`
	Password        string `json:"password"`
	ScriptText      string `json:"script_text"`
	WorkingDir      string `json:"working_dir,omitempty"`
	InteractiveHint bool   `json:"interactive_hint"`
}

// JobPayload is the wire form sent from the orchestrator to an agent's /run endpoint.
// The credential only ever travels as CredCiphertext.
type JobPayload struct {
	TaskName        string  `json:"task_name"`
	Username        string  `json:"username"`
	CredCiphertext  string  `json:"cred_ciphertext"`
	ScriptB64       string  `json:"script_b64"`
	WorkingDir      *string `json:"working_dir"`
	InteractiveHint bool    `json:"interactive_hint"`
}

// Reconciliation paths reported by the agent.
const (
	PathCreate = "create"
	PathChange = "change"
)

// RunStatusStarted is the only success status an agent reports.
const RunStatusStarted = "started"

// RunResult is the agent's success response.
type RunResult struct {
	Status  string `json:"status"`
	Task    string `json:"task"`
	WorkDir string `json:"workdir"`
	Path    string `json:"path,omitempty"`
}

// DispatchResult is the orchestrator's success response. AgentResponse is the
// agent's body, passed through untouched.
type DispatchResult struct {
	DispatchID    string          `json:"dispatch_id"`
	DispatchedAt  string          `json:"dispatched_at"`
	AgentResponse json.RawMessage `json:"agent_response"`
}

// FormatDispatchTime renders t as UTC ISO-8601 with a trailing Z.
func FormatDispatchTime(t time.Time) string {
	return t.UTC().Format("2006-01-02T15:04:05.000000Z")
}
