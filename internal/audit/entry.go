package audit

import "encoding/json"

// Entry types.
const (
	TypeCommand   = "command"
	TypeExecution = "execution"
)

// Entry is one line in the hash-chained JSONL audit log.
// Params is pre-encoded so the marshalled line, and with it the chain
// hash, does not depend on map iteration.
type Entry struct {
	Timestamp     string          `json:"ts"`
	RunID         string          `json:"run_id"`
	CallID        string          `json:"call_id,omitempty"`
	Type          string          `json:"type"`
	Command       string          `json:"command,omitempty"`
	Params        json.RawMessage `json:"params,omitempty"`
	Status        string          `json:"status"`
	Error         string          `json:"error,omitempty"`
	DurationMs    int64           `json:"duration_ms"`
	AllowlistHash string          `json:"allowlist_hash"`
	PrevHash      string          `json:"prev_hash"`
}
