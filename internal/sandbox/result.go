package sandbox

import "github.com/ppiankov/scriptguard/internal/bridge"

// ErrorKind classifies a failed execution.
type ErrorKind string

const (
	KindSyntax  ErrorKind = "syntax"
	KindRuntime ErrorKind = "runtime"
	KindTimeout ErrorKind = "timeout"
)

// Result is the outcome of one execution. Output and Bindings are
// populated on failure too, up to the point the script stopped.
type Result struct {
	Success    bool            `json:"success"`
	Output     []string        `json:"output"`
	Error      string          `json:"error,omitempty"`
	Kind       ErrorKind       `json:"error_kind,omitempty"`
	Bindings   map[string]any  `json:"bindings"`
	Truncated  bool            `json:"truncated,omitempty"`
	Commands   []bridge.Record `json:"commands,omitempty"`
	Warnings   []string        `json:"warnings,omitempty"`
	RunID      string          `json:"run_id"`
	DurationMs int64           `json:"duration_ms"`
}

// outcome is the metrics label for r.
func (r *Result) outcome() string {
	if r.Success {
		return "success"
	}
	return string(r.Kind)
}
