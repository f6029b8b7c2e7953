// Package host runs the scripts embedded in a document on behalf of a user,
// gated by the document's declared permissions.
package host

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/ppiankov/scriptguard/internal/audit"
	"github.com/ppiankov/scriptguard/internal/document"
	"github.com/ppiankov/scriptguard/internal/sandbox"
	"github.com/ppiankov/scriptguard/internal/validate"
)

// PermissionExecute must be declared by a document before any of its
// scripts run.
const PermissionExecute = "execute"

// StateGlobal is the global name the document state accessor is bound to.
const StateGlobal = "STATE"

// Config configures a Host.
type Config struct {
	Interpreter *sandbox.Interpreter
	// Required lists the permissions a document must declare.
	// Nil means ["execute"].
	Required []string
	// Permit overrides the permission check. Nil uses doc.HasPermissions.
	Permit func(doc *document.Document, required []string) bool
	// StateFor returns the accessor bound as STATE. Nil binds the
	// document's own state blocks.
	StateFor func(doc *document.Document) sandbox.StateAccessor
	// Audit, if set, receives one execution entry per script.
	Audit  *audit.Log
	Logger *slog.Logger
}

// ScriptResult is the outcome of one script block.
type ScriptResult struct {
	Index      int                  `json:"index"`
	Line       int                  `json:"line"`
	Success    bool                 `json:"success"`
	Output     []string             `json:"output"`
	Error      string               `json:"error,omitempty"`
	Kind       string               `json:"error_kind,omitempty"`
	Violations []validate.Violation `json:"violations,omitempty"`
	Bindings   map[string]any       `json:"bindings,omitempty"`
	RunID      string               `json:"run_id,omitempty"`
	DurationMs int64                `json:"duration_ms"`
}

// RunResult is the outcome of running a document.
type RunResult struct {
	Path    string         `json:"path,omitempty"`
	Denied  bool           `json:"denied"`
	Missing []string       `json:"missing_permissions,omitempty"`
	Scripts []ScriptResult `json:"scripts"`
}

// Succeeded reports whether the document was permitted and every script
// succeeded.
func (r *RunResult) Succeeded() bool {
	if r.Denied {
		return false
	}
	for _, s := range r.Scripts {
		if !s.Success {
			return false
		}
	}
	return true
}

// Blocked reports whether any script was rejected by validation.
func (r *RunResult) Blocked() bool {
	for _, s := range r.Scripts {
		if s.Kind == "security" {
			return true
		}
	}
	return false
}

// Host runs documents through an Interpreter.
type Host struct {
	cfg Config
}

// New creates a Host.
func New(cfg Config) (*Host, error) {
	if cfg.Interpreter == nil {
		return nil, fmt.Errorf("%w: interpreter is required", sandbox.ErrConfiguration)
	}
	if cfg.Required == nil {
		cfg.Required = []string{PermissionExecute}
	}
	if cfg.Permit == nil {
		cfg.Permit = func(doc *document.Document, required []string) bool {
			return doc.HasPermissions(required...)
		}
	}
	if cfg.StateFor == nil {
		cfg.StateFor = func(doc *document.Document) sandbox.StateAccessor { return doc }
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.New(slog.DiscardHandler)
	}
	return &Host{cfg: cfg}, nil
}

// Run executes every script in doc in order. Scripts share the document
// state but nothing else. A denied document is not validated.
func (h *Host) Run(ctx context.Context, doc *document.Document, globals map[string]any) (*RunResult, error) {
	logger := h.cfg.Logger.With("document", doc.Path)
	res := &RunResult{Path: doc.Path, Scripts: []ScriptResult{}}

	if !h.cfg.Permit(doc, h.cfg.Required) {
		res.Denied = true
		res.Missing = h.missing(doc)
		logger.Warn("document denied", "missing", strings.Join(res.Missing, ","))
		return res, nil
	}

	hash := h.cfg.Interpreter.AllowList().Hash()
	for _, s := range doc.Scripts() {
		seeds := make(map[string]any, len(globals)+1)
		for k, v := range globals {
			seeds[k] = v
		}
		seeds[StateGlobal] = h.cfg.StateFor(doc)

		sr := ScriptResult{Index: s.Index, Line: s.Line, Output: []string{}}
		out, err := h.cfg.Interpreter.Execute(ctx, s.Code, seeds)
		var secErr *sandbox.SecurityError
		switch {
		case errors.As(err, &secErr):
			sr.Kind = "security"
			sr.Error = secErr.Error()
			sr.Violations = secErr.Violations
		case err != nil:
			return nil, fmt.Errorf("script %d (line %d): %w", s.Index, s.Line, err)
		default:
			sr.Success = out.Success
			sr.Output = out.Output
			sr.Error = out.Error
			sr.Kind = string(out.Kind)
			sr.Bindings = out.Bindings
			sr.RunID = out.RunID
			sr.DurationMs = out.DurationMs
		}
		h.record(logger, sr, hash)
		res.Scripts = append(res.Scripts, sr)
	}
	return res, nil
}

// Validate checks every script in doc without running any. Messages are
// prefixed with the script position.
func (h *Host) Validate(doc *document.Document) validate.Result {
	agg := validate.Result{Valid: true, Errors: []string{}, Warnings: []string{}}
	for _, s := range doc.Scripts() {
		r := h.cfg.Interpreter.ValidateOnly(s.Code)
		prefix := fmt.Sprintf("script %d (line %d): ", s.Index, s.Line)
		if !r.Valid {
			agg.Valid = false
		}
		for _, e := range r.Errors {
			agg.Errors = append(agg.Errors, prefix+e)
		}
		for _, w := range r.Warnings {
			agg.Warnings = append(agg.Warnings, prefix+w)
		}
		agg.Violations = append(agg.Violations, r.Violations...)
	}
	return agg
}

func (h *Host) missing(doc *document.Document) []string {
	var out []string
	for _, p := range h.cfg.Required {
		if !doc.HasPermissions(p) {
			out = append(out, p)
		}
	}
	return out
}

func (h *Host) record(logger *slog.Logger, sr ScriptResult, hash string) {
	status := "success"
	if !sr.Success {
		status = sr.Kind
	}
	logger.Info("script finished", "index", sr.Index, "status", status, "run_id", sr.RunID)
	if h.cfg.Audit == nil {
		return
	}
	if err := h.cfg.Audit.RecordExecution(sr.RunID, status, sr.Error, sr.DurationMs, hash); err != nil {
		logger.Error("audit write failed", "error", err)
	}
}
