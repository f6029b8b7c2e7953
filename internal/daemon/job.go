// Package daemon runs script documents dropped into an inbox directory and
// writes the results to an outbox directory.
package daemon

import (
	"fmt"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/ppiankov/scriptguard/internal/document"
	"github.com/ppiankov/scriptguard/internal/host"
)

// DocumentSuffix marks inbox files the daemon picks up.
const DocumentSuffix = document.Ext

// validID matches alphanumeric characters, dashes, and underscores only.
var validID = regexp.MustCompile(`^[a-zA-Z0-9_-]+$`)

// Result is written to the outbox after processing a document.
type Result struct {
	ID          string          `json:"id"`
	Status      string          `json:"status"`
	Document    string          `json:"document,omitempty"`
	Run         *host.RunResult `json:"run,omitempty"`
	Error       string          `json:"error,omitempty"`
	CompletedAt time.Time       `json:"completed_at"`
}

// Result status values.
const (
	ResultDone    = "done"    // every script succeeded
	ResultFailed  = "failed"  // unreadable document or a failed script
	ResultDenied  = "denied"  // missing permissions
	ResultBlocked = "blocked" // a script was rejected by validation
)

// statusFor maps a host run onto a result status.
func statusFor(r *host.RunResult) string {
	switch {
	case r.Denied:
		return ResultDenied
	case r.Blocked():
		return ResultBlocked
	case r.Succeeded():
		return ResultDone
	default:
		return ResultFailed
	}
}

// JobID derives the job ID from an inbox file name.
func JobID(path string) (string, error) {
	name := filepath.Base(path)
	if !strings.HasSuffix(name, DocumentSuffix) {
		return "", fmt.Errorf("not a %s document: %s", DocumentSuffix, name)
	}
	id := strings.TrimSuffix(name, DocumentSuffix)
	if id == "" {
		return "", fmt.Errorf("document name is empty")
	}
	if strings.Contains(id, "..") {
		return "", fmt.Errorf("document name must not contain '..'")
	}
	if !validID.MatchString(id) {
		return "", fmt.Errorf("document name contains invalid characters: only alphanumeric, dash, and underscore allowed")
	}
	return id, nil
}
