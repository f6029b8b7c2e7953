package daemon

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/ppiankov/scriptguard/internal/document"
	"github.com/ppiankov/scriptguard/internal/host"
)

// ProcessorConfig holds runtime configuration for document processing.
type ProcessorConfig struct {
	Dirs    DirConfig
	Host    *host.Host
	Globals map[string]any
	Logger  *slog.Logger
}

// Processor handles document lifecycle transitions.
type Processor struct {
	cfg ProcessorConfig
}

// NewProcessor creates a processor with the given configuration.
func NewProcessor(cfg ProcessorConfig) *Processor {
	if cfg.Logger == nil {
		cfg.Logger = slog.New(slog.DiscardHandler)
	}
	return &Processor{cfg: cfg}
}

// Process handles a single inbox document through its full lifecycle:
// check name → move to processing → parse → run → write result and the
// rendered document to the outbox.
func (p *Processor) Process(ctx context.Context, docPath string) error {
	// Symlinks could point scripts at arbitrary files.
	fi, err := os.Lstat(docPath)
	if err != nil {
		return fmt.Errorf("stat document: %w", err)
	}
	if fi.Mode()&os.ModeSymlink != 0 {
		return fmt.Errorf("rejected symlink: %s", filepath.Base(docPath))
	}

	id, err := JobID(docPath)
	if err != nil {
		_ = moveFile(docPath, filepath.Join(p.cfg.Dirs.FailedDir(), filepath.Base(docPath)))
		return p.writeFailedResult("", err.Error())
	}
	logger := p.cfg.Logger.With("job", id)

	processingPath := filepath.Join(p.cfg.Dirs.ProcessingDir(), id+DocumentSuffix)
	if err := moveFile(docPath, processingPath); err != nil {
		return fmt.Errorf("move to processing: %w", err)
	}

	doc, err := document.Load(processingPath)
	if err != nil {
		logger.Warn("document does not parse", "error", err)
		_ = moveFile(processingPath, filepath.Join(p.cfg.Dirs.FailedDir(), id+DocumentSuffix))
		return p.writeFailedResult(id, err.Error())
	}

	result := p.run(ctx, id, doc)
	if err := p.writeResult(result); err != nil {
		return fmt.Errorf("write result: %w", err)
	}
	logger.Info("document processed", "status", result.Status)

	_ = os.Remove(processingPath)
	return nil
}

func (p *Processor) run(ctx context.Context, id string, doc *document.Document) *Result {
	result := &Result{ID: id}
	run, err := p.cfg.Host.Run(ctx, doc, p.cfg.Globals)
	if err != nil {
		result.Status = ResultFailed
		result.Error = err.Error()
		result.CompletedAt = time.Now().UTC()
		return result
	}
	result.Run = run
	result.Status = statusFor(run)

	if !run.Denied {
		rendered, err := doc.Render()
		if err == nil {
			path := filepath.Join(p.cfg.Dirs.Outbox, id+DocumentSuffix)
			err = writeAtomic(path, rendered)
			result.Document = path
		}
		if err != nil {
			result.Document = ""
			result.Error = fmt.Sprintf("write document: %v", err)
		}
	}
	result.CompletedAt = time.Now().UTC()
	return result
}

// writeResult writes a result to the outbox directory atomically.
func (p *Processor) writeResult(r *Result) error {
	data, err := json.MarshalIndent(r, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal result: %w", err)
	}
	return writeAtomic(filepath.Join(p.cfg.Dirs.Outbox, r.ID+".json"), data)
}

// writeFailedResult writes a minimal failed result when the document
// can't be used.
func (p *Processor) writeFailedResult(id string, errMsg string) error {
	if id == "" {
		id = fmt.Sprintf("unknown-%d", time.Now().UnixNano())
	}
	return p.writeResult(&Result{
		ID:          id,
		Status:      ResultFailed,
		Error:       errMsg,
		CompletedAt: time.Now().UTC(),
	})
}
