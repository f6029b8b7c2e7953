package daemon

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"syscall"
	"time"

	"github.com/ppiankov/scriptguard/internal/host"
)

// Config holds full daemon configuration.
type Config struct {
	Dirs         DirConfig
	Host         *host.Host
	Globals      map[string]any
	Workers      int
	PollMode     bool
	PollInterval time.Duration
	Logger       *slog.Logger
}

// Daemon watches the inbox directory and processes documents.
type Daemon struct {
	cfg       Config
	processor *Processor
}

// New creates a daemon with validated configuration.
func New(cfg Config) (*Daemon, error) {
	if cfg.Dirs.Inbox == "" || cfg.Dirs.Outbox == "" || cfg.Dirs.State == "" {
		return nil, fmt.Errorf("inbox, outbox, and state directories are required")
	}
	if cfg.Host == nil {
		return nil, fmt.Errorf("host is required")
	}
	if cfg.PollInterval == 0 {
		cfg.PollInterval = pollDefault
	}
	if cfg.Workers <= 0 {
		cfg.Workers = DefaultWorkers
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.New(slog.DiscardHandler)
	}

	return &Daemon{
		cfg: cfg,
		processor: NewProcessor(ProcessorConfig{
			Dirs:    cfg.Dirs,
			Host:    cfg.Host,
			Globals: cfg.Globals,
			Logger:  cfg.Logger,
		}),
	}, nil
}

// Run starts the daemon. Blocks until ctx is cancelled.
// On startup, processes any existing inbox documents and orphaned
// processing files.
func (d *Daemon) Run(ctx context.Context) error {
	if err := EnsureDirs(d.cfg.Dirs); err != nil {
		return fmt.Errorf("ensure directories: %w", err)
	}
	if err := ValidateSameFilesystem(d.cfg.Dirs); err != nil {
		d.cfg.Logger.Warn("moves into processing will copy", "error", err)
	}

	pidPath := filepath.Join(d.cfg.Dirs.State, "daemon.pid")
	if err := acquirePIDLock(pidPath); err != nil {
		return fmt.Errorf("acquire PID lock: %w", err)
	}
	defer func() { _ = os.Remove(pidPath) }()

	if err := d.recoverOrphans(); err != nil {
		return fmt.Errorf("recover orphans: %w", err)
	}

	handler := func(path string) {
		if err := d.processor.Process(ctx, path); err != nil {
			d.cfg.Logger.Error("process document", "path", filepath.Base(path), "error", err)
		}
	}

	if err := ScanExisting(d.cfg.Dirs.Inbox, handler); err != nil {
		return fmt.Errorf("scan existing: %w", err)
	}

	d.cfg.Logger.Info("daemon started", "inbox", d.cfg.Dirs.Inbox, "poll", d.cfg.PollMode)
	if d.cfg.PollMode {
		pw := NewPollWatcher(d.cfg.Dirs.Inbox, handler, d.cfg.PollInterval)
		return pw.Run(ctx)
	}

	w := NewInboxWatcher(d.cfg.Dirs.Inbox, handler)
	w.workers = d.cfg.Workers
	w.logger = d.cfg.Logger
	return w.Run(ctx)
}

// recoverOrphans moves documents left in state/processing/ to failed
// results. These were interrupted by a crash or restart; their scripts
// may have run partially, so they are not retried.
func (d *Daemon) recoverOrphans() error {
	procDir := d.cfg.Dirs.ProcessingDir()
	entries, err := os.ReadDir(procDir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}

	for _, e := range entries {
		if e.IsDir() || !isDocument(e.Name()) {
			continue
		}
		id, err := JobID(e.Name())
		if err != nil {
			continue
		}
		if err := d.processor.writeFailedResult(id, "interrupted: document was processing when daemon stopped"); err != nil {
			d.cfg.Logger.Error("recover orphan", "job", id, "error", err)
		}
		_ = moveFile(filepath.Join(procDir, e.Name()), filepath.Join(d.cfg.Dirs.FailedDir(), e.Name()))
	}
	return nil
}

// acquirePIDLock writes the current PID to the file and checks for stale locks.
func acquirePIDLock(path string) error {
	if data, err := os.ReadFile(path); err == nil {
		pid, err := strconv.Atoi(string(data))
		if err == nil {
			if process, err := os.FindProcess(pid); err == nil {
				if err := process.Signal(syscall.Signal(0)); err == nil {
					return fmt.Errorf("another daemon is running (PID %d)", pid)
				}
			}
		}
		_ = os.Remove(path)
	}
	return os.WriteFile(path, []byte(strconv.Itoa(os.Getpid())), 0600)
}
