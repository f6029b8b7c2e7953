package cli

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"

	"github.com/ppiankov/scriptguard/internal/daemon"
	"github.com/ppiankov/scriptguard/internal/document"
	"github.com/ppiankov/scriptguard/internal/host"
	"github.com/ppiankov/scriptguard/internal/metrics"
	"github.com/ppiankov/scriptguard/internal/sandbox"
	"github.com/ppiankov/scriptguard/internal/statestore"
)

var (
	watchEngine      engineFlags
	watchRoot        string
	watchInbox       string
	watchOutbox      string
	watchStateDir    string
	watchPoll        bool
	watchPollEvery   time.Duration
	watchWorkers     int
	watchMetricsAddr string
	watchStateDB     string
	watchGlobals     []string
)

func init() {
	rootCmd.AddCommand(watchCmd)
	addEngineFlags(watchCmd, &watchEngine)
	watchCmd.Flags().StringVar(&watchRoot, "root", "", "Base directory holding inbox/, outbox/ and state/ (default ~/.scriptguard)")
	watchCmd.Flags().StringVar(&watchInbox, "inbox", "", "Inbox directory (overrides --root)")
	watchCmd.Flags().StringVar(&watchOutbox, "outbox", "", "Outbox directory (overrides --root)")
	watchCmd.Flags().StringVar(&watchStateDir, "state", "", "State directory (overrides --root)")
	watchCmd.Flags().BoolVar(&watchPoll, "poll", false, "Poll the inbox instead of using filesystem notifications")
	watchCmd.Flags().DurationVar(&watchPollEvery, "poll-interval", 0, "Poll interval (default 5s)")
	watchCmd.Flags().IntVar(&watchWorkers, "workers", daemon.DefaultWorkers, "Concurrent document workers")
	watchCmd.Flags().StringVar(&watchMetricsAddr, "metrics-addr", "", "Serve Prometheus metrics on this address (e.g. :9090)")
	watchCmd.Flags().StringVar(&watchStateDB, "state-db", "", "SQLite file backing STATE, keyed by job ID")
	watchCmd.Flags().StringArrayVarP(&watchGlobals, "global", "g", nil, "Predeclared global NAME=VALUE for every script (repeatable)")
}

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Run documents dropped into an inbox directory",
	Long: "Watches the inbox for .md documents. Each document is moved to\n" +
		"state/processing, run through the permission gate and sandbox, and\n" +
		"written to the outbox with a <id>.json result next to it.",
	Args: cobra.NoArgs,
	RunE: runWatch,
}

func runWatch(cmd *cobra.Command, args []string) error {
	globals, err := parseGlobals(watchGlobals)
	if err != nil {
		return err
	}
	dirs, err := watchDirs()
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var m *metrics.Metrics
	if watchMetricsAddr != "" {
		reg := prometheus.NewRegistry()
		reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
		m = metrics.New(reg)
		srv := serveMetrics(watchMetricsAddr, reg)
		defer srv.Close()
	}

	eng, err := newEngine(watchEngine, m)
	if err != nil {
		return err
	}
	defer eng.Close()

	cfg := host.Config{Interpreter: eng.interp, Audit: eng.audit, Logger: logger}
	if watchStateDB != "" {
		store, err := statestore.Open(watchStateDB, logger)
		if err != nil {
			return err
		}
		defer store.Close()
		cfg.StateFor = func(doc *document.Document) sandbox.StateAccessor {
			id, err := daemon.JobID(doc.Path)
			if err != nil {
				id = filepath.Base(doc.Path)
			}
			return store.Scope(ctx, "job:"+id)
		}
	}
	h, err := host.New(cfg)
	if err != nil {
		return err
	}

	d, err := daemon.New(daemon.Config{
		Dirs:         dirs,
		Host:         h,
		Globals:      globals,
		Workers:      watchWorkers,
		PollMode:     watchPoll,
		PollInterval: watchPollEvery,
		Logger:       logger,
	})
	if err != nil {
		return &exitError{code: exitConfig, msg: err.Error()}
	}

	logger.Info("watching inbox", "inbox", dirs.Inbox, "outbox", dirs.Outbox, "poll", watchPoll)
	if err := d.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

func watchDirs() (daemon.DirConfig, error) {
	root := watchRoot
	if root == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return daemon.DirConfig{}, fmt.Errorf("cannot determine home directory: %w", err)
		}
		root = filepath.Join(home, ".scriptguard")
	}
	dirs := daemon.DefaultDirConfig(root)
	if watchInbox != "" {
		dirs.Inbox = watchInbox
	}
	if watchOutbox != "" {
		dirs.Outbox = watchOutbox
	}
	if watchStateDir != "" {
		dirs.State = watchStateDir
	}
	return dirs, nil
}

func serveMetrics(addr string, reg *prometheus.Registry) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", metrics.Handler(reg))
	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("metrics server stopped", "addr", addr, "error", err)
		}
	}()
	logger.Info("serving metrics", "addr", addr)
	return srv
}
