package cli

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/spf13/cobra"
)

// Exit codes.
const (
	exitFailure = 1
	exitBlocked = 77 // script rejected by validation or document denied
	exitConfig  = 78 // EX_CONFIG
)

var (
	logLevel      string
	allowlistPath string
	profileName   string

	logger = slog.New(slog.DiscardHandler)
)

func init() {
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "warn", "Log level (debug|info|warn|error)")
	rootCmd.PersistentFlags().StringVar(&allowlistPath, "allowlist", "", "Path to allowlist YAML (default ~/.scriptguard/allowlist.yaml)")
	rootCmd.PersistentFlags().StringVar(&profileName, "profile", "", "Named allowlist profile (standard, strict, or ~/.scriptguard/profiles/<name>.yaml)")
}

var rootCmd = &cobra.Command{
	Use:   "scriptguard",
	Short: "Capability-sandboxed script engine",
	Long: "Validates Lua scripts against an allow-list before anything runs, then\n" +
		"executes them in a fresh sandbox with a timeout. Scripts reach the host\n" +
		"only through NAMESPACE.METHOD commands handed to an executor.",
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		level, err := parseLevel(logLevel)
		if err != nil {
			return err
		}
		logger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
		return nil
	},
}

// exitError carries a process exit code through cobra.
type exitError struct {
	code int
	msg  string
}

func (e *exitError) Error() string { return e.msg }

// Execute runs the root command.
func Execute() {
	err := rootCmd.Execute()
	if err == nil {
		return
	}
	var ee *exitError
	if errors.As(err, &ee) {
		if ee.msg != "" {
			fmt.Fprintln(os.Stderr, ee.msg)
		}
		os.Exit(ee.code)
	}
	fmt.Fprintf(os.Stderr, "Error: %v\n", err)
	os.Exit(exitFailure)
}

func parseLevel(s string) (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(strings.ToUpper(s))); err != nil {
		return 0, fmt.Errorf("invalid --log-level %q: %w", s, err)
	}
	return level, nil
}
