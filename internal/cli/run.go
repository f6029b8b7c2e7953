package cli

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/ppiankov/scriptguard/internal/document"
	"github.com/ppiankov/scriptguard/internal/host"
	"github.com/ppiankov/scriptguard/internal/sandbox"
	"github.com/ppiankov/scriptguard/internal/statestore"
)

var (
	runEngine    engineFlags
	runFormat    string
	runGlobals   []string
	runStateDB   string
	runWriteBack bool
)

func init() {
	rootCmd.AddCommand(runCmd)
	addEngineFlags(runCmd, &runEngine)
	runCmd.Flags().StringVarP(&runFormat, "format", "f", "text", "Output format (text|json)")
	runCmd.Flags().StringArrayVarP(&runGlobals, "global", "g", nil, "Predeclared global NAME=VALUE; VALUE is parsed as JSON, else taken as a string (repeatable)")
	runCmd.Flags().StringVar(&runStateDB, "state-db", "", "SQLite file backing STATE (documents use their state blocks otherwise)")
	runCmd.Flags().BoolVar(&runWriteBack, "write-back", false, "Rewrite a markdown document with its updated state blocks")
}

func addEngineFlags(cmd *cobra.Command, f *engineFlags) {
	cmd.Flags().DurationVar(&f.timeout, "timeout", sandbox.DefaultTimeout, "Per-script execution timeout")
	cmd.Flags().IntVar(&f.maxOutput, "max-output", sandbox.DefaultMaxOutputLines, "Maximum captured print lines per script")
	cmd.Flags().IntVar(&f.maxCommands, "max-commands", 0, "Maximum bridge commands per script (0 = unlimited)")
	cmd.Flags().StringVar(&f.auditPath, "audit-log", "", "Append executions and bridge commands to this hash-chained JSONL log")
	cmd.Flags().StringArrayVar(&f.rateLimits, "rate-limit", nil, "Limit calls per namespace as NS=N/WINDOW, e.g. HTTP=10/1m or *=100/1s (repeatable)")
}

var runCmd = &cobra.Command{
	Use:   "run <file>",
	Short: "Validate and execute a Lua script or a markdown document",
	Long: "Runs a .lua script, or every ```lua block of a .md document whose\n" +
		"frontmatter grants the execute permission.\n\n" +
		"Exit code 0 on success, 1 on script failure, 77 if validation\n" +
		"rejected a script or the document lacks permissions.",
	Args: cobra.ExactArgs(1),
	RunE: runRun,
}

func runRun(cmd *cobra.Command, args []string) error {
	globals, err := parseGlobals(runGlobals)
	if err != nil {
		return err
	}

	eng, err := newEngine(runEngine, nil)
	if err != nil {
		return err
	}
	defer eng.Close()

	var store *statestore.Store
	if runStateDB != "" {
		store, err = statestore.Open(runStateDB, logger)
		if err != nil {
			return err
		}
		defer store.Close()
	}

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	path := args[0]
	if strings.EqualFold(filepath.Ext(path), document.Ext) {
		return runDocument(ctx, eng, store, path, globals)
	}
	return runScript(ctx, eng, store, path, globals)
}

func runScript(ctx context.Context, eng *engine, store *statestore.Store, path string, globals map[string]any) error {
	src, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read script: %w", err)
	}
	if store != nil {
		globals[host.StateGlobal] = store.Scope(ctx, scopeFor(path))
	}

	res, err := eng.interp.Execute(ctx, string(src), globals)
	var secErr *sandbox.SecurityError
	if errors.As(err, &secErr) {
		if eng.audit != nil {
			_ = eng.audit.RecordExecution("", "security", secErr.Error(), 0, eng.al.Hash())
		}
		if runFormat == "json" {
			printJSON(map[string]any{"success": false, "error_kind": "security", "violations": secErr.Violations})
		} else {
			fmt.Fprintln(os.Stderr, "BLOCKED:")
			for _, v := range secErr.Violations {
				fmt.Fprintf(os.Stderr, "  %s\n", v.String())
			}
		}
		return &exitError{code: exitBlocked}
	}
	if err != nil {
		return err
	}
	if eng.audit != nil {
		status := "success"
		if !res.Success {
			status = string(res.Kind)
		}
		_ = eng.audit.RecordExecution(res.RunID, status, res.Error, res.DurationMs, eng.al.Hash())
	}

	if runFormat == "json" {
		printJSON(res)
	} else {
		printScriptResult(res)
	}
	if !res.Success {
		return &exitError{code: exitFailure}
	}
	return nil
}

func runDocument(ctx context.Context, eng *engine, store *statestore.Store, path string, globals map[string]any) error {
	doc, err := document.Load(path)
	if err != nil {
		return err
	}

	cfg := host.Config{Interpreter: eng.interp, Audit: eng.audit, Logger: logger}
	if store != nil {
		cfg.StateFor = func(*document.Document) sandbox.StateAccessor {
			return store.Scope(ctx, scopeFor(path))
		}
	}
	h, err := host.New(cfg)
	if err != nil {
		return err
	}

	res, err := h.Run(ctx, doc, globals)
	if err != nil {
		return err
	}

	if runFormat == "json" {
		printJSON(res)
	} else {
		printDocumentResult(res)
	}

	if res.Denied {
		return &exitError{code: exitBlocked, msg: fmt.Sprintf("DENIED: document lacks permissions: %s", strings.Join(res.Missing, ", "))}
	}
	if runWriteBack && store == nil {
		out, err := doc.Render()
		if err != nil {
			return err
		}
		if err := os.WriteFile(path, out, 0o644); err != nil {
			return fmt.Errorf("write document: %w", err)
		}
	}
	switch {
	case res.Blocked():
		return &exitError{code: exitBlocked}
	case !res.Succeeded():
		return &exitError{code: exitFailure}
	}
	return nil
}

func printScriptResult(res *sandbox.Result) {
	for _, line := range res.Output {
		fmt.Println(line)
	}
	if res.Truncated {
		fmt.Fprintln(os.Stderr, "(output truncated)")
	}
	for _, w := range res.Warnings {
		fmt.Fprintf(os.Stderr, "warning: %s\n", w)
	}
	if !res.Success {
		fmt.Fprintf(os.Stderr, "FAILED (%s): %s\n", res.Kind, res.Error)
	}
}

func printDocumentResult(res *host.RunResult) {
	for _, s := range res.Scripts {
		fmt.Printf("--- script %d (line %d)\n", s.Index, s.Line)
		for _, line := range s.Output {
			fmt.Println(line)
		}
		switch {
		case s.Kind == "security":
			fmt.Fprintln(os.Stderr, "BLOCKED:")
			for _, v := range s.Violations {
				fmt.Fprintf(os.Stderr, "  %s\n", v.String())
			}
		case !s.Success:
			fmt.Fprintf(os.Stderr, "FAILED (%s): %s\n", s.Kind, s.Error)
		}
	}
}

// parseGlobals turns NAME=VALUE pairs into seeds.
func parseGlobals(pairs []string) (map[string]any, error) {
	globals := make(map[string]any, len(pairs))
	for _, p := range pairs {
		name, raw, ok := strings.Cut(p, "=")
		if !ok || name == "" {
			return nil, fmt.Errorf("invalid --global %q: want NAME=VALUE", p)
		}
		var v any
		if err := json.Unmarshal([]byte(raw), &v); err != nil {
			v = raw
		}
		globals[name] = v
	}
	return globals, nil
}

// scopeFor keys persistent state by absolute file path.
func scopeFor(path string) string {
	if abs, err := filepath.Abs(path); err == nil {
		return abs
	}
	return path
}

func printJSON(v any) {
	out, _ := json.MarshalIndent(v, "", "  ")
	fmt.Println(string(out))
}
