// Package sandbox runs validated scripts in a fresh, allow-listed Lua state
// under a timeout.
package sandbox

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"strings"
	"time"

	lua "github.com/yuin/gopher-lua"

	"github.com/ppiankov/scriptguard/internal/allowlist"
	"github.com/ppiankov/scriptguard/internal/bridge"
	"github.com/ppiankov/scriptguard/internal/luaval"
	"github.com/ppiankov/scriptguard/internal/metrics"
	"github.com/ppiankov/scriptguard/internal/safelib"
	"github.com/ppiankov/scriptguard/internal/tracer"
	"github.com/ppiankov/scriptguard/internal/validate"
)

const (
	DefaultTimeout        = 30 * time.Second
	DefaultMaxOutputLines = 1000
	DefaultHardStopGrace  = 500 * time.Millisecond
	DefaultCallStackSize  = 200
)

// Config holds interpreter settings. It is fixed at construction.
type Config struct {
	AllowList *allowlist.AllowList
	// Bridge forwards NAMESPACE.METHOD calls. Nil uses a simulated executor.
	Bridge *bridge.Bridge
	// Catalog enables unknown-command warnings. Nil uses the default catalog.
	Catalog *bridge.Catalog
	Timeout time.Duration
	// MaxOutputLines caps captured print lines. Zero means the default.
	MaxOutputLines int
	// MaxCommands caps bridge calls per execution. Zero means unlimited.
	MaxCommands int
	// HardStopGrace is how long Execute waits past the timeout for the
	// script to unwind before abandoning it.
	HardStopGrace time.Duration
	CallStackSize int
	Logger        *slog.Logger
	Metrics       *metrics.Metrics
}

func (c *Config) applyDefaults() {
	if c.Timeout <= 0 {
		c.Timeout = DefaultTimeout
	}
	if c.MaxOutputLines <= 0 {
		c.MaxOutputLines = DefaultMaxOutputLines
	}
	if c.HardStopGrace <= 0 {
		c.HardStopGrace = DefaultHardStopGrace
	}
	if c.CallStackSize <= 0 {
		c.CallStackSize = DefaultCallStackSize
	}
	if c.Bridge == nil {
		c.Bridge = bridge.New(nil)
	}
	if c.Catalog == nil {
		c.Catalog = bridge.DefaultCatalog()
	}
	if c.Logger == nil {
		c.Logger = slog.New(slog.DiscardHandler)
	}
}

// Interpreter validates and executes scripts. It is safe for concurrent use;
// every Execute call gets its own Lua state.
type Interpreter struct {
	cfg       Config
	validator *validate.Validator
}

// New creates an Interpreter.
func New(cfg Config) (*Interpreter, error) {
	if cfg.AllowList == nil {
		return nil, fmt.Errorf("%w: allowlist is required", ErrConfiguration)
	}
	if cfg.MaxCommands < 0 {
		return nil, fmt.Errorf("%w: max commands must be >= 0", ErrConfiguration)
	}
	if err := safelib.Check(cfg.AllowList); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrConfiguration, err)
	}
	cfg.applyDefaults()
	return &Interpreter{
		cfg:       cfg,
		validator: validate.New(cfg.AllowList, validate.WithCatalog(cfg.Catalog)),
	}, nil
}

// Timeout returns the configured execution timeout.
func (in *Interpreter) Timeout() time.Duration {
	return in.cfg.Timeout
}

// AllowList returns the allowlist the interpreter enforces.
func (in *Interpreter) AllowList() *allowlist.AllowList {
	return in.cfg.AllowList
}

// ValidateOnly checks source without running it.
func (in *Interpreter) ValidateOnly(source string) validate.Result {
	return in.validator.Validate(source)
}

// Execute validates source and runs it with globals seeded into the
// namespace. Validation failures return a *SecurityError and nothing runs.
// Syntax, runtime and timeout failures are reported in the Result.
//
// The script is bounded by the configured timeout only; cancelling ctx
// does not stop it. Values carried by ctx reach the bridge executor.
func (in *Interpreter) Execute(ctx context.Context, source string, globals map[string]any) (*Result, error) {
	runID := tracer.NewRunID()
	logger := in.cfg.Logger.With("run_id", runID)

	check, proto := in.validator.Analyze(source)
	if proto == nil {
		in.cfg.Metrics.ObserveExecution(string(KindSyntax), 0)
		logger.Debug("script does not parse", "error", strings.Join(check.Errors, "; "))
		return &Result{
			Success:  false,
			Output:   []string{},
			Error:    strings.Join(check.Errors, "; "),
			Kind:     KindSyntax,
			Bindings: map[string]any{},
			RunID:    runID,
		}, nil
	}
	if !check.Valid {
		for _, v := range check.Violations {
			in.cfg.Metrics.ObserveViolation(string(v.Kind))
		}
		in.cfg.Metrics.ObserveExecution("security", 0)
		logger.Warn("script rejected", "violations", len(check.Violations), "errors", strings.Join(check.Errors, "; "))
		return nil, &SecurityError{Violations: check.Violations}
	}
	if err := in.checkSeeds(globals); err != nil {
		return nil, err
	}

	runCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), in.cfg.Timeout)
	defer cancel()
	runCtx = tracer.WithRunID(runCtx, runID)

	out := &output{max: in.cfg.MaxOutputLines}
	L := lua.NewState(lua.Options{
		SkipOpenLibs:  true,
		CallStackSize: in.cfg.CallStackSize,
	})
	if _, err := safelib.Install(L, in.cfg.AllowList, safelib.Options{Print: out.write}); err != nil {
		L.Close()
		return nil, fmt.Errorf("%w: %v", ErrConfiguration, err)
	}
	session := in.cfg.Bridge.Bind(runCtx, L, bridge.BindOptions{
		MaxCommands: in.cfg.MaxCommands,
		Logger:      logger,
	})
	seeded, err := seed(L, globals)
	if err != nil {
		L.Close()
		return nil, fmt.Errorf("%w: %v", ErrConfiguration, err)
	}
	baseline := snapshotGlobals(L)
	L.SetContext(runCtx)

	logger.Debug("execution started", "timeout", in.cfg.Timeout)
	start := time.Now()

	done := make(chan workerResult, 1)
	go func() {
		done <- runProto(L, proto, baseline, seeded)
	}()

	var wr workerResult
	abandoned := false
	select {
	case wr = <-done:
	case <-runCtx.Done():
		select {
		case wr = <-done:
		case <-time.After(in.cfg.HardStopGrace):
			abandoned = true
		}
	}

	lines, truncated := out.snapshot()
	res := &Result{
		Success:    wr.err == nil && !abandoned,
		Output:     lines,
		Bindings:   wr.bindings,
		Truncated:  truncated,
		Commands:   session.Records(),
		Warnings:   check.Warnings,
		RunID:      runID,
		DurationMs: time.Since(start).Milliseconds(),
	}
	if res.Bindings == nil {
		res.Bindings = map[string]any{}
	}

	// A pcall in tail position can swallow the deadline error and let the
	// chunk return normally, so the guard's state decides, not wr.err.
	switch {
	case abandoned || errors.Is(runCtx.Err(), context.DeadlineExceeded):
		res.Success = false
		res.Kind = KindTimeout
		res.Error = fmt.Sprintf("execution timed out after %s", in.cfg.Timeout)
	case wr.err != nil:
		res.Kind = KindRuntime
		res.Error = wr.err.Error()
	}

	in.observe(res, time.Since(start))
	logger.Info("execution finished",
		"outcome", res.outcome(),
		"duration_ms", res.DurationMs,
		"lines", len(res.Output),
		"commands", len(res.Commands),
		"abandoned", abandoned,
	)
	return res, nil
}

func (in *Interpreter) observe(res *Result, d time.Duration) {
	m := in.cfg.Metrics
	if m == nil {
		return
	}
	m.ObserveExecution(res.outcome(), d.Seconds())
	if res.Truncated {
		m.ObserveTruncation()
	}
	for _, rec := range res.Commands {
		ns, _, _ := strings.Cut(rec.Command, ".")
		status := "ok"
		if rec.Error != "" {
			status = "error"
		}
		m.ObserveCommand(ns, status)
	}
}

type workerResult struct {
	bindings map[string]any
	err      error
}

// runProto executes proto on L and closes L. It runs on its own goroutine
// so a hung host executor cannot block Execute past the grace period.
func runProto(L *lua.LState, proto *lua.FunctionProto, baseline map[string]lua.LValue, seeded map[string]bool) (wr workerResult) {
	defer L.Close()
	defer func() {
		if r := recover(); r != nil {
			wr.err = fmt.Errorf("internal error: %v", r)
		}
	}()

	L.Push(L.NewFunctionFromProto(proto))
	if err := L.PCall(0, lua.MultRet, nil); err != nil {
		wr.err = scriptError(err)
	}
	wr.bindings = collectBindings(L, baseline, seeded)
	return wr
}

// scriptError strips the Lua stack trace from err.
func scriptError(err error) error {
	var apiErr *lua.ApiError
	if errors.As(err, &apiErr) && apiErr.Object != nil {
		return errors.New(apiErr.Object.String())
	}
	return err
}

var identRe = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

var luaKeywords = map[string]bool{
	"and": true, "break": true, "do": true, "else": true, "elseif": true,
	"end": true, "false": true, "for": true, "function": true, "goto": true,
	"if": true, "in": true, "local": true, "nil": true, "not": true,
	"or": true, "repeat": true, "return": true, "then": true, "true": true,
	"until": true, "while": true,
}

func (in *Interpreter) checkSeeds(globals map[string]any) error {
	al := in.cfg.AllowList
	for name := range globals {
		switch {
		case !identRe.MatchString(name) || luaKeywords[name]:
			return fmt.Errorf("%w: seed %q is not a valid identifier", ErrConfiguration, name)
		case al.BuiltinForbidden(name) || al.ModuleForbidden(name):
			return fmt.Errorf("%w: seed %q shadows a forbidden name", ErrConfiguration, name)
		}
	}
	return nil
}

// seed installs caller globals. StateAccessor values become STATE-style
// tables; everything else must be plain data.
func seed(L *lua.LState, globals map[string]any) (map[string]bool, error) {
	seeded := make(map[string]bool, len(globals))
	for name, v := range globals {
		if acc, ok := v.(StateAccessor); ok {
			L.SetGlobal(name, stateTable(L, name, acc))
			continue
		}
		lv, err := luaval.ToLua(L, v)
		if err != nil {
			return nil, fmt.Errorf("seed %q: %w", name, err)
		}
		L.SetGlobal(name, lv)
		seeded[name] = true
	}
	return seeded, nil
}

func snapshotGlobals(L *lua.LState) map[string]lua.LValue {
	snap := make(map[string]lua.LValue)
	L.G.Global.ForEach(func(k, v lua.LValue) {
		if name, ok := k.(lua.LString); ok {
			snap[string(name)] = v
		}
	})
	return snap
}

// collectBindings returns data globals the script created or reassigned,
// plus data seeds.
func collectBindings(L *lua.LState, baseline map[string]lua.LValue, seeded map[string]bool) map[string]any {
	bindings := make(map[string]any)
	L.G.Global.ForEach(func(k, v lua.LValue) {
		name, ok := k.(lua.LString)
		if !ok || !luaval.IsData(v) {
			return
		}
		if before, existed := baseline[string(name)]; existed && before == v && !seeded[string(name)] {
			return
		}
		gv, err := luaval.ToGo(v)
		if err != nil {
			return
		}
		bindings[string(name)] = gv
	})
	return bindings
}
