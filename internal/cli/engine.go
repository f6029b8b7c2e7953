package cli

import (
	"fmt"
	"time"

	"github.com/ppiankov/scriptguard/internal/allowlist"
	"github.com/ppiankov/scriptguard/internal/audit"
	"github.com/ppiankov/scriptguard/internal/bridge"
	"github.com/ppiankov/scriptguard/internal/metrics"
	"github.com/ppiankov/scriptguard/internal/ratelimit"
	"github.com/ppiankov/scriptguard/internal/sandbox"
)

// engineFlags are the interpreter settings shared by run, watch and mcp.
type engineFlags struct {
	timeout     time.Duration
	maxOutput   int
	maxCommands int
	auditPath   string
	rateLimits  []string
}

// engine bundles an interpreter with the resources it holds open.
type engine struct {
	interp *sandbox.Interpreter
	al     *allowlist.AllowList
	audit  *audit.Log
}

func (e *engine) Close() error {
	if e.audit != nil {
		return e.audit.Close()
	}
	return nil
}

// loadAllowList resolves --profile, then --allowlist, then the default file.
func loadAllowList() (*allowlist.AllowList, error) {
	if profileName != "" {
		return allowlist.Profile(profileName)
	}
	return allowlist.Load(allowlistPath)
}

// newEngine builds an interpreter whose LOG commands go to the CLI logger
// and whose other commands are simulated. Rate limits apply before the
// executor; with an audit path every command, rejected or not, is recorded.
func newEngine(f engineFlags, m *metrics.Metrics) (*engine, error) {
	al, err := loadAllowList()
	if err != nil {
		return nil, &exitError{code: exitConfig, msg: fmt.Sprintf("load allowlist: %v", err)}
	}

	router := bridge.NewRouter(bridge.Simulated)
	router.Handle("LOG", bridge.LogExecutor(logger.With("source", "script")))
	var exec bridge.Executor = router.Execute

	if len(f.rateLimits) > 0 {
		limits, err := ratelimit.Parse(f.rateLimits)
		if err != nil {
			return nil, &exitError{code: exitConfig, msg: err.Error()}
		}
		exec = ratelimit.New(limits, nil).Wrap(exec)
	}

	e := &engine{al: al}
	if f.auditPath != "" {
		e.audit, err = audit.Open(f.auditPath)
		if err != nil {
			return nil, err
		}
		exec = audit.Wrap(e.audit, exec, al.Hash(), logger)
	}

	e.interp, err = sandbox.New(sandbox.Config{
		AllowList:      al,
		Bridge:         bridge.New(exec),
		Timeout:        f.timeout,
		MaxOutputLines: f.maxOutput,
		MaxCommands:    f.maxCommands,
		Logger:         logger,
		Metrics:        m,
	})
	if err != nil {
		e.Close()
		return nil, &exitError{code: exitConfig, msg: err.Error()}
	}
	return e, nil
}
