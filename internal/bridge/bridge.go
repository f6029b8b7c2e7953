// Package bridge turns NAMESPACE.METHOD{...} calls made by scripts into
// structured CommandCall values handed to a host executor.
package bridge

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	lua "github.com/yuin/gopher-lua"

	"github.com/ppiankov/scriptguard/internal/luaval"
)

// DefaultNamespaces are the command groups bound into every execution.
var DefaultNamespaces = []string{"FILE", "MESH", "PROMPT", "STATE", "LOG"}

// ErrCommandLimit is raised into the script once MaxCommands is exceeded.
var ErrCommandLimit = errors.New("command limit exceeded")

// CommandCall is one request forwarded to the host.
type CommandCall struct {
	Command string         `json:"command"`
	Params  map[string]any `json:"params"`
}

// Executor performs a command on behalf of a script. The returned value is
// converted to Lua and handed back to the caller; an error is raised inside
// the script.
type Executor func(ctx context.Context, call CommandCall) (any, error)

// Record traces one bridge call.
type Record struct {
	Command    string         `json:"command"`
	Params     map[string]any `json:"params,omitempty"`
	Error      string         `json:"error,omitempty"`
	DurationMs int64          `json:"duration_ms"`
}

// Bridge binds command namespaces into Lua states.
type Bridge struct {
	exec       Executor
	namespaces []string
}

// Option configures a Bridge.
type Option func(*Bridge)

// WithNamespaces replaces the default namespace set.
func WithNamespaces(names ...string) Option {
	return func(b *Bridge) {
		b.namespaces = append([]string(nil), names...)
	}
}

// New creates a Bridge forwarding to exec. A nil exec uses Simulated.
func New(exec Executor, opts ...Option) *Bridge {
	if exec == nil {
		exec = Simulated
	}
	b := &Bridge{
		exec:       exec,
		namespaces: append([]string(nil), DefaultNamespaces...),
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Namespaces returns the bound namespace names.
func (b *Bridge) Namespaces() []string {
	return append([]string(nil), b.namespaces...)
}

// BindOptions configures one binding.
type BindOptions struct {
	// MaxCommands caps bridge calls per execution. Zero means unlimited.
	MaxCommands int
	Logger      *slog.Logger
}

// Session is the per-execution view of a Bridge.
type Session struct {
	exec   Executor
	ctx    context.Context
	max    int
	logger *slog.Logger

	mu      sync.Mutex
	calls   int
	records []Record
}

// Bind installs a fresh table per namespace into L's globals. Calls made
// through those tables use ctx and are recorded on the returned Session.
func (b *Bridge) Bind(ctx context.Context, L *lua.LState, opts BindOptions) *Session {
	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	s := &Session{
		exec:   b.exec,
		ctx:    ctx,
		max:    opts.MaxCommands,
		logger: logger,
	}
	for _, ns := range b.namespaces {
		L.SetGlobal(ns, s.namespaceTable(L, ns))
	}
	return s
}

// Records returns a copy of the calls made so far.
func (s *Session) Records() []Record {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Record(nil), s.records...)
}

func (s *Session) namespaceTable(L *lua.LState, ns string) *lua.LTable {
	tbl := L.NewTable()
	mt := L.NewTable()
	mt.RawSetString("__index", L.NewFunction(func(L *lua.LState) int {
		key, ok := L.Get(2).(lua.LString)
		if !ok {
			L.Push(lua.LNil)
			return 1
		}
		L.Push(s.method(L, tbl, ns+"."+string(key)))
		return 1
	}))
	mt.RawSetString("__newindex", L.NewFunction(func(L *lua.LState) int {
		L.RaiseError("%s is read-only", ns)
		return 0
	}))
	mt.RawSetString("__tostring", L.NewFunction(func(L *lua.LState) int {
		L.Push(lua.LString("<commands " + ns + ">"))
		return 1
	}))
	L.SetMetatable(tbl, mt)
	return tbl
}

func (s *Session) method(L *lua.LState, self *lua.LTable, command string) *lua.LFunction {
	return L.NewFunction(func(L *lua.LState) int {
		first := 1
		if t, ok := L.Get(1).(*lua.LTable); ok && t == self {
			first = 2 // NS:METHOD{...}
		}

		params := map[string]any{}
		switch top := L.GetTop(); {
		case top < first:
		case top == first:
			arg := L.Get(first)
			switch a := arg.(type) {
			case *lua.LNilType:
			case *lua.LTable:
				v, err := luaval.ToGo(a)
				if err != nil {
					L.RaiseError("%s: invalid params: %v", command, err)
				}
				switch p := v.(type) {
				case map[string]any:
					params = p
				case []any:
					params = map[string]any{"args": p}
				}
			default:
				L.RaiseError("%s: expected a parameter table, got %s", command, arg.Type())
			}
		default:
			L.RaiseError("%s: expected a single parameter table", command)
		}

		result, err := s.call(CommandCall{Command: command, Params: params})
		if err != nil {
			L.RaiseError("%s: %v", command, err)
		}
		lv, err := luaval.ToLua(L, result)
		if err != nil {
			L.RaiseError("%s: invalid result: %v", command, err)
		}
		L.Push(lv)
		return 1
	})
}

func (s *Session) call(call CommandCall) (any, error) {
	s.mu.Lock()
	s.calls++
	over := s.max > 0 && s.calls > s.max
	s.mu.Unlock()
	if over {
		return nil, fmt.Errorf("%w (max %d)", ErrCommandLimit, s.max)
	}

	start := time.Now()
	result, err := s.exec(s.ctx, call)
	rec := Record{
		Command:    call.Command,
		Params:     call.Params,
		DurationMs: time.Since(start).Milliseconds(),
	}
	if err != nil {
		rec.Error = err.Error()
		s.logger.Debug("command failed", "command", call.Command, "error", err)
	} else {
		s.logger.Debug("command executed", "command", call.Command)
	}

	s.mu.Lock()
	s.records = append(s.records, rec)
	s.mu.Unlock()

	return result, err
}
