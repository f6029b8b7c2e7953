// Package safelib installs the allow-listed builtins and modules into a
// Lua state created with SkipOpenLibs.
package safelib

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	lua "github.com/yuin/gopher-lua"

	"github.com/ppiankov/scriptguard/internal/allowlist"
)

// ErrNotImplemented is returned when the allowlist names something this
// package cannot provide.
var ErrNotImplemented = errors.New("no implementation")

// Options configures Install.
type Options struct {
	// Print receives one line per print call. Nil discards output.
	Print func(line string)
	// Clock backs the time module. Nil means time.Now.
	Clock func() time.Time
	// Seed seeds the random module. Zero picks a random seed.
	Seed uint64
}

// Baseline maps each installed global to its value right after Install.
type Baseline map[string]lua.LValue

// libraries opened from gopher-lua before pruning.
var libraries = []struct {
	name string
	open lua.LGFunction
}{
	{lua.BaseLibName, lua.OpenBase},
	{lua.StringLibName, lua.OpenString},
	{lua.TabLibName, lua.OpenTable},
	{lua.MathLibName, lua.OpenMath},
}

// baseNames are the gopher-lua base functions a profile may allow.
var baseNames = map[string]bool{
	"assert":   true,
	"error":    true,
	"ipairs":   true,
	"next":     true,
	"pairs":    true,
	"pcall":    true,
	"select":   true,
	"tonumber": true,
	"tostring": true,
	"type":     true,
	"unpack":   true,
	"xpcall":   true,
}

// Check reports allow-listed names without an implementation.
func Check(al *allowlist.AllowList) error {
	var missing []string
	for _, name := range al.Builtins() {
		if !baseNames[name] && helpers[name] == nil && name != "print" && name != "require" {
			missing = append(missing, "builtin "+name)
		}
	}
	for _, name := range al.Modules() {
		if moduleLoaders[name] == nil {
			missing = append(missing, "module "+name)
		}
	}
	if len(missing) > 0 {
		return fmt.Errorf("%w: %s", ErrNotImplemented, strings.Join(missing, ", "))
	}
	return nil
}

// Install opens the libraries into L, adds helpers and modules, and removes
// every global the allowlist does not name. Module tables are copies with
// forbidden attributes stripped.
func Install(L *lua.LState, al *allowlist.AllowList, opts Options) (Baseline, error) {
	if err := Check(al); err != nil {
		return nil, err
	}

	for _, lib := range libraries {
		if err := L.CallByParam(lua.P{
			Fn:      L.NewFunction(lib.open),
			NRet:    0,
			Protect: true,
		}, lua.LString(lib.name)); err != nil {
			return nil, fmt.Errorf("open %s: %w", lib.name, err)
		}
	}

	capStringLib(L)

	env := &env{opts: opts}
	if env.opts.Clock == nil {
		env.opts.Clock = time.Now
	}

	modules := make(map[string]*lua.LTable)
	for _, name := range al.Modules() {
		mod, err := moduleLoaders[name](L, env)
		if err != nil {
			return nil, fmt.Errorf("load module %s: %w", name, err)
		}
		modules[name] = sanitize(L, mod, al)
	}

	globals := L.G.Global
	for name, fn := range helpers {
		globals.RawSetString(name, L.NewFunction(fn))
	}
	globals.RawSetString("print", L.NewFunction(env.print))
	globals.RawSetString("require", L.NewFunction(func(L *lua.LState) int {
		name := L.CheckString(1)
		mod, ok := modules[name]
		if !ok || !al.ModuleAllowed(name) {
			L.RaiseError("module %q is not available", name)
		}
		L.Push(mod)
		return 1
	}))

	var drop []string
	globals.ForEach(func(k, _ lua.LValue) {
		name, ok := k.(lua.LString)
		if !ok || !al.BuiltinAllowed(string(name)) {
			drop = append(drop, k.String())
		}
	})
	for _, name := range drop {
		globals.RawSetString(name, lua.LNil)
	}
	for name, mod := range modules {
		globals.RawSetString(name, mod)
	}

	baseline := make(Baseline)
	globals.ForEach(func(k, v lua.LValue) {
		baseline[k.String()] = v
	})
	return baseline, nil
}

// Names returns the sorted global names in b.
func (b Baseline) Names() []string {
	names := make([]string, 0, len(b))
	for name := range b {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

type env struct {
	opts Options
}

func (e *env) print(L *lua.LState) int {
	top := L.GetTop()
	parts := make([]string, 0, top)
	for i := 1; i <= top; i++ {
		parts = append(parts, L.ToStringMeta(L.Get(i)).String())
	}
	if e.opts.Print != nil {
		e.opts.Print(strings.Join(parts, " "))
	}
	return 0
}

func sanitize(L *lua.LState, mod *lua.LTable, al *allowlist.AllowList) *lua.LTable {
	out := L.NewTable()
	mod.ForEach(func(k, v lua.LValue) {
		if s, ok := k.(lua.LString); ok {
			if forbidden, _ := al.AttributeForbidden(string(s)); forbidden {
				return
			}
		}
		out.RawSet(k, v)
	})
	return out
}
