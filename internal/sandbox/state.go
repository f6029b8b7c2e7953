package sandbox

import (
	lua "github.com/yuin/gopher-lua"

	"github.com/ppiankov/scriptguard/internal/luaval"
)

// StateAccessor is the document-scoped key/value store a host may seed as
// STATE. Scripts call STATE.GET, STATE.SET and STATE.DELETE either
// positionally (STATE.GET("k", 0)) or with a table (STATE.GET{key = "k"}).
type StateAccessor interface {
	Get(key string, def any) (any, error)
	Set(key string, value any) error
	Delete(key string) error
}

// stateTable exposes acc to scripts.
func stateTable(L *lua.LState, name string, acc StateAccessor) *lua.LTable {
	tbl := L.NewTable()

	tbl.RawSetString("GET", L.NewFunction(func(L *lua.LState) int {
		args := stateArgs(L, tbl, "key", "default")
		key := argKey(L, name+".GET", args[0])
		def, err := luaval.ToGo(args[1])
		if err != nil {
			L.RaiseError("%s.GET: invalid default: %v", name, err)
		}
		v, err := acc.Get(key, def)
		if err != nil {
			L.RaiseError("%s.GET: %v", name, err)
		}
		lv, err := luaval.ToLua(L, v)
		if err != nil {
			L.RaiseError("%s.GET: %v", name, err)
		}
		L.Push(lv)
		return 1
	}))

	tbl.RawSetString("SET", L.NewFunction(func(L *lua.LState) int {
		args := stateArgs(L, tbl, "key", "value")
		key := argKey(L, name+".SET", args[0])
		v, err := luaval.ToGo(args[1])
		if err != nil {
			L.RaiseError("%s.SET: invalid value: %v", name, err)
		}
		if err := acc.Set(key, v); err != nil {
			L.RaiseError("%s.SET: %v", name, err)
		}
		L.Push(lua.LTrue)
		return 1
	}))

	tbl.RawSetString("DELETE", L.NewFunction(func(L *lua.LState) int {
		args := stateArgs(L, tbl, "key")
		key := argKey(L, name+".DELETE", args[0])
		if err := acc.Delete(key); err != nil {
			L.RaiseError("%s.DELETE: %v", name, err)
		}
		L.Push(lua.LTrue)
		return 1
	}))

	return tbl
}

// stateArgs reads named or positional arguments, skipping a colon-call self.
func stateArgs(L *lua.LState, self *lua.LTable, names ...string) []lua.LValue {
	first := 1
	if t, ok := L.Get(1).(*lua.LTable); ok && t == self {
		first = 2
	}
	out := make([]lua.LValue, len(names))
	if t, ok := L.Get(first).(*lua.LTable); ok && L.GetTop() == first {
		for i, n := range names {
			out[i] = t.RawGetString(n)
		}
		return out
	}
	for i := range names {
		out[i] = L.Get(first + i)
	}
	return out
}

func argKey(L *lua.LState, fn string, v lua.LValue) string {
	s, ok := v.(lua.LString)
	if !ok || s == "" {
		L.RaiseError("%s: key must be a non-empty string", fn)
	}
	return string(s)
}
