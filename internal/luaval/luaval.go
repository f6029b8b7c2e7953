// Package luaval converts values between gopher-lua and plain Go data.
package luaval

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"reflect"
	"sort"
	"strconv"

	lua "github.com/yuin/gopher-lua"
	luajson "layeh.com/gopher-json"
)

// MaxDepth bounds nesting in both directions.
const MaxDepth = 64

var (
	// ErrNotData is returned for functions, userdata, threads and channels.
	ErrNotData = errors.New("value is not data")
	// ErrCycle is returned when a table contains itself.
	ErrCycle = errors.New("table contains a cycle")
	// ErrDepth is returned when nesting exceeds MaxDepth.
	ErrDepth = errors.New("nesting too deep")
)

// ToGo converts a Lua value into nil, bool, string, int64, float64,
// []any or map[string]any. Tables with keys 1..n convert to []any.
func ToGo(v lua.LValue) (any, error) {
	return toGo(v, map[*lua.LTable]bool{}, 0)
}

func toGo(v lua.LValue, seen map[*lua.LTable]bool, depth int) (any, error) {
	if depth > MaxDepth {
		return nil, ErrDepth
	}
	switch x := v.(type) {
	case *lua.LNilType:
		return nil, nil
	case lua.LBool:
		return bool(x), nil
	case lua.LString:
		return string(x), nil
	case lua.LNumber:
		return Number(x), nil
	case *lua.LTable:
		if seen[x] {
			return nil, ErrCycle
		}
		seen[x] = true
		defer delete(seen, x)
		return tableToGo(x, seen, depth)
	default:
		return nil, fmt.Errorf("%w: %s", ErrNotData, v.Type())
	}
}

// Number returns int64 for integral values in range, float64 otherwise.
func Number(n lua.LNumber) any {
	f := float64(n)
	if f == math.Trunc(f) && !math.IsInf(f, 0) && math.Abs(f) < 1<<53 {
		return int64(f)
	}
	return f
}

func tableToGo(t *lua.LTable, seen map[*lua.LTable]bool, depth int) (any, error) {
	n := t.MaxN()
	total := 0
	t.ForEach(func(lua.LValue, lua.LValue) { total++ })

	if n > 0 && n == total {
		arr := make([]any, 0, n)
		for i := 1; i <= n; i++ {
			item, err := toGo(t.RawGetInt(i), seen, depth+1)
			if err != nil {
				return nil, fmt.Errorf("[%d]: %w", i, err)
			}
			arr = append(arr, item)
		}
		return arr, nil
	}

	m := make(map[string]any, total)
	var ferr error
	t.ForEach(func(k, val lua.LValue) {
		if ferr != nil {
			return
		}
		var key string
		switch kk := k.(type) {
		case lua.LString:
			key = string(kk)
		case lua.LNumber:
			key = kk.String()
		case lua.LBool:
			key = strconv.FormatBool(bool(kk))
		default:
			ferr = fmt.Errorf("%w: table key of type %s", ErrNotData, k.Type())
			return
		}
		item, err := toGo(val, seen, depth+1)
		if err != nil {
			ferr = fmt.Errorf("%s: %w", key, err)
			return
		}
		m[key] = item
	})
	if ferr != nil {
		return nil, ferr
	}
	return m, nil
}

// ToLua converts Go data into a Lua value owned by L.
// Types without a direct mapping go through JSON.
func ToLua(L *lua.LState, v any) (lua.LValue, error) {
	return toLua(L, v, 0)
}

func toLua(L *lua.LState, v any, depth int) (lua.LValue, error) {
	if depth > MaxDepth {
		return lua.LNil, ErrDepth
	}
	switch x := v.(type) {
	case nil:
		return lua.LNil, nil
	case lua.LValue:
		return x, nil
	case bool:
		return lua.LBool(x), nil
	case string:
		return lua.LString(x), nil
	case []byte:
		return lua.LString(x), nil
	case int:
		return lua.LNumber(x), nil
	case int8:
		return lua.LNumber(x), nil
	case int16:
		return lua.LNumber(x), nil
	case int32:
		return lua.LNumber(x), nil
	case int64:
		return lua.LNumber(x), nil
	case uint:
		return lua.LNumber(x), nil
	case uint8:
		return lua.LNumber(x), nil
	case uint16:
		return lua.LNumber(x), nil
	case uint32:
		return lua.LNumber(x), nil
	case uint64:
		return lua.LNumber(x), nil
	case float32:
		return lua.LNumber(x), nil
	case float64:
		return lua.LNumber(x), nil
	case json.Number:
		f, err := x.Float64()
		if err != nil {
			return lua.LNil, err
		}
		return lua.LNumber(f), nil
	case []any:
		t := L.CreateTable(len(x), 0)
		for i, item := range x {
			lv, err := toLua(L, item, depth+1)
			if err != nil {
				return lua.LNil, fmt.Errorf("[%d]: %w", i+1, err)
			}
			t.RawSetInt(i+1, lv)
		}
		return t, nil
	case []string:
		t := L.CreateTable(len(x), 0)
		for i, s := range x {
			t.RawSetInt(i+1, lua.LString(s))
		}
		return t, nil
	case map[string]any:
		t := L.CreateTable(0, len(x))
		for _, k := range sortedKeys(x) {
			lv, err := toLua(L, x[k], depth+1)
			if err != nil {
				return lua.LNil, fmt.Errorf("%s: %w", k, err)
			}
			t.RawSetString(k, lv)
		}
		return t, nil
	case map[string]string:
		t := L.CreateTable(0, len(x))
		for k, s := range x {
			t.RawSetString(k, lua.LString(s))
		}
		return t, nil
	}

	switch reflect.ValueOf(v).Kind() {
	case reflect.Func, reflect.Chan, reflect.UnsafePointer:
		return lua.LNil, fmt.Errorf("%w: %T", ErrNotData, v)
	}

	data, err := json.Marshal(v)
	if err != nil {
		return lua.LNil, fmt.Errorf("convert %T: %w", v, err)
	}
	return luajson.Decode(L, data)
}

// IsData reports whether v can be represented by ToGo.
func IsData(v lua.LValue) bool {
	switch v.Type() {
	case lua.LTNil, lua.LTBool, lua.LTString, lua.LTNumber, lua.LTTable:
		return true
	}
	return false
}

func sortedKeys(m map[string]any) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
