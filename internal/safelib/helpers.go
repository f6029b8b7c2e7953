package safelib

import (
	"math"
	"sort"
	"strconv"
	"strings"

	lua "github.com/yuin/gopher-lua"
)

// MaxRange caps the size of tables built by range.
const MaxRange = 1_000_000

var helpers = map[string]lua.LGFunction{
	"abs":      helperAbs,
	"all":      helperAll,
	"any":      helperAny,
	"bool":     helperBool,
	"contains": helperContains,
	"float":    helperFloat,
	"int":      helperInt,
	"keys":     helperKeys,
	"len":      helperLen,
	"max":      helperMax,
	"min":      helperMin,
	"range":    helperRange,
	"reversed": helperReversed,
	"round":    helperRound,
	"sorted":   helperSorted,
	"str":      helperStr,
	"sum":      helperSum,
}

func helperLen(L *lua.LState) int {
	switch v := L.CheckAny(1).(type) {
	case lua.LString:
		L.Push(lua.LNumber(len(v)))
	case *lua.LTable:
		n := 0
		v.ForEach(func(lua.LValue, lua.LValue) { n++ })
		L.Push(lua.LNumber(n))
	default:
		L.ArgError(1, "string or table expected, got "+v.Type().String())
	}
	return 1
}

// range(stop) | range(start, stop [, step]); stop is exclusive.
func helperRange(L *lua.LState) int {
	var start, stop, step int
	switch L.GetTop() {
	case 1:
		start, stop, step = 0, L.CheckInt(1), 1
	case 2:
		start, stop, step = L.CheckInt(1), L.CheckInt(2), 1
	default:
		start, stop, step = L.CheckInt(1), L.CheckInt(2), L.CheckInt(3)
	}
	if step == 0 {
		L.ArgError(3, "step must not be zero")
	}

	n := 0
	if step > 0 && stop > start {
		n = (stop - start + step - 1) / step
	} else if step < 0 && start > stop {
		n = (start - stop - step - 1) / -step
	}
	if n > MaxRange {
		L.RaiseError("range too large (%d > %d)", n, MaxRange)
	}

	t := L.CreateTable(n, 0)
	for i := 0; i < n; i++ {
		t.RawSetInt(i+1, lua.LNumber(start+i*step))
	}
	L.Push(t)
	return 1
}

func helperSum(L *lua.LState) int {
	t := L.CheckTable(1)
	var total lua.LNumber
	for i := 1; i <= t.Len(); i++ {
		n, ok := t.RawGetInt(i).(lua.LNumber)
		if !ok {
			L.RaiseError("sum: element %d is not a number", i)
		}
		total += n
	}
	L.Push(total)
	return 1
}

// extreme implements min and max over either one table or the arguments.
func extreme(L *lua.LState, better func(a, b lua.LValue) bool) int {
	var values []lua.LValue
	if t, ok := L.Get(1).(*lua.LTable); ok && L.GetTop() == 1 {
		for i := 1; i <= t.Len(); i++ {
			values = append(values, t.RawGetInt(i))
		}
	} else {
		for i := 1; i <= L.GetTop(); i++ {
			values = append(values, L.Get(i))
		}
	}
	if len(values) == 0 {
		L.RaiseError("empty sequence")
	}
	best := values[0]
	for _, v := range values[1:] {
		if better(v, best) {
			best = v
		}
	}
	L.Push(best)
	return 1
}

func helperMin(L *lua.LState) int {
	return extreme(L, func(a, b lua.LValue) bool { return L.LessThan(a, b) })
}

func helperMax(L *lua.LState) int {
	return extreme(L, func(a, b lua.LValue) bool { return L.LessThan(b, a) })
}

func helperAbs(L *lua.LState) int {
	L.Push(lua.LNumber(math.Abs(float64(L.CheckNumber(1)))))
	return 1
}

// round(x [, digits]) rounds half away from zero.
func helperRound(L *lua.LState) int {
	x := float64(L.CheckNumber(1))
	digits := L.OptInt(2, 0)
	p := math.Pow(10, float64(digits))
	L.Push(lua.LNumber(math.Round(x*p) / p))
	return 1
}

func arrayOf(t *lua.LTable) []lua.LValue {
	out := make([]lua.LValue, 0, t.Len())
	for i := 1; i <= t.Len(); i++ {
		out = append(out, t.RawGetInt(i))
	}
	return out
}

func pushArray(L *lua.LState, values []lua.LValue) {
	t := L.CreateTable(len(values), 0)
	for i, v := range values {
		t.RawSetInt(i+1, v)
	}
	L.Push(t)
}

// sorted(t [, less]) returns a sorted copy of the array part of t.
func helperSorted(L *lua.LState) int {
	values := arrayOf(L.CheckTable(1))
	less := L.OptFunction(2, nil)
	sort.SliceStable(values, func(i, j int) bool {
		if less == nil {
			return L.LessThan(values[i], values[j])
		}
		L.Push(less)
		L.Push(values[i])
		L.Push(values[j])
		L.Call(2, 1)
		r := L.Get(-1)
		L.Pop(1)
		return lua.LVAsBool(r)
	})
	pushArray(L, values)
	return 1
}

func helperReversed(L *lua.LState) int {
	switch v := L.CheckAny(1).(type) {
	case lua.LString:
		b := []byte(v)
		for i, j := 0, len(b)-1; i < j; i, j = i+1, j-1 {
			b[i], b[j] = b[j], b[i]
		}
		L.Push(lua.LString(b))
	case *lua.LTable:
		values := arrayOf(v)
		for i, j := 0, len(values)-1; i < j; i, j = i+1, j-1 {
			values[i], values[j] = values[j], values[i]
		}
		pushArray(L, values)
	default:
		L.ArgError(1, "string or table expected, got "+v.Type().String())
	}
	return 1
}

// keys returns the table's keys, numbers first, then strings, each sorted.
func helperKeys(L *lua.LState) int {
	t := L.CheckTable(1)
	var nums, strs, other []lua.LValue
	t.ForEach(func(k, _ lua.LValue) {
		switch k.(type) {
		case lua.LNumber:
			nums = append(nums, k)
		case lua.LString:
			strs = append(strs, k)
		default:
			other = append(other, k)
		}
	})
	sort.Slice(nums, func(i, j int) bool { return nums[i].(lua.LNumber) < nums[j].(lua.LNumber) })
	sort.Slice(strs, func(i, j int) bool { return strs[i].(lua.LString) < strs[j].(lua.LString) })
	pushArray(L, append(append(nums, strs...), other...))
	return 1
}

func helperContains(L *lua.LState) int {
	needle := L.CheckAny(2)
	switch v := L.CheckAny(1).(type) {
	case lua.LString:
		L.Push(lua.LBool(strings.Contains(string(v), L.ToStringMeta(needle).String())))
	case *lua.LTable:
		found := false
		v.ForEach(func(_, val lua.LValue) {
			if !found && L.Equal(val, needle) {
				found = true
			}
		})
		L.Push(lua.LBool(found))
	default:
		L.ArgError(1, "string or table expected, got "+v.Type().String())
	}
	return 1
}

func helperAny(L *lua.LState) int {
	for _, v := range arrayOf(L.CheckTable(1)) {
		if lua.LVAsBool(v) {
			L.Push(lua.LTrue)
			return 1
		}
	}
	L.Push(lua.LFalse)
	return 1
}

func helperAll(L *lua.LState) int {
	for _, v := range arrayOf(L.CheckTable(1)) {
		if !lua.LVAsBool(v) {
			L.Push(lua.LFalse)
			return 1
		}
	}
	L.Push(lua.LTrue)
	return 1
}

func helperStr(L *lua.LState) int {
	L.Push(L.ToStringMeta(L.CheckAny(1)))
	return 1
}

func toNumber(L *lua.LState) float64 {
	switch v := L.CheckAny(1).(type) {
	case lua.LNumber:
		return float64(v)
	case lua.LString:
		f, err := strconv.ParseFloat(strings.TrimSpace(string(v)), 64)
		if err != nil {
			L.RaiseError("invalid number %q", string(v))
		}
		return f
	case lua.LBool:
		if v {
			return 1
		}
		return 0
	default:
		L.ArgError(1, "number, string or boolean expected, got "+v.Type().String())
	}
	return 0
}

func helperInt(L *lua.LState) int {
	L.Push(lua.LNumber(math.Trunc(toNumber(L))))
	return 1
}

func helperFloat(L *lua.LState) int {
	L.Push(lua.LNumber(toNumber(L)))
	return 1
}

func helperBool(L *lua.LState) int {
	L.Push(lua.LBool(lua.LVAsBool(L.Get(1))))
	return 1
}
