package safelib

import (
	"strings"

	lua "github.com/yuin/gopher-lua"
)

// MaxStringLen caps strings built by string.rep.
const MaxStringLen = 16 << 20

// maxFormatDigits caps the width and precision of string.format specs.
const maxFormatDigits = 2

// capStringLib replaces the size-amplifying functions of the opened string
// library. The library table also backs the string metatable, so method
// calls like ("x"):rep(n) get the capped versions too.
func capStringLib(L *lua.LState) {
	mod, ok := L.GetGlobal(lua.StringLibName).(*lua.LTable)
	if !ok {
		return
	}
	mod.RawSetString("rep", L.NewFunction(strRep))
	if orig, ok := mod.RawGetString("format").(*lua.LFunction); ok && orig.IsG {
		mod.RawSetString("format", L.NewFunction(strFormat(orig.GFunction)))
	}
}

func strRep(L *lua.LState) int {
	s := L.CheckString(1)
	n := L.CheckInt(2)
	if n <= 0 || s == "" {
		L.Push(lua.LString(""))
		return 1
	}
	if n > MaxStringLen/len(s) {
		L.RaiseError("string.rep: result too large (limit %d bytes)", MaxStringLen)
	}
	L.Push(lua.LString(strings.Repeat(s, n)))
	return 1
}

func strFormat(orig lua.LGFunction) lua.LGFunction {
	return func(L *lua.LState) int {
		if err := checkFormat(L.CheckString(1)); err != "" {
			L.RaiseError("string.format: %s", err)
		}
		return orig(L)
	}
}

// checkFormat rejects specs whose width or precision has more than
// maxFormatDigits digits, and the * and [n] forms that take them from
// arguments.
func checkFormat(f string) string {
	for i := 0; i < len(f); i++ {
		if f[i] != '%' {
			continue
		}
		i++
		if i < len(f) && f[i] == '%' {
			continue
		}
		for i < len(f) && strings.IndexByte("-+ #0", f[i]) >= 0 {
			i++
		}
		if dynamicArg(f, i) {
			return "invalid format (argument width or index)"
		}
		if digits(f, &i) > maxFormatDigits {
			return "invalid format (width too long)"
		}
		if i < len(f) && f[i] == '.' {
			i++
			if dynamicArg(f, i) {
				return "invalid format (argument width or index)"
			}
			if digits(f, &i) > maxFormatDigits {
				return "invalid format (precision too long)"
			}
		}
		if dynamicArg(f, i) {
			return "invalid format (argument width or index)"
		}
	}
	return ""
}

func digits(f string, i *int) int {
	n := 0
	for *i < len(f) && f[*i] >= '0' && f[*i] <= '9' {
		*i++
		n++
	}
	return n
}

func dynamicArg(f string, i int) bool {
	return i < len(f) && (f[i] == '*' || f[i] == '[')
}
