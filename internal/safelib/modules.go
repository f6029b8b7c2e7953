package safelib

import (
	"fmt"
	"math/rand/v2"
	"time"

	"github.com/yuin/gluare"
	lua "github.com/yuin/gopher-lua"
	luajson "layeh.com/gopher-json"
)

type moduleLoader func(L *lua.LState, e *env) (*lua.LTable, error)

var moduleLoaders = map[string]moduleLoader{
	"string": globalModule(lua.StringLibName),
	"table":  globalModule(lua.TabLibName),
	"math":   globalModule(lua.MathLibName),
	"json":   preloaded(luajson.Loader),
	"re":     preloaded(gluare.Loader),
	"time":   loadTime,
	"random": loadRandom,
}

func globalModule(name string) moduleLoader {
	return func(L *lua.LState, _ *env) (*lua.LTable, error) {
		mod, ok := L.GetGlobal(name).(*lua.LTable)
		if !ok {
			return nil, fmt.Errorf("library %s not opened", name)
		}
		return mod, nil
	}
}

// preloaded runs a gopher-lua style loader and returns the table it pushes.
func preloaded(loader lua.LGFunction) moduleLoader {
	return func(L *lua.LState, _ *env) (*lua.LTable, error) {
		if err := L.CallByParam(lua.P{
			Fn:      L.NewFunction(loader),
			NRet:    1,
			Protect: true,
		}); err != nil {
			return nil, err
		}
		ret := L.Get(-1)
		L.Pop(1)
		mod, ok := ret.(*lua.LTable)
		if !ok {
			return nil, fmt.Errorf("loader returned %s", ret.Type())
		}
		return mod, nil
	}
}

// Layouts exposed by the time module.
const (
	LayoutDate     = "2006-01-02"
	LayoutDateTime = "2006-01-02 15:04:05"
)

func loadTime(L *lua.LState, e *env) (*lua.LTable, error) {
	clock := e.opts.Clock
	mod := L.SetFuncs(L.NewTable(), map[string]lua.LGFunction{
		"now": func(L *lua.LState) int {
			L.Push(lua.LNumber(float64(clock().UnixNano()) / 1e9))
			return 1
		},
		"unix": func(L *lua.LState) int {
			L.Push(lua.LNumber(clock().Unix()))
			return 1
		},
		"format": func(L *lua.LState) int {
			ts := L.OptNumber(1, lua.LNumber(clock().Unix()))
			layout := L.OptString(2, time.RFC3339)
			L.Push(lua.LString(fromSeconds(float64(ts)).Format(layout)))
			return 1
		},
		"parse": func(L *lua.LState) int {
			value := L.CheckString(1)
			layout := L.OptString(2, time.RFC3339)
			t, err := time.Parse(layout, value)
			if err != nil {
				L.RaiseError("time.parse: %v", err)
			}
			L.Push(lua.LNumber(t.Unix()))
			return 1
		},
		"date": func(L *lua.LState) int {
			t := fromSeconds(float64(L.OptNumber(1, lua.LNumber(clock().Unix()))))
			d := L.CreateTable(0, 8)
			d.RawSetString("year", lua.LNumber(t.Year()))
			d.RawSetString("month", lua.LNumber(t.Month()))
			d.RawSetString("day", lua.LNumber(t.Day()))
			d.RawSetString("hour", lua.LNumber(t.Hour()))
			d.RawSetString("min", lua.LNumber(t.Minute()))
			d.RawSetString("sec", lua.LNumber(t.Second()))
			d.RawSetString("wday", lua.LNumber(t.Weekday()+1))
			d.RawSetString("yday", lua.LNumber(t.YearDay()))
			L.Push(d)
			return 1
		},
	})
	mod.RawSetString("RFC3339", lua.LString(time.RFC3339))
	mod.RawSetString("DATE", lua.LString(LayoutDate))
	mod.RawSetString("DATETIME", lua.LString(LayoutDateTime))
	return mod, nil
}

func fromSeconds(s float64) time.Time {
	sec := int64(s)
	nsec := int64((s - float64(sec)) * 1e9)
	return time.Unix(sec, nsec).UTC()
}

func loadRandom(L *lua.LState, e *env) (*lua.LTable, error) {
	seed := e.opts.Seed
	if seed == 0 {
		seed = rand.Uint64()
	}
	rng := rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))

	return L.SetFuncs(L.NewTable(), map[string]lua.LGFunction{
		// int(a, b) is inclusive on both ends.
		"int": func(L *lua.LState) int {
			lo, hi := L.CheckInt64(1), L.CheckInt64(2)
			if hi < lo {
				L.RaiseError("random.int: empty interval [%d, %d]", lo, hi)
			}
			L.Push(lua.LNumber(lo + rng.Int64N(hi-lo+1)))
			return 1
		},
		"float": func(L *lua.LState) int {
			L.Push(lua.LNumber(rng.Float64()))
			return 1
		},
		"choice": func(L *lua.LState) int {
			values := arrayOf(L.CheckTable(1))
			if len(values) == 0 {
				L.RaiseError("random.choice: empty sequence")
			}
			L.Push(values[rng.IntN(len(values))])
			return 1
		},
		"shuffle": func(L *lua.LState) int {
			values := arrayOf(L.CheckTable(1))
			rng.Shuffle(len(values), func(i, j int) {
				values[i], values[j] = values[j], values[i]
			})
			pushArray(L, values)
			return 1
		},
	}), nil
}
