package luaenv

import (
	"strings"

	lua "github.com/yuin/gopher-lua"
	"go.uber.org/zap"
)

// Namespace is the read side of the running-automata mirror exposed to
// Lua code as automaton.running and automaton.list.
type Namespace interface {
	Running(name string) bool
	Names() []string
}

// newSandboxedState creates an LState with only the base, table, string and
// math libraries, without any way to load further code from disk or strings.
func newSandboxedState(name string, logger *zap.Logger, ns Namespace) (*lua.LState, error) {
	L := lua.NewState(lua.Options{SkipOpenLibs: true})

	libs := []struct {
		name string
		open lua.LGFunction
	}{
		{lua.BaseLibName, lua.OpenBase},
		{lua.TabLibName, lua.OpenTable},
		{lua.StringLibName, lua.OpenString},
		{lua.MathLibName, lua.OpenMath},
	}
	for _, lib := range libs {
		if err := L.CallByParam(lua.P{
			Fn:      L.NewFunction(lib.open),
			NRet:    0,
			Protect: true,
		}, lua.LString(lib.name)); err != nil {
			L.Close()
			return nil, err
		}
	}

	for _, fn := range []string{"dofile", "loadfile", "load", "loadstring", "require", "module"} {
		L.SetGlobal(fn, lua.LNil)
	}

	L.SetGlobal("print", L.NewFunction(func(L *lua.LState) int {
		parts := make([]string, 0, L.GetTop())
		for i := 1; i <= L.GetTop(); i++ {
			parts = append(parts, L.ToStringMeta(L.Get(i)).String())
		}
		logger.Info(strings.Join(parts, "\t"))
		return 0
	}))

	L.SetGlobal("automaton", hostModule(L, name, logger, ns))
	return L, nil
}

// hostModule builds the "automaton" global table.
func hostModule(L *lua.LState, name string, logger *zap.Logger, ns Namespace) *lua.LTable {
	mod := L.NewTable()
	L.SetField(mod, "name", lua.LString(name))

	L.SetField(mod, "log", L.NewFunction(func(L *lua.LState) int {
		level, msg := "info", L.CheckString(1)
		if L.GetTop() >= 2 {
			level, msg = strings.ToLower(msg), L.CheckString(2)
		}
		switch level {
		case "debug":
			logger.Debug(msg)
		case "warn", "warning":
			logger.Warn(msg)
		case "error":
			logger.Error(msg)
		default:
			logger.Info(msg)
		}
		return 0
	}))

	L.SetField(mod, "running", L.NewFunction(func(L *lua.LState) int {
		other := L.CheckString(1)
		L.Push(lua.LBool(ns != nil && ns.Running(other)))
		return 1
	}))

	L.SetField(mod, "list", L.NewFunction(func(L *lua.LState) int {
		t := L.NewTable()
		if ns != nil {
			for _, n := range ns.Names() {
				t.Append(lua.LString(n))
			}
		}
		L.Push(t)
		return 1
	}))

	return mod
}
