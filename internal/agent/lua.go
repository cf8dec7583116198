package agent

import (
	"context"
	"os"
	"path/filepath"
	"time"

	lua "github.com/yuin/gopher-lua"
)

// LuaAgent runs tool implementations from a Lua script. The script must
// define a global invoke(tool, args) returning either a string (success) or
// a table { error = true, message = "..." }. A fresh interpreter state is
// created per call, so one agent value is safe for concurrent Invoke.
type LuaAgent struct {
	scriptPath string
}

func NewLuaAgent(scriptPath string) (*LuaAgent, error) {
	abs, err := filepath.Abs(scriptPath)
	if err != nil {
		return nil, err
	}
	if _, err := os.Stat(abs); err != nil {
		return nil, err
	}
	return &LuaAgent{scriptPath: abs}, nil
}

func (a *LuaAgent) Invoke(ctx context.Context, tool string, args map[string]string) Result {
	lState := lua.NewState()
	defer lState.Close()
	lState.SetContext(ctx)

	// Scripts get a restricted os module: getenv and time only.
	lState.PreloadModule("os", luaOSModule)

	if err := lState.DoFile(a.scriptPath); err != nil {
		return Errorf("lua agent: load script: %v", err)
	}

	fn := lState.GetGlobal("invoke")
	if fn.Type() != lua.LTFunction {
		return Errorf("lua agent: script must define global function invoke(tool, args)")
	}

	argsTable := lState.NewTable()
	for k, v := range args {
		lState.SetField(argsTable, k, lua.LString(v))
	}

	lState.Push(fn)
	lState.Push(lua.LString(tool))
	lState.Push(argsTable)
	if err := lState.PCall(2, 1, nil); err != nil {
		return Errorf("lua agent: invoke(%s): %v", tool, err)
	}

	ret := lState.Get(-1)
	lState.Pop(1)

	switch ret.Type() {
	case lua.LTString:
		return TextResult(ret.String())
	case lua.LTTable:
		tbl := ret.(*lua.LTable)
		isErr := false
		var message string
		tbl.ForEach(func(k, v lua.LValue) {
			switch k.String() {
			case "error":
				isErr = v == lua.LTrue
			case "message":
				message = v.String()
			}
		})
		if isErr {
			return Errorf("lua agent: %s", message)
		}
		return TextResult(message)
	default:
		return Errorf("lua agent: invoke() must return string or table { error, message }, got %s", ret.Type().String())
	}
}

func luaOSModule(lState *lua.LState) int {
	mod := lState.NewTable()
	lState.SetField(mod, "getenv", lState.NewFunction(func(ls *lua.LState) int {
		ls.Push(lua.LString(os.Getenv(ls.CheckString(1))))
		return 1
	}))
	lState.SetField(mod, "time", lState.NewFunction(func(ls *lua.LState) int {
		ls.Push(lua.LNumber(time.Now().Unix()))
		return 1
	}))
	lState.Push(mod)
	return 1
}
