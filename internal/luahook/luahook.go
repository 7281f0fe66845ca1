// Package luahook implements the Lua scripting hook external
// collaborator (§9): an optional, sandboxed per-provider script that
// may adjust a small whitelist of request fields before dispatch.
package luahook

import (
	"fmt"
	"time"

	lua "github.com/yuin/gopher-lua"

	"github.com/mihaisavezi/claude-code-open/internal/uif"
)

// maxScriptBytes bounds how large a hook script may be, independent of
// the stack-size budget and the run timeout, so a huge script can't even
// be loaded.
const maxScriptBytes = 64 * 1024

// Hook holds the source of one Lua script. Each Run builds its own Lua
// state from that source, so concurrent Run calls share no Lua state.
type Hook struct {
	source string
}

// New validates and wraps source. It does not compile the script yet;
// compilation happens per-Run so a runaway script in one request can
// never corrupt state shared with the next.
func New(source string) (*Hook, error) {
	if len(source) > maxScriptBytes {
		return nil, fmt.Errorf("luahook: script exceeds %d bytes", maxScriptBytes)
	}
	return &Hook{source: source}, nil
}

// Run executes the hook against req's whitelisted fields. budget is
// applied as the Lua state's maximum stack size; timeout bounds the
// script's wall-clock run time and is what stops an infinite loop in an
// operator-authored script.
func (h *Hook) Run(req *uif.Request, kind string, budget int, timeout time.Duration) (*uif.Request, error) {
	L := lua.NewState(lua.Options{SkipOpenLibs: true})
	defer L.Close()

	for _, lib := range []struct {
		name string
		fn   lua.LGFunction
	}{
		{lua.BaseLibName, lua.OpenBase},
		{lua.TabLibName, lua.OpenTable},
		{lua.StringLibName, lua.OpenString},
		{lua.MathLibName, lua.OpenMath},
	} {
		if err := L.CallByParam(lua.P{Fn: L.NewFunction(lib.fn), NRet: 0, Protect: true}, lua.LString(lib.name)); err != nil {
			return nil, fmt.Errorf("luahook: open %s: %w", lib.name, err)
		}
	}

	L.SetMaxStackSize(budget)

	reqTable := L.NewTable()
	reqTable.RawSetString("model", lua.LString(req.Model))
	reqTable.RawSetString("reasoning_effort", lua.LString(req.ReasoningEffort))
	if req.MaxTokens != nil {
		reqTable.RawSetString("max_tokens", lua.LNumber(*req.MaxTokens))
	}
	if req.Temperature != nil {
		reqTable.RawSetString("temperature", lua.LNumber(*req.Temperature))
	}
	L.SetGlobal("request", reqTable)
	L.SetGlobal("hook_kind", lua.LString(kind))

	doneCh := make(chan error, 1)
	go func() {
		doneCh <- L.DoString(h.source)
	}()

	select {
	case err := <-doneCh:
		if err != nil {
			return nil, fmt.Errorf("luahook: script error: %w", err)
		}
	case <-time.After(timeout):
		return nil, fmt.Errorf("luahook: script exceeded %s timeout", timeout)
	}

	out := L.GetGlobal("request")
	table, ok := out.(*lua.LTable)
	if !ok {
		return req, nil
	}

	if v := table.RawGetString("max_tokens"); v.Type() == lua.LTNumber {
		n := int(lua.LVAsNumber(v))
		req.MaxTokens = &n
	}
	if v := table.RawGetString("temperature"); v.Type() == lua.LTNumber {
		f := float64(lua.LVAsNumber(v))
		req.Temperature = &f
	}
	if v := table.RawGetString("reasoning_effort"); v.Type() == lua.LTString {
		req.ReasoningEffort = lua.LVAsString(v)
	}

	return req, nil
}
