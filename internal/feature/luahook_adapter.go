package feature

import (
	"time"

	"github.com/mihaisavezi/claude-code-open/internal/luahook"
	"github.com/mihaisavezi/claude-code-open/internal/uif"
)

// defaultLuaBudget and defaultLuaTimeout bound every provider's Lua
// hook invocation the same way, regardless of what the script does.
const (
	defaultLuaBudget  = 1 << 16
	defaultLuaTimeout = 50 * time.Millisecond
)

// NewLuaTransformer adapts a compiled Hook into a chain Transformer, run
// last so every other feature transformer's decisions are visible to it.
func NewLuaTransformer(hook *luahook.Hook) Transformer {
	return func(req *uif.Request, ctx Context) (*uif.Request, error) {
		if hook == nil {
			return req, nil
		}
		return hook.Run(req, "request_out", defaultLuaBudget, defaultLuaTimeout)
	}
}
