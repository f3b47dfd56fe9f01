package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"runtime/debug"
	"time"

	"webbot/internal/logging"
)

// Output is the outcome of one dispatched call. Exactly one of Result and
// Err is set.
type Output struct {
	Tool       string
	Result     Result
	Err        *Error
	DurationMs int64
}

// IsSuccess returns true if the call produced a result.
func (o Output) IsSuccess() bool {
	return o.Err == nil
}

// Value is what the model sees: the result, or {"error","code"}.
func (o Output) Value() Result {
	if o.Err != nil {
		return o.Err.Result()
	}
	if o.Result == nil {
		return Result{}
	}
	return o.Result
}

// JSON encodes Value for persistence. Values that cannot be encoded are
// replaced with an execution_failed error so the caller always gets JSON.
func (o Output) JSON() json.RawMessage {
	b, err := json.Marshal(o.Value())
	if err != nil {
		b, _ = json.Marshal(NewError(CodeExecutionFailed, "unencodable result: %v", err).Result())
	}
	return b
}

// Dispatcher routes model-requested calls to registered tools.
type Dispatcher struct {
	registry *Registry
}

// NewDispatcher creates a dispatcher over registry.
func NewDispatcher(registry *Registry) *Dispatcher {
	return &Dispatcher{registry: registry}
}

// Registry returns the underlying registry.
func (d *Dispatcher) Registry() *Registry {
	return d.registry
}

// Execute runs one call. It never panics and never returns a Go error;
// every failure is folded into Output.Err.
func (d *Dispatcher) Execute(ctx context.Context, env Env, name string, args map[string]any) (out Output) {
	start := time.Now()
	out.Tool = name
	defer func() {
		if r := recover(); r != nil {
			logging.Get(logging.CategoryTools).Error("tool %s panicked: %v\n%s", name, r, debug.Stack())
			out.Result = nil
			out.Err = NewError(CodeExecutionFailed, "tool panicked: %v", r)
		}
		out.DurationMs = time.Since(start).Milliseconds()
		logging.ToolsDebug("Tool %s completed in %dms (success=%v)", name, out.DurationMs, out.Err == nil)
	}()

	tool := d.registry.Get(name)
	if tool == nil {
		out.Err = NewError(CodeUnknownTool, "unknown tool %q", name)
		return out
	}
	if !tool.Allows(env.Tier) {
		out.Err = PolicyViolation("%s requires tier %s or better, current tier is %s", name, tool.MinTier, env.Tier)
		return out
	}
	if args == nil {
		args = map[string]any{}
	}
	if err := validateArgs(tool, args); err != nil {
		out.Err = InvalidInput("%v", err)
		return out
	}

	logging.ToolsDebug("Executing tool: %s", name)
	result, err := tool.Execute(ctx, env, args)
	if err != nil {
		out.Err = AsError(err)
		if out.Err.Code == CodeExecutionFailed {
			logging.Get(logging.CategoryTools).Warn("tool %s failed: %v", name, err)
		}
		return out
	}
	out.Result = result
	return out
}

// DecodeArgs parses raw JSON tool input. Anything other than a JSON object is
// reported as invalid_input.
func DecodeArgs(raw json.RawMessage) (map[string]any, *Error) {
	if len(raw) == 0 {
		return map[string]any{}, nil
	}
	var args map[string]any
	if err := json.Unmarshal(raw, &args); err != nil {
		return nil, InvalidInput("arguments must be a JSON object: %v", err)
	}
	if args == nil {
		args = map[string]any{}
	}
	return args, nil
}

// Describe renders a one-line capability listing entry.
func Describe(t *Tool) string {
	if t.MinTier != "" {
		return fmt.Sprintf("%s (%s, tier>=%s): %s", t.Name, t.Category, t.MinTier, t.Description)
	}
	return fmt.Sprintf("%s (%s): %s", t.Name, t.Category, t.Description)
}
