package tools

import (
	"context"
	"encoding/json"
	"errors"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"webbot/internal/config"
	"webbot/internal/survival"
)

func newTestDispatcher(t *testing.T) *Dispatcher {
	t.Helper()
	reg := NewRegistry()
	reg.MustRegister(&Tool{
		Name:     "echo",
		Category: CategorySystem,
		Schema: ToolSchema{
			Required: []string{"message"},
			Properties: map[string]Property{
				"message": {Type: "string"},
				"method":  {Type: "string", Enum: []any{"GET", "POST"}},
				"count":   {Type: "integer"},
			},
		},
		Execute: func(ctx context.Context, env Env, args map[string]any) (Result, error) {
			msg, err := String(args, "message")
			if err != nil {
				return nil, err
			}
			return Result{"echo": msg, "agent": env.Agent(), "turn": env.Turn}, nil
		},
	})
	reg.MustRegister(&Tool{
		Name:    "boom",
		Execute: func(ctx context.Context, env Env, args map[string]any) (Result, error) { panic("kaboom") },
	})
	reg.MustRegister(&Tool{
		Name: "fails",
		Execute: func(ctx context.Context, env Env, args map[string]any) (Result, error) {
			return nil, errors.New("disk on fire")
		},
	})
	reg.MustRegister(&Tool{
		Name: "refuses",
		Execute: func(ctx context.Context, env Env, args map[string]any) (Result, error) {
			return nil, PolicyViolation("no")
		},
	})
	reg.MustRegister(&Tool{
		Name:    "unencodable",
		Execute: func(ctx context.Context, env Env, args map[string]any) (Result, error) { return Result{"x": math.NaN()}, nil },
	})
	reg.MustRegister(&Tool{Name: "spawn", MinTier: survival.TierNormal, Execute: noop})
	return NewDispatcher(reg)
}

func testEnv(tier survival.Tier) Env {
	return Env{Identity: &config.Identity{Name: "alpha"}, Tier: tier, Turn: 7}
}

func TestDispatcher_Success(t *testing.T) {
	d := newTestDispatcher(t)

	out := d.Execute(context.Background(), testEnv(survival.TierNormal), "echo", map[string]any{"message": "hi"})
	require.True(t, out.IsSuccess(), "unexpected error: %v", out.Err)
	assert.Equal(t, "hi", out.Result["echo"])
	assert.Equal(t, "alpha", out.Result["agent"])
	assert.Equal(t, 7, out.Result["turn"])
	assert.Equal(t, "echo", out.Tool)
}

func TestDispatcher_ErrorCodes(t *testing.T) {
	d := newTestDispatcher(t)
	ctx := context.Background()

	tests := []struct {
		name string
		tool string
		tier survival.Tier
		args map[string]any
		want Code
	}{
		{"unknown tool", "nope", survival.TierNormal, nil, CodeUnknownTool},
		{"missing required", "echo", survival.TierNormal, map[string]any{}, CodeInvalidInput},
		{"null required", "echo", survival.TierNormal, map[string]any{"message": nil}, CodeInvalidInput},
		{"wrong type", "echo", survival.TierNormal, map[string]any{"message": 3.0}, CodeInvalidInput},
		{"enum miss", "echo", survival.TierNormal, map[string]any{"message": "x", "method": "PATCH"}, CodeInvalidInput},
		{"non-integer", "echo", survival.TierNormal, map[string]any{"message": "x", "count": 1.5}, CodeInvalidInput},
		{"panic", "boom", survival.TierNormal, nil, CodeExecutionFailed},
		{"plain error", "fails", survival.TierNormal, nil, CodeExecutionFailed},
		{"structured error", "refuses", survival.TierNormal, nil, CodePolicyViolation},
		{"tier gate", "spawn", survival.TierLowCompute, nil, CodePolicyViolation},
		{"tier gate critical", "spawn", survival.TierCritical, nil, CodePolicyViolation},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var out Output
			require.NotPanics(t, func() {
				out = d.Execute(ctx, testEnv(tt.tier), tt.tool, tt.args)
			})
			require.NotNil(t, out.Err)
			assert.Equal(t, tt.want, out.Err.Code)
			assert.Nil(t, out.Result)

			v := out.Value()
			assert.Equal(t, string(tt.want), v["code"])
			assert.NotEmpty(t, v["error"])
		})
	}
}

func TestDispatcher_TierAllowsNormal(t *testing.T) {
	d := newTestDispatcher(t)
	out := d.Execute(context.Background(), testEnv(survival.TierNormal), "spawn", nil)
	assert.True(t, out.IsSuccess())
}

func TestOutput_JSON(t *testing.T) {
	d := newTestDispatcher(t)
	ctx := context.Background()

	ok := d.Execute(ctx, testEnv(survival.TierNormal), "echo", map[string]any{"message": "hi"})
	var decoded map[string]any
	require.NoError(t, json.Unmarshal(ok.JSON(), &decoded))
	assert.Equal(t, "hi", decoded["echo"])

	bad := d.Execute(ctx, testEnv(survival.TierNormal), "nope", nil)
	require.NoError(t, json.Unmarshal(bad.JSON(), &decoded))
	assert.Equal(t, "unknown_tool", decoded["code"])

	// NaN cannot be encoded; the persisted form degrades to an error object.
	weird := d.Execute(ctx, testEnv(survival.TierNormal), "unencodable", nil)
	require.NoError(t, json.Unmarshal(weird.JSON(), &decoded))
	assert.Equal(t, "execution_failed", decoded["code"])
}

func TestDecodeArgs(t *testing.T) {
	args, err := DecodeArgs(json.RawMessage(`{"a":1}`))
	require.Nil(t, err)
	assert.Equal(t, 1.0, args["a"])

	args, err = DecodeArgs(nil)
	require.Nil(t, err)
	assert.Empty(t, args)

	_, err = DecodeArgs(json.RawMessage(`[1,2]`))
	require.NotNil(t, err)
	assert.Equal(t, CodeInvalidInput, err.Code)
}

func TestAsError(t *testing.T) {
	assert.Equal(t, CodeNotImplemented, AsError(NotImplemented("x")).Code)
	assert.Equal(t, CodeInvalidInput, AsError(ErrMissingRequiredArg).Code)
	assert.Equal(t, CodeUnknownTool, AsError(ErrToolNotFound).Code)
	assert.Equal(t, CodeExecutionFailed, AsError(errors.New("x")).Code)
}

func TestArgs(t *testing.T) {
	args := map[string]any{"s": "v", "n": 2.5, "i": 3, "h": map[string]any{"k": "v"}, "bad": map[string]any{"k": 1}}

	s, err := String(args, "s")
	require.NoError(t, err)
	assert.Equal(t, "v", s)

	_, err = String(args, "n")
	assert.ErrorIs(t, err, ErrInvalidArgType)

	_, err = NonEmptyString(map[string]any{"s": ""}, "s")
	assert.ErrorIs(t, err, ErrMissingRequiredArg)

	def, err := OptionalString(args, "missing", "GET")
	require.NoError(t, err)
	assert.Equal(t, "GET", def)

	n, err := Number(args, "i")
	require.NoError(t, err)
	assert.Equal(t, 3.0, n)

	_, err = Number(map[string]any{"n": math.Inf(1)}, "n")
	assert.ErrorIs(t, err, ErrInvalidArgType)

	h, err := StringMap(args, "h")
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"k": "v"}, h)

	_, err = StringMap(args, "bad")
	assert.ErrorIs(t, err, ErrInvalidArgType)
}
