package core

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"webbot/internal/audit"
	"webbot/internal/config"
	"webbot/internal/selfmod"
	"webbot/internal/store"
	"webbot/internal/survival"
	"webbot/internal/tools"
)

type harness struct {
	dispatcher *tools.Dispatcher
	ledger     *audit.Ledger
	root       string
	soul       string
}

func newHarness(t *testing.T, tweaks ...func(*Options)) *harness {
	t.Helper()
	s, err := store.NewLocalStore(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })

	root := t.TempDir()
	ledger := audit.NewLedger(s)
	opts := Options{
		Root:     root,
		SoulPath: filepath.Join(root, "state", "SOUL.md"),
		Guard:    selfmod.NewGuard(ledger, selfmod.Options{Root: root, Limit: 2, Window: time.Hour}),
	}
	for _, tweak := range tweaks {
		tweak(&opts)
	}
	reg := tools.NewRegistry()
	require.NoError(t, RegisterAll(reg, opts))
	return &harness{dispatcher: tools.NewDispatcher(reg), ledger: ledger, root: root, soul: opts.SoulPath}
}

func (h *harness) call(name string, args map[string]any) tools.Output {
	env := tools.Env{Identity: &config.Identity{Name: "alpha"}, Tier: survival.TierLowCompute, Turn: 3}
	return h.dispatcher.Execute(context.Background(), env, name, args)
}

func TestRegisterAll(t *testing.T) {
	h := newHarness(t)
	assert.Equal(t, []string{"file_read", "file_write", "self_modify", "soul_update"}, h.dispatcher.Registry().Names())
}

func TestFileWriteThenRead(t *testing.T) {
	h := newHarness(t)

	out := h.call("file_write", map[string]any{"path": "deep/nested/dir/note.txt", "content": "one\ntwo\nthree"})
	require.True(t, out.IsSuccess(), "%v", out.Err)
	assert.Equal(t, 13, out.Result["bytes_written"])

	out = h.call("file_read", map[string]any{"path": "deep/nested/dir/note.txt"})
	require.True(t, out.IsSuccess(), "%v", out.Err)
	assert.Equal(t, "one\ntwo\nthree", out.Result["content"])
	assert.Equal(t, false, out.Result["truncated"])

	out = h.call("file_read", map[string]any{"path": "deep/nested/dir/note.txt", "start_line": 2.0, "end_line": 2.0})
	require.True(t, out.IsSuccess())
	assert.Equal(t, "two", out.Result["content"])
}

func TestFileRead_TruncatesOnRuneBoundary(t *testing.T) {
	h := newHarness(t, func(o *Options) { o.MaxReadBytes = 4 })

	out := h.call("file_write", map[string]any{"path": "utf8.txt", "content": "añbñc"})
	require.True(t, out.IsSuccess(), "%v", out.Err)

	out = h.call("file_read", map[string]any{"path": "utf8.txt"})
	require.True(t, out.IsSuccess(), "%v", out.Err)
	assert.Equal(t, "añ", out.Result["content"])
	assert.Equal(t, true, out.Result["truncated"])
}

func TestFileRead_MissingFileIsStructured(t *testing.T) {
	h := newHarness(t)

	out := h.call("file_read", map[string]any{"path": "nope.txt"})
	require.NotNil(t, out.Err)
	assert.Equal(t, tools.CodeExecutionFailed, out.Err.Code)
	assert.Contains(t, out.Err.Message, "file not found")
}

func TestFileWrite_RefusesProtectedPaths(t *testing.T) {
	h := newHarness(t)

	out := h.call("file_write", map[string]any{"path": "constitution.md", "content": "no laws"})
	require.NotNil(t, out.Err)
	assert.Equal(t, tools.CodePolicyViolation, out.Err.Code)
	_, err := os.Stat(filepath.Join(h.root, "constitution.md"))
	assert.True(t, os.IsNotExist(err))
}

func TestSoulUpdate(t *testing.T) {
	h := newHarness(t)

	out := h.call("soul_update", map[string]any{"content": "I trade carefully."})
	require.True(t, out.IsSuccess(), "%v", out.Err)

	data, err := os.ReadFile(h.soul)
	require.NoError(t, err)
	assert.Equal(t, "I trade carefully.", string(data))

	out = h.call("soul_update", map[string]any{"content": ""})
	require.True(t, out.IsSuccess(), "empty soul is still a write")
}

func TestSelfModify(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)

	out := h.call("self_modify", map[string]any{"file_path": "internal/strategy/plan.go", "new_content": "package strategy\n", "reason": "new plan"})
	require.True(t, out.IsSuccess(), "%v", out.Err)
	assert.NotEmpty(t, out.Result["audit_id"])

	entries, err := h.ledger.Query(ctx, audit.Filter{Actor: "alpha"})
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "new plan", entries[0].Reason)

	data, err := os.ReadFile(filepath.Join(h.root, "internal", "strategy", "plan.go"))
	require.NoError(t, err)
	assert.Equal(t, "package strategy\n", string(data))
}

func TestSelfModify_Refusals(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)

	out := h.call("self_modify", map[string]any{"file_path": "internal/prompt/prompt.go", "new_content": "x", "reason": "jailbreak"})
	require.NotNil(t, out.Err)
	assert.Equal(t, tools.CodePolicyViolation, out.Err.Code)

	out = h.call("self_modify", map[string]any{"file_path": "a.txt", "new_content": "x"})
	require.NotNil(t, out.Err)
	assert.Equal(t, tools.CodeInvalidInput, out.Err.Code)

	for i := 0; i < 2; i++ {
		out = h.call("self_modify", map[string]any{"file_path": "a.txt", "new_content": "x", "reason": "tune"})
		require.True(t, out.IsSuccess(), "%v", out.Err)
	}
	out = h.call("self_modify", map[string]any{"file_path": "a.txt", "new_content": "y", "reason": "tune again"})
	require.NotNil(t, out.Err)
	assert.Equal(t, tools.CodePolicyViolation, out.Err.Code)

	n, err := h.ledger.Count(ctx, audit.Filter{Action: audit.ActionSelfModify})
	require.NoError(t, err)
	assert.Equal(t, 2, n, "only permitted modifications are audited")
}
