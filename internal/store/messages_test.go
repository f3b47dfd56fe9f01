package store

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTakeUndelivered(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	s.SetClock(fixedClock(time.Date(2026, 6, 1, 0, 0, 0, 0, time.UTC)))

	for _, body := range []string{"one", "two", "three"} {
		require.NoError(t, s.InsertMessage(ctx, &Message{From: "parent", To: "child", Content: body}))
	}
	require.NoError(t, s.InsertMessage(ctx, &Message{From: "parent", To: "other", Content: "elsewhere"}))

	n, err := s.CountUndelivered(ctx, "child")
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	got, err := s.TakeUndelivered(ctx, "child")
	require.NoError(t, err)
	require.Len(t, got, 3)
	assert.Equal(t, "one", got[0].Content)
	assert.Equal(t, "three", got[2].Content)
	for _, m := range got {
		assert.True(t, m.Delivered)
		assert.False(t, m.DeliveredAt.IsZero())
	}

	again, err := s.TakeUndelivered(ctx, "child")
	require.NoError(t, err)
	assert.Empty(t, again)

	n, err = s.CountUndelivered(ctx, "other")
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	history, err := s.ListMessages(ctx, "child", 10)
	require.NoError(t, err)
	require.Len(t, history, 3)
	assert.Equal(t, "three", history[0].Content)
	assert.True(t, history[0].Delivered)
}
