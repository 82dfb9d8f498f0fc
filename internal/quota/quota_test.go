package quota

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"repolens/internal/apperr"
	"repolens/internal/store"
)

func TestConsumeUntilExhausted(t *testing.T) {
	ctx := context.Background()
	l := NewLimiter(store.NewMemoryStore(), 2, map[string]int{"Admin": 0})

	left, err := l.Consume(ctx, "u1", "viewer")
	require.NoError(t, err)
	assert.Equal(t, 1, left)
	left, err = l.Consume(ctx, "u1", "viewer")
	require.NoError(t, err)
	assert.Equal(t, 0, left)

	_, err = l.Consume(ctx, "u1", "viewer")
	assert.ErrorIs(t, err, apperr.ErrQuotaExceeded)

	rem, err := l.Remaining(ctx, "u1", "viewer")
	require.NoError(t, err)
	assert.Zero(t, rem)

	left, err = l.Consume(ctx, "u1", " admin ")
	require.NoError(t, err)
	assert.Equal(t, Unlimited, left, "role limits are case-insensitive and zero means unlimited")
}

func TestConsumeRequiresUser(t *testing.T) {
	l := NewLimiter(store.NewMemoryStore(), 2, nil)
	_, err := l.Consume(context.Background(), " ", "")
	assert.ErrorIs(t, err, apperr.ErrInvalidArgument)
}

func TestRemainingIsPerUser(t *testing.T) {
	ctx := context.Background()
	counters := store.NewMemoryStore()
	l := NewLimiter(counters, 3, nil)
	_, err := l.Consume(ctx, "u1", "")
	require.NoError(t, err)

	rem, err := l.Remaining(ctx, "u2", "")
	require.NoError(t, err)
	assert.Equal(t, 3, rem)
	rem, err = l.Remaining(ctx, "u1", "")
	require.NoError(t, err)
	assert.Equal(t, 2, rem)
}

func TestCheckDoesNotConsume(t *testing.T) {
	ctx := context.Background()
	l := NewLimiter(store.NewMemoryStore(), 1, nil)

	require.NoError(t, l.Check(ctx, "u1", ""))
	require.NoError(t, l.Check(ctx, "u1", ""))
	_, err := l.Consume(ctx, "u1", "")
	require.NoError(t, err)
	assert.ErrorIs(t, l.Check(ctx, "u1", ""), apperr.ErrQuotaExceeded)
	assert.ErrorIs(t, l.Check(ctx, " ", ""), apperr.ErrInvalidArgument)
}
