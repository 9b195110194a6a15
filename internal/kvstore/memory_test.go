package kvstore

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryRoundTrip(t *testing.T) {
	ctx := context.Background()
	m := NewMemory(0)

	assert.True(t, m.Set(ctx, "session:a:offset", "4"))

	v, ok := m.Get(ctx, "session:a:offset")
	require.True(t, ok)
	assert.Equal(t, "4", v)

	_, ok = m.Get(ctx, "session:a:missing")
	assert.False(t, ok)
}

func TestMemoryCapacity(t *testing.T) {
	ctx := context.Background()
	m := NewMemory(20)

	assert.True(t, m.Set(ctx, "a", "0123456789")) // 11 bytes
	// Second write would exceed 20 bytes total.
	assert.False(t, m.Set(ctx, "b", "0123456789"))

	// The first key is still intact after the failed write.
	v, ok := m.Get(ctx, "a")
	require.True(t, ok)
	assert.Equal(t, "0123456789", v)
}

func TestMemoryOverwriteAccountsDelta(t *testing.T) {
	ctx := context.Background()
	m := NewMemory(15)

	require.True(t, m.Set(ctx, "a", "0123456789"))
	// Overwriting with a shorter value shrinks usage and succeeds.
	assert.True(t, m.Set(ctx, "a", "01"))
	assert.True(t, m.Set(ctx, "b", "0123456789"))
}

func TestMemoryDeleteAndList(t *testing.T) {
	ctx := context.Background()
	m := NewMemory(0)

	require.True(t, m.Set(ctx, "session:a:offset", "4"))
	require.True(t, m.Set(ctx, "session:a:meta", "{}"))
	require.True(t, m.Set(ctx, "session:b:meta", "{}"))

	keys, err := m.List(ctx, "session:a:")
	require.NoError(t, err)
	assert.Equal(t, []string{"session:a:meta", "session:a:offset"}, keys)

	require.NoError(t, m.Delete(ctx, "session:a:meta"))
	require.NoError(t, m.Delete(ctx, "session:a:meta")) // absent key is fine

	keys, err = m.List(ctx, "session:a:")
	require.NoError(t, err)
	assert.Equal(t, []string{"session:a:offset"}, keys)
}
