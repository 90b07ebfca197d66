package redisstore

import (
	"context"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jakechorley/overlap/pkg/core/model"
	"github.com/jakechorley/overlap/pkg/store"
)

func TestKey(t *testing.T) {
	assert.Equal(t, "event:abc", key("abc"))
}

// Runs against a real server only when REDIS_TEST_ADDR is set
func TestStore_Lifecycle(t *testing.T) {
	addr := os.Getenv("REDIS_TEST_ADDR")
	if addr == "" {
		t.Skip("REDIS_TEST_ADDR not set")
	}
	ctx := context.Background()

	s, err := New(ctx, addr, "")
	require.NoError(t, err)
	defer s.Close()

	id, err := s.Create(ctx, model.EventRecord{Name: "Standup"})
	require.NoError(t, err)

	env, err := s.Latest(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, "Standup", env.Record.Name)

	env.Record.Name = "Standup (moved)"
	require.NoError(t, s.Replace(ctx, id, env.Record))

	require.NoError(t, s.Delete(ctx, id))
	_, err = s.Latest(ctx, id)
	assert.True(t, store.IsNotFound(err))

	err = s.Replace(ctx, id, env.Record)
	assert.True(t, store.IsNotFound(err), "replace must not resurrect a deleted event")
}
