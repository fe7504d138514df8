package redis

import (
	"context"
	"strconv"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type mockCmdable struct {
	values map[string]string
}

func newMockCmdable() *mockCmdable {
	return &mockCmdable{values: make(map[string]string)}
}

func (m *mockCmdable) Ping(ctx context.Context) *redis.StatusCmd {
	return redis.NewStatusResult("PONG", nil)
}

func (m *mockCmdable) Get(ctx context.Context, key string) *redis.StringCmd {
	v, ok := m.values[key]
	if !ok {
		return redis.NewStringResult("", redis.Nil)
	}
	return redis.NewStringResult(v, nil)
}

func (m *mockCmdable) SetNX(ctx context.Context, key string, value any, ttl time.Duration) *redis.BoolCmd {
	if _, ok := m.values[key]; ok {
		return redis.NewBoolResult(false, nil)
	}
	m.values[key] = value.(string)
	return redis.NewBoolResult(true, nil)
}

func (m *mockCmdable) Incr(ctx context.Context, key string) *redis.IntCmd {
	n, _ := strconv.ParseInt(m.values[key], 10, 64)
	n++
	m.values[key] = strconv.FormatInt(n, 10)
	return redis.NewIntResult(n, nil)
}

func (m *mockCmdable) Del(ctx context.Context, keys ...string) *redis.IntCmd {
	var n int64
	for _, k := range keys {
		if _, ok := m.values[k]; ok {
			delete(m.values, k)
			n++
		}
	}
	return redis.NewIntResult(n, nil)
}

func TestKeyBuilders(t *testing.T) {
	client := &Client{}
	assert.Equal(t, "dispatch:counter:assignment", client.CounterKey("assignment"))
	assert.Equal(t, "dispatch:lock:", client.LockPrefix())
}

func TestSequencer_SeedThenIncrement(t *testing.T) {
	ctx := context.Background()
	client := &Client{store: newMockCmdable()}
	seq := NewSequencer(client)

	require.NoError(t, seq.Seed(ctx, "assignment", 41))
	require.NoError(t, seq.Seed(ctx, "assignment", 5), "seeding twice keeps the first floor")

	n, err := seq.Next(ctx, "assignment")
	require.NoError(t, err)
	assert.Equal(t, int64(42), n)

	n, err = seq.Next(ctx, "assignment")
	require.NoError(t, err)
	assert.Equal(t, int64(43), n)
}

func TestClient_GetSetDel(t *testing.T) {
	ctx := context.Background()
	client := &Client{store: newMockCmdable()}

	ok, err := client.SetNX(ctx, "k", "v", time.Second)
	require.NoError(t, err)
	assert.True(t, ok)

	v, err := client.Get(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, "v", v)

	require.NoError(t, client.Del(ctx, "k"))
	_, err = client.Get(ctx, "k")
	assert.ErrorIs(t, err, redis.Nil)
}

func TestClient_Uninitialised(t *testing.T) {
	client := &Client{}
	_, err := client.Incr(context.Background(), "k")
	assert.Error(t, err)
}

func TestNew_RequiresURL(t *testing.T) {
	_, err := New(context.Background(), "")
	assert.Error(t, err)
}
