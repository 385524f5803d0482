package redis

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func setupTestRedis(t *testing.T) (*miniredis.Miniredis, *Client) {
	mr := miniredis.RunT(t)

	client, err := NewClient("redis://"+mr.Addr(), "test", zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Close() })

	return mr, client
}

func TestNewClient(t *testing.T) {
	mr := miniredis.RunT(t)

	tests := []struct {
		name        string
		url         string
		expectError bool
	}{
		{name: "Valid Redis URL", url: "redis://" + mr.Addr(), expectError: false},
		{name: "Invalid URL", url: "invalid://url", expectError: true},
		{name: "Empty URL", url: "", expectError: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client, err := NewClient(tt.url, "test", nil)

			if tt.expectError {
				assert.Error(t, err)
				assert.Nil(t, client)
				return
			}
			require.NoError(t, err)
			assert.NotNil(t, client.KeyBuilder)
			_ = client.Close()
		})
	}
}

func TestNewClient_Unreachable(t *testing.T) {
	mr := miniredis.RunT(t)
	addr := mr.Addr()
	mr.Close()

	client, err := NewClient("redis://"+addr, "test", nil)
	assert.Error(t, err)
	assert.Nil(t, client)
}

func TestClient_GetSet(t *testing.T) {
	mr, client := setupTestRedis(t)
	ctx := context.Background()

	_, err := client.Get(ctx, "missing")
	assert.ErrorIs(t, err, ErrNil)

	require.NoError(t, client.Set(ctx, "k", "v", time.Minute))
	val, err := client.Get(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, "v", val)

	mr.FastForward(2 * time.Minute)
	_, err = client.Get(ctx, "k")
	assert.ErrorIs(t, err, ErrNil)
}

func TestClient_SetNX(t *testing.T) {
	mr, client := setupTestRedis(t)
	ctx := context.Background()

	ok, err := client.SetNX(ctx, "lock", "1", time.Minute)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = client.SetNX(ctx, "lock", "2", time.Minute)
	require.NoError(t, err)
	assert.False(t, ok)

	mr.FastForward(time.Minute + time.Second)
	ok, err = client.SetNX(ctx, "lock", "3", time.Minute)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestClient_DeleteExists(t *testing.T) {
	mr, client := setupTestRedis(t)
	ctx := context.Background()

	require.NoError(t, mr.Set("a", "1"))
	require.NoError(t, mr.Set("b", "1"))

	n, err := client.Exists(ctx, "a", "b", "c")
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)

	require.NoError(t, client.Delete(ctx, "a", "b"))
	n, err = client.Exists(ctx, "a", "b")
	require.NoError(t, err)
	assert.Equal(t, int64(0), n)
}

func TestClient_Health(t *testing.T) {
	mr, client := setupTestRedis(t)

	assert.NoError(t, client.Health(context.Background()))

	mr.Close()
	assert.Error(t, client.Health(context.Background()))
}

func TestPrefixForLog(t *testing.T) {
	assert.Equal(t, "short", prefixForLog("short"))
	long := "coopvote:prod:agenda:abcdef:voted:user"
	assert.Equal(t, long[:24]+"...", prefixForLog(long))
}
