package lock

import (
	"context"
	"os"
	"sync/atomic"
	"testing"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"
)

// Runs against a real server; set REDIS_ADDR to enable.
func newTestLocker(t *testing.T) *Redis {
	t.Helper()
	addr := os.Getenv("REDIS_ADDR")
	if addr == "" {
		t.Skip("REDIS_ADDR not set")
	}
	client := redis.NewClient(&redis.Options{Addr: addr})
	t.Cleanup(func() { client.Close() })
	l := NewRedis(client, 2*time.Second)
	l.prefix = "mindengage-quiz:test:" + t.Name() + ":"
	require.NoError(t, l.Ping(context.Background()))
	return l
}

func TestRedisLockExcludes(t *testing.T) {
	l := newTestLocker(t)
	ctx := context.Background()

	var inside, maxInside atomic.Int32
	var g errgroup.Group
	for i := 0; i < 8; i++ {
		g.Go(func() error {
			unlock, err := l.Lock(ctx, "k")
			if err != nil {
				return err
			}
			n := inside.Add(1)
			for {
				m := maxInside.Load()
				if n <= m || maxInside.CompareAndSwap(m, n) {
					break
				}
			}
			time.Sleep(5 * time.Millisecond)
			inside.Add(-1)
			unlock()
			return nil
		})
	}
	require.NoError(t, g.Wait())
	assert.Equal(t, int32(1), maxInside.Load())
}

func TestRedisLockHonoursContext(t *testing.T) {
	l := newTestLocker(t)
	unlock, err := l.Lock(context.Background(), "busy")
	require.NoError(t, err)
	defer unlock()

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_, err = l.Lock(ctx, "busy")
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}
