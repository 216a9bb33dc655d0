package shared

import (
	"strconv"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
)

func TestRedisLimitCounterCountsPerWindow(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	counter := NewRedisLimitCounter(client, "test")
	counter.Config(10, time.Minute)

	current := time.Now().UTC().Truncate(time.Minute)
	previous := current.Add(-time.Minute)

	require.NoError(t, counter.Increment("10.0.0.1", previous))
	require.NoError(t, counter.Increment("10.0.0.1", current))
	require.NoError(t, counter.IncrementBy("10.0.0.1", current, 3))

	cur, prev, err := counter.Get("10.0.0.1", current, previous)
	require.NoError(t, err)
	require.Equal(t, 4, cur)
	require.Equal(t, 1, prev)

	cur, prev, err = counter.Get("10.0.0.2", current, previous)
	require.NoError(t, err)
	require.Zero(t, cur)
	require.Zero(t, prev)

	require.True(t, mr.TTL("test:10.0.0.1:"+strconv.FormatInt(current.Unix(), 10)) > 0)
}
