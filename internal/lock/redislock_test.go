package lock_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	redis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"github.com/bonafide55/shop-api/internal/lock"
)

func newClient(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return mr, client
}

func TestWithLockSerializesHolders(t *testing.T) {
	_, client := newClient(t)
	locker := lock.Locker{R: client, RetryBackoff: 5 * time.Millisecond}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	var (
		mu     sync.Mutex
		seen   []string
		errs   = make(chan error, 2)
		first  = make(chan struct{})
		finish = make(chan struct{})
	)
	record := func(s string) {
		mu.Lock()
		seen = append(seen, s)
		mu.Unlock()
	}

	go func() {
		errs <- locker.WithLock(ctx, "lock:cart:tg_1", time.Second, func(context.Context) error {
			record("first")
			close(first)
			<-finish
			return nil
		})
	}()
	<-first
	go func() {
		errs <- locker.WithLock(ctx, "lock:cart:tg_1", time.Second, func(context.Context) error {
			record("second")
			return nil
		})
	}()
	time.Sleep(20 * time.Millisecond)
	close(finish)

	require.NoError(t, <-errs)
	require.NoError(t, <-errs)
	mu.Lock()
	defer mu.Unlock()
	require.Equal(t, []string{"first", "second"}, seen)
}

func TestWithLockGivesUpAfterWait(t *testing.T) {
	mr, client := newClient(t)
	require.NoError(t, mr.Set("lock:cart:tg_2", "someone-else"))

	locker := lock.Locker{R: client, RetryBackoff: 5 * time.Millisecond, Wait: 30 * time.Millisecond}
	called := false
	err := locker.WithLock(context.Background(), "lock:cart:tg_2", time.Second, func(context.Context) error {
		called = true
		return nil
	})
	require.ErrorIs(t, err, lock.ErrNotAcquired)
	require.False(t, called)
}

func TestWithLockReleasesOnError(t *testing.T) {
	mr, client := newClient(t)
	locker := lock.Locker{R: client}
	boom := errors.New("boom")

	err := locker.WithLock(context.Background(), "lock:cart:tg_3", time.Second, func(context.Context) error {
		require.True(t, mr.Exists("lock:cart:tg_3"))
		return boom
	})
	require.ErrorIs(t, err, boom)
	require.False(t, mr.Exists("lock:cart:tg_3"))
}

func TestWithLockKeepsForeignToken(t *testing.T) {
	mr, client := newClient(t)
	locker := lock.Locker{R: client}

	err := locker.WithLock(context.Background(), "k", time.Second, func(context.Context) error {
		mr.Set("k", "stolen")
		return nil
	})
	require.NoError(t, err)
	got, _ := mr.Get("k")
	require.Equal(t, "stolen", got)
}
