package cache_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"gradeflow/internal/common/cache"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func newTestCache(t *testing.T) (*cache.RedisCache, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	c, err := cache.NewRedisCacheWithClient(client)
	if err != nil {
		t.Fatalf("new cache failed: %v", err)
	}
	return c, mr
}

func TestLockIsOwnedByToken(t *testing.T) {
	c, mr := newTestCache(t)
	ctx := context.Background()

	token, ok, err := c.TryLock(ctx, "lock:a", time.Minute)
	if err != nil || !ok {
		t.Fatalf("first lock failed: ok=%v err=%v", ok, err)
	}
	if _, ok, _ := c.TryLock(ctx, "lock:a", time.Minute); ok {
		t.Fatalf("second lock should not be granted")
	}

	if err := c.Unlock(ctx, "lock:a", "someone-else"); err != nil {
		t.Fatalf("foreign unlock failed: %v", err)
	}
	if !mr.Exists("lock:a") {
		t.Fatalf("foreign token must not release the lock")
	}

	if err := c.ExtendLock(ctx, "lock:a", "someone-else", time.Minute); !errors.Is(err, cache.ErrLockNotHeld) {
		t.Fatalf("expected ErrLockNotHeld, got %v", err)
	}
	if err := c.ExtendLock(ctx, "lock:a", token, 2*time.Minute); err != nil {
		t.Fatalf("extend failed: %v", err)
	}

	if err := c.Unlock(ctx, "lock:a", token); err != nil {
		t.Fatalf("unlock failed: %v", err)
	}
	if mr.Exists("lock:a") {
		t.Fatalf("owner unlock should release the lock")
	}
}

func TestGetMissingKeyIsEmpty(t *testing.T) {
	c, _ := newTestCache(t)
	got, err := c.Get(context.Background(), "missing")
	if err != nil || got != "" {
		t.Fatalf("unexpected result %q, %v", got, err)
	}
}

type student struct {
	Login string `json:"login"`
	Class string `json:"class"`
}

func TestGetWithCachedStoresValueAndNull(t *testing.T) {
	c, mr := newTestCache(t)
	ctx := context.Background()
	calls := 0
	fetch := func(s *student) func(context.Context) (*student, error) {
		return func(context.Context) (*student, error) {
			calls++
			return s, nil
		}
	}
	isEmpty := func(s *student) bool { return s == nil }

	got, err := cache.GetWithCached(ctx, c, "roster:ana", time.Minute, time.Second, isEmpty, fetch(&student{Login: "ana", Class: "B"}))
	if err != nil || got == nil || got.Class != "B" {
		t.Fatalf("first fetch failed: %+v %v", got, err)
	}
	got, err = cache.GetWithCached(ctx, c, "roster:ana", time.Minute, time.Second, isEmpty, fetch(nil))
	if err != nil || got == nil || got.Login != "ana" {
		t.Fatalf("cached fetch failed: %+v %v", got, err)
	}
	if calls != 1 {
		t.Fatalf("expected one source call, got %d", calls)
	}

	if _, err := cache.GetWithCached(ctx, c, "roster:ghost", time.Minute, time.Second, isEmpty, fetch(nil)); err != nil {
		t.Fatalf("empty fetch failed: %v", err)
	}
	if v, _ := mr.Get("roster:ghost"); v != cache.NullCacheValue {
		t.Fatalf("expected null marker, got %q", v)
	}
}
