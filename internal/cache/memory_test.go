package cache

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestMemoryCacheGetSet(t *testing.T) {
	c := NewMemoryCache()
	defer c.Close()
	ctx := context.Background()

	if _, err := c.Get(ctx, "missing"); !errors.Is(err, ErrCacheMiss) {
		t.Fatalf("Get(missing) err = %v, want ErrCacheMiss", err)
	}

	value := []byte("Gridania")
	if err := c.Set(ctx, "world:1", value, time.Minute); err != nil {
		t.Fatalf("Set: %v", err)
	}
	value[0] = 'X'

	got, err := c.Get(ctx, "world:1")
	if err != nil || string(got) != "Gridania" {
		t.Fatalf("Get = %q, %v", got, err)
	}

	if err := c.Delete(ctx, "world:1"); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if _, err := c.Get(ctx, "world:1"); !errors.Is(err, ErrCacheMiss) {
		t.Fatalf("Get after Delete err = %v", err)
	}
}

func TestMemoryCacheExpiry(t *testing.T) {
	c := newMemoryCache(10 * time.Millisecond)
	defer c.Close()
	ctx := context.Background()

	_ = c.Set(ctx, "k", []byte("v"), time.Millisecond)
	time.Sleep(5 * time.Millisecond)
	if _, err := c.Get(ctx, "k"); !errors.Is(err, ErrCacheMiss) {
		t.Fatalf("expected expired entry to miss, got %v", err)
	}

	deadline := time.Now().Add(time.Second)
	for c.Len() != 0 {
		if time.Now().After(deadline) {
			t.Fatalf("sweeper did not remove expired entry")
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestMemoryCacheGetOrSet(t *testing.T) {
	c := NewMemoryCache()
	defer c.Close()
	ctx := context.Background()

	calls := 0
	fn := func() ([]byte, error) {
		calls++
		return []byte("Potion"), nil
	}
	for i := 0; i < 3; i++ {
		got, err := c.GetOrSet(ctx, "item:4", time.Minute, fn)
		if err != nil || string(got) != "Potion" {
			t.Fatalf("GetOrSet = %q, %v", got, err)
		}
	}
	if calls != 1 {
		t.Errorf("loader called %d times, want 1", calls)
	}

	boom := errors.New("lookup failed")
	if _, err := c.GetOrSet(ctx, "item:5", time.Minute, func() ([]byte, error) { return nil, boom }); !errors.Is(err, boom) {
		t.Fatalf("GetOrSet err = %v, want %v", err, boom)
	}
	if _, err := c.Get(ctx, "item:5"); !errors.Is(err, ErrCacheMiss) {
		t.Errorf("failed load must not be cached")
	}
}
