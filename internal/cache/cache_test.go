package cache

import (
	"context"
	"os"
	"testing"
	"time"
)

func TestLRUCache_Eviction(t *testing.T) {
	ctx := context.Background()
	c := NewLRUCache[int](2, time.Minute)

	c.Set(ctx, "a", 1)
	c.Set(ctx, "b", 2)
	if _, ok, _ := c.Get(ctx, "a"); !ok {
		t.Fatal("expected a to be cached")
	}
	c.Set(ctx, "c", 3)

	if _, ok, _ := c.Get(ctx, "b"); ok {
		t.Error("expected b to be evicted as least recently used")
	}
	if v, ok, _ := c.Get(ctx, "a"); !ok || v != 1 {
		t.Errorf("Get(a) = %d, %v; want 1, true", v, ok)
	}
	if c.Size() != 2 {
		t.Errorf("Size() = %d, want 2", c.Size())
	}
}

func TestLRUCache_Expiry(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	c := NewLRUCache[string](10, time.Minute)
	c.now = func() time.Time { return now }

	c.Set(ctx, "k", "v")
	c.Set(ctx, "k2", "v2")
	now = now.Add(2 * time.Minute)

	if _, ok, _ := c.Get(ctx, "k"); ok {
		t.Error("expected expired entry to miss")
	}
	if n := c.CleanExpired(); n != 1 {
		t.Errorf("CleanExpired() = %d, want 1", n)
	}
	if c.Size() != 0 {
		t.Errorf("Size() = %d, want 0", c.Size())
	}
}

func TestLRUCache_Clear(t *testing.T) {
	ctx := context.Background()
	c := NewLRUCache[int](10, time.Minute)
	c.Set(ctx, "a", 1)
	c.Set(ctx, "b", 2)
	c.Delete(ctx, "a")
	if c.Size() != 1 {
		t.Fatalf("Size() = %d after delete, want 1", c.Size())
	}
	c.Clear(ctx)
	if c.Size() != 0 {
		t.Errorf("Size() = %d after clear, want 0", c.Size())
	}
}

func TestManager_StopIsIdempotent(t *testing.T) {
	m := NewManager(nil)
	m.Register(NewLRUCache[int](1, time.Millisecond))
	m.StartCleanup(time.Millisecond)
	time.Sleep(5 * time.Millisecond)
	m.Stop()
	m.Stop()
}

func TestRedisCache(t *testing.T) {
	url := os.Getenv("REDIS_URL")
	if url == "" {
		t.Skip("REDIS_URL not set")
	}
	ctx := context.Background()
	client, err := NewRedisClient(ctx, url)
	if err != nil {
		t.Fatalf("NewRedisClient: %v", err)
	}
	defer client.Close()

	type stats struct{ Clients int }
	c := NewRedisCache[stats](client, "ispledger-test", time.Minute)
	if err := c.Set(ctx, "dashboard", stats{Clients: 3}); err != nil {
		t.Fatalf("Set: %v", err)
	}
	got, ok, err := c.Get(ctx, "dashboard")
	if err != nil || !ok || got.Clients != 3 {
		t.Fatalf("Get = %+v, %v, %v", got, ok, err)
	}
	if err := c.Clear(ctx); err != nil {
		t.Fatalf("Clear: %v", err)
	}
	if _, ok, _ := c.Get(ctx, "dashboard"); ok {
		t.Error("expected miss after Clear")
	}
}
