package cache

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func newTestRedis(t *testing.T) *RedisBackend {
	t.Helper()

	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis start failed: %v", err)
	}
	t.Cleanup(mr.Close)

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })

	return NewRedisBackend(client, "aec-test")
}

func TestRedisBackendRoundTrip(t *testing.T) {
	ctx := context.Background()
	backend := newTestRedis(t)

	if _, ok, err := backend.Get(ctx, "k"); err != nil || ok {
		t.Fatalf("expected clean miss, got ok=%v err=%v", ok, err)
	}

	if err := backend.Set(ctx, "k", []byte(`{"id":1}`), time.Minute); err != nil {
		t.Fatalf("Set failed: %v", err)
	}

	raw, ok, err := backend.Get(ctx, "k")
	if err != nil || !ok {
		t.Fatalf("expected hit, got ok=%v err=%v", ok, err)
	}
	if string(raw) != `{"id":1}` {
		t.Fatalf("unexpected payload %q", raw)
	}

	if err := backend.Delete(ctx, "k"); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}
	if _, ok, _ := backend.Get(ctx, "k"); ok {
		t.Fatal("deleted entry must miss")
	}
}

func TestRedisBackendTouchSlidesExpiry(t *testing.T) {
	ctx := context.Background()
	backend := newTestRedis(t)

	if err := backend.Set(ctx, "k", []byte("v"), time.Second); err != nil {
		t.Fatalf("Set failed: %v", err)
	}
	if err := backend.Touch(ctx, "k", time.Hour); err != nil {
		t.Fatalf("Touch failed: %v", err)
	}

	if _, ok, _ := backend.Get(ctx, "k"); !ok {
		t.Fatal("touched entry must still be present")
	}
}

func TestGetOrLoadOverRedis(t *testing.T) {
	ctx := context.Background()
	c := New(newTestRedis(t), true, time.Minute)

	var calls atomic.Int64
	loader := countingLoader(&calls, entity{ID: 3, Name: "redis"}, nil)
	key := Key{Kind: "client", Field: FieldPublicKey, Value: "pk"}

	first, err := GetOrLoad(ctx, c, key, loader)
	if err != nil {
		t.Fatalf("GetOrLoad failed: %v", err)
	}
	second, err := GetOrLoad(ctx, c, key, loader)
	if err != nil {
		t.Fatalf("GetOrLoad failed: %v", err)
	}

	if calls.Load() != 1 {
		t.Fatalf("expected one loader call, got %d", calls.Load())
	}
	if first != second {
		t.Fatalf("value mismatch: %+v vs %+v", first, second)
	}
}
