package cache

import (
	"context"
	"errors"
	"sort"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func newRedisStore(t *testing.T) (*miniredis.Miniredis, *RedisStore) {
	t.Helper()

	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis.Run failed: %v", err)
	}
	t.Cleanup(mr.Close)

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	return mr, NewRedisStore(client)
}

func storesUnderTest(t *testing.T) map[string]Store {
	t.Helper()

	_, rs := newRedisStore(t)
	return map[string]Store{
		"redis":  rs,
		"memory": NewMemoryStore(),
	}
}

func TestStoreGetMissOnAbsentKey(t *testing.T) {
	for name, store := range storesUnderTest(t) {
		t.Run(name, func(t *testing.T) {
			if _, err := store.Get(context.Background(), "absent"); !errors.Is(err, ErrMiss) {
				t.Fatalf("expected ErrMiss, got %v", err)
			}
		})
	}
}

func TestStoreSetGetRoundtrip(t *testing.T) {
	for name, store := range storesUnderTest(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			if err := store.Set(ctx, "fp:abc#1", []byte(`{"v":1}`), time.Minute); err != nil {
				t.Fatalf("Set failed: %v", err)
			}

			got, err := store.Get(ctx, "fp:abc#1")
			if err != nil {
				t.Fatalf("Get failed: %v", err)
			}
			if string(got) != `{"v":1}` {
				t.Fatalf("unexpected value %q", got)
			}
		})
	}
}

func TestStorePrefixScanAndDelete(t *testing.T) {
	for name, store := range storesUnderTest(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			seed := []string{"fp:flow-a#1", "fp:flow-a#2", "fp:flow-b#1"}
			for _, key := range seed {
				if err := store.Set(ctx, key, []byte("x"), time.Minute); err != nil {
					t.Fatalf("Set failed: %v", err)
				}
			}

			keys, err := store.KeysWithPrefix(ctx, "fp:flow-a")
			if err != nil {
				t.Fatalf("KeysWithPrefix failed: %v", err)
			}
			sort.Strings(keys)
			if len(keys) != 2 || keys[0] != "fp:flow-a#1" || keys[1] != "fp:flow-a#2" {
				t.Fatalf("unexpected keys %v", keys)
			}

			deleted, err := store.DeleteMany(ctx, keys)
			if err != nil {
				t.Fatalf("DeleteMany failed: %v", err)
			}
			if deleted != 2 {
				t.Fatalf("expected 2 deletions, got %d", deleted)
			}

			// Unrelated prefix survives.
			if _, err := store.Get(ctx, "fp:flow-b#1"); err != nil {
				t.Fatalf("unrelated key was deleted: %v", err)
			}
		})
	}
}

func TestStoreDeleteManyIdempotent(t *testing.T) {
	for name, store := range storesUnderTest(t) {
		t.Run(name, func(t *testing.T) {
			deleted, err := store.DeleteMany(context.Background(), []string{"never-existed"})
			if err != nil {
				t.Fatalf("DeleteMany failed: %v", err)
			}
			if deleted != 0 {
				t.Fatalf("expected 0 deletions, got %d", deleted)
			}

			if deleted, err = store.DeleteMany(context.Background(), nil); err != nil || deleted != 0 {
				t.Fatalf("empty delete: deleted=%d err=%v", deleted, err)
			}
		})
	}
}

func TestRedisStoreExpiry(t *testing.T) {
	mr, store := newRedisStore(t)
	ctx := context.Background()

	if err := store.Set(ctx, "fp:x#1", []byte("x"), time.Second); err != nil {
		t.Fatalf("Set failed: %v", err)
	}

	mr.FastForward(2 * time.Second)

	if _, err := store.Get(ctx, "fp:x#1"); !errors.Is(err, ErrMiss) {
		t.Fatalf("expected ErrMiss after TTL, got %v", err)
	}
}

func TestMemoryStoreExpiry(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	if err := store.Set(ctx, "fp:x#1", []byte("x"), time.Nanosecond); err != nil {
		t.Fatalf("Set failed: %v", err)
	}
	time.Sleep(5 * time.Millisecond)

	if _, err := store.Get(ctx, "fp:x#1"); !errors.Is(err, ErrMiss) {
		t.Fatalf("expected ErrMiss after TTL, got %v", err)
	}
	if keys, _ := store.KeysWithPrefix(ctx, "fp:"); len(keys) != 0 {
		t.Fatalf("expired key still listed: %v", keys)
	}
}

func TestRedisStoreUnavailableWrapsSentinel(t *testing.T) {
	mr, store := newRedisStore(t)
	mr.Close()

	if _, err := store.Get(context.Background(), "any"); !errors.Is(err, ErrUnavailable) {
		t.Fatalf("expected ErrUnavailable, got %v", err)
	}
	if err := store.Ping(context.Background()); !errors.Is(err, ErrUnavailable) {
		t.Fatalf("expected ErrUnavailable from ping, got %v", err)
	}
}
