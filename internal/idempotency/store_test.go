package idempotency

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"github.com/pitabwire/marketdesk/model"
)

func testRecord(hash string) Record {
	return Record{
		InputHash: hash,
		Status:    200,
		Body:      json.RawMessage(`{"form":{"open":false},"seq":4}`),
	}
}

func newRedisStore(t *testing.T) (*RedisStore, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	return NewRedisStore(client), mr
}

// stores returns every implementation under test.
func stores(t *testing.T) map[string]Store {
	rs, _ := newRedisStore(t)
	return map[string]Store{
		"memory": NewMemoryStore(),
		"redis":  rs,
	}
}

func TestStore_CheckNotFound(t *testing.T) {
	for name, store := range stores(t) {
		t.Run(name, func(t *testing.T) {
			rec, found, err := store.Check(context.Background(), "idem:a:b:c", "h")
			if err != nil {
				t.Fatalf("Check error: %v", err)
			}
			if found || rec != nil {
				t.Errorf("Check = (%v, %v), want (nil, false)", rec, found)
			}
		})
	}
}

func TestStore_SaveAndCheck(t *testing.T) {
	for name, store := range stores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			key := Key("admin-1", "categories", "k1")
			if err := store.Save(ctx, key, testRecord("h1"), time.Minute); err != nil {
				t.Fatalf("Save error: %v", err)
			}

			rec, found, err := store.Check(ctx, key, "h1")
			if err != nil {
				t.Fatalf("Check error: %v", err)
			}
			if !found || rec == nil {
				t.Fatal("record not found")
			}
			if rec.Status != 200 {
				t.Errorf("Status = %d, want 200", rec.Status)
			}
			if string(rec.Body) != `{"form":{"open":false},"seq":4}` {
				t.Errorf("Body = %s", rec.Body)
			}
		})
	}
}

func TestStore_ConflictOnHashMismatch(t *testing.T) {
	for name, store := range stores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			key := Key("admin-1", "categories", "k1")
			if err := store.Save(ctx, key, testRecord("h1"), time.Minute); err != nil {
				t.Fatal(err)
			}

			_, found, err := store.Check(ctx, key, "h2")
			if !found {
				t.Error("found = false, want true")
			}
			var env *model.ErrorEnvelope
			if !errors.As(err, &env) || env.Code != model.ErrConflict {
				t.Fatalf("error = %v, want %s", err, model.ErrConflict)
			}
		})
	}
}

func TestMemoryStore_TTLExpiry(t *testing.T) {
	store := NewMemoryStore()
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	store.now = func() time.Time { return now }
	ctx := context.Background()

	if err := store.Save(ctx, "k", testRecord("h"), time.Minute); err != nil {
		t.Fatal(err)
	}
	now = now.Add(2 * time.Minute)

	_, found, err := store.Check(ctx, "k", "h")
	if err != nil || found {
		t.Fatalf("Check = (found %v, err %v), want expired", found, err)
	}
	if store.Len() != 0 {
		t.Errorf("Len() = %d, expired entry should be removed on Check", store.Len())
	}
}

func TestRedisStore_TTLExpiry(t *testing.T) {
	store, mr := newRedisStore(t)
	ctx := context.Background()

	if err := store.Save(ctx, "k", testRecord("h"), time.Minute); err != nil {
		t.Fatal(err)
	}
	mr.FastForward(2 * time.Minute)

	if _, found, _ := store.Check(ctx, "k", "h"); found {
		t.Error("record should have expired")
	}
}

func TestRedisStore_corruptRecord(t *testing.T) {
	store, mr := newRedisStore(t)
	if err := mr.Set("k", "not json"); err != nil {
		t.Fatal(err)
	}
	if _, _, err := store.Check(context.Background(), "k", "h"); err == nil {
		t.Error("Check should fail on an undecodable record")
	}
}

func TestRedisStore_HealthCheck(t *testing.T) {
	store, mr := newRedisStore(t)
	if err := store.HealthCheck(context.Background()); err != nil {
		t.Fatalf("HealthCheck error: %v", err)
	}
	mr.Close()
	if err := store.HealthCheck(context.Background()); err == nil {
		t.Error("HealthCheck should fail when Redis is down")
	}
}

func TestHashInput(t *testing.T) {
	a := HashInput([]byte(`{"name":"Hair", "price": 10}`))
	b := HashInput([]byte(`{"price":10,"name":"Hair"}`))
	c := HashInput([]byte(`{"price":11,"name":"Hair"}`))
	if a != b {
		t.Error("member order and whitespace must not change the hash")
	}
	if a == c {
		t.Error("different values must change the hash")
	}
	if HashInput([]byte("not json")) == "" {
		t.Error("non-JSON input should still hash")
	}
}

func TestKey(t *testing.T) {
	if got := Key("admin-1", "categories", "abc"); got != "idem:admin-1:categories:abc" {
		t.Errorf("Key() = %q", got)
	}
}
