package redisstore

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"
	"testing"
	"time"

	"burnbin/internal/storage"
)

// These tests need a live Redis. Set REDIS_URL (or run one on
// localhost:6379 and export REDIS_URL=localhost:6379) to enable them.
func openTestStore(t *testing.T) *Store {
	t.Helper()
	addr := os.Getenv("REDIS_URL")
	if addr == "" {
		t.Skip("REDIS_URL not set, skipping redis store tests")
	}
	store, err := Open(context.Background(), addr)
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return store
}

func i64(v int64) *int64 { return &v }

func testID(t *testing.T) string {
	return fmt.Sprintf("t-%s-%d", t.Name(), time.Now().UnixNano())
}

func TestOptionalFieldsRoundTrip(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()
	pasteID := testID(t)

	rec := &storage.Record{ID: pasteID, Content: "plain", CreatedAtMS: 1234}
	if err := store.Create(ctx, rec); err != nil {
		t.Fatalf("create: %v", err)
	}

	out, err := store.ConsumeByID(ctx, pasteID, 5000)
	if err != nil {
		t.Fatalf("consume: %v", err)
	}
	if out.Content != "plain" || out.CreatedAtMS != 1234 {
		t.Fatalf("bad round trip: %+v", out)
	}
	if out.ExpiresAtMS != nil || out.RemainingViews != nil {
		t.Fatalf("absent fields must decode to nil: %+v", out)
	}
}

func TestScriptCountdown(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()
	pasteID := testID(t)

	rec := &storage.Record{ID: pasteID, Content: "hello", CreatedAtMS: 0, RemainingViews: i64(2)}
	if err := store.Create(ctx, rec); err != nil {
		t.Fatalf("create: %v", err)
	}

	for want := int64(1); want >= 0; want-- {
		out, err := store.ConsumeByID(ctx, pasteID, 0)
		if err != nil {
			t.Fatalf("consume: %v", err)
		}
		if out.RemainingViews == nil || *out.RemainingViews != want {
			t.Fatalf("expected remaining %d, got %v", want, out.RemainingViews)
		}
	}
	if _, err := store.ConsumeByID(ctx, pasteID, 0); !errors.Is(err, storage.ErrNotFound) {
		t.Fatalf("expected exhaustion, got %v", err)
	}
}

func TestScriptExpiryBoundary(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()
	pasteID := testID(t)

	rec := &storage.Record{ID: pasteID, Content: "x", CreatedAtMS: 0, ExpiresAtMS: i64(10_000)}
	if err := store.Create(ctx, rec); err != nil {
		t.Fatalf("create: %v", err)
	}
	if _, err := store.ConsumeByID(ctx, pasteID, 9_999); err != nil {
		t.Fatalf("expected alive at 9999: %v", err)
	}
	if _, err := store.ConsumeByID(ctx, pasteID, 10_000); !errors.Is(err, storage.ErrNotFound) {
		t.Fatalf("expected expired at 10000, got %v", err)
	}
}

func TestScriptConcurrentLastView(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()
	pasteID := testID(t)

	rec := &storage.Record{ID: pasteID, Content: "one shot", CreatedAtMS: 0, RemainingViews: i64(1)}
	if err := store.Create(ctx, rec); err != nil {
		t.Fatalf("create: %v", err)
	}

	const readers = 16
	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		hits     int
		notFound int
	)
	for i := 0; i < readers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := store.ConsumeByID(ctx, pasteID, 0)
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				hits++
			case errors.Is(err, storage.ErrNotFound):
				notFound++
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}()
	}
	wg.Wait()

	if hits != 1 || notFound != readers-1 {
		t.Fatalf("expected exactly one winner, got %d hits / %d not found", hits, notFound)
	}
}

func TestHealthCheck(t *testing.T) {
	store := openTestStore(t)
	if err := store.HealthCheck(context.Background()); err != nil {
		t.Fatalf("health check: %v", err)
	}
}
