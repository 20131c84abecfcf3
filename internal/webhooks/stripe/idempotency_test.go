package stripewebhook

import (
	"context"
	"fmt"
	"testing"
	"time"
)

type fakeIdempotencyStore struct {
	seen map[string]bool
}

func newFakeIdempotencyStore() *fakeIdempotencyStore {
	return &fakeIdempotencyStore{seen: map[string]bool{}}
}

func (f *fakeIdempotencyStore) Get(_ context.Context, key string) (string, error) {
	if f.seen[key] {
		return "1", nil
	}
	return "", nil
}

func (f *fakeIdempotencyStore) SetNX(_ context.Context, key string, _ any, _ time.Duration) (bool, error) {
	if f.seen[key] {
		return false, nil
	}
	f.seen[key] = true
	return true, nil
}

func (f *fakeIdempotencyStore) IdempotencyKey(scope, id string) string {
	return fmt.Sprintf("dh:idempotency:%s:%s", scope, id)
}

func (f *fakeIdempotencyStore) Del(_ context.Context, keys ...string) error {
	for _, key := range keys {
		delete(f.seen, key)
	}
	return nil
}

func TestIdempotencyGuardCheckAndMark(t *testing.T) {
	guard, err := NewIdempotencyGuard(newFakeIdempotencyStore(), time.Hour, "stripe-webhook")
	if err != nil {
		t.Fatalf("NewIdempotencyGuard: %v", err)
	}

	seen, err := guard.CheckAndMark(context.Background(), "evt_1")
	if err != nil {
		t.Fatalf("CheckAndMark: %v", err)
	}
	if seen {
		t.Fatal("first delivery should not be marked as seen")
	}

	seen, err = guard.CheckAndMark(context.Background(), "evt_1")
	if err != nil {
		t.Fatalf("CheckAndMark: %v", err)
	}
	if !seen {
		t.Fatal("second delivery should be marked as seen")
	}
}

func TestIdempotencyGuardDeleteAllowsRetry(t *testing.T) {
	guard, err := NewIdempotencyGuard(newFakeIdempotencyStore(), time.Hour, "stripe-webhook")
	if err != nil {
		t.Fatalf("NewIdempotencyGuard: %v", err)
	}

	if _, err := guard.CheckAndMark(context.Background(), "evt_1"); err != nil {
		t.Fatalf("CheckAndMark: %v", err)
	}
	if err := guard.Delete(context.Background(), "evt_1"); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	seen, err := guard.CheckAndMark(context.Background(), "evt_1")
	if err != nil {
		t.Fatalf("CheckAndMark: %v", err)
	}
	if seen {
		t.Fatal("event should be retryable after Delete")
	}
}
