package ratelimit

import (
	"context"
	"sync"
	"testing"
	"time"
)

func TestMemoryStore(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store := NewMemoryStore()

	_, ok, err := store.LastAccepted(ctx, 42)
	if err != nil {
		t.Fatalf("LastAccepted returned error: %v", err)
	}
	if ok {
		t.Fatal("LastAccepted ok = true for unknown user")
	}

	at := time.Now()
	if err := store.MarkAccepted(ctx, 42, at); err != nil {
		t.Fatalf("MarkAccepted returned error: %v", err)
	}

	got, ok, err := store.LastAccepted(ctx, 42)
	if err != nil {
		t.Fatalf("LastAccepted returned error: %v", err)
	}
	if !ok {
		t.Fatal("LastAccepted ok = false after MarkAccepted")
	}
	if !got.Equal(at) {
		t.Fatalf("LastAccepted = %v, want %v", got, at)
	}

	// A later mark overwrites.
	later := at.Add(10 * time.Second)
	if err := store.MarkAccepted(ctx, 42, later); err != nil {
		t.Fatalf("MarkAccepted returned error: %v", err)
	}
	got, _, _ = store.LastAccepted(ctx, 42)
	if !got.Equal(later) {
		t.Fatalf("LastAccepted = %v, want %v", got, later)
	}
}

func TestMemoryStoreConcurrent(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store := NewMemoryStore()
	now := time.Now()

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		i := i
		wg.Add(1)
		go func() {
			defer wg.Done()
			userID := int64(i % 10)
			_ = store.MarkAccepted(ctx, userID, now)
			_, _, _ = store.LastAccepted(ctx, userID)
		}()
	}
	wg.Wait()

	if store.Len() != 10 {
		t.Fatalf("Len() = %d, want 10", store.Len())
	}
}
