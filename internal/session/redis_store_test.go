package session

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
)

func setupTestRedis(t *testing.T) (*RedisStore, *miniredis.Miniredis) {
	s := miniredis.RunT(t)
	store, err := NewRedisStore("redis://"+s.Addr(), time.Minute)
	if err != nil {
		t.Fatalf("failed to create redis store: %v", err)
	}
	return store, s
}

func TestNewRedisStore(t *testing.T) {
	s := miniredis.RunT(t)
	defer s.Close()

	store, err := NewRedisStore("redis://"+s.Addr(), time.Minute)
	if err != nil {
		t.Fatalf("NewRedisStore failed: %v", err)
	}
	defer store.Close()

	ctx := context.Background()
	if err := store.Ping(ctx); err != nil {
		t.Errorf("Ping failed: %v", err)
	}
}

func TestAcquireLease(t *testing.T) {
	store, s := setupTestRedis(t)
	defer store.Close()
	defer s.Close()

	ctx := context.Background()

	lease, err := store.Acquire(ctx, "proj_1", "alice")
	if err != nil {
		t.Fatalf("Acquire failed: %v", err)
	}
	if lease.Editor != "alice" {
		t.Errorf("expected editor alice, got %s", lease.Editor)
	}

	current, held, err := store.Holder(ctx, "proj_1")
	if err != nil {
		t.Fatalf("Holder failed: %v", err)
	}
	if !held || current.Editor != "alice" {
		t.Errorf("expected alice to hold the lease, got held=%v editor=%s", held, current.Editor)
	}
}

func TestAcquireHeldLease(t *testing.T) {
	store, s := setupTestRedis(t)
	defer store.Close()
	defer s.Close()

	ctx := context.Background()

	if _, err := store.Acquire(ctx, "proj_1", "alice"); err != nil {
		t.Fatalf("Acquire failed: %v", err)
	}

	current, err := store.Acquire(ctx, "proj_1", "bob")
	if !errors.Is(err, ErrLeaseHeld) {
		t.Fatalf("expected ErrLeaseHeld, got %v", err)
	}
	if current.Editor != "alice" {
		t.Errorf("expected holder alice, got %s", current.Editor)
	}
}

func TestReacquireOwnLease(t *testing.T) {
	store, s := setupTestRedis(t)
	defer store.Close()
	defer s.Close()

	ctx := context.Background()

	if _, err := store.Acquire(ctx, "proj_1", "alice"); err != nil {
		t.Fatalf("first Acquire failed: %v", err)
	}
	if _, err := store.Acquire(ctx, "proj_1", "alice"); err != nil {
		t.Fatalf("re-Acquire by holder failed: %v", err)
	}
}

func TestLeaseExpires(t *testing.T) {
	store, s := setupTestRedis(t)
	defer store.Close()
	defer s.Close()

	ctx := context.Background()

	if _, err := store.Acquire(ctx, "proj_1", "alice"); err != nil {
		t.Fatalf("Acquire failed: %v", err)
	}

	s.FastForward(2 * time.Minute)

	if _, err := store.Acquire(ctx, "proj_1", "bob"); err != nil {
		t.Fatalf("expected bob to acquire after expiry, got %v", err)
	}
}

func TestRenewLease(t *testing.T) {
	store, s := setupTestRedis(t)
	defer store.Close()
	defer s.Close()

	ctx := context.Background()

	if _, err := store.Acquire(ctx, "proj_1", "alice"); err != nil {
		t.Fatalf("Acquire failed: %v", err)
	}

	s.FastForward(30 * time.Second)
	if err := store.Renew(ctx, "proj_1", "alice"); err != nil {
		t.Fatalf("Renew failed: %v", err)
	}

	s.FastForward(45 * time.Second)
	current, held, err := store.Holder(ctx, "proj_1")
	if err != nil {
		t.Fatalf("Holder failed: %v", err)
	}
	if !held || current.Editor != "alice" {
		t.Errorf("expected renewed lease to survive, got held=%v editor=%s", held, current.Editor)
	}
}

func TestRenewNotHeld(t *testing.T) {
	store, s := setupTestRedis(t)
	defer store.Close()
	defer s.Close()

	ctx := context.Background()

	if err := store.Renew(ctx, "proj_1", "alice"); !errors.Is(err, ErrLeaseNotHeld) {
		t.Fatalf("expected ErrLeaseNotHeld, got %v", err)
	}

	if _, err := store.Acquire(ctx, "proj_1", "alice"); err != nil {
		t.Fatalf("Acquire failed: %v", err)
	}
	if err := store.Renew(ctx, "proj_1", "bob"); !errors.Is(err, ErrLeaseNotHeld) {
		t.Fatalf("expected ErrLeaseNotHeld for non-holder, got %v", err)
	}
}

func TestReleaseLease(t *testing.T) {
	store, s := setupTestRedis(t)
	defer store.Close()
	defer s.Close()

	ctx := context.Background()

	if _, err := store.Acquire(ctx, "proj_1", "alice"); err != nil {
		t.Fatalf("Acquire failed: %v", err)
	}

	if err := store.Release(ctx, "proj_1", "bob"); !errors.Is(err, ErrLeaseNotHeld) {
		t.Fatalf("expected ErrLeaseNotHeld for non-holder release, got %v", err)
	}

	if err := store.Release(ctx, "proj_1", "alice"); err != nil {
		t.Fatalf("Release failed: %v", err)
	}

	if _, err := store.Acquire(ctx, "proj_1", "bob"); err != nil {
		t.Fatalf("expected bob to acquire after release, got %v", err)
	}

	// Releasing an unheld lease is a no-op.
	if err := store.Release(ctx, "proj_2", "alice"); err != nil {
		t.Fatalf("release of unheld lease: %v", err)
	}
}
