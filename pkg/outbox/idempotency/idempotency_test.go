package idempotency

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	goredis "github.com/redis/go-redis/v9"
)

type memStore struct {
	values   map[string]string
	ttls     map[string]time.Duration
	setNXErr error
	// vanish drops the key on the next Get to mimic expiry between SetNX and Get
	vanish bool
}

func newMemStore() *memStore {
	return &memStore{values: map[string]string{}, ttls: map[string]time.Duration{}}
}

func (m *memStore) Get(_ context.Context, key string) (string, error) {
	if m.vanish {
		m.vanish = false
		delete(m.values, key)
	}
	v, ok := m.values[key]
	if !ok {
		return "", goredis.Nil
	}
	return v, nil
}

func (m *memStore) Set(_ context.Context, key string, value any, ttl time.Duration) error {
	m.values[key] = value.(string)
	m.ttls[key] = ttl
	return nil
}

func (m *memStore) SetNX(_ context.Context, key string, value any, ttl time.Duration) (bool, error) {
	if m.setNXErr != nil {
		return false, m.setNXErr
	}
	if _, ok := m.values[key]; ok {
		return false, nil
	}
	m.values[key] = value.(string)
	m.ttls[key] = ttl
	return true, nil
}

func (m *memStore) Del(_ context.Context, keys ...string) error {
	for _, k := range keys {
		delete(m.values, k)
	}
	return nil
}

func (m *memStore) IdempotencyKey(scope, id string) string {
	return "mb:idempotency:" + scope + ":" + id
}

func TestClaimConfirmLifecycle(t *testing.T) {
	store := newMemStore()
	manager, err := NewManager(store, 30*24*time.Hour, 0)
	if err != nil {
		t.Fatalf("NewManager: %v", err)
	}
	ctx := context.Background()
	eventID := uuid.MustParse("f47ac10b-58cc-4372-a567-0e02b2c3d479")
	key := "mb:idempotency:delivery:notifier:" + eventID.String()

	state, err := manager.Claim(ctx, "notifier", eventID)
	if err != nil || state != StateClaimed {
		t.Fatalf("expected claim, got %s (%v)", state, err)
	}
	if store.ttls[key] != DefaultClaimTTL {
		t.Fatalf("expected claim ttl %v, got %v", DefaultClaimTTL, store.ttls[key])
	}

	state, _ = manager.Claim(ctx, "notifier", eventID)
	if state != StateInFlight {
		t.Fatalf("second worker should see in-flight, got %s", state)
	}

	if err := manager.Confirm(ctx, "notifier", eventID); err != nil {
		t.Fatalf("confirm: %v", err)
	}
	if store.ttls[key] != 30*24*time.Hour {
		t.Fatalf("expected delivered ttl, got %v", store.ttls[key])
	}
	state, _ = manager.Claim(ctx, "notifier", eventID)
	if state != StateDelivered {
		t.Fatalf("expected delivered, got %s", state)
	}
}

func TestReleaseAllowsRetry(t *testing.T) {
	manager, _ := NewManager(newMemStore(), time.Hour, time.Minute)
	ctx := context.Background()
	eventID := uuid.New()

	if state, _ := manager.Claim(ctx, "notifier", eventID); state != StateClaimed {
		t.Fatalf("expected claim, got %s", state)
	}
	if err := manager.Release(ctx, "notifier", eventID); err != nil {
		t.Fatalf("release: %v", err)
	}
	if state, _ := manager.Claim(ctx, "notifier", eventID); state != StateClaimed {
		t.Fatalf("expected reclaim after release, got %s", state)
	}
}

func TestClaimRetriesWhenMarkExpires(t *testing.T) {
	store := newMemStore()
	manager, _ := NewManager(store, time.Hour, time.Minute)
	ctx := context.Background()
	eventID := uuid.New()
	if _, err := manager.Claim(ctx, "notifier", eventID); err != nil {
		t.Fatalf("claim: %v", err)
	}
	store.vanish = true
	if state, err := manager.Claim(ctx, "notifier", eventID); err != nil || state != StateClaimed {
		t.Fatalf("expected claim after expiry, got %s (%v)", state, err)
	}
}

func TestClaimErrorsAndValidation(t *testing.T) {
	store := newMemStore()
	store.setNXErr = errors.New("redis down")
	manager, _ := NewManager(store, time.Hour, time.Minute)
	ctx := context.Background()

	if _, err := manager.Claim(ctx, "notifier", uuid.New()); err == nil {
		t.Fatal("expected store error")
	}
	if _, err := manager.Claim(ctx, "", uuid.New()); err == nil {
		t.Fatal("expected consumer validation error")
	}
	if err := manager.Confirm(ctx, "notifier", uuid.Nil); err == nil {
		t.Fatal("expected event id validation error")
	}
	if _, err := NewManager(nil, time.Hour, time.Minute); err == nil {
		t.Fatal("expected nil store error")
	}
}
