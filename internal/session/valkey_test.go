package session

import (
	"context"
	"errors"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
)

func TestNewValkeyStoreUnreachable(t *testing.T) {
	if _, err := NewValkeyStore("127.0.0.1:1", "", time.Minute); err == nil {
		t.Fatal("expected an error connecting to a closed port")
	}
}

// TestValkeyStoreRoundTrip needs a live server; set VALKEY_TEST_ADDR to run it.
func TestValkeyStoreRoundTrip(t *testing.T) {
	addr := os.Getenv("VALKEY_TEST_ADDR")
	if addr == "" {
		t.Skip("VALKEY_TEST_ADDR not set")
	}

	store, err := NewValkeyStore(addr, os.Getenv("VALKEY_TEST_PASSWORD"), time.Minute)
	if err != nil {
		t.Fatalf("connect: %v", err)
	}
	defer func() { _ = store.Close() }()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	sessionID := "test-" + uuid.NewString()
	if _, err := store.Get(ctx, sessionID); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound for a fresh id, got %v", err)
	}

	rec := Record{SessionID: sessionID, Nickname: "Ann", Avatar: "a", CurrentRoom: "global-main", ConnectionID: "tab-1", IsActive: true}
	if err := store.Touch(ctx, rec); err != nil {
		t.Fatalf("touch: %v", err)
	}
	first, err := store.Get(ctx, sessionID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if first.Nickname != "Ann" || !first.IsActive || first.JoinedAt.IsZero() {
		t.Errorf("unexpected record %+v", first)
	}

	rec.Nickname = "Annie"
	if err := store.Touch(ctx, rec); err != nil {
		t.Fatalf("second touch: %v", err)
	}
	second, _ := store.Get(ctx, sessionID)
	if !second.JoinedAt.Equal(first.JoinedAt) || second.Nickname != "Annie" {
		t.Errorf("touch should keep joinedAt and update fields, got %+v", second)
	}

	if err := store.Deactivate(ctx, sessionID, "tab-0"); err != nil {
		t.Fatalf("deactivate by a stale connection: %v", err)
	}
	if still, _ := store.Get(ctx, sessionID); !still.IsActive {
		t.Errorf("a stale connection must not deactivate the session: %+v", still)
	}

	if err := store.Deactivate(ctx, sessionID, "tab-1"); err != nil {
		t.Fatalf("deactivate: %v", err)
	}
	inactive, _ := store.Get(ctx, sessionID)
	if inactive.IsActive || inactive.CurrentRoom != "" {
		t.Errorf("expected an inactive record without a room, got %+v", inactive)
	}

	ttl, err := store.client.Do(ctx, store.client.B().Ttl().Key(sessionKey(sessionID)).Build()).AsInt64()
	if err != nil {
		t.Fatalf("ttl: %v", err)
	}
	if ttl <= 0 || ttl > 60 {
		t.Errorf("expected a ttl within a minute, got %d", ttl)
	}
}
