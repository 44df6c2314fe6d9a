package presence

import (
	"errors"
	"strings"
	"testing"
	"time"
)

func TestRelayRequiresRoom(t *testing.T) {
	r := newTestRegistry()
	id := mustIdentity(t, "Lonely")

	tests := []struct {
		name string
		id   *Identity
	}{
		{name: "not authenticated", id: nil},
		{name: "authenticated but not joined", id: id},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, targets, err := r.Relay("c1", tt.id, "hello")
			if !errors.Is(err, ErrNotInRoom) {
				t.Errorf("expected ErrNotInRoom, got %v", err)
			}
			if len(targets) != 0 {
				t.Errorf("expected no targets, got %v", targets)
			}
		})
	}
}

func TestRelayIncludesSenderAndStaysInRoom(t *testing.T) {
	r := newTestRegistry()
	fixed := time.Date(2026, 10, 19, 12, 0, 0, 0, time.UTC)
	r.now = func() time.Time { return fixed }

	ann, ben, cat := mustIdentity(t, "Ann"), mustIdentity(t, "Ben"), mustIdentity(t, "Cat")
	if _, err := r.Join("ann", ann, JoinRequest{Code: "A"}); err != nil {
		t.Fatal(err)
	}
	if _, err := r.Join("ben", ben, JoinRequest{Code: "A"}); err != nil {
		t.Fatal(err)
	}
	if _, err := r.Join("cat", cat, JoinRequest{Code: "B"}); err != nil {
		t.Fatal(err)
	}

	msg, targets, err := r.Relay("ann", ann, "<b>hi</b>")
	if err != nil {
		t.Fatalf("relay failed: %v", err)
	}
	if !sameStrings(targets, []string{"ann", "ben"}) {
		t.Errorf("expected ann and ben as targets, got %v", targets)
	}
	if msg.Content != "<b>hi</b>" {
		t.Errorf("content must be passed through, got %q", msg.Content)
	}
	if msg.User != "Ann" || msg.Avatar != ann.Avatar || msg.RoomID != "A" {
		t.Errorf("unexpected message fields: %+v", msg)
	}
	if msg.SessionID != ann.SessionID || msg.ConnectionID != "ann" {
		t.Errorf("message should identify its sender: %+v", msg)
	}
	if !msg.Timestamp.Equal(fixed) {
		t.Errorf("expected timestamp %v, got %v", fixed, msg.Timestamp)
	}
	if !strings.HasPrefix(msg.ID, "msg-") {
		t.Errorf("unexpected message id %q", msg.ID)
	}

	other, _, _ := r.Relay("ann", ann, "again")
	if other.ID == msg.ID {
		t.Error("message ids must be unique")
	}
}

func TestRelayUsesIdentityAtSendTime(t *testing.T) {
	r := newTestRegistry()
	id := mustIdentity(t, "Before")
	if _, err := r.Join("c1", id, JoinRequest{Type: TypeGlobal}); err != nil {
		t.Fatal(err)
	}

	rebound := mustIdentity(t, "After")
	msg, _, err := r.Relay("c1", rebound, "x")
	if err != nil {
		t.Fatal(err)
	}
	if msg.User != "After" {
		t.Errorf("expected nickname from the bound identity, got %q", msg.User)
	}
}
