// Package session stores short-lived records of the identities seen by the
// relay. The chat core never depends on a store being present: records are
// written best effort and expire on their own.
package session

import (
	"context"
	"errors"
	"time"
)

// DefaultTTL is how long a record survives without being touched.
const DefaultTTL = 24 * time.Hour

// ErrNotFound is returned by Get for unknown or expired sessions.
var ErrNotFound = errors.New("session not found")

// Record is the persisted view of one identity.
type Record struct {
	SessionID    string    `json:"sessionId"`
	Nickname     string    `json:"nickname"`
	Avatar       string    `json:"avatar"`
	CurrentRoom  string    `json:"currentRoom,omitempty"`
	IPHash       string    `json:"ipHash"`
	Subnet       string    `json:"subnet,omitempty"`
	ConnectionID string    `json:"connectionId,omitempty"`
	IsActive     bool      `json:"isActive"`
	JoinedAt     time.Time `json:"joinedAt"`
	LastActive   time.Time `json:"lastActive"`
}

// Store persists records with an expiry that is refreshed on every Touch.
type Store interface {
	// Touch creates or refreshes the record. JoinedAt of an existing record
	// is preserved; LastActive is set to the current time.
	Touch(ctx context.Context, rec Record) error
	Get(ctx context.Context, sessionID string) (Record, error)
	// Deactivate marks the record inactive and detaches it from its room,
	// unless another connection has touched the record since connID did.
	Deactivate(ctx context.Context, sessionID, connID string) error
	Close() error
}

// merge applies an incoming touch on top of the stored record.
func merge(existing *Record, incoming Record, now time.Time) Record {
	out := incoming
	out.LastActive = now
	out.JoinedAt = now
	if existing != nil && !existing.JoinedAt.IsZero() {
		out.JoinedAt = existing.JoinedAt
	}
	return out
}

// ownedBy reports whether connID is the connection that last touched rec.
func ownedBy(rec Record, connID string) bool {
	return rec.ConnectionID == connID
}

func deactivated(rec Record) Record {
	rec.IsActive = false
	rec.CurrentRoom = ""
	rec.ConnectionID = ""
	return rec
}
