package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/valkey-io/valkey-go"
)

const keyPrefix = "hoodchat:session:"

// ValkeyStore keeps records in Valkey as JSON strings with a key expiry.
type ValkeyStore struct {
	client valkey.Client
	ttl    time.Duration
	now    func() time.Time
}

// NewValkeyStore connects to the Valkey server at addr.
func NewValkeyStore(addr, password string, ttl time.Duration) (*ValkeyStore, error) {
	client, err := valkey.NewClient(valkey.ClientOption{
		InitAddress: []string{addr},
		Password:    password,
	})
	if err != nil {
		return nil, fmt.Errorf("connect to valkey at %s: %w", addr, err)
	}
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &ValkeyStore{client: client, ttl: ttl, now: time.Now}, nil
}

func sessionKey(sessionID string) string {
	return keyPrefix + sessionID
}

func (s *ValkeyStore) Touch(ctx context.Context, rec Record) error {
	existing, err := s.Get(ctx, rec.SessionID)
	var prev *Record
	switch {
	case err == nil:
		prev = &existing
	case !errors.Is(err, ErrNotFound):
		return err
	}
	return s.put(ctx, merge(prev, rec, s.now()))
}

func (s *ValkeyStore) Get(ctx context.Context, sessionID string) (Record, error) {
	raw, err := s.client.Do(ctx, s.client.B().Get().Key(sessionKey(sessionID)).Build()).ToString()
	if valkey.IsValkeyNil(err) {
		return Record{}, ErrNotFound
	}
	if err != nil {
		return Record{}, fmt.Errorf("get session %s: %w", sessionID, err)
	}

	var rec Record
	if err := json.Unmarshal([]byte(raw), &rec); err != nil {
		return Record{}, fmt.Errorf("decode session %s: %w", sessionID, err)
	}
	return rec, nil
}

func (s *ValkeyStore) Deactivate(ctx context.Context, sessionID, connID string) error {
	rec, err := s.Get(ctx, sessionID)
	if err != nil {
		return err
	}
	if !ownedBy(rec, connID) {
		return nil
	}
	return s.put(ctx, deactivated(rec))
}

func (s *ValkeyStore) put(ctx context.Context, rec Record) error {
	raw, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("encode session %s: %w", rec.SessionID, err)
	}

	key := sessionKey(rec.SessionID)
	set := s.client.B().Set().Key(key).Value(string(raw)).Ex(s.ttl).Build()
	if err := s.client.Do(ctx, set).Error(); err != nil {
		return fmt.Errorf("store session %s: %w", rec.SessionID, err)
	}
	return nil
}

func (s *ValkeyStore) Close() error {
	s.client.Close()
	return nil
}
