package session

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

type memoryEntry struct {
	record    Record
	expiresAt time.Time
}

// MemoryStore keeps records in process memory. Expired records are hidden on
// read and removed by Sweep.
type MemoryStore struct {
	mu      sync.RWMutex
	records map[string]memoryEntry
	ttl     time.Duration
	now     func() time.Time
	logger  *slog.Logger
}

// NewMemoryStore returns an empty store. A non-positive ttl selects DefaultTTL.
func NewMemoryStore(ttl time.Duration, logger *slog.Logger) *MemoryStore {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &MemoryStore{
		records: make(map[string]memoryEntry),
		ttl:     ttl,
		now:     time.Now,
		logger:  logger,
	}
}

func (s *MemoryStore) Touch(_ context.Context, rec Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	var existing *Record
	if e, ok := s.records[rec.SessionID]; ok && now.Before(e.expiresAt) {
		existing = &e.record
	}
	s.records[rec.SessionID] = memoryEntry{
		record:    merge(existing, rec, now),
		expiresAt: now.Add(s.ttl),
	}
	return nil
}

func (s *MemoryStore) Get(_ context.Context, sessionID string) (Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	e, ok := s.records[sessionID]
	if !ok || !s.now().Before(e.expiresAt) {
		return Record{}, ErrNotFound
	}
	return e.record, nil
}

func (s *MemoryStore) Deactivate(_ context.Context, sessionID, connID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.records[sessionID]
	if !ok || !s.now().Before(e.expiresAt) {
		return ErrNotFound
	}
	if !ownedBy(e.record, connID) {
		s.logger.Debug("session owned by another connection, not deactivating",
			slog.String("sessionId", sessionID),
			slog.String("connID", connID),
		)
		return nil
	}
	e.record = deactivated(e.record)
	s.records[sessionID] = e
	return nil
}

// Sweep deletes expired records and returns how many were removed.
func (s *MemoryStore) Sweep() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	removed := 0
	for id, e := range s.records {
		if !now.Before(e.expiresAt) {
			delete(s.records, id)
			removed++
		}
	}
	return removed
}

// Run sweeps expired records every interval until ctx is cancelled.
func (s *MemoryStore) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := s.Sweep(); n > 0 {
				s.logger.Info("expired sessions swept", slog.Int("count", n))
			}
		}
	}
}

func (s *MemoryStore) Close() error {
	return nil
}
