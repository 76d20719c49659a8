// Package cartlock provides the mutual-exclusion guard that freezes a
// cart for the duration of a checkout. The store is keyed by owner key
// and auto-expires abandoned locks so a crashed checkout can never
// strand a cart permanently.
package cartlock

import (
	"context"
	"sync"
	"time"
)

// Record describes one held lock.
type Record struct {
	OwnerKey      string
	TransactionID string
	AcquiredAt    time.Time
	ExpiresAt     time.Time
}

// Store is the lock backend. The in-memory implementation serves a
// single instance; multi-instance deployments swap in the redis store
// with identical semantics.
type Store interface {
	// Acquire takes the lock for ownerKey. Returns false when another
	// checkout already holds it.
	Acquire(ctx context.Context, ownerKey, transactionID string) (bool, error)
	Release(ctx context.Context, ownerKey string) error
	// ReleaseIfHeldBy releases the lock only when transactionID still
	// holds it, so a stale checkout can never free a cart that a newer
	// checkout has since frozen.
	ReleaseIfHeldBy(ctx context.Context, ownerKey, transactionID string) error
	IsLocked(ctx context.Context, ownerKey string) (bool, error)
	// UpdateTransactionID re-keys a held lock once a provisional
	// checkout attempt gets its real gateway transaction id.
	UpdateTransactionID(ctx context.Context, ownerKey, transactionID string) error
	Close() error
}

// MemoryStore implements Store with an in-process map and a background
// sweep that drops expired locks.
type MemoryStore struct {
	mu    sync.Mutex
	locks map[string]*Record
	ttl   time.Duration

	stopSweep chan struct{}
	wg        sync.WaitGroup
}

func NewMemoryStore(ttl, sweepInterval time.Duration) *MemoryStore {
	s := &MemoryStore{
		locks:     make(map[string]*Record),
		ttl:       ttl,
		stopSweep: make(chan struct{}),
	}

	s.wg.Add(1)
	go s.sweepLoop(sweepInterval)

	return s
}

func (s *MemoryStore) sweepLoop(interval time.Duration) {
	defer s.wg.Done()

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			s.sweep()
		case <-s.stopSweep:
			return
		}
	}
}

func (s *MemoryStore) sweep() {
	now := time.Now()
	s.mu.Lock()
	defer s.mu.Unlock()
	for key, rec := range s.locks {
		if now.After(rec.ExpiresAt) {
			delete(s.locks, key)
		}
	}
}

func (s *MemoryStore) Acquire(_ context.Context, ownerKey, transactionID string) (bool, error) {
	now := time.Now()
	s.mu.Lock()
	defer s.mu.Unlock()

	if rec, ok := s.locks[ownerKey]; ok && now.Before(rec.ExpiresAt) {
		return false, nil
	}
	s.locks[ownerKey] = &Record{
		OwnerKey:      ownerKey,
		TransactionID: transactionID,
		AcquiredAt:    now,
		ExpiresAt:     now.Add(s.ttl),
	}
	return true, nil
}

func (s *MemoryStore) Release(_ context.Context, ownerKey string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.locks, ownerKey)
	return nil
}

func (s *MemoryStore) ReleaseIfHeldBy(_ context.Context, ownerKey, transactionID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if rec, ok := s.locks[ownerKey]; ok && rec.TransactionID == transactionID {
		delete(s.locks, ownerKey)
	}
	return nil
}

func (s *MemoryStore) IsLocked(_ context.Context, ownerKey string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.locks[ownerKey]
	return ok && time.Now().Before(rec.ExpiresAt), nil
}

func (s *MemoryStore) UpdateTransactionID(_ context.Context, ownerKey, transactionID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if rec, ok := s.locks[ownerKey]; ok && time.Now().Before(rec.ExpiresAt) {
		rec.TransactionID = transactionID
	}
	return nil
}

func (s *MemoryStore) Close() error {
	close(s.stopSweep)
	s.wg.Wait()
	return nil
}
