package storage

import (
	"sync"
	"time"
)

// TTLStore wraps a Database with per-key expiry. Every write re-extends the
// key's lifetime; a read past the deadline behaves as if the key never
// existed. This mirrors ledger hosts that archive state entries unless their
// time-to-live is kept extended.
type TTLStore struct {
	db       Database
	lifetime time.Duration
	now      func() time.Time

	mu       sync.Mutex
	deadline map[string]time.Time
}

// NewTTLStore wraps db with the given key lifetime.
func NewTTLStore(db Database, lifetime time.Duration) *TTLStore {
	return &TTLStore{
		db:       db,
		lifetime: lifetime,
		now:      time.Now,
		deadline: make(map[string]time.Time),
	}
}

// SetClock overrides the time source. Tests use it to simulate expiry.
func (s *TTLStore) SetClock(now func() time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.now = now
}

// Extend refreshes the lifetime of a key without writing it.
func (s *TTLStore) Extend(key []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.deadline[string(key)]; ok {
		s.deadline[string(key)] = s.now().Add(s.lifetime)
	}
}

func (s *TTLStore) expired(key []byte) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	deadline, ok := s.deadline[string(key)]
	return ok && s.now().After(deadline)
}

// Put writes the key and re-extends its lifetime.
func (s *TTLStore) Put(key, value []byte) error {
	if err := s.db.Put(key, value); err != nil {
		return err
	}
	s.mu.Lock()
	s.deadline[string(key)] = s.now().Add(s.lifetime)
	s.mu.Unlock()
	return nil
}

// Get returns the value, or ErrKeyNotFound once the key's lifetime lapsed.
func (s *TTLStore) Get(key []byte) ([]byte, error) {
	if s.expired(key) {
		return nil, ErrKeyNotFound
	}
	return s.db.Get(key)
}

// Has reports whether the key exists and is still live.
func (s *TTLStore) Has(key []byte) (bool, error) {
	if s.expired(key) {
		return false, nil
	}
	return s.db.Has(key)
}

// Delete removes the key and its deadline.
func (s *TTLStore) Delete(key []byte) error {
	if err := s.db.Delete(key); err != nil {
		return err
	}
	s.mu.Lock()
	delete(s.deadline, string(key))
	s.mu.Unlock()
	return nil
}

// Close closes the underlying database.
func (s *TTLStore) Close() {
	s.db.Close()
}
