package state

import (
	"errors"
	"sort"

	"github.com/laina-defi/laina/storage"
)

// overlay buffers writes against a backing store so a multi-step operation
// either lands whole or not at all. Reads see buffered writes first.
type overlay struct {
	db      storage.Database
	pending map[string][]byte
	deleted map[string]struct{}
}

func newOverlay(db storage.Database) *overlay {
	return &overlay{
		db:      db,
		pending: make(map[string][]byte),
		deleted: make(map[string]struct{}),
	}
}

func (o *overlay) Put(key []byte, value []byte) error {
	k := string(key)
	o.pending[k] = append([]byte(nil), value...)
	delete(o.deleted, k)
	return nil
}

func (o *overlay) Get(key []byte) ([]byte, error) {
	k := string(key)
	if _, gone := o.deleted[k]; gone {
		return nil, storage.ErrKeyNotFound
	}
	if value, ok := o.pending[k]; ok {
		return append([]byte(nil), value...), nil
	}
	return o.db.Get(key)
}

func (o *overlay) Has(key []byte) (bool, error) {
	k := string(key)
	if _, gone := o.deleted[k]; gone {
		return false, nil
	}
	if _, ok := o.pending[k]; ok {
		return true, nil
	}
	return o.db.Has(key)
}

func (o *overlay) Delete(key []byte) error {
	k := string(key)
	delete(o.pending, k)
	o.deleted[k] = struct{}{}
	return nil
}

func (o *overlay) commit() error {
	keys := make([]string, 0, len(o.pending)+len(o.deleted))
	for k := range o.pending {
		keys = append(keys, k)
	}
	for k := range o.deleted {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		if _, gone := o.deleted[k]; gone {
			if err := o.db.Delete([]byte(k)); err != nil {
				return err
			}
			continue
		}
		if err := o.db.Put([]byte(k), o.pending[k]); err != nil {
			return err
		}
	}
	return nil
}

// Store couples a database with transactional access to state managers.
type Store struct {
	db storage.Database
}

// NewStore wraps a database for transactional state access.
func NewStore(db storage.Database) *Store {
	return &Store{db: db}
}

// Manager returns a state manager reading and writing the store directly,
// outside any transaction. Suitable for queries.
func (s *Store) Manager() *Manager {
	return NewManager(s.db)
}

// Transaction runs fn against a buffered view of the store. Writes reach the
// database only when fn returns nil; any error discards them all.
func (s *Store) Transaction(fn func(*Manager) error) error {
	if fn == nil {
		return errors.New("state: nil transaction body")
	}
	view := newOverlay(s.db)
	if err := fn(NewManager(view)); err != nil {
		return err
	}
	return view.commit()
}
