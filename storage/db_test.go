package storage

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestMemDBRoundTrip(t *testing.T) {
	db := NewMemDB()
	defer db.Close()

	require.NoError(t, db.Put([]byte("a"), []byte("1")))

	value, err := db.Get([]byte("a"))
	require.NoError(t, err)
	require.Equal(t, []byte("1"), value)

	ok, err := db.Has([]byte("a"))
	require.NoError(t, err)
	require.True(t, ok)

	require.NoError(t, db.Delete([]byte("a")))
	_, err = db.Get([]byte("a"))
	require.ErrorIs(t, err, ErrKeyNotFound)
}

func TestMemDBCopiesValues(t *testing.T) {
	db := NewMemDB()
	defer db.Close()

	value := []byte("mutable")
	require.NoError(t, db.Put([]byte("k"), value))
	value[0] = 'X'

	stored, err := db.Get([]byte("k"))
	require.NoError(t, err)
	require.Equal(t, []byte("mutable"), stored)
}

func TestTTLStoreExpiry(t *testing.T) {
	db := NewMemDB()
	store := NewTTLStore(db, time.Hour)
	defer store.Close()

	current := time.Unix(0, 0)
	store.SetClock(func() time.Time { return current })

	require.NoError(t, store.Put([]byte("loan"), []byte("record")))

	current = current.Add(30 * time.Minute)
	value, err := store.Get([]byte("loan"))
	require.NoError(t, err)
	require.Equal(t, []byte("record"), value)

	// A write inside the window re-extends the lifetime.
	require.NoError(t, store.Put([]byte("loan"), []byte("record2")))
	current = current.Add(45 * time.Minute)
	_, err = store.Get([]byte("loan"))
	require.NoError(t, err)

	current = current.Add(time.Hour)
	_, err = store.Get([]byte("loan"))
	require.ErrorIs(t, err, ErrKeyNotFound)

	ok, err := store.Has([]byte("loan"))
	require.NoError(t, err)
	require.False(t, ok)
}
