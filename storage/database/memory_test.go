package database

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryStoreGetPutMiss(t *testing.T) {
	store := NewMemoryStore()

	_, ok, err := store.Get(TableTX, []byte("missing"))
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, store.Put(TableTX, []byte("k"), []byte("v")))
	v, ok, err := store.Get(TableTX, []byte("k"))
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, []byte("v"), v)
}

func TestMemoryStoreTablesAreIndependent(t *testing.T) {
	store := NewMemoryStore()
	require.NoError(t, store.Put(TableTX, []byte("k"), []byte("tx-value")))
	require.NoError(t, store.Put(TableState, []byte("k"), []byte("state-value")))

	v, ok, err := store.Get(TableTX, []byte("k"))
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, []byte("tx-value"), v)

	v, ok, err = store.Get(TableState, []byte("k"))
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, []byte("state-value"), v)
}

func TestMemoryStoreClosed(t *testing.T) {
	store := NewMemoryStore()
	require.NoError(t, store.Close())

	_, _, err := store.Get(TableTX, []byte("k"))
	assert.Equal(t, ErrClosed, err)

	err = store.Put(TableTX, []byte("k"), []byte("v"))
	assert.Equal(t, ErrClosed, err)
}
