package blobstore

import (
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPutAndDuplicate(t *testing.T) {
	dir := t.TempDir()
	store, err := New(dir)
	require.NoError(t, err)

	content := []byte("statement bytes")
	r1, err := store.Put(content, "statement.pdf", PutOptions{CheckDuplicate: true})
	require.NoError(t, err)
	assert.False(t, r1.Duplicate)
	assert.FileExists(t, r1.Path)

	r2, err := store.Put(content, "statement.pdf", PutOptions{CheckDuplicate: true})
	require.NoError(t, err)
	assert.True(t, r2.Duplicate)
	assert.Equal(t, r1.Path, r2.Path)
	assert.Equal(t, r1.Hash, r2.Hash)
}

func TestPutFilenameCollision(t *testing.T) {
	dir := t.TempDir()
	store, err := New(dir)
	require.NoError(t, err)

	r1, err := store.Put([]byte("a"), "same.pdf", PutOptions{})
	require.NoError(t, err)
	r2, err := store.Put([]byte("b"), "same.pdf", PutOptions{})
	require.NoError(t, err)

	assert.NotEqual(t, r1.Path, r2.Path)
	assert.FileExists(t, r1.Path)
	assert.FileExists(t, r2.Path)
}

func TestDuplicateDetectedViaColdScan(t *testing.T) {
	dir := t.TempDir()
	store, err := New(dir)
	require.NoError(t, err)

	content := []byte("cold scan content")
	r1, err := store.Put(content, "a.pdf", PutOptions{})
	require.NoError(t, err)

	// Fresh store instance, no warm index: must fall back to a disk scan.
	store2, err := New(dir)
	require.NoError(t, err)
	r2, err := store2.Put(content, "b.pdf", PutOptions{CheckDuplicate: true})
	require.NoError(t, err)

	assert.True(t, r2.Duplicate)
	assert.Equal(t, r1.Path, r2.Path)
}

func TestDelete(t *testing.T) {
	dir := t.TempDir()
	store, err := New(dir)
	require.NoError(t, err)

	r, err := store.Put([]byte("x"), "d.pdf", PutOptions{})
	require.NoError(t, err)

	require.NoError(t, store.Delete(r.Path))
	_, statErr := os.Stat(r.Path)
	assert.True(t, os.IsNotExist(statErr))

	// Deleting again (already gone) must not error.
	assert.NoError(t, store.Delete(r.Path))
}
