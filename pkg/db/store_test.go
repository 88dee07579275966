package db

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newStore(t *testing.T) *DocumentStore {
	t.Helper()
	gdb, err := Open(filepath.Join(t.TempDir(), "nested", "threadwriter.db"))
	require.NoError(t, err)
	t.Cleanup(func() {
		if sqlDB, err := gdb.DB(); err == nil {
			sqlDB.Close()
		}
	})
	return NewDocumentStore(gdb)
}

func TestDocumentStoreRoundTrip(t *testing.T) {
	s := newStore(t)
	require.NoError(t, s.Create(&Document{ID: "d1", Title: "Notes", Content: `{"type":"doc"}`}))

	got, err := s.Get("d1")
	require.NoError(t, err)
	assert.Equal(t, "Notes", got.Title)
	assert.Equal(t, int64(0), got.Version)

	require.NoError(t, s.SaveContent("d1", `{"type":"doc","content":[]}`, 1))
	got, err = s.Get("d1")
	require.NoError(t, err)
	assert.Equal(t, int64(1), got.Version)
	assert.Equal(t, `{"type":"doc","content":[]}`, got.Content)

	require.NoError(t, s.Rename("d1", "Renamed"))
	list, err := s.List()
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, "Renamed", list[0].Title)

	require.NoError(t, s.Delete("d1"))
	_, err = s.Get("d1")
	assert.ErrorIs(t, err, ErrDocumentNotFound)
}

func TestDocumentStoreRejectsStaleVersion(t *testing.T) {
	s := newStore(t)
	require.NoError(t, s.Create(&Document{ID: "d1", Content: "a"}))
	require.NoError(t, s.SaveContent("d1", "b", 3))

	err := s.SaveContent("d1", "stale", 2)
	assert.ErrorIs(t, err, ErrVersionConflict)

	got, err := s.Get("d1")
	require.NoError(t, err)
	assert.Equal(t, "b", got.Content)
}

func TestDocumentStoreMissing(t *testing.T) {
	s := newStore(t)
	assert.ErrorIs(t, s.SaveContent("nope", "x", 1), ErrDocumentNotFound)
	assert.ErrorIs(t, s.Rename("nope", "x"), ErrDocumentNotFound)
	assert.ErrorIs(t, s.Delete("nope"), ErrDocumentNotFound)
}
