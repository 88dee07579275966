package db

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRunStoreLifecycle(t *testing.T) {
	gdb, err := Open(filepath.Join(t.TempDir(), "runs.db"))
	require.NoError(t, err)
	t.Cleanup(func() {
		if sqlDB, err := gdb.DB(); err == nil {
			sqlDB.Close()
		}
	})
	s := NewRunStore(gdb)

	older := time.Now().Add(-time.Minute)
	require.NoError(t, s.Start(&StreamRun{ID: "r1", ThreadID: "t1", Provider: "openai", Model: "gpt-4o", StartedAt: older}))
	require.NoError(t, s.Start(&StreamRun{ID: "r2", ThreadID: "t1", Provider: "openai", Model: "gpt-4o"}))
	require.NoError(t, s.Start(&StreamRun{ID: "r3", ThreadID: "t2"}))

	usage := &TokenUsage{PromptTokens: 3, CompletionTokens: 5, TotalTokens: 8}
	require.NoError(t, s.Finish("r1", RunCompleted, "stop", "", 4, usage))

	got, err := s.Get("r1")
	require.NoError(t, err)
	assert.Equal(t, RunCompleted, got.Status)
	assert.Equal(t, 4, got.Segments)
	require.NotNil(t, got.Usage)
	assert.Equal(t, 8, got.Usage.TotalTokens)
	assert.NotNil(t, got.EndedAt)

	runs, err := s.ListByThread("t1", 0)
	require.NoError(t, err)
	require.Len(t, runs, 2)
	assert.Equal(t, "r2", runs[0].ID)
	assert.Equal(t, RunStreaming, runs[0].Status)

	assert.ErrorIs(t, s.Finish("missing", RunError, "", "boom", 0, nil), ErrRunNotFound)
	_, err = s.Get("missing")
	assert.ErrorIs(t, err, ErrRunNotFound)
}
