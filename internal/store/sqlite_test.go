package store

import (
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newStore(t *testing.T) *Store {
	t.Helper()
	s, err := New(filepath.Join(t.TempDir(), "nested", "runs.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestRunLifecycle(t *testing.T) {
	s := newStore(t)

	run, err := s.BeginRun("2024-05-01T10:00:00Z")
	require.NoError(t, err)
	assert.Equal(t, StatusRunning, run.Status)

	got, err := s.GetRun(run.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusRunning, got.Status)
	assert.Nil(t, got.FinishedAt)
	assert.Equal(t, "2024-05-01T10:00:00Z", got.LastFetch)

	counters := Counters{Uploaded: 3, Reused: 7, Failed: 1, Pruned: 2, LayoutHits: 4, NarrativeMisses: 1, Fallbacks: 1}
	require.NoError(t, s.FinishRun(run.ID, StatusOK, counters, nil))

	got, err = s.GetRun(run.ID[:8])
	require.NoError(t, err)
	assert.Equal(t, StatusOK, got.Status)
	require.NotNil(t, got.FinishedAt)
	assert.Equal(t, counters, got.Counters)
	assert.Empty(t, got.Error)
}

func TestFinishRunRecordsError(t *testing.T) {
	s := newStore(t)
	run, err := s.BeginRun("")
	require.NoError(t, err)

	require.NoError(t, s.FinishRun(run.ID, StatusAborted, Counters{}, errors.New("refusing to delete 11 orphaned assets")))

	got, err := s.GetRun(run.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusAborted, got.Status)
	assert.Equal(t, "refusing to delete 11 orphaned assets", got.Error)
}

func TestFinishUnknownRun(t *testing.T) {
	s := newStore(t)
	assert.ErrorIs(t, s.FinishRun("missing", StatusOK, Counters{}, nil), ErrNotFound)
}

func TestListRunsNewestFirst(t *testing.T) {
	s := newStore(t)
	var ids []string
	for i := 0; i < 3; i++ {
		run, err := s.BeginRun("")
		require.NoError(t, err)
		ids = append(ids, run.ID)
		time.Sleep(5 * time.Millisecond)
	}

	runs, err := s.ListRuns(2)
	require.NoError(t, err)
	require.Len(t, runs, 2)
	assert.Equal(t, ids[2], runs[0].ID)
	assert.Equal(t, ids[1], runs[1].ID)
}

func TestGetRunNotFound(t *testing.T) {
	s := newStore(t)
	_, err := s.GetRun("nope")
	assert.ErrorIs(t, err, ErrNotFound)
	_, err = s.GetRun("")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestGetRunAmbiguousPrefix(t *testing.T) {
	s := newStore(t)
	for _, id := range []string{"abc123-one", "abc456-two"} {
		_, err := s.db.Exec("INSERT INTO runs (id, started_at) VALUES (?, ?)", id, time.Now().UTC())
		require.NoError(t, err)
	}

	_, err := s.GetRun("abc")
	assert.ErrorIs(t, err, ErrAmbiguous)

	got, err := s.GetRun("abc4")
	require.NoError(t, err)
	assert.Equal(t, "abc456-two", got.ID)
}
