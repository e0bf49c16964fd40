package jobstore

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/Nexora-Open-Source/blog-generator-backend/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newJob(id string) types.JobStatus {
	now := time.Now()
	return types.JobStatus{
		JobID:     id,
		Keyword:   "observability tooling",
		Status:    types.StatusProcessing,
		Progress:  "Initializing",
		CreatedAt: now,
		UpdatedAt: now,
	}
}

func TestMemoryStorePutGet(t *testing.T) {
	store := NewMemoryStore(0, nil)
	defer store.Close()

	store.Put(newJob("a"))

	got, ok := store.Get("a")
	require.True(t, ok)
	assert.Equal(t, types.StatusProcessing, got.Status)
	assert.Equal(t, "Initializing", got.Progress)

	_, ok = store.Get("missing")
	assert.False(t, ok)
}

func TestMemoryStoreGetReturnsCopy(t *testing.T) {
	store := NewMemoryStore(0, nil)
	defer store.Close()
	store.Put(newJob("a"))

	got, _ := store.Get("a")
	got.Progress = "mutated"

	again, _ := store.Get("a")
	assert.Equal(t, "Initializing", again.Progress)
}

func TestMemoryStoreTerminalRecordsAreFrozen(t *testing.T) {
	store := NewMemoryStore(0, nil)
	defer store.Close()
	store.Put(newJob("a"))

	ok := store.Update("a", func(s *types.JobStatus) {
		s.Status = types.StatusCompleted
		s.Result = "article"
	})
	require.True(t, ok)

	ok = store.Update("a", func(s *types.JobStatus) {
		s.Status = types.StatusFailed
		s.Error = "late failure"
	})
	assert.False(t, ok)

	got, _ := store.Get("a")
	assert.Equal(t, types.StatusCompleted, got.Status)
	assert.Equal(t, "article", got.Result)
	assert.Empty(t, got.Error)
}

func TestMemoryStoreUpdateUnknownJob(t *testing.T) {
	store := NewMemoryStore(0, nil)
	defer store.Close()

	called := false
	assert.False(t, store.Update("nope", func(*types.JobStatus) { called = true }))
	assert.False(t, called)
}

func TestMemoryStoreConcurrentAccess(t *testing.T) {
	store := NewMemoryStore(0, nil)
	defer store.Close()

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			id := fmt.Sprintf("job-%d", i)
			store.Put(newJob(id))
			for step := 0; step < 50; step++ {
				label := fmt.Sprintf("stage-%d", step)
				store.Update(id, func(s *types.JobStatus) {
					s.Progress = label
					s.Keyword = label
				})
				snapshot, ok := store.Get(id)
				if assert.True(t, ok) {
					// Both fields are written in one update.
					assert.Equal(t, snapshot.Progress, snapshot.Keyword)
				}
			}
		}(i)
	}
	wg.Wait()

	assert.Equal(t, 20, store.Len())
}

func TestMemoryStoreCleanup(t *testing.T) {
	store := NewMemoryStore(0, nil)
	defer store.Close()
	store.retention = time.Hour

	now := time.Now()
	old := now.Add(-2 * time.Hour)
	recent := now.Add(-time.Minute)

	expired := newJob("expired")
	expired.Status = types.StatusCompleted
	expired.CompletedAt = &old
	store.Put(expired)

	fresh := newJob("fresh")
	fresh.Status = types.StatusFailed
	fresh.CompletedAt = &recent
	store.Put(fresh)

	running := newJob("running")
	running.CreatedAt = old
	store.Put(running)

	assert.Equal(t, 1, store.cleanup())

	_, ok := store.Get("expired")
	assert.False(t, ok)
	_, ok = store.Get("fresh")
	assert.True(t, ok)
	_, ok = store.Get("running")
	assert.True(t, ok)
}
