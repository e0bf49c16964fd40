/*
Package jobstore provides the job table used by the job coordinator.

The table is an in-memory map guarded by a read/write mutex. Every mutation is
applied as a single critical section, so readers always observe a complete
snapshot of a job and never a mix of fields from two updates. Records of jobs
that reached a terminal state are frozen.
*/
package jobstore

import (
	"sync"
	"time"

	"github.com/Nexora-Open-Source/blog-generator-backend/types"
	"github.com/sirupsen/logrus"
)

// Store defines the operations the coordinator needs from a job table.
type Store interface {
	// Put inserts or overwrites the record for status.JobID.
	Put(status types.JobStatus)
	// Get returns a copy of the record.
	Get(jobID string) (types.JobStatus, bool)
	// Update applies fn to the record atomically. It returns false when the
	// job is unknown or already terminal, in which case fn is not called.
	Update(jobID string, fn func(*types.JobStatus)) bool
	// Delete removes the record.
	Delete(jobID string)
}

// MemoryStore implements Store with an in-memory map
type MemoryStore struct {
	jobs  map[string]*types.JobStatus
	mutex sync.RWMutex
	now   func() time.Time

	retention time.Duration
	logger    *logrus.Logger
	stop      chan struct{}
	stopOnce  sync.Once
}

var _ Store = (*MemoryStore)(nil)

// NewMemoryStore creates an empty job table. A positive retention starts a
// sweeper that drops terminal jobs older than retention; zero keeps every job
// for the life of the process.
func NewMemoryStore(retention time.Duration, logger *logrus.Logger) *MemoryStore {
	store := &MemoryStore{
		jobs:      make(map[string]*types.JobStatus),
		now:       time.Now,
		retention: retention,
		logger:    logger,
		stop:      make(chan struct{}),
	}

	if retention > 0 {
		go store.startCleanup()
	}

	return store
}

// Put stores a copy of status
func (s *MemoryStore) Put(status types.JobStatus) {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	record := status
	s.jobs[status.JobID] = &record
}

// Get retrieves a snapshot of a job
func (s *MemoryStore) Get(jobID string) (types.JobStatus, bool) {
	s.mutex.RLock()
	defer s.mutex.RUnlock()

	record, exists := s.jobs[jobID]
	if !exists {
		return types.JobStatus{}, false
	}
	return copyStatus(record), true
}

// Update mutates a non-terminal job in place
func (s *MemoryStore) Update(jobID string, fn func(*types.JobStatus)) bool {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	record, exists := s.jobs[jobID]
	if !exists || record.IsTerminal() {
		return false
	}

	fn(record)
	record.UpdatedAt = s.now()
	return true
}

// Delete removes a job
func (s *MemoryStore) Delete(jobID string) {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	delete(s.jobs, jobID)
}

// Len returns the number of jobs held
func (s *MemoryStore) Len() int {
	s.mutex.RLock()
	defer s.mutex.RUnlock()

	return len(s.jobs)
}

// Close stops the retention sweeper
func (s *MemoryStore) Close() {
	s.stopOnce.Do(func() { close(s.stop) })
}

// startCleanup periodically removes expired jobs
func (s *MemoryStore) startCleanup() {
	interval := s.retention / 4
	if interval < time.Minute {
		interval = time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			s.cleanup()
		case <-s.stop:
			return
		}
	}
}

// cleanup removes terminal jobs that completed before the retention cutoff
func (s *MemoryStore) cleanup() int {
	s.mutex.Lock()
	cutoff := s.now().Add(-s.retention)
	removed := 0
	for jobID, record := range s.jobs {
		if record.IsTerminal() && record.CompletedAt != nil && record.CompletedAt.Before(cutoff) {
			delete(s.jobs, jobID)
			removed++
		}
	}
	s.mutex.Unlock()

	if removed > 0 && s.logger != nil {
		s.logger.WithField("removed_count", removed).Info("Cleaned up expired job statuses")
	}
	return removed
}

func copyStatus(record *types.JobStatus) types.JobStatus {
	snapshot := *record
	if record.CompletedAt != nil {
		completedAt := *record.CompletedAt
		snapshot.CompletedAt = &completedAt
	}
	return snapshot
}
