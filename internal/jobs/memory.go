package jobs

import (
	"context"
	"sync"
	"time"
)

// MemoryStore is an in-process Store used by tests and the single-machine
// CLI. Records are copied on read and write so callers can't mutate shared
// state through a returned pointer.
type MemoryStore struct {
	mu   sync.RWMutex
	jobs map[string]Job
}

var _ Store = (*MemoryStore)(nil)

// NewMemoryStore creates an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{jobs: make(map[string]Job)}
}

func (s *MemoryStore) Put(_ context.Context, job *Job) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.jobs[job.ID] = *job
	return nil
}

func (s *MemoryStore) Get(_ context.Context, jobID string) (*Job, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	job, ok := s.jobs[jobID]
	if !ok {
		return nil, nil
	}
	return &job, nil
}

func (s *MemoryStore) Merge(_ context.Context, jobID string, patch Patch) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	job, ok := s.jobs[jobID]
	if !ok {
		// Merge on a missing record is a no-op, matching the DynamoDB
		// implementation's upsert-free condition.
		return nil
	}
	applyPatch(&job, patch)
	job.UpdatedAt = time.Now().Unix()
	s.jobs[jobID] = job
	return nil
}

// applyPatch copies the set fields of patch onto job.
func applyPatch(job *Job, patch Patch) {
	if patch.Status != nil {
		job.Status = *patch.Status
	}
	if patch.Step != nil {
		job.Step = *patch.Step
	}
	if patch.Progress != nil {
		job.Progress = *patch.Progress
	}
	if patch.Message != nil {
		job.Message = *patch.Message
	}
	if patch.ErrorCode != nil {
		job.ErrorCode = *patch.ErrorCode
	}
	if patch.ErrorMessage != nil {
		job.ErrorMessage = *patch.ErrorMessage
	}
	if patch.TranscriptKey != nil {
		job.TranscriptKey = *patch.TranscriptKey
	}
	if patch.NarrativeKey != nil {
		job.NarrativeKey = *patch.NarrativeKey
	}
	if patch.AudioKey != nil {
		job.AudioKey = *patch.AudioKey
	}
}
