package jobs

import (
	"context"
)

// Patch is a partial job update. Nil fields are left untouched; Merge
// applies only what is set so concurrent readers never observe a
// half-written record.
type Patch struct {
	Status        *Status
	Step          *Step
	Progress      *int
	Message       *string
	ErrorCode     *string
	ErrorMessage  *string
	TranscriptKey *string
	NarrativeKey  *string
	AudioKey      *string
}

// Store is the job persistence interface. Each method is safe for concurrent
// use. Get returns (nil, nil) when the job does not exist; Put performs a
// full-record upsert; Merge applies a partial update and stamps UpdatedAt.
//
// The core never assumes process-local single-instance state: any
// implementation with these semantics (DynamoDB, another KV store, or the
// in-memory store used by tests and the CLI) can back the orchestrator.
type Store interface {
	Put(ctx context.Context, job *Job) error
	Get(ctx context.Context, jobID string) (*Job, error)
	Merge(ctx context.Context, jobID string, patch Patch) error
}

// Helper constructors for Patch fields.

func StatusPtr(s Status) *Status { return &s }
func StepPtr(s Step) *Step       { return &s }
func IntPtr(i int) *int          { return &i }
func StrPtr(s string) *string    { return &s }
