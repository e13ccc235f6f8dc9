// Package jobs defines the narration job record and its persistence
// interface. The orchestrator is the only writer; status-check callers and
// the result endpoint only read. A job moves monotonically through its steps
// and terminates in completed or failed; a terminal job is never resurrected.
package jobs

import (
	"crypto/rand"
	"encoding/hex"
	"time"

	"github.com/rs/zerolog/log"
)

// Status is the coarse job lifecycle state.
type Status string

const (
	StatusPending    Status = "pending"
	StatusProcessing Status = "processing"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
)

// Terminal reports whether the status is an absorbing state.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// Step is the pipeline stage a processing job is currently in.
type Step string

const (
	StepPending      Step = "pending"
	StepSegmenting   Step = "segmenting"
	StepExtracting   Step = "extracting"
	StepAnalyzing    Step = "analyzing"
	StepCompiling    Step = "compiling"
	StepSynthesizing Step = "synthesizing"
	StepCompleted    Step = "completed"
)

// Options are the caller-supplied knobs for one job.
type Options struct {
	// VoiceID selects the synthesis voice. Empty means the configured default.
	VoiceID string `json:"voiceId,omitempty" dynamodbav:"voiceId,omitempty"`
	// Pipeline selects the processing variant: "video" (full pipeline) or
	// "image" (single still, no segmentation/extraction).
	Pipeline string `json:"pipeline,omitempty" dynamodbav:"pipeline,omitempty"`
}

// Job is the persisted narration job record.
type Job struct {
	ID             string  `json:"id" dynamodbav:"-"`
	Status         Status  `json:"status" dynamodbav:"status"`
	Step           Step    `json:"step" dynamodbav:"step"`
	Progress       int     `json:"progress" dynamodbav:"progress"`
	Message        string  `json:"message,omitempty" dynamodbav:"message,omitempty"`
	SourceLocation string  `json:"sourceLocation" dynamodbav:"sourceLocation"`
	Options        Options `json:"options" dynamodbav:"options"`
	CreatedAt      int64   `json:"createdAt" dynamodbav:"createdAt"`
	UpdatedAt      int64   `json:"updatedAt" dynamodbav:"updatedAt"`

	// Failure cause, set only when Status is failed.
	ErrorCode    string `json:"errorCode,omitempty" dynamodbav:"errorCode,omitempty"`
	ErrorMessage string `json:"errorMessage,omitempty" dynamodbav:"errorMessage,omitempty"`

	// Result artifact keys, set only when Status is completed.
	TranscriptKey string `json:"transcriptKey,omitempty" dynamodbav:"transcriptKey,omitempty"`
	NarrativeKey  string `json:"narrativeKey,omitempty" dynamodbav:"narrativeKey,omitempty"`
	AudioKey      string `json:"audioKey,omitempty" dynamodbav:"audioKey,omitempty"`
}

// NewJob creates a pending job record for the given source.
func NewJob(sourceLocation string, opts Options) *Job {
	now := time.Now().Unix()
	return &Job{
		ID:             GenerateID("nar-"),
		Status:         StatusPending,
		Step:           StepPending,
		Progress:       0,
		SourceLocation: sourceLocation,
		Options:        opts,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
}

// GenerateID creates a new cryptographically random job ID with the given
// prefix. The prefix should include a trailing dash, e.g. "nar-".
func GenerateID(prefix string) string {
	b := make([]byte, 16)
	if _, err := rand.Read(b); err != nil {
		log.Fatal().Err(err).Msgf("Failed to generate random %s job ID", prefix)
	}
	return prefix + hex.EncodeToString(b)
}
