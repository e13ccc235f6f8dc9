// Package pipeline orchestrates the narration pipeline: scene detection,
// clip extraction, vision analysis, transcript compilation, and speech
// synthesis, with job state persisted after every transition.
package pipeline

import (
	"context"

	"github.com/fpang/video-narrator/internal/analysis"
	"github.com/fpang/video-narrator/internal/compilation"
	"github.com/fpang/video-narrator/internal/extraction"
	"github.com/fpang/video-narrator/internal/segmentation"
	"github.com/fpang/video-narrator/internal/synthesis"
	"github.com/fpang/video-narrator/internal/workspace"
)

// The orchestrator depends on stage behavior, not stage construction; each
// engine satisfies its interface directly, and tests substitute fakes.

// Segmenter detects scene boundaries in the source video.
type Segmenter interface {
	RunToCompletion(ctx context.Context, videoLocation string, onProgress func(attempt int)) ([]segmentation.Segment, error)
}

// Extractor cuts detected segments into local clip files.
type Extractor interface {
	ExtractAll(ctx context.Context, videoLocation string, segments []segmentation.Segment, ws *workspace.Workspace) ([]extraction.ExtractedClip, []extraction.ClipError, error)
}

// Analyzer produces structured scene descriptions for clips.
type Analyzer interface {
	AnalyzeAll(ctx context.Context, clips []extraction.ExtractedClip) ([]analysis.SegmentAnalysis, []analysis.AnalysisError, error)
}

// Synthesizer turns transcript text into narration audio.
type Synthesizer interface {
	SynthesizeText(ctx context.Context, text, voiceID string) (*synthesis.AudioOutput, error)
}

// SourceFetcher downloads the source object to a local path. The image
// pipeline variant uses it to pull the still before analysis.
type SourceFetcher interface {
	Fetch(ctx context.Context, location, localPath string) error
}

// ArtifactStore persists and retrieves job results.
type ArtifactStore interface {
	SaveTranscript(ctx context.Context, jobID string, t *compilation.Transcript) (key string, err error)
	SaveAudio(ctx context.Context, jobID string, out *synthesis.AudioOutput) (key string, err error)
	LoadTranscript(ctx context.Context, key string) (*compilation.Transcript, error)
	LoadAudio(ctx context.Context, key string) ([]byte, error)
}

// JobResult bundles the artifacts of a completed job.
type JobResult struct {
	JobID      string                  `json:"jobId"`
	Transcript *compilation.Transcript `json:"transcript"`
	Audio      []byte                  `json:"-"`
	AudioKey   string                  `json:"audioKey"`
}
