package pipeline

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/fpang/video-narrator/internal/analysis"
	"github.com/fpang/video-narrator/internal/compilation"
	"github.com/fpang/video-narrator/internal/extraction"
	"github.com/fpang/video-narrator/internal/faults"
	"github.com/fpang/video-narrator/internal/jobs"
	"github.com/fpang/video-narrator/internal/metrics"
	"github.com/fpang/video-narrator/internal/s3util"
	"github.com/fpang/video-narrator/internal/workspace"
)

// PipelineVideo is the full five-stage pipeline; PipelineImage narrates a
// single still and skips detection and extraction.
const (
	PipelineVideo = "video"
	PipelineImage = "image"
)

// Progress checkpoints per stage. Within segmentation the poll loop nudges
// progress toward the stage ceiling so long detections still show movement.
const (
	progressSegmenting   = 5
	progressExtracting   = 25
	progressAnalyzing    = 45
	progressCompiling    = 70
	progressSynthesizing = 80
	progressDone         = 100
)

// Orchestrator runs narration jobs. Submission is asynchronous: SubmitJob
// validates, persists the pending record, and returns; the stages run on a
// detached context so the submitting caller's cancellation does not kill the
// job. Cancel aborts one running job explicitly.
type Orchestrator struct {
	store       jobs.Store
	artifacts   ArtifactStore
	segmenter   Segmenter
	extractor   Extractor
	analyzer    Analyzer
	synthesizer Synthesizer
	fetcher     SourceFetcher
	workDir     string

	mu      sync.Mutex
	running map[string]context.CancelFunc
}

// Deps carries the orchestrator's collaborators.
type Deps struct {
	Store       jobs.Store
	Artifacts   ArtifactStore
	Segmenter   Segmenter
	Extractor   Extractor
	Analyzer    Analyzer
	Synthesizer Synthesizer
	Fetcher     SourceFetcher
	// WorkDir is the base directory for per-job workspaces.
	WorkDir string
}

func NewOrchestrator(d Deps) *Orchestrator {
	return &Orchestrator{
		store:       d.Store,
		artifacts:   d.Artifacts,
		segmenter:   d.Segmenter,
		extractor:   d.Extractor,
		analyzer:    d.Analyzer,
		synthesizer: d.Synthesizer,
		fetcher:     d.Fetcher,
		workDir:     d.WorkDir,
		running:     make(map[string]context.CancelFunc),
	}
}

// SubmitJob validates the source location, persists a pending job, and
// starts processing in the background. It returns the job ID immediately.
func (o *Orchestrator) SubmitJob(ctx context.Context, videoLocation string, opts jobs.Options) (string, error) {
	if _, err := s3util.ParseLocation(videoLocation); err != nil {
		return "", err
	}
	if opts.Pipeline == "" {
		opts.Pipeline = PipelineVideo
	}
	if opts.Pipeline != PipelineVideo && opts.Pipeline != PipelineImage {
		return "", faults.New(faults.CodeValidation, "unknown pipeline variant %q", opts.Pipeline)
	}

	job := jobs.NewJob(videoLocation, opts)
	if err := o.store.Put(ctx, job); err != nil {
		return "", faults.Transient(err, "persist job %s", job.ID)
	}

	// The job must outlive the submitting request.
	runCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	o.mu.Lock()
	o.running[job.ID] = cancel
	o.mu.Unlock()

	go o.run(runCtx, job)

	log.Info().Str("jobId", job.ID).Str("location", videoLocation).Str("pipeline", opts.Pipeline).Msg("Job submitted")
	return job.ID, nil
}

// Cancel aborts a running job. Canceling a job that is not running (already
// terminal, or unknown) is an error.
func (o *Orchestrator) Cancel(jobID string) error {
	o.mu.Lock()
	cancel, ok := o.running[jobID]
	o.mu.Unlock()
	if !ok {
		return faults.New(faults.CodeJobNotFound, "job %s is not running", jobID)
	}
	cancel()
	return nil
}

// GetJobStatus returns the current job record.
func (o *Orchestrator) GetJobStatus(ctx context.Context, jobID string) (*jobs.Job, error) {
	job, err := o.store.Get(ctx, jobID)
	if err != nil {
		return nil, faults.Transient(err, "load job %s", jobID)
	}
	if job == nil {
		return nil, faults.New(faults.CodeJobNotFound, "job %s not found", jobID)
	}
	return job, nil
}

// GetResult loads the artifacts of a completed job.
func (o *Orchestrator) GetResult(ctx context.Context, jobID string) (*JobResult, error) {
	job, err := o.GetJobStatus(ctx, jobID)
	if err != nil {
		return nil, err
	}
	if job.Status != jobs.StatusCompleted {
		return nil, faults.New(faults.CodeJobNotCompleted,
			"job %s is %s (step %s), results are available once it completes", jobID, job.Status, job.Step)
	}

	transcript, err := o.artifacts.LoadTranscript(ctx, job.TranscriptKey)
	if err != nil {
		return nil, faults.Transient(err, "load transcript for job %s", jobID)
	}
	audio, err := o.artifacts.LoadAudio(ctx, job.AudioKey)
	if err != nil {
		return nil, faults.Transient(err, "load audio for job %s", jobID)
	}

	return &JobResult{
		JobID:      jobID,
		Transcript: transcript,
		Audio:      audio,
		AudioKey:   job.AudioKey,
	}, nil
}

// run executes the pipeline stages for one job. All failure paths converge
// on fail(), which records the fault code and message on the job.
func (o *Orchestrator) run(ctx context.Context, job *jobs.Job) {
	defer func() {
		o.mu.Lock()
		delete(o.running, job.ID)
		o.mu.Unlock()
	}()

	runID := uuid.NewString()
	rec := metrics.ForStage("pipeline", job.ID)
	rec.Property("runId", runID)
	defer rec.Flush()

	logger := log.With().Str("jobId", job.ID).Str("runId", runID).Logger()
	logger.Info().Str("pipeline", job.Options.Pipeline).Msg("pipeline run starting")

	ws, err := workspace.New(o.workDir, job.ID)
	if err != nil {
		o.fail(ctx, job.ID, faults.Wrap(faults.CodeInternal, err, "create job workspace"))
		rec.Count("JobsFailed")
		return
	}
	defer ws.Cleanup()

	analyses, err := o.runAnalysisStages(ctx, job, ws)
	if err != nil {
		o.fail(ctx, job.ID, err)
		rec.Count("JobsFailed")
		return
	}

	// Compile.
	o.advance(ctx, job.ID, jobs.StepCompiling, progressCompiling)
	transcript, err := compilation.Compile(analyses)
	if err != nil {
		o.fail(ctx, job.ID, err)
		rec.Count("JobsFailed")
		return
	}
	transcriptKey, err := o.artifacts.SaveTranscript(ctx, job.ID, transcript)
	if err != nil {
		o.fail(ctx, job.ID, faults.Transient(err, "save transcript"))
		rec.Count("JobsFailed")
		return
	}
	o.merge(ctx, job.ID, jobs.Patch{TranscriptKey: jobs.StrPtr(transcriptKey)})

	// Synthesize.
	o.advance(ctx, job.ID, jobs.StepSynthesizing, progressSynthesizing)
	audio, err := o.synthesizer.SynthesizeText(ctx, transcript.CleanText, job.Options.VoiceID)
	if err != nil {
		o.fail(ctx, job.ID, err)
		rec.Count("JobsFailed")
		return
	}
	audioKey, err := o.artifacts.SaveAudio(ctx, job.ID, audio)
	if err != nil {
		o.fail(ctx, job.ID, faults.Transient(err, "save narration audio"))
		rec.Count("JobsFailed")
		return
	}

	o.merge(ctx, job.ID, jobs.Patch{
		Status:   jobs.StatusPtr(jobs.StatusCompleted),
		Step:     jobs.StepPtr(jobs.StepCompleted),
		Progress: jobs.IntPtr(progressDone),
		AudioKey: jobs.StrPtr(audioKey),
		Message:  jobs.StrPtr(fmt.Sprintf("narrated %d scenes", transcript.Metadata.TotalScenes)),
	})

	rec.Count("JobsCompleted")
	rec.Metric("SceneCount", float64(transcript.Metadata.TotalScenes), metrics.UnitCount)
	rec.Metric("AudioBytes", float64(len(audio.AudioBuffer)), metrics.UnitBytes)
	rec.Elapsed("JobDuration")

	log.Info().
		Str("jobId", job.ID).
		Int("scenes", transcript.Metadata.TotalScenes).
		Int("audioBytes", len(audio.AudioBuffer)).
		Msg("Job completed")
}

// runAnalysisStages produces the scene analyses: segmentation, extraction,
// and analysis for the video pipeline; a single fetch and analysis for the
// image pipeline.
func (o *Orchestrator) runAnalysisStages(ctx context.Context, job *jobs.Job, ws *workspace.Workspace) ([]analysis.SegmentAnalysis, error) {
	if job.Options.Pipeline == PipelineImage {
		return o.runImageAnalysis(ctx, job, ws)
	}

	// Detect scenes.
	o.advance(ctx, job.ID, jobs.StepSegmenting, progressSegmenting)
	segments, err := o.segmenter.RunToCompletion(ctx, job.SourceLocation, func(attempt int) {
		p := progressSegmenting + attempt*2
		if p >= progressExtracting {
			p = progressExtracting - 1
		}
		o.merge(ctx, job.ID, jobs.Patch{Progress: jobs.IntPtr(p)})
	})
	if err != nil {
		return nil, err
	}
	if len(segments) == 0 {
		return nil, faults.New(faults.CodeStageExhausted, "scene detection found no segments")
	}

	// Extract clips.
	o.advance(ctx, job.ID, jobs.StepExtracting, progressExtracting)
	clips, clipErrs, err := o.extractor.ExtractAll(ctx, job.SourceLocation, segments, ws)
	if err != nil {
		return nil, err
	}
	if len(clips) == 0 {
		return nil, faults.New(faults.CodeStageExhausted,
			"all %d segment extractions failed", len(clipErrs))
	}
	if len(clipErrs) > 0 {
		o.merge(ctx, job.ID, jobs.Patch{Message: jobs.StrPtr(
			fmt.Sprintf("%d of %d segments could not be extracted", len(clipErrs), len(segments)))})
	}

	// Analyze.
	o.advance(ctx, job.ID, jobs.StepAnalyzing, progressAnalyzing)
	analyses, analysisErrs, err := o.analyzer.AnalyzeAll(ctx, clips)
	if err != nil {
		return nil, err
	}
	if len(analyses) == 0 {
		return nil, faults.New(faults.CodeStageExhausted,
			"all %d clip analyses failed", len(analysisErrs))
	}
	if len(analysisErrs) > 0 {
		o.merge(ctx, job.ID, jobs.Patch{Message: jobs.StrPtr(
			fmt.Sprintf("%d of %d clips could not be analyzed", len(analysisErrs), len(clips)))})
	}
	return analyses, nil
}

func (o *Orchestrator) runImageAnalysis(ctx context.Context, job *jobs.Job, ws *workspace.Workspace) ([]analysis.SegmentAnalysis, error) {
	o.advance(ctx, job.ID, jobs.StepAnalyzing, progressAnalyzing)

	ext := strings.ToLower(filepath.Ext(job.SourceLocation))
	if ext == "" {
		ext = ".jpg"
	}
	localPath := ws.Path("source" + ext)
	if err := o.fetcher.Fetch(ctx, job.SourceLocation, localPath); err != nil {
		return nil, faults.Transient(err, "download source image %s", job.SourceLocation)
	}

	still := extraction.ExtractedClip{SegmentID: "img-000", LocalPath: localPath}
	analyses, analysisErrs, err := o.analyzer.AnalyzeAll(ctx, []extraction.ExtractedClip{still})
	if err != nil {
		return nil, err
	}
	if len(analyses) == 0 {
		msg := "image analysis failed"
		if len(analysisErrs) > 0 {
			msg = analysisErrs[0].Message
		}
		return nil, faults.New(faults.CodeStageExhausted, "%s", msg)
	}
	return analyses, nil
}

func (o *Orchestrator) advance(ctx context.Context, jobID string, step jobs.Step, progress int) {
	o.merge(ctx, jobID, jobs.Patch{
		Status:   jobs.StatusPtr(jobs.StatusProcessing),
		Step:     jobs.StepPtr(step),
		Progress: jobs.IntPtr(progress),
	})
}

// fail records the failure on the job. Cancellation surfaces as its own
// code so a status check can tell an aborted job from a broken one.
func (o *Orchestrator) fail(ctx context.Context, jobID string, err error) {
	code := string(faults.CodeOf(err))
	if faults.Is(err, faults.CodeCancelled) || faults.Is(err, faults.CodePollingCancelled) ||
		errors.Is(err, context.Canceled) {
		code = string(faults.CodeCancelled)
	}

	// The run context is already dead on the cancellation path; the failure
	// record must still be written.
	log.Error().Err(err).Str("jobId", jobID).Str("code", code).Msg("Job failed")
	o.merge(context.WithoutCancel(ctx), jobID, jobs.Patch{
		Status:       jobs.StatusPtr(jobs.StatusFailed),
		ErrorCode:    jobs.StrPtr(code),
		ErrorMessage: jobs.StrPtr(err.Error()),
	})
}

// merge applies a job patch, logging rather than failing on store errors:
// a status-write hiccup must not kill an otherwise healthy pipeline run.
func (o *Orchestrator) merge(ctx context.Context, jobID string, patch jobs.Patch) {
	if err := o.store.Merge(ctx, jobID, patch); err != nil {
		log.Warn().Err(err).Str("jobId", jobID).Msg("Failed to update job record")
	}
}
