package segmentation

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/fpang/video-narrator/internal/faults"
	"github.com/fpang/video-narrator/internal/poller"
	"github.com/fpang/video-narrator/internal/s3util"
)

// Config holds the segmentation engine settings.
type Config struct {
	// MinConfidence drops detections below this percentage. Default 80.
	MinConfidence float64
	// MergeGap merges same-type segments separated by at most this many
	// seconds. Default 1.0.
	MergeGap float64
	// PollInterval is the sleep between detection status polls. Default 3s.
	PollInterval time.Duration
	// Timeout bounds RunToCompletion. Default 10m.
	Timeout time.Duration
}

func (c Config) withDefaults() Config {
	if c.MinConfidence <= 0 {
		c.MinConfidence = 80
	}
	if c.MergeGap <= 0 {
		c.MergeGap = 1.0
	}
	if c.PollInterval <= 0 {
		c.PollInterval = 3 * time.Second
	}
	if c.Timeout <= 0 {
		c.Timeout = 10 * time.Minute
	}
	return c
}

// DetectionResult is the outcome of one PollDetection call.
type DetectionResult struct {
	Status   DetectionStatus
	Segments []Segment
}

// Engine runs scene detection through an asynchronous SceneDetector.
type Engine struct {
	detector SceneDetector
	poller   *poller.Poller
	cfg      Config
}

// NewEngine creates a segmentation engine.
func NewEngine(detector SceneDetector, p *poller.Poller, cfg Config) *Engine {
	return &Engine{detector: detector, poller: p, cfg: cfg.withDefaults()}
}

// StartDetection validates the video location and submits it to the
// scene-detection service, returning the service's job id.
func (e *Engine) StartDetection(ctx context.Context, videoLocation string) (string, error) {
	loc, err := s3util.ParseLocation(videoLocation)
	if err != nil {
		return "", err
	}

	detectionJobID, err := e.detector.Submit(ctx, loc.Bucket, loc.Key)
	if err != nil {
		return "", faults.Transient(err, "submit scene detection for %s", videoLocation)
	}

	log.Info().
		Str("location", videoLocation).
		Str("detectionJobId", detectionJobID).
		Msg("Scene detection submitted")
	return detectionJobID, nil
}

// PollDetection fetches the current state of a detection job, following
// pagination until no continuation token remains. While the service is
// still working it returns an in-progress result with no segments; a
// service-side failure is DetectionFailed.
func (e *Engine) PollDetection(ctx context.Context, detectionJobID string) (*DetectionResult, error) {
	var raw []RawDetection
	nextToken := ""

	for {
		page, err := e.detector.Poll(ctx, detectionJobID, nextToken)
		if err != nil {
			return nil, faults.Transient(err, "poll scene detection job %s", detectionJobID)
		}

		switch page.Status {
		case DetectionFailed:
			return nil, faults.New(faults.CodeDetectionFailed,
				"scene detection job %s failed: %s", detectionJobID, page.StatusMessage)
		case DetectionInProgress:
			return &DetectionResult{Status: DetectionInProgress}, nil
		}

		raw = append(raw, page.Detections...)
		if page.NextToken == "" {
			break
		}
		nextToken = page.NextToken
	}

	return &DetectionResult{
		Status:   DetectionSucceeded,
		Segments: FilterAndMerge(raw, e.cfg.MinConfidence, e.cfg.MergeGap),
	}, nil
}

// RunToCompletion submits the video and polls until detection finishes,
// returning the cleaned segment set. Expiry of the overall timeout fails
// with SegmentationTimeout.
func (e *Engine) RunToCompletion(ctx context.Context, videoLocation string, onProgress func(attempt int)) ([]Segment, error) {
	detectionJobID, err := e.StartDetection(ctx, videoLocation)
	if err != nil {
		return nil, err
	}

	var segments []Segment
	check := func(ctx context.Context) (poller.Result, error) {
		res, err := e.PollDetection(ctx, detectionJobID)
		if err != nil {
			if faults.Is(err, faults.CodeDetectionFailed) {
				return poller.Result{State: poller.StateFailed, Message: err.Error()}, nil
			}
			return poller.Result{}, err
		}
		if res.Status == DetectionInProgress {
			return poller.Result{State: poller.StateInProgress}, nil
		}
		segments = res.Segments
		return poller.Result{State: poller.StateCompleted}, nil
	}

	res, err := e.poller.Poll(ctx, detectionJobID, check, poller.Options{
		Interval: e.cfg.PollInterval,
		Timeout:  e.cfg.Timeout,
		OnProgress: func(attempt int, _ poller.Result) {
			if onProgress != nil {
				onProgress(attempt)
			}
		},
	})
	if err != nil {
		if faults.Is(err, faults.CodePollingTimeout) {
			return nil, faults.Wrap(faults.CodeSegmentationTimeout, err,
				"scene detection for %s did not finish within %s", videoLocation, e.cfg.Timeout)
		}
		return nil, err
	}
	if res.State == poller.StateFailed {
		return nil, faults.New(faults.CodeDetectionFailed, "%s", res.Message)
	}

	log.Info().
		Str("location", videoLocation).
		Int("segments", len(segments)).
		Msg("Scene detection complete")
	return segments, nil
}
