package analysis

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/fpang/video-narrator/internal/extraction"
	"github.com/fpang/video-narrator/internal/faults"
	"github.com/fpang/video-narrator/internal/resilience"
)

// mimeForClip maps the clip file extension to a media MIME type. Clips cut
// by the extraction stage are always mp4; the image pipeline variant feeds
// stills through the same path.
func mimeForClip(path string) string {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".jpg", ".jpeg":
		return "image/jpeg"
	case ".png":
		return "image/png"
	case ".webp":
		return "image/webp"
	default:
		return "video/mp4"
	}
}

// Config holds the analysis engine settings.
type Config struct {
	// CallInterval spaces successive model calls. Default 500ms.
	CallInterval time.Duration
	// RetryBase is the backoff before the second attempt on a clip.
	// Default 2s.
	RetryBase time.Duration
	// MaxAttempts is the per-clip attempt budget. Default 3.
	MaxAttempts int
	// BreakerThreshold is the consecutive-failure count that opens the
	// circuit. Default 5.
	BreakerThreshold int
	// BreakerCooldown is how long the circuit stays open. Default 30s.
	BreakerCooldown time.Duration
}

func (c Config) withDefaults() Config {
	if c.CallInterval <= 0 {
		c.CallInterval = 500 * time.Millisecond
	}
	if c.RetryBase <= 0 {
		c.RetryBase = 2 * time.Second
	}
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = 3
	}
	if c.BreakerThreshold <= 0 {
		c.BreakerThreshold = 5
	}
	if c.BreakerCooldown <= 0 {
		c.BreakerCooldown = 30 * time.Second
	}
	return c
}

// Engine analyzes clips one at a time. Calls are deliberately sequential:
// the model API is the scarce resource, and spacing calls keeps the job
// inside its quota. A shared circuit breaker stops the whole stage from
// hammering a failing API.
type Engine struct {
	model   VisionModel
	limiter *resilience.RateLimiter
	breaker *resilience.Breaker
	cfg     Config
}

// NewEngine creates an analysis engine around model.
func NewEngine(model VisionModel, cfg Config) *Engine {
	cfg = cfg.withDefaults()
	return &Engine{
		model:   model,
		limiter: resilience.NewRateLimiter(cfg.CallInterval, 1),
		breaker: resilience.NewBreaker("gemini-analysis", cfg.BreakerThreshold, cfg.BreakerCooldown),
		cfg:     cfg,
	}
}

// AnalyzeAll describes every clip in order. A clip that fails after all
// retries is recorded as an AnalysisError and the loop moves on; the caller
// decides whether zero successes is fatal. The returned analyses carry the
// source segment timing.
func (e *Engine) AnalyzeAll(ctx context.Context, clips []extraction.ExtractedClip) ([]SegmentAnalysis, []AnalysisError, error) {
	var analyses []SegmentAnalysis
	var errs []AnalysisError

	for i, clip := range clips {
		if err := e.limiter.Wait(ctx); err != nil {
			return nil, nil, faults.Wrap(faults.CodeCancelled, err, "analysis aborted")
		}

		result, err := e.AnalyzeOne(ctx, clip, i, len(clips))
		if err != nil {
			log.Warn().Err(err).Str("segmentId", clip.SegmentID).Msg("Clip analysis failed, continuing")
			errs = append(errs, AnalysisError{SegmentID: clip.SegmentID, Message: err.Error()})
			continue
		}
		analyses = append(analyses, *result)
	}

	log.Info().
		Int("clips", len(clips)).
		Int("analyses", len(analyses)).
		Int("failures", len(errs)).
		Msg("Clip analysis finished")
	return analyses, errs, nil
}

// AnalyzeOne runs one clip through the model with retries. Only dependency
// failures are retried; a malformed or incomplete response is a model
// behavior problem that another identical call rarely fixes.
func (e *Engine) AnalyzeOne(ctx context.Context, clip extraction.ExtractedClip, clipIndex, totalClips int) (*SegmentAnalysis, error) {
	data, err := os.ReadFile(clip.LocalPath)
	if err != nil {
		return nil, faults.Wrap(faults.CodeInternal, err, "read clip %s", clip.SegmentID)
	}

	prompt := BuildClipPrompt(clip, clipIndex, totalClips)

	var responseText string
	retryCfg := resilience.RetryConfig{
		MaxAttempts: e.cfg.MaxAttempts,
		BaseDelay:   e.cfg.RetryBase,
		Name:        "analyze-" + clip.SegmentID,
	}
	err = resilience.Retry(ctx, retryCfg, func(ctx context.Context) error {
		return e.breaker.Do(ctx, func(ctx context.Context) error {
			text, invokeErr := e.model.Invoke(ctx, data, mimeForClip(clip.LocalPath), prompt)
			if invokeErr != nil {
				return faults.Transient(invokeErr, "invoke vision model for %s", clip.SegmentID)
			}
			responseText = text
			return nil
		})
	})
	if err != nil {
		return nil, err
	}

	result, err := parseAnalysisResponse(responseText)
	if err != nil {
		return nil, err
	}

	result.SegmentID = clip.SegmentID
	result.StartTime = clip.StartTime
	result.EndTime = clip.EndTime
	result.Duration = clip.Duration
	return result, nil
}
