package extraction

import (
	"context"
	"fmt"
	"os"
	"sync"

	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/rs/zerolog/log"

	"github.com/fpang/video-narrator/internal/faults"
	"github.com/fpang/video-narrator/internal/s3util"
	"github.com/fpang/video-narrator/internal/segmentation"
	"github.com/fpang/video-narrator/internal/workspace"
)

// ExtractedClip is one successfully cut segment. The extraction engine owns
// the file until analysis consumes it; the job workspace removes it when the
// job ends.
type ExtractedClip struct {
	SegmentID string
	LocalPath string
	StartTime float64
	EndTime   float64
	Duration  float64
}

// ClipError records one segment that could not be extracted.
type ClipError struct {
	SegmentID string
	Message   string
}

// MediaProber reports a media file's duration in seconds. A ClipCutter that
// also probes gets its segment end times clamped to the real duration.
type MediaProber interface {
	ProbeDuration(ctx context.Context, path string) (float64, error)
}

// SourceFetcher downloads the source video to a local path.
type SourceFetcher interface {
	Fetch(ctx context.Context, videoLocation, localPath string) error
}

// S3Fetcher implements SourceFetcher on S3.
type S3Fetcher struct {
	Client *s3.Client
}

func (f *S3Fetcher) Fetch(ctx context.Context, videoLocation, localPath string) error {
	loc, err := s3util.ParseLocation(videoLocation)
	if err != nil {
		return err
	}
	return s3util.DownloadToFile(ctx, f.Client, loc.Bucket, loc.Key, localPath)
}

// Config holds the extraction engine settings.
type Config struct {
	// Concurrency is the batch size: how many clips are cut at once.
	// Default 3, which caps simultaneous transcoder processes and disk
	// pressure.
	Concurrency int
}

func (c Config) withDefaults() Config {
	if c.Concurrency <= 0 {
		c.Concurrency = 3
	}
	return c
}

// Engine cuts segments into clips.
type Engine struct {
	cutter  ClipCutter
	fetcher SourceFetcher
	cfg     Config
}

// NewEngine creates an extraction engine.
func NewEngine(cutter ClipCutter, fetcher SourceFetcher, cfg Config) *Engine {
	return &Engine{cutter: cutter, fetcher: fetcher, cfg: cfg.withDefaults()}
}

// ExtractAll downloads the source video once, then cuts one clip per segment
// in fixed-size concurrent batches. A failed segment is appended to the
// error list and does not abort its batch; the caller decides whether zero
// successes is fatal. The downloaded source is removed before returning on
// every path.
func (e *Engine) ExtractAll(ctx context.Context, videoLocation string, segments []segmentation.Segment, ws *workspace.Workspace) ([]ExtractedClip, []ClipError, error) {
	if len(segments) == 0 {
		return nil, nil, nil
	}

	sourcePath := ws.Path("source.mp4")
	if err := e.fetcher.Fetch(ctx, videoLocation, sourcePath); err != nil {
		return nil, nil, faults.Transient(err, "download source video %s", videoLocation)
	}
	defer os.Remove(sourcePath)

	// Detection timestamps can overrun the container's real duration by a
	// frame or two. Clamp against the probed duration when the cutter can
	// probe; a probe failure just skips the clamp.
	if prober, ok := e.cutter.(MediaProber); ok {
		if mediaDur, err := prober.ProbeDuration(ctx, sourcePath); err == nil && mediaDur > 0 {
			segments = clampToDuration(segments, mediaDur)
		} else if err != nil {
			log.Warn().Err(err).Str("location", videoLocation).Msg("Media duration probe failed, skipping end-time clamp")
		}
	}

	type slot struct {
		clip *ExtractedClip
		err  *ClipError
	}
	slots := make([]slot, len(segments))

	for batchStart := 0; batchStart < len(segments); batchStart += e.cfg.Concurrency {
		if err := ctx.Err(); err != nil {
			return nil, nil, faults.Wrap(faults.CodeCancelled, err, "extraction aborted")
		}

		batchEnd := batchStart + e.cfg.Concurrency
		if batchEnd > len(segments) {
			batchEnd = len(segments)
		}

		var wg sync.WaitGroup
		for i := batchStart; i < batchEnd; i++ {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				seg := segments[i]
				segmentID := fmt.Sprintf("seg-%03d", i)
				outputPath := ws.Path(segmentID + ".mp4")

				clip, err := e.ExtractOne(ctx, seg, segmentID, sourcePath, outputPath)
				if err != nil {
					// Failure path cleanup: a partial clip must not linger.
					os.Remove(outputPath)
					log.Warn().Err(err).Str("segmentId", segmentID).Msg("Segment extraction failed, continuing batch")
					slots[i] = slot{err: &ClipError{SegmentID: segmentID, Message: err.Error()}}
					return
				}
				slots[i] = slot{clip: clip}
			}(i)
		}
		wg.Wait()
	}

	var clips []ExtractedClip
	var errs []ClipError
	for _, s := range slots {
		switch {
		case s.clip != nil:
			clips = append(clips, *s.clip)
		case s.err != nil:
			errs = append(errs, *s.err)
		}
	}

	log.Info().
		Str("location", videoLocation).
		Int("segments", len(segments)).
		Int("clips", len(clips)).
		Int("failures", len(errs)).
		Msg("Clip extraction finished")
	return clips, errs, nil
}

// clampToDuration caps segment end times at the media duration and drops
// segments that start at or beyond it.
func clampToDuration(segments []segmentation.Segment, mediaDur float64) []segmentation.Segment {
	out := make([]segmentation.Segment, 0, len(segments))
	for _, seg := range segments {
		if seg.StartTime >= mediaDur {
			continue
		}
		if seg.EndTime > mediaDur {
			seg.EndTime = mediaDur
		}
		out = append(out, seg)
	}
	return out
}

// ExtractOne cuts a single segment. The returned error carries the
// transcoder's diagnostic output.
func (e *Engine) ExtractOne(ctx context.Context, seg segmentation.Segment, segmentID, inputPath, outputPath string) (*ExtractedClip, error) {
	duration := seg.EndTime - seg.StartTime
	if duration <= 0 {
		return nil, faults.New(faults.CodeValidation, "segment %s has non-positive duration", segmentID)
	}

	if err := e.cutter.Cut(ctx, inputPath, seg.StartTime, duration, outputPath); err != nil {
		return nil, faults.Wrap(faults.CodeExtractionFailed, err, "extract segment %s", segmentID)
	}

	return &ExtractedClip{
		SegmentID: segmentID,
		LocalPath: outputPath,
		StartTime: seg.StartTime,
		EndTime:   seg.EndTime,
		Duration:  duration,
	}, nil
}
