package extraction

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"sync"
	"testing"

	"github.com/fpang/video-narrator/internal/faults"
	"github.com/fpang/video-narrator/internal/segmentation"
	"github.com/fpang/video-narrator/internal/workspace"
)

type fakeCutter struct {
	mu       sync.Mutex
	cuts     []string
	active   int
	peak     int
	failFor  map[string]error
	failPath func(outputPath string) error
}

func (f *fakeCutter) Cut(_ context.Context, _ string, _ float64, _ float64, outputPath string) error {
	f.mu.Lock()
	f.active++
	if f.active > f.peak {
		f.peak = f.active
	}
	f.cuts = append(f.cuts, outputPath)
	f.mu.Unlock()

	defer func() {
		f.mu.Lock()
		f.active--
		f.mu.Unlock()
	}()

	for suffix, err := range f.failFor {
		if strings.HasSuffix(outputPath, suffix) {
			return err
		}
	}
	if f.failPath != nil {
		if err := f.failPath(outputPath); err != nil {
			return err
		}
	}
	return os.WriteFile(outputPath, []byte("clip"), 0o644)
}

type fakeFetcher struct {
	err     error
	fetches int
}

func (f *fakeFetcher) Fetch(_ context.Context, _ string, localPath string) error {
	f.fetches++
	if f.err != nil {
		return f.err
	}
	return os.WriteFile(localPath, []byte("video"), 0o644)
}

func testSegments(n int) []segmentation.Segment {
	segs := make([]segmentation.Segment, n)
	for i := range segs {
		segs[i] = segmentation.Segment{
			StartTime:  float64(i * 10),
			EndTime:    float64(i*10 + 5),
			Confidence: 95,
			Type:       segmentation.SegmentShot,
		}
	}
	return segs
}

type probingCutter struct {
	fakeCutter
	duration float64
	probeErr error
}

func (p *probingCutter) ProbeDuration(_ context.Context, _ string) (float64, error) {
	if p.probeErr != nil {
		return 0, p.probeErr
	}
	return p.duration, nil
}

func testWorkspace(t *testing.T) *workspace.Workspace {
	t.Helper()
	ws, err := workspace.New(t.TempDir(), "testjob")
	if err != nil {
		t.Fatalf("workspace.New: %v", err)
	}
	t.Cleanup(func() { ws.Cleanup() })
	return ws
}

func TestExtractAllHappyPath(t *testing.T) {
	cutter := &fakeCutter{}
	fetcher := &fakeFetcher{}
	engine := NewEngine(cutter, fetcher, Config{})
	ws := testWorkspace(t)

	clips, clipErrs, err := engine.ExtractAll(context.Background(), "s3://bucket/video.mp4", testSegments(5), ws)
	if err != nil {
		t.Fatalf("ExtractAll: %v", err)
	}
	if len(clips) != 5 {
		t.Fatalf("expected 5 clips, got %d", len(clips))
	}
	if len(clipErrs) != 0 {
		t.Fatalf("expected no clip errors, got %v", clipErrs)
	}
	if fetcher.fetches != 1 {
		t.Errorf("source fetched %d times, want 1", fetcher.fetches)
	}

	for i, clip := range clips {
		want := fmt.Sprintf("seg-%03d", i)
		if clip.SegmentID != want {
			t.Errorf("clip %d: segment id %q, want %q", i, clip.SegmentID, want)
		}
		if clip.Duration != 5 {
			t.Errorf("clip %d: duration %v, want 5", i, clip.Duration)
		}
		if _, statErr := os.Stat(clip.LocalPath); statErr != nil {
			t.Errorf("clip %d: output file missing: %v", i, statErr)
		}
	}

	// The downloaded source must not survive the stage.
	if _, statErr := os.Stat(ws.Path("source.mp4")); !os.IsNotExist(statErr) {
		t.Errorf("source file still present after extraction")
	}
}

func TestExtractAllPartialFailure(t *testing.T) {
	cutter := &fakeCutter{failFor: map[string]error{
		"seg-001.mp4": errors.New("moov atom not found"),
		"seg-003.mp4": errors.New("invalid data found when processing input"),
	}}
	engine := NewEngine(cutter, &fakeFetcher{}, Config{})

	clips, clipErrs, err := engine.ExtractAll(context.Background(), "s3://bucket/video.mp4", testSegments(5), testWorkspace(t))
	if err != nil {
		t.Fatalf("ExtractAll: %v", err)
	}
	if len(clips) != 3 {
		t.Fatalf("expected 3 clips, got %d", len(clips))
	}
	if len(clipErrs) != 2 {
		t.Fatalf("expected 2 clip errors, got %d", len(clipErrs))
	}

	gotIDs := map[string]bool{}
	for _, ce := range clipErrs {
		gotIDs[ce.SegmentID] = true
	}
	if !gotIDs["seg-001"] || !gotIDs["seg-003"] {
		t.Errorf("clip errors name wrong segments: %v", clipErrs)
	}
	for _, ce := range clipErrs {
		if ce.Message == "" {
			t.Errorf("clip error for %s has empty message", ce.SegmentID)
		}
	}
}

func TestExtractAllEveryClipFails(t *testing.T) {
	cutter := &fakeCutter{failPath: func(string) error {
		return errors.New("corrupt stream")
	}}
	engine := NewEngine(cutter, &fakeFetcher{}, Config{})

	clips, clipErrs, err := engine.ExtractAll(context.Background(), "s3://bucket/video.mp4", testSegments(3), testWorkspace(t))
	if err != nil {
		t.Fatalf("ExtractAll returned stage error: %v", err)
	}
	if len(clips) != 0 {
		t.Fatalf("expected 0 clips, got %d", len(clips))
	}
	if len(clipErrs) != 3 {
		t.Fatalf("expected 3 clip errors, got %d", len(clipErrs))
	}
}

func TestExtractAllSourceFetchFails(t *testing.T) {
	fetcher := &fakeFetcher{err: errors.New("access denied")}
	engine := NewEngine(&fakeCutter{}, fetcher, Config{})

	_, _, err := engine.ExtractAll(context.Background(), "s3://bucket/video.mp4", testSegments(3), testWorkspace(t))
	if err == nil {
		t.Fatal("expected error when source download fails")
	}
	if !faults.Is(err, faults.CodeDependency) {
		t.Errorf("fetch failure should be a dependency fault, got %v", err)
	}
}

func TestExtractAllConcurrencyBound(t *testing.T) {
	cutter := &fakeCutter{}
	engine := NewEngine(cutter, &fakeFetcher{}, Config{Concurrency: 3})

	_, _, err := engine.ExtractAll(context.Background(), "s3://bucket/video.mp4", testSegments(10), testWorkspace(t))
	if err != nil {
		t.Fatalf("ExtractAll: %v", err)
	}
	if cutter.peak > 3 {
		t.Errorf("peak concurrency %d exceeds limit 3", cutter.peak)
	}
	if len(cutter.cuts) != 10 {
		t.Errorf("expected 10 cut invocations, got %d", len(cutter.cuts))
	}
}

func TestExtractAllNoSegments(t *testing.T) {
	fetcher := &fakeFetcher{}
	engine := NewEngine(&fakeCutter{}, fetcher, Config{})

	clips, clipErrs, err := engine.ExtractAll(context.Background(), "s3://bucket/video.mp4", nil, testWorkspace(t))
	if err != nil || clips != nil || clipErrs != nil {
		t.Fatalf("empty input should be a no-op, got clips=%v errs=%v err=%v", clips, clipErrs, err)
	}
	if fetcher.fetches != 0 {
		t.Errorf("source fetched for empty segment list")
	}
}

func TestExtractOneRejectsNonPositiveDuration(t *testing.T) {
	engine := NewEngine(&fakeCutter{}, &fakeFetcher{}, Config{})
	seg := segmentation.Segment{StartTime: 10, EndTime: 10}

	_, err := engine.ExtractOne(context.Background(), seg, "seg-000", "in.mp4", "out.mp4")
	if !faults.Is(err, faults.CodeValidation) {
		t.Fatalf("expected validation fault, got %v", err)
	}
}


func TestExtractAllClampsToProbedDuration(t *testing.T) {
	cutter := &probingCutter{duration: 32}
	engine := NewEngine(cutter, &fakeFetcher{}, Config{})

	clips, clipErrs, err := engine.ExtractAll(context.Background(), "s3://bucket/video.mp4", testSegments(5), testWorkspace(t))
	if err != nil {
		t.Fatalf("ExtractAll: %v", err)
	}
	if len(clipErrs) != 0 {
		t.Fatalf("unexpected clip errors: %v", clipErrs)
	}
	// The segment starting at 40s lies past the 32s media end.
	if len(clips) != 4 {
		t.Fatalf("expected 4 clips after clamping, got %d", len(clips))
	}
	last := clips[3]
	if last.EndTime != 32 {
		t.Errorf("expected last clip end clamped to 32, got %v", last.EndTime)
	}
	if last.Duration != 2 {
		t.Errorf("expected last clip duration 2, got %v", last.Duration)
	}
}

func TestExtractAllProbeFailureSkipsClamp(t *testing.T) {
	cutter := &probingCutter{probeErr: errors.New("probe exploded")}
	engine := NewEngine(cutter, &fakeFetcher{}, Config{})

	clips, clipErrs, err := engine.ExtractAll(context.Background(), "s3://bucket/video.mp4", testSegments(3), testWorkspace(t))
	if err != nil {
		t.Fatalf("ExtractAll: %v", err)
	}
	if len(clips) != 3 || len(clipErrs) != 0 {
		t.Fatalf("probe failure must not affect extraction, got %d clips %d errors", len(clips), len(clipErrs))
	}
}
