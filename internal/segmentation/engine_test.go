package segmentation

import (
	"context"
	"testing"
	"time"

	"github.com/fpang/video-narrator/internal/faults"
	"github.com/fpang/video-narrator/internal/poller"
)

// fakeDetector scripts a SceneDetector: pagesByToken maps continuation
// tokens ("" for the first page) to result pages, advanced after pollsUntilDone
// in-progress responses.
type fakeDetector struct {
	submitErr      error
	submittedKey   string
	pollsUntilDone int
	polls          int
	pages          map[string]*DetectionPage
	failJob        bool
}

func (f *fakeDetector) Submit(_ context.Context, bucket, key string) (string, error) {
	if f.submitErr != nil {
		return "", f.submitErr
	}
	f.submittedKey = bucket + "/" + key
	return "det-123", nil
}

func (f *fakeDetector) Poll(_ context.Context, _, nextToken string) (*DetectionPage, error) {
	f.polls++
	if f.failJob {
		return &DetectionPage{Status: DetectionFailed, StatusMessage: "unsupported codec"}, nil
	}
	if f.polls <= f.pollsUntilDone {
		return &DetectionPage{Status: DetectionInProgress}, nil
	}
	page, ok := f.pages[nextToken]
	if !ok {
		return &DetectionPage{Status: DetectionSucceeded}, nil
	}
	return page, nil
}

func fastConfig() Config {
	return Config{
		MinConfidence: 80,
		MergeGap:      1.0,
		PollInterval:  time.Millisecond,
		Timeout:       time.Second,
	}
}

func TestStartDetection_RejectsBadLocation(t *testing.T) {
	e := NewEngine(&fakeDetector{}, poller.New(), fastConfig())
	_, err := e.StartDetection(context.Background(), "ftp://nope/video.mp4")
	if faults.CodeOf(err) != faults.CodeInvalidLocation {
		t.Errorf("expected InvalidLocation, got %v", err)
	}
}

func TestPollDetection_FollowsPagination(t *testing.T) {
	det := &fakeDetector{
		pages: map[string]*DetectionPage{
			"": {
				Status:     DetectionSucceeded,
				Detections: []RawDetection{shot(0, 5000, 99)},
				NextToken:  "page2",
			},
			"page2": {
				Status:     DetectionSucceeded,
				Detections: []RawDetection{shot(20000, 25000, 95)},
			},
		},
	}
	e := NewEngine(det, poller.New(), fastConfig())

	res, err := e.PollDetection(context.Background(), "det-123")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Status != DetectionSucceeded {
		t.Fatalf("expected success, got %+v", res)
	}
	if len(res.Segments) != 2 {
		t.Errorf("expected detections from both pages, got %+v", res.Segments)
	}
}

func TestPollDetection_ServiceFailure(t *testing.T) {
	e := NewEngine(&fakeDetector{failJob: true}, poller.New(), fastConfig())
	_, err := e.PollDetection(context.Background(), "det-123")
	if faults.CodeOf(err) != faults.CodeDetectionFailed {
		t.Errorf("expected DetectionFailed, got %v", err)
	}
}

func TestRunToCompletion_WaitsThenReturnsSegments(t *testing.T) {
	det := &fakeDetector{
		pollsUntilDone: 3,
		pages: map[string]*DetectionPage{
			"": {
				Status: DetectionSucceeded,
				Detections: []RawDetection{
					shot(0, 5000, 99),
					shot(5000, 6000, 97),
					shot(20000, 25000, 95),
				},
			},
		},
	}
	e := NewEngine(det, poller.New(), fastConfig())

	progress := 0
	segs, err := e.RunToCompletion(context.Background(), "s3://media/video.mp4",
		func(int) { progress++ })
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if det.submittedKey != "media/video.mp4" {
		t.Errorf("wrong submission: %q", det.submittedKey)
	}
	if len(segs) != 2 {
		t.Errorf("expected merged segment set of 2, got %+v", segs)
	}
	if progress == 0 {
		t.Error("expected progress callbacks while polling")
	}
}

func TestRunToCompletion_TimesOutAsSegmentationTimeout(t *testing.T) {
	det := &fakeDetector{pollsUntilDone: 1 << 30} // never finishes
	cfg := fastConfig()
	cfg.PollInterval = 10 * time.Millisecond
	cfg.Timeout = 100 * time.Millisecond
	e := NewEngine(det, poller.New(), cfg)

	_, err := e.RunToCompletion(context.Background(), "s3://media/video.mp4", nil)
	if faults.CodeOf(err) != faults.CodeSegmentationTimeout {
		t.Errorf("expected SegmentationTimeout, got %v", err)
	}
}

func TestRunToCompletion_DetectionFailurePropagates(t *testing.T) {
	e := NewEngine(&fakeDetector{failJob: true}, poller.New(), fastConfig())
	_, err := e.RunToCompletion(context.Background(), "s3://media/video.mp4", nil)
	if faults.CodeOf(err) != faults.CodeDetectionFailed {
		t.Errorf("expected DetectionFailed, got %v", err)
	}
}
