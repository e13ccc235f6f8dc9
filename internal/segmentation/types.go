// Package segmentation detects visually distinct segments in a video. It
// submits the source to an asynchronous scene-detection service, polls the
// service job to completion, and filters/merges the raw detections into a
// clean, sorted segment set.
package segmentation

import "context"

// SegmentType classifies a detection.
type SegmentType string

const (
	// SegmentShot is a camera shot boundary segment.
	SegmentShot SegmentType = "SHOT"
	// SegmentTechnicalCue is a technical cue (black frames, color bars,
	// end credits) segment.
	SegmentTechnicalCue SegmentType = "TECHNICAL_CUE"
)

// Segment is one cleaned, merged time range.
// Invariants maintained by FilterAndMerge: EndTime > StartTime, Confidence
// in [0,100], output sorted ascending by StartTime, and no two same-type
// segments separated by a gap at or below the merge threshold.
type Segment struct {
	StartTime  float64     `json:"startTime"`
	EndTime    float64     `json:"endTime"`
	Confidence float64     `json:"confidence"`
	Type       SegmentType `json:"type"`
}

// RawDetection is one detection as reported by the scene-detection service,
// before filtering and merging. Timestamps are in milliseconds.
type RawDetection struct {
	Type        SegmentType
	StartMillis int64
	EndMillis   int64
	Confidence  float64
}

// DetectionStatus is the scene-detection service job state.
type DetectionStatus string

const (
	DetectionInProgress DetectionStatus = "IN_PROGRESS"
	DetectionSucceeded  DetectionStatus = "SUCCEEDED"
	DetectionFailed     DetectionStatus = "FAILED"
)

// DetectionPage is one page of a detection job's results.
type DetectionPage struct {
	Status        DetectionStatus
	Detections    []RawDetection
	NextToken     string
	StatusMessage string
}

// SceneDetector is the scene-detection collaborator. The engine depends only
// on these semantics; the production adapter is AWS Rekognition segment
// detection.
type SceneDetector interface {
	// Submit starts detection for the given S3 object and returns the
	// service's job id.
	Submit(ctx context.Context, bucket, key string) (string, error)
	// Poll fetches one page of results. Pass an empty continuation token
	// for the first page.
	Poll(ctx context.Context, detectionJobID, nextToken string) (*DetectionPage, error)
}
