package segmentation

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/rekognition"
	"github.com/aws/aws-sdk-go-v2/service/rekognition/types"
	"github.com/rs/zerolog/log"
)

// RekognitionDetector implements SceneDetector on AWS Rekognition segment
// detection (StartSegmentDetection / GetSegmentDetection).
type RekognitionDetector struct {
	client *rekognition.Client
	// minConfidence is passed to the service-side filters so obviously weak
	// detections never cross the wire; FilterAndMerge applies the same
	// threshold again locally.
	minConfidence float32
}

var _ SceneDetector = (*RekognitionDetector)(nil)

// NewRekognitionDetector creates a detector using the given client.
func NewRekognitionDetector(client *rekognition.Client, minConfidence float64) *RekognitionDetector {
	if minConfidence <= 0 {
		minConfidence = 80
	}
	return &RekognitionDetector{client: client, minConfidence: float32(minConfidence)}
}

func (d *RekognitionDetector) Submit(ctx context.Context, bucket, key string) (string, error) {
	out, err := d.client.StartSegmentDetection(ctx, &rekognition.StartSegmentDetectionInput{
		Video: &types.Video{
			S3Object: &types.S3Object{
				Bucket: aws.String(bucket),
				Name:   aws.String(key),
			},
		},
		SegmentTypes: []types.SegmentType{
			types.SegmentTypeShot,
			types.SegmentTypeTechnicalCue,
		},
		Filters: &types.StartSegmentDetectionFilters{
			ShotFilter: &types.StartShotDetectionFilter{
				MinSegmentConfidence: aws.Float32(d.minConfidence),
			},
			TechnicalCueFilter: &types.StartTechnicalCueDetectionFilter{
				MinSegmentConfidence: aws.Float32(d.minConfidence),
			},
		},
	})
	if err != nil {
		return "", fmt.Errorf("StartSegmentDetection %s/%s: %w", bucket, key, err)
	}
	return aws.ToString(out.JobId), nil
}

func (d *RekognitionDetector) Poll(ctx context.Context, detectionJobID, nextToken string) (*DetectionPage, error) {
	input := &rekognition.GetSegmentDetectionInput{
		JobId: aws.String(detectionJobID),
	}
	if nextToken != "" {
		input.NextToken = aws.String(nextToken)
	}

	out, err := d.client.GetSegmentDetection(ctx, input)
	if err != nil {
		return nil, fmt.Errorf("GetSegmentDetection %s: %w", detectionJobID, err)
	}

	page := &DetectionPage{
		NextToken:     aws.ToString(out.NextToken),
		StatusMessage: aws.ToString(out.StatusMessage),
	}

	switch out.JobStatus {
	case types.VideoJobStatusSucceeded:
		page.Status = DetectionSucceeded
	case types.VideoJobStatusFailed:
		page.Status = DetectionFailed
	default:
		page.Status = DetectionInProgress
	}

	for _, seg := range out.Segments {
		page.Detections = append(page.Detections, convertSegment(seg))
	}

	log.Trace().
		Str("detectionJobId", detectionJobID).
		Str("status", string(page.Status)).
		Int("detections", len(page.Detections)).
		Bool("hasNextToken", page.NextToken != "").
		Msg("Rekognition segment page fetched")
	return page, nil
}

// convertSegment maps a Rekognition segment to the service-neutral shape.
// Confidence lives on the type-specific sub-struct.
func convertSegment(seg types.SegmentDetection) RawDetection {
	d := RawDetection{
		Type:        SegmentType(seg.Type),
		StartMillis: seg.StartTimestampMillis,
		EndMillis:   seg.EndTimestampMillis,
	}
	switch {
	case seg.ShotSegment != nil:
		d.Confidence = float64(aws.ToFloat32(seg.ShotSegment.Confidence))
	case seg.TechnicalCueSegment != nil:
		d.Confidence = float64(aws.ToFloat32(seg.TechnicalCueSegment.Confidence))
	}
	return d
}
