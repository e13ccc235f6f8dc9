package pipeline

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/fpang/video-narrator/internal/compilation"
	"github.com/fpang/video-narrator/internal/s3util"
	"github.com/fpang/video-narrator/internal/synthesis"
)

// S3ArtifactStore persists job results under results/<jobID>/ in a bucket.
type S3ArtifactStore struct {
	client *s3.Client
	bucket string
}

func NewS3ArtifactStore(client *s3.Client, bucket string) *S3ArtifactStore {
	return &S3ArtifactStore{client: client, bucket: bucket}
}

func (s *S3ArtifactStore) SaveTranscript(ctx context.Context, jobID string, t *compilation.Transcript) (string, error) {
	data, err := json.Marshal(t)
	if err != nil {
		return "", fmt.Errorf("marshal transcript: %w", err)
	}
	key := fmt.Sprintf("results/%s/transcript.json", jobID)
	if err := s3util.UploadBytes(ctx, s.client, s.bucket, key, "application/json", data); err != nil {
		return "", err
	}
	return key, nil
}

func (s *S3ArtifactStore) SaveAudio(ctx context.Context, jobID string, out *synthesis.AudioOutput) (string, error) {
	key := fmt.Sprintf("results/%s/narration.%s", jobID, out.Metadata.Format)
	if err := s3util.UploadBytes(ctx, s.client, s.bucket, key, "audio/mpeg", out.AudioBuffer); err != nil {
		return "", err
	}
	return key, nil
}

func (s *S3ArtifactStore) LoadTranscript(ctx context.Context, key string) (*compilation.Transcript, error) {
	data, err := s3util.GetBytes(ctx, s.client, s.bucket, key)
	if err != nil {
		return nil, err
	}
	var t compilation.Transcript
	if err := json.Unmarshal(data, &t); err != nil {
		return nil, fmt.Errorf("unmarshal transcript %s: %w", key, err)
	}
	return &t, nil
}

func (s *S3ArtifactStore) LoadAudio(ctx context.Context, key string) ([]byte, error) {
	return s3util.GetBytes(ctx, s.client, s.bucket, key)
}
