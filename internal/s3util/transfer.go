package s3util

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/rs/zerolog/log"
)

// DownloadToFile streams an S3 object to localPath. The partial file is
// removed when the download fails so a stage never sees a truncated source.
func DownloadToFile(ctx context.Context, client *s3.Client, bucket, key, localPath string) error {
	log.Debug().Str("bucket", bucket).Str("key", key).Str("localPath", localPath).Msg("Downloading from S3")

	result, err := client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: &bucket,
		Key:    &key,
	})
	if err != nil {
		return fmt.Errorf("S3 GetObject %s/%s: %w", bucket, key, err)
	}
	defer result.Body.Close()

	f, err := os.Create(localPath)
	if err != nil {
		return fmt.Errorf("create file: %w", err)
	}

	written, err := io.Copy(f, result.Body)
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		os.Remove(localPath)
		return fmt.Errorf("download %s/%s: %w", bucket, key, err)
	}

	log.Debug().Str("key", key).Int64("bytes", written).Msg("S3 download complete")
	return nil
}

// UploadBytes writes data to bucket/key with the given content type.
func UploadBytes(ctx context.Context, client *s3.Client, bucket, key, contentType string, data []byte) error {
	log.Debug().Str("bucket", bucket).Str("key", key).Int("bytes", len(data)).Msg("Uploading to S3")

	_, err := client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      &bucket,
		Key:         &key,
		Body:        bytes.NewReader(data),
		ContentType: aws.String(contentType),
	})
	if err != nil {
		return fmt.Errorf("S3 PutObject %s/%s: %w", bucket, key, err)
	}
	return nil
}

// GetBytes reads an entire S3 object into memory. Intended for result
// artifacts (transcripts, narration audio), not source videos.
func GetBytes(ctx context.Context, client *s3.Client, bucket, key string) ([]byte, error) {
	result, err := client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: &bucket,
		Key:    &key,
	})
	if err != nil {
		return nil, fmt.Errorf("S3 GetObject %s/%s: %w", bucket, key, err)
	}
	defer result.Body.Close()

	data, err := io.ReadAll(result.Body)
	if err != nil {
		return nil, fmt.Errorf("read %s/%s: %w", bucket, key, err)
	}
	return data, nil
}
