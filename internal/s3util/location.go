// Package s3util provides the S3 helpers shared by the pipeline stages:
// location parsing, source video download, and result artifact transfer.
package s3util

import (
	"strings"

	"github.com/fpang/video-narrator/internal/faults"
)

// Location is a parsed s3://bucket/key reference.
type Location struct {
	Bucket string
	Key    string
}

// String renders the location back to s3://bucket/key form.
func (l Location) String() string {
	return "s3://" + l.Bucket + "/" + l.Key
}

// ParseLocation validates and splits an s3://bucket/key URI. Anything else
// (wrong scheme, missing bucket or key) fails with InvalidLocation.
func ParseLocation(raw string) (Location, error) {
	const scheme = "s3://"
	if !strings.HasPrefix(raw, scheme) {
		return Location{}, faults.New(faults.CodeInvalidLocation, "location %q must use the s3:// scheme", raw)
	}
	rest := strings.TrimPrefix(raw, scheme)
	bucket, key, ok := strings.Cut(rest, "/")
	if !ok || bucket == "" || key == "" {
		return Location{}, faults.New(faults.CodeInvalidLocation, "location %q must name a bucket and a key", raw)
	}
	return Location{Bucket: bucket, Key: key}, nil
}
