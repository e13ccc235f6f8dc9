package s3util

import (
	"testing"

	"github.com/fpang/video-narrator/internal/faults"
)

func TestParseLocation(t *testing.T) {
	tests := []struct {
		name       string
		input      string
		wantBucket string
		wantKey    string
		wantErr    bool
	}{
		{
			name:       "Simple key",
			input:      "s3://media-bucket/videos/input.mp4",
			wantBucket: "media-bucket",
			wantKey:    "videos/input.mp4",
		},
		{
			name:       "Key with single path element",
			input:      "s3://b/k",
			wantBucket: "b",
			wantKey:    "k",
		},
		{
			name:    "Wrong scheme",
			input:   "https://media-bucket/videos/input.mp4",
			wantErr: true,
		},
		{
			name:    "Missing key",
			input:   "s3://media-bucket",
			wantErr: true,
		},
		{
			name:    "Missing key after slash",
			input:   "s3://media-bucket/",
			wantErr: true,
		},
		{
			name:    "Empty bucket",
			input:   "s3:///videos/input.mp4",
			wantErr: true,
		},
		{
			name:    "Empty string",
			input:   "",
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			loc, err := ParseLocation(tt.input)
			if tt.wantErr {
				if err == nil {
					t.Fatalf("expected error for %q", tt.input)
				}
				if faults.CodeOf(err) != faults.CodeInvalidLocation {
					t.Errorf("expected InvalidLocation, got %v", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if loc.Bucket != tt.wantBucket || loc.Key != tt.wantKey {
				t.Errorf("got %q/%q, want %q/%q", loc.Bucket, loc.Key, tt.wantBucket, tt.wantKey)
			}
			if loc.String() != tt.input {
				t.Errorf("round trip mismatch: %q", loc.String())
			}
		})
	}
}
