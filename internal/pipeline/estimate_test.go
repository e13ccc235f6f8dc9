package pipeline

import (
	"testing"
	"time"
)

func TestEstimateDurationMonotonic(t *testing.T) {
	durations := []time.Duration{
		30 * time.Second,
		2 * time.Minute,
		10 * time.Minute,
		time.Hour,
	}
	prev := time.Duration(0)
	for _, d := range durations {
		est := EstimateDuration(PipelineVideo, d)
		if est <= prev {
			t.Errorf("estimate for %v (%v) not greater than previous (%v)", d, est, prev)
		}
		prev = est
	}
}

func TestEstimateDurationPositive(t *testing.T) {
	if est := EstimateDuration(PipelineVideo, 0); est <= 0 {
		t.Errorf("zero-length video estimate %v", est)
	}
	if est := EstimateDuration(PipelineVideo, -5*time.Second); est <= 0 {
		t.Errorf("negative duration estimate %v", est)
	}
}

func TestEstimateDurationImageIsFixed(t *testing.T) {
	a := EstimateDuration(PipelineImage, time.Minute)
	b := EstimateDuration(PipelineImage, time.Hour)
	if a != b {
		t.Errorf("image estimate should not depend on duration: %v vs %v", a, b)
	}
	if a <= 0 {
		t.Errorf("image estimate %v", a)
	}
}
