package pipeline

import "time"

// Stage cost model for user-facing time estimates. Detection and analysis
// dominate: Rekognition takes roughly a third of video runtime, and each
// analyzed clip costs a model round trip.
const (
	estimateBaseOverhead   = 15 * time.Second
	estimateDetectionRatio = 0.35
	estimatePerClip        = 6 * time.Second
	estimateImageFixed     = 30 * time.Second

	// Clip density observed on typical footage, about one scene per 12s.
	estimatedSecondsPerScene = 12.0
)

// EstimateDuration predicts wall time for a job from the source video
// duration. Estimates are deliberately rough; the only promises are that
// they are positive and monotonic in video length.
func EstimateDuration(pipeline string, videoDuration time.Duration) time.Duration {
	if pipeline == PipelineImage {
		return estimateImageFixed
	}

	seconds := videoDuration.Seconds()
	if seconds < 0 {
		seconds = 0
	}

	clips := seconds / estimatedSecondsPerScene
	est := estimateBaseOverhead +
		time.Duration(seconds*estimateDetectionRatio*float64(time.Second)) +
		time.Duration(clips*float64(estimatePerClip))
	return est
}
