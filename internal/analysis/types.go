// Package analysis sends extracted clips to a vision model and turns the
// responses into structured scene analyses.
package analysis

// SegmentAnalysis is the structured description of one clip. Timing fields
// are carried from the source segment so compilation can order and merge
// scenes without going back to the extraction output.
type SegmentAnalysis struct {
	SegmentID      string   `json:"segmentId"`
	Description    string   `json:"description"`
	VisualElements []string `json:"visualElements"`
	Actions        []string `json:"actions"`
	Context        string   `json:"context"`
	Confidence     float64  `json:"confidence"`
	StartTime      float64  `json:"startTime"`
	EndTime        float64  `json:"endTime"`
	Duration       float64  `json:"duration"`
}

// AnalysisError records one clip whose analysis failed after all retries.
type AnalysisError struct {
	SegmentID string
	Message   string
}
