package analysis

import (
	"errors"
	"strings"
	"unicode"

	"github.com/fpang/video-narrator/internal/faults"
	"github.com/fpang/video-narrator/internal/jsonutil"
)

// rawAnalysis mirrors the model's JSON contract. Pointer fields distinguish
// an absent key from a present-but-empty value.
type rawAnalysis struct {
	Description    *string   `json:"description"`
	VisualElements *[]string `json:"visualElements"`
	Actions        *[]string `json:"actions"`
	Context        *string   `json:"context"`
	Confidence     *float64  `json:"confidence"`
}

// parseAnalysisResponse validates and normalizes one model response.
// Fault codes separate the three failure shapes: the model answered in
// prose, the JSON was malformed, or required keys were missing.
func parseAnalysisResponse(responseText string) (*SegmentAnalysis, error) {
	raw, err := jsonutil.Parse[rawAnalysis](responseText)
	switch {
	case errors.Is(err, jsonutil.ErrNoJSON):
		return nil, faults.Wrap(faults.CodeInvalidResponseFormat, err, "model response contains no JSON")
	case errors.Is(err, jsonutil.ErrInvalidJSON):
		return nil, faults.Wrap(faults.CodeJSONParseFailed, err, "model response is not valid JSON")
	case err != nil:
		return nil, faults.Wrap(faults.CodeJSONParseFailed, err, "parse model response")
	}

	var missing []string
	if raw.Description == nil || strings.TrimSpace(*raw.Description) == "" {
		missing = append(missing, "description")
	}
	if raw.VisualElements == nil {
		missing = append(missing, "visualElements")
	}
	if raw.Actions == nil {
		missing = append(missing, "actions")
	}
	if raw.Context == nil {
		missing = append(missing, "context")
	}
	if raw.Confidence == nil {
		missing = append(missing, "confidence")
	}
	if len(missing) > 0 {
		return nil, faults.New(faults.CodeMissingRequiredFields,
			"model response missing fields: %s", strings.Join(missing, ", "))
	}

	// Same 0-100 percentage scale as detection segment confidence.
	confidence := *raw.Confidence
	if confidence < 0 {
		confidence = 0
	}
	if confidence > 100 {
		confidence = 100
	}

	return &SegmentAnalysis{
		Description:    normalizeDescription(*raw.Description),
		VisualElements: *raw.VisualElements,
		Actions:        *raw.Actions,
		Context:        strings.TrimSpace(*raw.Context),
		Confidence:     confidence,
	}, nil
}

// normalizeDescription collapses whitespace, capitalizes the first letter,
// and guarantees terminal punctuation so compiled narration reads as prose.
func normalizeDescription(s string) string {
	s = strings.Join(strings.Fields(s), " ")
	if s == "" {
		return s
	}

	runes := []rune(s)
	runes[0] = unicode.ToUpper(runes[0])
	s = string(runes)

	switch s[len(s)-1] {
	case '.', '!', '?':
	default:
		s += "."
	}
	return s
}
