package analysis

import (
	"strings"
	"testing"

	"github.com/fpang/video-narrator/internal/faults"
)

const validResponse = `{
	"description": "a cyclist rides along a coastal road at sunset",
	"visualElements": ["cyclist", "coastal road", "sunset sky"],
	"actions": ["riding", "pedaling"],
	"context": "outdoor evening ride",
	"confidence": 92
}`

func TestParseValidResponse(t *testing.T) {
	got, err := parseAnalysisResponse(validResponse)
	if err != nil {
		t.Fatalf("parseAnalysisResponse: %v", err)
	}
	if got.Description != "A cyclist rides along a coastal road at sunset." {
		t.Errorf("description not normalized: %q", got.Description)
	}
	if len(got.VisualElements) != 3 || len(got.Actions) != 2 {
		t.Errorf("lists not carried: %+v", got)
	}
	if got.Confidence != 92 {
		t.Errorf("confidence %v", got.Confidence)
	}
}

func TestParseFencedResponse(t *testing.T) {
	raw := "```json\n" + validResponse + "\n```"
	if _, err := parseAnalysisResponse(raw); err != nil {
		t.Fatalf("fenced response should parse: %v", err)
	}
}

func TestParseProseResponse(t *testing.T) {
	_, err := parseAnalysisResponse("I'm sorry, I cannot describe this video.")
	if !faults.Is(err, faults.CodeInvalidResponseFormat) {
		t.Fatalf("expected invalid-format fault, got %v", err)
	}
}

func TestParseMalformedJSON(t *testing.T) {
	_, err := parseAnalysisResponse(`{"description": "a scene", "confidence": }`)
	if !faults.Is(err, faults.CodeJSONParseFailed) {
		t.Fatalf("expected parse-failed fault, got %v", err)
	}
}

func TestParseMissingFields(t *testing.T) {
	_, err := parseAnalysisResponse(`{"description": "a scene", "confidence": 0.5}`)
	if !faults.Is(err, faults.CodeMissingRequiredFields) {
		t.Fatalf("expected missing-fields fault, got %v", err)
	}
	for _, field := range []string{"visualElements", "actions", "context"} {
		if !strings.Contains(err.Error(), field) {
			t.Errorf("error should name %s: %v", field, err)
		}
	}
}

func TestParseEmptyDescriptionIsMissing(t *testing.T) {
	raw := `{"description": "  ", "visualElements": [], "actions": [], "context": "x", "confidence": 0.5}`
	_, err := parseAnalysisResponse(raw)
	if !faults.Is(err, faults.CodeMissingRequiredFields) {
		t.Fatalf("blank description should count as missing, got %v", err)
	}
}

func TestParseClampsConfidence(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want float64
	}{
		{"above scale", "130", 100},
		{"below zero", "-5", 0},
		{"percentage in range", "87", 87},
		{"low in range", "0.5", 0.5},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			raw := `{"description": "a scene", "visualElements": [], "actions": [], "context": "x", "confidence": ` + tc.in + `}`
			got, err := parseAnalysisResponse(raw)
			if err != nil {
				t.Fatalf("parseAnalysisResponse: %v", err)
			}
			if got.Confidence != tc.want {
				t.Errorf("confidence %v, want %v", got.Confidence, tc.want)
			}
		})
	}
}

func TestNormalizeDescription(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"a  busy   street", "A busy street."},
		{"already punctuated!", "Already punctuated!"},
		{"ends with question?", "Ends with question?"},
		{"  padded  ", "Padded."},
	}
	for _, tc := range tests {
		if got := normalizeDescription(tc.in); got != tc.want {
			t.Errorf("normalizeDescription(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}
