// Package jsonutil extracts and parses JSON from model responses that may be
// wrapped in markdown code fences or embedded in prose.
package jsonutil

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// ErrNoJSON means the text contains no JSON object or array at all.
// ErrInvalidJSON means a candidate was found but did not unmarshal.
// Callers use these to distinguish a model answering in prose from a model
// emitting broken JSON.
var (
	ErrNoJSON      = errors.New("no JSON content found")
	ErrInvalidJSON = errors.New("invalid JSON")
)

// StripFences removes ```json ... ``` or ``` ... ``` wrapping from text.
// Returns the content between the fences, or the original text if no fences
// are found.
func StripFences(text string) string {
	text = strings.TrimSpace(text)
	if !strings.HasPrefix(text, "```") {
		return text
	}

	lines := strings.Split(text, "\n")
	if len(lines) < 3 {
		return text
	}

	endIdx := len(lines) - 1
	for i := len(lines) - 1; i >= 1; i-- {
		if strings.TrimSpace(lines[i]) == "```" {
			endIdx = i
			break
		}
	}

	// lines[0] is the opening fence, possibly with a language tag.
	return strings.Join(lines[1:endIdx], "\n")
}

// Extract returns the JSON content (object or array) from text that may
// contain surrounding prose. It finds the first { or [ and matches it with
// the last corresponding } or ].
func Extract(text string) (string, error) {
	text = strings.TrimSpace(text)

	objIdx := strings.Index(text, "{")
	arrIdx := strings.Index(text, "[")

	if objIdx == -1 && arrIdx == -1 {
		return "", ErrNoJSON
	}

	var startIdx int
	var endChar string
	if arrIdx == -1 || (objIdx != -1 && objIdx <= arrIdx) {
		startIdx = objIdx
		endChar = "}"
	} else {
		startIdx = arrIdx
		endChar = "]"
	}

	text = text[startIdx:]
	endIdx := strings.LastIndex(text, endChar)
	if endIdx == -1 {
		return "", fmt.Errorf("%w: no closing %s", ErrNoJSON, endChar)
	}

	return text[:endIdx+1], nil
}

// Parse strips markdown fences from raw response text, extracts the JSON
// content, and unmarshals it into T. Errors wrap ErrNoJSON or ErrInvalidJSON.
func Parse[T any](raw string) (T, error) {
	var zero T

	jsonStr, err := Extract(StripFences(raw))
	if err != nil {
		return zero, fmt.Errorf("%w (raw length: %d)", err, len(raw))
	}

	var result T
	if err := json.Unmarshal([]byte(jsonStr), &result); err != nil {
		preview := jsonStr
		if len(preview) > 200 {
			preview = preview[:200] + "..."
		}
		return zero, fmt.Errorf("%w: %v (text: %s)", ErrInvalidJSON, err, preview)
	}
	return result, nil
}
