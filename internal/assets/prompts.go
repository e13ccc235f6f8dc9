// Package assets provides embedded static assets for the application.
//
// Prompt templates are stored as text files under prompts/ and embedded at
// compile time so the binary is self-contained.
package assets

import (
	_ "embed"
)

// AnalysisSystemPrompt instructs the vision model to produce accessibility
// scene descriptions as strict JSON.
//
//go:embed prompts/analysis-system.txt
var AnalysisSystemPrompt string
