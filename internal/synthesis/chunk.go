// Package synthesis turns a narration transcript into speech audio.
package synthesis

import (
	"regexp"
	"strings"
)

// MaxChunkChars is the per-request text limit for the speech service.
const MaxChunkChars = 2500

var (
	bracketedRe   = regexp.MustCompile(`\[[^\]]*\]|\([^)]*\)`)
	whitespaceRe  = regexp.MustCompile(`\s+`)
	spacedPunctRe = regexp.MustCompile(`\s+([.,;:!?])`)
)

// abbreviations that a text-to-speech voice reads badly when left as-is.
var abbreviations = []struct{ from, to string }{
	{"e.g.", "for example"},
	{"i.e.", "that is"},
	{"etc.", "and so on"},
	{"vs.", "versus"},
	{"approx.", "approximately"},
}

// CleanForSpeech strips non-spoken artifacts from transcript text: bracketed
// annotations, stray whitespace before punctuation, and abbreviations that
// synthesis engines mispronounce.
func CleanForSpeech(text string) string {
	text = bracketedRe.ReplaceAllString(text, " ")
	for _, abbr := range abbreviations {
		text = strings.ReplaceAll(text, abbr.from, abbr.to)
	}
	text = whitespaceRe.ReplaceAllString(text, " ")
	text = spacedPunctRe.ReplaceAllString(text, "$1")
	return strings.TrimSpace(text)
}

// SplitChunks cuts text into pieces no longer than limit, preferring
// sentence boundaries. A sentence longer than the limit falls back to word
// boundaries so a chunk never exceeds the service maximum.
func SplitChunks(text string, limit int) []string {
	if limit <= 0 {
		limit = MaxChunkChars
	}
	text = strings.TrimSpace(text)
	if text == "" {
		return nil
	}
	if len(text) <= limit {
		return []string{text}
	}

	var chunks []string
	var current strings.Builder

	flush := func() {
		if s := strings.TrimSpace(current.String()); s != "" {
			chunks = append(chunks, s)
		}
		current.Reset()
	}

	for _, sentence := range splitSentences(text) {
		if len(sentence) > limit {
			flush()
			chunks = append(chunks, splitWords(sentence, limit)...)
			continue
		}
		// +1 for the joining space.
		if current.Len() > 0 && current.Len()+1+len(sentence) > limit {
			flush()
		}
		if current.Len() > 0 {
			current.WriteString(" ")
		}
		current.WriteString(sentence)
	}
	flush()
	return chunks
}

func splitSentences(text string) []string {
	var sentences []string
	start := 0
	for i, r := range text {
		if r == '.' || r == '!' || r == '?' {
			if s := strings.TrimSpace(text[start : i+1]); s != "" {
				sentences = append(sentences, s)
			}
			start = i + 1
		}
	}
	if tail := strings.TrimSpace(text[start:]); tail != "" {
		sentences = append(sentences, tail)
	}
	return sentences
}

func splitWords(sentence string, limit int) []string {
	var chunks []string
	var current strings.Builder

	for _, word := range strings.Fields(sentence) {
		if current.Len() > 0 && current.Len()+1+len(word) > limit {
			chunks = append(chunks, current.String())
			current.Reset()
		}
		if current.Len() > 0 {
			current.WriteString(" ")
		}
		current.WriteString(word)
	}
	if current.Len() > 0 {
		chunks = append(chunks, current.String())
	}
	return chunks
}
