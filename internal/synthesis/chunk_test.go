package synthesis

import (
	"strings"
	"testing"
)

func TestCleanForSpeech(t *testing.T) {
	tests := []struct {
		name, in, want string
	}{
		{"bracketed removed", "A dog runs [00:05.00] across the park.", "A dog runs across the park."},
		{"parenthetical removed", "The chef (seen earlier) plates the dish.", "The chef plates the dish."},
		{"abbreviation expanded", "Fruit, e.g. apples.", "Fruit, for example apples."},
		{"whitespace collapsed", "A   busy \n street.", "A busy street."},
		{"punct spacing fixed", "A pause , then motion .", "A pause, then motion."},
		{"already clean", "Nothing to fix here.", "Nothing to fix here."},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if got := CleanForSpeech(tc.in); got != tc.want {
				t.Errorf("CleanForSpeech(%q) = %q, want %q", tc.in, got, tc.want)
			}
		})
	}
}

// longText builds text of roughly n characters out of fixed sentences.
func longText(n int) string {
	const sentence = "The camera pans across a wide valley filled with morning fog. "
	var sb strings.Builder
	for sb.Len() < n {
		sb.WriteString(sentence)
	}
	return strings.TrimSpace(sb.String())
}

func TestSplitChunksShortTextSingleChunk(t *testing.T) {
	chunks := SplitChunks("A short narration.", 2500)
	if len(chunks) != 1 || chunks[0] != "A short narration." {
		t.Fatalf("got %v", chunks)
	}
}

func TestSplitChunksLongTextAtSentenceBoundaries(t *testing.T) {
	text := longText(6000)
	chunks := SplitChunks(text, 2500)

	if len(chunks) != 3 {
		t.Fatalf("expected 3 chunks for ~6000 chars at limit 2500, got %d", len(chunks))
	}
	for i, c := range chunks {
		if len(c) > 2500 {
			t.Errorf("chunk %d is %d chars, over the limit", i, len(c))
		}
		if !strings.HasSuffix(c, ".") {
			t.Errorf("chunk %d does not end at a sentence boundary: ...%q", i, c[len(c)-20:])
		}
	}
}

func TestSplitChunksReassembles(t *testing.T) {
	text := longText(6000)
	chunks := SplitChunks(text, 2500)

	joined := strings.Join(chunks, " ")
	if joined != text {
		t.Error("joined chunks do not reproduce the original text")
	}
}

func TestSplitChunksOversizedSentenceFallsBackToWords(t *testing.T) {
	// One 300-char sentence with no terminal punctuation until the end.
	words := strings.Repeat("valley ", 45)
	text := strings.TrimSpace(words) + "."

	chunks := SplitChunks(text, 100)
	if len(chunks) < 2 {
		t.Fatalf("oversized sentence should split, got %d chunks", len(chunks))
	}
	for i, c := range chunks {
		if len(c) > 100 {
			t.Errorf("chunk %d is %d chars, over the limit", i, len(c))
		}
	}
}

func TestSplitChunksEmptyText(t *testing.T) {
	if chunks := SplitChunks("   ", 2500); chunks != nil {
		t.Fatalf("expected nil for blank text, got %v", chunks)
	}
}
