package synthesis

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/fpang/video-narrator/internal/faults"
)

type fakeSynth struct {
	calls []string
	// failOnCall fails the nth call (1-based) permanently.
	failOnCall int
	// transientFailures fails the first n calls, then succeeds.
	transientFailures int
}

func (f *fakeSynth) Synthesize(_ context.Context, text, _ string) ([]byte, error) {
	f.calls = append(f.calls, text)
	n := len(f.calls)
	if f.failOnCall > 0 && n >= f.failOnCall {
		return nil, errors.New("throttled")
	}
	if n <= f.transientFailures {
		return nil, errors.New("throttled")
	}
	return []byte(fmt.Sprintf("<audio:%d>", len(text))), nil
}

func fastEngine(synth SpeechSynthesizer, chunkLimit int) *Engine {
	return NewEngine(synth, Config{
		ChunkLimit:    chunkLimit,
		ChunkInterval: time.Millisecond,
		RetryBase:     time.Millisecond,
		MaxAttempts:   3,
	})
}

func TestSynthesizeTextSingleChunk(t *testing.T) {
	synth := &fakeSynth{}
	engine := fastEngine(synth, 2500)

	out, err := engine.SynthesizeText(context.Background(), "A dog runs across a park.", "")
	if err != nil {
		t.Fatalf("SynthesizeText: %v", err)
	}
	if len(synth.calls) != 1 {
		t.Fatalf("expected 1 synthesis call, got %d", len(synth.calls))
	}
	m := out.Metadata
	if m.ChunkCount != 1 || m.Format != "mp3" || m.VoiceID != DefaultVoiceID {
		t.Errorf("metadata %+v", m)
	}
	// 6 words at 150 wpm.
	if m.Duration != 2.4 {
		t.Errorf("estimated duration %v, want 2.4", m.Duration)
	}
}

func TestSynthesizeTextConcatenatesChunksInOrder(t *testing.T) {
	synth := &fakeSynth{}
	engine := fastEngine(synth, 50)

	text := "First sentence here. Second sentence follows on. Third sentence closes it."
	out, err := engine.SynthesizeText(context.Background(), text, "Matthew")
	if err != nil {
		t.Fatalf("SynthesizeText: %v", err)
	}
	if out.Metadata.ChunkCount < 2 {
		t.Fatalf("expected multiple chunks, got %d", out.Metadata.ChunkCount)
	}

	var want strings.Builder
	for _, c := range synth.calls {
		want.WriteString(fmt.Sprintf("<audio:%d>", len(c)))
	}
	if string(out.AudioBuffer) != want.String() {
		t.Error("audio buffer is not the in-order concatenation of chunk audio")
	}
	if out.Metadata.VoiceID != "Matthew" {
		t.Errorf("voice id %q", out.Metadata.VoiceID)
	}
}

func TestSynthesizeTextRetriesTransientFailure(t *testing.T) {
	synth := &fakeSynth{transientFailures: 2}
	engine := fastEngine(synth, 2500)

	if _, err := engine.SynthesizeText(context.Background(), "A short narration.", ""); err != nil {
		t.Fatalf("SynthesizeText: %v", err)
	}
	if len(synth.calls) != 3 {
		t.Errorf("expected 3 calls, got %d", len(synth.calls))
	}
}

func TestSynthesizeTextChunkFailureIsFatal(t *testing.T) {
	synth := &fakeSynth{failOnCall: 1}
	engine := fastEngine(synth, 2500)

	_, err := engine.SynthesizeText(context.Background(), "A short narration.", "")
	if !faults.Is(err, faults.CodeChunkSynthesisFailed) {
		t.Fatalf("expected chunk-synthesis fault, got %v", err)
	}
}

func TestSynthesizeTextEmptyAfterCleaning(t *testing.T) {
	engine := fastEngine(&fakeSynth{}, 2500)

	_, err := engine.SynthesizeText(context.Background(), "[00:00.00 - 00:05.00]", "")
	if !faults.Is(err, faults.CodeValidation) {
		t.Fatalf("expected validation fault for unspeakable text, got %v", err)
	}
}

func TestDurationEstimateMonotonic(t *testing.T) {
	engine := fastEngine(&fakeSynth{}, 2500)

	short, err := engine.SynthesizeText(context.Background(), "One two three.", "")
	if err != nil {
		t.Fatalf("SynthesizeText: %v", err)
	}
	long, err := engine.SynthesizeText(context.Background(), "One two three four five six seven eight.", "")
	if err != nil {
		t.Fatalf("SynthesizeText: %v", err)
	}
	if long.Metadata.Duration <= short.Metadata.Duration {
		t.Errorf("longer text estimated shorter: %v <= %v", long.Metadata.Duration, short.Metadata.Duration)
	}
}

func TestSynthesizeTextBreakerShortCircuits(t *testing.T) {
	synth := &fakeSynth{failOnCall: 1}
	engine := NewEngine(synth, Config{
		ChunkLimit:       2500,
		ChunkInterval:    time.Millisecond,
		RetryBase:        time.Millisecond,
		MaxAttempts:      2,
		BreakerThreshold: 2,
		BreakerCooldown:  time.Minute,
	})

	// Two failed attempts open the circuit.
	if _, err := engine.SynthesizeText(context.Background(), "A dog runs.", ""); err == nil {
		t.Fatal("expected synthesis failure")
	}
	if len(synth.calls) != 2 {
		t.Fatalf("expected 2 calls before the circuit opens, got %d", len(synth.calls))
	}

	_, err := engine.SynthesizeText(context.Background(), "A cat sleeps.", "")
	if !faults.Is(err, faults.CodeBreakerOpen) {
		t.Fatalf("expected open-circuit fault, got %v", err)
	}
	if len(synth.calls) != 2 {
		t.Errorf("open circuit must not reach the service, got %d calls", len(synth.calls))
	}
}
