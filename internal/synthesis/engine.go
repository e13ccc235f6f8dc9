package synthesis

import (
	"bytes"
	"context"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/fpang/video-narrator/internal/faults"
	"github.com/fpang/video-narrator/internal/resilience"
)

// wordsPerMinute is the speaking rate used to estimate narration duration.
const wordsPerMinute = 150.0

// AudioMetadata describes a synthesized narration.
type AudioMetadata struct {
	// Duration is estimated from word count at a standard speaking rate,
	// not decoded from the audio.
	Duration   float64 `json:"duration"`
	Format     string  `json:"format"`
	VoiceID    string  `json:"voiceId"`
	TextLength int     `json:"textLength"`
	ChunkCount int     `json:"chunkCount"`
}

// AudioOutput is the synthesized narration audio plus its metadata.
type AudioOutput struct {
	AudioBuffer []byte
	Metadata    AudioMetadata
}

// Config holds the synthesis engine settings.
type Config struct {
	// ChunkLimit caps per-request text size. Default MaxChunkChars.
	ChunkLimit int
	// ChunkInterval spaces successive service calls. Default 100ms.
	ChunkInterval time.Duration
	// RetryBase is the backoff before a chunk's second attempt. Default 1s.
	RetryBase time.Duration
	// MaxAttempts is the per-chunk attempt budget. Default 3.
	MaxAttempts int
	// BreakerThreshold is the consecutive-failure count that opens the
	// circuit. Default 5.
	BreakerThreshold int
	// BreakerCooldown is how long the circuit stays open. Default 30s.
	BreakerCooldown time.Duration
}

func (c Config) withDefaults() Config {
	if c.ChunkLimit <= 0 {
		c.ChunkLimit = MaxChunkChars
	}
	if c.ChunkInterval <= 0 {
		c.ChunkInterval = 100 * time.Millisecond
	}
	if c.RetryBase <= 0 {
		c.RetryBase = time.Second
	}
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = 3
	}
	if c.BreakerThreshold <= 0 {
		c.BreakerThreshold = 5
	}
	if c.BreakerCooldown <= 0 {
		c.BreakerCooldown = 30 * time.Second
	}
	return c
}

// Engine synthesizes a transcript chunk by chunk and concatenates the audio
// in order. Unlike extraction and analysis, a chunk failure is fatal: a
// narration with a hole in the middle is worse than no narration.
type Engine struct {
	synth   SpeechSynthesizer
	breaker *resilience.Breaker
	cfg     Config
}

func NewEngine(synth SpeechSynthesizer, cfg Config) *Engine {
	cfg = cfg.withDefaults()
	return &Engine{
		synth:   synth,
		breaker: resilience.NewBreaker("polly-synthesis", cfg.BreakerThreshold, cfg.BreakerCooldown),
		cfg:     cfg,
	}
}

// SynthesizeText cleans the text, splits it under the service limit, and
// synthesizes each chunk with retries.
func (e *Engine) SynthesizeText(ctx context.Context, text, voiceID string) (*AudioOutput, error) {
	if voiceID == "" {
		voiceID = DefaultVoiceID
	}

	cleaned := CleanForSpeech(text)
	if cleaned == "" {
		return nil, faults.New(faults.CodeValidation, "no speakable text after cleaning")
	}

	chunks := SplitChunks(cleaned, e.cfg.ChunkLimit)
	log.Debug().Int("chunks", len(chunks)).Int("textLength", len(cleaned)).Msg("Synthesizing narration")

	var audio bytes.Buffer
	for i, chunk := range chunks {
		if i > 0 {
			select {
			case <-time.After(e.cfg.ChunkInterval):
			case <-ctx.Done():
				return nil, faults.Wrap(faults.CodeCancelled, ctx.Err(), "synthesis aborted")
			}
		}

		data, err := e.synthesizeChunk(ctx, chunk, voiceID)
		if err != nil {
			return nil, faults.Wrap(faults.CodeChunkSynthesisFailed, err,
				"synthesize chunk %d of %d", i+1, len(chunks))
		}
		audio.Write(data)
	}

	words := len(strings.Fields(cleaned))
	out := &AudioOutput{
		AudioBuffer: audio.Bytes(),
		Metadata: AudioMetadata{
			Duration:   float64(words) / wordsPerMinute * 60,
			Format:     "mp3",
			VoiceID:    voiceID,
			TextLength: len(cleaned),
			ChunkCount: len(chunks),
		},
	}

	log.Info().
		Int("chunks", len(chunks)).
		Int("audioBytes", len(out.AudioBuffer)).
		Float64("estimatedDuration", out.Metadata.Duration).
		Msg("Narration synthesized")
	return out, nil
}

func (e *Engine) synthesizeChunk(ctx context.Context, chunk, voiceID string) ([]byte, error) {
	var data []byte
	err := resilience.Retry(ctx, resilience.RetryConfig{
		MaxAttempts: e.cfg.MaxAttempts,
		BaseDelay:   e.cfg.RetryBase,
		Name:        "synthesize-chunk",
	}, func(ctx context.Context) error {
		return e.breaker.Do(ctx, func(ctx context.Context) error {
			audio, err := e.synth.Synthesize(ctx, chunk, voiceID)
			if err != nil {
				return faults.Transient(err, "speech synthesis call")
			}
			data = audio
			return nil
		})
	})
	return data, err
}
