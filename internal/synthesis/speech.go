package synthesis

import (
	"context"
	"fmt"
	"io"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/polly"
	"github.com/aws/aws-sdk-go-v2/service/polly/types"
)

// DefaultVoiceID is used when a job does not request a voice.
const DefaultVoiceID = "Joanna"

// SpeechSynthesizer converts one chunk of text to audio bytes.
type SpeechSynthesizer interface {
	Synthesize(ctx context.Context, text, voiceID string) ([]byte, error)
}

// PollySynthesizer implements SpeechSynthesizer on Amazon Polly using the
// neural engine and MP3 output.
type PollySynthesizer struct {
	client *polly.Client
}

func NewPollySynthesizer(client *polly.Client) *PollySynthesizer {
	return &PollySynthesizer{client: client}
}

func (p *PollySynthesizer) Synthesize(ctx context.Context, text, voiceID string) ([]byte, error) {
	if voiceID == "" {
		voiceID = DefaultVoiceID
	}

	out, err := p.client.SynthesizeSpeech(ctx, &polly.SynthesizeSpeechInput{
		Text:         aws.String(text),
		VoiceId:      types.VoiceId(voiceID),
		OutputFormat: types.OutputFormatMp3,
		Engine:       types.EngineNeural,
	})
	if err != nil {
		return nil, fmt.Errorf("Polly SynthesizeSpeech: %w", err)
	}
	defer out.AudioStream.Close()

	audio, err := io.ReadAll(out.AudioStream)
	if err != nil {
		return nil, fmt.Errorf("read Polly audio stream: %w", err)
	}
	return audio, nil
}
