package pipeline

import (
	"context"
	"fmt"
	"sync"

	"github.com/fpang/video-narrator/internal/compilation"
	"github.com/fpang/video-narrator/internal/synthesis"
)

// MemoryArtifactStore keeps results in process memory. It backs the CLI
// when no artifact bucket is configured, and tests.
type MemoryArtifactStore struct {
	mu          sync.Mutex
	transcripts map[string]*compilation.Transcript
	audio       map[string][]byte
}

func NewMemoryArtifactStore() *MemoryArtifactStore {
	return &MemoryArtifactStore{
		transcripts: make(map[string]*compilation.Transcript),
		audio:       make(map[string][]byte),
	}
}

func (s *MemoryArtifactStore) SaveTranscript(_ context.Context, jobID string, t *compilation.Transcript) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := fmt.Sprintf("results/%s/transcript.json", jobID)
	copied := *t
	s.transcripts[key] = &copied
	return key, nil
}

func (s *MemoryArtifactStore) SaveAudio(_ context.Context, jobID string, out *synthesis.AudioOutput) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := fmt.Sprintf("results/%s/narration.%s", jobID, out.Metadata.Format)
	s.audio[key] = append([]byte(nil), out.AudioBuffer...)
	return key, nil
}

func (s *MemoryArtifactStore) LoadTranscript(_ context.Context, key string) (*compilation.Transcript, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.transcripts[key]
	if !ok {
		return nil, fmt.Errorf("transcript %s not found", key)
	}
	copied := *t
	return &copied, nil
}

func (s *MemoryArtifactStore) LoadAudio(_ context.Context, key string) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.audio[key]
	if !ok {
		return nil, fmt.Errorf("audio %s not found", key)
	}
	return append([]byte(nil), a...), nil
}
