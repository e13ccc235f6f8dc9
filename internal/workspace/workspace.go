// Package workspace manages the per-job temporary directory that holds the
// downloaded source video and extracted clips. A workspace is owned
// exclusively by the job that created it; Cleanup runs on success and
// failure paths alike, and a scheduled sweep removes orphaned workspaces as
// a safety net for crashed processes.
package workspace

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog/log"
)

// dirPrefix marks directories the sweeper is allowed to touch.
const dirPrefix = "narrator-"

// Workspace is one job's scratch directory.
type Workspace struct {
	JobID string
	Dir   string
}

// New creates a fresh workspace under baseDir for the given job. baseDir ""
// means the system temp dir.
func New(baseDir, jobID string) (*Workspace, error) {
	if baseDir == "" {
		baseDir = os.TempDir()
	}
	if err := os.MkdirAll(baseDir, 0o755); err != nil {
		return nil, fmt.Errorf("create workspace base %s: %w", baseDir, err)
	}
	dir, err := os.MkdirTemp(baseDir, dirPrefix+jobID+"-")
	if err != nil {
		return nil, fmt.Errorf("create workspace for job %s: %w", jobID, err)
	}
	log.Debug().Str("jobId", jobID).Str("dir", dir).Msg("Workspace created")
	return &Workspace{JobID: jobID, Dir: dir}, nil
}

// Path returns the absolute path for a file inside the workspace.
func (w *Workspace) Path(name string) string {
	return filepath.Join(w.Dir, name)
}

// Cleanup removes the workspace and everything in it. Safe to call more
// than once.
func (w *Workspace) Cleanup() {
	if err := os.RemoveAll(w.Dir); err != nil {
		log.Warn().Err(err).Str("jobId", w.JobID).Str("dir", w.Dir).Msg("Workspace cleanup failed")
		return
	}
	log.Debug().Str("jobId", w.JobID).Str("dir", w.Dir).Msg("Workspace removed")
}

// Sweeper periodically removes orphaned workspaces older than MaxAge. It is
// a safety net for processes that died mid-job, not the primary cleanup
// mechanism; live jobs clean their own workspace.
type Sweeper struct {
	baseDir string
	maxAge  time.Duration
	cron    *cron.Cron
}

// NewSweeper creates a sweeper over baseDir for workspaces older than maxAge.
func NewSweeper(baseDir string, maxAge time.Duration) *Sweeper {
	if baseDir == "" {
		baseDir = os.TempDir()
	}
	if maxAge <= 0 {
		maxAge = 6 * time.Hour
	}
	return &Sweeper{baseDir: baseDir, maxAge: maxAge}
}

// Start schedules the sweep on the given cron expression (e.g. "@every 1h")
// and runs until Stop.
func (s *Sweeper) Start(schedule string) error {
	c := cron.New()
	if _, err := c.AddFunc(schedule, func() {
		removed, err := s.SweepOnce()
		if err != nil {
			log.Warn().Err(err).Msg("Workspace sweep failed")
			return
		}
		if removed > 0 {
			log.Info().Int("removed", removed).Msg("Orphaned workspaces swept")
		}
	}); err != nil {
		return fmt.Errorf("schedule workspace sweep %q: %w", schedule, err)
	}
	c.Start()
	s.cron = c
	log.Debug().Str("schedule", schedule).Dur("maxAge", s.maxAge).Msg("Workspace sweeper started")
	return nil
}

// Stop halts the scheduled sweep.
func (s *Sweeper) Stop() {
	if s.cron != nil {
		s.cron.Stop()
	}
}

// SweepOnce removes orphaned workspaces immediately and returns how many
// were deleted.
func (s *Sweeper) SweepOnce() (int, error) {
	entries, err := os.ReadDir(s.baseDir)
	if err != nil {
		if os.IsNotExist(err) {
			return 0, nil
		}
		return 0, fmt.Errorf("read workspace base %s: %w", s.baseDir, err)
	}

	cutoff := time.Now().Add(-s.maxAge)
	removed := 0
	for _, entry := range entries {
		if !entry.IsDir() || !strings.HasPrefix(entry.Name(), dirPrefix) {
			continue
		}
		info, err := entry.Info()
		if err != nil || info.ModTime().After(cutoff) {
			continue
		}
		dir := filepath.Join(s.baseDir, entry.Name())
		if err := os.RemoveAll(dir); err != nil {
			log.Warn().Err(err).Str("dir", dir).Msg("Failed to remove orphaned workspace")
			continue
		}
		log.Debug().Str("dir", dir).Time("modTime", info.ModTime()).Msg("Orphaned workspace removed")
		removed++
	}
	return removed, nil
}
