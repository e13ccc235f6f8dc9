// Package config loads pipeline settings from an optional YAML file with
// environment variable overrides for deployment-specific values.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	AWS          AWSConfig          `yaml:"aws"`
	Segmentation SegmentationConfig `yaml:"segmentation"`
	Extraction   ExtractionConfig   `yaml:"extraction"`
	Analysis     AnalysisConfig     `yaml:"analysis"`
	Synthesis    SynthesisConfig    `yaml:"synthesis"`
	Workspace    WorkspaceConfig    `yaml:"workspace"`
}

type AWSConfig struct {
	Region string `yaml:"region"`
	// JobsTable enables the DynamoDB job store when set; empty keeps jobs
	// in memory.
	JobsTable string `yaml:"jobs_table"`
	// ArtifactBucket receives transcripts and narration audio.
	ArtifactBucket string `yaml:"artifact_bucket"`
}

type SegmentationConfig struct {
	MinConfidence   float32 `yaml:"min_confidence"`
	MergeGapSec     float64 `yaml:"merge_gap_sec"`
	PollIntervalSec float64 `yaml:"poll_interval_sec"`
	TimeoutSec      float64 `yaml:"timeout_sec"`
}

func (c SegmentationConfig) PollInterval() time.Duration { return seconds(c.PollIntervalSec) }
func (c SegmentationConfig) Timeout() time.Duration      { return seconds(c.TimeoutSec) }

type ExtractionConfig struct {
	Concurrency int `yaml:"concurrency"`
}

type AnalysisConfig struct {
	Model              string  `yaml:"model"`
	CallIntervalMs     int     `yaml:"call_interval_ms"`
	MaxAttempts        int     `yaml:"max_attempts"`
	BreakerThreshold   int     `yaml:"breaker_threshold"`
	BreakerCooldownSec float64 `yaml:"breaker_cooldown_sec"`
}

func (c AnalysisConfig) CallInterval() time.Duration {
	return time.Duration(c.CallIntervalMs) * time.Millisecond
}
func (c AnalysisConfig) BreakerCooldown() time.Duration { return seconds(c.BreakerCooldownSec) }

type SynthesisConfig struct {
	VoiceID            string  `yaml:"voice_id"`
	MaxAttempts        int     `yaml:"max_attempts"`
	BreakerThreshold   int     `yaml:"breaker_threshold"`
	BreakerCooldownSec float64 `yaml:"breaker_cooldown_sec"`
}

func (c SynthesisConfig) BreakerCooldown() time.Duration { return seconds(c.BreakerCooldownSec) }

type WorkspaceConfig struct {
	BaseDir string `yaml:"base_dir"`
	// SweepSchedule is a cron expression for orphaned workspace cleanup.
	SweepSchedule  string  `yaml:"sweep_schedule"`
	SweepMaxAgeSec float64 `yaml:"sweep_max_age_sec"`
}

func (c WorkspaceConfig) SweepMaxAge() time.Duration { return seconds(c.SweepMaxAgeSec) }

func seconds(s float64) time.Duration {
	return time.Duration(s * float64(time.Second))
}

// Defaults returns the configuration used when no file is present.
func Defaults() *Config {
	return &Config{
		AWS: AWSConfig{
			Region: "us-east-1",
		},
		Segmentation: SegmentationConfig{
			MinConfidence:   80,
			MergeGapSec:     1.0,
			PollIntervalSec: 3,
			TimeoutSec:      600,
		},
		Extraction: ExtractionConfig{
			Concurrency: 3,
		},
		Analysis: AnalysisConfig{
			CallIntervalMs:     500,
			MaxAttempts:        3,
			BreakerThreshold:   5,
			BreakerCooldownSec: 30,
		},
		Synthesis: SynthesisConfig{
			VoiceID:            "Joanna",
			MaxAttempts:        3,
			BreakerThreshold:   5,
			BreakerCooldownSec: 30,
		},
		Workspace: WorkspaceConfig{
			BaseDir:        os.TempDir(),
			SweepSchedule:  "@hourly",
			SweepMaxAgeSec: 6 * 3600,
		},
	}
}

// Load reads path (when non-empty) over the defaults, then applies
// environment overrides.
func Load(path string) (*Config, error) {
	cfg := Defaults()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", path, err)
		}
	}

	cfg.applyEnv()
	return cfg, nil
}

func (c *Config) applyEnv() {
	c.AWS.Region = env("AWS_REGION", c.AWS.Region)
	c.AWS.JobsTable = env("NARRATOR_JOBS_TABLE", c.AWS.JobsTable)
	c.AWS.ArtifactBucket = env("NARRATOR_ARTIFACT_BUCKET", c.AWS.ArtifactBucket)
	c.Analysis.Model = env("GEMINI_MODEL", c.Analysis.Model)
	c.Synthesis.VoiceID = env("NARRATOR_VOICE_ID", c.Synthesis.VoiceID)
	c.Workspace.BaseDir = env("NARRATOR_WORK_DIR", c.Workspace.BaseDir)
	c.Extraction.Concurrency = envInt("NARRATOR_EXTRACT_CONCURRENCY", c.Extraction.Concurrency)
}

func env(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return fallback
}
