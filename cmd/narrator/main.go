// Command narrator generates an accessibility audio narration for a video
// stored in S3: it detects scenes, extracts clips, describes each clip with
// Gemini, compiles the descriptions into a transcript, and synthesizes the
// narration with Amazon Polly.
package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/polly"
	"github.com/aws/aws-sdk-go-v2/service/rekognition"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/fpang/video-narrator/internal/analysis"
	"github.com/fpang/video-narrator/internal/auth"
	"github.com/fpang/video-narrator/internal/config"
	"github.com/fpang/video-narrator/internal/extraction"
	"github.com/fpang/video-narrator/internal/jobs"
	"github.com/fpang/video-narrator/internal/logging"
	"github.com/fpang/video-narrator/internal/pipeline"
	"github.com/fpang/video-narrator/internal/poller"
	"github.com/fpang/video-narrator/internal/segmentation"
	"github.com/fpang/video-narrator/internal/synthesis"
	"github.com/fpang/video-narrator/internal/workspace"
)

// CLI flags
var (
	videoFlag    string
	voiceFlag    string
	pipelineFlag string
	outputFlag   string
	configFlag   string
	durationFlag float64
)

var rootCmd = &cobra.Command{
	Use:   "narrator",
	Short: "AI-generated audio narration for video accessibility",
	Long: `Narrator turns a video stored in S3 into an audio description track for
blind and low-vision viewers.

The pipeline detects scene boundaries with Amazon Rekognition, cuts the
video into per-scene clips, asks Gemini to describe each clip, compiles the
descriptions into a narration transcript, and synthesizes speech with
Amazon Polly.

Examples:
  narrator --video s3://my-bucket/talk.mp4
  narrator --video s3://my-bucket/talk.mp4 --voice Matthew --output ./out
  narrator --video s3://my-bucket/poster.jpg --pipeline image`,
	Run: runMain,
}

func init() {
	rootCmd.Flags().StringVarP(&videoFlag, "video", "v", "", "S3 location of the source video (s3://bucket/key)")
	rootCmd.Flags().StringVar(&voiceFlag, "voice", "", "Polly voice for the narration (default from config)")
	rootCmd.Flags().StringVar(&pipelineFlag, "pipeline", pipeline.PipelineVideo, "Pipeline variant: video or image")
	rootCmd.Flags().StringVarP(&outputFlag, "output", "o", ".", "Directory for the transcript and audio output")
	rootCmd.Flags().StringVar(&configFlag, "config", "", "Path to a YAML config file")
	rootCmd.Flags().Float64Var(&durationFlag, "duration", 0, "Source runtime in seconds, used to print a completion estimate")
	rootCmd.MarkFlagRequired("video")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func runMain(cmd *cobra.Command, args []string) {
	logging.Init()

	// .env is optional; real deployments use the environment directly.
	if err := godotenv.Load(); err == nil {
		log.Debug().Msg("Loaded environment from .env")
	}

	cfg, err := config.Load(configFlag)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load configuration")
	}

	if pipelineFlag == pipeline.PipelineVideo {
		if err := extraction.CheckFFmpegAvailable(); err != nil {
			log.Fatal().Err(err).Msg("ffmpeg and ffprobe are required for the video pipeline")
		}
	}

	ctx := context.Background()
	orch, sweeper := buildOrchestrator(ctx, cfg)
	defer sweeper.Stop()

	voice := voiceFlag
	if voice == "" {
		voice = cfg.Synthesis.VoiceID
	}

	jobID, err := orch.SubmitJob(ctx, videoFlag, jobs.Options{VoiceID: voice, Pipeline: pipelineFlag})
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to submit narration job")
	}

	fmt.Println("============================================")
	fmt.Println("Video Narrator")
	fmt.Println("============================================")
	fmt.Printf("Source:   %s\n", videoFlag)
	fmt.Printf("Voice:    %s\n", voice)
	fmt.Printf("Pipeline: %s\n", pipelineFlag)
	fmt.Printf("Job:      %s\n", jobID)
	if durationFlag > 0 || pipelineFlag == pipeline.PipelineImage {
		est := pipeline.EstimateDuration(pipelineFlag, time.Duration(durationFlag*float64(time.Second)))
		fmt.Printf("Estimate: ~%s\n", est.Round(time.Second))
	}
	fmt.Println("--------------------------------------------")

	job := watchJob(ctx, orch, jobID)
	if job.Status != jobs.StatusCompleted {
		log.Fatal().
			Str("code", job.ErrorCode).
			Str("message", job.ErrorMessage).
			Msg("Narration job failed")
	}

	result, err := orch.GetResult(ctx, jobID)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load job result")
	}
	writeOutputs(result)
}

// buildOrchestrator wires the pipeline stages from configuration. The job
// store and artifact store are durable only when a table and bucket are
// configured; otherwise both live in process memory for the run.
func buildOrchestrator(ctx context.Context, cfg *config.Config) (*pipeline.Orchestrator, *workspace.Sweeper) {
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(cfg.AWS.Region))
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load AWS configuration")
	}

	s3Client := s3.NewFromConfig(awsCfg)
	rekClient := rekognition.NewFromConfig(awsCfg)
	pollyClient := polly.NewFromConfig(awsCfg)

	apiKey, err := auth.GetAPIKey()
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to retrieve Gemini API key")
	}
	genaiClient, err := analysis.NewGeminiClient(ctx, apiKey)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create Gemini client")
	}

	var store jobs.Store
	if cfg.AWS.JobsTable != "" {
		store = jobs.NewDynamoStore(dynamodb.NewFromConfig(awsCfg), cfg.AWS.JobsTable)
		log.Debug().Str("table", cfg.AWS.JobsTable).Msg("Using DynamoDB job store")
	} else {
		store = jobs.NewMemoryStore()
	}

	var artifacts pipeline.ArtifactStore
	if cfg.AWS.ArtifactBucket != "" {
		artifacts = pipeline.NewS3ArtifactStore(s3Client, cfg.AWS.ArtifactBucket)
		log.Debug().Str("bucket", cfg.AWS.ArtifactBucket).Msg("Uploading artifacts to S3")
	} else {
		artifacts = pipeline.NewMemoryArtifactStore()
	}

	cutter, err := extraction.NewFFmpegCutter()
	if err != nil && pipelineFlag == pipeline.PipelineVideo {
		log.Fatal().Err(err).Msg("Failed to initialize clip cutter")
	}

	detector := segmentation.NewRekognitionDetector(rekClient, float64(cfg.Segmentation.MinConfidence))
	segmenter := segmentation.NewEngine(detector, poller.New(), segmentation.Config{
		MinConfidence: float64(cfg.Segmentation.MinConfidence),
		MergeGap:      cfg.Segmentation.MergeGapSec,
		PollInterval:  cfg.Segmentation.PollInterval(),
		Timeout:       cfg.Segmentation.Timeout(),
	})

	fetcher := &extraction.S3Fetcher{Client: s3Client}
	extractor := extraction.NewEngine(cutter, fetcher, extraction.Config{
		Concurrency: cfg.Extraction.Concurrency,
	})

	analyzer := analysis.NewEngine(analysis.NewGeminiModel(genaiClient, cfg.Analysis.Model), analysis.Config{
		CallInterval:     cfg.Analysis.CallInterval(),
		MaxAttempts:      cfg.Analysis.MaxAttempts,
		BreakerThreshold: cfg.Analysis.BreakerThreshold,
		BreakerCooldown:  cfg.Analysis.BreakerCooldown(),
	})

	synthesizer := synthesis.NewEngine(synthesis.NewPollySynthesizer(pollyClient), synthesis.Config{
		MaxAttempts:      cfg.Synthesis.MaxAttempts,
		BreakerThreshold: cfg.Synthesis.BreakerThreshold,
		BreakerCooldown:  cfg.Synthesis.BreakerCooldown(),
	})

	sweeper := workspace.NewSweeper(cfg.Workspace.BaseDir, cfg.Workspace.SweepMaxAge())
	if err := sweeper.Start(cfg.Workspace.SweepSchedule); err != nil {
		log.Warn().Err(err).Msg("Workspace sweeper not started")
	}

	orch := pipeline.NewOrchestrator(pipeline.Deps{
		Store:       store,
		Artifacts:   artifacts,
		Segmenter:   segmenter,
		Extractor:   extractor,
		Analyzer:    analyzer,
		Synthesizer: synthesizer,
		Fetcher:     fetcher,
		WorkDir:     cfg.Workspace.BaseDir,
	})
	return orch, sweeper
}

// watchJob polls the job record and prints progress until it terminates.
func watchJob(ctx context.Context, orch *pipeline.Orchestrator, jobID string) *jobs.Job {
	var lastStep jobs.Step
	var lastProgress int

	for {
		job, err := orch.GetJobStatus(ctx, jobID)
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to check job status")
		}
		if job.Step != lastStep || job.Progress != lastProgress {
			fmt.Printf("  [%3d%%] %s\n", job.Progress, job.Step)
			lastStep, lastProgress = job.Step, job.Progress
		}
		if job.Status.Terminal() {
			return job
		}
		time.Sleep(time.Second)
	}
}

func writeOutputs(result *pipeline.JobResult) {
	if err := os.MkdirAll(outputFlag, 0o755); err != nil {
		log.Fatal().Err(err).Str("dir", outputFlag).Msg("Failed to create output directory")
	}

	transcriptPath := filepath.Join(outputFlag, "transcript.txt")
	timestampedPath := filepath.Join(outputFlag, "transcript-timestamped.txt")
	audioPath := filepath.Join(outputFlag, "narration.mp3")

	if err := os.WriteFile(transcriptPath, []byte(result.Transcript.CleanText), 0o644); err != nil {
		log.Fatal().Err(err).Msg("Failed to write transcript")
	}
	if err := os.WriteFile(timestampedPath, []byte(result.Transcript.TimestampedText), 0o644); err != nil {
		log.Fatal().Err(err).Msg("Failed to write timestamped transcript")
	}
	if err := os.WriteFile(audioPath, result.Audio, 0o644); err != nil {
		log.Fatal().Err(err).Msg("Failed to write narration audio")
	}

	m := result.Transcript.Metadata
	fmt.Println("--------------------------------------------")
	fmt.Println("Narration complete")
	fmt.Printf("  Scenes:     %d\n", m.TotalScenes)
	fmt.Printf("  Words:      %d\n", m.WordCount)
	fmt.Printf("  Confidence: %.2f\n", m.AverageConfidence)
	fmt.Printf("  Transcript: %s\n", transcriptPath)
	fmt.Printf("  Audio:      %s\n", audioPath)
	fmt.Println("============================================")
}
