package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/reelsmith/studio/internal/api"
	"github.com/reelsmith/studio/internal/blobstore"
	"github.com/reelsmith/studio/internal/config"
	"github.com/reelsmith/studio/internal/continuity"
	"github.com/reelsmith/studio/internal/db"
	"github.com/reelsmith/studio/internal/deps"
	"github.com/reelsmith/studio/internal/engine"
	"github.com/reelsmith/studio/internal/events"
	"github.com/reelsmith/studio/internal/frames"
	"github.com/reelsmith/studio/internal/generate"
	"github.com/reelsmith/studio/internal/llm"
	"github.com/reelsmith/studio/internal/logging"
	"github.com/reelsmith/studio/internal/media"
	"github.com/reelsmith/studio/internal/metrics"
	"github.com/reelsmith/studio/internal/prompt"
	"github.com/reelsmith/studio/internal/studio"
	"github.com/reelsmith/studio/internal/telemetry"
	"github.com/reelsmith/studio/internal/timeline"
	"github.com/reelsmith/studio/internal/versioning"
	"github.com/spf13/cobra"
)

var serveTrace bool

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API and the generation workers",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return serve()
	},
}

func init() {
	serveCmd.Flags().BoolVar(&serveTrace, "trace", false, "Write OpenTelemetry spans to stderr")
}

func serve() error {
	startTime := time.Now()

	cfg, err := config.New()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	for _, dir := range []string{cfg.DataDir(), cfg.OutputDir(), cfg.FrameCacheDir()} {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create %s: %w", dir, err)
		}
	}

	logger := logging.NewLogger(cfg.LogLevel())
	logger.Info("starting reelsmith studio", "version", Version, "data_dir", logging.SanitizePath(cfg.DataDir()))

	if serveTrace {
		shutdownTracer, err := telemetry.Init("reelsmith-studio", Version, os.Stderr)
		if err != nil {
			return err
		}
		defer func() {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			shutdownTracer(ctx)
		}()
	}

	database, err := db.New(cfg.DBPath(), logger)
	if err != nil {
		return fmt.Errorf("failed to initialize database: %w", err)
	}
	defer database.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	repo := studio.NewRepository(database.Conn())
	if n, err := repo.MarkInterruptedArtifacts(ctx); err != nil {
		logger.Warn("failed to mark interrupted artifacts", "error", err)
	} else if n > 0 {
		logger.Info("marked interrupted artifacts as failed", "count", n)
	}

	m := metrics.New()

	registry, err := engine.LoadRegistry(cfg.WorkflowsFile())
	if err != nil {
		return err
	}
	engineClient := engine.NewClient(cfg.EngineURL(), cfg.EngineTimeout(), registry, m, logger)

	tool := frames.NewTool(frameConfig(cfg, logger), nil, m)
	probeCtx, probeCancel := context.WithTimeout(ctx, 30*time.Second)
	if caps, err := tool.Doctor().Refresh(probeCtx); err != nil {
		logger.Warn("media tool probe failed", "error", err)
	} else if !caps.CanCompare() {
		logger.Warn("frame comparison unavailable, continuity checks will fail", "ffmpeg", caps.FFmpeg)
	}
	probeCancel()

	svc := studio.NewService(repo, logger)
	versions, err := versioning.NewStore(database.Conn(), logger)
	if err != nil {
		return err
	}
	svc.SetRecorder(versions)

	cont := continuity.NewEngine(repo, tool, logger)

	publisher := events.NewPublisher(cfg.NATSURL(), m, logger)
	defer publisher.Close()

	var blobs blobstore.Store = blobstore.Noop{}
	if cfg.S3Enabled() {
		s3Store, err := blobstore.NewS3Store(ctx, blobstore.Config{
			Endpoint:  cfg.S3Endpoint(),
			Region:    cfg.S3Region(),
			Bucket:    cfg.S3Bucket(),
			AccessKey: cfg.S3AccessKey(),
			SecretKey: cfg.S3SecretKey(),
		}, logger)
		if err != nil {
			logger.Warn("object storage unavailable, outputs stay local", "error", err)
		} else {
			blobs = s3Store
		}
	}

	var refiner *prompt.Refiner
	if cfg.LLMEnabled() {
		client := llm.NewClient(llm.Config{
			BaseURL: cfg.LLMBaseURL(),
			APIKey:  cfg.LLMAPIKey(),
			Model:   cfg.LLMModel(),
		}, m, logger)
		refiner = prompt.NewRefiner(client, logger)
		logger.Info("prompt refinement enabled", "model", cfg.LLMModel(), "api_key", logging.SanitizeToken(cfg.LLMAPIKey()))
	}

	dispatcher := generate.NewDispatcher(cfg.Workers(), logger)
	gen := generate.NewGenerator(database.Conn(), engineClient, dispatcher, generate.Options{
		OutputDir: cfg.OutputDir(),
		Retry: engine.AwaitOptions{
			MaxRetries:   cfg.MaxRetries(),
			RetryDelay:   cfg.RetryDelay(),
			PollInterval: cfg.PollInterval(),
		},
		Continuity: cont,
		Refiner:    refiner,
		Events:     publisher,
		Blobs:      blobs,
		Recorder:   versions,
		Metrics:    m,
		Logger:     logger,
	})

	graph := deps.NewGraph(repo, m, logger)
	for t, r := range gen.Refreshers() {
		graph.Register(t, r)
	}

	sweeper := generate.NewSweeper(gen, cfg.SweepInterval(), logger)
	go sweeper.Start(ctx)

	apiServer := api.NewServer(api.ServerConfig{
		Port:       cfg.Port(),
		Studio:     svc,
		Artifacts:  repo,
		Generator:  gen,
		Versions:   versions,
		Graph:      graph,
		Continuity: cont,
		Timelines:  timeline.NewService(repo, svc, filepath.Join(cfg.DataDir(), "exports"), logger),
		Media:      media.NewServer(cfg.OutputDir(), logger),
		Metrics:    m,
		Logger:     logger,
		StartTime:  startTime,
		Version:    Version,
	})

	serverErr := make(chan error, 1)
	go func() {
		serverErr <- apiServer.Start()
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		logger.Info("received shutdown signal", "signal", sig)
	case err := <-serverErr:
		if err != nil {
			logger.Error("HTTP server error", "error", err)
		}
	}

	logger.Info("initiating graceful shutdown")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := apiServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("failed to shutdown HTTP server", "error", err)
	}
	if err := dispatcher.Shutdown(shutdownCtx); err != nil {
		logger.Warn("dispatcher did not drain before the deadline", "error", err)
	}

	logger.Info("shutdown complete")
	return nil
}
