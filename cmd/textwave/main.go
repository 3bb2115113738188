package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/textwave/textwave/internal/bus"
	"github.com/textwave/textwave/internal/config"
	"github.com/textwave/textwave/internal/convert"
	"github.com/textwave/textwave/internal/jobstore"
	"github.com/textwave/textwave/internal/natsserver"
	"github.com/textwave/textwave/internal/pdf"
	"github.com/textwave/textwave/internal/power"
	"github.com/textwave/textwave/internal/runtime"
	"github.com/textwave/textwave/internal/tts"
	"github.com/textwave/textwave/internal/update"
)

var version = "0.1.0-dev"

func main() {
	os.Exit(run())
}

func run() int {
	var (
		configPath  string
		inputPath   string
		outputPath  string
		voice       string
		showVersion bool
	)

	flag.StringVar(&configPath, "config", "", "Path to configuration file")
	flag.StringVar(&inputPath, "in", "", "PDF file to convert")
	flag.StringVar(&outputPath, "out", "", "Output MP3 path (default: input path with .mp3)")
	flag.StringVar(&voice, "voice", "", "Narration voice (overrides config)")
	flag.BoolVar(&showVersion, "version", false, "Print version and exit")
	flag.Parse()

	if showVersion {
		fmt.Println(version)
		return 0
	}
	if inputPath == "" {
		fmt.Fprintln(os.Stderr, "usage: textwave -in book.pdf [-out book.mp3] [-voice name]")
		return 1
	}
	if outputPath == "" {
		outputPath = strings.TrimSuffix(inputPath, filepath.Ext(inputPath)) + ".mp3"
	}
	// Absolute paths keep the resume fingerprint stable across working dirs.
	if abs, err := filepath.Abs(inputPath); err == nil {
		inputPath = abs
	}
	if abs, err := filepath.Abs(outputPath); err == nil {
		outputPath = abs
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		return 1
	}
	if voice == "" {
		voice = cfg.TTS.Voice
	}

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: parseLogLevel(cfg.Telemetry.LogLevel),
	}))
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	rt := runtime.New(cfg, logger)
	if err := rt.Start(ctx); err != nil {
		logger.Error("runtime start failed", slog.String("error", err.Error()))
		return 1
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := rt.Shutdown(shutdownCtx); err != nil {
			logger.Error("runtime shutdown error", slog.String("error", err.Error()))
		}
	}()

	store, err := jobstore.Open(ctx, cfg.JobStore, logger)
	if err != nil {
		logger.Error("failed to open job store", slog.String("error", err.Error()))
		return 1
	}
	defer store.Close()

	sinks := []convert.ProgressSink{rt, consoleSink(logger)}

	var publisher *bus.ProgressPublisher
	if cfg.Bus.Enabled {
		srv, err := natsserver.Start(cfg.Bus, logger)
		if err != nil {
			logger.Error("failed to start embedded bus", slog.String("error", err.Error()))
			return 1
		}
		defer srv.Shutdown()

		client, err := bus.Connect(cfg.Bus, logger)
		if err != nil {
			logger.Error("failed to connect to bus", slog.String("error", err.Error()))
			return 1
		}
		defer client.Close()

		publisher = bus.NewProgressPublisher(client, inputPath, logger)
		sinks = append(sinks, publisher)
	}

	synth, err := buildSynthesizer(cfg.TTS)
	if err != nil {
		logger.Error("failed to build synthesizer", slog.String("error", err.Error()))
		return 1
	}

	pipeline, err := convert.NewPipeline(cfg, convert.PipelineDeps{
		Extractor: pdf.NewExtractor(logger),
		Synth:     synth,
		Guard:     power.NewGuard(cfg.Power.Enabled, logger),
		Sink:      convert.MultiSink(sinks...),
		Store:     store,
		Logger:    logger,
	})
	if err != nil {
		logger.Error("failed to build pipeline", slog.String("error", err.Error()))
		return 1
	}

	g, gctx := errgroup.WithContext(ctx)

	if cfg.Update.Enabled {
		g.Go(func() error {
			checkCtx, cancel := context.WithTimeout(gctx, 10*time.Second)
			defer cancel()
			rel, newer, err := update.NewChecker(cfg.Update.Repo).Check(checkCtx, version)
			if err != nil {
				logger.Debug("update check failed", slog.String("error", err.Error()))
				return nil
			}
			if newer {
				logger.Info("a newer release is available",
					slog.String("current", version),
					slog.String("latest", rel.TagName),
					slog.String("url", rel.HTMLURL))
			}
			return nil
		})
	}

	var (
		job     *convert.Job
		convErr error
	)
	g.Go(func() error {
		job, convErr = pipeline.Convert(gctx, inputPath, outputPath, voice)
		return nil
	})
	_ = g.Wait()

	if publisher != nil && job != nil {
		publisher.PublishDone(job, convErr)
	}

	switch {
	case convErr == nil:
		return 0
	case errors.Is(convErr, convert.ErrEmptyDocument):
		logger.Warn("document had no narratable text, no audio written")
		return 0
	case errors.Is(convErr, convert.ErrCancelled):
		return 2
	default:
		logger.Error("conversion failed", slog.String("error", convErr.Error()))
		return 1
	}
}

// consoleSink prints one structured line per progress report.
func consoleSink(logger *slog.Logger) convert.ProgressSink {
	return convert.ProgressFunc(func(p convert.Progress) {
		logger.Info("progress",
			slog.String("job_id", p.JobID),
			slog.String("status", p.Status),
			slog.Int("completed", p.Completed),
			slog.Int("total", p.Total),
			slog.String("percent", fmt.Sprintf("%.1f", p.Percent())),
			slog.Int64("bytes", p.BytesWritten),
			slog.Duration("elapsed", p.Elapsed.Round(time.Second)),
			slog.Duration("eta", p.ETA.Round(time.Second)))
	})
}

func buildSynthesizer(cfg config.TTSConfig) (tts.Synthesizer, error) {
	switch cfg.Mode {
	case "mock":
		return tts.NewMockSynth(50 * time.Millisecond), nil
	case "exec":
		return tts.NewExecSynth(cfg.Command, "")
	case "openai":
		return tts.NewOpenAISynth(cfg.Endpoint, cfg.APIKey,
			tts.WithModel(cfg.Model),
			tts.WithSpeed(cfg.Speed),
			tts.WithFormat(cfg.Format))
	default:
		return nil, fmt.Errorf("unknown tts mode %q", cfg.Mode)
	}
}

func parseLogLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
