package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/carlosalbertobarbosajunior/voice-translator/internal/artifact"
	"github.com/carlosalbertobarbosajunior/voice-translator/internal/audio"
	"github.com/carlosalbertobarbosajunior/voice-translator/internal/config"
	"github.com/carlosalbertobarbosajunior/voice-translator/internal/logging"
	"github.com/carlosalbertobarbosajunior/voice-translator/internal/metrics"
	"github.com/carlosalbertobarbosajunior/voice-translator/internal/recorder"
	"github.com/carlosalbertobarbosajunior/voice-translator/internal/server"
	"github.com/carlosalbertobarbosajunior/voice-translator/internal/session"
	"github.com/carlosalbertobarbosajunior/voice-translator/internal/speech"
	"github.com/carlosalbertobarbosajunior/voice-translator/internal/translator"
)

const (
	serviceName    = "voice-translator"
	serviceVersion = "1.0.0"
)

func main() {
	// Parse command line flags
	configPath := flag.String("config", "", "Path to configuration file (defaults only when empty)")
	envFile := flag.String("env-file", ".env", "Path to .env file")
	flag.Parse()

	if err := config.LoadEnvFile(*envFile); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load env file: %v\n", err)
		os.Exit(1)
	}

	// Load configuration
	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	logger, closeLog := logging.New(cfg.Logging)
	defer closeLog()

	if err := run(cfg, logger); err != nil {
		logger.Error("Service failed", slog.String("error", err.Error()))
		closeLog()
		os.Exit(1)
	}
}

func run(cfg *config.Config, logger *slog.Logger) error {
	logger.Info("Service starting",
		slog.String("service", serviceName),
		slog.String("version", serviceVersion),
	)

	// Log configuration summary (without sensitive data)
	logger.Info("Configuration loaded",
		slog.String("address", cfg.Server.GetAddr()),
		slog.Int("sample_rate", cfg.Audio.SampleRate),
		slog.String("engine", cfg.Translation.Engine),
		slog.String("languages", cfg.Translation.LanguagePair().String()),
		slog.String("storage_dir", cfg.Storage.Dir),
		slog.String("log_level", cfg.Logging.Level),
	)

	// Initialize Prometheus metrics
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	appMetrics := metrics.NewMetrics(reg)

	ffmpeg := audio.NewFFmpeg(cfg.Audio.FFmpegPath)
	if !ffmpeg.Available() {
		logger.Warn("ffmpeg not found, only WAV and raw PCM uploads can be decoded",
			slog.String("path", cfg.Audio.FFmpegPath))
	}
	codec := audio.NewCodec(cfg.Audio.SampleRate, ffmpeg)

	factory, closeEngine, err := speech.NewFactory(cfg.SpeechOptions(), codec, logger, appMetrics)
	if err != nil {
		return fmt.Errorf("failed to create speech engine: %w", err)
	}
	defer closeEngine()

	orch, err := translator.New(cfg.Translation.LanguagePair(), factory, logger, appMetrics)
	if err != nil {
		return fmt.Errorf("failed to create orchestrator: %w", err)
	}

	store, err := artifact.NewStore(cfg.Storage.Dir, codec, logger, appMetrics)
	if err != nil {
		return fmt.Errorf("failed to create artifact store: %w", err)
	}
	logger.Info("Artifact store initialized", slog.String("dir", store.Dir()))

	// the API translates uploads only, so the controller has no devices
	ctrl := session.New(nil, recorder.Config{}, orch, store, nil, logger, appMetrics)
	defer ctrl.Close()

	httpServer := server.NewHTTPServer(cfg.Server, server.Deps{
		Controller: ctrl,
		Store:      store,
		Codec:      codec,
		Metrics:    appMetrics,
		Gatherer:   reg,
	}, logger)

	if err := httpServer.Start(); err != nil {
		return err
	}

	// Setup signal handling for graceful shutdown
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	logger.Info("Service started successfully, waiting for signals...",
		slog.String("http_address", httpServer.Addr()),
	)

	sig := <-sigChan
	logger.Info("Received shutdown signal", slog.String("signal", sig.String()))

	logger.Info("Starting graceful shutdown...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.GetShutdownTimeoutDuration())
	defer shutdownCancel()

	if err := httpServer.Stop(shutdownCtx); err != nil {
		logger.Error("Error stopping HTTP server", slog.String("error", err.Error()))
	}

	logger.Info("Service stopped",
		slog.Int("artifacts", store.Len()),
	)
	return nil
}
