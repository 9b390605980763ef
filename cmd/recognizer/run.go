package main

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	recognition "github.com/chelleboyer/reachy-recognizer/core"
	"github.com/chelleboyer/reachy-recognizer/core/behaviors"
	"github.com/chelleboyer/reachy-recognizer/core/behaviors/reachy"
	"github.com/chelleboyer/reachy-recognizer/core/perception"
	"github.com/chelleboyer/reachy-recognizer/core/speech"
	"github.com/chelleboyer/reachy-recognizer/core/speech/deepgram"
	"github.com/chelleboyer/reachy-recognizer/core/speech/miniaudio"
	"github.com/chelleboyer/reachy-recognizer/internal/config"
	"github.com/chelleboyer/reachy-recognizer/internal/web"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the engine, reading observation frames from stdin",
	RunE:  runEngine,
}

func init() {
	rootCmd.AddCommand(runCmd)
}

func runEngine(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	logger, err := zap.NewProduction()
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	defer func() { _ = logger.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	registry := recognition.NewRegistry(
		recognition.WithHistoryCapacity(cfg.Tracking.HistoryCapacity),
	)
	tracker := recognition.NewTracker(registry,
		recognition.WithAppearanceThreshold(cfg.Tracking.AppearanceThreshold),
		recognition.WithDepartureThreshold(cfg.Tracking.DepartureThreshold),
	)

	executor, cleanupActuator := buildExecutor(ctx, cfg, logger)
	defer cleanupActuator()

	synthesizer, cleanupSpeech, err := buildSynthesizer(cfg, logger)
	if err != nil {
		return err
	}
	defer cleanupSpeech()

	coordinatorOpts := []recognition.CoordinatorOption{
		recognition.WithSynthesizer(synthesizer),
		recognition.WithExecutor(executor),
		recognition.WithSpeechOffset(cfg.Response.SpeechOffset.D()),
		recognition.WithTargetLatency(cfg.Response.TargetLatency.D()),
		recognition.WithWatchdogTimeout(cfg.Response.WatchdogTimeout.D()),
		recognition.WithBatchWindow(cfg.Response.BatchWindow.D()),
	}
	if cfg.Response.Farewells {
		coordinatorOpts = append(coordinatorOpts, recognition.WithFarewells())
	}

	var idle *behaviors.IdleManager
	if cfg.Idle.Enabled {
		idle = behaviors.NewIdleManager(executor,
			behaviors.WithIdleThreshold(cfg.Idle.Threshold.D()),
			behaviors.WithIdleInterval(cfg.Idle.Interval.D()),
		)
		coordinatorOpts = append(coordinatorOpts,
			recognition.WithActivityCallback(idle.NotifyActivity))
	}

	coordinator := recognition.NewCoordinator(registry, coordinatorOpts...)
	coordinator.Start(ctx)
	defer coordinator.Close()

	if idle != nil {
		idle.Start(ctx)
		defer idle.Close()
	}

	if cfg.Web.Addr != "" {
		server := web.NewServer(cfg.Web.Addr, registry, tracker, coordinator, executor, logger)
		go func() {
			if err := server.Start(); err != nil {
				logger.Error("web server failed", zap.Error(err))
			}
		}()
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = server.Shutdown(shutdownCtx)
		}()
	}

	logger.Info("engine running",
		zap.Int("appearance_threshold", cfg.Tracking.AppearanceThreshold),
		zap.Int("departure_threshold", cfg.Tracking.DepartureThreshold),
		zap.String("speech_mode", cfg.Speech.Mode),
	)

	return ingestFrames(ctx, tracker, logger)
}

// ingestFrames reads one JSON observation array per line until stdin
// closes or the context is cancelled.
func ingestFrames(ctx context.Context, tracker *recognition.Tracker, logger *zap.Logger) error {
	lines := make(chan string)
	scanErr := make(chan error, 1)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(os.Stdin)
		scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
		for scanner.Scan() {
			select {
			case lines <- scanner.Text():
			case <-ctx.Done():
				return
			}
		}
		scanErr <- scanner.Err()
	}()

	for {
		select {
		case <-ctx.Done():
			logger.Info("shutting down")
			return nil
		case line, ok := <-lines:
			if !ok {
				select {
				case err := <-scanErr:
					if err != nil {
						return fmt.Errorf("failed to read frames: %w", err)
					}
				default:
				}
				logger.Info("input closed, shutting down")
				return nil
			}
			if line == "" {
				tracker.Ingest(ctx, nil)
				continue
			}

			var observations []perception.Observation
			if err := json.Unmarshal([]byte(line), &observations); err != nil {
				logger.Warn("skipping malformed frame", zap.Error(err))
				continue
			}
			tracker.Ingest(ctx, observations)
		}
	}
}

// buildExecutor connects the Reachy actuator when an endpoint is
// configured; otherwise the executor runs simulated.
func buildExecutor(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*behaviors.Executor, func()) {
	if cfg.Reachy.Endpoint == "" {
		return behaviors.NewExecutor(nil), func() {}
	}

	client, err := reachy.Connect(ctx, cfg.Reachy.Endpoint)
	if err != nil {
		logger.Warn("failed to connect to reachy, running simulated", zap.Error(err))
		return behaviors.NewExecutor(nil), func() {}
	}

	logger.Info("connected to reachy", zap.String("endpoint", cfg.Reachy.Endpoint))
	return behaviors.NewExecutor(client), func() { _ = client.Close() }
}

func buildSynthesizer(cfg *config.Config, logger *zap.Logger) (speech.Synthesizer, func(), error) {
	if cfg.Speech.Mode == "simulated" {
		logger.Info("speech running simulated")
		return speech.NewSimulated(), func() {}, nil
	}

	sink, err := miniaudio.NewSink(miniaudio.WithSampleRate(cfg.Speech.SampleRate))
	if err != nil {
		logger.Warn("audio device unavailable, speech running simulated", zap.Error(err))
		return speech.NewSimulated(), func() {}, nil
	}
	cleanup := func() { _ = sink.Close() }

	opts := []deepgram.Option{
		deepgram.WithAPIKey(cfg.Speech.APIKey),
		deepgram.WithVoice(cfg.Speech.Voice),
		deepgram.WithSampleRate(cfg.Speech.SampleRate),
		deepgram.WithSink(sink),
	}

	var synthesizer speech.Synthesizer
	if cfg.Speech.Mode == "rest" {
		synthesizer, err = deepgram.NewRESTSynthesizer(opts...)
	} else {
		synthesizer, err = deepgram.NewStreamingSynthesizer(opts...)
	}
	if err != nil {
		cleanup()
		return nil, nil, fmt.Errorf("failed to initialize speech: %w", err)
	}

	logger.Info("speech ready", zap.String("mode", cfg.Speech.Mode), zap.String("voice", cfg.Speech.Voice))
	return synthesizer, cleanup, nil
}
