package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Netflix/go-env"
	"github.com/blugelabs/bluge"
	"github.com/dgraph-io/badger/v4"
	"github.com/joho/godotenv"
	"github.com/labstack/echo/v4"
	"github.com/mama165/sdk-go/logs"

	"discussion-lab/ai"
	"discussion-lab/domain/event"
	"discussion-lab/infrastructure/ws"
	"discussion-lab/internal"
	"discussion-lab/moderation"
	"discussion-lab/observability"
	"discussion-lab/projection"
	"discussion-lab/repositories"
	"discussion-lab/runtime"
	"discussion-lab/runtime/workers"
	"discussion-lab/services"
	"discussion-lab/sink"
)

// Exit codes to provide meaningful status to the operating system or service manager (e.g., systemd).
const (
	exitOK      = 0
	exitRuntime = 1
	exitConfig  = 2
)

func main() {
	// The main function acts as a thin wrapper.
	// Its only responsibility is to call run() and handle the OS exit code.
	code, err := run()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Server terminated with error: %v\n", err)
	}
	os.Exit(code)
}

// run initializes all components, manages the server lifecycle, and centralizes error reporting.
// This pattern keeps 'defer' statements (like database cleanup) running before the program
// exits and decouples the initialization logic from the main entry point.
func run() (int, error) {
	// 1. Configuration & Logger
	_ = godotenv.Load()
	var config internal.Config
	if _, err := env.UnmarshalFromEnviron(&config); err != nil {
		return exitConfig, fmt.Errorf("config error: %w", err)
	}

	charReplacement, err := internal.CharacterRune(config.CharReplacement)
	if err != nil {
		return exitConfig, err
	}

	logger := logs.GetLoggerFromString(config.LogLevel)
	ctx := context.Background()

	// 2. Storage (BadgerDB + Bluge)
	db, err := badger.Open(buildBadgerOpts(config, logger, ctx))
	if err != nil {
		return exitRuntime, fmt.Errorf("database opening failed: %w", err)
	}
	defer func() {
		logger.Info("Closing BadgerDB...")
		_ = db.Close()
	}()

	blugeWriter, err := bluge.OpenWriter(bluge.DefaultConfig(config.BlugeFilepath))
	if err != nil {
		return exitRuntime, fmt.Errorf("failed to open bluge writer: %w", err)
	}
	defer func() {
		logger.Info("Closing Bluge...")
		_ = blugeWriter.Close()
	}()

	transcripts := repositories.NewTranscriptRepository(db, logger, config.LimitTurns)
	search := repositories.NewSearchRepository(blugeWriter, logger)
	monitor := observability.NewMonitor()

	if logger.Enabled(ctx, slog.LevelDebug) && config.DebugPort != 0 {
		endpoint := "/inspect"
		logger.Info("Debug archive inspector available",
			"url", fmt.Sprintf("http://localhost:%d%s", config.DebugPort, endpoint))
		internal.StartDebugServer(db, config.DebugPort, endpoint, TurnMapper, nil)
	}

	// 3. Moderation
	moderator, err := moderation.NewModerator(config.CensoredWords, charReplacement)
	if err != nil {
		return exitConfig, fmt.Errorf("moderator init failed: %w", err)
	}

	// 4. Orchestration & Fan-out
	registry := runtime.NewRegistry()
	persistChan := make(chan event.Event, config.BufferSize)
	fanout := runtime.NewFanout(logger, registry, persistChan, config.SinkTimeout, monitor)

	factory := ai.NewFactory(ai.NewOpenAIClient(ai.OpenAIConfig{
		APIKey:      config.OpenAIKey,
		BaseURL:     config.OpenAIBaseURL,
		Model:       config.OpenAIModel,
		MaxTokens:   config.OpenAIMaxTok,
		Temperature: config.OpenAITemp,
	}), config.LimitTurns)

	coordinator := runtime.NewCoordinator(logger, registry, factory, fanout, moderator, monitor, config.OrchestratorTimeout)
	service := services.NewDiscussionService(logger, coordinator)

	// 5. Permanent sinks under supervision
	timeline := projection.NewTimeline()
	sup := workers.NewSupervisor(logger)
	sup.Add(
		workers.NewSinkWorker(logger, persistChan,
			sink.NewArchiveSink(transcripts, search, logger),
			timeline,
			sink.NewLogSink(logger)),
		workers.NewMetricWorker(logger, monitor, config.MetricInterval,
			coordinator.SessionCount, registry.ConnectionCount),
	)

	// 6. Context & Signals
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	supDone := make(chan struct{})
	go func() {
		defer close(supDone)
		sup.Run(ctx)
	}()

	// 7. HTTP/WebSocket server
	e := echo.New()
	e.HideBanner = true
	ws.NewServer(&config, logger, service, registry, timeline, monitor, transcripts, search).RegisterRoutes(e)

	errChan := make(chan error, 1)
	address := fmt.Sprintf("%s:%d", config.Host, config.Port)
	go func() {
		logger.Info("Starting server", "address", address, "at", time.Now().UTC())
		if err := e.Start(address); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errChan <- fmt.Errorf("server error: %w", err)
		}
	}()

	// 8. Wait for Stop or Error
	select {
	case <-ctx.Done():
		logger.Info("Shutdown signal received")
	case err := <-errChan:
		return exitRuntime, err
	}

	// 9. Final Cleanup (Graceful Shutdown)
	logger.Info("Shutting down gracefully...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), config.ShutdownGrace)
	defer cancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		logger.Warn("Server shutdown failed", "error", err)
	}
	sup.Stop()
	<-supDone
	logger.Info("Program stopped cleanly")

	return exitOK, nil
}

func buildBadgerOpts(config internal.Config, logger *slog.Logger, ctx context.Context) badger.Options {
	options := badger.DefaultOptions(config.BadgerFilepath)

	if logger.Enabled(ctx, slog.LevelDebug) {
		options = options.WithLoggingLevel(badger.DEBUG).
			WithBypassLockGuard(true)
	} else {
		options = options.WithLoggingLevel(badger.INFO)
	}

	return options
}

// TurnMapper renders archived turns in the debug inspector.
func TurnMapper(key string, val []byte) internal.InspectRow {
	row := internal.DefaultMapper(key, val)

	var turn repositories.DiskTurn
	if err := json.Unmarshal(val, &turn); err != nil {
		row.Detail = "Error: unmarshal failed"
		return row
	}

	speaker := turn.Speaker
	if turn.Name != "" {
		speaker = fmt.Sprintf("%s (%s)", turn.Name, turn.Speaker)
	}
	row.Detail = fmt.Sprintf("%s: %s", speaker, turn.Message)
	return row
}
