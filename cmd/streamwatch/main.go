// streamwatch follows a media analysis session over the dashboard's realtime
// channel and streams its events to the console.
//
// Usage:
//
//	go run ./cmd/streamwatch --config configs/streamwatch.local.yaml --session <id>
//	go run ./cmd/streamwatch --config configs/streamwatch.local.yaml --create --media clip.mp4 --media-type video
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sashagrin/mediawatch/internal/api"
	"github.com/sashagrin/mediawatch/internal/config"
	"github.com/sashagrin/mediawatch/internal/database"
	"github.com/sashagrin/mediawatch/internal/realtime"
	"github.com/sashagrin/mediawatch/internal/recorder"
	"github.com/sashagrin/mediawatch/internal/version"
)

func main() {
	configPath := flag.String("config", "configs/streamwatch.example.yaml", "path to config file")
	sessionID := flag.String("session", "", "existing session ID to follow")
	createSession := flag.Bool("create", false, "create a new session before following it")
	mediaName := flag.String("media", "", "media name for --create")
	mediaType := flag.String("media-type", "video", "media type for --create")
	verbose := flag.Bool("verbose", false, "print full event JSON")
	flag.Parse()

	// Set up structured logging
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelDebug,
	}))
	slog.SetDefault(logger)

	logger.Info("starting streamwatch",
		"version", version.Version,
		"commit", version.Commit,
		"config", *configPath,
	)

	// Load configuration
	cfg, err := config.LoadAndValidate(*configPath)
	if err != nil {
		logger.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logger.Info("configuration loaded",
		"instance_id", cfg.Instance.ID,
		"api_url", cfg.API.BaseURL,
		"realtime_url", cfg.Realtime.URL,
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Handle shutdown signals
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		logger.Info("received shutdown signal", "signal", sig)
		cancel()
	}()

	// Create API client
	apiClient := api.NewClient(
		cfg.API.BaseURL,
		api.WithLogger(logger),
		api.WithTimeout(cfg.API.Timeout),
		api.WithRetries(cfg.API.MaxRetries, time.Second),
	)

	// Resolve the session to follow
	session, err := resolveSession(ctx, apiClient, *sessionID, *createSession, *mediaName, *mediaType)
	if err != nil {
		logger.Error("failed to resolve session", "error", err)
		os.Exit(1)
	}
	logger.Info("following session",
		"session_id", session.ID,
		"media_name", session.MediaName,
		"status", session.Status,
	)

	// Create realtime client
	transport := realtime.NewWebSocketTransport(cfg.Realtime.URL, cfg.Realtime.ConnectTimeout, 0)
	client := realtime.NewClient(transport, realtime.Options{
		ReconnectAttempts:    cfg.Realtime.ReconnectAttempts,
		ReconnectInterval:    cfg.Realtime.ReconnectInterval,
		ReconnectMaxInterval: cfg.Realtime.ReconnectMaxInterval,
		BackoffMultiplier:    cfg.Realtime.BackoffMultiplier,
		PingInterval:         cfg.Realtime.PingInterval,
		ConnectTimeout:       cfg.Realtime.ConnectTimeout,
	}, logger)

	// Console printers
	client.On(realtime.EventAnalysisProgress, func(data json.RawMessage) {
		printEvent("PROGRESS", data, *verbose)
	})
	client.On(realtime.EventSessionUpdate, func(data json.RawMessage) {
		printEvent("SESSION", data, *verbose)
	})

	// Optional event archive
	var rec *recorder.Recorder
	if cfg.Recorder.Enabled {
		logger.Info("connecting to database",
			"host", cfg.Database.Postgres.Host,
			"port", cfg.Database.Postgres.Port,
			"database", cfg.Database.Postgres.Name,
		)

		pool, err := database.Connect(ctx, cfg.Database.Postgres)
		if err != nil {
			logger.Error("failed to connect to database", "error", err)
			os.Exit(1)
		}
		defer pool.Close()

		recCfg := recorder.DefaultConfig()
		recCfg.SessionID = session.ID
		recCfg.EventTypes = cfg.Recorder.EventTypes
		if cfg.Recorder.BatchSize > 0 {
			recCfg.BatchSize = cfg.Recorder.BatchSize
		}
		if cfg.Recorder.FlushInterval > 0 {
			recCfg.FlushInterval = cfg.Recorder.FlushInterval
		}

		rec = recorder.NewRecorder(recCfg, client, pool, logger)
		if err := rec.Start(ctx); err != nil {
			logger.Error("failed to start recorder", "error", err)
			os.Exit(1)
		}
	}

	// Connect
	if err := client.Connect(ctx, session.ID); err != nil {
		logger.Error("failed to connect", "error", err)
		os.Exit(1)
	}

	// Stats printer
	go func() {
		ticker := time.NewTicker(30 * time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				attrs := []any{"connection", client.Status().String()}
				if rec != nil {
					stats := rec.Stats()
					attrs = append(attrs,
						"events_recorded", stats.Inserts,
						"flushes", stats.Flushes,
						"write_errors", stats.Errors,
					)
				}
				logger.Info("stats", attrs...)
			}
		}
	}()

	logger.Info("streaming started - press Ctrl+C to stop")

	// Wait for shutdown
	<-ctx.Done()

	logger.Info("shutting down...")

	client.Disconnect()

	if rec != nil {
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer shutdownCancel()
		rec.Stop(shutdownCtx)
	}

	logger.Info("streamwatch stopped")
}

// resolveSession returns the session to follow, creating one when asked.
func resolveSession(ctx context.Context, apiClient *api.Client, sessionID string, create bool, mediaName, mediaType string) (*api.Session, error) {
	switch {
	case create:
		if mediaName == "" {
			return nil, fmt.Errorf("--media is required with --create")
		}
		return apiClient.CreateSession(ctx, api.CreateSessionRequest{
			MediaName: mediaName,
			MediaType: mediaType,
		})
	case sessionID != "":
		return apiClient.GetSession(ctx, sessionID)
	default:
		return nil, fmt.Errorf("either --session or --create is required")
	}
}

func printEvent(label string, data json.RawMessage, verbose bool) {
	if verbose {
		pretty, err := json.MarshalIndent(json.RawMessage(data), "", "  ")
		if err == nil {
			fmt.Printf("[%s] %s\n", label, pretty)
			return
		}
	}
	fmt.Printf("[%s] %s\n", label, data)
}
