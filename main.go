// Command clipcast is the main entrypoint for the upload-and-relay service.
// It:
//   - Loads configuration and initializes structured logging.
//   - Builds the media upload client and the stage-upload-relay pipeline.
//   - Runs the chat gateway (Telegram long polling) and the HTTP server
//     concurrently in one process; the relay outbox bridges the two.
//
// Shutdown is graceful on SIGINT/SIGTERM.
package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/akimotok/clipcast/bot"
	"github.com/akimotok/clipcast/channels"
	"github.com/akimotok/clipcast/config"
	"github.com/akimotok/clipcast/media"
	"github.com/akimotok/clipcast/relay"
	"github.com/akimotok/clipcast/server"
	"github.com/akimotok/clipcast/telemetry"
	"github.com/akimotok/clipcast/upload"
)

func main() {
	// Load .env file if present (local dev convenience only; production relies on real env)
	_ = godotenv.Load()

	// Configure logging (level + format). Defaults: level=info, format=text.
	lvl := slog.LevelInfo
	switch strings.ToLower(os.Getenv("LOG_LEVEL")) {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	case "info", "":
		// keep default
	default:
		tmp := slog.New(slog.NewTextHandler(os.Stdout, nil))
		tmp.Warn("unknown LOG_LEVEL, using info", slog.String("value", os.Getenv("LOG_LEVEL")))
	}
	format := strings.ToLower(os.Getenv("LOG_FORMAT")) // text | json
	var handler slog.Handler
	switch format {
	case "json":
		handler = slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: lvl})
	default:
		handler = slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: lvl})
	}
	slog.SetDefault(slog.New(handler))
	slog.Info("logger initialized", slog.String("level", lvl.String()))

	// Config
	cfg, err := config.Load()
	if err != nil {
		slog.Error("config load failed", slog.Any("err", err))
		os.Exit(1)
	}

	// Metrics / telemetry init
	telemetry.Init()

	// Initialize OpenTelemetry tracing (optional; requires OTEL_EXPORTER_OTLP_ENDPOINT)
	shutdown, err := telemetry.InitTracing("clipcast", "1.0.0")
	if err != nil {
		slog.Error("tracing initialization failed", slog.Any("err", err))
		os.Exit(1)
	}
	defer shutdown()

	// Media upload client
	uploader, err := media.NewClient(cfg)
	if err != nil {
		slog.Error("media client init failed", slog.Any("err", err))
		os.Exit(1)
	}

	rly := relay.New()
	pipe := &upload.Pipeline{
		Uploader: uploader,
		Sender:   rly,
		Resolver: channels.NewResolver(cfg.Channels),
		DataDir:  cfg.DataDir,
		Timeout:  cfg.UploadTimeout,
	}

	// Root context with graceful shutdown
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Chat gateway. Without bot credentials the service degrades to HTTP-only
	// and relay sends report the gateway as unavailable.
	if err := cfg.ValidateBotReady(); err != nil {
		slog.Warn("chat gateway disabled", slog.Any("err", err))
	} else {
		go func() {
			if err := bot.Start(ctx, cfg, pipe, rly); err != nil {
				slog.Error("chat gateway exited with error", slog.Any("err", err))
			}
		}()
	}

	// HTTP server
	handlers := server.NewHandlers(pipe, cfg.MaxUploadBytes)
	go func() {
		if err := server.Start(ctx, handlers, cfg.HTTPAddr); err != nil {
			slog.Error("http server exited with error", slog.Any("err", err))
		}
	}()
	slog.Info("clipcast started", slog.String("addr", cfg.HTTPAddr), slog.Int("destinations", len(cfg.Channels)))

	// Block until shutdown signal
	<-ctx.Done()
	slog.Info("shutting down")
}
