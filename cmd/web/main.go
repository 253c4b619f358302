package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"golang.org/x/time/rate"

	"scenarist-ai/internal/app"
	"scenarist-ai/internal/config"
	"scenarist-ai/internal/render"
	"scenarist-ai/internal/server"
)

func main() {
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}
	if err := config.ValidateWeb(cfg); err != nil {
		panic(err)
	}

	logger := newLogger(cfg)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	deps, err := app.Build(ctx, cfg, logger)
	if err != nil {
		logger.Error("startup failed", "err", err)
		os.Exit(1)
	}
	defer deps.Close()

	go deps.Workspaces.RunJanitor(ctx, 10*time.Minute)

	maxUpload := int64(cfg.MaxAttachments)*cfg.MaxAttachmentBytes + 1<<20

	api := server.New(server.Options{
		Service:        deps.Service,
		Workspaces:     deps.Workspaces,
		History:        deps.History,
		Exporter:       render.Exporter{},
		MaxUploadBytes: maxUpload,
		RateLimit:      rate.Limit(cfg.RateLimitRPS),
		RateBurst:      cfg.RateLimitBurst,
		Logger:         logger,
	})
	defer api.Close()

	srv := &http.Server{
		Addr:              cfg.WebAddr,
		Handler:           api.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       readTimeout(maxUpload),
		// generation and batch thumbnails hold the response open
		WriteTimeout: cfg.RequestTimeout + time.Minute,
		IdleTimeout:  90 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("web started", "addr", cfg.WebAddr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
		logger.Info("shutting down")
	case err := <-errCh:
		if err != nil {
			logger.Error("server error", "err", err)
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("shutdown failed", "err", err)
	}
}

// minUploadRate is the slowest client link a full-size upload must survive.
const minUploadRate = 64 << 10

// readTimeout leaves room for the largest accepted body at minUploadRate.
func readTimeout(maxUpload int64) time.Duration {
	d := 30 * time.Second
	if maxUpload > 0 {
		d += time.Duration(maxUpload/minUploadRate) * time.Second
	}
	return d
}

func newLogger(cfg config.Config) *slog.Logger {
	level := slog.LevelInfo
	switch cfg.LogLevel {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	}

	return slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: level,
	}))
}
