// Package app wires the shared dependencies of both front-ends.
package app

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"scenarist-ai/internal/config"
	"scenarist-ai/internal/credit"
	"scenarist-ai/internal/domain"
	"scenarist-ai/internal/gemini"
	"scenarist-ai/internal/history"
	"scenarist-ai/internal/httpclient"
	"scenarist-ai/internal/scenario"
	"scenarist-ai/internal/session"
	"scenarist-ai/internal/thumbs"
)

// Context holds everything a front-end needs to run the script workflow.
type Context struct {
	Config     config.Config
	HTTPClient *http.Client
	Gemini     *gemini.Client
	Service    *scenario.Service
	History    *history.Store
	Workspaces *session.Store

	closers []func() error
}

// Build connects to the ledger and the history database and assembles the
// service. Redis is used for credits only when REDIS_ADDR is set.
func Build(ctx context.Context, cfg config.Config, logger *slog.Logger) (*Context, error) {
	loc, err := time.LoadLocation(cfg.ClientTZ)
	if err != nil {
		logger.Warn("unknown CLIENT_TZ, using UTC", "tz", cfg.ClientTZ, "err", err)
		loc = time.UTC
	}

	httpClient := httpclient.New(httpclient.Options{
		PreferIPv4: cfg.PreferIPv4,
		Timeout:    cfg.HTTPTimeout,
	})

	gem := gemini.New(gemini.Options{
		APIKey:     cfg.GeminiAPIKey,
		BaseURL:    cfg.GeminiBaseURL,
		APIVersion: cfg.GeminiAPIVersion,
		TextModel:  cfg.TextModel,
		ImageModel: cfg.ImageModel,
		HTTPClient: httpClient,
		Logger:     logger,
	})
	if cfg.GeminiAPIKey == "" {
		logger.Warn("GEMINI_API_KEY is not set, generations will fail with a configuration error")
	}

	a := &Context{Config: cfg, HTTPClient: httpClient, Gemini: gem}

	var ledger credit.Ledger = credit.NewMemoryLedger()
	if cfg.RedisAddr != "" {
		rl, err := credit.NewRedisLedger(ctx, credit.RedisOptions{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
		if err != nil {
			return nil, fmt.Errorf("connect credit ledger: %w", err)
		}
		a.closers = append(a.closers, rl.Close)
		ledger = rl
		logger.Info("credit ledger on redis", "addr", cfg.RedisAddr)
	}

	kv, err := history.OpenSQLite(cfg.HistoryDBPath)
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("open history: %w", err)
	}
	a.closers = append(a.closers, kv.Close)

	a.History = history.Open(kv, history.Options{
		Limit:  cfg.HistoryLimit,
		Logger: logger,
	})

	a.Service = scenario.NewService(scenario.ServiceOptions{
		Client: scenario.NewClient(scenario.ClientOptions{
			Model:          gem,
			TextModel:      cfg.TextModel,
			ThinkingBudget: cfg.ThinkingBudget,
			Timeout:        cfg.RequestTimeout,
			Logger:         logger,
		}),
		Gate: credit.NewGate(credit.Options{
			Ledger:     ledger,
			DailyLimit: cfg.DailyLimit,
			Location:   loc,
			Logger:     logger,
		}),
		History: a.History,
		Info: domain.ClientInfo{
			Timezone:  cfg.ClientTZ,
			UIVersion: cfg.UIVersion,
		},
		Logger: logger,
	})

	a.Workspaces = session.NewStore(session.Options{
		MaxFiles: cfg.MaxAttachments,
		MaxBytes: cfg.MaxAttachmentBytes,
		Defaults: domain.Options{Language: cfg.Language},
		Thumbs: thumbs.Options{
			Generator: gem,
			Model:     cfg.ImageModel,
			Timeout:   cfg.ImageTimeout,
		},
		IdleTTL: cfg.WorkspaceTTL,
		Logger:  logger,
	})

	return a, nil
}

// Close releases the ledger and database connections in reverse order.
func (a *Context) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		_ = a.closers[i]()
	}
	a.closers = nil
}
