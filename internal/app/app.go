// Package app wires config, storage, backends, and the HTTP server into one
// runnable unit.
package app

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"chatrelay/pkg/banner"
	"chatrelay/pkg/config"
	"chatrelay/pkg/llm"
	"chatrelay/pkg/logger"
	"chatrelay/pkg/relay"
	"chatrelay/pkg/retention"
	"chatrelay/pkg/store"
)

// App holds the assembled server components.
type App struct {
	cfg     config.Config
	addr    string
	version string

	st  store.Store
	rl  *relay.Relay
	srv *http.Server
}

// New opens the store and builds the relay. It does not start the HTTP
// server; call Run to start it and block until shutdown.
func New(cfg config.Config, addr, version string) (*App, error) {
	var st store.Store
	if cfg.Storage.DBPath != "" {
		p, err := store.OpenPebble(cfg.Storage.DBPath)
		if err != nil {
			return nil, fmt.Errorf("open store: %w", err)
		}
		st = p
	} else {
		logger.Warn("no_db_path_configured", "note", "threads will not survive restarts")
		st = store.NewMemory()
	}

	live := llm.NewOpenAI(llm.OpenAIOptions{
		APIKey:      cfg.LLM.APIKey,
		BaseURL:     cfg.LLM.BaseURL,
		Model:       cfg.LLM.Model,
		MaxTokens:   cfg.LLM.MaxTokens,
		Temperature: cfg.LLM.Temperature,
	})
	fallback := llm.NewFallback(time.Duration(cfg.LLM.FallbackDelayMs) * time.Millisecond)

	if addr == "" {
		addr = cfg.Addr()
	}
	return &App{
		cfg:     cfg,
		addr:    addr,
		version: version,
		st:      st,
		rl:      relay.New(st, live, fallback),
	}, nil
}

// Run starts the retention sweeper and the HTTP server, then blocks until
// ctx is cancelled or the server fails.
func (a *App) Run(ctx context.Context) error {
	banner.Print(a.addr, a.cfg.Storage.DBPath, a.rl.Mode(), a.version)

	if a.cfg.Retention.Enabled {
		period, err := a.cfg.RetentionPeriod()
		if err != nil {
			return err
		}
		cancel, err := retention.Start(ctx, a.st, retention.Options{
			Cron:   a.cfg.Retention.Cron,
			Period: period,
		})
		if err != nil {
			return err
		}
		defer cancel()
	}

	errCh := a.startHTTP(ctx)

	select {
	case <-ctx.Done():
		logger.Info("shutdown_signal_received")
	case err := <-errCh:
		a.closeStore()
		return err
	}
	a.stopHTTP()
	a.closeStore()
	return nil
}

func (a *App) closeStore() {
	if err := a.st.Close(); err != nil {
		logger.Error("store_close_failed", "error", err)
	}
}
