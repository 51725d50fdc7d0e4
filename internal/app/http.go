package app

import (
	"context"
	"errors"
	"net"
	"net/http"
	"time"

	"chatrelay/pkg/api"
	"chatrelay/pkg/logger"
)

// drainTimeout bounds graceful shutdown; streams still open after this are
// cut.
const drainTimeout = 10 * time.Second

// startHTTP builds the router and starts serving. Fatal listen errors are
// delivered on the returned channel.
func (a *App) startHTTP(ctx context.Context) <-chan error {
	handler := api.NewRouter(api.Deps{
		Store:   a.st,
		Relay:   a.rl,
		Version: a.version,
		Gateway: api.GatewayOptions{
			AllowedOrigins: a.cfg.Security.CORS.AllowedOrigins,
			RPS:            a.cfg.Security.RateLimit.RPS,
			Burst:          a.cfg.Security.RateLimit.Burst,
		},
	})

	a.srv = &http.Server{
		Addr:              a.addr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
		// no WriteTimeout: chat streams are long-lived by design
		BaseContext: func(net.Listener) context.Context { return ctx },
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("http_listening", "addr", a.addr)
		if err := a.srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()
	return errCh
}

// stopHTTP drains in-flight requests, bounded by drainTimeout.
func (a *App) stopHTTP() {
	if a.srv == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), drainTimeout)
	defer cancel()
	if err := a.srv.Shutdown(ctx); err != nil {
		logger.Warn("http_shutdown_incomplete", "error", err)
	}
}
