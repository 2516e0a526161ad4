package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/vincentbai/mindfulweb-agent/internal/logx"
	"pkt.systems/pslog"
)

const (
	readTimeout     = 5 * time.Second
	writeTimeout    = 5 * time.Second
	shutdownTimeout = 10 * time.Second
)

// Listen binds addr and serves handler until ctx is cancelled.
func Listen(ctx context.Context, addr string, handler http.Handler) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", addr, err)
	}
	return Serve(ctx, ln, handler)
}

// Serve runs an HTTP server on ln and shuts it down gracefully when ctx is
// cancelled. It returns nil after a clean shutdown.
func Serve(ctx context.Context, ln net.Listener, handler http.Handler) error {
	logger := logx.Ctx(ctx)
	server := &http.Server{
		Handler:      withRequestLogging(handler),
		ReadTimeout:  readTimeout,
		WriteTimeout: writeTimeout,
		ErrorLog:     pslog.LogLoggerWithLevel(logger, pslog.ErrorLevel),
		BaseContext: func(net.Listener) context.Context {
			return ctx
		},
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("http listening", "addr", ln.Addr().String())
		errCh <- server.Serve(ln)
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			logger.Warn("http shutdown", "err", err)
		}
		logger.Info("http stopped", "addr", ln.Addr().String())
		return nil
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("serve http: %w", err)
	}
}
