// © 2026 Ilya Mateyko. All rights reserved.
// Use of this source code is governed by the ISC
// license that can be found in the LICENSE.md file.

package web

import (
	"context"
	"errors"
	"fmt"
	"log"
	"log/slog"
	"net"
	"net/http"
	"runtime/debug"
	"sync"
	"time"

	"go.astrophena.name/scriptbot/internal/logger"
)

// Middleware wraps an [http.Handler].
type Middleware func(http.Handler) http.Handler

// Server is an HTTP server with graceful shutdown, panic recovery and a
// logger attached to every request context.
//
// Fields of Server can't be modified after ServeHTTP or ListenAndServe is
// called.
type Server struct {
	// Addr is a network address to listen on (in the form of "host:port").
	Addr string
	// Mux is a http.ServeMux to serve.
	Mux *http.ServeMux
	// Logger is attached to request contexts. If nil, [logger.Get] of the
	// ListenAndServe context is used.
	Logger *logger.Logger
	// Middleware is applied to Mux, first element outermost.
	Middleware []Middleware
	// Ready is called, if set, when the server starts accepting connections.
	Ready func()

	handler     http.Handler
	handlerOnce sync.Once
}

var (
	errNoAddr = errors.New("server Addr is empty")
	errNilMux = errors.New("server Mux is nil")
)

// ServeHTTP implements the [http.Handler] interface.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.handlerOnce.Do(s.initHandler)
	s.handler.ServeHTTP(w, r)
}

func (s *Server) initHandler() {
	var h http.Handler = s.Mux
	for i := len(s.Middleware) - 1; i >= 0; i-- {
		h = s.Middleware[i](h)
	}
	s.handler = s.recoverer(h)
}

func (s *Server) recoverer(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.Logger != nil {
			r = r.WithContext(logger.Put(r.Context(), s.Logger))
		}
		defer func() {
			v := recover()
			if v == nil {
				return
			}
			if v == http.ErrAbortHandler {
				panic(v)
			}
			logger.Get(r.Context()).Error("panic while serving request",
				slog.String("path", r.URL.Path),
				slog.Any("panic", v),
				slog.String("stack", string(debug.Stack())),
			)
			RespondJSONError(w, r, fmt.Errorf("panic: %v: %w", v, ErrInternalServerError))
		}()
		next.ServeHTTP(w, r)
	})
}

// ListenAndServe starts the server and blocks until ctx is canceled or the
// server fails.
func (s *Server) ListenAndServe(ctx context.Context) error {
	if s.Addr == "" {
		return errNoAddr
	}
	if s.Mux == nil {
		return errNilMux
	}
	if s.Logger == nil {
		s.Logger = logger.Get(ctx)
	}

	l, err := net.Listen("tcp", s.Addr)
	if err != nil {
		return fmt.Errorf("failed to listen: %w", err)
	}
	defer l.Close()
	s.Logger.Info("listening", "addr", l.Addr().String())

	httpSrv := &http.Server{
		ErrorLog:          log.New(s.Logger.Logf(), "", 0),
		Handler:           s,
		ReadHeaderTimeout: 10 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return context.WithoutCancel(ctx) },
	}

	errCh := make(chan error, 1)
	go func() {
		if err := httpSrv.Serve(l); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	if s.Ready != nil {
		s.Ready()
	}

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		s.Logger.Info("gracefully shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		return httpSrv.Shutdown(shutdownCtx)
	}
}
