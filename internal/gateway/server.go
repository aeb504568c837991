package gateway

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"merchantama/internal/runlog"
	"merchantama/internal/session"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

// SessionFactory builds a fresh session for one request.
type SessionFactory func(merchantID int64) (*session.Session, error)

// RunLog records completed exchanges and lists them back.
type RunLog interface {
	Record(ctx context.Context, e runlog.Entry) error
	Recent(ctx context.Context, merchantID int64, limit int) ([]runlog.Entry, error)
}

type Server struct {
	newSession SessionFactory
	runs       RunLog
	mux        *http.ServeMux
}

type ServerOption func(*Server)

// WithRunLog enables run recording and the runs endpoint.
func WithRunLog(runs RunLog) ServerOption {
	return func(s *Server) { s.runs = runs }
}

func NewServer(newSession SessionFactory, opts ...ServerOption) *Server {
	s := &Server{
		newSession: newSession,
		mux:        http.NewServeMux(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.routes()
	return s
}

func (s *Server) routes() {
	s.mux.HandleFunc("POST /chat", s.handleChat)
	s.mux.HandleFunc("GET /v1/merchants/{id}/runs", s.handleListRuns)
	s.mux.HandleFunc("GET /healthz", s.handleHealthz)
}

// Handler returns the instrumented root handler.
func (s *Server) Handler() http.Handler {
	return otelhttp.NewHandler(s.mux, "gateway")
}

// ListenAndServe serves until ctx is cancelled, then drains in-flight
// requests for up to ten seconds.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	slog.Info("shutting down gateway")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
