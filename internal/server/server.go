// Package server implements the local stub backend: the same endpoints
// and wire format as the hosted analysis API, answering every transcript
// with a canned worked example. It exists so the client, TUI, and tests
// can run against a real HTTP boundary without credentials.
package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/abelbrown/callsight/internal/events"
)

// Server is the stub analysis backend.
type Server struct {
	addr   string
	delay  time.Duration
	events *events.Logger
	router chi.Router
}

// New creates a server. delay is the pause between stream stages, making
// the streamed progression visible to a human watching the TUI. ev may
// be nil.
func New(addr string, delay time.Duration, ev *events.Logger) *Server {
	s := &Server{
		addr:   addr,
		delay:  delay,
		events: ev,
	}
	s.router = s.setupRouter()
	return s
}

func (s *Server) setupRouter() chi.Router {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(s.logRequests)

	r.Route("/api/analysis", func(r chi.Router) {
		r.Post("/analyze-stream", s.handleAnalyzeStream)
		r.Post("/analyze-text-stream", s.handleAnalyzeTextStream)
		r.Post("/analyze-sample-stream", s.handleAnalyzeSampleStream)
		r.Post("/deal-review", s.handleDealReview)

		// Non-streamed endpoints kept for older clients.
		r.Post("/analyze", s.handleAnalyze)
		r.Post("/analyze-sample", s.handleAnalyzeSample)
	})

	return r
}

// Router returns the handler, for mounting in tests.
func (s *Server) Router() http.Handler {
	return s.router
}

// Addr returns the configured listen address.
func (s *Server) Addr() string {
	return s.addr
}

// ListenAndServe runs the server until ctx is canceled, then shuts down
// gracefully. A nil error means a clean shutdown.
func (s *Server) ListenAndServe(ctx context.Context) error {
	srv := &http.Server{
		Addr:    s.addr,
		Handler: s.router,
	}

	ln, err := net.Listen("tcp", srv.Addr)
	if err != nil {
		return fmt.Errorf("listen: %w", err)
	}

	s.emit(events.Event{
		Level: events.LevelInfo, Kind: events.KindServeStart, Comp: "serve",
		Msg: fmt.Sprintf("listening on %s", ln.Addr()),
	})

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		srv.Shutdown(shutdownCtx)
	}()

	if err := srv.Serve(ln); !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// logRequests records one event per request with its final status.
func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		s.emit(events.Event{
			Level: events.LevelDebug, Kind: events.KindServeRequest, Comp: "serve",
			Endpoint: r.URL.Path, Status: ww.Status(), Dur: time.Since(start),
		})
	})
}

func (s *Server) emit(e events.Event) {
	if s.events != nil {
		s.events.Emit(e)
	}
}
