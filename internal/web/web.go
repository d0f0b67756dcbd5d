package web

import (
	"context"
	"crypto/subtle"
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"icalmerge/internal/config"
	appLog "icalmerge/internal/log"
)

const (
	calendarContentType = "text/calendar; charset=utf-8"
	failureBody         = "Something went wrong"
	shutdownTimeout     = 10 * time.Second
)

// BuildFunc produces the merged calendar text.
type BuildFunc func(ctx context.Context) (string, error)

// Server serves the merged calendar, a health probe and Prometheus metrics.
type Server struct {
	cfg      *config.Config
	build    BuildFunc
	registry *prometheus.Registry
	mux      *http.ServeMux
}

// NewServer constructs a new Server. registry may be nil, in which case
// /metrics is not exposed.
func NewServer(cfg *config.Config, build BuildFunc, registry *prometheus.Registry) *Server {
	s := &Server{
		cfg:      cfg,
		build:    build,
		registry: registry,
		mux:      http.NewServeMux(),
	}
	s.registerRoutes()
	return s
}

// Handler returns the underlying http.Handler for this server.
func (s *Server) Handler() http.Handler {
	h := http.Handler(s.mux)
	if s.basicAuthEnabled() {
		appLog.Info("HTTP basic auth enabled", "listen", s.cfg.Listen())
		return s.basicAuthMiddleware(h)
	}
	return h
}

// basicAuthEnabled reports whether HTTP Basic Auth is configured.
func (s *Server) basicAuthEnabled() bool {
	if s.cfg == nil || s.cfg.BasicAuth == nil {
		return false
	}
	return s.cfg.BasicAuth.Username != "" && s.cfg.BasicAuth.Password != ""
}

// basicAuthMiddleware wraps all handlers except /health with HTTP Basic Auth.
func (s *Server) basicAuthMiddleware(next http.Handler) http.Handler {
	username := s.cfg.BasicAuth.Username
	password := s.cfg.BasicAuth.Password

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/health" {
			next.ServeHTTP(w, r)
			return
		}

		u, p, ok := r.BasicAuth()
		if !ok || !secureCompare(u, username) || !secureCompare(p, password) {
			w.Header().Set("WWW-Authenticate", `Basic realm="icalmerge", charset="UTF-8"`)
			http.Error(w, "Unauthorized", http.StatusUnauthorized)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// secureCompare compares two strings in constant time.
func secureCompare(a, b string) bool {
	if len(a) != len(b) {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1
}

func (s *Server) registerRoutes() {
	s.mux.HandleFunc("GET /{$}", s.handleCalendar)
	s.mux.HandleFunc("GET /health", s.handleHealth)
	if s.registry != nil {
		s.mux.Handle("GET /metrics", promhttp.HandlerFor(s.registry, promhttp.HandlerOpts{}))
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("OK"))
}

// handleCalendar returns the merged feed. Failures are logged with their
// cause; the client only sees a generic 500.
func (s *Server) handleCalendar(w http.ResponseWriter, r *http.Request) {
	body, err := s.build(r.Context())
	if err != nil {
		appLog.Error("calendar request failed", err, "remote", r.RemoteAddr)
		http.Error(w, failureBody, http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", calendarContentType)
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(body))
}

// Run serves on cfg.Listen() until ctx is cancelled, then shuts down
// gracefully.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.cfg.Listen(),
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		appLog.Info("starting HTTP server", "listen", srv.Addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	appLog.Info("HTTP server stopped")
	return nil
}
