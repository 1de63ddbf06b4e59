package httpserver

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"burnbin/internal/clock"
	"burnbin/internal/id"
	"burnbin/internal/storage"
)

// Config captures server configuration.
type Config struct {
	Store       storage.Store
	IDGenerator *id.Generator
	Clock       *clock.Clock
	MaxBytes    int
	TrustProxy  bool
	BaseURL     string
	Logger      *slog.Logger
}

// Server wraps HTTP handling logic.
type Server struct {
	store      storage.Store
	idGen      *id.Generator
	clock      *clock.Clock
	router     chi.Router
	maxBytes   int
	trustProxy bool
	baseURL    *url.URL
	logger     *slog.Logger
}

// New constructs a new Server instance.
func New(cfg Config) (*Server, error) {
	if cfg.Store == nil {
		return nil, errors.New("store required")
	}
	if cfg.IDGenerator == nil {
		cfg.IDGenerator = id.New(0)
	}
	if cfg.Clock == nil {
		cfg.Clock = clock.New(false)
	}
	if cfg.MaxBytes <= 0 {
		cfg.MaxBytes = 1_048_576
	}

	var parsedBase *url.URL
	if cfg.BaseURL != "" {
		var err error
		parsedBase, err = url.Parse(cfg.BaseURL)
		if err != nil {
			return nil, fmt.Errorf("invalid base url: %w", err)
		}
		if parsedBase.Scheme == "" || parsedBase.Host == "" {
			return nil, errors.New("base url must include scheme and host")
		}
		parsedBase.Path = strings.TrimSuffix(parsedBase.Path, "/")
	}

	srv := &Server{
		store:      cfg.Store,
		idGen:      cfg.IDGenerator,
		clock:      cfg.Clock,
		router:     chi.NewRouter(),
		maxBytes:   cfg.MaxBytes,
		trustProxy: cfg.TrustProxy,
		baseURL:    parsedBase,
		logger:     cfg.Logger,
	}
	srv.routes()
	return srv, nil
}

// Handler returns the underlying router.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) routes() {
	r := s.router

	r.Use(middleware.RequestID)
	if s.trustProxy {
		r.Use(middleware.RealIP)
	}
	r.Use(middleware.Recoverer)
	r.Use(middleware.Logger)
	r.Use(middleware.Compress(5, "application/json", "text/plain"))
	r.Use(observeRequests)

	r.Post("/pastes", s.handleCreate)
	r.Route("/pastes/{id}", func(pr chi.Router) {
		pr.Get("/", s.handleConsume)
		pr.Get("/qr", s.handleQR)
	})

	r.Get("/healthz", s.handleHealth)
	r.Method(http.MethodGet, "/metrics", promhttp.Handler())
}

// pasteURL builds the shareable link for a paste id from the configured base
// URL, falling back to the request host.
func (s *Server) pasteURL(r *http.Request, pasteID string) string {
	if s.baseURL != nil {
		u := *s.baseURL
		u.Path = u.Path + "/pastes/" + pasteID
		return u.String()
	}

	scheme := "http"
	if r.TLS != nil {
		scheme = "https"
	}
	if s.trustProxy {
		if proto := strings.ToLower(r.Header.Get("X-Forwarded-Proto")); proto == "https" {
			scheme = "https"
		}
	}
	host := r.Host
	if host == "" {
		host = "localhost"
	}
	return fmt.Sprintf("%s://%s/pastes/%s", scheme, host, pasteID)
}
