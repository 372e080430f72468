// Package server hosts diagnostic pages and the activation endpoint their
// control calls.
package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/profclems/tracepage/page"
	"github.com/profclems/tracepage/page/templates"
	"github.com/profclems/tracepage/trace"
	"golang.org/x/sync/errgroup"
)

// maxPayloadSize bounds uploaded payloads
const maxPayloadSize = 4 * 1024 * 1024

// Config holds server configuration
type Config struct {
	Addr      string
	Endpoint  string  // Activation path, page.DefaultEndpoint when empty
	RateLimit float64 // Activation requests per second per client (0 to disable)
	RateBurst int     // Burst capacity for rate limiting
	TLS       TLSConfig
}

// Server serves diagnostic pages
type Server struct {
	config   Config
	logger   *slog.Logger
	renderer *page.Renderer
	store    Store
	hook     Hook
	metrics  *Metrics
	limiter  *RateLimiter
	payload  *trace.Payload
	started  time.Time
	router   *mux.Router
}

// Option configures a Server
type Option func(*Server)

// WithRenderer replaces the default page renderer
func WithRenderer(r *page.Renderer) Option {
	return func(s *Server) { s.renderer = r }
}

// WithStore replaces the default in-memory store
func WithStore(st Store) Option {
	return func(s *Server) { s.store = st }
}

// WithHook sets what the activation endpoint enables
func WithHook(h Hook) Option {
	return func(s *Server) { s.hook = h }
}

// WithPayload sets the payload shown at "/"
func WithPayload(p trace.Payload) Option {
	return func(s *Server) { s.payload = &p }
}

// NewServer creates a server. Without options it keeps traces in memory
// and activates an in-process Switch.
func NewServer(cfg Config, logger *slog.Logger, opts ...Option) *Server {
	if cfg.Endpoint == "" {
		cfg.Endpoint = page.DefaultEndpoint
	}

	s := &Server{
		config:  cfg,
		logger:  logger,
		metrics: NewMetrics(),
		started: time.Now(),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.renderer == nil {
		s.renderer = page.NewRenderer(page.WithEndpoint(cfg.Endpoint))
	}
	if s.store == nil {
		s.store = NewMemoryStore(0)
	}
	if s.hook == nil {
		s.hook = &Switch{}
	}

	if cfg.RateLimit > 0 {
		burst := cfg.RateBurst
		if burst == 0 {
			burst = int(cfg.RateLimit * 2) // Default burst to 2x the rate
		}
		if burst < 1 {
			burst = 1
		}
		s.limiter = NewRateLimiter(cfg.RateLimit, burst)
		s.limiter.OnLimit = func(key string) {
			s.metrics.RecordRateLimited()
			s.logger.Warn("activation rate limited", "client", key)
		}
	}

	s.router = s.routes()
	return s
}

// Metrics returns the server's counters
func (s *Server) Metrics() *Metrics { return s.metrics }

// Handler returns the HTTP handler serving all routes
func (s *Server) Handler() http.Handler { return s.router }

func (s *Server) routes() *mux.Router {
	r := mux.NewRouter()
	r.Use(s.logRequests)

	r.HandleFunc("/", s.handleIndex).Methods(http.MethodGet)
	r.HandleFunc("/trace/{id}", s.handleTracePage).Methods(http.MethodGet)
	r.Handle(s.config.Endpoint, s.limiter.Middleware(http.HandlerFunc(s.handleActivate))).Methods(http.MethodGet)

	api := r.PathPrefix("/api").Subrouter()
	api.HandleFunc("/traces", s.handleCreateTrace).Methods(http.MethodPost)
	api.HandleFunc("/traces", s.handleListTraces).Methods(http.MethodGet)
	api.HandleFunc("/traces/{id}", s.handleGetTrace).Methods(http.MethodGet)

	r.HandleFunc("/health", s.handleHealth).Methods(http.MethodGet)
	r.HandleFunc("/metrics", s.handleMetrics).Methods(http.MethodGet)
	r.HandleFunc("/metrics/prometheus", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/plain; version=0.0.4")
		s.metrics.WritePrometheus(w)
	}).Methods(http.MethodGet)

	r.PathPrefix("/static/").Handler(
		http.StripPrefix("/static/", http.FileServer(http.FS(templates.ThemeCSS))),
	)
	return r
}

func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		s.logger.Debug("request", "method", r.Method, "path", r.URL.Path, "duration", time.Since(start).String())
	})
}

// Start runs the server until ctx is done (blocking)
func (s *Server) Start(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.config.Addr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	if s.config.TLS.Enabled() {
		tlsCfg, err := s.config.TLS.Build()
		if err != nil {
			return err
		}
		srv.TLSConfig = tlsCfg
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		if srv.TLSConfig != nil {
			s.logger.Info("serving diagnostic pages with TLS", "addr", s.config.Addr, "endpoint", s.config.Endpoint)
			err = srv.ListenAndServeTLS("", "")
		} else {
			s.logger.Info("serving diagnostic pages", "addr", s.config.Addr, "endpoint", s.config.Endpoint)
			err = srv.ListenAndServe()
		}
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})
	if s.limiter != nil {
		g.Go(func() error {
			s.limiter.RunCleanup(gctx, 5*time.Minute, 10*time.Minute)
			return nil
		})
	}

	return g.Wait()
}

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	p := trace.Payload{Title: "No exception captured", Subtitle: "nothing to debug yet"}
	if s.payload != nil {
		p = *s.payload
	}
	s.servePage(w, "", p)
}

func (s *Server) handleTracePage(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	rec, err := s.store.Get(id)
	if errors.Is(err, ErrNotFound) {
		http.Error(w, "Trace not found", http.StatusNotFound)
		return
	}
	if err != nil {
		s.logger.Error("failed to load trace", "id", id, "error", err)
		http.Error(w, "Failed to load trace", http.StatusInternalServerError)
		return
	}
	s.servePage(w, id, rec.Payload)
}

func (s *Server) servePage(w http.ResponseWriter, id string, p trace.Payload) {
	var buf bytes.Buffer
	if err := s.renderer.Write(&buf, p); err != nil {
		s.metrics.RecordRenderFailure()
		s.logger.Error("failed to render page", "id", id, "error", err)
		http.Error(w, "Failed to render page", http.StatusInternalServerError)
		return
	}
	s.metrics.RecordPage(id)

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	// A reload after activation must reach the origin.
	w.Header().Set("Cache-Control", "no-store")
	w.Write(buf.Bytes())
}

func (s *Server) handleActivate(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Cache-Control", "no-store")

	if err := s.hook.Enable(r.Context()); err != nil {
		s.metrics.RecordActivation(false)
		s.logger.Warn("activation failed", "error", err)
		http.Error(w, "Activation failed", http.StatusBadGateway)
		return
	}
	s.metrics.RecordActivation(true)
	s.logger.Info("debugging hook enabled", "client", clientIP(r))

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]bool{"enabled": true})
}

// CreateResponse is returned when a trace is stored
type CreateResponse struct {
	ID  string `json:"id"`
	URL string `json:"url"`
}

func (s *Server) handleCreateTrace(w http.ResponseWriter, r *http.Request) {
	body := io.LimitReader(r.Body, maxPayloadSize)
	p, err := trace.Decode(body, trace.FormatFromContentType(r.Header.Get("Content-Type")))
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	rec := Record{ID: uuid.NewString(), CreatedAt: time.Now().UTC(), Payload: p}
	if err := s.store.Put(rec); err != nil {
		s.logger.Error("failed to store trace", "error", err)
		http.Error(w, "Failed to store trace", http.StatusInternalServerError)
		return
	}
	s.metrics.RecordStored()
	s.logger.Info("trace stored", "id", rec.ID, "title", p.Title, "frames", len(p.Trace))

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(CreateResponse{ID: rec.ID, URL: "/trace/" + rec.ID})
}

// TraceSummary is one entry of the trace listing
type TraceSummary struct {
	ID        string    `json:"id"`
	Title     string    `json:"title"`
	Subtitle  string    `json:"subtitle"`
	Frames    int       `json:"frames"`
	CreatedAt time.Time `json:"created_at"`
}

func (s *Server) handleListTraces(w http.ResponseWriter, r *http.Request) {
	records, err := s.store.List()
	if err != nil {
		s.logger.Error("failed to list traces", "error", err)
		http.Error(w, "Failed to list traces", http.StatusInternalServerError)
		return
	}

	summaries := make([]TraceSummary, 0, len(records))
	for _, rec := range records {
		summaries = append(summaries, TraceSummary{
			ID:        rec.ID,
			Title:     rec.Payload.Title,
			Subtitle:  rec.Payload.Subtitle,
			Frames:    len(rec.Payload.Trace),
			CreatedAt: rec.CreatedAt,
		})
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(summaries)
}

func (s *Server) handleGetTrace(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	rec, err := s.store.Get(id)
	if errors.Is(err, ErrNotFound) {
		http.Error(w, "Trace not found", http.StatusNotFound)
		return
	}
	if err != nil {
		s.logger.Error("failed to load trace", "id", id, "error", err)
		http.Error(w, "Failed to load trace", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(rec.Payload)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{
		"status":         "healthy",
		"uptime_seconds": int64(time.Since(s.started).Seconds()),
	})
}

func (s *Server) handleMetrics(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(s.metrics.GetStats())
}
