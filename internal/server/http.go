package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-chi/httprate"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/carlosalbertobarbosajunior/voice-translator/internal/artifact"
	"github.com/carlosalbertobarbosajunior/voice-translator/internal/audio"
	"github.com/carlosalbertobarbosajunior/voice-translator/internal/config"
	"github.com/carlosalbertobarbosajunior/voice-translator/internal/metrics"
	"github.com/carlosalbertobarbosajunior/voice-translator/internal/session"
	"github.com/carlosalbertobarbosajunior/voice-translator/internal/translator"
)

const serviceName = "voice-translator"

// Deps are the collaborators the HTTP API drives
type Deps struct {
	// Controller runs translations and keeps their output in Store
	Controller *session.Controller
	Store      *artifact.Store
	Codec      *audio.Codec
	Metrics    *metrics.Metrics
	// Gatherer backs /metrics. Nil uses the default registry.
	Gatherer prometheus.Gatherer
}

// HTTPServer provides the translation API
type HTTPServer struct {
	server  *http.Server
	handler http.Handler
	logger  *slog.Logger
	config  config.ServerConfig

	ctrl    *session.Controller
	store   *artifact.Store
	codec   *audio.Codec
	metrics *metrics.Metrics

	// Server state
	startTime time.Time
	listener  net.Listener
	requests  uint64
	failures  uint64
	mu        sync.RWMutex
}

type translateRequest struct {
	AudioData      string `json:"audioData"`
	AudioFormat    string `json:"audioFormat"`
	SourceLanguage string `json:"sourceLanguage"`
	TargetLanguage string `json:"targetLanguage"`
}

type translateResponse struct {
	Success        bool   `json:"success"`
	OriginalText   string `json:"originalText"`
	TranslatedText string `json:"translatedText"`
	AudioID        string `json:"audioId"`
}

type errorResponse struct {
	Error string `json:"error"`
}

// NewHTTPServer creates a new HTTP API server
func NewHTTPServer(cfg config.ServerConfig, deps Deps, logger *slog.Logger) *HTTPServer {
	if logger == nil {
		logger = slog.Default()
	}
	if deps.Codec == nil {
		deps.Codec = audio.NewCodec(audio.CanonicalSampleRate, nil)
	}
	if deps.Gatherer == nil {
		deps.Gatherer = prometheus.DefaultGatherer
	}

	h := &HTTPServer{
		logger:    logger.With(slog.String("component", "http")),
		config:    cfg,
		ctrl:      deps.Controller,
		store:     deps.Store,
		codec:     deps.Codec,
		metrics:   deps.Metrics,
		startTime: time.Now(),
	}

	h.handler = h.routes(deps.Gatherer)

	h.server = &http.Server{
		Addr:         cfg.GetAddr(),
		Handler:      h.handler,
		ReadTimeout:  cfg.GetReadTimeoutDuration(),
		WriteTimeout: cfg.GetWriteTimeoutDuration(),
		IdleTimeout:  60 * time.Second,
	}

	return h
}

// routes configures HTTP API routes
func (h *HTTPServer) routes(gatherer prometheus.Gatherer) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)

	origins := h.config.CORSOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: origins,
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Authorization", "Content-Type"},
	}))

	r.Get("/api/health", h.withMetrics("/api/health", h.handleHealth))
	r.Get("/api/languages", h.withMetrics("/api/languages", h.handleLanguages))
	r.Get("/api/config", h.withMetrics("/api/config", h.handleConfig))
	r.Get("/api/stats", h.withMetrics("/api/stats", h.handleStats))
	r.Get("/api/audio/{audioId}", h.withMetrics("/api/audio/{audioId}", h.handleAudio))

	translate := h.withMetrics("/api/translate", h.handleTranslate)
	if h.config.RateLimit > 0 {
		limiter := httprate.Limit(h.config.RateLimit, time.Minute,
			httprate.WithKeyFuncs(httprate.KeyByIP),
			httprate.WithLimitHandler(func(w http.ResponseWriter, r *http.Request) {
				h.writeError(w, http.StatusTooManyRequests, "Too many requests")
			}),
		)
		r.With(limiter).Post("/api/translate", translate)
	} else {
		r.Post("/api/translate", translate)
	}

	// Prometheus metrics endpoint (no metrics needed for metrics endpoint)
	r.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		h.writeError(w, http.StatusNotFound, "Not found")
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		h.writeError(w, http.StatusMethodNotAllowed, "Method not allowed")
	})

	return r
}

// Handler returns the router, for tests and embedding
func (h *HTTPServer) Handler() http.Handler {
	return h.handler
}

// withMetrics wraps an HTTP handler with metrics collection
func (h *HTTPServer) withMetrics(endpoint string, handler http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		startTime := time.Now()

		// Create a response writer wrapper to capture status code
		ww := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}

		handler(ww, r)

		duration := time.Since(startTime)
		statusCode := fmt.Sprintf("%d", ww.statusCode)

		h.metrics.RecordHTTPRequest(r.Method, endpoint, statusCode, duration.Seconds())

		h.mu.Lock()
		h.requests++
		if ww.statusCode >= 500 {
			h.failures++
		}
		h.mu.Unlock()

		// Record error if status code indicates an error
		if ww.statusCode >= 400 {
			errorType := "client_error"
			if ww.statusCode >= 500 {
				errorType = "server_error"
			}
			h.metrics.RecordHTTPError(r.Method, endpoint, errorType)
		}

		h.logger.Debug("HTTP request",
			slog.String("method", r.Method),
			slog.String("endpoint", endpoint),
			slog.Int("status", ww.statusCode),
			slog.Duration("duration", duration),
			slog.String("request_id", middleware.GetReqID(r.Context())))
	}
}

// responseWriter wraps http.ResponseWriter to capture status code
type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

// Start binds the listen address and serves in the background
func (h *HTTPServer) Start() error {
	ln, err := net.Listen("tcp", h.server.Addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", h.server.Addr, err)
	}

	h.mu.Lock()
	h.listener = ln
	h.mu.Unlock()

	h.logger.Info("Starting HTTP API server",
		slog.String("address", ln.Addr().String()),
	)

	go func() {
		if err := h.server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			h.logger.Error("HTTP server error", slog.String("error", err.Error()))
		}
	}()

	return nil
}

// Addr returns the bound address once started
func (h *HTTPServer) Addr() string {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if h.listener == nil {
		return h.server.Addr
	}
	return h.listener.Addr().String()
}

// Stop gracefully stops the HTTP server
func (h *HTTPServer) Stop(ctx context.Context) error {
	h.logger.Info("Stopping HTTP API server...")

	return h.server.Shutdown(ctx)
}

// handleHealth implements the /api/health endpoint
func (h *HTTPServer) handleHealth(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":  "ok",
		"service": serviceName,
		"uptime":  time.Since(h.startTime).Round(time.Second).String(),
	})
}

// handleLanguages implements the /api/languages endpoint
func (h *HTTPServer) handleLanguages(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, http.StatusOK, map[string]interface{}{
		"languages": translator.Languages(),
	})
}

// handleConfig returns the active translation configuration and sanitized server limits
func (h *HTTPServer) handleConfig(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, http.StatusOK, map[string]interface{}{
		"translation": h.ctrl.Configuration(),
		"server": map[string]interface{}{
			"max_body_mb":  h.config.MaxBodyMB,
			"rate_limit":   h.config.RateLimit,
			"cors_origins": h.config.CORSOrigins,
		},
		"audio": map[string]interface{}{
			"sample_rate": h.codec.SampleRate(),
		},
	})
}

// handleStats implements the /api/stats endpoint
func (h *HTTPServer) handleStats(w http.ResponseWriter, r *http.Request) {
	h.mu.RLock()
	requests, failures := h.requests, h.failures
	h.mu.RUnlock()

	h.writeJSON(w, http.StatusOK, map[string]interface{}{
		"uptime":          time.Since(h.startTime).String(),
		"timestamp":       time.Now().UTC(),
		"requests":        requests,
		"server_failures": failures,
		"artifacts":       h.store.Len(),
	})
}

// handleTranslate implements POST /api/translate
func (h *HTTPServer) handleTranslate(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, h.maxBodyBytes())

	var req translateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			h.writeError(w, http.StatusRequestEntityTooLarge, "Request body too large")
			return
		}
		h.writeError(w, http.StatusBadRequest, "No data provided")
		return
	}

	if req.SourceLanguage == "" {
		req.SourceLanguage = translator.PortugueseBR
	}
	if req.TargetLanguage == "" {
		req.TargetLanguage = translator.English
	}
	if req.AudioFormat == "" {
		req.AudioFormat = "webm"
	}

	// Validate languages
	if req.SourceLanguage == req.TargetLanguage {
		h.writeError(w, http.StatusBadRequest, "Source and target languages must be different")
		return
	}
	pair, err := translator.NewConfiguration(req.SourceLanguage, req.TargetLanguage)
	if err != nil {
		h.writeError(w, http.StatusBadRequest, "Unsupported language")
		return
	}

	if strings.TrimSpace(req.AudioData) == "" {
		h.writeError(w, http.StatusBadRequest, "No audio data provided")
		return
	}

	pcm, err := h.codec.DecodeString(r.Context(), req.AudioData, req.AudioFormat)
	if err != nil {
		h.metrics.RecordDecodeFailure(req.AudioFormat)
		h.logger.Warn("Failed to decode audio",
			slog.String("format", req.AudioFormat),
			slog.String("error", err.Error()))
		h.writeError(w, http.StatusBadRequest, "Failed to decode audio: "+err.Error())
		return
	}

	outcome, err := h.ctrl.TranslateWith(r.Context(), pair, pcm)
	if err != nil {
		var pipelineErr *translator.PipelineError
		switch {
		case errors.As(err, &pipelineErr):
			h.writeError(w, http.StatusInternalServerError, "Translation failed: "+err.Error())
		case errors.Is(err, audio.ErrEmptyBuffer):
			h.writeError(w, http.StatusBadRequest, "Failed to decode audio: "+err.Error())
		default:
			h.logger.Error("Translation request failed", slog.String("error", err.Error()))
			h.writeError(w, http.StatusInternalServerError, "Server error: "+err.Error())
		}
		return
	}

	h.logger.Info("Translation completed",
		slog.String("configuration", pair.String()),
		slog.String("audio_id", outcome.ArtifactID),
		slog.Duration("took", outcome.Duration))

	h.writeJSON(w, http.StatusOK, translateResponse{
		Success:        true,
		OriginalText:   outcome.SourceText,
		TranslatedText: outcome.TargetText,
		AudioID:        outcome.ArtifactID,
	})
}

// handleAudio implements GET /api/audio/{audioId}
func (h *HTTPServer) handleAudio(w http.ResponseWriter, r *http.Request) {
	audioID := chi.URLParam(r, "audioId")

	f, a, err := h.store.Open(audioID)
	if err != nil {
		switch {
		case errors.Is(err, artifact.ErrFileRemoved):
			h.writeError(w, http.StatusNotFound, "Audio file not found")
		case errors.Is(err, artifact.ErrNotFound):
			h.writeError(w, http.StatusNotFound, "Audio not found")
		default:
			h.writeError(w, http.StatusInternalServerError, "Server error: "+err.Error())
		}
		return
	}
	defer f.Close()

	w.Header().Set("Content-Type", "audio/wav")
	w.Header().Set("Content-Disposition", `inline; filename="translated.wav"`)
	http.ServeContent(w, r, "translated.wav", a.CreatedAt, f)
}

func (h *HTTPServer) maxBodyBytes() int64 {
	if n := h.config.GetMaxBodyBytes(); n > 0 {
		return n
	}
	return 25 << 20
}

func (h *HTTPServer) writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		h.logger.Debug("Failed to write response", slog.String("error", err.Error()))
	}
}

func (h *HTTPServer) writeError(w http.ResponseWriter, status int, message string) {
	h.writeJSON(w, status, errorResponse{Error: message})
}
