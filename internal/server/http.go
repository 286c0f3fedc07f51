package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/mmcmkm/speech-to-text/internal/config"
	"github.com/mmcmkm/speech-to-text/internal/history"
	"github.com/mmcmkm/speech-to-text/internal/metrics"
	"github.com/mmcmkm/speech-to-text/internal/pipeline"
	"github.com/mmcmkm/speech-to-text/internal/transcription"
	"github.com/mmcmkm/speech-to-text/internal/vad"
)

// Controller is the part of the pipeline the API drives
type Controller interface {
	Start(ctx context.Context) error
	Stop(ctx context.Context) error
	Snapshot() pipeline.Snapshot
	SetSilenceDetection(enabled bool)
}

// Transcriber exposes the mutable transcription settings
type Transcriber interface {
	Mode() transcription.Mode
	Model() string
	SetMode(mode transcription.Mode) error
	SetModel(model string) error
	GetStats() transcription.ClientStats
}

// Silence holds the detector settings used from the next session on
type Silence interface {
	SetSilence(threshold float64, duration time.Duration) error
	SilenceSettings() (float64, time.Duration)
}

// History lists recent transcriptions
type History interface {
	Recent(ctx context.Context, limit int) ([]history.Entry, error)
	Count(ctx context.Context) (int, error)
}

// HTTPServer provides the local control and monitoring API
type HTTPServer struct {
	server      *http.Server
	logger      *slog.Logger
	config      *config.Config
	controller  Controller
	silence     Silence
	transcriber Transcriber
	history     History
	metrics     *metrics.Metrics
	gatherer    prometheus.Gatherer

	startTime time.Time
}

// NewHTTPServer creates a new HTTP API server. history may be nil when
// history is disabled.
func NewHTTPServer(cfg config.HTTPConfig, logger *slog.Logger, appConfig *config.Config,
	controller Controller, silence Silence, transcriber Transcriber, hist History,
	m *metrics.Metrics, gatherer prometheus.Gatherer) *HTTPServer {

	h := &HTTPServer{
		logger:      logger,
		config:      appConfig,
		controller:  controller,
		silence:     silence,
		transcriber: transcriber,
		history:     hist,
		metrics:     m,
		gatherer:    gatherer,
		startTime:   time.Now(),
	}

	mux := http.NewServeMux()
	h.setupRoutes(mux)

	h.server = &http.Server{
		Addr:         net.JoinHostPort(cfg.Address, strconv.Itoa(cfg.Port)),
		Handler:      mux,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	return h
}

// Handler returns the routed handler
func (h *HTTPServer) Handler() http.Handler {
	return h.server.Handler
}

// setupRoutes configures HTTP API routes
func (h *HTTPServer) setupRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/health", h.withMetrics("/health", h.handleHealth))
	mux.HandleFunc("/status", h.withMetrics("/status", h.handleStatus))

	// Capture control
	mux.HandleFunc("/capture/start", h.withMetrics("/capture/start", h.handleCaptureStart))
	mux.HandleFunc("/capture/stop", h.withMetrics("/capture/stop", h.handleCaptureStop))
	mux.HandleFunc("/silence", h.withMetrics("/silence", h.handleSilence))

	// Transcription settings
	mux.HandleFunc("/modes", h.withMetrics("/modes", h.handleModes))
	mux.HandleFunc("/mode", h.withMetrics("/mode", h.handleMode))
	mux.HandleFunc("/model", h.withMetrics("/model", h.handleModel))

	mux.HandleFunc("/history", h.withMetrics("/history", h.handleHistory))
	mux.HandleFunc("/config", h.withMetrics("/config", h.handleConfig))

	// Prometheus metrics endpoint (no metrics needed for metrics endpoint)
	mux.Handle("/metrics", promhttp.HandlerFor(h.gatherer, promhttp.HandlerOpts{}))

	mux.HandleFunc("/", h.withMetrics("/", h.handleRoot))
}

// withMetrics wraps an HTTP handler with metrics collection
func (h *HTTPServer) withMetrics(endpoint string, handler http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		startTime := time.Now()

		ww := &responseWriter{ResponseWriter: w, statusCode: 200}
		handler(ww, r)

		duration := time.Since(startTime).Seconds()
		statusCode := strconv.Itoa(ww.statusCode)

		h.metrics.RecordHTTPRequest(r.Method, endpoint, statusCode, duration)

		if ww.statusCode >= 400 {
			errorType := "client_error"
			if ww.statusCode >= 500 {
				errorType = "server_error"
			}
			h.metrics.RecordHTTPError(r.Method, endpoint, errorType)
		}
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

// Start binds the listener and serves in the background
func (h *HTTPServer) Start() error {
	ln, err := net.Listen("tcp", h.server.Addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", h.server.Addr, err)
	}

	h.logger.Info("Starting HTTP API server", slog.String("address", ln.Addr().String()))

	go func() {
		if err := h.server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			h.logger.Error("HTTP server error", slog.String("error", err.Error()))
		}
	}()

	return nil
}

// Stop gracefully stops the HTTP server
func (h *HTTPServer) Stop(ctx context.Context) error {
	h.logger.Info("Stopping HTTP API server...")
	return h.server.Shutdown(ctx)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

func allow(w http.ResponseWriter, r *http.Request, method string) bool {
	if r.Method != method {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return false
	}
	return true
}

// handleHealth implements the /health endpoint
func (h *HTTPServer) handleHealth(w http.ResponseWriter, r *http.Request) {
	if !allow(w, r, http.MethodGet) {
		return
	}

	stats := h.transcriber.GetStats()

	historyStatus := map[string]any{"enabled": h.history != nil}
	if h.history != nil {
		n, err := h.history.Count(r.Context())
		if err != nil {
			h.logger.Warn("Failed to count history", slog.String("error", err.Error()))
			historyStatus["error"] = err.Error()
		} else {
			historyStatus["entries"] = n
		}
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"status":    "healthy",
		"timestamp": time.Now().UTC(),
		"uptime":    time.Since(h.startTime).String(),
		"service": map[string]any{
			"name":    "speech-to-text",
			"version": "1.0.0",
		},
		"components": map[string]any{
			"pipeline": map[string]any{
				"state": h.controller.Snapshot().State,
			},
			"transcription": map[string]any{
				"total_requests": stats.TotalRequests,
				"success_rate":   stats.SuccessRate,
			},
			"history": historyStatus,
		},
	})
}

// handleStatus implements the /status endpoint
func (h *HTTPServer) handleStatus(w http.ResponseWriter, r *http.Request) {
	if !allow(w, r, http.MethodGet) {
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"pipeline":      h.controller.Snapshot(),
		"mode":          h.transcriber.Mode(),
		"model":         h.transcriber.Model(),
		"transcription": h.transcriber.GetStats(),
		"timestamp":     time.Now().UTC(),
	})
}

func (h *HTTPServer) handleCaptureStart(w http.ResponseWriter, r *http.Request) {
	if !allow(w, r, http.MethodPost) {
		return
	}
	if err := h.controller.Start(r.Context()); err != nil {
		h.logger.Warn("Capture start via API failed", slog.String("error", err.Error()))
		writeError(w, http.StatusConflict, err.Error())
		return
	}
	writeJSON(w, http.StatusAccepted, h.controller.Snapshot())
}

func (h *HTTPServer) handleCaptureStop(w http.ResponseWriter, r *http.Request) {
	if !allow(w, r, http.MethodPost) {
		return
	}
	if err := h.controller.Stop(r.Context()); err != nil {
		h.logger.Warn("Capture stop via API failed", slog.String("error", err.Error()))
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusAccepted, h.controller.Snapshot())
}

// handleSilence implements POST /silence. Any of enabled, threshold and
// duration (seconds) may be given; omitted fields keep their value.
// Threshold and duration apply from the next capture session.
func (h *HTTPServer) handleSilence(w http.ResponseWriter, r *http.Request) {
	if !allow(w, r, http.MethodPost) {
		return
	}
	var body struct {
		Enabled   *bool    `json:"enabled"`
		Threshold *float64 `json:"threshold"`
		Duration  *float64 `json:"duration"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if body.Enabled == nil && body.Threshold == nil && body.Duration == nil {
		writeError(w, http.StatusBadRequest, "body must set enabled, threshold or duration")
		return
	}

	if body.Threshold != nil || body.Duration != nil {
		threshold, duration := h.silence.SilenceSettings()
		if body.Threshold != nil {
			threshold = *body.Threshold
		}
		if body.Duration != nil {
			duration = time.Duration(*body.Duration * float64(time.Second))
		}
		if err := h.silence.SetSilence(threshold, duration); err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
	}
	if body.Enabled != nil {
		h.controller.SetSilenceDetection(*body.Enabled)
	}

	writeJSON(w, http.StatusOK, h.silenceStatus())
}

func (h *HTTPServer) silenceStatus() map[string]any {
	threshold, duration := h.silence.SilenceSettings()
	return map[string]any{
		"enabled":          h.controller.Snapshot().SilenceDetection,
		"threshold":        threshold,
		"duration":         duration.Seconds(),
		"min_threshold":    vad.MinThreshold,
		"max_threshold":    vad.MaxThreshold,
		"min_duration":     vad.MinDuration.Seconds(),
		"max_duration":     vad.MaxDuration.Seconds(),
		"poll_interval_ms": h.config.Silence.PollIntervalMs,
	}
}

// handleModes lists modes and models with the current selection
func (h *HTTPServer) handleModes(w http.ResponseWriter, r *http.Request) {
	if !allow(w, r, http.MethodGet) {
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"current_mode":  h.transcriber.Mode(),
		"current_model": h.transcriber.Model(),
		"modes":         transcription.Modes(),
		"models":        transcription.Models(),
	})
}

func (h *HTTPServer) handleMode(w http.ResponseWriter, r *http.Request) {
	if !allow(w, r, http.MethodPost) {
		return
	}
	var body struct {
		Mode string `json:"mode"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if err := h.transcriber.SetMode(transcription.Mode(body.Mode)); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"mode": h.transcriber.Mode()})
}

func (h *HTTPServer) handleModel(w http.ResponseWriter, r *http.Request) {
	if !allow(w, r, http.MethodPost) {
		return
	}
	var body struct {
		Model string `json:"model"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if err := h.transcriber.SetModel(body.Model); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"model": h.transcriber.Model()})
}

// handleHistory implements GET /history?limit=N
func (h *HTTPServer) handleHistory(w http.ResponseWriter, r *http.Request) {
	if !allow(w, r, http.MethodGet) {
		return
	}
	if h.history == nil {
		writeError(w, http.StatusNotFound, "history is disabled")
		return
	}

	limit := h.config.History.Limit
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 || n > 1000 {
			writeError(w, http.StatusBadRequest, "limit must be between 1 and 1000")
			return
		}
		limit = n
	}

	entries, err := h.history.Recent(r.Context(), limit)
	if err != nil {
		h.logger.Error("Failed to read history", slog.String("error", err.Error()))
		writeError(w, http.StatusInternalServerError, "failed to read history")
		return
	}
	if entries == nil {
		entries = []history.Entry{}
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"count":   len(entries),
		"entries": entries,
	})
}

// handleConfig implements the /config endpoint
func (h *HTTPServer) handleConfig(w http.ResponseWriter, r *http.Request) {
	if !allow(w, r, http.MethodGet) {
		return
	}

	c := h.config
	// API key is intentionally omitted
	writeJSON(w, http.StatusOK, map[string]any{
		"audio": c.Audio,
		"silence": h.silenceStatus(),
		"storage": c.Storage,
		"transcription": map[string]any{
			"endpoint":             c.Transcription.Endpoint,
			"api_key_env":          c.Transcription.APIKeyEnv,
			"model":                h.transcriber.Model(),
			"mode":                 h.transcriber.Mode(),
			"timeout":              c.Transcription.Timeout,
			"vocabulary_hint_file": c.Transcription.VocabularyHintFile,
			"hint_max_bytes":       c.Transcription.HintMaxBytes,
		},
		"history": c.History,
		"logging": c.Logging,
	})
}

// handleRoot implements the / endpoint with API documentation
func (h *HTTPServer) handleRoot(w http.ResponseWriter, r *http.Request) {
	if !allow(w, r, http.MethodGet) {
		return
	}

	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"service": "speech-to-text",
		"version": "1.0.0",
		"endpoints": map[string]string{
			"GET /":               "API documentation",
			"GET /health":         "Service health check",
			"GET /status":         "Pipeline state and transcription settings",
			"POST /capture/start": "Start a capture session",
			"POST /capture/stop":  "Stop capture and transcribe",
			"POST /silence":       "Toggle silence detection or change its threshold and duration",
			"GET /modes":          "List transcription modes and models",
			"POST /mode":          "Select the transcription mode",
			"POST /model":         "Select the transcription model",
			"GET /history":        "Recent transcriptions",
			"GET /config":         "Effective configuration without secrets",
			"GET /metrics":        "Prometheus metrics",
		},
		"timestamp": time.Now().UTC(),
	})
}
