package transcription

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/mmcmkm/speech-to-text/internal/capture"
)

// DefaultEndpoint is the Gemini REST API base URL
const DefaultEndpoint = "https://generativelanguage.googleapis.com"

// MetricsRecorder receives one observation per transcription attempt
type MetricsRecorder interface {
	RecordTranscription(mode, model string, duration time.Duration, kind string)
}

// Client sends captured clips to the Gemini generateContent API
type Client struct {
	config     Config
	httpClient *http.Client
	logger     *slog.Logger
	metrics    MetricsRecorder

	mode  Mode
	model string

	// Statistics
	totalRequests   uint64
	successRequests uint64
	failedRequests  uint64
	avgResponseTime time.Duration

	mu sync.RWMutex
}

// Config contains transcription client configuration
type Config struct {
	Endpoint string
	APIKey   string
	Timeout  time.Duration
	Model    string
	Mode     Mode
}

// Request is one transcription attempt for a clip
type Request struct {
	Mode  Mode
	Model string
	Hint  string
	Clip  *capture.Clip
}

// Instruction returns the text part of the request: the hint, a blank
// line and the mode instruction
func (r Request) Instruction() string {
	info, _ := LookupMode(r.Mode)
	if r.Hint == "" {
		return info.Instruction
	}
	return r.Hint + "\n\n" + info.Instruction
}

// Result is the outcome of a transcription. Exactly one of Text or Err is meaningful.
type Result struct {
	Text     string        `json:"text,omitempty"`
	Err      *Error        `json:"-"`
	Mode     Mode          `json:"mode"`
	Model    string        `json:"model"`
	Duration time.Duration `json:"duration"`
}

// OK reports whether the transcription succeeded
func (r Result) OK() bool {
	return r.Err == nil
}

// ClientStats represents client statistics
type ClientStats struct {
	TotalRequests   uint64        `json:"total_requests"`
	SuccessRequests uint64        `json:"success_requests"`
	FailedRequests  uint64        `json:"failed_requests"`
	SuccessRate     float64       `json:"success_rate"`
	AvgResponseTime time.Duration `json:"avg_response_time"`
}

// NewClient creates a new transcription client
func NewClient(config Config, logger *slog.Logger, metrics MetricsRecorder) (*Client, error) {
	if config.APIKey == "" {
		return nil, fmt.Errorf("API key cannot be empty")
	}

	if config.Endpoint == "" {
		config.Endpoint = DefaultEndpoint
	}
	if _, err := url.Parse(config.Endpoint); err != nil {
		return nil, fmt.Errorf("invalid endpoint: %w", err)
	}

	if config.Timeout <= 0 {
		config.Timeout = 60 * time.Second
	}

	if config.Model == "" {
		config.Model = DefaultModel
	}
	if !ValidModel(config.Model) {
		return nil, fmt.Errorf("%w: %s", ErrUnknownModel, config.Model)
	}

	if config.Mode == "" {
		config.Mode = ModeClean
	}
	if _, ok := LookupMode(config.Mode); !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownMode, config.Mode)
	}

	if logger == nil {
		logger = slog.Default()
	}

	httpClient := &http.Client{
		Timeout: config.Timeout,
		Transport: &http.Transport{
			MaxIdleConns:        10,
			MaxIdleConnsPerHost: 2,
			IdleConnTimeout:     90 * time.Second,
		},
	}

	return &Client{
		config:     config,
		httpClient: httpClient,
		logger:     logger,
		metrics:    metrics,
		mode:       config.Mode,
		model:      config.Model,
	}, nil
}

// Mode returns the current mode
func (c *Client) Mode() Mode {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.mode
}

// Model returns the current model
func (c *Client) Model() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.model
}

// SetMode changes the mode used by subsequent requests
func (c *Client) SetMode(mode Mode) error {
	if _, ok := LookupMode(mode); !ok {
		return fmt.Errorf("%w: %s", ErrUnknownMode, mode)
	}

	c.mu.Lock()
	c.mode = mode
	c.mu.Unlock()

	c.logger.Info("Transcription mode changed", slog.String("mode", string(mode)))
	return nil
}

// SetModel changes the model used by subsequent requests
func (c *Client) SetModel(model string) error {
	if !ValidModel(model) {
		return fmt.Errorf("%w: %s", ErrUnknownModel, model)
	}

	c.mu.Lock()
	c.model = model
	c.mu.Unlock()

	c.logger.Info("Transcription model changed", slog.String("model", model))
	return nil
}

// NewRequest snapshots the current mode and model for clip
func (c *Client) NewRequest(clip *capture.Clip, hint string) Request {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return Request{Mode: c.mode, Model: c.model, Hint: hint, Clip: clip}
}

// Transcribe sends the clip once and returns the cleaned text or a
// classified failure. It does not retry.
func (c *Client) Transcribe(ctx context.Context, req Request) Result {
	startTime := time.Now()
	c.incrementTotalRequests()

	result := Result{Mode: req.Mode, Model: req.Model}

	text, err := c.transcribe(ctx, req)
	result.Duration = time.Since(startTime)

	if err == nil && text == "" {
		err = emptyResponseError()
	}
	if err != nil {
		result.Err = Classify(err)
		c.incrementFailedRequests()
		c.record(req, result.Duration, result.Err.Kind.String())
		c.logger.Error("Transcription failed",
			slog.String("mode", string(req.Mode)),
			slog.String("model", req.Model),
			slog.String("kind", result.Err.Kind.String()),
			slog.String("error", err.Error()),
			slog.Duration("duration", result.Duration))
		return result
	}

	result.Text = CleanText(text)
	c.incrementSuccessRequests()
	c.updateAvgResponseTime(result.Duration)
	c.record(req, result.Duration, "")

	c.logger.Info("Transcription completed",
		slog.String("mode", string(req.Mode)),
		slog.String("model", req.Model),
		slog.Int("chars", len([]rune(result.Text))),
		slog.Duration("duration", result.Duration))

	return result
}

func (c *Client) transcribe(ctx context.Context, req Request) (string, error) {
	if req.Clip == nil {
		return "", fmt.Errorf("no clip to transcribe")
	}
	if _, ok := LookupMode(req.Mode); !ok {
		return "", fmt.Errorf("%w: %s", ErrUnknownMode, req.Mode)
	}

	data, err := os.ReadFile(req.Clip.Path)
	if err != nil {
		return "", fmt.Errorf("failed to read clip: %w", err)
	}

	c.logger.Debug("Sending transcription request",
		slog.String("clip_id", req.Clip.ID),
		slog.Int("size_bytes", len(data)),
		slog.Duration("clip_duration", req.Clip.Duration))

	return c.doRequest(ctx, req, data)
}

type generateRequest struct {
	Contents []content `json:"contents"`
}

type content struct {
	Role  string `json:"role,omitempty"`
	Parts []part `json:"parts"`
}

type part struct {
	Text       string      `json:"text,omitempty"`
	InlineData *inlineData `json:"inline_data,omitempty"`
}

type inlineData struct {
	MimeType string `json:"mime_type"`
	Data     string `json:"data"`
}

type generateResponse struct {
	Candidates []struct {
		Content struct {
			Parts []struct {
				Text string `json:"text"`
			} `json:"parts"`
		} `json:"content"`
	} `json:"candidates"`
}

type errorResponse struct {
	Error struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
		Status  string `json:"status"`
	} `json:"error"`
}

// doRequest performs a single generateContent call
func (c *Client) doRequest(ctx context.Context, req Request, audio []byte) (string, error) {
	body, err := json.Marshal(generateRequest{
		Contents: []content{{
			Role: "user",
			Parts: []part{
				{Text: req.Instruction()},
				{InlineData: &inlineData{MimeType: "audio/wav", Data: base64.StdEncoding.EncodeToString(audio)}},
			},
		}},
	})
	if err != nil {
		return "", fmt.Errorf("failed to encode request: %w", err)
	}

	endpoint := strings.TrimRight(c.config.Endpoint, "/") + "/v1beta/models/" + url.PathEscape(req.Model) + ":generateContent"
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("failed to create HTTP request: %w", err)
	}

	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "application/json")
	httpReq.Header.Set("x-goog-api-key", c.config.APIKey)
	httpReq.Header.Set("User-Agent", "speech-to-text/1.0")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return "", fmt.Errorf("HTTP request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("failed to read response body: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		var er errorResponse
		if json.Unmarshal(respBody, &er) == nil && er.Error.Message != "" {
			return "", fmt.Errorf("HTTP error %d: %s %s", resp.StatusCode, er.Error.Status, er.Error.Message)
		}
		return "", fmt.Errorf("HTTP error %d: %s", resp.StatusCode, string(respBody))
	}

	var gr generateResponse
	if err := json.Unmarshal(respBody, &gr); err != nil {
		return "", fmt.Errorf("failed to parse response JSON: %w", err)
	}

	var sb strings.Builder
	for _, cand := range gr.Candidates {
		for _, p := range cand.Content.Parts {
			sb.WriteString(p.Text)
		}
		if sb.Len() > 0 {
			break
		}
	}

	return strings.TrimSpace(sb.String()), nil
}

func (c *Client) record(req Request, d time.Duration, kind string) {
	if c.metrics != nil {
		c.metrics.RecordTranscription(string(req.Mode), req.Model, d, kind)
	}
}

// GetStats returns client statistics
func (c *Client) GetStats() ClientStats {
	c.mu.RLock()
	defer c.mu.RUnlock()

	successRate := float64(0)
	if c.totalRequests > 0 {
		successRate = float64(c.successRequests) / float64(c.totalRequests) * 100
	}

	return ClientStats{
		TotalRequests:   c.totalRequests,
		SuccessRequests: c.successRequests,
		FailedRequests:  c.failedRequests,
		SuccessRate:     successRate,
		AvgResponseTime: c.avgResponseTime,
	}
}

// Statistics methods
func (c *Client) incrementTotalRequests() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.totalRequests++
}

func (c *Client) incrementSuccessRequests() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.successRequests++
}

func (c *Client) incrementFailedRequests() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.failedRequests++
}

func (c *Client) updateAvgResponseTime(duration time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.avgResponseTime == 0 {
		c.avgResponseTime = duration
	} else {
		// Exponential moving average
		c.avgResponseTime = time.Duration(0.9*float64(c.avgResponseTime) + 0.1*float64(duration))
	}
}
