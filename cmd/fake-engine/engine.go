package main

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-audio/wav"
)

// Failure modes the engine can simulate
const (
	failNone         = ""
	failOverloaded   = "overloaded"
	failRateLimit    = "ratelimit"
	failUnauthorized = "unauthorized"
	failEmpty        = "empty"
)

type engine struct {
	logger *slog.Logger
	fail   string
	delay  time.Duration
	apiKey string // empty accepts any key
}

type generateRequest struct {
	Contents []struct {
		Parts []struct {
			Text       string `json:"text"`
			InlineData *struct {
				MimeType string `json:"mime_type"`
				Data     string `json:"data"`
			} `json:"inline_data"`
		} `json:"parts"`
	} `json:"contents"`
}

func (e *engine) routes() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/v1beta/models/", e.handleGenerate)
	return mux
}

func writeAPIError(w http.ResponseWriter, code int, status, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(map[string]any{
		"error": map[string]any{"code": code, "status": status, "message": message},
	})
}

func (e *engine) handleGenerate(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	model, action, ok := strings.Cut(strings.TrimPrefix(r.URL.Path, "/v1beta/models/"), ":")
	if !ok || action != "generateContent" || model == "" {
		http.NotFound(w, r)
		return
	}

	key := r.Header.Get("x-goog-api-key")
	if key == "" || (e.apiKey != "" && key != e.apiKey) || e.fail == failUnauthorized {
		writeAPIError(w, http.StatusUnauthorized, "UNAUTHENTICATED", "API key not valid. Please pass a valid API key.")
		return
	}

	var req generateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeAPIError(w, http.StatusBadRequest, "INVALID_ARGUMENT", "Invalid JSON payload received.")
		return
	}

	var instruction string
	var audio []byte
	for _, c := range req.Contents {
		for _, p := range c.Parts {
			if p.Text != "" {
				instruction = p.Text
			}
			if p.InlineData != nil {
				data, err := base64.StdEncoding.DecodeString(p.InlineData.Data)
				if err != nil {
					writeAPIError(w, http.StatusBadRequest, "INVALID_ARGUMENT", "inline_data is not valid base64")
					return
				}
				audio = data
			}
		}
	}
	if audio == nil {
		writeAPIError(w, http.StatusBadRequest, "INVALID_ARGUMENT", "request has no audio part")
		return
	}

	duration, err := wavDuration(audio)
	if err != nil {
		writeAPIError(w, http.StatusBadRequest, "INVALID_ARGUMENT", err.Error())
		return
	}

	e.logger.Info("Transcription request received",
		slog.String("model", model),
		slog.Int("audio_bytes", len(audio)),
		slog.Duration("audio_duration", duration),
		slog.Int("instruction_bytes", len(instruction)))

	if e.delay > 0 {
		select {
		case <-time.After(e.delay):
		case <-r.Context().Done():
			return
		}
	}

	switch e.fail {
	case failOverloaded:
		writeAPIError(w, http.StatusServiceUnavailable, "UNAVAILABLE", "The model is overloaded. Please try again later.")
		return
	case failRateLimit:
		writeAPIError(w, http.StatusTooManyRequests, "RESOURCE_EXHAUSTED", "Resource has been exhausted (e.g. check quota).")
		return
	case failEmpty:
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"candidates":[]}`))
		return
	}

	text := fmt.Sprintf("テスト文字起こし %.1f秒の音声を受信しました", duration.Seconds())
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{
		"candidates": []any{
			map[string]any{
				"content": map[string]any{
					"role":  "model",
					"parts": []any{map[string]any{"text": text}},
				},
			},
		},
	})

	e.logger.Info("Transcription response sent", slog.String("text", text))
}

// wavDuration validates the WAV container and returns its play time
func wavDuration(data []byte) (time.Duration, error) {
	d := wav.NewDecoder(bytes.NewReader(data))
	if !d.IsValidFile() {
		return 0, fmt.Errorf("audio is not a valid WAV file")
	}
	if err := d.FwdToPCM(); err != nil {
		return 0, fmt.Errorf("audio has no PCM data: %w", err)
	}
	bytesPerSec := int(d.SampleRate) * int(d.NumChans) * int(d.BitDepth) / 8
	if bytesPerSec == 0 {
		return 0, fmt.Errorf("audio format is incomplete")
	}
	return time.Duration(float64(d.PCMSize) / float64(bytesPerSec) * float64(time.Second)), nil
}
