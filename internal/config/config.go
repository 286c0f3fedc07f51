package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/mmcmkm/speech-to-text/internal/transcription"
	"github.com/mmcmkm/speech-to-text/internal/vad"
)

// Config represents the complete application configuration
type Config struct {
	Audio         AudioConfig         `yaml:"audio"`
	Silence       SilenceConfig       `yaml:"silence"`
	Storage       StorageConfig       `yaml:"storage"`
	Transcription TranscriptionConfig `yaml:"transcription"`
	HTTP          HTTPConfig          `yaml:"http"`
	History       HistoryConfig       `yaml:"history"`
	Logging       LoggingConfig       `yaml:"logging"`
}

// AudioConfig contains capture device parameters
type AudioConfig struct {
	Device     string `yaml:"device"` // empty selects the default input
	SampleRate int    `yaml:"sample_rate"`
	Channels   int    `yaml:"channels"`
	FrameSize  int    `yaml:"frame_size"` // frames per read
}

// SilenceConfig contains silence detection parameters
type SilenceConfig struct {
	Enabled        bool    `yaml:"enabled"`
	Threshold      float64 `yaml:"threshold"`        // normalized RMS
	Duration       float64 `yaml:"duration"`         // seconds
	PollIntervalMs int     `yaml:"poll_interval_ms"`
}

// StorageConfig contains clip storage parameters
type StorageConfig struct {
	ClipDir        string `yaml:"clip_dir"`
	RetentionHours int    `yaml:"retention_hours"`
}

// TranscriptionConfig contains transcription API configuration
type TranscriptionConfig struct {
	Endpoint           string `yaml:"endpoint"`
	APIKey             string `yaml:"api_key"`
	APIKeyEnv          string `yaml:"api_key_env"`
	Model              string `yaml:"model"`
	Mode               string `yaml:"mode"`
	Timeout            int    `yaml:"timeout"` // seconds
	VocabularyHintFile string `yaml:"vocabulary_hint_file"`
	HintMaxBytes       int    `yaml:"hint_max_bytes"`
}

// HTTPConfig contains HTTP control API configuration
type HTTPConfig struct {
	Port    int    `yaml:"port"`
	Address string `yaml:"address"`
	Enabled bool   `yaml:"enabled"`
}

// HistoryConfig contains transcript history configuration
type HistoryConfig struct {
	Enabled       bool   `yaml:"enabled"`
	Path          string `yaml:"path"`
	Limit         int    `yaml:"limit"`          // rows returned by default
	RetentionDays int    `yaml:"retention_days"` // 0 keeps entries forever
}

// LoggingConfig contains logging configuration
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Output string `yaml:"output"`
}

// Default returns the configuration used for omitted fields
func Default() *Config {
	return &Config{
		Audio: AudioConfig{
			SampleRate: 44100,
			Channels:   1,
			FrameSize:  1024,
		},
		Silence: SilenceConfig{
			Enabled:        true,
			Threshold:      0.01,
			Duration:       20,
			PollIntervalMs: 1000,
		},
		Storage: StorageConfig{
			RetentionHours: 24,
		},
		Transcription: TranscriptionConfig{
			Endpoint:     transcription.DefaultEndpoint,
			APIKeyEnv:    "GEMINI_API_KEY",
			Model:        transcription.DefaultModel,
			Mode:         string(transcription.ModeClean),
			Timeout:      60,
			HintMaxBytes: transcription.DefaultHintBytes,
		},
		HTTP: HTTPConfig{
			Port:    8765,
			Address: "127.0.0.1",
		},
		History: HistoryConfig{
			Enabled: true,
			Path:          "data/history.db",
			Limit:         50,
			RetentionDays: 90,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
			Output: "dictate.log",
		},
	}
}

// Load reads the configuration file over the defaults
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	config := Default()
	if err := yaml.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
	}

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return config, nil
}

// Validate performs comprehensive validation of the configuration
func (c *Config) Validate() error {
	if err := c.Audio.Validate(); err != nil {
		return fmt.Errorf("audio config: %w", err)
	}

	if err := c.Silence.Validate(); err != nil {
		return fmt.Errorf("silence config: %w", err)
	}

	if err := c.Storage.Validate(); err != nil {
		return fmt.Errorf("storage config: %w", err)
	}

	if err := c.Transcription.Validate(); err != nil {
		return fmt.Errorf("transcription config: %w", err)
	}

	if err := c.HTTP.Validate(); err != nil {
		return fmt.Errorf("http config: %w", err)
	}

	if err := c.History.Validate(); err != nil {
		return fmt.Errorf("history config: %w", err)
	}

	if err := c.Logging.Validate(); err != nil {
		return fmt.Errorf("logging config: %w", err)
	}

	return nil
}

// Validate validates audio configuration
func (a *AudioConfig) Validate() error {
	if a.SampleRate < 8000 || a.SampleRate > 192000 {
		return fmt.Errorf("sample_rate must be between 8000 and 192000 Hz, got %d", a.SampleRate)
	}

	if a.Channels < 1 || a.Channels > 2 {
		return fmt.Errorf("channels must be 1 or 2, got %d", a.Channels)
	}

	if a.FrameSize < 64 || a.FrameSize > 16384 {
		return fmt.Errorf("frame_size must be between 64 and 16384 frames, got %d", a.FrameSize)
	}

	return nil
}

// Validate validates silence detection configuration
func (s *SilenceConfig) Validate() error {
	if err := vad.ValidateSettings(s.Threshold, s.GetDuration()); err != nil {
		return err
	}

	if s.PollIntervalMs < 10 {
		return fmt.Errorf("poll_interval_ms must be at least 10, got %d", s.PollIntervalMs)
	}

	return nil
}

// Validate validates storage configuration
func (s *StorageConfig) Validate() error {
	if s.RetentionHours < 1 {
		return fmt.Errorf("retention_hours must be at least 1, got %d", s.RetentionHours)
	}

	return nil
}

// Validate validates transcription configuration
func (t *TranscriptionConfig) Validate() error {
	if t.Endpoint == "" {
		return fmt.Errorf("endpoint cannot be empty")
	}

	if t.APIKey == "" && t.APIKeyEnv == "" {
		return fmt.Errorf("either api_key or api_key_env must be set")
	}

	if !transcription.ValidModel(t.Model) {
		return fmt.Errorf("unknown model '%s'", t.Model)
	}

	if _, ok := transcription.LookupMode(transcription.Mode(t.Mode)); !ok {
		return fmt.Errorf("unknown mode '%s'", t.Mode)
	}

	if t.Timeout < 1 {
		return fmt.Errorf("timeout must be at least 1 second, got %d", t.Timeout)
	}

	if t.HintMaxBytes < 0 {
		return fmt.Errorf("hint_max_bytes cannot be negative, got %d", t.HintMaxBytes)
	}

	return nil
}

// Validate validates HTTP configuration
func (h *HTTPConfig) Validate() error {
	if h.Enabled {
		if h.Port < 1 || h.Port > 65535 {
			return fmt.Errorf("http port must be between 1 and 65535, got %d", h.Port)
		}

		if h.Address == "" {
			return fmt.Errorf("http address cannot be empty when HTTP is enabled")
		}
	}

	return nil
}

// Validate validates history configuration
func (h *HistoryConfig) Validate() error {
	if h.Enabled && h.Path == "" {
		return fmt.Errorf("path cannot be empty when history is enabled")
	}

	if h.Limit < 1 {
		return fmt.Errorf("limit must be at least 1, got %d", h.Limit)
	}

	if h.RetentionDays < 0 {
		return fmt.Errorf("retention_days must not be negative, got %d", h.RetentionDays)
	}

	return nil
}

// Validate validates logging configuration
func (l *LoggingConfig) Validate() error {
	validLevels := map[string]bool{
		"debug": true, "info": true, "warn": true, "error": true,
	}
	if !validLevels[l.Level] {
		return fmt.Errorf("level must be one of [debug, info, warn, error], got '%s'", l.Level)
	}

	validFormats := map[string]bool{"json": true, "text": true}
	if !validFormats[l.Format] {
		return fmt.Errorf("format must be 'json' or 'text', got '%s'", l.Format)
	}

	if l.Output == "" {
		return fmt.Errorf("output cannot be empty")
	}

	return nil
}

// ResolveAPIKey returns the configured key, falling back to the
// environment variable named by api_key_env
func (t *TranscriptionConfig) ResolveAPIKey() (string, error) {
	if t.APIKey != "" {
		return t.APIKey, nil
	}
	if key := os.Getenv(t.APIKeyEnv); key != "" {
		return key, nil
	}
	return "", fmt.Errorf("no API key: set transcription.api_key or the %s environment variable", t.APIKeyEnv)
}

// GetDuration returns the silence duration as a time.Duration
func (s *SilenceConfig) GetDuration() time.Duration {
	return time.Duration(s.Duration * float64(time.Second))
}

// GetPollInterval returns the silence poll interval as a time.Duration
func (s *SilenceConfig) GetPollInterval() time.Duration {
	return time.Duration(s.PollIntervalMs) * time.Millisecond
}

// GetRetentionDuration returns the clip retention window as a time.Duration
func (s *StorageConfig) GetRetentionDuration() time.Duration {
	return time.Duration(s.RetentionHours) * time.Hour
}

// Cutoff returns the creation time before which history entries are
// pruned, and false when entries are kept forever
func (h *HistoryConfig) Cutoff(now time.Time) (time.Time, bool) {
	if h.RetentionDays == 0 {
		return time.Time{}, false
	}
	return now.AddDate(0, 0, -h.RetentionDays), true
}

// GetTimeoutDuration returns the transcription timeout as a time.Duration
func (t *TranscriptionConfig) GetTimeoutDuration() time.Duration {
	return time.Duration(t.Timeout) * time.Second
}
