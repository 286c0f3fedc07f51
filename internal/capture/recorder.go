package capture

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/mmcmkm/speech-to-text/internal/audio"
	"github.com/mmcmkm/speech-to-text/internal/vad"
)

var (
	ErrDeviceUnavailable = errors.New("audio input device unavailable")
	ErrAlreadyActive     = errors.New("capture already active")
	ErrNotActive         = errors.New("capture not active")
	ErrIOFailure         = errors.New("audio I/O failure")
)

// Config holds recorder settings
type Config struct {
	DeviceName       string
	Channels         int
	SampleRate       int
	FrameSize        int
	SilenceThreshold float64
	SilenceDuration  time.Duration
	Retention        time.Duration

	// Clock overrides time.Now for block timestamps and clip names
	Clock func() time.Time
}

// Validate checks the recorder settings
func (c Config) Validate() error {
	if c.Channels <= 0 {
		return fmt.Errorf("channels must be positive, got %d", c.Channels)
	}
	if c.SampleRate <= 0 {
		return fmt.Errorf("sample rate must be positive, got %d", c.SampleRate)
	}
	if c.FrameSize <= 0 {
		return fmt.Errorf("frame size must be positive, got %d", c.FrameSize)
	}
	if c.Retention < 0 {
		return fmt.Errorf("retention must not be negative, got %v", c.Retention)
	}
	return vad.ValidateSettings(c.SilenceThreshold, c.SilenceDuration)
}

// Recorder accumulates PCM from an input device while a session is
// active and writes it to a clip when the session stops.
//
// PushFrame is driven by a single capture worker. IsSilenceDetected and
// IsActive may be called from any goroutine and never block.
type Recorder struct {
	config   Config
	device   Device
	store    *ClipStore
	detector *vad.Detector
	logger   *slog.Logger
	now      func() time.Time

	active atomic.Bool

	mu        sync.Mutex
	stream    Stream
	block     []int16
	buffer    []byte
	sessionID string
	startedAt time.Time
	current   string
}

// NewRecorder creates a recorder and reclaims clips older than the retention window
func NewRecorder(config Config, device Device, store *ClipStore, logger *slog.Logger) (*Recorder, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}
	if device == nil {
		return nil, fmt.Errorf("device is required")
	}
	if store == nil {
		return nil, fmt.Errorf("clip store is required")
	}
	if logger == nil {
		logger = slog.Default()
	}
	if config.Retention == 0 {
		config.Retention = DefaultRetention
	}

	detector, err := vad.NewDetector(config.SilenceThreshold, config.SilenceDuration)
	if err != nil {
		return nil, err
	}

	now := config.Clock
	if now == nil {
		now = time.Now
	}

	r := &Recorder{
		config:   config,
		device:   device,
		store:    store,
		detector: detector,
		logger:   logger,
		now:      now,
	}

	store.Reclaim(config.Retention, now())
	return r, nil
}

// Format returns the PCM format clips are written in
func (r *Recorder) Format() audio.Format {
	return audio.PCM16(r.config.Channels, r.config.SampleRate)
}

// Start opens the device and begins a new session. Any clip left from
// the previous session is deleted first.
func (r *Recorder) Start() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.active.Load() {
		return ErrAlreadyActive
	}

	r.discardCurrentLocked()

	stream, err := r.device.Open(StreamConfig{
		DeviceName:      r.config.DeviceName,
		Channels:        r.config.Channels,
		SampleRate:      r.config.SampleRate,
		FramesPerBuffer: r.config.FrameSize,
	})
	if err != nil {
		return fmt.Errorf("%w: %w", ErrDeviceUnavailable, err)
	}

	id, err := uuid.NewV7()
	if err != nil {
		id = uuid.New()
	}

	now := r.now()
	r.stream = stream
	r.block = make([]int16, r.config.FrameSize*r.config.Channels)
	r.buffer = make([]byte, 0, r.config.SampleRate*r.config.Channels*2)
	r.sessionID = id.String()
	r.startedAt = now
	r.detector.Reset(now)
	r.active.Store(true)

	r.logger.Info("Capture started",
		slog.String("session_id", r.sessionID),
		slog.Int("sample_rate", r.config.SampleRate),
		slog.Int("channels", r.config.Channels),
		slog.Float64("silence_threshold", r.detector.GetThreshold()),
		slog.Duration("silence_duration", r.detector.GetDuration()))

	return nil
}

// PushFrame reads one block from the device, appends it to the session
// buffer and updates the silence state
func (r *Recorder) PushFrame() error {
	if !r.active.Load() {
		return ErrNotActive
	}

	r.mu.Lock()
	stream, block := r.stream, r.block
	r.mu.Unlock()
	if stream == nil {
		return ErrNotActive
	}

	if err := stream.Read(block); err != nil {
		if !r.active.Load() {
			return ErrNotActive
		}
		return fmt.Errorf("%w: %w", ErrIOFailure, err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if !r.active.Load() {
		return ErrNotActive
	}

	r.buffer = audio.AppendInt16(r.buffer, block...)
	r.detector.Observe(block, r.now())
	return nil
}

// Stop closes the device and writes the session buffer to a new clip.
// The buffer is cleared whether or not the write succeeds.
func (r *Recorder) Stop() (*Clip, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if !r.active.CompareAndSwap(true, false) {
		return nil, ErrNotActive
	}

	if err := r.stream.Close(); err != nil {
		r.logger.Warn("Failed to close input stream",
			slog.String("session_id", r.sessionID),
			slog.String("error", err.Error()))
	}
	r.stream = nil

	r.discardCurrentLocked()

	pcm := r.buffer
	r.buffer = nil

	stoppedAt := r.now()
	format := r.Format()
	path := r.store.NewPath(stoppedAt)

	if err := audio.WriteWAV(path, pcm, format); err != nil {
		r.logger.Error("Failed to write clip",
			slog.String("session_id", r.sessionID),
			slog.String("path", path),
			slog.String("error", err.Error()))
		return nil, fmt.Errorf("%w: %w", ErrIOFailure, err)
	}

	r.current = path
	clip := &Clip{
		ID:        r.sessionID,
		Path:      path,
		Format:    format,
		Size:      len(pcm),
		Duration:  format.Duration(len(pcm)),
		StartedAt: r.startedAt,
		StoppedAt: stoppedAt,
	}

	r.logger.Info("Capture stopped",
		slog.String("session_id", clip.ID),
		slog.String("path", clip.Path),
		slog.Int("size_bytes", clip.Size),
		slog.Duration("duration", clip.Duration))

	return clip, nil
}

// IsSilenceDetected reports the session's silence flag
func (r *Recorder) IsSilenceDetected() bool {
	return r.detector.Silent()
}

// IsActive reports whether a session is running
func (r *Recorder) IsActive() bool {
	return r.active.Load()
}

// SessionID returns the id of the current or most recent session
func (r *Recorder) SessionID() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.sessionID
}

// Level returns the normalized RMS of the most recent block
func (r *Recorder) Level() float64 {
	return r.detector.GetStats().LastLevel
}

// SilenceStats returns the detector statistics for the current session
func (r *Recorder) SilenceStats() vad.DetectorStats {
	return r.detector.GetStats()
}

// SetSilence changes the silence settings. A running session keeps the
// values it started with; the new ones apply from the next Start.
func (r *Recorder) SetSilence(threshold float64, duration time.Duration) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if err := r.detector.Configure(threshold, duration); err != nil {
		return err
	}
	r.config.SilenceThreshold = threshold
	r.config.SilenceDuration = duration

	r.logger.Info("Silence settings updated",
		slog.Float64("silence_threshold", threshold),
		slog.Duration("silence_duration", duration))
	return nil
}

// SilenceSettings returns the threshold and duration the next session uses
func (r *Recorder) SilenceSettings() (float64, time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.config.SilenceThreshold, r.config.SilenceDuration
}

// DiscardCurrent deletes the clip produced by the last Stop
func (r *Recorder) DiscardCurrent() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.discardCurrentLocked()
}

// Close ends any running session, deletes the current clip, reclaims old
// clips and removes the clip directory if it is left empty
func (r *Recorder) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	var err error
	if r.active.CompareAndSwap(true, false) {
		err = r.stream.Close()
		r.stream = nil
		r.buffer = nil
	}

	r.discardCurrentLocked()
	r.store.Reclaim(r.config.Retention, r.now())
	r.store.RemoveDirIfEmpty()
	return err
}

func (r *Recorder) discardCurrentLocked() {
	if r.current == "" {
		return
	}
	if err := r.store.Remove(r.current); err != nil {
		r.logger.Warn("Failed to remove clip", slog.String("path", r.current), slog.String("error", err.Error()))
	}
	r.current = ""
}
