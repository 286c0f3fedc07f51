package vad

import (
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/mmcmkm/speech-to-text/internal/audio"
)

// Threshold and duration bounds accepted by the detector
const (
	MinThreshold = 0.001
	MaxThreshold = 1.0
	MinDuration  = time.Second
	MaxDuration  = 60 * time.Second
)

// Detector decides whether a capture session has gone quiet.
// A block is loud when its normalized RMS exceeds the threshold; the
// session is silent once no loud block has arrived for longer than the
// configured duration. Settings changed with Configure only apply from
// the next Reset, so a running session keeps the values it started with.
type Detector struct {
	threshold float64
	duration  time.Duration

	nextThreshold float64
	nextDuration  time.Duration

	lastSound time.Time
	lastLevel float64

	// Statistics
	totalBlocks uint64
	loudBlocks  uint64

	silent atomic.Bool
	mu     sync.RWMutex
}

// DetectorStats represents detector statistics for the current session
type DetectorStats struct {
	TotalBlocks     uint64        `json:"total_blocks"`
	LoudBlocks      uint64        `json:"loud_blocks"`
	LoudPercentage  float64       `json:"loud_percentage"`
	LastLevel       float64       `json:"last_level"`
	LastSound       time.Time     `json:"last_sound"`
	Threshold       float64       `json:"threshold"`
	SilenceDuration time.Duration `json:"silence_duration"`
	Silent          bool          `json:"silent"`
}

// ValidateSettings checks a threshold and duration pair against the accepted ranges
func ValidateSettings(threshold float64, duration time.Duration) error {
	if threshold < MinThreshold || threshold > MaxThreshold {
		return fmt.Errorf("threshold must be between %g and %g, got %g", MinThreshold, MaxThreshold, threshold)
	}
	if duration < MinDuration || duration > MaxDuration {
		return fmt.Errorf("silence duration must be between %v and %v, got %v", MinDuration, MaxDuration, duration)
	}
	return nil
}

// NewDetector creates a detector with the given settings
func NewDetector(threshold float64, duration time.Duration) (*Detector, error) {
	if err := ValidateSettings(threshold, duration); err != nil {
		return nil, err
	}
	return &Detector{
		threshold:     threshold,
		duration:      duration,
		nextThreshold: threshold,
		nextDuration:  duration,
	}, nil
}

// Configure sets the settings for the next session
func (d *Detector) Configure(threshold float64, duration time.Duration) error {
	if err := ValidateSettings(threshold, duration); err != nil {
		return err
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	d.nextThreshold = threshold
	d.nextDuration = duration
	return nil
}

// Reset starts a new session with the latest configured settings. The
// start time counts as the last sound.
func (d *Detector) Reset(now time.Time) {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.threshold = d.nextThreshold
	d.duration = d.nextDuration

	d.lastSound = now
	d.lastLevel = 0
	d.totalBlocks = 0
	d.loudBlocks = 0
	d.silent.Store(false)
}

// Observe folds one block of samples into the detector and returns its level
func (d *Detector) Observe(samples []int16, now time.Time) float64 {
	level := audio.NormalizedRMS(samples)

	d.mu.Lock()
	defer d.mu.Unlock()

	d.totalBlocks++
	d.lastLevel = level

	if level > d.threshold {
		d.loudBlocks++
		d.lastSound = now
		d.silent.Store(false)
		return level
	}

	if now.Sub(d.lastSound) > d.duration {
		d.silent.Store(true)
	}

	return level
}

// Silent reports whether the silence condition holds. Never blocks.
func (d *Detector) Silent() bool {
	return d.silent.Load()
}

// GetThreshold returns the loudness threshold of the current session
func (d *Detector) GetThreshold() float64 {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.threshold
}

// GetDuration returns the silence duration of the current session
func (d *Detector) GetDuration() time.Duration {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.duration
}

// GetStats returns current detector statistics
func (d *Detector) GetStats() DetectorStats {
	d.mu.RLock()
	defer d.mu.RUnlock()

	loudPercentage := float64(0)
	if d.totalBlocks > 0 {
		loudPercentage = float64(d.loudBlocks) / float64(d.totalBlocks) * 100
	}

	return DetectorStats{
		TotalBlocks:     d.totalBlocks,
		LoudBlocks:      d.loudBlocks,
		LoudPercentage:  loudPercentage,
		LastLevel:       d.lastLevel,
		LastSound:       d.lastSound,
		Threshold:       d.threshold,
		SilenceDuration: d.duration,
		Silent:          d.silent.Load(),
	}
}
