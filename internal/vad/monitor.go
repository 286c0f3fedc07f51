package vad

import (
	"context"
	"log/slog"
	"time"
)

// DefaultPollInterval matches the one second polling of the silence timer
const DefaultPollInterval = time.Second

// SilenceSource exposes a non-blocking silence flag
type SilenceSource interface {
	IsSilenceDetected() bool
}

// Monitor polls a SilenceSource on a fixed interval
type Monitor struct {
	interval time.Duration
	logger   *slog.Logger
}

// NewMonitor creates a monitor. A non-positive interval falls back to DefaultPollInterval.
func NewMonitor(interval time.Duration, logger *slog.Logger) *Monitor {
	if interval <= 0 {
		interval = DefaultPollInterval
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Monitor{interval: interval, logger: logger}
}

// Interval returns the polling interval
func (m *Monitor) Interval() time.Duration {
	return m.interval
}

// Wait blocks until src reports silence or ctx is done.
// It returns true exactly when silence was observed.
func (m *Monitor) Wait(ctx context.Context, src SilenceSource) bool {
	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return false
		case <-ticker.C:
			if ctx.Err() != nil {
				return false
			}
			if src.IsSilenceDetected() {
				m.logger.Debug("Silence observed", slog.Duration("interval", m.interval))
				return true
			}
		}
	}
}
