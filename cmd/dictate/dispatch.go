package main

import (
	"context"
	"log/slog"
	"time"

	"github.com/mmcmkm/speech-to-text/internal/history"
	"github.com/mmcmkm/speech-to-text/internal/pipeline"
)

const historyWriteTimeout = 5 * time.Second

type historyRecorder interface {
	Record(ctx context.Context, e history.Entry) (history.Entry, error)
}

// dispatcher drains controller events and fans them out to the result
// sinks and the active frontend
type dispatcher struct {
	logger  *slog.Logger
	history historyRecorder

	// optional sinks, nil when disabled
	copyText func(text string) error
	notify   func(title, message string) error

	forward func(ev pipeline.Event)
}

// run handles events until done is closed, then drains what is buffered
func (d *dispatcher) run(events <-chan pipeline.Event, done <-chan struct{}) {
	for {
		select {
		case ev := <-events:
			d.handle(ev)
		case <-done:
			for {
				select {
				case ev := <-events:
					d.handle(ev)
				default:
					return
				}
			}
		}
	}
}

func (d *dispatcher) handle(ev pipeline.Event) {
	switch ev := ev.(type) {
	case pipeline.SilenceCancelled:
		d.sendNotice("Silence detected, transcribing")

	case pipeline.CaptureFailed:
		d.sendNotice("Capture failed: " + ev.Err.Error())

	case pipeline.TranscriptionFinished:
		d.record(ev)

		r := ev.Result
		if !r.OK() {
			d.sendNotice(r.Err.Message)
			break
		}
		if d.copyText != nil && r.Text != "" {
			if err := d.copyText(r.Text); err != nil {
				d.logger.Warn("Failed to copy transcription to clipboard", slog.String("error", err.Error()))
			} else {
				d.logger.Debug("Transcription copied to clipboard", slog.String("session_id", ev.SessionID))
			}
		}
	}

	if d.forward != nil {
		d.forward(ev)
	}
}

func (d *dispatcher) record(ev pipeline.TranscriptionFinished) {
	if d.history == nil {
		return
	}

	r := ev.Result
	e := history.Entry{
		SessionID: ev.SessionID,
		Mode:      string(r.Mode),
		Model:     r.Model,
		Latency:   r.Duration,
		Text:      r.Text,
	}
	if ev.Clip != nil {
		e.ClipPath = ev.Clip.Path
		e.ClipDuration = ev.Clip.Duration
	}
	if r.Err != nil {
		e.ErrorKind = r.Err.Kind.String()
		e.ErrorMessage = r.Err.Message
	}

	ctx, cancel := context.WithTimeout(context.Background(), historyWriteTimeout)
	defer cancel()

	if _, err := d.history.Record(ctx, e); err != nil {
		d.logger.Error("Failed to record transcription history",
			slog.String("session_id", ev.SessionID),
			slog.String("error", err.Error()))
	}
}

func (d *dispatcher) sendNotice(message string) {
	if d.notify == nil {
		return
	}
	if err := d.notify("Speech to Text", message); err != nil {
		d.logger.Debug("Desktop notification failed", slog.String("error", err.Error()))
	}
}
