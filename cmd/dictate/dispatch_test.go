package main

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/mmcmkm/speech-to-text/internal/capture"
	"github.com/mmcmkm/speech-to-text/internal/history"
	"github.com/mmcmkm/speech-to-text/internal/pipeline"
	"github.com/mmcmkm/speech-to-text/internal/transcription"
)

type memoryHistory struct {
	entries []history.Entry
	err     error
}

func (m *memoryHistory) Record(ctx context.Context, e history.Entry) (history.Entry, error) {
	if m.err != nil {
		return e, m.err
	}
	m.entries = append(m.entries, e)
	return e, nil
}

type sinkRecorder struct {
	copied    []string
	notices   []string
	forwarded []pipeline.Event
}

func newTestDispatcher(h historyRecorder) (*dispatcher, *sinkRecorder) {
	s := &sinkRecorder{}
	d := &dispatcher{
		logger:  slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelError})),
		history: h,
		copyText: func(text string) error {
			s.copied = append(s.copied, text)
			return nil
		},
		notify: func(title, message string) error {
			s.notices = append(s.notices, message)
			return nil
		},
		forward: func(ev pipeline.Event) {
			s.forwarded = append(s.forwarded, ev)
		},
	}
	return d, s
}

func TestDispatchSuccessfulTranscription(t *testing.T) {
	h := &memoryHistory{}
	d, s := newTestDispatcher(h)

	clip := &capture.Clip{ID: "c1", Path: "/tmp/clip.wav", Duration: 3 * time.Second}
	d.handle(pipeline.TranscriptionFinished{
		SessionID: "s1",
		Clip:      clip,
		Result: transcription.Result{
			Text:     "会議は十一時です",
			Mode:     transcription.ModeSmart,
			Model:    transcription.DefaultModel,
			Duration: 1500 * time.Millisecond,
		},
	})

	if len(s.copied) != 1 || s.copied[0] != "会議は十一時です" {
		t.Errorf("Expected text to be copied, got %v", s.copied)
	}
	if len(h.entries) != 1 {
		t.Fatalf("Expected 1 history entry, got %d", len(h.entries))
	}
	e := h.entries[0]
	if e.SessionID != "s1" || e.ClipPath != "/tmp/clip.wav" || e.ClipDuration != 3*time.Second {
		t.Errorf("Unexpected history entry: %+v", e)
	}
	if !e.OK() {
		t.Error("Expected successful entry")
	}
	if len(s.forwarded) != 1 {
		t.Errorf("Expected event to be forwarded, got %d", len(s.forwarded))
	}
}

func TestDispatchFailedTranscriptionNotCopied(t *testing.T) {
	h := &memoryHistory{}
	d, s := newTestDispatcher(h)

	d.handle(pipeline.TranscriptionFinished{
		SessionID: "s1",
		Result: transcription.Result{
			Err:   &transcription.Error{Kind: transcription.KindRateLimited, Message: "Rate limit reached"},
			Mode:  transcription.ModeClean,
			Model: transcription.DefaultModel,
		},
	})

	if len(s.copied) != 0 {
		t.Errorf("Expected nothing copied on failure, got %v", s.copied)
	}
	if len(s.notices) != 1 || s.notices[0] != "Rate limit reached" {
		t.Errorf("Expected failure notice, got %v", s.notices)
	}
	if len(h.entries) != 1 || h.entries[0].ErrorKind != "rate_limited" {
		t.Errorf("Expected rate_limited history entry, got %+v", h.entries)
	}
}

func TestDispatchHistoryErrorStillForwards(t *testing.T) {
	h := &memoryHistory{err: errors.New("disk full")}
	d, s := newTestDispatcher(h)

	d.handle(pipeline.TranscriptionFinished{SessionID: "s1", Result: transcription.Result{Text: "ok"}})

	if len(s.forwarded) != 1 {
		t.Errorf("Expected event forwarded despite history error, got %d", len(s.forwarded))
	}
}

func TestDispatchSilenceNotice(t *testing.T) {
	d, s := newTestDispatcher(nil)

	d.handle(pipeline.SilenceCancelled{SessionID: "s1"})
	d.handle(pipeline.CaptureStateChanged{SessionID: "s1", Capturing: false})

	if len(s.notices) != 1 {
		t.Errorf("Expected 1 notice, got %v", s.notices)
	}
	if len(s.forwarded) != 2 {
		t.Errorf("Expected 2 forwarded events, got %d", len(s.forwarded))
	}
}

func TestDispatchRunDrainsAfterDone(t *testing.T) {
	d, s := newTestDispatcher(nil)

	events := make(chan pipeline.Event, 4)
	done := make(chan struct{})
	events <- pipeline.CaptureStateChanged{SessionID: "s1", Capturing: true}
	events <- pipeline.CaptureStateChanged{SessionID: "s1", Capturing: false}
	close(done)

	finished := make(chan struct{})
	go func() {
		d.run(events, done)
		close(finished)
	}()

	select {
	case <-finished:
	case <-time.After(time.Second):
		t.Fatal("Expected dispatcher to return after done")
	}
	if len(s.forwarded) != 2 {
		t.Errorf("Expected buffered events to be drained, got %d", len(s.forwarded))
	}
}
