package pipeline

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/mmcmkm/speech-to-text/internal/capture"
	"github.com/mmcmkm/speech-to-text/internal/transcription"
)

type fakeRecorder struct {
	mu        sync.Mutex
	startErr  error
	stopErr   error
	pushErr   error
	active    bool
	starts    int
	stops     int
	discards  int
	frames    int
	sessionID string

	silent atomic.Bool
}

func (r *fakeRecorder) Start() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.startErr != nil {
		return r.startErr
	}
	if r.active {
		return capture.ErrAlreadyActive
	}
	r.active = true
	r.starts++
	r.frames = 0
	r.sessionID = fmt.Sprintf("session-%d", r.starts)
	return nil
}

func (r *fakeRecorder) PushFrame() error {
	time.Sleep(time.Millisecond)
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.active {
		return capture.ErrNotActive
	}
	if r.pushErr != nil {
		return r.pushErr
	}
	r.frames++
	return nil
}

func (r *fakeRecorder) Stop() (*capture.Clip, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.active {
		return nil, capture.ErrNotActive
	}
	r.active = false
	r.stops++
	if r.stopErr != nil {
		return nil, r.stopErr
	}
	return &capture.Clip{ID: r.sessionID, Path: "/tmp/" + r.sessionID + ".wav", Size: r.frames * 2}, nil
}

func (r *fakeRecorder) IsSilenceDetected() bool {
	return r.silent.Load()
}

func (r *fakeRecorder) SessionID() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.sessionID
}

func (r *fakeRecorder) DiscardCurrent() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.discards++
}

func (r *fakeRecorder) counts() (starts, stops, discards int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.starts, r.stops, r.discards
}

type fakeTranscriber struct {
	mu       sync.Mutex
	result   transcription.Result
	delay    time.Duration
	calls    int
	finished int
	hints    []string
	clips    []*capture.Clip
	states   []State
	ctrl     *Controller
}

func (f *fakeTranscriber) NewRequest(clip *capture.Clip, hint string) transcription.Request {
	return transcription.Request{Mode: transcription.ModeClean, Model: transcription.DefaultModel, Hint: hint, Clip: clip}
}

func (f *fakeTranscriber) Transcribe(ctx context.Context, req transcription.Request) transcription.Result {
	f.mu.Lock()
	f.calls++
	f.hints = append(f.hints, req.Hint)
	f.clips = append(f.clips, req.Clip)
	if f.ctrl != nil {
		f.states = append(f.states, f.ctrl.State())
	}
	result, delay := f.result, f.delay
	f.mu.Unlock()

	if delay > 0 {
		time.Sleep(delay)
	}

	f.mu.Lock()
	f.finished++
	f.mu.Unlock()

	result.Mode, result.Model = req.Mode, req.Model
	return result
}

func (f *fakeTranscriber) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelError}))
}

// runController starts Run and stops it when the test ends
func runController(t *testing.T, config Config, rec Recorder, tr Transcriber) (*Controller, context.CancelFunc) {
	t.Helper()

	c, err := NewController(config, rec, tr, testLogger(), nil)
	if err != nil {
		t.Fatalf("Failed to create controller: %v", err)
	}
	if ft, ok := tr.(*fakeTranscriber); ok {
		ft.ctrl = c
	}

	ctx, cancel := context.WithCancel(context.Background())
	go c.Run(ctx)

	t.Cleanup(func() {
		cancel()
		select {
		case <-c.Done():
		case <-time.After(5 * time.Second):
			t.Error("Controller did not shut down")
		}
	})
	return c, cancel
}

func nextEvent(t *testing.T, c *Controller) Event {
	t.Helper()
	select {
	case ev := <-c.Events():
		return ev
	case <-time.After(3 * time.Second):
		t.Fatal("Timed out waiting for event")
		return nil
	}
}

func expectNoEvent(t *testing.T, c *Controller, wait time.Duration) {
	t.Helper()
	select {
	case ev := <-c.Events():
		t.Errorf("Expected no event, got %T %+v", ev, ev)
	case <-time.After(wait):
	}
}
