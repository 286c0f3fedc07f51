package pipeline

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/mmcmkm/speech-to-text/internal/capture"
	"github.com/mmcmkm/speech-to-text/internal/transcription"
)

func expectCaptureState(t *testing.T, ev Event, capturing bool) {
	t.Helper()
	cs, ok := ev.(CaptureStateChanged)
	if !ok {
		t.Fatalf("Expected CaptureStateChanged, got %T", ev)
	}
	if cs.Capturing != capturing {
		t.Errorf("Expected capturing=%v, got %v", capturing, cs.Capturing)
	}
}

func expectFinished(t *testing.T, ev Event) TranscriptionFinished {
	t.Helper()
	tf, ok := ev.(TranscriptionFinished)
	if !ok {
		t.Fatalf("Expected TranscriptionFinished, got %T", ev)
	}
	return tf
}

func TestStartStopTranscribes(t *testing.T) {
	rec := &fakeRecorder{}
	tr := &fakeTranscriber{result: transcription.Result{Text: "こんにちは"}}
	c, _ := runController(t, Config{Hint: "hint"}, rec, tr)
	ctx := context.Background()

	if err := c.Start(ctx); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	expectCaptureState(t, nextEvent(t, c), true)
	if c.State() != StateCapturing {
		t.Errorf("Expected capturing, got %s", c.State())
	}

	time.Sleep(20 * time.Millisecond)
	if err := c.Stop(ctx); err != nil {
		t.Fatalf("Stop failed: %v", err)
	}
	expectCaptureState(t, nextEvent(t, c), false)

	tf := expectFinished(t, nextEvent(t, c))
	if c.State() != StateIdle {
		t.Errorf("Expected idle when result is delivered, got %s", c.State())
	}
	if tf.Result.Text != "こんにちは" {
		t.Errorf("Expected text, got %q", tf.Result.Text)
	}
	if tf.SessionID != "session-1" || tf.Clip == nil {
		t.Errorf("Unexpected result metadata %+v", tf)
	}
	if tf.Clip.Size == 0 {
		t.Error("Expected the worker to have pushed frames")
	}

	if tr.callCount() != 1 {
		t.Errorf("Expected 1 transcription, got %d", tr.callCount())
	}
	if tr.hints[0] != "hint" {
		t.Errorf("Expected hint to be passed through, got %q", tr.hints[0])
	}
	if tr.states[0] != StateTranscribing {
		t.Errorf("Expected transcribing during the request, got %s", tr.states[0])
	}

	snap := c.Snapshot()
	if snap.State != "idle" || snap.Sessions != 1 {
		t.Errorf("Unexpected snapshot %+v", snap)
	}
}

func TestStartWhileCapturingIsNoop(t *testing.T) {
	rec := &fakeRecorder{}
	c, _ := runController(t, Config{}, rec, &fakeTranscriber{})
	ctx := context.Background()

	c.Start(ctx)
	expectCaptureState(t, nextEvent(t, c), true)

	if err := c.Start(ctx); err != nil {
		t.Errorf("Expected second start to be a no-op, got %v", err)
	}
	expectNoEvent(t, c, 30*time.Millisecond)

	if starts, _, _ := rec.counts(); starts != 1 {
		t.Errorf("Expected recorder to be started once, got %d", starts)
	}
}

func TestStopWhileIdleIsNoop(t *testing.T) {
	rec := &fakeRecorder{}
	tr := &fakeTranscriber{}
	c, _ := runController(t, Config{}, rec, tr)

	if err := c.Stop(context.Background()); err != nil {
		t.Errorf("Expected no-op, got %v", err)
	}
	expectNoEvent(t, c, 30*time.Millisecond)

	if _, stops, _ := rec.counts(); stops != 0 {
		t.Errorf("Expected recorder not to be stopped, got %d", stops)
	}
	if tr.callCount() != 0 {
		t.Error("Expected no transcription without a clip")
	}
}

func TestStartFailure(t *testing.T) {
	rec := &fakeRecorder{startErr: fmt.Errorf("%w: no input", capture.ErrDeviceUnavailable)}
	c, _ := runController(t, Config{}, rec, &fakeTranscriber{})

	err := c.Start(context.Background())
	if !errors.Is(err, capture.ErrDeviceUnavailable) {
		t.Fatalf("Expected ErrDeviceUnavailable, got %v", err)
	}

	cf, ok := nextEvent(t, c).(CaptureFailed)
	if !ok {
		t.Fatal("Expected CaptureFailed event")
	}
	if !errors.Is(cf.Err, capture.ErrDeviceUnavailable) {
		t.Errorf("Expected event to carry the device error, got %v", cf.Err)
	}
	if c.State() != StateIdle {
		t.Errorf("Expected idle, got %s", c.State())
	}
}

func TestStopFailureReturnsToIdle(t *testing.T) {
	rec := &fakeRecorder{stopErr: fmt.Errorf("%w: disk full", capture.ErrIOFailure)}
	tr := &fakeTranscriber{}
	c, _ := runController(t, Config{}, rec, tr)
	ctx := context.Background()

	c.Start(ctx)
	expectCaptureState(t, nextEvent(t, c), true)

	if err := c.Stop(ctx); !errors.Is(err, capture.ErrIOFailure) {
		t.Fatalf("Expected ErrIOFailure, got %v", err)
	}
	expectCaptureState(t, nextEvent(t, c), false)
	if _, ok := nextEvent(t, c).(CaptureFailed); !ok {
		t.Fatal("Expected CaptureFailed event")
	}
	expectNoEvent(t, c, 30*time.Millisecond)

	if c.State() != StateIdle {
		t.Errorf("Expected idle, got %s", c.State())
	}
	if tr.callCount() != 0 {
		t.Error("Expected no transcription after a failed stop")
	}
}

func TestSilenceStopsCapture(t *testing.T) {
	rec := &fakeRecorder{}
	tr := &fakeTranscriber{result: transcription.Result{Text: "done"}}
	c, _ := runController(t, Config{SilenceDetection: true, PollInterval: 5 * time.Millisecond}, rec, tr)

	c.Start(context.Background())
	expectCaptureState(t, nextEvent(t, c), true)

	rec.silent.Store(true)

	if _, ok := nextEvent(t, c).(SilenceCancelled); !ok {
		t.Fatal("Expected SilenceCancelled event")
	}
	expectCaptureState(t, nextEvent(t, c), false)
	expectFinished(t, nextEvent(t, c))
	expectNoEvent(t, c, 50*time.Millisecond)

	if _, stops, _ := rec.counts(); stops != 1 {
		t.Errorf("Expected one stop, got %d", stops)
	}
}

func TestSilenceDetectionDisabled(t *testing.T) {
	rec := &fakeRecorder{}
	c, _ := runController(t, Config{SilenceDetection: false, PollInterval: 5 * time.Millisecond}, rec, &fakeTranscriber{})

	c.Start(context.Background())
	expectCaptureState(t, nextEvent(t, c), true)
	rec.silent.Store(true)

	expectNoEvent(t, c, 50*time.Millisecond)
	if c.State() != StateCapturing {
		t.Errorf("Expected capture to continue, got %s", c.State())
	}
}

func TestSetSilenceDetectionAppliesToNextSession(t *testing.T) {
	rec := &fakeRecorder{}
	c, _ := runController(t, Config{PollInterval: 5 * time.Millisecond}, rec, &fakeTranscriber{})
	ctx := context.Background()

	c.SetSilenceDetection(true)
	rec.silent.Store(true)
	c.Start(ctx)

	expectCaptureState(t, nextEvent(t, c), true)
	if _, ok := nextEvent(t, c).(SilenceCancelled); !ok {
		t.Fatal("Expected SilenceCancelled once detection is enabled")
	}
}

func TestOverloadedResult(t *testing.T) {
	rec := &fakeRecorder{}
	tr := &fakeTranscriber{result: transcription.Result{Err: transcription.Classify(errors.New("HTTP error 503: model overloaded"))}}
	c, _ := runController(t, Config{}, rec, tr)
	ctx := context.Background()

	c.Start(ctx)
	nextEvent(t, c)
	c.Stop(ctx)
	nextEvent(t, c)

	tf := expectFinished(t, nextEvent(t, c))
	if tf.Result.OK() {
		t.Fatal("Expected failed result")
	}
	if tf.Result.Err.Kind != transcription.KindServiceOverloaded {
		t.Errorf("Expected KindServiceOverloaded, got %v", tf.Result.Err.Kind)
	}
	if c.State() != StateIdle {
		t.Errorf("Expected idle, got %s", c.State())
	}

	// the controller accepts a new session after a failure
	if err := c.Start(ctx); err != nil {
		t.Fatalf("Start after failure: %v", err)
	}
	expectCaptureState(t, nextEvent(t, c), true)
}

func TestReadFailureStillTranscribes(t *testing.T) {
	rec := &fakeRecorder{pushErr: fmt.Errorf("%w: unplugged", capture.ErrIOFailure)}
	tr := &fakeTranscriber{}
	c, _ := runController(t, Config{}, rec, tr)

	c.Start(context.Background())
	expectCaptureState(t, nextEvent(t, c), true)

	cf, ok := nextEvent(t, c).(CaptureFailed)
	if !ok {
		t.Fatal("Expected CaptureFailed event")
	}
	if !errors.Is(cf.Err, capture.ErrIOFailure) {
		t.Errorf("Expected ErrIOFailure, got %v", cf.Err)
	}
	expectCaptureState(t, nextEvent(t, c), false)
	expectFinished(t, nextEvent(t, c))

	if tr.callCount() != 1 {
		t.Errorf("Expected captured audio to be transcribed, got %d calls", tr.callCount())
	}
}

func TestShutdownDiscardsActiveCapture(t *testing.T) {
	rec := &fakeRecorder{}
	tr := &fakeTranscriber{}
	c, cancel := runController(t, Config{}, rec, tr)

	c.Start(context.Background())
	nextEvent(t, c)

	cancel()
	<-c.Done()

	_, stops, discards := rec.counts()
	if stops != 1 || discards != 1 {
		t.Errorf("Expected capture stopped and clip discarded, got stops=%d discards=%d", stops, discards)
	}
	if tr.callCount() != 0 {
		t.Error("Expected no transcription on shutdown")
	}
	if c.State() != StateIdle {
		t.Errorf("Expected idle after shutdown, got %s", c.State())
	}
	if err := c.Start(context.Background()); !errors.Is(err, ErrClosed) {
		t.Errorf("Expected ErrClosed after shutdown, got %v", err)
	}
}

func TestShutdownWaitsForTranscription(t *testing.T) {
	rec := &fakeRecorder{}
	tr := &fakeTranscriber{delay: 100 * time.Millisecond, result: transcription.Result{Text: "終了間際"}}
	c, cancel := runController(t, Config{}, rec, tr)
	ctx := context.Background()

	c.Start(ctx)
	nextEvent(t, c)
	c.Stop(ctx)
	nextEvent(t, c)

	for tr.callCount() == 0 {
		time.Sleep(time.Millisecond)
	}
	cancel()
	<-c.Done()

	tr.mu.Lock()
	finished := tr.finished
	tr.mu.Unlock()
	if finished != 1 {
		t.Errorf("Expected in-flight transcription to complete before shutdown, got %d", finished)
	}

	// the result stays buffered for a consumer draining after Done
	select {
	case ev := <-c.Events():
		tf := expectFinished(t, ev)
		if tf.SessionID != "session-1" || tf.Result.Text != "終了間際" {
			t.Errorf("Unexpected result after shutdown %+v", tf)
		}
	default:
		t.Fatal("Expected TranscriptionFinished to be buffered after shutdown")
	}
	if c.State() != StateIdle {
		t.Errorf("Expected idle after shutdown, got %s", c.State())
	}
}

func TestNewControllerValidation(t *testing.T) {
	if _, err := NewController(Config{}, nil, &fakeTranscriber{}, testLogger(), nil); err == nil {
		t.Error("Expected error for nil recorder")
	}
	if _, err := NewController(Config{}, &fakeRecorder{}, nil, testLogger(), nil); err == nil {
		t.Error("Expected error for nil transcriber")
	}
}

func TestStateTransitions(t *testing.T) {
	tests := []struct {
		from, to State
		allowed  bool
	}{
		{StateIdle, StateCapturing, true},
		{StateCapturing, StateStopping, true},
		{StateStopping, StateTranscribing, true},
		{StateStopping, StateIdle, true},
		{StateTranscribing, StateIdle, true},
		{StateIdle, StateTranscribing, false},
		{StateIdle, StateStopping, false},
		{StateCapturing, StateIdle, false},
		{StateCapturing, StateTranscribing, false},
		{StateTranscribing, StateCapturing, false},
	}

	for _, tt := range tests {
		t.Run(tt.from.String()+"->"+tt.to.String(), func(t *testing.T) {
			if got := tt.from.CanTransitionTo(tt.to); got != tt.allowed {
				t.Errorf("Expected %v, got %v", tt.allowed, got)
			}
		})
	}
}
