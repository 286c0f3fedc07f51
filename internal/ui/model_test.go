package ui

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/mmcmkm/speech-to-text/internal/pipeline"
	"github.com/mmcmkm/speech-to-text/internal/transcription"
	"github.com/mmcmkm/speech-to-text/internal/vad"
)

type fakeController struct {
	mu       sync.Mutex
	snapshot pipeline.Snapshot
	startErr error
	starts   int
	stops    int
}

func newFakeController() *fakeController {
	return &fakeController{snapshot: pipeline.Snapshot{State: "idle", SilenceDetection: true}}
}

func (f *fakeController) Start(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.starts++
	if f.startErr != nil {
		return f.startErr
	}
	f.snapshot.State = "capturing"
	return nil
}

func (f *fakeController) Stop(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.stops++
	f.snapshot.State = "transcribing"
	return nil
}

func (f *fakeController) Snapshot() pipeline.Snapshot {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.snapshot
}

func (f *fakeController) SetSilenceDetection(enabled bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.snapshot.SilenceDetection = enabled
}

func (f *fakeController) setState(s pipeline.State) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.snapshot.State = s.String()
}

type fakeSettings struct {
	mode transcription.Mode
}

func (f *fakeSettings) Mode() transcription.Mode { return f.mode }
func (f *fakeSettings) Model() string            { return transcription.DefaultModel }

func (f *fakeSettings) SetMode(mode transcription.Mode) error {
	f.mode = mode
	return nil
}

type fakeMeter struct {
	level float64
}

func (f *fakeMeter) Level() float64 { return f.level }

func (f *fakeMeter) SilenceStats() vad.DetectorStats {
	return vad.DetectorStats{Threshold: 0.01, SilenceDuration: 20 * time.Second}
}

func newTestModel() (Model, *fakeController, *fakeSettings) {
	c := newFakeController()
	s := &fakeSettings{mode: transcription.ModeClean}
	return New(c, s, &fakeMeter{level: 0.1}), c, s
}

func key(s string) tea.KeyMsg {
	if s == " " {
		return tea.KeyMsg{Type: tea.KeySpace, Runes: []rune(" ")}
	}
	return tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(s)}
}

func update(t *testing.T, m Model, msg tea.Msg) (Model, tea.Cmd) {
	t.Helper()
	next, cmd := m.Update(msg)
	return next.(Model), cmd
}

func TestStartKeyRunsControllerStart(t *testing.T) {
	m, c, _ := newTestModel()

	m, cmd := update(t, m, key(KeyStart))
	if cmd == nil {
		t.Fatal("Expected a start command")
	}
	msg := cmd()
	done, ok := msg.(actionDoneMsg)
	if !ok || done.action != "start" || done.err != nil {
		t.Fatalf("Expected successful start, got %#v", msg)
	}
	if c.starts != 1 {
		t.Errorf("Expected 1 start, got %d", c.starts)
	}

	m, _ = update(t, m, done)
	if m.snapshot.State != "capturing" {
		t.Errorf("Expected capturing, got %s", m.snapshot.State)
	}
}

func TestSpaceToggles(t *testing.T) {
	m, c, _ := newTestModel()

	_, cmd := update(t, m, key(KeySpace))
	cmd()
	if c.starts != 1 {
		t.Fatalf("Expected space to start, got %d starts", c.starts)
	}

	m.snapshot = c.Snapshot()
	_, cmd = update(t, m, key(KeySpace))
	cmd()
	if c.stops != 1 {
		t.Errorf("Expected space to stop, got %d stops", c.stops)
	}
}

func TestStartFailureShowsError(t *testing.T) {
	m, c, _ := newTestModel()
	c.startErr = errors.New("device unavailable")

	_, cmd := update(t, m, key(KeyStart))
	m, _ = update(t, m, cmd())

	if !strings.Contains(m.errMessage, "device unavailable") {
		t.Errorf("Expected device error, got %q", m.errMessage)
	}
	if !strings.Contains(m.View(), "device unavailable") {
		t.Error("Expected error in view")
	}
}

func TestCycleMode(t *testing.T) {
	m, _, s := newTestModel()

	m, cmd := update(t, m, key(KeyCycleMode))
	if s.mode != transcription.ModeDetailed {
		t.Errorf("Expected detailed, got %s", s.mode)
	}
	if cmd == nil || m.notice == "" {
		t.Error("Expected a notice with a clear command")
	}

	m, _ = update(t, m, clearNoticeMsg{seq: m.noticeSeq})
	if m.notice != "" {
		t.Errorf("Expected notice to clear, got %q", m.notice)
	}
}

func TestStaleNoticeClearIgnored(t *testing.T) {
	m, _, _ := newTestModel()

	m, _ = update(t, m, key(KeyCycleMode))
	m, _ = update(t, m, key(KeyCycleMode))
	m, _ = update(t, m, clearNoticeMsg{seq: m.noticeSeq - 1})
	if m.notice == "" {
		t.Error("Expected newer notice to survive a stale clear")
	}
}

func TestToggleSilence(t *testing.T) {
	m, c, _ := newTestModel()

	m, _ = update(t, m, key(KeyToggleSilent))
	if c.Snapshot().SilenceDetection {
		t.Error("Expected silence detection off")
	}
	if m.snapshot.SilenceDetection {
		t.Error("Expected model snapshot to follow controller")
	}

	m, _ = update(t, m, key(KeyToggleSilent))
	if !c.Snapshot().SilenceDetection {
		t.Error("Expected silence detection on")
	}
}

func TestQuit(t *testing.T) {
	m, _, _ := newTestModel()

	for _, k := range []tea.KeyMsg{key(KeyQuit), {Type: tea.KeyCtrlC}} {
		_, cmd := update(t, m, k)
		if cmd == nil {
			t.Fatalf("Expected quit command for %q", k.String())
		}
		if _, ok := cmd().(tea.QuitMsg); !ok {
			t.Errorf("Expected QuitMsg for %q", k.String())
		}
	}
}

func TestCaptureEventStartsLevelTick(t *testing.T) {
	m, c, _ := newTestModel()
	c.setState(pipeline.StateCapturing)

	m, cmd := update(t, m, EventMsg{Event: pipeline.CaptureStateChanged{SessionID: "s1", Capturing: true}})
	if cmd == nil || !m.ticking {
		t.Fatal("Expected level tick to start")
	}

	m, cmd = update(t, m, levelTickMsg{})
	if m.level != 0.1 {
		t.Errorf("Expected level 0.1, got %f", m.level)
	}
	if cmd == nil {
		t.Error("Expected tick to continue while capturing")
	}

	c.setState(pipeline.StateTranscribing)
	m, _ = update(t, m, EventMsg{Event: pipeline.CaptureStateChanged{SessionID: "s1", Capturing: false}})
	m, cmd = update(t, m, levelTickMsg{})
	if cmd != nil || m.ticking {
		t.Error("Expected tick to stop after capture")
	}
	if !strings.Contains(m.View(), "TRANSCRIBING") {
		t.Error("Expected transcribing indicator")
	}
}

func TestTranscriptionFinished(t *testing.T) {
	m, _, _ := newTestModel()

	ok := transcription.Result{Text: "こんにちは", Mode: transcription.ModeClean, Model: transcription.DefaultModel, Duration: time.Second}
	m, _ = update(t, m, EventMsg{Event: pipeline.TranscriptionFinished{SessionID: "s1", Result: ok}})
	if m.lastText != "こんにちは" {
		t.Errorf("Expected result text, got %q", m.lastText)
	}

	second := ok
	second.Text = "さようなら"
	m, _ = update(t, m, EventMsg{Event: pipeline.TranscriptionFinished{SessionID: "s2", Result: second}})
	if len(m.recent) != 1 || m.recent[0].Text != "こんにちは" {
		t.Errorf("Expected previous result in recent list, got %v", m.recent)
	}

	failed := transcription.Result{Err: &transcription.Error{Kind: transcription.KindServiceOverloaded, Message: "The service is overloaded"}}
	m, _ = update(t, m, EventMsg{Event: pipeline.TranscriptionFinished{SessionID: "s3", Result: failed}})
	if m.errMessage != "The service is overloaded" {
		t.Errorf("Expected overloaded message, got %q", m.errMessage)
	}
	if m.lastText != "さようなら" {
		t.Errorf("Expected failure to keep last text, got %q", m.lastText)
	}
}

func TestSilenceCancelledNotice(t *testing.T) {
	m, _, _ := newTestModel()

	m, cmd := update(t, m, EventMsg{Event: pipeline.SilenceCancelled{SessionID: "s1"}})
	if cmd == nil || m.notice == "" {
		t.Error("Expected silence notice")
	}
}

func TestRenderLevelMeter(t *testing.T) {
	tests := []struct {
		level      float64
		wantFilled int
	}{
		{0, 0},
		{0.125, 8},
		{1, 16},
	}

	for _, tt := range tests {
		got := strings.Count(renderLevelMeter(tt.level), "█")
		if got != tt.wantFilled {
			t.Errorf("Expected %d filled cells for %.3f, got %d", tt.wantFilled, tt.level, got)
		}
	}
}
