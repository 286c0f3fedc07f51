package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/mmcmkm/speech-to-text/internal/capture"
	"github.com/mmcmkm/speech-to-text/internal/metrics"
	"github.com/mmcmkm/speech-to-text/internal/transcription"
	"github.com/mmcmkm/speech-to-text/internal/vad"
)

// ErrClosed is returned by requests made after Run has exited
var ErrClosed = errors.New("controller closed")

// Recorder is the capture side of the pipeline
type Recorder interface {
	Start() error
	PushFrame() error
	Stop() (*capture.Clip, error)
	IsSilenceDetected() bool
	SessionID() string
	DiscardCurrent()
}

// Transcriber turns a clip into text
type Transcriber interface {
	NewRequest(clip *capture.Clip, hint string) transcription.Request
	Transcribe(ctx context.Context, req transcription.Request) transcription.Result
}

// Config contains controller configuration
type Config struct {
	SilenceDetection     bool
	PollInterval         time.Duration
	TranscriptionTimeout time.Duration
	Hint                 string
	EventBuffer          int
}

// Snapshot is a point-in-time view of the controller
type Snapshot struct {
	State            string `json:"state"`
	SessionID        string `json:"session_id,omitempty"`
	SilenceDetection bool   `json:"silence_detection"`
	Sessions         uint64 `json:"sessions"`
}

type commandKind int

const (
	cmdStart commandKind = iota
	cmdStop
)

type command struct {
	kind  commandKind
	reply chan error
}

type session struct {
	id          string
	generation  uint64
	cancel      context.CancelFunc
	workerDone  chan struct{}
	monitorDone chan struct{}
}

type silenceSignal struct {
	generation uint64
}

type workerFailure struct {
	generation uint64
	err        error
}

type transcriptionDone struct {
	sessionID string
	clip      *capture.Clip
	result    transcription.Result
}

// Controller drives the capture → silence → transcription cycle
type Controller struct {
	config      Config
	recorder    Recorder
	transcriber Transcriber
	monitor     *vad.Monitor
	logger      *slog.Logger
	metrics     *metrics.Metrics

	state          atomic.Int32
	silenceEnabled atomic.Bool
	sessions       atomic.Uint64

	commands  chan command
	events    chan Event
	silenceCh chan silenceSignal
	failureCh chan workerFailure
	resultCh  chan transcriptionDone
	done      chan struct{}
	running   atomic.Bool

	// owned by the loop goroutine
	runCtx     context.Context
	generation uint64
	current    *session
	inflight   sync.WaitGroup
}

// NewController creates a controller. Run must be called to process requests.
func NewController(config Config, recorder Recorder, transcriber Transcriber, logger *slog.Logger, m *metrics.Metrics) (*Controller, error) {
	if recorder == nil {
		return nil, fmt.Errorf("recorder is required")
	}
	if transcriber == nil {
		return nil, fmt.Errorf("transcriber is required")
	}
	if config.TranscriptionTimeout <= 0 {
		config.TranscriptionTimeout = 60 * time.Second
	}
	if config.EventBuffer <= 0 {
		config.EventBuffer = 32
	}
	if logger == nil {
		logger = slog.Default()
	}

	c := &Controller{
		config:      config,
		recorder:    recorder,
		transcriber: transcriber,
		monitor:     vad.NewMonitor(config.PollInterval, logger),
		logger:      logger,
		metrics:     m,
		commands:    make(chan command),
		events:      make(chan Event, config.EventBuffer),
		silenceCh:   make(chan silenceSignal),
		failureCh:   make(chan workerFailure),
		resultCh:    make(chan transcriptionDone, 1),
		done:        make(chan struct{}),
	}
	c.silenceEnabled.Store(config.SilenceDetection)
	return c, nil
}

// Events returns the event stream. It must be drained while Run is active.
func (c *Controller) Events() <-chan Event {
	return c.events
}

// State returns the current state. Safe from any goroutine.
func (c *Controller) State() State {
	return State(c.state.Load())
}

// SilenceDetection reports whether new sessions start a silence monitor
func (c *Controller) SilenceDetection() bool {
	return c.silenceEnabled.Load()
}

// SetSilenceDetection enables or disables the silence monitor for sessions
// started afterwards
func (c *Controller) SetSilenceDetection(enabled bool) {
	c.silenceEnabled.Store(enabled)
	c.logger.Info("Silence detection changed", slog.Bool("enabled", enabled))
}

// Snapshot returns a view of the controller for status reporting
func (c *Controller) Snapshot() Snapshot {
	s := Snapshot{
		State:            c.State().String(),
		SilenceDetection: c.silenceEnabled.Load(),
		Sessions:         c.sessions.Load(),
	}
	if c.State() != StateIdle {
		s.SessionID = c.recorder.SessionID()
	}
	return s
}

// Start begins a capture session. It is a no-op unless the controller is Idle.
func (c *Controller) Start(ctx context.Context) error {
	return c.send(ctx, cmdStart)
}

// Stop ends the capture session and hands the clip to transcription.
// It is a no-op unless the controller is Capturing.
func (c *Controller) Stop(ctx context.Context) error {
	return c.send(ctx, cmdStop)
}

// Done is closed when Run has returned
func (c *Controller) Done() <-chan struct{} {
	return c.done
}

func (c *Controller) send(ctx context.Context, kind commandKind) error {
	cmd := command{kind: kind, reply: make(chan error, 1)}

	select {
	case c.commands <- cmd:
	case <-ctx.Done():
		return ctx.Err()
	case <-c.done:
		return ErrClosed
	}

	select {
	case err := <-cmd.reply:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Run processes requests until ctx is cancelled. On exit it stops any
// active capture, discards its clip and waits for an in-flight
// transcription.
func (c *Controller) Run(ctx context.Context) error {
	if !c.running.CompareAndSwap(false, true) {
		return fmt.Errorf("controller already running")
	}
	defer close(c.done)

	c.runCtx = ctx
	c.logger.Info("Pipeline controller started",
		slog.Bool("silence_detection", c.silenceEnabled.Load()),
		slog.Duration("poll_interval", c.monitor.Interval()))

	for {
		select {
		case <-ctx.Done():
			c.shutdown()
			c.logger.Info("Pipeline controller stopped")
			return nil

		case cmd := <-c.commands:
			switch cmd.kind {
			case cmdStart:
				cmd.reply <- c.startCapture()
			case cmdStop:
				cmd.reply <- c.stopCapture()
			}

		case sig := <-c.silenceCh:
			if !c.isCurrent(sig.generation) {
				continue
			}
			c.logger.Info("Silence detected, stopping capture", slog.String("session_id", c.current.id))
			c.metrics.RecordSilenceCancel()
			c.emit(SilenceCancelled{SessionID: c.current.id})
			c.stopCapture()

		case f := <-c.failureCh:
			if !c.isCurrent(f.generation) {
				continue
			}
			c.logger.Error("Capture read failed",
				slog.String("session_id", c.current.id),
				slog.String("error", f.err.Error()))
			c.metrics.RecordCaptureFailure("read")
			c.emit(CaptureFailed{SessionID: c.current.id, Err: f.err})
			c.stopCapture()

		case res := <-c.resultCh:
			c.finishTranscription(res)
		}
	}
}

func (c *Controller) isCurrent(generation uint64) bool {
	return c.current != nil && c.current.generation == generation && c.State() == StateCapturing
}

func (c *Controller) startCapture() error {
	if state := c.State(); state != StateIdle {
		c.logger.Debug("Start ignored", slog.String("state", state.String()))
		return nil
	}

	if err := c.recorder.Start(); err != nil {
		c.logger.Error("Failed to start capture", slog.String("error", err.Error()))
		c.metrics.RecordCaptureFailure("start")
		c.emit(CaptureFailed{Err: err})
		return err
	}

	if err := c.transition(StateCapturing); err != nil {
		return err
	}

	c.generation++
	sctx, cancel := context.WithCancel(c.runCtx)
	s := &session{
		id:         c.recorder.SessionID(),
		generation: c.generation,
		cancel:     cancel,
		workerDone: make(chan struct{}),
	}

	go c.captureWorker(sctx, s)

	if c.silenceEnabled.Load() {
		s.monitorDone = make(chan struct{})
		go c.silenceMonitor(sctx, s)
	}

	c.current = s
	c.sessions.Add(1)
	c.metrics.RecordCaptureStarted()
	c.emit(CaptureStateChanged{SessionID: s.id, Capturing: true})
	return nil
}

// captureWorker pulls blocks until the session is cancelled or the device fails
func (c *Controller) captureWorker(ctx context.Context, s *session) {
	defer close(s.workerDone)

	for ctx.Err() == nil {
		err := c.recorder.PushFrame()
		if err == nil {
			continue
		}
		if errors.Is(err, capture.ErrNotActive) {
			return
		}
		select {
		case c.failureCh <- workerFailure{generation: s.generation, err: err}:
		case <-ctx.Done():
		}
		return
	}
}

func (c *Controller) silenceMonitor(ctx context.Context, s *session) {
	defer close(s.monitorDone)

	if !c.monitor.Wait(ctx, c.recorder) {
		return
	}
	select {
	case c.silenceCh <- silenceSignal{generation: s.generation}:
	case <-ctx.Done():
	}
}

// endSession cancels and joins the session goroutines
func (c *Controller) endSession() *session {
	s := c.current
	c.current = nil
	s.cancel()
	<-s.workerDone
	if s.monitorDone != nil {
		<-s.monitorDone
	}
	return s
}

func (c *Controller) stopCapture() error {
	if state := c.State(); state != StateCapturing {
		c.logger.Debug("Stop ignored", slog.String("state", state.String()))
		return nil
	}

	if err := c.transition(StateStopping); err != nil {
		return err
	}
	s := c.endSession()

	clip, err := c.recorder.Stop()
	c.metrics.RecordCaptureStopped()
	if err != nil {
		c.logger.Error("Failed to finalize capture",
			slog.String("session_id", s.id),
			slog.String("error", err.Error()))
		c.metrics.RecordCaptureFailure("stop")
		c.transition(StateIdle)
		c.emit(CaptureStateChanged{SessionID: s.id, Capturing: false})
		c.emit(CaptureFailed{SessionID: s.id, Err: err})
		return err
	}

	c.metrics.RecordClip(clip.Duration, clip.Size)
	c.emit(CaptureStateChanged{SessionID: s.id, Capturing: false})

	if err := c.transition(StateTranscribing); err != nil {
		return err
	}

	req := c.transcriber.NewRequest(clip, c.config.Hint)
	c.inflight.Add(1)
	go c.transcribe(s.id, clip, req)
	return nil
}

func (c *Controller) transcribe(sessionID string, clip *capture.Clip, req transcription.Request) {
	defer c.inflight.Done()

	ctx, cancel := context.WithTimeout(context.Background(), c.config.TranscriptionTimeout)
	defer cancel()

	c.logger.Info("Transcription started",
		slog.String("session_id", sessionID),
		slog.String("mode", string(req.Mode)),
		slog.String("model", req.Model),
		slog.Duration("clip_duration", clip.Duration))

	result := c.transcriber.Transcribe(ctx, req)
	c.resultCh <- transcriptionDone{sessionID: sessionID, clip: clip, result: result}
}

func (c *Controller) finishTranscription(res transcriptionDone) {
	if err := c.transition(StateIdle); err != nil {
		c.logger.Error("Unexpected transcription result", slog.String("error", err.Error()))
		return
	}
	c.emit(TranscriptionFinished{SessionID: res.sessionID, Clip: res.clip, Result: res.result})
}

func (c *Controller) transition(next State) error {
	current := c.State()
	if !current.CanTransitionTo(next) {
		err := fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, current, next)
		c.logger.Error("Rejected state transition", slog.String("error", err.Error()))
		return err
	}
	c.state.Store(int32(next))
	c.logger.Debug("State changed", slog.String("from", current.String()), slog.String("to", next.String()))
	return nil
}

// emit queues ev, blocking only while the buffer is full and the
// controller is still running
func (c *Controller) emit(ev Event) {
	select {
	case c.events <- ev:
		return
	default:
	}
	select {
	case c.events <- ev:
	case <-c.runCtx.Done():
		c.logger.Debug("Event dropped during shutdown", slog.String("event", fmt.Sprintf("%T", ev)))
	}
}

func (c *Controller) shutdown() {
	if c.State() == StateCapturing {
		c.transition(StateStopping)
		s := c.endSession()
		if _, err := c.recorder.Stop(); err == nil {
			c.recorder.DiscardCurrent()
		}
		c.metrics.RecordCaptureStopped()
		c.transition(StateIdle)
		c.logger.Info("Active capture discarded on shutdown", slog.String("session_id", s.id))
	}

	c.inflight.Wait()
	select {
	case res := <-c.resultCh:
		c.transition(StateIdle)
		c.logger.Info("Transcription finished during shutdown",
			slog.String("session_id", res.sessionID),
			slog.Bool("ok", res.result.OK()))
		// left buffered for consumers that drain Events after Done
		select {
		case c.events <- TranscriptionFinished{SessionID: res.sessionID, Clip: res.clip, Result: res.result}:
		default:
			c.logger.Warn("Event buffer full, transcription result dropped",
				slog.String("session_id", res.sessionID))
		}
	default:
	}
}
