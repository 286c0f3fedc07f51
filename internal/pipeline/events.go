package pipeline

import (
	"github.com/mmcmkm/speech-to-text/internal/capture"
	"github.com/mmcmkm/speech-to-text/internal/transcription"
)

// Event is delivered on the controller's event channel. The concrete
// types are CaptureStateChanged, SilenceCancelled, CaptureFailed and
// TranscriptionFinished.
type Event interface {
	event()
}

// CaptureStateChanged reports that capture started or stopped
type CaptureStateChanged struct {
	SessionID string
	Capturing bool
}

// SilenceCancelled reports that silence ended the session. A
// CaptureStateChanged and a TranscriptionFinished follow.
type SilenceCancelled struct {
	SessionID string
}

// CaptureFailed reports a device or clip error
type CaptureFailed struct {
	SessionID string
	Err       error
}

// TranscriptionFinished carries the result of a session. The controller
// is already Idle when it is delivered.
type TranscriptionFinished struct {
	SessionID string
	Clip      *capture.Clip
	Result    transcription.Result
}

func (CaptureStateChanged) event()   {}
func (SilenceCancelled) event()      {}
func (CaptureFailed) event()         {}
func (TranscriptionFinished) event() {}
