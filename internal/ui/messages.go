package ui

import "github.com/mmcmkm/speech-to-text/internal/pipeline"

// EventMsg wraps a controller event forwarded by the dispatcher.
type EventMsg struct {
	Event pipeline.Event
}

// actionDoneMsg carries the outcome of a controller command.
type actionDoneMsg struct {
	action string
	err    error
}

// levelTickMsg refreshes the input level meter while capturing.
type levelTickMsg struct{}

// clearNoticeMsg clears a transient notice after a timeout.
type clearNoticeMsg struct {
	seq int
}
