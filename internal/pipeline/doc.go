// Package pipeline coordinates capture, silence detection and
// transcription.
//
// A Controller runs a single loop goroutine that owns the pipeline state.
// Start and Stop are requests to that loop; everything that happens as a
// result is reported on the Events channel. Per session the controller runs
// a capture worker and, when enabled, a silence monitor, and joins both
// before the recorder is finalized.
package pipeline
