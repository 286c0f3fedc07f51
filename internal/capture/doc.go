// Package capture records microphone input into WAV clips.
//
// A Recorder owns one input stream per session. A capture worker calls
// PushFrame in a loop while the session is active; Stop closes the stream
// and writes everything captured to a clip in the ClipStore. Clips are
// temporary: the previous one is deleted when a new session starts, and
// clips older than the retention window are reclaimed on startup and close.
package capture
