// Package audio holds the PCM helpers shared by capture and transcription.
// It converts between raw 16-bit sample bytes and WAV clips on disk and
// measures block loudness for silence detection.
package audio
