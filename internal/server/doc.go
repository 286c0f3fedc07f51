// Package server implements the local HTTP control API. It lets other
// tools start and stop capture, change the transcription mode and model,
// read recent history and scrape Prometheus metrics.
package server
