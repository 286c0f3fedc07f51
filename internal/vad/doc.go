// Package vad implements energy based silence detection for capture sessions.
// A Detector classifies each block by its RMS level and tracks how long the
// session has been quiet; a Monitor polls that state and reports the first
// moment it turns silent.
package vad
