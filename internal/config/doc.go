// Package config loads the YAML configuration for the dictation tool.
// Omitted fields take the values from Default; every section validates
// its own ranges.
package config
