// Package history keeps a local SQLite log of finished transcriptions.
package history
