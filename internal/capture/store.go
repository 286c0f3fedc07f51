package capture

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"time"
)

const (
	clipPrefix = "speech_to_text_"
	clipSuffix = ".wav"

	// DefaultRetention is how long a finished clip may stay on disk
	DefaultRetention = 24 * time.Hour
)

// DefaultClipDir returns the per-user temporary directory for clips
func DefaultClipDir() string {
	return filepath.Join(os.TempDir(), "speech_to_text_temp")
}

// ClipStore owns the directory clips are written to
type ClipStore struct {
	dir    string
	logger *slog.Logger
}

// NewClipStore creates the directory if needed
func NewClipStore(dir string, logger *slog.Logger) (*ClipStore, error) {
	if dir == "" {
		dir = DefaultClipDir()
	}
	if logger == nil {
		logger = slog.Default()
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create clip directory: %w", err)
	}
	return &ClipStore{dir: dir, logger: logger}, nil
}

// Dir returns the clip directory
func (s *ClipStore) Dir() string {
	return s.dir
}

// NewPath returns a fresh clip path derived from t
func (s *ClipStore) NewPath(t time.Time) string {
	name := fmt.Sprintf("%s%s_%06d%s", clipPrefix, t.Format("20060102_150405"), t.Nanosecond()/1000, clipSuffix)
	return filepath.Join(s.dir, name)
}

// Remove deletes a clip. A missing file is not an error.
func (s *ClipStore) Remove(path string) error {
	if path == "" {
		return nil
	}
	if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return err
	}
	return nil
}

// Reclaim deletes clips last modified more than maxAge before now and
// returns how many were removed
func (s *ClipStore) Reclaim(maxAge time.Duration, now time.Time) int {
	return s.removeMatching(func(info fs.FileInfo) bool {
		return now.Sub(info.ModTime()) > maxAge
	})
}

// Clear deletes every clip in the directory
func (s *ClipStore) Clear() int {
	return s.removeMatching(func(fs.FileInfo) bool { return true })
}

// RemoveDirIfEmpty removes the directory when no files remain in it
func (s *ClipStore) RemoveDirIfEmpty() {
	entries, err := os.ReadDir(s.dir)
	if err != nil || len(entries) > 0 {
		return
	}
	if err := os.Remove(s.dir); err != nil {
		s.logger.Warn("Failed to remove clip directory", slog.String("dir", s.dir), slog.String("error", err.Error()))
	}
}

// List returns the clip paths currently on disk
func (s *ClipStore) List() ([]string, error) {
	return filepath.Glob(filepath.Join(s.dir, clipPrefix+"*"+clipSuffix))
}

func (s *ClipStore) removeMatching(match func(fs.FileInfo) bool) int {
	paths, err := s.List()
	if err != nil {
		s.logger.Warn("Failed to list clips", slog.String("dir", s.dir), slog.String("error", err.Error()))
		return 0
	}

	removed := 0
	for _, path := range paths {
		info, err := os.Stat(path)
		if err != nil || !match(info) {
			continue
		}
		if err := s.Remove(path); err != nil {
			s.logger.Warn("Failed to remove clip", slog.String("path", path), slog.String("error", err.Error()))
			continue
		}
		removed++
	}

	if removed > 0 {
		s.logger.Debug("Removed clips", slog.Int("count", removed), slog.String("dir", s.dir))
	}
	return removed
}
