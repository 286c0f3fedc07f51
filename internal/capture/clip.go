package capture

import (
	"time"

	"github.com/mmcmkm/speech-to-text/internal/audio"
)

// Clip is a finished recording written to the clip store
type Clip struct {
	ID        string        `json:"id"`
	Path      string        `json:"path"`
	Format    audio.Format  `json:"format"`
	Size      int           `json:"size_bytes"`
	Duration  time.Duration `json:"duration"`
	StartedAt time.Time     `json:"started_at"`
	StoppedAt time.Time     `json:"stopped_at"`
}

// Samples reads the clip back from disk as raw PCM bytes
func (c *Clip) Samples() ([]byte, error) {
	pcm, _, err := audio.ReadWAV(c.Path)
	return pcm, err
}

// Empty reports whether the clip holds no audio
func (c *Clip) Empty() bool {
	return c.Size == 0
}
