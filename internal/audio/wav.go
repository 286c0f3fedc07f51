package audio

import (
	"errors"
	"fmt"
	"os"
	"time"

	goaudio "github.com/go-audio/audio"
	"github.com/go-audio/wav"
)

// Format describes the PCM layout of a clip
type Format struct {
	Channels   int `json:"channels"`
	SampleRate int `json:"sample_rate"`
	BitDepth   int `json:"bit_depth"`
}

// PCM16 returns a 16-bit format with the given channel count and rate
func PCM16(channels, sampleRate int) Format {
	return Format{Channels: channels, SampleRate: sampleRate, BitDepth: 16}
}

// Validate checks that the format can be written as a WAV container
func (f Format) Validate() error {
	if f.Channels <= 0 {
		return fmt.Errorf("channels must be positive, got %d", f.Channels)
	}
	if f.SampleRate <= 0 {
		return fmt.Errorf("sample rate must be positive, got %d", f.SampleRate)
	}
	if f.BitDepth != 16 {
		return fmt.Errorf("unsupported bit depth: %d (only 16-bit is supported)", f.BitDepth)
	}
	return nil
}

// FrameBytes is the size in bytes of one frame across all channels
func (f Format) FrameBytes() int {
	return f.Channels * f.BitDepth / 8
}

// Duration returns the playback length of n bytes of PCM in this format
func (f Format) Duration(n int) time.Duration {
	frameBytes := f.FrameBytes()
	if frameBytes == 0 || f.SampleRate == 0 {
		return 0
	}
	frames := n / frameBytes
	return time.Duration(frames) * time.Second / time.Duration(f.SampleRate)
}

// WriteWAV writes little-endian PCM-16 bytes to path as a WAV file.
// An empty payload produces a valid header-only file.
func WriteWAV(path string, pcm []byte, format Format) (err error) {
	if err := format.Validate(); err != nil {
		return err
	}

	samples, err := BytesToInt16(pcm)
	if err != nil {
		return err
	}

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create WAV file: %w", err)
	}
	defer func() {
		if cerr := f.Close(); cerr != nil && err == nil {
			err = fmt.Errorf("failed to close WAV file: %w", cerr)
		}
		if err != nil {
			os.Remove(path)
		}
	}()

	enc := wav.NewEncoder(f, format.SampleRate, format.BitDepth, format.Channels, 1)

	data := make([]int, len(samples))
	for i, s := range samples {
		data[i] = int(s)
	}

	buf := &goaudio.IntBuffer{
		Format:         &goaudio.Format{NumChannels: format.Channels, SampleRate: format.SampleRate},
		Data:           data,
		SourceBitDepth: format.BitDepth,
	}

	if err := enc.Write(buf); err != nil {
		return fmt.Errorf("failed to write audio data: %w", err)
	}
	if err := enc.Close(); err != nil {
		return fmt.Errorf("failed to finalize WAV header: %w", err)
	}

	return nil
}

// ReadWAV decodes a 16-bit PCM WAV file back to raw little-endian bytes
func ReadWAV(path string) ([]byte, Format, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, Format{}, fmt.Errorf("failed to open WAV file: %w", err)
	}
	defer f.Close()

	dec := wav.NewDecoder(f)
	if !dec.IsValidFile() {
		return nil, Format{}, errors.New("invalid WAV file: missing RIFF/WAVE header or fmt chunk")
	}

	format := Format{
		Channels:   int(dec.NumChans),
		SampleRate: int(dec.SampleRate),
		BitDepth:   int(dec.BitDepth),
	}
	if err := format.Validate(); err != nil {
		return nil, format, err
	}

	buf, err := dec.FullPCMBuffer()
	if err != nil {
		return nil, format, fmt.Errorf("failed to read audio samples: %w", err)
	}

	out := make([]byte, 0, len(buf.Data)*2)
	for _, v := range buf.Data {
		out = AppendInt16(out, int16(v))
	}

	return out, format, nil
}
