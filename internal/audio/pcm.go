package audio

import (
	"encoding/binary"
	"fmt"
	"math"
)

// AppendInt16 appends samples to dst as little-endian 16-bit PCM
func AppendInt16(dst []byte, samples ...int16) []byte {
	for _, s := range samples {
		dst = binary.LittleEndian.AppendUint16(dst, uint16(s))
	}
	return dst
}

// BytesToInt16 interprets little-endian 16-bit PCM bytes as samples
func BytesToInt16(data []byte) ([]int16, error) {
	if len(data)%2 != 0 {
		return nil, fmt.Errorf("PCM data length must be even, got %d", len(data))
	}
	samples := make([]int16, len(data)/2)
	for i := range samples {
		samples[i] = int16(binary.LittleEndian.Uint16(data[i*2:]))
	}
	return samples, nil
}

// NormalizedRMS returns the root-mean-square amplitude of a block scaled to [0, 1]
func NormalizedRMS(samples []int16) float64 {
	if len(samples) == 0 {
		return 0
	}
	var sum float64
	for _, s := range samples {
		v := float64(s) / 32768.0
		sum += v * v
	}
	return math.Sqrt(sum / float64(len(samples)))
}
