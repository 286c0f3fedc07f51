package capture

import (
	"errors"
	"fmt"

	"github.com/gordonklaus/portaudio"
)

// PortAudioDevice opens blocking input streams through PortAudio.
// portaudio.Initialize must have been called by the process.
type PortAudioDevice struct{}

// Open opens and starts an input stream on the named device, or on the
// host's default input device when the name is empty
func (PortAudioDevice) Open(cfg StreamConfig) (Stream, error) {
	dev, err := lookupInputDevice(cfg.DeviceName)
	if err != nil {
		return nil, err
	}

	in := make([]int16, cfg.FramesPerBuffer*cfg.Channels)
	params := portaudio.StreamParameters{
		Input: portaudio.StreamDeviceParameters{
			Device:   dev,
			Channels: cfg.Channels,
			Latency:  dev.DefaultLowInputLatency,
		},
		SampleRate:      float64(cfg.SampleRate),
		FramesPerBuffer: cfg.FramesPerBuffer,
	}

	stream, err := portaudio.OpenStream(params, in)
	if err != nil {
		return nil, fmt.Errorf("failed to open input stream on %q: %w", dev.Name, err)
	}

	if err := stream.Start(); err != nil {
		stream.Close()
		return nil, fmt.Errorf("failed to start input stream on %q: %w", dev.Name, err)
	}

	return &portAudioStream{stream: stream, in: in}, nil
}

type portAudioStream struct {
	stream *portaudio.Stream
	in     []int16
}

func (s *portAudioStream) Read(buf []int16) error {
	if err := s.stream.Read(); err != nil && !errors.Is(err, portaudio.InputOverflowed) {
		return err
	}
	copy(buf, s.in)
	return nil
}

func (s *portAudioStream) Close() error {
	return errors.Join(s.stream.Stop(), s.stream.Close())
}

func lookupInputDevice(name string) (*portaudio.DeviceInfo, error) {
	if name == "" {
		dev, err := portaudio.DefaultInputDevice()
		if err != nil {
			return nil, fmt.Errorf("no default input device: %w", err)
		}
		return dev, nil
	}

	devices, err := portaudio.Devices()
	if err != nil {
		return nil, fmt.Errorf("failed to enumerate devices: %w", err)
	}
	for _, dev := range devices {
		if dev.Name == name && dev.MaxInputChannels > 0 {
			return dev, nil
		}
	}
	return nil, fmt.Errorf("input device %q not found", name)
}

// InputDevices lists the names of devices that can record
func InputDevices() ([]string, error) {
	devices, err := portaudio.Devices()
	if err != nil {
		return nil, err
	}
	var names []string
	for _, dev := range devices {
		if dev.MaxInputChannels > 0 {
			names = append(names, dev.Name)
		}
	}
	return names, nil
}
