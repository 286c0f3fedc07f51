package capture

// StreamConfig describes the input stream a Device should open
type StreamConfig struct {
	DeviceName      string
	Channels        int
	SampleRate      int
	FramesPerBuffer int
}

// Device opens input streams on an audio host
type Device interface {
	Open(cfg StreamConfig) (Stream, error)
}

// Stream is an open, started input stream.
// Read blocks until buf is filled with FramesPerBuffer*Channels samples.
type Stream interface {
	Read(buf []int16) error
	Close() error
}
