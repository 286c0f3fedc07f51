package capture

import (
	"errors"
	"io"
	"log/slog"
	"sync"
	"time"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2025, 4, 1, 9, 30, 0, 0, time.Local)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

// fakeDevice hands out streams that fill every block with a fixed value,
// or with pattern repeated across reads when it is set, and advance the
// clock by one block duration per read
type fakeDevice struct {
	mu       sync.Mutex
	openErr  error
	readErr  error
	value    int16
	pattern  []int16
	next     int
	clock    *fakeClock
	blockDur time.Duration
	opens    int
	closes   int
}

func (d *fakeDevice) Open(cfg StreamConfig) (Stream, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.openErr != nil {
		return nil, d.openErr
	}
	d.opens++
	return &fakeStream{device: d}, nil
}

type fakeStream struct {
	device *fakeDevice
	closed bool
}

func (s *fakeStream) Read(buf []int16) error {
	d := s.device
	d.mu.Lock()
	defer d.mu.Unlock()
	if s.closed {
		return errors.New("stream closed")
	}
	if d.readErr != nil {
		return d.readErr
	}
	for i := range buf {
		if len(d.pattern) == 0 {
			buf[i] = d.value
			continue
		}
		buf[i] = d.pattern[d.next%len(d.pattern)]
		d.next++
	}
	if d.clock != nil {
		d.clock.Advance(d.blockDur)
	}
	return nil
}

func (s *fakeStream) Close() error {
	s.device.mu.Lock()
	defer s.device.mu.Unlock()
	s.closed = true
	s.device.closes++
	return nil
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}
