// Package uartio adapts a byte-at-a-time serial port to the io.ReadWriter
// the ledserial codec reads and writes through.
package uartio

import (
	"runtime"
	"time"
)

// Port is the byte-level serial interface. machine.Serialer implements it.
type Port interface {
	ReadByte() (byte, error)
	WriteByte(byte) error
	// Buffered returns the number of bytes waiting in the receive buffer.
	Buffered() int
}

// Stream wraps a Port into an io.ReadWriter.
type Stream struct {
	port Port
}

// Wrap adapts the given port.
func Wrap(port Port) *Stream {
	return &Stream{port: port}
}

// Read drains at most len(b) buffered bytes. It never blocks: an empty
// receive buffer sleeps briefly and reports a zero-length read, which keeps
// the packet reader polling without spinning the scheduler.
func (s *Stream) Read(b []byte) (int, error) {
	n := s.port.Buffered()
	if n == 0 {
		time.Sleep(time.Millisecond)
		return 0, nil
	}

	// The codec reads through small scratch buffers, so a burst can buffer
	// more bytes than b holds. The excess stays in the port for the next
	// read.
	if n > len(b) {
		n = len(b)
	}
	for i := 0; i < n; i++ {
		c, err := s.port.ReadByte()
		if err != nil {
			return i, err
		}
		b[i] = c
	}

	runtime.Gosched()
	return n, nil
}

// Write pushes b to the port one byte at a time.
func (s *Stream) Write(b []byte) (int, error) {
	for i, c := range b {
		if err := s.port.WriteByte(c); err != nil {
			return i, err
		}
	}

	runtime.Gosched()
	return len(b), nil
}
