// Package serialport opens the host-to-board UART link and adapts it to the
// pci.Source/pci.Sink contract. The UART byte transport itself is out of
// scope for the firmware core (spec calls it an external collaborator); this
// package is the thin, real adapter the three board daemons use to reach it.
package serialport

import (
	"io"
	"runtime"

	"github.com/tarm/serial"
)

// Open opens the serial device at path (or a platform default search list
// when path is empty) at the board link's fixed baud rate.
func Open(path string) (io.ReadWriteCloser, error) {
	const baud = 57600

	var candidates []string
	if path != "" {
		candidates = append(candidates, path)
	} else {
		switch runtime.GOOS {
		case "windows":
			candidates = append(candidates, "COM3")
		case "linux":
			candidates = append(candidates, "/dev/ttyUSB0", "/dev/ttyACM0")
		default:
			candidates = append(candidates, "/dev/tty.usbserial")
		}
	}

	var firstErr error
	for _, dev := range candidates {
		c := &serial.Config{Name: dev, Baud: baud}
		port, err := serial.OpenPort(c)
		if err == nil {
			return port, nil
		}
		if firstErr == nil {
			firstErr = err
		}
	}
	return nil, firstErr
}

// Stream adapts a blocking io.Reader/io.Writer pair to the pci.Source/
// pci.Sink contract by running a background reader goroutine that fills a
// small ring buffer, mirroring the goroutine-plus-channel pattern used to
// simulate hardware FIFOs elsewhere in this module.
type Stream struct {
	w       io.Writer
	recv    chan byte
	pending []byte
}

// NewStream starts draining rw in the background and returns a Stream ready
// to be handed to pci.NewParser/pci.NewSender.
func NewStream(rw io.ReadWriter) *Stream {
	s := &Stream{
		w:    rw,
		recv: make(chan byte, 256),
	}
	go s.readLoop(rw)
	return s
}

func (s *Stream) readLoop(r io.Reader) {
	var buf [64]byte
	for {
		n, err := r.Read(buf[:])
		for _, b := range buf[:n] {
			s.recv <- b
		}
		if err != nil {
			close(s.recv)
			return
		}
	}
}

// Available reports whether a byte is ready without blocking.
func (s *Stream) Available() bool {
	select {
	case b, ok := <-s.recv:
		if !ok {
			return false
		}
		s.pending = append(s.pending, b)
		return true
	default:
		return len(s.pending) > 0
	}
}

// Read returns the next available byte. Only valid after Available
// reported true.
func (s *Stream) Read() byte {
	if len(s.pending) == 0 {
		b := <-s.recv
		return b
	}
	b := s.pending[0]
	s.pending = s.pending[1:]
	return b
}

// Write sends a single byte to the link.
func (s *Stream) Write(b byte) {
	s.w.Write([]byte{b})
}
