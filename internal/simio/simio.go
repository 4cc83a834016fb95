// Package simio provides an in-memory, goroutine-driven loopback link for
// exercising the packet control interface and board dispatch loops without
// real hardware, modeled on the same channel-mediated request/response
// simulator shape used to test hardware drivers elsewhere in this module.
package simio

// Link is a byte pipe with independent host and board ends: bytes written
// on one end become readable on the other. It implements pci.Source/
// pci.Sink on both ends via HostEnd/BoardEnd.
type Link struct {
	toBoard chan byte
	toHost  chan byte
}

// NewLink returns a Link with a generous internal buffer so tests can push
// whole frames without the producer blocking on the consumer.
func NewLink() *Link {
	const bufSize = 4096
	return &Link{
		toBoard: make(chan byte, bufSize),
		toHost:  make(chan byte, bufSize),
	}
}

// End is one side of a Link, satisfying both pci.Source and pci.Sink.
type End struct {
	in  chan byte
	out chan byte
}

// HostEnd returns the end a test harness (standing in for the host) reads
// and writes from.
func (l *Link) HostEnd() *End { return &End{in: l.toHost, out: l.toBoard} }

// BoardEnd returns the end the board dispatch loop reads and writes from.
func (l *Link) BoardEnd() *End { return &End{in: l.toBoard, out: l.toHost} }

// Available reports whether a byte is ready without blocking.
func (e *End) Available() bool {
	return len(e.in) > 0
}

// Read returns the next available byte. Only valid after Available
// reported true.
func (e *End) Read() byte {
	return <-e.in
}

// Write sends a single byte to the other end of the link.
func (e *End) Write(b byte) {
	e.out <- b
}
