package pci

// state is the receive-side parser state.
type state int

const (
	srchPreamble1 state = iota
	srchPreamble2
	srchPostamble1
	srchPostamble2
	recvCommand
)

// Source is the byte-level collaborator the parser drains. It is the only
// contract the parser has with the underlying UART driver, which is out of
// scope for this package.
type Source interface {
	// Available reports whether a byte is ready to Read without blocking.
	Available() bool
	// Read returns the next available byte. Only called when Available
	// reported true.
	Read() byte
}

// Parser implements the receive half of the packet control interface: a
// byte-streaming frame detector with resync and checksum validation. It
// recovers from arbitrary byte corruption without losing subsequent valid
// frames, and never blocks: ProcessInput drains whatever is available and
// returns.
type Parser struct {
	src Source

	buf    [RecvBufferCapacity]byte
	used   int
	cursor int
	state  state
	packet Packet
}

// NewParser returns a Parser draining bytes from src.
func NewParser(src Source) *Parser {
	return &Parser{src: src, state: srchPreamble1}
}

// State reports the current parser state. Exported only for tests and
// diagnostics; a packet is ready when GetState() == RecvCommand.
type State int

const (
	SrchPreamble1  State = State(srchPreamble1)
	SrchPreamble2  State = State(srchPreamble2)
	SrchPostamble1 State = State(srchPostamble1)
	SrchPostamble2 State = State(srchPostamble2)
	RecvCommand    State = State(recvCommand)
)

// GetState returns the parser's current state.
func (p *Parser) GetState() State {
	return State(p.state)
}

// GetPacket returns the most recently received packet. Only meaningful when
// GetState() == RecvCommand.
func (p *Parser) GetPacket() Packet {
	return p.packet
}

// ProcessInput drains whatever bytes are available from the source,
// advancing the frame parser. It returns once a full frame has been
// accepted (GetState() == RecvCommand) or the source has no more bytes to
// offer.
//
// On entry, if the previous call left the parser in RecvCommand, the
// consumed frame is shifted out of the buffer before new bytes are
// considered — this is the only place the buffer is compacted on the happy
// path; everywhere else compaction happens through resync.
func (p *Parser) ProcessInput() {
	if p.state == recvCommand {
		frameLen := int(p.buf[dataLengthOff]) + NonDataSize
		p.used = copy(p.buf[:], p.buf[frameLen:p.used])
		p.cursor = 0
		p.state = srchPreamble1
	}

	for p.state != recvCommand {
		b, ok := p.nextByte()
		if !ok {
			return
		}

		switch p.state {
		case srchPreamble1:
			if b != Preamble1 {
				p.resync()
			} else {
				p.state = srchPreamble2
			}
		case srchPreamble2:
			if b != Preamble2 {
				p.resync()
			} else {
				p.state = srchPostamble1
			}
		case srchPostamble1:
			if p.cursor == dataLengthOff+1 && int(p.buf[dataLengthOff])+NonDataSize > RecvBufferCapacity {
				// A declared length that cannot fit the receive buffer
				// can never complete: treat the length byte as corrupt.
				p.resync()
				break
			}
			if p.cursor > dataLengthOff && p.cursor == int(p.buf[dataLengthOff])+NonDataSize-1 {
				if b != Postamble1 {
					p.resync()
				} else {
					p.state = srchPostamble2
				}
			}
		case srchPostamble2:
			if p.cursor > dataLengthOff && p.cursor == int(p.buf[dataLengthOff])+NonDataSize {
				if b != Postamble2 || !p.acceptFrame() {
					// Either the trailing sentinel or the checksum was
					// wrong: discard the candidate frame and resync so a
					// Preamble1 byte buried in the bad data can still
					// start the next frame.
					p.resync()
				}
			}
		}
	}
}

// nextByte consumes from the retained buffer first; only reads a fresh byte
// from the source once the buffer is exhausted.
func (p *Parser) nextByte() (byte, bool) {
	if p.cursor < p.used {
		b := p.buf[p.cursor]
		p.cursor++
		return b, true
	}
	if p.src.Available() {
		if p.used >= len(p.buf) {
			// A frame candidate grew past capacity without resolving;
			// drop it and restart the search fresh from this byte.
			p.used = 0
			p.cursor = 0
			p.state = srchPreamble1
		}
		b := p.src.Read()
		p.buf[p.used] = b
		p.used++
		p.cursor = p.used
		return b, true
	}
	return 0, false
}

// acceptFrame validates the checksum of the candidate frame and, if it
// matches, populates the packet, transitions to RecvCommand and returns
// true. Otherwise it leaves the parser state untouched and returns false.
func (p *Parser) acceptFrame() bool {
	dataLen := int(p.buf[dataLengthOff])
	end := dataStartOffset + dataLen
	if end > p.used {
		return false
	}
	want := p.buf[end]
	got := checksum(p.buf[:], dataLen+2) // type + len + data
	if got != want {
		return false
	}
	p.packet = Packet{
		Type: resolveType(p.buf[typeOffset]),
		Data: append([]byte(nil), p.buf[dataStartOffset:end]...),
	}
	p.state = recvCommand
	return true
}

// resync implements buffer compaction: search forward from offset 1 for the
// first occurrence of Preamble1, shift it (and everything after it) to
// offset 0, and restart the search from SrchPreamble1.
func (p *Parser) resync() {
	off := p.used
	for i := 1; i < p.used; i++ {
		if p.buf[i] == Preamble1 {
			off = i
			break
		}
	}
	n := copy(p.buf[:], p.buf[off:p.used])
	p.used = n
	p.cursor = 0
	p.state = srchPreamble1
}
