package pci

import "errors"

// ErrPayloadTooLarge is returned by Send when len(data)+NonDataSize would
// overflow the transmit buffer.
var ErrPayloadTooLarge = errors.New("pci: payload too large")

// Sink is the byte-level collaborator the Sender writes framed bytes to.
type Sink interface {
	Write(b byte)
}

// Sender assembles and transmits framed packets.
type Sender struct {
	dst Sink
}

// NewSender returns a Sender writing framed bytes to dst.
func NewSender(dst Sink) *Sender {
	return &Sender{dst: dst}
}

// Send assembles {P1, P2, type, len, data…, checksum, T1, T2} and writes
// each byte to the sink. It refuses outright if the assembled frame would
// exceed TxCapacity, without writing any bytes.
func (s *Sender) Send(t Type, data []byte) error {
	if len(data)+NonDataSize > TxCapacity {
		return ErrPayloadTooLarge
	}
	var buf [TxCapacity]byte
	buf[0] = Preamble1
	buf[1] = Preamble2
	buf[typeOffset] = byte(t)
	buf[dataLengthOff] = byte(len(data))
	copy(buf[dataStartOffset:], data)
	n := len(data)
	buf[dataStartOffset+n] = checksum(buf[:], n+2)
	buf[dataStartOffset+n+1] = Postamble1
	buf[dataStartOffset+n+2] = Postamble2

	total := dataStartOffset + n + 3
	for _, b := range buf[:total] {
		s.dst.Write(b)
	}
	return nil
}
