package pci

import "testing"

// fakeSource is a []byte-backed pci.Source for tests.
type fakeSource struct {
	b []byte
	i int
}

func (f *fakeSource) Available() bool { return f.i < len(f.b) }
func (f *fakeSource) Read() byte {
	b := f.b[f.i]
	f.i++
	return b
}

func encode(t Type, data []byte) []byte {
	buf := make([]byte, 0, NonDataSize+len(data))
	buf = append(buf, Preamble1, Preamble2, byte(t), byte(len(data)))
	buf = append(buf, data...)
	var sum byte
	sum += byte(t)
	sum += byte(len(data))
	for _, b := range data {
		sum += b
	}
	buf = append(buf, sum, Postamble1, Postamble2)
	return buf
}

func TestRoundTrip(t *testing.T) {
	cases := []struct {
		typ  Type
		data []byte
	}{
		{GetUptime, nil},
		{SetDDSEnable, []byte{0xAA, 0xBB}},
		{SetDDSParams, []byte{1, 2, 3, 4, 5, 6, 7, 8, 9, 10, 11, 12}},
	}
	for _, c := range cases {
		frame := encode(c.typ, c.data)
		src := &fakeSource{b: frame}
		p := NewParser(src)
		p.ProcessInput()
		if p.GetState() != RecvCommand {
			t.Fatalf("type %v: expected RecvCommand, got state %v", c.typ, p.GetState())
		}
		got := p.GetPacket()
		if got.Type != c.typ {
			t.Errorf("type %v: got type %v", c.typ, got.Type)
		}
		if len(got.Data) != len(c.data) {
			t.Fatalf("type %v: got %d data bytes, want %d", c.typ, len(got.Data), len(c.data))
		}
		for i := range c.data {
			if got.Data[i] != c.data[i] {
				t.Errorf("type %v: data[%d] = %#x, want %#x", c.typ, i, got.Data[i], c.data[i])
			}
		}
	}
}

func TestUptimeScenario(t *testing.T) {
	// F0 CA 00 00 00 53 0F -> packet {type=GetUptime, data=[]}
	src := &fakeSource{b: []byte{0xF0, 0xCA, 0x00, 0x00, 0x00, 0x53, 0x0F}}
	p := NewParser(src)
	p.ProcessInput()
	if p.GetState() != RecvCommand {
		t.Fatalf("expected RecvCommand, got %v", p.GetState())
	}
	pkt := p.GetPacket()
	if pkt.Type != GetUptime || len(pkt.Data) != 0 {
		t.Fatalf("got %+v", pkt)
	}
}

func TestResyncAfterGarbage(t *testing.T) {
	// 01 02 F0 CA 10 02 AA BB 77 53 0F: garbage "01 02" precedes a valid
	// SetDDSEnable frame carrying [0xAA, 0xBB], checksum 0x10+0x02+0xAA+0xBB
	// (mod 256) = 0x77.
	frame := []byte{0x01, 0x02, 0xF0, 0xCA, byte(SetDDSEnable), 0x02, 0xAA, 0xBB, 0x77, 0x53, 0x0F}
	src := &fakeSource{b: frame}
	p := NewParser(src)
	p.ProcessInput()
	if p.GetState() != RecvCommand {
		t.Fatalf("expected RecvCommand, got %v", p.GetState())
	}
	pkt := p.GetPacket()
	if pkt.Type != SetDDSEnable {
		t.Fatalf("got type %v, want SetDDSEnable", pkt.Type)
	}
	if len(pkt.Data) != 2 || pkt.Data[0] != 0xAA || pkt.Data[1] != 0xBB {
		t.Fatalf("got data %v", pkt.Data)
	}
}

func TestResyncSkipsGarbageThenFindsValidFrame(t *testing.T) {
	garbage := []byte{0x11, 0x22, 0xF0, 0x99, 0x33, 0xF0, 0x44}
	valid := encode(GetBattLvl, []byte{0x7F})
	src := &fakeSource{b: append(append([]byte{}, garbage...), valid...)}
	p := NewParser(src)
	p.ProcessInput()
	if p.GetState() != RecvCommand {
		t.Fatalf("expected RecvCommand, got %v", p.GetState())
	}
	pkt := p.GetPacket()
	if pkt.Type != GetBattLvl || len(pkt.Data) != 1 || pkt.Data[0] != 0x7F {
		t.Fatalf("got %+v", pkt)
	}
}

func TestChecksumRejection(t *testing.T) {
	good := encode(SetDDSEnable, []byte{0x01, 0x02, 0x03})
	for i := typeOffset; i < dataStartOffset+3; i++ {
		bad := append([]byte(nil), good...)
		bad[i] ^= 0xFF
		// Append a known-good frame after it, to confirm resync recovers.
		bad = append(bad, encode(GetUptime, nil)...)
		src := &fakeSource{b: bad}
		p := NewParser(src)
		p.ProcessInput()
		if p.GetState() != RecvCommand {
			t.Fatalf("byte %d flipped: parser stalled, state=%v", i, p.GetState())
		}
		if pkt := p.GetPacket(); pkt.Type != GetUptime {
			t.Fatalf("byte %d flipped: expected corrupted frame rejected and GetUptime recovered, got %v", i, pkt.Type)
		}
	}
}

func TestUnknownTypeIsInvalid(t *testing.T) {
	frame := encode(Type(0xEE), nil)
	src := &fakeSource{b: frame}
	p := NewParser(src)
	p.ProcessInput()
	if p.GetState() != RecvCommand {
		t.Fatalf("expected RecvCommand, got %v", p.GetState())
	}
	if pkt := p.GetPacket(); pkt.Type != Invalid {
		t.Fatalf("got type %v, want Invalid", pkt.Type)
	}
}

func TestProcessInputShiftsConsumedFrameOnNextCall(t *testing.T) {
	first := encode(GetUptime, nil)
	second := encode(GetBattLvl, []byte{0x42})
	src := &fakeSource{b: append(append([]byte{}, first...), second...)}
	p := NewParser(src)

	p.ProcessInput()
	if pkt := p.GetPacket(); pkt.Type != GetUptime {
		t.Fatalf("first frame: got %v", pkt.Type)
	}

	p.ProcessInput()
	if pkt := p.GetPacket(); pkt.Type != GetBattLvl || len(pkt.Data) != 1 || pkt.Data[0] != 0x42 {
		t.Fatalf("second frame: got %+v", pkt)
	}
}

func TestNoInputReturnsWithoutBlocking(t *testing.T) {
	src := &fakeSource{}
	p := NewParser(src)
	p.ProcessInput()
	if p.GetState() == RecvCommand {
		t.Fatalf("expected no packet on empty source")
	}
}

func TestOversizedGarbageDoesNotPanic(t *testing.T) {
	garbage := make([]byte, RecvBufferCapacity*3)
	for i := range garbage {
		garbage[i] = Preamble1 // never followed by Preamble2, forces repeated resync
	}
	valid := encode(GetUptime, nil)
	src := &fakeSource{b: append(garbage, valid...)}
	p := NewParser(src)
	p.ProcessInput()
	if p.GetState() != RecvCommand {
		t.Fatalf("expected eventual recovery, got state %v", p.GetState())
	}
}

func TestOversizedDeclaredLengthResets(t *testing.T) {
	// A declared data_length that can never be satisfied within the
	// receive buffer must not wedge the parser forever.
	bogus := []byte{Preamble1, Preamble2, byte(SetDDSParams), 0xFE}
	bogus = append(bogus, make([]byte, RecvBufferCapacity)...)
	valid := encode(GetUptime, nil)
	src := &fakeSource{b: append(bogus, valid...)}
	p := NewParser(src)
	p.ProcessInput()
	if p.GetState() != RecvCommand {
		t.Fatalf("expected eventual recovery, got state %v", p.GetState())
	}
	if pkt := p.GetPacket(); pkt.Type != GetUptime {
		t.Fatalf("got %v", pkt.Type)
	}
}

func TestGarbageLongerThanBufferDoesNotPanic(t *testing.T) {
	// No embedded preamble at all within a run longer than the receive
	// buffer: the parser must not index past its fixed-size array.
	garbage := make([]byte, RecvBufferCapacity*4)
	for i := range garbage {
		garbage[i] = 0x7E
	}
	valid := encode(GetUptime, nil)
	src := &fakeSource{b: append(garbage, valid...)}
	p := NewParser(src)
	p.ProcessInput()
	if p.GetState() != RecvCommand {
		t.Fatalf("expected eventual recovery, got state %v", p.GetState())
	}
	if pkt := p.GetPacket(); pkt.Type != GetUptime {
		t.Fatalf("got %v", pkt.Type)
	}
}
