package uartio

import (
	"bytes"
	"testing"

	"libdb.so/ufosync/ledserial"
)

// fakePort queues received bytes and records written ones.
type fakePort struct {
	rx []byte
	tx []byte
}

func (p *fakePort) ReadByte() (byte, error) {
	c := p.rx[0]
	p.rx = p.rx[1:]
	return c, nil
}

func (p *fakePort) WriteByte(c byte) error {
	p.tx = append(p.tx, c)
	return nil
}

func (p *fakePort) Buffered() int {
	return len(p.rx)
}

func TestReadCapsAtDestination(t *testing.T) {
	port := &fakePort{rx: []byte{1, 2, 3, 4, 5, 6, 7, 8}}
	stream := Wrap(port)

	// A whole packet is buffered, but the caller only asked for one byte.
	// The rest must stay in the port instead of overrunning the slice.
	var one [1]byte
	n, err := stream.Read(one[:])
	if err != nil {
		t.Fatal(err)
	}
	if n != 1 || one[0] != 1 {
		t.Fatalf("read %d bytes (%v), want 1 byte {1}", n, one)
	}
	if port.Buffered() != 7 {
		t.Errorf("buffered = %d after short read, want 7", port.Buffered())
	}

	var four [4]byte
	n, err = stream.Read(four[:])
	if err != nil {
		t.Fatal(err)
	}
	if n != 4 || four != [4]byte{2, 3, 4, 5} {
		t.Errorf("read %d bytes (%v), want {2 3 4 5}", n, four)
	}
}

func TestReadEmptyBuffer(t *testing.T) {
	stream := Wrap(&fakePort{})

	var b [4]byte
	n, err := stream.Read(b[:])
	if err != nil {
		t.Fatal(err)
	}
	if n != 0 {
		t.Errorf("read %d bytes from an empty port", n)
	}
}

func TestWrite(t *testing.T) {
	port := &fakePort{}
	stream := Wrap(port)

	n, err := stream.Write([]byte{9, 8, 7})
	if err != nil {
		t.Fatal(err)
	}
	if n != 3 || !bytes.Equal(port.tx, []byte{9, 8, 7}) {
		t.Errorf("wrote %d bytes (%v)", n, port.tx)
	}
}

// The codec reads through 1-byte scratch buffers. A frame packet that arrives
// as one burst must decode cleanly off the stream.
func TestBurstedPacketDecodes(t *testing.T) {
	var wire bytes.Buffer
	packet := ledserial.FramePacket{Pix: []uint8{10, 20, 30, 40, 50, 60}}
	if err := ledserial.WriteIncomingPacket(&wire, packet); err != nil {
		t.Fatal(err)
	}

	port := &fakePort{rx: wire.Bytes()}
	p, err := ledserial.ReadIncomingPacket(Wrap(port), ledserial.ReadContext{NumLEDs: 2})
	if err != nil {
		t.Fatal(err)
	}

	frame, ok := p.(ledserial.FramePacket)
	if !ok {
		t.Fatalf("decoded %T, want frame packet", p)
	}
	if !bytes.Equal(frame.Pix, packet.Pix) {
		t.Errorf("pix = %v, want %v", frame.Pix, packet.Pix)
	}
}
