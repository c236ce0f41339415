// Package ledserial implements the serial framing between the daemon and the
// NeoPixel ring controller. Frames are checksummed with CRC-32 so a desynced
// UART stream is detected instead of rendered.
package ledserial

import (
	"encoding/binary"
	"fmt"
	"hash/crc32"
	"io"
)

// Endianness defines the endianness of the protocol.
var Endianness = binary.LittleEndian

// IncomingPacketType is the type of a packet sent to the ring controller.
type IncomingPacketType uint8

const (
	TypeInitializePacket IncomingPacketType = iota
	TypeClearPacket
	TypeFramePacket
	TypeBrightnessPacket
)

// String returns a string representation of the packet type.
func (t IncomingPacketType) String() string {
	switch t {
	case TypeInitializePacket:
		return "initialize"
	case TypeClearPacket:
		return "clear"
	case TypeFramePacket:
		return "frame"
	case TypeBrightnessPacket:
		return "brightness"
	default:
		return fmt.Sprintf("IncomingPacketType(%d)", uint8(t))
	}
}

// IncomingPacket is a packet sent to the ring controller.
type IncomingPacket interface {
	// Type returns the type of packet.
	Type() IncomingPacketType
}

// InitializePacket configures the ring before the first frame.
type InitializePacket struct {
	NumLEDs    uint16
	Brightness uint8 // 0-255, scales every channel on-device
}

// ClearPacket turns the whole ring off.
type ClearPacket struct{}

// FramePacket carries one full ring frame, three channel bytes per LED.
type FramePacket struct {
	Pix []uint8
}

// BrightnessPacket changes the global brightness without redrawing.
type BrightnessPacket struct {
	Brightness uint8
}

func (p InitializePacket) Type() IncomingPacketType { return TypeInitializePacket }
func (p ClearPacket) Type() IncomingPacketType      { return TypeClearPacket }
func (p FramePacket) Type() IncomingPacketType      { return TypeFramePacket }
func (p BrightnessPacket) Type() IncomingPacketType { return TypeBrightnessPacket }

// OutgoingPacketType is the type of a packet sent by the ring controller.
type OutgoingPacketType uint8

const (
	TypeAckPacket OutgoingPacketType = iota
	TypeErrorPacket
	TypePanicPacket
	TypeLogPacket
)

// String returns a string representation of the packet type.
func (t OutgoingPacketType) String() string {
	switch t {
	case TypeAckPacket:
		return "ack"
	case TypeErrorPacket:
		return "error"
	case TypePanicPacket:
		return "panic"
	case TypeLogPacket:
		return "log"
	default:
		return fmt.Sprintf("OutgoingPacketType(%d)", uint8(t))
	}
}

// OutgoingPacket is a packet sent by the ring controller.
type OutgoingPacket interface {
	// Type returns the type of packet.
	Type() OutgoingPacketType
}

// AckPacket acknowledges an incoming packet. The daemon uses it as flow
// control before scheduling the next frame.
type AckPacket struct {
	IncomingPacketType IncomingPacketType
}

// ErrorPacket reports a recoverable controller error.
type ErrorPacket struct {
	Message string
}

// PanicPacket reports that the controller cannot recover.
type PanicPacket struct{}

// LogPacket carries a controller log message.
type LogPacket struct {
	Message string
}

func (p AckPacket) Type() OutgoingPacketType   { return TypeAckPacket }
func (p ErrorPacket) Type() OutgoingPacketType { return TypeErrorPacket }
func (p PanicPacket) Type() OutgoingPacketType { return TypePanicPacket }
func (p LogPacket) Type() OutgoingPacketType   { return TypeLogPacket }

// ReadContext carries the ring state a reader needs to size variable-length
// packets.
type ReadContext struct {
	// NumLEDs is the number of LEDs on the ring.
	NumLEDs uint16
}

// WriteIncomingPacket writes a daemon-to-controller packet.
func WriteIncomingPacket(w io.Writer, p IncomingPacket) error {
	hash := crc32.NewIEEE()
	w = io.MultiWriter(w, hash)

	if err := binary.Write(w, Endianness, p.Type()); err != nil {
		return fmt.Errorf("failed to write packet type: %w", err)
	}

	var err error
	switch p := p.(type) {
	case InitializePacket:
		err = binary.Write(w, Endianness, p)
	case ClearPacket:
		// Type byte only.
	case FramePacket:
		_, err = w.Write(p.Pix)
	case BrightnessPacket:
		err = binary.Write(w, Endianness, p)
	default:
		return fmt.Errorf("unknown packet type: %T", p)
	}
	if err != nil {
		return fmt.Errorf("failed to write %s packet: %w", p.Type(), err)
	}

	if err := binary.Write(w, Endianness, hash.Sum32()); err != nil {
		return fmt.Errorf("failed to write packet checksum: %w", err)
	}
	return nil
}

// ReadIncomingPacket reads a daemon-to-controller packet. The controller side
// of the protocol calls this in its device loop.
func ReadIncomingPacket(r io.Reader, context ReadContext) (IncomingPacket, error) {
	hash := crc32.NewIEEE()
	r = io.TeeReader(r, hash)

	var ptypeBuf [1]byte
	if _, err := io.ReadFull(r, ptypeBuf[:]); err != nil {
		return nil, fmt.Errorf("failed to read incoming packet type: %w", err)
	}

	var packet IncomingPacket
	switch ptype := IncomingPacketType(ptypeBuf[0]); ptype {
	case TypeInitializePacket:
		var p InitializePacket
		if err := binary.Read(r, Endianness, &p); err != nil {
			return nil, fmt.Errorf("failed to read initialize packet: %w", err)
		}
		packet = p

	case TypeClearPacket:
		packet = ClearPacket{}

	case TypeFramePacket:
		p := FramePacket{Pix: make([]uint8, 3*context.NumLEDs)}
		if _, err := io.ReadFull(r, p.Pix); err != nil {
			return nil, fmt.Errorf("failed to read frame data: %w", err)
		}
		packet = p

	case TypeBrightnessPacket:
		var p BrightnessPacket
		if err := binary.Read(r, Endianness, &p); err != nil {
			return nil, fmt.Errorf("failed to read brightness packet: %w", err)
		}
		packet = p

	default:
		return nil, fmt.Errorf("unknown packet type: %s", ptype)
	}

	if err := verifyChecksum(r, hash.Sum32()); err != nil {
		return nil, err
	}
	return packet, nil
}

// WriteOutgoingPacket writes a controller-to-daemon packet.
func WriteOutgoingPacket(w io.Writer, p OutgoingPacket) error {
	hash := crc32.NewIEEE()
	w = io.MultiWriter(w, hash)

	if err := binary.Write(w, Endianness, p.Type()); err != nil {
		return fmt.Errorf("failed to write packet type: %w", err)
	}

	var err error
	switch p := p.(type) {
	case AckPacket:
		err = binary.Write(w, Endianness, p)
	case ErrorPacket:
		err = writeString(w, p.Message)
	case PanicPacket:
		// Type byte only.
	case LogPacket:
		err = writeString(w, p.Message)
	default:
		return fmt.Errorf("unknown packet type: %T", p)
	}
	if err != nil {
		return fmt.Errorf("failed to write %s packet: %w", p.Type(), err)
	}

	if err := binary.Write(w, Endianness, hash.Sum32()); err != nil {
		return fmt.Errorf("failed to write packet checksum: %w", err)
	}
	return nil
}

// ReadOutgoingPacket reads a controller-to-daemon packet.
func ReadOutgoingPacket(r io.Reader, context ReadContext) (OutgoingPacket, error) {
	hash := crc32.NewIEEE()
	r = io.TeeReader(r, hash)

	var ptypeBuf [1]byte
	if _, err := io.ReadFull(r, ptypeBuf[:]); err != nil {
		return nil, fmt.Errorf("failed to read outgoing packet type: %w", err)
	}

	var packet OutgoingPacket
	switch ptype := OutgoingPacketType(ptypeBuf[0]); ptype {
	case TypeAckPacket:
		var p AckPacket
		if err := binary.Read(r, Endianness, &p); err != nil {
			return nil, fmt.Errorf("failed to read ack packet: %w", err)
		}
		packet = p

	case TypeErrorPacket:
		msg, err := readString(r)
		if err != nil {
			return nil, fmt.Errorf("failed to read error message: %w", err)
		}
		packet = ErrorPacket{Message: msg}

	case TypePanicPacket:
		packet = PanicPacket{}

	case TypeLogPacket:
		msg, err := readString(r)
		if err != nil {
			return nil, fmt.Errorf("failed to read log message: %w", err)
		}
		packet = LogPacket{Message: msg}

	default:
		return nil, fmt.Errorf("unknown packet type: %s", ptype)
	}

	if err := verifyChecksum(r, hash.Sum32()); err != nil {
		return nil, err
	}
	return packet, nil
}

func writeString(w io.Writer, s string) error {
	if err := binary.Write(w, Endianness, uint16(len(s))); err != nil {
		return err
	}
	_, err := io.WriteString(w, s)
	return err
}

func readString(r io.Reader) (string, error) {
	var length uint16
	if err := binary.Read(r, Endianness, &length); err != nil {
		return "", err
	}
	buf := make([]byte, length)
	if _, err := io.ReadFull(r, buf); err != nil {
		return "", err
	}
	return string(buf), nil
}

func verifyChecksum(r io.Reader, sum uint32) error {
	var checksum uint32
	if err := binary.Read(r, Endianness, &checksum); err != nil {
		return fmt.Errorf("failed to read packet checksum: %w", err)
	}
	if checksum != sum {
		return fmt.Errorf("packet checksum mismatch")
	}
	return nil
}
