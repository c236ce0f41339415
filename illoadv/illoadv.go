// Package illoadv implements the ILLO advertisement name protocol.
//
// The protocol carries a compact visual state inside the name field of a
// connectionless BLE advertisement:
//
//	ILLO_<seq>_<pos1>_<int1>_<col1>_<pos2>_<int2>_<col2>_<pos3>_<int3>_<col3>
//
// All integers are decimal and unpadded. Only the triples for pixels actually
// present are emitted, so a token carries 0 to 3 triples after the sequence
// field. Any implementation that encodes and decodes this exact grammar
// interoperates.
package illoadv

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// Prefix is the literal that identifies an ILLO advertisement name.
const Prefix = "ILLO_"

const (
	// NumPositions is the number of LED slots on the ring.
	NumPositions = 10
	// MaxPixels is the maximum number of pixel triples in one token.
	MaxPixels = 3
	// MaxIntensity is the largest encodable pixel intensity.
	MaxIntensity = 255
	// MaxNameLen is the longest advertisement name the radio layer accepts.
	// Encode drops trailing triples rather than emit a longer token.
	MaxNameLen = 31
)

var (
	// ErrMalformed is returned by Parse for names that carry the ILLO prefix
	// but do not match the grammar. Callers drop such frames silently.
	ErrMalformed = errors.New("malformed ILLO advertisement")
	// ErrForeign is returned by Parse for names without the ILLO prefix,
	// i.e. advertisements from unrelated devices in range.
	ErrForeign = errors.New("not an ILLO advertisement")
)

// ColorClass is the coarse 3-way color bucket carried per pixel.
type ColorClass uint8

const (
	Red ColorClass = iota
	Green
	BluePink
)

// String returns a string representation of the color class.
func (c ColorClass) String() string {
	switch c {
	case Red:
		return "red"
	case Green:
		return "green"
	case BluePink:
		return "blue-pink"
	default:
		return fmt.Sprintf("ColorClass(%d)", uint8(c))
	}
}

// RGB expands the color class at the given intensity into full RGB channels.
func (c ColorClass) RGB(intensity uint8) (r, g, b uint8) {
	i := int(intensity)
	switch c {
	case Red:
		return uint8(i), uint8(i * 15 / 100), uint8(i * 15 / 100)
	case Green:
		return uint8(i * 15 / 100), uint8(i), uint8(i * 15 / 100)
	default:
		return uint8(i * 30 / 100), uint8(i * 5 / 100), uint8(i)
	}
}

// PixelSample is one lit LED slot inside a VisualState.
type PixelSample struct {
	// Position is the LED slot, 0 to NumPositions-1.
	Position uint8
	// Intensity is the pixel brightness, 0 to MaxIntensity.
	Intensity uint8
	// Color is the coarse color bucket for the pixel.
	Color ColorClass
}

// VisualState is the unit of synchronization between leader and followers.
type VisualState struct {
	// Sequence wraps at 256. Followers use it only to tell new frames from
	// duplicates, never for ordering or retransmission.
	Sequence uint8
	// Pixels holds up to MaxPixels samples, ranked by descending intensity
	// at encode time. Decode preserves the received order.
	Pixels []PixelSample
}

// Validate reports whether the state is encodable.
func (s VisualState) Validate() error {
	if len(s.Pixels) > MaxPixels {
		return fmt.Errorf("%d pixels exceed the maximum of %d", len(s.Pixels), MaxPixels)
	}
	for _, p := range s.Pixels {
		if p.Position >= NumPositions {
			return fmt.Errorf("position %d out of range", p.Position)
		}
		if p.Color > BluePink {
			return fmt.Errorf("color class %d out of range", p.Color)
		}
	}
	return nil
}

// Encode builds the advertisement name for the state. Trailing triples are
// dropped if the full token would exceed MaxNameLen, so the result is always
// a valid token of at most MaxNameLen bytes.
func Encode(s VisualState) (string, error) {
	if err := s.Validate(); err != nil {
		return "", err
	}

	var b strings.Builder
	b.Grow(MaxNameLen)
	b.WriteString(Prefix)
	b.WriteString(strconv.Itoa(int(s.Sequence)))

	for _, p := range s.Pixels {
		triple := "_" + strconv.Itoa(int(p.Position)) +
			"_" + strconv.Itoa(int(p.Intensity)) +
			"_" + strconv.Itoa(int(p.Color))
		if b.Len()+len(triple) > MaxNameLen {
			break
		}
		b.WriteString(triple)
	}

	return b.String(), nil
}

// Parse decodes an advertisement name. Names without the ILLO prefix return
// ErrForeign; names with the prefix but an invalid body return an error
// wrapping ErrMalformed. Parse never panics on any input.
func Parse(name string) (VisualState, error) {
	if !strings.HasPrefix(name, Prefix) {
		return VisualState{}, ErrForeign
	}

	fields := strings.Split(name[len(Prefix):], "_")
	if len(fields) < 1 || (len(fields)-1)%3 != 0 || len(fields) > 1+3*MaxPixels {
		return VisualState{}, fmt.Errorf("%w: %d fields", ErrMalformed, len(fields))
	}

	seq, err := parseByte(fields[0], 255)
	if err != nil {
		return VisualState{}, fmt.Errorf("%w: sequence %q", ErrMalformed, fields[0])
	}

	state := VisualState{Sequence: seq}
	for i := 1; i < len(fields); i += 3 {
		pos, err := parseByte(fields[i], NumPositions-1)
		if err != nil {
			return VisualState{}, fmt.Errorf("%w: position %q", ErrMalformed, fields[i])
		}
		intensity, err := parseByte(fields[i+1], MaxIntensity)
		if err != nil {
			return VisualState{}, fmt.Errorf("%w: intensity %q", ErrMalformed, fields[i+1])
		}
		color, err := parseByte(fields[i+2], uint8(BluePink))
		if err != nil {
			return VisualState{}, fmt.Errorf("%w: color %q", ErrMalformed, fields[i+2])
		}
		state.Pixels = append(state.Pixels, PixelSample{
			Position:  pos,
			Intensity: intensity,
			Color:     ColorClass(color),
		})
	}

	return state, nil
}

func parseByte(s string, max uint8) (uint8, error) {
	n, err := strconv.ParseUint(s, 10, 8)
	if err != nil {
		return 0, err
	}
	if n > uint64(max) {
		return 0, fmt.Errorf("%d exceeds %d", n, max)
	}
	return uint8(n), nil
}

// SequenceAdvanced reports whether next is newer than last under wraparound,
// treating a forward distance of up to half the sequence space as progress.
// Equal sequences are duplicates, not progress.
func SequenceAdvanced(last, next uint8) bool {
	if last == next {
		return false
	}
	return next-last <= 128
}
