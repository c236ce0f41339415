// Package led holds the in-memory frame buffer for the NeoPixel ring.
package led

// RGBColor is a single RGB color. The channels are in the order R, G, B.
type RGBColor [3]uint8

// LEDs describes the ring of LEDs. It is a preallocated slice of RGBColor.
type LEDs []RGBColor

// NewLEDs creates a new ring buffer. Colors are initialized to black (off).
func NewLEDs(numLEDs int) LEDs {
	return make(LEDs, numLEDs)
}

// Set sets the color of the LED at the given position.
func (l LEDs) Set(i int, c RGBColor) {
	l[i] = c
}

// Clear turns every LED off.
func (l LEDs) Clear() {
	for i := range l {
		l[i] = RGBColor{}
	}
}

// Fade scales every channel of every LED by num/den. It implements the
// persistence trail between visualizer frames.
func (l LEDs) Fade(num, den int) {
	for i := range l {
		for ch := range l[i] {
			l[i][ch] = uint8(int(l[i][ch]) * num / den)
		}
	}
}

// AsPixels returns the ring as a flat slice of channel values, three per LED,
// in wire order.
func (l LEDs) AsPixels() []uint8 {
	pix := make([]uint8, 0, 3*len(l))
	for _, c := range l {
		pix = append(pix, c[0], c[1], c[2])
	}
	return pix
}

// Equal reports whether two frames are identical.
func (l LEDs) Equal(other LEDs) bool {
	if len(l) != len(other) {
		return false
	}
	for i := range l {
		if l[i] != other[i] {
			return false
		}
	}
	return true
}
