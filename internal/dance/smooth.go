package dance

import (
	"libdb.so/ufosync/illoadv"
	"libdb.so/ufosync/internal/led"
)

// dropThreshold is the negligible per-channel brightness below which a
// decaying pixel is dropped from tracking.
const dropThreshold = 1.0

// Smoother bridges decoded frames and the ring with per-pixel exponential
// smoothing, so sparse lossy updates render without visible jitter. All
// buffers are sized once at construction.
type Smoother struct {
	alpha   float64
	acc     [][3]float64
	target  [][3]float64
	tracked []bool
}

// NewSmoother creates a smoother for numPixels ring slots. The alpha is
// assumed validated by the follower configuration.
func NewSmoother(alpha float64, numPixels int) *Smoother {
	return &Smoother{
		alpha:   alpha,
		acc:     make([][3]float64, numPixels),
		target:  make([][3]float64, numPixels),
		tracked: make([]bool, numPixels),
	}
}

// SetTargets replaces the smoothing targets with a newly received frame.
// Positions absent from the frame keep a zero target and decay. Positions
// not currently tracked snap straight to the received value, so a pixel's
// first appearance renders without ramp-up delay.
func (s *Smoother) SetTargets(pixels []illoadv.PixelSample) {
	for i := range s.target {
		s.target[i] = [3]float64{}
	}

	for _, p := range pixels {
		pos := int(p.Position)
		if pos >= len(s.target) {
			continue
		}
		r, g, b := p.Color.RGB(p.Intensity)
		t := [3]float64{float64(r), float64(g), float64(b)}
		if !s.tracked[pos] {
			s.acc[pos] = t
			s.tracked[pos] = true
		}
		s.target[pos] = t
	}
}

// Release zeroes every target so all tracked pixels decay toward black.
// Called when leader loss is declared, so stale visuals fade out instead of
// freezing.
func (s *Smoother) Release() {
	for i := range s.target {
		s.target[i] = [3]float64{}
	}
}

// Step advances every tracked pixel one smoothing update toward its target
// and writes the result into leds. It reports whether the frame changed.
func (s *Smoother) Step(leds led.LEDs) bool {
	changed := false
	for i := range s.acc {
		if !s.tracked[i] {
			continue
		}

		faded := true
		for ch := 0; ch < 3; ch++ {
			s.acc[i][ch] += (s.target[i][ch] - s.acc[i][ch]) * s.alpha
			if s.acc[i][ch] >= dropThreshold || s.target[i][ch] != 0 {
				faded = false
			}
		}
		if faded {
			s.acc[i] = [3]float64{}
			s.tracked[i] = false
		}

		c := led.RGBColor{
			clampChannel(s.acc[i][0]),
			clampChannel(s.acc[i][1]),
			clampChannel(s.acc[i][2]),
		}
		if i < len(leds) && leds[i] != c {
			leds.Set(i, c)
			changed = true
		}
	}
	return changed
}

// Tracking reports whether the position currently has a smoothed value.
func (s *Smoother) Tracking(pos int) bool {
	return pos < len(s.tracked) && s.tracked[pos]
}

// Value returns the smoothed RGB accumulator for a position.
func (s *Smoother) Value(pos int) [3]float64 {
	return s.acc[pos]
}

// Reset discards all smoothing state.
func (s *Smoother) Reset() {
	for i := range s.acc {
		s.acc[i] = [3]float64{}
		s.target[i] = [3]float64{}
		s.tracked[i] = false
	}
}

func clampChannel(v float64) uint8 {
	switch {
	case v <= 0:
		return 0
	case v >= 255:
		return 255
	default:
		return uint8(v + 0.5)
	}
}
