// Package ledvis renders the leader-side audio-reactive ring animation and
// ranks the brightest pixels for broadcasting.
package ledvis

import (
	"math"
	"sort"
	"time"

	"libdb.so/ufosync/illoadv"
	"libdb.so/ufosync/internal/audio"
	"libdb.so/ufosync/internal/led"
)

const (
	// visibilityThreshold is the slot intensity below which a pixel stays
	// dark and is excluded from the broadcast ranking.
	visibilityThreshold = 50

	// Intensity bands for the coarse color classes.
	redFloor   = 200
	greenFloor = 140

	// rotationRate scales dominant frequency into ring rotation speed.
	rotationRate = 0.01

	// idleStepInterval paces the comet animation shown without audio.
	idleStepInterval = 150 * time.Millisecond
)

// Idle comet intensities, head to tail.
var cometTrail = [3]uint8{120, 80, 50}

// Ring is the leader's visualizer. It owns the rotation and idle-animation
// state between frames.
type Ring struct {
	numPixels  int
	rotation   float64
	lastUpdate time.Time
	idlePos    int
	lastStep   time.Time
	ranked     []illoadv.PixelSample
}

// NewRing creates a visualizer for a ring of numPixels LEDs.
func NewRing(numPixels int) *Ring {
	return &Ring{
		numPixels: numPixels,
		ranked:    make([]illoadv.PixelSample, 0, numPixels),
	}
}

// Frame renders one visualizer frame into leds and returns the up-to-three
// brightest pixels ranked by descending intensity. The returned slice is
// reused on the next call.
func (r *Ring) Frame(now time.Time, f audio.Features, leds led.LEDs) []illoadv.PixelSample {
	if f.Silent {
		return r.idle(now, leds)
	}

	if !r.lastUpdate.IsZero() {
		dt := now.Sub(r.lastUpdate).Seconds()
		r.rotation = math.Mod(r.rotation+f.DominantHz*dt*rotationRate, float64(r.numPixels))
	}
	r.lastUpdate = now

	// Previous frame fades instead of clearing, which leaves a short
	// persistence trail behind the moving pixels.
	leds.Fade(3, 4)

	active := r.ranked[:0]
	for i := 0; i < r.numPixels && i < len(f.Slots); i++ {
		intensity := f.Slots[i]
		if intensity <= visibilityThreshold {
			continue
		}

		pos := (i + int(r.rotation)) % r.numPixels
		class := classFor(intensity)
		cr, cg, cb := class.RGB(intensity)
		leds.Set(pos, led.RGBColor{cr, cg, cb})

		active = append(active, illoadv.PixelSample{
			Position:  uint8(pos),
			Intensity: intensity,
			Color:     class,
		})
	}

	sort.SliceStable(active, func(i, j int) bool {
		return active[i].Intensity > active[j].Intensity
	})
	if len(active) > illoadv.MaxPixels {
		active = active[:illoadv.MaxPixels]
	}

	r.ranked = active
	return active
}

// idle draws a slowly rotating comet and reports its three pixels, so
// followers keep mirroring something even in silence.
func (r *Ring) idle(now time.Time, leds led.LEDs) []illoadv.PixelSample {
	if r.lastStep.IsZero() || now.Sub(r.lastStep) >= idleStepInterval {
		r.idlePos = (r.idlePos + 1) % r.numPixels
		r.lastStep = now
	}

	leds.Clear()
	active := r.ranked[:0]
	for i, intensity := range cometTrail {
		pos := (r.idlePos - i + r.numPixels) % r.numPixels
		cr, cg, cb := illoadv.BluePink.RGB(intensity)
		leds.Set(pos, led.RGBColor{cr, cg, cb})
		active = append(active, illoadv.PixelSample{
			Position:  uint8(pos),
			Intensity: intensity,
			Color:     illoadv.BluePink,
		})
	}

	r.ranked = active
	return active
}

func classFor(intensity uint8) illoadv.ColorClass {
	switch {
	case intensity > redFloor:
		return illoadv.Red
	case intensity > greenFloor:
		return illoadv.Green
	default:
		return illoadv.BluePink
	}
}
