// Package audio provides audio capture and spectral analysis for the leader
// role. The analyzer consumes fixed-size sample frames and reports the
// dominant frequency plus per-LED-slot intensities.
package audio

import (
	"math"
	"math/cmplx"

	"github.com/mjibson/go-dsp/fft"
)

// silenceGate is the mean squared amplitude below which a frame counts as
// silent and the visualizer falls back to the idle animation.
const silenceGate = 1e-6

// peakDecay controls how quickly the normalization peak falls between frames.
const peakDecay = 0.995

// Features is the per-frame analysis the visualizer consumes.
type Features struct {
	// DominantHz is the frequency of the strongest spectral bin.
	DominantHz float64
	// Intensity is the 0-255 magnitude of the dominant bin after
	// normalization.
	Intensity uint8
	// Slots holds one 0-255 intensity per LED slot, aggregated from the
	// spectrum.
	Slots []uint8
	// Silent is set when the frame energy is below the silence gate.
	Silent bool
}

// Analyzer turns raw sample frames into Features. It reuses scratch buffers
// so per-frame allocation stays constant regardless of traffic.
type Analyzer struct {
	sampleRate float64
	frameSize  int
	window     []float64
	windowed   []float64
	slotMags   []float64
	slots      []uint8
	peak       float64
}

// NewAnalyzer creates an analyzer for the given sample rate and frame size,
// aggregating the spectrum into numSlots buckets.
func NewAnalyzer(sampleRate float64, frameSize, numSlots int) *Analyzer {
	return &Analyzer{
		sampleRate: sampleRate,
		frameSize:  frameSize,
		window:     hannWindow(frameSize),
		windowed:   make([]float64, frameSize),
		slotMags:   make([]float64, numSlots),
		slots:      make([]uint8, numSlots),
	}
}

// Analyze computes the features of one sample frame. Frames shorter than the
// configured size are treated as silent. The returned Slots slice is reused
// between calls.
func (a *Analyzer) Analyze(samples []float64) Features {
	if len(samples) < a.frameSize {
		return Features{Silent: true, Slots: a.muteSlots()}
	}
	samples = samples[:a.frameSize]

	var energy float64
	for _, s := range samples {
		energy += s * s
	}
	if energy/float64(a.frameSize) < silenceGate {
		return Features{Silent: true, Slots: a.muteSlots()}
	}

	for i, s := range samples {
		a.windowed[i] = s * a.window[i]
	}
	spectrum := fft.FFTReal(a.windowed)

	// Only bins below Nyquist carry information; bin 0 is DC.
	usable := len(spectrum) / 2
	for i := range a.slotMags {
		a.slotMags[i] = 0
	}

	var peakBin int
	var peakMag float64
	for i := 1; i < usable; i++ {
		mag := cmplx.Abs(spectrum[i])
		if mag > peakMag {
			peakMag = mag
			peakBin = i
		}
		slot := (i - 1) * len(a.slotMags) / (usable - 1)
		if slot >= len(a.slotMags) {
			slot = len(a.slotMags) - 1
		}
		if mag > a.slotMags[slot] {
			a.slotMags[slot] = mag
		}
	}

	a.peak *= peakDecay
	if peakMag > a.peak {
		a.peak = peakMag
	}
	if a.peak == 0 {
		return Features{Silent: true, Slots: a.muteSlots()}
	}

	for i, mag := range a.slotMags {
		a.slots[i] = scaleTo255(mag / a.peak)
	}

	return Features{
		DominantHz: a.sampleRate * float64(peakBin) / float64(a.frameSize),
		Intensity:  scaleTo255(peakMag / a.peak),
		Slots:      a.slots,
	}
}

func (a *Analyzer) muteSlots() []uint8 {
	for i := range a.slots {
		a.slots[i] = 0
	}
	return a.slots
}

func scaleTo255(v float64) uint8 {
	if v <= 0 {
		return 0
	}
	if v >= 1 {
		return 255
	}
	return uint8(v*255 + 0.5)
}

func hannWindow(n int) []float64 {
	w := make([]float64, n)
	for i := range w {
		w[i] = 0.5 * (1 - math.Cos(2*math.Pi*float64(i)/float64(n-1)))
	}
	return w
}
