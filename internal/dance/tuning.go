package dance

import (
	"time"

	"github.com/pkg/errors"
)

// Validation bounds for the responsiveness tuning.
const (
	MinAdvertisePeriod = 50 * time.Millisecond
	MaxAdvertisePeriod = 200 * time.Millisecond
	MinSmoothAlpha     = 0.5
	MaxSmoothAlpha     = 0.95
)

// Tuning is the pair of knobs that trade responsiveness against smoothness
// and battery: how often the leader re-advertises, and how hard followers
// pull toward each received frame.
type Tuning struct {
	// AdvertisePeriod is the leader re-advertise cadence.
	AdvertisePeriod time.Duration
	// SmoothAlpha is the follower smoothing factor.
	SmoothAlpha float64
}

// Validate checks the tuning against the supported ranges.
func (t Tuning) Validate() error {
	if t.AdvertisePeriod < MinAdvertisePeriod || t.AdvertisePeriod > MaxAdvertisePeriod {
		return errors.Errorf("advertise period %s outside %s-%s",
			t.AdvertisePeriod, MinAdvertisePeriod, MaxAdvertisePeriod)
	}
	if t.SmoothAlpha < MinSmoothAlpha || t.SmoothAlpha > MaxSmoothAlpha {
		return errors.Errorf("smoothing alpha %.2f outside %.2f-%.2f",
			t.SmoothAlpha, MinSmoothAlpha, MaxSmoothAlpha)
	}
	return nil
}

// Preset is a named responsiveness configuration.
type Preset string

const (
	// PresetFast maximizes responsiveness at a cost in CPU and battery.
	PresetFast Preset = "fast"
	// PresetBalanced is the default trade-off.
	PresetBalanced Preset = "balanced"
	// PresetSmooth favors smooth motion and battery life.
	PresetSmooth Preset = "smooth"
)

var presets = map[Preset]Tuning{
	PresetFast:     {AdvertisePeriod: 50 * time.Millisecond, SmoothAlpha: 0.95},
	PresetBalanced: {AdvertisePeriod: 80 * time.Millisecond, SmoothAlpha: 0.90},
	PresetSmooth:   {AdvertisePeriod: 120 * time.Millisecond, SmoothAlpha: 0.70},
}

// TuningFor resolves a preset name.
func TuningFor(p Preset) (Tuning, error) {
	t, ok := presets[p]
	if !ok {
		return Tuning{}, errors.Errorf("unknown responsiveness preset %q", p)
	}
	return t, nil
}
