package dance

import (
	"math"
	"testing"

	"libdb.so/ufosync/illoadv"
	"libdb.so/ufosync/internal/led"
)

func TestSmootherSnapsOnFirstAppearance(t *testing.T) {
	s := NewSmoother(0.90, 10)
	leds := led.NewLEDs(10)

	s.SetTargets([]illoadv.PixelSample{{Position: 4, Intensity: 100, Color: illoadv.BluePink}})
	s.Step(leds)

	r, g, b := illoadv.BluePink.RGB(100)
	if leds[4] != (led.RGBColor{r, g, b}) {
		t.Errorf("first appearance rendered %v, want {%d %d %d}", leds[4], r, g, b)
	}
}

func TestSmootherConvergence(t *testing.T) {
	s := NewSmoother(0.90, 10)
	leds := led.NewLEDs(10)

	// Establish a tracked value, then move the target; the smoothed value
	// must land within 1% of the new target in two updates.
	s.SetTargets([]illoadv.PixelSample{{Position: 2, Intensity: 100, Color: illoadv.BluePink}})
	s.Step(leds)
	s.SetTargets([]illoadv.PixelSample{{Position: 2, Intensity: 200, Color: illoadv.BluePink}})

	_, _, target := illoadv.BluePink.RGB(200)
	for i := 0; i < 2; i++ {
		s.Step(leds)
	}
	got := s.Value(2)[2]
	if math.Abs(got-float64(target)) > float64(target)*0.01 {
		t.Errorf("after 2 updates blue channel = %.2f, want within 1%% of %d", got, target)
	}
}

func TestSmootherDecaysVacatedPositions(t *testing.T) {
	s := NewSmoother(0.90, 10)
	leds := led.NewLEDs(10)

	s.SetTargets([]illoadv.PixelSample{{Position: 7, Intensity: 200, Color: illoadv.Green}})
	s.Step(leds)

	// The next frame no longer carries position 7; it must fade, not freeze.
	s.SetTargets(nil)

	prev := s.Value(7)[1]
	for i := 0; i < 4 && s.Tracking(7); i++ {
		s.Step(leds)
		cur := s.Value(7)[1]
		if cur > prev {
			t.Fatalf("decay increased channel: %.2f -> %.2f", prev, cur)
		}
		prev = cur
	}

	if s.Tracking(7) {
		t.Error("position 7 still tracked after decay")
	}
	if leds[7] != (led.RGBColor{}) {
		t.Errorf("position 7 not dark after decay: %v", leds[7])
	}
}

func TestSmootherReleaseDecaysEverything(t *testing.T) {
	s := NewSmoother(0.90, 10)
	leds := led.NewLEDs(10)

	s.SetTargets([]illoadv.PixelSample{
		{Position: 0, Intensity: 255, Color: illoadv.Red},
		{Position: 5, Intensity: 120, Color: illoadv.Green},
	})
	s.Step(leds)
	s.Release()

	for i := 0; i < 6; i++ {
		s.Step(leds)
	}
	for _, pos := range []int{0, 5} {
		if s.Tracking(pos) {
			t.Errorf("position %d still tracked after release", pos)
		}
		if leds[pos] != (led.RGBColor{}) {
			t.Errorf("position %d not dark after release: %v", pos, leds[pos])
		}
	}
}
