package dance

import (
	"context"
	"testing"
	"time"

	"libdb.so/ufosync/illoadv"
	"libdb.so/ufosync/internal/led"
	"libdb.so/ufosync/internal/simradio"
)

func testFollowerConfig(t *testing.T) FollowerConfig {
	return FollowerConfig{
		Tuning:            balanced(t),
		NumPixels:         10,
		ScanBurst:         200 * time.Millisecond,
		LossTimeout:       3 * time.Second,
		MinRenderInterval: 15 * time.Millisecond,
	}
}

func advertise(t *testing.T, dev *simradio.Device, state illoadv.VisualState) {
	t.Helper()
	name, err := illoadv.Encode(state)
	if err != nil {
		t.Fatal(err)
	}
	if err := dev.Advertise(name); err != nil {
		t.Fatal(err)
	}
}

func TestFollowerAcquiresLeader(t *testing.T) {
	medium := simradio.NewMedium()
	leaderDev := medium.NewDevice()
	follower, err := NewFollower(medium.NewDevice(), testFollowerConfig(t), testLogger())
	if err != nil {
		t.Fatal(err)
	}

	leds := led.NewLEDs(10)
	now := time.Now()

	if follower.State() != Searching {
		t.Fatalf("initial state = %v, want searching", follower.State())
	}

	advertise(t, leaderDev, illoadv.VisualState{Sequence: 42, Pixels: []illoadv.PixelSample{
		{Position: 5, Intensity: 180, Color: illoadv.Green},
	}})

	changed, err := follower.Tick(context.Background(), now, leds)
	if err != nil {
		t.Fatal(err)
	}
	if !changed {
		t.Error("ring not updated after first frame")
	}
	if follower.State() != Synced {
		t.Errorf("state = %v, want synced", follower.State())
	}

	r, g, b := illoadv.Green.RGB(180)
	if leds[5] != (led.RGBColor{r, g, b}) {
		t.Errorf("pixel 5 = %v, want {%d %d %d}", leds[5], r, g, b)
	}
}

func TestFollowerIgnoresDuplicates(t *testing.T) {
	medium := simradio.NewMedium()
	leaderDev := medium.NewDevice()
	follower, err := NewFollower(medium.NewDevice(), testFollowerConfig(t), testLogger())
	if err != nil {
		t.Fatal(err)
	}

	leds := led.NewLEDs(10)
	now := time.Now()

	advertise(t, leaderDev, illoadv.VisualState{Sequence: 10, Pixels: []illoadv.PixelSample{
		{Position: 3, Intensity: 200, Color: illoadv.Red},
	}})
	if _, err := follower.Tick(context.Background(), now, leds); err != nil {
		t.Fatal(err)
	}
	valueBefore := follower.smoother.Value(3)

	// BLE redundancy: the same advertisement is observed again. It must
	// refresh the loss timer without touching the smoothed state.
	later := now.Add(100 * time.Millisecond)
	if _, err := follower.Tick(context.Background(), later, leds); err != nil {
		t.Fatal(err)
	}

	if h := follower.Health(); h.Duplicates != 1 || h.Accepted != 1 {
		t.Errorf("health = %+v, want 1 duplicate, 1 accepted", h)
	}
	if follower.LastSeen() != later {
		t.Error("duplicate did not refresh the loss timer")
	}
	if follower.smoother.Value(3) != valueBefore {
		t.Error("duplicate altered the smoothed accumulator")
	}
}

func TestFollowerRejectsStaleFrames(t *testing.T) {
	medium := simradio.NewMedium()
	leaderDev := medium.NewDevice()
	follower, err := NewFollower(medium.NewDevice(), testFollowerConfig(t), testLogger())
	if err != nil {
		t.Fatal(err)
	}

	leds := led.NewLEDs(10)
	now := time.Now()

	advertise(t, leaderDev, illoadv.VisualState{Sequence: 100})
	if _, err := follower.Tick(context.Background(), now, leds); err != nil {
		t.Fatal(err)
	}

	// An overlapping scan window replays an older frame.
	advertise(t, leaderDev, illoadv.VisualState{Sequence: 90})
	if _, err := follower.Tick(context.Background(), now.Add(50*time.Millisecond), leds); err != nil {
		t.Fatal(err)
	}

	if follower.LastFrame().Sequence != 100 {
		t.Errorf("stale frame advanced state to sequence %d", follower.LastFrame().Sequence)
	}
	if h := follower.Health(); h.Stale != 1 {
		t.Errorf("health = %+v, want 1 stale", h)
	}
}

func TestFollowerAcceptsSequenceWrap(t *testing.T) {
	medium := simradio.NewMedium()
	leaderDev := medium.NewDevice()
	follower, err := NewFollower(medium.NewDevice(), testFollowerConfig(t), testLogger())
	if err != nil {
		t.Fatal(err)
	}

	leds := led.NewLEDs(10)
	now := time.Now()

	advertise(t, leaderDev, illoadv.VisualState{Sequence: 255})
	if _, err := follower.Tick(context.Background(), now, leds); err != nil {
		t.Fatal(err)
	}
	advertise(t, leaderDev, illoadv.VisualState{Sequence: 0})
	if _, err := follower.Tick(context.Background(), now.Add(80*time.Millisecond), leds); err != nil {
		t.Fatal(err)
	}

	if follower.LastFrame().Sequence != 0 {
		t.Errorf("wrapped sequence rejected, still at %d", follower.LastFrame().Sequence)
	}
	if h := follower.Health(); h.Accepted != 2 {
		t.Errorf("health = %+v, want 2 accepted", h)
	}
}

func TestFollowerDeclaresLeaderLoss(t *testing.T) {
	medium := simradio.NewMedium()
	leaderDev := medium.NewDevice()
	cfg := testFollowerConfig(t)
	follower, err := NewFollower(medium.NewDevice(), cfg, testLogger())
	if err != nil {
		t.Fatal(err)
	}

	leds := led.NewLEDs(10)
	now := time.Now()

	advertise(t, leaderDev, illoadv.VisualState{Sequence: 1, Pixels: []illoadv.PixelSample{
		{Position: 2, Intensity: 255, Color: illoadv.Red},
	}})
	if _, err := follower.Tick(context.Background(), now, leds); err != nil {
		t.Fatal(err)
	}

	// The leader disappears. Just under the timeout the follower stays
	// synced; at the timeout it returns to searching and fades.
	if err := leaderDev.StopAdvertising(); err != nil {
		t.Fatal(err)
	}

	almost := now.Add(cfg.LossTimeout - time.Millisecond)
	if _, err := follower.Tick(context.Background(), almost, leds); err != nil {
		t.Fatal(err)
	}
	if follower.State() != Synced {
		t.Fatal("follower dropped sync before the loss timeout")
	}

	lost := now.Add(cfg.LossTimeout)
	if _, err := follower.Tick(context.Background(), lost, leds); err != nil {
		t.Fatal(err)
	}
	if follower.State() != Searching {
		t.Fatal("follower still synced after the loss timeout")
	}

	// Stale visuals decay rather than freeze.
	for i := 1; i <= 6; i++ {
		tick := lost.Add(time.Duration(i) * 20 * time.Millisecond)
		if _, err := follower.Tick(context.Background(), tick, leds); err != nil {
			t.Fatal(err)
		}
	}
	if leds[2] != (led.RGBColor{}) {
		t.Errorf("pixel 2 = %v after loss decay, want dark", leds[2])
	}

	// A reappearing leader is reacquired regardless of its sequence.
	advertise(t, leaderDev, illoadv.VisualState{Sequence: 7})
	if _, err := follower.Tick(context.Background(), lost.Add(time.Second), leds); err != nil {
		t.Fatal(err)
	}
	if follower.State() != Synced {
		t.Error("follower did not resync with the reappeared leader")
	}
}

func TestFollowerDropsMalformedSilently(t *testing.T) {
	medium := simradio.NewMedium()
	medium.SetNoise("ILLO_5_3_999_1", "JBL Speaker", "ILLO_nope")
	follower, err := NewFollower(medium.NewDevice(), testFollowerConfig(t), testLogger())
	if err != nil {
		t.Fatal(err)
	}

	leds := led.NewLEDs(10)
	if _, err := follower.Tick(context.Background(), time.Now(), leds); err != nil {
		t.Fatal(err)
	}

	h := follower.Health()
	if h.Malformed != 2 {
		t.Errorf("malformed = %d, want 2 (foreign names are not counted)", h.Malformed)
	}
	if h.Accepted != 0 || follower.State() != Searching {
		t.Error("malformed frames affected session state")
	}
}

// windowRadio delivers its advertisement at the start of a scan and then
// holds the scan open for the full window unless the context is canceled,
// like a real adapter.
type windowRadio struct {
	name string
}

func (r windowRadio) Advertise(string) error { return nil }
func (r windowRadio) StopAdvertising() error { return nil }

func (r windowRadio) Scan(ctx context.Context, window time.Duration, fn func(name string)) error {
	fn(r.name)
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(window):
		return nil
	}
}

func TestFollowerRendersBeforeBurstEnds(t *testing.T) {
	name, err := illoadv.Encode(illoadv.VisualState{Sequence: 9, Pixels: []illoadv.PixelSample{
		{Position: 4, Intensity: 220, Color: illoadv.Red},
	}})
	if err != nil {
		t.Fatal(err)
	}

	follower, err := NewFollower(windowRadio{name: name}, testFollowerConfig(t), testLogger())
	if err != nil {
		t.Fatal(err)
	}

	leds := led.NewLEDs(10)

	// The frame arrives at the very start of the 200ms burst. The tick must
	// apply and render it right away, not after waiting out the window.
	start := time.Now()
	changed, err := follower.Tick(context.Background(), start, leds)
	if err != nil {
		t.Fatal(err)
	}
	if elapsed := time.Since(start); elapsed >= 100*time.Millisecond {
		t.Errorf("tick blocked %v on an already-accepted frame", elapsed)
	}

	if !changed {
		t.Error("ring not updated by the accepted frame")
	}
	if follower.State() != Synced {
		t.Errorf("state = %v, want synced", follower.State())
	}
	if h := follower.Health(); h.Accepted != 1 {
		t.Errorf("health = %+v, want 1 accepted", h)
	}
}

func TestFollowerRenderRateLimit(t *testing.T) {
	medium := simradio.NewMedium()
	leaderDev := medium.NewDevice()
	follower, err := NewFollower(medium.NewDevice(), testFollowerConfig(t), testLogger())
	if err != nil {
		t.Fatal(err)
	}

	leds := led.NewLEDs(10)
	now := time.Now()

	advertise(t, leaderDev, illoadv.VisualState{Sequence: 1, Pixels: []illoadv.PixelSample{
		{Position: 0, Intensity: 100, Color: illoadv.Green},
	}})
	if _, err := follower.Tick(context.Background(), now, leds); err != nil {
		t.Fatal(err)
	}

	// A tick inside the minimum render interval must not redraw.
	advertise(t, leaderDev, illoadv.VisualState{Sequence: 2, Pixels: []illoadv.PixelSample{
		{Position: 0, Intensity: 255, Color: illoadv.Green},
	}})
	changed, err := follower.Tick(context.Background(), now.Add(5*time.Millisecond), leds)
	if err != nil {
		t.Fatal(err)
	}
	if changed {
		t.Error("redraw inside the minimum render interval")
	}
}
