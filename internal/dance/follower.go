package dance

import (
	"context"
	"log/slog"
	"time"

	"github.com/pkg/errors"
	"libdb.so/ufosync/illoadv"
	"libdb.so/ufosync/internal/led"
)

// State is the follower's place in the discovery state machine.
type State int

const (
	// Searching means no live leader is known; scan bursts look for one.
	Searching State = iota
	// Synced means frames from a leader are arriving and being mirrored.
	Synced
)

// String returns a string representation of the state.
func (s State) String() string {
	switch s {
	case Searching:
		return "searching"
	case Synced:
		return "synced"
	default:
		return "unknown"
	}
}

// FollowerConfig tunes the scan/decode/render pipeline.
type FollowerConfig struct {
	// Tuning supplies the smoothing alpha. The advertise period is unused
	// on the follower side.
	Tuning Tuning
	// NumPixels is the ring size.
	NumPixels int
	// ScanBurst bounds one active-scan window.
	ScanBurst time.Duration
	// LossTimeout is how long without a valid frame before the leader is
	// declared lost.
	LossTimeout time.Duration
	// MinRenderInterval bounds the render rate.
	MinRenderInterval time.Duration
}

// Validate checks the configuration ranges.
func (c FollowerConfig) Validate() error {
	if err := c.Tuning.Validate(); err != nil {
		return err
	}
	if c.NumPixels <= 0 {
		return errors.New("no pixels configured")
	}
	if c.ScanBurst <= 0 {
		return errors.New("scan burst must be positive")
	}
	if c.LossTimeout <= c.ScanBurst {
		return errors.New("loss timeout must exceed the scan burst")
	}
	if c.MinRenderInterval < 0 {
		return errors.New("negative render interval")
	}
	return nil
}

// FollowerHealth counts decode outcomes for the status monitor.
type FollowerHealth struct {
	// Accepted counts frames that advanced the rendered state.
	Accepted uint64
	// Duplicates counts redundant re-observations of the current frame.
	Duplicates uint64
	// Stale counts frames older than the current one, seen through
	// overlapping scan windows.
	Stale uint64
	// Malformed counts ILLO-prefixed names that failed to decode.
	Malformed uint64
}

// Follower mirrors a leader's visual state. It owns the SEARCHING/SYNCED
// state machine, duplicate and stale filtering, leader-loss detection, and
// the smoothing bridge into the ring.
type Follower struct {
	radio  Radio
	logger *slog.Logger
	cfg    FollowerConfig

	state      State
	haveSeq    bool
	lastSeq    uint8
	lastFrame  illoadv.VisualState
	lastSeen   time.Time
	lastRender time.Time
	smoother   *Smoother
	health     FollowerHealth
}

// NewFollower creates a follower session scanning on the given radio.
func NewFollower(radio Radio, cfg FollowerConfig, logger *slog.Logger) (*Follower, error) {
	if err := cfg.Validate(); err != nil {
		return nil, errors.Wrap(err, "invalid follower config")
	}
	return &Follower{
		radio:    radio,
		logger:   logger,
		cfg:      cfg,
		state:    Searching,
		smoother: NewSmoother(cfg.Tuning.SmoothAlpha, cfg.NumPixels),
	}, nil
}

// Tick runs one scan burst, folds any received frame into the smoother,
// applies leader-loss detection, and renders into leds subject to the
// minimum render interval. It reports whether leds changed.
//
// All timestamps derive from now, so the machine is a pure function of time
// and radio input.
func (f *Follower) Tick(ctx context.Context, now time.Time, leds led.LEDs) (bool, error) {
	var accepted *illoadv.VisualState

	// An accepted frame ends the burst immediately so it renders within the
	// frame budget instead of after the window runs out. The next tick's
	// burst picks the scan back up.
	scanCtx, stopScan := context.WithCancel(ctx)
	defer stopScan()

	err := f.radio.Scan(scanCtx, f.cfg.ScanBurst, func(name string) {
		state, err := illoadv.Parse(name)
		if err != nil {
			if errors.Is(err, illoadv.ErrMalformed) {
				// Malformed frames are dropped without touching
				// session state; the previous smoothed state keeps
				// rendering.
				f.health.Malformed++
				f.logger.Debug("dropping malformed frame", "name", name, "error", err)
			}
			return
		}

		// Any valid leader frame, duplicate or stale, proves the leader
		// is alive and resets the loss timer.
		f.lastSeen = now

		if f.haveSeq {
			if state.Sequence == f.lastSeq {
				f.health.Duplicates++
				return
			}
			if !illoadv.SequenceAdvanced(f.lastSeq, state.Sequence) {
				f.health.Stale++
				return
			}
		}

		f.haveSeq = true
		f.lastSeq = state.Sequence
		accepted = &state
		stopScan()
	})
	if err != nil && accepted == nil && ctx.Err() == nil {
		return false, errors.Wrap(err, "scan burst failed")
	}

	if accepted != nil {
		if f.state == Searching {
			f.state = Synced
			f.logger.Info("leader acquired", "sequence", accepted.Sequence)
		}
		f.lastFrame = *accepted
		f.smoother.SetTargets(accepted.Pixels)
		f.health.Accepted++
	} else if f.state == Synced && now.Sub(f.lastSeen) >= f.cfg.LossTimeout {
		f.state = Searching
		f.haveSeq = false
		f.smoother.Release()
		f.logger.Info("leader lost", "timeout", f.cfg.LossTimeout)
	}

	if !f.lastRender.IsZero() && now.Sub(f.lastRender) < f.cfg.MinRenderInterval {
		return false, nil
	}
	f.lastRender = now
	return f.smoother.Step(leds), nil
}

// State returns the follower's current discovery state.
func (f *Follower) State() State {
	return f.state
}

// LastFrame returns the most recently accepted frame.
func (f *Follower) LastFrame() illoadv.VisualState {
	return f.lastFrame
}

// LastSeen returns the time the leader was last heard.
func (f *Follower) LastSeen() time.Time {
	return f.lastSeen
}

// Health returns a copy of the decode counters.
func (f *Follower) Health() FollowerHealth {
	return f.health
}
