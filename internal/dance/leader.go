package dance

import (
	"log/slog"
	"time"

	"github.com/pkg/errors"
	"libdb.so/ufosync/illoadv"
)

// LeaderHealth counts broadcast outcomes for the status monitor.
type LeaderHealth struct {
	// Advertised is the number of successful advertisement replacements.
	Advertised uint64
	// Skipped is the number of ticks the radio refused the update.
	Skipped uint64
}

// Leader owns the re-advertise cadence. Once per period it takes the most
// recently rendered top pixels, stamps the next sequence number, and replaces
// the outgoing advertisement. It never blocks on the render loop: the state
// it broadcasts may be stale by one render frame.
type Leader struct {
	radio  Radio
	logger *slog.Logger

	period  time.Duration
	seq     uint8
	lastAdv time.Time
	health  LeaderHealth
}

// NewLeader creates a leader session broadcasting on the given radio.
func NewLeader(radio Radio, tuning Tuning, logger *slog.Logger) (*Leader, error) {
	if err := tuning.Validate(); err != nil {
		return nil, errors.Wrap(err, "invalid tuning")
	}
	return &Leader{
		radio:  radio,
		logger: logger,
		period: tuning.AdvertisePeriod,
	}, nil
}

// Tick publishes the given ranked pixels if the advertise period has elapsed
// since the previous broadcast. A radio refusal is skipped and retried on the
// next due tick; it never propagates to the render loop.
func (l *Leader) Tick(now time.Time, ranked []illoadv.PixelSample) {
	if !l.lastAdv.IsZero() && now.Sub(l.lastAdv) < l.period {
		return
	}
	l.lastAdv = now

	l.seq++ // wraps at 256 by uint8 arithmetic
	name, err := illoadv.Encode(illoadv.VisualState{
		Sequence: l.seq,
		Pixels:   ranked,
	})
	if err != nil {
		// Unencodable states come from the visualizer; drop the frame.
		l.logger.Debug("skipping unencodable visual state", "error", err)
		l.health.Skipped++
		return
	}

	if err := l.radio.Advertise(name); err != nil {
		l.logger.Debug("advertisement update refused", "error", err)
		l.health.Skipped++
		return
	}
	l.health.Advertised++
}

// Sequence returns the last broadcast sequence number.
func (l *Leader) Sequence() uint8 {
	return l.seq
}

// Health returns a copy of the broadcast counters.
func (l *Leader) Health() LeaderHealth {
	return l.health
}

// Stop withdraws the advertisement when the device leaves the leader role.
func (l *Leader) Stop() error {
	return l.radio.StopAdvertising()
}
