// Package dance implements the leader/follower light-synchronization core:
// the broadcast cadence controller, the follower scan state machine, and the
// smoothing bridge between received frames and the ring.
//
// Both roles are driven as explicit step functions of time by the host loop,
// so the whole state machine stays a plain function of its inputs and several
// simulated devices can share one process.
package dance

import (
	"context"
	"time"
)

// Radio is the subset of platform radio primitives the sync layer needs.
// It is implemented by bleradio for real hardware and by simradio for tests.
type Radio interface {
	// Advertise replaces the outgoing advertisement name. An error means
	// the radio refused the update this tick; the caller retries on its
	// next cadence tick.
	Advertise(name string) error

	// StopAdvertising withdraws the current advertisement.
	StopAdvertising() error

	// Scan observes advertisements for at most the given window, invoking
	// fn with each observed advertisement name. Scan returns once the
	// window elapses or the context is canceled.
	Scan(ctx context.Context, window time.Duration, fn func(name string)) error
}
