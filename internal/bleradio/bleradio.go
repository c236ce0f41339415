// Package bleradio implements the dance.Radio interface over a real BLE
// adapter. Replacing an advertisement name requires stopping and restarting
// the advertisement, which is why a refused update surfaces as a skippable
// error instead of blocking.
package bleradio

import (
	"context"
	"sync"
	"time"

	"github.com/pkg/errors"
	"tinygo.org/x/bluetooth"
)

// Radio drives the platform BLE adapter.
type Radio struct {
	adapter  *bluetooth.Adapter
	interval time.Duration

	mu          sync.Mutex
	adv         *bluetooth.Advertisement
	advertising bool
}

// New enables the default adapter. The interval is the platform advertising
// interval, normally the same as the leader's re-advertise period.
func New(interval time.Duration) (*Radio, error) {
	adapter := bluetooth.DefaultAdapter
	if err := adapter.Enable(); err != nil {
		return nil, errors.Wrap(err, "failed to enable BLE adapter")
	}
	return &Radio{
		adapter:  adapter,
		interval: interval,
		adv:      adapter.DefaultAdvertisement(),
	}, nil
}

// Advertise replaces the advertisement name. The BLE stack requires the
// advertisement to be stopped before its payload changes.
func (r *Radio) Advertise(name string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.advertising {
		if err := r.adv.Stop(); err != nil {
			return errors.Wrap(err, "failed to stop advertisement")
		}
		r.advertising = false
	}

	err := r.adv.Configure(bluetooth.AdvertisementOptions{
		LocalName: name,
		Interval:  bluetooth.NewDuration(r.interval),
	})
	if err != nil {
		return errors.Wrap(err, "failed to configure advertisement")
	}

	if err := r.adv.Start(); err != nil {
		return errors.Wrap(err, "failed to start advertisement")
	}
	r.advertising = true
	return nil
}

// StopAdvertising withdraws the advertisement.
func (r *Radio) StopAdvertising() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if !r.advertising {
		return nil
	}
	r.advertising = false
	return errors.Wrap(r.adv.Stop(), "failed to stop advertisement")
}

// Scan observes advertisements for at most the given window. The adapter's
// blocking scan is bounded by stopping it from a timer, so the caller's loop
// stays responsive.
func (r *Radio) Scan(ctx context.Context, window time.Duration, fn func(name string)) error {
	timer := time.AfterFunc(window, func() {
		r.adapter.StopScan()
	})
	defer timer.Stop()

	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			r.adapter.StopScan()
		case <-done:
		}
	}()

	err := r.adapter.Scan(func(_ *bluetooth.Adapter, result bluetooth.ScanResult) {
		if name := result.LocalName(); name != "" {
			fn(name)
		}
	})
	if ctx.Err() != nil {
		return ctx.Err()
	}
	return errors.Wrap(err, "scan failed")
}
