// Package simradio provides an in-process advertisement medium so several
// simulated devices can exercise the sync protocol in one process, without a
// radio. Delivery is instantaneous: a scan observes the advertisement every
// other device currently holds, plus any injected foreign noise.
package simradio

import (
	"context"
	"sync"
	"time"

	"github.com/pkg/errors"
)

// ErrBusy is returned by Advertise when a busy fault has been injected,
// mimicking a radio that refuses a payload update.
var ErrBusy = errors.New("simulated radio busy")

// Medium is a shared broadcast domain.
type Medium struct {
	mu      sync.Mutex
	devices []*Device
	noise   []string
}

// NewMedium creates an empty broadcast domain.
func NewMedium() *Medium {
	return &Medium{}
}

// SetNoise injects foreign advertisement names observed by every scan, for
// exercising decode rejection against unrelated devices in range.
func (m *Medium) SetNoise(names ...string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.noise = append([]string(nil), names...)
}

// NewDevice attaches a new device to the medium.
func (m *Medium) NewDevice() *Device {
	m.mu.Lock()
	defer m.mu.Unlock()

	d := &Device{medium: m}
	m.devices = append(m.devices, d)
	return d
}

// observed returns the names a scanning device currently sees. A device
// never observes its own advertisement.
func (m *Medium) observed(scanner *Device) []string {
	m.mu.Lock()
	defer m.mu.Unlock()

	names := append([]string(nil), m.noise...)
	for _, d := range m.devices {
		if d == scanner {
			continue
		}
		if d.advertising {
			names = append(names, d.name)
		}
	}
	return names
}

// Device is one simulated radio attached to a Medium. It implements the
// dance.Radio interface.
type Device struct {
	medium *Medium

	// guarded by medium.mu
	name        string
	advertising bool
	busyFor     int
}

// FailAdvertises makes the next n Advertise calls return ErrBusy.
func (d *Device) FailAdvertises(n int) {
	d.medium.mu.Lock()
	defer d.medium.mu.Unlock()
	d.busyFor = n
}

// Advertise replaces the device's advertisement name.
func (d *Device) Advertise(name string) error {
	d.medium.mu.Lock()
	defer d.medium.mu.Unlock()

	if d.busyFor > 0 {
		d.busyFor--
		return ErrBusy
	}
	d.name = name
	d.advertising = true
	return nil
}

// StopAdvertising withdraws the advertisement.
func (d *Device) StopAdvertising() error {
	d.medium.mu.Lock()
	defer d.medium.mu.Unlock()
	d.advertising = false
	return nil
}

// Advertisement returns the device's current advertisement name, or "" if it
// is not advertising.
func (d *Device) Advertisement() string {
	d.medium.mu.Lock()
	defer d.medium.mu.Unlock()
	if !d.advertising {
		return ""
	}
	return d.name
}

// Scan reports every advertisement currently on the medium. The simulated
// medium delivers instantly, so the scan window only bounds cancellation.
func (d *Device) Scan(ctx context.Context, window time.Duration, fn func(name string)) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	for _, name := range d.medium.observed(d) {
		fn(name)
	}
	return nil
}
