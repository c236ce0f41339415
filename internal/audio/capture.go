package audio

import (
	"context"
	"sync"

	"github.com/noriah/catnip/input"
	"github.com/pkg/errors"
)

// CaptureConfig selects the audio input session.
type CaptureConfig struct {
	// Backend is the catnip input backend name, e.g. "pipewire" or "parec".
	Backend string
	// Device is the backend device to record from. Empty picks the default.
	Device string
	// SampleRate is the capture sample rate in Hz.
	SampleRate float64
	// SampleSize is the number of samples per frame.
	SampleSize int
}

// Capture owns a mono catnip input session and exposes the most recent
// sample frame. The session writes into a shared buffer on its own schedule;
// the render loop polls the latest frame with Read.
type Capture struct {
	cfg     CaptureConfig
	backend input.Backend
	session input.Session

	mu     sync.Mutex
	buffer [][]input.Sample
	kick   chan bool
}

// NewCapture opens the configured backend and device but does not start
// recording; call Run for that.
func NewCapture(cfg CaptureConfig) (*Capture, error) {
	backend := input.FindBackend(cfg.Backend)
	if backend == nil {
		return nil, errors.Errorf("unknown audio backend %q", cfg.Backend)
	}

	if err := backend.Init(); err != nil {
		return nil, errors.Wrap(err, "failed to initialize audio backend")
	}

	device, err := findDevice(backend, cfg.Device)
	if err != nil {
		backend.Close()
		return nil, err
	}

	session, err := backend.Start(input.SessionConfig{
		Device:     device,
		FrameSize:  1, // mono
		SampleSize: cfg.SampleSize,
		SampleRate: cfg.SampleRate,
	})
	if err != nil {
		backend.Close()
		return nil, errors.Wrap(err, "failed to start audio session")
	}

	return &Capture{
		cfg:     cfg,
		backend: backend,
		session: session,
		buffer:  input.MakeBuffers(1, cfg.SampleSize),
		kick:    make(chan bool, 1),
	}, nil
}

func findDevice(backend input.Backend, name string) (input.Device, error) {
	if name == "" {
		device, err := backend.DefaultDevice()
		return device, errors.Wrap(err, "failed to get default audio device")
	}

	devices, err := backend.Devices()
	if err != nil {
		return nil, errors.Wrap(err, "failed to list audio devices")
	}
	for _, device := range devices {
		if device.String() == name {
			return device, nil
		}
	}
	return nil, errors.Errorf("audio device %q not found", name)
}

// Run records until the context is canceled. It blocks.
func (c *Capture) Run(ctx context.Context) error {
	defer c.backend.Close()
	err := c.session.Start(ctx, c.buffer, c.kick, &c.mu)
	if ctx.Err() != nil {
		return ctx.Err()
	}
	return errors.Wrap(err, "audio session stopped")
}

// Read copies the most recent sample frame into dst and returns the number
// of samples copied.
func (c *Capture) Read(dst []float64) int {
	c.mu.Lock()
	defer c.mu.Unlock()

	n := copy(dst, c.buffer[0])
	return n
}
