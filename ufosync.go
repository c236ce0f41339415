// Package ufosync implements the UFO light-sync daemon: one device analyzes
// audio and broadcasts its ring state over BLE advertisements, any number of
// others mirror it. Rendered frames go to the NeoPixel ring controller over
// serial.
package ufosync

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/pkg/errors"
	"go.bug.st/serial"
	"golang.org/x/sync/errgroup"
	"libdb.so/ufosync/illoadv"
	"libdb.so/ufosync/internal/audio"
	"libdb.so/ufosync/internal/dance"
	"libdb.so/ufosync/internal/led"
	"libdb.so/ufosync/internal/ledvis"
	"libdb.so/ufosync/internal/monitor"
	"libdb.so/ufosync/ledserial"
)

// Daemon is the main ufosync daemon.
type Daemon struct {
	cfg    *Config
	radio  dance.Radio
	logger *slog.Logger

	statusMu sync.Mutex
	status   monitor.Snapshot
}

var _ monitor.Source = (*Daemon)(nil)

// NewDaemon creates a new ufosync daemon using the given radio.
func NewDaemon(cfg *Config, radio dance.Radio, logger *slog.Logger) (*Daemon, error) {
	if err := cfg.Validate(); err != nil {
		return nil, errors.Wrap(err, "invalid configuration")
	}

	return &Daemon{
		cfg:    cfg,
		radio:  radio,
		logger: logger,
		status: monitor.Snapshot{Role: string(cfg.Role)},
	}, nil
}

// Snapshot returns the current sync-health snapshot for the monitor.
func (d *Daemon) Snapshot() monitor.Snapshot {
	d.statusMu.Lock()
	defer d.statusMu.Unlock()
	return d.status
}

func (d *Daemon) setStatus(snap monitor.Snapshot) {
	d.statusMu.Lock()
	d.status = snap
	d.statusMu.Unlock()
}

// Run starts the daemon. It blocks until the given context is canceled.
func (d *Daemon) Run(ctx context.Context) error {
	return (&internalDaemon{Daemon: d}).Run(ctx)
}

type internalDaemon struct {
	*Daemon
	port serial.Port
}

func (d *internalDaemon) Run(ctx context.Context) error {
	port, err := serial.Open(d.cfg.Device, &serial.Mode{
		BaudRate: d.cfg.Baud,
	})
	if err != nil {
		return errors.Wrap(err, "failed to open serial port")
	}
	defer port.Close()

	d.port = port

	errg, ctx := errgroup.WithContext(ctx)
	errg.Go(func() error {
		<-ctx.Done()
		d.logger.Debug("closing serial port")
		if err := port.Close(); err != nil {
			return errors.Wrap(err, "failed to close serial port")
		}
		return ctx.Err()
	})

	var capture *audio.Capture
	if d.cfg.Role == RoleLeader {
		capture, err = audio.NewCapture(audio.CaptureConfig{
			Backend:    d.cfg.Audio.Backend,
			Device:     d.cfg.Audio.Device,
			SampleRate: d.cfg.Audio.SampleRate,
			SampleSize: d.cfg.Audio.SampleSize,
		})
		if err != nil {
			// The leader still runs its idle animation without audio.
			d.logger.Warn("audio capture unavailable", "error", err)
			capture = nil
		} else {
			errg.Go(func() error {
				return capture.Run(ctx)
			})
		}
	}

	if d.cfg.Monitor.Listen != "" {
		mon := monitor.New(d.Daemon, time.Second, d.logger)
		errg.Go(func() error {
			return mon.Run(ctx, d.cfg.Monitor.Listen)
		})
	}

	outPackets := make(chan ledserial.OutgoingPacket)
	errg.Go(func() error {
		return d.mainLoop(ctx, outPackets, capture)
	})
	errg.Go(func() error {
		return d.readPackets(ctx, outPackets)
	})

	return errg.Wait()
}

func (d *internalDaemon) mainLoop(ctx context.Context, packets <-chan ledserial.OutgoingPacket, capture *audio.Capture) error {
	d.logger.Debug("waiting 100ms for the read loop to start...")
	time.Sleep(100 * time.Millisecond)

	d.logger.Debug("sending initialize packet")
	if !d.writePacket(ledserial.InitializePacket{
		NumLEDs:    uint16(d.cfg.Pixels),
		Brightness: d.cfg.BrightnessByte(),
	}) {
		return errors.New("failed to initialize ring")
	}

	d.logger.Info("starting sync role",
		"name", d.cfg.Name,
		"role", d.cfg.Role)

	if d.cfg.Role == RoleLeader {
		return d.leaderLoop(ctx, packets, capture)
	}
	return d.followerLoop(ctx, packets)
}

func (d *internalDaemon) leaderLoop(ctx context.Context, packets <-chan ledserial.OutgoingPacket, capture *audio.Capture) error {
	tuning, err := d.cfg.Sync.Tuning()
	if err != nil {
		return err
	}

	leader, err := dance.NewLeader(d.radio, tuning, d.logger)
	if err != nil {
		return errors.Wrap(err, "failed to create leader session")
	}
	defer leader.Stop()

	leds := led.NewLEDs(d.cfg.Pixels)
	vis := ledvis.NewRing(d.cfg.Pixels)
	analyzer := audio.NewAnalyzer(d.cfg.Audio.SampleRate, d.cfg.Audio.SampleSize, d.cfg.Pixels)
	samples := make([]float64, d.cfg.Audio.SampleSize)

	frameTicker := time.NewTicker(d.renderInterval())
	defer frameTicker.Stop()
	advTicker := time.NewTicker(tuning.AdvertisePeriod)
	defer advTicker.Stop()

	// The controller acks every packet; frames are only sent when the
	// previous one is acked so the UART never backs up.
	awaitAck := true
	var ranked []illoadv.PixelSample

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case p := <-packets:
			acked, err := d.handlePacket(p)
			if err != nil {
				return err
			}
			if acked {
				awaitAck = false
			}

		case now := <-frameTicker.C:
			feats := audio.Features{Silent: true}
			if capture != nil {
				n := capture.Read(samples)
				feats = analyzer.Analyze(samples[:n])
			}
			ranked = vis.Frame(now, feats, leds)

			if !awaitAck && d.writePacket(ledserial.FramePacket{Pix: leds.AsPixels()}) {
				awaitAck = true
			}
			d.setStatus(leaderSnapshot(leader, now))

		case now := <-advTicker.C:
			leader.Tick(now, ranked)
		}
	}
}

func (d *internalDaemon) followerLoop(ctx context.Context, packets <-chan ledserial.OutgoingPacket) error {
	follower, err := dance.NewFollower(d.radio, d.cfg.FollowerConfig(), d.logger)
	if err != nil {
		return errors.Wrap(err, "failed to create follower session")
	}

	leds := led.NewLEDs(d.cfg.Pixels)

	ticker := time.NewTicker(d.renderInterval())
	defer ticker.Stop()

	awaitAck := true
	dirty := false

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case p := <-packets:
			acked, err := d.handlePacket(p)
			if err != nil {
				return err
			}
			if acked {
				awaitAck = false
			}

		case now := <-ticker.C:
			changed, err := follower.Tick(ctx, now, leds)
			if err != nil {
				// Scan failures degrade to stale visuals; keep trying.
				d.logger.Warn("scan burst failed", "error", err)
				continue
			}

			dirty = dirty || changed
			if dirty && !awaitAck && d.writePacket(ledserial.FramePacket{Pix: leds.AsPixels()}) {
				awaitAck = true
				dirty = false
			}
			d.setStatus(followerSnapshot(follower, now))
		}
	}
}

// renderInterval returns the render cadence, bounded below so a zero
// configuration cannot spin the loop.
func (d *internalDaemon) renderInterval() time.Duration {
	interval := time.Duration(d.cfg.Sync.MinRenderInterval)
	if interval <= 0 {
		interval = 15 * time.Millisecond
	}
	return interval
}

func (d *internalDaemon) handlePacket(p ledserial.OutgoingPacket) (acked bool, err error) {
	d.logger.Debug("handling packet", "type", p.Type())

	switch p := p.(type) {
	case ledserial.AckPacket:
		d.logger.Debug(
			"received ack packet from controller",
			"acked_for", p.IncomingPacketType)
		return true, nil

	case ledserial.ErrorPacket:
		d.logger.Warn(
			"received error packet from controller",
			"message", p.Message)
		return false, nil

	case ledserial.PanicPacket:
		d.logger.Error("controller unrecoverably panicked")
		return false, errors.New("controller panicked")

	case ledserial.LogPacket:
		d.logger.Info(
			"received log packet from controller",
			"message", p.Message)
		return false, nil

	default:
		return false, fmt.Errorf("received unknown packet from controller: %s", p.Type())
	}
}

func (d *internalDaemon) readPackets(ctx context.Context, dst chan<- ledserial.OutgoingPacket) error {
	if err := d.port.SetReadTimeout(serial.NoTimeout); err != nil {
		return errors.Wrap(err, "failed to reset read timeout")
	}

	for ctx.Err() == nil {
		p, err := ledserial.ReadOutgoingPacket(d.port, ledserial.ReadContext{
			NumLEDs: uint16(d.cfg.Pixels),
		})
		if err != nil {
			// A short read indicates a timeout. This is expected.
			// Ignore the error and try again.
			if errors.Is(err, io.EOF) {
				continue
			}
			return errors.Wrap(err, "failed to read packet")
		}

		d.logger.Debug(
			"received packet from controller",
			"type", p.Type())

		select {
		case <-ctx.Done():
			return ctx.Err()
		case dst <- p:
			// ok
		}
	}

	return ctx.Err()
}

func (d *internalDaemon) writePacket(p ledserial.IncomingPacket) bool {
	d.logger.Debug(
		"writing packet",
		"type", p.Type())

	if err := ledserial.WriteIncomingPacket(d.port, p); err != nil {
		d.logger.Warn(
			"failed to write packet",
			"packet", p.Type(),
			"error", err)
		return false
	}

	return true
}

func leaderSnapshot(l *dance.Leader, now time.Time) monitor.Snapshot {
	health := l.Health()
	return monitor.Snapshot{
		Role:            string(RoleLeader),
		Sequence:        l.Sequence(),
		Timestamp:       now.Unix(),
		Advertised:      health.Advertised,
		Skipped:         health.Skipped,
		LeaderAvailable: true,
	}
}

func followerSnapshot(f *dance.Follower, now time.Time) monitor.Snapshot {
	health := f.Health()
	snap := monitor.Snapshot{
		Role:            string(RoleFollower),
		State:           f.State().String(),
		Sequence:        f.LastFrame().Sequence,
		Timestamp:       now.Unix(),
		Accepted:        health.Accepted,
		Duplicates:      health.Duplicates,
		Stale:           health.Stale,
		Malformed:       health.Malformed,
		LeaderAvailable: f.State() == dance.Synced,
	}
	if !f.LastSeen().IsZero() {
		snap.LastFrameAgeMS = now.Sub(f.LastSeen()).Milliseconds()
	}
	return snap
}
