package ufosync

import (
	"encoding"
	"io"
	"time"

	"github.com/pelletier/go-toml"
	"github.com/pkg/errors"
	"libdb.so/ufosync/internal/dance"
)

// Role selects which side of the sync protocol the device runs.
type Role string

const (
	// RoleLeader analyzes audio and broadcasts visual state.
	RoleLeader Role = "leader"
	// RoleFollower mirrors a leader's visual state.
	RoleFollower Role = "follower"
)

// Config is the configuration for the ufosync daemon.
type Config struct {
	// Name is the device identifier used in logs.
	Name string `toml:"name"`
	// Role is the sync role, "leader" or "follower".
	Role Role `toml:"role"`
	// Device is the serial device of the ring controller.
	// This is usually /dev/ttyUSB0 or /dev/ttyACM0.
	Device string `toml:"device"`
	// Baud is the baud rate for the serial connection.
	Baud int `toml:"baud"`
	// Pixels is the number of LEDs on the ring.
	Pixels int `toml:"pixels"`
	// Brightness is the global ring brightness, 0.0-1.0.
	Brightness float64 `toml:"brightness"`

	Sync    SyncConfig    `toml:"sync"`
	Audio   AudioConfig   `toml:"audio"`
	Monitor MonitorConfig `toml:"monitor"`
}

// SyncConfig tunes the synchronization protocol.
type SyncConfig struct {
	// Preset is a named responsiveness configuration: "fast", "balanced"
	// or "smooth".
	Preset string `toml:"preset"`
	// AdvertisePeriod overrides the preset's leader broadcast period.
	AdvertisePeriod TOMLDuration `toml:"advertise_period,omitempty"`
	// Smoothing overrides the preset's follower smoothing factor.
	Smoothing float64 `toml:"smoothing,omitempty"`
	// ScanBurst is the follower's active-scan window.
	ScanBurst TOMLDuration `toml:"scan_burst"`
	// LossTimeout is how long a follower waits before declaring the
	// leader lost.
	LossTimeout TOMLDuration `toml:"loss_timeout"`
	// MinRenderInterval bounds the render rate.
	MinRenderInterval TOMLDuration `toml:"min_render_interval"`
}

// AudioConfig selects the leader's audio input.
type AudioConfig struct {
	// Backend is the capture backend, e.g. "pipewire" or "parec".
	Backend string `toml:"backend"`
	// Device is the capture device. Empty picks the default.
	Device string `toml:"device"`
	// SampleRate is the capture rate in Hz.
	SampleRate float64 `toml:"sample_rate"`
	// SampleSize is the number of samples per analysis frame.
	SampleSize int `toml:"sample_size"`
}

// MonitorConfig configures the sync-health status server.
type MonitorConfig struct {
	// Listen is the HTTP listen address. Empty disables the monitor.
	Listen string `toml:"listen"`
}

// DefaultConfig returns the configuration the daemon starts from before the
// config file is applied.
func DefaultConfig() *Config {
	return &Config{
		Name:       "ILLO_01",
		Role:       RoleFollower,
		Device:     "/dev/ttyACM0",
		Baud:       115200,
		Pixels:     10,
		Brightness: 0.20,
		Sync: SyncConfig{
			Preset:            string(dance.PresetBalanced),
			ScanBurst:         TOMLDuration(200 * time.Millisecond),
			LossTimeout:       TOMLDuration(3 * time.Second),
			MinRenderInterval: TOMLDuration(15 * time.Millisecond),
		},
		Audio: AudioConfig{
			Backend:    "pipewire",
			SampleRate: 44100,
			SampleSize: 1024,
		},
	}
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	switch c.Role {
	case RoleLeader, RoleFollower:
	default:
		return errors.Errorf("unknown role %q", c.Role)
	}
	if c.Device == "" {
		return errors.New("no serial device configured")
	}
	if c.Pixels <= 0 {
		return errors.New("no LEDs configured")
	}
	if c.Brightness < 0 || c.Brightness > 1 {
		return errors.Errorf("brightness %.2f outside 0.0-1.0", c.Brightness)
	}
	if c.Role == RoleLeader && c.Audio.SampleSize <= 0 {
		return errors.New("audio sample size must be positive")
	}
	if _, err := c.Sync.Tuning(); err != nil {
		return err
	}
	return c.FollowerConfig().Validate()
}

// Tuning resolves the preset and applies any explicit overrides.
func (c SyncConfig) Tuning() (dance.Tuning, error) {
	preset := dance.PresetBalanced
	if c.Preset != "" {
		preset = dance.Preset(c.Preset)
	}

	tuning, err := dance.TuningFor(preset)
	if err != nil {
		return dance.Tuning{}, err
	}
	if c.AdvertisePeriod != 0 {
		tuning.AdvertisePeriod = time.Duration(c.AdvertisePeriod)
	}
	if c.Smoothing != 0 {
		tuning.SmoothAlpha = c.Smoothing
	}
	return tuning, tuning.Validate()
}

// FollowerConfig builds the follower session configuration.
func (c *Config) FollowerConfig() dance.FollowerConfig {
	tuning, _ := c.Sync.Tuning()
	return dance.FollowerConfig{
		Tuning:            tuning,
		NumPixels:         c.Pixels,
		ScanBurst:         time.Duration(c.Sync.ScanBurst),
		LossTimeout:       time.Duration(c.Sync.LossTimeout),
		MinRenderInterval: time.Duration(c.Sync.MinRenderInterval),
	}
}

// BrightnessByte converts the configured brightness to the wire scale.
func (c *Config) BrightnessByte() uint8 {
	return uint8(c.Brightness * 255)
}

// TOMLDuration is a duration that can be parsed from TOML.
type TOMLDuration time.Duration

var (
	_ encoding.TextUnmarshaler = (*TOMLDuration)(nil)
	_ encoding.TextMarshaler   = (*TOMLDuration)(nil)
)

func (d *TOMLDuration) UnmarshalText(text []byte) error {
	duration, err := time.ParseDuration(string(text))
	if err != nil {
		return err
	}
	*d = TOMLDuration(duration)
	return nil
}

func (d TOMLDuration) MarshalText() ([]byte, error) {
	return []byte(time.Duration(d).String()), nil
}

// ParseConfig parses a configuration from a reader on top of the defaults.
func ParseConfig(r io.Reader) (*Config, error) {
	config := DefaultConfig()
	if err := toml.NewDecoder(r).Decode(config); err != nil {
		return nil, err
	}
	return config, nil
}
