package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"

	"github.com/spf13/pflag"
	"libdb.so/ufosync"
	"libdb.so/ufosync/internal/bleradio"

	_ "github.com/noriah/catnip/input/parec"
	_ "github.com/noriah/catnip/input/pipewire"
)

var (
	config  = "ufosync.toml"
	role    = ""
	verbose = false
)

func init() {
	pflag.StringVarP(&config, "config", "c", config, "configuration file")
	pflag.StringVarP(&role, "role", "r", role, "override the configured role (leader or follower)")
	pflag.BoolVarP(&verbose, "verbose", "v", verbose, "verbose output")
}

func main() {
	pflag.Parse()

	logLevel := slog.LevelWarn
	if verbose {
		logLevel = slog.LevelDebug
	}

	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: logLevel,
	}))
	slog.SetDefault(logger)

	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := readConfig()
	if err != nil {
		return err
	}

	if role != "" {
		cfg.Role = ufosync.Role(role)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	tuning, err := cfg.Sync.Tuning()
	if err != nil {
		return fmt.Errorf("invalid sync tuning: %w", err)
	}

	radio, err := bleradio.New(tuning.AdvertisePeriod)
	if err != nil {
		return fmt.Errorf("failed to bring up BLE radio: %w", err)
	}
	defer radio.StopAdvertising()

	d, err := ufosync.NewDaemon(cfg, radio, slog.Default())
	if err != nil {
		return fmt.Errorf("failed to create daemon: %w", err)
	}

	if err := d.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		return fmt.Errorf("daemon failed: %w", err)
	}

	return nil
}

func readConfig() (*ufosync.Config, error) {
	f, err := os.Open(config)
	if err != nil {
		return nil, fmt.Errorf("failed to open config file: %w", err)
	}
	defer f.Close()

	return ufosync.ParseConfig(f)
}
