// Package backend opens the configured hardware bridge and wraps it with the
// call policies every backend shares.
package backend

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/rbright/pinbridge/internal/bridge"
	"github.com/rbright/pinbridge/internal/bridge/gpiobridge"
	"github.com/rbright/pinbridge/internal/bridge/grpcbridge"
	"github.com/rbright/pinbridge/internal/bridge/serialbridge"
	"github.com/rbright/pinbridge/internal/config"
)

// Options carries the runtime collaborators of an opened backend.
type Options struct {
	Logger   *slog.Logger
	Observer bridge.Observer
	// Sim, when set, is used for the sim backend instead of a fresh simulator.
	Sim *bridge.Sim
}

// Backend is an opened bridge. Client applies the configured policies.
type Backend struct {
	Name   string
	Client bridge.Client
	// Warnings are non-fatal findings from opening the device.
	Warnings []string

	close func() error
}

// Close releases the device. It is safe on a nil Backend.
func (b *Backend) Close() error {
	if b == nil || b.close == nil {
		return nil
	}
	return b.close()
}

// Open connects to the backend named by cfg.Backend.
func Open(ctx context.Context, cfg config.BridgeConfig, opts Options) (*Backend, error) {
	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	b := &Backend{Name: cfg.Backend}
	var raw bridge.Client
	switch cfg.Backend {
	case config.BackendSerial:
		c, err := serialbridge.Open(serialbridge.PortConfig{
			Device:      cfg.Serial.Device,
			Baud:        cfg.Serial.Baud,
			ReadTimeout: time.Duration(cfg.Serial.ReadTimeoutMS) * time.Millisecond,
		}, logger)
		if err != nil {
			return nil, fmt.Errorf("open serial bridge: %w", err)
		}
		raw, b.close = c, c.Close
	case config.BackendGRPC:
		c, err := grpcbridge.Dial(ctx, grpcbridge.Config{
			Endpoint:    cfg.GRPC.Endpoint,
			DialTimeout: time.Duration(cfg.GRPC.DialTimeoutMS) * time.Millisecond,
		})
		if err != nil {
			return nil, fmt.Errorf("dial grpc bridge: %w", err)
		}
		raw, b.close = c, c.Close
	case config.BackendGPIO:
		g, err := gpiobridge.Open(cfg.GPIO.Pins)
		if err != nil {
			return nil, fmt.Errorf("open gpio bridge: %w", err)
		}
		for _, name := range g.Unresolved() {
			b.Warnings = append(b.Warnings, fmt.Sprintf("gpio pin %q not found on this host", name))
		}
		raw = g
	case config.BackendSim:
		if opts.Sim != nil {
			raw = opts.Sim
		} else {
			raw = bridge.NewSim()
		}
	default:
		return nil, fmt.Errorf("unknown bridge backend %q", cfg.Backend)
	}

	b.Client = Wrap(raw, cfg, logger, opts.Observer)
	logger.Info("bridge opened", "backend", cfg.Backend, "warnings", len(b.Warnings))
	return b, nil
}

// Wrap layers the configured call policies around raw. The per-call timeout
// is innermost so it bounds only device time, and observation is outermost so
// recorded durations include queueing behind other callers.
func Wrap(raw bridge.Client, cfg config.BridgeConfig, logger *slog.Logger, obs bridge.Observer) bridge.Client {
	c := bridge.WithTimeout(raw, cfg.CallTimeout())
	if cfg.Breaker.Enable {
		c = bridge.NewBreaker(cfg.Backend, c, bridge.BreakerConfig{
			MaxFailures: uint32(cfg.Breaker.MaxFailures),
			Timeout:     time.Duration(cfg.Breaker.OpenTimeoutMS) * time.Millisecond,
		}, logger)
	}
	c = bridge.Paced(c, cfg.RatePerSec, cfg.Burst)
	if cfg.Exclusive {
		c = bridge.Exclusive(c)
	}
	return bridge.Observed(c, obs)
}
