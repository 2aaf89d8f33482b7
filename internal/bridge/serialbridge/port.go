package serialbridge

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/tarm/serial"
)

// PortConfig holds serial port settings.
type PortConfig struct {
	// Device path (e.g. "/dev/ttyHS1", "/dev/ttyACM0").
	Device string
	Baud   int
	// ReadTimeout must be positive so the reader can notice Close.
	ReadTimeout time.Duration
}

// Open opens the configured serial device and starts a client on it.
func Open(cfg PortConfig, logger *slog.Logger) (*Client, error) {
	if strings.TrimSpace(cfg.Device) == "" {
		return nil, errors.New("serial device is empty")
	}
	if cfg.ReadTimeout <= 0 {
		return nil, errors.New("serial read timeout must be > 0")
	}

	port, err := serial.OpenPort(&serial.Config{
		Name:        cfg.Device,
		Baud:        cfg.Baud,
		ReadTimeout: cfg.ReadTimeout,
	})
	if err != nil {
		return nil, fmt.Errorf("open serial port %s: %w", cfg.Device, err)
	}

	return New(port, Options{IdleEOF: true, Logger: logger}), nil
}
