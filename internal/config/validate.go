package config

import (
	"fmt"
	"net"
	"strings"
)

// Validate enforces config invariants and returns non-fatal warnings.
func Validate(cfg Config) ([]Warning, error) {
	warnings := make([]Warning, 0)

	if strings.TrimSpace(cfg.Listen.Host) == "" {
		return nil, fmt.Errorf("listen.host must not be empty")
	}
	if cfg.Listen.Port <= 0 || cfg.Listen.Port > 65535 {
		return nil, fmt.Errorf("listen.port must be between 1 and 65535")
	}
	if cfg.Listen.IdleTimeoutMS <= 0 {
		return nil, fmt.Errorf("listen.idle_timeout_ms must be > 0")
	}
	if cfg.Listen.MaxConnections <= 0 {
		return nil, fmt.Errorf("listen.max_connections must be > 0")
	}
	if cfg.Listen.MaxLineBytes <= 0 {
		return nil, fmt.Errorf("listen.max_line_bytes must be > 0")
	}
	if cfg.Listen.ShutdownGraceMS < 0 {
		return nil, fmt.Errorf("listen.shutdown_grace_ms must be >= 0")
	}

	if err := validateBridge(cfg.Bridge, &warnings); err != nil {
		return nil, err
	}

	switch cfg.Cache.Policy {
	case "confirmed", "intent":
	default:
		return nil, fmt.Errorf("cache.policy must be one of: confirmed, intent")
	}

	if addr := strings.TrimSpace(cfg.Metrics.Addr); addr != "" {
		if _, _, err := net.SplitHostPort(addr); err != nil {
			return nil, fmt.Errorf("metrics.addr must be host:port: %w", err)
		}
	}

	if cfg.MDNS.Enable && strings.TrimSpace(cfg.MDNS.Instance) == "" {
		return nil, fmt.Errorf("mdns.instance must not be empty when mdns.enable=true")
	}

	switch cfg.Log.Level {
	case "debug", "info", "warn", "error":
	default:
		return nil, fmt.Errorf("log.level must be one of: debug, info, warn, error")
	}

	return warnings, nil
}

func validateBridge(b BridgeConfig, warnings *[]Warning) error {
	switch b.Backend {
	case BackendSerial, BackendGRPC, BackendGPIO, BackendSim:
	case "":
		return fmt.Errorf("bridge.backend must not be empty")
	default:
		return fmt.Errorf("bridge.backend must be one of: serial, grpc, gpio, sim")
	}

	if b.CallTimeoutMS < 0 {
		return fmt.Errorf("bridge.call_timeout_ms must be >= 0")
	}
	if b.RatePerSec < 0 {
		return fmt.Errorf("bridge.rate_per_sec must be >= 0")
	}
	if b.RatePerSec > 0 && b.Burst <= 0 {
		return fmt.Errorf("bridge.burst must be > 0 when bridge.rate_per_sec is set")
	}
	if b.Breaker.Enable {
		if b.Breaker.MaxFailures <= 0 {
			return fmt.Errorf("bridge.breaker.max_failures must be > 0")
		}
		if b.Breaker.OpenTimeoutMS <= 0 {
			return fmt.Errorf("bridge.breaker.open_timeout_ms must be > 0")
		}
	}
	if !b.Exclusive && b.Backend == BackendSerial {
		*warnings = append(*warnings, Warning{Message: "bridge.exclusive=false with the serial backend interleaves requests on one UART"})
	}

	switch b.Backend {
	case BackendSerial:
		if strings.TrimSpace(b.Serial.Device) == "" {
			return fmt.Errorf("bridge.serial.device must not be empty when bridge.backend=serial")
		}
		if b.Serial.Baud <= 0 {
			return fmt.Errorf("bridge.serial.baud must be > 0")
		}
		if b.Serial.ReadTimeoutMS <= 0 {
			return fmt.Errorf("bridge.serial.read_timeout_ms must be > 0")
		}
	case BackendGRPC:
		if strings.TrimSpace(b.GRPC.Endpoint) == "" {
			return fmt.Errorf("bridge.grpc.endpoint must not be empty when bridge.backend=grpc")
		}
		if b.GRPC.DialTimeoutMS <= 0 {
			return fmt.Errorf("bridge.grpc.dial_timeout_ms must be > 0")
		}
		if b.GRPC.ServeAddr != "" {
			return fmt.Errorf("bridge.grpc.serve_addr cannot re-export a grpc backend")
		}
	case BackendGPIO:
		if len(b.GPIO.Pins) == 0 {
			*warnings = append(*warnings, Warning{Message: "bridge.gpio.pins is empty; set_all_io will fail"})
		}
	}

	if addr := b.GRPC.ServeAddr; addr != "" {
		if _, _, err := net.SplitHostPort(addr); err != nil {
			return fmt.Errorf("bridge.grpc.serve_addr must be host:port: %w", err)
		}
	}
	return nil
}
