// Package config resolves, parses, validates, and defaults pinbridge configuration.
package config

import (
	"net"
	"strconv"
	"time"
)

// Bridge backends.
const (
	BackendSerial = "serial"
	BackendGRPC   = "grpc"
	BackendGPIO   = "gpio"
	BackendSim    = "sim"
)

// Config is the fully materialized runtime configuration used by pinbridge.
type Config struct {
	Listen  ListenConfig
	Bridge  BridgeConfig
	Cache   CacheConfig
	Metrics MetricsConfig
	MDNS    MDNSConfig
	Log     LogConfig
}

// ListenConfig controls the client-facing TCP listener.
type ListenConfig struct {
	Host            string
	Port            int
	IdleTimeoutMS   int
	MaxConnections  int
	MaxLineBytes    int
	ShutdownGraceMS int
}

// Addr returns host:port.
func (l ListenConfig) Addr() string {
	return net.JoinHostPort(l.Host, strconv.Itoa(l.Port))
}

// DialAddr returns an address a local client can connect to. Wildcard hosts
// map to loopback.
func (l ListenConfig) DialAddr() string {
	host := l.Host
	switch host {
	case "", "0.0.0.0":
		host = "127.0.0.1"
	case "::":
		host = "::1"
	}
	return net.JoinHostPort(host, strconv.Itoa(l.Port))
}

func (l ListenConfig) IdleTimeout() time.Duration {
	return time.Duration(l.IdleTimeoutMS) * time.Millisecond
}

func (l ListenConfig) ShutdownGrace() time.Duration {
	return time.Duration(l.ShutdownGraceMS) * time.Millisecond
}

// BridgeConfig selects and shapes the hardware bridge backend.
type BridgeConfig struct {
	Backend       string
	CallTimeoutMS int
	Exclusive     bool
	RatePerSec    float64
	Burst         int
	Breaker       BreakerConfig
	Serial        SerialConfig
	GRPC          GRPCConfig
	GPIO          GPIOConfig
}

func (b BridgeConfig) CallTimeout() time.Duration {
	return time.Duration(b.CallTimeoutMS) * time.Millisecond
}

// BreakerConfig controls the circuit breaker around bridge calls.
type BreakerConfig struct {
	Enable        bool
	MaxFailures   int
	OpenTimeoutMS int
}

// SerialConfig addresses an MCU bridge on a UART.
type SerialConfig struct {
	Device        string
	Baud          int
	ReadTimeoutMS int
}

// GRPCConfig addresses a remote bridge service and, with ServeAddr, exports
// the local bridge to other hosts.
type GRPCConfig struct {
	Endpoint      string
	DialTimeoutMS int
	ServeAddr     string
}

// GPIOConfig lists the host lines driven by set_all_io.
type GPIOConfig struct {
	Pins []string
}

// CacheConfig controls when set_io updates the pin state cache.
type CacheConfig struct {
	Policy string
}

// MetricsConfig controls the Prometheus endpoint. An empty Addr disables it.
type MetricsConfig struct {
	Addr string
}

// MDNSConfig controls service advertisement.
type MDNSConfig struct {
	Enable   bool
	Instance string
}

// LogConfig controls the runtime logger.
type LogConfig struct {
	Level  string
	Stderr bool
}

// Warning is a non-fatal parse/validation message.
type Warning struct {
	Line    int
	Message string
}
