package config

// Default returns the canonical runtime configuration used when no file is present.
func Default() Config {
	return Config{
		Listen: ListenConfig{
			Host:            "0.0.0.0",
			Port:            6000,
			IdleTimeoutMS:   5000,
			MaxConnections:  64,
			MaxLineBytes:    64 * 1024,
			ShutdownGraceMS: 2000,
		},
		Bridge: BridgeConfig{
			Backend:       BackendSerial,
			CallTimeoutMS: 2000,
			Exclusive:     true,
			RatePerSec:    0,
			Burst:         1,
			Breaker: BreakerConfig{
				Enable:        true,
				MaxFailures:   5,
				OpenTimeoutMS: 30000,
			},
			Serial: SerialConfig{
				Device:        "/dev/ttyHS1",
				Baud:          115200,
				ReadTimeoutMS: 100,
			},
			GRPC: GRPCConfig{
				Endpoint:      "127.0.0.1:50051",
				DialTimeoutMS: 3000,
			},
		},
		Cache:   CacheConfig{Policy: "confirmed"},
		Metrics: MetricsConfig{},
		MDNS:    MDNSConfig{Enable: false, Instance: "pinbridge"},
		Log:     LogConfig{Level: "info"},
	}
}
