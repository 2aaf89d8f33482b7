package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/tailscale/hujson"
)

type jsoncConfig struct {
	Listen  *jsoncListen  `json:"listen"`
	Bridge  *jsoncBridge  `json:"bridge"`
	Cache   *jsoncCache   `json:"cache"`
	Metrics *jsoncMetrics `json:"metrics"`
	MDNS    *jsoncMDNS    `json:"mdns"`
	Log     *jsoncLog     `json:"log"`
}

type jsoncListen struct {
	Host            *string `json:"host"`
	Port            *int    `json:"port"`
	IdleTimeoutMS   *int    `json:"idle_timeout_ms"`
	MaxConnections  *int    `json:"max_connections"`
	MaxLineBytes    *int    `json:"max_line_bytes"`
	ShutdownGraceMS *int    `json:"shutdown_grace_ms"`
}

type jsoncBridge struct {
	Backend       *string       `json:"backend"`
	CallTimeoutMS *int          `json:"call_timeout_ms"`
	Exclusive     *bool         `json:"exclusive"`
	RatePerSec    *float64      `json:"rate_per_sec"`
	Burst         *int          `json:"burst"`
	Breaker       *jsoncBreaker `json:"breaker"`
	Serial        *jsoncSerial  `json:"serial"`
	GRPC          *jsoncGRPC    `json:"grpc"`
	GPIO          *jsoncGPIO    `json:"gpio"`
}

type jsoncBreaker struct {
	Enable        *bool `json:"enable"`
	MaxFailures   *int  `json:"max_failures"`
	OpenTimeoutMS *int  `json:"open_timeout_ms"`
}

type jsoncSerial struct {
	Device        *string `json:"device"`
	Baud          *int    `json:"baud"`
	ReadTimeoutMS *int    `json:"read_timeout_ms"`
}

type jsoncGRPC struct {
	Endpoint      *string `json:"endpoint"`
	DialTimeoutMS *int    `json:"dial_timeout_ms"`
	ServeAddr     *string `json:"serve_addr"`
}

type jsoncGPIO struct {
	Pins *jsoncStringList `json:"pins"`
}

type jsoncCache struct {
	Policy *string `json:"policy"`
}

type jsoncMetrics struct {
	Addr *string `json:"addr"`
}

type jsoncMDNS struct {
	Enable   *bool   `json:"enable"`
	Instance *string `json:"instance"`
}

type jsoncLog struct {
	Level  *string `json:"level"`
	Stderr *bool   `json:"stderr"`
}

type jsoncStringList []string

func (l *jsoncStringList) UnmarshalJSON(data []byte) error {
	var list []string
	if err := json.Unmarshal(data, &list); err == nil {
		*l = list
		return nil
	}

	var single string
	if err := json.Unmarshal(data, &single); err == nil {
		parts := strings.Split(single, ",")
		out := make([]string, 0, len(parts))
		for _, part := range parts {
			part = strings.TrimSpace(part)
			if part == "" {
				continue
			}
			out = append(out, part)
		}
		*l = out
		return nil
	}

	return fmt.Errorf("expected string array or comma-delimited string")
}

func parseJSONC(content string, base Config) (Config, []Warning, error) {
	normalized, err := normalizeJSONC(content)
	if err != nil {
		return Config{}, nil, err
	}

	decoder := json.NewDecoder(strings.NewReader(normalized))
	decoder.DisallowUnknownFields()

	var payload jsoncConfig
	if err := decoder.Decode(&payload); err != nil {
		return Config{}, nil, wrapJSONDecodeError(normalized, err)
	}

	cfg := base
	warnings, err := payload.applyTo(&cfg)
	if err != nil {
		return Config{}, nil, err
	}

	validatedWarnings, err := Validate(cfg)
	if err != nil {
		return Config{}, nil, err
	}
	warnings = append(warnings, validatedWarnings...)
	return cfg, warnings, nil
}

func (payload jsoncConfig) applyTo(cfg *Config) ([]Warning, error) {
	warnings := make([]Warning, 0)

	if l := payload.Listen; l != nil {
		setString(&cfg.Listen.Host, l.Host)
		setInt(&cfg.Listen.Port, l.Port)
		setInt(&cfg.Listen.IdleTimeoutMS, l.IdleTimeoutMS)
		setInt(&cfg.Listen.MaxConnections, l.MaxConnections)
		setInt(&cfg.Listen.MaxLineBytes, l.MaxLineBytes)
		setInt(&cfg.Listen.ShutdownGraceMS, l.ShutdownGraceMS)
	}

	if b := payload.Bridge; b != nil {
		if b.Backend != nil {
			cfg.Bridge.Backend = strings.ToLower(strings.TrimSpace(*b.Backend))
		}
		setInt(&cfg.Bridge.CallTimeoutMS, b.CallTimeoutMS)
		setBool(&cfg.Bridge.Exclusive, b.Exclusive)
		if b.RatePerSec != nil {
			cfg.Bridge.RatePerSec = *b.RatePerSec
		}
		setInt(&cfg.Bridge.Burst, b.Burst)

		if br := b.Breaker; br != nil {
			setBool(&cfg.Bridge.Breaker.Enable, br.Enable)
			setInt(&cfg.Bridge.Breaker.MaxFailures, br.MaxFailures)
			setInt(&cfg.Bridge.Breaker.OpenTimeoutMS, br.OpenTimeoutMS)
		}
		if s := b.Serial; s != nil {
			setString(&cfg.Bridge.Serial.Device, s.Device)
			setInt(&cfg.Bridge.Serial.Baud, s.Baud)
			setInt(&cfg.Bridge.Serial.ReadTimeoutMS, s.ReadTimeoutMS)
		}
		if g := b.GRPC; g != nil {
			setString(&cfg.Bridge.GRPC.Endpoint, g.Endpoint)
			setInt(&cfg.Bridge.GRPC.DialTimeoutMS, g.DialTimeoutMS)
			setString(&cfg.Bridge.GRPC.ServeAddr, g.ServeAddr)
		}
		if g := b.GPIO; g != nil && g.Pins != nil {
			pins := make([]string, 0, len(*g.Pins))
			seen := make(map[string]bool, len(*g.Pins))
			for _, pin := range *g.Pins {
				pin = strings.TrimSpace(pin)
				if pin == "" {
					continue
				}
				if seen[pin] {
					warnings = append(warnings, Warning{Message: fmt.Sprintf("bridge.gpio.pins lists %q more than once", pin)})
					continue
				}
				seen[pin] = true
				pins = append(pins, pin)
			}
			cfg.Bridge.GPIO.Pins = pins
		}
	}

	if payload.Cache != nil && payload.Cache.Policy != nil {
		cfg.Cache.Policy = strings.ToLower(strings.TrimSpace(*payload.Cache.Policy))
	}

	if payload.Metrics != nil {
		setString(&cfg.Metrics.Addr, payload.Metrics.Addr)
	}

	if m := payload.MDNS; m != nil {
		setBool(&cfg.MDNS.Enable, m.Enable)
		setString(&cfg.MDNS.Instance, m.Instance)
	}

	if l := payload.Log; l != nil {
		if l.Level != nil {
			cfg.Log.Level = strings.ToLower(strings.TrimSpace(*l.Level))
		}
		setBool(&cfg.Log.Stderr, l.Stderr)
	}

	return warnings, nil
}

func setString(dst *string, src *string) {
	if src != nil {
		*dst = strings.TrimSpace(*src)
	}
}

func setInt(dst *int, src *int) {
	if src != nil {
		*dst = *src
	}
}

func setBool(dst *bool, src *bool) {
	if src != nil {
		*dst = *src
	}
}

// normalizeJSONC turns comments and trailing commas into whitespace so byte
// offsets in decode errors still point into the original file.
func normalizeJSONC(content string) (string, error) {
	standard, err := hujson.Standardize([]byte(content))
	if err != nil {
		return "", fmt.Errorf("invalid JSONC: %w", err)
	}
	return string(standard), nil
}

func wrapJSONDecodeError(content string, err error) error {
	var syntaxErr *json.SyntaxError
	if errors.As(err, &syntaxErr) {
		line, col := offsetToLineCol(content, syntaxErr.Offset)
		return fmt.Errorf("line %d column %d: %w", line, col, err)
	}

	var typeErr *json.UnmarshalTypeError
	if errors.As(err, &typeErr) {
		line, col := offsetToLineCol(content, typeErr.Offset)
		return fmt.Errorf("line %d column %d: %w", line, col, err)
	}

	return err
}

func offsetToLineCol(content string, offset int64) (int, int) {
	if offset <= 0 {
		return 1, 1
	}

	limit := int(offset)
	if limit > len(content) {
		limit = len(content)
	}

	line := 1
	col := 1
	for i := 0; i < limit-1; i++ {
		if content[i] == '\n' {
			line++
			col = 1
			continue
		}
		col++
	}
	return line, col
}
