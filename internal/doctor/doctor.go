// Package doctor runs readiness diagnostics for config, listeners, and the bridge backend.
package doctor

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"strings"
	"time"

	"github.com/rbright/pinbridge/internal/backend"
	"github.com/rbright/pinbridge/internal/bridge"
	"github.com/rbright/pinbridge/internal/client"
	"github.com/rbright/pinbridge/internal/command"
	"github.com/rbright/pinbridge/internal/config"
	"github.com/rbright/pinbridge/internal/protocol"
)

const checkTimeout = 2 * time.Second

// Check is one doctor assertion result.
type Check struct {
	Name    string
	Pass    bool
	Message string
}

// Report is the full doctor output contract.
type Report struct {
	Checks []Check
}

// OK returns true when all checks pass.
func (r Report) OK() bool {
	for _, check := range r.Checks {
		if !check.Pass {
			return false
		}
	}
	return true
}

// String renders the report as user-facing text output.
func (r Report) String() string {
	var b strings.Builder
	for _, check := range r.Checks {
		status := "OK"
		if !check.Pass {
			status = "FAIL"
		}
		b.WriteString(fmt.Sprintf("[%s] %s: %s\n", status, check.Name, check.Message))
	}
	return strings.TrimSuffix(b.String(), "\n")
}

// Run executes config, listener, and bridge checks for a loaded config.
func Run(ctx context.Context, loaded config.Loaded, logger *slog.Logger) Report {
	cfg := loaded.Config
	checks := []Check{checkConfig(loaded)}

	served := false
	listen := checkBindable("listen", cfg.Listen.Addr())
	if !listen.Pass {
		// The port may be held by a running pinbridge.
		if answersProtocol(ctx, cfg.Listen.DialAddr()) {
			served = true
			listen = Check{Name: "listen", Pass: true, Message: fmt.Sprintf("%s is served by a running instance", cfg.Listen.Addr())}
		}
	}
	checks = append(checks, listen)

	if served && cfg.Bridge.Backend == config.BackendSerial {
		checks = append(checks, Check{
			Name:    "bridge.serial",
			Pass:    true,
			Message: fmt.Sprintf("skipped: %s is held by the running instance", cfg.Bridge.Serial.Device),
		})
	} else {
		checks = append(checks, checkBridge(ctx, cfg.Bridge, logger))
	}

	if addr := strings.TrimSpace(cfg.Metrics.Addr); addr != "" {
		checks = append(checks, checkBindable("metrics", addr))
	}
	if addr := strings.TrimSpace(cfg.Bridge.GRPC.ServeAddr); addr != "" {
		checks = append(checks, checkBindable("grpc.serve", addr))
	}

	return Report{Checks: checks}
}

// answersProtocol reports whether addr replies to a request line with a
// well-formed response. The request lacks a pin, so a running instance
// rejects it without touching its bridge.
func answersProtocol(ctx context.Context, addr string) bool {
	_, err := client.SendRequest(ctx, addr, protocol.Request{Cmd: command.NameGetIO}, checkTimeout)
	return err == nil
}

// checkConfig reports where config came from and surfaces its warnings.
func checkConfig(loaded config.Loaded) Check {
	message := fmt.Sprintf("loaded %q", loaded.Path)
	if !loaded.Exists {
		message = fmt.Sprintf("using defaults (%q not found)", loaded.Path)
	}
	for _, w := range loaded.Warnings {
		if !loaded.Exists && strings.Contains(w.Message, "not found") {
			continue
		}
		message += "; warning: " + w.Message
	}
	return Check{Name: "config", Pass: true, Message: message}
}

// checkBindable verifies that addr can be listened on right now.
func checkBindable(name, addr string) Check {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return Check{Name: name, Pass: false, Message: fmt.Sprintf("cannot bind %s: %v", addr, err)}
	}
	_ = ln.Close()
	return Check{Name: name, Pass: true, Message: fmt.Sprintf("%s is available", addr)}
}

// checkBridge opens the configured backend and reads one pin through it.
func checkBridge(ctx context.Context, cfg config.BridgeConfig, logger *slog.Logger) Check {
	name := "bridge." + cfg.Backend

	openCtx, cancel := context.WithTimeout(ctx, checkTimeout+cfg.CallTimeout())
	defer cancel()

	b, err := backend.Open(openCtx, cfg, backend.Options{Logger: logger})
	if err != nil {
		return Check{Name: name, Pass: false, Message: err.Error()}
	}
	defer func() { _ = b.Close() }()

	message := "opened"
	if cfg.Backend == config.BackendSim {
		if _, err := b.Client.Call(openCtx, bridge.OpGetPin, bridge.DefaultSimPins[0]); err != nil {
			return Check{Name: name, Pass: false, Message: fmt.Sprintf("probe call failed: %v", err)}
		}
		message = "simulator answering"
	}
	if len(b.Warnings) > 0 {
		message += " (" + strings.Join(b.Warnings, "; ") + ")"
	}
	return Check{Name: name, Pass: true, Message: message}
}
