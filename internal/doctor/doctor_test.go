package doctor

import (
	"bufio"
	"context"
	"net"
	"path/filepath"
	"testing"

	"github.com/rbright/pinbridge/internal/config"
	"github.com/stretchr/testify/require"
)

func TestReportOKAndString(t *testing.T) {
	report := Report{Checks: []Check{
		{Name: "one", Pass: true, Message: "good"},
		{Name: "two", Pass: false, Message: "bad"},
	}}

	require.False(t, report.OK())
	text := report.String()
	require.Contains(t, text, "[OK] one: good")
	require.Contains(t, text, "[FAIL] two: bad")
}

func TestReportOKAllPassing(t *testing.T) {
	report := Report{Checks: []Check{{Name: "one", Pass: true}, {Name: "two", Pass: true}}}
	require.True(t, report.OK())
}

func TestCheckConfigMessages(t *testing.T) {
	missing := checkConfig(config.Loaded{
		Path:     "/tmp/none.jsonc",
		Warnings: []config.Warning{{Message: `config file "/tmp/none.jsonc" not found; using defaults`}},
	})
	require.True(t, missing.Pass)
	require.Equal(t, `using defaults ("/tmp/none.jsonc" not found)`, missing.Message)

	loaded := checkConfig(config.Loaded{
		Path:     "/etc/pinbridge.jsonc",
		Exists:   true,
		Warnings: []config.Warning{{Line: 4, Message: "gpio backend has no pins"}},
	})
	require.True(t, loaded.Pass)
	require.Contains(t, loaded.Message, `loaded "/etc/pinbridge.jsonc"`)
	require.Contains(t, loaded.Message, "warning: gpio backend has no pins")
}

func TestCheckBindable(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	t.Cleanup(func() { _ = ln.Close() })

	busy := checkBindable("listen", ln.Addr().String())
	require.False(t, busy.Pass)
	require.Contains(t, busy.Message, "cannot bind")

	free := checkBindable("metrics", "127.0.0.1:0")
	require.True(t, free.Pass)
}

func simLoaded(t *testing.T) config.Loaded {
	t.Helper()
	cfg := config.Default()
	cfg.Listen.Host = "127.0.0.1"
	cfg.Listen.Port = freePort(t)
	cfg.Bridge.Backend = config.BackendSim
	return config.Loaded{Path: "/tmp/pinbridge.jsonc", Exists: true, Config: cfg}
}

func freePort(t *testing.T) int {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	port := ln.Addr().(*net.TCPAddr).Port
	require.NoError(t, ln.Close())
	return port
}

func TestRunWithSimBackendPasses(t *testing.T) {
	report := Run(context.Background(), simLoaded(t), nil)
	require.True(t, report.OK(), report.String())

	names := make([]string, 0, len(report.Checks))
	for _, check := range report.Checks {
		names = append(names, check.Name)
	}
	require.Equal(t, []string{"config", "listen", "bridge.sim"}, names)
	require.Contains(t, report.String(), "simulator answering")
}

func TestRunReportsMissingSerialDevice(t *testing.T) {
	loaded := simLoaded(t)
	loaded.Config.Bridge.Backend = config.BackendSerial
	loaded.Config.Bridge.Serial.Device = filepath.Join(t.TempDir(), "ttyMISSING")

	report := Run(context.Background(), loaded, nil)
	require.False(t, report.OK())

	var found bool
	for _, check := range report.Checks {
		if check.Name == "bridge.serial" {
			found = true
			require.False(t, check.Pass)
			require.Contains(t, check.Message, "open serial bridge")
		}
	}
	require.True(t, found)
}

func TestRunFailsWhenPortHeldByStranger(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	t.Cleanup(func() { _ = ln.Close() })
	// Accept and hang up without speaking the protocol.
	go func() {
		for {
			conn, err := ln.Accept()
			if err != nil {
				return
			}
			_ = conn.Close()
		}
	}()

	loaded := simLoaded(t)
	loaded.Config.Listen.Port = ln.Addr().(*net.TCPAddr).Port

	report := Run(context.Background(), loaded, nil)
	require.False(t, report.OK())
	require.Contains(t, report.String(), "[FAIL] listen: cannot bind")
}

func TestRunAcceptsPortHeldByRunningInstance(t *testing.T) {
	received := make(chan string, 4)
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	t.Cleanup(func() { _ = ln.Close() })
	go func() {
		for {
			conn, err := ln.Accept()
			if err != nil {
				return
			}
			go func() {
				defer conn.Close()
				line, err := bufio.NewReader(conn).ReadBytes('\n')
				if err != nil {
					return
				}
				select {
				case received <- string(line):
				default:
				}
				_, _ = conn.Write([]byte(`{"ok":false,"error":"Missing field: pin"}` + "\n"))
			}()
		}
	}()

	loaded := simLoaded(t)
	loaded.Config.Listen.Port = ln.Addr().(*net.TCPAddr).Port

	report := Run(context.Background(), loaded, nil)
	require.True(t, report.OK(), report.String())
	require.Contains(t, report.String(), "served by a running instance")
	require.JSONEq(t, `{"cmd":"get_io"}`, <-received)
}

func TestRunChecksOptionalListeners(t *testing.T) {
	busy, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	t.Cleanup(func() { _ = busy.Close() })

	loaded := simLoaded(t)
	loaded.Config.Metrics.Addr = busy.Addr().String()
	loaded.Config.Bridge.GRPC.ServeAddr = "127.0.0.1:0"

	report := Run(context.Background(), loaded, nil)
	require.False(t, report.OK())
	require.Contains(t, report.String(), "[FAIL] metrics: cannot bind")
	require.Contains(t, report.String(), "[OK] grpc.serve:")
}
