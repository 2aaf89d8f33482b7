package app

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/rbright/pinbridge/internal/cli"
	"github.com/rbright/pinbridge/internal/client"
	"github.com/rbright/pinbridge/internal/config"
	"github.com/rbright/pinbridge/internal/discovery"
	"github.com/rbright/pinbridge/internal/doctor"
	"github.com/rbright/pinbridge/internal/logging"
	"github.com/rbright/pinbridge/internal/protocol"
	"github.com/rbright/pinbridge/internal/version"
)

const sendTimeout = 5 * time.Second

type Runner struct {
	Stdout io.Writer
	Stderr io.Writer
	Logger *slog.Logger
}

func Execute(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	r := Runner{Stdout: stdout, Stderr: stderr}
	return r.Execute(ctx, args)
}

func (r Runner) Execute(ctx context.Context, args []string) int {
	parsed, err := cli.Parse(args)
	if err != nil {
		fmt.Fprintf(r.Stderr, "error: %v\n\n", err)
		fmt.Fprint(r.Stderr, cli.HelpText("pinbridge"))
		return 2
	}

	if parsed.ShowHelp {
		fmt.Fprint(r.Stdout, cli.HelpText("pinbridge"))
		return 0
	}

	if parsed.Command == cli.CommandVersion {
		fmt.Fprintln(r.Stdout, version.String())
		return 0
	}

	cfgLoaded, err := config.Load(parsed.ConfigPath)
	if err != nil {
		fmt.Fprintf(r.Stderr, "error: %v\n", err)
		return 1
	}

	var mirror io.Writer
	if cfgLoaded.Config.Log.Stderr && parsed.Command == cli.CommandServe {
		mirror = r.Stderr
	}
	logRuntime, err := logging.New(logging.Options{Level: cfgLoaded.Config.Log.Level, Mirror: mirror})
	if err != nil {
		fmt.Fprintf(r.Stderr, "error: setup logging: %v\n", err)
		return 1
	}
	defer func() { _ = logRuntime.Close() }()

	logger := r.Logger
	if logger == nil {
		logger = logRuntime.Logger
	}

	for _, w := range cfgLoaded.Warnings {
		msg := w.Message
		if w.Line > 0 {
			msg = fmt.Sprintf("line %d: %s", w.Line, w.Message)
		}
		fmt.Fprintf(r.Stderr, "warning: %s\n", msg)
		logger.Warn("config warning", "line", w.Line, "message", w.Message)
	}

	logger.Info("command start",
		"command", parsed.Command,
		"config", cfgLoaded.Path,
		"log", logRuntime.Path,
	)

	switch parsed.Command {
	case cli.CommandServe:
		return r.commandServe(ctx, cfgLoaded.Config, logger)
	case cli.CommandSend:
		addr := parsed.Addr
		if addr == "" {
			addr = cfgLoaded.Config.Listen.DialAddr()
		}
		return r.commandSend(ctx, addr, parsed.Payload)
	case cli.CommandDiscover:
		return r.commandDiscover(ctx)
	case cli.CommandDoctor:
		report := doctor.Run(ctx, cfgLoaded, logger)
		fmt.Fprintln(r.Stdout, report.String())
		if report.OK() {
			return 0
		}
		return 1
	default:
		fmt.Fprintf(r.Stderr, "error: unsupported command %q\n", parsed.Command)
		return 2
	}
}

// commandSend prints the server's reply line and exits non-zero on ok:false.
func (r Runner) commandSend(ctx context.Context, addr string, payload string) int {
	resp, err := client.Send(ctx, addr, []byte(payload), sendTimeout)
	if err != nil {
		fmt.Fprintf(r.Stderr, "error: send to %s: %v\n", addr, err)
		return 1
	}
	line, err := protocol.EncodeLine(resp)
	if err != nil {
		fmt.Fprintf(r.Stderr, "error: %v\n", err)
		return 1
	}
	_, _ = r.Stdout.Write(line)
	if !resp.OK {
		return 1
	}
	return 0
}

func (r Runner) commandDiscover(ctx context.Context) int {
	services, err := discovery.Scan(ctx, discovery.DefaultScanTimeout)
	if err != nil {
		fmt.Fprintf(r.Stderr, "error: %v\n", err)
		return 1
	}
	if len(services) == 0 {
		fmt.Fprintln(r.Stdout, "no pinbridge servers found")
		return 1
	}
	for _, svc := range services {
		fmt.Fprintf(r.Stdout, "%s addr=%s backend=%s version=%s\n",
			svc.Instance,
			svc.Addr,
			orDash(svc.Backend),
			orDash(svc.Version),
		)
	}
	return 0
}

func orDash(s string) string {
	if strings.TrimSpace(s) == "" {
		return "-"
	}
	return s
}
