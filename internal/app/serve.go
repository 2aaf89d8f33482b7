package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"
	"google.golang.org/grpc"

	"github.com/rbright/pinbridge/internal/backend"
	"github.com/rbright/pinbridge/internal/bridge"
	"github.com/rbright/pinbridge/internal/bridge/grpcbridge"
	"github.com/rbright/pinbridge/internal/client"
	"github.com/rbright/pinbridge/internal/command"
	"github.com/rbright/pinbridge/internal/config"
	"github.com/rbright/pinbridge/internal/discovery"
	"github.com/rbright/pinbridge/internal/metrics"
	"github.com/rbright/pinbridge/internal/pinstate"
	"github.com/rbright/pinbridge/internal/server"
	"github.com/rbright/pinbridge/internal/version"
)

func (r Runner) commandServe(ctx context.Context, cfg config.Config, logger *slog.Logger) int {
	if err := serve(ctx, cfg, logger, nil); err != nil {
		fmt.Fprintf(r.Stderr, "error: %v\n", err)
		logger.Error("serve failed", "error", err.Error())
		return 1
	}
	return 0
}

// serve runs the TCP server and its side listeners until ctx ends or one of
// them fails. ready, when set, is called once the TCP listener is bound.
func serve(ctx context.Context, cfg config.Config, logger *slog.Logger, ready func(net.Addr)) error {
	m := metrics.New()

	b, err := backend.Open(ctx, cfg.Bridge, backend.Options{Logger: logger, Observer: m})
	if err != nil {
		return err
	}
	defer func() {
		if err := b.Close(); err != nil {
			logger.Warn("close bridge failed", "error", err.Error())
		}
	}()
	for _, w := range b.Warnings {
		logger.Warn("bridge warning", "message", w)
	}

	listener, err := server.Listen(ctx, cfg.Listen.Addr())
	if err != nil {
		if ok, _ := client.Probe(ctx, cfg.Listen.DialAddr(), time.Second); ok {
			return fmt.Errorf("%w (is another pinbridge already running?)", err)
		}
		return err
	}

	cache := pinstate.New()
	m.WatchCachedPins(cache.Len)
	interp := command.New(b.Client, cache, command.Options{
		Policy:   command.CachePolicy(cfg.Cache.Policy),
		Logger:   logger,
		Recorder: m,
	})
	srv := server.New(interp, server.Config{
		IdleTimeout:    cfg.Listen.IdleTimeout(),
		MaxConnections: cfg.Listen.MaxConnections,
		MaxLineBytes:   cfg.Listen.MaxLineBytes,
		ShutdownGrace:  cfg.Listen.ShutdownGrace(),
	}, logger, m)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return srv.Serve(gctx, listener) })

	if addr := cfg.Metrics.Addr; addr != "" {
		g.Go(func() error { return metrics.Serve(gctx, addr, m, logger) })
	}
	if addr := cfg.Bridge.GRPC.ServeAddr; addr != "" {
		g.Go(func() error { return exportBridge(gctx, addr, b.Client, logger) })
	}
	if cfg.MDNS.Enable {
		port := listener.Addr().(*net.TCPAddr).Port
		g.Go(func() error {
			return discovery.Advertise(gctx, discovery.Advertisement{
				Instance: cfg.MDNS.Instance,
				Port:     port,
				Backend:  cfg.Bridge.Backend,
				Version:  version.Resolved(),
			}, logger)
		})
	}

	if ready != nil {
		ready(listener.Addr())
	}
	err = g.Wait()
	logCachedPins(logger, cache)
	return err
}

// logCachedPins records the last known level of every pin at shutdown.
func logCachedPins(logger *slog.Logger, cache *pinstate.Cache) {
	snapshot := cache.Snapshot()
	levels := make([]string, 0, len(snapshot))
	for _, p := range snapshot {
		levels = append(levels, fmt.Sprintf("%s=%t", p.Name, p.Level))
	}
	logger.Info("pin cache at shutdown", "pins", len(levels), "levels", strings.Join(levels, ","))
}

// exportBridge serves the local bridge to remote pinbridge instances over gRPC.
// Remote calls share the local call policies.
func exportBridge(ctx context.Context, addr string, c bridge.Client, logger *slog.Logger) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("listen grpc bridge %s: %w", addr, err)
	}

	srv := grpc.NewServer()
	grpcbridge.Register(srv, c)
	stop := context.AfterFunc(ctx, srv.GracefulStop)
	defer stop()

	logger.Info("bridge export listening", "addr", ln.Addr().String())
	if err := srv.Serve(ln); err != nil && !errors.Is(err, grpc.ErrServerStopped) {
		return fmt.Errorf("serve grpc bridge: %w", err)
	}
	return nil
}
