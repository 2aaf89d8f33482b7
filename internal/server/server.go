// Package server accepts TCP clients and answers their newline-delimited
// JSON requests.
package server

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	"golang.org/x/sync/semaphore"
	"golang.org/x/sys/unix"

	"github.com/rbright/pinbridge/internal/protocol"
)

// Defaults applied to zero Config fields.
const (
	DefaultIdleTimeout    = 5 * time.Second
	DefaultMaxConnections = 64
	DefaultShutdownGrace  = 2 * time.Second
)

// Handler answers one complete request line. It returns an error only when
// line is not JSON; every other outcome is carried by the response.
type Handler interface {
	Handle(ctx context.Context, line []byte) (protocol.Response, error)
}

// HandlerFunc adapts a function to the Handler interface.
type HandlerFunc func(ctx context.Context, line []byte) (protocol.Response, error)

func (f HandlerFunc) Handle(ctx context.Context, line []byte) (protocol.Response, error) {
	return f(ctx, line)
}

// Observer receives connection lifecycle events.
type Observer interface {
	ConnectionOpened()
	ConnectionClosed(state string)
	FramingError(kind string)
}

// Config bounds connection behavior.
type Config struct {
	IdleTimeout    time.Duration
	MaxConnections int
	MaxLineBytes   int
	ShutdownGrace  time.Duration
}

// Server runs one goroutine per accepted connection.
type Server struct {
	handler  Handler
	cfg      Config
	logger   *slog.Logger
	observer Observer

	closing atomic.Bool
	mu      sync.Mutex
	conns   map[net.Conn]struct{}
}

// New returns a server dispatching request lines to handler. logger and
// observer may be nil.
func New(handler Handler, cfg Config, logger *slog.Logger, observer Observer) *Server {
	if cfg.IdleTimeout <= 0 {
		cfg.IdleTimeout = DefaultIdleTimeout
	}
	if cfg.MaxConnections <= 0 {
		cfg.MaxConnections = DefaultMaxConnections
	}
	if cfg.MaxLineBytes == 0 {
		cfg.MaxLineBytes = protocol.DefaultMaxLineBytes
	}
	if cfg.ShutdownGrace <= 0 {
		cfg.ShutdownGrace = DefaultShutdownGrace
	}
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	if observer == nil {
		observer = nopObserver{}
	}
	return &Server{
		handler:  handler,
		cfg:      cfg,
		logger:   logger,
		observer: observer,
		conns:    make(map[net.Conn]struct{}),
	}
}

// Listen binds a TCP listener on addr with SO_REUSEADDR set, so a restart
// does not fail while old sockets sit in TIME_WAIT.
func Listen(ctx context.Context, addr string) (net.Listener, error) {
	lc := net.ListenConfig{Control: reuseAddr}
	listener, err := lc.Listen(ctx, "tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("listen tcp %s: %w", addr, err)
	}
	return listener, nil
}

func reuseAddr(_, _ string, c syscall.RawConn) error {
	var sockErr error
	if err := c.Control(func(fd uintptr) {
		sockErr = unix.SetsockoptInt(int(fd), unix.SOL_SOCKET, unix.SO_REUSEADDR, 1)
	}); err != nil {
		return err
	}
	if sockErr != nil {
		return fmt.Errorf("set SO_REUSEADDR: %w", sockErr)
	}
	return nil
}

// Serve accepts clients until ctx is cancelled or the listener fails.
//
// On cancellation, or an accept error that is not temporary, the listener is
// closed and idle reads are interrupted. Connections still busy after the
// shutdown grace period are closed.
func (s *Server) Serve(ctx context.Context, listener net.Listener) error {
	connCtx, cancelConns := context.WithCancel(context.WithoutCancel(ctx))
	defer cancelConns()

	var wg sync.WaitGroup
	slots := semaphore.NewWeighted(int64(s.cfg.MaxConnections))

	var stopOnce sync.Once
	stopAccepting := func() {
		stopOnce.Do(func() {
			s.closing.Store(true)
			_ = listener.Close()
			s.interruptReads()
		})
	}
	stopClose := context.AfterFunc(ctx, stopAccepting)
	defer stopClose()

	s.logger.Info("listening", "addr", listener.Addr().String(), "max_connections", s.cfg.MaxConnections)

	var serveErr error
	var retryDelay time.Duration
	for {
		if err := slots.Acquire(ctx, 1); err != nil {
			break
		}

		conn, err := listener.Accept()
		if err != nil {
			slots.Release(1)
			if errors.Is(err, net.ErrClosed) || ctx.Err() != nil {
				break
			}
			if temporaryAcceptError(err) {
				retryDelay = nextRetryDelay(retryDelay)
				s.logger.Warn("accept failed; retrying", "error", err.Error(), "delay", retryDelay.String())
				if !sleepCtx(ctx, retryDelay) {
					break
				}
				continue
			}
			serveErr = fmt.Errorf("accept connection: %w", err)
			s.logger.Error("accept failed; stopping listener", "error", err.Error())
			stopAccepting()
			break
		}
		retryDelay = 0

		s.track(conn)
		wg.Add(1)
		go func(c net.Conn) {
			defer wg.Done()
			defer slots.Release(1)
			defer s.untrack(c)
			s.serveConn(connCtx, c)
		}(conn)
	}

	drained := make(chan struct{})
	go func() {
		wg.Wait()
		close(drained)
	}()

	if s.closing.Load() {
		select {
		case <-drained:
		case <-time.After(s.cfg.ShutdownGrace):
			s.logger.Warn("shutdown grace expired; closing connections", "grace", s.cfg.ShutdownGrace.String())
			cancelConns()
			s.closeAll()
			<-drained
		}
	} else {
		<-drained
	}

	s.logger.Info("listener stopped")
	return serveErr
}

const (
	minAcceptRetryDelay = 5 * time.Millisecond
	maxAcceptRetryDelay = time.Second
)

func nextRetryDelay(prev time.Duration) time.Duration {
	if prev == 0 {
		return minAcceptRetryDelay
	}
	return min(prev*2, maxAcceptRetryDelay)
}

// temporaryAcceptError reports accept failures that clear on their own, such
// as running out of file descriptors or a client resetting before accept.
func temporaryAcceptError(err error) bool {
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}
	for _, errno := range []syscall.Errno{syscall.EMFILE, syscall.ENFILE, syscall.ECONNABORTED, syscall.ENOBUFS, syscall.ENOMEM} {
		if errors.Is(err, errno) {
			return true
		}
	}
	return false
}

func sleepCtx(ctx context.Context, d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}

func (s *Server) track(conn net.Conn) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.conns[conn] = struct{}{}
}

func (s *Server) untrack(conn net.Conn) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.conns, conn)
}

// interruptReads wakes connections blocked waiting for input.
func (s *Server) interruptReads() {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := time.Now()
	for conn := range s.conns {
		_ = conn.SetReadDeadline(now)
	}
}

func (s *Server) closeAll() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for conn := range s.conns {
		_ = conn.Close()
	}
}

type nopObserver struct{}

func (nopObserver) ConnectionOpened()       {}
func (nopObserver) ConnectionClosed(string) {}
func (nopObserver) FramingError(string)     {}
