package server

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"runtime/debug"
	"time"

	"github.com/rbright/pinbridge/internal/fsm"
	"github.com/rbright/pinbridge/internal/protocol"
)

const readChunkBytes = 4096

// Framing error kinds reported to the observer.
const (
	framingTimeout    = "timeout"
	framingPeerClosed = "peer_closed"
	framingOverflow   = "overflow"
)

// connection is the per-client state owned by one serveConn goroutine.
type connection struct {
	srv     *Server
	conn    net.Conn
	decoder *protocol.Decoder
	state   fsm.State
	logger  *slog.Logger
}

func (s *Server) serveConn(ctx context.Context, conn net.Conn) {
	c := &connection{
		srv:     s,
		conn:    conn,
		decoder: protocol.NewDecoder(s.cfg.MaxLineBytes),
		state:   fsm.StateAwaitingData,
		logger:  s.logger.With("remote", conn.RemoteAddr().String()),
	}

	opened := time.Now()
	s.observer.ConnectionOpened()
	c.logger.Info("connection opened")

	defer func() {
		if r := recover(); r != nil {
			c.logger.Error("connection handler panicked", "panic", fmt.Sprint(r), "stack", string(debug.Stack()))
		}
		_ = conn.Close()
		s.observer.ConnectionClosed(string(c.state))
		c.logger.Info("connection closed", "state", string(c.state), "duration", time.Since(opened).String())
	}()

	c.run(ctx)
}

func (c *connection) run(ctx context.Context) {
	buf := make([]byte, readChunkBytes)
	for !fsm.Terminal(c.state) {
		if err := c.conn.SetReadDeadline(time.Now().Add(c.srv.cfg.IdleTimeout)); err != nil {
			c.logger.Debug("set read deadline failed", "error", err.Error())
		}
		if c.srv.closing.Load() {
			c.step(fsm.EventShutdown)
			return
		}

		n, err := c.conn.Read(buf)
		if n > 0 {
			c.step(fsm.EventChunkReceived)
			if !c.drain(ctx, buf[:n]) {
				return
			}
			c.step(fsm.EventDrained)
		}
		if err != nil {
			c.closeOnReadError(ctx, err)
			return
		}
	}
}

// drain answers every complete line in chunk, in order. It returns false
// when the connection reached a terminal state.
func (c *connection) drain(ctx context.Context, chunk []byte) bool {
	lines, ferr := c.decoder.Feed(chunk)
	for _, line := range lines {
		if !c.reply(c.answer(ctx, line)) {
			c.step(fsm.EventSendFailed)
			return false
		}
	}

	if errors.Is(ferr, protocol.ErrLineTooLong) {
		c.logger.Warn("line exceeds limit", "limit", c.srv.cfg.MaxLineBytes, "buffered", c.decoder.Buffered())
		c.srv.observer.FramingError(framingOverflow)
		msg := fmt.Sprintf("Line exceeds %d bytes without a newline", c.srv.cfg.MaxLineBytes)
		if !c.reply(protocol.Failure(msg)) {
			c.step(fsm.EventSendFailed)
			return false
		}
		c.step(fsm.EventOverflow)
		return false
	}
	return true
}

func (c *connection) answer(ctx context.Context, line []byte) protocol.Response {
	resp, err := c.srv.handler.Handle(ctx, line)
	if err != nil {
		c.logger.Debug("invalid JSON line", "bytes", len(line))
		return protocol.Failure(protocol.ErrorInvalidJSON)
	}
	return resp
}

func (c *connection) closeOnReadError(ctx context.Context, err error) {
	var netErr net.Error
	switch {
	case errors.Is(err, io.EOF):
		c.flushPartial(ctx, protocol.ErrorPeerClosePartial, framingPeerClosed)
		c.step(fsm.EventPeerClosed)
	case errors.As(err, &netErr) && netErr.Timeout():
		if c.srv.closing.Load() {
			c.step(fsm.EventShutdown)
			return
		}
		c.flushPartial(ctx, protocol.ErrorTimeoutPartial, framingTimeout)
		c.step(fsm.EventTimedOut)
	default:
		if c.srv.closing.Load() {
			c.step(fsm.EventShutdown)
			return
		}
		c.logger.Warn("read failed", "error", err.Error())
		c.flushPartial(ctx, protocol.ErrorPeerClosePartial, framingPeerClosed)
		c.step(fsm.EventPeerClosed)
	}
}

// flushPartial answers an unterminated tail as one last request. A tail
// that is not JSON gets failMsg instead.
func (c *connection) flushPartial(ctx context.Context, failMsg, kind string) {
	tail := c.decoder.Remainder()
	c.decoder.Reset()
	if tail == nil {
		return
	}

	resp, err := c.srv.handler.Handle(ctx, tail)
	if err != nil {
		c.srv.observer.FramingError(kind)
		c.logger.Info("unterminated input at close", "kind", kind, "bytes", len(tail))
		resp = protocol.Failure(failMsg)
	}
	_ = c.reply(resp)
}

// reply writes one response line and reports whether it was delivered.
func (c *connection) reply(resp protocol.Response) bool {
	line, err := protocol.EncodeLine(resp)
	if err != nil {
		c.logger.Error("encode response failed", "error", err.Error())
		line, err = protocol.EncodeLine(protocol.Failure(fmt.Sprintf("Internal error: encode response: %v", err)))
		if err != nil {
			return false
		}
	}

	if err := c.conn.SetWriteDeadline(time.Now().Add(c.srv.cfg.IdleTimeout)); err != nil {
		c.logger.Debug("set write deadline failed", "error", err.Error())
	}
	if _, err := c.conn.Write(line); err != nil {
		c.logger.Warn("write response failed", "error", err.Error())
		return false
	}
	return true
}

func (c *connection) step(event fsm.Event) {
	next, err := fsm.Transition(c.state, event)
	if err != nil {
		c.logger.Error("connection state machine rejected event", "error", err.Error())
		return
	}
	c.logger.Debug("connection state", "from", string(c.state), "to", string(next), "event", string(event))
	c.state = next
}
