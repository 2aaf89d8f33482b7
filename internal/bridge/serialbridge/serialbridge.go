// Package serialbridge talks to the bridge firmware over a UART using one JSON
// object per line in each direction.
//
// Requests are {"id":N,"method":"<operation>","params":[...]} and replies are
// {"id":N,"result":<value>} or {"id":N,"error":"<message>"}. Replies are
// matched by id, so a late reply to an abandoned call is dropped.
package serialbridge

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/rbright/pinbridge/internal/bridge"
	"github.com/rbright/pinbridge/internal/protocol"
)

// ErrClosed is returned by calls made after Close or after the port failed.
var ErrClosed = errors.New("serial bridge closed")

const maxReplyBytes = 16 * 1024

type request struct {
	ID     uint64 `json:"id"`
	Method string `json:"method"`
	Params []any  `json:"params"`
}

type reply struct {
	ID     uint64          `json:"id"`
	Result json.RawMessage `json:"result"`
	Error  string          `json:"error"`
}

// Options tunes how the reader treats the underlying port.
type Options struct {
	// IdleEOF treats io.EOF from the port as "no data yet". tarm/serial
	// reports read timeouts that way.
	IdleEOF bool
	Logger  *slog.Logger
}

// Client is a bridge.Client over a line-oriented serial link.
type Client struct {
	port   io.ReadWriteCloser
	opts   Options
	logger *slog.Logger

	writeMu sync.Mutex
	nextID  atomic.Uint64

	mu      sync.Mutex
	pending map[uint64]chan reply
	err     error
	closed  atomic.Bool

	done chan struct{}
}

// New starts a client on port. The client owns port and closes it on Close.
func New(port io.ReadWriteCloser, opts Options) *Client {
	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	c := &Client{
		port:    port,
		opts:    opts,
		logger:  logger,
		pending: make(map[uint64]chan reply),
		done:    make(chan struct{}),
	}
	go c.readLoop()
	return c
}

// Call implements bridge.Client.
func (c *Client) Call(ctx context.Context, op bridge.Operation, args ...any) (any, error) {
	id := c.nextID.Add(1)
	ch := make(chan reply, 1)

	c.mu.Lock()
	if c.err != nil {
		err := c.err
		c.mu.Unlock()
		return nil, err
	}
	c.pending[id] = ch
	c.mu.Unlock()
	defer c.forget(id)

	params := args
	if params == nil {
		params = []any{}
	}
	line, err := json.Marshal(request{ID: id, Method: string(op), Params: params})
	if err != nil {
		return nil, fmt.Errorf("encode request: %w", err)
	}
	line = append(line, '\n')

	c.writeMu.Lock()
	_, err = c.port.Write(line)
	c.writeMu.Unlock()
	if err != nil {
		return nil, fmt.Errorf("write request: %w", err)
	}

	select {
	case rep, ok := <-ch:
		if !ok {
			return nil, c.failure()
		}
		if rep.Error != "" {
			return nil, errors.New(rep.Error)
		}
		return decodeResult(rep.Result)
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Close stops the reader and closes the port.
func (c *Client) Close() error {
	if !c.closed.CompareAndSwap(false, true) {
		return nil
	}
	err := c.port.Close()
	<-c.done
	return err
}

func (c *Client) forget(id uint64) {
	c.mu.Lock()
	delete(c.pending, id)
	c.mu.Unlock()
}

func (c *Client) failure() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.err != nil {
		return c.err
	}
	return ErrClosed
}

func (c *Client) readLoop() {
	defer close(c.done)

	dec := protocol.NewDecoder(maxReplyBytes)
	buf := make([]byte, 512)
	for {
		n, err := c.port.Read(buf)
		if n > 0 {
			lines, feedErr := dec.Feed(buf[:n])
			for _, line := range lines {
				c.dispatch(line)
			}
			if feedErr != nil {
				c.logger.Warn("serial bridge dropped oversized reply", "error", feedErr.Error())
				dec.Reset()
			}
		}
		if c.closed.Load() {
			c.shutdown(ErrClosed)
			return
		}
		if err == nil || (c.opts.IdleEOF && errors.Is(err, io.EOF)) {
			continue
		}
		c.shutdown(fmt.Errorf("%w: read: %v", ErrClosed, err))
		return
	}
}

func (c *Client) dispatch(line []byte) {
	var rep reply
	if err := json.Unmarshal(line, &rep); err != nil {
		c.logger.Warn("serial bridge ignored malformed reply", "line", string(line), "error", err.Error())
		return
	}

	c.mu.Lock()
	ch, ok := c.pending[rep.ID]
	if ok {
		delete(c.pending, rep.ID)
	}
	c.mu.Unlock()

	if !ok {
		c.logger.Debug("serial bridge dropped unmatched reply", "id", rep.ID)
		return
	}
	ch <- rep
}

func (c *Client) shutdown(cause error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.err == nil {
		c.err = cause
	}
	for id, ch := range c.pending {
		close(ch)
		delete(c.pending, id)
	}
}

func decodeResult(raw json.RawMessage) (any, error) {
	if len(raw) == 0 {
		return nil, nil
	}
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var v any
	if err := dec.Decode(&v); err != nil {
		return nil, fmt.Errorf("decode result: %w", err)
	}
	return v, nil
}

var _ bridge.Client = (*Client)(nil)
