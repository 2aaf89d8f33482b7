// Package client talks to a running pinbridge server.
package client

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"syscall"
	"time"

	"github.com/rbright/pinbridge/internal/protocol"
)

// Send writes one raw request line and reads the single response line.
// A trailing newline is added when line lacks one.
func Send(ctx context.Context, addr string, line []byte, timeout time.Duration) (protocol.Response, error) {
	line = bytes.TrimSpace(line)
	if len(line) == 0 {
		return protocol.Response{}, errors.New("request line is empty")
	}
	if bytes.IndexByte(line, '\n') >= 0 {
		return protocol.Response{}, errors.New("request line must not contain a newline")
	}

	dialer := net.Dialer{Timeout: timeout}
	conn, err := dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		return protocol.Response{}, err
	}
	defer conn.Close()

	deadline := time.Now().Add(timeout)
	if err := conn.SetDeadline(deadline); err != nil {
		return protocol.Response{}, fmt.Errorf("set deadline: %w", err)
	}

	if _, err := conn.Write(append(line, '\n')); err != nil {
		return protocol.Response{}, fmt.Errorf("write request: %w", err)
	}

	reader := bufio.NewReader(conn)
	reply, err := reader.ReadBytes('\n')
	if err != nil {
		return protocol.Response{}, fmt.Errorf("read response: %w", err)
	}

	var resp protocol.Response
	if err := json.Unmarshal(reply, &resp); err != nil {
		return protocol.Response{}, fmt.Errorf("decode response: %w", err)
	}
	return resp, nil
}

// SendRequest encodes req and sends it with Send.
func SendRequest(ctx context.Context, addr string, req protocol.Request, timeout time.Duration) (protocol.Response, error) {
	line, err := json.Marshal(req)
	if err != nil {
		return protocol.Response{}, fmt.Errorf("encode request: %w", err)
	}
	return Send(ctx, addr, line, timeout)
}

// Probe reports whether something accepts TCP connections on addr.
func Probe(ctx context.Context, addr string, timeout time.Duration) (bool, error) {
	dialer := net.Dialer{Timeout: timeout}
	conn, err := dialer.DialContext(ctx, "tcp", addr)
	if err == nil {
		_ = conn.Close()
		return true, nil
	}
	if isConnectionRefused(err) {
		return false, nil
	}
	return false, fmt.Errorf("probe %s: %w", addr, err)
}

// isConnectionRefused reports no-listener failures.
func isConnectionRefused(err error) bool {
	if err == nil {
		return false
	}
	return errors.Is(err, syscall.ECONNREFUSED)
}
