// Package grpcbridge reaches a bridge served over gRPC.
//
// The service carries generic payloads: the request is a google.protobuf.Struct
// {"method": <operation>, "params": [...]} and the reply a google.protobuf.Value,
// so no generated stubs are needed on either side.
package grpcbridge

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/connectivity"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/rbright/pinbridge/internal/bridge"
)

const (
	serviceName = "pinbridge.bridge.v1.Bridge"
	callMethod  = "/" + serviceName + "/Call"
)

// Config controls how the client connects.
type Config struct {
	Endpoint    string
	DialTimeout time.Duration
	// DialOptions replace the default insecure transport credentials when set.
	DialOptions []grpc.DialOption
}

// Client is a bridge.Client backed by one gRPC connection.
type Client struct {
	conn *grpc.ClientConn
}

// Dial connects to the endpoint and waits until the channel is ready.
func Dial(ctx context.Context, cfg Config) (*Client, error) {
	endpoint := strings.TrimSpace(cfg.Endpoint)
	if endpoint == "" {
		return nil, errors.New("bridge grpc endpoint is empty")
	}
	if cfg.DialTimeout <= 0 {
		cfg.DialTimeout = 3 * time.Second
	}

	opts := cfg.DialOptions
	if len(opts) == 0 {
		opts = []grpc.DialOption{grpc.WithTransportCredentials(insecure.NewCredentials())}
	}

	conn, err := grpc.NewClient(endpoint, opts...)
	if err != nil {
		return nil, fmt.Errorf("dial bridge grpc %q: %w", endpoint, err)
	}

	readyCtx, cancel := context.WithTimeout(ctx, cfg.DialTimeout)
	defer cancel()
	conn.Connect()
	if err := waitForReady(readyCtx, conn); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("wait for bridge grpc readiness: %w", err)
	}

	return &Client{conn: conn}, nil
}

// Call implements bridge.Client.
func (c *Client) Call(ctx context.Context, op bridge.Operation, args ...any) (any, error) {
	params, err := structpb.NewList(args)
	if err != nil {
		return nil, fmt.Errorf("encode %s params: %w", op, err)
	}
	req := &structpb.Struct{Fields: map[string]*structpb.Value{
		"method": structpb.NewStringValue(string(op)),
		"params": structpb.NewListValue(params),
	}}

	resp := new(structpb.Value)
	if err := c.conn.Invoke(ctx, callMethod, req, resp); err != nil {
		if st, ok := status.FromError(err); ok {
			return nil, errors.New(st.Message())
		}
		return nil, err
	}
	return resp.AsInterface(), nil
}

// Close releases the connection.
func (c *Client) Close() error {
	return c.conn.Close()
}

// waitForReady blocks until the gRPC connection enters Ready or fails.
func waitForReady(ctx context.Context, conn *grpc.ClientConn) error {
	for {
		state := conn.GetState()
		switch state {
		case connectivity.Ready:
			return nil
		case connectivity.Shutdown:
			return errors.New("grpc connection entered shutdown state")
		}

		if !conn.WaitForStateChange(ctx, state) {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return fmt.Errorf("grpc readiness wait timed out in state %s", state.String())
		}
	}
}

var _ bridge.Client = (*Client)(nil)
