package command

import (
	"context"
	"errors"
	"fmt"
	"hash/fnv"
	"io"
	"log/slog"
	"runtime/debug"
	"sync"

	"github.com/rbright/pinbridge/internal/bridge"
	"github.com/rbright/pinbridge/internal/pinstate"
	"github.com/rbright/pinbridge/internal/protocol"
)

// CachePolicy decides when set_io writes the pin state cache.
type CachePolicy string

const (
	// CacheConfirmed writes the cache only after the bridge accepted the write.
	CacheConfirmed CachePolicy = "confirmed"
	// CacheIntent writes the cache before calling the bridge, so a failed call
	// leaves the cache holding the requested level.
	CacheIntent CachePolicy = "intent"
)

// Recorder receives one outcome per handled request.
type Recorder interface {
	ObserveRequest(cmd string, ok bool)
}

// Options configures an Interpreter.
type Options struct {
	Policy   CachePolicy
	Logger   *slog.Logger
	Recorder Recorder
}

// Interpreter executes commands. It is safe for concurrent use when its
// bridge client is.
type Interpreter struct {
	bridge   bridge.Client
	cache    *pinstate.Cache
	policy   CachePolicy
	logger   *slog.Logger
	recorder Recorder
	pins     pinLocks
}

const pinLockStripes = 64

// pinLocks holds a pin's stripe across its bridge call and cache write, so
// the cache ends on the level of the last call the bridge applied.
type pinLocks [pinLockStripes]sync.Mutex

func (p *pinLocks) lock(pin string) (unlock func()) {
	h := fnv.New32a()
	_, _ = h.Write([]byte(pin))
	m := &p[h.Sum32()%pinLockStripes]
	m.Lock()
	return m.Unlock
}

// New returns an interpreter calling client and mirroring digital levels into cache.
func New(client bridge.Client, cache *pinstate.Cache, opts Options) *Interpreter {
	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	policy := opts.Policy
	if policy == "" {
		policy = CacheConfirmed
	}
	return &Interpreter{
		bridge:   client,
		cache:    cache,
		policy:   policy,
		logger:   logger,
		recorder: opts.Recorder,
	}
}

// Handle parses and executes one request line. It returns ErrInvalidJSON,
// and no response, when line is not JSON; every other outcome is a response.
func (in *Interpreter) Handle(ctx context.Context, line []byte) (protocol.Response, error) {
	cmd, err := Parse(line)
	if errors.Is(err, ErrInvalidJSON) {
		in.record("invalid", false)
		return protocol.Response{}, err
	}

	var resp protocol.Response
	var verr *ValidationError
	switch {
	case errors.As(err, &verr):
		resp = protocol.Failure(verr.Msg)
		in.record("invalid", false)
		return resp, nil
	case err != nil:
		resp = protocol.Failure(fmt.Sprintf("Internal error: %v", err))
		in.record("invalid", false)
		return resp, nil
	}

	resp = in.Execute(ctx, cmd)
	in.record(cmd.commandName(), resp.OK)
	return resp, nil
}

// Execute runs one command. A panic while executing is reported as an
// error response instead of unwinding into the caller.
func (in *Interpreter) Execute(ctx context.Context, cmd Command) (resp protocol.Response) {
	defer func() {
		if r := recover(); r != nil {
			in.logger.Error("command panicked",
				"cmd", cmd.commandName(),
				"panic", fmt.Sprint(r),
				"stack", string(debug.Stack()),
			)
			resp = protocol.Failure(fmt.Sprintf("Internal error: %v", r))
		}
	}()

	in.logger.Debug("handle command", "cmd", cmd.commandName(), "command", fmt.Sprintf("%+v", cmd))

	switch c := cmd.(type) {
	case SetIO:
		return in.setIO(ctx, c)
	case GetIO:
		return in.getIO(ctx, c)
	case SetAllIO:
		return in.setAllIO(ctx, c)
	case GetAnalog:
		return in.getAnalog(ctx, c)
	case MatrixPrint:
		return in.matrixPrint(ctx, c)
	case Unknown:
		return protocol.Failure("Unknown command: " + c.Name)
	default:
		panic(fmt.Sprintf("unhandled command type %T", cmd))
	}
}

func (in *Interpreter) setIO(ctx context.Context, c SetIO) protocol.Response {
	defer in.pins.lock(c.Pin)()

	if in.policy == CacheIntent {
		in.cache.Set(c.Pin, c.Value)
	}
	if _, err := in.call(ctx, bridge.OpSetPin, c.Pin, c.Value); err != nil {
		return bridgeFailure(bridge.OpSetPin, err)
	}
	if in.policy == CacheConfirmed {
		in.cache.Set(c.Pin, c.Value)
	}
	return protocol.Success(protocol.EventIOUpdated).WithPin(c.Pin).WithValue(c.Value)
}

func (in *Interpreter) getIO(ctx context.Context, c GetIO) protocol.Response {
	defer in.pins.lock(c.Pin)()

	raw, err := in.call(ctx, bridge.OpGetPin, c.Pin)
	if err != nil {
		return bridgeFailure(bridge.OpGetPin, err)
	}
	level := truthy(raw)
	in.cache.Set(c.Pin, level)
	return protocol.Success(protocol.EventIOStatus).WithPin(c.Pin).WithValue(level)
}

func (in *Interpreter) setAllIO(ctx context.Context, c SetAllIO) protocol.Response {
	if _, err := in.call(ctx, bridge.OpSetAll, c.Value); err != nil {
		return bridgeFailure(bridge.OpSetAll, err)
	}
	return protocol.Success(protocol.EventIOAllUpdated).WithValue(c.Value)
}

func (in *Interpreter) getAnalog(ctx context.Context, c GetAnalog) protocol.Response {
	raw, err := in.call(ctx, bridge.OpGetAnalog, c.Pin)
	if err != nil {
		return bridgeFailure(bridge.OpGetAnalog, err)
	}
	value, err := toInt(raw)
	if err != nil {
		in.logger.Warn("analog value is not an integer", "pin", c.Pin, "value", describe(raw), "error", err.Error())
		return protocol.Failure("Invalid analog value returned from bridge: " + describe(raw))
	}
	return protocol.Success(protocol.EventAnalogValue).WithPin(c.Pin).WithValue(value)
}

func (in *Interpreter) matrixPrint(ctx context.Context, c MatrixPrint) protocol.Response {
	if _, err := in.call(ctx, bridge.OpMatrixPrint, c.Text); err != nil {
		return bridgeFailure(bridge.OpMatrixPrint, err)
	}
	return protocol.Success(protocol.EventLEDMatrixUpdated).WithText(c.Text)
}

func (in *Interpreter) call(ctx context.Context, op bridge.Operation, args ...any) (any, error) {
	in.logger.Debug("bridge call", "operation", string(op), "args", args)
	result, err := in.bridge.Call(ctx, op, args...)
	if err != nil {
		in.logger.Warn("bridge call failed", "operation", string(op), "error", err.Error())
	}
	return result, err
}

func (in *Interpreter) record(cmd string, ok bool) {
	if in.recorder != nil {
		in.recorder.ObserveRequest(cmd, ok)
	}
}

func bridgeFailure(op bridge.Operation, err error) protocol.Response {
	return protocol.Failure(fmt.Sprintf("Bridge call %s failed: %v", op, err))
}
