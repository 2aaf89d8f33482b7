// Package gpiobridge serves bridge calls from the host's own GPIO lines through periph.io.
//
// It covers the digital operations only; analog reads and the LED matrix live
// on the microcontroller and report bridge.ErrUnsupported here.
package gpiobridge

import (
	"context"
	"fmt"
	"sync"

	"periph.io/x/conn/v3/gpio"
	"periph.io/x/conn/v3/gpio/gpioreg"
	"periph.io/x/host/v3"

	"github.com/rbright/pinbridge/internal/bridge"
)

// Lookup resolves a pin name to a GPIO line, or nil when unknown.
type Lookup func(name string) gpio.PinIO

// Bridge drives GPIO lines by name.
type Bridge struct {
	lookup Lookup
	group  []string

	mu     sync.Mutex
	pins   map[string]gpio.PinIO
	driven map[string]bool
}

// Open initializes periph.io drivers and returns a bridge over the host registry.
// group lists the lines set_all_io writes.
func Open(group []string) (*Bridge, error) {
	if _, err := host.Init(); err != nil {
		return nil, fmt.Errorf("periph host init: %w", err)
	}
	return New(gpioreg.ByName, group), nil
}

// New returns a bridge resolving names through lookup.
func New(lookup Lookup, group []string) *Bridge {
	return &Bridge{
		lookup: lookup,
		group:  append([]string(nil), group...),
		pins:   make(map[string]gpio.PinIO),
		driven: make(map[string]bool),
	}
}

// Call implements bridge.Client.
func (b *Bridge) Call(ctx context.Context, op bridge.Operation, args ...any) (any, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	switch op {
	case bridge.OpSetPin:
		name, err := bridge.StringArg(op, args, 0)
		if err != nil {
			return nil, err
		}
		level, err := bridge.BoolArg(op, args, 1)
		if err != nil {
			return nil, err
		}
		return nil, b.write(name, level)
	case bridge.OpGetPin:
		name, err := bridge.StringArg(op, args, 0)
		if err != nil {
			return nil, err
		}
		return b.read(name)
	case bridge.OpSetAll:
		level, err := bridge.BoolArg(op, args, 0)
		if err != nil {
			return nil, err
		}
		if len(b.group) == 0 {
			return nil, fmt.Errorf("%s: no gpio pins configured for group writes", op)
		}
		for _, name := range b.group {
			if err := b.write(name, level); err != nil {
				return nil, err
			}
		}
		return nil, nil
	default:
		return nil, bridge.Unsupported(op)
	}
}

// resolve looks up a line by name, caching the handle.
func (b *Bridge) resolve(name string) (gpio.PinIO, error) {
	if p, ok := b.pins[name]; ok {
		return p, nil
	}
	p := b.lookup(name)
	if p == nil {
		return nil, fmt.Errorf("pin %q not found in hardware", name)
	}
	b.pins[name] = p
	return p, nil
}

func (b *Bridge) write(name string, level bool) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	p, err := b.resolve(name)
	if err != nil {
		return err
	}
	out := gpio.Low
	if level {
		out = gpio.High
	}
	if err := p.Out(out); err != nil {
		return fmt.Errorf("drive pin %q: %w", name, err)
	}
	b.driven[name] = true
	return nil
}

// read samples a line. Lines this bridge drives are read back without being
// switched to input, which would release the output.
func (b *Bridge) read(name string) (bool, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	p, err := b.resolve(name)
	if err != nil {
		return false, err
	}
	if !b.driven[name] {
		if err := p.In(gpio.PullNoChange, gpio.NoEdge); err != nil {
			return false, fmt.Errorf("set pin %q to input: %w", name, err)
		}
	}
	return p.Read() == gpio.High, nil
}

// Unresolved returns the group pins the host does not expose.
func (b *Bridge) Unresolved() []string {
	b.mu.Lock()
	defer b.mu.Unlock()

	var missing []string
	for _, name := range b.group {
		if _, err := b.resolve(name); err != nil {
			missing = append(missing, name)
		}
	}
	return missing
}

var _ bridge.Client = (*Bridge)(nil)
