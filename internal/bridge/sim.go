package bridge

import (
	"context"
	"fmt"
	"sync"
)

// DefaultSimPins is the pin set of an UNO-style board.
var DefaultSimPins = []string{
	"D0", "D1", "D2", "D3", "D4", "D5", "D6", "D7",
	"D8", "D9", "D10", "D11", "D12", "D13",
	"A0", "A1", "A2", "A3", "A4", "A5",
}

// Sim is an in-memory bridge used for bench runs and tests.
type Sim struct {
	mu      sync.Mutex
	digital map[string]bool
	analog  map[string]int
	matrix  string
	calls   []SimCall
	fail    map[Operation]error
}

// SimCall records one call received by a Sim.
type SimCall struct {
	Op   Operation
	Args []any
}

// NewSim returns a simulator exposing pins. With no pins, DefaultSimPins is used.
func NewSim(pins ...string) *Sim {
	if len(pins) == 0 {
		pins = DefaultSimPins
	}
	s := &Sim{
		digital: make(map[string]bool, len(pins)),
		analog:  make(map[string]int, len(pins)),
		fail:    make(map[Operation]error),
	}
	for _, pin := range pins {
		s.digital[pin] = false
		s.analog[pin] = 0
	}
	return s
}

// Call implements Client.
func (s *Sim) Call(ctx context.Context, op Operation, args ...any) (any, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.calls = append(s.calls, SimCall{Op: op, Args: append([]any(nil), args...)})
	if err := s.fail[op]; err != nil {
		return nil, err
	}

	switch op {
	case OpSetPin:
		pin, err := s.pinArg(op, args)
		if err != nil {
			return nil, err
		}
		level, err := BoolArg(op, args, 1)
		if err != nil {
			return nil, err
		}
		s.digital[pin] = level
		return nil, nil
	case OpGetPin:
		pin, err := s.pinArg(op, args)
		if err != nil {
			return nil, err
		}
		return s.digital[pin], nil
	case OpSetAll:
		level, err := BoolArg(op, args, 0)
		if err != nil {
			return nil, err
		}
		for pin := range s.digital {
			s.digital[pin] = level
		}
		return nil, nil
	case OpGetAnalog:
		pin, err := s.pinArg(op, args)
		if err != nil {
			return nil, err
		}
		return s.analog[pin], nil
	case OpMatrixPrint:
		text, err := StringArg(op, args, 0)
		if err != nil {
			return nil, err
		}
		s.matrix = text
		return nil, nil
	default:
		return nil, Unsupported(op)
	}
}

func (s *Sim) pinArg(op Operation, args []any) (string, error) {
	pin, err := StringArg(op, args, 0)
	if err != nil {
		return "", err
	}
	if _, ok := s.digital[pin]; !ok {
		return "", fmt.Errorf("unknown pin %q", pin)
	}
	return pin, nil
}

// Digital returns the simulated level of pin.
func (s *Sim) Digital(pin string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.digital[pin]
}

// SetAnalog sets the reading returned for pin.
func (s *Sim) SetAnalog(pin string, value int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.analog[pin] = value
}

// Matrix returns the last text printed on the LED matrix.
func (s *Sim) Matrix() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.matrix
}

// FailWith makes every later call of op return err. A nil err clears it.
func (s *Sim) FailWith(op Operation, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err == nil {
		delete(s.fail, op)
		return
	}
	s.fail[op] = err
}

// Calls returns a copy of the recorded calls.
func (s *Sim) Calls() []SimCall {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]SimCall(nil), s.calls...)
}

var _ Client = (*Sim)(nil)
