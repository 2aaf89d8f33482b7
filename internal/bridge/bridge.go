// Package bridge defines the call interface to the hardware I/O bridge and the
// wrappers that shape how pinbridge reaches it.
package bridge

import (
	"context"
	"errors"
	"fmt"
)

// Operation names one remote procedure exposed by the bridge firmware.
type Operation string

const (
	OpSetPin      Operation = "set_pin_by_name"
	OpGetPin      Operation = "get_pin_by_name"
	OpSetAll      Operation = "set_all_io"
	OpGetAnalog   Operation = "get_an_pin_by_name"
	OpMatrixPrint Operation = "led_matrix_print"
)

// Operations lists every operation the command vocabulary can issue.
var Operations = []Operation{OpSetPin, OpGetPin, OpSetAll, OpGetAnalog, OpMatrixPrint}

// Client issues one bridge call and returns its decoded result.
type Client interface {
	Call(ctx context.Context, op Operation, args ...any) (any, error)
}

// ClientFunc adapts a function to the Client interface.
type ClientFunc func(ctx context.Context, op Operation, args ...any) (any, error)

func (f ClientFunc) Call(ctx context.Context, op Operation, args ...any) (any, error) {
	return f(ctx, op, args...)
}

// ErrUnsupported reports an operation a backend cannot perform.
var ErrUnsupported = errors.New("operation not supported by this bridge backend")

// Unsupported wraps ErrUnsupported with the operation name.
func Unsupported(op Operation) error {
	return fmt.Errorf("%s: %w", op, ErrUnsupported)
}

// StringArg returns args[i] as a string.
func StringArg(op Operation, args []any, i int) (string, error) {
	if i >= len(args) {
		return "", fmt.Errorf("%s: missing argument %d", op, i)
	}
	s, ok := args[i].(string)
	if !ok {
		return "", fmt.Errorf("%s: argument %d must be a string, got %T", op, i, args[i])
	}
	return s, nil
}

// BoolArg returns args[i] as a bool.
func BoolArg(op Operation, args []any, i int) (bool, error) {
	if i >= len(args) {
		return false, fmt.Errorf("%s: missing argument %d", op, i)
	}
	b, ok := args[i].(bool)
	if !ok {
		return false, fmt.Errorf("%s: argument %d must be a bool, got %T", op, i, args[i])
	}
	return b, nil
}
