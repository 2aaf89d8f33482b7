// Package command turns decoded request lines into typed commands and executes
// them against the bridge and the pin state cache.
package command

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
)

// Command names accepted on the wire.
const (
	NameSetIO       = "set_io"
	NameGetIO       = "get_io"
	NameSetAllIO    = "set_all_io"
	NameGetAnalog   = "get_an"
	NameMatrixPrint = "led_matrix_print"
)

// ErrInvalidJSON reports a line that is not a JSON document.
var ErrInvalidJSON = errors.New("invalid JSON")

// Command is one validated request. The concrete types below are the only implementations.
type Command interface {
	commandName() string
}

type SetIO struct {
	Pin   string
	Value bool
}

type GetIO struct {
	Pin string
}

type SetAllIO struct {
	Value bool
}

type GetAnalog struct {
	Pin string
}

type MatrixPrint struct {
	Text string
}

// Unknown carries an unrecognized cmd value.
type Unknown struct {
	Name string
}

func (SetIO) commandName() string       { return NameSetIO }
func (GetIO) commandName() string       { return NameGetIO }
func (SetAllIO) commandName() string    { return NameSetAllIO }
func (GetAnalog) commandName() string   { return NameGetAnalog }
func (MatrixPrint) commandName() string { return NameMatrixPrint }
func (Unknown) commandName() string     { return "unknown" }

// ValidationError is a request that decoded but cannot be executed.
// Its message is returned to the client verbatim.
type ValidationError struct {
	Msg string
}

func (e *ValidationError) Error() string { return e.Msg }

func invalid(format string, args ...any) error {
	return &ValidationError{Msg: fmt.Sprintf(format, args...)}
}

type fields map[string]json.RawMessage

// Parse decodes one request line into a Command.
//
// It returns ErrInvalidJSON when line is not JSON and a *ValidationError when
// the request is JSON but malformed. Checks run in a fixed order: missing
// fields, then field types, then value parsing.
func Parse(line []byte) (Command, error) {
	if !json.Valid(line) {
		return nil, ErrInvalidJSON
	}

	var f fields
	if err := json.Unmarshal(line, &f); err != nil || f == nil {
		return nil, invalid("Request must be a JSON object")
	}

	name, err := f.requiredString("cmd")
	if err != nil {
		return nil, err
	}

	switch name {
	case NameSetIO:
		pin, err := f.requiredString("pin")
		if err != nil {
			return nil, err
		}
		value, err := f.boolLike("value")
		if err != nil {
			return nil, err
		}
		return SetIO{Pin: pin, Value: value}, nil
	case NameGetIO:
		pin, err := f.requiredString("pin")
		if err != nil {
			return nil, err
		}
		return GetIO{Pin: pin}, nil
	case NameSetAllIO:
		value, err := f.boolLike("value")
		if err != nil {
			return nil, err
		}
		return SetAllIO{Value: value}, nil
	case NameGetAnalog:
		pin, err := f.requiredString("pin")
		if err != nil {
			return nil, err
		}
		return GetAnalog{Pin: pin}, nil
	case NameMatrixPrint:
		text, err := f.text("text")
		if err != nil {
			return nil, err
		}
		return MatrixPrint{Text: text}, nil
	default:
		return Unknown{Name: name}, nil
	}
}

// present reports whether key was sent with a non-null value.
func (f fields) present(key string) (json.RawMessage, bool) {
	raw, ok := f[key]
	if !ok || isNull(raw) {
		return nil, false
	}
	return raw, true
}

func (f fields) requiredString(key string) (string, error) {
	raw, ok := f.present(key)
	if !ok {
		return "", invalid("Missing field: %s", key)
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return "", invalid("%s must be a string", key)
	}
	return s, nil
}

// boolLike requires key to be sent; an explicit null counts as sent and then
// fails value parsing.
func (f fields) boolLike(key string) (bool, error) {
	raw, ok := f[key]
	if !ok {
		return false, invalid("Missing field: %s", key)
	}
	var v any
	if err := json.Unmarshal(raw, &v); err != nil {
		return false, &ValidationError{Msg: ErrNotBooleanLike.Error()}
	}
	b, err := ParseBool(v)
	if err != nil {
		return false, &ValidationError{Msg: err.Error()}
	}
	return b, nil
}

// text accepts a string or renders any other JSON value as text: booleans as
// True/False, everything else as compact JSON.
func (f fields) text(key string) (string, error) {
	raw, ok := f.present(key)
	if !ok {
		return "", invalid("Missing field: %s", key)
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s, nil
	}
	var b bool
	if err := json.Unmarshal(raw, &b); err == nil {
		return capitalizedBool(b), nil
	}
	var compact bytes.Buffer
	if err := json.Compact(&compact, raw); err != nil {
		return "", invalid("%s must be a string", key)
	}
	return compact.String(), nil
}

func isNull(raw json.RawMessage) bool {
	return bytes.Equal(bytes.TrimSpace(raw), []byte("null"))
}
