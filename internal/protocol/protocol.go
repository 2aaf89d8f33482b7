// Package protocol defines the newline-delimited JSON wire format spoken by pinbridge.
package protocol

import (
	"bytes"
	"encoding/json"
)

// Events reported on successful responses.
const (
	EventIOUpdated        = "io_updated"
	EventIOStatus         = "io_status"
	EventIOAllUpdated     = "io_all_updated"
	EventAnalogValue      = "an_value"
	EventLEDMatrixUpdated = "led_matrix_updated"
)

// Framing failures reported for unterminated trailing input.
const (
	ErrorInvalidJSON      = "Invalid JSON"
	ErrorTimeoutPartial   = "Timeout waiting for complete line (missing newline or invalid JSON)"
	ErrorPeerClosePartial = "Client disconnected with incomplete or invalid JSON (missing newline?)"
)

// Request is the client view of one command line.
type Request struct {
	Cmd   string `json:"cmd"`
	Pin   string `json:"pin,omitempty"`
	Value any    `json:"value,omitempty"`
	Text  string `json:"text,omitempty"`
}

// Response is one reply line. Pin and Text are pointers so that empty strings
// still round-trip when a command reports them.
type Response struct {
	OK    bool    `json:"ok"`
	Event string  `json:"event,omitempty"`
	Pin   *string `json:"pin,omitempty"`
	Value any     `json:"value,omitempty"`
	Text  *string `json:"text,omitempty"`
	Error string  `json:"error,omitempty"`
}

// Failure builds an ok:false response.
func Failure(msg string) Response {
	return Response{OK: false, Error: msg}
}

// Success builds an ok:true response for event.
func Success(event string) Response {
	return Response{OK: true, Event: event}
}

// WithPin sets the pin field.
func (r Response) WithPin(pin string) Response {
	r.Pin = &pin
	return r
}

// WithValue sets the value field.
func (r Response) WithValue(v any) Response {
	r.Value = v
	return r
}

// WithText sets the text field.
func (r Response) WithText(text string) Response {
	r.Text = &text
	return r
}

// EncodeLine renders resp as one newline-terminated JSON line.
func EncodeLine(resp Response) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(resp); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
