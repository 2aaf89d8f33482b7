package protocol

import (
	"bytes"
	"errors"
	"fmt"
)

// DefaultMaxLineBytes bounds how much unterminated input a connection may buffer.
const DefaultMaxLineBytes = 64 * 1024

// ErrLineTooLong reports an unterminated line that outgrew the decoder limit.
var ErrLineTooLong = errors.New("line exceeds buffer limit")

// Decoder accumulates stream chunks and splits them into newline-terminated frames.
//
// Bytes already scanned for a newline are never rescanned, and every byte is
// moved at most once when consumed frames are compacted away, so the total
// work stays linear in the input size.
type Decoder struct {
	buf     []byte
	scanned int
	limit   int
}

// NewDecoder returns a decoder that rejects unterminated lines longer than limit.
// A limit <= 0 disables the check.
func NewDecoder(limit int) *Decoder {
	return &Decoder{limit: limit}
}

// Feed appends chunk and returns every complete, non-blank line it closes,
// trimmed of surrounding whitespace. The returned slices are owned by the caller.
func (d *Decoder) Feed(chunk []byte) ([][]byte, error) {
	d.buf = append(d.buf, chunk...)

	var lines [][]byte
	start := 0
	for {
		idx := bytes.IndexByte(d.buf[d.scanned:], '\n')
		if idx < 0 {
			break
		}
		end := d.scanned + idx
		if line := bytes.TrimSpace(d.buf[start:end]); len(line) > 0 {
			lines = append(lines, append([]byte(nil), line...))
		}
		start = end + 1
		d.scanned = start
	}

	if start > 0 {
		n := copy(d.buf, d.buf[start:])
		d.buf = d.buf[:n]
	}
	d.scanned = len(d.buf)

	if d.limit > 0 && len(d.buf) > d.limit {
		return lines, fmt.Errorf("%w (%d bytes)", ErrLineTooLong, d.limit)
	}
	return lines, nil
}

// Remainder returns the trimmed unterminated tail, or nil when only whitespace is buffered.
func (d *Decoder) Remainder() []byte {
	tail := bytes.TrimSpace(d.buf)
	if len(tail) == 0 {
		return nil
	}
	return append([]byte(nil), tail...)
}

// Buffered reports how many bytes are waiting for a newline.
func (d *Decoder) Buffered() int {
	return len(d.buf)
}

// Reset drops any buffered input.
func (d *Decoder) Reset() {
	d.buf = d.buf[:0]
	d.scanned = 0
}
