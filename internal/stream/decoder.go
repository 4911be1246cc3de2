// Package stream decodes the agent backend's newline-delimited
// "data: " event stream into typed events.
package stream

import (
	"bufio"
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"iter"
)

const (
	dataPrefix = "data: "
	terminator = "[DONE]"

	maxFrameSize = 1 << 20
)

// Policy controls what the decoder does with a frame it cannot use.
type Policy int

const (
	// Ignore drops the frame and keeps reading.
	Ignore Policy = iota
	// Fail stops decoding and returns an error.
	Fail
	// Pass hands the frame to the caller unchanged.
	Pass
)

// FrameError is returned for a malformed frame when OnParseError is Fail.
type FrameError struct {
	Line string
	Err  error
}

func (e *FrameError) Error() string {
	return fmt.Sprintf("malformed frame %q: %v", e.Line, e.Err)
}

func (e *FrameError) Unwrap() error { return e.Err }

// ErrUnknownType is returned for an unrecognized event when OnUnknownType is Fail.
var ErrUnknownType = errors.New("unknown event type")

// Option configures a Decoder.
type Option func(*Decoder)

// OnParseError sets the policy for frames whose payload is not valid JSON.
// Pass is treated as Ignore.
func OnParseError(p Policy) Option {
	return func(d *Decoder) { d.onParseError = p }
}

// OnUnknownType sets the policy for well-formed frames whose type is not
// one of the known event types.
func OnUnknownType(p Policy) Option {
	return func(d *Decoder) { d.onUnknownType = p }
}

// Decoder reads events from a byte stream. Reads need not be line-aligned;
// partial lines are buffered until their newline arrives. A Decoder is
// single-use: once Next returns an error it keeps returning it.
type Decoder struct {
	scanner       *bufio.Scanner
	onParseError  Policy
	onUnknownType Policy
	dropped       int
	err           error
}

// NewDecoder returns a Decoder reading from r. By default malformed frames
// and unknown event types are ignored.
func NewDecoder(r io.Reader, opts ...Option) *Decoder {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), maxFrameSize)
	d := &Decoder{scanner: scanner}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Next returns the next event. It returns io.EOF after the terminator frame
// or when the underlying stream ends.
func (d *Decoder) Next() (Event, error) {
	if d.err != nil {
		return Event{}, d.err
	}
	for d.scanner.Scan() {
		line := bytes.TrimSuffix(d.scanner.Bytes(), []byte("\r"))
		payload, ok := bytes.CutPrefix(line, []byte(dataPrefix))
		if !ok {
			continue
		}
		if string(bytes.TrimSpace(payload)) == terminator {
			d.err = io.EOF
			return Event{}, d.err
		}

		var ev Event
		if err := json.Unmarshal(payload, &ev); err != nil {
			if d.onParseError == Fail {
				d.err = &FrameError{Line: string(line), Err: err}
				return Event{}, d.err
			}
			d.dropped++
			continue
		}

		if !Known(ev.Type) {
			switch d.onUnknownType {
			case Pass:
				return ev, nil
			case Fail:
				d.err = fmt.Errorf("%w: %q", ErrUnknownType, ev.Type)
				return Event{}, d.err
			default:
				d.dropped++
				continue
			}
		}
		return ev, nil
	}

	if err := d.scanner.Err(); err != nil {
		d.err = fmt.Errorf("read stream: %w", err)
		return Event{}, d.err
	}
	d.err = io.EOF
	return Event{}, d.err
}

// All returns a lazy sequence over the remaining events. A non-EOF error is
// yielded once as the final element.
func (d *Decoder) All() iter.Seq2[Event, error] {
	return func(yield func(Event, error) bool) {
		for {
			ev, err := d.Next()
			if errors.Is(err, io.EOF) {
				return
			}
			if err != nil {
				yield(Event{}, err)
				return
			}
			if !yield(ev, nil) {
				return
			}
		}
	}
}

// Dropped returns how many frames were discarded by an Ignore policy.
func (d *Decoder) Dropped() int {
	return d.dropped
}
