// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package stream decodes server-sent-event byte streams into typed
// generation events.
//
// The wire framing is `data: <json>\n\n` blocks where each JSON payload is
// an envelope {"event": "...", "data": {...}}, terminated by a literal
// `data: [DONE]` block. Events are yielded strictly in arrival order.
package stream

import (
	"bufio"
	"bytes"
	"encoding/json"
	"fmt"
	"io"
)

// =============================================================================
// CONSTANTS
// =============================================================================

// MaxBlockSize is the maximum allowed size for a single SSE block (64KB).
const MaxBlockSize = 64 * 1024

// doneMarker is the sentinel payload that terminates a stream.
var doneMarker = []byte("[DONE]")

// =============================================================================
// EVENT TYPES
// =============================================================================

// Event is one decoded generation event from the stream.
type Event struct {
	Type string          `json:"event"`
	Data json.RawMessage `json:"data"`
}

// Decode unmarshals the event payload into v.
func (e *Event) Decode(v interface{}) error {
	if len(e.Data) == 0 {
		return nil
	}
	if err := json.Unmarshal(e.Data, v); err != nil {
		return fmt.Errorf("decode %s payload: %w", e.Type, err)
	}
	return nil
}

// ParseError reports a block whose JSON payload could not be decoded.
// The reader keeps going after returning one; callers surface it and
// continue with the next event rather than killing the whole turn.
type ParseError struct {
	Block []byte
	Err   error
}

// Error implements the error interface.
func (e *ParseError) Error() string {
	return fmt.Sprintf("malformed event block (%d bytes): %v", len(e.Block), e.Err)
}

// Unwrap returns the underlying error.
func (e *ParseError) Unwrap() error {
	return e.Err
}

// =============================================================================
// READER
// =============================================================================

// Reader parses generation events from an SSE byte stream.
type Reader struct {
	reader *bufio.Reader
	done   bool
}

// NewReader creates a Reader over r.
func NewReader(r io.Reader) *Reader {
	return &Reader{
		reader: bufio.NewReader(r),
	}
}

// Next returns the next event from the stream.
//
// Returns io.EOF after the [DONE] marker or when the underlying stream
// closes. A trailing block that was never terminated by a blank line is
// flushed before EOF is reported. A malformed JSON payload returns a
// *ParseError; the reader remains usable afterwards.
func (r *Reader) Next() (*Event, error) {
	if r.done {
		return nil, io.EOF
	}

	data, err := r.readBlock()
	if err != nil {
		if err == io.EOF {
			r.done = true
		}
		return nil, err
	}

	if bytes.Equal(data, doneMarker) {
		r.done = true
		return nil, io.EOF
	}

	var ev Event
	if err := json.Unmarshal(data, &ev); err != nil {
		return nil, &ParseError{Block: data, Err: err}
	}
	return &ev, nil
}

// readBlock reads lines until a blank-line delimiter and returns the
// accumulated `data:` payload. EOF with buffered data flushes the partial
// block first; EOF with nothing buffered is returned as-is.
func (r *Reader) readBlock() ([]byte, error) {
	var dataLines [][]byte
	size := 0

	for {
		line, err := r.reader.ReadBytes('\n')
		if err != nil {
			if err == io.EOF {
				if len(line) > 0 {
					if data, ok := dataField(bytes.TrimRight(line, "\r\n")); ok {
						dataLines = append(dataLines, data)
					}
				}
				if len(dataLines) > 0 {
					return bytes.Join(dataLines, []byte("\n")), nil
				}
				return nil, io.EOF
			}
			return nil, err
		}

		line = bytes.TrimRight(line, "\r\n")

		// Blank line ends the block.
		if len(line) == 0 {
			if len(dataLines) > 0 {
				return bytes.Join(dataLines, []byte("\n")), nil
			}
			continue
		}

		size += len(line)
		if size > MaxBlockSize {
			return nil, fmt.Errorf("event block too large: %d bytes", size)
		}

		if data, ok := dataField(line); ok {
			dataLines = append(dataLines, data)
		}
		// Other fields (event:, id:, retry:, comments) are ignored; the
		// envelope carries the event type inside the JSON payload.
	}
}

// dataField extracts the payload of a `data:` line.
func dataField(line []byte) ([]byte, bool) {
	if !bytes.HasPrefix(line, []byte("data:")) {
		return nil, false
	}
	return bytes.TrimSpace(line[5:]), true
}
