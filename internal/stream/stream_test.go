// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package stream decodes server-sent-event byte streams into typed
// generation events.
package stream

import (
	"errors"
	"io"
	"strings"
	"testing"
)

// collect drains the reader, separating good events from parse errors.
func collect(t *testing.T, r *Reader) ([]*Event, []error) {
	t.Helper()

	var events []*Event
	var parseErrs []error
	for {
		ev, err := r.Next()
		if err == io.EOF {
			return events, parseErrs
		}
		var pe *ParseError
		if errors.As(err, &pe) {
			parseErrs = append(parseErrs, err)
			continue
		}
		if err != nil {
			t.Fatalf("Next() unexpected error: %v", err)
		}
		events = append(events, ev)
	}
}

func TestReader_BasicSequence(t *testing.T) {
	input := "data: {\"event\":\"response.output_text.delta\",\"data\":{\"delta\":\"Hi\"}}\n\n" +
		"data: {\"event\":\"response.output_text.delta\",\"data\":{\"delta\":\" there\"}}\n\n" +
		"data: [DONE]\n\n"

	events, parseErrs := collect(t, NewReader(strings.NewReader(input)))

	if len(parseErrs) != 0 {
		t.Fatalf("unexpected parse errors: %v", parseErrs)
	}
	if len(events) != 2 {
		t.Fatalf("got %d events, want 2", len(events))
	}
	if events[0].Type != "response.output_text.delta" {
		t.Errorf("events[0].Type = %q", events[0].Type)
	}

	var payload struct {
		Delta string `json:"delta"`
	}
	if err := events[1].Decode(&payload); err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if payload.Delta != " there" {
		t.Errorf("delta = %q, want %q", payload.Delta, " there")
	}
}

func TestReader_EOFAfterDone(t *testing.T) {
	r := NewReader(strings.NewReader("data: [DONE]\n\n"))

	if _, err := r.Next(); err != io.EOF {
		t.Fatalf("Next() = %v, want io.EOF", err)
	}
	// Subsequent calls stay terminal.
	if _, err := r.Next(); err != io.EOF {
		t.Fatalf("second Next() = %v, want io.EOF", err)
	}
}

func TestReader_FlushesUnterminatedTrailingBlock(t *testing.T) {
	// Stream closes without the trailing blank line.
	input := "data: {\"event\":\"response.completed\",\"data\":{}}"

	events, parseErrs := collect(t, NewReader(strings.NewReader(input)))

	if len(parseErrs) != 0 {
		t.Fatalf("unexpected parse errors: %v", parseErrs)
	}
	if len(events) != 1 || events[0].Type != "response.completed" {
		t.Fatalf("got %+v, want single response.completed", events)
	}
}

func TestReader_PartialBlockBuffersUntilDelimiter(t *testing.T) {
	// A block split across reads is only a framing concern; bufio hides the
	// chunk boundaries, so simulate with an iotest-style one-byte reader.
	input := "data: {\"event\":\"a\",\"data\":{}}\n\ndata: [DONE]\n\n"
	events, _ := collect(t, NewReader(iotestOneByteReader{strings.NewReader(input)}))

	if len(events) != 1 || events[0].Type != "a" {
		t.Fatalf("got %+v, want single event a", events)
	}
}

// iotestOneByteReader yields one byte per Read call.
type iotestOneByteReader struct{ r io.Reader }

func (o iotestOneByteReader) Read(p []byte) (int, error) {
	if len(p) > 1 {
		p = p[:1]
	}
	return o.r.Read(p)
}

func TestReader_MalformedBlockSurfacesParseError(t *testing.T) {
	input := "data: {not json\n\n" +
		"data: {\"event\":\"ok\",\"data\":{}}\n\n" +
		"data: [DONE]\n\n"

	events, parseErrs := collect(t, NewReader(strings.NewReader(input)))

	if len(parseErrs) != 1 {
		t.Fatalf("got %d parse errors, want 1", len(parseErrs))
	}
	var pe *ParseError
	if !errors.As(parseErrs[0], &pe) {
		t.Fatalf("error %v is not a *ParseError", parseErrs[0])
	}
	// The stream must keep delivering events after a bad block.
	if len(events) != 1 || events[0].Type != "ok" {
		t.Fatalf("got %+v, want the event after the bad block", events)
	}
}

func TestReader_IgnoresNonDataFields(t *testing.T) {
	input := ": comment\n" +
		"id: 42\n" +
		"retry: 100\n" +
		"data: {\"event\":\"x\",\"data\":{}}\n\n" +
		"data: [DONE]\n\n"

	events, parseErrs := collect(t, NewReader(strings.NewReader(input)))

	if len(parseErrs) != 0 {
		t.Fatalf("unexpected parse errors: %v", parseErrs)
	}
	if len(events) != 1 || events[0].Type != "x" {
		t.Fatalf("got %+v, want single event x", events)
	}
}

func TestReader_CRLFLineEndings(t *testing.T) {
	input := "data: {\"event\":\"x\",\"data\":{}}\r\n\r\ndata: [DONE]\r\n\r\n"

	events, parseErrs := collect(t, NewReader(strings.NewReader(input)))

	if len(parseErrs) != 0 {
		t.Fatalf("unexpected parse errors: %v", parseErrs)
	}
	if len(events) != 1 {
		t.Fatalf("got %d events, want 1", len(events))
	}
}
