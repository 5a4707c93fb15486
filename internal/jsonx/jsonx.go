// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package jsonx parses the partial JSON documents produced by streaming
// tool-call arguments.
//
// While arguments are still streaming the accumulated string is usually
// truncated mid-token ({"loc). ParsePartial repairs such a prefix by
// closing open strings and containers and dropping any dangling trailing
// member, so the UI can show best-effort arguments on every delta.
package jsonx

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// ErrEmpty is returned when there is no content to parse.
var ErrEmpty = errors.New("empty JSON input")

// ParseStrict parses a complete JSON object. Used for *_arguments.done
// payloads where truncation would indicate an upstream bug.
func ParseStrict(s string) (map[string]interface{}, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, ErrEmpty
	}
	var out map[string]interface{}
	if err := json.Unmarshal([]byte(s), &out); err != nil {
		return nil, fmt.Errorf("parse arguments: %w", err)
	}
	return out, nil
}

// ParsePartial parses a possibly-truncated JSON object prefix.
//
// Open strings and containers are closed, a member cut off before its
// value is complete is dropped, and the repaired document is unmarshaled.
// Failures return an empty map and an error; streaming callers swallow
// the error since incomplete arguments mid-stream are expected.
func ParsePartial(s string) (map[string]interface{}, error) {
	s = strings.TrimSpace(s)
	if s == "" || s == "{" {
		return map[string]interface{}{}, nil
	}

	repaired := repair(s)

	var out map[string]interface{}
	if err := json.Unmarshal(repaired, &out); err != nil {
		return map[string]interface{}{}, fmt.Errorf("parse partial arguments: %w", err)
	}
	return out, nil
}

// frame tracks one open container while scanning.
type frame struct {
	kind        byte // '{' or '['
	memberStart int  // offset in buf where the current member began
	sawColon    bool // object member has a key and a colon
}

// repair turns a JSON prefix into a parseable document.
func repair(s string) []byte {
	var buf bytes.Buffer
	buf.Grow(len(s) + 8)

	var stack []frame
	inString := false
	escaped := false
	tokenStart := -1 // start of the current bare literal, -1 when none

	top := func() *frame {
		if len(stack) == 0 {
			return nil
		}
		return &stack[len(stack)-1]
	}

	for i := 0; i < len(s); i++ {
		c := s[i]

		if inString {
			buf.WriteByte(c)
			if escaped {
				escaped = false
			} else if c == '\\' {
				escaped = true
			} else if c == '"' {
				inString = false
			}
			continue
		}

		switch c {
		case '"':
			tokenStart = -1
			inString = true
			buf.WriteByte(c)
		case '{', '[':
			tokenStart = -1
			buf.WriteByte(c)
			stack = append(stack, frame{kind: c, memberStart: buf.Len()})
		case '}', ']':
			tokenStart = -1
			buf.WriteByte(c)
			if len(stack) > 0 {
				stack = stack[:len(stack)-1]
			}
		case ':':
			tokenStart = -1
			buf.WriteByte(c)
			if f := top(); f != nil {
				f.sawColon = true
			}
		case ',':
			tokenStart = -1
			buf.WriteByte(c)
			if f := top(); f != nil {
				f.memberStart = buf.Len()
				f.sawColon = false
			}
		case ' ', '\t', '\n', '\r':
			buf.WriteByte(c)
		default:
			// Bare literal: number, true, false, null.
			if tokenStart < 0 {
				tokenStart = buf.Len()
			}
			buf.WriteByte(c)
		}
	}

	// Close an open string.
	if inString {
		if escaped {
			// A lone trailing backslash would escape our closing quote.
			b := buf.Bytes()
			buf.Truncate(len(b) - 1)
		}
		buf.WriteByte('"')
		inString = false
	}

	// A trailing bare literal that is not valid JSON on its own (tru, 12.)
	// is dropped together with its member.
	if tokenStart >= 0 {
		token := bytes.TrimSpace(buf.Bytes()[tokenStart:])
		if !json.Valid(token) {
			buf.Truncate(tokenStart)
		}
	}

	// Unwind open containers, dropping dangling members on the way out.
	for len(stack) > 0 {
		f := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		content := bytes.TrimSpace(buf.Bytes()[f.memberStart:])
		if f.kind == '{' && len(content) > 0 {
			if !f.sawColon {
				// Key with no value yet ({"loc): drop the member.
				truncateMember(&buf, f.memberStart)
			} else if valueAfterColonEmpty(content) {
				// Key and colon but no value ({"a":): drop the member.
				truncateMember(&buf, f.memberStart)
			}
		}
		trimTrailingComma(&buf)
		if f.kind == '{' {
			buf.WriteByte('}')
		} else {
			buf.WriteByte(']')
		}
	}

	trimTrailingComma(&buf)
	return buf.Bytes()
}

// truncateMember cuts buf back to the start of the current member and
// removes the comma that introduced it.
func truncateMember(buf *bytes.Buffer, memberStart int) {
	b := buf.Bytes()[:memberStart]
	b = bytes.TrimRight(b, " \t\n\r")
	if len(b) > 0 && b[len(b)-1] == ',' {
		b = b[:len(b)-1]
	}
	s := string(b)
	buf.Reset()
	buf.WriteString(s)
}

// trimTrailingComma removes a trailing comma left by a dropped element.
func trimTrailingComma(buf *bytes.Buffer) {
	b := bytes.TrimRight(buf.Bytes(), " \t\n\r")
	if len(b) > 0 && b[len(b)-1] == ',' {
		b = b[:len(b)-1]
	}
	s := string(b)
	buf.Reset()
	buf.WriteString(s)
}

// valueAfterColonEmpty reports whether an object member ends at its colon.
func valueAfterColonEmpty(member []byte) bool {
	// Find the colon that separates key and value. The key is a string, so
	// scan past it first.
	inStr := false
	esc := false
	for i := 0; i < len(member); i++ {
		c := member[i]
		if inStr {
			if esc {
				esc = false
			} else if c == '\\' {
				esc = true
			} else if c == '"' {
				inStr = false
			}
			continue
		}
		if c == '"' {
			inStr = true
			continue
		}
		if c == ':' {
			rest := bytes.TrimSpace(member[i+1:])
			return len(rest) == 0
		}
	}
	return false
}
