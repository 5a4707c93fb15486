// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package ephemeral implements the side-channel question flow: a one-shot
// query about a piece of transcript text, answered by the model without
// touching the conversation.
//
// Nothing here reads or writes the transcript store. The context string
// is built from a snapshot of the message text; the answer lives only in
// the asking UI.
package ephemeral

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"strings"

	"github.com/jeranaias/strand/internal/stream"
)

// Query is one ephemeral question.
type Query struct {
	// Query is the user's question. Required.
	Query string `json:"query"`

	// Context is the transcript snapshot the question is about. Optional.
	Context string `json:"context,omitempty"`
}

// BuildContext renders a message body plus an optional selected span into
// the context string sent with a query.
func BuildContext(message, selectedText string) string {
	var b strings.Builder
	b.WriteString("Message: ")
	b.WriteString(message)
	if selectedText != "" {
		b.WriteString("\n\nSelected text: \"")
		b.WriteString(selectedText)
		b.WriteString("\"")
	}
	return b.String()
}

// =============================================================================
// CLIENT
// =============================================================================

// Client asks ephemeral questions through the local proxy.
type Client struct {
	baseURL string
	client  *http.Client
}

// NewClient creates a Client against the proxy at baseURL.
func NewClient(baseURL string, httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = &http.Client{}
	}
	return &Client{baseURL: baseURL, client: httpClient}
}

// AskStream sends q and invokes onDelta for every text fragment of the
// answer, in order. Tool events in the answer stream are ignored; only
// text reaches the caller.
func (c *Client) AskStream(ctx context.Context, q Query, onDelta func(string)) error {
	if strings.TrimSpace(q.Query) == "" {
		return errors.New("empty query")
	}

	body, err := json.Marshal(q)
	if err != nil {
		return fmt.Errorf("encode query: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/ephemeral_query", bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build query request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "text/event-stream")

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("query request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return fmt.Errorf("query endpoint returned %d: %s", resp.StatusCode, bytes.TrimSpace(msg))
	}

	r := stream.NewReader(resp.Body)
	for {
		ev, err := r.Next()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			var pe *stream.ParseError
			if errors.As(err, &pe) {
				log.Printf("EPHEMERAL | skipping malformed event: %v", pe)
				continue
			}
			return fmt.Errorf("read answer stream: %w", err)
		}

		switch ev.Type {
		case "response.output_text.delta":
			var d struct {
				Delta string `json:"delta"`
			}
			if err := ev.Decode(&d); err != nil {
				log.Printf("EPHEMERAL | skipping undecodable delta: %v", err)
				continue
			}
			if d.Delta != "" {
				onDelta(d.Delta)
			}
		case "response.completed":
			return nil
		}
	}
}

// Ask sends q and returns the complete answer text.
func (c *Client) Ask(ctx context.Context, q Query) (string, error) {
	var b strings.Builder
	if err := c.AskStream(ctx, q, func(delta string) {
		b.WriteString(delta)
	}); err != nil {
		return "", err
	}
	return b.String(), nil
}
