// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package turn drives one full conversation turn against the local proxy:
// send the wire transcript, fold the resulting event stream into the
// store, execute any function calls the model issued, and re-send until
// the model produces a final reply.
//
// Continuation is an explicit bounded loop. Each round of function calls
// counts as one tool turn; a repeated call id or too many tool turns
// stops the loop with an error instead of spinning.
package turn

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"time"

	"github.com/jeranaias/strand/internal/model"
	"github.com/jeranaias/strand/internal/store"
	"github.com/jeranaias/strand/internal/stream"
	"github.com/jeranaias/strand/internal/tools"
)

// =============================================================================
// CONSTANTS AND ERRORS
// =============================================================================

// DefaultMaxToolTurns bounds how many function-call rounds a single user
// turn may trigger before the processor gives up.
const DefaultMaxToolTurns = 10

// ErrToolTurnLimit is returned when the continuation loop hits its bound.
var ErrToolTurnLimit = errors.New("tool turn limit reached")

// ErrRepeatedCall is returned when the model re-issues a call id it
// already received an output for, which would otherwise loop forever.
var ErrRepeatedCall = errors.New("model repeated a completed call id")

// StatusError reports a non-200 response from the turn endpoint.
type StatusError struct {
	Code int
	Body string
}

// Error implements the error interface.
func (e *StatusError) Error() string {
	return fmt.Sprintf("turn endpoint returned %d: %s", e.Code, e.Body)
}

// =============================================================================
// PROCESSOR
// =============================================================================

// Config carries the processor's collaborators and knobs.
type Config struct {
	// BaseURL is the local proxy address, e.g. "http://127.0.0.1:8843".
	BaseURL string

	// Client is the HTTP client used for turn requests. Streaming
	// requests must not carry a response timeout; use a transport-level
	// timeout instead. Defaults to a client with none.
	Client *http.Client

	// ToolOptions resolves the tool configuration at send time, so
	// toggling a tool mid-conversation affects the next request.
	ToolOptions func() tools.Options

	// Notify is invoked after every transcript mutation so the UI can
	// re-render. May be nil.
	Notify func()

	// MaxToolTurns overrides DefaultMaxToolTurns when positive.
	MaxToolTurns int
}

// Processor runs conversation turns against the proxy.
type Processor struct {
	store    *store.Store
	registry *tools.Registry

	baseURL      string
	client       *http.Client
	toolOptions  func() tools.Options
	notify       func()
	maxToolTurns int
}

// New creates a Processor bound to a store and a tool registry.
func New(st *store.Store, reg *tools.Registry, cfg Config) *Processor {
	p := &Processor{
		store:        st,
		registry:     reg,
		baseURL:      cfg.BaseURL,
		client:       cfg.Client,
		toolOptions:  cfg.ToolOptions,
		notify:       cfg.Notify,
		maxToolTurns: cfg.MaxToolTurns,
	}
	if p.client == nil {
		p.client = &http.Client{}
	}
	if p.toolOptions == nil {
		p.toolOptions = func() tools.Options { return tools.Options{} }
	}
	if p.maxToolTurns <= 0 {
		p.maxToolTurns = DefaultMaxToolTurns
	}
	return p
}

// ping wakes the UI after a transcript mutation.
func (p *Processor) ping() {
	if p.notify != nil {
		p.notify()
	}
}

// =============================================================================
// ENTRY POINTS
// =============================================================================

// Run appends userText as a user turn and processes the model's response
// to completion, including any tool continuations. An abort via the
// store's cancellation scope ends the turn cleanly with a nil error.
func (p *Processor) Run(ctx context.Context, userText string) error {
	ctx = p.store.BeginTurn(ctx)
	defer p.store.EndTurn()

	if userText != "" {
		p.store.AddUserTurn(userText)
		p.ping()
	}
	return p.loop(ctx)
}

// Continue processes a turn without adding a user message. Used after
// wire-only mutations such as approval responses.
func (p *Processor) Continue(ctx context.Context) error {
	ctx = p.store.BeginTurn(ctx)
	defer p.store.EndTurn()
	return p.loop(ctx)
}

// SubmitApproval answers a pending MCP approval request and resumes the
// turn so the approved (or denied) call can proceed.
func (p *Processor) SubmitApproval(ctx context.Context, approvalRequestID string, approve bool) error {
	p.store.AddWireItem(model.NewApprovalResponse(approvalRequestID, approve))
	return p.Continue(ctx)
}

// =============================================================================
// CONTINUATION LOOP
// =============================================================================

// loop streams responses and services function calls until the model
// stops issuing them.
func (p *Processor) loop(ctx context.Context) error {
	seen := make(map[string]bool)
	toolTurns := 0

	for {
		p.store.SetState(store.StateWaiting)
		p.ping()

		pending, err := p.streamOnce(ctx)
		if err != nil {
			p.store.SetState(store.StateIdle)
			p.ping()
			if ctx.Err() != nil {
				// Aborted mid-stream. Partial content already in the
				// store stays; this is a normal terminal state.
				return nil
			}
			return err
		}
		if len(pending) == 0 {
			p.store.SetState(store.StateIdle)
			p.ping()
			return nil
		}

		toolTurns++
		if toolTurns > p.maxToolTurns {
			p.store.SetState(store.StateIdle)
			p.ping()
			return fmt.Errorf("%w (%d)", ErrToolTurnLimit, p.maxToolTurns)
		}

		for _, call := range pending {
			if seen[call.callID] {
				p.store.SetState(store.StateIdle)
				p.ping()
				return fmt.Errorf("%w: %s", ErrRepeatedCall, call.callID)
			}
			seen[call.callID] = true
			p.execute(ctx, call)
		}
	}
}

// execute runs one local function call and records its output on the
// wire. Handler failures become an error payload the model can read;
// they never kill the turn.
func (p *Processor) execute(ctx context.Context, call pendingCall) {
	result, err := p.registry.Handle(ctx, call.name, call.args)

	var output string
	if err != nil {
		log.Printf("TURN | tool=%s call=%s error=%v", call.name, call.callID, err)
		payload, _ := json.Marshal(map[string]string{"error": err.Error()})
		output = string(payload)
	} else {
		payload, merr := json.Marshal(result)
		if merr != nil {
			payload, _ = json.Marshal(map[string]string{"error": merr.Error()})
		}
		output = string(payload)
	}

	p.store.AddWireItem(model.NewFunctionCallOutput(call.callID, output))
	p.store.UpdateToolCall(call.itemID, func(tc *model.ToolCallItem) {
		tc.Output = output
		if err != nil {
			tc.Status = model.StatusFailed
		} else {
			tc.Status = model.StatusCompleted
		}
	})
	p.ping()
}

// =============================================================================
// SINGLE STREAM
// =============================================================================

// turnRequest is the body posted to the proxy's turn endpoint.
type turnRequest struct {
	Messages []model.WireItem   `json:"messages"`
	Tools    []tools.Descriptor `json:"tools"`
}

// streamOnce sends the current wire transcript and folds the response
// stream into the store. It returns the function calls the model issued
// during this response, in arrival order.
func (p *Processor) streamOnce(ctx context.Context) ([]pendingCall, error) {
	body, err := json.Marshal(turnRequest{
		Messages: p.store.WireItems(),
		Tools:    tools.Descriptors(p.toolOptions()),
	})
	if err != nil {
		return nil, fmt.Errorf("encode turn request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+"/api/turn_response", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build turn request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "text/event-stream")

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("turn request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, &StatusError{Code: resp.StatusCode, Body: string(bytes.TrimSpace(msg))}
	}

	f := newFold(p)
	r := stream.NewReader(resp.Body)
	for {
		ev, err := r.Next()
		if err == io.EOF {
			return f.pending, nil
		}
		if err != nil {
			var pe *stream.ParseError
			if errors.As(err, &pe) {
				// One bad block does not end the turn.
				log.Printf("TURN | skipping malformed event: %v", pe)
				continue
			}
			return f.pending, fmt.Errorf("read event stream: %w", err)
		}
		f.apply(ev)
	}
}

// NewStreamClient builds an HTTP client suitable for streaming: the
// header phase times out, the body read does not.
func NewStreamClient(d time.Duration) *http.Client {
	return &http.Client{
		Transport: &http.Transport{
			ResponseHeaderTimeout: d,
		},
	}
}
