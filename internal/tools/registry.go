// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sort"
	"sync"
	"time"
)

// ErrUnknownTool is wrapped by Handle when the model calls a function
// that was never registered.
var ErrUnknownTool = fmt.Errorf("unknown tool")

// Handler executes one local function tool. The result must be
// JSON-serializable; it is sent back to the model verbatim.
type Handler func(ctx context.Context, args map[string]interface{}) (interface{}, error)

// =============================================================================
// REGISTRY
// =============================================================================

// Registry maps function tool names to their local handlers.
type Registry struct {
	mu       sync.RWMutex
	handlers map[string]Handler
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{handlers: make(map[string]Handler)}
}

// Register binds a handler to a tool name, replacing any previous one.
func (r *Registry) Register(name string, fn Handler) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.handlers[name] = fn
}

// Names returns the registered tool names, sorted.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.handlers))
	for name := range r.handlers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Handle executes the named tool with the given parsed arguments.
// Unknown names fail with ErrUnknownTool.
func (r *Registry) Handle(ctx context.Context, name string, args map[string]interface{}) (interface{}, error) {
	r.mu.RLock()
	fn, ok := r.handlers[name]
	r.mu.RUnlock()

	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownTool, name)
	}
	return fn(ctx, args)
}

// =============================================================================
// BUILT-IN HANDLERS
// =============================================================================

// NewBuiltinRegistry returns a registry with the built-in functions
// wired to the local proxy's function endpoints.
func NewBuiltinRegistry(proxyBaseURL string) *Registry {
	client := &http.Client{Timeout: 15 * time.Second}

	r := NewRegistry()
	r.Register("get_weather", func(ctx context.Context, args map[string]interface{}) (interface{}, error) {
		q := url.Values{}
		if loc, _ := args["location"].(string); loc != "" {
			q.Set("location", loc)
		}
		if unit, _ := args["unit"].(string); unit != "" {
			q.Set("unit", unit)
		}
		return getJSON(ctx, client, proxyBaseURL+"/api/functions/get_weather?"+q.Encode())
	})
	r.Register("get_joke", func(ctx context.Context, args map[string]interface{}) (interface{}, error) {
		return getJSON(ctx, client, proxyBaseURL+"/api/functions/get_joke")
	})
	return r
}

// getJSON fetches a JSON document from the proxy.
func getJSON(ctx context.Context, client *http.Client, rawURL string) (interface{}, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}

	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("function endpoint returned %d: %s", resp.StatusCode, body)
	}

	var out interface{}
	if err := json.Unmarshal(body, &out); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	return out, nil
}
