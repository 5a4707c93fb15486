// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package tools builds the tool descriptors advertised to the Responses
// API and executes the locally-registered function tools.
//
// Descriptors are data only; nothing here performs network calls except
// the built-in function handlers, which go through the local proxy.
package tools

import (
	"encoding/json"
)

// =============================================================================
// DESCRIPTOR TYPES
// =============================================================================

// UserLocation biases web search results toward an approximate location.
type UserLocation struct {
	Type    string `json:"type"` // always "approximate"
	Country string `json:"country,omitempty"`
	City    string `json:"city,omitempty"`
	Region  string `json:"region,omitempty"`
}

// IsZero reports whether no location component is set.
func (l UserLocation) IsZero() bool {
	return l.Country == "" && l.City == "" && l.Region == ""
}

// Container configures the code interpreter sandbox.
type Container struct {
	Type string `json:"type"` // "auto" provisions on demand
}

// McpServer describes one remote MCP tool server.
type McpServer struct {
	Label        string   `json:"label"`
	URL          string   `json:"url"`
	AllowedTools []string `json:"allowed_tools,omitempty"`
	SkipApproval bool     `json:"skip_approval,omitempty"`
}

// Descriptor is one entry of the tools array sent with a turn request.
// Exactly the fields relevant to its Type are populated.
type Descriptor struct {
	Type string `json:"type"`

	// web_search
	UserLocation *UserLocation `json:"user_location,omitempty"`

	// file_search
	VectorStoreIDs []string `json:"vector_store_ids,omitempty"`

	// code_interpreter
	Container *Container `json:"container,omitempty"`

	// function
	Name        string          `json:"name,omitempty"`
	Description string          `json:"description,omitempty"`
	Parameters  json.RawMessage `json:"parameters,omitempty"`
	Strict      bool            `json:"strict,omitempty"`

	// mcp
	ServerLabel     string   `json:"server_label,omitempty"`
	ServerURL       string   `json:"server_url,omitempty"`
	AllowedTools    []string `json:"allowed_tools,omitempty"`
	RequireApproval string   `json:"require_approval,omitempty"`
}

// =============================================================================
// OPTIONS
// =============================================================================

// Options is the tool configuration a descriptor list is derived from.
// It mirrors the persisted client state.
type Options struct {
	WebSearchEnabled  bool
	WebSearchLocation UserLocation

	FileSearchEnabled bool
	VectorStoreID     string

	CodeInterpreterEnabled bool

	FunctionsEnabled bool

	McpServers []McpServer
}

// =============================================================================
// DESCRIPTOR CONSTRUCTION
// =============================================================================

// Descriptors derives the ordered tool descriptor list from opts.
// Pure function: same options, same descriptors.
func Descriptors(opts Options) []Descriptor {
	var ds []Descriptor

	if opts.WebSearchEnabled {
		d := Descriptor{Type: "web_search"}
		if !opts.WebSearchLocation.IsZero() {
			loc := opts.WebSearchLocation
			loc.Type = "approximate"
			d.UserLocation = &loc
		}
		ds = append(ds, d)
	}

	if opts.FileSearchEnabled && opts.VectorStoreID != "" {
		ds = append(ds, Descriptor{
			Type:           "file_search",
			VectorStoreIDs: []string{opts.VectorStoreID},
		})
	}

	if opts.CodeInterpreterEnabled {
		ds = append(ds, Descriptor{
			Type:      "code_interpreter",
			Container: &Container{Type: "auto"},
		})
	}

	if opts.FunctionsEnabled {
		ds = append(ds, FunctionDescriptors()...)
	}

	for _, srv := range opts.McpServers {
		if srv.Label == "" || srv.URL == "" {
			continue
		}
		d := Descriptor{
			Type:         "mcp",
			ServerLabel:  srv.Label,
			ServerURL:    srv.URL,
			AllowedTools: srv.AllowedTools,
		}
		if srv.SkipApproval {
			d.RequireApproval = "never"
		}
		ds = append(ds, d)
	}

	return ds
}

// FunctionDescriptors returns the schema descriptors for the built-in
// local functions. Strict-argument mode keeps the model from inventing
// parameters.
func FunctionDescriptors() []Descriptor {
	return []Descriptor{
		{
			Type:        "function",
			Name:        "get_weather",
			Description: "Get the current weather for a location",
			Strict:      true,
			Parameters: json.RawMessage(`{
				"type": "object",
				"properties": {
					"location": {"type": "string", "description": "City name"},
					"unit": {"type": "string", "enum": ["celsius", "fahrenheit"]}
				},
				"required": ["location", "unit"],
				"additionalProperties": false
			}`),
		},
		{
			Type:        "function",
			Name:        "get_joke",
			Description: "Fetch a programming joke",
			Strict:      true,
			Parameters: json.RawMessage(`{
				"type": "object",
				"properties": {},
				"additionalProperties": false
			}`),
		},
	}
}
