// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package tools

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
)

// =============================================================================
// DESCRIPTOR TESTS
// =============================================================================

func TestDescriptors_Empty(t *testing.T) {
	if ds := Descriptors(Options{}); len(ds) != 0 {
		t.Errorf("no enabled tools should yield no descriptors, got %d", len(ds))
	}
}

func TestDescriptors_WebSearchLocation(t *testing.T) {
	ds := Descriptors(Options{WebSearchEnabled: true})
	if len(ds) != 1 || ds[0].Type != "web_search" {
		t.Fatalf("got %+v, want single web_search", ds)
	}
	if ds[0].UserLocation != nil {
		t.Error("empty location must not be advertised")
	}

	ds = Descriptors(Options{
		WebSearchEnabled:  true,
		WebSearchLocation: UserLocation{City: "San Francisco"},
	})
	if ds[0].UserLocation == nil {
		t.Fatal("location bias should be advertised")
	}
	if ds[0].UserLocation.Type != "approximate" {
		t.Errorf("location type = %q, want approximate", ds[0].UserLocation.Type)
	}
}

func TestDescriptors_FileSearchRequiresVectorStore(t *testing.T) {
	if ds := Descriptors(Options{FileSearchEnabled: true}); len(ds) != 0 {
		t.Error("file search without a vector store must be omitted")
	}

	ds := Descriptors(Options{FileSearchEnabled: true, VectorStoreID: "vs_1"})
	if len(ds) != 1 || ds[0].Type != "file_search" {
		t.Fatalf("got %+v", ds)
	}
	if len(ds[0].VectorStoreIDs) != 1 || ds[0].VectorStoreIDs[0] != "vs_1" {
		t.Errorf("VectorStoreIDs = %v", ds[0].VectorStoreIDs)
	}
}

func TestDescriptors_CodeInterpreterAutoContainer(t *testing.T) {
	ds := Descriptors(Options{CodeInterpreterEnabled: true})
	if len(ds) != 1 || ds[0].Container == nil || ds[0].Container.Type != "auto" {
		t.Fatalf("got %+v, want code_interpreter with auto container", ds)
	}
}

func TestDescriptors_Functions(t *testing.T) {
	ds := Descriptors(Options{FunctionsEnabled: true})
	if len(ds) != 2 {
		t.Fatalf("got %d function descriptors, want 2", len(ds))
	}
	for _, d := range ds {
		if d.Type != "function" || !d.Strict {
			t.Errorf("descriptor %q should be a strict function", d.Name)
		}
		if !json.Valid(d.Parameters) {
			t.Errorf("descriptor %q carries invalid schema JSON", d.Name)
		}
	}
}

func TestDescriptors_McpServers(t *testing.T) {
	ds := Descriptors(Options{McpServers: []McpServer{
		{Label: "deco", URL: "https://mcp.example.com", AllowedTools: []string{"search"}, SkipApproval: true},
		{Label: "", URL: "https://ignored.example.com"},
	}})

	if len(ds) != 1 {
		t.Fatalf("got %d descriptors, want 1 (unlabeled server skipped)", len(ds))
	}
	d := ds[0]
	if d.Type != "mcp" || d.ServerLabel != "deco" || d.RequireApproval != "never" {
		t.Errorf("descriptor = %+v", d)
	}
}

func TestDescriptors_StableOrder(t *testing.T) {
	opts := Options{
		WebSearchEnabled:       true,
		FileSearchEnabled:      true,
		VectorStoreID:          "vs_1",
		CodeInterpreterEnabled: true,
		FunctionsEnabled:       true,
	}

	ds := Descriptors(opts)
	wantOrder := []string{"web_search", "file_search", "code_interpreter", "function", "function"}
	if len(ds) != len(wantOrder) {
		t.Fatalf("got %d descriptors, want %d", len(ds), len(wantOrder))
	}
	for i, want := range wantOrder {
		if ds[i].Type != want {
			t.Errorf("ds[%d].Type = %q, want %q", i, ds[i].Type, want)
		}
	}
}

// =============================================================================
// REGISTRY TESTS
// =============================================================================

func TestRegistry_HandleUnknownTool(t *testing.T) {
	r := NewRegistry()

	_, err := r.Handle(context.Background(), "nope", nil)
	if !errors.Is(err, ErrUnknownTool) {
		t.Fatalf("err = %v, want ErrUnknownTool", err)
	}
}

func TestRegistry_HandleDispatches(t *testing.T) {
	r := NewRegistry()
	r.Register("echo", func(ctx context.Context, args map[string]interface{}) (interface{}, error) {
		return args["msg"], nil
	})

	got, err := r.Handle(context.Background(), "echo", map[string]interface{}{"msg": "hi"})
	if err != nil {
		t.Fatalf("Handle: %v", err)
	}
	if got != "hi" {
		t.Errorf("got %v, want hi", got)
	}
}

func TestBuiltinRegistry_GetWeather(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/functions/get_weather" {
			t.Errorf("path = %q", r.URL.Path)
		}
		if r.URL.Query().Get("location") != "SF" {
			t.Errorf("location = %q", r.URL.Query().Get("location"))
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"temperature": 18, "unit": "celsius"}`))
	}))
	defer srv.Close()

	r := NewBuiltinRegistry(srv.URL)
	got, err := r.Handle(context.Background(), "get_weather",
		map[string]interface{}{"location": "SF", "unit": "celsius"})
	if err != nil {
		t.Fatalf("Handle: %v", err)
	}
	m, ok := got.(map[string]interface{})
	if !ok || m["temperature"] != float64(18) {
		t.Errorf("got %v", got)
	}
}

func TestBuiltinRegistry_Names(t *testing.T) {
	r := NewBuiltinRegistry("http://localhost:0")
	names := r.Names()
	if len(names) != 2 || names[0] != "get_joke" || names[1] != "get_weather" {
		t.Errorf("Names() = %v", names)
	}
}
