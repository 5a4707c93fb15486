// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package ephemeral

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func sseEvent(t *testing.T, eventType string, data interface{}) string {
	t.Helper()
	payload, err := json.Marshal(map[string]interface{}{"event": eventType, "data": data})
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	return fmt.Sprintf("data: %s\n\n", payload)
}

func TestBuildContext(t *testing.T) {
	got := BuildContext("full message", "")
	if got != "Message: full message" {
		t.Errorf("got %q", got)
	}

	got = BuildContext("full message", "a span")
	want := "Message: full message\n\nSelected text: \"a span\""
	if got != want {
		t.Errorf("got %q, want %q", got, want)
	}
}

func TestAsk_CollectsDeltas(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/ephemeral_query" {
			t.Errorf("path = %q", r.URL.Path)
		}
		var q Query
		if err := json.NewDecoder(r.Body).Decode(&q); err != nil {
			t.Errorf("decode body: %v", err)
		}
		if q.Query != "what does this mean?" || !strings.HasPrefix(q.Context, "Message:") {
			t.Errorf("query = %+v", q)
		}

		w.Header().Set("Content-Type", "text/event-stream")
		io.WriteString(w, sseEvent(t, "response.output_text.delta", map[string]string{"delta": "It means "}))
		// Tool events in the side channel are ignored.
		io.WriteString(w, sseEvent(t, "response.output_item.added", map[string]interface{}{
			"item": map[string]string{"type": "web_search_call", "id": "ws_1"},
		}))
		io.WriteString(w, sseEvent(t, "response.output_text.delta", map[string]string{"delta": "exactly that."}))
		io.WriteString(w, sseEvent(t, "response.completed", map[string]interface{}{}))
		io.WriteString(w, "data: [DONE]\n\n")
	}))
	defer srv.Close()

	c := NewClient(srv.URL, nil)
	got, err := c.Ask(context.Background(), Query{
		Query:   "what does this mean?",
		Context: BuildContext("some text", ""),
	})
	if err != nil {
		t.Fatalf("Ask: %v", err)
	}
	if got != "It means exactly that." {
		t.Errorf("answer = %q", got)
	}
}

func TestAskStream_EmptyQuery(t *testing.T) {
	c := NewClient("http://localhost:0", nil)
	if err := c.AskStream(context.Background(), Query{Query: "  "}, func(string) {}); err == nil {
		t.Fatal("empty query must error without a request")
	}
}

func TestAskStream_StatusError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error":"api key missing"}`, http.StatusBadRequest)
	}))
	defer srv.Close()

	c := NewClient(srv.URL, nil)
	err := c.AskStream(context.Background(), Query{Query: "q"}, func(string) {})
	if err == nil || !strings.Contains(err.Error(), "400") {
		t.Fatalf("err = %v, want status error", err)
	}
}

func TestAskStream_EndsOnCompletedWithoutDone(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		io.WriteString(w, sseEvent(t, "response.output_text.delta", map[string]string{"delta": "hi"}))
		io.WriteString(w, sseEvent(t, "response.completed", map[string]interface{}{}))
		// No [DONE]: completion alone ends the read.
	}))
	defer srv.Close()

	c := NewClient(srv.URL, nil)
	got, err := c.Ask(context.Background(), Query{Query: "q"})
	if err != nil {
		t.Fatalf("Ask: %v", err)
	}
	if got != "hi" {
		t.Errorf("answer = %q", got)
	}
}
