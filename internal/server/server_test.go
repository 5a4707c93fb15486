// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package server

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"

	"github.com/jeranaias/strand/internal/config"
	"github.com/jeranaias/strand/internal/storage"
)

// testConfig returns a config pointing at the given fake upstream.
func testConfig(upstreamURL string) *config.Config {
	cfg := config.Default()
	cfg.API.Key = "sk-test"
	cfg.API.BaseURL = upstreamURL
	return cfg
}

// fakeResponses builds an upstream that records the request body and
// streams the given event/payload pairs in upstream SSE framing.
func fakeResponses(t *testing.T, captured *[]byte, events ...[2]string) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/responses" {
			t.Errorf("upstream path = %q", r.URL.Path)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer sk-test" {
			t.Errorf("Authorization = %q", got)
		}
		body, _ := io.ReadAll(r.Body)
		if captured != nil {
			*captured = body
		}

		w.Header().Set("Content-Type", "text/event-stream")
		for _, ev := range events {
			fmt.Fprintf(w, "event: %s\ndata: %s\n\n", ev[0], ev[1])
		}
		fmt.Fprint(w, "event: done\ndata: [DONE]\n\n")
	}))
}

// =============================================================================
// TURN RESPONSE
// =============================================================================

func TestTurnResponse_ReframesUpstreamStream(t *testing.T) {
	var captured []byte
	upstream := fakeResponses(t, &captured,
		[2]string{"response.output_text.delta", `{"delta":"Hel"}`},
		[2]string{"response.output_text.delta", `{"delta":"lo"}`},
		[2]string{"response.completed", `{"response":{"id":"resp_1"}}`},
	)
	defer upstream.Close()

	srv := New(testConfig(upstream.URL))
	ts := httptest.NewServer(srv.router)
	defer ts.Close()

	body := `{"messages":[{"role":"user","content":"hi"}],"tools":[]}`
	resp, err := http.Post(ts.URL+"/api/turn_response", "application/json", strings.NewReader(body))
	if err != nil {
		t.Fatalf("POST: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	if ct := resp.Header.Get("Content-Type"); ct != "text/event-stream" {
		t.Errorf("Content-Type = %q", ct)
	}

	out, _ := io.ReadAll(resp.Body)
	stream := string(out)

	for _, want := range []string{
		`data: {"event":"response.output_text.delta","data":{"delta":"Hel"}}`,
		`data: {"event":"response.output_text.delta","data":{"delta":"lo"}}`,
		`data: {"event":"response.completed","data":{"response":{"id":"resp_1"}}}`,
	} {
		if !strings.Contains(stream, want) {
			t.Errorf("stream missing %q\ngot:\n%s", want, stream)
		}
	}
	if !strings.HasSuffix(strings.TrimSpace(stream), "data: [DONE]") {
		t.Errorf("stream must end with [DONE]:\n%s", stream)
	}

	// The upstream body carries the configured model and stream flag.
	var sent responsesRequest
	if err := json.Unmarshal(captured, &sent); err != nil {
		t.Fatalf("upstream body: %v", err)
	}
	if !sent.Stream {
		t.Error("stream flag not set")
	}
	if sent.Model == "" {
		t.Error("model missing from upstream request")
	}
	if sent.Instructions == "" {
		t.Error("instructions missing from upstream request")
	}
}

func TestTurnResponse_MissingKey(t *testing.T) {
	cfg := config.Default()
	cfg.API.Key = ""
	srv := New(cfg)

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/turn_response",
		strings.NewReader(`{"messages":[{"role":"user","content":"hi"}]}`))
	srv.router.ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d", rec.Code)
	}
}

func TestTurnResponse_EmptyMessages(t *testing.T) {
	srv := New(testConfig("http://127.0.0.1:0"))

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/turn_response", strings.NewReader(`{}`))
	srv.router.ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d", rec.Code)
	}
}

func TestTurnResponse_UpstreamError(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error":"bad key"}`, http.StatusUnauthorized)
	}))
	defer upstream.Close()

	srv := New(testConfig(upstream.URL))
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/turn_response",
		strings.NewReader(`{"messages":[{"role":"user","content":"hi"}]}`))
	srv.router.ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want upstream status relayed", rec.Code)
	}
}

// =============================================================================
// EPHEMERAL QUERY
// =============================================================================

func TestEphemeralQuery_BuildsSideChannelRequest(t *testing.T) {
	var captured []byte
	upstream := fakeResponses(t, &captured,
		[2]string{"response.output_text.delta", `{"delta":"42"}`},
	)
	defer upstream.Close()

	srv := New(testConfig(upstream.URL))
	ts := httptest.NewServer(srv.router)
	defer ts.Close()

	body := `{"query":"what does this mean?","context":"E = mc^2"}`
	resp, err := http.Post(ts.URL+"/api/ephemeral_query", "application/json", strings.NewReader(body))
	if err != nil {
		t.Fatalf("POST: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	io.Copy(io.Discard, resp.Body)

	var sent responsesRequest
	if err := json.Unmarshal(captured, &sent); err != nil {
		t.Fatalf("upstream body: %v", err)
	}
	if sent.ParallelToolCalls == nil || *sent.ParallelToolCalls {
		t.Error("parallel_tool_calls must be false")
	}

	var input []map[string]string
	if err := json.Unmarshal(sent.Input, &input); err != nil {
		t.Fatalf("input: %v", err)
	}
	if len(input) != 2 || input[0]["role"] != "developer" {
		t.Fatalf("input = %+v", input)
	}
	if !strings.Contains(input[1]["content"], "Based on this context") ||
		!strings.Contains(input[1]["content"], "what does this mean?") {
		t.Errorf("user content = %q", input[1]["content"])
	}
}

func TestEphemeralQuery_MissingQuery(t *testing.T) {
	srv := New(testConfig("http://127.0.0.1:0"))

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/ephemeral_query",
		strings.NewReader(`{"context":"some text"}`))
	srv.router.ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d", rec.Code)
	}
}

func TestEphemeralQuery_MissingKey(t *testing.T) {
	cfg := config.Default()
	cfg.API.Key = ""
	srv := New(cfg)

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/ephemeral_query",
		strings.NewReader(`{"query":"hi"}`))
	srv.router.ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d", rec.Code)
	}
}

// =============================================================================
// CONTAINER FILES
// =============================================================================

func openTestFileCache(t *testing.T) *storage.FileCache {
	t.Helper()
	fc, err := storage.OpenFileCache(filepath.Join(t.TempDir(), "cache.db"))
	if err != nil {
		t.Fatalf("OpenFileCache: %v", err)
	}
	t.Cleanup(func() { fc.Close() })
	return fc
}

func TestContainerFile_MissingID(t *testing.T) {
	srv := New(testConfig("http://127.0.0.1:0"))

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/api/container_files/content", nil)
	srv.router.ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d", rec.Code)
	}
}

func TestContainerFile_ServedFromCache(t *testing.T) {
	fc := openTestFileCache(t)
	data := []byte("%PDF-1.4 fake")
	err := fc.Put(context.Background(), storage.CachedFile{
		FileID:   "cfile_1",
		Filename: "report.pdf",
		MimeType: "application/pdf",
		Data:     data,
	})
	if err != nil {
		t.Fatalf("Put: %v", err)
	}

	// No upstream: a cache hit must not touch the network.
	srv := New(testConfig("http://127.0.0.1:0")).WithFileCache(fc)

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/api/container_files/content?file_id=cfile_1", nil)
	srv.router.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if !bytes.Equal(rec.Body.Bytes(), data) {
		t.Error("body does not match cached bytes")
	}
	if ct := rec.Header().Get("Content-Type"); ct != "application/pdf" {
		t.Errorf("Content-Type = %q", ct)
	}
	if cd := rec.Header().Get("Content-Disposition"); !strings.Contains(cd, "report.pdf") {
		t.Errorf("Content-Disposition = %q", cd)
	}
}

func TestContainerFile_FetchesAndCaches(t *testing.T) {
	payload := []byte{0x89, 'P', 'N', 'G'}
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/container-files/cfile_2/content" {
			t.Errorf("upstream path = %q", r.URL.Path)
		}
		w.Header().Set("Content-Type", "image/png")
		w.Write(payload)
	}))
	defer upstream.Close()

	fc := openTestFileCache(t)
	srv := New(testConfig(upstream.URL)).WithFileCache(fc)

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/api/container_files/content?file_id=cfile_2", nil)
	srv.router.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if !bytes.Equal(rec.Body.Bytes(), payload) {
		t.Error("body does not match upstream bytes")
	}

	cached, err := fc.Get(context.Background(), "cfile_2")
	if err != nil {
		t.Fatalf("file not cached after fetch: %v", err)
	}
	if cached.MimeType != "image/png" {
		t.Errorf("cached MimeType = %q", cached.MimeType)
	}
}

func TestContainerFile_UpstreamFailure(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	}))
	defer upstream.Close()

	srv := New(testConfig(upstream.URL))
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/api/container_files/content?file_id=cfile_gone", nil)
	srv.router.ServeHTTP(rec, req)

	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d", rec.Code)
	}
}

// =============================================================================
// FUNCTION ENDPOINTS
// =============================================================================

func TestGetWeather(t *testing.T) {
	geo := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.URL.Query().Get("name"); got != "Oslo" {
			t.Errorf("geocode name = %q", got)
		}
		fmt.Fprint(w, `{"results":[{"name":"Oslo","latitude":59.91,"longitude":10.75}]}`)
	}))
	defer geo.Close()

	forecast := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.URL.Query().Get("temperature_unit"); got != "fahrenheit" {
			t.Errorf("temperature_unit = %q", got)
		}
		fmt.Fprint(w, `{"current_weather":{"temperature":46.4}}`)
	}))
	defer forecast.Close()

	srv := New(testConfig("http://127.0.0.1:0"))
	srv.geocodingBaseURL = geo.URL
	srv.forecastBaseURL = forecast.URL

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/api/functions/get_weather?location=Oslo&unit=fahrenheit", nil)
	srv.router.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d body = %s", rec.Code, rec.Body)
	}
	var got struct {
		Location    string  `json:"location"`
		Temperature float64 `json:"temperature"`
		Unit        string  `json:"unit"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &got); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got.Location != "Oslo" || got.Temperature != 46.4 || got.Unit != "fahrenheit" {
		t.Errorf("response = %+v", got)
	}
}

func TestGetWeather_MissingLocation(t *testing.T) {
	srv := New(testConfig("http://127.0.0.1:0"))

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/api/functions/get_weather", nil)
	srv.router.ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d", rec.Code)
	}
}

func TestGetJoke(t *testing.T) {
	joke := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/random_joke" {
			t.Errorf("joke path = %q", r.URL.Path)
		}
		fmt.Fprint(w, `{"setup":"Why do programmers prefer dark mode?","punchline":"Light attracts bugs."}`)
	}))
	defer joke.Close()

	srv := New(testConfig("http://127.0.0.1:0"))
	srv.jokeBaseURL = joke.URL

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/api/functions/get_joke", nil)
	srv.router.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "Light attracts bugs.") {
		t.Errorf("body = %s", rec.Body)
	}
}

// =============================================================================
// HEALTH AND CONFIG SWAP
// =============================================================================

func TestHealth(t *testing.T) {
	srv := New(testConfig("http://127.0.0.1:0"))

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	srv.router.ServeHTTP(rec, req)

	var got HealthResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &got); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got.Status != "ok" || !got.KeyConfigured || got.CacheEnabled {
		t.Errorf("health = %+v", got)
	}
}

func TestUpdateConfig_SwapsKey(t *testing.T) {
	cfg := config.Default()
	cfg.API.Key = ""
	srv := New(cfg)

	next := config.Default()
	next.API.Key = "sk-rotated"
	srv.UpdateConfig(next)

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	srv.router.ServeHTTP(rec, req)

	var got HealthResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &got); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !got.KeyConfigured {
		t.Error("rotated key not visible")
	}
}

// =============================================================================
// SSE RELAY
// =============================================================================

type nopFlusher struct{ io.Writer }

func (nopFlusher) Flush() {}

func TestRelaySSE_InfersEventFromPayloadType(t *testing.T) {
	upstream := strings.NewReader("data: {\"type\":\"response.created\",\"response\":{}}\n\n")

	var buf bytes.Buffer
	relaySSE(&buf, nopFlusher{&buf}, upstream)

	out := buf.String()
	if !strings.Contains(out, `"event":"response.created"`) {
		t.Errorf("event not inferred from payload:\n%s", out)
	}
	if !strings.HasSuffix(strings.TrimSpace(out), "data: [DONE]") {
		t.Errorf("missing [DONE]:\n%s", out)
	}
}

func TestRelaySSE_SkipsUpstreamDoneMarker(t *testing.T) {
	upstream := strings.NewReader("event: x\ndata: [DONE]\n\n")

	var buf bytes.Buffer
	relaySSE(&buf, nopFlusher{&buf}, upstream)

	if n := strings.Count(buf.String(), "[DONE]"); n != 1 {
		t.Errorf("[DONE] count = %d, want exactly one terminator", n)
	}
}
