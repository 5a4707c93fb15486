// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package server

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/jeranaias/strand/internal/config"
	"github.com/jeranaias/strand/internal/storage"
	"github.com/jeranaias/strand/internal/tools"
)

// ============================================================================
// CONSTANTS
// ============================================================================

const (
	// MaxRequestBodySize caps request bodies to prevent runaway payloads (4MB).
	MaxRequestBodySize = 4 * 1024 * 1024

	// MaxUpstreamErrorBody caps how much of an upstream error body is relayed.
	MaxUpstreamErrorBody = 4096

	// DefaultGeocodingBaseURL is the open-meteo geocoding endpoint.
	DefaultGeocodingBaseURL = "https://geocoding-api.open-meteo.com/v1"

	// DefaultForecastBaseURL is the open-meteo forecast endpoint.
	DefaultForecastBaseURL = "https://api.open-meteo.com/v1"

	// DefaultJokeBaseURL is the joke endpoint backing get_joke.
	DefaultJokeBaseURL = "https://official-joke-api.appspot.com"

	// Version is the proxy version reported by /health.
	Version = "0.1.0"
)

// ephemeralInstructions is the developer prompt for the side-channel
// question flow.
const ephemeralInstructions = "You are a helpful assistant. Answer the user's question about the provided context concisely and clearly."

// ============================================================================
// SERVER
// ============================================================================

// Server is the local proxy between the TUI and the upstream Responses
// API. It holds the API key so the client side never sees it, re-frames
// upstream SSE into envelope events, and serves the local function
// endpoints backing the function tools.
type Server struct {
	addr   string
	router *http.ServeMux
	server *http.Server

	mu  sync.RWMutex
	cfg *config.Config

	cache *storage.FileCache

	// upstream performs streaming requests: header timeout only, no
	// overall deadline.
	upstream *http.Client

	// subAPI performs bounded non-streaming calls to the function
	// sub-APIs.
	subAPI *http.Client

	geocodingBaseURL string
	forecastBaseURL  string
	jokeBaseURL      string
}

// New creates a proxy server for the given configuration.
func New(cfg *config.Config) *Server {
	s := &Server{
		addr:   cfg.Server.Addr,
		router: http.NewServeMux(),
		cfg:    cfg,
		upstream: &http.Client{
			Transport: &http.Transport{ResponseHeaderTimeout: 30 * time.Second},
		},
		subAPI:           &http.Client{Timeout: 15 * time.Second},
		geocodingBaseURL: DefaultGeocodingBaseURL,
		forecastBaseURL:  DefaultForecastBaseURL,
		jokeBaseURL:      DefaultJokeBaseURL,
	}
	s.setupRoutes()
	return s
}

// WithFileCache attaches the container file cache.
func (s *Server) WithFileCache(fc *storage.FileCache) *Server {
	s.cache = fc
	return s
}

// UpdateConfig swaps the active configuration. Wired to the config
// watcher so key and tool changes apply without restarting the proxy.
func (s *Server) UpdateConfig(cfg *config.Config) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cfg = cfg
}

// config returns the active configuration.
func (s *Server) configSnapshot() *config.Config {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.cfg
}

// Addr returns the listen address.
func (s *Server) Addr() string {
	return s.addr
}

// setupRoutes configures all HTTP routes.
func (s *Server) setupRoutes() {
	s.router.HandleFunc("POST /api/turn_response", s.handleTurnResponse)
	s.router.HandleFunc("POST /api/ephemeral_query", s.handleEphemeralQuery)
	s.router.HandleFunc("GET /api/container_files/content", s.handleContainerFile)

	s.router.HandleFunc("GET /api/functions/get_weather", s.handleGetWeather)
	s.router.HandleFunc("GET /api/functions/get_joke", s.handleGetJoke)

	s.router.HandleFunc("GET /health", s.handleHealth)
}

// Handler returns the full middleware-wrapped handler.
func (s *Server) Handler() http.Handler {
	cfg := s.configSnapshot()
	perSec := float64(cfg.Server.RateLimitPerSec)
	if perSec <= 0 {
		perSec = 10
	}
	return Chain(
		RecoveryMiddleware(),
		LoggingMiddleware(log.Default()),
		CORSMiddleware(),
		RateLimitMiddleware(NewRateLimiter(perSec, int(perSec)*2)),
	)(s.router)
}

// Start starts the HTTP server and blocks until it stops.
func (s *Server) Start() error {
	s.server = &http.Server{
		Addr:        s.addr,
		Handler:     s.Handler(),
		ReadTimeout: 30 * time.Second,
		// No WriteTimeout: turn streams are open-ended.
		IdleTimeout: 120 * time.Second,
	}

	log.Printf("SERVER | listening addr=%s version=%s", s.addr, Version)
	return s.server.ListenAndServe()
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.server == nil {
		return nil
	}
	log.Printf("SERVER | shutting down")
	return s.server.Shutdown(ctx)
}

// ============================================================================
// UPSTREAM REQUEST TYPES
// ============================================================================

// turnRequest is the client's body for /api/turn_response: the flattened
// wire transcript plus tool descriptors, both forwarded verbatim.
type turnRequest struct {
	Messages json.RawMessage `json:"messages"`
	Tools    json.RawMessage `json:"tools"`
}

// responsesRequest is the upstream Responses API request body.
type responsesRequest struct {
	Model             string          `json:"model"`
	Input             json.RawMessage `json:"input"`
	Instructions      string          `json:"instructions,omitempty"`
	Tools             json.RawMessage `json:"tools,omitempty"`
	Stream            bool            `json:"stream"`
	ParallelToolCalls *bool           `json:"parallel_tool_calls,omitempty"`
}

// ephemeralRequest is the body for /api/ephemeral_query. APIKey
// optionally overrides the configured key.
type ephemeralRequest struct {
	Query   string `json:"query"`
	Context string `json:"context,omitempty"`
	APIKey  string `json:"apiKey,omitempty"`
}

// ============================================================================
// TURN RESPONSE HANDLER
// ============================================================================

// handleTurnResponse forwards a turn to the upstream Responses API and
// relays the event stream back in envelope framing.
func (s *Server) handleTurnResponse(w http.ResponseWriter, r *http.Request) {
	cfg := s.configSnapshot()
	if cfg.API.Key == "" {
		writeJSONError(w, http.StatusBadRequest, "OpenAI API key is not configured")
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, MaxRequestBodySize)
	var req turnRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		log.Printf("TURN_PROXY | bad request: %v", err)
		writeJSONError(w, http.StatusBadRequest, "Invalid request format")
		return
	}
	if len(req.Messages) == 0 {
		writeJSONError(w, http.StatusBadRequest, "Request must contain messages")
		return
	}

	upstream := responsesRequest{
		Model:        cfg.Model,
		Input:        req.Messages,
		Instructions: cfg.Instructions,
		Tools:        req.Tools,
		Stream:       true,
	}
	s.relayResponses(w, r, cfg.API, cfg.API.Key, upstream)
}

// ============================================================================
// EPHEMERAL QUERY HANDLER
// ============================================================================

// handleEphemeralQuery answers a side-channel question about transcript
// content, streaming only through this request and never touching any
// conversation state.
func (s *Server) handleEphemeralQuery(w http.ResponseWriter, r *http.Request) {
	cfg := s.configSnapshot()

	r.Body = http.MaxBytesReader(w, r.Body, MaxRequestBodySize)
	var req ephemeralRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSONError(w, http.StatusBadRequest, "Invalid request format")
		return
	}

	key := req.APIKey
	if key == "" {
		key = cfg.API.Key
	}
	if key == "" {
		writeJSONError(w, http.StatusBadRequest, "OpenAI API key is required")
		return
	}
	if strings.TrimSpace(req.Query) == "" {
		writeJSONError(w, http.StatusBadRequest, "Query is required")
		return
	}

	userContent := req.Query
	if req.Context != "" {
		userContent = fmt.Sprintf("Based on this context: %q\n\nQuestion: %s", req.Context, req.Query)
	}
	input, err := json.Marshal([]map[string]string{
		{"role": "developer", "content": ephemeralInstructions},
		{"role": "user", "content": userContent},
	})
	if err != nil {
		writeJSONError(w, http.StatusInternalServerError, "Internal error")
		return
	}

	descriptors := tools.Descriptors(cfg.ToolOptions())
	toolsJSON, err := json.Marshal(descriptors)
	if err != nil {
		writeJSONError(w, http.StatusInternalServerError, "Internal error")
		return
	}

	noParallel := false
	upstream := responsesRequest{
		Model:             cfg.Model,
		Input:             input,
		Tools:             toolsJSON,
		Stream:            true,
		ParallelToolCalls: &noParallel,
	}
	s.relayResponses(w, r, cfg.API, key, upstream)
}

// ============================================================================
// UPSTREAM RELAY
// ============================================================================

// relayResponses posts the request to the upstream Responses API and
// re-frames its SSE stream as envelope events ending with [DONE].
func (s *Server) relayResponses(w http.ResponseWriter, r *http.Request, api config.APIConfig, key string, reqBody responsesRequest) {
	body, err := json.Marshal(reqBody)
	if err != nil {
		writeJSONError(w, http.StatusInternalServerError, "Internal error")
		return
	}

	url := strings.TrimRight(api.BaseURL, "/") + "/responses"
	httpReq, err := http.NewRequestWithContext(r.Context(), http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		writeJSONError(w, http.StatusInternalServerError, "Internal error")
		return
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "text/event-stream")
	httpReq.Header.Set("Authorization", "Bearer "+key)

	resp, err := s.upstream.Do(httpReq)
	if err != nil {
		log.Printf("UPSTREAM | request failed: %v", err)
		writeJSONError(w, http.StatusBadGateway, "Upstream request failed")
		return
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		detail, _ := io.ReadAll(io.LimitReader(resp.Body, MaxUpstreamErrorBody))
		log.Printf("UPSTREAM | status=%d body=%s", resp.StatusCode, detail)
		writeJSONError(w, resp.StatusCode, "Upstream error")
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		writeJSONError(w, http.StatusInternalServerError, "Streaming not supported")
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")

	relaySSE(w, flusher, resp.Body)
}

// envelope is the re-framed event sent to the client.
type envelope struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
}

// relaySSE reads the upstream "event:"/"data:" stream and writes each
// event as one envelope data block. Upstream termination, clean or not,
// ends with a [DONE] marker so clients always see a terminator.
func relaySSE(w io.Writer, flusher http.Flusher, upstream io.Reader) {
	scanner := bufio.NewScanner(upstream)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	var eventType string
	var data bytes.Buffer

	emit := func() {
		if data.Len() == 0 {
			return
		}
		name := eventType
		if name == "" {
			// Some upstreams omit the event line; the payload carries type.
			var probe struct {
				Type string `json:"type"`
			}
			if err := json.Unmarshal(data.Bytes(), &probe); err == nil {
				name = probe.Type
			}
		}
		out, err := json.Marshal(envelope{Event: name, Data: json.RawMessage(data.Bytes())})
		if err == nil {
			fmt.Fprintf(w, "data: %s\n\n", out)
			flusher.Flush()
		}
		eventType = ""
		data.Reset()
	}

	for scanner.Scan() {
		line := scanner.Text()
		switch {
		case line == "":
			emit()
		case strings.HasPrefix(line, "event:"):
			eventType = strings.TrimSpace(strings.TrimPrefix(line, "event:"))
		case strings.HasPrefix(line, "data:"):
			payload := strings.TrimPrefix(line, "data:")
			payload = strings.TrimPrefix(payload, " ")
			if payload == "[DONE]" {
				continue
			}
			data.WriteString(payload)
		}
	}
	emit()

	fmt.Fprint(w, "data: [DONE]\n\n")
	flusher.Flush()
}

// ============================================================================
// CONTAINER FILE HANDLER
// ============================================================================

// handleContainerFile serves a code interpreter output file, from the
// cache when possible. Containers expire upstream shortly after a run,
// so a cache hit may be the only way to view an older file.
func (s *Server) handleContainerFile(w http.ResponseWriter, r *http.Request) {
	fileID := r.URL.Query().Get("file_id")
	if fileID == "" {
		writeJSONError(w, http.StatusBadRequest, "Missing file_id")
		return
	}

	if s.cache != nil {
		if f, err := s.cache.Get(r.Context(), fileID); err == nil {
			log.Printf("FILE_CACHE | hit file=%s", fileID)
			serveContainerFile(w, f.MimeType, f.Filename, fileID, f.Data)
			return
		}
	}

	cfg := s.configSnapshot()
	if cfg.API.Key == "" {
		writeJSONError(w, http.StatusBadRequest, "OpenAI API key is not configured")
		return
	}

	url := fmt.Sprintf("%s/container-files/%s/content",
		strings.TrimRight(cfg.API.BaseURL, "/"), fileID)
	req, err := http.NewRequestWithContext(r.Context(), http.MethodGet, url, nil)
	if err != nil {
		writeJSONError(w, http.StatusInternalServerError, "Failed to fetch file")
		return
	}
	req.Header.Set("Authorization", "Bearer "+cfg.API.Key)

	resp, err := s.subAPI.Do(req)
	if err != nil {
		log.Printf("FILE_FETCH | file=%s error=%v", fileID, err)
		writeJSONError(w, http.StatusInternalServerError, "Failed to fetch file")
		return
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		log.Printf("FILE_FETCH | file=%s status=%d", fileID, resp.StatusCode)
		writeJSONError(w, http.StatusInternalServerError, "Failed to fetch file")
		return
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		writeJSONError(w, http.StatusInternalServerError, "Failed to fetch file")
		return
	}

	mimeType := resp.Header.Get("Content-Type")
	if mimeType == "" {
		mimeType = "application/octet-stream"
	}
	filename := r.URL.Query().Get("filename")

	if s.cache != nil {
		err := s.cache.Put(r.Context(), storage.CachedFile{
			FileID:      fileID,
			ContainerID: r.URL.Query().Get("container_id"),
			Filename:    filename,
			MimeType:    mimeType,
			Data:        data,
		})
		if err != nil {
			log.Printf("FILE_CACHE | put failed file=%s error=%v", fileID, err)
		}
	}

	serveContainerFile(w, mimeType, filename, fileID, data)
}

// serveContainerFile writes the file bytes with download headers.
func serveContainerFile(w http.ResponseWriter, mimeType, filename, fileID string, data []byte) {
	name := filename
	if name == "" {
		name = fileID
	}
	w.Header().Set("Content-Type", mimeType)
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%s", name))
	w.WriteHeader(http.StatusOK)
	w.Write(data)
}

// ============================================================================
// FUNCTION ENDPOINTS
// ============================================================================

// handleGetWeather resolves a location via the open-meteo geocoding API
// and returns the current temperature there.
func (s *Server) handleGetWeather(w http.ResponseWriter, r *http.Request) {
	location := r.URL.Query().Get("location")
	if location == "" {
		writeJSONError(w, http.StatusBadRequest, "Missing location")
		return
	}
	unit := r.URL.Query().Get("unit")
	if unit != "fahrenheit" {
		unit = "celsius"
	}

	lat, lon, name, err := s.geocode(r.Context(), location)
	if err != nil {
		log.Printf("WEATHER | geocode location=%q error=%v", location, err)
		writeJSONError(w, http.StatusInternalServerError, "Failed to resolve location")
		return
	}

	temp, err := s.currentTemperature(r.Context(), lat, lon, unit)
	if err != nil {
		log.Printf("WEATHER | forecast location=%q error=%v", location, err)
		writeJSONError(w, http.StatusInternalServerError, "Failed to fetch weather")
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]interface{}{
		"location":    name,
		"temperature": temp,
		"unit":        unit,
	})
}

// geocode resolves a location name to coordinates.
func (s *Server) geocode(ctx context.Context, location string) (lat, lon float64, name string, err error) {
	u := fmt.Sprintf("%s/search?name=%s&count=1", s.geocodingBaseURL, url.QueryEscape(location))

	var result struct {
		Results []struct {
			Name      string  `json:"name"`
			Latitude  float64 `json:"latitude"`
			Longitude float64 `json:"longitude"`
		} `json:"results"`
	}
	if err := s.getJSON(ctx, u, &result); err != nil {
		return 0, 0, "", err
	}
	if len(result.Results) == 0 {
		return 0, 0, "", fmt.Errorf("no geocoding result for %q", location)
	}
	r0 := result.Results[0]
	return r0.Latitude, r0.Longitude, r0.Name, nil
}

// currentTemperature fetches the current temperature at coordinates.
func (s *Server) currentTemperature(ctx context.Context, lat, lon float64, unit string) (float64, error) {
	u := fmt.Sprintf("%s/forecast?latitude=%.4f&longitude=%.4f&current_weather=true&temperature_unit=%s",
		s.forecastBaseURL, lat, lon, unit)

	var result struct {
		CurrentWeather struct {
			Temperature float64 `json:"temperature"`
		} `json:"current_weather"`
	}
	if err := s.getJSON(ctx, u, &result); err != nil {
		return 0, err
	}
	return result.CurrentWeather.Temperature, nil
}

// handleGetJoke relays a random joke from the joke sub-API.
func (s *Server) handleGetJoke(w http.ResponseWriter, r *http.Request) {
	var joke struct {
		Setup     string `json:"setup"`
		Punchline string `json:"punchline"`
	}
	if err := s.getJSON(r.Context(), s.jokeBaseURL+"/random_joke", &joke); err != nil {
		log.Printf("JOKE | fetch error=%v", err)
		writeJSONError(w, http.StatusInternalServerError, "Failed to fetch joke")
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(joke)
}

// getJSON fetches a URL and decodes the JSON body into v.
func (s *Server) getJSON(ctx context.Context, url string, v interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return err
	}
	resp, err := s.subAPI.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unexpected status %d", resp.StatusCode)
	}
	return json.NewDecoder(io.LimitReader(resp.Body, 1<<20)).Decode(v)
}

// ============================================================================
// HEALTH HANDLER
// ============================================================================

// HealthResponse is the /health body.
type HealthResponse struct {
	Status        string `json:"status"`
	Version       string `json:"version"`
	KeyConfigured bool   `json:"key_configured"`
	Model         string `json:"model"`
	CacheEnabled  bool   `json:"cache_enabled"`
}

// handleHealth handles GET /health.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	cfg := s.configSnapshot()
	resp := HealthResponse{
		Status:        "ok",
		Version:       Version,
		KeyConfigured: cfg.API.Key != "",
		Model:         cfg.Model,
		CacheEnabled:  s.cache != nil,
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(resp)
}
