// Package testutil provides testing utilities for the catalog crawler.
package testutil

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"
	"time"
)

// ProductPath is the path prefix served by MockAPI.
const ProductPath = "/api/v2/products/"

// MockResponse defines the behavior for one mock API response.
type MockResponse struct {
	StatusCode int
	Body       string
	Headers    map[string]string
	Delay      time.Duration
}

// MockAPI is a configurable mock product API for testing.
//
// Each identifier can be scripted with a sequence of responses; the last
// response repeats once the sequence is used up. Unscripted identifiers get a
// generated product body.
type MockAPI struct {
	server *httptest.Server

	mu        sync.Mutex
	scripts   map[string][]MockResponse
	requests  map[string]int
	total     int
	inflight  int
	peak      int
	lastHdr   http.Header
	baseDelay time.Duration
}

// NewMockAPI creates and starts a new mock API server.
func NewMockAPI() *MockAPI {
	m := &MockAPI{
		scripts:  make(map[string][]MockResponse),
		requests: make(map[string]int),
	}
	m.server = httptest.NewServer(http.HandlerFunc(m.handle))
	return m
}

// URL returns the mock server base URL.
func (m *MockAPI) URL() string {
	return m.server.URL
}

// URLTemplate returns a product URL template for the mock server.
func (m *MockAPI) URLTemplate() string {
	return m.server.URL + ProductPath + "{id}"
}

// Close shuts down the mock server.
func (m *MockAPI) Close() {
	m.server.Close()
}

// SetDelay delays every response that has no explicit delay.
func (m *MockAPI) SetDelay(d time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.baseDelay = d
}

// SetResponses scripts the responses returned for id, in order.
func (m *MockAPI) SetResponses(id string, responses ...MockResponse) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.scripts[id] = responses
}

// RequestCount returns the total number of requests received.
func (m *MockAPI) RequestCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.total
}

// RequestsFor returns the number of requests received for id.
func (m *MockAPI) RequestsFor(id string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.requests[id]
}

// PeakInFlight returns the highest number of concurrently served requests.
func (m *MockAPI) PeakInFlight() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.peak
}

// LastRequestHeader returns the headers of the most recent request.
func (m *MockAPI) LastRequestHeader() http.Header {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.lastHdr
}

// Reset clears all tracking counters. Scripts are kept.
func (m *MockAPI) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.requests = make(map[string]int)
	m.total = 0
	m.peak = 0
	m.lastHdr = nil
}

func (m *MockAPI) handle(w http.ResponseWriter, r *http.Request) {
	id := strings.TrimPrefix(r.URL.Path, ProductPath)

	m.mu.Lock()
	m.total++
	n := m.requests[id]
	m.requests[id] = n + 1
	m.lastHdr = r.Header.Clone()
	m.inflight++
	if m.inflight > m.peak {
		m.peak = m.inflight
	}
	resp, scripted := m.next(id, n)
	if resp.Delay == 0 {
		resp.Delay = m.baseDelay
	}
	m.mu.Unlock()

	defer func() {
		m.mu.Lock()
		m.inflight--
		m.mu.Unlock()
	}()

	if !scripted {
		resp.StatusCode = http.StatusOK
		resp.Body = ProductJSON(id)
	}

	if resp.Delay > 0 {
		select {
		case <-time.After(resp.Delay):
		case <-r.Context().Done():
			return
		}
	}

	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	for key, value := range resp.Headers {
		w.Header().Set(key, value)
	}
	w.WriteHeader(resp.StatusCode)
	if resp.Body != "" {
		_, _ = w.Write([]byte(resp.Body))
	}
}

// next must be called with m.mu held.
func (m *MockAPI) next(id string, n int) (MockResponse, bool) {
	script, ok := m.scripts[id]
	if !ok || len(script) == 0 {
		return MockResponse{}, false
	}
	if n >= len(script) {
		n = len(script) - 1
	}
	return script[n], true
}

// ProductJSON returns a product body for id with two images and an HTML description.
func ProductJSON(id string) string {
	var rawID any = id
	if n, err := strconv.ParseInt(id, 10, 64); err == nil {
		rawID = n
	}

	body, _ := json.Marshal(map[string]any{
		"id":          rawID,
		"name":        "Product " + id,
		"url_key":     "product-" + id,
		"price":       150000,
		"description": fmt.Sprintf("<p>Description of <b>product %s</b>.</p><p>Genuine goods.</p>", id),
		"images": []map[string]string{
			{"base_url": "https://img.example/" + id + "/base.jpg", "large_url": "https://img.example/" + id + "/large.jpg"},
			{"thumbnail_url": "https://img.example/" + id + "/thumb.jpg"},
		},
	})
	return string(body)
}

// NewProductResponse creates a 200 OK response carrying ProductJSON(id).
func NewProductResponse(id string) MockResponse {
	return MockResponse{StatusCode: http.StatusOK, Body: ProductJSON(id)}
}

// NewNotFoundResponse creates a 404 Not Found response.
func NewNotFoundResponse() MockResponse {
	return MockResponse{StatusCode: http.StatusNotFound, Body: `{"error": {"code": 404, "message": "not found"}}`}
}

// NewServerErrorResponse creates a 500 Internal Server Error response.
func NewServerErrorResponse() MockResponse {
	return MockResponse{StatusCode: http.StatusInternalServerError, Body: `{"error": "Internal server error"}`}
}

// NewForbiddenResponse creates a 403 Forbidden response.
func NewForbiddenResponse() MockResponse {
	return MockResponse{StatusCode: http.StatusForbidden, Body: `{"error": "blocked"}`}
}

// NewRateLimitResponse creates a 429 Too Many Requests response.
func NewRateLimitResponse() MockResponse {
	return MockResponse{StatusCode: http.StatusTooManyRequests, Body: `{"error": "Rate limit exceeded"}`}
}

// NewMalformedResponse creates a 200 OK response whose body is not JSON.
func NewMalformedResponse() MockResponse {
	return MockResponse{StatusCode: http.StatusOK, Body: `<html><body>captcha</body></html>`}
}
