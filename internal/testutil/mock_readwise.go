// Package testutil provides testing utilities for the Readwise exporter.
package testutil

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
)

// MockPage is one page served by MockReadwise.
type MockPage struct {
	Results        []map[string]any
	NextPageCursor string
}

// MockReadwise is a configurable mock of the Reader list endpoint.
// Pages are keyed by the pageCursor they answer ("" for the first page).
type MockReadwise struct {
	server *httptest.Server
	mu     sync.Mutex

	token     string
	pages     map[string]MockPage
	throttles map[string][]int
	failures  map[string]string

	// Tracking
	RequestCount int
	Cursors      []string
}

// NewMockReadwise creates a mock server that accepts token.
func NewMockReadwise(token string) *MockReadwise {
	mock := &MockReadwise{
		token:     token,
		pages:     make(map[string]MockPage),
		throttles: make(map[string][]int),
		failures:  make(map[string]string),
	}
	mock.server = httptest.NewServer(http.HandlerFunc(mock.handle))
	return mock
}

// URL returns the mock server URL.
func (m *MockReadwise) URL() string {
	return m.server.URL
}

// Close shuts down the mock server.
func (m *MockReadwise) Close() {
	m.server.Close()
}

// SetPage registers the page returned for cursor.
func (m *MockReadwise) SetPage(cursor string, page MockPage) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.pages[cursor] = page
}

// ThrottleOnce queues a throttling response for cursor. Queued throttles are
// served before the page, one per request.
func (m *MockReadwise) ThrottleOnce(cursor string, seconds int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.throttles[cursor] = append(m.throttles[cursor], seconds)
}

// FailWith makes every request for cursor return body with status 400.
func (m *MockReadwise) FailWith(cursor, body string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failures[cursor] = body
}

// GetRequestCount returns the number of requests made to the server.
func (m *MockReadwise) GetRequestCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.RequestCount
}

// GetCursors returns the cursors requested, in order.
func (m *MockReadwise) GetCursors() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, len(m.Cursors))
	copy(out, m.Cursors)
	return out
}

// Reset clears all tracking counters.
func (m *MockReadwise) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.RequestCount = 0
	m.Cursors = nil
}

func (m *MockReadwise) handle(w http.ResponseWriter, r *http.Request) {
	cursor := r.URL.Query().Get("pageCursor")

	m.mu.Lock()
	m.RequestCount++
	m.Cursors = append(m.Cursors, cursor)

	var (
		status  = http.StatusOK
		payload any
		rawBody string
	)

	switch {
	case r.URL.Path != "/api/v3/list/":
		status = http.StatusNotFound
		payload = map[string]string{"detail": "Not found."}
	case r.Header.Get("Authorization") != "Token "+m.token:
		status = http.StatusUnauthorized
		payload = map[string]string{"detail": "Invalid token."}
	case len(m.throttles[cursor]) > 0:
		seconds := m.throttles[cursor][0]
		m.throttles[cursor] = m.throttles[cursor][1:]
		status = http.StatusTooManyRequests
		payload = map[string]string{
			"detail": fmt.Sprintf("Request was throttled. Expected available in %d seconds.", seconds),
		}
	case m.failures[cursor] != "":
		status = http.StatusBadRequest
		rawBody = m.failures[cursor]
	default:
		page, ok := m.pages[cursor]
		if !ok {
			status = http.StatusBadRequest
			payload = map[string]string{"detail": "Invalid cursor."}
			break
		}
		results := page.Results
		if results == nil {
			results = []map[string]any{}
		}
		body := map[string]any{
			"count":          len(results),
			"results":        results,
			"nextPageCursor": nil,
		}
		if page.NextPageCursor != "" {
			body["nextPageCursor"] = page.NextPageCursor
		}
		payload = body
	}
	m.mu.Unlock()

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if rawBody != "" {
		w.Write([]byte(rawBody))
		return
	}
	json.NewEncoder(w).Encode(payload)
}
