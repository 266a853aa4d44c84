package integration

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
)

// RecordedRequest captures one request the dashboard made to the mock rebate
// service, for assertions on forwarded headers, query state, and bodies.
type RecordedRequest struct {
	Method string
	Path   string
	Query  map[string]string
	Header http.Header
	Body   map[string]any
}

// MockRebateService is an httptest stand-in for the upstream rebate API. It
// serves the same paths the OpenAPI document describes, returns canned
// envelope JSON per operation id, and records every request it sees.
type MockRebateService struct {
	server *httptest.Server

	mu        sync.Mutex
	responses map[string]mockResponse
	requests  []RecordedRequest
}

type mockResponse struct {
	status int
	body   string
}

func newMockRebateService() *MockRebateService {
	m := &MockRebateService{responses: make(map[string]mockResponse)}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/matrix/headers", m.handle("matrixHeaders"))
	mux.HandleFunc("GET /api/challenges/placeholders", m.handle("matrixPlaceholders"))
	mux.HandleFunc("GET /api/challenges/{broker_id}", m.handle("matrixData"))
	mux.HandleFunc("POST /api/challenges/{broker_id}/save", m.handle("matrixSave"))
	mux.HandleFunc("GET /api/options/{category}", m.handle("listOptions"))
	mux.HandleFunc("POST /api/options/{category}", m.handle("saveOptionValues"))
	mux.HandleFunc("GET /api/{resource}", m.handle("listResource"))
	mux.HandleFunc("POST /api/{resource}", m.handle("saveResource"))
	mux.HandleFunc("DELETE /api/{resource}/{id}", m.handle("deleteResource"))
	mux.HandleFunc("POST /api/{resource}/{id}/toggle", m.handle("toggleResource"))

	m.server = httptest.NewServer(mux)
	return m
}

func (m *MockRebateService) URL() string {
	return m.server.URL
}

func (m *MockRebateService) Close() {
	m.server.Close()
}

// RespondWith replaces the canned response for one operation id.
func (m *MockRebateService) RespondWith(operationID string, status int, body string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.responses[operationID] = mockResponse{status: status, body: body}
}

// Requests returns a copy of everything recorded so far.
func (m *MockRebateService) Requests() []RecordedRequest {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]RecordedRequest, len(m.requests))
	copy(out, m.requests)
	return out
}

// LastRequest returns the most recent request for one operation path suffix,
// or nil when none matched.
func (m *MockRebateService) LastRequest(method, path string) *RecordedRequest {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := len(m.requests) - 1; i >= 0; i-- {
		if m.requests[i].Method == method && m.requests[i].Path == path {
			req := m.requests[i]
			return &req
		}
	}
	return nil
}

// Reset clears recorded requests, keeping the configured responses.
func (m *MockRebateService) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.requests = nil
}

func (m *MockRebateService) handle(operationID string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		rec := RecordedRequest{
			Method: r.Method,
			Path:   r.URL.Path,
			Query:  make(map[string]string),
			Header: r.Header.Clone(),
		}
		for key, vals := range r.URL.Query() {
			if len(vals) > 0 {
				rec.Query[key] = vals[0]
			}
		}
		if raw, err := io.ReadAll(r.Body); err == nil && len(raw) > 0 {
			_ = json.Unmarshal(raw, &rec.Body)
		}

		m.mu.Lock()
		m.requests = append(m.requests, rec)
		resp, ok := m.responses[operationID]
		m.mu.Unlock()

		if !ok {
			resp = mockResponse{status: http.StatusOK, body: `{"success": true, "message": "OK"}`}
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(resp.status)
		_, _ = w.Write([]byte(resp.body))
	}
}
