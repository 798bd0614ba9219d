package util

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
)

// Request is one call received by Backend.
type Request struct {
	Method         string
	Endpoint       string
	Query          map[string]string
	APIKey         string
	IdempotencyKey string
	Body           map[string]any
}

// Backend mimics the OCPP backend API. Every POST answers {"ok":true};
// GET commands/poll returns the next queued command or null.
type Backend struct {
	*httptest.Server

	mu       sync.Mutex
	requests []Request
	commands []map[string]any
	status   map[string][]int
}

// NewBackend starts a Backend mounted under /api/ocpp. Callers must Close it.
func NewBackend() *Backend {
	b := &Backend{status: map[string][]int{}}
	b.Server = httptest.NewServer(http.HandlerFunc(b.serve))
	return b
}

// BaseURL returns the API root to configure the poster with.
func (b *Backend) BaseURL() string { return b.URL + "/api/ocpp" }

// QueueCommand appends a command object served by the poll endpoint.
func (b *Backend) QueueCommand(cmd map[string]any) {
	b.mu.Lock()
	b.commands = append(b.commands, cmd)
	b.mu.Unlock()
}

// FailNext makes the next calls to endpoint answer with the given statuses.
func (b *Backend) FailNext(endpoint string, statuses ...int) {
	b.mu.Lock()
	b.status[endpoint] = append(b.status[endpoint], statuses...)
	b.mu.Unlock()
}

// Requests returns a copy of the recorded calls.
func (b *Backend) Requests() []Request {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]Request(nil), b.requests...)
}

// Calls returns the recorded calls to endpoint.
func (b *Backend) Calls(endpoint string) []Request {
	var out []Request
	for _, r := range b.Requests() {
		if r.Endpoint == endpoint {
			out = append(out, r)
		}
	}
	return out
}

func (b *Backend) serve(w http.ResponseWriter, r *http.Request) {
	endpoint := strings.TrimPrefix(r.URL.Path, "/api/ocpp/")
	req := Request{
		Method:         r.Method,
		Endpoint:       endpoint,
		Query:          map[string]string{},
		APIKey:         r.Header.Get("X-OCPP-Key"),
		IdempotencyKey: r.Header.Get("X-Idempotency-Key"),
	}
	for k := range r.URL.Query() {
		req.Query[k] = r.URL.Query().Get(k)
	}
	if data, _ := io.ReadAll(r.Body); len(data) > 0 {
		_ = json.Unmarshal(data, &req.Body)
	}

	b.mu.Lock()
	b.requests = append(b.requests, req)
	var status int
	if q := b.status[endpoint]; len(q) > 0 {
		status, b.status[endpoint] = q[0], q[1:]
	}
	var cmd map[string]any
	if endpoint == "commands/poll" && status == 0 && len(b.commands) > 0 {
		cmd, b.commands = b.commands[0], b.commands[1:]
	}
	b.mu.Unlock()

	w.Header().Set("Content-Type", "application/json")
	if status != 0 {
		w.WriteHeader(status)
		_, _ = w.Write([]byte(`{"ok":false}`))
		return
	}
	resp := map[string]any{"ok": true}
	if endpoint == "commands/poll" {
		resp["command"] = cmd
	}
	_ = json.NewEncoder(w).Encode(resp)
}
