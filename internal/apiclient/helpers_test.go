package apiclient

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/airqa/qaportal/internal/config"
	"github.com/go-chi/chi/v5"
)

// newTestServer starts a fake backend whose routes are registered by setup
func newTestServer(t *testing.T, setup func(r chi.Router)) *httptest.Server {
	t.Helper()
	r := chi.NewRouter()
	setup(r)
	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)
	return srv
}

func newTestClient(t *testing.T, baseURL string, opts ...Option) (*Client, *MemoryStore) {
	t.Helper()
	store := NewMemoryStore()
	c, err := New(testConfig(baseURL), append([]Option{WithTokenStore(store)}, opts...)...)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	return c, store
}

func testConfig(baseURL string) *config.Config {
	return &config.Config{
		APIBaseURL:     baseURL,
		RequestTimeout: 5 * time.Second,
	}
}

// setToken puts the client into the Authenticated state without a login round trip
func setToken(t *testing.T, c *Client, token string) {
	t.Helper()
	gen, _ := c.current()
	if !c.commitToken(gen, token, true) {
		t.Fatal("failed to set session token")
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// countingRecorder is a metrics.Recorder that remembers what it was told
type countingRecorder struct {
	mu              sync.Mutex
	statuses        []int
	networkFailures int
	invalidations   map[string]int
}

func newCountingRecorder() *countingRecorder {
	return &countingRecorder{invalidations: make(map[string]int)}
}

func (r *countingRecorder) RecordRequest(method string, statusCode int, duration time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.statuses = append(r.statuses, statusCode)
}

func (r *countingRecorder) RecordNetworkFailure(method string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.networkFailures++
}

func (r *countingRecorder) RecordSessionInvalidated(reason string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.invalidations[reason]++
}

func (r *countingRecorder) invalidationCount(reason string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.invalidations[reason]
}
