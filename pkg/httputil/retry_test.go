package httputil

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"
)

func fastConfig() RetryConfig {
	return RetryConfig{
		MaxRetries:   3,
		InitialDelay: 10 * time.Millisecond,
		MaxDelay:     100 * time.Millisecond,
		Multiplier:   2.0,
	}
}

func TestRetryClientStatuses(t *testing.T) {
	tests := []struct {
		name         string
		failStatus   int
		failures     int32
		wantStatus   int
		wantAttempts int32
	}{
		{name: "retries503", failStatus: http.StatusServiceUnavailable, failures: 2, wantStatus: 200, wantAttempts: 3},
		{name: "retries502", failStatus: http.StatusBadGateway, failures: 1, wantStatus: 200, wantAttempts: 2},
		{name: "retries500", failStatus: http.StatusInternalServerError, failures: 1, wantStatus: 200, wantAttempts: 2},
		{name: "retries429", failStatus: http.StatusTooManyRequests, failures: 1, wantStatus: 200, wantAttempts: 2},
		{name: "noRetry400", failStatus: http.StatusBadRequest, failures: 10, wantStatus: 400, wantAttempts: 1},
		{name: "noRetry401", failStatus: http.StatusUnauthorized, failures: 10, wantStatus: 401, wantAttempts: 1},
		{name: "noRetry404", failStatus: http.StatusNotFound, failures: 10, wantStatus: 404, wantAttempts: 1},
		{name: "givesUpAfterMax", failStatus: http.StatusServiceUnavailable, failures: 10, wantStatus: 503, wantAttempts: 4},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var attempts int32
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				if atomic.AddInt32(&attempts, 1) <= tt.failures {
					w.WriteHeader(tt.failStatus)
					return
				}
				w.WriteHeader(http.StatusOK)
			}))
			defer server.Close()

			client := NewRetryClient(server.Client(), fastConfig())
			req, _ := http.NewRequest(http.MethodGet, server.URL, nil)
			resp, err := client.Do(req)
			if err != nil {
				t.Fatalf("Do() error = %v", err)
			}
			defer resp.Body.Close()

			if resp.StatusCode != tt.wantStatus {
				t.Errorf("status = %d, want %d", resp.StatusCode, tt.wantStatus)
			}
			if got := atomic.LoadInt32(&attempts); got != tt.wantAttempts {
				t.Errorf("attempts = %d, want %d", got, tt.wantAttempts)
			}
		})
	}
}

func TestRetryClientResendsBody(t *testing.T) {
	var attempts int32
	var bodies []string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		bodies = append(bodies, string(body))
		if atomic.AddInt32(&attempts, 1) < 2 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	const content = "payload"
	req, _ := http.NewRequest(http.MethodPost, server.URL, strings.NewReader(content))
	req.GetBody = func() (io.ReadCloser, error) {
		return io.NopCloser(strings.NewReader(content)), nil
	}

	resp, err := NewRetryClient(server.Client(), fastConfig()).Do(req)
	if err != nil {
		t.Fatalf("Do() error = %v", err)
	}
	defer resp.Body.Close()

	for i, b := range bodies {
		if b != content {
			t.Errorf("attempt %d body = %q, want %q", i+1, b, content)
		}
	}
}

func TestRetryClientStopsWaitingOnCancel(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer server.Close()

	client := NewRetryClient(server.Client(), RetryConfig{
		MaxRetries:   5,
		InitialDelay: time.Second,
		MaxDelay:     time.Second,
		Multiplier:   1,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	req, _ := http.NewRequestWithContext(ctx, http.MethodGet, server.URL, nil)

	start := time.Now()
	_, err := client.Do(req)
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("Do() error = %v, want deadline exceeded", err)
	}
	if time.Since(start) > 900*time.Millisecond {
		t.Errorf("Do() waited %v after cancellation", time.Since(start))
	}
}

func TestGetJSON(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/missing" {
			http.Error(w, "nope", http.StatusNotFound)
			return
		}
		_, _ = w.Write([]byte(`{"name":"reel"}`))
	}))
	defer server.Close()

	client := NewRetryClient(server.Client(), fastConfig())

	var out struct {
		Name string `json:"name"`
	}
	if err := client.GetJSON(context.Background(), server.URL+"/ok", &out); err != nil {
		t.Fatalf("GetJSON() error = %v", err)
	}
	if out.Name != "reel" {
		t.Errorf("Name = %q, want reel", out.Name)
	}

	err := client.GetJSON(context.Background(), server.URL+"/missing", &out)
	var statusErr *StatusError
	if !errors.As(err, &statusErr) || statusErr.StatusCode != http.StatusNotFound {
		t.Errorf("GetJSON() error = %v, want 404 StatusError", err)
	}
}

func TestNewRetryClientAppliesDefaults(t *testing.T) {
	client := NewRetryClient(nil, RetryConfig{})

	if client.client != http.DefaultClient {
		t.Error("expected http.DefaultClient when nil is passed")
	}
	if client.config != DefaultRetryConfig() {
		t.Errorf("config = %+v, want defaults", client.config)
	}
}
