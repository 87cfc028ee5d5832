package httpx

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"
)

func TestGetJSON_Success(t *testing.T) {
	t.Parallel()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("q") != "Paris" {
			t.Errorf("unexpected query %q", r.URL.RawQuery)
		}
		if r.Header.Get("X-Key") != "secret" {
			t.Errorf("missing client header")
		}
		if r.Header.Get("X-Extra") != "1" {
			t.Errorf("missing request header")
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"name":"Paris"}`))
	}))
	defer srv.Close()

	c := New("test", WithHeader("X-Key", "secret"))
	var out struct {
		Name string `json:"name"`
	}
	err := c.GetJSON(context.Background(), srv.URL, url.Values{"q": {"Paris"}}, http.Header{"X-Extra": {"1"}}, &out)
	if err != nil {
		t.Fatalf("GetJSON: %v", err)
	}
	if out.Name != "Paris" {
		t.Errorf("Name = %q, want Paris", out.Name)
	}
}

func TestPostJSON_StatusError(t *testing.T) {
	t.Parallel()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Content-Type") != "application/json" {
			t.Errorf("unexpected content type %q", r.Header.Get("Content-Type"))
		}
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(strings.Repeat("x", 2000)))
	}))
	defer srv.Close()

	c := New("duffel")
	err := c.PostJSON(context.Background(), srv.URL, nil, map[string]string{"a": "b"}, nil)
	var se *StatusError
	if !errors.As(err, &se) {
		t.Fatalf("expected StatusError, got %v", err)
	}
	if se.Code != http.StatusUnauthorized || se.Service != "duffel" {
		t.Errorf("unexpected status error %+v", se)
	}
	if len(se.Body) != maxErrorBody {
		t.Errorf("body length = %d, want %d", len(se.Body), maxErrorBody)
	}
	if !IsStatus(err, http.StatusUnauthorized) {
		t.Error("IsStatus returned false")
	}
}

func TestTimeout(t *testing.T) {
	t.Parallel()
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer srv.Close()
	defer close(release)

	c := New("slow", WithTimeout(50*time.Millisecond))
	start := time.Now()
	if err := c.GetJSON(context.Background(), srv.URL, nil, nil, nil); err == nil {
		t.Fatal("expected timeout error")
	}
	if time.Since(start) > 2*time.Second {
		t.Error("timeout not applied")
	}
}

func TestRateLimit_RespectsContext(t *testing.T) {
	t.Parallel()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{}`))
	}))
	defer srv.Close()

	c := New("limited", WithRateLimit(0.001, 1))
	if err := c.GetJSON(context.Background(), srv.URL, nil, nil, nil); err != nil {
		t.Fatalf("first request should pass the burst: %v", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if err := c.GetJSON(ctx, srv.URL, nil, nil, nil); err == nil {
		t.Fatal("expected rate limit wait to fail on short context")
	}
}
