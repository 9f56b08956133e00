package fetch

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"skillproof/internal/platform/testkit"
)

func quietSleep(t *testing.T) *atomic.Int32 {
	t.Helper()
	testkit.Serial(t)
	var calls atomic.Int32
	testkit.Swap(t, &sleep, func(time.Duration) { calls.Add(1) })
	return &calls
}

func TestHTTPFetchFound(t *testing.T) {
	quietSleep(t)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("User-Agent") == "" {
			t.Error("request missing User-Agent")
		}
		_, _ = w.Write([]byte("<html><h1>hello</h1></html>"))
	}))
	defer srv.Close()

	f := NewHTTP(HTTPConfig{})
	defer f.Close()

	out := f.Fetch(context.Background(), srv.URL)
	if out.Status != StatusFound {
		t.Fatalf("status = %v, reason %q", out.Status, out.Reason)
	}
	if out.Page == nil || out.Page.Body == "" {
		t.Fatal("found outcome missing page body")
	}
	if out.Page.URL == "" {
		t.Fatal("found outcome missing final URL")
	}
}

func TestHTTPFetchRecordsFinalURLAfterRedirect(t *testing.T) {
	quietSleep(t)
	mux := http.NewServeMux()
	mux.HandleFunc("/start", func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, "/final", http.StatusFound)
	})
	mux.HandleFunc("/final", func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("ok"))
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	f := NewHTTP(HTTPConfig{})
	defer f.Close()

	out := f.Fetch(context.Background(), srv.URL+"/start")
	if out.Status != StatusFound {
		t.Fatalf("status = %v", out.Status)
	}
	if out.Page.URL != srv.URL+"/final" {
		t.Fatalf("final URL = %q, want %q", out.Page.URL, srv.URL+"/final")
	}
}

func TestHTTPFetch404IsNotFound(t *testing.T) {
	quietSleep(t)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "gone", http.StatusNotFound)
	}))
	defer srv.Close()

	f := NewHTTP(HTTPConfig{})
	defer f.Close()

	out := f.Fetch(context.Background(), srv.URL)
	if out.Status != StatusNotFound {
		t.Fatalf("status = %v, want NotFound", out.Status)
	}
}

func TestHTTPFetch429BacksOffThenSucceeds(t *testing.T) {
	calls := quietSleep(t)
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		if hits.Add(1) <= 2 {
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		_, _ = w.Write([]byte("ok"))
	}))
	defer srv.Close()

	f := NewHTTP(HTTPConfig{Retries: 3})
	defer f.Close()

	out := f.Fetch(context.Background(), srv.URL)
	if out.Status != StatusFound {
		t.Fatalf("status = %v, reason %q", out.Status, out.Reason)
	}
	if got := hits.Load(); got != 3 {
		t.Fatalf("server hit %d times, want 3", got)
	}
	if calls.Load() < 2 {
		t.Fatalf("backoff slept %d times, want >= 2", calls.Load())
	}
}

func TestHTTPFetchNoSleepAfterFinalAttempt(t *testing.T) {
	calls := quietSleep(t)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer srv.Close()

	f := NewHTTP(HTTPConfig{Retries: 3})
	defer f.Close()

	out := f.Fetch(context.Background(), srv.URL)
	if out.Status != StatusTransient {
		t.Fatalf("status = %v, want Transient", out.Status)
	}
	// backoff only happens between attempts, never after the last one
	if got := calls.Load(); got != 2 {
		t.Fatalf("slept %d times for 3 attempts, want 2", got)
	}
}

func TestHTTPFetchExhaustedRetriesIsTransient(t *testing.T) {
	quietSleep(t)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	f := NewHTTP(HTTPConfig{Retries: 2})
	defer f.Close()

	out := f.Fetch(context.Background(), srv.URL)
	if out.Status != StatusTransient {
		t.Fatalf("status = %v, want Transient", out.Status)
	}
	if out.Reason == "" {
		t.Fatal("transient outcome missing reason")
	}
}

func TestHTTPFetchUnreachableHostIsTransient(t *testing.T) {
	quietSleep(t)
	f := NewHTTP(HTTPConfig{Retries: 1, Timeout: time.Second})
	defer f.Close()

	out := f.Fetch(context.Background(), "http://127.0.0.1:1/none")
	if out.Status != StatusTransient {
		t.Fatalf("status = %v, want Transient", out.Status)
	}
}
