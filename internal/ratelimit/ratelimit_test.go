package ratelimit

import (
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestAllowWithinBurst(t *testing.T) {
	l := New(5)
	for i := 0; i < 5; i++ {
		if !l.Allow("client") {
			t.Fatalf("request %d denied within burst", i)
		}
	}
	if l.Allow("client") {
		t.Error("request beyond burst was allowed")
	}
}

func TestClientsAreIndependent(t *testing.T) {
	l := New(1)
	if !l.Allow("a") {
		t.Fatal("first request for a denied")
	}
	if !l.Allow("b") {
		t.Error("first request for b denied; buckets must be per client")
	}
}

func TestZeroRateDisablesLimiting(t *testing.T) {
	l := New(0)
	for i := 0; i < 100; i++ {
		if !l.Allow("client") {
			t.Fatal("disabled limiter denied a request")
		}
	}
}

func TestMiddlewareReturns429(t *testing.T) {
	l := New(1)
	handler := l.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest(http.MethodPost, "/api/chat", nil)
	req.RemoteAddr = "10.0.0.1:1234"

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("first request: status = %d, want 200", rec.Code)
	}

	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusTooManyRequests {
		t.Errorf("second request: status = %d, want 429", rec.Code)
	}
}
