package auth

import (
	"net/http"
	"net/http/httptest"
	"testing"
)

func newHandler(token string) http.Handler {
	return Middleware(token)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
}

func TestEmptyTokenDisablesAuth(t *testing.T) {
	rec := httptest.NewRecorder()
	newHandler("").ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/documents", nil))
	if rec.Code != http.StatusOK {
		t.Errorf("status = %d, want 200 with auth disabled", rec.Code)
	}
}

func TestValidToken(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/api/documents", nil)
	req.Header.Set("Authorization", "Bearer secret")
	rec := httptest.NewRecorder()
	newHandler("secret").ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Errorf("status = %d, want 200", rec.Code)
	}
}

func TestRejectsMissingAndWrongTokens(t *testing.T) {
	cases := map[string]string{
		"missing header": "",
		"wrong token":    "Bearer nope",
		"not bearer":     "Basic secret",
	}
	for name, header := range cases {
		req := httptest.NewRequest(http.MethodGet, "/api/documents", nil)
		if header != "" {
			req.Header.Set("Authorization", header)
		}
		rec := httptest.NewRecorder()
		newHandler("secret").ServeHTTP(rec, req)
		if rec.Code != http.StatusUnauthorized {
			t.Errorf("%s: status = %d, want 401", name, rec.Code)
		}
	}
}
