package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
)

func corsHandler(c *CORSMiddleware, reached *bool) http.Handler {
	return c.Wrap(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if reached != nil {
			*reached = true
		}
		w.WriteHeader(http.StatusOK)
	}))
}

func TestCORS_AllowAllReflectsOrigin(t *testing.T) {
	handler := corsHandler(NewCORSMiddleware(), nil)

	req := httptest.NewRequest(http.MethodGet, "/api/incidents", nil)
	req.Header.Set("Origin", "https://dashboard.example.com")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if got := rec.Header().Get("Access-Control-Allow-Origin"); got != "https://dashboard.example.com" {
		t.Errorf("Allow-Origin = %q, want the request origin", got)
	}
	if got := rec.Header().Get("Vary"); got != "Origin" {
		t.Errorf("Vary = %q, want Origin", got)
	}
	if got := rec.Header().Get("Access-Control-Allow-Headers"); got != "Content-Type, Authorization" {
		t.Errorf("Allow-Headers = %q", got)
	}
}

func TestCORS_RestrictedOrigins(t *testing.T) {
	c := NewCORSMiddleware("https://dashboard.example.com")

	t.Run("allowed origin", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/api/incidents", nil)
		req.Header.Set("Origin", "https://dashboard.example.com")
		rec := httptest.NewRecorder()
		corsHandler(c, nil).ServeHTTP(rec, req)

		if rec.Header().Get("Access-Control-Allow-Origin") == "" {
			t.Error("allowed origin got no CORS headers")
		}
	})

	t.Run("unknown origin", func(t *testing.T) {
		var reached bool
		req := httptest.NewRequest(http.MethodGet, "/api/incidents", nil)
		req.Header.Set("Origin", "https://evil.example.com")
		rec := httptest.NewRecorder()
		corsHandler(c, &reached).ServeHTTP(rec, req)

		if got := rec.Header().Get("Access-Control-Allow-Origin"); got != "" {
			t.Errorf("Allow-Origin = %q, want no header for an unknown origin", got)
		}
		// The request itself still goes through; the browser enforces CORS
		if !reached {
			t.Error("request was blocked instead of forwarded")
		}
	})
}

func TestCORS_Preflight(t *testing.T) {
	var reached bool
	handler := corsHandler(NewCORSMiddleware(), &reached)

	req := httptest.NewRequest(http.MethodOptions, "/api/incidents", nil)
	req.Header.Set("Origin", "https://dashboard.example.com")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusNoContent {
		t.Errorf("status = %d, want 204", rec.Code)
	}
	if reached {
		t.Error("preflight request reached the API handler")
	}
	if got := rec.Header().Get("Access-Control-Allow-Methods"); got != "GET, POST, PUT, DELETE, OPTIONS" {
		t.Errorf("Allow-Methods = %q", got)
	}
}

func TestCORS_SameOriginRequest(t *testing.T) {
	handler := corsHandler(NewCORSMiddleware(), nil)

	req := httptest.NewRequest(http.MethodGet, "/api/incidents", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if got := rec.Header().Get("Access-Control-Allow-Origin"); got != "" {
		t.Errorf("Allow-Origin = %q, want no CORS headers without an Origin", got)
	}
}
