package handlers

import (
	"net/http"
	"testing"

	"github.com/korrelix/korrelix/internal/api"
	"github.com/korrelix/korrelix/internal/middleware"
)

func newAuthMux(t *testing.T) (*http.ServeMux, *middleware.JWTAuthMiddleware) {
	t.Helper()
	hash, err := middleware.HashPassword("hunter2")
	if err != nil {
		t.Fatalf("failed to hash password: %v", err)
	}

	jwtAuth := middleware.NewJWTAuthMiddleware(&middleware.JWTAuthConfig{
		Enabled:           true,
		AdminUsername:     "admin",
		AdminPasswordHash: hash,
		JWTSecret:         "test-secret-test-secret-test-secret!",
		JWTExpiryHours:    24,
		SkipPaths:         []string{"/auth/login"},
	})

	mux := http.NewServeMux()
	NewAuthHandler(jwtAuth).SetupRoutes(mux)
	return mux, jwtAuth
}

func TestLogin_Success(t *testing.T) {
	mux, _ := newAuthMux(t)

	rec := doJSON(t, mux, http.MethodPost, "/auth/login",
		api.LoginRequest{Username: "admin", Password: "hunter2"})
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body.String())
	}

	var resp api.LoginResponse
	decodeBody(t, rec, &resp)
	if resp.Token == "" {
		t.Error("empty token")
	}
	if resp.Username != "admin" {
		t.Errorf("username = %q", resp.Username)
	}
	if resp.ExpiresIn != 24*60*60 {
		t.Errorf("expires_in = %d", resp.ExpiresIn)
	}
}

func TestLogin_InvalidCredentials(t *testing.T) {
	mux, _ := newAuthMux(t)

	tests := []api.LoginRequest{
		{Username: "admin", Password: "wrong"},
		{Username: "intruder", Password: "hunter2"},
	}
	for _, req := range tests {
		rec := doJSON(t, mux, http.MethodPost, "/auth/login", req)
		if rec.Code != http.StatusUnauthorized {
			t.Errorf("%s: status = %d, want 401", req.Username, rec.Code)
		}
	}
}

func TestLogin_MissingFields(t *testing.T) {
	mux, _ := newAuthMux(t)

	rec := doJSON(t, mux, http.MethodPost, "/auth/login", api.LoginRequest{Username: "admin"})
	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", rec.Code)
	}
}

func TestLogin_MethodNotAllowed(t *testing.T) {
	mux, _ := newAuthMux(t)

	rec := doJSON(t, mux, http.MethodGet, "/auth/login", nil)
	if rec.Code != http.StatusMethodNotAllowed {
		t.Errorf("status = %d, want 405", rec.Code)
	}
}

func TestVerify_WithValidToken(t *testing.T) {
	mux, jwtAuth := newAuthMux(t)

	token, err := jwtAuth.GenerateToken("admin")
	if err != nil {
		t.Fatalf("failed to generate token: %v", err)
	}

	req, _ := http.NewRequest(http.MethodGet, "/auth/verify", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rec := doRequest(t, jwtAuth.Wrap(mux), req)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body.String())
	}

	var resp map[string]interface{}
	decodeBody(t, rec, &resp)
	if resp["valid"] != true || resp["username"] != "admin" {
		t.Errorf("body = %v", resp)
	}
}

func TestVerify_WithoutToken(t *testing.T) {
	mux, jwtAuth := newAuthMux(t)

	req, _ := http.NewRequest(http.MethodGet, "/auth/verify", nil)
	rec := doRequest(t, jwtAuth.Wrap(mux), req)
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("status = %d, want 401", rec.Code)
	}
}
