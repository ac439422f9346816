package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

func newTestAuth(t *testing.T, enabled bool) *JWTAuthMiddleware {
	t.Helper()
	hash, err := HashPassword("hunter2")
	if err != nil {
		t.Fatalf("failed to hash password: %v", err)
	}
	return NewJWTAuthMiddleware(&JWTAuthConfig{
		Enabled:           enabled,
		AdminUsername:     "admin",
		AdminPasswordHash: hash,
		JWTSecret:         "test-secret-test-secret-test-secret!",
		JWTExpiryHours:    24,
		SkipPaths:         []string{"/health", "/auth/login", "/webhook/*"},
	})
}

func TestGenerateToken_Claims(t *testing.T) {
	m := newTestAuth(t, true)

	token, err := m.GenerateToken("admin")
	if err != nil {
		t.Fatalf("failed to generate token: %v", err)
	}

	claims, err := m.ParseToken(token)
	if err != nil {
		t.Fatalf("failed to parse token: %v", err)
	}
	if claims.Username != "admin" {
		t.Errorf("username = %q, want admin", claims.Username)
	}
	if claims.Role != "msp_admin" {
		t.Errorf("role = %q, want msp_admin", claims.Role)
	}
	if claims.Issuer != "korrelix" {
		t.Errorf("issuer = %q, want korrelix", claims.Issuer)
	}
	if claims.ExpiresAt == nil {
		t.Fatal("token has no expiry")
	}
	ttl := time.Until(claims.ExpiresAt.Time)
	if ttl < 23*time.Hour || ttl > 25*time.Hour {
		t.Errorf("token ttl = %v, want about 24h", ttl)
	}
}

func TestParseToken_RejectsForeignIssuer(t *testing.T) {
	m := newTestAuth(t, true)

	// Same secret, wrong issuer
	foreign := jwt.NewWithClaims(jwt.SigningMethodHS256, AdminClaims{
		Username: "admin",
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    "somebody-else",
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	})
	signed, err := foreign.SignedString([]byte(m.config.JWTSecret))
	if err != nil {
		t.Fatalf("failed to sign token: %v", err)
	}

	if _, err := m.ParseToken(signed); err == nil {
		t.Error("token with a foreign issuer was accepted")
	}
}

func TestParseToken_RejectsWrongSecret(t *testing.T) {
	m := newTestAuth(t, true)
	other := NewJWTAuthMiddleware(&JWTAuthConfig{
		Enabled:        true,
		JWTSecret:      "a-different-secret-a-different-secret",
		JWTExpiryHours: 24,
	})

	token, err := other.GenerateToken("admin")
	if err != nil {
		t.Fatalf("failed to generate token: %v", err)
	}

	if _, err := m.ParseToken(token); err == nil {
		t.Error("token signed with a different secret was accepted")
	}
}

func TestParseToken_RejectsExpired(t *testing.T) {
	m := newTestAuth(t, true)

	expired := jwt.NewWithClaims(jwt.SigningMethodHS256, AdminClaims{
		Username: "admin",
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    "korrelix",
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(-time.Hour)),
		},
	})
	signed, err := expired.SignedString([]byte(m.config.JWTSecret))
	if err != nil {
		t.Fatalf("failed to sign token: %v", err)
	}

	if _, err := m.ParseToken(signed); err == nil {
		t.Error("expired token was accepted")
	}
}

func TestWrap_SkipPaths(t *testing.T) {
	m := newTestAuth(t, true)
	handler := m.Wrap(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	tests := []struct {
		name     string
		path     string
		wantCode int
	}{
		{"health is open", "/health", http.StatusOK},
		{"login is open", "/auth/login", http.StatusOK},
		{"webhook prefix is open", "/webhook/alerts/some-company-uuid", http.StatusOK},
		{"api requires a token", "/api/incidents", http.StatusUnauthorized},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, tt.path, nil)
			rec := httptest.NewRecorder()
			handler.ServeHTTP(rec, req)

			if rec.Code != tt.wantCode {
				t.Errorf("status = %d, want %d", rec.Code, tt.wantCode)
			}
		})
	}
}

func TestWrap_Disabled(t *testing.T) {
	m := newTestAuth(t, false)
	handler := m.Wrap(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest(http.MethodGet, "/api/incidents", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Errorf("status = %d, want 200 when auth is disabled", rec.Code)
	}
}

func TestWrap_PutsUsernameInContext(t *testing.T) {
	m := newTestAuth(t, true)

	var gotUser string
	handler := m.Wrap(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotUser = GetUserFromContext(r.Context())
		w.WriteHeader(http.StatusOK)
	}))

	token, err := m.GenerateToken("admin")
	if err != nil {
		t.Fatalf("failed to generate token: %v", err)
	}

	req := httptest.NewRequest(http.MethodGet, "/api/incidents", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if gotUser != "admin" {
		t.Errorf("context user = %q, want admin", gotUser)
	}
}

func TestValidateCredentials(t *testing.T) {
	m := newTestAuth(t, true)

	if !m.ValidateCredentials("admin", "hunter2") {
		t.Error("valid credentials rejected")
	}
	if m.ValidateCredentials("admin", "wrong") {
		t.Error("wrong password accepted")
	}
	if m.ValidateCredentials("intruder", "hunter2") {
		t.Error("wrong username accepted")
	}
}

func TestTokenTTLSeconds(t *testing.T) {
	m := newTestAuth(t, true)
	if got := m.TokenTTLSeconds(); got != 86400 {
		t.Errorf("TokenTTLSeconds = %d, want 86400", got)
	}
}
