package middleware

import (
	"context"
	"crypto/subtle"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"

	"github.com/korrelix/korrelix/internal/api"
)

const tokenIssuer = "korrelix"

// AdminClaims is the token payload for the single operator identity.
// The role is fixed: this HTTP surface is MSP-admin only, technicians
// receive their work through notifications, not through this API.
type AdminClaims struct {
	Username string `json:"username"`
	Role     string `json:"role"`
	jwt.RegisteredClaims
}

// JWTAuthConfig holds the authentication settings. The config is
// read-only after NewJWTAuthMiddleware.
type JWTAuthConfig struct {
	// Enabled turns enforcement off entirely, for local development
	Enabled bool

	AdminUsername string

	// AdminPasswordHash is the bcrypt hash of the admin password
	AdminPasswordHash string

	// JWTSecret signs and verifies tokens (HMAC)
	JWTSecret string

	// JWTExpiryHours is the issued token lifetime
	JWTExpiryHours int

	// SkipPaths lists unauthenticated paths; a trailing * matches a
	// prefix. Webhook ingest is addressed per company UUID and stays
	// open, dashboards and config routes require a token.
	SkipPaths []string
}

// JWTAuthMiddleware guards the REST API with bearer tokens issued at
// /auth/login.
type JWTAuthMiddleware struct {
	config       *JWTAuthConfig
	skipExact    map[string]bool
	skipPrefixes []string
}

// ContextKey is a type for context keys
type ContextKey string

// UserContextKey is the context key for the authenticated username
const UserContextKey ContextKey = "user"

// NewJWTAuthMiddleware creates a new JWT authentication middleware
func NewJWTAuthMiddleware(config *JWTAuthConfig) *JWTAuthMiddleware {
	m := &JWTAuthMiddleware{
		config:    config,
		skipExact: make(map[string]bool),
	}
	for _, path := range config.SkipPaths {
		if prefix, found := strings.CutSuffix(path, "*"); found {
			m.skipPrefixes = append(m.skipPrefixes, prefix)
		} else {
			m.skipExact[path] = true
		}
	}
	return m
}

// HashPassword hashes a password using bcrypt
func HashPassword(password string) (string, error) {
	bytes, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	return string(bytes), err
}

// CheckPassword checks if the provided password matches the hash
func CheckPassword(password, hash string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)) == nil
}

// TokenTTLSeconds returns how long issued tokens stay valid.
func (m *JWTAuthMiddleware) TokenTTLSeconds() int {
	return m.config.JWTExpiryHours * 60 * 60
}

// GenerateToken issues a signed token for the operator.
func (m *JWTAuthMiddleware) GenerateToken(username string) (string, error) {
	now := time.Now()
	claims := AdminClaims{
		Username: username,
		Role:     "msp_admin",
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   username,
			Issuer:    tokenIssuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(time.Duration(m.config.JWTExpiryHours) * time.Hour)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(m.config.JWTSecret))
}

// ParseToken verifies a signed token and returns its claims. Tokens from
// another issuer or signed with a non-HMAC method are rejected even when
// the signature checks out.
func (m *JWTAuthMiddleware) ParseToken(tokenString string) (*AdminClaims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &AdminClaims{},
		func(*jwt.Token) (interface{}, error) { return []byte(m.config.JWTSecret), nil },
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(tokenIssuer),
		jwt.WithExpirationRequired(),
	)
	if err != nil {
		return nil, err
	}
	claims, ok := token.Claims.(*AdminClaims)
	if !ok || !token.Valid {
		return nil, jwt.ErrTokenInvalidClaims
	}
	return claims, nil
}

// ValidateCredentials checks a login attempt against the configured
// admin account.
func (m *JWTAuthMiddleware) ValidateCredentials(username, password string) bool {
	// Constant-time comparison for the username
	if subtle.ConstantTimeCompare([]byte(username), []byte(m.config.AdminUsername)) != 1 {
		return false
	}
	return CheckPassword(password, m.config.AdminPasswordHash)
}

// Wrap wraps an http.Handler with JWT authentication
func (m *JWTAuthMiddleware) Wrap(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !m.config.Enabled || m.skipAuth(r.URL.Path) {
			next.ServeHTTP(w, r)
			return
		}

		tokenString := bearerToken(r)
		if tokenString == "" {
			m.unauthorized(w, "Missing authentication token")
			return
		}

		claims, err := m.ParseToken(tokenString)
		if err != nil {
			log.Printf("JWTAuthMiddleware: rejected token from %s: %v", r.RemoteAddr, err)
			m.unauthorized(w, "Invalid or expired token")
			return
		}

		ctx := context.WithValue(r.Context(), UserContextKey, claims.Username)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func (m *JWTAuthMiddleware) skipAuth(path string) bool {
	if m.skipExact[path] {
		return true
	}
	for _, prefix := range m.skipPrefixes {
		if strings.HasPrefix(path, prefix) {
			return true
		}
	}
	return false
}

// bearerToken extracts the token from the Authorization header.
func bearerToken(r *http.Request) string {
	token, found := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
	if !found {
		return ""
	}
	return token
}

func (m *JWTAuthMiddleware) unauthorized(w http.ResponseWriter, message string) {
	w.Header().Set("WWW-Authenticate", `Bearer realm="korrelix"`)
	api.RespondError(w, http.StatusUnauthorized, message)
}

// GetUserFromContext returns the username from the request context
func GetUserFromContext(ctx context.Context) string {
	if user, ok := ctx.Value(UserContextKey).(string); ok {
		return user
	}
	return ""
}
