package httpserver

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v4"
	"golang.org/x/crypto/bcrypt"

	"github.com/fairyhunter13/ai-mock-interview/internal/config"
	"github.com/fairyhunter13/ai-mock-interview/internal/domain"
)

// tokenTTL bounds how long an issued bearer token stays valid.
const tokenTTL = 72 * time.Hour

// AuthManager issues and validates HMAC-signed bearer tokens and guards the
// admin maintenance surface.
type AuthManager struct {
	secret []byte
	cfg    config.Config
}

// NewAuthManager creates an AuthManager from configuration.
func NewAuthManager(cfg config.Config) *AuthManager {
	return &AuthManager{secret: []byte(cfg.JWTSecret), cfg: cfg}
}

// IssueToken signs a token whose subject is the user id.
func (a *AuthManager) IssueToken(userID string) (string, error) {
	if len(a.secret) == 0 {
		return "", fmt.Errorf("%w: jwt secret not configured", domain.ErrInternal)
	}
	now := time.Now()
	claims := jwt.RegisteredClaims{
		Subject:   userID,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(tokenTTL)),
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(a.secret)
}

// ParseToken validates a signed token and returns its subject.
func (a *AuthManager) ParseToken(tokenStr string) (string, error) {
	claims := &jwt.RegisteredClaims{}
	token, err := jwt.ParseWithClaims(tokenStr, claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return a.secret, nil
	})
	if err != nil || !token.Valid {
		return "", fmt.Errorf("%w: invalid or expired token", domain.ErrUnauthorized)
	}
	if claims.Subject == "" {
		return "", fmt.Errorf("%w: token has no subject", domain.ErrUnauthorized)
	}
	return claims.Subject, nil
}

type userIDKey struct{}

// UserID extracts the authenticated user id injected by AuthRequired.
func UserID(ctx context.Context) string {
	if v, ok := ctx.Value(userIDKey{}).(string); ok {
		return v
	}
	return ""
}

// AuthRequired rejects requests without a valid bearer token and stores the
// caller identity in the request context.
func (a *AuthManager) AuthRequired(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		h := r.Header.Get("Authorization")
		if !strings.HasPrefix(h, "Bearer ") {
			writeError(w, r, fmt.Errorf("%w: missing bearer token", domain.ErrUnauthorized), nil)
			return
		}
		userID, err := a.ParseToken(strings.TrimPrefix(h, "Bearer "))
		if err != nil {
			writeError(w, r, err, nil)
			return
		}
		ctx := context.WithValue(r.Context(), userIDKey{}, userID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// AdminRequired additionally restricts a route to the configured admin user.
func (a *AuthManager) AdminRequired(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !a.cfg.AdminEnabled() || UserID(r.Context()) != a.cfg.AdminUsername {
			writeError(w, r, fmt.Errorf("%w: admin access required", domain.ErrUnauthorized), nil)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// LoginHandler exchanges the configured admin credentials for a bearer token.
func (a *AuthManager) LoginHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		r.Body = http.MaxBytesReader(w, r.Body, 1<<20)
		var req struct {
			Username string `json:"username"`
			Password string `json:"password"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, r, fmt.Errorf("%w: invalid json", domain.ErrInvalidArgument), nil)
			return
		}
		if !a.cfg.AdminEnabled() {
			writeError(w, r, fmt.Errorf("%w: login disabled", domain.ErrUnauthorized), nil)
			return
		}
		if req.Username != a.cfg.AdminUsername ||
			bcrypt.CompareHashAndPassword([]byte(a.cfg.AdminPasswordHash), []byte(req.Password)) != nil {
			writeError(w, r, fmt.Errorf("%w: invalid credentials", domain.ErrUnauthorized), nil)
			return
		}
		token, err := a.IssueToken(req.Username)
		if err != nil {
			writeError(w, r, err, nil)
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"token": token})
	}
}
