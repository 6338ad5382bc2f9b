package auth

import (
	"context"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"
)

// ContextKeyUserID is the request-context key holding the authenticated user id.
const ContextKeyUserID = "user_id"

// Claims carried by the platform's access tokens. Issuing them is the external
// auth collaborator's job; this core only verifies.
type Claims struct {
	UserID int `json:"user_id"`
	jwt.RegisteredClaims
}

// Middleware verifies bearer tokens and exposes the user id to handlers.
type Middleware struct {
	jwtSecret []byte
}

func NewMiddleware(jwtSecret string) *Middleware {
	return &Middleware{jwtSecret: []byte(jwtSecret)}
}

// Require rejects requests without a valid bearer token.
func (m *Middleware) Require(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		userID, err := m.userIDFromRequest(r)
		if err != nil {
			http.Error(w, "Unauthorized", http.StatusUnauthorized)
			return
		}

		ctx := context.WithValue(r.Context(), ContextKeyUserID, userID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// Optional lets unauthenticated requests through without a user id in context.
// Such viewers are treated as free tier downstream.
func (m *Middleware) Optional(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if userID, err := m.userIDFromRequest(r); err == nil {
			ctx := context.WithValue(r.Context(), ContextKeyUserID, userID)
			r = r.WithContext(ctx)
		}
		next.ServeHTTP(w, r)
	})
}

func (m *Middleware) userIDFromRequest(r *http.Request) (int, error) {
	tokenString := extractToken(r)
	if tokenString == "" {
		return 0, jwt.ErrTokenMalformed
	}

	claims := &Claims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, jwt.ErrSignatureInvalid
		}
		return m.jwtSecret, nil
	})
	if err != nil {
		return 0, err
	}
	if !token.Valid {
		return 0, jwt.ErrTokenUnverifiable
	}
	return claims.UserID, nil
}

// UserIDFromContext returns the authenticated user id, or 0 for anonymous.
func UserIDFromContext(ctx context.Context) int {
	if userID, ok := ctx.Value(ContextKeyUserID).(int); ok {
		return userID
	}
	return 0
}

func extractToken(r *http.Request) string {
	header := r.Header.Get("Authorization")
	if strings.HasPrefix(header, "Bearer ") {
		return strings.TrimPrefix(header, "Bearer ")
	}
	return ""
}
