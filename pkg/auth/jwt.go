package auth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"
)

type ctxKey struct{}

var ErrNoCaller = errors.New("no authenticated caller")

// Claims carries the identity issued by the authentication service.
type Claims struct {
	ID string `json:"id"`
	jwt.RegisteredClaims
}

// Middleware verifies an HMAC bearer token and stores the caller id in the
// request context.
func Middleware(secret []byte) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			header := r.Header.Get("Authorization")
			if header == "" {
				unauthorized(w, "missing authorization")
				return
			}
			parts := strings.Fields(header)
			if len(parts) != 2 || !strings.EqualFold(parts[0], "bearer") {
				unauthorized(w, "invalid authorization header")
				return
			}

			claims := &Claims{}
			token, err := jwt.ParseWithClaims(parts[1], claims, func(t *jwt.Token) (any, error) {
				if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
					return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
				}
				return secret, nil
			})
			if err != nil || !token.Valid {
				unauthorized(w, "invalid or expired token")
				return
			}
			if claims.ID == "" {
				unauthorized(w, "invalid token payload")
				return
			}

			next.ServeHTTP(w, r.WithContext(WithCaller(r.Context(), claims.ID)))
		})
	}
}

func WithCaller(ctx context.Context, userID string) context.Context {
	return context.WithValue(ctx, ctxKey{}, userID)
}

func CallerID(ctx context.Context) (string, error) {
	id, ok := ctx.Value(ctxKey{}).(string)
	if !ok || id == "" {
		return "", ErrNoCaller
	}
	return id, nil
}

// Sign issues a token for userID. It is used by tests and local tooling.
func Sign(secret []byte, userID string) (string, error) {
	return jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{ID: userID}).SignedString(secret)
}

func unauthorized(w http.ResponseWriter, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusUnauthorized)
	_ = json.NewEncoder(w).Encode(map[string]string{"message": msg})
}
