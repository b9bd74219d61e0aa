package middleware

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"
)

type contextKey string

const (
	subjectKey contextKey = "auth_subject"
	emailKey   contextKey = "auth_email"
	nameKey    contextKey = "auth_name"
)

// Identity is the verified external identity extracted from the bearer
// token. User rows are resolved from it on first use.
type Identity struct {
	Subject string
	Email   string
	Name    string
}

// Auth verifies the HS256 bearer token and stores the identity claims in
// the request context. Requests without a valid token are rejected before
// reaching any handler.
func Auth(secret string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			authHeader := r.Header.Get("Authorization")
			if authHeader == "" {
				http.Error(w, "missing authorization", http.StatusUnauthorized)
				return
			}
			parts := strings.SplitN(authHeader, " ", 2)
			if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
				http.Error(w, "invalid authorization", http.StatusUnauthorized)
				return
			}

			claims := jwt.MapClaims{}
			token, err := jwt.ParseWithClaims(parts[1], claims, func(t *jwt.Token) (any, error) {
				if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
					return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
				}
				return []byte(secret), nil
			})
			if err != nil || !token.Valid {
				http.Error(w, "invalid token", http.StatusUnauthorized)
				return
			}
			subject, err := claims.GetSubject()
			if err != nil || subject == "" {
				http.Error(w, "invalid token", http.StatusUnauthorized)
				return
			}

			ctx := r.Context()
			ctx = context.WithValue(ctx, subjectKey, subject)
			ctx = context.WithValue(ctx, emailKey, stringClaim(claims, "email"))
			ctx = context.WithValue(ctx, nameKey, stringClaim(claims, "name"))
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func stringClaim(claims jwt.MapClaims, key string) string {
	if v, ok := claims[key].(string); ok {
		return v
	}
	return ""
}

// IdentityFromContext returns the verified identity, if any.
func IdentityFromContext(ctx context.Context) (Identity, bool) {
	subject, ok := ctx.Value(subjectKey).(string)
	if !ok || subject == "" {
		return Identity{}, false
	}
	identity := Identity{Subject: subject}
	if email, ok := ctx.Value(emailKey).(string); ok {
		identity.Email = email
	}
	if name, ok := ctx.Value(nameKey).(string); ok {
		identity.Name = name
	}
	return identity, true
}

// ContextWithIdentity injects an identity, primarily for tests.
func ContextWithIdentity(ctx context.Context, identity Identity) context.Context {
	if strings.TrimSpace(identity.Subject) == "" {
		return ctx
	}
	ctx = context.WithValue(ctx, subjectKey, identity.Subject)
	ctx = context.WithValue(ctx, emailKey, identity.Email)
	return context.WithValue(ctx, nameKey, identity.Name)
}
