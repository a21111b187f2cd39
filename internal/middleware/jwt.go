package middleware

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"strings"

	"github.com/golang-jwt/jwt/v5"
)

type key string

const identityKey key = "identity"

// Identity is the decoded token payload exposed to downstream handlers.
// It is never re-fetched from the store; the token is the source of truth.
type Identity struct {
	UserID   int
	Username string
	Email    string
	Roles    []string
}

// HasRole reports whether the identity carries the given role claim.
func (id Identity) HasRole(role string) bool {
	for _, r := range id.Roles {
		if r == role {
			return true
		}
	}
	return false
}

// IdentityFrom returns the authenticated identity stored by Authenticator.
func IdentityFrom(ctx context.Context) (Identity, bool) {
	id, ok := ctx.Value(identityKey).(Identity)
	return id, ok
}

// TokenValidator validates incoming bearer tokens. Issuer and audience must
// match the issuing configuration exactly or validation fails.
type TokenValidator struct {
	Secret   []byte
	Issuer   string
	Audience string
}

func NewTokenValidator(secret, issuer, audience string) *TokenValidator {
	return &TokenValidator{Secret: []byte(secret), Issuer: issuer, Audience: audience}
}

// Authenticator rejects requests whose token is missing, malformed, badly
// signed, expired, or carries the wrong issuer/audience. On success the
// decoded identity is placed in the request context.
func (v *TokenValidator) Authenticator(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		authHeader := r.Header.Get("Authorization")
		if authHeader == "" || !strings.HasPrefix(authHeader, "Bearer ") {
			unauthorized(w, "missing authorization header")
			return
		}

		tokenStr := strings.TrimPrefix(authHeader, "Bearer ")

		token, err := jwt.Parse(tokenStr,
			func(token *jwt.Token) (interface{}, error) { return v.Secret, nil },
			jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
			jwt.WithIssuer(v.Issuer),
			jwt.WithAudience(v.Audience),
			jwt.WithExpirationRequired(),
		)
		if err != nil || !token.Valid {
			unauthorized(w, "invalid token")
			return
		}

		claims, ok := token.Claims.(jwt.MapClaims)
		if !ok {
			unauthorized(w, "invalid token claims")
			return
		}

		ident, err := identityFromClaims(claims)
		if err != nil {
			unauthorized(w, "invalid token claims")
			return
		}

		ctx := context.WithValue(r.Context(), identityKey, ident)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// RequireRole is the one role guard. The router applies it to each route
// listed in its policy table; there are no per-handler authorization checks.
func RequireRole(role string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ident, ok := IdentityFrom(r.Context())
			if !ok {
				unauthorized(w, "missing authorization header")
				return
			}
			if !ident.HasRole(role) {
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusForbidden)
				json.NewEncoder(w).Encode(map[string]string{"error": "forbidden"})
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func identityFromClaims(claims jwt.MapClaims) (Identity, error) {
	sub, err := claims.GetSubject()
	if err != nil {
		return Identity{}, err
	}
	userID, err := strconv.Atoi(sub)
	if err != nil {
		return Identity{}, err
	}

	ident := Identity{UserID: userID}
	if s, ok := claims["username"].(string); ok {
		ident.Username = s
	}
	if s, ok := claims["email"].(string); ok {
		ident.Email = s
	}
	// roles arrives as a JSON array; tolerate a single string claim too.
	switch roles := claims["roles"].(type) {
	case []interface{}:
		for _, r := range roles {
			if s, ok := r.(string); ok {
				ident.Roles = append(ident.Roles, s)
			}
		}
	case string:
		ident.Roles = []string{roles}
	}
	return ident, nil
}

func unauthorized(w http.ResponseWriter, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusUnauthorized)
	json.NewEncoder(w).Encode(map[string]string{"error": message})
}
