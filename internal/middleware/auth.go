package middleware

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/pkordes/homecare/internal/domain"
)

type ctxKey int

const (
	actorKey ctxKey = iota
	emailKey
	requestInfoKey
)

// Claims are the bearer-token claims the API reads. Subject is the user id.
type Claims struct {
	Email string `json:"email,omitempty"`
	jwt.RegisteredClaims
}

// NewAuthenticator returns a middleware that verifies an HS256 bearer token
// signed with secret and puts the caller's domain.Actor in the request context.
// Requests without a valid token are rejected with 401.
func NewAuthenticator(secret []byte) func(http.Handler) http.Handler {
	parser := jwt.NewParser(
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
	)
	keyFunc := func(*jwt.Token) (any, error) { return secret, nil }

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			raw, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
			if !ok || raw == "" {
				unauthorized(w, "missing bearer token")
				return
			}
			var claims Claims
			if _, err := parser.ParseWithClaims(raw, &claims, keyFunc); err != nil {
				unauthorized(w, "invalid bearer token")
				return
			}
			userID, err := uuid.Parse(claims.Subject)
			if err != nil {
				unauthorized(w, "token subject is not a user id")
				return
			}

			if info, ok := r.Context().Value(requestInfoKey).(*requestInfo); ok {
				info.userID = userID.String()
			}
			ctx := WithActor(r.Context(), domain.Actor{UserID: userID}, claims.Email)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// WithActor returns a copy of ctx carrying the authenticated actor and email.
func WithActor(ctx context.Context, actor domain.Actor, email string) context.Context {
	ctx = context.WithValue(ctx, actorKey, actor)
	return context.WithValue(ctx, emailKey, email)
}

// ActorFrom returns the actor stored by the authenticator.
func ActorFrom(ctx context.Context) (domain.Actor, bool) {
	a, ok := ctx.Value(actorKey).(domain.Actor)
	return a, ok
}

// EmailFrom returns the email claim of the bearer token, if any.
func EmailFrom(ctx context.Context) string {
	e, _ := ctx.Value(emailKey).(string)
	return e
}

func unauthorized(w http.ResponseWriter, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("WWW-Authenticate", `Bearer realm="homecare"`)
	w.WriteHeader(http.StatusUnauthorized)
	_ = json.NewEncoder(w).Encode(map[string]any{
		"error": map[string]string{"code": "unauthorized", "message": msg},
	})
}
