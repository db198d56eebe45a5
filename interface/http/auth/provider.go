package auth

import (
	"context"
	"encoding/json"
	"net/http"
)

type contextKey string

const UserIdentityContextKey contextKey = "AuthenticatedUserIdentity"

type AuthenticationProvider interface {
	AuthenticationMiddleware(next http.Handler) http.Handler
	AuthenticationRouter() http.Handler
	AuthenticationType() any
}

type AuthenticatorType struct {
	Type string `json:"type"`
}

func WithIdentity(ctx context.Context, identity string) context.Context {
	return context.WithValue(ctx, UserIdentityContextKey, identity)
}

// Identity returns the user identity an AuthenticationMiddleware attached to the context, if any.
func Identity(ctx context.Context) (string, bool) {
	identity, ok := ctx.Value(UserIdentityContextKey).(string)
	return identity, ok && len(identity) > 0
}

// TypeHandler describes the provider in use, so clients know which credentials to present.
func TypeHandler(ap AuthenticationProvider) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		data, err := json.Marshal(ap.AuthenticationType())
		if err != nil {
			http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
			return
		}

		w.Header().Set("content-type", "application/json")
		w.WriteHeader(http.StatusOK)
		w.Write(data)
	})
}
