package auth

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/sakif/cards/internal/model"
)

// HeaderName is the request and response header that carries a session token.
const HeaderName = "x-auth"

// TokenVerifier resolves a raw session token to the user it belongs to.
// service.UserService implements it; tests can pass a stub.
type TokenVerifier interface {
	VerifyToken(ctx context.Context, token string) (*model.User, error)
}

// contextKey is a package-private type, so no other package can read or
// overwrite our context values by accident.
type contextKey string

const (
	userKey  contextKey = "user"
	tokenKey contextKey = "token"
)

// Authenticate is the middleware in front of every protected route.
//
// It reads the token from the x-auth header and asks the verifier for the
// matching user. On success the user and the raw token are put into the
// request context; handlers read them with UserFromContext/TokenFromContext.
// On any failure (missing header, bad signature, revoked token, deleted
// user) it answers 401 and the handler never runs.
//
// The reason for a rejection is logged at debug level on logger, never sent.
//
// Chi applies middlewares in a chain: req → M1 → M2 → Handler → M2 → M1 → resp
func Authenticate(verifier TokenVerifier, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token := r.Header.Get(HeaderName)
			if token == "" {
				unauthorized(w)
				return
			}

			user, err := verifier.VerifyToken(r.Context(), token)
			if err != nil {
				logger.DebugContext(r.Context(), "authentication failed",
					slog.String("path", r.URL.Path),
					slog.String("error", err.Error()),
				)
				unauthorized(w)
				return
			}

			next.ServeHTTP(w, r.WithContext(WithUser(r.Context(), user, token)))
		})
	}
}

// UserFromContext returns the user Authenticate resolved.
// ok is false on routes that are not behind Authenticate.
func UserFromContext(ctx context.Context) (*model.User, bool) {
	user, ok := ctx.Value(userKey).(*model.User)
	return user, ok && user != nil
}

// TokenFromContext returns the raw token the request authenticated with.
func TokenFromContext(ctx context.Context) (string, bool) {
	token, ok := ctx.Value(tokenKey).(string)
	return token, ok && token != ""
}

// WithUser returns a context carrying user and token, the way Authenticate
// hands them to protected handlers.
func WithUser(ctx context.Context, user *model.User, token string) context.Context {
	ctx = context.WithValue(ctx, userKey, user)
	return context.WithValue(ctx, tokenKey, token)
}

func unauthorized(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusUnauthorized)
	_ = json.NewEncoder(w).Encode(map[string]string{
		"error":   "unauthorized",
		"message": "valid authentication required",
	})
}
