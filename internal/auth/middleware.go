package auth

import (
	"context"
	"log/slog"
	"net/http"
	"strings"

	"github.com/mpk-pharma/kanha/internal/platform/httpx"
	"github.com/mpk-pharma/kanha/internal/shared"
)

type sessionIDKey struct{}

// Authenticate requires a valid bearer token and stores the principal in the
// request context.
func Authenticate(service *Service, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token, ok := bearerToken(r)
			if !ok {
				httpx.RespondError(w, logger, httpx.Unauthorized("Authentication required"))
				return
			}
			principal, sessionID, err := service.Resolve(r.Context(), token)
			if err != nil {
				httpx.RespondError(w, logger, err)
				return
			}
			ctx := shared.ContextWithPrincipal(r.Context(), principal)
			ctx = context.WithValue(ctx, sessionIDKey{}, sessionID)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// SessionIDFromContext returns the session the request authenticated with.
func SessionIDFromContext(ctx context.Context) string {
	id, _ := ctx.Value(sessionIDKey{}).(string)
	return id
}

func bearerToken(r *http.Request) (string, bool) {
	header := r.Header.Get("Authorization")
	if len(header) < len("Bearer ") || !strings.EqualFold(header[:len("Bearer ")], "bearer ") {
		return "", false
	}
	token := strings.TrimSpace(header[len("Bearer "):])
	return token, token != ""
}
