package middleware

import (
	"errors"
	"net/http"

	"github.com/platinummonkey/grc-gateway/pkg/apperr"
	"github.com/platinummonkey/grc-gateway/pkg/auth"
	"github.com/platinummonkey/grc-gateway/pkg/contextkeys"
	"github.com/platinummonkey/grc-gateway/pkg/httputil"
)

// AuthMiddleware verifies the bearer credential on every request it wraps
type AuthMiddleware struct {
	verifier auth.Verifier
}

// NewAuthMiddleware creates a new authentication middleware
func NewAuthMiddleware(verifier auth.Verifier) *AuthMiddleware {
	return &AuthMiddleware{verifier: verifier}
}

// Handler wraps an HTTP handler with authentication. Missing or invalid
// credentials are answered with 401 before the handler runs.
func (m *AuthMiddleware) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token, ok := auth.ExtractBearer(r.Header.Get("Authorization"))
		if !ok {
			httputil.WriteUnauthorized(w, "missing or malformed authorization header")
			return
		}

		authCtx, err := m.verifier.Verify(r.Context(), token)
		if err != nil {
			if errors.Is(err, auth.ErrInvalidToken) {
				httputil.WriteUnauthorized(w, "invalid or expired token")
				return
			}
			httputil.WriteAppError(w, r, apperr.Upstream("identity provider", err))
			return
		}

		ctx := contextkeys.WithAuth(r.Context(), authCtx)
		ctx = contextkeys.WithUserID(ctx, authCtx.UserID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// GetAuthContext extracts auth context from request
func GetAuthContext(r *http.Request) *auth.AuthContext {
	authCtx, ok := contextkeys.Auth(r.Context()).(*auth.AuthContext)
	if !ok {
		return nil
	}
	return authCtx
}
