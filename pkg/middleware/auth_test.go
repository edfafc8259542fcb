package middleware

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/platinummonkey/grc-gateway/pkg/auth"
	"github.com/platinummonkey/grc-gateway/pkg/contextkeys"
)

type stubVerifier struct {
	authCtx *auth.AuthContext
	err     error
}

func (s stubVerifier) Verify(ctx context.Context, token string) (*auth.AuthContext, error) {
	if s.err != nil {
		return nil, s.err
	}
	return s.authCtx, nil
}

func TestAuthMiddleware(t *testing.T) {
	tests := []struct {
		name       string
		header     string
		verifier   stubVerifier
		wantStatus int
		wantCalled bool
	}{
		{
			name:       "missing header",
			verifier:   stubVerifier{},
			wantStatus: http.StatusUnauthorized,
		},
		{
			name:       "not bearer",
			header:     "Basic abc",
			verifier:   stubVerifier{},
			wantStatus: http.StatusUnauthorized,
		},
		{
			name:       "invalid token",
			header:     "Bearer bad",
			verifier:   stubVerifier{err: auth.ErrInvalidToken},
			wantStatus: http.StatusUnauthorized,
		},
		{
			name:       "provider unreachable",
			header:     "Bearer tok",
			verifier:   stubVerifier{err: errors.New("dial tcp: connection refused")},
			wantStatus: http.StatusBadGateway,
		},
		{
			name:       "valid token",
			header:     "Bearer good",
			verifier:   stubVerifier{authCtx: &auth.AuthContext{UserID: "user-1", Email: "a@b.co"}},
			wantStatus: http.StatusOK,
			wantCalled: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			called := false
			handler := NewAuthMiddleware(tt.verifier).Handler(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				called = true
				authCtx := GetAuthContext(r)
				assert.Equal(t, "user-1", authCtx.UserID)
				assert.Equal(t, "user-1", contextkeys.GetUserID(r.Context()))
			}))

			req := httptest.NewRequest(http.MethodPost, "/functions/usage", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			rec := httptest.NewRecorder()
			handler.ServeHTTP(rec, req)

			assert.Equal(t, tt.wantStatus, rec.Code)
			assert.Equal(t, tt.wantCalled, called)
		})
	}
}

func TestGetAuthContext_Missing(t *testing.T) {
	assert.Nil(t, GetAuthContext(httptest.NewRequest(http.MethodGet, "/", nil)))
}
