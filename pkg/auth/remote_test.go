package auth

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRemoteVerifier(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/auth/v1/user", r.URL.Path)
		assert.Equal(t, "anon-key", r.Header.Get("apikey"))

		switch r.Header.Get("Authorization") {
		case "Bearer good-token":
			w.Header().Set("Content-Type", "application/json")
			w.Write([]byte(`{"id":"user-1","email":"Bob@Example.com","user_metadata":{"name":"Bob"}}`))
		case "Bearer broken":
			w.WriteHeader(http.StatusInternalServerError)
		default:
			w.WriteHeader(http.StatusUnauthorized)
			w.Write([]byte(`{"msg":"invalid JWT"}`))
		}
	}))
	defer server.Close()

	verifier, err := NewRemoteVerifier(server.URL, "anon-key")
	require.NoError(t, err)
	ctx := context.Background()

	t.Run("valid token", func(t *testing.T) {
		authCtx, err := verifier.Verify(ctx, "good-token")
		require.NoError(t, err)
		assert.Equal(t, "user-1", authCtx.UserID)
		assert.Equal(t, "bob@example.com", authCtx.Email)
		assert.Equal(t, "Bob", authCtx.FullName)
	})

	t.Run("rejected token", func(t *testing.T) {
		_, err := verifier.Verify(ctx, "bad-token")
		assert.ErrorIs(t, err, ErrInvalidToken)
	})

	t.Run("provider failure is not an auth failure", func(t *testing.T) {
		_, err := verifier.Verify(ctx, "broken")
		require.Error(t, err)
		assert.False(t, errors.Is(err, ErrInvalidToken))
	})
}

func TestNewRemoteVerifier_RequiresSettings(t *testing.T) {
	_, err := NewRemoteVerifier("", "anon")
	assert.Error(t, err)
	_, err = NewRemoteVerifier("http://localhost", "")
	assert.Error(t, err)
}
