package identity

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/platinummonkey/grc-gateway/pkg/apperr"
)

func requireServiceKey(t *testing.T, r *http.Request) {
	t.Helper()
	assert.Equal(t, "service-key", r.Header.Get("apikey"))
	assert.Equal(t, "Bearer service-key", r.Header.Get("Authorization"))
}

func TestFindUserByEmail_Paginates(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requireServiceKey(t, r)
		require.Equal(t, "/auth/v1/admin/users", r.URL.Path)
		w.Header().Set("Content-Type", "application/json")
		switch r.URL.Query().Get("page") {
		case "1":
			fmt.Fprint(w, `{"users":[{"id":"u1","email":"a@example.com"},{"id":"u2","email":"b@example.com"}]}`)
		default:
			fmt.Fprint(w, `{"users":[{"id":"u3","email":"Carol@Example.com","user_metadata":{"full_name":"Carol"}}]}`)
		}
	}))
	defer srv.Close()

	c := NewAdminClient(srv.URL, "service-key", "")
	c.pageSize = 2

	u, err := c.FindUserByEmail(context.Background(), "carol@example.com")
	require.NoError(t, err)
	require.NotNil(t, u)
	assert.Equal(t, "u3", u.ID)
	assert.Equal(t, "Carol", u.FullName())

	u, err = c.FindUserByEmail(context.Background(), "nobody@example.com")
	require.NoError(t, err)
	assert.Nil(t, u)
}

func TestInviteUserByEmail(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requireServiceKey(t, r)
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/auth/v1/invite", r.URL.Path)
		assert.Equal(t, "https://app.example.com/accept", r.URL.Query().Get("redirect_to"))

		var body map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "new@example.com", body["email"])

		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"id":"u9","email":"new@example.com"}`)
	}))
	defer srv.Close()

	c := NewAdminClient(srv.URL, "service-key", "https://app.example.com/accept")
	u, err := c.InviteUserByEmail(context.Background(), "new@example.com", map[string]any{"org_id": "o1"})
	require.NoError(t, err)
	assert.Equal(t, "u9", u.ID)
}

func TestInviteUserByEmail_UpstreamMessage(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusUnprocessableEntity)
		fmt.Fprint(w, `{"code":422,"msg":"Email rate limit exceeded"}`)
	}))
	defer srv.Close()

	c := NewAdminClient(srv.URL, "service-key", "")
	_, err := c.InviteUserByEmail(context.Background(), "new@example.com", nil)
	require.Error(t, err)
	assert.Equal(t, apperr.KindUpstream, apperr.KindOf(err))
	assert.Contains(t, apperr.PublicMessage(err), "Email rate limit exceeded")
	assert.NotContains(t, apperr.PublicMessage(err), "service-key")
}

func TestDeleteUser_AlreadyGoneIsSuccess(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		requireServiceKey(t, r)
		assert.Equal(t, http.MethodDelete, r.Method)
		if r.URL.Path == "/auth/v1/admin/users/gone" {
			w.WriteHeader(http.StatusNotFound)
			fmt.Fprint(w, `{"msg":"User not found"}`)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	c := NewAdminClient(srv.URL, "service-key", "")
	assert.NoError(t, c.DeleteUser(context.Background(), "u1"))
	assert.NoError(t, c.DeleteUser(context.Background(), "gone"))
	assert.Equal(t, int32(2), atomic.LoadInt32(&calls))
}

func TestMissingServiceKeyIsMisconfigured(t *testing.T) {
	c := NewAdminClient("http://127.0.0.1:1", "", "")

	_, err := c.FindUserByEmail(context.Background(), "a@example.com")
	assert.Equal(t, apperr.KindMisconfigured, apperr.KindOf(err))
	_, err = c.InviteUserByEmail(context.Background(), "a@example.com", nil)
	assert.Equal(t, apperr.KindMisconfigured, apperr.KindOf(err))
	err = c.DeleteUser(context.Background(), "u1")
	assert.Equal(t, apperr.KindMisconfigured, apperr.KindOf(err))
	assert.Contains(t, apperr.PublicMessage(err), "AUTH_SERVICE_ROLE_KEY")
}
