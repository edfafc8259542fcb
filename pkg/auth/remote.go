package auth

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
)

// RemoteVerifier asks the identity provider who a token belongs to, using
// the restricted anon credential. Revoked sessions are caught here, which a
// purely local signature check cannot do.
type RemoteVerifier struct {
	client  *resty.Client
	anonKey string
}

// NewRemoteVerifier creates a verifier against the provider at baseURL
func NewRemoteVerifier(baseURL, anonKey string) (*RemoteVerifier, error) {
	if baseURL == "" {
		return nil, fmt.Errorf("identity provider URL is required")
	}
	if anonKey == "" {
		return nil, fmt.Errorf("anon key is required")
	}
	client := resty.New().
		SetBaseURL(strings.TrimRight(baseURL, "/")).
		SetTimeout(10 * time.Second)
	return &RemoteVerifier{client: client, anonKey: anonKey}, nil
}

type remoteUser struct {
	ID           string         `json:"id"`
	Email        string         `json:"email"`
	UserMetadata map[string]any `json:"user_metadata"`
}

// Verify resolves the token through GET /auth/v1/user
func (v *RemoteVerifier) Verify(ctx context.Context, rawToken string) (*AuthContext, error) {
	var user remoteUser
	resp, err := v.client.R().
		SetContext(ctx).
		SetHeader("apikey", v.anonKey).
		SetAuthToken(rawToken).
		SetResult(&user).
		Get("/auth/v1/user")
	if err != nil {
		return nil, fmt.Errorf("failed to reach identity provider: %w", err)
	}

	switch {
	case resp.StatusCode() == http.StatusUnauthorized || resp.StatusCode() == http.StatusForbidden:
		return nil, ErrInvalidToken
	case resp.IsError():
		return nil, fmt.Errorf("identity provider returned status %d", resp.StatusCode())
	}
	if user.ID == "" {
		return nil, ErrInvalidToken
	}

	return &AuthContext{
		UserID:   user.ID,
		Email:    strings.ToLower(user.Email),
		FullName: metadataString(user.UserMetadata, "full_name", "name"),
		RawToken: rawToken,
	}, nil
}
