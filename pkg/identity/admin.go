// Package identity talks to the identity provider's admin API with the
// elevated service credential. The credential is only ever placed in request
// headers.
package identity

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"

	"github.com/platinummonkey/grc-gateway/pkg/apperr"
)

const (
	serviceKeySetting = "AUTH_SERVICE_ROLE_KEY"
	defaultPageSize   = 200
	maxPages          = 50
)

// User is an identity known to the provider
type User struct {
	ID           string         `json:"id"`
	Email        string         `json:"email"`
	UserMetadata map[string]any `json:"user_metadata,omitempty"`
	InvitedAt    *time.Time     `json:"invited_at,omitempty"`
	CreatedAt    time.Time      `json:"created_at"`
}

// FullName returns the display name stored in the user's metadata
func (u *User) FullName() string {
	for _, k := range []string{"full_name", "name"} {
		if s, ok := u.UserMetadata[k].(string); ok && s != "" {
			return s
		}
	}
	return ""
}

// Admin is the subset of the identity admin API used by the gateway
type Admin interface {
	FindUserByEmail(ctx context.Context, email string) (*User, error)
	InviteUserByEmail(ctx context.Context, email string, metadata map[string]any) (*User, error)
	DeleteUser(ctx context.Context, userID string) error
}

// AdminClient implements Admin over the provider's REST API
type AdminClient struct {
	client      *resty.Client
	serviceKey  string
	redirectURL string
	pageSize    int
}

var _ Admin = (*AdminClient)(nil)

// NewAdminClient creates an admin client. An empty serviceKey is accepted so
// the server can start; every call then fails as misconfigured.
func NewAdminClient(baseURL, serviceKey, redirectURL string) *AdminClient {
	client := resty.New().
		SetBaseURL(strings.TrimRight(baseURL, "/")).
		SetTimeout(15 * time.Second).
		SetRetryCount(2).
		SetRetryWaitTime(200 * time.Millisecond).
		AddRetryCondition(func(r *resty.Response, err error) bool {
			return err != nil || r.StatusCode() >= http.StatusInternalServerError
		})
	return &AdminClient{
		client:      client,
		serviceKey:  serviceKey,
		redirectURL: redirectURL,
		pageSize:    defaultPageSize,
	}
}

func (c *AdminClient) request(ctx context.Context) (*resty.Request, error) {
	if c.serviceKey == "" {
		return nil, apperr.Misconfigured(serviceKeySetting)
	}
	return c.client.R().
		SetContext(ctx).
		SetHeader("apikey", c.serviceKey).
		SetAuthToken(c.serviceKey), nil
}

type apiError struct {
	Message          string `json:"msg"`
	Error            string `json:"error"`
	ErrorDescription string `json:"error_description"`
	Code             any    `json:"code"`
}

func (e *apiError) text(status int) string {
	switch {
	case e.Message != "":
		return e.Message
	case e.ErrorDescription != "":
		return e.ErrorDescription
	case e.Error != "":
		return e.Error
	}
	return fmt.Sprintf("status %d", status)
}

func upstream(resp *resty.Response, apiErr *apiError) error {
	return apperr.Upstream("identity provider", fmt.Errorf("%s", apiErr.text(resp.StatusCode())))
}

type userPage struct {
	Users []User `json:"users"`
}

// FindUserByEmail returns the identity with email, or nil when none exists
func (c *AdminClient) FindUserByEmail(ctx context.Context, email string) (*User, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	for page := 1; page <= maxPages; page++ {
		req, err := c.request(ctx)
		if err != nil {
			return nil, err
		}
		var result userPage
		var apiErr apiError
		resp, err := req.
			SetQueryParam("page", fmt.Sprint(page)).
			SetQueryParam("per_page", fmt.Sprint(c.pageSize)).
			SetResult(&result).
			SetError(&apiErr).
			Get("/auth/v1/admin/users")
		if err != nil {
			return nil, apperr.Upstream("identity provider", err)
		}
		if resp.IsError() {
			return nil, upstream(resp, &apiErr)
		}

		for i := range result.Users {
			if strings.EqualFold(result.Users[i].Email, email) {
				u := result.Users[i]
				return &u, nil
			}
		}
		if len(result.Users) < c.pageSize {
			return nil, nil
		}
	}
	return nil, nil
}

// InviteUserByEmail creates the identity and sends an invitation email
func (c *AdminClient) InviteUserByEmail(ctx context.Context, email string, metadata map[string]any) (*User, error) {
	req, err := c.request(ctx)
	if err != nil {
		return nil, err
	}
	if c.redirectURL != "" {
		req.SetQueryParam("redirect_to", c.redirectURL)
	}

	var user User
	var apiErr apiError
	resp, err := req.
		SetBody(map[string]any{"email": email, "data": metadata}).
		SetResult(&user).
		SetError(&apiErr).
		Post("/auth/v1/invite")
	if err != nil {
		return nil, apperr.Upstream("identity provider", err)
	}
	if resp.IsError() {
		return nil, upstream(resp, &apiErr)
	}
	if user.ID == "" {
		return nil, apperr.Upstream("identity provider", fmt.Errorf("invite returned no user id"))
	}
	return &user, nil
}

// DeleteUser removes an identity. A user that no longer exists counts as deleted.
func (c *AdminClient) DeleteUser(ctx context.Context, userID string) error {
	req, err := c.request(ctx)
	if err != nil {
		return err
	}
	var apiErr apiError
	resp, err := req.
		SetPathParam("id", userID).
		SetError(&apiErr).
		Delete("/auth/v1/admin/users/{id}")
	if err != nil {
		return apperr.Upstream("identity provider", err)
	}
	if resp.StatusCode() == http.StatusNotFound {
		return nil
	}
	if resp.IsError() {
		return upstream(resp, &apiErr)
	}
	return nil
}
