// Package contextkeys defines the request-scoped values shared between the
// HTTP middleware, the gateway handlers and the logger.
package contextkeys

import (
	"context"
	"sync"
)

type key int

const (
	authKey key = iota
	requestIDKey
	userIDKey
	tenantKey
	loggerKey
)

// Tenant records the organization a request was resolved to. Middleware
// installs an empty Tenant before the handler runs, so the org id set deep in
// the handler is visible to the access log once the handler returns.
type Tenant struct {
	mu    sync.RWMutex
	orgID string
}

// OrgID returns the resolved organization id, empty until resolution
func (t *Tenant) OrgID() string {
	if t == nil {
		return ""
	}
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.orgID
}

func (t *Tenant) set(orgID string) {
	t.mu.Lock()
	t.orgID = orgID
	t.mu.Unlock()
}

// WithAuth stores the verified credential (*auth.AuthContext)
func WithAuth(ctx context.Context, authCtx interface{}) context.Context {
	return context.WithValue(ctx, authKey, authCtx)
}

// Auth returns the value stored by WithAuth
func Auth(ctx context.Context) interface{} {
	return ctx.Value(authKey)
}

func WithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, requestIDKey, requestID)
}

func GetRequestID(ctx context.Context) string {
	requestID, _ := ctx.Value(requestIDKey).(string)
	return requestID
}

func WithUserID(ctx context.Context, userID string) context.Context {
	return context.WithValue(ctx, userIDKey, userID)
}

func GetUserID(ctx context.Context) string {
	userID, _ := ctx.Value(userIDKey).(string)
	return userID
}

// WithTenant installs an empty Tenant holder and returns it
func WithTenant(ctx context.Context) (context.Context, *Tenant) {
	t := &Tenant{}
	return context.WithValue(ctx, tenantKey, t), t
}

// SetOrgID records the resolved organization on the request's Tenant. It is
// a no-op when no holder was installed.
func SetOrgID(ctx context.Context, orgID string) {
	if t, ok := ctx.Value(tenantKey).(*Tenant); ok {
		t.set(orgID)
	}
}

// GetOrgID returns the organization resolved for this request, if any
func GetOrgID(ctx context.Context) string {
	t, _ := ctx.Value(tenantKey).(*Tenant)
	return t.OrgID()
}

// WithLogger stores the request logger (*observability.Logger)
func WithLogger(ctx context.Context, logger interface{}) context.Context {
	return context.WithValue(ctx, loggerKey, logger)
}

// Logger returns the value stored by WithLogger
func Logger(ctx context.Context) interface{} {
	return ctx.Value(loggerKey)
}
