// Package api exposes the tenant-scoped gateway functions over HTTP.
//
// Every route lives under /functions and accepts a JSON body with POST.
// Except for the billing webhook, each handler follows the same order:
//
//  1. the bearer credential is verified by the auth middleware
//  2. the caller's organization is resolved from their profile and their
//     role is read fresh and compared with the route's minimum
//  3. the payload is decoded and validated
//  4. creating operations consult the quota enforcer
//  5. the write runs with the resolved organization id in every predicate
//  6. an audit event is recorded
//
// Organization ids and roles supplied by the client are never trusted.
// Responses carry "success": true alongside the payload, or a single
// "error" message whose status reflects the apperr kind.
//
// The webhook route is unauthenticated; pkg/billing verifies its signature
// before the body is parsed.
package api
