// Package middleware provides the gateway's authentication and rate limiting
// middleware.
//
// AuthMiddleware verifies the bearer credential with an auth.Verifier and
// stores the resulting *auth.AuthContext in the request context. Handlers
// read it back with GetAuthContext.
//
// RateLimitMiddleware counts requests per actor (or per client IP before
// authentication) in a fixed window. RedisLimiter shares the window across
// instances; LocalLimiter is used when Redis is not configured.
package middleware
