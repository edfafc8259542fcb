// Package auth identifies callers and defines the closed role set.
//
// # Roles
//
// A member holds exactly one role per organization:
//
//	RoleViewer  < RoleManager < RoleAdmin
//
// ParseRole maps unknown input to RoleViewer, so a typo or a forged role
// string can only ever reduce privilege. Handlers gate on Role.AtLeast.
//
// # Verifiers
//
// Bearer credentials are turned into an AuthContext by a Verifier:
//
//   - JWTVerifier checks HS256 access tokens against the project JWT secret
//   - OIDCVerifier checks ID tokens from an OpenID Connect issuer
//   - RemoteVerifier asks the identity provider's /auth/v1/user endpoint
//
// Usage:
//
//	verifier, err := auth.NewJWTVerifier(cfg.Auth.JWTSecret, "authenticated")
//	authCtx, err := verifier.Verify(ctx, token)
//
// # Related Packages
//
//   - pkg/middleware: Bearer extraction and context propagation
//   - pkg/orgs: role lookup scoped to an organization
package auth
