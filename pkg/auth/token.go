package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// ErrInvalidToken is returned for any credential that fails verification
var ErrInvalidToken = errors.New("invalid or expired token")

// Verifier turns a bearer credential into an authenticated caller
type Verifier interface {
	Verify(ctx context.Context, rawToken string) (*AuthContext, error)
}

// Claims are the access token claims issued by the identity provider
type Claims struct {
	Email        string         `json:"email"`
	Role         string         `json:"role"`
	UserMetadata map[string]any `json:"user_metadata,omitempty"`
	jwt.RegisteredClaims
}

// JWTVerifier validates HS256 access tokens signed with the project JWT secret
type JWTVerifier struct {
	secret   []byte
	audience string
	leeway   time.Duration
}

// NewJWTVerifier creates a verifier for tokens signed with secret. An empty
// audience disables the audience check.
func NewJWTVerifier(secret, audience string) (*JWTVerifier, error) {
	if secret == "" {
		return nil, errors.New("JWT secret not provided")
	}
	return &JWTVerifier{
		secret:   []byte(secret),
		audience: audience,
		leeway:   30 * time.Second,
	}, nil
}

// Verify parses and validates the token
func (v *JWTVerifier) Verify(ctx context.Context, rawToken string) (*AuthContext, error) {
	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithLeeway(v.leeway),
	}
	if v.audience != "" {
		opts = append(opts, jwt.WithAudience(v.audience))
	}

	parsed, err := jwt.ParseWithClaims(rawToken, &Claims{}, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return v.secret, nil
	}, opts...)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}

	claims, ok := parsed.Claims.(*Claims)
	if !ok || !parsed.Valid {
		return nil, ErrInvalidToken
	}
	if claims.Subject == "" {
		return nil, fmt.Errorf("%w: missing subject", ErrInvalidToken)
	}

	return &AuthContext{
		UserID:   claims.Subject,
		Email:    strings.ToLower(claims.Email),
		FullName: metadataString(claims.UserMetadata, "full_name", "name"),
		RawToken: rawToken,
	}, nil
}

func metadataString(m map[string]any, keys ...string) string {
	for _, k := range keys {
		if s, ok := m[k].(string); ok && s != "" {
			return s
		}
	}
	return ""
}

// ExtractBearer returns the token from an Authorization header value
func ExtractBearer(header string) (string, bool) {
	parts := strings.SplitN(strings.TrimSpace(header), " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return "", false
	}
	token := strings.TrimSpace(parts[1])
	return token, token != ""
}
