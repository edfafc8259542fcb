package auth

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"strings"
)

// Role is a member's role within one organization. Roles are ordered:
// viewer < manager < admin.
type Role int

const (
	RoleViewer Role = iota
	RoleManager
	RoleAdmin
)

// ParseRole maps a role string onto the closed role set. Anything it does not
// recognize becomes RoleViewer.
func ParseRole(s string) Role {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "admin":
		return RoleAdmin
	case "manager":
		return RoleManager
	default:
		return RoleViewer
	}
}

// IsValidRole reports whether s names a role exactly
func IsValidRole(s string) bool {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "admin", "manager", "viewer":
		return true
	}
	return false
}

func (r Role) String() string {
	switch r {
	case RoleAdmin:
		return "admin"
	case RoleManager:
		return "manager"
	default:
		return "viewer"
	}
}

// AtLeast reports whether r grants everything min grants
func (r Role) AtLeast(min Role) bool {
	return r >= min
}

// CanEdit covers risk mitigation, evidence and policy changes
func (r Role) CanEdit() bool {
	return r.AtLeast(RoleManager)
}

// CanAdminister covers org settings, billing, SSO and admin membership
func (r Role) CanAdminister() bool {
	return r.AtLeast(RoleAdmin)
}

// MarshalJSON encodes the role as its name
func (r Role) MarshalJSON() ([]byte, error) {
	return json.Marshal(r.String())
}

// UnmarshalJSON decodes a role name; unknown names become viewer
func (r *Role) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return fmt.Errorf("role must be a string: %w", err)
	}
	*r = ParseRole(s)
	return nil
}

// Value implements driver.Valuer
func (r Role) Value() (driver.Value, error) {
	return r.String(), nil
}

// Scan implements sql.Scanner; NULL and unknown values scan as viewer
func (r *Role) Scan(src any) error {
	switch v := src.(type) {
	case nil:
		*r = RoleViewer
	case string:
		*r = ParseRole(v)
	case []byte:
		*r = ParseRole(string(v))
	default:
		return fmt.Errorf("cannot scan %T into Role", src)
	}
	return nil
}

// AuthContext holds the authenticated caller
type AuthContext struct {
	UserID   string
	Email    string
	FullName string
	// RawToken is the caller's bearer credential
	RawToken string
}

// DisplayName returns the best human-readable name for the caller
func (ac *AuthContext) DisplayName() string {
	if ac.FullName != "" {
		return ac.FullName
	}
	if at := strings.Index(ac.Email, "@"); at > 0 {
		return ac.Email[:at]
	}
	return ac.Email
}
