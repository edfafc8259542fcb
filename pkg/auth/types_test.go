package auth

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseRole(t *testing.T) {
	tests := []struct {
		input string
		want  Role
	}{
		{"admin", RoleAdmin},
		{"ADMIN", RoleAdmin},
		{" manager ", RoleManager},
		{"viewer", RoleViewer},
		{"owner", RoleViewer},
		{"superuser", RoleViewer},
		{"", RoleViewer},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			assert.Equal(t, tt.want, ParseRole(tt.input))
		})
	}
}

func TestRoleOrdering(t *testing.T) {
	assert.True(t, RoleAdmin.AtLeast(RoleManager))
	assert.True(t, RoleManager.AtLeast(RoleManager))
	assert.False(t, RoleViewer.AtLeast(RoleManager))
	assert.False(t, RoleManager.AtLeast(RoleAdmin))

	assert.True(t, RoleManager.CanEdit())
	assert.False(t, RoleViewer.CanEdit())
	assert.True(t, RoleAdmin.CanAdminister())
	assert.False(t, RoleManager.CanAdminister())
}

func TestRoleZeroValueIsViewer(t *testing.T) {
	var r Role
	assert.Equal(t, RoleViewer, r)
}

func TestRoleJSON(t *testing.T) {
	data, err := json.Marshal(struct {
		Role Role `json:"role"`
	}{RoleManager})
	require.NoError(t, err)
	assert.JSONEq(t, `{"role":"manager"}`, string(data))

	var decoded struct {
		Role Role `json:"role"`
	}
	require.NoError(t, json.Unmarshal([]byte(`{"role":"root"}`), &decoded))
	assert.Equal(t, RoleViewer, decoded.Role)

	assert.Error(t, json.Unmarshal([]byte(`{"role":3}`), &decoded))
}

func TestRoleScan(t *testing.T) {
	var r Role
	require.NoError(t, r.Scan("admin"))
	assert.Equal(t, RoleAdmin, r)

	require.NoError(t, r.Scan([]byte("manager")))
	assert.Equal(t, RoleManager, r)

	require.NoError(t, r.Scan(nil))
	assert.Equal(t, RoleViewer, r)

	assert.Error(t, r.Scan(42))

	v, err := RoleAdmin.Value()
	require.NoError(t, err)
	assert.Equal(t, "admin", v)
}

func TestDisplayName(t *testing.T) {
	assert.Equal(t, "Jane Doe", (&AuthContext{FullName: "Jane Doe", Email: "jane@example.com"}).DisplayName())
	assert.Equal(t, "jane", (&AuthContext{Email: "jane@example.com"}).DisplayName())
	assert.Equal(t, "", (&AuthContext{}).DisplayName())
}
