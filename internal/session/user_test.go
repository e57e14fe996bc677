package session

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestDecodeUser(t *testing.T) {
	tests := []struct {
		name    string
		raw     string
		want    *User
		wantErr bool
	}{
		{name: "full user", raw: `{"id":"u1","role":"ADMIN","email":"a@b.co"}`, want: &User{ID: "u1", Role: RoleAdmin, Email: "a@b.co"}},
		{name: "local user without id", raw: `{"email":"a@b.co","role":"Workspace Admin"}`, want: &User{Role: RoleWorkspaceAdmin, Email: "a@b.co"}},
		{name: "json null", raw: `null`, want: nil},
		{name: "truncated", raw: `{"id":`, wantErr: true},
		{name: "array", raw: `[1,2]`, wantErr: true},
		{name: "empty object", raw: `{}`, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := DecodeUser(tt.raw)
			if tt.wantErr {
				require.ErrorIs(t, err, ErrCorruptUser)
				return
			}
			require.NoError(t, err)
			require.Equal(t, tt.want, got)
		})
	}
}

func TestRoleHelpers(t *testing.T) {
	var nobody *User
	require.False(t, nobody.IsAdmin())
	require.Equal(t, "", nobody.DisplayName())

	require.True(t, (&User{Role: RoleAdmin}).IsAdmin())
	require.True(t, (&User{Role: RoleWorkspaceAdmin}).IsAdmin())
	require.True(t, (&User{Role: RoleFacilitiesManager}).IsFacilitiesManager())
	require.True(t, (&User{Role: RoleViewer}).IsViewer())
	require.False(t, (&User{Role: RoleViewer}).IsAdmin())

	require.Equal(t, "Ops", (&User{ID: "1", Email: "ops@x.io", Name: "Ops"}).DisplayName())
	require.Equal(t, "ops@x.io", (&User{ID: "1", Email: "ops@x.io"}).DisplayName())
	require.Equal(t, "1", (&User{ID: "1"}).DisplayName())
}

func TestStateStatus(t *testing.T) {
	u := &User{ID: "1"}
	require.Equal(t, StatusLoading, State{Loading: true, User: u}.Status())
	require.Equal(t, StatusAuthenticated, State{User: u}.Status())
	require.Equal(t, StatusUnauthenticated, State{}.Status())
	require.Equal(t, "authenticated", StatusAuthenticated.String())
}
