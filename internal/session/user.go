package session

import (
	"encoding/json"
	"errors"
	"fmt"
)

// Roles issued by the auth service
const (
	RoleAdmin             = "ADMIN"
	RoleFacilitiesManager = "FACILITIES_MANAGER"
	RoleViewer            = "VIEWER"

	// RoleWorkspaceAdmin is assigned to local-storage sessions
	RoleWorkspaceAdmin = "Workspace Admin"
)

const (
	demoUserID    = "demo-admin"
	demoUserEmail = "demo@spaceflow.local"
)

// ErrCorruptUser is returned when a stored user cannot be decoded
var ErrCorruptUser = errors.New("corrupt stored user")

// User is the authenticated identity. Email, Name and Workspace are optional.
type User struct {
	ID        string `json:"id,omitempty"`
	Role      string `json:"role"`
	Email     string `json:"email,omitempty"`
	Name      string `json:"name,omitempty"`
	Workspace string `json:"workspace,omitempty"`
}

// DemoUser returns the fixed identity injected in demo mode
func DemoUser() *User {
	return &User{
		ID:    demoUserID,
		Role:  RoleAdmin,
		Email: demoUserEmail,
	}
}

func (u *User) IsAdmin() bool {
	return u != nil && (u.Role == RoleAdmin || u.Role == RoleWorkspaceAdmin)
}

func (u *User) IsFacilitiesManager() bool {
	return u != nil && u.Role == RoleFacilitiesManager
}

func (u *User) IsViewer() bool {
	return u != nil && u.Role == RoleViewer
}

// DisplayName picks the friendliest non-empty identifier
func (u *User) DisplayName() string {
	switch {
	case u == nil:
		return ""
	case u.Name != "":
		return u.Name
	case u.Email != "":
		return u.Email
	default:
		return u.ID
	}
}

// Clone returns a copy that callers may mutate freely
func (u *User) Clone() *User {
	if u == nil {
		return nil
	}
	c := *u
	return &c
}

// Equal reports whether two users carry the same identity fields
func (u *User) Equal(o *User) bool {
	if u == nil || o == nil {
		return u == o
	}
	return *u == *o
}

// EncodeUser serializes a user for local storage
func EncodeUser(u *User) (string, error) {
	b, err := json.Marshal(u)
	if err != nil {
		return "", fmt.Errorf("failed to encode user: %w", err)
	}
	return string(b), nil
}

// DecodeUser parses a stored user. JSON null decodes to a nil user; anything
// that is not a user object yields ErrCorruptUser.
func DecodeUser(raw string) (*User, error) {
	var u *User
	if err := json.Unmarshal([]byte(raw), &u); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorruptUser, err)
	}
	if u == nil {
		return nil, nil
	}
	if u.ID == "" && u.Email == "" {
		return nil, fmt.Errorf("%w: missing id and email", ErrCorruptUser)
	}
	return u, nil
}
