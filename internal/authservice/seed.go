package authservice

import (
	"fmt"
	"os"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"github.com/spaceflow-dev/spaceflow/internal/session"
)

// SeedUser is an account created at startup when missing
type SeedUser struct {
	Email     string `yaml:"email" validate:"required,email"`
	Password  string `yaml:"password" validate:"required,min=6"`
	Name      string `yaml:"name"`
	Role      string `yaml:"role" validate:"required,oneof=ADMIN FACILITIES_MANAGER VIEWER"`
	Workspace string `yaml:"workspace"`
}

type seedFile struct {
	Users []SeedUser `yaml:"users" validate:"dive"`
}

// DefaultAdmin is the development administrator seeded on an empty database
func DefaultAdmin() SeedUser {
	return SeedUser{
		Email:    "admin@spaceflow.local",
		Password: "admin123",
		Name:     "SpaceFlow Admin",
		Role:     session.RoleAdmin,
	}
}

// LoadSeedFile reads seed users from a YAML file of the form
//
//	users:
//	  - email: fm@spaceflow.local
//	    password: changeme
//	    role: FACILITIES_MANAGER
func LoadSeedFile(path string, v *validator.Validate) ([]SeedUser, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read seed file: %w", err)
	}

	var f seedFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("failed to parse seed file %s: %w", path, err)
	}
	if err := v.Struct(&f); err != nil {
		return nil, fmt.Errorf("invalid seed file %s: %w", path, err)
	}
	return f.Users, nil
}
