package auth

import (
	"fmt"
	"strings"

	"github.com/google/uuid"
)

// Role is the closed set of account roles.
type Role int

const (
	RolePatient Role = iota + 1
	RoleDoctor
	RoleAdmin
)

func (r Role) String() string {
	switch r {
	case RolePatient:
		return "patient"
	case RoleDoctor:
		return "doctor"
	case RoleAdmin:
		return "admin"
	}
	return "unknown"
}

// Valid reports whether r is one of the defined roles.
func (r Role) Valid() bool {
	return r >= RolePatient && r <= RoleAdmin
}

// ParseRole converts a stored or transmitted role name into a Role.
func ParseRole(s string) (Role, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "patient":
		return RolePatient, nil
	case "doctor":
		return RoleDoctor, nil
	case "admin":
		return RoleAdmin, nil
	}
	return 0, fmt.Errorf("unknown role %q", s)
}

func (r Role) MarshalText() ([]byte, error) {
	if !r.Valid() {
		return nil, fmt.Errorf("invalid role %d", int(r))
	}
	return []byte(r.String()), nil
}

func (r *Role) UnmarshalText(b []byte) error {
	parsed, err := ParseRole(string(b))
	if err != nil {
		return err
	}
	*r = parsed
	return nil
}

// Actor is the authenticated caller of a service operation. The core trusts
// it completely; establishing it is the middleware's job.
type Actor struct {
	ID   uuid.UUID
	Role Role
	Name string
}
