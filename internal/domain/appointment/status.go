package appointment

import (
	"strings"

	"github.com/medibook/medibook/internal/platform/apperr"
	"github.com/medibook/medibook/internal/platform/auth"
)

// Status is an appointment's lifecycle state.
type Status string

const (
	StatusPending   Status = "pending"
	StatusApproved  Status = "approved"
	StatusDeclined  Status = "declined"
	StatusCancelled Status = "cancelled"
	StatusCompleted Status = "completed"
)

var validStatuses = map[Status]bool{
	StatusPending:   true,
	StatusApproved:  true,
	StatusDeclined:  true,
	StatusCancelled: true,
	StatusCompleted: true,
}

func ParseStatus(s string) (Status, error) {
	st := Status(strings.ToLower(strings.TrimSpace(s)))
	if !validStatuses[st] {
		return "", apperr.Validation("invalid appointment status: %q", s)
	}
	return st, nil
}

// Terminal reports whether no further transition can leave s.
func (s Status) Terminal() bool {
	_, ok := transitions[s]
	return !ok
}

// transitions lists, per source status, the targets and the roles allowed to
// move there. Admins only ever cancel.
var transitions = map[Status]map[Status][]auth.Role{
	StatusPending: {
		StatusApproved:  {auth.RoleDoctor},
		StatusDeclined:  {auth.RoleDoctor},
		StatusCancelled: {auth.RolePatient, auth.RoleAdmin},
	},
	StatusApproved: {
		StatusCompleted: {auth.RoleDoctor},
		StatusCancelled: {auth.RolePatient, auth.RoleAdmin},
	},
}

// CanTransition reports whether role may move an appointment from one status
// to another. Ownership and timing are checked by the caller.
func CanTransition(from, to Status, role auth.Role) bool {
	for _, r := range transitions[from][to] {
		if r == role {
			return true
		}
	}
	return false
}
