package appointment

import (
	"context"

	"github.com/google/uuid"
)

type Repository interface {
	Create(ctx context.Context, a *Appointment) error
	// GetForUpdate loads an appointment within scope and locks its row until
	// the surrounding transaction ends. Out-of-scope ids are NotFound.
	GetForUpdate(ctx context.Context, id uuid.UUID, scope Scope) (*Appointment, error)
	// UpdateStatus moves the appointment only if it is still in from; a
	// concurrent change yields ErrInvalidTransition.
	UpdateStatus(ctx context.Context, id uuid.UUID, from, to Status) error
	// SetRating stores a rating once; a second write yields ErrConflict.
	SetRating(ctx context.Context, id uuid.UUID, rating int) error
	Delete(ctx context.Context, id uuid.UUID, scope Scope) error
	// List pages appointments within scope, most recent date and time first.
	List(ctx context.Context, scope Scope, limit, offset int) ([]*View, int, error)
}
