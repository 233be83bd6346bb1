package identity

import (
	"context"

	"github.com/google/uuid"
)

type UserRepository interface {
	Create(ctx context.Context, u *User) error
	GetByID(ctx context.Context, id uuid.UUID) (*User, error)
	// GetByEmail matches the normalised (lower-cased) address.
	GetByEmail(ctx context.Context, email string) (*User, error)
	// GetByDoctorID resolves the user behind a doctor profile.
	GetByDoctorID(ctx context.Context, doctorID uuid.UUID) (*User, error)
	UpdateProfile(ctx context.Context, id uuid.UUID, name string, phone *string) (*User, error)
	SetBlocked(ctx context.Context, id uuid.UUID, blocked bool) (*User, error)
	// ListWithDoctorInfo pages all users, newest first.
	ListWithDoctorInfo(ctx context.Context, limit, offset int) ([]*UserSummary, int, error)
}
