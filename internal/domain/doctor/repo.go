package doctor

import (
	"context"

	"github.com/google/uuid"
)

type Repository interface {
	Create(ctx context.Context, d *Doctor) error
	GetByID(ctx context.Context, id uuid.UUID) (*Doctor, error)
	GetByUserID(ctx context.Context, userID uuid.UUID) (*Doctor, error)
	UpdateProfile(ctx context.Context, id uuid.UUID, u ProfileUpdate) (*Doctor, error)
	SetAvailability(ctx context.Context, id uuid.UUID, windows []Window) error
	GetAvailability(ctx context.Context, id uuid.UUID) ([]Window, error)
	// ListDirectory returns unblocked doctors whose specialization contains
	// the filter (case-insensitive), ordered by rating desc then id.
	ListDirectory(ctx context.Context, specialization string) ([]*Doctor, error)
	// LockRating reads the aggregate in tenths and holds a row lock on the
	// doctor until the surrounding transaction ends.
	LockRating(ctx context.Context, id uuid.UUID) (int, error)
	UpdateRating(ctx context.Context, id uuid.UUID, tenths int) error
}
