package doctor

import (
	"time"

	"github.com/google/uuid"
)

// DefaultSpecialization is assigned when a doctor registers without one.
const DefaultSpecialization = "General"

// Doctor is the 1:1 extension of a user with the doctor role. Name, Email
// and Phone are read from the owning user.
type Doctor struct {
	ID              uuid.UUID `json:"id"`
	UserID          uuid.UUID `json:"user_id"`
	Name            string    `json:"name"`
	Email           string    `json:"email,omitempty"`
	Phone           *string   `json:"phone,omitempty"`
	Specialization  string    `json:"specialization"`
	Bio             string    `json:"bio"`
	Experience      int       `json:"experience"`
	Rating          float64   `json:"rating"`
	ConsultationFee float64   `json:"consultation_fee"`
	Availability    []Window  `json:"available_slots"`
	Blocked         bool      `json:"-"`
	CreatedAt       time.Time `json:"created_at"`
}

// ProfileUpdate carries the doctor-editable fields. Nil fields are left
// unchanged. Rating is deliberately absent.
type ProfileUpdate struct {
	Specialization  *string  `json:"specialization"`
	Bio             *string  `json:"bio"`
	Experience      *int     `json:"experience"`
	ConsultationFee *float64 `json:"consultation_fee"`
}

// RatingFromTenths converts a stored aggregate in tenths to its decimal form.
func RatingFromTenths(tenths int) float64 {
	return float64(tenths) / 10
}
