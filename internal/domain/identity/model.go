package identity

import (
	"time"

	"github.com/google/uuid"

	"github.com/medibook/medibook/internal/domain/doctor"
	"github.com/medibook/medibook/internal/platform/auth"
)

type User struct {
	ID           uuid.UUID `json:"id"`
	Name         string    `json:"name"`
	Email        string    `json:"email"`
	PasswordHash string    `json:"-"`
	Role         auth.Role `json:"role"`
	Phone        *string   `json:"phone,omitempty"`
	Blocked      bool      `json:"is_blocked"`
	CreatedAt    time.Time `json:"created_at"`
}

// Actor returns the authenticated identity for this user.
func (u *User) Actor() auth.Actor {
	return auth.Actor{ID: u.ID, Role: u.Role, Name: u.Name}
}

// UserSummary is a row of the admin user listing. Doctor fields are set only
// for users with a doctor profile.
type UserSummary struct {
	User
	DoctorID        *uuid.UUID `json:"doctor_id,omitempty"`
	Specialization  *string    `json:"specialization,omitempty"`
	Experience      *int       `json:"experience,omitempty"`
	Rating          *float64   `json:"rating,omitempty"`
	ConsultationFee *float64   `json:"consultation_fee,omitempty"`
}

// Profile is the caller's own account, with the doctor profile attached for
// doctors.
type Profile struct {
	User
	Doctor *doctor.Doctor `json:"doctor,omitempty"`
}

// Registration is the input to RegisterUser. Role is the raw requested role;
// an empty role registers a patient. Doctor fields are ignored for patients.
type Registration struct {
	Name            string
	Email           string
	PasswordHash    string
	Role            string
	Phone           *string
	Specialization  string
	Bio             string
	Experience      *int
	ConsultationFee *float64
}
