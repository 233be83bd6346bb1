package appointment

import (
	"time"

	"github.com/google/uuid"

	"github.com/medibook/medibook/internal/platform/auth"
)

// Date and clock layouts used on the wire and in the store.
const (
	DateLayout  = "2006-01-02"
	ClockLayout = "15:04"
)

type Appointment struct {
	ID        uuid.UUID `json:"id"`
	PatientID uuid.UUID `json:"patient_id"`
	DoctorID  uuid.UUID `json:"doctor_id"`
	Date      string    `json:"appointment_date"`
	Time      string    `json:"appointment_time"`
	Status    Status    `json:"status"`
	Notes     string    `json:"notes"`
	Rating    *int      `json:"rating,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// ScheduledAt returns the appointment's start in loc.
func (a *Appointment) ScheduledAt(loc *time.Location) (time.Time, error) {
	return time.ParseInLocation(DateLayout+" "+ClockLayout, a.Date+" "+a.Time, loc)
}

// View is an appointment joined with the display fields of the other party.
type View struct {
	Appointment
	DoctorName     *string `json:"doctor_name,omitempty"`
	DoctorPhone    *string `json:"doctor_phone,omitempty"`
	Specialization *string `json:"specialization,omitempty"`
	PatientName    *string `json:"patient_name,omitempty"`
	PatientEmail   *string `json:"patient_email,omitempty"`
	PatientPhone   *string `json:"patient_phone,omitempty"`
}

// redact keeps only the counterpart fields the viewer's role may see.
// Patients see the doctor, doctors see the patient, admins see both.
func (v *View) redact(role auth.Role) {
	switch role {
	case auth.RolePatient:
		v.PatientName, v.PatientEmail, v.PatientPhone = nil, nil, nil
	case auth.RoleDoctor:
		v.DoctorName, v.DoctorPhone, v.Specialization = nil, nil, nil
	case auth.RoleAdmin:
	}
}

// Scope restricts a lookup to appointments the caller owns. A zero Scope
// matches every appointment.
type Scope struct {
	PatientID *uuid.UUID
	DoctorID  *uuid.UUID
}

func (s Scope) Matches(a *Appointment) bool {
	if s.PatientID != nil && a.PatientID != *s.PatientID {
		return false
	}
	if s.DoctorID != nil && a.DoctorID != *s.DoctorID {
		return false
	}
	return true
}

// BookRequest is a patient's request for a new appointment.
type BookRequest struct {
	DoctorID uuid.UUID `json:"doctor_id"`
	Date     string    `json:"appointment_date"`
	Time     string    `json:"appointment_time"`
	Notes    string    `json:"notes"`
}

// RatingResult reports a stored rating and the doctor's new aggregate.
type RatingResult struct {
	Appointment  *Appointment `json:"appointment"`
	DoctorRating float64      `json:"doctor_rating"`
}
