package appointment

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/medibook/medibook/internal/domain/doctor"
	"github.com/medibook/medibook/internal/platform/apperr"
	"github.com/medibook/medibook/internal/platform/auth"
	"github.com/medibook/medibook/internal/platform/db"
)

// DoctorStore is the slice of the doctor store the lifecycle needs.
type DoctorStore interface {
	GetByID(ctx context.Context, id uuid.UUID) (*doctor.Doctor, error)
	GetByUserID(ctx context.Context, userID uuid.UUID) (*doctor.Doctor, error)
	LockRating(ctx context.Context, id uuid.UUID) (int, error)
	UpdateRating(ctx context.Context, id uuid.UUID, tenths int) error
}

// DirectoryInvalidator is told when a doctor's aggregate rating changes.
type DirectoryInvalidator interface {
	InvalidateDirectory(ctx context.Context)
}

// Recorder receives lifecycle counters. *metrics.Metrics satisfies it.
type Recorder interface {
	Booked()
	Transitioned(from, to string)
	Rated()
}

type nopRecorder struct{}

func (nopRecorder) Booked()                     {}
func (nopRecorder) Transitioned(string, string) {}
func (nopRecorder) Rated()                      {}

type nopInvalidator struct{}

func (nopInvalidator) InvalidateDirectory(context.Context) {}

type Service struct {
	appts     Repository
	doctors   DoctorStore
	tx        db.TxRunner
	notifier  Notifier
	directory DirectoryInvalidator
	metrics   Recorder
	logger    zerolog.Logger
	now       func() time.Time
	loc       *time.Location
}

type Option func(*Service)

// WithClock replaces the wall clock used for booking dates and completion.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// WithLocation sets the zone appointment dates and times are interpreted in.
func WithLocation(loc *time.Location) Option {
	return func(s *Service) { s.loc = loc }
}

func WithMetrics(r Recorder) Option {
	return func(s *Service) { s.metrics = r }
}

func WithLogger(l zerolog.Logger) Option {
	return func(s *Service) { s.logger = l }
}

func WithDirectoryInvalidator(d DirectoryInvalidator) Option {
	return func(s *Service) { s.directory = d }
}

func NewService(appts Repository, doctors DoctorStore, tx db.TxRunner, notifier Notifier, opts ...Option) *Service {
	if notifier == nil {
		notifier = nopNotifier{}
	}
	s := &Service{
		appts:     appts,
		doctors:   doctors,
		tx:        tx,
		notifier:  notifier,
		directory: nopInvalidator{},
		metrics:   nopRecorder{},
		logger:    zerolog.Nop(),
		now:       time.Now,
		loc:       time.Local,
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Book creates a pending appointment for the calling patient. Doctor
// availability is not consulted.
func (s *Service) Book(ctx context.Context, actor auth.Actor, req BookRequest) (*Appointment, error) {
	switch actor.Role {
	case auth.RolePatient:
	default:
		return nil, apperr.Unauthorized("only patients can book appointments")
	}

	a := &Appointment{
		PatientID: actor.ID,
		DoctorID:  req.DoctorID,
		Date:      strings.TrimSpace(req.Date),
		Time:      strings.TrimSpace(req.Time),
		Notes:     strings.TrimSpace(req.Notes),
		Status:    StatusPending,
	}
	if err := s.validateBooking(a); err != nil {
		return nil, err
	}

	d, err := s.doctors.GetByID(ctx, a.DoctorID)
	if err != nil {
		return nil, err
	}
	if d.Blocked {
		return nil, apperr.NotFound("doctor")
	}

	err = s.tx.WithinTx(ctx, func(ctx context.Context) error {
		return s.appts.Create(ctx, a)
	})
	if err != nil {
		return nil, err
	}

	s.metrics.Booked()
	s.logger.Info().
		Str("appointment_id", a.ID.String()).
		Str("doctor_id", a.DoctorID.String()).
		Str("date", a.Date).Str("time", a.Time).
		Msg("appointment booked")
	s.notifier.NewBooking(ctx, NewBookingEvent{
		AppointmentID: a.ID,
		DoctorID:      a.DoctorID,
		PatientID:     a.PatientID,
		PatientName:   actor.Name,
		Date:          a.Date,
		Time:          a.Time,
		Notes:         a.Notes,
	})
	return a, nil
}

func (s *Service) validateBooking(a *Appointment) error {
	if a.DoctorID == uuid.Nil {
		return apperr.Validation("doctor_id is required")
	}
	day, err := time.ParseInLocation(DateLayout, a.Date, s.loc)
	if err != nil {
		return apperr.Validation("appointment_date must be YYYY-MM-DD")
	}
	if !doctor.IsClock(a.Time) {
		return apperr.Validation("appointment_time must be HH:MM")
	}
	if a.Notes == "" {
		return apperr.Validation("notes are required")
	}
	now := s.now().In(s.loc)
	today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, s.loc)
	if day.Before(today) {
		return apperr.Validation("appointment_date must not be in the past")
	}
	return nil
}

// scopeFor limits lookups to what the actor owns. Admins are unscoped.
func (s *Service) scopeFor(ctx context.Context, actor auth.Actor) (Scope, error) {
	switch actor.Role {
	case auth.RolePatient:
		id := actor.ID
		return Scope{PatientID: &id}, nil
	case auth.RoleDoctor:
		d, err := s.doctors.GetByUserID(ctx, actor.ID)
		if err != nil {
			return Scope{}, err
		}
		return Scope{DoctorID: &d.ID}, nil
	case auth.RoleAdmin:
		return Scope{}, nil
	default:
		return Scope{}, apperr.Unauthorized("unknown role")
	}
}

// ListForActor pages the appointments visible to the actor with the
// counterpart's display fields.
func (s *Service) ListForActor(ctx context.Context, actor auth.Actor, limit, offset int) ([]*View, int, error) {
	scope, err := s.scopeFor(ctx, actor)
	if errors.Is(err, apperr.ErrNotFound) {
		return []*View{}, 0, nil
	}
	if err != nil {
		return nil, 0, err
	}
	views, total, err := s.appts.List(ctx, scope, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	for _, v := range views {
		v.redact(actor.Role)
	}
	return views, total, nil
}

// Transition moves an appointment to a new status. The read, the rule check
// and the write happen under the appointment's row lock, so of two racing
// transitions from the same state exactly one wins.
func (s *Service) Transition(ctx context.Context, actor auth.Actor, id uuid.UUID, to Status) (*Appointment, error) {
	if !validStatuses[to] {
		return nil, apperr.Validation("invalid appointment status: %q", to)
	}
	scope, err := s.scopeFor(ctx, actor)
	if err != nil {
		if errors.Is(err, apperr.ErrNotFound) {
			return nil, apperr.NotFound("appointment")
		}
		return nil, err
	}

	var updated *Appointment
	var from Status
	err = s.tx.WithinTx(ctx, func(ctx context.Context) error {
		a, err := s.appts.GetForUpdate(ctx, id, scope)
		if err != nil {
			return err
		}
		from = a.Status
		if !CanTransition(from, to, actor.Role) {
			return fmt.Errorf("%w: %s cannot move appointment from %s to %s", apperr.ErrInvalidTransition, actor.Role, from, to)
		}
		if to == StatusCompleted {
			if err := s.checkStarted(a); err != nil {
				return err
			}
		}
		if err := s.appts.UpdateStatus(ctx, id, from, to); err != nil {
			return err
		}
		a.Status = to
		updated = a
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.metrics.Transitioned(string(from), string(to))
	s.logger.Info().
		Str("appointment_id", id.String()).
		Str("from", string(from)).Str("to", string(to)).
		Str("actor_role", actor.Role.String()).
		Msg("appointment transitioned")
	s.notifier.StatusChanged(ctx, StatusChangedEvent{
		AppointmentID: id,
		PatientID:     updated.PatientID,
		From:          from,
		To:            to,
	})
	return updated, nil
}

// checkStarted rejects completing an appointment before its scheduled time.
func (s *Service) checkStarted(a *Appointment) error {
	at, err := a.ScheduledAt(s.loc)
	if err != nil {
		return fmt.Errorf("appointment %s has unreadable schedule: %w", a.ID, err)
	}
	if s.now().Before(at) {
		return fmt.Errorf("%w: appointment on %s at %s has not taken place yet", apperr.ErrInvalidTransition, a.Date, a.Time)
	}
	return nil
}

// SubmitRating records the patient's rating of a completed appointment and
// folds it into the doctor's aggregate in the same transaction. The doctor
// row stays locked from read to write, so concurrent ratings of one doctor
// serialise and none is lost.
func (s *Service) SubmitRating(ctx context.Context, actor auth.Actor, id uuid.UUID, rating int) (*RatingResult, error) {
	switch actor.Role {
	case auth.RolePatient:
	default:
		return nil, apperr.Unauthorized("only patients can rate appointments")
	}
	if !validRating(rating) {
		return nil, apperr.Validation("rating must be between %d and %d", MinRating, MaxRating)
	}
	patientID := actor.ID
	scope := Scope{PatientID: &patientID}

	var result RatingResult
	var tenths int
	err := s.tx.WithinTx(ctx, func(ctx context.Context) error {
		a, err := s.appts.GetForUpdate(ctx, id, scope)
		if err != nil {
			return err
		}
		if a.Status != StatusCompleted {
			return fmt.Errorf("%w: only completed appointments can be rated, this one is %s", apperr.ErrInvalidTransition, a.Status)
		}
		if a.Rating != nil {
			return apperr.Conflict("appointment already rated")
		}
		if err := s.appts.SetRating(ctx, id, rating); err != nil {
			return err
		}

		prev, err := s.doctors.LockRating(ctx, a.DoctorID)
		if err != nil {
			return err
		}
		tenths = NextAggregate(prev, rating)
		if err := s.doctors.UpdateRating(ctx, a.DoctorID, tenths); err != nil {
			return err
		}

		r := rating
		a.Rating = &r
		result.Appointment = a
		result.DoctorRating = doctor.RatingFromTenths(tenths)
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.metrics.Rated()
	s.logger.Info().
		Str("appointment_id", id.String()).
		Str("doctor_id", result.Appointment.DoctorID.String()).
		Int("rating", rating).
		Float64("doctor_rating", result.DoctorRating).
		Msg("appointment rated")
	s.directory.InvalidateDirectory(ctx)
	return &result, nil
}

// DeleteAppointment removes an appointment outright. Patients may delete
// their own in any status; admins any appointment.
func (s *Service) DeleteAppointment(ctx context.Context, actor auth.Actor, id uuid.UUID) error {
	var scope Scope
	switch actor.Role {
	case auth.RolePatient:
		patientID := actor.ID
		scope = Scope{PatientID: &patientID}
	case auth.RoleAdmin:
	default:
		return apperr.Unauthorized("only patients and admins can delete appointments")
	}
	if err := s.appts.Delete(ctx, id, scope); err != nil {
		return err
	}
	s.logger.Info().Str("appointment_id", id.String()).Str("actor_role", actor.Role.String()).Msg("appointment deleted")
	return nil
}
