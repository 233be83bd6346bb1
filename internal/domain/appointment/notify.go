package appointment

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/medibook/medibook/internal/platform/notification"
)

// NewBookingEvent is raised after a booking commits.
type NewBookingEvent struct {
	AppointmentID uuid.UUID
	DoctorID      uuid.UUID
	PatientID     uuid.UUID
	PatientName   string
	Date          string
	Time          string
	Notes         string
}

// StatusChangedEvent is raised after a transition commits.
type StatusChangedEvent struct {
	AppointmentID uuid.UUID
	PatientID     uuid.UUID
	From          Status
	To            Status
}

// Notifier receives committed lifecycle events. Implementations must not
// block and must swallow their own failures.
type Notifier interface {
	NewBooking(ctx context.Context, ev NewBookingEvent)
	StatusChanged(ctx context.Context, ev StatusChangedEvent)
}

type nopNotifier struct{}

func (nopNotifier) NewBooking(context.Context, NewBookingEvent)       {}
func (nopNotifier) StatusChanged(context.Context, StatusChangedEvent) {}

// ContactDirectory resolves notification addresses.
type ContactDirectory interface {
	ContactByUserID(ctx context.Context, id uuid.UUID) (notification.Recipient, error)
	ContactByDoctorID(ctx context.Context, doctorID uuid.UUID) (notification.Recipient, error)
}

// Enqueuer accepts notification jobs. *notification.Dispatcher satisfies it.
type Enqueuer interface {
	Enqueue(job notification.Job) error
}

// Renderer turns a template into a message. *notification.TemplateEngine
// satisfies it.
type Renderer interface {
	Render(id string, to string, data any) (notification.Message, error)
}

// MailNotifier renders lifecycle events as email and hands them to a
// dispatcher. Address lookups run on the dispatcher's workers.
type MailNotifier struct {
	contacts  ContactDirectory
	queue     Enqueuer
	templates Renderer
	logger    zerolog.Logger
}

func NewMailNotifier(contacts ContactDirectory, queue Enqueuer, templates Renderer, logger zerolog.Logger) *MailNotifier {
	return &MailNotifier{
		contacts:  contacts,
		queue:     queue,
		templates: templates,
		logger:    logger.With().Str("component", "appointment_notifier").Logger(),
	}
}

type newBookingData struct {
	RecipientName string
	PatientName   string
	Date          string
	Time          string
	Notes         string
}

type statusChangedData struct {
	RecipientName string
	Status        Status
}

// NewBooking tells the doctor about a new request.
func (n *MailNotifier) NewBooking(_ context.Context, ev NewBookingEvent) {
	n.enqueue(ev.AppointmentID, func(ctx context.Context) (*notification.Message, error) {
		to, err := n.contacts.ContactByDoctorID(ctx, ev.DoctorID)
		if err != nil {
			return nil, fmt.Errorf("resolve doctor contact: %w", err)
		}
		patientName := ev.PatientName
		if patientName == "" {
			if p, err := n.contacts.ContactByUserID(ctx, ev.PatientID); err == nil {
				patientName = p.Name
			}
		}
		msg, err := n.templates.Render(notification.TemplateNewBooking, to.Email, newBookingData{
			RecipientName: to.Name,
			PatientName:   patientName,
			Date:          ev.Date,
			Time:          ev.Time,
			Notes:         ev.Notes,
		})
		if err != nil {
			return nil, err
		}
		return &msg, nil
	})
}

// StatusChanged tells the patient about the new status.
func (n *MailNotifier) StatusChanged(_ context.Context, ev StatusChangedEvent) {
	n.enqueue(ev.AppointmentID, func(ctx context.Context) (*notification.Message, error) {
		to, err := n.contacts.ContactByUserID(ctx, ev.PatientID)
		if err != nil {
			return nil, fmt.Errorf("resolve patient contact: %w", err)
		}
		msg, err := n.templates.Render(notification.TemplateStatusChanged, to.Email, statusChangedData{
			RecipientName: to.Name,
			Status:        ev.To,
		})
		if err != nil {
			return nil, err
		}
		return &msg, nil
	})
}

func (n *MailNotifier) enqueue(appointmentID uuid.UUID, job notification.Job) {
	if err := n.queue.Enqueue(job); err != nil {
		n.logger.Warn().Err(err).Str("appointment_id", appointmentID.String()).Msg("notification not queued")
	}
}
