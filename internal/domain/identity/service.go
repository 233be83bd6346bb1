package identity

import (
	"context"
	"errors"
	"net/mail"
	"strings"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/medibook/medibook/internal/domain/doctor"
	"github.com/medibook/medibook/internal/platform/apperr"
	"github.com/medibook/medibook/internal/platform/auth"
	"github.com/medibook/medibook/internal/platform/db"
	"github.com/medibook/medibook/internal/platform/notification"
)

// DoctorProfiles is the slice of the doctor store identity needs.
type DoctorProfiles interface {
	Create(ctx context.Context, d *doctor.Doctor) error
	GetByUserID(ctx context.Context, userID uuid.UUID) (*doctor.Doctor, error)
}

// DirectoryInvalidator is notified when a change may alter the public
// doctor directory.
type DirectoryInvalidator interface {
	InvalidateDirectory(ctx context.Context)
}

type nopInvalidator struct{}

func (nopInvalidator) InvalidateDirectory(context.Context) {}

type Service struct {
	users     UserRepository
	doctors   DoctorProfiles
	tx        db.TxRunner
	directory DirectoryInvalidator
	logger    zerolog.Logger
}

type Option func(*Service)

func WithDirectoryInvalidator(d DirectoryInvalidator) Option {
	return func(s *Service) { s.directory = d }
}

func WithLogger(l zerolog.Logger) Option {
	return func(s *Service) { s.logger = l }
}

func NewService(users UserRepository, doctors DoctorProfiles, tx db.TxRunner, opts ...Option) *Service {
	s := &Service{
		users:     users,
		doctors:   doctors,
		tx:        tx,
		directory: nopInvalidator{},
		logger:    zerolog.Nop(),
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// NormalizeEmail lower-cases and trims an address for storage and lookup.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// RegisterUser creates an account. Doctors get their doctor profile in the
// same transaction. Admin accounts cannot be self-registered.
func (s *Service) RegisterUser(ctx context.Context, r Registration) (*User, error) {
	u := &User{
		Name:         strings.TrimSpace(r.Name),
		Email:        NormalizeEmail(r.Email),
		PasswordHash: r.PasswordHash,
		Phone:        trimmedOrNil(r.Phone),
	}
	if u.Name == "" {
		return nil, apperr.Validation("name is required")
	}
	if _, err := mail.ParseAddress(u.Email); err != nil || u.Email == "" {
		return nil, apperr.Validation("a valid email is required")
	}
	if u.PasswordHash == "" {
		return nil, apperr.Validation("password is required")
	}

	role := auth.RolePatient
	if strings.TrimSpace(r.Role) != "" {
		parsed, err := auth.ParseRole(r.Role)
		if err != nil {
			return nil, apperr.Validation("role must be patient or doctor")
		}
		role = parsed
	}

	var profile *doctor.Doctor
	switch role {
	case auth.RolePatient:
	case auth.RoleDoctor:
		p, err := doctorProfile(r)
		if err != nil {
			return nil, err
		}
		profile = p
	case auth.RoleAdmin:
		return nil, apperr.Validation("admin accounts cannot be self-registered")
	}
	u.Role = role

	err := s.tx.WithinTx(ctx, func(ctx context.Context) error {
		if err := s.users.Create(ctx, u); err != nil {
			return err
		}
		if profile == nil {
			return nil
		}
		profile.UserID = u.ID
		return s.doctors.Create(ctx, profile)
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info().Str("user_id", u.ID.String()).Str("role", role.String()).Msg("user registered")
	if profile != nil {
		s.directory.InvalidateDirectory(ctx)
	}
	return u, nil
}

func doctorProfile(r Registration) (*doctor.Doctor, error) {
	bio := strings.TrimSpace(r.Bio)
	if bio == "" || r.Experience == nil {
		return nil, apperr.Validation("doctors must provide bio and experience")
	}
	if *r.Experience < 0 {
		return nil, apperr.Validation("experience must not be negative")
	}
	spec := strings.TrimSpace(r.Specialization)
	if spec == "" {
		spec = doctor.DefaultSpecialization
	}
	var fee float64
	if r.ConsultationFee != nil {
		fee = *r.ConsultationFee
	}
	if fee < 0 {
		return nil, apperr.Validation("consultation_fee must not be negative")
	}
	return &doctor.Doctor{
		Specialization:  spec,
		Bio:             bio,
		Experience:      *r.Experience,
		ConsultationFee: fee,
		Availability:    []doctor.Window{},
	}, nil
}

func trimmedOrNil(s *string) *string {
	if s == nil {
		return nil
	}
	v := strings.TrimSpace(*s)
	if v == "" {
		return nil
	}
	return &v
}

// AuthenticateCheck resolves the account for a login attempt. Unknown
// addresses are NotFound and blocked accounts Unauthorized; the caller
// compares credentials only after this succeeds.
func (s *Service) AuthenticateCheck(ctx context.Context, email string) (*User, error) {
	u, err := s.users.GetByEmail(ctx, NormalizeEmail(email))
	if err != nil {
		return nil, err
	}
	if u.Blocked {
		return nil, apperr.Unauthorized("account is blocked")
	}
	return u, nil
}

func (s *Service) GetProfile(ctx context.Context, actor auth.Actor) (*Profile, error) {
	u, err := s.users.GetByID(ctx, actor.ID)
	if err != nil {
		return nil, err
	}
	p := &Profile{User: *u}
	switch u.Role {
	case auth.RoleDoctor:
		d, err := s.doctors.GetByUserID(ctx, u.ID)
		if err != nil && !errors.Is(err, apperr.ErrNotFound) {
			return nil, err
		}
		p.Doctor = d
	case auth.RolePatient, auth.RoleAdmin:
	}
	return p, nil
}

func (s *Service) UpdateProfile(ctx context.Context, actor auth.Actor, name string, phone *string) (*User, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, apperr.Validation("name is required")
	}
	u, err := s.users.UpdateProfile(ctx, actor.ID, name, trimmedOrNil(phone))
	if err != nil {
		return nil, err
	}
	if u.Role == auth.RoleDoctor {
		s.directory.InvalidateDirectory(ctx)
	}
	return u, nil
}

func (s *Service) ListAllUsersWithDoctorInfo(ctx context.Context, actor auth.Actor, limit, offset int) ([]*UserSummary, int, error) {
	if err := requireAdmin(actor); err != nil {
		return nil, 0, err
	}
	return s.users.ListWithDoctorInfo(ctx, limit, offset)
}

// SetUserBlocked toggles an account's blocked flag. Admins cannot block
// themselves.
func (s *Service) SetUserBlocked(ctx context.Context, actor auth.Actor, userID uuid.UUID, blocked bool) (*User, error) {
	if err := requireAdmin(actor); err != nil {
		return nil, err
	}
	if userID == actor.ID {
		return nil, apperr.Validation("admins cannot change their own blocked status")
	}
	u, err := s.users.SetBlocked(ctx, userID, blocked)
	if err != nil {
		return nil, err
	}
	s.logger.Info().Str("user_id", userID.String()).Bool("blocked", blocked).Msg("user blocked status changed")
	if u.Role == auth.RoleDoctor {
		s.directory.InvalidateDirectory(ctx)
	}
	return u, nil
}

func requireAdmin(actor auth.Actor) error {
	switch actor.Role {
	case auth.RoleAdmin:
		return nil
	default:
		return apperr.Unauthorized("admin role required")
	}
}

// SeedAdmin creates the admin account if no user holds the email. It
// reports whether an account was created.
func (s *Service) SeedAdmin(ctx context.Context, name, email, passwordHash string) (bool, error) {
	email = NormalizeEmail(email)
	if strings.TrimSpace(name) == "" || email == "" || passwordHash == "" {
		return false, apperr.Validation("admin name, email and password are required")
	}
	existing, err := s.users.GetByEmail(ctx, email)
	switch {
	case err == nil:
		if existing.Role != auth.RoleAdmin {
			return false, apperr.Conflict("%s is registered with role %s", email, existing.Role)
		}
		return false, nil
	case !errors.Is(err, apperr.ErrNotFound):
		return false, err
	}

	u := &User{Name: strings.TrimSpace(name), Email: email, PasswordHash: passwordHash, Role: auth.RoleAdmin}
	if err := s.users.Create(ctx, u); err != nil {
		return false, err
	}
	s.logger.Info().Str("user_id", u.ID.String()).Msg("admin account seeded")
	return true, nil
}

// ContactByUserID returns the notification address of a user.
func (s *Service) ContactByUserID(ctx context.Context, id uuid.UUID) (notification.Recipient, error) {
	u, err := s.users.GetByID(ctx, id)
	if err != nil {
		return notification.Recipient{}, err
	}
	return notification.Recipient{Name: u.Name, Email: u.Email}, nil
}

// ContactByDoctorID returns the notification address of the user behind a
// doctor profile.
func (s *Service) ContactByDoctorID(ctx context.Context, doctorID uuid.UUID) (notification.Recipient, error) {
	u, err := s.users.GetByDoctorID(ctx, doctorID)
	if err != nil {
		return notification.Recipient{}, err
	}
	return notification.Recipient{Name: u.Name, Email: u.Email}, nil
}
