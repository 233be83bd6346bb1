package doctor

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/medibook/medibook/internal/platform/apperr"
	"github.com/medibook/medibook/internal/platform/auth"
	"github.com/medibook/medibook/internal/platform/cache"
)

// directoryNamespace is the cache generation bumped whenever a directory
// listing could change.
const directoryNamespace = "directory"

// CacheRecorder receives directory cache outcomes. *metrics.Metrics
// satisfies it.
type CacheRecorder interface {
	CacheLookup(result string)
}

type nopRecorder struct{}

func (nopRecorder) CacheLookup(string) {}

type Service struct {
	repo    Repository
	cache   cache.Cache
	ttl     time.Duration
	logger  zerolog.Logger
	metrics CacheRecorder
}

type Option func(*Service)

// WithCache enables the directory cache.
func WithCache(c cache.Cache, ttl time.Duration) Option {
	return func(s *Service) {
		s.cache = c
		s.ttl = ttl
	}
}

func WithLogger(l zerolog.Logger) Option {
	return func(s *Service) { s.logger = l }
}

func WithMetrics(m CacheRecorder) Option {
	return func(s *Service) { s.metrics = m }
}

func NewService(repo Repository, opts ...Option) *Service {
	s := &Service{
		repo:    repo,
		cache:   cache.Noop{},
		ttl:     time.Minute,
		logger:  zerolog.Nop(),
		metrics: nopRecorder{},
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// ListDoctors returns the public directory, optionally filtered by a
// case-insensitive specialization substring. Cache failures fall back to the
// store.
func (s *Service) ListDoctors(ctx context.Context, specialization string) ([]*Doctor, error) {
	filter := strings.ToLower(strings.TrimSpace(specialization))

	key, cacheable := s.directoryKey(ctx, filter)
	if cacheable {
		var cached []*Doctor
		hit, err := s.cache.Get(ctx, key, &cached)
		switch {
		case err != nil:
			s.metrics.CacheLookup("error")
			s.logger.Warn().Err(err).Msg("directory cache read failed")
		case hit:
			s.metrics.CacheLookup("hit")
			return cached, nil
		default:
			s.metrics.CacheLookup("miss")
		}
	}

	doctors, err := s.repo.ListDirectory(ctx, filter)
	if err != nil {
		return nil, err
	}
	if cacheable {
		if err := s.cache.Set(ctx, key, doctors, s.ttl); err != nil {
			s.logger.Warn().Err(err).Msg("directory cache write failed")
		}
	}
	return doctors, nil
}

func (s *Service) directoryKey(ctx context.Context, filter string) (string, bool) {
	gen, err := s.cache.Generation(ctx, directoryNamespace)
	if err != nil {
		s.metrics.CacheLookup("error")
		s.logger.Warn().Err(err).Msg("directory cache generation unavailable")
		return "", false
	}
	return fmt.Sprintf("%s:%d:%s", directoryNamespace, gen, filter), true
}

// InvalidateDirectory drops every cached directory listing. Failures are
// logged; entries still expire by TTL.
func (s *Service) InvalidateDirectory(ctx context.Context) {
	if err := s.cache.Invalidate(ctx, directoryNamespace); err != nil {
		s.logger.Warn().Err(err).Msg("directory cache invalidation failed")
	}
}

// GetDoctorProfile returns a doctor visible in the directory. Blocked
// doctors are reported as not found.
func (s *Service) GetDoctorProfile(ctx context.Context, id uuid.UUID) (*Doctor, error) {
	d, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if d.Blocked {
		return nil, apperr.NotFound("doctor")
	}
	return d, nil
}

// ListAvailability returns the doctor's windows in stored order.
func (s *Service) ListAvailability(ctx context.Context, doctorID uuid.UUID) ([]Window, error) {
	return s.repo.GetAvailability(ctx, doctorID)
}

// SetAvailability replaces the calling doctor's windows wholesale.
func (s *Service) SetAvailability(ctx context.Context, actor auth.Actor, windows []Window) ([]Window, error) {
	d, err := s.ownProfile(ctx, actor)
	if err != nil {
		return nil, err
	}
	if windows == nil {
		windows = []Window{}
	}
	if err := ValidateWindows(windows); err != nil {
		return nil, err
	}
	if err := s.repo.SetAvailability(ctx, d.ID, windows); err != nil {
		return nil, err
	}
	s.InvalidateDirectory(ctx)
	return windows, nil
}

// UpdateDoctorProfile edits the calling doctor's descriptive fields.
func (s *Service) UpdateDoctorProfile(ctx context.Context, actor auth.Actor, u ProfileUpdate) (*Doctor, error) {
	d, err := s.ownProfile(ctx, actor)
	if err != nil {
		return nil, err
	}
	if u.Specialization != nil {
		spec := strings.TrimSpace(*u.Specialization)
		if spec == "" {
			spec = DefaultSpecialization
		}
		u.Specialization = &spec
	}
	if u.Experience != nil && *u.Experience < 0 {
		return nil, apperr.Validation("experience must not be negative")
	}
	if u.ConsultationFee != nil && *u.ConsultationFee < 0 {
		return nil, apperr.Validation("consultation_fee must not be negative")
	}
	updated, err := s.repo.UpdateProfile(ctx, d.ID, u)
	if err != nil {
		return nil, err
	}
	s.InvalidateDirectory(ctx)
	return updated, nil
}

func (s *Service) ownProfile(ctx context.Context, actor auth.Actor) (*Doctor, error) {
	switch actor.Role {
	case auth.RoleDoctor:
		return s.repo.GetByUserID(ctx, actor.ID)
	default:
		return nil, apperr.Unauthorized("only doctors manage a doctor profile")
	}
}
