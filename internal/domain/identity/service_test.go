package identity

import (
	"context"
	"errors"
	"sort"
	"sync"
	"testing"

	"github.com/google/uuid"

	"github.com/medibook/medibook/internal/domain/doctor"
	"github.com/medibook/medibook/internal/platform/apperr"
	"github.com/medibook/medibook/internal/platform/auth"
)

// -- Mock User Repository --

type mockUserRepo struct {
	mu    sync.Mutex
	users map[uuid.UUID]*User
	seq   int
	order map[uuid.UUID]int
}

func newMockUserRepo() *mockUserRepo {
	return &mockUserRepo{users: make(map[uuid.UUID]*User), order: make(map[uuid.UUID]int)}
}

func (m *mockUserRepo) Create(_ context.Context, u *User) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, existing := range m.users {
		if existing.Email == u.Email {
			return apperr.Conflict("user with this email already exists")
		}
	}
	if u.ID == uuid.Nil {
		u.ID = uuid.New()
	}
	cp := *u
	m.users[u.ID] = &cp
	m.seq++
	m.order[u.ID] = m.seq
	return nil
}

func (m *mockUserRepo) GetByID(_ context.Context, id uuid.UUID) (*User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[id]
	if !ok {
		return nil, apperr.NotFound("user")
	}
	cp := *u
	return &cp, nil
}

func (m *mockUserRepo) GetByEmail(_ context.Context, email string) (*User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, u := range m.users {
		if u.Email == email {
			cp := *u
			return &cp, nil
		}
	}
	return nil, apperr.NotFound("user")
}

func (m *mockUserRepo) GetByDoctorID(context.Context, uuid.UUID) (*User, error) {
	return nil, apperr.NotFound("doctor")
}

func (m *mockUserRepo) UpdateProfile(_ context.Context, id uuid.UUID, name string, phone *string) (*User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[id]
	if !ok {
		return nil, apperr.NotFound("user")
	}
	u.Name, u.Phone = name, phone
	cp := *u
	return &cp, nil
}

func (m *mockUserRepo) SetBlocked(_ context.Context, id uuid.UUID, blocked bool) (*User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[id]
	if !ok {
		return nil, apperr.NotFound("user")
	}
	u.Blocked = blocked
	cp := *u
	return &cp, nil
}

func (m *mockUserRepo) ListWithDoctorInfo(_ context.Context, limit, offset int) ([]*UserSummary, int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var all []*UserSummary
	for _, u := range m.users {
		all = append(all, &UserSummary{User: *u})
	}
	sort.Slice(all, func(i, j int) bool { return m.order[all[i].ID] > m.order[all[j].ID] })
	total := len(all)
	if offset > total {
		offset = total
	}
	end := offset + limit
	if end > total {
		end = total
	}
	return all[offset:end], total, nil
}

func (m *mockUserRepo) snapshot() map[uuid.UUID]*User {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := make(map[uuid.UUID]*User, len(m.users))
	for k, v := range m.users {
		cp[k] = v
	}
	return cp
}

func (m *mockUserRepo) restore(s map[uuid.UUID]*User) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.users = s
}

// -- Mock Doctor Profiles --

type mockDoctorRepo struct {
	mu      sync.Mutex
	doctors map[uuid.UUID]*doctor.Doctor
	fail    error
}

func newMockDoctorRepo() *mockDoctorRepo {
	return &mockDoctorRepo{doctors: make(map[uuid.UUID]*doctor.Doctor)}
}

func (m *mockDoctorRepo) Create(_ context.Context, d *doctor.Doctor) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.fail != nil {
		return m.fail
	}
	d.ID = uuid.New()
	cp := *d
	m.doctors[d.UserID] = &cp
	return nil
}

func (m *mockDoctorRepo) GetByUserID(_ context.Context, userID uuid.UUID) (*doctor.Doctor, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	d, ok := m.doctors[userID]
	if !ok {
		return nil, apperr.NotFound("doctor")
	}
	cp := *d
	return &cp, nil
}

// snapshotTx rolls the user store back when fn fails.
type snapshotTx struct {
	users *mockUserRepo
}

func (t snapshotTx) WithinTx(ctx context.Context, fn func(ctx context.Context) error) error {
	snap := t.users.snapshot()
	if err := fn(ctx); err != nil {
		t.users.restore(snap)
		return err
	}
	return nil
}

type countingInvalidator struct{ calls int }

func (c *countingInvalidator) InvalidateDirectory(context.Context) { c.calls++ }

func newTestService() (*Service, *mockUserRepo, *mockDoctorRepo, *countingInvalidator) {
	users := newMockUserRepo()
	doctors := newMockDoctorRepo()
	inv := &countingInvalidator{}
	svc := NewService(users, doctors, snapshotTx{users: users}, WithDirectoryInvalidator(inv))
	return svc, users, doctors, inv
}

func intPtr(v int) *int { return &v }

// -- Registration --

func TestRegisterUser_DefaultsToPatient(t *testing.T) {
	svc, _, doctors, inv := newTestService()
	u, err := svc.RegisterUser(context.Background(), Registration{
		Name: "Ann", Email: "  Ann@Example.com ", PasswordHash: "hash",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if u.Role != auth.RolePatient {
		t.Errorf("expected patient, got %s", u.Role)
	}
	if u.Email != "ann@example.com" {
		t.Errorf("expected normalised email, got %q", u.Email)
	}
	if len(doctors.doctors) != 0 {
		t.Error("patients must not get a doctor profile")
	}
	if inv.calls != 0 {
		t.Error("patient signup must not touch the directory")
	}
}

func TestRegisterUser_Doctor(t *testing.T) {
	svc, _, doctors, inv := newTestService()
	u, err := svc.RegisterUser(context.Background(), Registration{
		Name: "Dr. Grey", Email: "grey@example.com", PasswordHash: "hash",
		Role: "doctor", Bio: "Surgeon", Experience: intPtr(10),
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	d, ok := doctors.doctors[u.ID]
	if !ok {
		t.Fatal("expected doctor profile")
	}
	if d.Specialization != doctor.DefaultSpecialization {
		t.Errorf("expected default specialization, got %q", d.Specialization)
	}
	if d.ConsultationFee != 0 || d.Rating != 0 {
		t.Errorf("expected zero fee and rating, got %v / %v", d.ConsultationFee, d.Rating)
	}
	if inv.calls != 1 {
		t.Errorf("expected directory invalidation, got %d", inv.calls)
	}
}

func TestRegisterUser_Rejections(t *testing.T) {
	tests := []struct {
		name string
		reg  Registration
		kind error
	}{
		{"missing name", Registration{Email: "a@b.co", PasswordHash: "h"}, apperr.ErrValidation},
		{"bad email", Registration{Name: "A", Email: "nope", PasswordHash: "h"}, apperr.ErrValidation},
		{"admin", Registration{Name: "A", Email: "a@b.co", PasswordHash: "h", Role: "admin"}, apperr.ErrValidation},
		{"unknown role", Registration{Name: "A", Email: "a@b.co", PasswordHash: "h", Role: "nurse"}, apperr.ErrValidation},
		{"doctor without bio", Registration{Name: "A", Email: "a@b.co", PasswordHash: "h", Role: "doctor", Experience: intPtr(3)}, apperr.ErrValidation},
		{"doctor without experience", Registration{Name: "A", Email: "a@b.co", PasswordHash: "h", Role: "doctor", Bio: "x"}, apperr.ErrValidation},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc, users, _, _ := newTestService()
			_, err := svc.RegisterUser(context.Background(), tt.reg)
			if !errors.Is(err, tt.kind) {
				t.Errorf("expected %v, got %v", tt.kind, err)
			}
			if len(users.users) != 0 {
				t.Error("no user should be stored")
			}
		})
	}
}

func TestRegisterUser_DuplicateEmail(t *testing.T) {
	svc, _, _, _ := newTestService()
	reg := Registration{Name: "Ann", Email: "ann@example.com", PasswordHash: "h"}
	if _, err := svc.RegisterUser(context.Background(), reg); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	reg.Email = "ANN@example.com"
	if _, err := svc.RegisterUser(context.Background(), reg); !errors.Is(err, apperr.ErrConflict) {
		t.Errorf("expected ErrConflict, got %v", err)
	}
}

func TestRegisterUser_DoctorInsertFailureRollsBackUser(t *testing.T) {
	svc, users, doctors, _ := newTestService()
	doctors.fail = apperr.FromStore(errors.New("connection reset"), "doctor")

	_, err := svc.RegisterUser(context.Background(), Registration{
		Name: "Dr. Grey", Email: "grey@example.com", PasswordHash: "h",
		Role: "doctor", Bio: "Surgeon", Experience: intPtr(1),
	})
	if !errors.Is(err, apperr.ErrDependency) {
		t.Fatalf("expected ErrDependency, got %v", err)
	}
	if len(users.users) != 0 {
		t.Error("user row must be rolled back with the doctor row")
	}
}

// -- Login --

func TestAuthenticateCheck(t *testing.T) {
	svc, users, _, _ := newTestService()
	u, _ := svc.RegisterUser(context.Background(), Registration{Name: "Ann", Email: "ann@example.com", PasswordHash: "h"})

	got, err := svc.AuthenticateCheck(context.Background(), " ANN@example.com")
	if err != nil || got.ID != u.ID {
		t.Fatalf("expected user, got %v, %v", got, err)
	}

	users.users[u.ID].Blocked = true
	if _, err := svc.AuthenticateCheck(context.Background(), "ann@example.com"); !errors.Is(err, apperr.ErrUnauthorized) {
		t.Errorf("expected ErrUnauthorized for blocked account, got %v", err)
	}
	if _, err := svc.AuthenticateCheck(context.Background(), "nobody@example.com"); !errors.Is(err, apperr.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

// -- Profile --

func TestGetProfile_DoctorIncludesProfile(t *testing.T) {
	svc, _, _, _ := newTestService()
	u, err := svc.RegisterUser(context.Background(), Registration{
		Name: "Dr. Grey", Email: "grey@example.com", PasswordHash: "h",
		Role: "doctor", Bio: "Surgeon", Experience: intPtr(4), Specialization: "Surgery",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	p, err := svc.GetProfile(context.Background(), u.Actor())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if p.Doctor == nil || p.Doctor.Specialization != "Surgery" {
		t.Errorf("expected doctor profile, got %+v", p.Doctor)
	}
}

func TestUpdateProfile(t *testing.T) {
	svc, _, _, _ := newTestService()
	u, _ := svc.RegisterUser(context.Background(), Registration{Name: "Ann", Email: "ann@example.com", PasswordHash: "h"})

	phone := " 555-0100 "
	got, err := svc.UpdateProfile(context.Background(), u.Actor(), "Ann B", &phone)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.Name != "Ann B" || got.Phone == nil || *got.Phone != "555-0100" {
		t.Errorf("unexpected profile: %+v", got)
	}
	if _, err := svc.UpdateProfile(context.Background(), u.Actor(), " ", nil); !errors.Is(err, apperr.ErrValidation) {
		t.Errorf("expected ErrValidation, got %v", err)
	}
}

// -- Admin --

func TestSetUserBlocked(t *testing.T) {
	svc, _, _, inv := newTestService()
	admin := auth.Actor{ID: uuid.New(), Role: auth.RoleAdmin}
	d, err := svc.RegisterUser(context.Background(), Registration{
		Name: "Dr. Grey", Email: "grey@example.com", PasswordHash: "h",
		Role: "doctor", Bio: "Surgeon", Experience: intPtr(4),
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	before := inv.calls

	got, err := svc.SetUserBlocked(context.Background(), admin, d.ID, true)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !got.Blocked {
		t.Error("expected blocked")
	}
	if inv.calls != before+1 {
		t.Error("blocking a doctor must invalidate the directory")
	}

	if _, err := svc.SetUserBlocked(context.Background(), admin, uuid.New(), true); !errors.Is(err, apperr.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
	if _, err := svc.SetUserBlocked(context.Background(), admin, admin.ID, true); !errors.Is(err, apperr.ErrValidation) {
		t.Errorf("expected ErrValidation for self-block, got %v", err)
	}
	if _, err := svc.SetUserBlocked(context.Background(), d.Actor(), d.ID, false); !errors.Is(err, apperr.ErrUnauthorized) {
		t.Errorf("expected ErrUnauthorized for non-admin, got %v", err)
	}
}

func TestListAllUsersWithDoctorInfo(t *testing.T) {
	svc, _, _, _ := newTestService()
	for _, email := range []string{"a@example.com", "b@example.com", "c@example.com"} {
		if _, err := svc.RegisterUser(context.Background(), Registration{Name: "U", Email: email, PasswordHash: "h"}); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	}
	admin := auth.Actor{ID: uuid.New(), Role: auth.RoleAdmin}
	users, total, err := svc.ListAllUsersWithDoctorInfo(context.Background(), admin, 2, 0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if total != 3 || len(users) != 2 {
		t.Errorf("expected 2 of 3, got %d of %d", len(users), total)
	}
	if users[0].Email != "c@example.com" {
		t.Errorf("expected newest first, got %s", users[0].Email)
	}

	patient := auth.Actor{ID: uuid.New(), Role: auth.RolePatient}
	if _, _, err := svc.ListAllUsersWithDoctorInfo(context.Background(), patient, 2, 0); !errors.Is(err, apperr.ErrUnauthorized) {
		t.Errorf("expected ErrUnauthorized, got %v", err)
	}
}

func TestSeedAdmin_Idempotent(t *testing.T) {
	svc, users, _, _ := newTestService()
	created, err := svc.SeedAdmin(context.Background(), "Root", "root@example.com", "h")
	if err != nil || !created {
		t.Fatalf("expected creation, got %v, %v", created, err)
	}
	created, err = svc.SeedAdmin(context.Background(), "Root", "ROOT@example.com", "h")
	if err != nil || created {
		t.Fatalf("expected no-op, got %v, %v", created, err)
	}
	if len(users.users) != 1 {
		t.Errorf("expected 1 user, got %d", len(users.users))
	}

	if _, err := svc.RegisterUser(context.Background(), Registration{Name: "P", Email: "p@example.com", PasswordHash: "h"}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, err := svc.SeedAdmin(context.Background(), "Root", "p@example.com", "h"); !errors.Is(err, apperr.ErrConflict) {
		t.Errorf("expected ErrConflict for non-admin owner, got %v", err)
	}
}
