package appointment

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/medibook/medibook/internal/domain/doctor"
	"github.com/medibook/medibook/internal/platform/apperr"
)

// In-memory store emulating the PostgreSQL repositories: transactions keep
// an undo log replayed on failure, and FOR UPDATE reads take a per-row mutex
// held until the transaction ends.

type txKey struct{}

type txState struct {
	undo     []func()
	releases []func()
	held     map[string]bool
}

type memTx struct{}

func (memTx) WithinTx(ctx context.Context, fn func(ctx context.Context) error) error {
	if _, ok := ctx.Value(txKey{}).(*txState); ok {
		return fn(ctx)
	}
	st := &txState{held: make(map[string]bool)}
	err := fn(context.WithValue(ctx, txKey{}, st))
	if err != nil {
		for i := len(st.undo) - 1; i >= 0; i-- {
			st.undo[i]()
		}
	}
	for i := len(st.releases) - 1; i >= 0; i-- {
		st.releases[i]()
	}
	return err
}

type person struct {
	name  string
	email string
	phone string
}

type memStore struct {
	mu       sync.Mutex
	appts    map[uuid.UUID]*Appointment
	doctors  map[uuid.UUID]*doctor.Doctor
	tenths   map[uuid.UUID]int
	people   map[uuid.UUID]person
	rowLocks map[string]*sync.Mutex

	holders    map[uuid.UUID]int
	maxHolders int

	lockDelay         time.Duration
	failUpdateRating  error
	updateRatingCalls int
}

func newMemStore() *memStore {
	return &memStore{
		appts:    make(map[uuid.UUID]*Appointment),
		doctors:  make(map[uuid.UUID]*doctor.Doctor),
		tenths:   make(map[uuid.UUID]int),
		people:   make(map[uuid.UUID]person),
		rowLocks: make(map[string]*sync.Mutex),
		holders:  make(map[uuid.UUID]int),
	}
}

func (m *memStore) addPerson(name, email, phone string) uuid.UUID {
	m.mu.Lock()
	defer m.mu.Unlock()
	id := uuid.New()
	m.people[id] = person{name: name, email: email, phone: phone}
	return id
}

func (m *memStore) addDoctor(name, spec string, tenths int) *doctor.Doctor {
	userID := m.addPerson(name, "", "555-0199")
	m.mu.Lock()
	defer m.mu.Unlock()
	d := &doctor.Doctor{ID: uuid.New(), UserID: userID, Name: name, Specialization: spec}
	m.doctors[d.ID] = d
	m.tenths[d.ID] = tenths
	return d
}

func (m *memStore) appointment(id uuid.UUID) *Appointment {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.appts[id]
	if !ok {
		return nil
	}
	cp := *a
	return &cp
}

func (m *memStore) rating(doctorID uuid.UUID) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.tenths[doctorID]
}

func txFrom(ctx context.Context) *txState {
	st, _ := ctx.Value(txKey{}).(*txState)
	return st
}

func (m *memStore) onRollback(ctx context.Context, fn func()) {
	if st := txFrom(ctx); st != nil {
		st.undo = append(st.undo, fn)
	}
}

// lockRow blocks until the row lock is free and holds it to the end of the
// transaction. onRelease runs just before the mutex is released.
func (m *memStore) lockRow(ctx context.Context, key string, onRelease func()) error {
	st := txFrom(ctx)
	if st == nil {
		return errors.New("row lock requires a transaction")
	}
	if st.held[key] {
		return nil
	}
	m.mu.Lock()
	l, ok := m.rowLocks[key]
	if !ok {
		l = &sync.Mutex{}
		m.rowLocks[key] = l
	}
	m.mu.Unlock()

	l.Lock()
	st.held[key] = true
	st.releases = append(st.releases, func() {
		if onRelease != nil {
			onRelease()
		}
		l.Unlock()
	})
	return nil
}

// -- Repository --

func (m *memStore) Create(ctx context.Context, a *Appointment) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.doctors[a.DoctorID]; !ok {
		return apperr.NotFound("referenced doctor")
	}
	if a.ID == uuid.Nil {
		a.ID = uuid.New()
	}
	a.CreatedAt = time.Now()
	cp := *a
	m.appts[a.ID] = &cp
	id := a.ID
	m.onRollback(ctx, func() {
		m.mu.Lock()
		delete(m.appts, id)
		m.mu.Unlock()
	})
	return nil
}

func (m *memStore) GetForUpdate(ctx context.Context, id uuid.UUID, scope Scope) (*Appointment, error) {
	if err := m.lockRow(ctx, "appointment:"+id.String(), nil); err != nil {
		return nil, err
	}
	a := m.appointment(id)
	if a == nil || !scope.Matches(a) {
		return nil, apperr.NotFound("appointment")
	}
	return a, nil
}

func (m *memStore) UpdateStatus(ctx context.Context, id uuid.UUID, from, to Status) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.appts[id]
	if !ok || a.Status != from {
		return apperr.ErrInvalidTransition
	}
	a.Status = to
	m.onRollback(ctx, func() {
		m.mu.Lock()
		a.Status = from
		m.mu.Unlock()
	})
	return nil
}

func (m *memStore) SetRating(ctx context.Context, id uuid.UUID, rating int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.appts[id]
	if !ok || a.Rating != nil || a.Status != StatusCompleted {
		return apperr.Conflict("appointment already rated")
	}
	r := rating
	a.Rating = &r
	m.onRollback(ctx, func() {
		m.mu.Lock()
		a.Rating = nil
		m.mu.Unlock()
	})
	return nil
}

func (m *memStore) Delete(ctx context.Context, id uuid.UUID, scope Scope) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.appts[id]
	if !ok || !scope.Matches(a) {
		return apperr.NotFound("appointment")
	}
	delete(m.appts, id)
	m.onRollback(ctx, func() {
		m.mu.Lock()
		m.appts[id] = a
		m.mu.Unlock()
	})
	return nil
}

func (m *memStore) List(_ context.Context, scope Scope, limit, offset int) ([]*View, int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var all []*View
	for _, a := range m.appts {
		if !scope.Matches(a) {
			continue
		}
		d := m.doctors[a.DoctorID]
		dp := m.people[d.UserID]
		pp := m.people[a.PatientID]
		spec := d.Specialization
		all = append(all, &View{
			Appointment:    *a,
			DoctorName:     &dp.name,
			DoctorPhone:    &dp.phone,
			Specialization: &spec,
			PatientName:    &pp.name,
			PatientEmail:   &pp.email,
			PatientPhone:   &pp.phone,
		})
	}
	sort.Slice(all, func(i, j int) bool {
		if all[i].Date != all[j].Date {
			return all[i].Date > all[j].Date
		}
		if all[i].Time != all[j].Time {
			return all[i].Time > all[j].Time
		}
		return all[i].ID.String() < all[j].ID.String()
	})
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

// -- DoctorStore --

func (m *memStore) GetByID(_ context.Context, id uuid.UUID) (*doctor.Doctor, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	d, ok := m.doctors[id]
	if !ok {
		return nil, apperr.NotFound("doctor")
	}
	cp := *d
	cp.Rating = doctor.RatingFromTenths(m.tenths[id])
	return &cp, nil
}

func (m *memStore) GetByUserID(_ context.Context, userID uuid.UUID) (*doctor.Doctor, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, d := range m.doctors {
		if d.UserID == userID {
			cp := *d
			return &cp, nil
		}
	}
	return nil, apperr.NotFound("doctor")
}

func (m *memStore) LockRating(ctx context.Context, id uuid.UUID) (int, error) {
	err := m.lockRow(ctx, "doctor:"+id.String(), func() {
		m.mu.Lock()
		m.holders[id]--
		m.mu.Unlock()
	})
	if err != nil {
		return 0, err
	}

	m.mu.Lock()
	m.holders[id]++
	if m.holders[id] > m.maxHolders {
		m.maxHolders = m.holders[id]
	}
	tenths, ok := m.tenths[id]
	delay := m.lockDelay
	m.mu.Unlock()

	if !ok {
		return 0, apperr.NotFound("doctor")
	}
	// Widen the read-modify-write window so racing ratings overlap.
	time.Sleep(delay)
	return tenths, nil
}

func (m *memStore) UpdateRating(ctx context.Context, id uuid.UUID, tenths int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.updateRatingCalls++
	if m.failUpdateRating != nil {
		return m.failUpdateRating
	}
	prev := m.tenths[id]
	m.tenths[id] = tenths
	m.onRollback(ctx, func() {
		m.mu.Lock()
		m.tenths[id] = prev
		m.mu.Unlock()
	})
	return nil
}
