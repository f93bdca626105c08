// Package storetest provides in-memory store implementations for unit tests.
// They honor the same error contracts as the Postgres repositories, including
// the compare-and-set semantics of UpdateStatus.
package storetest

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/telecarehq/telecare_backend/internal/store"
)

// New returns a fully wired in-memory store set.
func New() *store.Stores {
	users := &UserRepo{byID: map[uuid.UUID]*store.User{}}
	return &store.Stores{
		Users:         users,
		Participants:  &ParticipantRepo{users: users, byID: map[uuid.UUID]*store.Participant{}},
		Appointments:  &AppointmentRepo{byID: map[uuid.UUID]*store.Appointment{}},
		Conversations: &ConversationRepo{byID: map[uuid.UUID]*store.Conversation{}},
	}
}

// ---------------------------------------------------------------------------
// Appointments
// ---------------------------------------------------------------------------

type AppointmentRepo struct {
	mu   sync.Mutex
	byID map[uuid.UUID]*store.Appointment
}

func (r *AppointmentRepo) Create(_ context.Context, a *store.Appointment) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if a.ID == uuid.Nil {
		a.ID = uuid.New()
	}
	if _, ok := r.byID[a.ID]; ok {
		return store.ErrDuplicate
	}
	now := time.Now().UTC()
	a.CreatedAt = now
	a.UpdatedAt = now
	cp := *a
	r.byID[a.ID] = &cp
	return nil
}

func (r *AppointmentRepo) GetByID(_ context.Context, id uuid.UUID) (*store.Appointment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	a, ok := r.byID[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	cp := *a
	return &cp, nil
}

func (r *AppointmentRepo) ListByPatient(_ context.Context, patientID uuid.UUID) ([]*store.Appointment, error) {
	return r.filter(func(a *store.Appointment) bool { return a.PatientID == patientID }), nil
}

func (r *AppointmentRepo) ListByDoctor(_ context.Context, doctorID uuid.UUID) ([]*store.Appointment, error) {
	return r.filter(func(a *store.Appointment) bool { return a.DoctorID == doctorID }), nil
}

func (r *AppointmentRepo) UpdateStatus(_ context.Context, id uuid.UUID, expected store.AppointmentStatus, upd store.StatusUpdate) (*store.Appointment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	a, ok := r.byID[id]
	if !ok || a.Status != expected {
		return nil, store.ErrConflict
	}
	a.Status = upd.Status
	if upd.ScheduledAt != nil {
		a.ScheduledAt = upd.ScheduledAt.UTC()
	}
	if upd.Modality != nil {
		a.Modality = *upd.Modality
	}
	a.UpdatedAt = time.Now().UTC()
	cp := *a
	return &cp, nil
}

func (r *AppointmentRepo) HasCompletedBetween(_ context.Context, patientID, doctorID uuid.UUID) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, a := range r.byID {
		if a.PatientID == patientID && a.DoctorID == doctorID && a.Status == store.StatusCompleted {
			return true, nil
		}
	}
	return false, nil
}

func (r *AppointmentRepo) ListApprovedBetween(_ context.Context, from, to time.Time) ([]*store.Appointment, error) {
	return r.filter(func(a *store.Appointment) bool {
		return a.Status == store.StatusApproved &&
			!a.ScheduledAt.Before(from) && a.ScheduledAt.Before(to)
	}), nil
}

func (r *AppointmentRepo) filter(keep func(*store.Appointment) bool) []*store.Appointment {
	r.mu.Lock()
	defer r.mu.Unlock()

	var out []*store.Appointment
	for _, a := range r.byID {
		if keep(a) {
			cp := *a
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ScheduledAt.Before(out[j].ScheduledAt) })
	return out
}

// ---------------------------------------------------------------------------
// Conversations
// ---------------------------------------------------------------------------

type ConversationRepo struct {
	mu       sync.Mutex
	byID     map[uuid.UUID]*store.Conversation
	messages []*store.Message
}

func (r *ConversationRepo) EnsurePair(_ context.Context, patientID, doctorID uuid.UUID) (*store.Conversation, bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, c := range r.byID {
		if c.PatientID == patientID && c.DoctorID == doctorID {
			cp := *c
			return &cp, false, nil
		}
	}
	c := &store.Conversation{
		ID:        uuid.New(),
		PatientID: patientID,
		DoctorID:  doctorID,
		CreatedAt: time.Now().UTC(),
	}
	r.byID[c.ID] = c
	cp := *c
	return &cp, true, nil
}

func (r *ConversationRepo) GetByID(_ context.Context, id uuid.UUID) (*store.Conversation, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	c, ok := r.byID[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	cp := *c
	return &cp, nil
}

func (r *ConversationRepo) ListByParticipant(_ context.Context, participantID uuid.UUID) ([]*store.Conversation, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var out []*store.Conversation
	for _, c := range r.byID {
		if c.PatientID == participantID || c.DoctorID == participantID {
			cp := *c
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (r *ConversationRepo) AppendMessage(_ context.Context, m *store.Message) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.byID[m.ConversationID]; !ok {
		return store.ErrNotFound
	}
	if m.ID == uuid.Nil {
		m.ID = uuid.New()
	}
	m.CreatedAt = time.Now().UTC()
	cp := *m
	r.messages = append(r.messages, &cp)
	return nil
}

func (r *ConversationRepo) ListMessages(_ context.Context, conversationID uuid.UUID) ([]*store.Message, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var out []*store.Message
	for _, m := range r.messages {
		if m.ConversationID == conversationID {
			cp := *m
			out = append(out, &cp)
		}
	}
	return out, nil
}

// ---------------------------------------------------------------------------
// Users and participants
// ---------------------------------------------------------------------------

type UserRepo struct {
	mu   sync.Mutex
	byID map[uuid.UUID]*store.User
}

func (r *UserRepo) Create(_ context.Context, u *store.User) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	u.Email = strings.ToLower(strings.TrimSpace(u.Email))
	for _, ex := range r.byID {
		if ex.Email == u.Email {
			return store.ErrDuplicate
		}
	}
	if u.ID == uuid.Nil {
		u.ID = uuid.New()
	}
	now := time.Now().UTC()
	u.CreatedAt = now
	u.UpdatedAt = now
	cp := *u
	r.byID[u.ID] = &cp
	return nil
}

func (r *UserRepo) GetByID(_ context.Context, id uuid.UUID) (*store.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	u, ok := r.byID[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	cp := *u
	return &cp, nil
}

func (r *UserRepo) GetByEmail(_ context.Context, email string) (*store.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	email = strings.ToLower(strings.TrimSpace(email))
	for _, u := range r.byID {
		if u.Email == email {
			cp := *u
			return &cp, nil
		}
	}
	return nil, store.ErrNotFound
}

func (r *UserRepo) UpdatePasswordHash(_ context.Context, id uuid.UUID, hash string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	u, ok := r.byID[id]
	if !ok {
		return store.ErrNotFound
	}
	u.PasswordHash = hash
	u.UpdatedAt = time.Now().UTC()
	return nil
}

type ParticipantRepo struct {
	users *UserRepo
	mu    sync.Mutex
	byID  map[uuid.UUID]*store.Participant
}

func (r *ParticipantRepo) Resolve(_ context.Context, userID uuid.UUID, kind store.Role) (*store.Participant, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, p := range r.byID {
		if p.UserID == userID && p.Kind == kind {
			cp := *p
			return &cp, nil
		}
	}
	return nil, store.ErrNotFound
}

func (r *ParticipantRepo) GetPatient(ctx context.Context, id uuid.UUID) (*store.Participant, error) {
	return r.get(id, store.RolePatient)
}

func (r *ParticipantRepo) GetDoctor(ctx context.Context, id uuid.UUID) (*store.Participant, error) {
	return r.get(id, store.RoleDoctor)
}

func (r *ParticipantRepo) ListDoctors(_ context.Context) ([]*store.Participant, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var out []*store.Participant
	for _, p := range r.byID {
		if p.Kind == store.RoleDoctor {
			cp := *p
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].FullName < out[j].FullName })
	return out, nil
}

func (r *ParticipantRepo) CreatePatient(ctx context.Context, userID uuid.UUID) (*store.Participant, error) {
	return r.create(ctx, userID, store.RolePatient, "")
}

func (r *ParticipantRepo) CreateDoctor(ctx context.Context, userID uuid.UUID, specialty string) (*store.Participant, error) {
	return r.create(ctx, userID, store.RoleDoctor, specialty)
}

func (r *ParticipantRepo) create(ctx context.Context, userID uuid.UUID, kind store.Role, specialty string) (*store.Participant, error) {
	u, err := r.users.GetByID(ctx, userID)
	if err != nil {
		return nil, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	for _, p := range r.byID {
		if p.UserID == userID && p.Kind == kind {
			return nil, store.ErrDuplicate
		}
	}
	p := &store.Participant{
		ID:        uuid.New(),
		UserID:    userID,
		Kind:      kind,
		FullName:  u.FullName,
		Email:     u.Email,
		Specialty: specialty,
	}
	r.byID[p.ID] = p
	cp := *p
	return &cp, nil
}

func (r *ParticipantRepo) get(id uuid.UUID, kind store.Role) (*store.Participant, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	p, ok := r.byID[id]
	if !ok || p.Kind != kind {
		return nil, store.ErrNotFound
	}
	cp := *p
	return &cp, nil
}
