// Package store defines the persistence contracts for the scheduling domain
// together with their Postgres implementations. Services depend on the
// interfaces here; the concrete repositories are wired by the app container.
package store

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

var (
	// ErrNotFound is returned when the requested row does not exist.
	ErrNotFound = errors.New("store: not found")

	// ErrConflict is returned when a conditional write touched zero rows,
	// meaning a concurrent writer changed the row first.
	ErrConflict = errors.New("store: concurrent modification")

	// ErrDuplicate is returned when an insert violates a unique constraint.
	ErrDuplicate = errors.New("store: duplicate")
)

// StatusUpdate carries the fields a lifecycle transition may change alongside
// the new status. Nil pointers leave the stored value untouched.
type StatusUpdate struct {
	Status      AppointmentStatus
	ScheduledAt *time.Time
	Modality    *Modality
}

type AppointmentRepository interface {
	Create(ctx context.Context, a *Appointment) error
	GetByID(ctx context.Context, id uuid.UUID) (*Appointment, error)
	ListByPatient(ctx context.Context, patientID uuid.UUID) ([]*Appointment, error)
	ListByDoctor(ctx context.Context, doctorID uuid.UUID) ([]*Appointment, error)

	// UpdateStatus performs a compare-and-set write: the row is updated only
	// while its status still equals expected. A zero-row update reports
	// ErrConflict; the caller decides whether that races or 404s.
	UpdateStatus(ctx context.Context, id uuid.UUID, expected AppointmentStatus, upd StatusUpdate) (*Appointment, error)

	// HasCompletedBetween reports whether at least one COMPLETED appointment
	// exists for the pair.
	HasCompletedBetween(ctx context.Context, patientID, doctorID uuid.UUID) (bool, error)

	// ListApprovedBetween returns APPROVED appointments scheduled inside
	// [from, to), ordered by scheduled_at. Used by the reminder worker.
	ListApprovedBetween(ctx context.Context, from, to time.Time) ([]*Appointment, error)
}

type ConversationRepository interface {
	// EnsurePair inserts the conversation for (patientID, doctorID) if absent
	// and returns the stored row either way. The second result is true when
	// this call created the row.
	EnsurePair(ctx context.Context, patientID, doctorID uuid.UUID) (*Conversation, bool, error)

	GetByID(ctx context.Context, id uuid.UUID) (*Conversation, error)
	ListByParticipant(ctx context.Context, participantID uuid.UUID) ([]*Conversation, error)

	AppendMessage(ctx context.Context, m *Message) error

	// ListMessages returns the conversation's messages ordered oldest first.
	ListMessages(ctx context.Context, conversationID uuid.UUID) ([]*Message, error)
}

type ParticipantRepository interface {
	// Resolve finds the patient or doctor record owned by userID. ErrNotFound
	// means the account has no participant of that kind.
	Resolve(ctx context.Context, userID uuid.UUID, kind Role) (*Participant, error)

	GetPatient(ctx context.Context, id uuid.UUID) (*Participant, error)
	GetDoctor(ctx context.Context, id uuid.UUID) (*Participant, error)
	ListDoctors(ctx context.Context) ([]*Participant, error)

	CreatePatient(ctx context.Context, userID uuid.UUID) (*Participant, error)
	CreateDoctor(ctx context.Context, userID uuid.UUID, specialty string) (*Participant, error)
}

type UserRepository interface {
	Create(ctx context.Context, u *User) error
	GetByID(ctx context.Context, id uuid.UUID) (*User, error)
	GetByEmail(ctx context.Context, email string) (*User, error)
	UpdatePasswordHash(ctx context.Context, id uuid.UUID, hash string) error
}

// Stores bundles every repository for container wiring.
type Stores struct {
	Users         UserRepository
	Participants  ParticipantRepository
	Appointments  AppointmentRepository
	Conversations ConversationRepository
}
