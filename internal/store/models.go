package store

import (
	"time"

	"github.com/google/uuid"
)

// ---------------------------------------------------------------------------
// Enumerations
// ---------------------------------------------------------------------------

// Role identifies which side of a consultation a participant acts on.
type Role string

const (
	RolePatient Role = "patient"
	RoleDoctor  Role = "doctor"
)

func (r Role) Valid() bool {
	return r == RolePatient || r == RoleDoctor
}

// AppointmentStatus is the closed set of lifecycle states.
type AppointmentStatus string

const (
	StatusPending   AppointmentStatus = "PENDING"
	StatusApproved  AppointmentStatus = "APPROVED"
	StatusRejected  AppointmentStatus = "REJECTED"
	StatusCompleted AppointmentStatus = "COMPLETED"
	StatusCanceled  AppointmentStatus = "CANCELED"
)

func (s AppointmentStatus) Valid() bool {
	switch s {
	case StatusPending, StatusApproved, StatusRejected, StatusCompleted, StatusCanceled:
		return true
	}
	return false
}

// Terminal reports whether no further transitions are permitted from s.
func (s AppointmentStatus) Terminal() bool {
	switch s {
	case StatusRejected, StatusCompleted, StatusCanceled:
		return true
	}
	return false
}

// Modality is how the consultation takes place.
type Modality string

const (
	ModalityInPerson  Modality = "IN_PERSON"
	ModalityOnline    Modality = "ONLINE"
	ModalityVideoCall Modality = "VIDEO_CALL"
)

func (m Modality) Valid() bool {
	switch m {
	case ModalityInPerson, ModalityOnline, ModalityVideoCall:
		return true
	}
	return false
}

// ---------------------------------------------------------------------------
// Entities
// ---------------------------------------------------------------------------

type User struct {
	ID           uuid.UUID `json:"id"`
	Email        string    `json:"email"`
	PasswordHash string    `json:"-"`
	FullName     string    `json:"full_name"`
	Role         Role      `json:"role"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// Participant is the resolved patient or doctor record an authenticated user
// acts through. Appointments reference participant ids, never user ids.
type Participant struct {
	ID       uuid.UUID `json:"id"`
	UserID   uuid.UUID `json:"user_id"`
	Kind     Role      `json:"kind"`
	FullName string    `json:"full_name"`
	Email    string    `json:"email"`

	// Specialty is set for doctors only.
	Specialty string `json:"specialty,omitempty"`
}

type Appointment struct {
	ID          uuid.UUID         `json:"id"`
	PatientID   uuid.UUID         `json:"patient_id"`
	DoctorID    uuid.UUID         `json:"doctor_id"`
	ScheduledAt time.Time         `json:"scheduled_at"`
	Modality    Modality          `json:"modality"`
	Status      AppointmentStatus `json:"status"`
	Notes       *string           `json:"notes,omitempty"`
	CreatedAt   time.Time         `json:"created_at"`
	UpdatedAt   time.Time         `json:"updated_at"`
}

type Conversation struct {
	ID        uuid.UUID `json:"id"`
	PatientID uuid.UUID `json:"patient_id"`
	DoctorID  uuid.UUID `json:"doctor_id"`
	CreatedAt time.Time `json:"created_at"`
}

type Message struct {
	ID             uuid.UUID `json:"id"`
	ConversationID uuid.UUID `json:"conversation_id"`
	SenderID       uuid.UUID `json:"sender_id"`
	Content        string    `json:"content"`
	CreatedAt      time.Time `json:"created_at"`
}
