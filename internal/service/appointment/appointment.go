package appointment

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go"

	"github.com/telecarehq/telecare_backend/internal/service/notification"
	"github.com/telecarehq/telecare_backend/internal/store"
)

// ---------------------------------------------------------------------------
// DTOs
// ---------------------------------------------------------------------------

// Actor is the authenticated participant performing a lifecycle operation,
// as resolved by the identity guard.
type Actor struct {
	ParticipantID uuid.UUID
	Role          store.Role
}

type BookRequest struct {
	DoctorID    uuid.UUID
	ScheduledAt time.Time
	Modality    store.Modality
	Notes       *string
}

// TransitionRequest targets a new status. ScheduledAt and Modality are only
// meaningful for the reschedule transition (APPROVED back to PENDING).
type TransitionRequest struct {
	Target      store.AppointmentStatus
	ScheduledAt *time.Time
	Modality    *store.Modality
}

// ConversationUnlocker opens the chat channel for a pair once they share a
// completed appointment.
type ConversationUnlocker interface {
	Unlock(ctx context.Context, patientID, doctorID uuid.UUID) error
}

// ---------------------------------------------------------------------------
// Interface
// ---------------------------------------------------------------------------

type Service interface {
	Book(ctx context.Context, actor Actor, req BookRequest) (*store.Appointment, error)
	Transition(ctx context.Context, actor Actor, apptID uuid.UUID, req TransitionRequest) (*store.Appointment, error)
	GetByID(ctx context.Context, actor Actor, apptID uuid.UUID) (*store.Appointment, error)
	List(ctx context.Context, actor Actor) ([]*store.Appointment, error)
}

// ---------------------------------------------------------------------------
// Transition table
// ---------------------------------------------------------------------------

// transitions maps current status and actor role to the reachable targets.
// Absent entries mean no transition is permitted, which covers every terminal
// state.
var transitions = map[store.AppointmentStatus]map[store.Role][]store.AppointmentStatus{
	store.StatusPending: {
		store.RoleDoctor:  {store.StatusApproved, store.StatusRejected},
		store.RolePatient: {store.StatusCanceled},
	},
	store.StatusApproved: {
		store.RoleDoctor:  {store.StatusCompleted, store.StatusPending},
		store.RolePatient: {store.StatusCanceled},
	},
}

func allowed(current store.AppointmentStatus, role store.Role, target store.AppointmentStatus) bool {
	for _, t := range transitions[current][role] {
		if t == target {
			return true
		}
	}
	return false
}

func eventKind(target store.AppointmentStatus, reschedule bool) notification.EventKind {
	if reschedule {
		return notification.KindReschedule
	}
	switch target {
	case store.StatusApproved, store.StatusCompleted:
		return notification.KindConfirmation
	default:
		return notification.KindCancellation
	}
}

// ---------------------------------------------------------------------------
// Implementation
// ---------------------------------------------------------------------------

type appointmentService struct {
	appts        store.AppointmentRepository
	participants store.ParticipantRepository
	dispatcher   notification.Service
	gate         ConversationUnlocker
	nc           *nats.Conn
	logger       *slog.Logger

	// dispatchTimeout bounds the background delivery goroutine per event.
	dispatchTimeout time.Duration
}

func New(
	appts store.AppointmentRepository,
	participants store.ParticipantRepository,
	dispatcher notification.Service,
	gate ConversationUnlocker,
	nc *nats.Conn,
	logger *slog.Logger,
	dispatchTimeout time.Duration,
) Service {
	if dispatchTimeout <= 0 {
		dispatchTimeout = 30 * time.Second
	}
	return &appointmentService{
		appts:           appts,
		participants:    participants,
		dispatcher:      dispatcher,
		gate:            gate,
		nc:              nc,
		logger:          logger,
		dispatchTimeout: dispatchTimeout,
	}
}

func (s *appointmentService) Book(ctx context.Context, actor Actor, req BookRequest) (*store.Appointment, error) {
	if actor.Role != store.RolePatient {
		return nil, ErrForbidden
	}
	if !req.Modality.Valid() {
		return nil, fmt.Errorf("%w: modality %q", ErrInvalidArgument, req.Modality)
	}
	if req.ScheduledAt.IsZero() {
		return nil, fmt.Errorf("%w: scheduled time is required", ErrInvalidArgument)
	}

	if _, err := s.participants.GetDoctor(ctx, req.DoctorID); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("resolve doctor: %w", err)
	}

	appt := &store.Appointment{
		PatientID:   actor.ParticipantID,
		DoctorID:    req.DoctorID,
		ScheduledAt: req.ScheduledAt.UTC(),
		Modality:    req.Modality,
		Status:      store.StatusPending,
		Notes:       req.Notes,
	}
	if err := s.appts.Create(ctx, appt); err != nil {
		return nil, fmt.Errorf("create appointment: %w", err)
	}

	s.notifyAsync(*appt, notification.KindBooking, nil)
	s.publish("created", appt.ID)

	return appt, nil
}

func (s *appointmentService) Transition(ctx context.Context, actor Actor, apptID uuid.UUID, req TransitionRequest) (*store.Appointment, error) {
	appt, err := s.appts.GetByID(ctx, apptID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get appointment: %w", err)
	}

	if err := s.requireParticipant(actor, appt); err != nil {
		return nil, err
	}

	if !req.Target.Valid() {
		return nil, fmt.Errorf("%w: status %q", ErrInvalidArgument, req.Target)
	}
	if !allowed(appt.Status, actor.Role, req.Target) {
		return nil, fmt.Errorf("%w: %s -> %s as %s", ErrInvalidTransition, appt.Status, req.Target, actor.Role)
	}

	reschedule := appt.Status == store.StatusApproved && req.Target == store.StatusPending
	upd := store.StatusUpdate{Status: req.Target}
	if reschedule {
		if req.ScheduledAt == nil {
			return nil, fmt.Errorf("%w: reschedule requires a new scheduled time", ErrInvalidArgument)
		}
		if req.Modality != nil && !req.Modality.Valid() {
			return nil, fmt.Errorf("%w: modality %q", ErrInvalidArgument, *req.Modality)
		}
		upd.ScheduledAt = req.ScheduledAt
		upd.Modality = req.Modality
	} else if req.ScheduledAt != nil || req.Modality != nil {
		return nil, fmt.Errorf("%w: only a reschedule may change time or modality", ErrInvalidArgument)
	}

	prevScheduledAt := appt.ScheduledAt

	// Conditional on the status read above: a zero-row update means another
	// transition committed first and the caller must re-read.
	updated, err := s.appts.UpdateStatus(ctx, apptID, appt.Status, upd)
	if err != nil {
		if errors.Is(err, store.ErrConflict) {
			return nil, ErrConflict
		}
		return nil, fmt.Errorf("apply transition: %w", err)
	}

	kind := eventKind(req.Target, reschedule)
	var prev *time.Time
	if reschedule {
		prev = &prevScheduledAt
	}
	s.notifyAsync(*updated, kind, prev)
	s.publish(statusSubject(req.Target, reschedule), updated.ID)

	if updated.Status == store.StatusCompleted && s.gate != nil {
		if err := s.gate.Unlock(ctx, updated.PatientID, updated.DoctorID); err != nil {
			// The transition has committed; the channel can still be opened
			// by a later completion or a manual request.
			s.logger.Error("conversation unlock failed",
				"appointment_id", updated.ID,
				"error", err,
			)
		}
	}

	return updated, nil
}

func (s *appointmentService) GetByID(ctx context.Context, actor Actor, apptID uuid.UUID) (*store.Appointment, error) {
	appt, err := s.appts.GetByID(ctx, apptID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get appointment: %w", err)
	}
	if err := s.requireParticipant(actor, appt); err != nil {
		return nil, err
	}
	return appt, nil
}

func (s *appointmentService) List(ctx context.Context, actor Actor) ([]*store.Appointment, error) {
	switch actor.Role {
	case store.RolePatient:
		return s.appts.ListByPatient(ctx, actor.ParticipantID)
	case store.RoleDoctor:
		return s.appts.ListByDoctor(ctx, actor.ParticipantID)
	default:
		return nil, ErrForbidden
	}
}

func (s *appointmentService) requireParticipant(actor Actor, appt *store.Appointment) error {
	switch actor.Role {
	case store.RolePatient:
		if appt.PatientID == actor.ParticipantID {
			return nil
		}
	case store.RoleDoctor:
		if appt.DoctorID == actor.ParticipantID {
			return nil
		}
	}
	return ErrForbidden
}

// notifyAsync hands the event to the dispatcher on a fresh goroutine so the
// transition response never waits on email delivery.
func (s *appointmentService) notifyAsync(appt store.Appointment, kind notification.EventKind, prevScheduledAt *time.Time) {
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), s.dispatchTimeout)
		defer cancel()

		ev := notification.Event{
			Kind:            kind,
			Appointment:     appt,
			PrevScheduledAt: prevScheduledAt,
		}

		patient, err := s.participants.GetPatient(ctx, appt.PatientID)
		if err != nil {
			s.logger.Error("resolve patient for notification", "appointment_id", appt.ID, "error", err)
			return
		}
		ev.PatientName = patient.FullName
		ev.PatientEmail = patient.Email

		doctor, err := s.participants.GetDoctor(ctx, appt.DoctorID)
		if err != nil {
			s.logger.Error("resolve doctor for notification", "appointment_id", appt.ID, "error", err)
			return
		}
		ev.DoctorName = doctor.FullName
		ev.DoctorEmail = doctor.Email

		// Delivery failures are already logged by the dispatcher.
		_ = s.dispatcher.Dispatch(ctx, ev)
	}()
}

func statusSubject(target store.AppointmentStatus, reschedule bool) string {
	if reschedule {
		return "rescheduled"
	}
	switch target {
	case store.StatusApproved:
		return "approved"
	case store.StatusRejected:
		return "rejected"
	case store.StatusCompleted:
		return "completed"
	case store.StatusCanceled:
		return "cancelled"
	default:
		return "updated"
	}
}

func (s *appointmentService) publish(event string, apptID uuid.UUID) {
	if s.nc == nil {
		return
	}
	subject := fmt.Sprintf("telecare.appointment.%s.%s", event, apptID)
	_ = s.nc.Publish(subject, []byte(apptID.String()))
}
