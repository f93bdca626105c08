package conversation

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go"

	"github.com/telecarehq/telecare_backend/internal/store"
)

// ---------------------------------------------------------------------------
// DTOs
// ---------------------------------------------------------------------------

// Caller is the authenticated participant on whose behalf a conversation
// operation runs. Messages are attributed to the underlying user id.
type Caller struct {
	UserID        uuid.UUID
	ParticipantID uuid.UUID
	Role          store.Role
}

// ---------------------------------------------------------------------------
// Interface
// ---------------------------------------------------------------------------

type Service interface {
	// Unlock opens the channel for a patient/doctor pair after a completed
	// appointment. Idempotent and safe under concurrent callers.
	Unlock(ctx context.Context, patientID, doctorID uuid.UUID) error

	// Ensure is the manual "start chat" entry point: it opens (or returns)
	// the caller's conversation with the counterpart, but only once the pair
	// shares at least one completed appointment.
	Ensure(ctx context.Context, caller Caller, counterpartID uuid.UUID) (*store.Conversation, error)

	List(ctx context.Context, caller Caller) ([]*store.Conversation, error)
	ListMessages(ctx context.Context, caller Caller, convID uuid.UUID) ([]*store.Message, error)
	PostMessage(ctx context.Context, caller Caller, convID uuid.UUID, content string) (*store.Message, error)
}

// ---------------------------------------------------------------------------
// Implementation
// ---------------------------------------------------------------------------

type conversationService struct {
	convs  store.ConversationRepository
	appts  store.AppointmentRepository
	nc     *nats.Conn
	logger *slog.Logger
}

func New(convs store.ConversationRepository, appts store.AppointmentRepository, nc *nats.Conn, logger *slog.Logger) Service {
	return &conversationService{convs: convs, appts: appts, nc: nc, logger: logger}
}

func (s *conversationService) Unlock(ctx context.Context, patientID, doctorID uuid.UUID) error {
	conv, created, err := s.convs.EnsurePair(ctx, patientID, doctorID)
	if err != nil {
		return fmt.Errorf("ensure conversation: %w", err)
	}
	if created {
		s.logger.Info("conversation unlocked",
			"conversation_id", conv.ID,
			"patient_id", patientID,
			"doctor_id", doctorID,
		)
	}
	return nil
}

func (s *conversationService) Ensure(ctx context.Context, caller Caller, counterpartID uuid.UUID) (*store.Conversation, error) {
	var patientID, doctorID uuid.UUID
	switch caller.Role {
	case store.RolePatient:
		patientID, doctorID = caller.ParticipantID, counterpartID
	case store.RoleDoctor:
		patientID, doctorID = counterpartID, caller.ParticipantID
	default:
		return nil, ErrForbidden
	}

	unlocked, err := s.appts.HasCompletedBetween(ctx, patientID, doctorID)
	if err != nil {
		return nil, fmt.Errorf("check completed appointments: %w", err)
	}
	if !unlocked {
		return nil, ErrNotUnlocked
	}

	conv, _, err := s.convs.EnsurePair(ctx, patientID, doctorID)
	if err != nil {
		return nil, fmt.Errorf("ensure conversation: %w", err)
	}
	return conv, nil
}

func (s *conversationService) List(ctx context.Context, caller Caller) ([]*store.Conversation, error) {
	return s.convs.ListByParticipant(ctx, caller.ParticipantID)
}

func (s *conversationService) ListMessages(ctx context.Context, caller Caller, convID uuid.UUID) ([]*store.Message, error) {
	if _, err := s.authorize(ctx, caller, convID); err != nil {
		return nil, err
	}

	msgs, err := s.convs.ListMessages(ctx, convID)
	if err != nil {
		return nil, fmt.Errorf("list messages: %w", err)
	}
	return msgs, nil
}

func (s *conversationService) PostMessage(ctx context.Context, caller Caller, convID uuid.UUID, content string) (*store.Message, error) {
	content = strings.TrimSpace(content)
	if content == "" {
		return nil, ErrEmptyContent
	}

	if _, err := s.authorize(ctx, caller, convID); err != nil {
		return nil, err
	}

	msg := &store.Message{
		ConversationID: convID,
		SenderID:       caller.UserID,
		Content:        content,
	}
	if err := s.convs.AppendMessage(ctx, msg); err != nil {
		return nil, fmt.Errorf("append message: %w", err)
	}

	if s.nc != nil {
		subject := fmt.Sprintf("telecare.message.new.%s", convID)
		_ = s.nc.Publish(subject, []byte(msg.ID.String()))
	}

	return msg, nil
}

// authorize loads the conversation and checks the caller is one of its two
// participants.
func (s *conversationService) authorize(ctx context.Context, caller Caller, convID uuid.UUID) (*store.Conversation, error) {
	conv, err := s.convs.GetByID(ctx, convID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get conversation: %w", err)
	}
	if conv.PatientID != caller.ParticipantID && conv.DoctorID != caller.ParticipantID {
		return nil, ErrForbidden
	}
	return conv, nil
}
