// Package directory exposes the read-only doctor listing patients browse
// before booking.
package directory

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/telecarehq/telecare_backend/internal/store"
)

var ErrNotFound = errors.New("doctor not found")

type Service interface {
	ListDoctors(ctx context.Context) ([]*store.Participant, error)
	GetDoctor(ctx context.Context, id uuid.UUID) (*store.Participant, error)
}

type directoryService struct {
	participants store.ParticipantRepository
}

func New(participants store.ParticipantRepository) Service {
	return &directoryService{participants: participants}
}

func (s *directoryService) ListDoctors(ctx context.Context) ([]*store.Participant, error) {
	doctors, err := s.participants.ListDoctors(ctx)
	if err != nil {
		return nil, fmt.Errorf("list doctors: %w", err)
	}
	return doctors, nil
}

func (s *directoryService) GetDoctor(ctx context.Context, id uuid.UUID) (*store.Participant, error) {
	d, err := s.participants.GetDoctor(ctx, id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get doctor: %w", err)
	}
	return d, nil
}
