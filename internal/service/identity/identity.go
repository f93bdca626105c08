// Package identity is the guard between raw bearer credentials and the
// domain services: it verifies the token, checks the role claim, and resolves
// the caller's participant record. Services downstream only ever see the
// resolved Caller value.
package identity

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/uuid"

	"github.com/telecarehq/telecare_backend/internal/store"
	pasetotoken "github.com/telecarehq/telecare_backend/pkg/paseto"
)

// ---------------------------------------------------------------------------
// DTOs
// ---------------------------------------------------------------------------

// Caller is the immutable authenticated identity handed to the domain
// services for authorization checks.
type Caller struct {
	UserID        uuid.UUID
	Role          store.Role
	ParticipantID uuid.UUID
	Name          string
	Email         string

	// SessionID is carried through from the credential when present so the
	// transport layer can validate the login session.
	SessionID *uuid.UUID
}

// TokenVerifier abstracts the credential check. *pasetotoken.Manager
// satisfies it.
type TokenVerifier interface {
	Verify(token string) (*pasetotoken.Claims, error)
}

// ---------------------------------------------------------------------------
// Interface
// ---------------------------------------------------------------------------

type Service interface {
	// Authenticate verifies the bearer credential, enforces the role claim
	// against requiredRoles (empty means any role), and resolves the caller's
	// participant record. Side-effect-free.
	Authenticate(ctx context.Context, bearer string, requiredRoles ...store.Role) (*Caller, error)
}

// ---------------------------------------------------------------------------
// Implementation
// ---------------------------------------------------------------------------

type guard struct {
	tokens       TokenVerifier
	participants store.ParticipantRepository
	logger       *slog.Logger
}

func New(tokens TokenVerifier, participants store.ParticipantRepository, logger *slog.Logger) Service {
	return &guard{tokens: tokens, participants: participants, logger: logger}
}

func (g *guard) Authenticate(ctx context.Context, bearer string, requiredRoles ...store.Role) (*Caller, error) {
	token := strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(bearer), "Bearer "))
	if token == "" {
		return nil, fmt.Errorf("%w: missing credential", ErrUnauthorized)
	}

	claims, err := g.tokens.Verify(token)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnauthorized, err)
	}
	if claims.Type != pasetotoken.TokenTypeAccess {
		return nil, fmt.Errorf("%w: not an access token", ErrUnauthorized)
	}

	role := store.Role(claims.Role)
	if !role.Valid() {
		return nil, fmt.Errorf("%w: unknown role claim %q", ErrUnauthorized, claims.Role)
	}
	if len(requiredRoles) > 0 && !containsRole(requiredRoles, role) {
		return nil, fmt.Errorf("%w: role %s", ErrForbidden, role)
	}

	p, err := g.participants.Resolve(ctx, claims.UserID, role)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			// Valid signature, no local account. Logged separately so a
			// credential-store drift is distinguishable from token abuse.
			g.logger.Warn("credential valid but account unresolved",
				"user_id", claims.UserID,
				"role", role,
			)
			return nil, fmt.Errorf("%w: user %s", ErrAccountUnresolved, claims.UserID)
		}
		return nil, fmt.Errorf("resolve participant: %w", err)
	}

	return &Caller{
		UserID:        claims.UserID,
		Role:          role,
		ParticipantID: p.ID,
		Name:          p.FullName,
		Email:         p.Email,
		SessionID:     claims.SessionID,
	}, nil
}

func containsRole(roles []store.Role, r store.Role) bool {
	for _, item := range roles {
		if item == r {
			return true
		}
	}
	return false
}
