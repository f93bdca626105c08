package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/telecarehq/telecare_backend/config"
	"github.com/telecarehq/telecare_backend/internal/store"
	pasetotoken "github.com/telecarehq/telecare_backend/pkg/paseto"
	"github.com/telecarehq/telecare_backend/pkg/util/password"
)

const minPasswordLen = 8

// redisKeySession returns the Redis key for a login session.
func redisKeySession(sessionID string) string { return "session:" + sessionID }

var reEmail = regexp.MustCompile(`^[^@\s]+@[^@\s]+\.[^@\s]+$`)

// ---------------------------------------------------------------------------
// DTOs
// ---------------------------------------------------------------------------

type RegisterRequest struct {
	Email    string
	Password string
	FullName string
	Role     store.Role

	// Specialty applies to doctor registrations only.
	Specialty string
}

type LoginRequest struct {
	Email    string
	Password string
}

type AuthTokens struct {
	AccessToken  string
	RefreshToken string
	ExpiresIn    int64 // seconds until the access token expires
}

// ---------------------------------------------------------------------------
// Interface
// ---------------------------------------------------------------------------

type Service interface {
	Register(ctx context.Context, req RegisterRequest) (*store.User, error)
	Login(ctx context.Context, req LoginRequest) (*AuthTokens, error)
	RefreshTokens(ctx context.Context, refreshToken string) (*AuthTokens, error)
	Logout(ctx context.Context, sessionID uuid.UUID) error
}

// ---------------------------------------------------------------------------
// Implementation
// ---------------------------------------------------------------------------

type authService struct {
	users        store.UserRepository
	participants store.ParticipantRepository
	rdb          *redis.Client
	paseto       *pasetotoken.Manager
	cfg          *config.Config
	hashParams   *password.Params
	logger       *slog.Logger
}

func New(
	users store.UserRepository,
	participants store.ParticipantRepository,
	rdb *redis.Client,
	paseto *pasetotoken.Manager,
	cfg *config.Config,
	logger *slog.Logger,
) Service {
	return &authService{
		users:        users,
		participants: participants,
		rdb:          rdb,
		paseto:       paseto,
		cfg:          cfg,
		hashParams:   password.FromCentralConfig(cfg.Password),
		logger:       logger,
	}
}

func (s *authService) Register(ctx context.Context, req RegisterRequest) (*store.User, error) {
	req.Email = strings.ToLower(strings.TrimSpace(req.Email))
	req.FullName = strings.TrimSpace(req.FullName)

	if !reEmail.MatchString(req.Email) {
		return nil, ErrInvalidEmail
	}
	if len(req.Password) < minPasswordLen {
		return nil, ErrPasswordTooShort
	}
	if req.FullName == "" {
		return nil, ErrNameRequired
	}
	if !req.Role.Valid() {
		return nil, ErrInvalidRole
	}

	hash, err := password.HashWithParams(req.Password, s.hashParams)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}

	u := &store.User{
		Email:        req.Email,
		PasswordHash: hash,
		FullName:     req.FullName,
		Role:         req.Role,
	}
	if err := s.users.Create(ctx, u); err != nil {
		if errors.Is(err, store.ErrDuplicate) {
			return nil, ErrEmailAlreadyExists
		}
		return nil, fmt.Errorf("create user: %w", err)
	}

	switch req.Role {
	case store.RolePatient:
		_, err = s.participants.CreatePatient(ctx, u.ID)
	case store.RoleDoctor:
		_, err = s.participants.CreateDoctor(ctx, u.ID, strings.TrimSpace(req.Specialty))
	}
	if err != nil {
		return nil, fmt.Errorf("create participant: %w", err)
	}

	return u, nil
}

func (s *authService) Login(ctx context.Context, req LoginRequest) (*AuthTokens, error) {
	u, err := s.users.GetByEmail(ctx, req.Email)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, ErrInvalidCredentials
		}
		return nil, fmt.Errorf("find user: %w", err)
	}

	if err := password.Verify(u.PasswordHash, req.Password); err != nil {
		return nil, ErrInvalidCredentials
	}

	// Opportunistic upgrade when hashing parameters have changed.
	if password.NeedsRehash(u.PasswordHash, s.hashParams) {
		if newHash, hErr := password.HashWithParams(req.Password, s.hashParams); hErr == nil {
			if uErr := s.users.UpdatePasswordHash(ctx, u.ID, newHash); uErr != nil {
				s.logger.Warn("password rehash failed", "user_id", u.ID, "error", uErr)
			}
		}
	}

	return s.createSession(ctx, u)
}

func (s *authService) RefreshTokens(ctx context.Context, refreshToken string) (*AuthTokens, error) {
	claims, err := s.paseto.Verify(refreshToken)
	if err != nil {
		return nil, ErrInvalidToken
	}
	if claims.Type != pasetotoken.TokenTypeRefresh || claims.SessionID == nil {
		return nil, ErrInvalidToken
	}

	sessionKey := redisKeySession(claims.SessionID.String())
	if err := s.rdb.Get(ctx, sessionKey).Err(); errors.Is(err, redis.Nil) {
		return nil, ErrSessionNotFound
	} else if err != nil {
		return nil, fmt.Errorf("redis get session: %w", err)
	}

	s.rdb.Expire(ctx, sessionKey, s.sessionTTL())

	// New access token only; the refresh token is reused until logout.
	access, err := s.paseto.IssueAccess(claims.UserID, claims.Role, claims.SessionID)
	if err != nil {
		return nil, fmt.Errorf("issue access token: %w", err)
	}

	return &AuthTokens{
		AccessToken:  access,
		RefreshToken: refreshToken,
		ExpiresIn:    int64(s.accessTTL().Seconds()),
	}, nil
}

func (s *authService) Logout(ctx context.Context, sessionID uuid.UUID) error {
	deleted, err := s.rdb.Del(ctx, redisKeySession(sessionID.String())).Result()
	if err != nil {
		return fmt.Errorf("delete session: %w", err)
	}
	if deleted == 0 {
		s.logger.Debug("logout: session already expired", "session_id", sessionID)
	}
	return nil
}

// ---------------------------------------------------------------------------
// Helpers
// ---------------------------------------------------------------------------

func (s *authService) createSession(ctx context.Context, u *store.User) (*AuthTokens, error) {
	sessionID := uuid.Must(uuid.NewV7())

	sessionKey := redisKeySession(sessionID.String())
	if err := s.rdb.Set(ctx, sessionKey, u.ID.String(), s.sessionTTL()).Err(); err != nil {
		return nil, fmt.Errorf("store session: %w", err)
	}

	access, err := s.paseto.IssueAccess(u.ID, string(u.Role), &sessionID)
	if err != nil {
		return nil, fmt.Errorf("issue access token: %w", err)
	}
	refresh, err := s.paseto.IssueRefresh(u.ID, string(u.Role), &sessionID)
	if err != nil {
		return nil, fmt.Errorf("issue refresh token: %w", err)
	}

	return &AuthTokens{
		AccessToken:  access,
		RefreshToken: refresh,
		ExpiresIn:    int64(s.accessTTL().Seconds()),
	}, nil
}

func (s *authService) sessionTTL() time.Duration {
	if mins := s.cfg.Authentication.SessionTTLMinutes; mins > 0 {
		return time.Duration(mins) * time.Minute
	}
	return time.Duration(s.cfg.Authentication.Paseto.RefreshTTLDays) * 24 * time.Hour
}

func (s *authService) accessTTL() time.Duration {
	if mins := s.cfg.Authentication.Paseto.AccessTTLMinutes; mins > 0 {
		return time.Duration(mins) * time.Minute
	}
	return 15 * time.Minute
}
