package handler

import (
	"errors"

	"github.com/gofiber/fiber/v3"

	"github.com/telecarehq/telecare_backend/internal/api/http/middleware"
	"github.com/telecarehq/telecare_backend/internal/service/auth"
	"github.com/telecarehq/telecare_backend/internal/store"
)

type AuthHandler struct {
	svc auth.Service
}

func NewAuthHandler(svc auth.Service) *AuthHandler {
	return &AuthHandler{svc: svc}
}

func mapAuthError(c fiber.Ctx, err error) error {
	switch {
	case errors.Is(err, auth.ErrInvalidEmail),
		errors.Is(err, auth.ErrPasswordTooShort),
		errors.Is(err, auth.ErrNameRequired),
		errors.Is(err, auth.ErrInvalidRole):
		return badRequest(c, err.Error())
	case errors.Is(err, auth.ErrEmailAlreadyExists):
		return conflict(c, err.Error())
	case errors.Is(err, auth.ErrInvalidCredentials),
		errors.Is(err, auth.ErrInvalidToken),
		errors.Is(err, auth.ErrSessionNotFound):
		return unauthorized(c)
	default:
		return internalError(c)
	}
}

// POST /auth/register
func (h *AuthHandler) Register(c fiber.Ctx) error {
	var body struct {
		Email     string `json:"email"`
		Password  string `json:"password"`
		FullName  string `json:"full_name"`
		Role      string `json:"role"`
		Specialty string `json:"specialty"`
	}
	if err := c.Bind().JSON(&body); err != nil {
		return badRequest(c, "invalid request body")
	}

	u, err := h.svc.Register(c.Context(), auth.RegisterRequest{
		Email:     body.Email,
		Password:  body.Password,
		FullName:  body.FullName,
		Role:      store.Role(body.Role),
		Specialty: body.Specialty,
	})
	if err != nil {
		return mapAuthError(c, err)
	}
	return created(c, u)
}

// POST /auth/login
func (h *AuthHandler) Login(c fiber.Ctx) error {
	var body struct {
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	if err := c.Bind().JSON(&body); err != nil {
		return badRequest(c, "invalid request body")
	}

	tokens, err := h.svc.Login(c.Context(), auth.LoginRequest{Email: body.Email, Password: body.Password})
	if err != nil {
		return mapAuthError(c, err)
	}
	return ok(c, tokens)
}

// POST /auth/refresh
func (h *AuthHandler) Refresh(c fiber.Ctx) error {
	var body struct {
		RefreshToken string `json:"refresh_token"`
	}
	if err := c.Bind().JSON(&body); err != nil {
		return badRequest(c, "invalid request body")
	}

	tokens, err := h.svc.RefreshTokens(c.Context(), body.RefreshToken)
	if err != nil {
		return mapAuthError(c, err)
	}
	return ok(c, tokens)
}

// POST /auth/logout
func (h *AuthHandler) Logout(c fiber.Ctx) error {
	caller, okc := middleware.CallerFromFiber(c)
	if !okc {
		return unauthorized(c)
	}
	if caller.SessionID == nil {
		return noContent(c)
	}

	if err := h.svc.Logout(c.Context(), *caller.SessionID); err != nil {
		return mapAuthError(c, err)
	}
	return noContent(c)
}
