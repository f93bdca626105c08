package handler

import (
	"errors"

	"github.com/gofiber/fiber/v3"
	"github.com/google/uuid"

	"github.com/telecarehq/telecare_backend/internal/service/directory"
)

type DirectoryHandler struct {
	svc directory.Service
}

func NewDirectoryHandler(svc directory.Service) *DirectoryHandler {
	return &DirectoryHandler{svc: svc}
}

// GET /doctors
func (h *DirectoryHandler) ListDoctors(c fiber.Ctx) error {
	doctors, err := h.svc.ListDoctors(c.Context())
	if err != nil {
		return internalError(c)
	}
	return ok(c, doctors)
}

// GET /doctors/:id
func (h *DirectoryHandler) GetDoctor(c fiber.Ctx) error {
	id, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return badRequest(c, "invalid doctor id")
	}

	d, err := h.svc.GetDoctor(c.Context(), id)
	if err != nil {
		if errors.Is(err, directory.ErrNotFound) {
			return notFound(c, err.Error())
		}
		return internalError(c)
	}
	return ok(c, d)
}
