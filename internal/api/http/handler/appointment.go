package handler

import (
	"errors"
	"time"

	"github.com/gofiber/fiber/v3"
	"github.com/google/uuid"

	"github.com/telecarehq/telecare_backend/internal/api/http/middleware"
	"github.com/telecarehq/telecare_backend/internal/service/appointment"
	"github.com/telecarehq/telecare_backend/internal/store"
)

type AppointmentHandler struct {
	svc appointment.Service
}

func NewAppointmentHandler(svc appointment.Service) *AppointmentHandler {
	return &AppointmentHandler{svc: svc}
}

func mapAppointmentError(c fiber.Ctx, err error) error {
	switch {
	case errors.Is(err, appointment.ErrNotFound):
		return notFound(c, err.Error())
	case errors.Is(err, appointment.ErrForbidden):
		return forbidden(c)
	case errors.Is(err, appointment.ErrInvalidTransition):
		return conflict(c, err.Error())
	case errors.Is(err, appointment.ErrConflict):
		return conflict(c, err.Error())
	case errors.Is(err, appointment.ErrInvalidArgument):
		return badRequest(c, err.Error())
	default:
		return internalError(c)
	}
}

func actorFromFiber(c fiber.Ctx) (appointment.Actor, bool) {
	caller, ok := middleware.CallerFromFiber(c)
	if !ok {
		return appointment.Actor{}, false
	}
	return appointment.Actor{ParticipantID: caller.ParticipantID, Role: caller.Role}, true
}

// GET /appointments
func (h *AppointmentHandler) List(c fiber.Ctx) error {
	actor, okc := actorFromFiber(c)
	if !okc {
		return unauthorized(c)
	}

	appts, err := h.svc.List(c.Context(), actor)
	if err != nil {
		return mapAppointmentError(c, err)
	}
	return ok(c, appts)
}

// GET /appointments/:id
func (h *AppointmentHandler) GetByID(c fiber.Ctx) error {
	actor, okc := actorFromFiber(c)
	if !okc {
		return unauthorized(c)
	}

	apptID, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return badRequest(c, "invalid appointment id")
	}

	appt, err := h.svc.GetByID(c.Context(), actor, apptID)
	if err != nil {
		return mapAppointmentError(c, err)
	}
	return ok(c, appt)
}

// POST /appointments
func (h *AppointmentHandler) Book(c fiber.Ctx) error {
	actor, okc := actorFromFiber(c)
	if !okc {
		return unauthorized(c)
	}

	var body struct {
		DoctorID    string    `json:"doctor_id"`
		ScheduledAt time.Time `json:"scheduled_at"`
		Modality    string    `json:"modality"`
		Notes       *string   `json:"notes"`
	}
	if err := c.Bind().JSON(&body); err != nil {
		return badRequest(c, "invalid request body")
	}

	doctorID, err := uuid.Parse(body.DoctorID)
	if err != nil {
		return badRequest(c, "invalid doctor_id")
	}

	appt, err := h.svc.Book(c.Context(), actor, appointment.BookRequest{
		DoctorID:    doctorID,
		ScheduledAt: body.ScheduledAt,
		Modality:    store.Modality(body.Modality),
		Notes:       body.Notes,
	})
	if err != nil {
		return mapAppointmentError(c, err)
	}
	return created(c, appt)
}

// PATCH /appointments/:id/status
func (h *AppointmentHandler) Transition(c fiber.Ctx) error {
	actor, okc := actorFromFiber(c)
	if !okc {
		return unauthorized(c)
	}

	apptID, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return badRequest(c, "invalid appointment id")
	}

	var body struct {
		Target      string     `json:"target"`
		ScheduledAt *time.Time `json:"scheduled_at"`
		Modality    *string    `json:"modality"`
	}
	if err := c.Bind().JSON(&body); err != nil {
		return badRequest(c, "invalid request body")
	}
	if body.Target == "" {
		return badRequest(c, "target is required")
	}

	req := appointment.TransitionRequest{
		Target:      store.AppointmentStatus(body.Target),
		ScheduledAt: body.ScheduledAt,
	}
	if body.Modality != nil {
		m := store.Modality(*body.Modality)
		req.Modality = &m
	}

	appt, err := h.svc.Transition(c.Context(), actor, apptID, req)
	if err != nil {
		return mapAppointmentError(c, err)
	}
	return ok(c, appt)
}
