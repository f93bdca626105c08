package router

import (
	"github.com/gofiber/fiber/v3"

	"github.com/telecarehq/telecare_backend/internal/api/http/handler"
)

func (r *Router) registerAppointmentRoutes(
	api fiber.Router,
	ah *handler.AppointmentHandler,
	authRequired fiber.Handler,
	patientOnly fiber.Handler,
) {
	appts := api.Group("/appointments")

	appts.Get("/", authRequired, ah.List)
	appts.Post("/", patientOnly, ah.Book)

	a := appts.Group("/:id", authRequired)
	a.Get("/", ah.GetByID)
	a.Patch("/status", ah.Transition)
}
