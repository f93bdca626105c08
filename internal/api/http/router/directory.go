package router

import (
	"github.com/gofiber/fiber/v3"

	"github.com/telecarehq/telecare_backend/internal/api/http/handler"
)

func (r *Router) registerDirectoryRoutes(api fiber.Router, dh *handler.DirectoryHandler, authRequired fiber.Handler) {
	doctors := api.Group("/doctors", authRequired)

	doctors.Get("/", dh.ListDoctors)
	doctors.Get("/:id", dh.GetDoctor)
}
