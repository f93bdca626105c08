package router

import (
	"github.com/gofiber/fiber/v3"

	"github.com/telecarehq/telecare_backend/internal/api/http/handler"
)

func (r *Router) registerAuthRoutes(api fiber.Router, ah *handler.AuthHandler, authRequired fiber.Handler) {
	group := api.Group("/auth")

	group.Post("/register", ah.Register)
	group.Post("/login", ah.Login)
	group.Post("/refresh", ah.Refresh)
	group.Post("/logout", authRequired, ah.Logout)
}
