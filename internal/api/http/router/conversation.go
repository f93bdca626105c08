package router

import (
	"github.com/gofiber/fiber/v3"

	"github.com/telecarehq/telecare_backend/internal/api/http/handler"
)

func (r *Router) registerConversationRoutes(api fiber.Router, ch *handler.ConversationHandler, authRequired fiber.Handler) {
	convs := api.Group("/conversations", authRequired)

	convs.Get("/", ch.List)
	convs.Post("/", ch.Ensure)

	c := convs.Group("/:id")
	c.Get("/messages", ch.ListMessages)
	c.Post("/messages", ch.PostMessage)
}
