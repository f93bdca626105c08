package handler

import "github.com/gofiber/fiber/v3"

// Success responses wrap the payload in a "data" envelope; error responses
// carry a single "error" message.

func ok(c fiber.Ctx, data any) error {
	return c.JSON(fiber.Map{"data": data})
}

func created(c fiber.Ctx, data any) error {
	return c.Status(fiber.StatusCreated).JSON(fiber.Map{"data": data})
}

func noContent(c fiber.Ctx) error {
	return c.SendStatus(fiber.StatusNoContent)
}

func errorResponse(c fiber.Ctx, status int, msg string) error {
	return c.Status(status).JSON(fiber.Map{"error": msg})
}

func badRequest(c fiber.Ctx, msg string) error {
	return errorResponse(c, fiber.StatusBadRequest, msg)
}

func unauthorized(c fiber.Ctx) error {
	return errorResponse(c, fiber.StatusUnauthorized, "unauthorized")
}

func forbidden(c fiber.Ctx) error {
	return errorResponse(c, fiber.StatusForbidden, "forbidden")
}

func notFound(c fiber.Ctx, msg string) error {
	return errorResponse(c, fiber.StatusNotFound, msg)
}

func conflict(c fiber.Ctx, msg string) error {
	return errorResponse(c, fiber.StatusConflict, msg)
}

func internalError(c fiber.Ctx) error {
	return errorResponse(c, fiber.StatusInternalServerError, "internal server error")
}
