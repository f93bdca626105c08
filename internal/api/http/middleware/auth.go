package middleware

import (
	"errors"

	"github.com/gofiber/fiber/v3"
	"github.com/redis/go-redis/v9"

	"github.com/telecarehq/telecare_backend/internal/service/identity"
	"github.com/telecarehq/telecare_backend/internal/store"
)

// LocalCaller is the fiber locals key holding the authenticated caller.
const LocalCaller = "auth.caller"

// AuthRequired runs the identity guard against the Authorization header and
// validates the login session in Redis. On success the resolved caller is
// stored in c.Locals(LocalCaller). roles narrows access; empty allows any
// authenticated participant.
func AuthRequired(guard identity.Service, rdb *redis.Client, roles ...store.Role) fiber.Handler {
	return func(c fiber.Ctx) error {
		caller, err := guard.Authenticate(c.Context(), c.Get("Authorization"), roles...)
		if err != nil {
			if errors.Is(err, identity.ErrForbidden) {
				return fiber.ErrForbidden
			}
			return fiber.ErrUnauthorized
		}

		if caller.SessionID != nil && rdb != nil {
			key := "session:" + caller.SessionID.String()
			if err := rdb.Get(c.Context(), key).Err(); err != nil {
				return fiber.ErrUnauthorized
			}
		}

		c.Locals(LocalCaller, caller)
		return c.Next()
	}
}

// CallerFromFiber retrieves the authenticated caller set by AuthRequired.
func CallerFromFiber(c fiber.Ctx) (*identity.Caller, bool) {
	caller, ok := c.Locals(LocalCaller).(*identity.Caller)
	return caller, ok && caller != nil
}
