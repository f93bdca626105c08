package middleware

import (
	"time"

	"github.com/gofiber/fiber/v3"
	"github.com/google/uuid"
)

const (
	HeaderRequestID = "X-Request-Id"
	LocalRequestID  = "request_id"
	LocalRequestMta = "request_meta"
)

// RequestMeta holds per-request metadata captured at the edge.
type RequestMeta struct {
	RequestID   string
	ClientIP    string
	UserAgent   string
	RequestedAt time.Time
}

// RequestID preserves an incoming request id or generates one, echoes it back
// to the client, and captures request metadata for downstream handlers.
func RequestID() fiber.Handler {
	return func(c fiber.Ctx) error {
		rid := c.Get(HeaderRequestID)
		if rid == "" {
			rid = uuid.NewString()
		}

		c.Locals(LocalRequestID, rid)
		c.Set(HeaderRequestID, rid)
		c.Request().Header.Set(HeaderRequestID, rid)

		meta := &RequestMeta{
			RequestID:   rid,
			ClientIP:    c.IP(),
			UserAgent:   c.Get("User-Agent"),
			RequestedAt: time.Now(),
		}
		c.Locals(LocalRequestMta, meta)

		return c.Next()
	}
}

// RequestIDFromFiber retrieves the request id from Fiber locals.
func RequestIDFromFiber(c fiber.Ctx) (string, bool) {
	s, ok := c.Locals(LocalRequestID).(string)
	return s, ok && s != ""
}

// RequestMetaFromFiber retrieves the request metadata from Fiber locals.
func RequestMetaFromFiber(c fiber.Ctx) (*RequestMeta, bool) {
	meta, ok := c.Locals(LocalRequestMta).(*RequestMeta)
	return meta, ok && meta != nil
}
