package handler

import (
	"errors"

	"github.com/gofiber/fiber/v3"
	"github.com/google/uuid"

	"github.com/telecarehq/telecare_backend/internal/api/http/middleware"
	"github.com/telecarehq/telecare_backend/internal/service/conversation"
)

type ConversationHandler struct {
	svc conversation.Service
}

func NewConversationHandler(svc conversation.Service) *ConversationHandler {
	return &ConversationHandler{svc: svc}
}

func mapConversationError(c fiber.Ctx, err error) error {
	switch {
	case errors.Is(err, conversation.ErrNotFound):
		return notFound(c, err.Error())
	case errors.Is(err, conversation.ErrForbidden):
		return forbidden(c)
	case errors.Is(err, conversation.ErrEmptyContent):
		return badRequest(c, err.Error())
	case errors.Is(err, conversation.ErrNotUnlocked):
		return conflict(c, err.Error())
	default:
		return internalError(c)
	}
}

func conversationCaller(c fiber.Ctx) (conversation.Caller, bool) {
	caller, okc := middleware.CallerFromFiber(c)
	if !okc {
		return conversation.Caller{}, false
	}
	return conversation.Caller{
		UserID:        caller.UserID,
		ParticipantID: caller.ParticipantID,
		Role:          caller.Role,
	}, true
}

// GET /conversations
func (h *ConversationHandler) List(c fiber.Ctx) error {
	caller, okc := conversationCaller(c)
	if !okc {
		return unauthorized(c)
	}

	convs, err := h.svc.List(c.Context(), caller)
	if err != nil {
		return mapConversationError(c, err)
	}
	return ok(c, convs)
}

// POST /conversations — manual "start chat" with a counterpart.
func (h *ConversationHandler) Ensure(c fiber.Ctx) error {
	caller, okc := conversationCaller(c)
	if !okc {
		return unauthorized(c)
	}

	var body struct {
		CounterpartID string `json:"counterpart_id"`
	}
	if err := c.Bind().JSON(&body); err != nil {
		return badRequest(c, "invalid request body")
	}
	counterpartID, err := uuid.Parse(body.CounterpartID)
	if err != nil {
		return badRequest(c, "invalid counterpart_id")
	}

	conv, err := h.svc.Ensure(c.Context(), caller, counterpartID)
	if err != nil {
		return mapConversationError(c, err)
	}
	return ok(c, conv)
}

// GET /conversations/:id/messages
func (h *ConversationHandler) ListMessages(c fiber.Ctx) error {
	caller, okc := conversationCaller(c)
	if !okc {
		return unauthorized(c)
	}

	convID, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return badRequest(c, "invalid conversation id")
	}

	msgs, err := h.svc.ListMessages(c.Context(), caller, convID)
	if err != nil {
		return mapConversationError(c, err)
	}
	return ok(c, msgs)
}

// POST /conversations/:id/messages
func (h *ConversationHandler) PostMessage(c fiber.Ctx) error {
	caller, okc := conversationCaller(c)
	if !okc {
		return unauthorized(c)
	}

	convID, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return badRequest(c, "invalid conversation id")
	}

	var body struct {
		Content string `json:"content"`
	}
	if err := c.Bind().JSON(&body); err != nil {
		return badRequest(c, "invalid request body")
	}

	msg, err := h.svc.PostMessage(c.Context(), caller, convID, body.Content)
	if err != nil {
		return mapConversationError(c, err)
	}
	return created(c, msg)
}
