package http

import (
	"mailagent_server/core/port/in"
	"mailagent_server/pkg/apperr"

	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"
)

// AuthHandler serves the session lifecycle: issue, poll, revoke. The issued
// token is returned once; afterwards the client presents it as a Bearer
// credential.
type AuthHandler struct {
	auth in.AuthService
	log  zerolog.Logger
}

func NewAuthHandler(auth in.AuthService, log zerolog.Logger) *AuthHandler {
	return &AuthHandler{
		auth: auth,
		log:  log.With().Str("component", "auth_handler").Logger(),
	}
}

func (h *AuthHandler) Register(api fiber.Router) {
	api.Post("/auth/session", h.CreateSession)
	api.Get("/auth/session/:id", h.PollSession)
	api.Delete("/auth/session/:id", h.Logout)
}

type createSessionRequest struct {
	UserID string `json:"user_id"`
}

// CreateSession issues a pending session for the given user. The session
// activates on its first poll.
func (h *AuthHandler) CreateSession(c *fiber.Ctx) error {
	var req createSessionRequest
	if err := c.BodyParser(&req); err != nil {
		return apperr.BadRequest("request body must be a JSON object").WithError(err)
	}
	if req.UserID == "" {
		return apperr.MissingField("user_id")
	}

	session, err := h.auth.Authenticate(c.Context(), req.UserID)
	if err != nil {
		return err
	}
	return CreatedResponse(c, session)
}

// PollSession reports the session's user context, activating a pending
// session.
func (h *AuthHandler) PollSession(c *fiber.Ctx) error {
	uc, err := h.auth.PollUserContext(c.Context(), c.Params("id"))
	if err != nil {
		return err
	}
	return SuccessResponse(c, uc)
}

// Logout revokes the session.
func (h *AuthHandler) Logout(c *fiber.Ctx) error {
	sessionID := c.Params("id")
	if err := h.auth.Logout(c.Context(), sessionID); err != nil {
		return err
	}
	return SuccessResponse(c, fiber.Map{"session_id": sessionID, "revoked": true})
}
