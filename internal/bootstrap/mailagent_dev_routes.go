package bootstrap

import (
	"mailagent_server/adapter/in/http"
	"mailagent_server/pkg/apperr"

	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"
)

// RegisterDevRoutes mounts operator endpoints under /dev. They bypass the
// session middleware, so the caller gates them on development mode.
func RegisterDevRoutes(app *fiber.App, deps *Dependencies, log zerolog.Logger) {
	devLog := log.With().Str("component", "dev_routes").Logger()

	dev := app.Group("/dev")

	// Pull a user's mailbox from the provider into the local store. The
	// session supplies both the user and the remote credential.
	dev.Post("/ingest", func(c *fiber.Ctx) error {
		var req struct {
			SessionID string `json:"session_id"`
			Query     string `json:"query"`
			MaxEmails int    `json:"max_emails"`
		}
		if err := c.BodyParser(&req); err != nil {
			return apperr.BadRequest("request body must be a JSON object").WithError(err)
		}
		if req.SessionID == "" {
			return apperr.MissingField("session_id")
		}

		uc, err := deps.Sessions.PollUserContext(c.Context(), req.SessionID)
		if err != nil {
			return err
		}
		client, err := deps.Sessions.GetRemoteClient(c.Context(), req.SessionID)
		if err != nil {
			return err
		}

		maxEmails := req.MaxEmails
		if deps.Config.MaxTestEmails > 0 && (maxEmails <= 0 || maxEmails > deps.Config.MaxTestEmails) {
			maxEmails = deps.Config.MaxTestEmails
		}

		devLog.Info().
			Str("user_id", uc.UserID).
			Str("query", req.Query).
			Int("max_emails", maxEmails).
			Msg("manual ingest triggered")

		result, err := deps.Ingester.IngestEmails(c.Context(), client, uc.UserID, req.Query, maxEmails)
		if err != nil {
			return err
		}
		return http.SuccessResponse(c, result)
	})

	// Registered user stores on disk.
	dev.Get("/stores", func(c *fiber.Ctx) error {
		users, err := deps.Registry.List()
		if err != nil {
			return err
		}
		return http.SuccessResponse(c, fiber.Map{
			"users": users,
			"count": len(users),
		})
	})

	dev.Post("/cache/flush", func(c *fiber.Ctx) error {
		if err := deps.Cache.Flush(c.Context()); err != nil {
			return err
		}
		devLog.Info().Msg("cache flushed")
		return http.SuccessResponse(c, fiber.Map{"flushed": true})
	})

	dev.Get("/provider", func(c *fiber.Ctx) error {
		if deps.Gmail == nil {
			return http.SuccessResponse(c, fiber.Map{"configured": false})
		}
		return http.SuccessResponse(c, fiber.Map{
			"configured": true,
			"breaker":    deps.Gmail.BreakerState(),
		})
	})

	devLog.Info().Msg("development routes registered at /dev")
}
