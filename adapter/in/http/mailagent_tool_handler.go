// Package http exposes the agent tool surface over Fiber: tool discovery,
// tool invocation, session issuance and the health endpoints.
package http

import (
	"mailagent_server/core/agent/tools"
	"mailagent_server/infra/middleware"
	"mailagent_server/pkg/apperr"

	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"
)

// ToolHandler serves tool discovery and invocation.
type ToolHandler struct {
	registry *tools.Registry
	log      zerolog.Logger
}

func NewToolHandler(registry *tools.Registry, log zerolog.Logger) *ToolHandler {
	return &ToolHandler{
		registry: registry,
		log:      log.With().Str("component", "tool_handler").Logger(),
	}
}

func (h *ToolHandler) Register(api fiber.Router) {
	api.Get("/tools", h.List)
	api.Post("/tools/:name", h.Invoke)
}

// List returns the schema of every registered tool.
func (h *ToolHandler) List(c *fiber.Ctx) error {
	defs := h.registry.Definitions()
	return SuccessResponse(c, fiber.Map{
		"tools": defs,
		"count": len(defs),
	})
}

// Invoke executes one tool. Domain failures ride inside the returned
// envelope with a 200; only infrastructure errors escape to the error
// handler.
func (h *ToolHandler) Invoke(c *fiber.Ctx) error {
	name := c.Params("name")

	args := map[string]any{}
	if len(c.Body()) > 0 {
		if err := c.BodyParser(&args); err != nil {
			return apperr.BadRequest("request body must be a JSON object").WithError(err)
		}
	}

	uc := middleware.UserContextFrom(c)
	result, err := h.registry.Execute(c.Context(), uc, name, args)
	if err != nil {
		return err
	}

	if !result.Success {
		h.log.Debug().
			Str("tool", name).
			Str("error", result.Error).
			Msg("tool returned failure envelope")
	}
	return c.JSON(result)
}
