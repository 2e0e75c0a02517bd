package bootstrap

import (
	"strings"
	"time"

	"mailagent_server/adapter/in/http"
	"mailagent_server/config"
	"mailagent_server/infra/middleware"

	"github.com/goccy/go-json"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/compress"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/rs/zerolog"
)

const (
	// Per-user request budget on /api/v1. Tool invocations are cheap; the
	// expensive work happens in jobs, so the window can stay tight.
	apiRateLimit  = 120
	apiRateWindow = time.Minute
)

// NewAPI assembles the Fiber app over an existing dependency graph. The
// graph is shared with the worker runner, so this never owns cleanup.
func NewAPI(cfg *config.Config, deps *Dependencies, log zerolog.Logger) *fiber.App {
	app := fiber.New(fiber.Config{
		ErrorHandler:          middleware.ErrorHandler(log),
		DisableStartupMessage: cfg.IsProduction(),

		// 16KB buffers: tool payloads carry up to 50 email ids plus criteria.
		ReadBufferSize:  16384,
		WriteBufferSize: 16384,

		// go-json is measurably faster than encoding/json for the envelope
		// shapes this API serves.
		JSONEncoder: json.Marshal,
		JSONDecoder: json.Unmarshal,

		BodyLimit:    10 * 1024 * 1024,
		ServerHeader: "",
	})

	// Global middleware stack (order matters).
	app.Use(middleware.Recover(log))
	app.Use(middleware.RequestID())
	app.Use(middleware.SecurityHeaders())
	app.Use(middleware.RequestLogger(log))

	app.Use(compress.New(compress.Config{
		Level: compress.LevelBestSpeed,
	}))

	// CORS. AllowCredentials requires explicit origins; production never
	// runs with a wildcard.
	allowOrigins := strings.Join(cfg.AllowedOrigins, ",")
	allowCredentials := true
	if allowOrigins == "" || allowOrigins == "*" {
		if cfg.IsProduction() {
			allowOrigins = ""
			allowCredentials = false
		} else {
			allowOrigins = "http://localhost:3000,http://localhost:5173"
		}
	}
	app.Use(cors.New(cors.Config{
		AllowOrigins:     allowOrigins,
		AllowMethods:     "GET,POST,DELETE,OPTIONS",
		AllowHeaders:     "Origin,Content-Type,Accept,Authorization,X-Request-ID,X-User-Id",
		ExposeHeaders:    "X-Request-ID,X-RateLimit-Limit,X-RateLimit-Remaining,X-RateLimit-Reset",
		AllowCredentials: allowCredentials,
		MaxAge:           86400,
	}))

	// Health endpoints stay outside the session and rate-limit stack.
	healthHandler := http.NewHealthHandler(deps.Shared, deps.Cache, deps.Stats, deps.Sessions, deps.Queue)
	healthHandler.Register(app)

	if cfg.IsDevelopment() {
		RegisterDevRoutes(app, deps, log)
	}

	// Session context runs before the rate limiter so authenticated traffic
	// is keyed by user rather than by IP.
	api := app.Group("/api/v1")
	api.Use(middleware.SessionContext(cfg.JWTSecret))

	rateLimiter := middleware.NewUserRateLimiter(apiRateLimit, apiRateWindow)
	api.Use(rateLimiter.Handler())

	http.NewAuthHandler(deps.Sessions, log).Register(api)
	http.NewToolHandler(deps.Tools, log).Register(api)

	log.Info().
		Str("component", "bootstrap").
		Int("tools", len(deps.Tools.Definitions())).
		Bool("redis", deps.Redis != nil).
		Bool("gmail", deps.Gmail != nil).
		Msg("api assembled")

	return app
}
