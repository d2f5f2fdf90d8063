package bootstrap

import (
	"os"
	"strings"

	"github.com/goccy/go-json"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/compress"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/rs/zerolog"

	"mailflow/adapter/in/http"
	"mailflow/config"
	"mailflow/infra/middleware"
	"mailflow/pkg/logger"
)

// NewAPI builds the fiber app over an already-wired dependency graph.
func NewAPI(cfg *config.Config, deps *Dependencies) *fiber.App {
	app := fiber.New(fiber.Config{
		ErrorHandler:          middleware.ErrorHandler(),
		DisableStartupMessage: cfg.IsProduction(),
		ReadBufferSize:        16384,
		WriteBufferSize:       16384,

		// go-json over encoding/json
		JSONEncoder: json.Marshal,
		JSONDecoder: json.Unmarshal,

		BodyLimit:         10 * 1024 * 1024,
		StreamRequestBody: true,
	})

	// Global middleware stack (order matters)
	app.Use(middleware.Recover())
	app.Use(middleware.RequestID())
	app.Use(middleware.SecurityHeaders())
	app.Use(middleware.RequestLogger())
	app.Use(compress.New(compress.Config{
		Level: compress.LevelBestSpeed,
	}))

	allowOrigins := strings.Join(cfg.AllowedOrigins, ",")
	app.Use(cors.New(cors.Config{
		AllowOrigins: allowOrigins,
		AllowMethods: "GET,POST,PATCH,OPTIONS",
		AllowHeaders: "Origin,Content-Type,Accept,X-Request-ID",
	}))

	log := logger.Default()
	zlog := zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout}).
		With().Timestamp().Logger()

	// Health check (outside /api)
	http.NewHealthHandler(deps.DB, deps.Mailbox).Register(app)

	api := app.Group("/api")
	http.NewEmailHandler(deps.EmailService, deps.Dispatcher, log).Register(api)
	http.NewSyncHandler(deps.SyncService, log).Register(api)
	http.NewListenerHandler(deps.Registry, log).Register(api)
	http.NewSSEHandler(deps.RealtimeAdapter, zlog).Register(api)

	return app
}
