package bootstrap

import (
	"github.com/ArchieOS-org/Dispatch-sub000/adapter/in/http"
	"github.com/ArchieOS-org/Dispatch-sub000/infra/middleware"

	"github.com/goccy/go-json"
	"github.com/gofiber/fiber/v2"
)

// NewAPI builds the control API around the engine in d.
func NewAPI(d *Dependencies) *fiber.App {
	log := d.Log.With().Str("component", "api").Logger()

	app := fiber.New(fiber.Config{
		ErrorHandler:          middleware.ErrorHandler(log),
		DisableStartupMessage: true,

		ReadBufferSize:  16384,
		WriteBufferSize: 16384,

		JSONEncoder: json.Marshal,
		JSONDecoder: json.Unmarshal,

		BodyLimit:          1 * 1024 * 1024,
		ServerHeader:       "",
		DisableDefaultDate: true,
	})

	// Global middleware stack (order matters)
	app.Use(middleware.Recover(log))
	app.Use(middleware.RequestID())
	app.Use(middleware.RequestLogger(log))

	health := http.NewHealthHandlerWithDeps(d.LocalDB, d.RemoteDB, d.Redis)
	health.Register(app)

	api := app.Group("/api/v1")
	http.NewSyncHandler(d.Manager).Register(api)

	app.Use(func(c *fiber.Ctx) error {
		return http.ErrorResponseWithCode(c, fiber.StatusNotFound, "NOT_FOUND", "route not found")
	})
	return app
}
