package engine

import (
	"io"
	"log/slog"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"

	"distribution-admin/internal/instrument"
	"distribution-admin/internal/web"
)

type Options struct {
	BodyLimit    int
	Logger       *slog.Logger
	AccessLog    io.Writer // nil disables the access log
	Instrumenter instrument.Instrumenter
}

// NewApp assembles the HTTP surface around h.
func NewApp(h *Handler, opts Options) *fiber.App {
	log := opts.Logger
	if log == nil {
		log = slog.Default()
	}
	inst := opts.Instrumenter
	if inst == nil {
		inst = &instrument.NoopInstrumenter{}
	}

	app := fiber.New(fiber.Config{
		AppName:               "distribution-admin",
		BodyLimit:             opts.BodyLimit,
		ErrorHandler:          ErrorHandler(log),
		DisableStartupMessage: true,
	})
	app.Use(recover.New(recover.Config{
		EnableStackTrace: true,
	}))
	if opts.AccessLog != nil {
		app.Use(logger.New(logger.Config{
			Format: "${time} ${status} ${method} ${path} ${latency}\n",
			Output: opts.AccessLog,
		}))
	}
	app.Use(instrument.Middleware(inst))

	app.Get("/", web.Index)
	RegisterRoutes(app, h)

	app.Use(func(c *fiber.Ctx) error {
		return RouteNotFoundError()
	})
	return app
}

// ErrorHandler is the single place where errors become responses. Errors
// with no client facing meaning are logged and reported as 500.
func ErrorHandler(log *slog.Logger) fiber.ErrorHandler {
	return func(c *fiber.Ctx, err error) error {
		if appErr := toAppError(err); appErr != nil {
			return c.Status(appErr.Status).JSON(appErr)
		}

		log.Error("request failed",
			"method", c.Method(),
			"path", c.Path(),
			"error", err,
			"trace_id", instrument.GetTraceID(c.UserContext()),
		)
		return c.Status(fiber.StatusInternalServerError).JSON(
			NewAppError("INTERNAL_ERROR", fiber.StatusInternalServerError, "Internal server error"))
	}
}
