package engine

import "github.com/gofiber/fiber/v2"

func RegisterRoutes(app *fiber.App, h *Handler) {
	app.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"status": "ok"})
	})

	api := app.Group("/api")

	api.Get("/data", h.Data)
	api.Get("/packages", h.ListPackages)
	api.Post("/packages", h.CreatePackage)
	api.Put("/packages/:id", h.UpdatePackage)
	api.Get("/distributions", h.ListDistributions)
	api.Post("/distributions", h.CreateDistribution)
	api.Put("/distributions/:id", h.UpdateDistribution)
	api.Post("/import", h.Import)
	api.Get("/export", h.Export)
}
