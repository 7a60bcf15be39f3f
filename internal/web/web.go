// Package web serves the single page admin client.
package web

import (
	"embed"

	"github.com/gofiber/fiber/v2"
)

//go:embed static
var staticFS embed.FS

var indexHTML = mustRead("static/index.html")

func mustRead(name string) []byte {
	data, err := staticFS.ReadFile(name)
	if err != nil {
		panic(err)
	}
	return data
}

// Index handles GET /
func Index(c *fiber.Ctx) error {
	c.Set(fiber.HeaderContentType, fiber.MIMETextHTMLCharsetUTF8)
	return c.Send(indexHTML)
}
