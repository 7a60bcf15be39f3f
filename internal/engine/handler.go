package engine

import (
	"bytes"
	"strconv"
	"strings"

	"github.com/gofiber/fiber/v2"

	"distribution-admin/internal/catalog"
)

const SkippedHeader = "X-Import-Skipped"

type Handler struct {
	svc *catalog.Service
}

func NewHandler(svc *catalog.Service) *Handler {
	return &Handler{svc: svc}
}

// Data handles GET /api/data
func (h *Handler) Data(c *fiber.Ctx) error {
	ds, err := h.svc.Data(c.UserContext())
	if err != nil {
		return err
	}
	return c.JSON(ds)
}

// ListPackages handles GET /api/packages
func (h *Handler) ListPackages(c *fiber.Ctx) error {
	ds, err := h.svc.Data(c.UserContext())
	if err != nil {
		return err
	}
	return c.JSON(ds.Packages)
}

// ListDistributions handles GET /api/distributions
func (h *Handler) ListDistributions(c *fiber.Ctx) error {
	ds, err := h.svc.Data(c.UserContext())
	if err != nil {
		return err
	}
	return c.JSON(ds.Distributions)
}

// CreatePackage handles POST /api/packages
func (h *Handler) CreatePackage(c *fiber.Ctx) error {
	raw, err := decodeObject(c)
	if err != nil {
		return err
	}
	p, err := h.svc.SavePackage(c.UserContext(), raw, 0)
	if err != nil {
		return err
	}
	return c.Status(fiber.StatusCreated).JSON(p)
}

// UpdatePackage handles PUT /api/packages/:id and answers with the full
// dataset.
func (h *Handler) UpdatePackage(c *fiber.Ctx) error {
	id, err := pathID(c, "package")
	if err != nil {
		return err
	}
	raw, err := decodeObject(c)
	if err != nil {
		return err
	}
	if _, err := h.svc.SavePackage(c.UserContext(), raw, id); err != nil {
		return err
	}
	return h.Data(c)
}

// CreateDistribution handles POST /api/distributions
func (h *Handler) CreateDistribution(c *fiber.Ctx) error {
	raw, err := decodeObject(c)
	if err != nil {
		return err
	}
	d, err := h.svc.SaveDistribution(c.UserContext(), raw, 0)
	if err != nil {
		return err
	}
	return c.Status(fiber.StatusCreated).JSON(d)
}

// UpdateDistribution handles PUT /api/distributions/:id
func (h *Handler) UpdateDistribution(c *fiber.Ctx) error {
	id, err := pathID(c, "distribution")
	if err != nil {
		return err
	}
	raw, err := decodeObject(c)
	if err != nil {
		return err
	}
	if _, err := h.svc.SaveDistribution(c.UserContext(), raw, id); err != nil {
		return err
	}
	return h.Data(c)
}

// Import handles POST /api/import. The body is either a JSON object with
// packages and distributions lists or the CSV export layout.
func (h *Handler) Import(c *fiber.Ctx) error {
	var batch catalog.Batch
	if strings.HasPrefix(strings.ToLower(c.Get(fiber.HeaderContentType)), "text/csv") {
		b, err := catalog.ParseCSV(bytes.NewReader(c.Body()))
		if err != nil {
			return err
		}
		batch = b
	} else {
		raw, err := decodeObject(c)
		if err != nil {
			return err
		}
		batch = catalog.BatchFromBody(raw)
	}

	res, err := h.svc.Import(c.UserContext(), batch)
	if err != nil {
		return err
	}
	c.Set(SkippedHeader, strconv.Itoa(len(res.Skipped)))
	return h.Data(c)
}

// Export handles GET /api/export?format=json|csv|yaml
func (h *Handler) Export(c *fiber.Ctx) error {
	out, err := h.svc.Export(c.UserContext(), c.Query("format", catalog.FormatJSON))
	if err != nil {
		return err
	}
	if out.Format != catalog.FormatJSON {
		c.Attachment(out.Filename)
	}
	c.Set(fiber.HeaderContentType, out.ContentType)
	return c.Send(out.Data)
}
