package engine

import (
	"bytes"
	"encoding/json"
	"strconv"

	"github.com/gofiber/fiber/v2"
)

// decodeObject parses the request body as a JSON object. An empty body is
// an empty object.
func decodeObject(c *fiber.Ctx) (map[string]any, error) {
	body := bytes.TrimSpace(c.Body())
	if len(body) == 0 {
		return map[string]any{}, nil
	}

	var v any
	if err := json.Unmarshal(body, &v); err != nil {
		return nil, InvalidPayloadError("Invalid JSON body")
	}
	obj, ok := v.(map[string]any)
	if !ok {
		return nil, InvalidPayloadError("Request body must be a JSON object")
	}
	return obj, nil
}

// pathID reads the :id route parameter. Anything but a positive integer
// addresses no record.
func pathID(c *fiber.Ctx, entity string) (int64, error) {
	raw := c.Params("id")
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return 0, NewAppError("NOT_FOUND", fiber.StatusNotFound, entity+" with id "+raw+" not found")
	}
	return id, nil
}
