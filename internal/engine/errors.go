package engine

import (
	"errors"
	"fmt"

	"github.com/gofiber/fiber/v2"
	"github.com/jackc/pgx/v5/pgconn"

	"distribution-admin/internal/catalog"
	"distribution-admin/internal/repository"
	"distribution-admin/internal/store"
	"distribution-admin/internal/validate"
)

// AppError is an error with a known HTTP status. It encodes as the error
// body sent to clients.
type AppError struct {
	Status  int    `json:"-"`
	Message string `json:"error"`
	Code    string `json:"code"`
	Field   string `json:"field,omitempty"`
}

func (e *AppError) Error() string {
	return e.Message
}

func NewAppError(code string, status int, msg string) *AppError {
	return &AppError{Code: code, Status: status, Message: msg}
}

func NotFoundError(entity string, id int64) *AppError {
	return &AppError{
		Code:    "NOT_FOUND",
		Status:  fiber.StatusNotFound,
		Message: fmt.Sprintf("%s with id %d not found", entity, id),
	}
}

func RouteNotFoundError() *AppError {
	return NewAppError("NOT_FOUND", fiber.StatusNotFound, "Not found")
}

func InvalidPayloadError(msg string) *AppError {
	return NewAppError("INVALID_PAYLOAD", fiber.StatusBadRequest, msg)
}

func ValidationError(ve *validate.Error) *AppError {
	return &AppError{
		Code:    "VALIDATION_FAILED",
		Status:  fiber.StatusBadRequest,
		Message: ve.Message,
		Field:   ve.Field,
	}
}

func ConflictError(msg string) *AppError {
	return NewAppError("CONFLICT", fiber.StatusConflict, msg)
}

// toAppError classifies err. It returns nil for errors that have no client
// facing meaning.
func toAppError(err error) *AppError {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr
	}

	// A rejected import is a bad request whatever the record's problem was.
	var importErr *catalog.ImportError
	if errors.As(err, &importErr) {
		return NewAppError("IMPORT_REJECTED", fiber.StatusBadRequest, importErr.Error())
	}

	var ve *validate.Error
	if errors.As(err, &ve) {
		return ValidationError(ve)
	}

	var dup *repository.DuplicateNameError
	if errors.As(err, &dup) {
		return ConflictError(dup.Error())
	}

	var unknownGroup *repository.UnknownGroupError
	if errors.As(err, &unknownGroup) {
		return NewAppError("UNKNOWN_DISTRIBUTION_GROUP", fiber.StatusBadRequest, unknownGroup.Error())
	}

	var nf *repository.NotFoundError
	if errors.As(err, &nf) {
		return NotFoundError(nf.Entity, nf.ID)
	}

	var uf *catalog.UnknownFormatError
	if errors.As(err, &uf) {
		return NewAppError("INVALID_FORMAT", fiber.StatusBadRequest, uf.Error())
	}

	if errors.Is(err, catalog.ErrMalformedCSV) {
		return InvalidPayloadError(err.Error())
	}

	if errors.Is(err, store.ErrUniqueViolation) {
		msg := "A record with this value already exists"
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Detail != "" {
			msg = pgErr.Detail
		}
		return ConflictError(msg)
	}

	var fiberErr *fiber.Error
	if errors.As(err, &fiberErr) {
		switch {
		case fiberErr.Code == fiber.StatusNotFound:
			return RouteNotFoundError()
		case fiberErr.Code == fiber.StatusMethodNotAllowed:
			return NewAppError("METHOD_NOT_ALLOWED", fiberErr.Code, fiberErr.Message)
		case fiberErr.Code == fiber.StatusRequestEntityTooLarge:
			return InvalidPayloadError("Payload too large")
		case fiberErr.Code < fiber.StatusInternalServerError:
			return NewAppError("BAD_REQUEST", fiberErr.Code, fiberErr.Message)
		}
	}
	return nil
}
