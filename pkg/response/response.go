package response

import (
	"errors"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/QLi007/QLi007-ai-music-platform-v0.1/internal/apperr"
)

// Error codes
const (
	CodeValidationError  = "VALIDATION_ERROR"
	CodeUnauthorized     = "UNAUTHORIZED"
	CodeForbidden        = "FORBIDDEN"
	CodeNotFound         = "NOT_FOUND"
	CodeRateLimited      = "RATE_LIMITED"
	CodeInvalidState     = "INVALID_STATE"
	CodeExternalAPIError = "EXTERNAL_API_ERROR"
	CodeGenerationFailed = "GENERATION_FAILED"
	CodeStorageError     = "STORAGE_ERROR"
	CodeInternalError    = "INTERNAL_ERROR"
)

const internalMessage = "An unexpected error occurred"

type ErrorResponse struct {
	Error ErrorDetail `json:"error"`
}

type ErrorDetail struct {
	Status    int         `json:"status"`
	Code      string      `json:"code"`
	Message   string      `json:"message"`
	Details   interface{} `json:"details,omitempty"`
	Timestamp time.Time   `json:"timestamp"`
	Path      string      `json:"path"`
	Debug     string      `json:"debug,omitempty"`
}

func Error(c *fiber.Ctx, status int, code, message string, details interface{}) error {
	return write(c, ErrorDetail{Status: status, Code: code, Message: message, Details: details})
}

func write(c *fiber.Ctx, detail ErrorDetail) error {
	detail.Timestamp = time.Now().UTC()
	detail.Path = c.Path()
	return c.Status(detail.Status).JSON(ErrorResponse{Error: detail})
}

// FromError maps an application error to its HTTP status and code. With
// debug set, the underlying error text is echoed back.
func FromError(c *fiber.Ctx, err error, debug bool) error {
	var fe *fiber.Error
	if errors.As(err, &fe) {
		return write(c, ErrorDetail{Status: fe.Code, Code: codeForStatus(fe.Code), Message: fe.Message})
	}

	status, code := classify(err)
	detail := ErrorDetail{Status: status, Code: code, Message: apperr.MessageOf(err)}
	switch code {
	case CodeValidationError:
		if fields := apperr.FieldsOf(err); len(fields) > 0 {
			detail.Details = fields
		}
	case CodeInternalError:
		detail.Message = internalMessage
	}

	if debug {
		detail.Debug = err.Error()
	}
	return write(c, detail)
}

// StatusOf returns the HTTP status FromError would answer with
func StatusOf(err error) int {
	status, _ := classify(err)
	return status
}

func classify(err error) (int, string) {
	switch apperr.KindOf(err) {
	case apperr.KindInvalidArgument:
		return fiber.StatusBadRequest, CodeValidationError
	case apperr.KindNotFound:
		return fiber.StatusNotFound, CodeNotFound
	case apperr.KindInvalidState:
		return fiber.StatusConflict, CodeInvalidState
	case apperr.KindExternalAPI:
		return fiber.StatusBadGateway, CodeExternalAPIError
	case apperr.KindGenerationFailed:
		return fiber.StatusInternalServerError, CodeGenerationFailed
	case apperr.KindStorage:
		return fiber.StatusInternalServerError, CodeStorageError
	}
	return fiber.StatusInternalServerError, CodeInternalError
}

func codeForStatus(status int) string {
	switch status {
	case fiber.StatusBadRequest, fiber.StatusRequestEntityTooLarge:
		return CodeValidationError
	case fiber.StatusUnauthorized:
		return CodeUnauthorized
	case fiber.StatusForbidden:
		return CodeForbidden
	case fiber.StatusNotFound, fiber.StatusMethodNotAllowed:
		return CodeNotFound
	case fiber.StatusTooManyRequests:
		return CodeRateLimited
	}
	return CodeInternalError
}

func ValidationError(c *fiber.Ctx, message string, details interface{}) error {
	return Error(c, fiber.StatusBadRequest, CodeValidationError, message, details)
}

func Unauthorized(c *fiber.Ctx, message string) error {
	return Error(c, fiber.StatusUnauthorized, CodeUnauthorized, message, nil)
}

func NotFound(c *fiber.Ctx, message string) error {
	return Error(c, fiber.StatusNotFound, CodeNotFound, message, nil)
}

func RateLimited(c *fiber.Ctx) error {
	return Error(c, fiber.StatusTooManyRequests, CodeRateLimited, "Rate limit exceeded", nil)
}

func OK(c *fiber.Ctx, data interface{}) error {
	return c.JSON(data)
}

func Created(c *fiber.Ctx, data interface{}) error {
	return c.Status(fiber.StatusCreated).JSON(data)
}

func Accepted(c *fiber.Ctx, data interface{}) error {
	return c.Status(fiber.StatusAccepted).JSON(data)
}

func NoContent(c *fiber.Ctx) error {
	return c.SendStatus(fiber.StatusNoContent)
}
