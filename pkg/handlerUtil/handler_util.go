package handlerUtil

import (
	"FaceBridge/internal/api/facedetector"
	"FaceBridge/pkg/log"
	"FaceBridge/pkg/response"
	"errors"

	"github.com/gofiber/fiber/v2"
	"github.com/sirupsen/logrus"
)

type ErrorHandler struct {
	logger *logrus.Logger
}

func New(logger *logrus.Logger) *ErrorHandler {
	return &ErrorHandler{
		logger: logger,
	}
}

// NewErrorResponse renders err as a reply envelope. Every transport uses it
// so callers see the same error shape over HTTP and the stream.
func NewErrorResponse(err error) facedetector.MethodResponse {
	if errors.Is(err, facedetector.ErrMethodNotImplemented) {
		return facedetector.MethodResponse{NotImplemented: true}
	}

	var respErr *response.Error
	if errors.As(err, &respErr) && respErr.Kind != "" {
		return facedetector.MethodResponse{
			Error: &facedetector.ErrorDetail{
				Code:    respErr.Kind,
				Message: err.Error(),
			},
		}
	}

	return facedetector.MethodResponse{
		Error: &facedetector.ErrorDetail{
			Code:    "InternalError",
			Message: "An unexpected error occurred",
		},
	}
}

// StatusOf is the HTTP status err maps to.
func StatusOf(err error) int {
	return response.CodeOf(err, fiber.StatusInternalServerError)
}

func (h *ErrorHandler) Handle(c *fiber.Ctx, requestID string, err error, path string, operation string) error {
	status := StatusOf(err)
	fields := log.Fields{
		"request_id": requestID,
		"error":      err.Error(),
		"code":       status,
		"path":       path,
		"operation":  operation,
	}

	reply := NewErrorResponse(err)

	switch {
	case errors.Is(err, facedetector.ErrMethodNotImplemented):
		h.logger.WithFields(fields).Info("Method not implemented")
	case status >= fiber.StatusInternalServerError:
		traceID := log.ErrorWithTraceID(h.logger, fields, "Operation failed")
		reply.Error.Details = fiber.Map{"traceId": traceID}
	default:
		h.logger.WithFields(fields).Warn("Operation failed with error response")
	}

	return c.Status(status).JSON(reply)
}

// HandleDropped acknowledges a malformed request without replying to it.
func (h *ErrorHandler) HandleDropped(c *fiber.Ctx, requestID string, err error, path string) error {
	h.logger.WithFields(log.Fields{
		"request_id": requestID,
		"error":      err.Error(),
		"path":       path,
	}).Warn("Dropping malformed request")

	return c.SendStatus(fiber.StatusNoContent)
}

func (h *ErrorHandler) HandleValidationError(c *fiber.Ctx, requestID string, err error, path string) error {
	h.logger.WithFields(log.Fields{
		"request_id": requestID,
		"error":      err.Error(),
		"path":       path,
	}).Warn("Validation failed")

	return c.Status(fiber.StatusBadRequest).JSON(facedetector.MethodResponse{
		Error: &facedetector.ErrorDetail{
			Code:    facedetector.ErrorKind,
			Message: "Validation failed: " + err.Error(),
		},
	})
}

func (h *ErrorHandler) HandleUnauthorized(c *fiber.Ctx, requestID string, message string) error {
	h.logger.WithFields(log.Fields{
		"request_id": requestID,
		"path":       c.Path(),
		"message":    message,
	}).Warn("Unauthorized access")

	return c.Status(fiber.StatusUnauthorized).JSON(facedetector.MethodResponse{
		Error: &facedetector.ErrorDetail{
			Code:    "Unauthorized",
			Message: "access token invalid or expired",
		},
	})
}

func (h *ErrorHandler) HandleSuccess(c *fiber.Ctx, statusCode int, data interface{}) error {
	if data == nil {
		return c.SendStatus(statusCode)
	}
	return c.Status(statusCode).JSON(data)
}
