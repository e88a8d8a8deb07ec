package config

import (
	"FaceBridge/internal/api/facedetector"
	"FaceBridge/pkg/utils"
	"errors"
	"time"

	"github.com/gofiber/fiber/v2"
	jsoniter "github.com/json-iterator/go"
	"github.com/sirupsen/logrus"
)

func NewFiber(logger *logrus.Logger) *fiber.App {
	app := fiber.New(
		fiber.Config{
			AppName:           "FaceBridge",
			BodyLimit:         int(utils.EnvFloat("FACE_DETECTOR_BODY_LIMIT_MB", 16) * 1024 * 1024),
			ReadTimeout:       utils.EnvDuration("APP_READ_TIMEOUT", 30*time.Second),
			DisableKeepalive:  false,
			StrictRouting:     false,
			CaseSensitive:     true,
			EnablePrintRoutes: logger.IsLevelEnabled(logrus.DebugLevel),
			JSONEncoder:       jsoniter.Marshal,
			JSONDecoder:       jsoniter.Unmarshal,
			ErrorHandler:      envelopeErrorHandler(logger),
		})

	return app
}

// envelopeErrorHandler renders errors raised by fiber itself, such as
// unknown routes or oversized bodies, in the reply envelope.
func envelopeErrorHandler(logger *logrus.Logger) fiber.ErrorHandler {
	return func(c *fiber.Ctx, err error) error {
		code := fiber.StatusInternalServerError
		message := facedetector.ErrInternalServerError.Error()

		var fiberErr *fiber.Error
		if errors.As(err, &fiberErr) {
			code = fiberErr.Code
			message = fiberErr.Message
		}

		if code >= fiber.StatusInternalServerError {
			logger.WithFields(logrus.Fields{
				"path":  c.Path(),
				"error": err.Error(),
			}).Error("Unhandled error")
		}

		return c.Status(code).JSON(facedetector.MethodResponse{
			Error: &facedetector.ErrorDetail{
				Code:    "HttpError",
				Message: message,
			},
		})
	}
}
