package middleware

import (
	"FaceBridge/pkg/log"
	"fmt"
	"time"

	"github.com/gofiber/fiber/v2"
	jsoniter "github.com/json-iterator/go"
	"github.com/sirupsen/logrus"
)

var sensitiveFields = map[string]struct{}{
	"password":      {},
	"token":         {},
	"secret":        {},
	"key":           {},
	"auth":          {},
	"credential":    {},
	"authorization": {},
}

type loggingMiddleware struct {
	logger *logrus.Logger
}

func newLoggingMiddleware(logger *logrus.Logger) *loggingMiddleware {
	return &loggingMiddleware{
		logger: logger,
	}
}

func (m *middleware) NewLoggingMiddleware() fiber.Handler {
	return m.loggingMiddleware.handle
}

func (l *loggingMiddleware) handle(c *fiber.Ctx) error {
	start := time.Now()

	requestID, ok := c.Locals(RequestIDKey).(string)
	if !ok || requestID == "" {
		requestID = "unknown"
	}

	err := c.Next()

	latency := time.Since(start)
	status := c.Response().StatusCode()

	logFields := log.Fields{
		"request_id":    requestID,
		"method":        c.Method(),
		"path":          c.Path(),
		"status":        status,
		"latency_ms":    latency.Milliseconds(),
		"ip":            c.IP(),
		"user_agent":    c.Get("User-Agent"),
		"response_size": len(c.Response().Body()),
	}

	if body := c.Request().Body(); len(body) > 0 {
		logFields["request_body"] = sanitizeRequestBody(body)
	}

	entry := l.logger.WithFields(logFields)
	switch {
	case status >= 500:
		entry.Error("Server error")
	case status >= 400:
		entry.Warn("Client error")
	default:
		entry.Info("Success")
	}

	return err
}

// sanitizeRequestBody masks credentials and replaces frame payloads with
// their size so that log lines stay small.
func sanitizeRequestBody(body []byte) string {
	var jsonBody interface{}
	if err := jsoniter.Unmarshal(body, &jsonBody); err != nil {
		return "[non-JSON body]"
	}

	sanitized, err := jsoniter.MarshalToString(redact(jsonBody))
	if err != nil {
		return "[sanitization-failed]"
	}

	return sanitized
}

func redact(v interface{}) interface{} {
	switch value := v.(type) {
	case map[string]interface{}:
		for k, inner := range value {
			if _, secret := sensitiveFields[k]; secret {
				value[k] = "[SECRET]"
				continue
			}
			if k == "bytes" {
				if s, ok := inner.(string); ok {
					value[k] = fmt.Sprintf("[frame: %d base64 chars]", len(s))
					continue
				}
			}
			value[k] = redact(inner)
		}
		return value
	case []interface{}:
		for i := range value {
			value[i] = redact(value[i])
		}
		return value
	default:
		return v
	}
}
