package middleware

import (
	"strings"
	"time"

	"github.com/backoffice/server/pkg/logger"
	"github.com/gofiber/fiber/v2"
)

// RequestIDHeader carries the correlation ID in and out of the API.
const RequestIDHeader = "X-Request-ID"

const maxRequestIDLength = 64

// RequestLogger tags every request with an ID, reusing a caller's
// X-Request-ID when it looks sane, and logs one line per request. Client
// errors log at warn, server errors at error.
func RequestLogger() fiber.Handler {
	return func(c *fiber.Ctx) error {
		start := time.Now()
		requestID := strings.TrimSpace(c.Get(RequestIDHeader))
		if requestID == "" || len(requestID) > maxRequestIDLength {
			requestID = logger.GenerateRequestID()
		}
		c.Locals("requestID", requestID)
		c.Set(RequestIDHeader, requestID)

		err := c.Next()

		status := c.Response().StatusCode()
		if err != nil {
			if fe, ok := err.(*fiber.Error); ok {
				status = fe.Code
			} else if status < fiber.StatusBadRequest {
				status = fiber.StatusInternalServerError
			}
		}

		details := map[string]interface{}{
			"method":      c.Method(),
			"path":        c.Path(),
			"status_code": status,
			"latency_ms":  time.Since(start).Milliseconds(),
			"ip":          c.IP(),
			"user_agent":  c.Get(fiber.HeaderUserAgent),
			"request":     logger.GetRequestBodySummary(c),
			"response":    logger.GetResponseSizeSummary(c),
			"request_id":  requestID,
		}
		userID := logger.GetUserIDFromContext(c)

		switch {
		case status >= fiber.StatusInternalServerError:
			if userID != nil {
				logger.ErrorWithUser(*userID, "http_request", err, details)
			} else {
				logger.Error("http_request", err, details)
			}
		case status >= fiber.StatusBadRequest:
			if userID != nil {
				logger.WarnWithUser(*userID, "http_request", details)
			} else {
				logger.Warn("http_request", details)
			}
		default:
			if userID != nil {
				logger.InfoWithUser(*userID, "http_request", details)
			} else {
				logger.Info("http_request", details)
			}
		}
		return err
	}
}

type securitySignal struct {
	action string
	reason string
}

// securitySignalFor picks the responses worth a dedicated security line:
// rejected second factors, throttled code requests and access denials.
func securitySignalFor(status int, path string) (securitySignal, bool) {
	switch {
	case status == fiber.StatusUnauthorized && strings.HasPrefix(path, "/api/2fa"):
		return securitySignal{action: "twofactor_rejected", reason: "second_factor_rejected"}, true
	case status == fiber.StatusTooManyRequests:
		return securitySignal{action: "twofactor_throttled", reason: "code_requests_exhausted"}, true
	case status == fiber.StatusForbidden:
		return securitySignal{action: "access_denied", reason: "insufficient_role"}, true
	}
	return securitySignal{}, false
}

func SecurityLogger() fiber.Handler {
	return func(c *fiber.Ctx) error {
		err := c.Next()

		signal, ok := securitySignalFor(c.Response().StatusCode(), c.Path())
		if !ok {
			return err
		}
		requestID, _ := c.Locals("requestID").(string)
		details := map[string]interface{}{
			"method":     c.Method(),
			"path":       c.Path(),
			"ip":         c.IP(),
			"reason":     signal.reason,
			"request_id": requestID,
		}
		if userID := logger.GetUserIDFromContext(c); userID != nil {
			logger.WarnWithUser(*userID, signal.action, details)
		} else {
			logger.Warn(signal.action+"_unauthenticated", details)
		}
		return err
	}
}
