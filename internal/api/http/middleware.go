package httpapi

import (
	"errors"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/utils"
	"go.uber.org/zap"

	"github.com/petrovoleh/solar-forecast/internal/auth"
	"github.com/petrovoleh/solar-forecast/internal/forecast"
	"github.com/petrovoleh/solar-forecast/internal/metrics"
)

const callerKey = "caller"

// CallerVerifier turns a bearer token into a caller.
type CallerVerifier interface {
	Verify(token string) (forecast.Caller, error)
}

// RequireCaller rejects requests without a valid bearer token.
func RequireCaller(verifier CallerVerifier) fiber.Handler {
	return func(c *fiber.Ctx) error {
		token, ok := auth.BearerToken(c.Get(fiber.HeaderAuthorization))
		if !ok || verifier == nil {
			return unauthorized(c)
		}
		caller, err := verifier.Verify(token)
		if err != nil {
			return unauthorized(c)
		}
		c.Locals(callerKey, caller)
		return c.Next()
	}
}

func unauthorized(c *fiber.Ctx) error {
	return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "unauthorized"})
}

// CallerFrom returns the caller stored by RequireCaller.
func CallerFrom(c *fiber.Ctx) forecast.Caller {
	caller, _ := c.Locals(callerKey).(forecast.Caller)
	return caller
}

var kindStatus = map[forecast.ErrorKind]int{
	forecast.KindInvalidRequest:      fiber.StatusBadRequest,
	forecast.KindOutOfRangeDate:      fiber.StatusBadRequest,
	forecast.KindInvalidCapacity:     fiber.StatusBadRequest,
	forecast.KindMissingLocation:     fiber.StatusBadRequest,
	forecast.KindForbidden:           fiber.StatusForbidden,
	forecast.KindNotFound:            fiber.StatusNotFound,
	forecast.KindUpstreamUnavailable: fiber.StatusBadGateway,
	forecast.KindUpstreamRejected:    fiber.StatusBadGateway,
	forecast.KindInternal:            fiber.StatusInternalServerError,
}

// StatusFor maps an engine error kind to its HTTP status.
func StatusFor(kind forecast.ErrorKind) int {
	if code, ok := kindStatus[kind]; ok {
		return code
	}
	return fiber.StatusInternalServerError
}

// ErrorHandler is the centralized error response: {"error": kind, "message": text}.
func ErrorHandler(log *zap.Logger) fiber.ErrorHandler {
	return func(c *fiber.Ctx, err error) error {
		var fe *fiber.Error
		if errors.As(err, &fe) {
			return c.Status(fe.Code).JSON(fiber.Map{
				"error":   statusSlug(fe.Code),
				"message": fe.Message,
			})
		}

		var e *forecast.Error
		if !errors.As(err, &e) {
			e = forecast.NewError(forecast.KindInternal, "internal server error").Wrap(err)
		}
		code := StatusFor(e.Kind)
		msg := e.Message
		if code >= fiber.StatusInternalServerError {
			log.Error("request failed",
				zap.String("method", c.Method()),
				zap.String("path", c.Path()),
				zap.String("kind", string(e.Kind)),
				zap.Error(err),
			)
			if e.Kind == forecast.KindInternal {
				msg = "internal server error"
			}
		}
		return c.Status(code).JSON(fiber.Map{
			"error":   e.Kind,
			"message": msg,
		})
	}
}

func statusSlug(code int) string {
	if code == fiber.StatusInternalServerError {
		return string(forecast.KindInternal)
	}
	return strings.ReplaceAll(strings.ToLower(utils.StatusMessage(code)), " ", "_")
}

// Instrument records request counts and latency per matched route.
func Instrument(m *metrics.Metrics) fiber.Handler {
	return func(c *fiber.Ctx) error {
		start := time.Now()
		err := c.Next()

		status := c.Response().StatusCode()
		if err != nil {
			var fe *fiber.Error
			var e *forecast.Error
			switch {
			case errors.As(err, &fe):
				status = fe.Code
			case errors.As(err, &e):
				status = StatusFor(e.Kind)
			default:
				status = fiber.StatusInternalServerError
			}
		}
		m.ObserveHTTP(c.Route().Path, status, time.Since(start))
		return err
	}
}
