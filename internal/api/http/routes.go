package httpapi

import (
	"context"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"

	"github.com/petrovoleh/solar-forecast/internal/forecast"
)

var validate = validator.New()

// Forecaster is the part of forecast.Service the handlers need.
type Forecaster interface {
	GetDailyTotals(ctx context.Context, caller forecast.Caller, ref forecast.DeviceRef, from, to string) ([]forecast.DailyTotal, error)
	GetPeriodTotal(ctx context.Context, caller forecast.Caller, ref forecast.DeviceRef, period string) (forecast.PeriodTotal, error)
	GetForecastSeries(ctx context.Context, caller forecast.Caller, ref forecast.DeviceRef, from, to string) (forecast.Series, error)
}

// RegisterRoutes wires the HTTP handlers into the Fiber app. Every forecast
// route requires a bearer token accepted by verifier.
func RegisterRoutes(app *fiber.App, service Forecaster, verifier CallerVerifier) {
	h := handlers{service: service}
	requireCaller := RequireCaller(verifier)

	v1 := app.Group("/api/v1/forecast", requireCaller)
	v1.Get("/daily", h.daily)
	v1.Get("/period", h.period)
	v1.Get("/series", h.series)

	legacy := app.Group("/api/forecast", requireCaller)
	legacy.Get("/getTotal", h.daily)
	legacy.Get("/getPeriodTotal", h.period)
	legacy.Get("/getForecast", h.series)
	legacy.Post("/getForecast", h.series)
}

type handlers struct {
	service Forecaster
}

func (h handlers) daily(c *fiber.Ctx) error {
	var q windowQuery
	if err := q.bind(c); err != nil {
		return err
	}
	rows, err := h.service.GetDailyTotals(c.UserContext(), CallerFrom(c), q.ref(), q.From, q.To)
	if err != nil {
		return err
	}
	return c.JSON(rows)
}

func (h handlers) period(c *fiber.Ctx) error {
	var q periodQuery
	if err := q.bind(c); err != nil {
		return err
	}
	total, err := h.service.GetPeriodTotal(c.UserContext(), CallerFrom(c), q.ref(), q.Period)
	if err != nil {
		return err
	}
	return c.JSON(total)
}

func (h handlers) series(c *fiber.Ctx) error {
	var q windowQuery
	if err := q.bind(c); err != nil {
		return err
	}
	series, err := h.service.GetForecastSeries(c.UserContext(), CallerFrom(c), q.ref(), q.From, q.To)
	if err != nil {
		return err
	}
	return c.JSON(series)
}

// deviceQuery identifies a panel or cluster. panelId is accepted for older clients.
type deviceQuery struct {
	Type string `validate:"required,oneof=panel cluster single group"`
	ID   string `validate:"required,max=64"`
}

func (q *deviceQuery) bind(c *fiber.Ctx) {
	q.Type = strings.ToLower(strings.TrimSpace(c.Query("type")))
	q.ID = strings.TrimSpace(c.Query("id"))
	if q.ID == "" {
		q.ID = strings.TrimSpace(c.Query("panelId"))
	}
}

func (q deviceQuery) ref() forecast.DeviceRef {
	kind, _ := forecast.ParseDeviceKind(q.Type)
	return forecast.DeviceRef{Kind: kind, ID: q.ID}
}

// windowQuery holds query parameters for the daily and series endpoints.
type windowQuery struct {
	deviceQuery
	From string `validate:"required"`
	To   string `validate:"required"`
}

func (q *windowQuery) bind(c *fiber.Ctx) error {
	q.deviceQuery.bind(c)
	q.From = c.Query("from")
	q.To = c.Query("to")
	return validateQuery(q)
}

type periodQuery struct {
	deviceQuery
	Period string `validate:"required,oneof=day week month"`
}

func (q *periodQuery) bind(c *fiber.Ctx) error {
	q.deviceQuery.bind(c)
	q.Period = strings.ToLower(strings.TrimSpace(c.Query("period")))
	return validateQuery(q)
}

func validateQuery(q any) error {
	err := validate.Struct(q)
	if err == nil {
		return nil
	}
	verrs, ok := err.(validator.ValidationErrors)
	if !ok {
		return forecast.NewError(forecast.KindInvalidRequest, "%v", err)
	}
	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		name := strings.ToLower(fe.Field())
		switch fe.Tag() {
		case "required":
			msgs = append(msgs, name+" is required")
		case "oneof":
			msgs = append(msgs, name+" must be one of: "+fe.Param())
		default:
			msgs = append(msgs, name+" is invalid")
		}
	}
	return forecast.NewError(forecast.KindInvalidRequest, "%s", strings.Join(msgs, "; "))
}
