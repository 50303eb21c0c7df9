package api

import (
	"strconv"

	"github.com/labstack/echo/v4"
	"github.com/tsanders-rh/modelctl/internal/analytics"
)

// AnalyticsHandler serves cost, performance, forecast and suggestion reports
type AnalyticsHandler struct {
	analytics *analytics.Service
}

// NewAnalyticsHandler creates a new analytics handler
func NewAnalyticsHandler(s *analytics.Service) *AnalyticsHandler {
	return &AnalyticsHandler{analytics: s}
}

func parseWindow(c echo.Context) (analytics.Window, error) {
	var w analytics.Window
	var err error
	if w.Start, err = parseTimeParam(c, "start"); err != nil {
		return w, err
	}
	if w.End, err = parseTimeParam(c, "end"); err != nil {
		return w, err
	}
	return w, nil
}

// Cost handles GET /api/v1/analytics/cost?start=&end=
func (h *AnalyticsHandler) Cost(c echo.Context) error {
	w, err := parseWindow(c)
	if err != nil {
		return ErrorBadRequest(c, "Invalid window: "+err.Error())
	}

	report, err := h.analytics.CostAnalysis(c.Request().Context(), w)
	if err != nil {
		return ErrorFrom(c, err)
	}
	return SuccessOK(c, report)
}

// Performance handles GET /api/v1/analytics/performance?start=&end=
func (h *AnalyticsHandler) Performance(c echo.Context) error {
	w, err := parseWindow(c)
	if err != nil {
		return ErrorBadRequest(c, "Invalid window: "+err.Error())
	}

	report, err := h.analytics.PerformanceAnalysis(c.Request().Context(), w)
	if err != nil {
		return ErrorFrom(c, err)
	}
	return SuccessOK(c, report)
}

// Forecast handles GET /api/v1/analytics/forecast?days=&start=&end=
func (h *AnalyticsHandler) Forecast(c echo.Context) error {
	w, err := parseWindow(c)
	if err != nil {
		return ErrorBadRequest(c, "Invalid window: "+err.Error())
	}

	days := analytics.DefaultForecastDays
	if v := c.QueryParam("days"); v != "" {
		if days, err = strconv.Atoi(v); err != nil || days < 1 || days > 365 {
			return ErrorBadRequest(c, "days must be between 1 and 365")
		}
	}

	report, err := h.analytics.UsageForecast(c.Request().Context(), days, w)
	if err != nil {
		return ErrorFrom(c, err)
	}
	return SuccessOK(c, report)
}

// Suggestions handles GET /api/v1/analytics/suggestions
func (h *AnalyticsHandler) Suggestions(c echo.Context) error {
	report, err := h.analytics.Suggestions(c.Request().Context())
	if err != nil {
		return ErrorFrom(c, err)
	}
	return SuccessOK(c, report)
}
