package api

import (
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/tsanders-rh/modelctl/internal/pricing"
	"github.com/tsanders-rh/modelctl/pkg/types"
)

// PriceHandler exposes the multi-cloud price table
type PriceHandler struct {
	tracker *pricing.Tracker
}

// NewPriceHandler creates a new price handler
func NewPriceHandler(tracker *pricing.Tracker) *PriceHandler {
	return &PriceHandler{tracker: tracker}
}

// PriceTableResponse is the current table, with per-provider quotes when a shape was given
type PriceTableResponse struct {
	RefreshedAt time.Time       `json:"refreshed_at"`
	Prices      pricing.Catalog `json:"prices"`
	Quotes      []types.Quote   `json:"quotes,omitempty"`
}

// Table handles GET /api/v1/prices[?cpu=&memory_gib=&gpu=]
func (h *PriceHandler) Table(c echo.Context) error {
	resp := &PriceTableResponse{
		RefreshedAt: h.tracker.LastRefresh(),
		Prices:      h.tracker.Table(),
	}

	if c.QueryParam("cpu") != "" || c.QueryParam("memory_gib") != "" {
		shape, err := parseShape(c)
		if err != nil {
			return ErrorBadRequest(c, err.Error())
		}
		resp.Quotes = h.tracker.Quotes(shape)
	}

	return SuccessOK(c, resp)
}

// Cheapest handles GET /api/v1/prices/cheapest?cpu=&memory_gib=&gpu=
func (h *PriceHandler) Cheapest(c echo.Context) error {
	shape, err := parseShape(c)
	if err != nil {
		return ErrorBadRequest(c, err.Error())
	}

	quote, err := h.tracker.Cheapest(shape)
	if err != nil {
		return ErrorFrom(c, err)
	}
	return SuccessOK(c, quote)
}

// Refresh handles POST /api/v1/prices/refresh
func (h *PriceHandler) Refresh(c echo.Context) error {
	h.tracker.Refresh()
	return SuccessOK(c, &PriceTableResponse{
		RefreshedAt: h.tracker.LastRefresh(),
		Prices:      h.tracker.Table(),
	})
}

// parseShape reads a resource shape from the query string. cpu and
// memory_gib are required, gpu defaults to zero.
func parseShape(c echo.Context) (types.ResourceShape, error) {
	var shape types.ResourceShape
	var err error

	if shape.CPU, err = parsePositive(c, "cpu"); err != nil {
		return shape, err
	}
	if shape.MemoryGiB, err = parsePositive(c, "memory_gib"); err != nil {
		return shape, err
	}
	if v := c.QueryParam("gpu"); v != "" {
		gpu, err := strconv.ParseFloat(v, 64)
		if err != nil || gpu < 0 {
			return shape, errors.New("gpu must be a non-negative number")
		}
		shape.GPU = gpu
	}
	return shape, nil
}

func parsePositive(c echo.Context, name string) (float64, error) {
	v, err := strconv.ParseFloat(c.QueryParam(name), 64)
	if err != nil || v <= 0 {
		return 0, fmt.Errorf("%s must be a positive number", name)
	}
	return v, nil
}
