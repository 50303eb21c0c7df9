package api

import (
	"strconv"

	"github.com/labstack/echo/v4"
	"github.com/tsanders-rh/modelctl/internal/events"
)

const defaultEventLimit = 100

// EventHandler serves recent lifecycle events from the in-process buffer
type EventHandler struct {
	buffer *events.Memory
}

// NewEventHandler creates a new event handler
func NewEventHandler(buffer *events.Memory) *EventHandler {
	return &EventHandler{buffer: buffer}
}

// List handles GET /api/v1/events?type=&limit=
func (h *EventHandler) List(c echo.Context) error {
	if h.buffer == nil {
		return ErrorServiceUnavailable(c, "Event buffer is not enabled")
	}

	limit := defaultEventLimit
	if v := c.QueryParam("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			return ErrorBadRequest(c, "limit must be a positive integer")
		}
		limit = n
	}

	return SuccessOK(c, h.buffer.Recent(limit, events.Type(c.QueryParam("type"))))
}
