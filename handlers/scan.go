package handlers

import (
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"
)

type scanRequest struct {
	Identifier string `json:"identifier"`
}

// day returns the requested event day, defaulting to the schedule's
// current day.
func (h *Handler) day(c echo.Context) (int, error) {
	raw := c.QueryParam("day")
	if raw == "" {
		return h.engine.CurrentDay(), nil
	}
	d, err := strconv.Atoi(raw)
	if err != nil || d < 1 {
		return 0, echo.NewHTTPError(http.StatusBadRequest, "invalid day param")
	}
	return d, nil
}

func idParam(c echo.Context, name string) (int, error) {
	id, err := strconv.Atoi(c.Param(name))
	if err != nil || id < 1 {
		return 0, echo.NewHTTPError(http.StatusBadRequest, "invalid "+name+" param")
	}
	return id, nil
}

// Scan checks a scanned or typed identifier in: eligibility lookup,
// then enqueue for the day.
func (h *Handler) Scan(c echo.Context) error {
	var req scanRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if req.Identifier == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "identifier is required")
	}
	day, err := h.day(c)
	if err != nil {
		return err
	}

	entry, err := h.engine.Scan(c.Request().Context(), req.Identifier, day)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusCreated, entry)
}

// Day reports the schedule's current day and total days.
func (h *Handler) Day(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]int{
		"day":       h.engine.CurrentDay(),
		"totalDays": h.engine.TotalDays(),
	})
}
