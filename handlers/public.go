package handlers

import (
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"
)

// Leaderboard returns the day's ranked leaderboard.
func (h *Handler) Leaderboard(c echo.Context) error {
	day, err := h.day(c)
	if err != nil {
		return err
	}
	rows, err := h.engine.Leaderboard(c.Request().Context(), day)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, rows)
}

// Stats returns the day's participation summary.
func (h *Handler) Stats(c echo.Context) error {
	day, err := h.day(c)
	if err != nil {
		return err
	}
	stats, err := h.engine.Stats(c.Request().Context(), day)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, stats)
}

// Active returns the current track occupant, or 204 when the track is
// free.
func (h *Handler) Active(c echo.Context) error {
	day, err := h.day(c)
	if err != nil {
		return err
	}
	session, err := h.engine.Active(c.Request().Context(), day)
	if err != nil {
		return httpError(err)
	}
	if session == nil {
		return c.NoContent(http.StatusNoContent)
	}
	return c.JSON(http.StatusOK, session)
}

// RecentLaps returns the day's latest valid laps for the footer ticker.
func (h *Handler) RecentLaps(c echo.Context) error {
	day, err := h.day(c)
	if err != nil {
		return err
	}
	limit := 10
	if raw := c.QueryParam("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 || n > 100 {
			return echo.NewHTTPError(http.StatusBadRequest, "invalid limit param")
		}
		limit = n
	}
	laps, err := h.engine.RecentLaps(c.Request().Context(), day, limit)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, laps)
}
