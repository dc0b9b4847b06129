package handlers

import (
	"net/http"

	"github.com/labstack/echo/v4"
)

// Laps returns the entry's full lap history, invalid laps included.
func (h *Handler) Laps(c echo.Context) error {
	id, err := idParam(c, "id")
	if err != nil {
		return err
	}
	laps, err := h.engine.LapsFor(c.Request().Context(), id)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, laps)
}

// InvalidateLap soft-deletes a lap and recomputes the entry's stats.
func (h *Handler) InvalidateLap(c echo.Context) error {
	lapID, err := idParam(c, "lapID")
	if err != nil {
		return err
	}
	lap, err := h.engine.InvalidateLap(c.Request().Context(), lapID)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, lap)
}

type editLapRequest struct {
	LapTimeMs int64 `json:"lapTimeMs"`
}

// EditLapTime overwrites a lap's recorded time.
func (h *Handler) EditLapTime(c echo.Context) error {
	lapID, err := idParam(c, "lapID")
	if err != nil {
		return err
	}
	var req editLapRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	lap, err := h.engine.EditLapTime(c.Request().Context(), lapID, req.LapTimeMs)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, lap)
}

// ResetLastLap invalidates the entry's most recent valid lap.
func (h *Handler) ResetLastLap(c echo.Context) error {
	id, err := idParam(c, "id")
	if err != nil {
		return err
	}
	lap, err := h.engine.ResetLastLap(c.Request().Context(), id)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, lap)
}
