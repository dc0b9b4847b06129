package handlers

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/aarunya/kartapi/models"
	"github.com/aarunya/kartapi/race"
)

type entryDetail struct {
	Entry        *models.RaceEntry `json:"entry"`
	Laps         []models.Lap      `json:"laps"`
	ClockRunning bool              `json:"clockRunning"`
}

// Select returns the entry with its lap history for the operator's
// active-rider panel.
func (h *Handler) Select(c echo.Context) error {
	id, err := idParam(c, "id")
	if err != nil {
		return err
	}
	ctx := c.Request().Context()
	laps, err := h.engine.LapsFor(ctx, id)
	if err != nil {
		return httpError(err)
	}
	entry, err := h.engine.EntryDetail(ctx, id)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, entryDetail{
		Entry:        entry,
		Laps:         laps,
		ClockRunning: h.engine.ClockRunningFor(id),
	})
}

// Start admits the entry to the track and starts the session clock.
func (h *Handler) Start(c echo.Context) error {
	id, err := idParam(c, "id")
	if err != nil {
		return err
	}
	entry, err := h.engine.AdmitToTrack(c.Request().Context(), id)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, entry)
}

type lapResult struct {
	Lap       *models.Lap       `json:"lap"`
	Entry     *models.RaceEntry `json:"entry"`
	LapTime   string            `json:"lapTime"`
	Completed bool              `json:"completed"`
}

// Stop records the lap in progress, recomputing stats and completing
// the entry when the lap quota is met.
func (h *Handler) Stop(c echo.Context) error {
	id, err := idParam(c, "id")
	if err != nil {
		return err
	}
	lap, entry, err := h.engine.RecordLap(c.Request().Context(), id)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, lapResult{
		Lap:       lap,
		Entry:     entry,
		LapTime:   race.FormatMs(&lap.LapTimeMs),
		Completed: entry.RaceStatus == models.StatusCompleted,
	})
}
