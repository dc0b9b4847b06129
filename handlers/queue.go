package handlers

import (
	"net/http"

	"github.com/labstack/echo/v4"
)

// Queue returns the day's waiting list in FIFO order.
func (h *Handler) Queue(c echo.Context) error {
	day, err := h.day(c)
	if err != nil {
		return err
	}
	items, err := h.engine.Queue(c.Request().Context(), day)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, items)
}

// MarkReady moves a queued entry to ready.
func (h *Handler) MarkReady(c echo.Context) error {
	id, err := idParam(c, "id")
	if err != nil {
		return err
	}
	entry, err := h.engine.MarkReady(c.Request().Context(), id)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, entry)
}

// Cancel withdraws an entry from the queue or the track.
func (h *Handler) Cancel(c echo.Context) error {
	id, err := idParam(c, "id")
	if err != nil {
		return err
	}
	entry, err := h.engine.Cancel(c.Request().Context(), id)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, entry)
}

// Disqualify marks an entry disqualified.
func (h *Handler) Disqualify(c echo.Context) error {
	id, err := idParam(c, "id")
	if err != nil {
		return err
	}
	entry, err := h.engine.Disqualify(c.Request().Context(), id)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, entry)
}
