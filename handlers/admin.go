package handlers

import (
	"fmt"
	"net/http"

	"github.com/labstack/echo/v4"
)

// Destructive overrides use two-step confirmation: the first call arms a
// short window and returns 202; repeating the call inside the window
// executes it.

func armedResponse(c echo.Context, action string) error {
	return c.JSON(http.StatusAccepted, map[string]interface{}{
		"armed":   true,
		"message": "repeat the request within " + confirmWindow.String() + " to confirm " + action,
	})
}

// ForceComplete completes an entry regardless of laps remaining.
func (h *Handler) ForceComplete(c echo.Context) error {
	id, err := idParam(c, "id")
	if err != nil {
		return err
	}
	confirmed := h.arm(fmt.Sprintf("force-complete:%d", id))
	if !confirmed {
		return armedResponse(c, "force-complete")
	}
	entry, err := h.engine.ForceComplete(c.Request().Context(), id, true)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, entry)
}

// ForceRemove hard-deletes an entry and its laps.
func (h *Handler) ForceRemove(c echo.Context) error {
	id, err := idParam(c, "id")
	if err != nil {
		return err
	}
	confirmed := h.arm(fmt.Sprintf("force-remove:%d", id))
	if !confirmed {
		return armedResponse(c, "force-remove")
	}
	if err := h.engine.ForceRemove(c.Request().Context(), id, true); err != nil {
		return httpError(err)
	}
	return c.NoContent(http.StatusNoContent)
}

// ClearQueue hard-deletes the day's waiting entries.
func (h *Handler) ClearQueue(c echo.Context) error {
	day, err := h.day(c)
	if err != nil {
		return err
	}
	confirmed := h.arm(fmt.Sprintf("clear-queue:%d", day))
	if !confirmed {
		return armedResponse(c, "clear-queue")
	}
	n, err := h.engine.ClearQueue(c.Request().Context(), day, true)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, map[string]int{"removed": n})
}

// ResetAll wipes every lap and entry across all days.
func (h *Handler) ResetAll(c echo.Context) error {
	confirmed := h.arm("reset-all")
	if !confirmed {
		return armedResponse(c, "reset-all")
	}
	if err := h.engine.ResetAll(c.Request().Context(), true); err != nil {
		return httpError(err)
	}
	return c.NoContent(http.StatusNoContent)
}
