package handlers

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/aarunya/kartapi/notify"
)

const streamHeartbeat = 25 * time.Second

// Stream is the change feed: an SSE stream of coarse invalidation
// events. Query params narrow the subscription: tables (comma list of
// race_entries,laps), day, entry. Clients re-fetch the projection they
// care about on every event; the stream carries no payload to apply.
func (h *Handler) Stream(c echo.Context) error {
	filter := notify.Filter{}
	if raw := c.QueryParam("tables"); raw != "" {
		for _, t := range strings.Split(raw, ",") {
			switch notify.Table(strings.TrimSpace(t)) {
			case notify.TableEntries:
				filter.Tables = append(filter.Tables, notify.TableEntries)
			case notify.TableLaps:
				filter.Tables = append(filter.Tables, notify.TableLaps)
			default:
				return echo.NewHTTPError(http.StatusBadRequest, "unknown table "+t)
			}
		}
	}
	if raw := c.QueryParam("day"); raw != "" {
		d, err := strconv.Atoi(raw)
		if err != nil || d < 1 {
			return echo.NewHTTPError(http.StatusBadRequest, "invalid day param")
		}
		filter.Day = d
	}
	if raw := c.QueryParam("entry"); raw != "" {
		id, err := strconv.Atoi(raw)
		if err != nil || id < 1 {
			return echo.NewHTTPError(http.StatusBadRequest, "invalid entry param")
		}
		filter.EntryID = id
	}

	events, unsubscribe := h.bus.Subscribe(filter)
	defer unsubscribe()

	res := c.Response()
	res.Header().Set(echo.HeaderContentType, "text/event-stream")
	res.Header().Set("Cache-Control", "no-cache")
	res.Header().Set("Connection", "keep-alive")
	res.WriteHeader(http.StatusOK)
	res.Flush()

	ctx := c.Request().Context()
	heartbeat := time.NewTicker(streamHeartbeat)
	defer heartbeat.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-heartbeat.C:
			if _, err := fmt.Fprint(res, ": ping\n\n"); err != nil {
				return nil
			}
			res.Flush()
		case ev, ok := <-events:
			if !ok {
				return nil
			}
			payload, err := json.Marshal(ev)
			if err != nil {
				continue
			}
			if _, err := fmt.Fprintf(res, "event: change\ndata: %s\n\n", payload); err != nil {
				return nil
			}
			res.Flush()
		}
	}
}
