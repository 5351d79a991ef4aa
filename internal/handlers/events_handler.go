package handlers

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"hostel_app/internal/services"
)

// EventsHandler streams change events to browsers as Server-Sent Events
type EventsHandler struct {
	hub       *services.EventHub
	heartbeat time.Duration
	logger    *zap.Logger
}

func NewEventsHandler(hub *services.EventHub, logger *zap.Logger) *EventsHandler {
	return &EventsHandler{hub: hub, heartbeat: 25 * time.Second, logger: logger}
}

// Stream sends every change event, or only those of the resources listed in ?resource=fees,students
func (h *EventsHandler) Stream(c echo.Context) error {
	wanted := map[string]bool{}
	for _, r := range strings.Split(c.QueryParam("resource"), ",") {
		if r = strings.TrimSpace(r); r != "" {
			wanted[r] = true
		}
	}

	events, unsubscribe := h.hub.Subscribe(32)
	defer unsubscribe()

	res := c.Response()
	res.Header().Set(echo.HeaderContentType, "text/event-stream")
	res.Header().Set(echo.HeaderCacheControl, "no-cache")
	res.Header().Set(echo.HeaderConnection, "keep-alive")
	res.Header().Set("X-Accel-Buffering", "no")
	res.WriteHeader(http.StatusOK)

	// Tell the client it is connected so it can refetch once.
	if _, err := fmt.Fprint(res, "event: ready\ndata: {}\n\n"); err != nil {
		return nil
	}
	res.Flush()

	ticker := time.NewTicker(h.heartbeat)
	defer ticker.Stop()

	ctx := c.Request().Context()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if _, err := fmt.Fprint(res, ": ping\n\n"); err != nil {
				return nil
			}
			res.Flush()
		case event, ok := <-events:
			if !ok {
				return nil
			}
			if len(wanted) > 0 && !wanted[event.Resource] {
				continue
			}
			data, err := json.Marshal(event)
			if err != nil {
				h.logger.Warn("Failed to encode change event", zap.Error(err))
				continue
			}
			if _, err := fmt.Fprintf(res, "event: change\ndata: %s\n\n", data); err != nil {
				return nil
			}
			res.Flush()
		}
	}
}
