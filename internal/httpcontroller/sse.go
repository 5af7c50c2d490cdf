package httpcontroller

import (
	"fmt"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/tphakala/radiotracker/internal/logger"
)

// eventsHandler streams now-playing and alert events as Server-Sent Events.
// An optional station query parameter limits the stream to one station.
// API: GET /api/v1/events?station=
func (s *Server) eventsHandler(c echo.Context) error {
	if s.broadcaster == nil {
		return echo.NewHTTPError(http.StatusServiceUnavailable, "event stream disabled")
	}

	station := c.QueryParam("station")
	if station != "" {
		if _, err := s.DS.GetStationBySlug(c.Request().Context(), station); err != nil {
			return err
		}
	}

	res := c.Response()
	res.Header().Set(echo.HeaderContentType, "text/event-stream; charset=utf-8")
	res.Header().Set(echo.HeaderCacheControl, "no-cache")
	res.Header().Set(echo.HeaderConnection, "keep-alive")
	res.Header().Set("X-Accel-Buffering", "no")
	res.WriteHeader(http.StatusOK)
	res.Flush()

	sub := s.broadcaster.Subscribe(station)
	defer sub.Close()

	log := GetLogger().With(
		logger.String("station", station),
		logger.String("ip", c.RealIP()))
	log.Debug("SSE stream opened")

	heartbeat := time.NewTicker(s.heartbeat)
	defer heartbeat.Stop()

	ctx := c.Request().Context()
	for {
		select {
		case <-ctx.Done():
			log.Debug("SSE stream closed by client")
			return nil
		case msg, ok := <-sub.C:
			if !ok {
				log.Debug("SSE stream closed by server")
				return nil
			}
			if _, err := fmt.Fprintf(res, "event: %s\ndata: %s\n\n", msg.Event, msg.Data); err != nil {
				log.Debug("SSE write failed", logger.Error(err))
				return nil
			}
			res.Flush()
		case <-heartbeat.C:
			if _, err := fmt.Fprint(res, ": ping\n\n"); err != nil {
				return nil
			}
			res.Flush()
		}
	}
}
