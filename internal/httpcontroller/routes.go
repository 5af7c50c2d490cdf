package httpcontroller

import (
	"github.com/labstack/echo/v4"
)

// initRoutes registers every route the server exposes.
func (s *Server) initRoutes() {
	s.Echo.GET("/healthz", s.healthHandler)
	if s.metricsHandler != nil {
		s.Echo.GET("/metrics", echo.WrapHandler(s.metricsHandler))
	}

	api := s.Echo.Group("/api/v1")
	api.GET("/stations", s.listStationsHandler)
	api.GET("/stations/:slug/nowplaying", s.nowPlayingHandler)
	api.GET("/stations/:slug/plays", s.playsHandler)
	api.GET("/events", s.eventsHandler)
}
