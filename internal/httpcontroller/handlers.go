package httpcontroller

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/patrickmn/go-cache"

	"github.com/tphakala/radiotracker/internal/datastore"
	"github.com/tphakala/radiotracker/internal/errors"
	"github.com/tphakala/radiotracker/internal/logger"
)

const (
	defaultPlaysLimit = 50
	healthTimeout     = 2 * time.Second
)

// HealthResponse is returned by /healthz.
type HealthResponse struct {
	Status         string `json:"status"`
	ActiveStations int    `json:"activeStations"`
	SSEClients     int    `json:"sseClients"`
}

// NowPlayingResponse is the latest play of a station. Song and PlayedAt are
// empty when the station has no plays yet.
type NowPlayingResponse struct {
	Station    datastore.Station `json:"station"`
	Song       *datastore.Song   `json:"song"`
	PlayedAt   *time.Time        `json:"playedAt,omitempty"`
	Confidence float64           `json:"confidence,omitempty"`
}

// PlayResponse is one entry of the plays listing.
type PlayResponse struct {
	ID          uint            `json:"id"`
	PlayedAt    time.Time       `json:"playedAt"`
	Confidence  float64         `json:"confidence"`
	Source      string          `json:"source"`
	RawMetadata string          `json:"rawMetadata,omitempty"`
	Song        *datastore.Song `json:"song"`
}

// PlaysResponse is returned by the plays listing.
type PlaysResponse struct {
	Station string         `json:"station"`
	Count   int            `json:"count"`
	Plays   []PlayResponse `json:"plays"`
}

// healthHandler reports liveness and checks the database answers.
// API: GET /healthz
func (s *Server) healthHandler(c echo.Context) error {
	ctx, cancel := context.WithTimeout(c.Request().Context(), healthTimeout)
	defer cancel()

	stations, err := s.DS.ListActiveStations(ctx)
	if err != nil {
		GetLogger().Warn("health check failed", logger.Error(err))
		return c.JSON(http.StatusServiceUnavailable, HealthResponse{Status: "unavailable"})
	}

	resp := HealthResponse{Status: "ok", ActiveStations: len(stations)}
	if s.broadcaster != nil {
		resp.SSEClients = s.broadcaster.ClientCount()
	}
	return c.JSON(http.StatusOK, resp)
}

// listStationsHandler returns every configured station.
// API: GET /api/v1/stations
func (s *Server) listStationsHandler(c echo.Context) error {
	stations, err := s.DS.ListStations(c.Request().Context())
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, stations)
}

// nowPlayingHandler returns the latest play of a station, cached briefly so
// dashboards polling many times a second do not reach the database.
// API: GET /api/v1/stations/:slug/nowplaying
func (s *Server) nowPlayingHandler(c echo.Context) error {
	slug := c.Param("slug")

	if cached, found := s.nowPlaying.Get(slug); found {
		s.httpMetrics.RecordNowPlayingCache(true)
		return c.JSON(http.StatusOK, cached)
	}
	s.httpMetrics.RecordNowPlayingCache(false)

	ctx := c.Request().Context()
	station, err := s.DS.GetStationBySlug(ctx, slug)
	if err != nil {
		return err
	}

	resp := &NowPlayingResponse{Station: *station}
	play, err := s.DS.LatestPlay(ctx, station.ID)
	switch {
	case err == nil:
		resp.Song = play.Song
		playedAt := play.PlayedAt
		resp.PlayedAt = &playedAt
		resp.Confidence = play.Confidence
	case errors.IsNotFound(err):
	default:
		return err
	}

	s.nowPlaying.Set(slug, resp, cache.DefaultExpiration)
	return c.JSON(http.StatusOK, resp)
}

// playsHandler lists a station's most recent plays, newest first.
// API: GET /api/v1/stations/:slug/plays?limit=
func (s *Server) playsHandler(c echo.Context) error {
	limit, err := parseLimit(c.QueryParam("limit"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	ctx := c.Request().Context()
	station, err := s.DS.GetStationBySlug(ctx, c.Param("slug"))
	if err != nil {
		return err
	}

	plays, err := s.DS.RecentPlays(ctx, station.ID, limit)
	if err != nil {
		return err
	}

	resp := PlaysResponse{
		Station: station.Slug,
		Count:   len(plays),
		Plays:   make([]PlayResponse, 0, len(plays)),
	}
	for i := range plays {
		p := &plays[i]
		resp.Plays = append(resp.Plays, PlayResponse{
			ID:          p.ID,
			PlayedAt:    p.PlayedAt,
			Confidence:  p.Confidence,
			Source:      string(p.Source),
			RawMetadata: p.RawMetadata,
			Song:        p.Song,
		})
	}
	return c.JSON(http.StatusOK, resp)
}

func parseLimit(raw string) (int, error) {
	if raw == "" {
		return defaultPlaysLimit, nil
	}
	limit, err := strconv.Atoi(raw)
	if err != nil || limit < 1 {
		return 0, fmt.Errorf("limit must be a positive integer")
	}
	if limit > datastore.MaxRecentPlays {
		limit = datastore.MaxRecentPlays
	}
	return limit, nil
}
