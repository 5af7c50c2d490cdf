// Package httpcontroller serves the health, metrics, now-playing and SSE
// endpoints.
package httpcontroller

import (
	"context"
	"io"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/patrickmn/go-cache"

	"github.com/tphakala/radiotracker/internal/conf"
	"github.com/tphakala/radiotracker/internal/datastore"
	"github.com/tphakala/radiotracker/internal/errors"
	"github.com/tphakala/radiotracker/internal/logger"
	"github.com/tphakala/radiotracker/internal/notification"
	"github.com/tphakala/radiotracker/internal/observability/metrics"
)

const (
	// DefaultListen is used when webserver.listen is empty.
	DefaultListen = ":8080"

	// NowPlayingCacheTTL bounds how stale a now-playing response may be.
	NowPlayingCacheTTL = 5 * time.Second

	defaultHeartbeat = 30 * time.Second
)

// Server encapsulates the Echo server and its collaborators.
type Server struct {
	Echo     *echo.Echo
	DS       datastore.Interface
	Settings *conf.Settings

	broadcaster    *notification.Broadcaster
	metricsHandler http.Handler
	httpMetrics    *metrics.HTTPMetrics
	nowPlaying     *cache.Cache
	heartbeat      time.Duration
}

// Option configures a Server.
type Option func(*Server)

// WithBroadcaster enables the SSE endpoint.
func WithBroadcaster(b *notification.Broadcaster) Option {
	return func(s *Server) { s.broadcaster = b }
}

// WithMetrics serves handler on /metrics and records request metrics into m.
func WithMetrics(m *metrics.HTTPMetrics, handler http.Handler) Option {
	return func(s *Server) {
		s.httpMetrics = m
		s.metricsHandler = handler
	}
}

// WithHeartbeat sets the SSE keepalive interval.
func WithHeartbeat(d time.Duration) Option {
	return func(s *Server) {
		if d > 0 {
			s.heartbeat = d
		}
	}
}

// New initializes a new HTTP server with the given settings and datastore.
func New(settings *conf.Settings, ds datastore.Interface, opts ...Option) *Server {
	s := &Server{
		Echo:       echo.New(),
		DS:         ds,
		Settings:   settings,
		nowPlaying: cache.New(NowPlayingCacheTTL, 2*NowPlayingCacheTTL),
		heartbeat:  defaultHeartbeat,
	}
	for _, opt := range opts {
		opt(s)
	}

	s.Echo.HideBanner = true
	s.Echo.HidePort = true
	s.Echo.Logger.SetOutput(io.Discard)
	s.Echo.HTTPErrorHandler = s.errorHandler

	s.configureMiddleware()
	s.initRoutes()
	return s
}

func (s *Server) listenAddr() string {
	if s.Settings != nil && s.Settings.WebServer.Listen != "" {
		return s.Settings.WebServer.Listen
	}
	return DefaultListen
}

// Start listens and serves until Shutdown is called. A clean shutdown
// returns nil.
func (s *Server) Start() error {
	addr := s.listenAddr()
	GetLogger().Info("HTTP server starting", logger.String("listen", addr))

	err := s.Echo.Start(addr)
	if err != nil && !errors.Is(err, http.ErrServerClosed) {
		return errors.New(err).
			Component("httpcontroller").
			Category(errors.CategoryNetwork).
			Context("listen", addr).
			Build()
	}
	return nil
}

// Shutdown stops accepting requests and waits for in-flight ones. Open SSE
// streams end when their subscriptions are closed.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.broadcaster != nil {
		s.broadcaster.Close()
	}
	return s.Echo.Shutdown(ctx)
}

// errorHandler renders errors as JSON and logs server-side failures.
func (s *Server) errorHandler(err error, c echo.Context) {
	if c.Response().Committed {
		return
	}

	code := http.StatusInternalServerError
	message := http.StatusText(code)

	var he *echo.HTTPError
	switch {
	case errors.As(err, &he):
		code = he.Code
		if m, ok := he.Message.(string); ok {
			message = m
		} else {
			message = http.StatusText(code)
		}
	case errors.IsNotFound(err):
		code = http.StatusNotFound
		message = "not found"
	case errors.IsCategory(err, errors.CategoryValidation):
		code = http.StatusBadRequest
		message = err.Error()
	}

	if code >= http.StatusInternalServerError {
		GetLogger().Error("request failed",
			logger.String("method", c.Request().Method),
			logger.String("path", c.Path()),
			logger.Error(err))
	}

	if c.Request().Method == http.MethodHead {
		_ = c.NoContent(code)
		return
	}
	_ = c.JSON(code, map[string]string{"error": message})
}
