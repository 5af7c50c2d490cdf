package httpcontroller

import (
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	"github.com/tphakala/radiotracker/internal/logger"
)

// configureMiddleware sets up middleware for the server.
func (s *Server) configureMiddleware() {
	s.Echo.Use(middleware.Recover())
	s.Echo.Use(middleware.RequestIDWithConfig(middleware.RequestIDConfig{
		Generator: func() string { return uuid.New().String()[:8] },
	}))
	s.Echo.Use(s.LoggingMiddleware())
}

// LoggingMiddleware logs each request and records request metrics under the
// route template, not the raw URL.
func (s *Server) LoggingMiddleware() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()

			err := next(c)
			if err != nil {
				// Let the error handler set the final status before logging.
				c.Error(err)
			}

			req := c.Request()
			res := c.Response()
			elapsed := time.Since(start)

			path := c.Path()
			if path == "" {
				path = "unmatched"
			}
			s.httpMetrics.RecordHTTPRequest(req.Method, path, res.Status, elapsed.Seconds())

			fields := []logger.Field{
				logger.String("request_id", res.Header().Get(echo.HeaderXRequestID)),
				logger.String("method", req.Method),
				logger.String("path", req.URL.Path),
				logger.Int("status", res.Status),
				logger.String("ip", c.RealIP()),
				logger.Int64("latency_ms", elapsed.Milliseconds()),
				logger.Int64("bytes_out", res.Size),
			}

			log := GetLogger()
			switch {
			case res.Status >= 500:
				log.Error("HTTP request", fields...)
			case res.Status >= 400:
				log.Warn("HTTP request", fields...)
			default:
				log.Debug("HTTP request", fields...)
			}

			return nil
		}
	}
}
