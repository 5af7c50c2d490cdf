package httpcontroller

import (
	"sync"

	"github.com/tphakala/radiotracker/internal/logger"
)

var (
	serviceLogger logger.Logger
	loggerOnce    sync.Once
)

// GetLogger returns the http module logger
func GetLogger() logger.Logger {
	loggerOnce.Do(func() {
		serviceLogger = logger.Global().Module("http")
	})
	return serviceLogger
}
