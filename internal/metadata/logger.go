package metadata

import (
	"sync"

	"github.com/tphakala/radiotracker/internal/logger"
)

var (
	serviceLogger logger.Logger
	loggerOnce    sync.Once
)

// GetLogger returns the metadata module logger
func GetLogger() logger.Logger {
	loggerOnce.Do(func() {
		serviceLogger = logger.Global().Module("metadata")
	})
	return serviceLogger
}
