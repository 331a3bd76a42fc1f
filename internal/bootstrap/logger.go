package bootstrap

import (
	"book_collector/internal/core"
	"book_collector/pkg/logging"
)

// InitLogger initializes the process-wide logger from the settings
func InitLogger(settings *Settings) (core.ILogger, error) {
	level, err := logging.ParseLevel(settings.System.LogLevel)
	if err != nil {
		return nil, err
	}

	logger, err := logging.NewZapLogger(level)
	if err != nil {
		return nil, err
	}

	logging.SetGlobalLogger(logger)
	return logger, nil
}
