// Package logger provides the process-wide structured logger used by the
// buffer pool and disk manager for eviction and file-mapping tracing.
package logger

import (
	"os"

	logger "github.com/sirupsen/logrus"
	prefixed "github.com/x-cray/logrus-prefixed-formatter"
)

// L is the shared logger instance. Components that want a named
// sub-logger should call L.WithField("component", "...") rather than
// constructing their own logrus.Logger.
var L = &logger.Logger{
	Out:   os.Stderr,
	Level: levelFromEnv(),
	Formatter: &prefixed.TextFormatter{
		TimestampFormat: "2006-01-02 15:04:05",
		FullTimestamp:   true,
		ForceFormatting: true,
	},
}

// levelFromEnv reads BPTREEDB_LOG_LEVEL ("debug", "warn", ...), falling
// back to Info for an unset or unparseable value.
func levelFromEnv() logger.Level {
	lvl, err := logger.ParseLevel(os.Getenv("BPTREEDB_LOG_LEVEL"))
	if err != nil {
		return logger.InfoLevel
	}
	return lvl
}
