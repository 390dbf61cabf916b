// Package logger provides structured logging configuration for the reporting
// tool with support for different log levels, formats, and an optional
// size-capped log file.
package logger

import (
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/sirupsen/logrus"
)

const timestampFormat = "2006-01-02T15:04:05.000Z07:00"

// DefaultMaxSizeMB is the log file size cap used when none is configured.
const DefaultMaxSizeMB = 5

// New creates a configured logrus logger. Log records go to stderr so stdout
// stays reserved for operator status output; when filePath is non-empty the
// records are duplicated into a size-capped file. A file that grew past
// maxSizeMB on a previous run is archived by renaming it with a ".1" suffix
// before opening.
func New(level, format, filePath string, maxSizeMB int) *logrus.Logger {
	logger := logrus.New()

	logLevel, err := logrus.ParseLevel(strings.ToLower(level))
	if err != nil {
		logLevel = logrus.InfoLevel
	}
	logger.SetLevel(logLevel)

	switch strings.ToLower(format) {
	case "json":
		logger.SetFormatter(&logrus.JSONFormatter{
			TimestampFormat: timestampFormat,
			FieldMap: logrus.FieldMap{
				logrus.FieldKeyTime:  "timestamp",
				logrus.FieldKeyLevel: "level",
				logrus.FieldKeyMsg:   "message",
			},
		})
	default:
		logger.SetFormatter(&logrus.TextFormatter{
			FullTimestamp:   true,
			TimestampFormat: timestampFormat,
		})
	}

	logger.SetOutput(os.Stderr)

	if filePath == "" {
		return logger
	}

	// Reject paths escaping upward before touching the filesystem.
	cleanPath := filepath.Clean(filePath)
	if strings.Contains(cleanPath, "..") {
		logger.Warn("Invalid log file path containing '..' detected, using stderr only")
		return logger
	}

	if maxSizeMB <= 0 {
		maxSizeMB = DefaultMaxSizeMB
	}

	file, fileErr := openRotated(cleanPath, int64(maxSizeMB)*1024*1024)
	if fileErr != nil {
		logger.WithError(fileErr).Warn("Failed to open log file, using stderr only")
		return logger
	}
	logger.SetOutput(io.MultiWriter(os.Stderr, file))

	return logger
}

// openRotated opens path for appending, first archiving it as "<path>.1" when
// it already exceeds maxBytes. The previous archive, if any, is replaced.
func openRotated(path string, maxBytes int64) (*os.File, error) {
	if info, err := os.Stat(path); err == nil && info.Size() >= maxBytes {
		if renameErr := os.Rename(path, path+".1"); renameErr != nil {
			return nil, renameErr
		}
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
		return nil, err
	}

	// #nosec G304 -- Path is validated and cleaned by the caller.
	return os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o600)
}
