// Package logging configures the process-wide logger. Logs go to stderr so
// reports rendered to stdout stay machine-readable.
package logging

import (
	"os"

	"github.com/sirupsen/logrus"
)

// Setup returns a configured logger. Verbose switches to debug level.
func Setup(verbose bool) *logrus.Logger {
	log := logrus.New()
	log.SetOutput(os.Stderr)
	log.SetFormatter(&logrus.TextFormatter{
		FullTimestamp:   true,
		TimestampFormat: "2006-01-02 15:04:05",
	})
	if verbose {
		log.SetLevel(logrus.DebugLevel)
	} else {
		log.SetLevel(logrus.InfoLevel)
	}
	return log
}
