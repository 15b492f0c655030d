// Package logger holds the process-wide structured logger for the
// notification service.
package logger

import (
	"os"

	"github.com/sirupsen/logrus"
)

// Log is shared by the HTTP handlers and middleware. The service and
// realtime layers log through logrus directly with per-call fields.
var Log *logrus.Logger

// InitLogger sets up JSON logging to stdout at info level.
func InitLogger() {
	Log = logrus.New()
	Log.Out = os.Stdout
	Log.SetFormatter(&logrus.JSONFormatter{})
	Log.SetLevel(logrus.InfoLevel)
}
