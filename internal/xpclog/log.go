// Package xpclog configures the one shared logrus logger used across the
// server and client engines and the demo binary.
package xpclog

import (
	"os"
	"sync"

	"github.com/sirupsen/logrus"
)

var setupOnce sync.Once

// Setup configures the shared logrus base logger: JSON-free structured
// text output to stdout, with the level parsed from levelName (falling
// back to info on an empty or unrecognized value). It is safe to call
// more than once: output and formatter are configured on the first call
// only, while the level is set again on every call.
func Setup(levelName string) *logrus.Logger {
	log := logrus.StandardLogger()
	setupOnce.Do(func() {
		log.SetOutput(os.Stdout)
		log.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	})
	level, err := logrus.ParseLevel(levelName)
	if err != nil {
		level = logrus.InfoLevel
	}
	log.SetLevel(level)
	return log
}

// ForRoute returns a logger entry pre-populated with the fields every
// dispatch-path log line carries: the route and the request id.
func ForRoute(log *logrus.Logger, route, requestID string) *logrus.Entry {
	return log.WithFields(logrus.Fields{
		"route":      route,
		"request_id": requestID,
	})
}
