package bot

import (
	"fmt"
	"strings"

	"github.com/sirupsen/logrus"
	"github.com/thejerf/suture/v4"
)

//ConfigureLogging sets the global logrus level and formatter
func ConfigureLogging(level, format string) error {
	lvl, err := logrus.ParseLevel(level)
	if err != nil {
		return fmt.Errorf("invalid log level %q: %w", level, err)
	}
	logrus.SetLevel(lvl)
	switch strings.ToLower(format) {
	case "json":
		logrus.SetFormatter(&logrus.JSONFormatter{})
	case "text", "":
		logrus.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	default:
		return fmt.Errorf("unknown log format %q", format)
	}
	return nil
}

//supervisorEventHook forwards suture events to logrus
func supervisorEventHook(e suture.Event) {
	entry := logrus.WithFields(logrus.Fields(e.Map()))
	switch e.Type() {
	case suture.EventTypeServicePanic, suture.EventTypeServiceTerminate:
		entry.Warn(e.String())
	case suture.EventTypeBackoff, suture.EventTypeStopTimeout:
		entry.Error(e.String())
	default:
		entry.Info(e.String())
	}
}
