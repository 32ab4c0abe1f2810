package main

import (
	"os"

	"github.com/sirupsen/logrus"
)

// Logger is shared by every stage of a run.
var Logger = logrus.New()

func init() {
	Logger.SetOutput(os.Stderr)
	Logger.SetLevel(logrus.InfoLevel)
	Logger.SetFormatter(&logrus.TextFormatter{
		FullTimestamp:   true,
		TimestampFormat: "2006-01-02 15:04:05",
	})
}

// SetLogLevel sets the logging level by name.
func SetLogLevel(level string) error {
	lvl, err := logrus.ParseLevel(level)
	if err != nil {
		return err
	}
	Logger.SetLevel(lvl)
	return nil
}

// SetJSONFormat switches the logger to JSON lines.
func SetJSONFormat() {
	Logger.SetFormatter(&logrus.JSONFormatter{
		TimestampFormat: "2006-01-02T15:04:05Z07:00",
	})
}

func withSegment(subsystem, iface, namespace string) *logrus.Entry {
	return Logger.WithFields(logrus.Fields{
		"subsystem": subsystem,
		"interface": iface,
		"namespace": namespace,
	})
}
