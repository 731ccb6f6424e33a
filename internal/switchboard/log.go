package switchboard

import (
	"io"
	"os"

	"github.com/sirupsen/logrus"
)

// Logger is the package-wide logger, matching the teacher pack's
// aldrin-isaac-newtron convention of a single package-level *logrus.Logger
// configured once at process start and threaded through via helpers rather
// than a context value.
var Logger = logrus.New()

func init() {
	Logger.SetOutput(os.Stderr)
	Logger.SetLevel(logrus.InfoLevel)
	Logger.SetFormatter(&logrus.TextFormatter{
		FullTimestamp:   true,
		TimestampFormat: "2006-01-02 15:04:05",
	})
}

// SetLogLevel parses and applies a logrus level name.
func SetLogLevel(level string) error {
	lvl, err := logrus.ParseLevel(level)
	if err != nil {
		return err
	}
	Logger.SetLevel(lvl)
	return nil
}

// SetLogOutput redirects log output.
func SetLogOutput(w io.Writer) { Logger.SetOutput(w) }

// SetJSONFormat switches the logger to JSON output.
func SetJSONFormat() {
	Logger.SetFormatter(&logrus.JSONFormatter{
		TimestampFormat: "2006-01-02T15:04:05Z07:00",
	})
}

// logFunc is the minimal logging seam used by the parts of this package
// (auth parsing, permission evaluation) that run before a connection has
// enough context for a *logrus.Entry of its own. level is one of logrus's
// level names ("debug", "info", "warn", "error").
type logFunc func(level, format string, args ...interface{})

// defaultLogf adapts the package Logger to logFunc.
func defaultLogf(level, format string, args ...interface{}) {
	entry := Logger.WithField("component", "auth")
	switch level {
	case "debug":
		entry.Debugf(format, args...)
	case "warn":
		entry.Warnf(format, args...)
	case "error":
		entry.Errorf(format, args...)
	default:
		entry.Infof(format, args...)
	}
}
