package utils

import (
	"net/http"
	"os"
	"strings"

	"github.com/sirupsen/logrus"
)

// Log is the process-wide structured logger.
var Log = logrus.New()

func init() {
	Log.SetOutput(os.Stdout)
}

// ConfigureLogger sets level and formatter. JSON output is the default outside development.
func ConfigureLogger(level, format string, development bool) {
	if lvl, err := logrus.ParseLevel(strings.ToLower(strings.TrimSpace(level))); err == nil {
		Log.SetLevel(lvl)
	}
	switch strings.ToLower(format) {
	case "json":
		Log.SetFormatter(&logrus.JSONFormatter{})
	case "text":
		Log.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	default:
		if development {
			Log.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
		} else {
			Log.SetFormatter(&logrus.JSONFormatter{})
		}
	}
}

// RequestLogger returns an entry tagged with the request id and the authenticated user, if any.
func RequestLogger(r *http.Request) *logrus.Entry {
	fields := logrus.Fields{"method": r.Method, "path": r.URL.Path}
	if rid, ok := r.Context().Value(RequestIDKey).(string); ok && rid != "" {
		fields["request_id"] = rid
	}
	if uid, ok := GetUserID(r); ok {
		fields["user_id"] = uid
	}
	return Log.WithFields(fields)
}
