// Package logger sets up logrus for the daemon and carries per-request
// loggers through HTTP handlers.
package logger

import (
	"context"
	"fmt"
	"io"
	"net/http"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"
)

const requestIDKey = "request_id"

type contextKeyType struct{}

var contextKey = &contextKeyType{}

// New creates a logger writing to out. format is "text" or "json".
func New(level, format string, out io.Writer) (*logrus.Logger, error) {
	lvl, err := logrus.ParseLevel(level)
	if err != nil {
		return nil, fmt.Errorf("log level: %w", err)
	}

	log := logrus.New()
	log.SetOutput(out)
	log.SetLevel(lvl)

	switch format {
	case "", "text":
		log.SetFormatter(&logrus.TextFormatter{
			FullTimestamp:   true,
			TimestampFormat: "2006-01-02 15:04:05",
		})
	case "json":
		log.SetFormatter(&logrus.JSONFormatter{})
	default:
		return nil, fmt.Errorf("unknown log format %q", format)
	}
	return log, nil
}

// AddRequestID attaches a logger with a fresh request id to every request
// routed by router.
func AddRequestID(router *mux.Router, base logrus.FieldLogger) {
	router.Use(func(h http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			rlog := base.WithField(requestIDKey, uuid.NewString())
			h.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), contextKey, rlog)))
		})
	})
}

// FromContext returns the request logger, or fallback if there is none.
func FromContext(ctx context.Context, fallback logrus.FieldLogger) logrus.FieldLogger {
	if rlog, ok := ctx.Value(contextKey).(logrus.FieldLogger); ok {
		return rlog
	}
	return fallback
}
