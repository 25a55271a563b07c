package routes

import (
	"io"
	"log/slog"
	"net/http"
	"time"
)

// statusWriter records the status code written by a handler.
type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(status int) {
	w.status = status
	w.ResponseWriter.WriteHeader(status)
}

func (w *statusWriter) Unwrap() http.ResponseWriter {
	return w.ResponseWriter
}

func Logger(out io.Writer) func(http.Handler) http.Handler {
	slogOpts := &slog.HandlerOptions{
		Level:     slog.LevelInfo,
		AddSource: false,
	}
	logger := slog.New(slog.NewTextHandler(out, slogOpts))

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			sw := &statusWriter{ResponseWriter: w, status: http.StatusOK}

			start := time.Now()
			next.ServeHTTP(sw, r)

			took := time.Since(start).String()
			logger.Info("", "latency", took, "method", r.Method, "path", r.URL.Path, "status", sw.status)
		})
	}
}
