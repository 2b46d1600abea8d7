package middleware

import (
	"bufio"
	"errors"
	"net"
	"net/http"
	"time"
)

type logger interface {
	Info(msg string, args ...any)
}

// accessWriter records what the handler sent back
type accessWriter struct {
	http.ResponseWriter
	status   int
	size     int
	upgraded bool
}

func (w *accessWriter) Write(p []byte) (int, error) {
	size, err := w.ResponseWriter.Write(p)
	w.size += size
	return size, err
}

func (w *accessWriter) WriteHeader(statusCode int) {
	w.ResponseWriter.WriteHeader(statusCode)
	w.status = statusCode
}

// Hijack lets websocket upgrades of payment streams pass through
func (w *accessWriter) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	h, ok := w.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, errors.New("response writer does not support hijacking")
	}
	conn, rw, err := h.Hijack()
	if err == nil {
		w.status = http.StatusSwitchingProtocols
		w.upgraded = true
	}
	return conn, rw, err
}

// LoggerMiddleware writes one access record per request
// Only the path is logged: stream clients pass access tokens in the query string
func LoggerMiddleware(l logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			aw := &accessWriter{ResponseWriter: w, status: http.StatusOK}

			next.ServeHTTP(aw, r)

			l.Info(
				"http request",
				"method", r.Method,
				"path", r.URL.Path,
				"status", aw.status,
				"size", aw.size,
				"upgraded", aw.upgraded,
				"duration", time.Since(start),
			)
		})
	}
}
