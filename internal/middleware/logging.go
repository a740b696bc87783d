// internal/middleware/logging.go

package middleware

import (
	"net/http"
	"time"

	"github.com/sirupsen/logrus"
)

// LogMiddleware logs each request's method, path and duration via Logrus.
func LogMiddleware(logger *logrus.Logger) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()

			next.ServeHTTP(w, r)

			logger.WithFields(logrus.Fields{
				"method":   r.Method,
				"path":     r.URL.Path,
				"duration": time.Since(start),
				"remote":   r.RemoteAddr,
			}).Info("HTTP Request")
		})
	}
}

// LogWatchConnect logs a new watch websocket subscription.
func LogWatchConnect(logger *logrus.Logger, remoteAddr, prefix string) {
	logger.WithFields(logrus.Fields{
		"remote": remoteAddr,
		"prefix": prefix,
	}).Info("watch connected")
}

// LogWatchDisconnect logs a watch subscription going away.
func LogWatchDisconnect(logger *logrus.Logger, remoteAddr, prefix string, err error) {
	fields := logrus.Fields{
		"remote": remoteAddr,
		"prefix": prefix,
	}
	if err != nil {
		fields["error"] = err
	}
	logger.WithFields(fields).Info("watch disconnected")
}
