package server

import (
	"fmt"
	"log/slog"
	"math"
	"net/http"
	"time"

	"github.com/google/uuid"
)

// RequestIDHeader carries the request id in both directions.
const RequestIDHeader = "X-Request-Id"

// statusWriter records the status code written by a handler.
type statusWriter struct {
	http.ResponseWriter
	code int
}

func (w *statusWriter) WriteHeader(code int) {
	if w.code == 0 {
		w.code = code
	}

	w.ResponseWriter.WriteHeader(code)
}

func (w *statusWriter) Write(b []byte) (int, error) {
	if w.code == 0 {
		w.code = http.StatusOK
	}

	return w.ResponseWriter.Write(b)
}

// withObservability assigns a request id, logs the request when it finishes
// and counts it by route pattern.
func (s *Server) withObservability(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		id := r.Header.Get(RequestIDHeader)
		if id == "" {
			id = uuid.NewString()
		}

		w.Header().Set(RequestIDHeader, id)

		sw := &statusWriter{ResponseWriter: w}
		next.ServeHTTP(sw, r)

		if sw.code == 0 {
			sw.code = http.StatusOK
		}

		// The mux fills in r.Pattern; unmatched requests have none.
		route := r.Pattern
		if route == "" {
			route = "unmatched"
		}

		if s.metrics != nil {
			s.metrics.RequestDone(route, sw.code)
		}

		level := slog.LevelInfo
		if sw.code >= http.StatusInternalServerError {
			level = slog.LevelError
		}

		s.log.LogAttrs(r.Context(), level, "http request",
			slog.String("request_id", id),
			slog.String("method", r.Method),
			slog.String("path", r.URL.Path),
			slog.Int("status", sw.code),
			slog.Duration("elapsed", time.Since(start)),
		)
	})
}

// withRateLimit rejects requests beyond the configured rate with 429 and a
// Retry-After hint. A nil limiter disables it.
func (s *Server) withRateLimit(next http.Handler) http.Handler {
	if s.limiter == nil {
		return next
	}

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		res := s.limiter.Reserve()

		delay := res.Delay()
		if !res.OK() || delay > 0 {
			res.Cancel()

			retry := int(math.Ceil(delay.Seconds()))
			if retry < 1 {
				retry = 1
			}

			w.Header().Set("Retry-After", fmt.Sprint(retry))
			w.Header().Set("X-RateLimit-Limit", fmt.Sprint(s.limiter.Burst()))
			w.Header().Set("X-RateLimit-Remaining", "0")
			writeErrorCode(w, http.StatusTooManyRequests, CodeRateLimited, ErrRateLimited.Error())

			return
		}

		next.ServeHTTP(w, r)
	})
}
