package api

import (
	"context"
	"encoding/json"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/aisu-run/aisu-core/pkg/apperr"
	"github.com/aisu-run/aisu-core/pkg/metrics"
	"github.com/aisu-run/aisu-core/pkg/types"
)

type contextKey int

const userKey contextKey = iota

// userFrom returns the authenticated user placed by the auth middleware
func userFrom(r *http.Request) *types.User {
	user, _ := r.Context().Value(userKey).(*types.User)
	return user
}

// statusRecorder captures the response status for metrics and logging
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

// Flush forwards to the wrapped writer so streaming responses work
// through the middleware chain
func (r *statusRecorder) Flush() {
	if f, ok := r.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

// observe wraps every request with metrics and an access log line
func (s *Server) observe(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		timer := metrics.NewTimer()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}

		next.ServeHTTP(rec, r)

		metrics.APIRequestsTotal.WithLabelValues(r.Method, strconv.Itoa(rec.status)).Inc()
		timer.ObserveDuration(metrics.APIRequestDuration.WithLabelValues(r.Method))

		s.logger.Debug().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", rec.status).
			Dur("duration", timer.Duration()).
			Msg("Request")
	})
}

// authenticated resolves the bearer token and rejects anonymous calls
func (s *Server) authenticated(next func(http.ResponseWriter, *http.Request)) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		header := r.Header.Get("Authorization")
		token, ok := strings.CutPrefix(header, "Bearer ")
		if !ok || token == "" {
			writeError(w, apperr.New(apperr.Unauthorized, "Missing bearer token"))
			return
		}

		user, err := s.auth.Authenticate(token)
		if err != nil {
			writeError(w, err)
			return
		}

		ctx := context.WithValue(r.Context(), userKey, user)
		next(w, r.WithContext(ctx))
	})
}

// clientIP extracts the caller's address, honoring a forwarding proxy
func clientIP(r *http.Request) string {
	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		return strings.TrimSpace(strings.Split(fwd, ",")[0])
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

// rateLimited gates a route by client address using the fixed-window
// limiter. Backend failures surface as 503, never as silent admission.
func (s *Server) rateLimited(route string, limit int, next http.Handler) http.Handler {
	window := time.Duration(s.cfg.RateLimit.WindowSeconds) * time.Second
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		key := route + ":" + clientIP(r)
		if err := s.limiter.Hit(r.Context(), key, limit, window); err != nil {
			if apperr.Is(err, apperr.RateLimited) {
				metrics.RateLimitRejections.WithLabelValues(route).Inc()
			}
			writeError(w, err)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// writeJSON writes a JSON response body
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeError maps a structured error to its status code and a
// {"detail": ...} body. Causes of internal errors never leak.
func writeError(w http.ResponseWriter, err error) {
	kind := apperr.KindOf(err)
	writeJSON(w, apperr.HTTPStatus(kind), map[string]string{"detail": apperr.DetailOf(err)})
}

// decodeJSON decodes a request body, rejecting malformed input
func decodeJSON(r *http.Request, v any) error {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		return apperr.New(apperr.ValidationFailed, "Invalid JSON body")
	}
	return nil
}
