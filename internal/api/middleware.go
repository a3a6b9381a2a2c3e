package api

import (
	"context"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/sajilocms/scheduling-engine/internal/schedule"
)

type contextKey string

const (
	requestIDKey contextKey = "request_id"
	actorKey     contextKey = "actor"
)

// RequestIDMiddleware adds a unique request ID to each request context
func RequestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := r.Header.Get("X-Request-ID")
		if requestID == "" {
			requestID = uuid.New().String()
		}

		ctx := context.WithValue(r.Context(), requestIDKey, requestID)
		w.Header().Set("X-Request-ID", requestID)

		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// LoggingMiddleware logs each request with method, path, status, duration
// and request ID.
func LoggingMiddleware(log zerolog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()

			wrapped := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}
			next.ServeHTTP(wrapped, r)

			log.Info().
				Str("method", r.Method).
				Str("path", r.URL.Path).
				Int("status", wrapped.statusCode).
				Dur("duration", time.Since(start)).
				Str("request_id", GetRequestID(r.Context())).
				Msg("request")
		})
	}
}

// ActorMiddleware lifts the already-authenticated caller identity from
// the X-Actor-ID / X-Actor-Role headers into the request context. The
// identity service in front of this engine sets them.
func ActorMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		idStr := r.Header.Get("X-Actor-ID")
		role := r.Header.Get("X-Actor-Role")
		if idStr == "" || role == "" {
			next.ServeHTTP(w, r)
			return
		}

		id, err := uuid.Parse(idStr)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_actor_id", "X-Actor-ID must be a valid UUID")
			return
		}

		actor := schedule.Actor{ID: id, Role: schedule.Role(role)}
		ctx := context.WithValue(r.Context(), actorKey, actor)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// GetRequestID retrieves the request ID from context
func GetRequestID(ctx context.Context) string {
	if id, ok := ctx.Value(requestIDKey).(string); ok {
		return id
	}
	return ""
}

func actorFrom(r *http.Request) (schedule.Actor, bool) {
	actor, ok := r.Context().Value(actorKey).(schedule.Actor)
	return actor, ok
}

// requireActor rejects mutating calls that arrive without caller
// identity. Returns the actor and whether the request may proceed.
func requireActor(w http.ResponseWriter, r *http.Request) (schedule.Actor, bool) {
	actor, ok := actorFrom(r)
	if !ok {
		writeError(w, http.StatusUnauthorized, "missing_actor", "X-Actor-ID and X-Actor-Role headers are required")
		return schedule.Actor{}, false
	}
	return actor, true
}

func requireRole(w http.ResponseWriter, actor schedule.Actor, roles ...schedule.Role) bool {
	for _, role := range roles {
		if actor.Role == role {
			return true
		}
	}
	writeError(w, http.StatusForbidden, "forbidden", "role "+string(actor.Role)+" may not perform this operation")
	return false
}

// responseWriter wraps http.ResponseWriter to capture status code
type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}
