package audit

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"gorm.io/datatypes"

	"github.com/opsinsight/reportcore/pkg/authz"
)

// responseCapture wraps http.ResponseWriter to capture the status code.
type responseCapture struct {
	http.ResponseWriter
	statusCode int
	written    bool
}

func (rc *responseCapture) WriteHeader(code int) {
	if !rc.written {
		rc.statusCode = code
		rc.written = true
	}
	rc.ResponseWriter.WriteHeader(code)
}

func (rc *responseCapture) Write(b []byte) (int, error) {
	if !rc.written {
		rc.statusCode = http.StatusOK
		rc.written = true
	}
	return rc.ResponseWriter.Write(b)
}

// Middleware records an Event for every mutating request once the handler
// has responded. Write failures are logged and never fail the request.
func Middleware(store *Store, cfg *Config, logger *slog.Logger) func(http.Handler) http.Handler {
	if logger == nil {
		logger = slog.Default()
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if cfg == nil || !cfg.Enabled || store == nil || !audited(r.Method, r.URL.Path) {
				next.ServeHTTP(w, r)
				return
			}

			start := time.Now()
			capture := &responseCapture{ResponseWriter: w, statusCode: http.StatusOK}
			next.ServeHTTP(capture, r)

			outcome := outcomeFromStatus(capture.statusCode)
			if outcome == OutcomeDenied && !cfg.LogDenied {
				return
			}

			ctx := r.Context()
			actor, actorID := "anonymous", int64(0)
			var groups []string
			if id, ok := authz.IdentityFromContext(ctx); ok {
				actor, actorID, groups = id.User, id.UserID, id.Groups
			}
			requestID := middleware.GetReqID(ctx)
			t := targetOf(r.Method, r.URL.Path)

			event := &Event{
				ID:           uuid.NewString(),
				Actor:        actor,
				ActorID:      actorID,
				RequestID:    requestID,
				Action:       t.Action,
				ResourceType: t.ResourceType,
				ResourceIDs:  t.ResourceIDs,
				Outcome:      outcome,
				StatusCode:   capture.statusCode,
				CreatedAt:    start,
				Metadata: datatypes.JSONMap{
					"method":   r.Method,
					"path":     r.URL.Path,
					"duration": time.Since(start).String(),
					"groups":   groups,
				},
			}
			if err := store.Append(context.WithoutCancel(ctx), event); err != nil {
				logger.Error("failed to write audit event", "error", err, "requestID", requestID)
			}
		})
	}
}
