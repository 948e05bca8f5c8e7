package audit

import (
	"context"
	"errors"
	"strings"
	"time"

	"zhardem.org/internal/auth"
	"zhardem.org/internal/obs"
)

type ctxKey string

const requestIDKey ctxKey = "audit_request_id"

// WithRequestID attaches the request identifier to the context for audit logging.
func WithRequestID(ctx context.Context, requestID string) context.Context {
	requestID = strings.TrimSpace(requestID)
	if requestID == "" {
		return ctx
	}
	return context.WithValue(ctx, requestIDKey, requestID)
}

func requestIDFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	if v, ok := ctx.Value(requestIDKey).(string); ok {
		return v
	}
	return ""
}

// LogEvent writes an audit log entry enriched with request and principal context.
func LogEvent(ctx context.Context, event string, fields map[string]any) error {
	event = strings.TrimSpace(event)
	if event == "" {
		return errors.New("event name is required")
	}
	ev := obs.Logger().Info().
		Str("type", "audit").
		Str("event", event).
		Time("occurred_at", time.Now().UTC())
	if rid := requestIDFromContext(ctx); rid != "" {
		ev = ev.Str("request_id", rid)
	}
	if principal, ok := auth.PrincipalFromContext(ctx); ok {
		ev = ev.Str("actor_id", principal.ID).Str("actor_role", principal.Role)
	}
	if len(fields) > 0 {
		ev = ev.Fields(fields)
	}
	ev.Msg("audit")
	return nil
}
