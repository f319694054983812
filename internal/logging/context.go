package logging

import "context"

// Context keys carried through an investigation: trace/span IDs for the
// usual request-correlation case, plus the investigation session ID so a
// StateMachine only has to attach it once instead of threading a
// SessionField through every log call.
type contextKey string

const (
	traceIDKey   contextKey = "trace_id"
	spanIDKey    contextKey = "span_id"
	sessionIDKey contextKey = "session_id"
)

// TraceIDKey returns the context key for trace ID.
// Use this to add a trace ID to a context:
//
//	ctx := context.WithValue(ctx, logging.TraceIDKey(), "trace-123")
func TraceIDKey() interface{} {
	return traceIDKey
}

// SpanIDKey returns the context key for span ID.
// Use this to add a span ID to a context:
//
//	ctx := context.WithValue(ctx, logging.SpanIDKey(), "span-456")
func SpanIDKey() interface{} {
	return spanIDKey
}

// SessionIDKey returns the context key for an investigation session ID.
// StateMachine.Run attaches it once at the start of a run:
//
//	ctx = context.WithValue(ctx, logging.SessionIDKey(), sessionID)
//	logger = logger.WithContext(ctx)
func SessionIDKey() interface{} {
	return sessionIDKey
}

// extractContextFields extracts trace_id, span_id and session_id from
// context if available. Returns nil if context is nil or if none are
// found.
func extractContextFields(ctx context.Context) map[string]interface{} {
	if ctx == nil {
		return nil
	}

	fields := make(map[string]interface{})

	if traceID := ctx.Value(traceIDKey); traceID != nil {
		fields["trace_id"] = traceID
	}

	if spanID := ctx.Value(spanIDKey); spanID != nil {
		fields["span_id"] = spanID
	}

	if sessionID := ctx.Value(sessionIDKey); sessionID != nil {
		fields["session_id"] = sessionID
	}

	if len(fields) == 0 {
		return nil
	}

	return fields
}
