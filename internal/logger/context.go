package logger

import (
	"context"
	"time"
)

type contextKey struct{}

var logContextKey = contextKey{}

// LogContext holds the fields of one device session that every log line
// emitted on its behalf should carry.
type LogContext struct {
	TraceID   string // OpenTelemetry trace ID
	SpanID    string // OpenTelemetry span ID
	Host      string // Instrument host
	Device    string // Device name ("instr0", "gpib0,5", ...)
	Operation string // Current session operation (device_write, ...)
	LinkID    int32  // Server-assigned link id, valid when HasLink
	HasLink   bool
	ClientID  int32 // Locally chosen client id
	StartTime time.Time
}

// WithContext returns a new context carrying lc.
func WithContext(ctx context.Context, lc *LogContext) context.Context {
	return context.WithValue(ctx, logContextKey, lc)
}

// FromContext retrieves the LogContext from ctx, or nil if not present.
func FromContext(ctx context.Context) *LogContext {
	if ctx == nil {
		return nil
	}
	lc, _ := ctx.Value(logContextKey).(*LogContext)
	return lc
}

// NewLogContext creates a LogContext for a session with host and device.
func NewLogContext(host, device string) *LogContext {
	return &LogContext{
		Host:      host,
		Device:    device,
		StartTime: time.Now(),
	}
}

// Clone returns a copy of lc (nil-safe).
func (lc *LogContext) Clone() *LogContext {
	if lc == nil {
		return nil
	}
	c := *lc
	return &c
}

// WithOperation returns a copy with the operation set.
func (lc *LogContext) WithOperation(op string) *LogContext {
	clone := lc.Clone()
	if clone != nil {
		clone.Operation = op
	}
	return clone
}

// WithLink returns a copy carrying the link and client ids.
func (lc *LogContext) WithLink(linkID, clientID int32) *LogContext {
	clone := lc.Clone()
	if clone != nil {
		clone.LinkID = linkID
		clone.HasLink = true
		clone.ClientID = clientID
	}
	return clone
}

// WithTrace returns a copy with trace info set
func (lc *LogContext) WithTrace(traceID, spanID string) *LogContext {
	clone := lc.Clone()
	if clone != nil {
		clone.TraceID = traceID
		clone.SpanID = spanID
	}
	return clone
}

// DurationMs returns the duration since StartTime in milliseconds
func (lc *LogContext) DurationMs() float64 {
	if lc == nil || lc.StartTime.IsZero() {
		return 0
	}
	return float64(time.Since(lc.StartTime).Microseconds()) / 1000.0
}
