// Package monitoring - request_logger.go logs the dispatcher's request
// lifecycle, grounded on the teacher's RequestLogger (LogIncoming/
// LogOutgoing/LogResponse), re-scoped from HTTP-proxy-request fields to
// SP-API dispatch fields (operation, marketplace, retry attempt).
package monitoring

import "time"

// RequestLogger logs dispatcher request lifecycle events at DEBUG level.
type RequestLogger struct {
	logger *Logger
}

// NewRequestLogger creates a new request logger.
func NewRequestLogger(logger *Logger) *RequestLogger {
	return &RequestLogger{logger: logger}
}

// OutgoingInfo describes a request about to be transmitted upstream.
type OutgoingInfo struct {
	RequestID     string
	Operation     string
	Method        string
	Path          string
	MarketplaceID string
	Attempt       int
}

// LogOutgoing logs a request about to be sent to SP-API.
func (rl *RequestLogger) LogOutgoing(info *OutgoingInfo) {
	rl.logger.Debug().
		Str("request_id", info.RequestID).
		Str("operation", info.Operation).
		Str("method", info.Method).
		Str("path", info.Path).
		Str("marketplace", info.MarketplaceID).
		Int("attempt", info.Attempt).
		Msg("outgoing")
}

// ResponseInfo describes a received (or failed) response.
type ResponseInfo struct {
	RequestID  string
	StatusCode int
	Latency    time.Duration
	ErrorKind  string
}

// LogResponse logs the result of a dispatch attempt.
func (rl *RequestLogger) LogResponse(info *ResponseInfo) {
	ev := rl.logger.Debug().
		Str("request_id", info.RequestID).
		Int("status", info.StatusCode).
		Dur("latency", info.Latency)
	if info.ErrorKind != "" {
		ev = ev.Str("error_kind", info.ErrorKind)
	}
	ev.Msg("response")
}
