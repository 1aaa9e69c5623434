// Package monitoring - alerts.go flags anomalies and errors, grounded on the
// teacher's AlertManager (gateway panic/latency/provider-error flags),
// re-scoped to SP-API dispatch instead of LLM proxying.
package monitoring

import (
	"time"

	"github.com/Pelmog/zigi-amazon-mcp/internal/config"
)

// AlertManager flags anomalies and errors at the appropriate log level.
type AlertManager struct {
	logger               *Logger
	highLatencyThreshold time.Duration
}

// NewAlertManager creates a new alert manager.
func NewAlertManager(logger *Logger, cfg config.MonitoringConfig) *AlertManager {
	threshold := cfg.HighLatencyThreshold
	if threshold == 0 {
		threshold = 5 * time.Second
	}
	return &AlertManager{logger: logger, highLatencyThreshold: threshold}
}

// FlagHighLatency logs when a dispatched request's latency exceeds the
// configured threshold.
func (am *AlertManager) FlagHighLatency(requestID string, latency time.Duration, operation, path string) {
	if latency < am.highLatencyThreshold {
		return
	}
	am.logger.Warn().
		Str("request_id", requestID).
		Dur("latency", latency).
		Str("operation", operation).
		Str("path", path).
		Msg("high_latency")
}

// FlagUpstreamError logs an upstream 4xx/5xx response.
func (am *AlertManager) FlagUpstreamError(requestID, operation string, statusCode int) {
	am.logger.Warn().
		Str("request_id", requestID).
		Str("operation", operation).
		Int("status", statusCode).
		Msg("upstream_error")
}

// FlagRetry logs a retry attempt with its scheduled delay.
func (am *AlertManager) FlagRetry(requestID, operation string, attempt int, delay time.Duration) {
	am.logger.Warn().
		Str("request_id", requestID).
		Str("operation", operation).
		Int("attempt", attempt).
		Dur("delay", delay).
		Msg("retry_scheduled")
}

// FlagPanic logs a recovered panic at the tool-registry boundary (C12).
func (am *AlertManager) FlagPanic(requestID string, panicValue interface{}, stack string) {
	am.logger.Error().
		Str("request_id", requestID).
		Interface("panic", panicValue).
		Msg("panic_recovered")
}

// FlagCredentialRefreshFailure logs a failed credential refresh (C4).
func (am *AlertManager) FlagCredentialRefreshFailure(region, kind string, err error) {
	am.logger.Error().
		Str("region", region).
		Str("kind", kind).
		Err(err).
		Msg("credential_refresh_failed")
}
