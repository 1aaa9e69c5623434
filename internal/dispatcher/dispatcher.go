// Package dispatcher implements the request dispatcher (C7): the
// compose → limit → sign → send → classify → retry pipeline that produces a
// normalized response envelope for every outbound SP-API call.
//
// DESIGN: grounded on the teacher's external/llm.go CallLLM (request
// construction, context-bound timeout, size-limited body read, status-code
// classification) composed with gateway/middleware.go's rate-limit gate and
// gateway/bedrock_signer.go's sign-before-send step — here reassembled into
// one explicit pipeline rather than split across an HTTP middleware chain,
// since there is no inbound HTTP server in this domain, only an outbound
// client pipeline.
package dispatcher

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/Pelmog/zigi-amazon-mcp/internal/clock"
	"github.com/Pelmog/zigi-amazon-mcp/internal/config"
	"github.com/Pelmog/zigi-amazon-mcp/internal/credentials"
	"github.com/Pelmog/zigi-amazon-mcp/internal/envelope"
	"github.com/Pelmog/zigi-amazon-mcp/internal/marketplace"
	"github.com/Pelmog/zigi-amazon-mcp/internal/monitoring"
	"github.com/Pelmog/zigi-amazon-mcp/internal/ratelimit"
)

const maxResponseBytes = 10 * 1024 * 1024
const userAgent = "zigi-amazon-mcp/1.0 (Language=Go)"

// RequestContext is the spec's per-call request description (spec.md §3).
type RequestContext struct {
	OperationName string
	Method        string
	Path          string // template path, used as the rate-limit bucket key
	URL           string // fully resolved target URL
	Query         map[string]string
	Body          []byte
	Headers       map[string]string
	Marketplace   marketplace.Marketplace
	RetryBudget   int
	Deadline      time.Duration
}

// RequestSigner is the subset of *signer.Signer the dispatcher depends on.
type RequestSigner interface {
	Sign(ctx context.Context, req *http.Request, region string, body []byte) error
}

// CredentialSource is the subset of *credentials.Manager the dispatcher
// depends on for the access-token header.
type CredentialSource interface {
	AccessToken(ctx context.Context, region string) (credentials.AccessToken, error)
	InvalidateAccessToken(region string)
}

// Result is the dispatcher's successful outcome: the decoded body plus
// response metadata needed by callers (pagination, post-processing).
type Result struct {
	StatusCode int
	Body       []byte
	Headers    http.Header
	RequestID  string
}

// Dispatcher composes rate limiting, credentials, signing, transmission,
// classification, and bounded retry into a single call path.
type Dispatcher struct {
	limiter     *ratelimit.Limiter
	credentials CredentialSource
	signer      RequestSigner
	httpClient  *http.Client
	clock       clock.Clock
	backoff     *clock.Backoff
	cfg         config.DispatcherConfig
	metrics     *monitoring.MetricsCollector
	alerts      *monitoring.AlertManager
	reqLogger   *monitoring.RequestLogger
	waitOnSaturation bool
}

// New builds a Dispatcher.
func New(
	limiter *ratelimit.Limiter,
	creds CredentialSource,
	sgn RequestSigner,
	httpClient *http.Client,
	clk clock.Clock,
	cfg config.DispatcherConfig,
	waitOnSaturation bool,
	metrics *monitoring.MetricsCollector,
	alerts *monitoring.AlertManager,
	reqLogger *monitoring.RequestLogger,
) *Dispatcher {
	if clk == nil {
		clk = clock.NewSystem()
	}
	if httpClient == nil {
		httpClient = &http.Client{Timeout: cfg.TransportTimeout}
	}
	backoff := clock.NewBackoff()
	if cfg.BackoffBase > 0 {
		backoff.Base = cfg.BackoffBase
	}
	if cfg.BackoffMax > 0 {
		backoff.Max = cfg.BackoffMax
	}
	return &Dispatcher{
		limiter:          limiter,
		credentials:      creds,
		signer:           sgn,
		httpClient:       httpClient,
		clock:            clk,
		backoff:          backoff,
		cfg:              cfg,
		waitOnSaturation: waitOnSaturation,
		metrics:          metrics,
		alerts:           alerts,
		reqLogger:        reqLogger,
	}
}

// Dispatch runs the full compose→limit→sign→send→classify→retry pipeline
// for rc, returning a Result on success or a *envelope.CoreError on failure.
func (d *Dispatcher) Dispatch(ctx context.Context, rc RequestContext) (*Result, error) {
	deadline := rc.Deadline
	if deadline <= 0 {
		deadline = d.cfg.TransportTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, deadline)
	defer cancel()

	maxRetries := d.cfg.MaxRetries
	if rc.RetryBudget > 0 && rc.RetryBudget < maxRetries {
		maxRetries = rc.RetryBudget
	}

	requestID := uuid.NewString()
	forcedAuthRetryUsed := false

	for attempt := 0; ; attempt++ {
		select {
		case <-ctx.Done():
			return nil, envelope.New(envelope.Timeout, "operation deadline exceeded")
		default:
		}

		admitted, retryAfter := d.admit(ctx, rc.Path)
		if !admitted {
			if d.metrics != nil {
				d.metrics.RecordRateLimited()
			}
			if d.waitOnSaturation && attempt < maxRetries {
				if err := d.sleepRetryable(ctx, retryAfter); err != nil {
					return nil, err
				}
				continue
			}
			return nil, &envelope.CoreError{Kind: envelope.RateLimitExceeded, Message: "rate limit exceeded", RetryAfter: retryAfter}
		}

		result, classErr := d.attempt(ctx, rc, requestID, attempt)
		if classErr == nil {
			if d.metrics != nil {
				d.metrics.RecordRequest(true)
			}
			return result, nil
		}

		coreErr, _ := envelope.AsCoreError(classErr)

		// 401 forced-refresh-once policy (spec.md §7): evict the cached
		// access token so the retry mints a fresh one instead of re-signing
		// with the same server-revoked token.
		if coreErr != nil && coreErr.Kind == envelope.AuthFailed && coreErr.StatusCode == http.StatusUnauthorized && !forcedAuthRetryUsed {
			forcedAuthRetryUsed = true
			d.credentials.InvalidateAccessToken(rc.Marketplace.Region)
			continue
		}

		retryable := coreErr != nil && envelope.IsRetryable(coreErr.Kind, coreErr.StatusCode)
		if !retryable || attempt >= maxRetries {
			if d.metrics != nil {
				d.metrics.RecordRequest(false)
			}
			return nil, classErr
		}

		delay := d.backoff.Delay(attempt)
		if coreErr.Kind == envelope.RateLimitExceeded && coreErr.RetryAfter > 0 {
			delay = coreErr.RetryAfter
		}

		if d.metrics != nil {
			d.metrics.RecordRetry()
		}
		if d.alerts != nil {
			d.alerts.FlagRetry(requestID, rc.OperationName, attempt+1, delay)
		}
		if err := d.sleepRetryable(ctx, delay); err != nil {
			return nil, err
		}
	}
}

func (d *Dispatcher) admit(ctx context.Context, path string) (bool, time.Duration) {
	ok, retryAfter := d.limiter.Admit(path)
	if ok || !d.waitOnSaturation {
		return ok, retryAfter
	}
	if err := d.sleepRetryable(ctx, retryAfter); err != nil {
		return false, retryAfter
	}
	return d.limiter.Admit(path)
}

func (d *Dispatcher) sleepRetryable(ctx context.Context, delay time.Duration) error {
	select {
	case <-ctx.Done():
		return envelope.New(envelope.Timeout, "operation deadline exceeded during backoff")
	case <-d.clock.After(delay):
		return nil
	}
}

func (d *Dispatcher) attempt(ctx context.Context, rc RequestContext, requestID string, attemptNum int) (*Result, error) {
	req, err := http.NewRequestWithContext(ctx, rc.Method, rc.URL, bytes.NewReader(rc.Body))
	if err != nil {
		return nil, envelope.Wrap(envelope.Internal, "failed to build request", err)
	}
	for k, v := range rc.Headers {
		req.Header.Set(k, v)
	}
	if len(rc.Body) > 0 {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("x-request-id", requestID)

	tok, err := d.credentials.AccessToken(ctx, rc.Marketplace.Region)
	if err != nil {
		return nil, err
	}
	req.Header.Set("x-amz-access-token", tok.Token)

	if err := d.signer.Sign(ctx, req, rc.Marketplace.Region, rc.Body); err != nil {
		return nil, envelope.Wrap(envelope.AuthFailed, "failed to sign request", err)
	}

	if d.reqLogger != nil {
		d.reqLogger.LogOutgoing(&monitoring.OutgoingInfo{
			RequestID: requestID, Operation: rc.OperationName, Method: rc.Method,
			Path: rc.Path, MarketplaceID: rc.Marketplace.ID, Attempt: attemptNum,
		})
	}

	start := d.clock.Now()
	resp, err := d.httpClient.Do(req)
	latency := d.clock.Now().Sub(start)
	if err != nil {
		if d.reqLogger != nil {
			d.reqLogger.LogResponse(&monitoring.ResponseInfo{RequestID: requestID, Latency: latency, ErrorKind: string(envelope.NetworkError)})
		}
		return nil, envelope.Wrap(envelope.NetworkError, "transport failure", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, envelope.Wrap(envelope.NetworkError, "failed to read response body", err)
	}

	if d.reqLogger != nil {
		d.reqLogger.LogResponse(&monitoring.ResponseInfo{RequestID: requestID, StatusCode: resp.StatusCode, Latency: latency})
	}
	if d.alerts != nil {
		d.alerts.FlagHighLatency(requestID, latency, rc.OperationName, rc.Path)
	}

	if coreErr := classify(resp, body); coreErr != nil {
		if d.alerts != nil && coreErr.StatusCode >= 500 {
			d.alerts.FlagUpstreamError(requestID, rc.OperationName, coreErr.StatusCode)
		}
		return nil, coreErr
	}

	return &Result{StatusCode: resp.StatusCode, Body: body, Headers: resp.Header, RequestID: requestID}, nil
}

// classify maps an HTTP response into the spec.md §7 error taxonomy, or nil
// for success.
func classify(resp *http.Response, body []byte) *envelope.CoreError {
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}

	msg := fmt.Sprintf("upstream returned status %d", resp.StatusCode)

	switch resp.StatusCode {
	case http.StatusUnauthorized, http.StatusForbidden:
		return &envelope.CoreError{Kind: envelope.AuthFailed, Message: msg, StatusCode: resp.StatusCode, Details: string(body)}
	case http.StatusTooManyRequests:
		retryAfter := parseRetryAfter(resp.Header.Get("Retry-After"))
		return &envelope.CoreError{Kind: envelope.RateLimitExceeded, Message: msg, StatusCode: resp.StatusCode, RetryAfter: retryAfter, Details: string(body)}
	default:
		return &envelope.CoreError{Kind: envelope.UpstreamError, Message: msg, StatusCode: resp.StatusCode, Details: string(body)}
	}
}

func parseRetryAfter(header string) time.Duration {
	if header == "" {
		return 0
	}
	var seconds int
	if _, err := fmt.Sscanf(header, "%d", &seconds); err != nil || seconds < 0 {
		return 0
	}
	return time.Duration(seconds) * time.Second
}
