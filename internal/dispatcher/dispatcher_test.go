package dispatcher

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Pelmog/zigi-amazon-mcp/internal/clock"
	"github.com/Pelmog/zigi-amazon-mcp/internal/config"
	"github.com/Pelmog/zigi-amazon-mcp/internal/credentials"
	"github.com/Pelmog/zigi-amazon-mcp/internal/envelope"
	"github.com/Pelmog/zigi-amazon-mcp/internal/marketplace"
	"github.com/Pelmog/zigi-amazon-mcp/internal/ratelimit"
)

type fakeCreds struct {
	invalidations *int32
}

func (fakeCreds) AccessToken(ctx context.Context, region string) (credentials.AccessToken, error) {
	return credentials.AccessToken{Token: "tok", ExpiresAt: time.Now().Add(time.Hour)}, nil
}

func (c fakeCreds) InvalidateAccessToken(region string) {
	if c.invalidations != nil {
		atomic.AddInt32(c.invalidations, 1)
	}
}

type fakeSigner struct{}

func (fakeSigner) Sign(ctx context.Context, req *http.Request, region string, body []byte) error {
	req.Header.Set("Authorization", "AWS4-HMAC-SHA256 fake")
	return nil
}

func newTestDispatcher(t *testing.T, srv *httptest.Server, cfg config.DispatcherConfig, wait bool) *Dispatcher {
	// Real clock: the retry tests back off for a few milliseconds, and nothing
	// would advance a fake clock for them.
	clk := clock.NewSystem()
	limiter := ratelimit.New(config.RateLimitConfig{Default: config.BucketConfig{RatePerSecond: 1000, Capacity: 1000}}, clk)
	return New(limiter, fakeCreds{}, fakeSigner{}, srv.Client(), clk, cfg, wait, nil, nil, nil)
}

func TestDispatch_SuccessOnFirstAttempt(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"payload":{}}`))
	}))
	defer srv.Close()

	d := newTestDispatcher(t, srv, config.DispatcherConfig{TransportTimeout: 5 * time.Second, MaxRetries: 3, BackoffBase: time.Millisecond, BackoffMax: 10 * time.Millisecond}, false)

	rc := RequestContext{
		OperationName: "listOrders", Method: http.MethodGet, Path: "/orders/v0/orders", URL: srv.URL,
		Marketplace: marketplace.Marketplace{ID: "A1F83G8C2ARO7P", Region: "eu-west-1"},
	}
	res, err := d.Dispatch(context.Background(), rc)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, res.StatusCode)
}

func TestDispatch_RetriesOn503ThenSucceeds(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		_, _ = w.Write([]byte(`{"payload":{}}`))
	}))
	defer srv.Close()

	d := newTestDispatcher(t, srv, config.DispatcherConfig{TransportTimeout: 5 * time.Second, MaxRetries: 3, BackoffBase: time.Millisecond, BackoffMax: 5 * time.Millisecond}, false)

	rc := RequestContext{
		OperationName: "listOrders", Method: http.MethodGet, Path: "/orders/v0/orders", URL: srv.URL,
		Marketplace: marketplace.Marketplace{ID: "A1F83G8C2ARO7P", Region: "eu-west-1"}, RetryBudget: 3,
	}
	res, err := d.Dispatch(context.Background(), rc)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, res.StatusCode)
	assert.EqualValues(t, 3, atomic.LoadInt32(&calls))
}

func TestDispatch_NonRetryable400SurfacesImmediately(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusBadRequest)
	}))
	defer srv.Close()

	d := newTestDispatcher(t, srv, config.DispatcherConfig{TransportTimeout: 5 * time.Second, MaxRetries: 3, BackoffBase: time.Millisecond, BackoffMax: 5 * time.Millisecond}, false)

	rc := RequestContext{
		OperationName: "getOrder", Method: http.MethodGet, Path: "/orders/v0/orders/1", URL: srv.URL,
		Marketplace: marketplace.Marketplace{ID: "A1F83G8C2ARO7P", Region: "eu-west-1"},
	}
	_, err := d.Dispatch(context.Background(), rc)
	require.Error(t, err)
	coreErr, ok := envelope.AsCoreError(err)
	require.True(t, ok)
	assert.Equal(t, envelope.UpstreamError, coreErr.Kind)
	assert.EqualValues(t, 1, atomic.LoadInt32(&calls), "non-retryable status must not be retried")
}

func TestDispatch_401TriggersExactlyOneForcedRetry(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := atomic.AddInt32(&calls, 1)
		if n <= 2 {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		_, _ = w.Write([]byte(`{"payload":{}}`))
	}))
	defer srv.Close()

	d := newTestDispatcher(t, srv, config.DispatcherConfig{TransportTimeout: 5 * time.Second, MaxRetries: 3, BackoffBase: time.Millisecond, BackoffMax: 5 * time.Millisecond}, false)

	rc := RequestContext{
		OperationName: "listOrders", Method: http.MethodGet, Path: "/orders/v0/orders", URL: srv.URL,
		Marketplace: marketplace.Marketplace{ID: "A1F83G8C2ARO7P", Region: "eu-west-1"}, RetryBudget: 3,
	}
	_, err := d.Dispatch(context.Background(), rc)
	require.Error(t, err, "a second consecutive 401 after the forced retry must be terminal")
	coreErr, ok := envelope.AsCoreError(err)
	require.True(t, ok)
	assert.Equal(t, envelope.AuthFailed, coreErr.Kind)
	assert.EqualValues(t, 2, atomic.LoadInt32(&calls))
}

func TestDispatch_401ForcedRetryInvalidatesCachedTokenAndRecovers(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := atomic.AddInt32(&calls, 1)
		if n == 1 {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		_, _ = w.Write([]byte(`{"payload":{}}`))
	}))
	defer srv.Close()

	var invalidations int32
	fake := clock.NewFake(time.Now())
	limiter := ratelimit.New(config.RateLimitConfig{Default: config.BucketConfig{RatePerSecond: 1000, Capacity: 1000}}, fake)
	d := New(limiter, fakeCreds{invalidations: &invalidations}, fakeSigner{}, srv.Client(), fake,
		config.DispatcherConfig{TransportTimeout: 5 * time.Second, MaxRetries: 3, BackoffBase: time.Millisecond, BackoffMax: 5 * time.Millisecond},
		false, nil, nil, nil)

	rc := RequestContext{
		OperationName: "listOrders", Method: http.MethodGet, Path: "/orders/v0/orders", URL: srv.URL,
		Marketplace: marketplace.Marketplace{ID: "A1F83G8C2ARO7P", Region: "eu-west-1"}, RetryBudget: 3,
	}
	_, err := d.Dispatch(context.Background(), rc)
	require.NoError(t, err, "the forced retry must succeed once the revoked token is invalidated")
	assert.EqualValues(t, 2, atomic.LoadInt32(&calls))
	assert.EqualValues(t, 1, atomic.LoadInt32(&invalidations), "exactly one cache invalidation must accompany the forced 401 retry")
}

func TestDispatch_RateLimitExceededFailsFastWhenNotWaiting(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{}`))
	}))
	defer srv.Close()

	fake := clock.NewFake(time.Now())
	limiter := ratelimit.New(config.RateLimitConfig{Default: config.BucketConfig{RatePerSecond: 1, Capacity: 1}}, fake)
	d := New(limiter, fakeCreds{}, fakeSigner{}, srv.Client(), fake, config.DispatcherConfig{TransportTimeout: 5 * time.Second, MaxRetries: 0, BackoffBase: time.Millisecond, BackoffMax: time.Millisecond}, false, nil, nil, nil)

	rc := RequestContext{
		OperationName: "someOp", Method: http.MethodGet, Path: "/some/unthrottled-by-prefix/path", URL: srv.URL,
		Marketplace: marketplace.Marketplace{ID: "A1F83G8C2ARO7P", Region: "eu-west-1"},
	}
	_, err := d.Dispatch(context.Background(), rc)
	require.NoError(t, err)

	_, err = d.Dispatch(context.Background(), rc)
	require.Error(t, err)
	coreErr, ok := envelope.AsCoreError(err)
	require.True(t, ok)
	assert.Equal(t, envelope.RateLimitExceeded, coreErr.Kind)
}

func TestDispatch_Upstream429HonorsRetryAfterHeaderOverBackoff(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) == 1 {
			w.Header().Set("Retry-After", "2")
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		_, _ = w.Write([]byte(`{"payload":{}}`))
	}))
	defer srv.Close()

	fake := clock.NewFake(time.Now())
	limiter := ratelimit.New(config.RateLimitConfig{Default: config.BucketConfig{RatePerSecond: 1000, Capacity: 1000}}, fake)
	// A backoff base/max far larger than the 2s Retry-After: if the
	// dispatcher fell back to backoff instead of honoring Retry-After, a
	// 2s advance would never unblock the sleep.
	cfg := config.DispatcherConfig{TransportTimeout: 5 * time.Second, MaxRetries: 3, BackoffBase: 100 * time.Second, BackoffMax: 200 * time.Second}
	d := New(limiter, fakeCreds{}, fakeSigner{}, srv.Client(), fake, cfg, false, nil, nil, nil)

	rc := RequestContext{
		OperationName: "listOrders", Method: http.MethodGet, Path: "/orders/v0/orders", URL: srv.URL,
		Marketplace: marketplace.Marketplace{ID: "A1F83G8C2ARO7P", Region: "eu-west-1"}, RetryBudget: 3,
	}

	type outcome struct {
		err error
	}
	done := make(chan outcome, 1)
	go func() {
		_, err := d.Dispatch(context.Background(), rc)
		done <- outcome{err: err}
	}()

	// Give the goroutine time to reach the Retry-After sleep, then advance
	// the fake clock by exactly the header's duration.
	time.Sleep(20 * time.Millisecond)
	fake.Advance(2 * time.Second)

	select {
	case o := <-done:
		require.NoError(t, o.err)
	case <-time.After(time.Second):
		t.Fatal("dispatch did not unblock after advancing the fake clock by the Retry-After duration")
	}
	assert.EqualValues(t, 2, atomic.LoadInt32(&calls))
}
