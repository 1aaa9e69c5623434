package credentials

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Pelmog/zigi-amazon-mcp/internal/clock"
	"github.com/Pelmog/zigi-amazon-mcp/internal/config"
)

func TestAccessToken_RefreshesOnMiss(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		require.NoError(t, r.ParseForm())
		assert.Equal(t, "refresh", r.FormValue("grant_type"))
		assert.Equal(t, "rt-1", r.FormValue("refresh_token"))
		_ = json.NewEncoder(w).Encode(tokenResponse{AccessToken: "tok-abc", ExpiresIn: 3600})
	}))
	defer srv.Close()

	cfg := config.CredentialsConfig{
		TokenEndpoint: srv.URL,
		RefreshToken:  "rt-1",
		ClientID:      "cid",
		ClientSecret:  "secret",
		SafetyMargin:  60 * time.Second,
	}
	fake := clock.NewFake(time.Now())
	m := NewManager(cfg, fake, srv.Client(), nil, nil, nil)

	tok, err := m.AccessToken(context.Background(), "eu-west-1")
	require.NoError(t, err)
	assert.Equal(t, "tok-abc", tok.Token)
	assert.EqualValues(t, 1, atomic.LoadInt32(&calls))

	tok2, err := m.AccessToken(context.Background(), "eu-west-1")
	require.NoError(t, err)
	assert.Equal(t, "tok-abc", tok2.Token)
	assert.EqualValues(t, 1, atomic.LoadInt32(&calls), "cached token must not trigger a second refresh")
}

func TestAccessToken_RefreshesWithinSafetyMargin(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		_ = json.NewEncoder(w).Encode(tokenResponse{AccessToken: "tok", ExpiresIn: 120})
	}))
	defer srv.Close()

	cfg := config.CredentialsConfig{
		TokenEndpoint: srv.URL,
		RefreshToken:  "rt",
		SafetyMargin:  60 * time.Second,
	}
	fake := clock.NewFake(time.Now())
	m := NewManager(cfg, fake, srv.Client(), nil, nil, nil)

	_, err := m.AccessToken(context.Background(), "us-east-1")
	require.NoError(t, err)
	assert.EqualValues(t, 1, atomic.LoadInt32(&calls))

	// expires_in was 120s; advance 100s, leaving 20s < the 60s safety margin.
	fake.Advance(100 * time.Second)
	_, err = m.AccessToken(context.Background(), "us-east-1")
	require.NoError(t, err)
	assert.EqualValues(t, 2, atomic.LoadInt32(&calls), "token within safety margin must be refreshed")
}

func TestAccessToken_FailurePropagatesAuthFailedAndDoesNotCache(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"error":"invalid_grant"}`))
	}))
	defer srv.Close()

	cfg := config.CredentialsConfig{TokenEndpoint: srv.URL, RefreshToken: "rt", SafetyMargin: 60 * time.Second}
	fake := clock.NewFake(time.Now())
	m := NewManager(cfg, fake, srv.Client(), nil, nil, nil)

	_, err := m.AccessToken(context.Background(), "eu-west-1")
	require.Error(t, err)

	_, ok := m.accessTokens.get("eu-west-1")
	assert.False(t, ok, "failed refresh must not populate the cache")
}

func TestSignedCredentials_StaticPairNonExpiring(t *testing.T) {
	cfg := config.CredentialsConfig{
		StaticKeyID:    "AKIA_STATIC",
		StaticSecretKey: "static-secret",
		SafetyMargin:   60 * time.Second,
	}
	fake := clock.NewFake(time.Now())
	m := NewManager(cfg, fake, nil, nil, nil, nil)

	s, err := m.SignedCredentials(context.Background(), "eu-west-1")
	require.NoError(t, err)
	assert.Equal(t, "AKIA_STATIC", s.KeyID)
	assert.True(t, s.ExpiresAt.IsZero())

	fake.Advance(365 * 24 * time.Hour)
	s2, err := m.SignedCredentials(context.Background(), "eu-west-1")
	require.NoError(t, err)
	assert.Equal(t, s.KeyID, s2.KeyID)
}

// TestAccessToken_ConcurrentMissesCoalesceToOneRefresh implements spec.md §8
// scenario S6: N concurrent observers of a credential miss must trigger
// exactly one upstream refresh call.
func TestAccessToken_ConcurrentMissesCoalesceToOneRefresh(t *testing.T) {
	var calls int32
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		<-release // hold all concurrent callers open on the single in-flight call
		_ = json.NewEncoder(w).Encode(tokenResponse{AccessToken: "tok-shared", ExpiresIn: 3600})
	}))
	defer srv.Close()

	cfg := config.CredentialsConfig{TokenEndpoint: srv.URL, RefreshToken: "rt", SafetyMargin: 60 * time.Second}
	fake := clock.NewFake(time.Now())
	m := NewManager(cfg, fake, srv.Client(), nil, nil, nil)

	const n = 100
	var wg sync.WaitGroup
	results := make([]AccessToken, n)
	errs := make([]error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			tok, err := m.AccessToken(context.Background(), "eu-west-1")
			results[i] = tok
			errs[i] = err
		}(i)
	}

	// give all goroutines a moment to pile up behind the single in-flight call
	time.Sleep(50 * time.Millisecond)
	close(release)
	wg.Wait()

	assert.EqualValues(t, 1, atomic.LoadInt32(&calls), "exactly one upstream refresh for N concurrent misses")
	for i := 0; i < n; i++ {
		require.NoError(t, errs[i])
		assert.Equal(t, "tok-shared", results[i].Token)
	}
}
