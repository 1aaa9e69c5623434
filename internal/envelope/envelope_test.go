package envelope

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFailure_ClassifiesCoreError(t *testing.T) {
	err := New(InvalidInput, "unknown marketplace id")
	env := Failure(err, Metadata{RequestID: "req-1"})
	require.False(t, env.Ok)
	require.NotNil(t, env.Error)
	assert.Equal(t, InvalidInput, env.Error.Kind)
	assert.Equal(t, "req-1", env.Metadata.RequestID)
}

func TestFailure_FallsBackToInternalForUnclassifiedError(t *testing.T) {
	env := Failure(errors.New("boom"), Metadata{})
	require.NotNil(t, env.Error)
	assert.Equal(t, Internal, env.Error.Kind)
}

func TestAsCoreError_FollowsUnwrapChain(t *testing.T) {
	inner := New(NetworkError, "dial failed")
	wrapped := fmt.Errorf("dispatch failed: %w", inner)
	ce, ok := AsCoreError(wrapped)
	require.True(t, ok)
	assert.Equal(t, NetworkError, ce.Kind)
}

func TestIsRetryable(t *testing.T) {
	cases := []struct {
		kind       ErrorKind
		statusCode int
		want       bool
	}{
		{RateLimitExceeded, 429, true},
		{NetworkError, 0, true},
		{UpstreamError, 500, true},
		{UpstreamError, 503, true},
		{UpstreamError, 400, false},
		{AuthFailed, 401, false},
		{InvalidInput, 0, false},
		{FilterFailed, 0, false},
	}
	for _, c := range cases {
		assert.Equal(t, c.want, IsRetryable(c.kind, c.statusCode), "%s/%d", c.kind, c.statusCode)
	}
}

func TestSuccess_StampsTimestampWhenZero(t *testing.T) {
	env := Success(map[string]string{"a": "b"}, Metadata{})
	assert.WithinDuration(t, time.Now().UTC(), env.Metadata.Timestamp, time.Second)
}
