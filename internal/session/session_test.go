package session

import (
	"regexp"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Pelmog/zigi-amazon-mcp/internal/envelope"
)

var hexToken = regexp.MustCompile(`^[0-9a-f]{64}$`)

func TestAuthenticate_MintsLowercaseHexToken(t *testing.T) {
	g := New()
	token, err := g.Authenticate()
	require.NoError(t, err)
	assert.True(t, hexToken.MatchString(token), "token %q is not 64 lowercase hex chars", token)
}

func TestValidate_AcceptsMintedToken(t *testing.T) {
	g := New()
	token, err := g.Authenticate()
	require.NoError(t, err)
	assert.NoError(t, g.Validate(token))
}

func TestValidate_RejectsUnknownToken(t *testing.T) {
	g := New()
	err := g.Validate("not-a-real-token")
	require.Error(t, err)
	ce, ok := envelope.AsCoreError(err)
	require.True(t, ok)
	assert.Equal(t, envelope.AuthFailed, ce.Kind)
}

func TestValidate_RejectsEmptyToken(t *testing.T) {
	g := New()
	err := g.Validate("")
	require.Error(t, err)
	ce, ok := envelope.AsCoreError(err)
	require.True(t, ok)
	assert.Equal(t, envelope.AuthFailed, ce.Kind)
}

func TestAuthenticate_TokensAreUnique(t *testing.T) {
	g := New()
	a, err := g.Authenticate()
	require.NoError(t, err)
	b, err := g.Authenticate()
	require.NoError(t, err)
	assert.NotEqual(t, a, b)
	assert.Equal(t, 2, g.Count())
}

func TestAuthenticate_ConcurrentCallsAreSynchronized(t *testing.T) {
	g := New()
	var wg sync.WaitGroup
	tokens := make(chan string, 50)
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			tok, err := g.Authenticate()
			require.NoError(t, err)
			tokens <- tok
		}()
	}
	wg.Wait()
	close(tokens)

	seen := make(map[string]struct{})
	for tok := range tokens {
		seen[tok] = struct{}{}
	}
	assert.Len(t, seen, 50)
	assert.Equal(t, 50, g.Count())
}
