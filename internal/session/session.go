// Package session implements the bearer-token session gate (C11): an
// opaque, process-wide token set guarding every operation's entry
// (spec.md §4.9). Tokens never expire in-process and are discarded on
// restart; there is no removal path.
package session

import (
	"crypto/rand"
	"encoding/hex"
	"sync"

	"github.com/Pelmog/zigi-amazon-mcp/internal/envelope"
)

// tokenBytes is the number of random bytes minted per token (spec.md §4.9:
// "32 random bytes encoded as lowercase hex").
const tokenBytes = 32

// Gate holds the process-wide set of valid session tokens. The zero value
// is not usable; construct with New.
type Gate struct {
	mu     sync.RWMutex
	tokens map[string]struct{}
}

// New returns an empty Gate.
func New() *Gate {
	return &Gate{tokens: make(map[string]struct{})}
}

// Authenticate mints a new token, inserts it into the set, and returns it.
// This is the sole way to obtain a valid token (spec.md §4.9).
func (g *Gate) Authenticate() (string, error) {
	buf := make([]byte, tokenBytes)
	if _, err := rand.Read(buf); err != nil {
		return "", envelope.Wrap(envelope.Internal, "session: failed to generate token", err)
	}
	token := hex.EncodeToString(buf)

	g.mu.Lock()
	g.tokens[token] = struct{}{}
	g.mu.Unlock()

	return token, nil
}

// Validate reports whether token is present in the process-wide set,
// returning AuthFailed if not (spec.md §4.9: "Absence or mismatch →
// ErrorKind.AuthFailed").
func (g *Gate) Validate(token string) error {
	if token == "" {
		return envelope.New(envelope.AuthFailed, "session token is required")
	}
	g.mu.RLock()
	_, ok := g.tokens[token]
	g.mu.RUnlock()
	if !ok {
		return envelope.New(envelope.AuthFailed, "invalid or unknown session token")
	}
	return nil
}

// Count returns the number of tokens currently valid, mainly for tests and
// diagnostics.
func (g *Gate) Count() int {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return len(g.tokens)
}
