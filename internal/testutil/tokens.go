package testutil

import (
	"fmt"
	"sync"

	"github.com/roach88/tapflow/internal/engine"
)

// FixedTokenGenerator returns the same run-cycle token on every call.
//
// Unlike engine.FixedGenerator, it never runs out, so an App can be Reset any
// number of times. Golden traces stay byte-identical because every cycle
// carries the same token.
type FixedTokenGenerator struct {
	token string
}

var _ engine.TokenGenerator = (*FixedTokenGenerator)(nil)

// NewFixedTokenGenerator creates a generator for token. An empty token
// becomes "test-cycle".
func NewFixedTokenGenerator(token string) *FixedTokenGenerator {
	if token == "" {
		token = "test-cycle"
	}
	return &FixedTokenGenerator{token: token}
}

// Generate returns the fixed token.
func (g *FixedTokenGenerator) Generate() string {
	return g.token
}

// SequentialTokenGenerator returns prefix-1, prefix-2, ...
//
// Thread-safety: safe for concurrent use via internal mutex.
type SequentialTokenGenerator struct {
	mu     sync.Mutex
	prefix string
	n      int
}

var _ engine.TokenGenerator = (*SequentialTokenGenerator)(nil)

// NewSequentialTokenGenerator creates a generator numbering tokens from 1.
func NewSequentialTokenGenerator(prefix string) *SequentialTokenGenerator {
	return &SequentialTokenGenerator{prefix: prefix}
}

// Generate returns the next token.
func (g *SequentialTokenGenerator) Generate() string {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.n++
	return fmt.Sprintf("%s-%d", g.prefix, g.n)
}
