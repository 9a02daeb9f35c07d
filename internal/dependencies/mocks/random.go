package mocks

import (
	"errors"
	"sync"

	"github.com/mcoot/credauth/internal/dependencies/random"
)

// ErrTokensExhausted is returned by MockRandom when no queued token remains
// and no fallback is configured
var ErrTokensExhausted = errors.New("mock random: no tokens queued")

// MockRandom returns queued tokens in order
type MockRandom struct {
	mu     sync.Mutex
	tokens []string
	// Err, when set, is returned by every Token call
	Err error
}

// Ensure MockRandom implements Random
var _ random.Random = (*MockRandom)(nil)

// NewMockRandom creates a MockRandom with the given tokens queued
func NewMockRandom(tokens ...string) *MockRandom {
	return &MockRandom{tokens: tokens}
}

// Token returns the next queued token, ignoring n
func (r *MockRandom) Token(n int) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.Err != nil {
		return "", r.Err
	}
	if len(r.tokens) == 0 {
		return "", ErrTokensExhausted
	}
	t := r.tokens[0]
	r.tokens = r.tokens[1:]
	return t, nil
}

// QueueToken adds values to the token queue
func (r *MockRandom) QueueToken(values ...string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.tokens = append(r.tokens, values...)
}
