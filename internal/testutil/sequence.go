// Package testutil provides deterministic helpers for tests and scenario
// runs: step sequences, delivery IDs and revision histories declared by
// alias.
package testutil

import (
	"strconv"
	"sync"
)

// Sequence is a monotonic counter. Next numbers trace steps; Generate turns
// the same counter into IDs such as "d1", "d2" and implements
// transfer.IDGenerator.
//
// Thread-safety: all methods are safe for concurrent use.
type Sequence struct {
	mu     sync.Mutex
	prefix string
	n      int64
}

// NewSequence returns a sequence whose first value is 1. prefix is prepended
// by Generate.
func NewSequence(prefix string) *Sequence {
	return &Sequence{prefix: prefix}
}

// Next advances the sequence and returns the new value.
func (s *Sequence) Next() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.n++
	return s.n
}

// Current returns the last value handed out, 0 before the first call.
func (s *Sequence) Current() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.n
}

// Generate advances the sequence and returns prefix followed by the value.
func (s *Sequence) Generate() string {
	return s.prefix + strconv.FormatInt(s.Next(), 10)
}
