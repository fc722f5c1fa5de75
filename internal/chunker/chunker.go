// Package chunker implements the content-defined boundary function that
// splits an ordered item sequence into probabilistically sized chunks.
//
// The boundary decision after each item is a pure function of the items
// appended since the previous boundary: each item's bytes are reduced to a
// 64-bit xxHash and folded into a polynomial rolling hash
// state = (state*base + item64) mod modulus. A boundary is declared when the
// low bits of the state match the configured pattern, clamped by the
// minimum and maximum chunk sizes. Because the state resets at every
// boundary, identical item sequences always produce identical boundaries no
// matter how they were built, and an edit can only move boundaries from the
// edited chunk forward until the next natural boundary realigns.
package chunker

import (
	"fmt"

	"github.com/cespare/xxhash/v2"
)

// Config parameterizes the boundary function. Identical configs over
// identical item sequences always yield identical chunk boundaries.
type Config struct {
	Base         uint64
	Modulus      uint64
	Pattern      uint64
	MinChunkSize int
	MaxChunkSize int
}

// DefaultConfig returns the engine's standard chunking parameters.
func DefaultConfig() Config {
	return Config{
		Base:         257,
		Modulus:      1_000_000_007,
		Pattern:      0b11,
		MinChunkSize: 2,
		MaxChunkSize: 16 * 1024,
	}
}

// Validate checks the config for values that would break chunking.
func (c Config) Validate() error {
	if c.Base == 0 {
		return fmt.Errorf("chunker: base must be non-zero")
	}
	if c.Modulus < 2 {
		return fmt.Errorf("chunker: modulus must be at least 2")
	}
	if c.MinChunkSize < 1 {
		return fmt.Errorf("chunker: min chunk size must be at least 1")
	}
	if c.MaxChunkSize < c.MinChunkSize {
		return fmt.Errorf("chunker: max chunk size %d below min %d",
			c.MaxChunkSize, c.MinChunkSize)
	}
	return nil
}

// Splitter accumulates rolling-hash state for the chunk currently being
// built. It is not safe for concurrent use.
type Splitter struct {
	cfg   Config
	state uint64
	count int
}

// NewSplitter returns a splitter with empty state. The config must have
// been validated by the caller.
func NewSplitter(cfg Config) *Splitter {
	return &Splitter{cfg: cfg}
}

// Append folds one item into the current chunk and reports whether a
// boundary falls immediately after it. When Append returns true the state
// has been reset for the next chunk.
func (s *Splitter) Append(item []byte) bool {
	item64 := xxhash.Sum64(item)
	s.state = (s.state*(s.cfg.Base%s.cfg.Modulus) + item64%s.cfg.Modulus) % s.cfg.Modulus
	s.count++

	if s.count >= s.cfg.MaxChunkSize {
		s.Reset()
		return true
	}
	if s.count >= s.cfg.MinChunkSize && s.state&s.cfg.Pattern == s.cfg.Pattern {
		s.Reset()
		return true
	}
	return false
}

// Pending reports how many items have been appended since the last
// boundary.
func (s *Splitter) Pending() int {
	return s.count
}

// Reset clears the rolling state, starting a fresh chunk.
func (s *Splitter) Reset() {
	s.state = 0
	s.count = 0
}
