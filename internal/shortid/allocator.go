package shortid

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"math/big"
)

// Allocation strategy names accepted in configuration.
const (
	StrategySequence  = "sequence"
	StrategyRandom    = "random"
	StrategySnowflake = "snowflake"
)

// RandomIDLength is the fixed length of identifiers produced by the random
// strategy.
const RandomIDLength = 9

// ErrExhausted is returned when the random strategy keeps colliding with
// stored identifiers and runs out of retries. It is surfaced separately
// from storage errors so it can be monitored on its own.
var ErrExhausted = errors.New("short ID allocation exhausted")

// Allocator produces a short identifier that is unique among all stored
// identifiers. Reusing an existing identifier for an already-shortened URL
// is the caller's job (lookup before allocate); allocators only guarantee
// uniqueness.
type Allocator interface {
	Allocate(ctx context.Context) (string, error)
}

// Sequencer hands out strictly increasing sequence numbers. The increment
// and read must be a single atomic step shared by every allocator instance.
type Sequencer interface {
	NextSeq(ctx context.Context, name string) (int64, error)
}

// CodeChecker reports whether a short identifier is already stored.
type CodeChecker interface {
	ShortIDExists(ctx context.Context, shortID string) (bool, error)
}

// CounterName is the singleton counter backing the sequential strategy.
const CounterName = "url_counter"

// SequenceAllocator issues base62-encoded values of a persistent counter.
// Uniqueness holds by construction: no two calls observe the same value.
type SequenceAllocator struct {
	seq Sequencer
}

func NewSequenceAllocator(seq Sequencer) *SequenceAllocator {
	return &SequenceAllocator{seq: seq}
}

func (a *SequenceAllocator) Allocate(ctx context.Context) (string, error) {
	n, err := a.seq.NextSeq(ctx, CounterName)
	if err != nil {
		return "", fmt.Errorf("next sequence: %w", err)
	}
	return EncodeBase62(uint64(n)), nil
}

// RandomAllocator issues fixed-length identifiers drawn from a
// cryptographically strong source. Uniqueness is probabilistic, so each
// candidate is checked against the store and regenerated on collision, up
// to maxRetries attempts.
type RandomAllocator struct {
	check      CodeChecker
	length     int
	maxRetries int
}

func NewRandomAllocator(check CodeChecker, length, maxRetries int) *RandomAllocator {
	if length <= 0 {
		length = RandomIDLength
	}
	return &RandomAllocator{check: check, length: length, maxRetries: maxRetries}
}

func (a *RandomAllocator) Allocate(ctx context.Context) (string, error) {
	for attempt := 0; attempt < a.maxRetries; attempt++ {
		code, err := randomCode(a.length)
		if err != nil {
			return "", fmt.Errorf("generate random code: %w", err)
		}
		exists, err := a.check.ShortIDExists(ctx, code)
		if err != nil {
			return "", fmt.Errorf("check collision: %w", err)
		}
		if !exists {
			return code, nil
		}
	}
	return "", ErrExhausted
}

// SnowflakeAllocator base62-encodes snowflake ids. Suitable for
// multi-process deployment without a shared counter, at the cost of longer
// identifiers.
type SnowflakeAllocator struct {
	gen *Snowflake
}

func NewSnowflakeAllocator(gen *Snowflake) *SnowflakeAllocator {
	return &SnowflakeAllocator{gen: gen}
}

func (a *SnowflakeAllocator) Allocate(ctx context.Context) (string, error) {
	id, err := a.gen.Next()
	if err != nil {
		return "", err
	}
	return EncodeBase62(uint64(id)), nil
}

func randomCode(n int) (string, error) {
	out := make([]byte, n)
	max := big.NewInt(int64(len(base62Chars)))
	for i := range out {
		v, err := rand.Int(rand.Reader, max)
		if err != nil {
			return "", err
		}
		out[i] = base62Chars[v.Int64()]
	}
	return string(out), nil
}
