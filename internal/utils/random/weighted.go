package random

import (
	"crypto/rand"
	"errors"
	"fmt"
	"math/big"
)

var (
	ErrInvalidWeight = errors.New("candidate weight must be at least 1")
	ErrInvalidCount  = errors.New("pick count must not be negative")
)

// Candidate is one weighted entrant of a draw.
type Candidate[T any] struct {
	Value  T
	Weight int64
}

// PickWeighted draws up to count candidates without replacement. Every draw
// selects one of the remaining candidates with probability proportional to
// its weight, so a candidate holding w of the remaining total T wins the
// draw with probability w/T. Values are returned in draw order.
func PickWeighted[T any](candidates []Candidate[T], count int) ([]T, error) {
	if count < 0 {
		return nil, ErrInvalidCount
	}

	var total int64
	for i, c := range candidates {
		if c.Weight < 1 {
			return nil, fmt.Errorf("candidate %d: %w", i, ErrInvalidWeight)
		}
		total += c.Weight
	}

	pool := make([]Candidate[T], len(candidates))
	copy(pool, candidates)

	n := min(count, len(pool))
	picked := make([]T, 0, n)
	for len(picked) < n {
		r, err := Int63n(total)
		if err != nil {
			return nil, err
		}

		idx := len(pool) - 1
		for i, c := range pool {
			if r < c.Weight {
				idx = i
				break
			}
			r -= c.Weight
		}

		picked = append(picked, pool[idx].Value)
		total -= pool[idx].Weight
		pool = append(pool[:idx], pool[idx+1:]...)
	}

	return picked, nil
}

// Int63n returns a uniform value in [0, n) read from crypto/rand.
func Int63n(n int64) (int64, error) {
	if n <= 0 {
		return 0, fmt.Errorf("invalid upper bound %d", n)
	}
	v, err := rand.Int(rand.Reader, big.NewInt(n))
	if err != nil {
		return 0, fmt.Errorf("failed to generate random number: %w", err)
	}
	return v.Int64(), nil
}
