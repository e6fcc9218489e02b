// File: client/policy.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package client

import (
	"math/rand/v2"
	"strconv"
	"sync"
)

// StopPolicy decides after each received chunk whether the client closes.
type StopPolicy interface {
	ShouldStop(received []byte) bool
}

// StopFunc adapts a function to StopPolicy.
type StopFunc func(received []byte) bool

// ShouldStop implements StopPolicy.
func (f StopFunc) ShouldStop(received []byte) bool { return f(received) }

// Never keeps the session going until the peer closes or it goes idle.
func Never() StopPolicy { return StopFunc(func([]byte) bool { return false }) }

// Always stops on the first received chunk.
func Always() StopPolicy { return StopFunc(func([]byte) bool { return true }) }

type randomStop struct {
	mu  sync.Mutex
	p   float64
	rng *rand.Rand
}

// RandomStop stops with probability p per received chunk. seed 0 picks a
// random seed; any other value makes the sequence reproducible.
func RandomStop(p float64, seed uint64) StopPolicy {
	return &randomStop{p: p, rng: newRand(seed)}
}

func (r *randomStop) ShouldStop([]byte) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.rng.Float64() < r.p
}

// MessageGenerator produces the next chunk to send after an echo.
type MessageGenerator func() []byte

// RandomNumbers generates "Random number: N" with N in [0,100).
func RandomNumbers(seed uint64) MessageGenerator {
	var mu sync.Mutex
	rng := newRand(seed)
	return func() []byte {
		mu.Lock()
		n := rng.IntN(100)
		mu.Unlock()
		return []byte("Random number: " + strconv.Itoa(n))
	}
}

func newRand(seed uint64) *rand.Rand {
	if seed == 0 {
		seed = rand.Uint64()
	}
	return rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))
}
