// Package random provides deterministic, independently seeded random streams
// keyed by a logical id.
//
// Every stream is a Xoshiro256++ generator seeded with globalSeed XOR id. The
// registry carries an epoch: SetGlobalSeed and ResetState bump it, and a
// stream whose recorded epoch is stale reseeds itself the next time it is
// requested. Two models fitted after ResetState with the same seed therefore
// draw identical subsamples.
//
// A stream is not safe for concurrent use. Give each concurrent user its own
// id (one per boosting round, say); Acquire enforces this at runtime.
package random

import (
	"math/rand/v2"
	"slices"
	"sync"
	"sync/atomic"

	"gonum.org/v1/gonum/mathext/prng"
	"gonum.org/v1/gonum/stat/sampleuv"

	"github.com/YuminosukeSato/histboost/pkg/errors"
)

// DefaultSeed is the global seed of a new registry.
const DefaultSeed uint64 = 42

// Stream is one logical random stream.
type Stream struct {
	*rand.Rand

	src   *prng.Xoshiro256plusplus
	id    uint64
	epoch uint64
	inUse atomic.Bool
}

// ID returns the stream's logical id.
func (s *Stream) ID() uint64 { return s.id }

// SampleWithoutReplacement fills dst with len(dst) distinct integers from
// [0, n) in ascending order.
func (s *Stream) SampleWithoutReplacement(dst []int, n int) error {
	if len(dst) == 0 {
		return nil
	}
	if len(dst) > n {
		return errors.NewValidationError("sample_size", "must not exceed population", len(dst))
	}
	sampleuv.WithoutReplacement(dst, n, s.src)
	slices.Sort(dst)
	return nil
}

// Registry maps logical ids to streams. Its zero value is not usable; call
// NewRegistry.
type Registry struct {
	mu      sync.Mutex
	seed    uint64
	epoch   uint64
	streams map[uint64]*Stream
}

// NewRegistry returns a registry seeded with DefaultSeed.
func NewRegistry() *Registry {
	return NewRegistryWithSeed(DefaultSeed)
}

// NewRegistryWithSeed returns a registry with the given global seed.
func NewRegistryWithSeed(seed uint64) *Registry {
	return &Registry{
		seed:    seed,
		epoch:   1,
		streams: make(map[uint64]*Stream),
	}
}

// Stream returns the stream for id, reseeding it if the global seed or state
// changed since it was last used.
func (r *Registry) Stream(id uint64) *Stream {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.streamLocked(id)
}

func (r *Registry) streamLocked(id uint64) *Stream {
	s, ok := r.streams[id]
	if !ok {
		src := prng.NewXoshiro256plusplus(r.seed ^ id)
		s = &Stream{Rand: rand.New(src), src: src, id: id, epoch: r.epoch}
		r.streams[id] = s
		return s
	}
	if s.epoch != r.epoch {
		s.src.Seed(r.seed ^ id)
		s.epoch = r.epoch
	}
	return s
}

// Acquire returns the stream for id for exclusive use until release is
// called. A second Acquire of the same id before release fails with
// ErrStreamInUse.
func (r *Registry) Acquire(id uint64) (s *Stream, release func(), err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s = r.streamLocked(id)
	if !s.inUse.CompareAndSwap(false, true) {
		return nil, nil, errors.Wrapf(errors.ErrStreamInUse, "stream %d", id)
	}
	return s, func() { s.inUse.Store(false) }, nil
}

// SetGlobalSeed replaces the global seed. Every stream reseeds lazily.
func (r *Registry) SetGlobalSeed(seed uint64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.seed = seed
	r.epoch++
}

// ResetState rewinds every stream to its canonical seed without changing the
// global seed.
func (r *Registry) ResetState() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.epoch++
}

// Seed returns the global seed.
func (r *Registry) Seed() uint64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.seed
}

// Epoch returns the current global epoch.
func (r *Registry) Epoch() uint64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.epoch
}
