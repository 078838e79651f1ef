// Package distractor builds learner-facing option sets: the correct options
// padded with plausible alternatives drawn from other material.
package distractor

import (
	"math/rand/v2"
	"sync"

	"github.com/mind-engage/mindengage-clinical/internal/clinical"
)

// Default target sizes for an option set, correct options included.
const (
	DefaultDiagnosisTotal   = 5
	DefaultTreatmentTotal   = 3
	DefaultExaminationTotal = 8
)

// Sampler draws distractors with an injectable random source. It is safe for
// concurrent use.
type Sampler struct {
	mu  sync.Mutex
	rng *rand.Rand
}

// New returns a Sampler using rng. A nil rng gets a randomly seeded PCG
// source, so production option order is not reproducible.
func New(rng *rand.Rand) *Sampler {
	if rng == nil {
		rng = rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64()))
	}
	return &Sampler{rng: rng}
}

// NewSeeded is New with a fixed seed.
func NewSeeded(seed uint64) *Sampler {
	return New(rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15)))
}

// Sample returns every correct option plus up to targetTotal−len(correct)
// options drawn from pool, in random order. Pool entries that share a name
// (ignoring case) with a correct option, or with an earlier pool entry, are
// skipped. If the usable pool is too small all of it is used.
func (s *Sampler) Sample(correct, pool []clinical.Option, targetTotal int) []clinical.Option {
	candidates := Filter(correct, pool)
	need := targetTotal - len(correct)
	if need < 0 {
		need = 0
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	var picked []clinical.Option
	if len(candidates) <= need {
		picked = candidates
	} else {
		for _, i := range s.rng.Perm(len(candidates))[:need] {
			picked = append(picked, candidates[i])
		}
	}

	out := make([]clinical.Option, 0, len(correct)+len(picked))
	out = append(out, correct...)
	out = append(out, picked...)
	s.rng.Shuffle(len(out), func(i, j int) { out[i], out[j] = out[j], out[i] })
	return out
}

// Filter drops pool entries that collide with a correct option by id or by
// name, and later pool entries that repeat an earlier name.
func Filter(correct, pool []clinical.Option) []clinical.Option {
	ids := make(map[int64]struct{}, len(correct))
	var names []string
	for _, c := range correct {
		ids[c.ID] = struct{}{}
		names = append(names, c.Name)
	}
	out := make([]clinical.Option, 0, len(pool))
	for _, o := range pool {
		if _, dup := ids[o.ID]; dup {
			continue
		}
		if nameTaken(names, o.Name) {
			continue
		}
		ids[o.ID] = struct{}{}
		names = append(names, o.Name)
		out = append(out, o)
	}
	return out
}

func nameTaken(names []string, name string) bool {
	for _, n := range names {
		if clinical.SameName(n, name) {
			return true
		}
	}
	return false
}

// Public strips ground truth from a shuffled option set.
func Public(opts []clinical.Option) []clinical.PublicOption {
	out := make([]clinical.PublicOption, len(opts))
	for i, o := range opts {
		out[i] = o.Public()
	}
	return out
}
