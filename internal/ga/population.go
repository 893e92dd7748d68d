// Package ga implements C7: the (mu, lambda) evolutionary engine —
// population, linear-ranking selection, single-point crossover, per-gene
// mutation, and the per-generation analysis callback contract, per
// spec.md 4.7.
package ga

import "github.com/ethpandaops/weevil/internal/chromosome"

// FitnessFunc scores one individual; lower is better, per spec.md 4.7.
type FitnessFunc func(ind *chromosome.Individual) float64

// Population is the (mu, lambda) individual set plus its fitness memo,
// keyed by Individual.Hash() per spec.md 3's "hash(indv) ... used as a
// dedup key in the fitness memo".
type Population struct {
	Individuals []*chromosome.Individual

	memo map[uint64]float64
}

// NewPopulation wraps individuals in a fresh Population with an empty
// fitness memo.
func NewPopulation(individuals []*chromosome.Individual) *Population {
	return &Population{Individuals: individuals, memo: make(map[uint64]float64)}
}

// Size is the (mu == lambda) population size.
func (p *Population) Size() int { return len(p.Individuals) }

// Fitness returns fn(ind), memoized by ind.Hash() so repeated individuals
// (common after crossover/mutation converge) are not rescored.
func (p *Population) Fitness(ind *chromosome.Individual, fn FitnessFunc) float64 {
	key := ind.Hash()
	if v, ok := p.memo[key]; ok {
		return v
	}

	v := fn(ind)
	p.memo[key] = v

	return v
}

// AllFitness scores every individual in population order, memoized.
func (p *Population) AllFitness(fn FitnessFunc) []float64 {
	out := make([]float64, len(p.Individuals))
	for i, ind := range p.Individuals {
		out[i] = p.Fitness(ind, fn)
	}
	return out
}

// Min returns the lowest fitness in the population, mirroring the
// engine's `population.min(fitness)` StatVar source.
func (p *Population) Min(fn FitnessFunc) float64 { return reduce(p.AllFitness(fn), minOp) }

// Max returns the highest fitness in the population.
func (p *Population) Max(fn FitnessFunc) float64 { return reduce(p.AllFitness(fn), maxOp) }

// Mean returns the population's average fitness.
func (p *Population) Mean(fn FitnessFunc) float64 {
	values := p.AllFitness(fn)
	if len(values) == 0 {
		return 0
	}
	sum := 0.0
	for _, v := range values {
		sum += v
	}
	return sum / float64(len(values))
}

func minOp(a, b float64) float64 {
	if a < b {
		return a
	}
	return b
}

func maxOp(a, b float64) float64 {
	if a > b {
		return a
	}
	return b
}

func reduce(values []float64, op func(a, b float64) float64) float64 {
	if len(values) == 0 {
		return 0
	}
	out := values[0]
	for _, v := range values[1:] {
		out = op(out, v)
	}
	return out
}
