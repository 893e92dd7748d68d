package ga

import (
	"math/rand"
	"sort"

	"github.com/ethpandaops/weevil/internal/chromosome"
	"github.com/ethpandaops/weevil/internal/coverage"
)

// Selector draws a pair of parents from a scored population.
type Selector interface {
	Select(pop *Population, fitness FitnessFunc, rng *rand.Rand) (father, mother *chromosome.Individual)
}

// LinearRankingSelection implements Baker's linear ranking: individuals
// are fitness-sorted, assigned selection probability p(i) = pmin +
// (pmax-pmin)*(i-1)/(N-1) over rank i in {1..N}, and two distinct parents
// are drawn from the resulting roulette wheel, per spec.md 4.7.
type LinearRankingSelection struct {
	PMin, PMax float64
}

// NewLinearRankingSelection applies the original fuzzer's defaults of
// pmin=0.1, pmax=0.9.
func NewLinearRankingSelection() LinearRankingSelection {
	return LinearRankingSelection{PMin: 0.1, PMax: 0.9}
}

func (s LinearRankingSelection) Select(pop *Population, fitness FitnessFunc, rng *rand.Rand) (*chromosome.Individual, *chromosome.Individual) {
	wheel, sorted := s.wheel(pop, fitness)
	if len(sorted) == 0 {
		return nil, nil
	}
	if len(sorted) == 1 {
		return sorted[0], sorted[0]
	}

	fatherIdx := spin(wheel, rng)
	motherIdx := spin(wheel, rng)
	for motherIdx == fatherIdx {
		motherIdx = spin(wheel, rng)
	}

	return sorted[fatherIdx], sorted[motherIdx]
}

// wheel fitness-sorts the population (ascending — lower fitness is
// better, per spec.md 4.7) and builds the normalized cumulative selection
// wheel.
func (s LinearRankingSelection) wheel(pop *Population, fitness FitnessFunc) ([]float64, []*chromosome.Individual) {
	sorted := append([]*chromosome.Individual(nil), pop.Individuals...)
	sort.Slice(sorted, func(i, j int) bool {
		return pop.Fitness(sorted[i], fitness) < pop.Fitness(sorted[j], fitness)
	})

	n := len(sorted)
	if n == 0 {
		return nil, nil
	}

	probabilities := make([]float64, n)
	for i := 0; i < n; i++ {
		rank := float64(i + 1) // rank in {1..N}
		switch {
		case n == 1:
			probabilities[i] = s.PMax
		case i == 0:
			probabilities[i] = s.PMin
		case i == n-1:
			probabilities[i] = s.PMax
		default:
			probabilities[i] = s.PMin + (s.PMax-s.PMin)*(rank-1)/float64(n-1)
		}
	}

	psum := 0.0
	for _, p := range probabilities {
		psum += p
	}

	wheel := make([]float64, n)
	acc := 0.0
	for i, p := range probabilities {
		acc += p / psum
		wheel[i] = acc
	}

	return wheel, sorted
}

// spin draws one index from a normalized cumulative wheel via the
// bisect-right rule the original fuzzer uses.
func spin(wheel []float64, rng *rand.Rand) int {
	r := rng.Float64()
	idx := sort.Search(len(wheel), func(i int) bool { return wheel[i] > r })
	if idx >= len(wheel) {
		idx = len(wheel) - 1
	}
	return idx
}

// DataDependencySelection draws the father by linear ranking, then
// prefers a mother whose storage read/write footprint intersects the
// father's, falling back to the father's neighbour in ranked order, per
// `data_dependency_linear_ranking_selection.py`.
type DataDependencySelection struct {
	Base LinearRankingSelection
	Deps *coverage.DataDependency
}

// NewDataDependencySelection wraps the default linear ranking selection
// with deps for the intersection search.
func NewDataDependencySelection(deps *coverage.DataDependency) DataDependencySelection {
	return DataDependencySelection{Base: NewLinearRankingSelection(), Deps: deps}
}

func (s DataDependencySelection) Select(pop *Population, fitness FitnessFunc, rng *rand.Rand) (*chromosome.Individual, *chromosome.Individual) {
	wheel, sorted := s.Base.wheel(pop, fitness)
	if len(sorted) == 0 {
		return nil, nil
	}
	if len(sorted) == 1 {
		return sorted[0], sorted[0]
	}

	fatherIdx := spin(wheel, rng)
	father := sorted[fatherIdx]

	fatherReads, fatherWrites := extractReadsWrites(father, s.Deps)
	fatherSelectors := selectorSequence(father)

	shuffled := append([]*chromosome.Individual(nil), pop.Individuals...)
	rng.Shuffle(len(shuffled), func(i, j int) { shuffled[i], shuffled[j] = shuffled[j], shuffled[i] })

	for _, candidate := range shuffled {
		if selectorSequenceEqual(fatherSelectors, selectorSequence(candidate)) {
			continue
		}

		reads, writes := extractReadsWrites(candidate, s.Deps)
		if coverage.Intersects(reads, fatherWrites) || coverage.Intersects(fatherReads, writes) {
			return father, candidate
		}
	}

	motherIdx := (fatherIdx + 1) % len(sorted)

	return father, sorted[motherIdx]
}

func extractReadsWrites(ind *chromosome.Individual, deps *coverage.DataDependency) (map[uint64]bool, map[uint64]bool) {
	reads, writes := make(map[uint64]bool), make(map[uint64]bool)

	for _, gene := range ind.Chromosome {
		rw, ok := deps.Get(gene.Selector)
		if !ok {
			continue
		}
		for slot := range rw.Read {
			reads[slot] = true
		}
		for slot := range rw.Write {
			writes[slot] = true
		}
	}

	return reads, writes
}

func selectorSequence(ind *chromosome.Individual) []string {
	out := make([]string, len(ind.Chromosome))
	for i, gene := range ind.Chromosome {
		out[i] = gene.Selector
	}
	return out
}

func selectorSequenceEqual(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
