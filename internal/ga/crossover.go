package ga

import (
	"math/rand"

	"github.com/ethpandaops/weevil/internal/chromosome"
	"github.com/ethpandaops/weevil/internal/coverage"
)

// Crossover recombines two parents into two children, mirroring
// `crossover.py`'s `Crossover.cross`.
type Crossover interface {
	Cross(father, mother *chromosome.Individual, rng *rand.Rand) (child1, child2 *chromosome.Individual)
}

// SinglePointCrossover concatenates the parents' chromosomes (father+mother
// and mother+father), capped at MaxIndividualLength, per spec.md 4.7.
type SinglePointCrossover struct {
	Pc                  float64
	MaxIndividualLength int
}

func (c SinglePointCrossover) Cross(father, mother *chromosome.Individual, rng *rand.Rand) (*chromosome.Individual, *chromosome.Individual) {
	if mother == nil {
		return father.Clone(), father.Clone()
	}

	f, m := father.Clone(), mother.Clone()

	if rng.Float64() > c.Pc || len(f.Chromosome)+len(m.Chromosome) > c.MaxIndividualLength {
		return f, m
	}

	child1 := chromosome.NewIndividual(father.Generator()).Init(rng, c.MaxIndividualLength, concat(f.Chromosome, m.Chromosome))
	child2 := chromosome.NewIndividual(mother.Generator()).Init(rng, c.MaxIndividualLength, concat(m.Chromosome, f.Chromosome))

	return child1, child2
}

// DataDependencyCrossover only concatenates in a direction when the later
// individual's read set intersects the earlier one's write set; otherwise
// that child is just the unmodified clone, per `data_dependency_crossover.py`.
type DataDependencyCrossover struct {
	Pc                  float64
	MaxIndividualLength int
	Deps                *coverage.DataDependency
}

func (c DataDependencyCrossover) Cross(father, mother *chromosome.Individual, rng *rand.Rand) (*chromosome.Individual, *chromosome.Individual) {
	if mother == nil {
		return father.Clone(), father.Clone()
	}

	f, m := father.Clone(), mother.Clone()

	if rng.Float64() > c.Pc || len(f.Chromosome)+len(m.Chromosome) > c.MaxIndividualLength {
		return f, m
	}

	fatherReads, fatherWrites := extractReadsWrites(f, c.Deps)
	motherReads, motherWrites := extractReadsWrites(m, c.Deps)

	child1 := f
	if coverage.Intersects(motherReads, fatherWrites) {
		child1 = chromosome.NewIndividual(father.Generator()).Init(rng, c.MaxIndividualLength, concat(f.Chromosome, m.Chromosome))
	}

	child2 := m
	if coverage.Intersects(fatherReads, motherWrites) {
		child2 = chromosome.NewIndividual(mother.Generator()).Init(rng, c.MaxIndividualLength, concat(m.Chromosome, f.Chromosome))
	}

	return child1, child2
}

func concat(a, b []chromosome.Gene) []chromosome.Gene {
	out := make([]chromosome.Gene, 0, len(a)+len(b))
	out = append(out, a...)
	out = append(out, b...)
	return out
}
