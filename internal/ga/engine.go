package ga

import (
	"math/rand"
	"time"

	"github.com/ethpandaops/weevil/internal/chromosome"
)

// Engine ties the population, operators, and fitness function together
// into the (mu, lambda) evolutionary loop, mirroring
// `EvolutionaryFuzzingEngine` in engine.py.
type Engine struct {
	Population *Population
	Selection  Selector
	Crossover  Crossover
	Mutation   Mutator
	Fitness    FitnessFunc
	Analysis   []AnalysisHook

	Generations   int
	GlobalTimeout time.Duration

	Rng *rand.Rand

	// Generation is the current generation counter, readable by analysis
	// hooks during Step.
	Generation int
}

// Run executes up to Generations rounds of selection/crossover/mutation,
// or until GlobalTimeout elapses, replacing the population each round with
// its offspring. Analysis hooks fire once before the loop (generation -1)
// and every Interval generations thereafter; Finalize always runs, even on
// early timeout exit, mirroring engine.py's try/finally.
func (e *Engine) Run() {
	deadline := time.Now().Add(e.GlobalTimeout)

	for _, a := range e.Analysis {
		a.Setup(e)
	}

	defer func() {
		for _, a := range e.Analysis {
			a.Finalize(e)
		}
	}()

	for _, a := range e.Analysis {
		a.Step(-1, e)
	}

	e.Generation = 0
	for e.Generation < e.Generations {
		if e.GlobalTimeout > 0 && time.Now().After(deadline) {
			break
		}

		e.step()

		for _, a := range e.Analysis {
			if a.Interval() <= 0 || e.Generation%a.Interval() == 0 {
				a.Step(e.Generation, e)
			}
		}

		e.Generation++
	}
}

// step produces one generation's worth of offspring and replaces the
// population, mirroring engine.py's `size = population.size // 2` pairing
// loop.
func (e *Engine) step() {
	size := e.Population.Size() / 2
	if size == 0 {
		size = 1
	}

	offspring := make([]*chromosome.Individual, 0, size*2)

	for i := 0; i < size; i++ {
		father, mother := e.Selection.Select(e.Population, e.Fitness, e.Rng)
		if father == nil {
			continue
		}

		child1, child2 := e.Crossover.Cross(father, mother, e.Rng)

		child1 = e.Mutation.Mutate(child1, e.Rng)
		child2 = e.Mutation.Mutate(child2, e.Rng)

		offspring = append(offspring, child1, child2)
	}

	if len(offspring) == 0 {
		return
	}

	e.Population = NewPopulation(offspring)
}
