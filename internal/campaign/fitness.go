package campaign

import (
	"github.com/ethpandaops/weevil/internal/chromosome"
	"github.com/ethpandaops/weevil/internal/coverage"
	"github.com/ethpandaops/weevil/internal/ga"
)

// Fitness returns a ga.FitnessFunc bound to this campaign: it runs
// Evaluate, scores the individual's own branch record against the
// campaign-wide code coverage set, and — when the config opts into the
// data-dependency variant — subtracts the data-dependency bonus, per
// spec.md 4.7's `compute_branch_coverage_fitness`/
// `compute_data_dependency_fitness` pairing. Lower is better.
func (c *Campaign) Fitness() ga.FitnessFunc {
	return func(ind *chromosome.Individual) float64 {
		result := c.Evaluate(ind)

		fitness := coverage.BranchCoverageFitness(result.Branches, c.CFG().VisitedPCs)

		if c.Config.DataDependencyVariant {
			fitness -= coverage.DataDependencyFitness(selectors(ind), c.dataDeps)
		}

		return float64(fitness)
	}
}

// selectors lists the function selectors ind's chromosome invokes, the
// per-individual slice DataDependencyFitness iterates.
func selectors(ind *chromosome.Individual) []string {
	out := make([]string, len(ind.Chromosome))
	for i, gene := range ind.Chromosome {
		out[i] = gene.Selector
	}
	return out
}
