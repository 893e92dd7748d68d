package campaign

import (
	"context"
	"math/rand"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethpandaops/weevil/internal/chromosome"
	"github.com/ethpandaops/weevil/internal/ga"
	"github.com/ethpandaops/weevil/internal/solver"
	"github.com/ethpandaops/weevil/internal/taint"
)

// symbolicPass is the ga.AnalysisHook driving spec.md 4.8's symbolic
// search: every generation whose code coverage failed to grow over the
// previous one, it tries to solve the negation of every single-direction
// branch observed so far, feeding any solved model back into the
// generator's pools. Grounded on execution_trace_analysis.py's
// register_step/symbolic_execution pairing: symbolic execution runs on
// every stagnant generation, while the population only resets once
// Stagnation's own counter reaches its configured maximum.
type symbolicPass struct {
	campaign *Campaign

	previousCoverage int
}

// NewSymbolicPass wires an AnalysisHook that runs once per generation
// (Interval() == 1) to keep the "every stagnant round" cadence the
// original fuzzer uses, rather than some coarser stride.
func NewSymbolicPass(c *Campaign) ga.AnalysisHook {
	return &symbolicPass{campaign: c, previousCoverage: -1}
}

func (h *symbolicPass) Interval() int { return 1 }

func (h *symbolicPass) Setup(engine *ga.Engine) {
	h.previousCoverage = h.campaign.CodeCoverageCount()
}

func (h *symbolicPass) Step(generation int, engine *ga.Engine) {
	coverage := h.campaign.CodeCoverageCount()
	stagnant := generation >= 0 && coverage == h.previousCoverage
	h.previousCoverage = coverage

	if stagnant {
		h.runSymbolicExecution()
	}

	if h.campaign.Stagnation.Observe(coverage) {
		engine.Population = resetPopulation(h.campaign.Generator, engine.Population.Size(), engine.Rng, h.campaign.Config.MaxIndividualLength)
	}
}

func (h *symbolicPass) Finalize(engine *ga.Engine) {}

// runSymbolicExecution tries to negate every branch direction the
// campaign has observed exactly one side of, mirroring symbolic_execution's
// single-direction pc filter.
func (h *symbolicPass) runSymbolicExecution() {
	c := h.campaign

	for pc, directions := range c.CFG().VisitedBranches {
		if len(directions) != 1 {
			continue
		}

		var destination uint64
		for d := range directions {
			destination = d
		}

		obs, ok := c.branchMeta[pc][destination]
		if !ok || len(obs.Path) == 0 {
			continue
		}

		query := solver.Query{
			PC:        pc,
			Path:      obs.Path[:len(obs.Path)-1],
			Branch:    obs.Path[len(obs.Path)-1],
			WantTaken: false,
		}

		ctx, cancel := context.WithTimeout(context.Background(), c.Config.SolverTimeout)
		model, ok := c.Solver.Solve(ctx, query)
		cancel()
		if !ok {
			continue
		}

		vars := solver.Vars(query)
		solver.FeedPool(c.Generator, obs.Genes, model, vars)
		h.fundSolvedAddresses(vars, model)
	}
}

// fundSolvedAddresses materializes any solved caller address (KindCaller
// variables only) that the campaign's world state has never seen, per
// spec.md 4.8.
func (h *symbolicPass) fundSolvedAddresses(vars []taint.Expr, model solver.Model) {
	for _, v := range vars {
		if v.Kind != taint.KindCaller {
			continue
		}

		value, ok := model[v.Name()]
		if !ok {
			continue
		}

		h.campaign.fundSolvedAddress(common.Address(value.Bytes20()))
	}
}

// resetPopulation regenerates a fresh population of size individuals,
// mirroring the original's population reset once symbolic execution has
// been tried MaxSymbolicExecution stagnant generations in a row without
// new coverage.
func resetPopulation(gen *chromosome.Generator, size int, rng *rand.Rand, maxLength int) *ga.Population {
	individuals := make([]*chromosome.Individual, size)
	for i := range individuals {
		individuals[i] = chromosome.NewIndividual(gen).Init(rng, maxLength, nil)
	}
	return ga.NewPopulation(individuals)
}
