package ga

import (
	"math/rand"
	"strings"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethpandaops/weevil/internal/chromosome"
	"github.com/ethpandaops/weevil/internal/coverage"
	"github.com/stretchr/testify/require"
)

const testABI = `[
	{"type":"function","name":"transfer","inputs":[{"name":"to","type":"address"},{"name":"amount","type":"uint256"}],"outputs":[{"name":"","type":"bool"}]},
	{"type":"function","name":"setFlag","inputs":[{"name":"v","type":"bool"}],"outputs":[]}
]`

func newTestGenerator(t *testing.T) *chromosome.Generator {
	t.Helper()

	parsed, err := abi.JSON(strings.NewReader(testABI))
	require.NoError(t, err)

	attackers := []common.Address{common.HexToAddress("0xdeadbeefdeadbeefdeadbeefdeadbeefdeadbeef")}
	contract := common.HexToAddress("0x00000000000000000000000000000000c0ffee")

	return chromosome.NewGenerator(parsed, []byte{0x60, 0x00}, contract, attackers)
}

func newTestPopulation(t *testing.T, n int, seed int64) *Population {
	t.Helper()

	g := newTestGenerator(t)
	rng := rand.New(rand.NewSource(seed))

	individuals := make([]*chromosome.Individual, n)
	for i := range individuals {
		individuals[i] = chromosome.NewIndividual(g).Init(rng, 4, nil)
	}

	return NewPopulation(individuals)
}

func constantFitness(v float64) FitnessFunc {
	return func(ind *chromosome.Individual) float64 { return v }
}

func indexFitness(pop *Population) FitnessFunc {
	rank := make(map[uint64]float64, len(pop.Individuals))
	for i, ind := range pop.Individuals {
		rank[ind.Hash()] = float64(i)
	}
	return func(ind *chromosome.Individual) float64 { return rank[ind.Hash()] }
}

func TestPopulationFitnessIsMemoized(t *testing.T) {
	pop := newTestPopulation(t, 3, 1)

	calls := 0
	fn := func(ind *chromosome.Individual) float64 {
		calls++
		return 1.0
	}

	pop.Fitness(pop.Individuals[0], fn)
	pop.Fitness(pop.Individuals[0], fn)

	require.Equal(t, 1, calls)
}

func TestPopulationMinMaxMean(t *testing.T) {
	pop := newTestPopulation(t, 4, 2)
	fn := indexFitness(pop)

	require.Equal(t, 0.0, pop.Min(fn))
	require.Equal(t, 3.0, pop.Max(fn))
	require.Equal(t, 1.5, pop.Mean(fn))
}

func TestLinearRankingSelectionReturnsDistinctParents(t *testing.T) {
	pop := newTestPopulation(t, 6, 3)
	fn := indexFitness(pop)
	sel := NewLinearRankingSelection()
	rng := rand.New(rand.NewSource(4))

	father, mother := sel.Select(pop, fn, rng)

	require.NotNil(t, father)
	require.NotNil(t, mother)
	require.NotSame(t, father, mother)
}

func TestLinearRankingSelectionSingleIndividual(t *testing.T) {
	pop := newTestPopulation(t, 1, 5)
	fn := constantFitness(1.0)
	sel := NewLinearRankingSelection()
	rng := rand.New(rand.NewSource(6))

	father, mother := sel.Select(pop, fn, rng)

	require.Same(t, father, mother)
}

func TestDataDependencySelectionPrefersIntersectingMother(t *testing.T) {
	pop := newTestPopulation(t, 8, 7)
	fn := indexFitness(pop)

	deps := coverage.NewDataDependency()
	for _, ind := range pop.Individuals {
		for _, gene := range ind.Chromosome {
			deps.RecordWrite(gene.Selector, 1)
			deps.RecordRead(gene.Selector, 1)
		}
	}

	sel := NewDataDependencySelection(deps)
	rng := rand.New(rand.NewSource(8))

	father, mother := sel.Select(pop, fn, rng)

	require.NotNil(t, father)
	require.NotNil(t, mother)
}

func TestSinglePointCrossoverConcatenatesWithinBound(t *testing.T) {
	g := newTestGenerator(t)
	rng := rand.New(rand.NewSource(9))

	father := chromosome.NewIndividual(g).Init(rng, 3, nil)
	mother := chromosome.NewIndividual(g).Init(rng, 3, nil)

	cx := SinglePointCrossover{Pc: 1.0, MaxIndividualLength: 100}
	child1, child2 := cx.Cross(father, mother, rng)

	require.Len(t, child1.Chromosome, len(father.Chromosome)+len(mother.Chromosome))
	require.Len(t, child2.Chromosome, len(mother.Chromosome)+len(father.Chromosome))
}

func TestSinglePointCrossoverSkipsOverLengthCap(t *testing.T) {
	g := newTestGenerator(t)
	rng := rand.New(rand.NewSource(10))

	father := chromosome.NewIndividual(g).Init(rng, 3, nil)
	mother := chromosome.NewIndividual(g).Init(rng, 3, nil)

	cx := SinglePointCrossover{Pc: 1.0, MaxIndividualLength: 1}
	child1, child2 := cx.Cross(father, mother, rng)

	require.Len(t, child1.Chromosome, len(father.Chromosome))
	require.Len(t, child2.Chromosome, len(mother.Chromosome))
}

func TestGeneMutationAlwaysSetsAbsentOptionalFields(t *testing.T) {
	g := newTestGenerator(t)
	rng := rand.New(rand.NewSource(11))

	ind := chromosome.NewIndividual(g).Init(rng, 3, []chromosome.Gene{{
		Contract: g.Contract,
		Amount:   g.RandomAmount(rng),
		Selector: "setFlag(bool)",
		Arguments: []interface{}{
			true,
		},
	}})

	mu := GeneMutation{Pm: 0.0}
	mutated := mu.Mutate(ind, rng)

	require.NotNil(t, mutated.Chromosome[0].Timestamp)
	require.NotNil(t, mutated.Chromosome[0].BlockNumber)
	require.NotNil(t, mutated.Chromosome[0].Balance)
	require.NotNil(t, mutated.Chromosome[0].ExtCodeSize)
	require.NotNil(t, mutated.Chromosome[0].CallReturn)
	require.NotNil(t, mutated.Chromosome[0].ReturnDataSize)
}

func TestGeneMutationDoesNotMutatePresentFieldsWhenPmZero(t *testing.T) {
	g := newTestGenerator(t)
	rng := rand.New(rand.NewSource(12))

	ts := uint64(1234)
	ind := chromosome.NewIndividual(g).Init(rng, 3, []chromosome.Gene{{
		Contract:  g.Contract,
		Amount:    g.RandomAmount(rng),
		Selector:  "setFlag(bool)",
		Arguments: []interface{}{true},
		Timestamp: &ts,
	}})

	mu := GeneMutation{Pm: 0.0}
	mutated := mu.Mutate(ind, rng)

	require.Equal(t, ts, *mutated.Chromosome[0].Timestamp)
}

type fixedHook struct {
	interval    int
	setupCalls  int
	stepCalls   []int
	finalCalled bool
}

func (h *fixedHook) Interval() int { return h.interval }
func (h *fixedHook) Setup(e *Engine) { h.setupCalls++ }
func (h *fixedHook) Step(generation int, e *Engine) { h.stepCalls = append(h.stepCalls, generation) }
func (h *fixedHook) Finalize(e *Engine) { h.finalCalled = true }

func TestEngineRunInvokesAnalysisHooksAndFinalizes(t *testing.T) {
	pop := newTestPopulation(t, 4, 13)
	fn := indexFitness(pop)
	hook := &fixedHook{interval: 1}

	engine := &Engine{
		Population:    pop,
		Selection:     NewLinearRankingSelection(),
		Crossover:     SinglePointCrossover{Pc: 0.5, MaxIndividualLength: 100},
		Mutation:      GeneMutation{Pm: 0.1},
		Fitness:       fn,
		Analysis:      []AnalysisHook{hook},
		Generations:   3,
		GlobalTimeout: time.Minute,
		Rng:           rand.New(rand.NewSource(14)),
	}

	engine.Run()

	require.Equal(t, 1, hook.setupCalls)
	require.True(t, hook.finalCalled)
	require.Equal(t, -1, hook.stepCalls[0])
	require.Len(t, hook.stepCalls, 4) // -1 plus one per generation
}

func TestEngineRunRespectsTimeout(t *testing.T) {
	pop := newTestPopulation(t, 4, 15)
	fn := indexFitness(pop)

	engine := &Engine{
		Population:    pop,
		Selection:     NewLinearRankingSelection(),
		Crossover:     SinglePointCrossover{Pc: 0.5, MaxIndividualLength: 100},
		Mutation:      GeneMutation{Pm: 0.1},
		Fitness:       fn,
		Generations:   1_000_000,
		GlobalTimeout: time.Millisecond,
		Rng:           rand.New(rand.NewSource(16)),
	}

	engine.Run()

	require.Less(t, engine.Generation, 1_000_000)
}
