package ga

import (
	"math/rand"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethpandaops/weevil/internal/chromosome"
)

// Mutator perturbs one individual in place (on a fresh clone), mirroring
// `mutation.py`'s `Mutation.mutate`.
type Mutator interface {
	Mutate(ind *chromosome.Individual, rng *rand.Rand) *chromosome.Individual
}

// GeneMutation mutates every gene of a cloned individual with per-field
// probability Pm. Required fields (account/amount/gaslimit/arguments) are
// mutated with probability Pm each; optional override fields use the
// asymmetric set-if-absent-else-maybe-mutate rule: if the gene lacks the
// field it is always freshly set, if present each entry is only mutated
// with probability Pm, per spec.md 4.7.
type GeneMutation struct {
	Pm float64
}

func (mu GeneMutation) Mutate(ind *chromosome.Individual, rng *rand.Rand) *chromosome.Individual {
	clone := ind.Clone()
	gen := clone.Generator()

	for i := range clone.Chromosome {
		mu.mutateGene(gen, &clone.Chromosome[i], rng)
	}

	clone.Decode()

	return clone
}

func (mu GeneMutation) roll(rng *rand.Rand) bool { return rng.Float64() < mu.Pm }

func (mu GeneMutation) mutateGene(gen *chromosome.Generator, gene *chromosome.Gene, rng *rand.Rand) {
	if mu.roll(rng) {
		gene.Account = gen.RandomAccount(rng)
	}
	if mu.roll(rng) {
		gene.Amount = gen.RandomAmount(rng)
	}
	if mu.roll(rng) {
		gene.GasLimit = gen.RandomGasLimit(rng)
	}

	for i := range gene.Arguments {
		if !mu.roll(rng) {
			continue
		}
		v, err := gen.RandomArgumentFor(gene.Selector, i, rng)
		if err != nil {
			continue
		}
		gene.Arguments[i] = v
	}

	mu.mutateUint64Ptr(&gene.Timestamp, gen.RandomTimestamp, rng)
	mu.mutateUint64Ptr(&gene.BlockNumber, gen.RandomBlockNumber, rng)

	mu.mutateWordMap(&gene.Balance, gen, gen.RandomBalance, rng)
	mu.mutateWordMap(&gene.ExtCodeSize, gen, gen.RandomExtCodeSize, rng)
	mu.mutateWordMap(&gene.CallReturn, gen, func(rng *rand.Rand) uint64 { return gen.RandomCallReturn(gen.RandomOverrideAddress(rng), rng) }, rng)
	mu.mutateWordMap(&gene.ReturnDataSize, gen, func(rng *rand.Rand) uint64 { return gen.RandomReturnDataSize(gen.RandomOverrideAddress(rng), rng) }, rng)
}

func (mu GeneMutation) mutateUint64Ptr(field **uint64, draw func(*rand.Rand) uint64, rng *rand.Rand) {
	if *field == nil {
		v := draw(rng)
		*field = &v
		return
	}
	if mu.roll(rng) {
		v := draw(rng)
		*field = &v
	}
}

func (mu GeneMutation) mutateWordMap(field *map[common.Address]uint64, gen *chromosome.Generator, draw func(*rand.Rand) uint64, rng *rand.Rand) {
	if *field == nil {
		addr := gen.RandomOverrideAddress(rng)
		*field = map[common.Address]uint64{addr: draw(rng)}
		return
	}

	for addr := range *field {
		if mu.roll(rng) {
			(*field)[addr] = draw(rng)
		}
	}
}
