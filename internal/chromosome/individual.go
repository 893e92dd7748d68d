package chromosome

import (
	"fmt"
	"hash/fnv"
	"math/rand"

	"github.com/ethpandaops/weevil/internal/evm"
	"github.com/holiman/uint256"
)

// Individual is one candidate transaction sequence plus the generator it
// was built from, per spec.md 3's `Individual { chromosome: ordered
// sequence of Gene }`, grounded on `individual.py`'s `Individual` class.
type Individual struct {
	Chromosome []Gene

	generator *Generator
	solution  []evm.Transaction
}

// NewIndividual creates an empty Individual bound to generator, mirroring
// `Individual.__init__`.
func NewIndividual(generator *Generator) *Individual {
	return &Individual{generator: generator}
}

// Generator returns the Generator this individual was built from, so
// operators outside this package (selection, crossover, mutation) can
// draw further random values from the same pools.
func (ind *Individual) Generator() *Generator { return ind.generator }

// Init assigns chromosome (generating a fresh random one if nil) and
// decodes it, mirroring `Individual.init`.
func (ind *Individual) Init(rng *rand.Rand, maxLength int, chromosome []Gene) *Individual {
	if chromosome == nil {
		chromosome = ind.generator.GenerateRandomIndividual(rng, maxLength)
	}
	ind.Chromosome = chromosome
	ind.solution = ind.Decode()
	return ind
}

// Clone deep-copies this individual's chromosome into a fresh Individual,
// mirroring `Individual.clone`.
func (ind *Individual) Clone() *Individual {
	chromosome := make([]Gene, len(ind.Chromosome))
	for i, g := range ind.Chromosome {
		chromosome[i] = g.clone()
	}

	out := NewIndividual(ind.generator)
	out.Chromosome = chromosome
	out.solution = out.Decode()
	return out
}

// Decode renders the chromosome into concrete transactions the
// interpreter can execute, mirroring `Individual.decode` +
// `get_transaction_data_from_chromosome`.
func (ind *Individual) Decode() []evm.Transaction {
	txs := make([]evm.Transaction, len(ind.Chromosome))

	for i, gene := range ind.Chromosome {
		to := gene.Contract
		tx := evm.Transaction{
			From:     gene.Account,
			To:       &to,
			Value:    new(uint256.Int).Set(gene.Amount),
			GasLimit: gene.GasLimit,
			Data:     ind.encodeCallData(gene),
		}

		if gene.Selector == constructorSelector {
			tx.To = nil
		}

		tx.Overrides = evm.Overrides{
			Timestamp:      gene.Timestamp,
			BlockNumber:    gene.BlockNumber,
			Balance:        gene.Balance,
			CallReturn:     gene.CallReturn,
			ExtCodeSize:    gene.ExtCodeSize,
			ReturnDataSize: gene.ReturnDataSize,
		}

		txs[i] = tx
	}

	ind.solution = txs

	return txs
}

// encodeCallData renders one gene's selector+arguments into call data, the
// three-way sentinel switch of `get_transaction_data_from_chromosome`.
func (ind *Individual) encodeCallData(gene Gene) []byte {
	switch gene.Selector {
	case constructorSelector:
		return append([]byte(nil), ind.generator.Bytecode...)

	case fallbackSelector:
		return nil

	default:
		name, ok := ind.generator.nameBySig[gene.Selector]
		if !ok {
			return nil
		}

		packed, err := ind.generator.ABI.Pack(name, gene.Arguments...)
		if err != nil {
			return nil
		}

		return packed
	}
}

// Hash is a stable hash of the decoded solution, used as the fitness
// memo's dedup key, mirroring `Individual.hash`.
func (ind *Individual) Hash() uint64 {
	if ind.solution == nil {
		ind.solution = ind.Decode()
	}

	h := fnv.New64a()
	for _, tx := range ind.solution {
		fmt.Fprintf(h, "%s|%v|%s|%d|%x;", tx.From.Hex(), tx.To, tx.Value.String(), tx.GasLimit, tx.Data)
	}

	return h.Sum64()
}
