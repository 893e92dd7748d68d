package chromosome

import (
	"fmt"
	"math/rand"
	"sort"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
)

// Generator produces random genes and individuals biased toward the
// per-function pools, the Go realization of the original fuzzer's
// `generator.py` (not present standalone in the reference source; its
// behavior is inlined into `Individual.init`/`get_transaction_data_from_
// chromosome` and restated here as its own component per spec.md 4.6).
type Generator struct {
	ABI      abi.ABI
	Bytecode []byte // constructor init code, for constructorSelector genes
	Contract common.Address

	Attackers []common.Address
	Pools     *Pools

	selectors []string          // sorted method names, excluding constructor
	nameBySig map[string]string // method.Sig -> method.Name, for Individual.Decode's Pack lookup
}

// NewGenerator builds a Generator over a parsed ABI, deployment bytecode,
// and the deployed contract's address.
func NewGenerator(parsed abi.ABI, bytecode []byte, contract common.Address, attackers []common.Address) *Generator {
	g := &Generator{
		ABI:       parsed,
		Bytecode:  bytecode,
		Contract:  contract,
		Attackers: attackers,
		Pools:     NewPools(attackers),
	}

	g.nameBySig = make(map[string]string, len(parsed.Methods))
	for name, m := range parsed.Methods {
		g.selectors = append(g.selectors, name)
		g.nameBySig[m.Sig] = name
	}
	sort.Strings(g.selectors)

	return g
}

// GenerateRandomIndividual produces a fresh chromosome of up to maxLength
// genes, per spec.md 4.6/4.7's `generate_random_individual`.
func (g *Generator) GenerateRandomIndividual(rng *rand.Rand, maxLength int) []Gene {
	n := 1 + rng.Intn(maxLength)
	chromosome := make([]Gene, n)
	for i := range chromosome {
		chromosome[i] = g.RandomGene(rng)
	}
	return chromosome
}

// RandomGene draws one candidate transaction, biasing every field toward
// its pool when the pool is non-empty and falling back to a fresh random
// draw otherwise — the "draw either from the pool (biased) or from a
// random generator matching the declared ABI type" rule of spec.md 4.6.
func (g *Generator) RandomGene(rng *rand.Rand) Gene {
	gene := Gene{
		Account:  g.randomAccount(rng),
		Contract: g.Contract,
		Amount:   g.randomAmount(rng),
		GasLimit: g.randomGasLimit(rng),
	}

	gene.Selector, gene.Arguments = g.randomCall(rng)

	if rng.Intn(4) == 0 {
		v := g.randomTimestamp(rng)
		gene.Timestamp = &v
	}
	if rng.Intn(4) == 0 {
		v := g.randomBlockNumber(rng)
		gene.BlockNumber = &v
	}
	if rng.Intn(4) == 0 {
		gene.Balance = map[common.Address]uint64{g.Contract: g.randomOverrideWord(g.Contract, g.Pools.RandomBalance, rng)}
	}
	if rng.Intn(4) == 0 {
		gene.ExtCodeSize = map[common.Address]uint64{g.Contract: g.randomOverrideWord(g.Contract, g.Pools.RandomExtCodeSize, rng)}
	}
	if rng.Intn(4) == 0 {
		target := g.RandomOverrideAddress(rng)
		gene.ReturnDataSize = map[common.Address]uint64{target: g.RandomReturnDataSize(target, rng)}
	}

	return gene
}

// randomCall picks the function this gene invokes, per the original
// `Individual.get_transaction_data_from_chromosome`'s three-way sentinel:
// a real function signature, "fallback", or "constructor".
func (g *Generator) randomCall(rng *rand.Rand) (selector string, arguments []interface{}) {
	if len(g.selectors) == 0 || rng.Intn(8) == 0 {
		if rng.Intn(2) == 0 {
			return fallbackSelector, nil
		}
		return constructorSelector, nil
	}

	name := g.selectors[rng.Intn(len(g.selectors))]
	method := g.ABI.Methods[name]
	sig := method.Sig

	args := make([]interface{}, len(method.Inputs))
	for i, input := range method.Inputs {
		if v, ok := g.Pools.RandomArgument(sig, i, rng); ok && rng.Intn(2) == 0 {
			args[i] = v
			continue
		}

		v, err := randomArgument(input.Type, g.poolAddresses(), rng)
		if err != nil {
			// Unsupported argument shapes (nested tuples) fall back to a
			// nil placeholder; Individual.Decode skips encoding on error.
			args[i] = nil
			continue
		}

		g.Pools.AddArgument(sig, i, v)
		args[i] = v
	}

	return sig, args
}

// ArgumentCount returns the number of declared arguments for selector, or
// 0 for fallback/constructor/unknown selectors — used by the mutation
// operator to walk each gene's argument slots.
func (g *Generator) ArgumentCount(selector string) int {
	name, ok := g.nameBySig[selector]
	if !ok {
		return 0
	}
	return len(g.ABI.Methods[name].Inputs)
}

// MethodNameBySig looks up the ABI method name for a Gene.Selector value
// (the method's Sig, not its Name), for callers that need the full
// abi.Method rather than just the signature string.
func (g *Generator) MethodNameBySig(sig string) (string, bool) {
	name, ok := g.nameBySig[sig]
	return name, ok
}

func (g *Generator) poolAddresses() []common.Address {
	addrs := append([]common.Address(nil), g.Attackers...)
	return append(addrs, g.Contract)
}

func (g *Generator) randomAccount(rng *rand.Rand) common.Address {
	if addr, ok := g.Pools.RandomAccount(rng); ok {
		return addr
	}
	return randomAddress(g.poolAddresses(), rng)
}

func (g *Generator) randomAmount(rng *rand.Rand) *uint256.Int {
	if v, ok := g.Pools.RandomAmount(rng); ok && rng.Intn(2) == 0 {
		return new(uint256.Int).Set(v)
	}
	v := uint256.NewInt(rng.Uint64() % 1_000_000_000_000)
	g.Pools.AddAmount(v)
	return new(uint256.Int).Set(v)
}

func (g *Generator) randomGasLimit(rng *rand.Rand) uint64 {
	if v, ok := g.Pools.RandomGasLimit(rng); ok && rng.Intn(2) == 0 {
		return v
	}
	v := 21000 + rng.Uint64()%4_000_000
	g.Pools.AddGasLimit(v)
	return v
}

func (g *Generator) randomTimestamp(rng *rand.Rand) uint64 {
	if v, ok := g.Pools.RandomTimestamp(rng); ok && rng.Intn(2) == 0 {
		return v
	}
	v := rng.Uint64() % 2_000_000_000
	g.Pools.AddTimestamp(v)
	return v
}

func (g *Generator) randomBlockNumber(rng *rand.Rand) uint64 {
	if v, ok := g.Pools.RandomBlockNumber(rng); ok && rng.Intn(2) == 0 {
		return v
	}
	v := rng.Uint64() % 20_000_000
	g.Pools.AddBlockNumber(v)
	return v
}

func (g *Generator) randomOverrideWord(addr common.Address, pool func(common.Address, *rand.Rand) (uint64, bool), rng *rand.Rand) uint64 {
	if v, ok := pool(addr, rng); ok && rng.Intn(2) == 0 {
		return v
	}
	return rng.Uint64() % 1000
}

// The following exported wrappers give the mutation operator (internal/ga)
// access to the same per-field random draws RandomGene uses internally,
// per the original generator's get_random_account/get_random_amount/
// get_random_gaslimit/get_random_timestamp/get_random_blocknumber/
// get_random_balance/get_random_callresult/get_random_extcodesize/
// get_random_returndatasize family.

func (g *Generator) RandomAccount(rng *rand.Rand) common.Address { return g.randomAccount(rng) }

func (g *Generator) RandomAmount(rng *rand.Rand) *uint256.Int { return g.randomAmount(rng) }

func (g *Generator) RandomGasLimit(rng *rand.Rand) uint64 { return g.randomGasLimit(rng) }

func (g *Generator) RandomTimestamp(rng *rand.Rand) uint64 { return g.randomTimestamp(rng) }

func (g *Generator) RandomBlockNumber(rng *rand.Rand) uint64 { return g.randomBlockNumber(rng) }

func (g *Generator) RandomBalance(rng *rand.Rand) uint64 {
	return g.randomOverrideWord(g.Contract, g.Pools.RandomBalance, rng)
}

func (g *Generator) RandomExtCodeSize(rng *rand.Rand) uint64 {
	return g.randomOverrideWord(g.Contract, g.Pools.RandomExtCodeSize, rng)
}

func (g *Generator) RandomCallReturn(addr common.Address, rng *rand.Rand) uint64 {
	return g.randomOverrideWord(addr, g.Pools.RandomCallReturn, rng)
}

func (g *Generator) RandomReturnDataSize(addr common.Address, rng *rand.Rand) uint64 {
	return g.randomOverrideWord(addr, g.Pools.RandomReturnDataSize, rng)
}

// RandomOverrideAddress picks an address from the known universe
// (attacker accounts plus the target contract) for a fresh call_return/
// extcodesize override entry, mirroring get_random_callresult_and_address's
// address half.
func (g *Generator) RandomOverrideAddress(rng *rand.Rand) common.Address {
	return randomAddress(g.poolAddresses(), rng)
}

// RandomArgumentFor draws a fresh value for one argument slot of selector,
// biased toward its pool, and records it into the pool — the single-
// argument mutation counterpart of randomCall's bulk draw, mirroring
// get_random_argument.
func (g *Generator) RandomArgumentFor(selector string, index int, rng *rand.Rand) (interface{}, error) {
	name, ok := g.nameBySig[selector]
	if !ok {
		return nil, fmt.Errorf("chromosome: unknown selector %q", selector)
	}

	method := g.ABI.Methods[name]
	if index < 0 || index >= len(method.Inputs) {
		return nil, fmt.Errorf("chromosome: argument index %d out of range for %q", index, selector)
	}

	if v, ok := g.Pools.RandomArgument(selector, index, rng); ok && rng.Intn(2) == 0 {
		return v, nil
	}

	v, err := randomArgument(method.Inputs[index].Type, g.poolAddresses(), rng)
	if err != nil {
		return nil, err
	}

	g.Pools.AddArgument(selector, index, v)

	return v, nil
}
