package solver

import (
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethpandaops/weevil/internal/chromosome"
	"github.com/ethpandaops/weevil/internal/taint"
	"github.com/holiman/uint256"
)

// FeedPool writes a solved model's values back into generator's per-
// function pools, biasing future individuals toward the branch the solver
// just proved reachable, mirroring execution_trace_analysis.py's
// per-variable-kind dispatch in symbolic_execution. genes is the
// individual's gene sequence, used to map a variable's transaction index
// back to the function selector and contract address that solved value
// belongs to.
func FeedPool(gen *chromosome.Generator, genes []chromosome.Gene, model Model, vars []taint.Expr) {
	for _, v := range vars {
		value, ok := model[v.Name()]
		if !ok {
			continue
		}
		if v.TxIndex < 0 || v.TxIndex >= len(genes) {
			continue
		}
		gene := genes[v.TxIndex]

		switch v.Kind {
		case taint.KindTimestamp:
			gen.Pools.AddTimestamp(value.Uint64())

		case taint.KindBlocknumber:
			gen.Pools.AddBlockNumber(value.Uint64())

		case taint.KindCallValue:
			gen.Pools.AddAmount(new(uint256.Int).Set(value))

		case taint.KindGas:
			gen.Pools.AddGasLimit(value.Uint64())

		case taint.KindBalance:
			gen.Pools.AddBalance(gene.Contract, value.Uint64())

		case taint.KindExtcodesize:
			gen.Pools.AddExtCodeSize(gene.Contract, value.Uint64())

		case taint.KindReturndatasize:
			gen.Pools.AddReturnDataSize(gene.Contract, value.Uint64())

		case taint.KindCaller:
			gen.Pools.AddAccount(addressFromWord(value))

		// KindCalldataLoad/KindCalldataCopy/KindInputArraySize would feed a
		// specific argument slot in the original fuzzer, keyed by the
		// parameter index encoded in the z3 variable name. This analyzer's
		// taint.Expr free variables do not carry a parameter index (a
		// variable holds its kind, tx index and, for CALLDATALOAD, the
		// calldata byte offset), so there is no slot to target here; these kinds are left unfed rather than
		// guessed at.
		case taint.KindCalldataLoad, taint.KindCalldataCopy, taint.KindInputArraySize:
			continue
		}
	}
}

// addressFromWord takes the low 160 bits of a solved 256-bit word as a
// candidate account address, mirroring the original's
// normalize_32_byte_hex_address truncation.
func addressFromWord(v *uint256.Int) common.Address {
	b := v.Bytes32()
	var addr common.Address
	copy(addr[:], b[12:])
	return addr
}
