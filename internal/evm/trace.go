package evm

import (
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethpandaops/weevil/internal/bytecode"
	"github.com/holiman/uint256"
)

// Transaction is one decoded transaction to execute, per spec.md 3's Gene
// "transaction" sub-record.
type Transaction struct {
	From     common.Address
	To       *common.Address // nil for contract creation
	Value    *uint256.Int
	Data     []byte
	GasLimit uint64

	Overrides Overrides
}

// Step is one executed instruction's trace entry, per spec.md 3's
// "Instruction trace" paragraph: the stack is the *pre-execution* stack.
type Step struct {
	PC    uint64
	Op    bytecode.OpCode
	Depth int // 1-based, per spec.md 3
	// Self is the address of the contract executing this instruction
	// (the zero address during a CREATE's init code). Stamped directly
	// from run()'s own call target rather than recovered from the trace,
	// since a CALL's own Step entry is appended only after its callee's
	// full sub-trace (run() appends nested Steps before the outer CALL
	// instruction's own entry) and so cannot be used to look the address
	// up in advance.
	Self         common.Address
	Err          error
	Stack        []uint256.Int // pre-execution, top-first
	MemorySlice  []byte        // SHA3's input memory slice; nil for every other opcode
	GasRemaining uint64
	GasUsedByOp  uint64
}

// Result is the outcome of one transaction's execution.
type Result struct {
	Steps       []Step
	ReturnData  []byte
	Reverted    bool
	Err         error
	GasUsed     uint64
	CreatedAddr *common.Address
}

// ExecutionError marks a tier-2 target-execution failure per spec.md 7:
// never fatal to the fuzzer, carried in the trace's error field.
type ExecutionError struct {
	Reason string
}

func (e *ExecutionError) Error() string { return e.Reason }
