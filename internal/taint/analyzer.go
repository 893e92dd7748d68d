package taint

import (
	"strconv"

	"github.com/ethpandaops/weevil/internal/bytecode"
)

// Word is a 32-byte storage key/value used by the analyzer's shadow
// storage map. The campaign converts the interpreter's uint256 words to
// Word via uint256.Int.Bytes32.
type Word [32]byte

// StorageKey addresses one (address, slot) pair in shadow storage.
type StorageKey struct {
	Address Word
	Slot    Word
}

// wordToUint64 truncates a 32-byte word to its low 8 bytes, mirroring
// uint256.Int.Uint64's truncation for values the caller already knows fit.
func wordToUint64(w Word) uint64 {
	var v uint64
	for _, b := range w[24:] {
		v = v<<8 | uint64(b)
	}
	return v
}

// Analyzer is the symbolic taint/path engine, C4. One Analyzer instance is
// used for the lifetime of one transaction (per spec.md 3's "cleared
// between individuals" lifecycle — callers create a new Analyzer per
// transaction with New and keep the storage taint map across transactions
// within an individual by passing Storage's result to the next New).
type Analyzer struct {
	callstack [][]Record
	storage   map[StorageKey]Taint

	// visited guards the "loop detection" rule in spec.md 4.4: an
	// arithmetic/comparison/bitwise opcode whose pc has already been
	// processed in the current transaction degrades to plain taint union
	// instead of building a new expression, bounding expression size.
	visited map[uint64]bool

	txIndex int
}

// New creates an Analyzer for transaction txIndex, seeded with any shadow
// storage carried over from earlier transactions in the same individual.
func New(txIndex int, storage map[StorageKey]Taint) *Analyzer {
	if storage == nil {
		storage = make(map[StorageKey]Taint)
	}

	a := &Analyzer{
		callstack: [][]Record{{NewRecord()}},
		storage:   storage,
		visited:   make(map[uint64]bool),
		txIndex:   txIndex,
	}

	return a
}

// Storage returns the shadow storage taint map for carrying into the next
// transaction's Analyzer within the same individual.
func (a *Analyzer) Storage() map[StorageKey]Taint { return a.storage }

// SeedInput sets the top-level (depth 1) record's Input taint at the
// start of a transaction (calldata is always symbolic; callvalue/caller are
// introduced lazily by CALLVALUE/CALLER opcodes instead, matching the
// original's per-opcode introduction).
func (a *Analyzer) SeedInput(input Taint) {
	frame := a.callstack[0]
	frame[len(frame)-1].Input = input
}

// Current returns the latest record at the current call depth (1-based,
// depth 1 == top-level transaction context).
func (a *Analyzer) Current(depth int) Record {
	frame := a.frame(depth)
	return frame[len(frame)-1]
}

func (a *Analyzer) frame(depth int) []Record {
	idx := depth - 1
	if idx < 0 {
		idx = 0
	}

	for len(a.callstack) <= idx {
		a.callstack = append(a.callstack, nil)
	}

	if len(a.callstack[idx]) == 0 {
		var seed Record
		if idx > 0 && len(a.callstack[idx-1]) > 0 {
			outer := a.callstack[idx-1]
			seed = outer[len(outer)-1].Clone()
		} else {
			seed = NewRecord()
		}
		a.callstack[idx] = []Record{seed}
	}

	return a.callstack[idx]
}

// publish appends rec as the new latest record at depth.
func (a *Analyzer) publish(depth int, rec Record) {
	idx := depth - 1
	if idx < 0 {
		idx = 0
	}

	a.callstack[idx] = append(a.callstack[idx], rec)
}

// ClearCallstack drops any frames deeper than depth when a CALL returns,
// per spec.md 4.4's callstack management.
func (a *Analyzer) ClearCallstack(depth int) {
	idx := depth - 1
	if idx < 0 {
		idx = 0
	}

	if idx+1 < len(a.callstack) {
		a.callstack = a.callstack[:idx+1]
	}
}

// ClearStorage drops all shadow storage taint. Nothing in this repository
// calls it; the analyzer itself never clears storage taint within a
// transaction.
func (a *Analyzer) ClearStorage() {
	a.storage = make(map[StorageKey]Taint)
}

// stackArity gives (inputs consumed, outputs produced) per opcode,
// carried over verbatim (as data, not code) from the original fuzzer's
// symbolic_taint_analysis.py stack_taint_table, since it encodes EVM
// semantics rather than Python idiom.
func stackArity(op bytecode.OpCode) (in, out int) {
	switch {
	case op.IsPush():
		return 0, 1
	case op.IsDup():
		return 0, 1
	case op.IsSwap():
		return 0, 0
	case op.IsLog():
		return int(op-bytecode.LOG0) + 2, 0
	}

	switch op {
	case bytecode.STOP, bytecode.JUMPDEST, bytecode.INVALID, bytecode.RETURN, bytecode.REVERT, bytecode.SELFDESTRUCT:
		return 0, 0
	case bytecode.ADD, bytecode.SUB, bytecode.MUL, bytecode.DIV, bytecode.SDIV, bytecode.MOD, bytecode.SMOD,
		bytecode.EXP, bytecode.SIGNEXTEND, bytecode.LT, bytecode.GT, bytecode.SLT, bytecode.SGT, bytecode.EQ,
		bytecode.AND, bytecode.OR, bytecode.XOR, bytecode.BYTE, bytecode.SHL, bytecode.SHR, bytecode.SAR:
		return 2, 1
	case bytecode.ADDMOD, bytecode.MULMOD:
		return 3, 1
	case bytecode.ISZERO, bytecode.NOT:
		return 1, 1
	case bytecode.SHA3:
		return 2, 1
	case bytecode.ADDRESS, bytecode.ORIGIN, bytecode.CALLER, bytecode.CALLVALUE, bytecode.CALLDATASIZE,
		bytecode.CODESIZE, bytecode.GASPRICE, bytecode.RETURNDATASIZE, bytecode.COINBASE, bytecode.TIMESTAMP,
		bytecode.NUMBER, bytecode.DIFFICULTY, bytecode.GASLIMIT, bytecode.PC, bytecode.MSIZE, bytecode.GAS:
		return 0, 1
	case bytecode.BALANCE, bytecode.CALLDATALOAD, bytecode.EXTCODESIZE, bytecode.EXTCODEHASH, bytecode.BLOCKHASH, bytecode.MLOAD:
		return 1, 1
	case bytecode.POP, bytecode.SLOAD:
		return 1, 0
	case bytecode.MSTORE, bytecode.MSTORE8, bytecode.SSTORE:
		return 2, 0
	case bytecode.JUMP:
		return 1, 0
	case bytecode.JUMPI:
		return 2, 0
	case bytecode.CALLDATACOPY, bytecode.CODECOPY, bytecode.RETURNDATACOPY:
		return 3, 0
	case bytecode.EXTCODECOPY:
		return 4, 0
	case bytecode.CREATE:
		return 3, 1
	case bytecode.CREATE2:
		return 4, 1
	case bytecode.CALL, bytecode.CALLCODE:
		return 7, 1
	case bytecode.DELEGATECALL, bytecode.STATICCALL:
		return 6, 1
	default:
		return 0, 0
	}
}

// memoryAccess gives (offset-stack-index, size-stack-index) for opcodes
// that touch memory, ok false if not applicable, mirroring the original's
// memory_access table.
func memoryAccess(op bytecode.OpCode) (offsetIdx, sizeIdx int, ok bool) {
	switch {
	case op.IsLog():
		return 0, 1, true
	}

	switch op {
	case bytecode.SHA3, bytecode.CREATE, bytecode.RETURN, bytecode.REVERT:
		return 0, 1, true
	case bytecode.CREATE2:
		return 0, 1, true
	case bytecode.CALL, bytecode.CALLCODE:
		return 3, 4, true
	case bytecode.DELEGATECALL, bytecode.STATICCALL:
		return 2, 3, true
	default:
		return 0, 0, false
	}
}

// Step applies one executed instruction's taint effects at the given
// depth, returning the record as it stood *before* this instruction (the
// "pre-execution" view check_taint needs) and leaving the new latest
// record published.
func (a *Analyzer) Step(depth int, pc uint64, op bytecode.OpCode, key func(idx int) StorageKey) Record {
	pre := a.Current(depth)
	rec := pre.Clone()

	switch {
	case op.IsPush():
		rec.Push(nil)
	case op.IsDup():
		rec.Dup(int(op - bytecode.DUP1 + 1))
	case op.IsSwap():
		rec.Swap(int(op - bytecode.SWAP1 + 1))
	case op.IsLog():
		n := int(op - bytecode.LOG0)
		rec.PopN(n + 2)
	default:
		a.stepOp(&rec, op, pc, key)
	}

	a.publish(depth, rec)

	return pre
}

func (a *Analyzer) stepOp(rec *Record, op bytecode.OpCode, pc uint64, key func(idx int) StorageKey) {
	switch op {
	case bytecode.POP:
		rec.Pop()
	case bytecode.MLOAD:
		rec.Pop()
		// Shadow memory is not tracked: MLOAD always pushes untainted and
		// MSTORE/MSTORE8 drop their value's taint. Record.Memory and
		// MemTaint/SetMemTaint have no caller.
		rec.Push(nil)
	case bytecode.MSTORE, bytecode.MSTORE8:
		rec.PopN(2)
	case bytecode.SLOAD:
		rec.Pop()
		rec.Push(a.storage[key(0)])
	case bytecode.SSTORE:
		args := rec.PopN(2)
		a.storage[key(0)] = args[1]
	case bytecode.CALLDATALOAD:
		// key(0) is repurposed here to carry the concrete byte offset
		// being loaded (in its Slot field) rather than a storage slot,
		// so the pushed free variable's Extra can name it; SWC-101's
		// string-argument exclusion matches on this offset.
		offset := wordToUint64(key(0).Slot)
		rec.Pop()
		rec.Push(Taint{NewVar(KindCalldataLoad, a.txIndex, strconv.FormatUint(offset, 10))})
	case bytecode.CALLDATASIZE:
		rec.Push(Taint{NewVar(KindCalldataSize, a.txIndex, "")})
	case bytecode.CALLDATACOPY:
		rec.PopN(3)
	case bytecode.CODECOPY, bytecode.RETURNDATACOPY:
		rec.PopN(3)
	case bytecode.EXTCODECOPY:
		rec.PopN(4)
	case bytecode.CALLVALUE:
		rec.Push(Taint{NewVar(KindCallValue, a.txIndex, "")})
	case bytecode.CALLER:
		rec.Push(Taint{NewVar(KindCaller, a.txIndex, "")})
	case bytecode.GAS:
		rec.Push(Taint{NewVar(KindGas, a.txIndex, "")})
	case bytecode.BALANCE:
		rec.Pop()
		rec.Push(Taint{NewVar(KindBalance, a.txIndex, "")})
	case bytecode.BLOCKHASH:
		rec.Pop()
		rec.Push(Taint{NewVar(KindBlockhash, a.txIndex, "")})
	case bytecode.COINBASE:
		rec.Push(Taint{NewVar(KindCoinbase, a.txIndex, "")})
	case bytecode.TIMESTAMP:
		rec.Push(Taint{NewVar(KindTimestamp, a.txIndex, "")})
	case bytecode.NUMBER:
		rec.Push(Taint{NewVar(KindBlocknumber, a.txIndex, "")})
	case bytecode.DIFFICULTY:
		rec.Push(Taint{NewVar(KindDifficulty, a.txIndex, "")})
	case bytecode.GASLIMIT:
		rec.Push(Taint{NewVar(KindGaslimit, a.txIndex, "")})
	case bytecode.EXTCODESIZE:
		rec.Pop()
		rec.Push(Taint{NewVar(KindExtcodesize, a.txIndex, "")})
	case bytecode.RETURNDATASIZE:
		rec.Push(Taint{NewVar(KindReturndatasize, a.txIndex, "")})
	case bytecode.SHA3:
		args := rec.PopN(2)
		rec.Push(Union(args[0], args[1]))
	case bytecode.JUMP:
		rec.Pop()
	case bytecode.JUMPI:
		rec.PopN(2)
	case bytecode.CREATE:
		rec.PopN(3)
		rec.Push(nil)
		rec.Input, rec.Value, rec.Output = nil, nil, nil
	case bytecode.CREATE2:
		rec.PopN(4)
		rec.Push(nil)
		rec.Input, rec.Value, rec.Output = nil, nil, nil
	case bytecode.CALL, bytecode.CALLCODE:
		rec.PopN(7)
		rec.Push(Taint{NewVar(KindCall, a.txIndex, strconv.FormatUint(pc, 10))})
		rec.Input, rec.Value, rec.Output = nil, nil, nil
	case bytecode.DELEGATECALL, bytecode.STATICCALL:
		rec.PopN(6)
		rec.Push(Taint{NewVar(KindCall, a.txIndex, strconv.FormatUint(pc, 10))})
		rec.Input, rec.Value, rec.Output = nil, nil, nil
	case bytecode.ADD, bytecode.SUB, bytecode.MUL, bytecode.DIV, bytecode.SDIV, bytecode.MOD, bytecode.SMOD,
		bytecode.LT, bytecode.GT, bytecode.SLT, bytecode.SGT, bytecode.EQ,
		bytecode.AND, bytecode.OR, bytecode.XOR, bytecode.SHL, bytecode.SHR, bytecode.SAR:
		a.binary(rec, op, pc)
	case bytecode.ADDMOD, bytecode.MULMOD:
		a.ternary(rec, op, pc)
	case bytecode.ISZERO, bytecode.NOT:
		a.unary(rec, op, pc)
	case bytecode.EXP:
		a.binary(rec, op, pc)
	case bytecode.SIGNEXTEND, bytecode.BYTE:
		rec.PopN(2)
		rec.Push(nil)
	case bytecode.EXTCODEHASH:
		rec.Pop()
		rec.Push(nil)
	default:
		n, m := stackArity(op)
		if n > 0 {
			rec.PopN(n)
		}
		for i := 0; i < m; i++ {
			rec.Push(nil)
		}
	}
}

var opToExprOp = map[bytecode.OpCode]Op{
	bytecode.ADD: OpAdd, bytecode.SUB: OpSub, bytecode.MUL: OpMul, bytecode.DIV: OpDiv,
	bytecode.SDIV: OpSDiv, bytecode.MOD: OpMod, bytecode.SMOD: OpSMod,
	bytecode.LT: OpLt, bytecode.GT: OpGt, bytecode.SLT: OpSlt, bytecode.SGT: OpSgt, bytecode.EQ: OpEq,
	bytecode.AND: OpAnd, bytecode.OR: OpOr, bytecode.XOR: OpXor,
	bytecode.SHL: OpShl, bytecode.SHR: OpShr, bytecode.SAR: OpSar, bytecode.EXP: OpExp,
}

// binary implements spec.md 4.4's "build a new bit-vector term, unless
// loop-guarded, else degrade to union" for all two-operand ops.
func (a *Analyzer) binary(rec *Record, op bytecode.OpCode, pc uint64) {
	args := rec.PopN(2)

	if !args[0].Tainted() && !args[1].Tainted() {
		rec.Push(nil)
		return
	}

	if a.visited[pc] {
		rec.Push(Union(args[0], args[1]))
		return
	}

	a.visited[pc] = true

	exprOp, ok := opToExprOp[op]
	if !ok {
		rec.Push(Union(args[0], args[1]))
		return
	}

	term := buildTerm(exprOp, append(flatten(args[0]), flatten(args[1])...)...)
	rec.Push(Taint{term})
}

func (a *Analyzer) ternary(rec *Record, op bytecode.OpCode, pc uint64) {
	args := rec.PopN(3)

	anyTainted := args[0].Tainted() || args[1].Tainted() || args[2].Tainted()
	if !anyTainted {
		rec.Push(nil)
		return
	}

	if a.visited[pc] {
		rec.Push(Union(Union(args[0], args[1]), args[2]))
		return
	}

	a.visited[pc] = true

	exprOp := OpAddMod
	if op == bytecode.MULMOD {
		exprOp = OpMulMod
	}

	term := buildTerm(exprOp, append(flatten(args[0]), append(flatten(args[1]), flatten(args[2])...)...)...)
	rec.Push(Taint{term})
}

func (a *Analyzer) unary(rec *Record, op bytecode.OpCode, pc uint64) {
	args := rec.PopN(1)

	if !args[0].Tainted() {
		rec.Push(nil)
		return
	}

	if a.visited[pc] {
		rec.Push(args[0])
		return
	}

	a.visited[pc] = true

	exprOp := OpIsZero
	if op == bytecode.NOT {
		exprOp = OpNot
	}

	term := buildTerm(exprOp, flatten(args[0])...)
	rec.Push(Taint{term})
}

// buildTerm folds a list of operand expressions (one per tainted operand;
// untainted operands contribute no Expr since they have no free
// variables, matching the original's "concrete operand" special-casing for
// e.g. EXP requiring both concrete) into a single new node.
func buildTerm(op Op, operands ...Expr) Expr {
	if len(operands) == 1 {
		return NewOp(op, operands[0])
	}
	return NewOp(op, operands...)
}

func flatten(t Taint) []Expr {
	if len(t) == 0 {
		return nil
	}
	if len(t) == 1 {
		return []Expr{t[0]}
	}
	// Multiple alternative expressions tainting one slot: fold with a
	// synthetic OR so both remain reachable as free variables.
	return []Expr{NewOp(OpOr, t...)}
}

// CheckTaint returns rec's input taint list for the given popped operand
// index, used by oracles that need "is this input slot tainted" without
// caring about the exact term, per spec.md 4.4's check_taint.
func CheckTaint(stack []Taint, idx int) Taint {
	if idx < 0 || idx >= len(stack) {
		return nil
	}
	return stack[idx]
}
