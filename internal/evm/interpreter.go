package evm

import (
	"math/rand"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethpandaops/weevil/internal/bytecode"
	"github.com/ethpandaops/weevil/internal/config"
	"github.com/ethpandaops/weevil/internal/state"
	"github.com/holiman/uint256"
)

// Interpreter executes one transaction at a time against a Store, honoring
// environmental overrides, per spec.md 4.2. One Interpreter is reused
// across an individual's whole transaction sequence; rng is a seeded
// PRNG stream of its own, separate from the campaign's other streams
// (spec.md 5's determinism requirement) — it is consulted only for the
// call override's documented fair-coin output fill.
type Interpreter struct {
	store *state.Store
	cfg   *config.Config
	rng   *rand.Rand

	codeCache map[common.Address]*bytecode.CFG
}

// New creates an Interpreter bound to store, driven by cfg and a single
// seeded PRNG stream.
func New(store *state.Store, cfg *config.Config, rng *rand.Rand) *Interpreter {
	return &Interpreter{store: store, cfg: cfg, rng: rng, codeCache: make(map[common.Address]*bytecode.CFG)}
}

// CFGFor returns (building and caching if needed) the CFG for the code
// deployed at addr.
func (in *Interpreter) CFGFor(addr common.Address) *bytecode.CFG {
	if c, ok := in.codeCache[addr]; ok {
		return c
	}

	code := in.store.GetCode(addr)
	c := bytecode.Build(code)
	in.codeCache[addr] = c

	return c
}

// CachedCFGs returns every CFG built so far, keyed by contract address —
// the main target plus any contract reached through a CALL/DELEGATECALL/
// STATICCALL/CREATE chain, for the report's "coverage including child
// contracts" aggregate.
func (in *Interpreter) CachedCFGs() map[common.Address]*bytecode.CFG {
	return in.codeCache
}

// Run executes tx against the current world state, returning its full
// instruction trace.
func (in *Interpreter) Run(tx Transaction) Result {
	return in.run(tx, 1)
}

func (in *Interpreter) run(tx Transaction, depth int) Result {
	var (
		code []byte
		addr common.Address
	)

	if tx.To == nil {
		code = tx.Data
	} else {
		addr = *tx.To
		code = in.store.GetCode(addr)
	}

	var cfg *bytecode.CFG
	if tx.To != nil {
		// Reuse the cached CFG so VisitedPCs/VisitedBranches accumulate
		// across the whole campaign, per spec.md 4.1/4.9's coverage
		// bookkeeping.
		cfg = in.CFGFor(addr)
	} else {
		cfg = bytecode.Build(code)
	}

	st := newStack()
	mem := newMemory()

	gas := tx.GasLimit
	var result Result
	var lastCall common.Address

	pc := uint64(0)

	for pc < uint64(len(cfg.Bytecode)) {
		op := bytecode.OpCode(cfg.Bytecode[pc])

		inArity, _ := arity(op)
		preStack := st.snapshotTop(inArity)

		gasCost := opGasCost(op)
		if gas < gasCost {
			result.Steps = append(result.Steps, Step{
				PC: pc, Op: op, Depth: depth, Self: addr, Stack: preStack,
				Err: &ExecutionError{Reason: "out of gas"}, GasRemaining: gas,
			})
			result.Err = &ExecutionError{Reason: "out of gas"}
			break
		}
		gas -= gasCost

		halted, nextPC, execErr := in.exec(st, mem, cfg, op, pc, addr, tx, depth, &result, &lastCall)

		step := Step{PC: pc, Op: op, Depth: depth, Self: addr, Stack: preStack, GasUsedByOp: gasCost, Err: execErr}
		step.GasRemaining = gas
		if op == bytecode.SHA3 && execErr == nil && len(preStack) == 2 {
			step.MemorySlice = mem.get(preStack[0].Uint64(), preStack[1].Uint64())
		}

		cfg.Execute(pc, op, stackTopUint64(preStack), execErr != nil)

		result.Steps = append(result.Steps, step)

		if execErr != nil {
			result.Err = execErr
			if op == bytecode.REVERT {
				result.Reverted = true
			}
			break
		}

		if halted {
			break
		}

		pc = nextPC
	}

	result.GasUsed = tx.GasLimit - gas

	return result
}

// arity gives the (inputs, outputs) pair used only to size the
// pre-execution stack snapshot the trace records, per spec.md 3.
func arity(op bytecode.OpCode) (in, out int) {
	switch {
	case op.IsPush():
		return 0, 1
	case op.IsDup():
		return int(op-bytecode.DUP1) + 1, 1
	case op.IsSwap():
		return int(op-bytecode.SWAP1) + 2, 0
	case op.IsLog():
		return int(op-bytecode.LOG0) + 2, 0
	}

	switch op {
	case bytecode.ADD, bytecode.SUB, bytecode.MUL, bytecode.DIV, bytecode.SDIV, bytecode.MOD, bytecode.SMOD,
		bytecode.LT, bytecode.GT, bytecode.SLT, bytecode.SGT, bytecode.EQ, bytecode.AND, bytecode.OR,
		bytecode.XOR, bytecode.BYTE, bytecode.SHL, bytecode.SHR, bytecode.SAR, bytecode.EXP, bytecode.SIGNEXTEND:
		return 2, 1
	case bytecode.ADDMOD, bytecode.MULMOD:
		return 3, 1
	case bytecode.ISZERO, bytecode.NOT, bytecode.BALANCE, bytecode.CALLDATALOAD, bytecode.EXTCODESIZE,
		bytecode.EXTCODEHASH, bytecode.BLOCKHASH, bytecode.MLOAD:
		return 1, 1
	case bytecode.SHA3:
		return 2, 1
	case bytecode.POP, bytecode.SLOAD, bytecode.JUMP:
		return 1, 0
	case bytecode.MSTORE, bytecode.MSTORE8, bytecode.SSTORE, bytecode.JUMPI, bytecode.RETURN, bytecode.REVERT:
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
	case bytecode.SELFDESTRUCT:
		return 1, 0
	default:
		return 0, 0
	}
}

// exec applies one opcode's concrete semantics, including spec.md 4.2's
// environmental overrides. It returns whether execution halted, the next
// pc (meaningful only if not halted), and a tier-2 ExecutionError if the
// opcode faulted.
func (in *Interpreter) exec(st *Stack, mem *Memory, cfg *bytecode.CFG, op bytecode.OpCode, pc uint64, self common.Address, tx Transaction, depth int, result *Result, lastCall *common.Address) (halted bool, nextPC uint64, execErr error) {
	nextPC = pc + 1
	underflow := &ExecutionError{Reason: "stack underflow"}

	if op.IsPush() {
		n := op.PushSize()
		end := pc + 1 + uint64(n)
		if end > uint64(len(cfg.Bytecode)) {
			end = uint64(len(cfg.Bytecode))
		}
		st.push(pad32(cfg.Bytecode[pc+1 : end]))
		return false, pc + 1 + uint64(n), nil
	}

	if op.IsDup() {
		n := int(op - bytecode.DUP1 + 1)
		if st.len() < n {
			return true, 0, underflow
		}
		st.dup(n)
		return false, nextPC, nil
	}

	if op.IsSwap() {
		n := int(op - bytecode.SWAP1 + 1)
		if st.len() < n+1 {
			return true, 0, underflow
		}
		st.swap(n)
		return false, nextPC, nil
	}

	if op.IsLog() {
		n := int(op - bytecode.LOG0)
		if st.len() < n+2 {
			return true, 0, underflow
		}
		st.pop()
		st.pop()
		for i := 0; i < n; i++ {
			st.pop()
		}
		return false, nextPC, nil
	}

	switch op {
	case bytecode.STOP:
		return true, 0, nil
	case bytecode.ADD, bytecode.SUB, bytecode.MUL, bytecode.DIV, bytecode.SDIV, bytecode.MOD, bytecode.SMOD,
		bytecode.LT, bytecode.GT, bytecode.SLT, bytecode.SGT, bytecode.EQ, bytecode.AND, bytecode.OR,
		bytecode.XOR, bytecode.SHL, bytecode.SHR, bytecode.SAR, bytecode.BYTE, bytecode.SIGNEXTEND, bytecode.EXP:
		if st.len() < 2 {
			return true, 0, underflow
		}
		b := st.pop()
		a := st.pop()
		st.push(binaryOp(op, b, a))
		return false, nextPC, nil
	case bytecode.ADDMOD, bytecode.MULMOD:
		if st.len() < 3 {
			return true, 0, underflow
		}
		c := st.pop()
		b := st.pop()
		a := st.pop()
		st.push(ternaryOp(op, c, b, a))
		return false, nextPC, nil
	case bytecode.ISZERO:
		if st.len() < 1 {
			return true, 0, underflow
		}
		a := st.pop()
		if a.IsZero() {
			st.push(*uint256.NewInt(1))
		} else {
			st.push(*uint256.NewInt(0))
		}
		return false, nextPC, nil
	case bytecode.NOT:
		if st.len() < 1 {
			return true, 0, underflow
		}
		a := st.pop()
		var r uint256.Int
		r.Not(&a)
		st.push(r)
		return false, nextPC, nil
	case bytecode.SHA3:
		if st.len() < 2 {
			return true, 0, underflow
		}
		offset := st.pop()
		size := st.pop()
		data := mem.get(offset.Uint64(), size.Uint64())
		st.push(keccak(data))
		return false, nextPC, nil
	case bytecode.ADDRESS:
		st.push(addrToWord(self))
		return false, nextPC, nil
	case bytecode.ORIGIN, bytecode.CALLER:
		st.push(addrToWord(tx.From))
		return false, nextPC, nil
	case bytecode.CALLVALUE:
		if tx.Value != nil {
			st.push(*tx.Value)
		} else {
			st.push(*uint256.NewInt(0))
		}
		return false, nextPC, nil
	case bytecode.CALLDATALOAD:
		if st.len() < 1 {
			return true, 0, underflow
		}
		offset := st.pop()
		st.push(pad32(padSlice(tx.Data, offset.Uint64(), 32)))
		return false, nextPC, nil
	case bytecode.CALLDATASIZE:
		st.push(wordFromUint64(uint64(len(tx.Data))))
		return false, nextPC, nil
	case bytecode.CALLDATACOPY:
		if st.len() < 3 {
			return true, 0, underflow
		}
		destOffset := st.pop()
		offset := st.pop()
		size := st.pop()
		mem.set(destOffset.Uint64(), padSlice(tx.Data, offset.Uint64(), size.Uint64()))
		return false, nextPC, nil
	case bytecode.CODESIZE:
		st.push(wordFromUint64(uint64(len(cfg.Bytecode))))
		return false, nextPC, nil
	case bytecode.CODECOPY:
		if st.len() < 3 {
			return true, 0, underflow
		}
		destOffset := st.pop()
		offset := st.pop()
		size := st.pop()
		mem.set(destOffset.Uint64(), padSlice(cfg.Bytecode, offset.Uint64(), size.Uint64()))
		return false, nextPC, nil
	case bytecode.GASPRICE:
		st.push(wordFromUint64(in.cfg.GasPrice))
		return false, nextPC, nil
	case bytecode.EXTCODESIZE:
		if st.len() < 1 {
			return true, 0, underflow
		}
		addr := addrFromWord(st.pop())
		if tx.Overrides.ExtCodeSize != nil {
			if v, ok := tx.Overrides.ExtCodeSize[addr]; ok {
				st.push(wordFromUint64(v))
				return false, nextPC, nil
			}
		}
		st.push(wordFromUint64(uint64(len(in.store.GetCode(addr)))))
		return false, nextPC, nil
	case bytecode.EXTCODECOPY:
		if st.len() < 4 {
			return true, 0, underflow
		}
		addr := addrFromWord(st.pop())
		destOffset := st.pop()
		offset := st.pop()
		size := st.pop()
		mem.set(destOffset.Uint64(), padSlice(in.store.GetCode(addr), offset.Uint64(), size.Uint64()))
		return false, nextPC, nil
	case bytecode.EXTCODEHASH:
		if st.len() < 1 {
			return true, 0, underflow
		}
		addr := addrFromWord(st.pop())
		code := in.store.GetCode(addr)
		if len(code) == 0 {
			st.push(*uint256.NewInt(0))
		} else {
			st.push(keccak(code))
		}
		return false, nextPC, nil
	case bytecode.RETURNDATASIZE:
		if tx.Overrides.ReturnDataSize != nil {
			if v, ok := tx.Overrides.ReturnDataSize[*lastCall]; ok {
				st.push(wordFromUint64(v))
				return false, nextPC, nil
			}
		}
		st.push(wordFromUint64(uint64(len(result.ReturnData))))
		return false, nextPC, nil
	case bytecode.RETURNDATACOPY:
		if st.len() < 3 {
			return true, 0, underflow
		}
		destOffset := st.pop()
		offset := st.pop()
		size := st.pop()
		mem.set(destOffset.Uint64(), padSlice(result.ReturnData, offset.Uint64(), size.Uint64()))
		return false, nextPC, nil
	case bytecode.BLOCKHASH:
		if st.len() < 1 {
			return true, 0, underflow
		}
		st.pop()
		st.push(*uint256.NewInt(0))
		return false, nextPC, nil
	case bytecode.COINBASE:
		st.push(*uint256.NewInt(0))
		return false, nextPC, nil
	case bytecode.TIMESTAMP:
		if tx.Overrides.Timestamp != nil {
			st.push(wordFromUint64(*tx.Overrides.Timestamp))
		} else {
			st.push(*uint256.NewInt(0))
		}
		return false, nextPC, nil
	case bytecode.NUMBER:
		if tx.Overrides.BlockNumber != nil {
			st.push(wordFromUint64(*tx.Overrides.BlockNumber))
		} else {
			st.push(*uint256.NewInt(0))
		}
		return false, nextPC, nil
	case bytecode.DIFFICULTY:
		st.push(*uint256.NewInt(0))
		return false, nextPC, nil
	case bytecode.GASLIMIT:
		st.push(wordFromUint64(in.cfg.GasLimit))
		return false, nextPC, nil
	case bytecode.POP:
		if st.len() < 1 {
			return true, 0, underflow
		}
		st.pop()
		return false, nextPC, nil
	case bytecode.MLOAD:
		if st.len() < 1 {
			return true, 0, underflow
		}
		offset := st.pop()
		var v uint256.Int
		v.SetBytes(mem.get(offset.Uint64(), 32))
		st.push(v)
		return false, nextPC, nil
	case bytecode.MSTORE:
		if st.len() < 2 {
			return true, 0, underflow
		}
		offset := st.pop()
		value := st.pop()
		buf := value.Bytes32()
		mem.set(offset.Uint64(), buf[:])
		return false, nextPC, nil
	case bytecode.MSTORE8:
		if st.len() < 2 {
			return true, 0, underflow
		}
		offset := st.pop()
		value := st.pop()
		mem.set(offset.Uint64(), []byte{byte(value.Uint64())})
		return false, nextPC, nil
	case bytecode.SLOAD:
		if st.len() < 1 {
			return true, 0, underflow
		}
		slot := st.pop()
		word := in.store.GetStorage(self, slot.Bytes32())
		st.push(word)
		return false, nextPC, nil
	case bytecode.SSTORE:
		if st.len() < 2 {
			return true, 0, underflow
		}
		slot := st.pop()
		value := st.pop()
		in.store.SetStorage(self, slot.Bytes32(), value)
		return false, nextPC, nil
	case bytecode.JUMP:
		if st.len() < 1 {
			return true, 0, underflow
		}
		target := st.pop()
		return in.jumpTo(cfg, target.Uint64())
	case bytecode.JUMPI:
		if st.len() < 2 {
			return true, 0, underflow
		}
		target := st.pop()
		cond := st.pop()
		if !cond.IsZero() {
			return in.jumpTo(cfg, target.Uint64())
		}
		return false, nextPC, nil
	case bytecode.PC:
		st.push(wordFromUint64(pc))
		return false, nextPC, nil
	case bytecode.MSIZE:
		st.push(wordFromUint64(mem.len()))
		return false, nextPC, nil
	case bytecode.GAS:
		st.push(*uint256.NewInt(0))
		return false, nextPC, nil
	case bytecode.JUMPDEST:
		return false, nextPC, nil
	case bytecode.BALANCE:
		if st.len() < 1 {
			return true, 0, underflow
		}
		addr := addrFromWord(st.pop())
		if tx.Overrides.Balance != nil {
			if v, ok := tx.Overrides.Balance[addr]; ok {
				st.push(wordFromUint64(v))
				return false, nextPC, nil
			}
		}
		st.push(*in.store.GetBalance(addr))
		return false, nextPC, nil
	case bytecode.CREATE, bytecode.CREATE2:
		halted, _, err := in.execCreate(st, mem, op, self)
		return halted, nextPC, err
	case bytecode.CALL, bytecode.CALLCODE, bytecode.DELEGATECALL, bytecode.STATICCALL:
		halted, _, err := in.execCall(st, mem, op, self, tx, result, depth, lastCall)
		return halted, nextPC, err
	case bytecode.RETURN:
		if st.len() < 2 {
			return true, 0, underflow
		}
		offset := st.pop()
		size := st.pop()
		result.ReturnData = mem.get(offset.Uint64(), size.Uint64())
		return true, 0, nil
	case bytecode.REVERT:
		if st.len() < 2 {
			return true, 0, underflow
		}
		offset := st.pop()
		size := st.pop()
		result.ReturnData = mem.get(offset.Uint64(), size.Uint64())
		return true, 0, &ExecutionError{Reason: "revert"}
	case bytecode.INVALID:
		return true, 0, &ExecutionError{Reason: "invalid opcode"}
	case bytecode.SELFDESTRUCT:
		if st.len() < 1 {
			return true, 0, underflow
		}
		beneficiary := addrFromWord(st.pop())
		acc := in.store.GetAccount(self)
		benAcc := in.store.GetAccount(beneficiary)
		benAcc.Balance = new(uint256.Int).Add(benAcc.Balance, acc.Balance)
		in.store.SetAccount(beneficiary, benAcc)
		acc.Balance = uint256.NewInt(0)
		in.store.SetAccount(self, acc)
		return true, 0, nil
	}

	return true, 0, &ExecutionError{Reason: "unsupported opcode " + op.String()}
}

// jumpTo validates that target is a JUMPDEST before transferring control,
// matching real EVM semantics (an invalid jump target is a tier-2
// execution failure, not a fuzzer-internal bug).
func (in *Interpreter) jumpTo(cfg *bytecode.CFG, target uint64) (bool, uint64, error) {
	if target >= uint64(len(cfg.Bytecode)) || bytecode.OpCode(cfg.Bytecode[target]) != bytecode.JUMPDEST {
		return true, 0, &ExecutionError{Reason: "invalid jump destination"}
	}
	return false, target, nil
}

// execCreate implements a simplified CREATE/CREATE2: the supplied init
// code's memory slice is executed as a nested call whose RETURN data
// becomes the deployed code, matching the shape (not the full gas/address
// accounting) of real contract creation.
func (in *Interpreter) execCreate(st *Stack, mem *Memory, op bytecode.OpCode, self common.Address) (bool, uint64, error) {
	need := 3
	if op == bytecode.CREATE2 {
		need = 4
	}
	if st.len() < need {
		return true, 0, &ExecutionError{Reason: "stack underflow"}
	}

	value := st.pop()
	offset := st.pop()
	size := st.pop()

	var salt uint256.Int
	if op == bytecode.CREATE2 {
		salt = st.pop()
	}

	initCode := mem.get(offset.Uint64(), size.Uint64())

	var addr common.Address
	if op == bytecode.CREATE2 {
		saltBytes := salt.Bytes32()
		h := crypto.Keccak256(append([]byte{0xff}, append(self.Bytes(), append(saltBytes[:], crypto.Keccak256(initCode)...)...)...))
		addr = common.BytesToAddress(h[12:])
		in.store.SetAccount(addr, state.Account{Balance: uint256.NewInt(0)})
	} else {
		deployer := in.store.GetAccount(self)
		addr = state.CreateAddress(self, deployer.Nonce)
		deployer.Nonce++
		in.store.SetAccount(self, deployer)
		in.store.SetAccount(addr, state.Account{Balance: uint256.NewInt(0)})
	}

	creation := in.run(Transaction{From: self, To: nil, Value: &value, Data: initCode, GasLimit: 1_000_000}, 2)

	if creation.Err == nil {
		in.store.SetCode(addr, creation.ReturnData)
		st.push(addrToWord(addr))
	} else {
		st.push(*uint256.NewInt(0))
	}

	return false, 0, nil
}

// execCall implements CALL/CALLCODE/DELEGATECALL/STATICCALL, honoring the
// spec.md 4.2 environmental override: when the individual supplies a
// call_return[target] value, the real call is skipped entirely, the output
// memory region is zero- or one-filled with a fair coin, and the
// configured return flag is pushed.
func (in *Interpreter) execCall(st *Stack, mem *Memory, op bytecode.OpCode, self common.Address, tx Transaction, result *Result, depth int, lastCall *common.Address) (bool, uint64, error) {
	hasValue := op == bytecode.CALL || op == bytecode.CALLCODE

	need := 6
	if hasValue {
		need = 7
	}
	if st.len() < need {
		return true, 0, &ExecutionError{Reason: "stack underflow"}
	}

	var gasArg, value uint256.Int
	gasArg = st.pop()

	target := addrFromWord(st.pop())

	if hasValue {
		value = st.pop()
	}

	inOffset := st.pop()
	inSize := st.pop()
	outOffset := st.pop()
	outSize := st.pop()

	*lastCall = target

	if tx.Overrides.CallReturn != nil {
		if flag, ok := tx.Overrides.CallReturn[target]; ok {
			fill := byte(0)
			if in.rng != nil && in.rng.Intn(2) == 1 {
				fill = 0xff
			}

			filled := make([]byte, outSize.Uint64())
			for i := range filled {
				filled[i] = fill
			}
			mem.set(outOffset.Uint64(), filled)

			st.push(wordFromUint64(flag))

			return false, 0, nil
		}
	}

	callData := mem.get(inOffset.Uint64(), inSize.Uint64())

	callSelf := target
	if op == bytecode.DELEGATECALL || op == bytecode.CALLCODE {
		callSelf = self
	}

	callValue := &value
	if op == bytecode.DELEGATECALL || op == bytecode.STATICCALL {
		callValue = nil
	}

	if target != (common.Address{}) && hasValue && value.Sign() > 0 {
		fromAcc := in.store.GetAccount(self)
		toAcc := in.store.GetAccount(target)

		if fromAcc.Balance.Cmp(&value) >= 0 {
			fromAcc.Balance = new(uint256.Int).Sub(fromAcc.Balance, &value)
			toAcc.Balance = new(uint256.Int).Add(toAcc.Balance, &value)
			in.store.SetAccount(self, fromAcc)
			in.store.SetAccount(target, toAcc)
		}
	}

	sub := in.run(Transaction{From: self, To: &callSelf, Value: callValue, Data: callData, GasLimit: gasArg.Uint64(), Overrides: tx.Overrides}, depth+1)
	result.Steps = append(result.Steps, sub.Steps...)
	result.ReturnData = sub.ReturnData

	out := padSlice(sub.ReturnData, 0, outSize.Uint64())
	mem.set(outOffset.Uint64(), out)

	if sub.Err != nil {
		st.push(*uint256.NewInt(0))
	} else {
		st.push(*uint256.NewInt(1))
	}

	return false, 0, nil
}

func stackTopUint64(vals []uint256.Int) []uint64 {
	out := make([]uint64, len(vals))
	for i, v := range vals {
		out[i] = v.Uint64()
	}
	return out
}

func addrToWord(addr common.Address) uint256.Int {
	var w uint256.Int
	w.SetBytes(addr.Bytes())
	return w
}

func addrFromWord(w uint256.Int) common.Address {
	b := w.Bytes20()
	return common.Address(b)
}

func wordFromUint64(v uint64) uint256.Int {
	var w uint256.Int
	w.SetUint64(v)
	return w
}

func keccak(data []byte) uint256.Int {
	h := crypto.Keccak256(data)
	var w uint256.Int
	w.SetBytes(h)
	return w
}

func pad32(b []byte) uint256.Int {
	var w uint256.Int
	w.SetBytes(b)
	return w
}

func padSlice(data []byte, offset, size uint64) []byte {
	out := make([]byte, size)
	if offset >= uint64(len(data)) {
		return out
	}
	end := offset + size
	if end > uint64(len(data)) {
		end = uint64(len(data))
	}
	copy(out, data[offset:end])
	return out
}

// binaryOp applies a two-operand arithmetic/bitwise/comparison opcode.
// top and second are the pre-pop stack's s[0] and s[1], matching the
// yellow paper's operand order directly (e.g. SUB computes top - second).
func binaryOp(op bytecode.OpCode, top, second uint256.Int) uint256.Int {
	var r uint256.Int

	switch op {
	case bytecode.ADD:
		r.Add(&top, &second)
	case bytecode.SUB:
		r.Sub(&top, &second)
	case bytecode.MUL:
		r.Mul(&top, &second)
	case bytecode.DIV:
		r.Div(&top, &second)
	case bytecode.SDIV:
		r.SDiv(&top, &second)
	case bytecode.MOD:
		r.Mod(&top, &second)
	case bytecode.SMOD:
		r.SMod(&top, &second)
	case bytecode.LT:
		r.SetBool(top.Lt(&second))
	case bytecode.GT:
		r.SetBool(top.Gt(&second))
	case bytecode.SLT:
		r.SetBool(top.Slt(&second))
	case bytecode.SGT:
		r.SetBool(top.Sgt(&second))
	case bytecode.EQ:
		r.SetBool(top.Eq(&second))
	case bytecode.AND:
		r.And(&top, &second)
	case bytecode.OR:
		r.Or(&top, &second)
	case bytecode.XOR:
		r.Xor(&top, &second)
	case bytecode.SHL:
		if top.LtUint64(256) {
			r.Lsh(&second, uint(top.Uint64()))
		}
	case bytecode.SHR:
		if top.LtUint64(256) {
			r.Rsh(&second, uint(top.Uint64()))
		}
	case bytecode.SAR:
		r.SRsh(&second, uint(top.Uint64()))
	case bytecode.BYTE:
		r = second
		r.Byte(&top)
	case bytecode.SIGNEXTEND:
		r.ExtendSign(&second, &top)
	case bytecode.EXP:
		r.Exp(&top, &second)
	}

	return r
}

// ternaryOp applies ADDMOD/MULMOD's three-operand modular arithmetic;
// top/mid/bottom are s[0]/s[1]/s[2] of the pre-pop stack.
func ternaryOp(op bytecode.OpCode, top, mid, bottom uint256.Int) uint256.Int {
	var r uint256.Int

	switch op {
	case bytecode.ADDMOD:
		r.AddMod(&top, &mid, &bottom)
	case bytecode.MULMOD:
		r.MulMod(&top, &mid, &bottom)
	}

	return r
}

func opGasCost(op bytecode.OpCode) uint64 {
	switch op {
	case bytecode.STOP, bytecode.RETURN, bytecode.REVERT:
		return 0
	case bytecode.SSTORE:
		return 20000
	case bytecode.SLOAD:
		return 200
	case bytecode.SHA3:
		return 30
	case bytecode.CALL, bytecode.CALLCODE, bytecode.DELEGATECALL, bytecode.STATICCALL:
		return 700
	case bytecode.CREATE, bytecode.CREATE2:
		return 32000
	case bytecode.EXP:
		return 10
	case bytecode.JUMPDEST:
		return 1
	default:
		return 3
	}
}
