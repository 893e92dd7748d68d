package oracle

import "github.com/ethpandaops/weevil/internal/bytecode"

const reentrancyStipend = 2300

// reentrancyState is cleared on every termination opcode, including
// REVERT and INVALID, preserving the original fuzzer's reentrancy.py
// quirk verbatim per spec.md 9: a reverted call's external-call
// bookkeeping must not leak into the next attempt.
type reentrancyState struct {
	// readSlots is every storage slot this transaction has SLOADed so
	// far, in case a qualifying CALL is reached later.
	readSlots map[uint64]bool

	// vulnerable is the snapshot of readSlots taken at the most recent
	// qualifying CALL; an SSTORE writing any of these slots afterward is
	// the checks-effects-interactions violation.
	vulnerable map[uint64]bool
	afterCall  bool
}

func newReentrancyState() reentrancyState {
	return reentrancyState{readSlots: make(map[uint64]bool)}
}

// stepReentrancy implements SWC-107: flags a storage write to a slot
// that was SLOADed earlier in the transaction, following a CALL with
// stipend > 2300 and a positive-or-symbolic value or a symbolic target —
// the classic checks-effects-interactions violation, gated tightly
// enough that two unrelated storage slots (or a call carrying no real
// gas/value) no longer false-positive.
func (o *Oracle) stepReentrancy(ctx StepContext) {
	op := ctx.Step.Op

	if isTerminator(op) {
		o.reentrancy = newReentrancyState()
		return
	}

	switch op {
	case bytecode.SLOAD:
		if len(ctx.Step.Stack) >= 1 {
			o.reentrancy.readSlots[ctx.Step.Stack[0].Uint64()] = true
		}
	case bytecode.CALL, bytecode.CALLCODE:
		if qualifiesForReentrancy(ctx) {
			o.reentrancy.afterCall = true
			o.reentrancy.vulnerable = make(map[uint64]bool, len(o.reentrancy.readSlots))
			for slot := range o.reentrancy.readSlots {
				o.reentrancy.vulnerable[slot] = true
			}
		}
	case bytecode.SSTORE:
		if o.reentrancy.afterCall && len(ctx.Step.Stack) >= 1 {
			slot := ctx.Step.Stack[0].Uint64()
			if o.reentrancy.vulnerable[slot] {
				o.record(SWC107, ctx.Step.PC, ctx.TxIndex, "storage write revisits a slot read before an external call carrying value")
			}
		}
	}
}

// qualifiesForReentrancy reports whether a CALL/CALLCODE forwards more
// than the 2300-gas safety stipend and carries a value that is either
// concretely positive, symbolically tainted, or sent to a symbolic
// target — spec.md 4.5's broader trigger than a plain concrete-value
// check, since a reentrant call can carry a value the fuzzer has not yet
// concretized.
func qualifiesForReentrancy(ctx StepContext) bool {
	if len(ctx.Step.Stack) < 3 {
		return false
	}

	gas := ctx.Step.Stack[0]
	if gas.Uint64() <= reentrancyStipend {
		return false
	}

	value := ctx.Step.Stack[2]
	valueTainted := len(ctx.Pre.Stack) >= 3 && ctx.Pre.Stack[2].Tainted()
	targetTainted := len(ctx.Pre.Stack) >= 2 && ctx.Pre.Stack[1].Tainted()

	return !value.IsZero() || valueTainted || targetTainted
}
