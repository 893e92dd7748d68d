package oracle

import "github.com/ethpandaops/weevil/internal/bytecode"

type balanceLockState struct {
	flagged map[string]bool
}

func newBalanceLockState() balanceLockState {
	return balanceLockState{flagged: make(map[string]bool)}
}

// stepLockingEther implements SWC-132: flags a contract that accepts a
// non-zero CALLVALUE but whose CFG never reaches a CREATE/CALL/
// DELEGATECALL/SELFDESTRUCT instruction, i.e. there is no path that can
// ever move ether back out, grounded on the original fuzzer's
// locking_ether detector.
func (o *Oracle) stepLockingEther(ctx StepContext) {
	if ctx.Step.Op != bytecode.CALLVALUE {
		return
	}

	if ctx.TxValue == nil || ctx.TxValue.IsZero() {
		return
	}

	if ctx.CFG == nil || ctx.CFG.CanSendEther {
		return
	}

	key := ctx.Self.Hex()
	if o.balances.flagged[key] {
		return
	}

	o.balances.flagged[key] = true
	o.record(SWC132, ctx.Step.PC, ctx.TxIndex, "contract can receive ether but has no path that sends it")
}
