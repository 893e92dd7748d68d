package oracle

import "github.com/ethpandaops/weevil/internal/bytecode"

// stepDelegatecall implements SWC-112: flags a DELEGATECALL whose target
// address is tainted by anything outside the contract's own constants,
// grounded on the original fuzzer's unsafe_delegatecall detector.
func (o *Oracle) stepDelegatecall(ctx StepContext) {
	if ctx.Step.Op != bytecode.DELEGATECALL {
		return
	}

	if len(ctx.Pre.Stack) < 2 {
		return
	}

	if ctx.Pre.Stack[1].Tainted() {
		o.record(SWC112, ctx.Step.PC, ctx.TxIndex, "delegatecall target is influenced by transaction input")
	}
}
