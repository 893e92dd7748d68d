package oracle

import "github.com/ethpandaops/weevil/internal/bytecode"

// stepSelfdestruct implements SWC-106: flags a reachable SELFDESTRUCT
// whose transaction sender is in the configured attacker set, grounded
// on the original fuzzer's unprotected_selfdestruct detector. A sender
// that has previously been embedded in the calldata of a trusted
// (non-attacker) transaction is excluded — that address was handed to
// the contract by someone else, so the contract choosing to let it
// selfdestruct is not necessarily the sender exploiting its own
// privilege, per spec.md 8's scenario 3.
func (o *Oracle) stepSelfdestruct(ctx StepContext) {
	if ctx.Step.Op != bytecode.SELFDESTRUCT {
		return
	}

	if !o.attackers[ctx.Sender] {
		return
	}

	if o.trustedEmbedded[ctx.Sender] {
		return
	}

	o.record(SWC106, ctx.Step.PC, ctx.TxIndex, "selfdestruct reachable by an attacker-sender transaction")
}
