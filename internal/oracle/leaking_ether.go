package oracle

import (
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethpandaops/weevil/internal/bytecode"
)

type pendingFinding struct {
	pc   uint64
	desc string
}

type leakingEtherState struct {
	pending []pendingFinding
}

func newLeakingEtherState() leakingEtherState { return leakingEtherState{} }

// stepLeakingEther implements SWC-105: flags a value-carrying CALL whose
// recipient concretely equals the transaction's own sender (tx.from),
// i.e. the contract hands ether back to whoever happens to call it
// rather than to a fixed owner. The recipient must not have already
// sent ether earlier in this individual's sequence (a refund is not a
// leak) and must not be an attacker address that a trusted sender has
// passed in calldata earlier (the contract learned the address
// legitimately); for other recipients no such calldata history is kept.
// Matching candidates are buffered and only turned into a finding at
// the transaction's next STOP, grounded on the original fuzzer's
// leaking_ether detector.
func (o *Oracle) stepLeakingEther(ctx StepContext) {
	op := ctx.Step.Op

	if op == bytecode.STOP {
		for _, f := range o.leakingEther.pending {
			o.record(SWC105, f.pc, ctx.TxIndex, f.desc)
		}
		o.leakingEther.pending = nil
		return
	}

	if op != bytecode.CALL && op != bytecode.CALLCODE {
		return
	}

	if len(ctx.Step.Stack) < 3 {
		return
	}

	value := ctx.Step.Stack[2]
	valueTainted := len(ctx.Pre.Stack) >= 3 && ctx.Pre.Stack[2].Tainted()
	if value.IsZero() && !valueTainted {
		return
	}

	target := common.Address(ctx.Step.Stack[1].Bytes20())
	if target != ctx.Sender {
		return
	}

	if o.everSentEther[target] || o.trustedEmbedded[target] {
		return
	}

	o.leakingEther.pending = append(o.leakingEther.pending, pendingFinding{
		pc:   ctx.Step.PC,
		desc: "ether sent back to the transaction's own sender",
	})
}
