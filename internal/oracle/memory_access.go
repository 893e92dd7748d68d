package oracle

import (
	"github.com/ethpandaops/weevil/internal/bytecode"
	"github.com/holiman/uint256"
)

var maxSafeSlot = func() *uint256.Int {
	one := uint256.NewInt(1)
	var max uint256.Int
	max.Lsh(one, 128)
	max.Sub(&max, one)
	return &max
}()

// stepArbitraryStorage implements SWC-124: flags an SSTORE whose
// tainted slot index exceeds 2**128-1, grounded on the original fuzzer's
// arbitrary_memory_access detector. The threshold itself is unjustified
// in the original and is preserved verbatim per spec.md 9.
func (o *Oracle) stepArbitraryStorage(ctx StepContext) {
	if ctx.Step.Op != bytecode.SSTORE {
		return
	}

	if len(ctx.Step.Stack) < 1 || len(ctx.Pre.Stack) < 1 {
		return
	}

	if !ctx.Pre.Stack[0].Tainted() {
		return
	}

	slot := ctx.Step.Stack[0]
	if slot.Gt(maxSafeSlot) {
		o.record(SWC124, ctx.Step.PC, ctx.TxIndex, "storage slot index exceeds 2**128-1")
	}
}
