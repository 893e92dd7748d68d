package oracle

import "github.com/ethpandaops/weevil/internal/bytecode"

// stepBlockDependency implements SWC-120: flags a JUMPI whose branch
// condition carries a block-context free variable (TIMESTAMP, NUMBER,
// COINBASE, DIFFICULTY, BLOCKHASH, GASLIMIT), grounded on the original
// fuzzer's block_dependency detector.
func (o *Oracle) stepBlockDependency(ctx StepContext) {
	if ctx.Step.Op != bytecode.JUMPI {
		return
	}

	if len(ctx.Pre.Stack) < 2 {
		return
	}

	cond := ctx.Pre.Stack[1]

	for _, expr := range cond {
		for _, v := range expr.Vars() {
			if v.Kind.IsBlockDependent() {
				o.record(SWC120, ctx.Step.PC, ctx.TxIndex, "branch condition depends on block context ("+v.Kind.String()+")")
				return
			}
		}
	}
}
