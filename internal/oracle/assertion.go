package oracle

import "github.com/ethpandaops/weevil/internal/bytecode"

// stepAssertion implements SWC-110: the solc compiler lowers a failing
// assert() to the INVALID opcode (0xfe), distinct from require()'s
// REVERT, grounded on the original fuzzer's assertion_failure detector.
func (o *Oracle) stepAssertion(ctx StepContext) {
	if ctx.Step.Op != bytecode.INVALID {
		return
	}

	o.record(SWC110, ctx.Step.PC, ctx.TxIndex, "assert violation (INVALID opcode reached)")
}
