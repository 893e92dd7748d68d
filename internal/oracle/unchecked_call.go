package oracle

import (
	"strconv"

	"github.com/ethpandaops/weevil/internal/bytecode"
	"github.com/ethpandaops/weevil/internal/taint"
)

// callRegion tracks one CALL-family instruction's outstanding
// obligations: whether its success flag has ever been observed at a
// JUMPI, and whether its return data (if any was requested) has ever
// been read back with MLOAD.
type callRegion struct {
	pc        uint64
	handled   bool
	retOffset uint64
	retSize   uint64
	mloaded   bool
}

type uncheckedCallState struct {
	order []uint64
	calls map[uint64]*callRegion
}

func newUncheckedCallState() uncheckedCallState {
	return uncheckedCallState{calls: make(map[uint64]*callRegion)}
}

// stepUncheckedCall implements SWC-104: every CALL-family instruction's
// success flag taint (taint.KindCall) is marked unhandled the instant it
// is pushed; it is only cleared once a later JUMPI's branch condition
// carries that same free variable, anywhere later in the transaction,
// not necessarily the next instruction. Separately, a CALL that asked
// for return data (nonzero retSize) is tracked until some later MLOAD
// reads from its return-data region. Both obligations are reported
// together at transaction termination if still outstanding, folding
// together the original fuzzer's unchecked_return_value and
// unhandled_exception detectors per spec.md 9.
func (o *Oracle) stepUncheckedCall(ctx StepContext) {
	op := ctx.Step.Op

	switch {
	case op.IsCall():
		o.registerCall(ctx)
	case op == bytecode.JUMPI:
		o.clearHandledCalls(ctx)
	case op == bytecode.MLOAD:
		o.markMLoaded(ctx)
	}

	if isTerminator(op) {
		o.reportUnresolvedCalls(ctx)
		o.uncheckedCall = newUncheckedCallState()
	}
}

func (o *Oracle) registerCall(ctx StepContext) {
	region := &callRegion{pc: ctx.Step.PC}

	switch ctx.Step.Op {
	case bytecode.CALL, bytecode.CALLCODE:
		if len(ctx.Step.Stack) >= 7 {
			region.retOffset = ctx.Step.Stack[5].Uint64()
			region.retSize = ctx.Step.Stack[6].Uint64()
		}
	case bytecode.DELEGATECALL, bytecode.STATICCALL:
		if len(ctx.Step.Stack) >= 6 {
			region.retOffset = ctx.Step.Stack[4].Uint64()
			region.retSize = ctx.Step.Stack[5].Uint64()
		}
	}

	o.uncheckedCall.order = append(o.uncheckedCall.order, region.pc)
	o.uncheckedCall.calls[region.pc] = region
}

// clearHandledCalls marks every outstanding CALL whose success-flag free
// variable appears in this JUMPI's branch condition as handled.
func (o *Oracle) clearHandledCalls(ctx StepContext) {
	if len(ctx.Pre.Stack) < 2 || !ctx.Pre.Stack[1].Tainted() {
		return
	}

	for _, e := range ctx.Pre.Stack[1] {
		for _, v := range e.Vars() {
			if v.Kind != taint.KindCall {
				continue
			}
			if pc, ok := parseCallPC(v.Extra); ok {
				if region, exists := o.uncheckedCall.calls[pc]; exists {
					region.handled = true
				}
			}
		}
	}
}

func (o *Oracle) markMLoaded(ctx StepContext) {
	if len(ctx.Step.Stack) < 1 {
		return
	}

	offset := ctx.Step.Stack[0].Uint64()
	for _, region := range o.uncheckedCall.calls {
		if region.retSize > 0 && offset >= region.retOffset && offset < region.retOffset+region.retSize {
			region.mloaded = true
		}
	}
}

func (o *Oracle) reportUnresolvedCalls(ctx StepContext) {
	for _, pc := range o.uncheckedCall.order {
		region := o.uncheckedCall.calls[pc]

		var reasons string
		if !region.handled {
			reasons = "call result never checked for success"
		}
		if region.retSize > 0 && !region.mloaded {
			if reasons != "" {
				reasons += "; "
			}
			reasons += "return data never read with MLOAD"
		}

		if reasons != "" {
			o.record(SWC104, pc, ctx.TxIndex, reasons)
		}
	}
}

func parseCallPC(extra string) (uint64, bool) {
	v, err := strconv.ParseUint(extra, 10, 64)
	return v, err == nil
}
