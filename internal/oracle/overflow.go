package oracle

import (
	"strconv"

	"github.com/ethpandaops/weevil/internal/bytecode"
	"github.com/ethpandaops/weevil/internal/taint"
	"github.com/holiman/uint256"
)

// overflowState buffers candidate ADD/SUB/MUL wraps by pc until a later
// sink proves the wrapped value actually matters, grounded on
// integer_overflow.py's self.overflows/self.underflows pc->vars maps,
// which are only turned into a finding once a later SSTORE's tainted
// value operand shares a free variable with a buffered pc.
type overflowState struct {
	overflows  map[uint64][]taint.Expr
	underflows map[uint64][]taint.Expr
	lastOp     bytecode.OpCode
	haveLastOp bool
}

func newOverflowState() overflowState {
	return overflowState{
		overflows:  make(map[uint64][]taint.Expr),
		underflows: make(map[uint64][]taint.Expr),
	}
}

// stepOverflow implements SWC-101: buffers ADD/SUB/MUL instructions whose
// concrete result wraps 256 bits and whose operands carry taint, then
// flushes a buffered pc into a finding only once its free variables are
// later observed flowing into an SSTORE's stored value, a CALL's value
// argument, or a comparison opcode's operand. An ADD is never buffered
// when the immediately preceding instruction was NOT, the compiler's own
// two's-complement negation idiom rather than attacker-reachable
// arithmetic. A tainted operand that traces back to a CALLDATALOAD
// offset known to hold a string/bytes argument is excluded, since string
// length/offset arithmetic routinely "overflows" as an artifact of ABI
// decoding rather than a real vulnerability.
func (o *Oracle) stepOverflow(ctx StepContext) {
	op := ctx.Step.Op

	prevOp, havePrev := o.overflow.lastOp, o.overflow.haveLastOp
	o.overflow.lastOp, o.overflow.haveLastOp = op, true

	switch op {
	case bytecode.ADD, bytecode.SUB, bytecode.MUL:
		o.bufferOverflow(ctx, op, havePrev && prevOp == bytecode.NOT)
	case bytecode.SSTORE:
		if len(ctx.Pre.Stack) >= 2 {
			o.flushOverflow(ctx, ctx.Pre.Stack[1])
		}
	case bytecode.CALL, bytecode.CALLCODE:
		if len(ctx.Pre.Stack) >= 3 {
			o.flushOverflow(ctx, ctx.Pre.Stack[2])
		}
	case bytecode.LT, bytecode.GT, bytecode.SLT, bytecode.SGT, bytecode.EQ:
		if len(ctx.Pre.Stack) >= 2 {
			o.flushOverflow(ctx, ctx.Pre.Stack[0])
			o.flushOverflow(ctx, ctx.Pre.Stack[1])
		}
	}
}

func (o *Oracle) bufferOverflow(ctx StepContext, op bytecode.OpCode, afterNot bool) {
	if len(ctx.Step.Stack) < 2 || len(ctx.Pre.Stack) < 2 {
		return
	}

	if !ctx.Pre.Stack[0].Tainted() && !ctx.Pre.Stack[1].Tainted() {
		return
	}

	top := ctx.Step.Stack[0]
	second := ctx.Step.Stack[1]

	var wraps bool

	switch op {
	case bytecode.ADD:
		if afterNot {
			return
		}
		var sum uint256.Int
		sum.Add(&top, &second)
		wraps = sum.Lt(&top)
	case bytecode.SUB:
		wraps = second.Gt(&top)
	case bytecode.MUL:
		if top.IsZero() || second.IsZero() {
			return
		}
		var prod, back uint256.Int
		prod.Mul(&top, &second)
		back.Div(&prod, &top)
		wraps = !back.Eq(&second)
	}

	if !wraps {
		return
	}

	vars := mergeVars(ctx.Pre.Stack[0].Vars(), ctx.Pre.Stack[1].Vars())
	vars = excludeStringArgs(vars, ctx.StringCalldataOffsets)
	if len(vars) == 0 {
		return
	}

	if op == bytecode.SUB {
		o.overflow.underflows[ctx.Step.PC] = vars
	} else {
		o.overflow.overflows[ctx.Step.PC] = vars
	}
}

// flushOverflow checks sink's free variables against every buffered
// candidate and reports the first match, matching integer_overflow.py's
// nested var1/var2 loop.
func (o *Oracle) flushOverflow(ctx StepContext, sink taint.Taint) {
	if !sink.Tainted() {
		return
	}

	sinkVars := make(map[string]bool)
	for _, e := range sink {
		for _, v := range e.Vars() {
			sinkVars[v.Name()] = true
		}
	}

	for pc, vars := range o.overflow.overflows {
		if sharesVar(vars, sinkVars) {
			o.record(SWC101, pc, ctx.TxIndex, "addition/multiplication overflows 256 bits and reaches a sink")
		}
	}

	for pc, vars := range o.overflow.underflows {
		if sharesVar(vars, sinkVars) {
			o.record(SWC101, pc, ctx.TxIndex, "subtraction underflows 256 bits and reaches a sink")
		}
	}
}

func sharesVar(vars []taint.Expr, names map[string]bool) bool {
	for _, v := range vars {
		if names[v.Name()] {
			return true
		}
	}
	return false
}

func mergeVars(a, b []taint.Expr) []taint.Expr {
	seen := make(map[string]bool, len(a)+len(b))
	out := make([]taint.Expr, 0, len(a)+len(b))

	for _, v := range append(append([]taint.Expr(nil), a...), b...) {
		if !seen[v.Name()] {
			seen[v.Name()] = true
			out = append(out, v)
		}
	}

	return out
}

// excludeStringArgs drops any CALLDATALOAD free variable whose recorded
// byte offset (the variable's Extra field) names a calldata region the
// caller identified as a string/bytes argument, per spec.md 4.5's
// same-kind string-argument exclusion.
func excludeStringArgs(vars []taint.Expr, stringOffsets map[uint64]bool) []taint.Expr {
	if len(stringOffsets) == 0 {
		return vars
	}

	out := make([]taint.Expr, 0, len(vars))
	for _, v := range vars {
		if v.Kind == taint.KindCalldataLoad {
			if offset, err := strconv.ParseUint(v.Extra, 10, 64); err == nil && stringOffsets[offset] {
				continue
			}
		}
		out = append(out, v)
	}
	return out
}
