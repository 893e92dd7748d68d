package taint

import "fmt"

// Op identifies the symbolic operation an Expr node represents, used both
// to build new 256-bit bit-vector terms (spec.md 4.4) and as the free-
// standing node type for leaf variables.
type Op int

const (
	OpVar Op = iota
	OpAdd
	OpSub
	OpMul
	OpDiv
	OpSDiv
	OpMod
	OpSMod
	OpAddMod
	OpMulMod
	OpExp
	OpShl
	OpShr
	OpSar
	OpLt
	OpGt
	OpSlt
	OpSgt
	OpEq
	OpIsZero
	OpAnd
	OpOr
	OpXor
	OpNot
)

// Expr is a node in the symbolic bit-vector expression tree. Leaves are
// named free variables (OpVar, kind+transaction index[+extra]); interior
// nodes are EVM arithmetic/comparison/bitwise operations over 256-bit
// words, per spec.md 3's "Symbolic expressions" paragraph.
//
// Expr is an immutable value type (redesign note in spec.md 9): building a
// new expression never mutates an existing one.
type Expr struct {
	Op   Op
	Kind Kind

	// Var fields, meaningful when Op == OpVar.
	TxIndex int
	Extra   string

	// Operation fields, meaningful when Op != OpVar.
	Args []Expr
}

// NewVar constructs a leaf free variable named kind_txIndex[_extra], per
// spec.md 3.
func NewVar(kind Kind, txIndex int, extra string) Expr {
	return Expr{Op: OpVar, Kind: kind, TxIndex: txIndex, Extra: extra}
}

// NewOp constructs an interior node over one or more tainted operands. The
// result's Kind is always KindDerived; the operation identity lives in Op.
func NewOp(op Op, args ...Expr) Expr {
	return Expr{Op: op, Kind: KindDerived, Args: args}
}

// Name renders the expression's free-variable name the way spec.md 3
// describes it. It is also the identity key for deduplication (Union,
// Vars) and for solver models; dispatch on a variable's meaning uses
// Kind/Op, never this string.
func (e Expr) Name() string {
	if e.Op != OpVar {
		return "<derived>"
	}

	if e.Extra != "" {
		return fmt.Sprintf("%s_%d_%s", e.Kind, e.TxIndex, e.Extra)
	}

	return fmt.Sprintf("%s_%d", e.Kind, e.TxIndex)
}

// Vars returns every free variable reachable from e, deduplicated by
// Name(), mirroring z3's get_vars used by the original SWC-124 detector.
func (e Expr) Vars() []Expr {
	var out []Expr
	seen := make(map[string]bool)

	var walk func(Expr)
	walk = func(n Expr) {
		if n.Op == OpVar {
			name := n.Name()
			if !seen[name] {
				seen[name] = true
				out = append(out, n)
			}
			return
		}
		for _, a := range n.Args {
			walk(a)
		}
	}

	walk(e)

	return out
}

// HasKind reports whether any free variable in e carries kind.
func (e Expr) HasKind(kind Kind) bool {
	for _, v := range e.Vars() {
		if v.Kind == kind {
			return true
		}
	}
	return false
}

// Taint is a deduplicated list of symbolic expressions tainting one
// stack/memory slot, or nil for "not tainted" (spec.md 3's
// "taint-list | false").
type Taint []Expr

// Union merges two taint lists, deduplicating by Name(), used when an
// opcode "degrades to plain taint union" per spec.md 4.4.
func Union(a, b Taint) Taint {
	if len(a) == 0 {
		return append(Taint(nil), b...)
	}
	if len(b) == 0 {
		return append(Taint(nil), a...)
	}

	seen := make(map[string]bool, len(a))
	out := append(Taint(nil), a...)

	for _, e := range a {
		seen[e.Name()] = true
	}

	for _, e := range b {
		if !seen[e.Name()] {
			out = append(out, e)
			seen[e.Name()] = true
		}
	}

	return out
}

// Tainted reports whether t carries any expression.
func (t Taint) Tainted() bool { return len(t) > 0 }

// HasKind reports whether any expression in t has a free variable of kind.
func (t Taint) HasKind(kind Kind) bool {
	for _, e := range t {
		if e.HasKind(kind) {
			return true
		}
	}
	return false
}
