// Package solver implements C8: a per-call bounded search over symbolic
// branch expressions, standing in for the original fuzzer's z3 queries
// (spec.md 4.8). No SMT library exists anywhere in the example corpus, so
// this is a from-scratch randomized local search over the same
// taint.Expr trees the symbolic engine already builds, rather than a
// hand-rolled SMT solver.
package solver

import (
	"context"
	"fmt"
	"math/rand"
	"strings"

	"github.com/ethpandaops/weevil/internal/taint"
	"github.com/holiman/uint256"
)

// Model assigns a concrete 256-bit value to every free variable in a
// query, keyed by Expr.Name().
type Model map[string]*uint256.Int

// Query asks the solver for an assignment that makes Branch evaluate to
// WantTaken while every expression in Path also evaluates truthy,
// mirroring the original's per-pc "all prior path conditions plus the
// negated branch" conjunction in execution_trace_analysis.py's
// symbolic_execution.
type Query struct {
	PC        uint64
	Path      []taint.Expr
	Branch    taint.Expr
	WantTaken bool
}

// signature renders q as a stable string for the attempt cache, mirroring
// the original's `negated_branch in self.env.memoized_symbolic_execution`
// dedup check.
func (q Query) signature() string {
	var b strings.Builder
	fmt.Fprintf(&b, "%d|%t|", q.PC, q.WantTaken)
	for _, e := range q.Path {
		b.WriteString(render(e))
		b.WriteByte(';')
	}
	b.WriteString(render(q.Branch))
	return b.String()
}

func render(e taint.Expr) string {
	if e.Op == taint.OpVar {
		return e.Name()
	}
	var b strings.Builder
	fmt.Fprintf(&b, "(%d", e.Op)
	for _, a := range e.Args {
		b.WriteByte(' ')
		b.WriteString(render(a))
	}
	b.WriteByte(')')
	return b.String()
}

// Solver runs a bounded randomized search per query, caching queries it
// has already attempted (successfully or not) so the same branch is never
// re-solved twice within a campaign, per spec.md 4.8.
type Solver struct {
	rng      *rand.Rand
	attempts int
	cache    map[string]bool
}

// New creates a Solver drawing guesses from rng, trying up to attempts
// random assignments per query before giving up.
func New(rng *rand.Rand, attempts int) *Solver {
	if attempts <= 0 {
		attempts = 256
	}
	return &Solver{rng: rng, attempts: attempts, cache: make(map[string]bool)}
}

// Solve searches for a Model satisfying q, honoring ctx's deadline.
// Returns (nil, false) if q was already attempted, the context expires, or
// no satisfying assignment was found within the attempt budget.
func (s *Solver) Solve(ctx context.Context, q Query) (Model, bool) {
	sig := q.signature()
	if s.cache[sig] {
		return nil, false
	}
	s.cache[sig] = true

	vars := collectVars(q)
	if len(vars) == 0 {
		return nil, false
	}

	for attempt := 0; attempt < s.attempts; attempt++ {
		select {
		case <-ctx.Done():
			return nil, false
		default:
		}

		model := s.guess(vars, attempt)
		if satisfies(q, model) {
			return model, true
		}
	}

	return nil, false
}

// Vars returns the free variables of q, in the same order Solve assigns
// them, so a caller can zip a solved Model's values back against them
// (FeedPool's signature) without reaching into solver internals.
func Vars(q Query) []taint.Expr {
	return collectVars(q)
}

// collectVars unions the free variables of every constraint in q,
// deduplicated by name.
func collectVars(q Query) []taint.Expr {
	seen := make(map[string]bool)
	var out []taint.Expr

	add := func(e taint.Expr) {
		for _, v := range e.Vars() {
			if !seen[v.Name()] {
				seen[v.Name()] = true
				out = append(out, v)
			}
		}
	}

	for _, p := range q.Path {
		add(p)
	}
	add(q.Branch)

	return out
}

// guess builds one candidate assignment. Early attempts bias toward small
// boundary values (0, 1, 2) and the all-ones word, since overflow/branch
// conditions in practice usually turn on a handful of edge values; later
// attempts fall back to uniform random 256-bit words.
func (s *Solver) guess(vars []taint.Expr, attempt int) Model {
	model := make(Model, len(vars))
	for _, v := range vars {
		model[v.Name()] = s.guessOne(attempt)
	}
	return model
}

func (s *Solver) guessOne(attempt int) *uint256.Int {
	boundary := []*uint256.Int{
		uint256.NewInt(0),
		uint256.NewInt(1),
		uint256.NewInt(2),
		new(uint256.Int).Not(uint256.NewInt(0)),             // max uint256
		new(uint256.Int).SetUint64(1 << 63),                 // a typical overflow-adjacent boundary
	}

	if attempt < len(boundary) {
		return new(uint256.Int).Set(boundary[attempt])
	}

	var buf [32]byte
	s.rng.Read(buf[:])
	return new(uint256.Int).SetBytes(buf[:])
}

// satisfies evaluates every path constraint and the branch expression
// under model, requiring all path constraints nonzero and Branch's
// truthiness to match WantTaken.
func satisfies(q Query, model Model) bool {
	for _, p := range q.Path {
		if eval(p, model).IsZero() {
			return false
		}
	}

	branch := eval(q.Branch, model)
	return branch.IsZero() != q.WantTaken
}

// eval interprets expr arithmetically over model, the same EVM 256-bit
// wraparound semantics the interpreter itself uses, grounded on
// `symbolic_taint_analysis.py`'s z3 bit-vector term construction restated
// as direct uint256 arithmetic.
func eval(expr taint.Expr, model Model) *uint256.Int {
	if expr.Op == taint.OpVar {
		if v, ok := model[expr.Name()]; ok {
			return v
		}
		return uint256.NewInt(0)
	}

	args := make([]*uint256.Int, len(expr.Args))
	for i, a := range expr.Args {
		args[i] = eval(a, model)
	}

	out := new(uint256.Int)

	switch expr.Op {
	case taint.OpAdd:
		out.Add(args[0], args[1])
	case taint.OpSub:
		out.Sub(args[0], args[1])
	case taint.OpMul:
		out.Mul(args[0], args[1])
	case taint.OpDiv:
		out.Div(args[0], args[1])
	case taint.OpSDiv:
		out.SDiv(args[0], args[1])
	case taint.OpMod:
		out.Mod(args[0], args[1])
	case taint.OpSMod:
		out.SMod(args[0], args[1])
	case taint.OpAddMod:
		out.AddMod(args[0], args[1], args[2])
	case taint.OpMulMod:
		out.MulMod(args[0], args[1], args[2])
	case taint.OpExp:
		out.Exp(args[0], args[1])
	case taint.OpShl:
		out.Lsh(args[1], uint(args[0].Uint64()))
	case taint.OpShr:
		out.Rsh(args[1], uint(args[0].Uint64()))
	case taint.OpSar:
		out.SRsh(args[1], uint(args[0].Uint64()))
	case taint.OpLt:
		out.SetBool(args[0].Lt(args[1]))
	case taint.OpGt:
		out.SetBool(args[0].Gt(args[1]))
	case taint.OpSlt:
		out.SetBool(args[0].Slt(args[1]))
	case taint.OpSgt:
		out.SetBool(args[0].Sgt(args[1]))
	case taint.OpEq:
		out.SetBool(args[0].Eq(args[1]))
	case taint.OpIsZero:
		out.SetBool(args[0].IsZero())
	case taint.OpAnd:
		out.And(args[0], args[1])
	case taint.OpOr:
		out.Or(args[0], args[1])
	case taint.OpXor:
		out.Xor(args[0], args[1])
	case taint.OpNot:
		out.Not(args[0])
	default:
		return uint256.NewInt(0)
	}

	return out
}
