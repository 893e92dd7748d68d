// Package campaign implements the orchestration layer tying C1-C9
// together for one target contract: it zips the interpreter's concrete
// trace against the taint analyzer's records, drives the bug oracles,
// accumulates coverage, and scores each individual for the evolutionary
// engine, per spec.md 2's data-flow paragraph.
package campaign

import (
	"math/rand"
	"sort"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethpandaops/weevil/internal/bytecode"
	"github.com/ethpandaops/weevil/internal/chromosome"
	"github.com/ethpandaops/weevil/internal/config"
	"github.com/ethpandaops/weevil/internal/coverage"
	"github.com/ethpandaops/weevil/internal/evm"
	"github.com/ethpandaops/weevil/internal/oracle"
	"github.com/ethpandaops/weevil/internal/solver"
	"github.com/ethpandaops/weevil/internal/state"
	"github.com/ethpandaops/weevil/internal/taint"
	"github.com/holiman/uint256"
)

// branchObservation is the campaign-wide memo of the last individual to
// reach one JUMPI direction, grounded on execution_trace_analysis.py's
// `env.visited_branches[pc][condition]` entry: enough to replay the
// symbolic-execution query (the path predicates leading to it, the last
// of which is this direction's own condition) and to feed a solved model
// back into the generator that produced it.
type branchObservation struct {
	Genes   []chromosome.Gene
	TxIndex int
	Path    []taint.Expr // path[len-1] is this direction's own predicate
}

// findingKey dedups findings campaign-wide by (swc, pc), per spec.md 4.5:
// "duplicates per (pc, kind) are suppressed" — that suppression is global
// to the report, not just within one individual's Oracle.
type findingKey struct {
	swc oracle.SWC
	pc  uint64
}

// Finding is one campaign-wide deduplicated oracle finding, augmented
// with the individual that first triggered it and when, per spec.md 6's
// errors-report schema.
type Finding struct {
	oracle.Finding
	Solution []evm.Transaction
	Elapsed  time.Duration
}

// Campaign holds everything shared across every individual's evaluation
// against one deployed contract: the world state, the reused interpreter
// (so its CFG cache and hence VisitedPCs/VisitedBranches accumulate
// campaign-wide), the generator individuals draw pools from, and the
// cross-individual findings/branch bookkeeping the symbolic-execution
// pass and the final report both need.
type Campaign struct {
	Config      *config.Config
	Store       *state.Store
	Interpreter *evm.Interpreter
	Generator   *chromosome.Generator
	Contract    common.Address

	Solver     *solver.Solver
	Stagnation *solver.StagnationTracker

	dataDeps *coverage.DataDependency

	findings map[findingKey]*Finding
	order    []findingKey

	branchMeta map[uint64]map[uint64]branchObservation

	start time.Time
}

// New creates a Campaign targeting contract, wired to the given store,
// interpreter, and generator (the generator's Contract field is assumed
// to already equal contract, per spec.md 4.6). solverRng drives the
// constraint solver's search, kept distinct from the interpreter's own
// PRNG stream (spec.md 4.2: the interpreter's rng is "consulted only for
// the CALL/STATICCALL override's fair-coin fill" and must not be
// perturbed by an unrelated consumer).
func New(cfg *config.Config, store *state.Store, interp *evm.Interpreter, gen *chromosome.Generator, contract common.Address, solverRng *rand.Rand) *Campaign {
	return &Campaign{
		Config:      cfg,
		Store:       store,
		Interpreter: interp,
		Generator:   gen,
		Contract:    contract,
		Solver:      solver.New(solverRng, 4096),
		Stagnation:  solver.NewStagnationTracker(cfg.MaxSymbolicExecution),
		dataDeps:    coverage.NewDataDependency(),
		findings:    make(map[findingKey]*Finding),
		branchMeta:  make(map[uint64]map[uint64]branchObservation),
		start:       time.Now(),
	}
}

// DataDependency returns the campaign-wide storage read/write footprint
// per function selector, for the data-dependency GA operators and
// fitness bonus (spec.md 4.6/4.7).
func (c *Campaign) DataDependency() *coverage.DataDependency {
	return c.dataDeps
}

// CFG returns (building and caching if needed) the target contract's
// control-flow graph, the single source of campaign-wide code/branch
// coverage this package reads everywhere it needs a coverage count.
func (c *Campaign) CFG() *bytecode.CFG {
	return c.Interpreter.CFGFor(c.Contract)
}

// CodeCoverageCount is the number of distinct program counters any
// individual has ever executed in the target contract, the "code
// coverage" size spec.md 4.7/4.8 uses as the stagnation signal.
func (c *Campaign) CodeCoverageCount() int {
	return len(c.CFG().VisitedPCs)
}

// BranchCoverageCount is the number of distinct (jumpi, direction) pairs
// any individual has ever taken.
func (c *Campaign) BranchCoverageCount() int {
	total := 0
	for _, directions := range c.CFG().VisitedBranches {
		total += len(directions)
	}
	return total
}

// CodeCoverageWithChildren and BranchCoverageWithChildren sum coverage
// across every contract the interpreter has ever executed code for, not
// just the primary target, per spec.md 6's "with and without child
// contracts" report split (a CALL/DELEGATECALL into another deployed
// contract builds and caches that contract's own CFG too). Totals count
// distinct instruction pcs (not raw bytes, since a multi-byte PUSH is one
// instruction) and distinct JUMPI directions (taken and fallthrough).
func (c *Campaign) CodeCoverageWithChildren() (covered, total int) {
	for _, cfg := range c.Interpreter.CachedCFGs() {
		covered += len(cfg.VisitedPCs)
		total += len(bytecode.Decode(cfg.Bytecode))
	}
	return covered, total
}

func (c *Campaign) BranchCoverageWithChildren() (covered, total int) {
	for _, cfg := range c.Interpreter.CachedCFGs() {
		for _, directions := range cfg.VisitedBranches {
			covered += len(directions)
		}
		for _, ins := range bytecode.Decode(cfg.Bytecode) {
			if ins.Op == bytecode.JUMPI {
				total += 2
			}
		}
	}
	return covered, total
}

// CodeCoverageTotal is the primary target's own instruction count, the
// denominator for its own code-coverage percentage.
func (c *Campaign) CodeCoverageTotal() int {
	return len(bytecode.Decode(c.CFG().Bytecode))
}

// BranchCoverageTotal is the primary target's own count of JUMPI
// directions (taken and fallthrough), the denominator for its own
// branch-coverage percentage.
func (c *Campaign) BranchCoverageTotal() int {
	total := 0
	for _, ins := range bytecode.Decode(c.CFG().Bytecode) {
		if ins.Op == bytecode.JUMPI {
			total += 2
		}
	}
	return total
}

// recordFinding folds one oracle finding into the campaign-wide dedup
// map, keeping the first individual/time that triggered it.
func (c *Campaign) recordFinding(f oracle.Finding, solution []evm.Transaction) {
	key := findingKey{swc: f.SWC, pc: f.PC}
	if _, ok := c.findings[key]; ok {
		return
	}

	c.findings[key] = &Finding{Finding: f, Solution: solution, Elapsed: time.Since(c.start)}
	c.order = append(c.order, key)
}

// Findings returns every campaign-wide deduplicated finding, first-seen
// order.
func (c *Campaign) Findings() []*Finding {
	out := make([]*Finding, 0, len(c.order))
	for _, k := range c.order {
		out = append(out, c.findings[k])
	}
	return out
}

// FindingsSortedByPC returns a copy of Findings sorted by program
// counter, for a deterministic report ordering independent of discovery
// order.
func (c *Campaign) FindingsSortedByPC() []*Finding {
	out := c.Findings()
	sort.Slice(out, func(i, j int) bool { return out[i].PC < out[j].PC })
	return out
}

// recordBranch stores the path leading to one JUMPI direction, keyed
// identically to bytecode.CFG.VisitedBranches so the symbolic-execution
// pass's single-direction candidates line up 1:1 with an observation.
func (c *Campaign) recordBranch(pc, destination uint64, genes []chromosome.Gene, txIndex int, path []taint.Expr) {
	if c.branchMeta[pc] == nil {
		c.branchMeta[pc] = make(map[uint64]branchObservation)
	}
	c.branchMeta[pc][destination] = branchObservation{
		Genes:   genes,
		TxIndex: txIndex,
		Path:    append([]taint.Expr(nil), path...),
	}
}

// fundSolvedAddress materializes a previously-unseen address a solved
// model produced, per spec.md 4.8: "previously unseen addresses spawn a
// fresh funded account in the world state before the next generation."
func (c *Campaign) fundSolvedAddress(addr common.Address) {
	if c.Store.HasAccount(addr) {
		return
	}

	balance, err := c.Config.ParsedAccountBalance()
	if err != nil {
		balance = uint256.NewInt(0)
	}

	c.Store.Fund(addr, balance)
}
