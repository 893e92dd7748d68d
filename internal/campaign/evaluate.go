package campaign

import (
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethpandaops/weevil/internal/bytecode"
	"github.com/ethpandaops/weevil/internal/chromosome"
	"github.com/ethpandaops/weevil/internal/coverage"
	"github.com/ethpandaops/weevil/internal/oracle"
	"github.com/ethpandaops/weevil/internal/taint"
	"github.com/holiman/uint256"
)

// EvalResult is one individual's full trace-walk outcome: the per-
// individual branch record the fitness function needs, plus whatever
// findings the oracle raised along the way.
type EvalResult struct {
	Branches coverage.BranchRecord
	Findings []oracle.Finding
}

// Evaluate runs every transaction in ind against the campaign's
// interpreter, zipping the concrete trace against a fresh per-transaction
// taint.Analyzer and a per-individual oracle.Oracle, and folds the
// results into the campaign-wide coverage, branch-observation, and
// findings bookkeeping, per spec.md 2's data-flow paragraph and
// execution_trace_analysis.py's execution_function/register_step.
func (c *Campaign) Evaluate(ind *chromosome.Individual) EvalResult {
	txs := ind.Decode()

	orc := oracle.New(c.Generator.Attackers)
	rec := coverage.NewBranchRecord()

	var storage map[taint.StorageKey]taint.Taint

	for txIndex, tx := range txs {
		orc.BeginTransaction(tx.From, tx.Value, tx.Data)

		stringOffsets := c.stringArgumentOffsets(ind.Chromosome[txIndex].Selector, tx.Data)

		analyzer := taint.New(txIndex, storage)
		result := c.Interpreter.Run(tx)

		// Constructor deployments run against a throwaway CFG (run()
		// builds one locally rather than reusing CFGFor), so their pcs
		// share the 0-based namespace with the deployed contract's own
		// code without actually being part of it: exclude them from the
		// coverage/data-dependency/branch bookkeeping that assumes pcs
		// mean "position in the deployed bytecode", matching the
		// original's `arguments[0] == "constructor"` skip.
		isConstructor := tx.To == nil

		var pathStack []taint.Expr
		prevDepth := 0

		for i := range result.Steps {
			step := result.Steps[i]

			if step.Depth < prevDepth {
				analyzer.ClearCallstack(step.Depth)
			}
			prevDepth = step.Depth

			keyFn := func(idx int) taint.StorageKey {
				return storageKey(step.Self, step.Stack, idx)
			}

			pre := analyzer.Step(step.Depth, step.PC, step.Op, keyFn)

			var nextOp *bytecode.OpCode
			var nextStack []uint64
			if i+1 < len(result.Steps) && result.Steps[i+1].Depth == step.Depth {
				nextOp = &result.Steps[i+1].Op
				nextStack = stackTopWords(result.Steps[i+1].Stack)
			}

			orc.Step(oracle.StepContext{
				TxIndex:               txIndex,
				Sender:                tx.From,
				Self:                  step.Self,
				Depth:                 step.Depth,
				Step:                  step,
				Pre:                   pre,
				CFG:                   c.CFG(),
				TxValue:               tx.Value,
				NextOp:                nextOp,
				NextStack:             nextStack,
				StringCalldataOffsets: stringOffsets,
			})

			if isConstructor {
				continue
			}

			stackTop := stackTopWords(step.Stack)
			rec.RecordStep(step.PC, step.Op, stackTop)

			if step.Op == bytecode.JUMPI && len(step.Stack) >= 2 {
				target := step.Stack[0].Uint64()
				taken := !step.Stack[1].IsZero()
				destination := target
				if !taken {
					destination = step.PC + 1
				}

				condTaint := pre.PeekN(2)[1]
				if condTaint.Tainted() {
					predicate := condTaint[0]
					if !taken {
						predicate = taint.NewOp(taint.OpIsZero, predicate)
					}
					pathStack = append(pathStack, predicate)
					c.recordBranch(step.PC, destination, ind.Chromosome, txIndex, pathStack)
				}
			}

			selector := ind.Chromosome[txIndex].Selector
			switch step.Op {
			case bytecode.SLOAD:
				if len(step.Stack) >= 1 {
					c.dataDeps.RecordRead(selector, step.Stack[0].Uint64())
				}
			case bytecode.SSTORE:
				if len(step.Stack) >= 1 {
					c.dataDeps.RecordWrite(selector, step.Stack[0].Uint64())
				}
			}
		}

		storage = analyzer.Storage()
	}

	for _, f := range orc.Findings() {
		c.recordFinding(f, txs)
	}

	return EvalResult{Branches: rec, Findings: orc.Findings()}
}

// stringArgumentOffsets resolves selector (a method signature, matching
// Gene.Selector) to its ABI method and delegates to stringCalldataOffsets,
// returning nil for the fallback/constructor sentinels and any selector
// the generator's ABI doesn't recognize.
func (c *Campaign) stringArgumentOffsets(selector string, data []byte) map[uint64]bool {
	name, ok := c.Generator.MethodNameBySig(selector)
	if !ok {
		return nil
	}

	return stringCalldataOffsets(c.Generator.ABI.Methods[name], data)
}

// storageKey resolves the slot a SLOAD/SSTORE touches at idx (always 0,
// the single stack argument both opcodes share) into the taint package's
// address+slot key, scoped to the contract actually executing at this
// call depth.
func storageKey(self common.Address, stack []uint256.Int, idx int) taint.StorageKey {
	var key taint.StorageKey
	copy(key.Address[12:], self.Bytes())
	if idx < len(stack) {
		key.Slot = taint.Word(stack[idx].Bytes32())
	}
	return key
}

// stackTopWords renders a pre-execution stack snapshot (top-first
// uint256) down to the uint64 truncation coverage.BranchRecord and the
// oracle detectors work with.
func stackTopWords(stack []uint256.Int) []uint64 {
	out := make([]uint64, len(stack))
	for i, w := range stack {
		out[i] = w.Uint64()
	}
	return out
}
