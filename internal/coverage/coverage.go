// Package coverage implements C9: per-individual branch-direction
// bookkeeping and the data-dependency read/write sets the fitness
// function and the data-dependency GA operators consult, per spec.md 4.9.
package coverage

import "github.com/ethpandaops/weevil/internal/bytecode"

// BranchRecord is one individual's own per-instruction branch record,
// distinct from the campaign-wide `bytecode.CFG.VisitedBranches` (which
// only ever remembers a direction once *any* individual has taken it).
// `branches[pc][destination] = taken?` for both the jump target and the
// fallthrough pc+1, recorded every time this individual's execution
// reaches a JUMPI, mirroring the original fuzzer's per-run branches dict
// (spec.md 4.9).
type BranchRecord map[uint64]map[uint64]bool

// NewBranchRecord creates an empty record for one individual's evaluation.
func NewBranchRecord() BranchRecord {
	return make(BranchRecord)
}

// RecordStep folds one executed instruction into rec; a no-op for
// anything but JUMPI.
func (rec BranchRecord) RecordStep(pc uint64, op bytecode.OpCode, stackTop []uint64) {
	if op != bytecode.JUMPI || len(stackTop) < 2 {
		return
	}

	target := stackTop[0]
	taken := stackTop[1] != 0

	if rec[pc] == nil {
		rec[pc] = make(map[uint64]bool)
	}

	rec[pc][target] = taken
	rec[pc][pc+1] = !taken
}

// BranchCoverageFitness counts, over every (jumpi, destination) pair this
// individual's own execution recorded, the ones whose direction was not
// taken AND whose destination pc is still absent from the campaign's
// global code coverage set — "missing opposite side" branches, per
// spec.md 4.7/4.9 (`compute_branch_coverage_fitness`). Lower is better.
func BranchCoverageFitness(rec BranchRecord, codeCoverage map[uint64]bool) int {
	fitness := 0

	for _, directions := range rec {
		for destination, taken := range directions {
			if taken {
				continue
			}
			if codeCoverage[destination] {
				continue
			}
			fitness++
		}
	}

	return fitness
}

// ReadWriteSet is one function selector's storage slot footprint, derived
// from the taint engine's concrete SLOAD/SSTORE observations.
type ReadWriteSet struct {
	Read  map[uint64]bool
	Write map[uint64]bool
}

func newReadWriteSet() *ReadWriteSet {
	return &ReadWriteSet{Read: make(map[uint64]bool), Write: make(map[uint64]bool)}
}

// DataDependency accumulates every function selector's observed storage
// footprint across the whole campaign, mirroring `env.data_dependencies`.
type DataDependency struct {
	bySelector map[string]*ReadWriteSet
}

// NewDataDependency creates an empty campaign-wide data-dependency map.
func NewDataDependency() *DataDependency {
	return &DataDependency{bySelector: make(map[string]*ReadWriteSet)}
}

// RecordRead notes that selector's execution read storage slot.
func (d *DataDependency) RecordRead(selector string, slot uint64) {
	d.entry(selector).Read[slot] = true
}

// RecordWrite notes that selector's execution wrote storage slot.
func (d *DataDependency) RecordWrite(selector string, slot uint64) {
	d.entry(selector).Write[slot] = true
}

func (d *DataDependency) entry(selector string) *ReadWriteSet {
	rw, ok := d.bySelector[selector]
	if !ok {
		rw = newReadWriteSet()
		d.bySelector[selector] = rw
	}
	return rw
}

// Get returns selector's read/write sets, or nil if nothing has been
// recorded for it yet.
func (d *DataDependency) Get(selector string) (*ReadWriteSet, bool) {
	rw, ok := d.bySelector[selector]
	return rw, ok
}

// AllReads returns the union of every selector's read set, used by the
// data-dependency fitness bonus.
func (d *DataDependency) AllReads() map[uint64]bool {
	all := make(map[uint64]bool)
	for _, rw := range d.bySelector {
		for slot := range rw.Read {
			all[slot] = true
		}
	}
	return all
}

// DataDependencyFitness counts, over every selector this individual
// invokes, how many of that selector's write-set slots intersect the
// campaign-wide read-set — rewarding individuals likely to exercise
// read-after-write ordering across functions, per spec.md 4.7/4.9
// (`compute_data_dependency_fitness`).
func DataDependencyFitness(selectors []string, dd *DataDependency) int {
	allReads := dd.AllReads()

	fitness := 0
	for _, selector := range selectors {
		rw, ok := dd.Get(selector)
		if !ok {
			continue
		}
		for slot := range rw.Write {
			if allReads[slot] {
				fitness++
			}
		}
	}

	return fitness
}

// Intersects reports whether a and b share any read/write slots, the
// primitive the data-dependency selection/crossover operators use to
// decide whether two individuals are related.
func Intersects(a, b map[uint64]bool) bool {
	small, large := a, b
	if len(large) < len(small) {
		small, large = large, small
	}
	for slot := range small {
		if large[slot] {
			return true
		}
	}
	return false
}
