// Package report builds the per-contract JSON report spec.md 6 describes:
// per-generation metrics, final coverage, transaction totals, timing, and
// a deduplicated errors map keyed by pc. Grounded on
// original_source/fuzzer/detectors/__init__.py's add_error (errors-map
// shape and severity field) and get_color_for_severity (log-level
// mapping), restated as a write-through Emit plus a final marshal.
package report

import (
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"runtime"
	"strconv"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethpandaops/weevil/internal/campaign"
	"github.com/ethpandaops/weevil/internal/evm"
	"github.com/ethpandaops/weevil/internal/sourcemap"
	"github.com/holiman/uint256"
	"github.com/sirupsen/logrus"
)

// Generation is one per-generation metrics row, per spec.md 6.
type Generation struct {
	Generation     int     `json:"generation"`
	BestFitness    float64 `json:"best_fitness"`
	CodeCoverage   int     `json:"code_coverage"`
	BranchCoverage int     `json:"branch_coverage"`
	Findings       int     `json:"findings"`
}

// CoverageSummary is one code/branch coverage pair, with and without
// contracts reached only through a CALL/DELEGATECALL chain.
type CoverageSummary struct {
	Percent float64 `json:"percent"`
	Covered int     `json:"covered"`
	Total   int     `json:"total"`
}

// Coverage bundles the four coverage numbers spec.md 6 asks for.
type Coverage struct {
	Code               CoverageSummary `json:"code"`
	Branch             CoverageSummary `json:"branch"`
	CodeWithChildren   CoverageSummary `json:"code_with_children"`
	BranchWithChildren CoverageSummary `json:"branch_with_children"`
}

// TransactionView is the JSON-friendly rendering of one evm.Transaction,
// the decoded "individual" a finding's error entry carries.
type TransactionView struct {
	From     string `json:"from"`
	To       string `json:"to,omitempty"` // absent for contract creation
	Value    string `json:"value"`
	Data     string `json:"data"`
	GasLimit uint64 `json:"gas_limit"`
}

// Error is one deduplicated oracle finding, per spec.md 6's errors-map
// entry schema.
type Error struct {
	SWCID      string            `json:"swc_id"`
	Severity   string            `json:"severity"`
	Type       string            `json:"type"`
	Individual []TransactionView `json:"individual"`
	Time       float64           `json:"time"`

	Line       int    `json:"line,omitempty"`
	Column     int    `json:"column,omitempty"`
	SourceCode string `json:"source_code,omitempty"`
}

// Report is the full per-contract document written to disk, matching
// spec.md 6's EXTERNAL INTERFACES "Outputs" paragraph.
type Report struct {
	Address          string             `json:"address"`
	Seed             int64              `json:"seed"`
	TransactionCount int                `json:"transaction_count"`
	ExecutionSeconds float64            `json:"execution_time_seconds"`
	MemoryBytes      uint64             `json:"memory_bytes"`
	Generations      []Generation       `json:"generations"`
	Coverage         Coverage           `json:"coverage"`
	Errors           map[string][]Error `json:"errors"`
}

// Builder accumulates generations and write-through findings for one
// campaign, then renders a final Report. Grounded on settings.py's
// per-run report object, persisted incrementally rather than only at
// process exit so a crashed run still leaves partial results on disk.
type Builder struct {
	campaign  *campaign.Campaign
	sourceMap *sourcemap.SourceMap // nil when no compiler output was supplied
	log       *logrus.Entry
	seed      int64

	start       time.Time
	generations []Generation
	emitted     map[string]bool // pc -> already logged, avoids duplicate log lines across Emit calls
}

// New creates a Builder for c, optionally annotating findings through sm
// (nil skips annotation, per spec.md 6's "optionally" clause).
func New(c *campaign.Campaign, sm *sourcemap.SourceMap, log *logrus.Entry, seed int64) *Builder {
	return &Builder{
		campaign:  c,
		sourceMap: sm,
		log:       log,
		seed:      seed,
		start:     time.Now(),
		emitted:   make(map[string]bool),
	}
}

// RecordGeneration appends one generation's metrics row, called from the
// campaign's per-generation analysis hook.
func (b *Builder) RecordGeneration(generation int, bestFitness float64) {
	b.generations = append(b.generations, Generation{
		Generation:     generation,
		BestFitness:    bestFitness,
		CodeCoverage:   b.campaign.CodeCoverageCount(),
		BranchCoverage: b.campaign.BranchCoverageCount(),
		Findings:       len(b.campaign.Findings()),
	})
}

// Emit logs f at its computed severity color/level the moment it's first
// seen, matching get_color_for_severity's per-finding console output —
// the write-through half of the supplemented "report during the run"
// feature. Safe to call more than once per pc; only the first logs.
func (b *Builder) Emit(f *campaign.Finding) {
	key := strconv.FormatUint(f.PC, 10)
	if b.emitted[key] {
		return
	}
	b.emitted[key] = true

	entry := b.log.WithFields(logrus.Fields{
		"swc":      f.SWC.String(),
		"pc":       f.PC,
		"severity": f.SWC.Severity(),
	})

	switch f.SWC.Severity() {
	case "High":
		entry.Error(f.Description)
	case "Medium":
		entry.Warn(f.Description)
	default:
		entry.Info(f.Description)
	}
}

// Build renders the final Report from the campaign's current state.
func (b *Builder) Build(contract common.Address, txCount int) Report {
	codeCovered, codeTotal := b.campaign.CodeCoverageWithChildren()
	branchCovered, branchTotal := b.campaign.BranchCoverageWithChildren()

	var mem runtime.MemStats
	runtime.ReadMemStats(&mem)

	return Report{
		Address:          contract.Hex(),
		Seed:             b.seed,
		TransactionCount: txCount,
		ExecutionSeconds: time.Since(b.start).Seconds(),
		MemoryBytes:      mem.Alloc,
		Generations:      b.generations,
		Coverage: Coverage{
			Code:               summary(b.campaign.CodeCoverageCount(), b.campaign.CodeCoverageTotal()),
			Branch:             summary(b.campaign.BranchCoverageCount(), b.campaign.BranchCoverageTotal()),
			CodeWithChildren:   summary(codeCovered, codeTotal),
			BranchWithChildren: summary(branchCovered, branchTotal),
		},
		Errors: b.errors(),
	}
}

// errors renders every campaign finding into spec.md 6's pc-keyed map,
// annotating with source location when a SourceMap was supplied.
func (b *Builder) errors() map[string][]Error {
	out := make(map[string][]Error)

	for _, f := range b.campaign.FindingsSortedByPC() {
		key := strconv.FormatUint(f.PC, 10)

		e := Error{
			SWCID:      f.SWC.String(),
			Severity:   f.SWC.Severity(),
			Type:       f.Description,
			Individual: renderTransactions(f.Solution),
			Time:       f.Elapsed.Seconds(),
		}

		if b.sourceMap != nil {
			if line, col, ok := b.sourceMap.Location(f.PC); ok {
				e.Line = line
				e.Column = col
				e.SourceCode = b.sourceMap.SourceCode(f.PC)
			}
		}

		out[key] = append(out[key], e)
	}

	return out
}

func renderTransactions(txs []evm.Transaction) []TransactionView {
	out := make([]TransactionView, len(txs))
	for i, tx := range txs {
		view := TransactionView{
			From:     tx.From.Hex(),
			Value:    valueString(tx.Value),
			Data:     "0x" + hex.EncodeToString(tx.Data),
			GasLimit: tx.GasLimit,
		}
		if tx.To != nil {
			view.To = tx.To.Hex()
		}
		out[i] = view
	}
	return out
}

func valueString(v *uint256.Int) string {
	if v == nil {
		return "0"
	}
	return v.Dec()
}

func summary(covered, total int) CoverageSummary {
	s := CoverageSummary{Covered: covered, Total: total}
	if total > 0 {
		s.Percent = float64(covered) / float64(total) * 100
	}
	return s
}

// WriteFile marshals r as indented JSON to path, per spec.md 6's
// "persisted state: none beyond the report file" contract.
func WriteFile(path string, r Report) error {
	data, err := json.MarshalIndent(r, "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling report: %w", err)
	}

	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("writing report to %s: %w", path, err)
	}

	return nil
}
