// Package oracle implements C5: eleven SWC bug detectors inspecting the
// instrumented interpreter's instruction trace alongside the taint
// engine's symbolic records, per spec.md 4.5.
//
// The detectors are a tagged dispatch table (redesign note in spec.md 9:
// a closed set of variants, not open inheritance through a shared base
// class): each detector is a plain function over *Oracle and a
// StepContext, listed once in the detectors slice, and Oracle.Step calls
// every one of them for every executed instruction.
package oracle

import (
	"sort"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethpandaops/weevil/internal/bytecode"
	"github.com/ethpandaops/weevil/internal/evm"
	"github.com/ethpandaops/weevil/internal/taint"
	"github.com/holiman/uint256"
)

// SWC identifies one of the eleven bug classes this package detects.
type SWC int

const (
	SWC101 SWC = 101 // Integer overflow/underflow
	SWC104 SWC = 104 // Unchecked call return value
	SWC105 SWC = 105 // Unprotected ether withdrawal
	SWC106 SWC = 106 // Unprotected selfdestruct
	SWC107 SWC = 107 // Reentrancy
	SWC110 SWC = 110 // Assert violation
	SWC112 SWC = 112 // Unsafe delegatecall to untrusted callee
	SWC114 SWC = 114 // Transaction order dependence
	SWC120 SWC = 120 // Weak sources of randomness / block values as proxy
	SWC124 SWC = 124 // Arbitrary storage/memory write
	SWC132 SWC = 132 // Unexpected ether balance (locking ether)
)

func (s SWC) String() string {
	switch s {
	case SWC101:
		return "SWC-101"
	case SWC104:
		return "SWC-104"
	case SWC105:
		return "SWC-105"
	case SWC106:
		return "SWC-106"
	case SWC107:
		return "SWC-107"
	case SWC110:
		return "SWC-110"
	case SWC112:
		return "SWC-112"
	case SWC114:
		return "SWC-114"
	case SWC120:
		return "SWC-120"
	case SWC124:
		return "SWC-124"
	case SWC132:
		return "SWC-132"
	default:
		return "SWC-unknown"
	}
}

// Severity returns the detector's fixed severity rating, matching each
// Python detector class's own `self.severity` assignment.
func (s SWC) Severity() string {
	switch s {
	case SWC101, SWC105, SWC106, SWC107, SWC112, SWC124:
		return "High"
	case SWC104, SWC110, SWC114, SWC132:
		return "Medium"
	case SWC120:
		return "Low"
	default:
		return "Medium"
	}
}

// Finding is one deduplicated (SWC, pc) hit, per spec.md 4.5.
type Finding struct {
	SWC         SWC
	PC          uint64
	TxIndex     int
	Description string
}

type findingKey struct {
	swc SWC
	pc  uint64
}

// StepContext carries everything a detector needs to inspect one executed
// instruction, gathered by the campaign orchestration layer as it zips the
// interpreter's concrete trace against the taint analyzer's records.
type StepContext struct {
	TxIndex int
	Sender  common.Address
	Self    common.Address
	Depth   int
	Step    evm.Step
	Pre     taint.Record // taint record as it stood before Step executed
	CFG     *bytecode.CFG
	TxValue *uint256.Int

	// NextOp/NextStack describe the instruction immediately following
	// Step at the same depth, nil if Step is the transaction's last (or
	// a CALL whose callee trace intervenes).
	NextOp    *bytecode.OpCode
	NextStack []uint64

	// StringCalldataOffsets names the calldata byte offsets (length word
	// and data words) this transaction's ABI-decoded arguments identify
	// as belonging to a string/bytes argument, consulted by SWC-101's
	// same-kind string-argument exclusion. Nil when the active selector
	// has no dynamic-typed arguments.
	StringCalldataOffsets map[uint64]bool
}

// Oracle runs all eleven detectors over one individual's full multi-
// transaction trace, accumulating findings and the cross-transaction
// state a few detectors need (SWC-114's competing writers, SWC-132's
// ether-in-without-ether-out tracking, SWC-105/106's attacker-address
// laundering and prior-ether-send tracking).
type Oracle struct {
	findings map[findingKey]Finding
	order    []findingKey

	attackers map[common.Address]bool

	// trustedEmbedded and everSentEther accumulate across the whole
	// individual (not reset per transaction): attacker addresses a trusted
	// (non-attacker) sender has embedded in calldata, and addresses that
	// have themselves sent ether earlier in the sequence, per spec.md
	// 4.5/8's SWC-105 and SWC-106 history-tracking requirements.
	trustedEmbedded map[common.Address]bool
	everSentEther   map[common.Address]bool

	reentrancy    reentrancyState
	uncheckedCall uncheckedCallState
	leakingEther  leakingEtherState
	overflow      overflowState
	tod           todState
	balances      balanceLockState
}

// New creates an empty Oracle for one individual's evaluation, scoped to
// the configured attacker accounts.
func New(attackers []common.Address) *Oracle {
	attackerSet := make(map[common.Address]bool, len(attackers))
	for _, a := range attackers {
		attackerSet[a] = true
	}

	return &Oracle{
		findings:        make(map[findingKey]Finding),
		attackers:       attackerSet,
		trustedEmbedded: make(map[common.Address]bool),
		everSentEther:   make(map[common.Address]bool),
		reentrancy:      newReentrancyState(),
		uncheckedCall:   newUncheckedCallState(),
		leakingEther:    newLeakingEtherState(),
		overflow:        newOverflowState(),
		tod:             newTODState(),
		balances:        newBalanceLockState(),
	}
}

// BeginTransaction resets the per-transaction-only detector state (SWC-
// 107's sload/call bookkeeping, SWC-104's outstanding calls, SWC-105's
// pending-at-STOP findings) and folds this transaction's sender/value/
// calldata into the cross-transaction history SWC-105/106 consult,
// called once per transaction including the first, per spec.md 4.5's
// per-detector reset contract.
func (o *Oracle) BeginTransaction(sender common.Address, value *uint256.Int, data []byte) {
	o.reentrancy = newReentrancyState()
	o.uncheckedCall = newUncheckedCallState()
	o.leakingEther = newLeakingEtherState()
	o.overflow = newOverflowState()

	if value != nil && !value.IsZero() {
		o.everSentEther[sender] = true
	}

	if !o.attackers[sender] {
		for attacker := range o.attackers {
			if containsAddress(data, attacker) {
				o.trustedEmbedded[attacker] = true
			}
		}
	}
}

func containsAddress(data []byte, addr common.Address) bool {
	needle := addr.Bytes()
	if len(needle) > len(data) {
		return false
	}
	for i := 0; i+len(needle) <= len(data); i++ {
		match := true
		for j, b := range needle {
			if data[i+j] != b {
				match = false
				break
			}
		}
		if match {
			return true
		}
	}
	return false
}

// Step runs every detector over one executed instruction.
func (o *Oracle) Step(ctx StepContext) {
	for _, d := range detectors {
		d(o, ctx)
	}
}

// detectors is the tagged dispatch table: every detector is applied to
// every instruction and internally switches on the opcodes it cares
// about, mirroring the original fuzzer's DetectorExecutor iterating a
// fixed list of detector objects per instruction.
var detectors = []func(*Oracle, StepContext){
	(*Oracle).stepOverflow,
	(*Oracle).stepUncheckedCall,
	(*Oracle).stepLeakingEther,
	(*Oracle).stepSelfdestruct,
	(*Oracle).stepReentrancy,
	(*Oracle).stepAssertion,
	(*Oracle).stepDelegatecall,
	(*Oracle).stepTOD,
	(*Oracle).stepBlockDependency,
	(*Oracle).stepArbitraryStorage,
	(*Oracle).stepLockingEther,
}

// record adds a finding if (swc, pc) hasn't already been reported,
// matching the original's error_exists/add_error dedup.
func (o *Oracle) record(swc SWC, pc uint64, txIndex int, description string) {
	key := findingKey{swc: swc, pc: pc}
	if _, ok := o.findings[key]; ok {
		return
	}

	o.findings[key] = Finding{SWC: swc, PC: pc, TxIndex: txIndex, Description: description}
	o.order = append(o.order, key)
}

// Findings returns every recorded finding in first-seen order.
func (o *Oracle) Findings() []Finding {
	out := make([]Finding, 0, len(o.order))
	for _, k := range o.order {
		out = append(out, o.findings[k])
	}
	return out
}

// SortedByPC returns a copy of Findings sorted by program counter, for a
// deterministic report ordering independent of discovery order.
func (o *Oracle) SortedByPC() []Finding {
	out := o.Findings()
	sort.Slice(out, func(i, j int) bool { return out[i].PC < out[j].PC })
	return out
}

func isTerminator(op bytecode.OpCode) bool {
	switch op {
	case bytecode.STOP, bytecode.RETURN, bytecode.REVERT, bytecode.INVALID, bytecode.SELFDESTRUCT:
		return true
	default:
		return false
	}
}
