package oracle

import (
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethpandaops/weevil/internal/bytecode"
	"github.com/ethpandaops/weevil/internal/evm"
	"github.com/ethpandaops/weevil/internal/taint"
	"github.com/holiman/uint256"
	"github.com/stretchr/testify/require"
)

func u64(v uint64) uint256.Int { return *uint256.NewInt(v) }

func TestOverflowFlagsWrappingAddReachingSSTORE(t *testing.T) {
	o := New(nil)

	o.stepOverflow(StepContext{
		Step: evm.Step{PC: 10, Op: bytecode.ADD, Stack: []uint256.Int{maxUint256(), u64(1)}},
		Pre:  taint.Record{Stack: []taint.Taint{{taint.NewVar(taint.KindCalldataLoad, 0, "0")}, nil}},
	})
	require.Empty(t, o.Findings(), "buffered candidate must not report before a sink observes it")

	o.stepOverflow(StepContext{
		Step: evm.Step{PC: 20, Op: bytecode.SSTORE, Stack: []uint256.Int{u64(5), maxUint256()}},
		Pre:  taint.Record{Stack: []taint.Taint{nil, {taint.NewVar(taint.KindCalldataLoad, 0, "0")}}},
	})

	require.Len(t, o.Findings(), 1)
	require.Equal(t, SWC101, o.Findings()[0].SWC)
	require.Equal(t, uint64(10), o.Findings()[0].PC)
}

func TestOverflowIgnoresUntaintedOperands(t *testing.T) {
	o := New(nil)

	o.stepOverflow(StepContext{
		Step: evm.Step{PC: 10, Op: bytecode.ADD, Stack: []uint256.Int{maxUint256(), u64(1)}},
		Pre:  taint.Record{Stack: []taint.Taint{nil, nil}},
	})
	o.stepOverflow(StepContext{
		Step: evm.Step{PC: 20, Op: bytecode.SSTORE, Stack: []uint256.Int{u64(5), maxUint256()}},
		Pre:  taint.Record{Stack: []taint.Taint{nil, nil}},
	})

	require.Empty(t, o.Findings())
}

func TestOverflowSkipsAdditionImmediatelyAfterNot(t *testing.T) {
	o := New(nil)

	o.stepOverflow(StepContext{Step: evm.Step{PC: 8, Op: bytecode.NOT, Stack: []uint256.Int{u64(0)}}})
	o.stepOverflow(StepContext{
		Step: evm.Step{PC: 10, Op: bytecode.ADD, Stack: []uint256.Int{maxUint256(), u64(1)}},
		Pre:  taint.Record{Stack: []taint.Taint{{taint.NewVar(taint.KindCalldataLoad, 0, "0")}, nil}},
	})
	o.stepOverflow(StepContext{
		Step: evm.Step{PC: 20, Op: bytecode.SSTORE, Stack: []uint256.Int{u64(5), maxUint256()}},
		Pre:  taint.Record{Stack: []taint.Taint{nil, {taint.NewVar(taint.KindCalldataLoad, 0, "0")}}},
	})

	require.Empty(t, o.Findings(), "an ADD immediately after NOT is the compiler's negation idiom, not attacker arithmetic")
}

func TestOverflowExcludesStringCalldataArgument(t *testing.T) {
	o := New(nil)
	stringOffsets := map[uint64]bool{4: true}

	o.stepOverflow(StepContext{
		Step:                  evm.Step{PC: 10, Op: bytecode.ADD, Stack: []uint256.Int{maxUint256(), u64(1)}},
		Pre:                   taint.Record{Stack: []taint.Taint{{taint.NewVar(taint.KindCalldataLoad, 0, "4")}, nil}},
		StringCalldataOffsets: stringOffsets,
	})
	o.stepOverflow(StepContext{
		Step:                  evm.Step{PC: 20, Op: bytecode.SSTORE, Stack: []uint256.Int{u64(5), maxUint256()}},
		Pre:                   taint.Record{Stack: []taint.Taint{nil, {taint.NewVar(taint.KindCalldataLoad, 0, "4")}}},
		StringCalldataOffsets: stringOffsets,
	})

	require.Empty(t, o.Findings(), "taint traced to a known string argument offset must not be reported")
}

func TestUncheckedCallReportsUnhandledAtTermination(t *testing.T) {
	o := New(nil)

	o.stepUncheckedCall(StepContext{
		Step: evm.Step{PC: 4, Op: bytecode.CALL, Stack: []uint256.Int{u64(0), u64(0), u64(0), u64(0), u64(0), u64(0), u64(0)}},
	})
	o.stepUncheckedCall(StepContext{Step: evm.Step{PC: 5, Op: bytecode.STOP}})

	require.Len(t, o.Findings(), 1)
	require.Equal(t, SWC104, o.Findings()[0].SWC)
}

func TestUncheckedCallClearedByLaterJUMPI(t *testing.T) {
	o := New(nil)

	o.stepUncheckedCall(StepContext{
		Step: evm.Step{PC: 4, Op: bytecode.CALL, Stack: []uint256.Int{u64(0), u64(0), u64(0), u64(0), u64(0), u64(0), u64(0)}},
	})
	o.stepUncheckedCall(StepContext{
		Step: evm.Step{PC: 9, Op: bytecode.JUMPI, Stack: []uint256.Int{u64(20), u64(1)}},
		Pre:  taint.Record{Stack: []taint.Taint{nil, {taint.NewVar(taint.KindCall, 0, "4")}}},
	})
	o.stepUncheckedCall(StepContext{Step: evm.Step{PC: 30, Op: bytecode.STOP}})

	require.Empty(t, o.Findings(), "a JUMPI anywhere later tracing back to the CALL's success flag clears it")
}

func TestUncheckedCallFlagsUnreadReturnData(t *testing.T) {
	o := New(nil)

	o.stepUncheckedCall(StepContext{
		Step: evm.Step{PC: 4, Op: bytecode.CALL, Stack: []uint256.Int{u64(0), u64(0), u64(0), u64(0), u64(0), u64(64), u64(32)}},
	})
	o.stepUncheckedCall(StepContext{
		Step: evm.Step{PC: 9, Op: bytecode.JUMPI, Stack: []uint256.Int{u64(20), u64(1)}},
		Pre:  taint.Record{Stack: []taint.Taint{nil, {taint.NewVar(taint.KindCall, 0, "4")}}},
	})
	o.stepUncheckedCall(StepContext{Step: evm.Step{PC: 30, Op: bytecode.STOP}})

	require.Len(t, o.Findings(), 1, "return data requested but never MLOADed must still be flagged")
	require.Equal(t, SWC104, o.Findings()[0].SWC)
}

func TestUncheckedCallIgnoresReadReturnData(t *testing.T) {
	o := New(nil)

	o.stepUncheckedCall(StepContext{
		Step: evm.Step{PC: 4, Op: bytecode.CALL, Stack: []uint256.Int{u64(0), u64(0), u64(0), u64(0), u64(0), u64(64), u64(32)}},
	})
	o.stepUncheckedCall(StepContext{
		Step: evm.Step{PC: 9, Op: bytecode.JUMPI, Stack: []uint256.Int{u64(20), u64(1)}},
		Pre:  taint.Record{Stack: []taint.Taint{nil, {taint.NewVar(taint.KindCall, 0, "4")}}},
	})
	o.stepUncheckedCall(StepContext{
		Step: evm.Step{PC: 15, Op: bytecode.MLOAD, Stack: []uint256.Int{u64(64)}},
	})
	o.stepUncheckedCall(StepContext{Step: evm.Step{PC: 30, Op: bytecode.STOP}})

	require.Empty(t, o.Findings())
}

func TestReentrancyFlagsWriteAfterValueCallWithStipend(t *testing.T) {
	o := New(nil)

	o.stepReentrancy(StepContext{Step: evm.Step{PC: 1, Op: bytecode.SLOAD, Stack: []uint256.Int{u64(5)}}})
	o.stepReentrancy(StepContext{Step: evm.Step{
		PC: 2, Op: bytecode.CALL,
		Stack: []uint256.Int{u64(3000), u64(0xbeef), u64(1), u64(0), u64(0), u64(0), u64(0)},
	}})
	o.stepReentrancy(StepContext{Step: evm.Step{PC: 3, Op: bytecode.SSTORE, Stack: []uint256.Int{u64(5), u64(0)}}})

	require.Len(t, o.Findings(), 1)
	require.Equal(t, SWC107, o.Findings()[0].SWC)
}

func TestReentrancyIgnoresCallWithinStipend(t *testing.T) {
	o := New(nil)

	o.stepReentrancy(StepContext{Step: evm.Step{PC: 1, Op: bytecode.SLOAD, Stack: []uint256.Int{u64(5)}}})
	o.stepReentrancy(StepContext{Step: evm.Step{
		PC: 2, Op: bytecode.CALL,
		Stack: []uint256.Int{u64(2300), u64(0xbeef), u64(1), u64(0), u64(0), u64(0), u64(0)},
	}})
	o.stepReentrancy(StepContext{Step: evm.Step{PC: 3, Op: bytecode.SSTORE, Stack: []uint256.Int{u64(5), u64(0)}}})

	require.Empty(t, o.Findings(), "a CALL forwarding only the 2300 stipend cannot reenter")
}

func TestReentrancyRequiresMatchingSlot(t *testing.T) {
	o := New(nil)

	o.stepReentrancy(StepContext{Step: evm.Step{PC: 1, Op: bytecode.SLOAD, Stack: []uint256.Int{u64(5)}}})
	o.stepReentrancy(StepContext{Step: evm.Step{
		PC: 2, Op: bytecode.CALL,
		Stack: []uint256.Int{u64(3000), u64(0xbeef), u64(1), u64(0), u64(0), u64(0), u64(0)},
	}})
	o.stepReentrancy(StepContext{Step: evm.Step{PC: 3, Op: bytecode.SSTORE, Stack: []uint256.Int{u64(6), u64(0)}}})

	require.Empty(t, o.Findings(), "the SSTORE must revisit the same slot read before the call")
}

func TestReentrancyResetsOnRevert(t *testing.T) {
	o := New(nil)

	o.stepReentrancy(StepContext{Step: evm.Step{PC: 1, Op: bytecode.SLOAD, Stack: []uint256.Int{u64(5)}}})
	o.stepReentrancy(StepContext{Step: evm.Step{
		PC: 2, Op: bytecode.CALL,
		Stack: []uint256.Int{u64(3000), u64(0xbeef), u64(1), u64(0), u64(0), u64(0), u64(0)},
	}})
	o.stepReentrancy(StepContext{Step: evm.Step{PC: 3, Op: bytecode.REVERT}})
	o.stepReentrancy(StepContext{Step: evm.Step{PC: 4, Op: bytecode.SSTORE, Stack: []uint256.Int{u64(5), u64(0)}}})

	require.Empty(t, o.Findings())
}

func TestSelfdestructRequiresAttackerSender(t *testing.T) {
	attacker := common.HexToAddress("0xa1")
	trusted := common.HexToAddress("0xb2")
	o := New([]common.Address{attacker})

	o.BeginTransaction(trusted, nil, nil)
	o.stepSelfdestruct(StepContext{Sender: trusted, Step: evm.Step{PC: 1, Op: bytecode.SELFDESTRUCT}})
	require.Empty(t, o.Findings(), "a non-attacker sender reaching SELFDESTRUCT is not itself the finding")

	o.BeginTransaction(attacker, nil, nil)
	o.stepSelfdestruct(StepContext{Sender: attacker, Step: evm.Step{PC: 2, Op: bytecode.SELFDESTRUCT}})
	require.Len(t, o.Findings(), 1)
	require.Equal(t, SWC106, o.Findings()[0].SWC)
}

func TestSelfdestructExcludesTrustedlyEmbeddedAttacker(t *testing.T) {
	attacker := common.HexToAddress("0xa1")
	trusted := common.HexToAddress("0xb2")
	o := New([]common.Address{attacker})

	// A trusted sender's calldata names the attacker address first.
	o.BeginTransaction(trusted, nil, attacker.Bytes())

	o.BeginTransaction(attacker, nil, nil)
	o.stepSelfdestruct(StepContext{Sender: attacker, Step: evm.Step{PC: 2, Op: bytecode.SELFDESTRUCT}})

	require.Empty(t, o.Findings(), "an attacker address legitimately handed out by a trusted sender is excluded, per spec.md 8 scenario 3")
}

func TestLeakingEtherFlagsCallBackToSender(t *testing.T) {
	sender := common.HexToAddress("0xc3")
	o := New(nil)
	o.BeginTransaction(sender, nil, nil)

	var target uint256.Int
	target.SetBytes(sender.Bytes())

	o.stepLeakingEther(StepContext{
		Sender: sender,
		Step:   evm.Step{PC: 5, Op: bytecode.CALL, Stack: []uint256.Int{u64(0), target, u64(1)}},
	})
	o.stepLeakingEther(StepContext{Sender: sender, Step: evm.Step{PC: 6, Op: bytecode.STOP}})

	require.Len(t, o.Findings(), 1)
	require.Equal(t, SWC105, o.Findings()[0].SWC)
}

func TestLeakingEtherIgnoresUnresolvedTarget(t *testing.T) {
	sender := common.HexToAddress("0xc3")
	other := common.HexToAddress("0xd4")
	o := New(nil)
	o.BeginTransaction(sender, nil, nil)

	var target uint256.Int
	target.SetBytes(other.Bytes())

	o.stepLeakingEther(StepContext{
		Sender: sender,
		Step:   evm.Step{PC: 5, Op: bytecode.CALL, Stack: []uint256.Int{u64(0), target, u64(1)}},
	})
	o.stepLeakingEther(StepContext{Sender: sender, Step: evm.Step{PC: 6, Op: bytecode.STOP}})

	require.Empty(t, o.Findings())
}

func TestLeakingEtherIgnoresSenderThatAlreadySentEther(t *testing.T) {
	sender := common.HexToAddress("0xc3")
	o := New(nil)

	o.BeginTransaction(sender, uint256.NewInt(1), nil) // sender sent ether already, earlier transaction
	o.BeginTransaction(sender, nil, nil)

	var target uint256.Int
	target.SetBytes(sender.Bytes())

	o.stepLeakingEther(StepContext{
		Sender: sender,
		Step:   evm.Step{PC: 5, Op: bytecode.CALL, Stack: []uint256.Int{u64(0), target, u64(1)}},
	})
	o.stepLeakingEther(StepContext{Sender: sender, Step: evm.Step{PC: 6, Op: bytecode.STOP}})

	require.Empty(t, o.Findings(), "a refund to an address that has itself sent ether before is not a leak")
}

func TestTODFlagsSlotWrittenByTwoSenders(t *testing.T) {
	o := New(nil)
	self := common.HexToAddress("0x01")

	o.stepTOD(StepContext{Self: self, Sender: common.HexToAddress("0xaa"), Step: evm.Step{PC: 1, Op: bytecode.SSTORE, Stack: []uint256.Int{u64(5), u64(1)}}})
	o.stepTOD(StepContext{Self: self, Sender: common.HexToAddress("0xbb"), Step: evm.Step{PC: 2, Op: bytecode.SSTORE, Stack: []uint256.Int{u64(5), u64(2)}}})

	require.Len(t, o.Findings(), 1)
	require.Equal(t, SWC114, o.Findings()[0].SWC)
}

func TestBlockDependencyFlagsTimestampBranch(t *testing.T) {
	o := New(nil)

	ctx := StepContext{
		Step: evm.Step{PC: 1, Op: bytecode.JUMPI},
		Pre:  taint.Record{Stack: []taint.Taint{nil, {taint.NewVar(taint.KindTimestamp, 0, "")}}},
	}

	o.stepBlockDependency(ctx)

	require.Len(t, o.Findings(), 1)
	require.Equal(t, SWC120, o.Findings()[0].SWC)
}

func TestFindingsDeduplicateByPC(t *testing.T) {
	o := New(nil)

	o.record(SWC106, 7, 0, "first")
	o.record(SWC106, 7, 1, "second")

	require.Len(t, o.Findings(), 1)
}

func maxUint256() uint256.Int {
	var z uint256.Int
	z.Not(uint256.NewInt(0))
	return z
}
