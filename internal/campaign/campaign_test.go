package campaign

import (
	"math/rand"
	"testing"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethpandaops/weevil/internal/bytecode"
	"github.com/ethpandaops/weevil/internal/chromosome"
	"github.com/ethpandaops/weevil/internal/config"
	"github.com/ethpandaops/weevil/internal/evm"
	"github.com/ethpandaops/weevil/internal/oracle"
	"github.com/ethpandaops/weevil/internal/state"
	"github.com/holiman/uint256"
	"github.com/stretchr/testify/require"
)

// branchCode is a tiny contract that branches on CALLVALUE: JUMPDEST at
// pc7 is reached only when callvalue is nonzero, pc4's PUSH1/STOP path
// only when it's zero.
//
//	pc0  CALLVALUE
//	pc1  PUSH1 0x07
//	pc3  JUMPI
//	pc4  PUSH1 0x00
//	pc6  STOP
//	pc7  JUMPDEST
//	pc8  STOP
var branchCode = []byte{
	byte(bytecode.CALLVALUE),
	byte(bytecode.PUSH1), 0x07,
	byte(bytecode.JUMPI),
	byte(bytecode.PUSH1), 0x00,
	byte(bytecode.STOP),
	byte(bytecode.JUMPDEST),
	byte(bytecode.STOP),
}

func newTestCampaign(t *testing.T) (*Campaign, common.Address) {
	t.Helper()

	store := state.New(nil)
	sender := common.HexToAddress("0xdeadbeefdeadbeefdeadbeefdeadbeefdeadbeef")
	store.CreateFunded(1, uint256.NewInt(1_000_000))
	store.SetAccount(sender, state.Account{Balance: uint256.NewInt(1_000_000)})

	contract := store.Deploy(sender, branchCode)

	cfg := &config.Config{
		MaxSymbolicExecution: 3,
		SolverTimeout:        0,
		AccountBalance:       "1000000",
		GasLimit:             100000,
	}

	interp := evm.New(store, cfg, rand.New(rand.NewSource(1)))
	gen := chromosome.NewGenerator(abi.ABI{}, branchCode, contract, nil)

	c := New(cfg, store, interp, gen, contract, rand.New(rand.NewSource(2)))

	return c, sender
}

func individualWithValue(gen *chromosome.Generator, sender, contract common.Address, value uint64) *chromosome.Individual {
	ind := chromosome.NewIndividual(gen)
	ind.Chromosome = []chromosome.Gene{{
		Account:  sender,
		Contract: contract,
		Amount:   uint256.NewInt(value),
		GasLimit: 100000,
		Selector: "fallback",
	}}
	return ind
}

func TestEvaluateRecordsTakenBranch(t *testing.T) {
	c, sender := newTestCampaign(t)
	ind := individualWithValue(c.Generator, sender, c.Contract, 1)

	result := c.Evaluate(ind)

	require.True(t, result.Branches[3][7], "nonzero callvalue should take the jump to pc7")
	require.True(t, c.CFG().VisitedBranches[3][7], "campaign-wide coverage should record the same direction")
	require.Empty(t, result.Findings)
}

func TestEvaluateRecordsUntakenBranch(t *testing.T) {
	c, sender := newTestCampaign(t)
	ind := individualWithValue(c.Generator, sender, c.Contract, 0)

	result := c.Evaluate(ind)

	require.True(t, result.Branches[3][4], "zero callvalue should fall through to pc4")
	require.False(t, result.Branches[3][7])
}

func TestEvaluateRecordsBranchObservationForSymbolicPass(t *testing.T) {
	c, sender := newTestCampaign(t)
	ind := individualWithValue(c.Generator, sender, c.Contract, 1)

	c.Evaluate(ind)

	obs, ok := c.branchMeta[3][7]
	require.True(t, ok, "the taken direction's predicate should be memoized for symbolic execution")
	require.Len(t, obs.Path, 1)
	require.Equal(t, 0, obs.TxIndex)
}

func TestBranchCoverageFitnessPrefersExploredDirections(t *testing.T) {
	c, sender := newTestCampaign(t)

	fitness := c.Fitness()

	takenOnly := individualWithValue(c.Generator, sender, c.Contract, 1)
	before := fitness(takenOnly)
	require.Greater(t, before, 0.0, "the untaken fallthrough direction is still uncovered")

	untaken := individualWithValue(c.Generator, sender, c.Contract, 0)
	after := fitness(untaken)
	require.Equal(t, 0.0, after, "both directions of pc3 are now covered campaign-wide")
}

func TestFindingsDedupeByPCAndSWC(t *testing.T) {
	c, _ := newTestCampaign(t)

	f := oracle.Finding{SWC: oracle.SWC101, PC: 42, TxIndex: 0, Description: "overflow"}
	c.recordFinding(f, nil)
	c.recordFinding(f, nil)

	require.Len(t, c.Findings(), 1, "the same (swc, pc) hit twice should still be one campaign finding")
}
