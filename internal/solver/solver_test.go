package solver

import (
	"context"
	"math/rand"
	"strings"
	"testing"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethpandaops/weevil/internal/chromosome"
	"github.com/ethpandaops/weevil/internal/taint"
	"github.com/holiman/uint256"
	"github.com/stretchr/testify/require"
)

func TestSolveFindsZeroAssignmentForIsZero(t *testing.T) {
	// ISZERO(timestamp_0) is taken iff timestamp_0 == 0, the first boundary
	// guess the solver tries.
	v := taint.NewVar(taint.KindTimestamp, 0, "")
	branch := taint.NewOp(taint.OpIsZero, v)

	s := New(rand.New(rand.NewSource(1)), 4096)
	model, ok := s.Solve(context.Background(), Query{PC: 10, Branch: branch, WantTaken: true})

	require.True(t, ok)
	require.True(t, model[v.Name()].IsZero())
}

func TestSolveRespectsPathConstraints(t *testing.T) {
	v1 := taint.NewVar(taint.KindCallValue, 0, "")
	v2 := taint.NewVar(taint.KindCallValue, 1, "")

	// v1 < v2 (path) and v2 < v1 (branch) can never both hold.
	path := taint.NewOp(taint.OpLt, v1, v2)
	branch := taint.NewOp(taint.OpLt, v2, v1)

	s := New(rand.New(rand.NewSource(2)), 8192)
	_, ok := s.Solve(context.Background(), Query{PC: 11, Path: []taint.Expr{path}, Branch: branch, WantTaken: true})

	require.False(t, ok)
}

func TestSolveCachesRepeatedQueries(t *testing.T) {
	v := taint.NewVar(taint.KindTimestamp, 0, "")
	q := Query{PC: 12, Branch: taint.NewOp(taint.OpIsZero, v), WantTaken: true}

	s := New(rand.New(rand.NewSource(3)), 1024)

	_, ok := s.Solve(context.Background(), q)
	require.True(t, ok)

	_, ok = s.Solve(context.Background(), q)
	require.False(t, ok, "second attempt at an already-attempted query should be skipped")
}

func TestSolveReturnsFalseWithNoFreeVariables(t *testing.T) {
	s := New(rand.New(rand.NewSource(4)), 16)
	_, ok := s.Solve(context.Background(), Query{PC: 13, Branch: taint.NewOp(taint.OpNot), WantTaken: true})
	require.False(t, ok)
}

func TestFeedPoolWritesTimestampAndCallValue(t *testing.T) {
	contract := common.HexToAddress("0x00000000000000000000000000000000c0ffee")
	genes := []chromosome.Gene{{Contract: contract}}

	tsVar := taint.NewVar(taint.KindTimestamp, 0, "")
	valVar := taint.NewVar(taint.KindCallValue, 0, "")
	model := Model{
		tsVar.Name():  uint256.NewInt(999),
		valVar.Name(): uint256.NewInt(5),
	}

	gen := chromosome.NewGenerator(emptyABI(t), nil, contract, nil)
	FeedPool(gen, genes, model, []taint.Expr{tsVar, valVar})

	rng := rand.New(rand.NewSource(5))
	ts, ok := gen.Pools.RandomTimestamp(rng)
	require.True(t, ok)
	require.Equal(t, uint64(999), ts)

	amount, ok := gen.Pools.RandomAmount(rng)
	require.True(t, ok)
	require.Equal(t, uint64(5), amount.Uint64())
}

func TestStagnationTrackerFiresAfterMaxNoProgress(t *testing.T) {
	tr := NewStagnationTracker(3)

	require.False(t, tr.Observe(10))
	require.False(t, tr.Observe(10))
	require.False(t, tr.Observe(10))
	require.True(t, tr.Observe(10))
}

func TestStagnationTrackerResetsOnProgress(t *testing.T) {
	tr := NewStagnationTracker(2)

	require.False(t, tr.Observe(1))
	require.False(t, tr.Observe(2))
	require.False(t, tr.Observe(1)) // coverage didn't improve vs 2, but streak was reset at 2
}

func emptyABI(t *testing.T) abi.ABI {
	t.Helper()
	parsed, err := abi.JSON(strings.NewReader(`[]`))
	require.NoError(t, err)
	return parsed
}
