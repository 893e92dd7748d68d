package coverage

import (
	"testing"

	"github.com/ethpandaops/weevil/internal/bytecode"
	"github.com/stretchr/testify/require"
)

func TestBranchCoverageFitnessCountsMissingOppositeSide(t *testing.T) {
	rec := NewBranchRecord()
	rec.RecordStep(10, bytecode.JUMPI, []uint64{20, 1}) // taken=true: 20 taken, 11 untaken

	codeCoverage := map[uint64]bool{10: true, 20: true} // 11 never reached globally

	require.Equal(t, 1, BranchCoverageFitness(rec, codeCoverage))
}

func TestBranchCoverageFitnessZeroWhenOppositeAlreadyCovered(t *testing.T) {
	rec := NewBranchRecord()
	rec.RecordStep(10, bytecode.JUMPI, []uint64{20, 1})

	codeCoverage := map[uint64]bool{10: true, 20: true, 11: true}

	require.Equal(t, 0, BranchCoverageFitness(rec, codeCoverage))
}

func TestDataDependencyFitnessCountsWriteReadIntersection(t *testing.T) {
	dd := NewDataDependency()
	dd.RecordRead("withdraw()", 5)
	dd.RecordWrite("deposit()", 5)
	dd.RecordWrite("deposit()", 6)

	fitness := DataDependencyFitness([]string{"deposit()"}, dd)

	require.Equal(t, 1, fitness)
}

func TestIntersectsDetectsSharedSlot(t *testing.T) {
	a := map[uint64]bool{1: true, 2: true}
	b := map[uint64]bool{2: true, 3: true}

	require.True(t, Intersects(a, b))
	require.False(t, Intersects(a, map[uint64]bool{9: true}))
}
