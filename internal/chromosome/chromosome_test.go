package chromosome

import (
	"math/rand"
	"strings"
	"testing"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/require"
)

const testABI = `[
	{"type":"function","name":"transfer","inputs":[{"name":"to","type":"address"},{"name":"amount","type":"uint256"}],"outputs":[{"name":"","type":"bool"}]},
	{"type":"function","name":"setFlag","inputs":[{"name":"v","type":"bool"}],"outputs":[]}
]`

func newTestGenerator(t *testing.T) *Generator {
	t.Helper()

	parsed, err := abi.JSON(strings.NewReader(testABI))
	require.NoError(t, err)

	attackers := []common.Address{common.HexToAddress("0xdeadbeefdeadbeefdeadbeefdeadbeefdeadbeef")}
	contract := common.HexToAddress("0x00000000000000000000000000000000c0ffee")

	return NewGenerator(parsed, []byte{0x60, 0x00}, contract, attackers)
}

func TestGenerateRandomIndividualProducesWithinBounds(t *testing.T) {
	g := newTestGenerator(t)
	rng := rand.New(rand.NewSource(1))

	chromosome := g.GenerateRandomIndividual(rng, 5)

	require.NotEmpty(t, chromosome)
	require.LessOrEqual(t, len(chromosome), 5)
}

func TestIndividualDecodeProducesOneTransactionPerGene(t *testing.T) {
	g := newTestGenerator(t)
	rng := rand.New(rand.NewSource(2))

	ind := NewIndividual(g).Init(rng, 3, nil)
	solution := ind.Decode()

	require.Len(t, solution, len(ind.Chromosome))
}

func TestIndividualHashIsStableForSameChromosome(t *testing.T) {
	g := newTestGenerator(t)
	rng := rand.New(rand.NewSource(3))

	ind := NewIndividual(g).Init(rng, 3, nil)
	clone := ind.Clone()

	require.Equal(t, ind.Hash(), clone.Hash())
}

func TestIndividualHashDiffersForDifferentChromosomes(t *testing.T) {
	g := newTestGenerator(t)

	a := NewIndividual(g).Init(rand.New(rand.NewSource(4)), 3, nil)
	b := NewIndividual(g).Init(rand.New(rand.NewSource(5)), 3, nil)

	require.NotEqual(t, a.Hash(), b.Hash())
}

func TestEncodeCallDataPacksKnownSelector(t *testing.T) {
	g := newTestGenerator(t)

	gene := Gene{
		Selector:  "setFlag(bool)",
		Arguments: []interface{}{true},
	}

	ind := NewIndividual(g)
	data := ind.encodeCallData(gene)

	require.Len(t, data, 4+32) // selector + one bool word
}

func TestPoolsRoundTripArgument(t *testing.T) {
	p := NewPools(nil)
	rng := rand.New(rand.NewSource(6))

	p.AddArgument("transfer(address,uint256)", 1, uint64(42))

	v, ok := p.RandomArgument("transfer(address,uint256)", 1, rng)
	require.True(t, ok)
	require.Equal(t, uint64(42), v)
}
