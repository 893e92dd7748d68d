package chromosome

import (
	"math/rand"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
)

// argKey identifies one function-argument slot for the per-function
// argument pools, per spec.md 4.6.
type argKey struct {
	selector string
	index    int
}

// Pools holds every candidate value observed or solved so far, biased
// toward during generation and mutation instead of drawing purely at
// random, grounded on the original fuzzer's generator value caches
// (`individual.py`'s chromosome fields feed back from `engine.py`'s
// solver-assignment step, spec.md 4.8).
type Pools struct {
	arguments           map[argKey][]interface{}
	parameterArraySizes map[argKey][]int
	amounts             []*uint256.Int
	gasLimits           []uint64
	accounts            []common.Address
	timestamps          []uint64
	blockNumbers        []uint64
	balances            map[common.Address][]uint64
	callReturns         map[common.Address][]uint64
	extCodeSizes        map[common.Address][]uint64
	returnDataSizes     map[common.Address][]uint64
}

// NewPools creates empty pools seeded with the attacker accounts, so
// address-typed arguments and the `account` gene field have at least one
// candidate before anything is observed or solved.
func NewPools(attackers []common.Address) *Pools {
	p := &Pools{
		arguments:           make(map[argKey][]interface{}),
		parameterArraySizes: make(map[argKey][]int),
		balances:            make(map[common.Address][]uint64),
		callReturns:         make(map[common.Address][]uint64),
		extCodeSizes:        make(map[common.Address][]uint64),
		returnDataSizes:     make(map[common.Address][]uint64),
	}

	p.accounts = append(p.accounts, attackers...)

	return p
}

func (p *Pools) AddAccount(addr common.Address) {
	for _, a := range p.accounts {
		if a == addr {
			return
		}
	}
	p.accounts = append(p.accounts, addr)
}

func (p *Pools) RandomAccount(rng *rand.Rand) (common.Address, bool) {
	if len(p.accounts) == 0 {
		return common.Address{}, false
	}
	return p.accounts[rng.Intn(len(p.accounts))], true
}

func (p *Pools) AddArgument(selector string, index int, value interface{}) {
	key := argKey{selector, index}
	p.arguments[key] = append(p.arguments[key], value)
}

func (p *Pools) RandomArgument(selector string, index int, rng *rand.Rand) (interface{}, bool) {
	key := argKey{selector, index}
	values := p.arguments[key]
	if len(values) == 0 {
		return nil, false
	}
	return values[rng.Intn(len(values))], true
}

// RemoveArgument drops a value that provably reverts on every path, per
// spec.md 4.6's generator removal support.
func (p *Pools) RemoveArgument(selector string, index int, value interface{}) {
	key := argKey{selector, index}
	values := p.arguments[key]
	for i, v := range values {
		if v == value {
			p.arguments[key] = append(values[:i], values[i+1:]...)
			return
		}
	}
}

func (p *Pools) AddParameterArraySize(selector string, index int, size int) {
	key := argKey{selector, index}
	p.parameterArraySizes[key] = append(p.parameterArraySizes[key], size)
}

func (p *Pools) RandomParameterArraySize(selector string, index int, rng *rand.Rand) (int, bool) {
	key := argKey{selector, index}
	sizes := p.parameterArraySizes[key]
	if len(sizes) == 0 {
		return 0, false
	}
	return sizes[rng.Intn(len(sizes))], true
}

func (p *Pools) AddAmount(v *uint256.Int) {
	p.amounts = append(p.amounts, v)
}

func (p *Pools) RandomAmount(rng *rand.Rand) (*uint256.Int, bool) {
	if len(p.amounts) == 0 {
		return nil, false
	}
	return p.amounts[rng.Intn(len(p.amounts))], true
}

func (p *Pools) AddGasLimit(v uint64) {
	p.gasLimits = append(p.gasLimits, v)
}

func (p *Pools) RandomGasLimit(rng *rand.Rand) (uint64, bool) {
	if len(p.gasLimits) == 0 {
		return 0, false
	}
	return p.gasLimits[rng.Intn(len(p.gasLimits))], true
}

func (p *Pools) AddTimestamp(v uint64) {
	p.timestamps = append(p.timestamps, v)
}

func (p *Pools) RandomTimestamp(rng *rand.Rand) (uint64, bool) {
	if len(p.timestamps) == 0 {
		return 0, false
	}
	return p.timestamps[rng.Intn(len(p.timestamps))], true
}

func (p *Pools) AddBlockNumber(v uint64) {
	p.blockNumbers = append(p.blockNumbers, v)
}

func (p *Pools) RandomBlockNumber(rng *rand.Rand) (uint64, bool) {
	if len(p.blockNumbers) == 0 {
		return 0, false
	}
	return p.blockNumbers[rng.Intn(len(p.blockNumbers))], true
}

func (p *Pools) AddBalance(addr common.Address, v uint64) {
	p.balances[addr] = append(p.balances[addr], v)
}

func (p *Pools) RandomBalance(addr common.Address, rng *rand.Rand) (uint64, bool) {
	values := p.balances[addr]
	if len(values) == 0 {
		return 0, false
	}
	return values[rng.Intn(len(values))], true
}

func (p *Pools) AddCallReturn(addr common.Address, v uint64) {
	p.callReturns[addr] = append(p.callReturns[addr], v)
}

func (p *Pools) RandomCallReturn(addr common.Address, rng *rand.Rand) (uint64, bool) {
	values := p.callReturns[addr]
	if len(values) == 0 {
		return 0, false
	}
	return values[rng.Intn(len(values))], true
}

func (p *Pools) AddExtCodeSize(addr common.Address, v uint64) {
	p.extCodeSizes[addr] = append(p.extCodeSizes[addr], v)
}

func (p *Pools) RandomExtCodeSize(addr common.Address, rng *rand.Rand) (uint64, bool) {
	values := p.extCodeSizes[addr]
	if len(values) == 0 {
		return 0, false
	}
	return values[rng.Intn(len(values))], true
}

func (p *Pools) AddReturnDataSize(addr common.Address, v uint64) {
	p.returnDataSizes[addr] = append(p.returnDataSizes[addr], v)
}

func (p *Pools) RandomReturnDataSize(addr common.Address, rng *rand.Rand) (uint64, bool) {
	values := p.returnDataSizes[addr]
	if len(values) == 0 {
		return 0, false
	}
	return values[rng.Intn(len(values))], true
}
