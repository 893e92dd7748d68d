package chromosome

import (
	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
)

// fallbackSelector and constructorSelector are the two sentinel argument[0]
// values a Gene can carry instead of a real function signature, per
// spec.md 3's Gene definition (`"fallback"`/`"constructor"`).
const (
	fallbackSelector    = "fallback"
	constructorSelector = "constructor"
)

// Gene is one transaction-to-be plus its environmental overrides, per
// spec.md 3: `Gene { account, contract, amount, gaslimit, arguments,
// timestamp?, blocknumber?, balance?, call_return?, extcodesize?,
// returndatasize? }`.
type Gene struct {
	Account  common.Address
	Contract common.Address
	Amount   *uint256.Int
	GasLimit uint64

	// Selector is the function signature being called, or one of
	// fallbackSelector/constructorSelector.
	Selector  string
	Arguments []interface{}

	Timestamp   *uint64
	BlockNumber *uint64

	Balance        map[common.Address]uint64
	CallReturn     map[common.Address]uint64
	ExtCodeSize    map[common.Address]uint64
	ReturnDataSize map[common.Address]uint64
}

// clone deep-copies a Gene so population operators never alias mutable
// state between individuals, mirroring the original's `deepcopy` in
// `Individual.clone`.
func (g Gene) clone() Gene {
	out := g
	out.Amount = new(uint256.Int).Set(g.Amount)
	out.Arguments = append([]interface{}(nil), g.Arguments...)

	if g.Timestamp != nil {
		v := *g.Timestamp
		out.Timestamp = &v
	}
	if g.BlockNumber != nil {
		v := *g.BlockNumber
		out.BlockNumber = &v
	}
	out.Balance = cloneOverrideMap(g.Balance)
	out.CallReturn = cloneOverrideMap(g.CallReturn)
	out.ExtCodeSize = cloneOverrideMap(g.ExtCodeSize)
	out.ReturnDataSize = cloneOverrideMap(g.ReturnDataSize)

	return out
}

func cloneOverrideMap(m map[common.Address]uint64) map[common.Address]uint64 {
	if m == nil {
		return nil
	}
	out := make(map[common.Address]uint64, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}
