package evm

import "github.com/ethereum/go-ethereum/common"

// Overrides carries the individual-supplied environmental values named in
// spec.md 4.2's table. Any nil/missing field means "fall back to real
// semantics".
type Overrides struct {
	Timestamp      *uint64
	BlockNumber    *uint64
	Balance        map[common.Address]uint64
	CallReturn     map[common.Address]uint64
	ExtCodeSize    map[common.Address]uint64
	ReturnDataSize map[common.Address]uint64
}
