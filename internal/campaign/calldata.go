package campaign

import (
	"encoding/binary"

	"github.com/ethereum/go-ethereum/accounts/abi"
)

// stringCalldataOffsets identifies, for one ABI-encoded call, the byte
// offsets belonging to a top-level string/bytes argument's length word
// and data words, so internal/oracle's SWC-101 detector can exclude
// string-length arithmetic from overflow reporting. Returns nil when
// method has no dynamic-typed input or data is too short to decode.
func stringCalldataOffsets(method abi.Method, data []byte) map[uint64]bool {
	const selectorLen = 4

	var out map[uint64]bool

	for i, input := range method.Inputs {
		if input.Type.T != abi.StringTy && input.Type.T != abi.BytesTy {
			continue
		}

		head := selectorLen + 32*i
		if head+32 > len(data) {
			continue
		}

		ptr := binary.BigEndian.Uint64(data[head+24 : head+32])
		lengthOffset := uint64(selectorLen) + ptr
		if int(lengthOffset)+32 > len(data) {
			continue
		}

		length := binary.BigEndian.Uint64(data[lengthOffset+24 : lengthOffset+32])
		words := (length + 31) / 32

		if out == nil {
			out = make(map[uint64]bool)
		}
		out[lengthOffset] = true
		for w := uint64(0); w < words; w++ {
			out[lengthOffset+32+32*w] = true
		}
	}

	return out
}
