package evm

// Memory is linear, byte-addressed, growing in 32-byte words like the
// real EVM.
type Memory struct {
	data []byte
}

func newMemory() *Memory { return &Memory{} }

func (m *Memory) resize(size uint64) {
	size = (size + 31) / 32 * 32
	if uint64(len(m.data)) >= size {
		return
	}

	grown := make([]byte, size)
	copy(grown, m.data)
	m.data = grown
}

func (m *Memory) set(offset uint64, value []byte) {
	m.resize(offset + uint64(len(value)))
	copy(m.data[offset:], value)
}

func (m *Memory) get(offset, size uint64) []byte {
	m.resize(offset + size)
	out := make([]byte, size)
	copy(out, m.data[offset:offset+size])
	return out
}

func (m *Memory) len() uint64 { return uint64(len(m.data)) }
