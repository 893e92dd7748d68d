// Package evm implements C2: an instrumented interpreter that executes one
// transaction deterministically against an in-memory world state, emitting
// a per-step trace and honouring environmental opcode overrides, per
// spec.md 4.2.
package evm

import "github.com/holiman/uint256"

// Stack is the concrete 256-bit EVM operand stack, stored bottom-first
// internally (the top is the slice's last element) for cheap push/pop,
// grounded on the teacher's own use of
// github.com/holiman/uint256 as its word type.
type Stack struct {
	data []uint256.Int
}

func newStack() *Stack { return &Stack{} }

func (s *Stack) push(v uint256.Int) { s.data = append(s.data, v) }

func (s *Stack) pop() uint256.Int {
	n := len(s.data) - 1
	v := s.data[n]
	s.data = s.data[:n]
	return v
}

func (s *Stack) peek(n int) uint256.Int { return s.data[len(s.data)-1-n] }

func (s *Stack) swap(n int) {
	top := len(s.data) - 1
	s.data[top], s.data[top-n] = s.data[top-n], s.data[top]
}

func (s *Stack) dup(n int) { s.push(s.peek(n - 1)) }

func (s *Stack) len() int { return len(s.data) }

// snapshotTop returns the top n values without popping, top-first, for
// trace emission (the *pre-execution* stack per spec.md 3).
func (s *Stack) snapshotTop(n int) []uint256.Int {
	if n > len(s.data) {
		n = len(s.data)
	}

	out := make([]uint256.Int, n)
	for i := 0; i < n; i++ {
		out[i] = s.data[len(s.data)-1-i]
	}

	return out
}

// snapshotAll returns the whole stack, top-first, cloned for the trace.
func (s *Stack) snapshotAll() []uint256.Int {
	return s.snapshotTop(len(s.data))
}
