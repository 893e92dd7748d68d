package taint

// Record is one shadow stack frame, cloned on every executed instruction,
// per spec.md 3's "Taint record" paragraph. It is a value type with an
// explicit Clone, per the redesign note in spec.md 9 — no record is ever
// mutated through a shared pointer once published onto a callstack.
type Record struct {
	Input   Taint
	Value   Taint
	Output  Taint
	Address Taint

	// Stack is the shadow stack, ordered top-first (index 0 is the top).
	// Clone copies the slice into a new backing array, and Push prepends
	// by allocating a fresh slice.
	Stack []Taint

	// Memory maps byte offset -> taint. Cloned as a new map per step (the
	// hot path clones one record per instruction, per spec.md 9; EVM
	// memory taint maps are small in practice, so a shallow map copy is
	// the arena-like persistent structure the redesign note calls for
	// without the complexity of a full persistent trie).
	Memory map[uint64]Taint
}

// NewRecord returns an empty record with initialized Memory, the state a
// fresh call-depth frame starts from, per spec.md 4.4.
func NewRecord() Record {
	return Record{Memory: make(map[uint64]Taint)}
}

// Clone returns an independent copy of r suitable for becoming the "latest
// record" after executing one instruction.
func (r Record) Clone() Record {
	out := Record{
		Input:   r.Input,
		Value:   r.Value,
		Output:  r.Output,
		Address: r.Address,
		Stack:   append([]Taint(nil), r.Stack...),
		Memory:  make(map[uint64]Taint, len(r.Memory)),
	}

	for off, t := range r.Memory {
		out.Memory[off] = t
	}

	return out
}

// Push adds a taint onto the top of the shadow stack.
func (r *Record) Push(t Taint) {
	r.Stack = append([]Taint{t}, r.Stack...)
}

// Pop removes and returns the top of the shadow stack, or nil/false taint
// if empty.
func (r *Record) Pop() Taint {
	if len(r.Stack) == 0 {
		return nil
	}

	top := r.Stack[0]
	r.Stack = r.Stack[1:]

	return top
}

// PopN removes and returns the top n shadow-stack slots, in top-first
// order, padding with nil taint if the shadow stack underflows (tracking
// concrete execution's own stack discipline, not re-validating it here).
func (r *Record) PopN(n int) []Taint {
	out := make([]Taint, n)

	for i := 0; i < n; i++ {
		out[i] = r.Pop()
	}

	return out
}

// PeekN returns the top n shadow-stack slots without popping them.
func (r *Record) PeekN(n int) []Taint {
	out := make([]Taint, n)

	for i := 0; i < n && i < len(r.Stack); i++ {
		out[i] = r.Stack[i]
	}

	return out
}

// Dup duplicates the n-th (1-based) stack slot onto the top.
func (r *Record) Dup(n int) {
	if n-1 < len(r.Stack) {
		r.Push(r.Stack[n-1])
	} else {
		r.Push(nil)
	}
}

// Swap exchanges the top slot with the n-th (1-based, not counting the
// top) stack slot.
func (r *Record) Swap(n int) {
	if n < len(r.Stack) {
		r.Stack[0], r.Stack[n] = r.Stack[n], r.Stack[0]
	}
}

// MemTaint returns the taint at a memory offset, nil if untainted.
func (r Record) MemTaint(offset uint64) Taint {
	return r.Memory[offset]
}

// SetMemTaint records taint at a memory offset.
func (r *Record) SetMemTaint(offset uint64, t Taint) {
	if r.Memory == nil {
		r.Memory = make(map[uint64]Taint)
	}
	r.Memory[offset] = t
}
