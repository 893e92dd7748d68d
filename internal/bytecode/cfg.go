// Package bytecode implements C1: a linear scanner over deployed EVM
// bytecode that builds basic blocks and a control-flow graph, and records
// dynamically observed jump targets during execution.
package bytecode

import "sort"

// Instruction is one decoded opcode at a program counter, with its
// immediate PUSH bytes if any.
type Instruction struct {
	PC     uint64
	Op     OpCode
	Pushed []byte
}

// BasicBlock is a maximal straight-line run of instructions, per spec.md
// 4.1: a new block starts at a JUMPDEST that is not the block's first
// instruction, and a block ends at a terminator opcode.
type BasicBlock struct {
	Start        uint64
	End          uint64
	Instructions []Instruction
}

// CFG is the control-flow graph for one contract's deployed bytecode.
type CFG struct {
	Bytecode []byte

	Vertices map[uint64]*BasicBlock
	Edges    map[uint64][]uint64

	// VisitedPCs and VisitedBranches grow monotonically over the life of a
	// campaign (spec.md 3's invariant).
	VisitedPCs      map[uint64]bool
	VisitedBranches map[uint64]map[uint64]bool
	ErrorPCs        map[uint64]bool

	CanSendEther bool
}

// Build strips any trailing swarm/metadata hash, then linearly scans code
// into basic blocks and static edges, per spec.md 4.1.
func Build(code []byte) *CFG {
	code = stripSwarmHash(code)

	cfg := &CFG{
		Bytecode:        code,
		Vertices:        make(map[uint64]*BasicBlock),
		Edges:           make(map[uint64][]uint64),
		VisitedPCs:      make(map[uint64]bool),
		VisitedBranches: make(map[uint64]map[uint64]bool),
		ErrorPCs:        make(map[uint64]bool),
	}

	instrs := decode(code)
	if len(instrs) == 0 {
		return cfg
	}

	var (
		block      = &BasicBlock{Start: instrs[0].PC}
		prevPushed []byte
		havePush   bool
	)

	flush := func(endPC uint64) {
		block.End = endPC
		cfg.Vertices[block.Start] = block
	}

	for i, ins := range instrs {
		if ins.Op == JUMPDEST && len(block.Instructions) > 0 {
			flush(block.Instructions[len(block.Instructions)-1].PC)
			block = &BasicBlock{Start: ins.PC}
		}

		block.Instructions = append(block.Instructions, ins)

		if ins.Op.CanSendEther() {
			cfg.CanSendEther = true
		}

		switch ins.Op {
		case JUMP:
			if havePush {
				target := bytesToUint64(prevPushed)
				cfg.Edges[ins.PC] = append(cfg.Edges[ins.PC], target)
			}
		case JUMPI:
			if i+1 < len(instrs) {
				cfg.Edges[ins.PC] = append(cfg.Edges[ins.PC], instrs[i+1].PC)
			}
			if havePush {
				target := bytesToUint64(prevPushed)
				cfg.Edges[ins.PC] = append(cfg.Edges[ins.PC], target)
			}
		}

		if ins.Op.IsTerminator() {
			flush(ins.PC)
			if i+1 < len(instrs) {
				block = &BasicBlock{Start: instrs[i+1].PC}
			}
		}

		if ins.Op.IsPush() {
			prevPushed = ins.Pushed
			havePush = true
		} else {
			havePush = false
		}
	}

	if len(block.Instructions) > 0 {
		flush(block.Instructions[len(block.Instructions)-1].PC)
	}

	return cfg
}

// Decode exposes the linear instruction scan for callers outside the
// package that need raw pc/opcode pairs without a full CFG (sourcemap's
// standard-JSON position zipping, matching get_pcs_and_jumpis' pc list).
func Decode(code []byte) []Instruction {
	return decode(stripSwarmHash(code))
}

// decode linearly walks the bytecode, skipping PUSH immediate bytes.
func decode(code []byte) []Instruction {
	var out []Instruction

	for pc := 0; pc < len(code); {
		op := OpCode(code[pc])
		ins := Instruction{PC: uint64(pc), Op: op}

		if op.IsPush() {
			n := op.PushSize()
			end := pc + 1 + n
			if end > len(code) {
				end = len(code)
			}
			ins.Pushed = append([]byte(nil), code[pc+1:end]...)
			out = append(out, ins)
			pc = end
			continue
		}

		out = append(out, ins)
		pc++
	}

	return out
}

func bytesToUint64(b []byte) uint64 {
	var v uint64
	for _, c := range b {
		v = v<<8 | uint64(c)
	}
	return v
}

// Execute folds a runtime-observed (pc, stack, op) tuple into the CFG's
// coverage bookkeeping: dynamic JUMP/JUMPI targets and the taken/untaken
// branch directions, per spec.md 4.1's "CFG.execute" contract.
func (c *CFG) Execute(pc uint64, op OpCode, stackTop []uint64, hadError bool) {
	c.VisitedPCs[pc] = true

	if hadError {
		c.ErrorPCs[pc] = true
	}

	switch op {
	case JUMP:
		if len(stackTop) > 0 {
			target := stackTop[0]
			c.addEdge(pc, target)
		}
	case JUMPI:
		if len(stackTop) >= 2 {
			target := stackTop[0]
			cond := stackTop[1]

			if c.VisitedBranches[pc] == nil {
				c.VisitedBranches[pc] = make(map[uint64]bool)
			}

			if cond != 0 {
				c.VisitedBranches[pc][target] = true
				c.addEdge(pc, target)
			} else {
				c.VisitedBranches[pc][pc+1] = true
			}
		}
	}
}

func (c *CFG) addEdge(from, to uint64) {
	for _, existing := range c.Edges[from] {
		if existing == to {
			return
		}
	}
	c.Edges[from] = append(c.Edges[from], to)
}

// SortedVertexPCs returns block entry pcs in ascending order, useful for
// deterministic iteration (coverage reports, tests).
func (c *CFG) SortedVertexPCs() []uint64 {
	pcs := make([]uint64, 0, len(c.Vertices))
	for pc := range c.Vertices {
		pcs = append(pcs, pc)
	}
	sort.Slice(pcs, func(i, j int) bool { return pcs[i] < pcs[j] })
	return pcs
}

// stripSwarmHash removes a trailing solc swarm/ipfs metadata blob so it is
// never misparsed as opcodes, mirroring the original fuzzer's
// remove_swarm_hash. Solc appends a CBOR blob whose length is encoded in
// the last two bytes; if the decoded length looks sane we trim it.
func stripSwarmHash(code []byte) []byte {
	if len(code) < 2 {
		return code
	}

	n := int(code[len(code)-2])<<8 | int(code[len(code)-1])
	if n <= 0 || n+2 > len(code) {
		return code
	}

	// The CBOR blob for solc metadata starts with 0xa1..0xa3 (map of 1-3
	// entries). Only trim when that marker is present to avoid cutting
	// real code that happens to end in plausible-looking bytes.
	start := len(code) - 2 - n
	if start < 0 {
		return code
	}

	marker := code[start]
	if marker < 0xa1 || marker > 0xa3 {
		return code
	}

	return code[:start]
}
