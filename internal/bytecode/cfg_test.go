package bytecode

import "testing"

func TestBuildSplitsBlocksAtJumpdest(t *testing.T) {
	// PUSH1 0x03; JUMP; JUMPDEST; STOP
	code := []byte{
		byte(PUSH1), 0x03,
		byte(JUMP),
		byte(JUMPDEST),
		byte(STOP),
	}

	cfg := Build(code)

	if len(cfg.Vertices) != 2 {
		t.Fatalf("expected 2 blocks, got %d", len(cfg.Vertices))
	}

	if _, ok := cfg.Vertices[0]; !ok {
		t.Fatalf("expected block starting at pc 0")
	}

	if _, ok := cfg.Vertices[3]; !ok {
		t.Fatalf("expected block starting at pc 3 (JUMPDEST)")
	}

	edges := cfg.Edges[2]
	if len(edges) != 1 || edges[0] != 3 {
		t.Fatalf("expected static JUMP edge 2->3, got %v", edges)
	}
}

func TestBuildFlagsCanSendEther(t *testing.T) {
	code := []byte{byte(SELFDESTRUCT)}
	cfg := Build(code)

	if !cfg.CanSendEther {
		t.Fatalf("expected CanSendEther true for SELFDESTRUCT-containing code")
	}
}

func TestBuildNoEtherSend(t *testing.T) {
	code := []byte{byte(PUSH1), 0x01, byte(PUSH1), 0x02, byte(ADD), byte(STOP)}
	cfg := Build(code)

	if cfg.CanSendEther {
		t.Fatalf("expected CanSendEther false")
	}
}

func TestExecuteRecordsBranchDirections(t *testing.T) {
	code := []byte{
		byte(PUSH1), 0x06,
		byte(PUSH1), 0x01,
		byte(JUMPI),
		byte(STOP),
		byte(JUMPDEST),
		byte(STOP),
	}

	cfg := Build(code)

	cfg.Execute(4, JUMPI, []uint64{6, 1}, false)

	if !cfg.VisitedBranches[4][6] {
		t.Fatalf("expected taken direction recorded")
	}

	cfg.Execute(4, JUMPI, []uint64{6, 0}, false)

	if !cfg.VisitedBranches[4][5] {
		t.Fatalf("expected fallthrough direction recorded")
	}
}

func TestDecodeSkipsPushImmediates(t *testing.T) {
	code := []byte{byte(PUSH1 + 1), 0xde, 0xad, byte(STOP)} // PUSH2 0xdead; STOP
	instrs := decode(code)

	if len(instrs) != 2 {
		t.Fatalf("expected 2 instructions, got %d", len(instrs))
	}

	if instrs[1].PC != 3 {
		t.Fatalf("expected STOP at pc 3, got %d", instrs[1].PC)
	}
}

func TestOpCodeStringSynthesized(t *testing.T) {
	cases := map[OpCode]string{
		PUSH1:  "PUSH1",
		PUSH32: "PUSH32",
		DUP1:   "DUP1",
		SWAP16: "SWAP16",
		LOG0:   "LOG0",
		LOG4:   "LOG4",
		ADD:    "ADD",
	}

	for op, want := range cases {
		if got := op.String(); got != want {
			t.Errorf("OpCode(%d).String() = %q, want %q", op, got, want)
		}
	}
}
