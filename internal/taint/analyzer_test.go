package taint

import (
	"testing"

	"github.com/ethpandaops/weevil/internal/bytecode"
)

func noKey(int) StorageKey { return StorageKey{} }

func TestRecordCloneIsIndependent(t *testing.T) {
	r := NewRecord()
	r.Push(Taint{NewVar(KindCallValue, 0, "")})

	clone := r.Clone()
	clone.Push(Taint{NewVar(KindCaller, 0, "")})

	if len(r.Stack) != 1 {
		t.Fatalf("expected original record unaffected by clone mutation, got stack len %d", len(r.Stack))
	}

	if len(clone.Stack) != 2 {
		t.Fatalf("expected clone to have 2 entries, got %d", len(clone.Stack))
	}
}

func TestCallvalueIntroducesTaint(t *testing.T) {
	a := New(0, nil)

	a.Step(1, 0, bytecode.CALLVALUE, noKey)

	top := a.Current(1).Stack[0]
	if !top.Tainted() {
		t.Fatalf("expected CALLVALUE to push tainted value")
	}

	if top[0].Kind != KindCallValue {
		t.Fatalf("expected KindCallValue, got %v", top[0].Kind)
	}
}

func TestArithmeticBuildsNewTermWhenTainted(t *testing.T) {
	a := New(0, nil)

	a.Step(1, 0, bytecode.CALLVALUE, noKey) // push tainted
	a.Step(1, 1, bytecode.PUSH1, noKey)     // push untainted constant

	result := a.Step(1, 2, bytecode.ADD, noKey)
	_ = result

	top := a.Current(1).Stack[0]
	if !top.Tainted() {
		t.Fatalf("expected ADD result tainted when one operand tainted")
	}

	if top[0].Op != OpAdd {
		t.Fatalf("expected new OpAdd term, got %v", top[0].Op)
	}
}

func TestLoopGuardDegradesToUnion(t *testing.T) {
	a := New(0, nil)

	a.Step(1, 0, bytecode.CALLVALUE, noKey)
	a.Step(1, 1, bytecode.PUSH1, noKey)
	a.Step(1, 5, bytecode.ADD, noKey) // first pass at pc 5: builds term

	a.Step(1, 0, bytecode.CALLVALUE, noKey)
	a.Step(1, 1, bytecode.PUSH1, noKey)
	a.Step(1, 5, bytecode.ADD, noKey) // revisit pc 5: must degrade

	top := a.Current(1).Stack[0]
	if top[0].Op != OpVar {
		t.Fatalf("expected loop-guarded revisit to degrade to plain taint union, got op %v", top[0].Op)
	}
}

func TestSloadSstoreRoundTrip(t *testing.T) {
	a := New(0, nil)
	key := func(int) StorageKey { return StorageKey{Slot: Word{1}} }

	a.Step(1, 0, bytecode.CALLVALUE, noKey)
	a.Step(1, 1, bytecode.PUSH1, noKey)
	a.Step(1, 2, bytecode.SSTORE, key)

	a.Step(1, 3, bytecode.PUSH1, noKey)
	a.Step(1, 4, bytecode.SLOAD, key)

	top := a.Current(1).Stack[0]
	if !top.Tainted() {
		t.Fatalf("expected SLOAD to surface taint stored via SSTORE")
	}
}

func TestCalldataloadTagsOffsetInExtra(t *testing.T) {
	a := New(0, nil)
	offsetKey := func(int) StorageKey { return StorageKey{Slot: Word{31: 4}} }

	a.Step(1, 0, bytecode.CALLDATALOAD, offsetKey)

	top := a.Current(1).Stack[0]
	vars := top[0].Vars()
	if len(vars) != 1 || vars[0].Kind != KindCalldataLoad || vars[0].Extra != "4" {
		t.Fatalf("expected CALLDATALOAD to tag its free variable with byte offset 4, got %+v", vars)
	}
}

func TestCallClearsRecordAndPushesTaggedCallTaint(t *testing.T) {
	a := New(0, nil)

	for i := 0; i < 7; i++ {
		a.Step(1, uint64(i), bytecode.PUSH1, noKey)
	}

	a.Step(1, 7, bytecode.CALL, noKey)

	rec := a.Current(1)
	if rec.Input != nil || rec.Value != nil || rec.Output != nil {
		t.Fatalf("expected CALL to clear input/value/output")
	}

	if len(rec.Stack) != 1 || !rec.Stack[0].Tainted() {
		t.Fatalf("expected CALL to push a KindCall-tainted result, tagged with its own pc")
	}

	vars := rec.Stack[0][0].Vars()
	if len(vars) != 1 || vars[0].Kind != KindCall || vars[0].Extra != "7" {
		t.Fatalf("expected CALL's success flag to carry KindCall tagged with its own pc, got %+v", vars)
	}
}
