package oracle

import "github.com/ethpandaops/weevil/internal/bytecode"

type slotKey struct {
	addr string
	slot uint64
}

type sstoreEntry struct {
	txIndex int
	sender  string
}

// orderedSlotMap preserves insertion order of first-seen slots, mirroring
// Python's insertion-ordered dict so that "the map's first entry" is
// deterministic across runs given a fixed execution order, per spec.md
// 9's TOD open-question decision (a plain Go map's iteration order is
// randomized per-process, which is a stricter form of "arbitrary" than
// the original relied on).
type orderedSlotMap struct {
	order   []slotKey
	entries map[slotKey][]sstoreEntry
}

func newOrderedSlotMap() orderedSlotMap {
	return orderedSlotMap{entries: make(map[slotKey][]sstoreEntry)}
}

func (m *orderedSlotMap) append(key slotKey, e sstoreEntry) {
	if _, ok := m.entries[key]; !ok {
		m.order = append(m.order, key)
	}
	m.entries[key] = append(m.entries[key], e)
}

// first returns the arbitrary-but-deterministic first slot the map has
// ever seen, matching the original's list(sstores.values())[0] quirk.
func (m *orderedSlotMap) first() (slotKey, []sstoreEntry, bool) {
	if len(m.order) == 0 {
		return slotKey{}, nil, false
	}

	key := m.order[0]

	return key, m.entries[key], true
}

type todState struct {
	writes orderedSlotMap
}

func newTODState() todState { return todState{writes: newOrderedSlotMap()} }

// stepTOD implements SWC-114: flags a storage slot written by more than
// one distinct transaction sender across this individual's sequence, a
// race a miner's transaction ordering can exploit, grounded on the
// original fuzzer's transaction_order_dependency detector. Only the first
// slot ever written in the sequence (orderedSlotMap.first) is checked;
// later slots are recorded but never flagged.
func (o *Oracle) stepTOD(ctx StepContext) {
	if ctx.Step.Op != bytecode.SSTORE {
		return
	}

	if len(ctx.Step.Stack) < 1 {
		return
	}

	slot := ctx.Step.Stack[0]
	key := slotKey{addr: ctx.Self.Hex(), slot: slot.Uint64()}

	o.tod.writes.append(key, sstoreEntry{txIndex: ctx.TxIndex, sender: ctx.Sender.Hex()})

	first, entries, ok := o.tod.writes.first()
	if !ok || first != key {
		return
	}

	senders := make(map[string]bool, len(entries))
	for _, e := range entries {
		senders[e.sender] = true
	}

	if len(senders) > 1 {
		o.record(SWC114, ctx.Step.PC, ctx.TxIndex, "storage slot written by more than one sender")
	}
}
