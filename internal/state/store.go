// Package state implements C3: an in-memory world-state store with
// snapshot/restore and an optional lazy remote-oracle fetch.
package state

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/holiman/uint256"
)

// Account mirrors spec.md's Account record.
type Account struct {
	Nonce    uint64
	Balance  *uint256.Int
	CodeHash common.Hash
}

func (a Account) clone() Account {
	return Account{Nonce: a.Nonce, Balance: new(uint256.Int).Set(a.Balance), CodeHash: a.CodeHash}
}

// Slot is a single 256-bit storage key.
type Slot = common.Hash

// Word is a single 256-bit storage value.
type Word = uint256.Int

// snapshot is a deep clone of the three world-state maps, per spec.md 3.
type snapshot struct {
	accounts map[common.Address]Account
	storage  map[common.Address]map[Slot]Word
	code     map[common.Hash][]byte
}

// Store is the in-memory world state: accounts, storage, and code, indexed
// by canonical address/hash, per spec.md 4.3.
type Store struct {
	accounts map[common.Address]Account
	storage  map[common.Address]map[Slot]Word
	code     map[common.Hash][]byte

	oracle Oracle

	// activeSnapshot receives oracle cache-fills so restore stays
	// consistent, per spec.md 4.3's final sentence.
	activeSnapshot *snapshot
}

// New creates an empty world-state store. A nil oracle disables remote
// fetch; missing storage/account reads then return zero values.
func New(oracle Oracle) *Store {
	return &Store{
		accounts: make(map[common.Address]Account),
		storage:  make(map[common.Address]map[Slot]Word),
		code:     make(map[common.Hash][]byte),
		oracle:   oracle,
	}
}

// GetAccount returns the account at addr, lazily fetching from the oracle
// if configured and not already present.
func (s *Store) GetAccount(addr common.Address) Account {
	if acc, ok := s.accounts[addr]; ok {
		return acc
	}

	acc := Account{Balance: new(uint256.Int)}

	if s.oracle != nil {
		if remote, err := s.oracle.Account(addr); err == nil {
			acc = remote
		}
	}

	s.accounts[addr] = acc
	s.cacheIntoSnapshot(func(snap *snapshot) { snap.accounts[addr] = acc })

	return acc
}

// SetAccount overwrites the account at addr.
func (s *Store) SetAccount(addr common.Address, acc Account) {
	s.accounts[addr] = acc
}

// GetBalance returns the balance at addr, 0 if unknown and no oracle.
func (s *Store) GetBalance(addr common.Address) *uint256.Int {
	return new(uint256.Int).Set(s.GetAccount(addr).Balance)
}

// GetStorage returns storage[addr][slot], per spec.md 4.3: 0 if missing and
// no remote oracle configured, otherwise a lazy oracle pull that is cached
// into both the live map and the active snapshot.
func (s *Store) GetStorage(addr common.Address, slot Slot) Word {
	if m, ok := s.storage[addr]; ok {
		if w, ok := m[slot]; ok {
			return w
		}
	}

	var word Word

	if s.oracle != nil {
		if remote, err := s.oracle.StorageAt(addr, slot); err == nil {
			word = remote
		}
	}

	s.setStorage(addr, slot, word)
	s.cacheIntoSnapshot(func(snap *snapshot) { snap.setStorage(addr, slot, word) })

	return word
}

// SetStorage writes storage[addr][slot] = value.
func (s *Store) SetStorage(addr common.Address, slot Slot, value Word) {
	s.setStorage(addr, slot, value)
}

func (s *Store) setStorage(addr common.Address, slot Slot, value Word) {
	if s.storage[addr] == nil {
		s.storage[addr] = make(map[Slot]Word)
	}
	s.storage[addr][slot] = value
}

func (snap *snapshot) setStorage(addr common.Address, slot Slot, value Word) {
	if snap.storage[addr] == nil {
		snap.storage[addr] = make(map[Slot]Word)
	}
	snap.storage[addr][slot] = value
}

// DeleteStorage removes a slot from the live storage map, for parity with
// the original EmulatorAccountDB.delete_storage. The interpreter does not
// call it: SSTORE of zero writes a zero word through SetStorage.
func (s *Store) DeleteStorage(addr common.Address, slot Slot) {
	delete(s.storage[addr], slot)
}

// GetCode returns the code at addr.
func (s *Store) GetCode(addr common.Address) []byte {
	acc := s.GetAccount(addr)
	if code, ok := s.code[acc.CodeHash]; ok {
		return code
	}

	if s.oracle != nil {
		if code, err := s.oracle.CodeAt(addr); err == nil {
			hash := crypto.Keccak256Hash(code)
			s.code[hash] = code
			acc.CodeHash = hash
			s.accounts[addr] = acc
			return code
		}
	}

	return nil
}

// Deploy increments the deployer's nonce and places code at the
// deterministic CREATE address, per spec.md 4.3.
func (s *Store) Deploy(deployer common.Address, code []byte) common.Address {
	deployerAcc := s.GetAccount(deployer)
	addr := CreateAddress(deployer, deployerAcc.Nonce)

	deployerAcc.Nonce++
	s.accounts[deployer] = deployerAcc

	hash := crypto.Keccak256Hash(code)
	s.code[hash] = code
	s.accounts[addr] = Account{Balance: new(uint256.Int), CodeHash: hash}

	return addr
}

// SetCode installs code at addr, updating its account's code hash, for use
// by CREATE/CREATE2's post-init-code deployment step.
func (s *Store) SetCode(addr common.Address, code []byte) {
	acc := s.GetAccount(addr)
	hash := crypto.Keccak256Hash(code)
	s.code[hash] = code
	acc.CodeHash = hash
	s.accounts[addr] = acc
}

// CreateAddress derives the deterministic address CREATE would produce,
// RLP(sender, nonce) keccak'd per the yellow paper.
func CreateAddress(sender common.Address, nonce uint64) common.Address {
	data, _ := rlpEncodeCreate(sender, nonce)
	return common.BytesToAddress(crypto.Keccak256(data)[12:])
}

// rlpEncodeCreate hand-rolls the two-element RLP list go-ethereum's own
// crypto.CreateAddress produces, kept local so internal/state has no
// dependency on go-ethereum's core/types RLP helpers beyond crypto+common.
func rlpEncodeCreate(sender common.Address, nonce uint64) ([]byte, error) {
	nonceBytes := new(big.Int).SetUint64(nonce).Bytes()

	encNonce := rlpEncodeBytes(nonceBytes)
	encAddr := rlpEncodeBytes(sender.Bytes())

	payload := append(append([]byte{}, encAddr...), encNonce...)

	return append(rlpListHeader(len(payload)), payload...), nil
}

func rlpEncodeBytes(b []byte) []byte {
	if len(b) == 1 && b[0] < 0x80 {
		return b
	}
	if len(b) < 56 {
		return append([]byte{byte(0x80 + len(b))}, b...)
	}
	lenBytes := big.NewInt(int64(len(b))).Bytes()
	return append(append([]byte{byte(0xb7 + len(lenBytes))}, lenBytes...), b...)
}

func rlpListHeader(payloadLen int) []byte {
	if payloadLen < 56 {
		return []byte{byte(0xc0 + payloadLen)}
	}
	lenBytes := big.NewInt(int64(payloadLen)).Bytes()
	return append([]byte{byte(0xf7 + len(lenBytes))}, lenBytes...)
}

// Snapshot deep-clones the three world-state maps, per spec.md 4.3.
func (s *Store) Snapshot() *snapshot {
	snap := &snapshot{
		accounts: make(map[common.Address]Account, len(s.accounts)),
		storage:  make(map[common.Address]map[Slot]Word, len(s.storage)),
		code:     make(map[common.Hash][]byte, len(s.code)),
	}

	for addr, acc := range s.accounts {
		snap.accounts[addr] = acc.clone()
	}

	for addr, slots := range s.storage {
		cloned := make(map[Slot]Word, len(slots))
		for slot, word := range slots {
			cloned[slot] = word
		}
		snap.storage[addr] = cloned
	}

	for hash, code := range s.code {
		snap.code[hash] = append([]byte(nil), code...)
	}

	s.activeSnapshot = snap

	return snap
}

// Restore replaces the live maps with snap's contents, per spec.md 4.3.
func (s *Store) Restore(snap *snapshot) {
	s.accounts = make(map[common.Address]Account, len(snap.accounts))
	for addr, acc := range snap.accounts {
		s.accounts[addr] = acc.clone()
	}

	s.storage = make(map[common.Address]map[Slot]Word, len(snap.storage))
	for addr, slots := range snap.storage {
		cloned := make(map[Slot]Word, len(slots))
		for slot, word := range slots {
			cloned[slot] = word
		}
		s.storage[addr] = cloned
	}

	s.code = make(map[common.Hash][]byte, len(snap.code))
	for hash, code := range snap.code {
		s.code[hash] = append([]byte(nil), code...)
	}

	s.activeSnapshot = nil
}

func (s *Store) cacheIntoSnapshot(fill func(*snapshot)) {
	if s.activeSnapshot != nil {
		fill(s.activeSnapshot)
	}
}

// HasAccount reports whether addr has ever been materialized in the store,
// distinct from GetAccount which lazily creates a zero-balance entry on
// first read. Used by spec.md 4.8's solved-model address handling to decide
// whether a model's address variable names an address the campaign has
// never funded before.
func (s *Store) HasAccount(addr common.Address) bool {
	_, ok := s.accounts[addr]
	return ok
}

// Fund credits addr with balance, creating the account if it does not yet
// exist, for an externally-solved address (spec.md 4.8: "previously unseen
// addresses spawn a fresh funded account in the world state before the next
// generation"). Unlike CreateFunded, addr is supplied by the caller rather
// than derived from a seed, since it comes from a solver model rather than
// the chromosome's own address pool.
func (s *Store) Fund(addr common.Address, balance *uint256.Int) {
	acc := s.accounts[addr]
	acc.Balance = new(uint256.Int).Set(balance)
	s.accounts[addr] = acc
}

// CreateFunded deterministically derives a fresh address from seed and
// funds it to balance, for the snapshot-isolation testable property's
// create_fake_account exception (spec.md 8). Solver-produced addresses
// (spec.md 4.8) go through Fund instead.
func (s *Store) CreateFunded(seed uint64, balance *uint256.Int) common.Address {
	h := crypto.Keccak256(big.NewInt(int64(seed)).Bytes())
	addr := common.BytesToAddress(h[12:])

	s.accounts[addr] = Account{Balance: new(uint256.Int).Set(balance)}

	return addr
}
