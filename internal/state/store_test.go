package state

import (
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
)

func TestSnapshotIsolation(t *testing.T) {
	s := New(nil)
	addr := common.HexToAddress("0x01")
	slot := common.HexToHash("0x01")

	s.SetStorage(addr, slot, *uint256.NewInt(42))

	snap := s.Snapshot()
	s.SetStorage(addr, slot, *uint256.NewInt(99))

	if got := s.GetStorage(addr, slot); got.Uint64() != 99 {
		t.Fatalf("expected 99 before restore, got %d", got.Uint64())
	}

	s.Restore(snap)

	if got := s.GetStorage(addr, slot); got.Uint64() != 42 {
		t.Fatalf("expected 42 after restore, got %d", got.Uint64())
	}
}

func TestGetStorageMissingNoOracle(t *testing.T) {
	s := New(nil)
	addr := common.HexToAddress("0x02")
	slot := common.HexToHash("0x02")

	got := s.GetStorage(addr, slot)
	if !got.IsZero() {
		t.Fatalf("expected zero word for missing slot with no oracle")
	}
}

func TestDeployDerivesCreateAddressAndIncrementsNonce(t *testing.T) {
	s := New(nil)
	deployer := common.HexToAddress("0x03")

	before := s.GetAccount(deployer).Nonce

	addr := s.Deploy(deployer, []byte{0x60, 0x00})

	after := s.GetAccount(deployer).Nonce
	if after != before+1 {
		t.Fatalf("expected nonce incremented, got %d -> %d", before, after)
	}

	if addr == (common.Address{}) {
		t.Fatalf("expected nonzero deployed address")
	}

	code := s.GetCode(addr)
	if len(code) != 2 {
		t.Fatalf("expected deployed code stored, got %v", code)
	}
}

func TestCreateFundedFunds(t *testing.T) {
	s := New(nil)
	balance := uint256.NewInt(1000)

	addr := s.CreateFunded(7, balance)

	if got := s.GetBalance(addr); got.Cmp(balance) != 0 {
		t.Fatalf("expected funded balance %v, got %v", balance, got)
	}
}
