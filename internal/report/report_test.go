package report

import (
	"encoding/json"
	"math/rand"
	"os"
	"path/filepath"
	"testing"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethpandaops/weevil/internal/bytecode"
	"github.com/ethpandaops/weevil/internal/campaign"
	"github.com/ethpandaops/weevil/internal/chromosome"
	"github.com/ethpandaops/weevil/internal/config"
	"github.com/ethpandaops/weevil/internal/evm"
	"github.com/ethpandaops/weevil/internal/state"
	"github.com/holiman/uint256"
	"github.com/sirupsen/logrus"
)

// branchCode mirrors campaign's own test fixture: branches on CALLVALUE.
var branchCode = []byte{
	byte(bytecode.CALLVALUE),
	byte(bytecode.PUSH1), 0x07,
	byte(bytecode.JUMPI),
	byte(bytecode.PUSH1), 0x00,
	byte(bytecode.STOP),
	byte(bytecode.JUMPDEST),
	byte(bytecode.STOP),
}

func newTestCampaign(t *testing.T) (*campaign.Campaign, common.Address, common.Address) {
	t.Helper()

	store := state.New(nil)
	sender := common.HexToAddress("0xdeadbeefdeadbeefdeadbeefdeadbeefdeadbeef")
	store.CreateFunded(1, uint256.NewInt(1_000_000))
	store.SetAccount(sender, state.Account{Balance: uint256.NewInt(1_000_000)})

	contract := store.Deploy(sender, branchCode)

	cfg := &config.Config{
		MaxSymbolicExecution: 3,
		AccountBalance:       "1000000",
		GasLimit:             100000,
	}

	interp := evm.New(store, cfg, rand.New(rand.NewSource(1)))
	gen := chromosome.NewGenerator(abi.ABI{}, branchCode, contract, nil)

	c := campaign.New(cfg, store, interp, gen, contract, rand.New(rand.NewSource(2)))

	ind := chromosome.NewIndividual(gen)
	ind.Chromosome = []chromosome.Gene{{
		Account:  sender,
		Contract: contract,
		Amount:   uint256.NewInt(1),
		GasLimit: 100000,
		Selector: "fallback",
	}}
	c.Evaluate(ind)

	return c, sender, contract
}

func TestBuildReportCoversBothBranchDirections(t *testing.T) {
	c, _, contract := newTestCampaign(t)

	log := logrus.NewEntry(logrus.New())
	b := New(c, nil, log, 42)
	b.RecordGeneration(0, 1.0)

	r := b.Build(contract, 1)

	if r.Seed != 42 {
		t.Fatalf("seed = %d, want 42", r.Seed)
	}
	if r.Coverage.Code.Covered == 0 {
		t.Fatalf("expected nonzero code coverage")
	}
	if len(r.Generations) != 1 {
		t.Fatalf("expected 1 generation row, got %d", len(r.Generations))
	}
}

func TestWriteFileProducesValidJSON(t *testing.T) {
	c, _, contract := newTestCampaign(t)

	log := logrus.NewEntry(logrus.New())
	b := New(c, nil, log, 1)
	r := b.Build(contract, 1)

	path := filepath.Join(t.TempDir(), "report.json")
	if err := WriteFile(path, r); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("reading report: %v", err)
	}

	var decoded Report
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatalf("report is not valid JSON: %v", err)
	}
	if decoded.Address != contract.Hex() {
		t.Fatalf("address = %s, want %s", decoded.Address, contract.Hex())
	}
}

func TestEmitIsIdempotentPerPC(t *testing.T) {
	c, _, _ := newTestCampaign(t)

	var hook countingHook
	logger := logrus.New()
	logger.AddHook(&hook)

	b := New(c, nil, logrus.NewEntry(logger), 1)

	for _, f := range c.Findings() {
		b.Emit(f)
		b.Emit(f)
	}

	if hook.fires > len(c.Findings()) {
		t.Fatalf("Emit logged more than once per finding: %d fires for %d findings", hook.fires, len(c.Findings()))
	}
}

type countingHook struct{ fires int }

func (h *countingHook) Levels() []logrus.Level { return logrus.AllLevels }
func (h *countingHook) Fire(*logrus.Entry) error {
	h.fires++
	return nil
}
