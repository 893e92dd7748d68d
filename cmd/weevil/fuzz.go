package main

import (
	"encoding/hex"
	"fmt"
	"math/big"
	"math/rand"
	"os"
	"runtime/pprof"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/sirupsen/logrus"
	"github.com/urfave/cli/v2"

	"github.com/ethpandaops/weevil/internal/campaign"
	"github.com/ethpandaops/weevil/internal/chromosome"
	"github.com/ethpandaops/weevil/internal/config"
	"github.com/ethpandaops/weevil/internal/evm"
	"github.com/ethpandaops/weevil/internal/ga"
	"github.com/ethpandaops/weevil/internal/report"
	"github.com/ethpandaops/weevil/internal/sourcemap"
	"github.com/ethpandaops/weevil/internal/state"
)

var fuzzCommand = cli.Command{
	Action:    runFuzz,
	Name:      "fuzz",
	Usage:     "evolve transaction sequences against one deployed contract",
	ArgsUsage: " ",
	Flags: []cli.Flag{
		&cli.StringFlag{Name: "bytecode", Usage: "path to the target's deployed (runtime) bytecode, hex-encoded", Required: true},
		&cli.StringFlag{Name: "abi", Usage: "path to the target's ABI JSON", Required: true},
		&cli.StringFlag{Name: "config", Usage: "path to a campaign YAML config file"},
		&cli.StringFlag{Name: "out", Usage: "path to write the JSON report to", Value: "report.json"},
		&cli.StringFlag{Name: "log-level", Value: "info", Usage: "logrus level: debug, info, warn, error"},
		&cli.BoolFlag{Name: "profile", Usage: "write a CPU profile to weevil.prof for the campaign's duration"},
		&cli.StringFlag{Name: "source-map", Usage: "optional solc standard-JSON compiler output, for annotating findings with source locations"},
		&cli.StringFlag{Name: "source-file", Usage: "path to the Solidity source named by --source-map's compilation unit"},
		&cli.StringFlag{Name: "source-unit", Usage: "the compilation unit key inside --source-map (e.g. Foo.sol)"},
		&cli.StringFlag{Name: "source-contract", Usage: "the contract name inside --source-unit"},
	},
	Description: `
The fuzz command deploys a contract's bytecode into a fresh in-memory
world state, then runs the (mu, lambda) evolutionary engine against it,
periodically running a symbolic-execution pass over stagnant branches and
emitting SWC bug-oracle findings as they are discovered. A JSON report of
per-generation metrics, final coverage, and deduplicated findings is
written to --out.`,
}

func runFuzz(cliCtx *cli.Context) error {
	log := newLogger(cliCtx.String("log-level"))

	cfg, err := config.Load(cliCtx.String("config"))
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	if cliCtx.Bool("profile") {
		profFile, err := os.Create("weevil.prof")
		if err != nil {
			return fmt.Errorf("creating profile file: %w", err)
		}
		defer profFile.Close()

		if err := pprof.StartCPUProfile(profFile); err != nil {
			return fmt.Errorf("starting CPU profile: %w", err)
		}
		defer pprof.StopCPUProfile()
	}

	bytecode, err := readHexFile(cliCtx.String("bytecode"))
	if err != nil {
		return fmt.Errorf("reading bytecode: %w", err)
	}

	parsedABI, err := readABIFile(cliCtx.String("abi"))
	if err != nil {
		return fmt.Errorf("reading ABI: %w", err)
	}

	attackers, err := parseAttackerAccounts(cfg.AttackerAccounts)
	if err != nil {
		return fmt.Errorf("parsing attacker_accounts: %w", err)
	}

	sourceMap, err := loadSourceMap(cliCtx)
	if err != nil {
		return fmt.Errorf("loading source map: %w", err)
	}

	store, err := newStore(cfg)
	if err != nil {
		return fmt.Errorf("building world state: %w", err)
	}

	balance, err := cfg.ParsedAccountBalance()
	if err != nil {
		return fmt.Errorf("parsing account_balance: %w", err)
	}
	for _, addr := range attackers {
		store.Fund(addr, balance)
	}

	// The original fuzzer defines no separate deployer/owner constant
	// beyond ATTACKER_ACCOUNTS; reusing the first attacker account keeps
	// the deployed contract's creator inside the already-funded set
	// rather than inventing an unfunded, unrelated address.
	deployer := attackers[0]
	contract := store.Deploy(deployer, bytecode)

	log.WithFields(logrus.Fields{"contract": contract.Hex(), "deployer": deployer.Hex()}).Info("deployed target contract")

	rng := rand.New(rand.NewSource(cfg.Seed))
	interpreterRng := rand.New(rand.NewSource(cfg.Seed + 1))
	solverRng := rand.New(rand.NewSource(cfg.Seed + 2))

	interp := evm.New(store, cfg, interpreterRng)
	gen := chromosome.NewGenerator(parsedABI, bytecode, contract, attackers)

	c := campaign.New(cfg, store, interp, gen, contract, solverRng)

	population := initialPopulation(gen, cfg.PopulationSize, cfg.MaxIndividualLength, rng)

	selection, crossover, mutation := buildOperators(cfg, c)

	builder := report.New(c, sourceMap, log, cfg.Seed)

	checkpoint, err := campaign.NewCheckpoint(cfg.RedisAddr, "weevil:"+contract.Hex())
	if err != nil {
		return fmt.Errorf("connecting checkpoint store: %w", err)
	}
	defer checkpoint.Close()

	engine := &ga.Engine{
		Population:    population,
		Selection:     selection,
		Crossover:     crossover,
		Mutation:      mutation,
		Fitness:       c.Fitness(),
		Generations:   cfg.Generations,
		GlobalTimeout: cfg.GlobalTimeout,
		Rng:           rng,
		Analysis: []ga.AnalysisHook{
			campaign.NewSymbolicPass(c),
			campaign.NewCheckpointPass(c, checkpoint, log, 1),
			newReportPass(builder, c),
		},
	}

	start := time.Now()
	engine.Run()

	r := builder.Build(contract, countTransactions(engine.Population))
	if err := report.WriteFile(cliCtx.String("out"), r); err != nil {
		return fmt.Errorf("writing report: %w", err)
	}

	log.WithFields(logrus.Fields{
		"elapsed":  time.Since(start),
		"findings": len(c.Findings()),
		"out":      cliCtx.String("out"),
	}).Info("campaign finished")

	return nil
}

func newStore(cfg *config.Config) (*state.Store, error) {
	if !cfg.RemoteFuzzing {
		return state.New(nil), nil
	}

	var blockNumber *big.Int
	if cfg.BlockHeight != "" && cfg.BlockHeight != "latest" {
		n, ok := new(big.Int).SetString(cfg.BlockHeight, 10)
		if !ok {
			return nil, fmt.Errorf("invalid block_height %q", cfg.BlockHeight)
		}
		blockNumber = n
	}

	url := fmt.Sprintf("http://%s:%d", cfg.RPCHost, cfg.RPCPort)
	oracle, err := state.NewRPCOracle(url, blockNumber)
	if err != nil {
		return nil, err
	}

	return state.New(oracle), nil
}

func readHexFile(path string) ([]byte, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return hex.DecodeString(strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(string(data)), "0x")))
}

func readABIFile(path string) (abi.ABI, error) {
	f, err := os.Open(path)
	if err != nil {
		return abi.ABI{}, err
	}
	defer f.Close()

	return abi.JSON(f)
}

func parseAttackerAccounts(raw []string) ([]common.Address, error) {
	if len(raw) == 0 {
		return nil, fmt.Errorf("at least one attacker account is required")
	}

	out := make([]common.Address, len(raw))
	for i, s := range raw {
		if !common.IsHexAddress(s) {
			return nil, fmt.Errorf("invalid attacker account %q", s)
		}
		out[i] = common.HexToAddress(s)
	}
	return out, nil
}

func loadSourceMap(cliCtx *cli.Context) (*sourcemap.SourceMap, error) {
	compilerPath := cliCtx.String("source-map")
	if compilerPath == "" {
		return nil, nil
	}

	sourcePath := cliCtx.String("source-file")
	unit := cliCtx.String("source-unit")
	contractName := cliCtx.String("source-contract")

	if sourcePath == "" || unit == "" || contractName == "" {
		return nil, fmt.Errorf("--source-map requires --source-file, --source-unit, and --source-contract")
	}

	return sourcemap.Load(compilerPath, sourcePath, unit, contractName)
}

// initialPopulation seeds the first generation with fresh random
// individuals, mirroring the original engine's own startup loop (the
// per-generation reset the symbolic-execution pass performs afterward
// reuses the same generator/rng pairing via resetPopulation).
func initialPopulation(gen *chromosome.Generator, size, maxLength int, rng *rand.Rand) *ga.Population {
	individuals := make([]*chromosome.Individual, size)
	for i := range individuals {
		individuals[i] = chromosome.NewIndividual(gen).Init(rng, maxLength, nil)
	}
	return ga.NewPopulation(individuals)
}

// buildOperators chooses the plain or data-dependency-aware selection and
// crossover operators per cfg.DataDependencyVariant, per spec.md 4.7's
// "two selectable variants" clause.
func buildOperators(cfg *config.Config, c *campaign.Campaign) (ga.Selector, ga.Crossover, ga.Mutator) {
	mutation := ga.GeneMutation{Pm: cfg.ProbabilityMutation}

	if cfg.DataDependencyVariant {
		return ga.NewDataDependencySelection(c.DataDependency()),
			ga.DataDependencyCrossover{Pc: cfg.ProbabilityCrossover, MaxIndividualLength: cfg.MaxIndividualLength, Deps: c.DataDependency()},
			mutation
	}

	return ga.NewLinearRankingSelection(),
		ga.SinglePointCrossover{Pc: cfg.ProbabilityCrossover, MaxIndividualLength: cfg.MaxIndividualLength},
		mutation
}

func countTransactions(pop *ga.Population) int {
	total := 0
	for _, ind := range pop.Individuals {
		total += len(ind.Chromosome)
	}
	return total
}

// reportPass is the ga.AnalysisHook recording each generation's metrics
// row and write-through-logging every campaign finding as soon as it is
// seen, the "report during the run, not only at the end" supplemented
// feature of spec.md 6.
type reportPass struct {
	builder  *report.Builder
	campaign *campaign.Campaign
}

func newReportPass(b *report.Builder, c *campaign.Campaign) ga.AnalysisHook {
	return &reportPass{builder: b, campaign: c}
}

func (h *reportPass) Interval() int { return 1 }

func (h *reportPass) Setup(*ga.Engine) {}

func (h *reportPass) Step(generation int, engine *ga.Engine) {
	if generation < 0 {
		return
	}

	h.builder.RecordGeneration(generation, engine.Population.Min(engine.Fitness))

	for _, f := range h.campaign.Findings() {
		h.builder.Emit(f)
	}
}

func (h *reportPass) Finalize(*ga.Engine) {}
