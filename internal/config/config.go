// Package config defines the typed configuration handle threaded through
// every fuzzing subsystem. Nothing in this repository reads configuration
// from package-level state; every constructor that needs a setting takes a
// *Config explicitly.
package config

import (
	"fmt"
	"os"
	"time"

	"github.com/creasty/defaults"
	"github.com/holiman/uint256"
	"gopkg.in/yaml.v3"
)

// Fork names the EVM semantics cut a campaign targets.
type Fork string

const (
	ForkHomestead Fork = "homestead"
	ForkByzantium Fork = "byzantium"
	ForkPetersburg Fork = "petersburg"
)

// Config is the full set of knobs for one fuzzing campaign, mirroring the
// original fuzzer's utils/settings.go defaults.
type Config struct {
	// EVM semantics.
	EVMVersion Fork `yaml:"evm_version" default:"petersburg"`

	// Evolutionary engine.
	PopulationSize         int           `yaml:"population_size" default:"10"`
	Generations            int           `yaml:"generations" default:"10"`
	GlobalTimeout          time.Duration `yaml:"global_timeout" default:"0"`
	ProbabilityCrossover   float64       `yaml:"probability_crossover" default:"0.9"`
	ProbabilityMutation    float64       `yaml:"probability_mutation" default:"0.1"`
	MaxIndividualLength    int           `yaml:"max_individual_length" default:"5"`
	DataDependencyVariant  bool          `yaml:"data_dependency_variant" default:"false"`

	// Constraint solver.
	MaxSymbolicExecution int           `yaml:"max_symbolic_execution" default:"10"`
	SolverTimeout        time.Duration `yaml:"solver_timeout" default:"100ms"`

	// World state / accounts.
	AttackerAccounts []string `yaml:"attacker_accounts"`
	GasLimit         uint64   `yaml:"gas_limit" default:"4500000"`
	GasPrice         uint64   `yaml:"gas_price" default:"10"`
	AccountBalance   string   `yaml:"account_balance" default:"100000000000000000000000000"`

	// Remote oracle.
	BlockHeight               string `yaml:"block_height" default:"latest"`
	RPCHost                   string `yaml:"rpc_host" default:"localhost"`
	RPCPort                   int    `yaml:"rpc_port" default:"8545"`
	RemoteFuzzing             bool   `yaml:"remote_fuzzing" default:"false"`
	EnvironmentalInstrumentation bool `yaml:"environmental_instrumentation" default:"true"`

	// Determinism.
	Seed int64 `yaml:"seed" default:"0"`

	// Optional campaign checkpointing (supplemented feature, not in the
	// original fuzzer).
	RedisAddr string `yaml:"redis_addr"`
}

// ParsedAccountBalance parses AccountBalance as a base-10 256-bit word,
// used by the solver's callvalue clamp (spec.md 4.8) and by account
// funding. Validate already rejects a malformed value, so this only
// errors if called before Validate.
func (c *Config) ParsedAccountBalance() (*uint256.Int, error) {
	v, err := uint256.FromDecimal(c.AccountBalance)
	if err != nil {
		return nil, fmt.Errorf("parsing account_balance %q: %w", c.AccountBalance, err)
	}
	return v, nil
}

// DefaultAttackerAccounts matches the original fuzzer's ATTACKER_ACCOUNTS
// default of a single well-known address.
var DefaultAttackerAccounts = []string{"0xdeadbeefdeadbeefdeadbeefdeadbeefdeadbeef"}

// Load reads a YAML configuration file and applies field defaults for
// anything the file leaves unset.
func Load(path string) (*Config, error) {
	cfg := &Config{}

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading config %s: %w", path, err)
		}

		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parsing config %s: %w", path, err)
		}
	}

	if err := defaults.Set(cfg); err != nil {
		return nil, fmt.Errorf("applying config defaults: %w", err)
	}

	if len(cfg.AttackerAccounts) == 0 {
		cfg.AttackerAccounts = DefaultAttackerAccounts
	}

	return cfg, cfg.Validate()
}

// Validate rejects configurations that would make the rest of the pipeline
// misbehave silently.
func (c *Config) Validate() error {
	if c.PopulationSize <= 0 {
		return fmt.Errorf("population_size must be positive, got %d", c.PopulationSize)
	}

	if c.MaxIndividualLength <= 0 {
		return fmt.Errorf("max_individual_length must be positive, got %d", c.MaxIndividualLength)
	}

	switch c.EVMVersion {
	case ForkHomestead, ForkByzantium, ForkPetersburg:
	default:
		return fmt.Errorf("unsupported evm_version %q", c.EVMVersion)
	}

	if c.ProbabilityCrossover < 0 || c.ProbabilityCrossover > 1 {
		return fmt.Errorf("probability_crossover must be in [0,1], got %f", c.ProbabilityCrossover)
	}

	if c.ProbabilityMutation < 0 || c.ProbabilityMutation > 1 {
		return fmt.Errorf("probability_mutation must be in [0,1], got %f", c.ProbabilityMutation)
	}

	if _, err := uint256.FromDecimal(c.AccountBalance); err != nil {
		return fmt.Errorf("parsing account_balance %q: %w", c.AccountBalance, err)
	}

	return nil
}
