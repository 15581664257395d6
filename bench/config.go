package bench

import (
	"fmt"

	"github.com/antiyro/starkroot/utils"
	"github.com/antiyro/starkroot/validator"
)

// Database backends the runner can sit on.
const (
	DBMemory    = "memory"    // plain map, no storage engine
	DBPebbleMem = "pebblemem" // pebble over an in-memory vfs
	DBPebble    = "pebble"    // pebble on disk at DatabasePath
)

// Config is the top-level starkroot configuration.
type Config struct {
	LogLevel utils.LogLevel `mapstructure:"log-level"`
	Colour   bool           `mapstructure:"colour"`

	Database     string `mapstructure:"db" validate:"oneof=memory pebblemem pebble"`
	DatabasePath string `mapstructure:"db-path" validate:"required_if=Database pebble"`
	Workers      int    `mapstructure:"workers" validate:"gte=0"`

	Blocks                uint64  `mapstructure:"blocks" validate:"gte=1"`
	Seed                  int64   `mapstructure:"seed"`
	ContractsPerBlock     uint    `mapstructure:"contracts-per-block"`
	StorageWritesPerBlock uint    `mapstructure:"writes-per-block"`
	HotRatio              float64 `mapstructure:"hot-ratio" validate:"gte=0,lte=1"`
	NoncesPerBlock        uint    `mapstructure:"nonces-per-block"`
	DeclaresPerBlock      uint    `mapstructure:"declares-per-block"`
	ReplacesPerBlock      uint    `mapstructure:"replaces-per-block"`
	TransactionsPerBlock  uint    `mapstructure:"txs-per-block"`
	EventsPerBlock        uint    `mapstructure:"events-per-block"`
	ProtocolVersion       string  `mapstructure:"protocol-version"`

	WorkloadFile string `mapstructure:"workload"`
	Verify       bool   `mapstructure:"verify"`

	PedersenCacheSize int `mapstructure:"pedersen-cache" validate:"gte=0"`

	Metrics     bool   `mapstructure:"metrics"`
	MetricsPort uint16 `mapstructure:"metrics-port"`
	Pprof       bool   `mapstructure:"pprof"`
	PprofPort   uint16 `mapstructure:"pprof-port"`

	ReportFile string `mapstructure:"report"`
}

func (c *Config) Validate() error {
	if err := validator.Validator().Struct(c); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	return nil
}

// WorkloadSpec derives the synthetic chain shape from the per-block knobs.
// It is ignored when a workload file supplies the blocks instead.
func (c *Config) WorkloadSpec() WorkloadSpec {
	return WorkloadSpec{
		Seed:                  c.Seed,
		Blocks:                c.Blocks,
		ContractsPerBlock:     c.ContractsPerBlock,
		StorageWritesPerBlock: c.StorageWritesPerBlock,
		HotRatio:              c.HotRatio,
		NoncesPerBlock:        c.NoncesPerBlock,
		DeclaresPerBlock:      c.DeclaresPerBlock,
		ReplacesPerBlock:      c.ReplacesPerBlock,
		TransactionsPerBlock:  c.TransactionsPerBlock,
		EventsPerBlock:        c.EventsPerBlock,
		ProtocolVersion:       c.ProtocolVersion,
	}
}
