package main

import (
	"fmt"

	"github.com/antiyro/starkroot/bench"
	"github.com/antiyro/starkroot/utils"
	"github.com/mitchellh/mapstructure"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// Version is set by the linker at build time.
var Version string

const greeting = `
      _                 _                         _
 ___ | |_   __ _  _ __ | | __ _ __   ___    ___  | |_
/ __|| __| / _  || '__|| |/ /| '__| / _ \  / _ \ | __|
\__ \| |_ | (_| || |   |   < | |   | (_) || (_) || |_
|___/ \__| \__,_||_|   |_|\_\|_|    \___/  \___/  \__|

Starkroot replays synthetic Starknet state updates and measures where the
state commitment spends its time.

`

const (
	configF        = "config"
	logLevelF      = "log-level"
	colourF        = "colour"
	dbF            = "db"
	dbPathF        = "db-path"
	workersF       = "workers"
	blocksF        = "blocks"
	seedF          = "seed"
	contractsF     = "contracts-per-block"
	writesF        = "writes-per-block"
	hotRatioF      = "hot-ratio"
	noncesF        = "nonces-per-block"
	declaresF      = "declares-per-block"
	replacesF      = "replaces-per-block"
	txsF           = "txs-per-block"
	eventsF        = "events-per-block"
	protocolF      = "protocol-version"
	workloadF      = "workload"
	verifyF        = "verify"
	pedersenCacheF = "pedersen-cache"
	metricsF       = "metrics"
	metricsPortF   = "metrics-port"
	pprofF         = "pprof"
	pprofPortF     = "pprof-port"
	reportF        = "report"

	defaultConfig        = ""
	defaultColour        = true
	defaultDB            = bench.DBPebbleMem
	defaultDBPath        = ""
	defaultWorkers       = 0
	defaultBlocks        = uint64(100)
	defaultSeed          = int64(42)
	defaultContracts     = uint(8)
	defaultWrites        = uint(64)
	defaultHotRatio      = 0.9
	defaultNonces        = uint(16)
	defaultDeclares      = uint(1)
	defaultReplaces      = uint(0)
	defaultTxs           = uint(32)
	defaultEvents        = uint(16)
	defaultProtocol      = "0.13.2"
	defaultWorkload      = ""
	defaultVerify        = false
	defaultPedersenCache = 0
	defaultMetrics       = false
	defaultMetricsPort   = uint16(9090)
	defaultPprof         = false
	defaultPprofPort     = uint16(9080)
	defaultReport        = ""

	configFlagUsage   = "The yaml configuration file."
	logLevelFlagUsage = "Verbosity of the logs. Options: debug, info, warn, error."
	colourUsage       = "Uses --colour=false command to disable colourized outputs (ANSI Escape Codes)."
	dbUsage           = "Database backend holding the tries. Options: memory, pebblemem, pebble."
	dbPathUsage       = "Location of the database files. Only used with --db pebble."
	workersUsage      = "Number of goroutines applying storage trie updates. 0 uses all available CPUs."
	blocksUsage       = "Number of blocks to apply."
	seedUsage         = "Seed of the synthetic workload. Equal seeds produce identical chains."
	contractsUsage    = "Contracts deployed per block."
	writesUsage       = "Storage slots written per block."
	hotRatioUsage     = "Fraction of storage writes that target previously deployed contracts."
	noncesUsage       = "Contract nonces bumped per block."
	declaresUsage     = "Classes declared per block."
	replacesUsage     = "Contracts whose class is replaced per block."
	txsUsage          = "Transactions per block, committed into the transaction trie."
	eventsUsage       = "Events per block, committed into the event trie."
	protocolUsage     = "Starknet protocol version of the generated blocks."
	workloadUsage     = "Replay blocks from this workload file instead of generating them. " +
		"See the generate subcommand."
	verifyUsage = "Check every applied block against the roots and commitments recorded " +
		"in the workload file."
	pedersenCacheUsage = "Number of Pedersen digests to memoise. 0 disables the cache."
	metricsUsage       = "Enables the prometheus endpoint on the metrics port."
	metricsPortUsage   = "The port on which the prometheus endpoint listens."
	pprofUsage         = "Enables the pprof server on the pprof port."
	pprofPortUsage     = "The port on which the pprof server listens."
	reportUsage        = "Write the run's result to this file as JSON."
)

var (
	Benchmark bench.Benchmark
	cfgFile   string
)

func NewCmd(newBenchmark bench.NewBenchmarkFn) *cobra.Command {
	starkrootCmd := &cobra.Command{
		Use:     "starkroot [flags]",
		Short:   "Starknet state commitment benchmark.",
		Version: Version,
	}

	starkrootCmd.Flags().StringVar(&cfgFile, configF, defaultConfig, configFlagUsage)
	starkrootCmd.Flags().Var(utils.NewLogLevel(utils.INFO), logLevelF, logLevelFlagUsage)
	starkrootCmd.Flags().Bool(colourF, defaultColour, colourUsage)
	starkrootCmd.Flags().String(dbF, defaultDB, dbUsage)
	starkrootCmd.Flags().String(dbPathF, defaultDBPath, dbPathUsage)
	starkrootCmd.Flags().Int(workersF, defaultWorkers, workersUsage)
	workloadFlags(starkrootCmd.Flags())
	starkrootCmd.Flags().String(workloadF, defaultWorkload, workloadUsage)
	starkrootCmd.Flags().Bool(verifyF, defaultVerify, verifyUsage)
	starkrootCmd.Flags().Int(pedersenCacheF, defaultPedersenCache, pedersenCacheUsage)
	starkrootCmd.Flags().Bool(metricsF, defaultMetrics, metricsUsage)
	starkrootCmd.Flags().Uint16(metricsPortF, defaultMetricsPort, metricsPortUsage)
	starkrootCmd.Flags().Bool(pprofF, defaultPprof, pprofUsage)
	starkrootCmd.Flags().Uint16(pprofPortF, defaultPprofPort, pprofPortUsage)
	starkrootCmd.Flags().String(reportF, defaultReport, reportUsage)

	starkrootCmd.RunE = func(cmd *cobra.Command, _ []string) error {
		cfg, err := unmarshalConfig(cmd.Flags(), cfgFile)
		if err != nil {
			return err
		}

		if _, err = fmt.Fprint(cmd.OutOrStdout(), greeting); err != nil {
			return err
		}

		log, err := utils.NewZapLogger(utils.NewLogLevel(cfg.LogLevel), cfg.Colour)
		if err != nil {
			return err
		}

		if Benchmark, err = newBenchmark(cfg, Version, log); err != nil {
			return err
		}

		result, err := Benchmark.Run(cmd.Context())
		if err != nil {
			return err
		}

		result.Render(cmd.OutOrStdout())
		if cfg.ReportFile != "" {
			if err = result.WriteJSON(cfg.ReportFile); err != nil {
				return err
			}
			log.Infow("Report written", "path", cfg.ReportFile)
		}
		return nil
	}

	starkrootCmd.AddCommand(GenerateCmd(), DBSizeCmd())

	return starkrootCmd
}

// workloadFlags registers the knobs shaping the synthetic chain. The root
// command and generate share them.
func workloadFlags(flags *pflag.FlagSet) {
	flags.Uint64(blocksF, defaultBlocks, blocksUsage)
	flags.Int64(seedF, defaultSeed, seedUsage)
	flags.Uint(contractsF, defaultContracts, contractsUsage)
	flags.Uint(writesF, defaultWrites, writesUsage)
	flags.Float64(hotRatioF, defaultHotRatio, hotRatioUsage)
	flags.Uint(noncesF, defaultNonces, noncesUsage)
	flags.Uint(declaresF, defaultDeclares, declaresUsage)
	flags.Uint(replacesF, defaultReplaces, replacesUsage)
	flags.Uint(txsF, defaultTxs, txsUsage)
	flags.Uint(eventsF, defaultEvents, eventsUsage)
	flags.String(protocolF, defaultProtocol, protocolUsage)
}

// unmarshalConfig merges flag defaults, the yaml config file and explicitly
// set flags, in ascending precedence, into a bench.Config.
func unmarshalConfig(flags *pflag.FlagSet, cfgFile string) (*bench.Config, error) {
	v := viper.New()
	if cfgFile != "" {
		v.SetConfigType("yaml")
		v.SetConfigFile(cfgFile)
		if err := v.ReadInConfig(); err != nil {
			return nil, err
		}
	}

	if err := v.BindPFlags(flags); err != nil {
		return nil, err
	}

	cfg := new(bench.Config)
	if err := v.Unmarshal(cfg, viper.DecodeHook(mapstructure.ComposeDecodeHookFunc(
		mapstructure.TextUnmarshallerHookFunc(),
		mapstructure.StringToTimeDurationHookFunc(),
	))); err != nil {
		return nil, err
	}
	return cfg, nil
}
