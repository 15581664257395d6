package bench

import (
	"context"
	"fmt"
	"runtime"
	"time"

	"github.com/antiyro/starkroot/core"
	"github.com/antiyro/starkroot/core/crypto"
	"github.com/antiyro/starkroot/core/felt"
	"github.com/antiyro/starkroot/db"
	"github.com/antiyro/starkroot/db/memory"
	"github.com/antiyro/starkroot/db/pebble"
	"github.com/antiyro/starkroot/pprof"
	"github.com/antiyro/starkroot/service"
	"github.com/antiyro/starkroot/utils"
	"github.com/pkg/errors"
	"github.com/sourcegraph/conc"
)

// progressLogInterval spaces the progress logs so long runs do not spend
// their time in the logger.
const progressLogInterval = 100

// timings accumulates the per-phase wall times over a run. Phases overlap
// (block commitments are computed while the state update is applied), so
// their sum may exceed the run's wall time.
type timings struct {
	workload      time.Duration
	storageTries  time.Duration
	contractsTrie time.Duration
	classesTrie   time.Duration
	commitments   time.Duration
	stateRoot     time.Duration
	dbCommit      time.Duration
}

// Benchmark is the part of the Runner the command line drives. The CLI
// takes a NewBenchmarkFn so its tests can substitute their own.
type Benchmark interface {
	Run(ctx context.Context) (*Result, error)
}

type NewBenchmarkFn func(cfg *Config, version string, log utils.Logger) (Benchmark, error)

// Runner applies a workload's state updates to a fresh Starknet state and
// measures where the time goes.
type Runner struct {
	cfg     *Config
	version string
	log     utils.Logger
}

var _ Benchmark = (*Runner)(nil)

func NewRunner(cfg *Config, version string, log utils.Logger) (*Runner, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Runner{cfg: cfg, version: version, log: log}, nil
}

// Run executes the benchmark and blocks until the workload is exhausted, an
// error occurs or ctx is cancelled.
func (r *Runner) Run(ctx context.Context) (result *Result, err error) {
	if r.cfg.PedersenCacheSize > 0 {
		if err = crypto.EnablePedersenCache(r.cfg.PedersenCacheSize); err != nil {
			return nil, fmt.Errorf("enable pedersen cache: %w", err)
		}
	}

	database, err := r.openDatabase()
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	defer func() {
		err = utils.RunAndWrapOnError(database.Close, err)
	}()

	source, closeSource, err := r.openSource()
	if err != nil {
		return nil, fmt.Errorf("open workload: %w", err)
	}
	defer func() {
		err = utils.RunAndWrapOnError(closeSource, err)
	}()

	if r.cfg.Verify && r.cfg.WorkloadFile == "" {
		r.log.Warnw("Verification requested but generated blocks carry no expected roots")
	}

	stopServices := r.startServices(ctx, database)
	defer stopServices()

	return r.applyBlocks(ctx, database, source)
}

func (r *Runner) openDatabase() (db.DB, error) {
	switch r.cfg.Database {
	case DBMemory:
		return memory.New(), nil
	case DBPebbleMem:
		database, err := pebble.NewMem()
		if err != nil {
			return nil, err
		}
		return r.instrument(database), nil
	case DBPebble:
		database, err := pebble.New(r.cfg.DatabasePath, pebble.WithLogger(r.cfg.Colour))
		if err != nil {
			return nil, err
		}
		return r.instrument(database), nil
	default:
		return nil, fmt.Errorf("unknown database backend %q", r.cfg.Database)
	}
}

func (r *Runner) instrument(database db.DB) db.DB {
	if !r.cfg.Metrics {
		return database
	}
	makePebbleMetrics(database)
	return database.(*pebble.DB).WithListener(makeDBMetrics())
}

func (r *Runner) openSource() (BlockSource, func() error, error) {
	if r.cfg.WorkloadFile != "" {
		reader, err := OpenWorkload(r.cfg.WorkloadFile)
		if err != nil {
			return nil, nil, err
		}
		return reader, reader.Close, nil
	}

	noClose := func() error { return nil }
	return NewGenerator(r.cfg.WorkloadSpec()), noClose, nil
}

// startServices runs the metrics and pprof servers until the returned stop
// function is called.
func (r *Runner) startServices(ctx context.Context, database db.DB) func() {
	services := []service.Service{
		pprof.New(r.cfg.Pprof, r.cfg.PprofPort, r.log),
	}
	if r.cfg.Metrics {
		makeInfoMetrics(r.version)
		services = append(services, makeMetrics(r.cfg.MetricsPort))
	}

	srvCtx, cancel := context.WithCancel(ctx)
	wg := conc.NewWaitGroup()
	for _, s := range services {
		s := s
		wg.Go(func() {
			if err := s.Run(srvCtx); err != nil {
				r.log.Errorw("Service error", "err", err)
			}
		})
	}

	return func() {
		cancel()
		wg.Wait()
	}
}

func (r *Runner) applyBlocks(ctx context.Context, database db.DB, source BlockSource) (*Result, error) {
	spec := source.Spec()
	workers := r.cfg.Workers
	if workers == 0 {
		workers = runtime.GOMAXPROCS(0)
	}
	result := &Result{
		Version:  r.version,
		Database: r.cfg.Database,
		Workers:  workers,
	}

	var (
		times    timings
		listener = r.stateListener(&times)
	)

	start := time.Now()
	for number := uint64(0); number < spec.Blocks; number++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		workloadTimer := time.Now()
		fixture, err := source.Next()
		if err != nil {
			return nil, errors.Wrapf(err, "read block %d", number)
		}
		times.workload += time.Since(workloadTimer)

		root, err := r.applyBlock(database, listener, fixture, spec.ProtocolVersion, &times)
		if err != nil {
			return nil, errors.Wrapf(err, "apply block %d", number)
		}

		r.recordBlock(result, fixture)

		if (number+1)%progressLogInterval == 0 || number+1 == spec.Blocks {
			r.log.Infow("Applied block", "number", number, "root", root.ShortString(),
				"entries", fixture.Update.StateDiff.Length(), "elapsed", time.Since(start).Round(time.Millisecond))
		}
	}
	elapsed := time.Since(start)

	finalRoot, err := stateRoot(database)
	if err != nil {
		return nil, fmt.Errorf("final state root: %w", err)
	}

	result.StateRoot = finalRoot.String()
	result.ElapsedMs = millis(elapsed)
	result.WorkloadMs = millis(times.workload)
	result.StorageTriesMs = millis(times.storageTries)
	result.ContractsTrieMs = millis(times.contractsTrie)
	result.ClassesTrieMs = millis(times.classesTrie)
	result.CommitmentsMs = millis(times.commitments)
	result.StateRootMs = millis(times.stateRoot)
	result.DBCommitMs = millis(times.dbCommit)
	if secs := elapsed.Seconds(); secs > 0 {
		result.BlocksPerSec = float64(result.Blocks) / secs
		result.EntriesPerSec = float64(result.DiffEntries) / secs
	}
	result.collectMemStats()
	if err = result.collectDBSize(ctx, database); err != nil {
		return nil, fmt.Errorf("measure database: %w", err)
	}

	return result, nil
}

// applyBlock applies one block's diff inside a single write transaction
// while the block commitments are computed on the side, mirroring the
// transaction/event join of the sequencer commitment pipeline.
func (r *Runner) applyBlock(database db.DB, listener core.StateEventListener,
	fixture *BlockFixture, protocolVersion string, times *timings,
) (root *felt.Felt, err error) {
	if !r.cfg.Verify {
		fixture.Update.OldRoot = nil
		fixture.Update.NewRoot = nil
	}

	txn := database.NewTransaction(true)
	defer func() {
		if err != nil {
			err = utils.RunAndWrapOnError(txn.Discard, err)
		}
	}()

	var commitments *core.BlockCommitments
	var commitmentsErr error
	wg := conc.NewWaitGroup()
	wg.Go(func() {
		commitmentTimer := time.Now()
		commitments, commitmentsErr = core.ComputeBlockCommitments(
			fixture.Transactions, fixture.Events, protocolVersion)
		times.commitments += time.Since(commitmentTimer)
	})

	state := core.NewState(txn).WithMaxWorkers(r.cfg.Workers).WithListener(listener)
	updateErr := state.Update(fixture.Number, fixture.Update, fixture.Classes)
	wg.Wait()

	if updateErr != nil {
		return nil, updateErr
	}
	if commitmentsErr != nil {
		return nil, fmt.Errorf("block commitments: %w", commitmentsErr)
	}
	if r.cfg.Verify && fixture.Commitments != nil {
		if err = verifyCommitments(fixture.Commitments, commitments); err != nil {
			return nil, err
		}
	}

	rootTimer := time.Now()
	if root, err = state.Root(); err != nil {
		return nil, err
	}
	times.stateRoot += time.Since(rootTimer)

	commitTimer := time.Now()
	if err = txn.Commit(); err != nil {
		return nil, err
	}
	times.dbCommit += time.Since(commitTimer)

	return root, nil
}

// stateListener folds the per-step durations reported by core.State into the
// run's phase totals, forwarding to the prometheus listener when metrics are
// enabled.
func (r *Runner) stateListener(times *timings) core.StateEventListener {
	var metricsListener core.StateEventListener
	if r.cfg.Metrics {
		metricsListener = makeStateMetrics()
	}

	return &core.SelectiveListener{
		OnUpdateStepDoneCb: func(step string, blockNum uint64, took time.Duration) {
			switch step {
			case core.StepStorageTries:
				times.storageTries += took
			case core.StepContractsTrie:
				times.contractsTrie += took
			case core.StepClassesTrie:
				times.classesTrie += took
			}
			if metricsListener != nil {
				metricsListener.OnUpdateStepDone(step, blockNum, took)
			}
		},
	}
}

func (r *Runner) recordBlock(result *Result, fixture *BlockFixture) {
	diff := fixture.Update.StateDiff
	result.Blocks++
	result.DiffEntries += diff.Length()
	result.ContractsDeployed += uint64(len(diff.DeployedContracts))
	result.ClassesDeclared += uint64(len(diff.DeclaredV0Classes) + len(diff.DeclaredV1Classes))
	for _, slots := range diff.StorageDiffs {
		result.StorageWrites += uint64(len(slots))
	}
	result.StorageInserts += fixture.Inserts
	result.StorageUpdates += fixture.Updates
	result.Transactions += uint64(len(fixture.Transactions))
	result.Events += uint64(len(fixture.Events))
	if r.cfg.Verify && fixture.Update.NewRoot != nil {
		result.VerifiedBlocks++
	}
}

func verifyCommitments(expected, got *core.BlockCommitments) error {
	if !expected.TransactionCommitment.Equal(got.TransactionCommitment) {
		return fmt.Errorf("transaction commitment %s does not match the expected %s",
			got.TransactionCommitment, expected.TransactionCommitment)
	}
	if !expected.EventCommitment.Equal(got.EventCommitment) {
		return fmt.Errorf("event commitment %s does not match the expected %s",
			got.EventCommitment, expected.EventCommitment)
	}
	return nil
}

// stateRoot reads the state commitment back through a fresh read transaction,
// so the reported root is the persisted one rather than an in-flight value.
func stateRoot(database db.DB) (*felt.Felt, error) {
	var root *felt.Felt
	return root, database.View(func(txn db.Transaction) error {
		var err error
		root, err = core.NewState(txn).Root()
		return err
	})
}
