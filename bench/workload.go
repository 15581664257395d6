package bench

import (
	"fmt"
	"math/rand"
	"os"

	"github.com/Masterminds/semver/v3"
	"github.com/antiyro/starkroot/core"
	"github.com/antiyro/starkroot/core/crypto"
	"github.com/antiyro/starkroot/core/felt"
	"github.com/antiyro/starkroot/db/pebble"
	"github.com/antiyro/starkroot/encoder"
	_ "github.com/antiyro/starkroot/encoder/registry"
	"github.com/antiyro/starkroot/utils"
	"github.com/bits-and-blooms/bitset"
)

// WorkloadVersion is written into fixture files. A file whose major version
// differs cannot be replayed.
const WorkloadVersion = "1.0.0"

// slotSpan is the per-contract storage slot space the generator draws from.
// Small enough that repeated writes hit already-written slots, so a run mixes
// fresh inserts with overwrites.
const slotSpan = 1024

// WorkloadSpec pins down the shape of a synthetic chain. Two generators
// built from equal specs produce identical blocks.
type WorkloadSpec struct {
	Seed                  int64
	Blocks                uint64
	ContractsPerBlock     uint
	StorageWritesPerBlock uint
	HotRatio              float64
	NoncesPerBlock        uint
	DeclaresPerBlock      uint
	ReplacesPerBlock      uint
	TransactionsPerBlock  uint
	EventsPerBlock        uint
	ProtocolVersion       string
}

// BlockFixture is one block of a workload: the state diff to apply, the
// class definitions it declares and the transactions and events whose
// commitments are computed alongside. Inserts and Updates split the block's
// storage writes into first writes and overwrites. Commitments is only set
// on annotated fixtures and records the expected block commitments.
type BlockFixture struct {
	Number       uint64
	Update       *core.StateUpdate
	Classes      map[felt.Felt]core.Class
	Transactions []core.Transaction
	Events       []*core.Event
	Commitments  *core.BlockCommitments
	Inserts      uint64
	Updates      uint64
}

// BlockSource streams the blocks of a run, either generated on the fly or
// decoded from a fixture file.
type BlockSource interface {
	Spec() WorkloadSpec
	Next() (*BlockFixture, error)
}

var eventSelectors = func() []*felt.Felt {
	names := []string{"Transfer", "Approval", "OwnershipTransferred"}
	selectors := make([]*felt.Felt, len(names))
	for i, name := range names {
		selector, err := crypto.StarknetKeccak([]byte(name))
		if err != nil {
			panic(err)
		}
		selectors[i] = selector
	}
	return selectors
}()

// Generator produces a deterministic synthetic chain from a WorkloadSpec.
type Generator struct {
	spec     WorkloadSpec
	rng      *rand.Rand
	seedFelt *felt.Felt

	number    uint64
	counter   uint64
	contracts []felt.Felt
	classes   []felt.Felt
	written   *bitset.BitSet
}

var _ BlockSource = (*Generator)(nil)

func NewGenerator(spec WorkloadSpec) *Generator {
	return &Generator{
		spec:     spec,
		rng:      rand.New(rand.NewSource(spec.Seed)), //nolint:gosec
		seedFelt: new(felt.Felt).SetUint64(uint64(spec.Seed)),
		written:  bitset.New(slotSpan),
	}
}

func (g *Generator) Spec() WorkloadSpec {
	return g.spec
}

// Next builds the chain's next block. Roots are left unset; annotation is the
// business of whoever applies the blocks.
func (g *Generator) Next() (*BlockFixture, error) {
	number := g.number
	g.number++

	diff := core.EmptyStateDiff()
	classes := make(map[felt.Felt]core.Class)
	fixture := &BlockFixture{
		Number:  number,
		Update:  &core.StateUpdate{BlockHash: g.randFelt(), StateDiff: diff},
		Classes: classes,
	}

	g.declareClasses(number, diff, classes)

	// deploys first so storage writes can target fresh contracts
	oldCount := len(g.contracts)
	for i := uint(0); i < g.spec.ContractsPerBlock; i++ {
		addr := g.nextAddress()
		diff.DeployedContracts[addr] = g.pickClassHash()
		g.contracts = append(g.contracts, addr)
	}

	for i := uint(0); i < g.spec.ReplacesPerBlock && oldCount > 0; i++ {
		addr := g.contracts[g.rng.Intn(oldCount)]
		diff.ReplacedClasses[addr] = g.pickClassHash()
	}

	for i := uint(0); i < g.spec.NoncesPerBlock && len(g.contracts) > 0; i++ {
		addr := g.contracts[g.rng.Intn(len(g.contracts))]
		diff.Nonces[addr] = new(felt.Felt).SetUint64(number + 1)
	}

	g.writeStorage(fixture, oldCount)

	fixture.Transactions = g.makeTransactions()
	fixture.Events = g.makeEvents()

	return fixture, nil
}

func (g *Generator) declareClasses(number uint64, diff *core.StateDiff, classes map[felt.Felt]core.Class) {
	for i := uint(0); i < g.spec.DeclaresPerBlock; i++ {
		classHash := g.randFelt()
		diff.DeclaredV1Classes[*classHash] = g.randFelt()
		classes[*classHash] = &core.Cairo1Class{
			AbiHash:         g.randFelt(),
			ProgramHash:     g.randFelt(),
			SemanticVersion: "0.1.0",
		}
		g.classes = append(g.classes, *classHash)
	}

	// a Cairo 0 declaration now and then; these never enter the classes trie
	if g.spec.DeclaresPerBlock > 0 && number%4 == 0 {
		classHash := g.randFelt()
		diff.DeclaredV0Classes = append(diff.DeclaredV0Classes, classHash)
		classes[*classHash] = &core.Cairo0Class{Program: g.randFelt().String()}
	}
}

// writeStorage spreads the block's storage writes over hot (previously
// deployed) and fresh contracts and tracks which slots have been written
// before, so the insert/overwrite mix of every block is reproducible.
func (g *Generator) writeStorage(fixture *BlockFixture, oldCount int) {
	diff := fixture.Update.StateDiff
	fresh := len(g.contracts) - oldCount

	for i := uint(0); i < g.spec.StorageWritesPerBlock && len(g.contracts) > 0; i++ {
		var contractIdx int
		switch {
		case oldCount == 0:
			contractIdx = g.rng.Intn(len(g.contracts))
		case fresh == 0:
			contractIdx = g.rng.Intn(oldCount)
		case g.rng.Float64() < g.spec.HotRatio:
			contractIdx = g.rng.Intn(oldCount)
		default:
			contractIdx = oldCount + g.rng.Intn(fresh)
		}

		slot := g.rng.Intn(slotSpan)
		bit := uint(contractIdx)*slotSpan + uint(slot) //nolint:gosec
		if g.written.Test(bit) {
			fixture.Updates++
		} else {
			g.written.Set(bit)
			fixture.Inserts++
		}

		addr := g.contracts[contractIdx]
		slots, ok := diff.StorageDiffs[addr]
		if !ok {
			slots = make(map[felt.Felt]*felt.Felt)
			diff.StorageDiffs[addr] = slots
		}
		slots[*new(felt.Felt).SetUint64(uint64(slot))] = g.randFelt() //nolint:gosec
	}
}

func (g *Generator) makeTransactions() []core.Transaction {
	transactions := make([]core.Transaction, 0, g.spec.TransactionsPerBlock)
	for i := uint(0); i < g.spec.TransactionsPerBlock; i++ {
		switch i % 3 {
		case 0:
			transactions = append(transactions, &core.InvokeTransaction{
				TransactionHash:      g.randFelt(),
				CallData:             []*felt.Felt{g.randFelt(), g.randFelt(), g.randFelt()},
				TransactionSignature: []*felt.Felt{g.randFelt(), g.randFelt()},
				MaxFee:               g.randFelt(),
				Version:              new(felt.Felt).SetUint64(1),
				Nonce:                g.randFelt(),
				SenderAddress:        g.pickContract(),
			})
		case 1:
			transactions = append(transactions, &core.DeclareTransaction{
				TransactionHash:      g.randFelt(),
				ClassHash:            g.pickClassHash(),
				SenderAddress:        g.pickContract(),
				MaxFee:               g.randFelt(),
				TransactionSignature: []*felt.Felt{g.randFelt(), g.randFelt()},
				Nonce:                g.randFelt(),
				Version:              new(felt.Felt).SetUint64(2),
				CompiledClassHash:    g.randFelt(),
			})
		default:
			transactions = append(transactions, &core.DeployTransaction{
				TransactionHash:     g.randFelt(),
				ContractAddressSalt: g.randFelt(),
				ContractAddress:     g.pickContract(),
				ClassHash:           g.pickClassHash(),
				ConstructorCallData: []*felt.Felt{g.randFelt(), g.randFelt()},
				Version:             new(felt.Felt),
			})
		}
	}
	return transactions
}

func (g *Generator) makeEvents() []*core.Event {
	events := make([]*core.Event, 0, g.spec.EventsPerBlock)
	for i := uint(0); i < g.spec.EventsPerBlock; i++ {
		events = append(events, &core.Event{
			From: g.pickContract(),
			Keys: []*felt.Felt{eventSelectors[int(i)%len(eventSelectors)], g.randFelt()},
			Data: []*felt.Felt{g.randFelt(), g.randFelt()},
		})
	}
	return events
}

// nextAddress derives a fresh contract address from the seed and a counter,
// keeping the address set reproducible independently of the rng draw order.
func (g *Generator) nextAddress() felt.Felt {
	g.counter++
	return *crypto.Pedersen(g.seedFelt, new(felt.Felt).SetUint64(g.counter))
}

func (g *Generator) randFelt() *felt.Felt {
	var buf [31]byte
	g.rng.Read(buf[:]) //nolint:errcheck // never fails
	return new(felt.Felt).SetBytes(buf[:])
}

func (g *Generator) pickContract() *felt.Felt {
	if len(g.contracts) == 0 {
		return g.randFelt()
	}
	addr := g.contracts[g.rng.Intn(len(g.contracts))]
	return &addr
}

func (g *Generator) pickClassHash() *felt.Felt {
	if len(g.classes) == 0 {
		return g.randFelt()
	}
	classHash := g.classes[g.rng.Intn(len(g.classes))]
	return &classHash
}

type workloadHeader struct {
	Version string
	Spec    WorkloadSpec
}

// GenerateWorkloadFile writes a fixture file: a header followed by one CBOR
// document per block. With annotate set, blocks are applied to a throwaway
// in-memory state as they are generated and each block records the roots it
// moves the state between, so a replay can verify every block.
func GenerateWorkloadFile(path string, spec WorkloadSpec, annotate bool, log utils.Logger) (err error) {
	file, err := os.Create(path)
	if err != nil {
		return err
	}
	defer func() {
		err = utils.RunAndWrapOnError(file.Close, err)
	}()

	enc := encoder.NewEncoder(file)
	if err = enc.Encode(workloadHeader{Version: WorkloadVersion, Spec: spec}); err != nil {
		return err
	}

	var state *core.State
	if annotate {
		database, dbErr := pebble.NewMem()
		if dbErr != nil {
			return dbErr
		}
		defer func() {
			err = utils.RunAndWrapOnError(database.Close, err)
		}()

		txn := database.NewTransaction(true)
		defer func() {
			err = utils.RunAndWrapOnError(txn.Discard, err)
		}()
		state = core.NewState(txn)
	}

	generator := NewGenerator(spec)
	prevRoot := new(felt.Felt)
	for number := uint64(0); number < spec.Blocks; number++ {
		fixture, genErr := generator.Next()
		if genErr != nil {
			return genErr
		}

		if annotate {
			fixture.Update.OldRoot = prevRoot
			if err = state.Update(number, fixture.Update, fixture.Classes); err != nil {
				return fmt.Errorf("apply block %d: %w", number, err)
			}
			root, rootErr := state.Root()
			if rootErr != nil {
				return rootErr
			}
			fixture.Update.NewRoot = root
			prevRoot = root

			fixture.Commitments, err = core.ComputeBlockCommitments(
				fixture.Transactions, fixture.Events, spec.ProtocolVersion)
			if err != nil {
				return fmt.Errorf("commitments of block %d: %w", number, err)
			}
		}

		if err = enc.Encode(fixture); err != nil {
			return fmt.Errorf("encode block %d: %w", number, err)
		}

		if (number+1)%progressLogInterval == 0 {
			log.Infow("Generating workload", "block", number, "of", spec.Blocks)
		}
	}

	return nil
}

// WorkloadReader replays a fixture file written by GenerateWorkloadFile.
type WorkloadReader struct {
	file *os.File
	dec  encoder.Decoder
	spec WorkloadSpec
}

var _ BlockSource = (*WorkloadReader)(nil)

func OpenWorkload(path string) (*WorkloadReader, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}

	dec := encoder.NewDecoder(file)
	var header workloadHeader
	if err = dec.Decode(&header); err != nil {
		return nil, utils.RunAndWrapOnError(file.Close, fmt.Errorf("read workload header: %w", err))
	}
	if err = checkWorkloadVersion(header.Version); err != nil {
		return nil, utils.RunAndWrapOnError(file.Close, err)
	}

	return &WorkloadReader{file: file, dec: dec, spec: header.Spec}, nil
}

func checkWorkloadVersion(version string) error {
	fileVersion, err := semver.NewVersion(version)
	if err != nil {
		return fmt.Errorf("parse workload version %q: %w", version, err)
	}
	if current := semver.MustParse(WorkloadVersion); fileVersion.Major() != current.Major() {
		return fmt.Errorf("workload version %s is incompatible with %s", fileVersion, current)
	}
	return nil
}

func (r *WorkloadReader) Spec() WorkloadSpec {
	return r.spec
}

func (r *WorkloadReader) Next() (*BlockFixture, error) {
	fixture := new(BlockFixture)
	if err := r.dec.Decode(fixture); err != nil {
		return nil, err
	}
	return fixture, nil
}

func (r *WorkloadReader) Close() error {
	return r.file.Close()
}
