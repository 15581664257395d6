package core

import (
	"encoding/binary"
	"errors"
	"fmt"
	"runtime"
	"sort"
	"time"

	"github.com/antiyro/starkroot/core/crypto"
	"github.com/antiyro/starkroot/core/felt"
	"github.com/antiyro/starkroot/core/trie"
	"github.com/antiyro/starkroot/db"
	"github.com/antiyro/starkroot/encoder"
	"github.com/sourcegraph/conc"
	"github.com/sourcegraph/conc/pool"
)

const globalTrieHeight = 251

var (
	stateVersion = new(felt.Felt).SetBytes([]byte(`STARKNET_STATE_V0`))
	leafVersion  = new(felt.Felt).SetBytes([]byte(`CONTRACT_CLASS_LEAF_V0`))

	// noClassContracts contains system contracts that are not explicitly
	// deployed and not associated with any class. The first storage write to
	// one deploys it with a zero class hash.
	//
	// https://docs.starknet.io/documentation/architecture_and_concepts/Network_Architecture/starknet-state/#address_0x1
	noClassContracts = map[felt.Felt]struct{}{
		*new(felt.Felt).SetUint64(1): {},
	}

	noClassContractsClassHash = new(felt.Felt)
)

type State struct {
	txn        db.Transaction
	maxWorkers int
	listener   StateEventListener
}

func NewState(txn db.Transaction) *State {
	return &State{
		txn:        txn,
		maxWorkers: runtime.GOMAXPROCS(0),
		listener:   &SelectiveListener{},
	}
}

// WithMaxWorkers caps the number of goroutines used for concurrent contract
// storage updates.
func (s *State) WithMaxWorkers(maxWorkers int) *State {
	if maxWorkers > 0 {
		s.maxWorkers = maxWorkers
	}
	return s
}

// WithListener registers an event listener notified as update steps complete.
func (s *State) WithListener(listener StateEventListener) *State {
	s.listener = listener
	return s
}

// ContractClassHash returns class hash of a contract at a given address.
func (s *State) ContractClassHash(addr *felt.Felt) (*felt.Felt, error) {
	return ContractClassHash(addr, s.txn)
}

// ContractNonce returns nonce of a contract at a given address.
func (s *State) ContractNonce(addr *felt.Felt) (*felt.Felt, error) {
	return ContractNonce(addr, s.txn)
}

// ContractStorage returns value of a key in the storage of the contract at the given address.
func (s *State) ContractStorage(addr, key *felt.Felt) (*felt.Felt, error) {
	return ContractStorage(addr, key, s.txn)
}

// ContractDeployedAt reports whether the contract at addr was deployed at or
// before blockNumber.
func (s *State) ContractDeployedAt(addr *felt.Felt, blockNumber uint64) (bool, error) {
	return ContractDeployedAt(addr, blockNumber, s.txn)
}

// Root returns the state commitment. The two global tries are rooted
// concurrently since they live under separate buckets.
func (s *State) Root() (*felt.Felt, error) {
	var storageRoot, classesRoot *felt.Felt
	var sErr, cErr error

	wg := conc.NewWaitGroup()
	wg.Go(func() {
		storageRoot, sErr = s.rootOf(s.storage)
	})
	wg.Go(func() {
		classesRoot, cErr = s.rootOf(s.classesTrie)
	})
	wg.Wait()

	if sErr != nil {
		return nil, sErr
	}
	if cErr != nil {
		return nil, cErr
	}

	if classesRoot.IsZero() {
		return storageRoot, nil
	}

	return crypto.PoseidonArray(stateVersion, storageRoot, classesRoot), nil
}

func (s *State) rootOf(open func() (*trie.Trie, func() error, error)) (*felt.Felt, error) {
	gTrie, closer, err := open()
	if err != nil {
		return nil, err
	}

	root, err := gTrie.Root()
	if err != nil {
		return nil, err
	}

	return root, closer()
}

// storage returns a [trie.Trie] that represents the Starknet global state in the given Txn context.
func (s *State) storage() (*trie.Trie, func() error, error) {
	return s.globalTrie(db.StateTrie, trie.NewTriePedersen)
}

func (s *State) classesTrie() (*trie.Trie, func() error, error) {
	return s.globalTrie(db.ClassesTrie, trie.NewTriePoseidon)
}

func (s *State) globalTrie(bucket db.Bucket, newTrie trie.NewTrieFunc) (*trie.Trie, func() error, error) {
	gTrie, err := newTrie(trie.NewTransactionStorage(s.txn, bucket.Key()), globalTrieHeight)
	if err != nil {
		return nil, nil, err
	}
	return gTrie, gTrie.Commit, nil
}

// Update applies a StateUpdate to the State object. State is not updated if
// an error is encountered during the operation. If the update's old or new
// root does not match the state's roots, an error is returned without
// committing. A nil root in the update skips that check, for callers that
// build a chain rather than replay one.
func (s *State) Update(blockNumber uint64, update *StateUpdate, declaredClasses map[felt.Felt]Class) error {
	if update.OldRoot != nil {
		if err := s.verifyStateUpdateRoot(update.OldRoot); err != nil {
			return err
		}
	}

	// register declared classes mentioned in diff.DeployedContracts and diff.DeclaredV1Classes
	timer := time.Now()
	for _, cHash := range sortedFeltKeys(declaredClasses) {
		if err := s.putClass(&cHash, declaredClasses[cHash], blockNumber); err != nil {
			return err
		}
	}

	if err := s.updateDeclaredClassesTrie(update.StateDiff.DeclaredV1Classes, declaredClasses); err != nil {
		return err
	}
	s.listener.OnUpdateStepDone(StepClassesTrie, blockNumber, time.Since(timer))

	stateTrie, storageCloser, err := s.storage()
	if err != nil {
		return err
	}

	if err = s.updateContracts(stateTrie, blockNumber, update.StateDiff); err != nil {
		return err
	}

	timer = time.Now()
	if err = storageCloser(); err != nil {
		return err
	}
	s.listener.OnUpdateStepDone(StepContractsTrie, blockNumber, time.Since(timer))

	if err = s.putChainHeight(blockNumber); err != nil {
		return err
	}

	if update.NewRoot != nil {
		return s.verifyStateUpdateRoot(update.NewRoot)
	}
	return nil
}

func (s *State) verifyStateUpdateRoot(root *felt.Felt) error {
	currentRoot, err := s.Root()
	if err != nil {
		return err
	}

	if !root.Equal(currentRoot) {
		return fmt.Errorf("state's current root: %s does not match the expected root: %s", currentRoot, root)
	}
	return nil
}

func (s *State) updateContracts(stateTrie *trie.Trie, blockNumber uint64, diff *StateDiff) error {
	// register deployed contracts
	for _, addr := range sortedFeltKeys(diff.DeployedContracts) {
		if err := s.putNewContract(stateTrie, &addr, diff.DeployedContracts[addr], blockNumber); err != nil {
			return err
		}
	}

	// replace contract instances
	for _, addr := range sortedFeltKeys(diff.ReplacedClasses) {
		if err := s.replaceContract(stateTrie, &addr, diff.ReplacedClasses[addr]); err != nil {
			return err
		}
	}

	// update contract nonces
	for _, addr := range sortedFeltKeys(diff.Nonces) {
		if err := s.updateContractNonce(stateTrie, &addr, diff.Nonces[addr]); err != nil {
			return err
		}
	}

	// update contract storages
	return s.updateContractStorages(stateTrie, diff.StorageDiffs, blockNumber)
}

// putNewContract creates a contract storage instance in the state and stores
// the relation between contract address and class hash to be queried later
// with [ContractClassHash]. It also records the deployment height.
func (s *State) putNewContract(stateTrie *trie.Trie, addr, classHash *felt.Felt, blockNumber uint64) error {
	contract, err := DeployContract(addr, classHash, s.txn)
	if err != nil {
		return err
	}

	numBytes := MarshalBlockNumber(blockNumber)
	if err = s.txn.Set(db.ContractDeploymentHeight.Key(addr.Marshal()), numBytes); err != nil {
		return err
	}

	return s.updateContractCommitment(stateTrie, contract)
}

// replaceContract replaces the class that a contract at a given address instantiates.
func (s *State) replaceContract(stateTrie *trie.Trie, addr, classHash *felt.Felt) error {
	contract, err := NewContractUpdater(addr, s.txn)
	if err != nil {
		return err
	}

	if err = contract.Replace(classHash); err != nil {
		return err
	}

	return s.updateContractCommitment(stateTrie, contract)
}

// updateContractNonce updates nonce of the contract at the given address.
func (s *State) updateContractNonce(stateTrie *trie.Trie, addr, nonce *felt.Felt) error {
	contract, err := NewContractUpdater(addr, s.txn)
	if err != nil {
		return err
	}

	if err = contract.UpdateNonce(nonce); err != nil {
		return err
	}

	return s.updateContractCommitment(stateTrie, contract)
}

type bufferedTransactionWithAddress struct {
	txn  *db.BufferedTransaction
	addr *felt.Felt
}

// updateStorageBuffered applies a contract's storage diff on top of a
// buffered transaction, so that worker goroutines never write to s.txn
// directly. The caller flushes the buffers serially.
func (s *State) updateStorageBuffered(contractAddr *felt.Felt, updateDiff map[felt.Felt]*felt.Felt) (*db.BufferedTransaction, error) {
	bufferedTxn := db.NewBufferedTransaction(s.txn)
	bufferedContract, err := NewContractUpdater(contractAddr, bufferedTxn)
	if err != nil {
		return nil, err
	}

	if err = bufferedContract.UpdateStorage(updateDiff); err != nil {
		return nil, err
	}

	return bufferedTxn, nil
}

// updateContractStorages applies the storage diffs and updates the state trie accordingly.
func (s *State) updateContractStorages(stateTrie *trie.Trie, diffs map[felt.Felt]map[felt.Felt]*felt.Felt,
	blockNumber uint64,
) error {
	// make sure all noClassContracts are deployed
	for addr := range diffs {
		if _, ok := noClassContracts[addr]; !ok {
			continue
		}

		_, err := NewContractUpdater(&addr, s.txn)
		if err != nil {
			if !errors.Is(err, ErrContractNotDeployed) {
				return err
			}
			// Deploy noClassContract
			if err = s.putNewContract(stateTrie, &addr, noClassContractsClassHash, blockNumber); err != nil {
				return err
			}
		}
	}

	// sort the contracts in descending diff size order so we start with the
	// heaviest update first
	keys := make([]felt.Felt, 0, len(diffs))
	for key := range diffs {
		keys = append(keys, key)
	}
	sort.Slice(keys, func(i, j int) bool {
		return len(diffs[keys[i]]) > len(diffs[keys[j]])
	})

	timer := time.Now()

	// update per-contract storage tries concurrently
	contractUpdaters := pool.NewWithResults[*bufferedTransactionWithAddress]().WithErrors().WithMaxGoroutines(s.maxWorkers)
	for _, key := range keys {
		contractAddr := key
		updateDiff := diffs[contractAddr]
		contractUpdaters.Go(func() (*bufferedTransactionWithAddress, error) {
			bufferedTxn, err := s.updateStorageBuffered(&contractAddr, updateDiff)
			if err != nil {
				return nil, err
			}
			return &bufferedTransactionWithAddress{txn: bufferedTxn, addr: &contractAddr}, nil
		})
	}

	bufferedTxns, err := contractUpdaters.Wait()
	if err != nil {
		return err
	}

	// flush the buffers in ascending contract address order to keep the
	// write pattern into the underlying transaction sequential
	sort.Slice(bufferedTxns, func(i, j int) bool {
		return bufferedTxns[i].addr.Cmp(bufferedTxns[j].addr) < 0
	})

	for _, txnWithAddress := range bufferedTxns {
		if err := txnWithAddress.txn.Flush(); err != nil {
			return err
		}
	}
	s.listener.OnUpdateStepDone(StepStorageTries, blockNumber, time.Since(timer))

	// the state trie is updated serially once the storage roots are known
	for _, addr := range sortedFeltKeys(diffs) {
		contract, err := NewContractUpdater(&addr, s.txn)
		if err != nil {
			return err
		}
		if err = s.updateContractCommitment(stateTrie, contract); err != nil {
			return err
		}
	}

	return nil
}

// updateContractCommitment recalculates the contract commitment and updates
// its value in the global state trie.
func (s *State) updateContractCommitment(stateTrie *trie.Trie, contract *ContractUpdater) error {
	root, err := ContractRoot(contract.Address, s.txn)
	if err != nil {
		return err
	}

	cHash, err := ContractClassHash(contract.Address, s.txn)
	if err != nil {
		return err
	}

	nonce, err := ContractNonce(contract.Address, s.txn)
	if err != nil {
		return err
	}

	commitment := calculateContractCommitment(root, cHash, nonce)

	_, err = stateTrie.Put(contract.Address, commitment)
	return err
}

func calculateContractCommitment(storageRoot, classHash, nonce *felt.Felt) *felt.Felt {
	return crypto.Pedersen(crypto.Pedersen(crypto.Pedersen(classHash, storageRoot), nonce), &felt.Zero)
}

func (s *State) putClass(classHash *felt.Felt, class Class, declaredAt uint64) error {
	classKey := db.Class.Key(classHash.Marshal())

	err := s.txn.Get(classKey, func(val []byte) error {
		return nil
	})

	if errors.Is(err, db.ErrKeyNotFound) {
		classEncoded, encErr := encoder.Marshal(DeclaredClass{
			At:    declaredAt,
			Class: class,
		})
		if encErr != nil {
			return encErr
		}

		return s.txn.Set(classKey, classEncoded)
	}
	return err
}

// Class returns the class object corresponding to the given classHash.
func (s *State) Class(classHash *felt.Felt) (*DeclaredClass, error) {
	classKey := db.Class.Key(classHash.Marshal())

	var class DeclaredClass
	err := s.txn.Get(classKey, func(val []byte) error {
		return encoder.Unmarshal(val, &class)
	})
	if err != nil {
		return nil, err
	}
	return &class, nil
}

func (s *State) updateDeclaredClassesTrie(declaredClasses map[felt.Felt]*felt.Felt, classDefinitions map[felt.Felt]Class) error {
	classesTrie, classesCloser, err := s.classesTrie()
	if err != nil {
		return err
	}

	for _, classHash := range sortedFeltKeys(declaredClasses) {
		if _, found := classDefinitions[classHash]; !found {
			continue
		}

		// https://docs.starknet.io/documentation/starknet_versions/upcoming_versions/#commitment
		leafValue := crypto.Poseidon(leafVersion, declaredClasses[classHash])
		if _, err = classesTrie.Put(&classHash, leafValue); err != nil {
			return err
		}
	}

	return classesCloser()
}

// ChainHeight returns the height of the latest applied state update.
func ChainHeight(txn db.Transaction) (uint64, error) {
	var height uint64
	err := txn.Get(db.ChainHeight.Key(), func(val []byte) error {
		height = UnmarshalBlockNumber(val)
		return nil
	})
	return height, err
}

func (s *State) putChainHeight(blockNumber uint64) error {
	return s.txn.Set(db.ChainHeight.Key(), MarshalBlockNumber(blockNumber))
}

func MarshalBlockNumber(blockNumber uint64) []byte {
	const blockNumberSize = 8

	numBytes := make([]byte, blockNumberSize)
	binary.BigEndian.PutUint64(numBytes, blockNumber)

	return numBytes
}

func UnmarshalBlockNumber(val []byte) uint64 {
	return binary.BigEndian.Uint64(val)
}
