package core

import (
	"strings"

	"github.com/Masterminds/semver/v3"
	"github.com/antiyro/starkroot/core/crypto"
	"github.com/antiyro/starkroot/core/felt"
	"github.com/antiyro/starkroot/core/trie"
	"github.com/bits-and-blooms/bloom/v3"
	"github.com/sourcegraph/conc"
)

const commitmentTrieHeight uint8 = 64

const (
	// Calculated at https://hur.st/bloomfilter/?n=1000&p=&m=8192&k=
	// provides 1 in 51 possibility of false positives for approximately 1000 elements
	eventsBloomLength    = 8192
	eventsBloomHashFuncs = 6
)

type BlockCommitments struct {
	TransactionCommitment *felt.Felt
	EventCommitment       *felt.Felt
}

// ComputeBlockCommitments calculates the transaction and event commitments
// of a block concurrently.
func ComputeBlockCommitments(transactions []Transaction, events []*Event, protocolVersion string) (*BlockCommitments, error) {
	var txCommitment, eCommitment *felt.Felt
	var tErr, eErr error

	wg := conc.NewWaitGroup()
	wg.Go(func() {
		txCommitment, tErr = TransactionCommitment(transactions, protocolVersion)
	})
	wg.Go(func() {
		eCommitment, eErr = EventCommitment(events)
	})
	wg.Wait()

	if tErr != nil {
		return nil, tErr
	}
	if eErr != nil {
		return nil, eErr
	}

	return &BlockCommitments{
		TransactionCommitment: txCommitment,
		EventCommitment:       eCommitment,
	}, nil
}

// TransactionCommitment is the root of a height 64 binary Merkle Patricia
// tree of the transaction hashes and signatures in a block.
func TransactionCommitment(transactions []Transaction, protocolVersion string) (*felt.Felt, error) {
	var commitment *felt.Felt
	v0_11_1 := semver.MustParse("0.11.1")
	return commitment, trie.RunOnTempTrie(commitmentTrieHeight, func(trie *trie.Trie) error {
		blockVersion, err := ParseBlockVersion(protocolVersion)
		if err != nil {
			return err
		}

		for i, transaction := range transactions {
			signatureHash := crypto.PedersenArray()

			// blockVersion >= 0.11.1
			if blockVersion.Compare(v0_11_1) != -1 {
				signatureHash = crypto.PedersenArray(transaction.Signature()...)
			} else if _, ok := transaction.(*InvokeTransaction); ok {
				signatureHash = crypto.PedersenArray(transaction.Signature()...)
			}

			if _, err = trie.Put(new(felt.Felt).SetUint64(uint64(i)),
				crypto.Pedersen(transaction.Hash(), signatureHash)); err != nil {
				return err
			}
		}
		root, err := trie.Root()
		if err != nil {
			return err
		}
		commitment = root
		return nil
	})
}

// ParseBlockVersion computes the block version, defaulting to "0.0.0" for empty strings
func ParseBlockVersion(protocolVersion string) (*semver.Version, error) {
	if protocolVersion == "" {
		return semver.NewVersion("0.0.0")
	}

	sep := "."
	digits := strings.Split(protocolVersion, sep)
	// pad with 3 zeros in case version has less than 3 digits
	digits = append(digits, []string{"0", "0", "0"}...)

	// get first 3 digits only
	return semver.NewVersion(strings.Join(digits[:3], sep))
}

// EventCommitment computes the event commitment for a block.
func EventCommitment(events []*Event) (*felt.Felt, error) {
	var commitment *felt.Felt
	return commitment, trie.RunOnTempTrie(commitmentTrieHeight, func(trie *trie.Trie) error {
		for i, event := range events {
			eventHash := crypto.PedersenArray(
				event.From,
				crypto.PedersenArray(event.Keys...),
				crypto.PedersenArray(event.Data...),
			)

			if _, err := trie.Put(new(felt.Felt).SetUint64(uint64(i)), eventHash); err != nil {
				return err
			}
		}
		root, err := trie.Root()
		if err != nil {
			return err
		}
		commitment = root
		return nil
	})
}

// EventsBloom returns a bloom filter seeded with the senders and keys of the
// given events.
func EventsBloom(events []*Event) *bloom.BloomFilter {
	filter := bloom.New(eventsBloomLength, eventsBloomHashFuncs)

	for _, event := range events {
		fromBytes := event.From.Bytes()
		filter.TestOrAdd(fromBytes[:])
		for _, key := range event.Keys {
			keyBytes := key.Bytes()
			filter.TestOrAdd(keyBytes[:])
		}
	}
	return filter
}
