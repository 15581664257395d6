package db

import (
	"bytes"
	"fmt"
)

// Bucket is the prefix that groups related keys in the flat keyspace.
// Pebble does not support buckets the way Bolt or MDBX do, so a global
// prefix list acts as a poor man's bucket alternative.
type Bucket byte

const (
	StateTrie                Bucket = iota // contracts trie nodes, root key under the bare prefix
	ContractStorage                        // contract storage trie nodes, prefixed with the contract address
	ClassesTrie                            // classes trie nodes, root key under the bare prefix
	ContractClassHash                      // contract address to class hash
	ContractNonce                          // contract address to nonce
	ContractDeploymentHeight               // contract address to the block number it was deployed at
	Class                                  // declared class records
	ChainHeight                            // latest applied block number
)

// Key flattens a prefix and series of byte arrays into a single []byte
func (b Bucket) Key(key ...[]byte) []byte {
	return append([]byte{byte(b)}, bytes.Join(key, []byte{})...)
}

func (b Bucket) String() string {
	switch b {
	case StateTrie:
		return "state_trie"
	case ContractStorage:
		return "contract_storage"
	case ClassesTrie:
		return "classes_trie"
	case ContractClassHash:
		return "contract_class_hash"
	case ContractNonce:
		return "contract_nonce"
	case ContractDeploymentHeight:
		return "contract_deployment_height"
	case Class:
		return "class"
	case ChainHeight:
		return "chain_height"
	default:
		return fmt.Sprintf("bucket(%d)", byte(b))
	}
}

// BucketValues returns all buckets in prefix order.
func BucketValues() []Bucket {
	return []Bucket{
		StateTrie,
		ContractStorage,
		ClassesTrie,
		ContractClassHash,
		ContractNonce,
		ContractDeploymentHeight,
		Class,
		ChainHeight,
	}
}
