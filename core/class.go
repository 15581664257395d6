package core

import (
	"github.com/antiyro/starkroot/core/felt"
)

// Class unambiguously defines a [Contract]'s semantics.
type Class interface {
	Version() uint64
}

// EntryPoint uniquely identifies a Cairo function to execute.
type EntryPoint struct {
	// starknet_keccak hash of the function signature.
	Selector *felt.Felt
	// The offset of the instruction in the class's bytecode.
	Offset *felt.Felt
}

// Cairo0Class is a legacy class declaration. Its compiled form is the
// declaration itself, so it never enters the classes trie.
type Cairo0Class struct {
	// External functions defined in the class.
	Externals []EntryPoint
	// Functions that receive L1 messages. See
	// https://www.cairo-lang.org/docs/hello_starknet/l1l2.html#receiving-a-message-from-l1
	L1Handlers []EntryPoint
	// Constructors for the class. Currently, only one is allowed.
	Constructors []EntryPoint
	// Base64 encoding of compressed Program
	Program string
}

func (c *Cairo0Class) Version() uint64 {
	return 0
}

type SierraEntryPoint struct {
	Index    uint64
	Selector *felt.Felt
}

// Cairo1Class carries a Sierra program. The compiled class hash committed to
// in the classes trie travels separately in the state diff.
type Cairo1Class struct {
	AbiHash     *felt.Felt
	EntryPoints struct {
		Constructor []SierraEntryPoint
		External    []SierraEntryPoint
		L1Handler   []SierraEntryPoint
	}
	Program         []*felt.Felt
	ProgramHash     *felt.Felt
	SemanticVersion string
}

func (c *Cairo1Class) Version() uint64 {
	return 1
}

// DeclaredClass is the database record for a declared class, remembering the
// height the declaration landed at.
type DeclaredClass struct {
	At    uint64
	Class Class
}
