package crypto

import "github.com/antiyro/starkroot/core/felt"

// Digest is a running array hash over felts.
type Digest interface {
	Update(...*felt.Felt) Digest
	Finish() *felt.Felt
}
