package core

import (
	"testing"

	"github.com/antiyro/starkroot/core/felt"
	"github.com/antiyro/starkroot/utils"
	"github.com/stretchr/testify/assert"
)

func TestSortedFeltKeys(t *testing.T) {
	big := utils.HexToFelt(t, "0x7fffffffffffffffffffffffffffffffffffffffffffffffffffffffffffff")

	m := map[felt.Felt]struct{}{
		*new(felt.Felt).SetUint64(5): {},
		*big:                         {},
		*new(felt.Felt).SetUint64(1): {},
		*new(felt.Felt):              {},
	}

	want := []felt.Felt{
		*new(felt.Felt),
		*new(felt.Felt).SetUint64(1),
		*new(felt.Felt).SetUint64(5),
		*big,
	}
	assert.Equal(t, want, sortedFeltKeys(m))
}

func TestEmptyStateDiff(t *testing.T) {
	diff := EmptyStateDiff()
	assert.NotNil(t, diff.StorageDiffs)
	assert.NotNil(t, diff.Nonces)
	assert.NotNil(t, diff.DeployedContracts)
	assert.NotNil(t, diff.DeclaredV1Classes)
	assert.NotNil(t, diff.ReplacedClasses)
	assert.Empty(t, diff.DeclaredV0Classes)
	assert.Equal(t, uint64(0), diff.Length())
}
