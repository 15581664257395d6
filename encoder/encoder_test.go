package encoder_test

import (
	"bytes"
	"testing"

	"github.com/antiyro/starkroot/core"
	"github.com/antiyro/starkroot/core/felt"
	"github.com/antiyro/starkroot/encoder"
	_ "github.com/antiyro/starkroot/encoder/registry"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegisteredInterfaceRoundTrip(t *testing.T) {
	hash := new(felt.Felt).SetUint64(0xDEADBEEF)
	sig := []*felt.Felt{new(felt.Felt).SetUint64(1), new(felt.Felt).SetUint64(2)}

	transactions := []core.Transaction{
		&core.InvokeTransaction{TransactionHash: hash, TransactionSignature: sig},
		&core.DeployTransaction{TransactionHash: hash, ClassHash: new(felt.Felt).SetUint64(3)},
		&core.DeclareTransaction{TransactionHash: hash, TransactionSignature: sig},
	}

	data, err := encoder.Marshal(transactions)
	require.NoError(t, err)

	var decoded []core.Transaction
	require.NoError(t, encoder.Unmarshal(data, &decoded))
	require.Len(t, decoded, len(transactions))

	for i := range transactions {
		assert.IsType(t, transactions[i], decoded[i])
		assert.Equal(t, transactions[i].Hash(), decoded[i].Hash())
	}
}

func TestDeclaredClassRoundTrip(t *testing.T) {
	declared := core.DeclaredClass{
		At: 42,
		Class: &core.Cairo1Class{
			ProgramHash:     new(felt.Felt).SetUint64(7),
			Program:         []*felt.Felt{new(felt.Felt).SetUint64(8)},
			SemanticVersion: "0.1.0",
		},
	}

	data, err := encoder.Marshal(declared)
	require.NoError(t, err)

	var decoded core.DeclaredClass
	require.NoError(t, encoder.Unmarshal(data, &decoded))

	assert.Equal(t, declared.At, decoded.At)
	require.IsType(t, &core.Cairo1Class{}, decoded.Class)
	assert.Equal(t, uint64(1), decoded.Class.Version())
	assert.Equal(t, declared.Class.(*core.Cairo1Class).ProgramHash, decoded.Class.(*core.Cairo1Class).ProgramHash)
}

func TestStreamEncodeDecode(t *testing.T) {
	var buf bytes.Buffer

	enc := encoder.NewEncoder(&buf)
	for i := uint64(0); i < 3; i++ {
		require.NoError(t, enc.Encode(core.Event{
			From: new(felt.Felt).SetUint64(i),
			Keys: []*felt.Felt{new(felt.Felt).SetUint64(i + 1)},
		}))
	}

	dec := encoder.NewDecoder(&buf)
	for i := uint64(0); i < 3; i++ {
		var event core.Event
		require.NoError(t, dec.Decode(&event))
		assert.Equal(t, new(felt.Felt).SetUint64(i), event.From)
	}
}
