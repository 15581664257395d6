package core

import (
	"testing"

	"github.com/antiyro/starkroot/core/felt"
	"github.com/antiyro/starkroot/db"
	"github.com/antiyro/starkroot/utils"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestContractAddress(t *testing.T) {
	tests := []struct {
		callerAddress       *felt.Felt
		classHash           *felt.Felt
		salt                *felt.Felt
		constructorCallData []*felt.Felt
		want                *felt.Felt
	}{
		{
			// https://alpha-mainnet.starknet.io/feeder_gateway/get_transaction?transactionHash=0x6486c6303dba2f364c684a2e9609211c5b8e417e767f37b527cda51e776e6f0
			callerAddress: utils.HexToFelt(t, "0x0000000000000000000000000000000000000000"),
			classHash:     utils.HexToFelt(t, "0x46f844ea1a3b3668f81d38b5c1bd55e816e0373802aefe732138628f0133486"),
			salt:          utils.HexToFelt(t, "0x74dc2fe193daf1abd8241b63329c1123214842b96ad7fd003d25512598a956b"),
			constructorCallData: []*felt.Felt{
				utils.HexToFelt(t, "0x6d706cfbac9b8262d601c38251c5fbe0497c3a96cc91a92b08d91b61d9e70c4"),
				utils.HexToFelt(t, "0x79dc0da7c54b95f10aa182ad0a46400db63156920adb65eca2654c0945a463"),
				utils.HexToFelt(t, "0x2"),
				utils.HexToFelt(t, "0x6658165b4984816ab189568637bedec5aa0a18305909c7f5726e4a16e3afef6"),
				utils.HexToFelt(t, "0x6b648b36b074a91eee55730f5f5e075ec19c0a8f9ffb0903cefeee93b6ff328"),
			},
			want: utils.HexToFelt(t, "0x3ec215c6c9028ff671b46a2a9814970ea23ed3c4bcc3838c6d1dcbf395263c3"),
		},
	}

	for _, tt := range tests {
		t.Run("Address", func(t *testing.T) {
			address := ContractAddress(tt.callerAddress, tt.classHash, tt.salt, tt.constructorCallData)
			if !address.Equal(tt.want) {
				t.Errorf("wrong address: got %s, want %s", address.String(), tt.want.String())
			}
		})
	}
}

func TestNewContractUpdater(t *testing.T) {
	txn := db.NewMemTransaction()

	t.Run("contract not deployed returns ErrContractNotDeployed", func(t *testing.T) {
		addr, err := new(felt.Felt).SetRandom()
		require.NoError(t, err)

		_, err = NewContractUpdater(addr, txn)
		require.ErrorIs(t, err, ErrContractNotDeployed)
	})

	t.Run("deployed contract returns updater", func(t *testing.T) {
		addr, err := new(felt.Felt).SetRandom()
		require.NoError(t, err)
		classHash, err := new(felt.Felt).SetRandom()
		require.NoError(t, err)

		_, err = DeployContract(addr, classHash, txn)
		require.NoError(t, err)

		updater, err := NewContractUpdater(addr, txn)
		require.NoError(t, err)
		require.NotNil(t, updater)
		require.Equal(t, addr, updater.Address)
	})

	t.Run("deploying a deployed contract returns ErrContractAlreadyDeployed", func(t *testing.T) {
		addr := new(felt.Felt).SetUint64(44)
		classHash := new(felt.Felt).SetUint64(37)

		_, err := DeployContract(addr, classHash, txn)
		require.NoError(t, err)

		_, err = DeployContract(addr, classHash, txn)
		require.ErrorIs(t, err, ErrContractAlreadyDeployed)
	})
}

func TestContractDeploy(t *testing.T) {
	txn := db.NewMemTransaction()
	addr := new(felt.Felt).SetUint64(1)
	classHash := new(felt.Felt).SetUint64(2)

	contract, err := DeployContract(addr, classHash, txn)
	require.NoError(t, err)

	t.Run("class hash is persisted", func(t *testing.T) {
		got, cErr := ContractClassHash(addr, txn)
		require.NoError(t, cErr)
		assert.Equal(t, classHash, got)
	})

	t.Run("nonce starts at zero", func(t *testing.T) {
		nonce, nErr := ContractNonce(addr, txn)
		require.NoError(t, nErr)
		assert.Equal(t, &felt.Zero, nonce)
	})

	t.Run("storage root starts empty", func(t *testing.T) {
		root, rErr := ContractRoot(addr, txn)
		require.NoError(t, rErr)
		assert.Equal(t, new(felt.Felt), root)
	})

	t.Run("replace changes the class hash", func(t *testing.T) {
		replaceWith := new(felt.Felt).SetUint64(7)
		require.NoError(t, contract.Replace(replaceWith))

		got, cErr := ContractClassHash(addr, txn)
		require.NoError(t, cErr)
		assert.Equal(t, replaceWith, got)
	})

	t.Run("update nonce", func(t *testing.T) {
		newNonce := new(felt.Felt).SetUint64(10)
		require.NoError(t, contract.UpdateNonce(newNonce))

		nonce, nErr := ContractNonce(addr, txn)
		require.NoError(t, nErr)
		assert.Equal(t, newNonce, nonce)
	})
}

func TestContractUpdateStorage(t *testing.T) {
	txn := db.NewMemTransaction()

	oneAddr := new(felt.Felt).SetUint64(1)
	otherAddr := new(felt.Felt).SetUint64(2)
	classHash := new(felt.Felt).SetUint64(11)

	one, err := DeployContract(oneAddr, classHash, txn)
	require.NoError(t, err)
	other, err := DeployContract(otherAddr, classHash, txn)
	require.NoError(t, err)

	slot := *new(felt.Felt).SetUint64(5)
	value := new(felt.Felt).SetUint64(7)

	require.NoError(t, one.UpdateStorage(map[felt.Felt]*felt.Felt{slot: value}))

	t.Run("stored value is readable", func(t *testing.T) {
		got, sErr := ContractStorage(oneAddr, &slot, txn)
		require.NoError(t, sErr)
		assert.Equal(t, value, got)
	})

	t.Run("storage tries are isolated per contract", func(t *testing.T) {
		got, sErr := ContractStorage(otherAddr, &slot, txn)
		require.NoError(t, sErr)
		assert.True(t, got.IsZero())

		otherRoot, rErr := ContractRoot(otherAddr, txn)
		require.NoError(t, rErr)
		assert.True(t, otherRoot.IsZero())
	})

	t.Run("same diff produces the same root", func(t *testing.T) {
		require.NoError(t, other.UpdateStorage(map[felt.Felt]*felt.Felt{slot: value}))

		oneRoot, rErr := ContractRoot(oneAddr, txn)
		require.NoError(t, rErr)
		otherRoot, rErr := ContractRoot(otherAddr, txn)
		require.NoError(t, rErr)
		assert.Equal(t, oneRoot, otherRoot)
	})

	t.Run("writing zero clears the slot", func(t *testing.T) {
		require.NoError(t, one.UpdateStorage(map[felt.Felt]*felt.Felt{slot: new(felt.Felt)}))

		root, rErr := ContractRoot(oneAddr, txn)
		require.NoError(t, rErr)
		assert.True(t, root.IsZero())
	})
}
