package database

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

func testDB(t *testing.T) *gorm.DB {
	t.Helper()

	db, err := ConnectAndInitializeTestDB(TestDBPath(t.TempDir(), "states.db"))
	require.NoError(t, err)

	return db
}

func TestStatesSeededOnInitialize(t *testing.T) {
	db := testDB(t)

	for _, key := range StateKeys {
		state, err := FetchState(db, key)
		require.NoError(t, err)
		assert.Equal(t, key, state.Key)
		assert.Equal(t, uint64(0), state.Value)
	}
}

func TestUpsertState(t *testing.T) {
	db := testDB(t)

	require.NoError(t, UpsertState(db, LastIndexedBlockState, 42))

	state, err := FetchState(db, LastIndexedBlockState)
	require.NoError(t, err)
	assert.Equal(t, uint64(42), state.Value)

	require.NoError(t, UpsertState(db, LastIndexedBlockState, 43))

	state, err = FetchState(db, LastIndexedBlockState)
	require.NoError(t, err)
	assert.Equal(t, uint64(43), state.Value)

	// upserts never duplicate the key
	var count int64
	require.NoError(t, db.Model(&State{}).Where("key = ?", LastIndexedBlockState).Count(&count).Error)
	assert.Equal(t, int64(1), count)
}

func TestFetchStateMissingKey(t *testing.T) {
	db := testDB(t)

	_, err := FetchState(db, "no_such_key")
	assert.Error(t, err)
}

func TestUpsertContracts(t *testing.T) {
	db := testDB(t)

	contracts := []Contract{
		{Address: "22474d350ec2da53d717e30b96e9a2b7628ede5b", Name: "TestToken", IsActive: true},
		{Address: "b682deef4f8e298d86bfc3e21f50c675151fb974", Name: "Registry", IsActive: false},
	}
	require.NoError(t, UpsertContracts(db, contracts))

	// renaming a contract must not create a second row
	contracts[0].Name = "RenamedToken"
	require.NoError(t, UpsertContracts(db, contracts[:1]))

	var count int64
	require.NoError(t, db.Model(&Contract{}).Count(&count).Error)
	assert.Equal(t, int64(2), count)

	var contract Contract
	require.NoError(t, db.First(&contract, "address = ?", contracts[0].Address).Error)
	assert.Equal(t, "RenamedToken", contract.Name)
	assert.True(t, contract.IsActive)
}
