package indexer

import (
	"context"
	"testing"

	"evm-contract-indexer/database"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSaveRangeIdempotent(t *testing.T) {
	ctx := context.Background()

	db, err := database.ConnectAndInitializeTestDB(database.TestDBPath(t.TempDir(), "persister.db"))
	require.NoError(t, err)

	require.NoError(t, database.UpsertContracts(db, []database.Contract{
		{Address: "22474d350ec2da53d717e30b96e9a2b7628ede5b", Name: "TestToken", IsActive: true},
	}))

	ci := &BlockIndexer{db: db}

	status := uint64(1)
	data := &rangeData{
		Blocks: []*database.Block{
			{Number: 10, Hash: "aa", ParentHash: "09", Timestamp: 1000},
			{Number: 11, Hash: "bb", ParentHash: "aa", Timestamp: 1001},
		},
		Transactions: []*database.Transaction{
			{Hash: "t1", BlockNumber: 10, ToAddress: "22474d350ec2da53d717e30b96e9a2b7628ede5b", Status: &status},
		},
		Events: []*database.Event{
			{TransactionHash: "t1", BlockNumber: 10, LogIndex: 0, EventName: "Transfer"},
			{TransactionHash: "t1", BlockNumber: 10, LogIndex: 1, EventName: "Approval"},
		},
		FunctionCalls: []*database.FunctionCall{
			{TransactionHash: "t1", FunctionName: "transfer", Success: true},
		},
	}

	require.NoError(t, ci.saveRange(ctx, data, 11))

	// replaying the identical range must not duplicate any row
	require.NoError(t, ci.saveRange(ctx, data, 11))

	var count int64
	require.NoError(t, db.Model(&database.Block{}).Count(&count).Error)
	assert.Equal(t, int64(2), count)
	require.NoError(t, db.Model(&database.Transaction{}).Count(&count).Error)
	assert.Equal(t, int64(1), count)
	require.NoError(t, db.Model(&database.Event{}).Count(&count).Error)
	assert.Equal(t, int64(2), count)
	require.NoError(t, db.Model(&database.FunctionCall{}).Count(&count).Error)
	assert.Equal(t, int64(1), count)

	// replay with changed content overwrites in place
	data.Events[0].EventName = "TokenMoved"
	require.NoError(t, ci.saveRange(ctx, data, 11))

	var event database.Event
	require.NoError(t, db.First(&event, "transaction_hash = ? AND log_index = ?", "t1", 0).Error)
	assert.Equal(t, "TokenMoved", event.EventName)

	state, err := database.FetchState(db, database.LastIndexedBlockState)
	require.NoError(t, err)
	assert.Equal(t, uint64(11), state.Value)

	var contract database.Contract
	require.NoError(t, db.First(&contract, "address = ?", "22474d350ec2da53d717e30b96e9a2b7628ede5b").Error)
	assert.Equal(t, uint64(11), contract.LastIndexedBlock)
}

func TestSaveRangeCommitsDuringShutdown(t *testing.T) {
	db, err := database.ConnectAndInitializeTestDB(database.TestDBPath(t.TempDir(), "shutdown.db"))
	require.NoError(t, err)

	ci := &BlockIndexer{db: db}

	data := &rangeData{
		Blocks: []*database.Block{
			{Number: 20, Hash: "cc", ParentHash: "bb", Timestamp: 2000},
		},
	}

	// a cancelled context models a stop signal arriving after the range
	// was processed; the commit still lands
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	require.NoError(t, ci.saveRange(ctx, data, 20))

	var block database.Block
	require.NoError(t, db.First(&block, "number = ?", 20).Error)
	assert.Equal(t, "cc", block.Hash)

	state, err := database.FetchState(db, database.LastIndexedBlockState)
	require.NoError(t, err)
	assert.Equal(t, uint64(20), state.Value)
}
