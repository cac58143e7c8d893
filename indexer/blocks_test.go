package indexer

import (
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/core/types"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testBlock(number uint64) *types.Block {
	return types.NewBlockWithHeader(&types.Header{Number: new(big.Int).SetUint64(number)})
}

func TestContiguousPrefix(t *testing.T) {
	t.Run("allResolved", func(t *testing.T) {
		results := []blockResult{
			{number: 10, block: testBlock(10)},
			{number: 11, block: testBlock(11)},
		}

		blocks, failed := contiguousPrefix(results)
		require.Nil(t, failed)
		require.Len(t, blocks, 2)
		assert.Equal(t, uint64(10), blocks[0].NumberU64())
		assert.Equal(t, uint64(11), blocks[1].NumberU64())
	})

	t.Run("gapInTheMiddle", func(t *testing.T) {
		results := []blockResult{
			{number: 10, block: testBlock(10)},
			{number: 11, err: errors.New("unavailable")},
			{number: 12, block: testBlock(12)},
		}

		blocks, failed := contiguousPrefix(results)
		require.NotNil(t, failed)
		assert.Equal(t, uint64(11), failed.number)

		// block 12 is resolved but stranded behind the gap
		require.Len(t, blocks, 1)
		assert.Equal(t, uint64(10), blocks[0].NumberU64())
	})

	t.Run("firstBlockFailed", func(t *testing.T) {
		results := []blockResult{
			{number: 10, err: errors.New("unavailable")},
			{number: 11, block: testBlock(11)},
		}

		blocks, failed := contiguousPrefix(results)
		require.NotNil(t, failed)
		assert.Equal(t, uint64(10), failed.number)
		assert.Empty(t, blocks)
	})
}

func TestConvertBlockToDB(t *testing.T) {
	header := &types.Header{
		Number:     big.NewInt(42),
		Time:       1_700_000_123,
		GasLimit:   30_000_000,
		GasUsed:    21_000,
		Difficulty: big.NewInt(7),
	}
	block := types.NewBlockWithHeader(header)

	entity := convertBlockToDB(block)
	assert.Equal(t, uint64(42), entity.Number)
	assert.Equal(t, block.Hash().Hex()[2:], entity.Hash)
	assert.Equal(t, uint64(1_700_000_123), entity.Timestamp)
	assert.Equal(t, uint64(7), entity.Difficulty)
	assert.Equal(t, uint64(0), entity.TransactionCount)
	assert.Len(t, entity.Hash, 64)
	assert.Len(t, entity.Miner, 40)
}
