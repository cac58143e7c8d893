package indexer

import (
	"context"
	"math/big"
	"strings"
	"sync"

	"evm-contract-indexer/boff"
	"evm-contract-indexer/config"
	"evm-contract-indexer/database"

	"github.com/ethereum/go-ethereum/core/types"
)

// blockResult is the settled outcome of one block fetch: either a fully
// populated block or the error left after exhausting retries.
type blockResult struct {
	number uint64
	block  *types.Block
	err    error
}

// fetchRange retrieves all blocks of a range. The range is partitioned into
// sub-batches to bound the number of in-flight RPC calls; sub-batches run
// sequentially, blocks within one concurrently. Every block is observed
// (settle-all) - a failed block is reported in its result and does not
// abort its neighbours.
func (ci *BlockIndexer) fetchRange(ctx context.Context, r blockRange) []blockResult {
	results := make([]blockResult, 0, r.len())

	for from := r.from; from <= r.to; from += ci.params.SubBatchSize {
		to := min(from+ci.params.SubBatchSize-1, r.to)
		results = append(results, ci.fetchSubBatch(ctx, from, to)...)
	}

	return results
}

func (ci *BlockIndexer) fetchSubBatch(ctx context.Context, from, to uint64) []blockResult {
	results := make([]blockResult, to-from+1)

	var wg sync.WaitGroup
	for i := range results {
		number := from + uint64(i)
		wg.Add(1)
		go func(i int, number uint64) {
			defer wg.Done()

			block, err := ci.fetchBlock(ctx, number)
			results[i] = blockResult{number: number, block: block, err: err}
		}(i, number)
	}
	wg.Wait()

	return results
}

func (ci *BlockIndexer) fetchBlock(ctx context.Context, number uint64) (*types.Block, error) {
	return boff.RetryWithMaxTries(
		ctx,
		func() (*types.Block, error) {
			ctx, cancelFunc := context.WithTimeout(ctx, config.Timeout)
			defer cancelFunc()

			return ci.client.BlockByNumber(ctx, new(big.Int).SetUint64(number))
		},
		"BlockByNumber",
		config.BackoffMaxTries,
	)
}

// contiguousPrefix splits settled results into the blocks before the first
// unresolved failure and that failure itself. The cursor must never advance
// past a gap, so only the prefix is eligible for processing this tick.
func contiguousPrefix(results []blockResult) ([]*types.Block, *blockResult) {
	blocks := make([]*types.Block, 0, len(results))
	for i := range results {
		if results[i].err != nil {
			return blocks, &results[i]
		}
		blocks = append(blocks, results[i].block)
	}

	return blocks, nil
}

func convertBlockToDB(b *types.Block) *database.Block {
	difficulty := uint64(0)
	if d := b.Difficulty(); d != nil && d.IsUint64() {
		difficulty = d.Uint64()
	}

	return &database.Block{
		Number:           b.NumberU64(),
		Hash:             toDBHash(b.Hash()),
		ParentHash:       toDBHash(b.ParentHash()),
		Timestamp:        b.Time(),
		GasLimit:         b.GasLimit(),
		GasUsed:          b.GasUsed(),
		Miner:            strings.ToLower(b.Coinbase().Hex()[2:]),
		Difficulty:       difficulty,
		Size:             b.Size(),
		TransactionCount: uint64(len(b.Transactions())),
	}
}
