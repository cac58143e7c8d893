package indexer

import (
	"context"
	"encoding/hex"
	"strings"
	"sync"

	"evm-contract-indexer/boff"
	"evm-contract-indexer/config"
	"evm-contract-indexer/database"
	"evm-contract-indexer/logger"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/pkg/errors"
)

// trackedTransaction is a transaction addressed to a tracked contract,
// together with its block and, once fetched, its receipt. A nil receipt
// after fetchReceipts means the receipt could not be obtained; the
// transaction is still persisted best-effort.
type trackedTransaction struct {
	tx      *types.Transaction
	block   *types.Block
	index   uint64
	receipt *types.Receipt
}

type transactionsBatch struct {
	transactions []*trackedTransaction
}

// filterBlocks keeps only transactions whose to-address is in the tracked
// set. Everything else is discarded here, before any receipt fetch, to
// avoid wasted RPC calls. Contract creations (nil to) are never tracked.
func (ci *BlockIndexer) filterBlocks(blocks []*types.Block) *transactionsBatch {
	batch := &transactionsBatch{}

	for _, block := range blocks {
		for txIndex, tx := range block.Transactions() {
			to := tx.To()
			if to == nil {
				continue
			}
			if _, ok := ci.tracked[toDBAddress(*to)]; !ok {
				continue
			}

			batch.transactions = append(batch.transactions, &trackedTransaction{
				tx:    tx,
				block: block,
				index: uint64(txIndex),
			})
		}
	}

	return batch
}

// fetchReceipts retrieves receipts for all tracked transactions, at most
// sub-batch-width concurrently, settle-all. A failed receipt leaves the
// transaction's receipt nil and is only logged: the transaction itself is
// already confirmed, so it is persisted with NULL status rather than
// dropped.
func (ci *BlockIndexer) fetchReceipts(ctx context.Context, batch *transactionsBatch) {
	width := int(ci.params.SubBatchSize)

	for start := 0; start < len(batch.transactions); start += width {
		stop := min(start+width, len(batch.transactions))

		var wg sync.WaitGroup
		for i := start; i < stop; i++ {
			wg.Add(1)
			go func(tt *trackedTransaction) {
				defer wg.Done()

				receipt, err := ci.fetchReceipt(ctx, tt.tx.Hash())
				if err != nil {
					logger.Warn("receipt for transaction %s unavailable: %s", tt.tx.Hash().Hex(), err)
					return
				}
				tt.receipt = receipt
			}(batch.transactions[i])
		}
		wg.Wait()
	}
}

func (ci *BlockIndexer) fetchReceipt(ctx context.Context, txHash common.Hash) (*types.Receipt, error) {
	return boff.RetryWithMaxTries(
		ctx,
		func() (*types.Receipt, error) {
			ctx, cancelFunc := context.WithTimeout(ctx, config.Timeout)
			defer cancelFunc()

			return ci.client.TransactionReceipt(ctx, txHash)
		},
		"TransactionReceipt",
		config.BackoffMaxTries,
	)
}

// processTransactions converts the batch into DB rows: one transactions row
// per tracked transaction and, where the input is non-empty and a receipt
// exists, one function_calls row keyed by the transaction hash.
func (ci *BlockIndexer) processTransactions(batch *transactionsBatch) ([]*database.Transaction, []*database.FunctionCall, error) {
	txRows := make([]*database.Transaction, 0, len(batch.transactions))
	callRows := make([]*database.FunctionCall, 0)

	for _, tt := range batch.transactions {
		tx, block := tt.tx, tt.block

		fromAddress, err := types.Sender(types.LatestSignerForChainID(tx.ChainId()), tx)
		if err != nil {
			return nil, nil, errors.Wrap(err, "processTransactions: Sender")
		}

		contractAddress := toDBAddress(*tx.To())
		input := tx.Data()

		row := &database.Transaction{
			Hash:             toDBHash(tx.Hash()),
			BlockNumber:      block.NumberU64(),
			BlockHash:        toDBHash(block.Hash()),
			TransactionIndex: tt.index,
			FromAddress:      toDBAddress(fromAddress),
			ToAddress:        contractAddress,
			Value:            tx.Value().String(),
			GasPrice:         tx.GasPrice().String(),
			GasLimit:         tx.Gas(),
			Nonce:            tx.Nonce(),
			InputData:        hex.EncodeToString(input),
		}

		if tt.receipt != nil {
			status := tt.receipt.Status
			gasUsed := tt.receipt.GasUsed
			row.Status = &status
			row.GasUsed = &gasUsed
		}

		txRows = append(txRows, row)

		// Function-call extraction needs the selector and the receipt
		// status; without a receipt success cannot be derived.
		if len(input) < 4 || tt.receipt == nil {
			continue
		}

		selector := hex.EncodeToString(input[:4])
		callRows = append(callRows, &database.FunctionCall{
			TransactionHash:   row.Hash,
			ContractAddress:   contractAddress,
			FunctionSignature: selector,
			FunctionName:      ci.resolver.FunctionName(selector),
			InputData:         row.InputData,
			Success:           tt.receipt.Status == types.ReceiptStatusSuccessful,
		})
	}

	return txRows, callRows, nil
}

func toDBAddress(address common.Address) string {
	return strings.ToLower(address.Hex()[2:])
}

func toDBHash(hash common.Hash) string {
	return hash.Hex()[2:]
}

func countReceipts(batch *transactionsBatch) int {
	i := 0
	for _, tt := range batch.transactions {
		if tt.receipt != nil {
			i++
		}
	}

	return i
}
