package database

import (
	"context"
	"time"

	"evm-contract-indexer/boff"
	"evm-contract-indexer/chain"
	"evm-contract-indexer/config"
	"evm-contract-indexer/logger"

	"github.com/ethereum/go-ethereum/core/types"
	"github.com/pkg/errors"
	"gorm.io/gorm"
)

// DropHistory periodically deletes indexed data older than intervalSeconds,
// keeping the database bounded for long-running deployments. checkInterval
// is the sleep between iterations, in seconds.
func DropHistory(
	ctx context.Context, db *gorm.DB, intervalSeconds, checkInterval uint64, client chain.Reader,
) {
	for {
		startTime := time.Now()
		err := DropHistoryIteration(ctx, db, intervalSeconds, client)
		if err == nil || errors.Is(err, gorm.ErrRecordNotFound) {
			logger.Debug("finished DropHistory iteration in %v", time.Since(startTime))
		} else {
			logger.Error("DropHistory error: %s", err)
		}

		select {
		case <-ctx.Done():
			return
		case <-time.After(time.Duration(checkInterval) * time.Second):
		}
	}
}

func DropHistoryIteration(
	ctx context.Context, db *gorm.DB, intervalSeconds uint64, client chain.Reader,
) error {
	// Retention is not latency-sensitive, so the head fetch retries until
	// it succeeds or the service stops.
	latestBlock, err := boff.Retry(
		ctx,
		func() (*types.Block, error) {
			ctx, cancelFunc := context.WithTimeout(ctx, config.Timeout)
			defer cancelFunc()

			return client.BlockByNumber(ctx, nil)
		},
		"DropHistory: BlockByNumber",
	)
	if err != nil {
		return errors.Wrap(err, "Failed to get the latest block time")
	}

	if latestBlock.Time() < intervalSeconds {
		return nil
	}
	deleteStart := latestBlock.Time() - intervalSeconds

	// The lowest block that is still young enough to keep. Everything below
	// its number is dropped.
	var keepBlock Block
	err = db.Where("timestamp >= ?", deleteStart).Order("number").First(&keepBlock).Error
	if err != nil {
		return errors.Wrap(err, "Failed to find the retention cutoff block")
	}
	cutoff := keepBlock.Number

	err = db.Transaction(func(tx *gorm.DB) error {
		oldHashes := tx.Model(&Transaction{}).Select("hash").Where("block_number < ?", cutoff)
		if err := tx.Where("transaction_hash IN (?)", oldHashes).Delete(&FunctionCall{}).Error; err != nil {
			return err
		}
		if err := tx.Where("block_number < ?", cutoff).Delete(&Event{}).Error; err != nil {
			return err
		}
		if err := tx.Where("block_number < ?", cutoff).Delete(&Transaction{}).Error; err != nil {
			return err
		}
		if err := tx.Where("number < ?", cutoff).Delete(&Block{}).Error; err != nil {
			return err
		}

		return UpsertState(tx, FirstIndexedBlockState, cutoff)
	})
	if err != nil {
		return errors.Wrap(err, "Failed to delete historic data in the DB")
	}

	logger.Info("Deleted blocks below number %d", cutoff)

	return nil
}
