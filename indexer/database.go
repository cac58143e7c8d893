package indexer

import (
	"context"

	"evm-contract-indexer/database"

	"github.com/pkg/errors"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// rangeData is everything extracted from one processed range, ready to be
// committed as a unit.
type rangeData struct {
	Blocks        []*database.Block
	Transactions  []*database.Transaction
	Events        []*database.Event
	FunctionCalls []*database.FunctionCall
}

// saveRange commits all rows of a processed range and the cursor in a
// single database transaction: either the whole range lands, or nothing
// does and the cursor stays where it was. Every write is an upsert on the
// entity's natural key, so replaying an already-committed range is
// idempotent.
func (ci *BlockIndexer) saveRange(ctx context.Context, data *rangeData, to uint64) error {
	// A fully processed range runs its commit to completion even when
	// shutdown has begun; fetching and processing are the cancellation
	// points.
	ctx = context.WithoutCancel(ctx)

	err := ci.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if len(data.Blocks) > 0 {
			err := tx.Clauses(clause.OnConflict{
				Columns:   []clause.Column{{Name: "number"}},
				UpdateAll: true,
			}).Create(data.Blocks).Error
			if err != nil {
				return errors.Wrap(err, "blocks")
			}
		}

		if len(data.Transactions) > 0 {
			err := tx.Clauses(clause.OnConflict{
				Columns:   []clause.Column{{Name: "hash"}},
				UpdateAll: true,
			}).Create(data.Transactions).Error
			if err != nil {
				return errors.Wrap(err, "transactions")
			}
		}

		if len(data.Events) > 0 {
			err := tx.Clauses(clause.OnConflict{
				Columns:   []clause.Column{{Name: "transaction_hash"}, {Name: "log_index"}},
				UpdateAll: true,
			}).Create(data.Events).Error
			if err != nil {
				return errors.Wrap(err, "events")
			}
		}

		if len(data.FunctionCalls) > 0 {
			err := tx.Clauses(clause.OnConflict{
				Columns:   []clause.Column{{Name: "transaction_hash"}},
				UpdateAll: true,
			}).Create(data.FunctionCalls).Error
			if err != nil {
				return errors.Wrap(err, "function_calls")
			}
		}

		// Per-contract watermark, informational.
		err := tx.Model(&database.Contract{}).
			Where("is_active = ?", true).
			Update("last_indexed_block", to).Error
		if err != nil {
			return errors.Wrap(err, "contracts watermark")
		}

		return database.UpsertState(tx, database.LastIndexedBlockState, to)
	})

	return errors.Wrap(err, "saveRange")
}
