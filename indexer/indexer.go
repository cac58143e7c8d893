package indexer

import (
	"context"
	"sync/atomic"
	"time"

	"evm-contract-indexer/boff"
	"evm-contract-indexer/chain"
	"evm-contract-indexer/config"
	"evm-contract-indexer/database"
	"evm-contract-indexer/indexer/names"
	"evm-contract-indexer/logger"

	"github.com/ethereum/go-ethereum/common"
	"github.com/pkg/errors"
	"gorm.io/gorm"
)

const notificationsBuffer = 64

// BlockIndexer drives the pipeline: once per tick it computes the next
// confirmation-safe range, fetches and processes it, commits it atomically
// and only then advances the cursor. Ranges are strictly serialized - there
// is never more than one in flight.
type BlockIndexer struct {
	db       *gorm.DB
	params   config.IndexerConfig
	client   chain.Reader
	resolver names.Resolver

	tracked      map[string]string // normalized address -> display name
	trackedAddrs []common.Address

	cursor  atomic.Uint64
	head    atomic.Uint64
	running atomic.Bool

	counters      Counters
	notifications chan RangeCommitted
}

// Counters are informational running totals, not correctness-critical.
type Counters struct {
	Blocks        atomic.Uint64
	Transactions  atomic.Uint64
	Events        atomic.Uint64
	FunctionCalls atomic.Uint64
}

// RangeCommitted is published on the notifications channel after each
// successful commit. Replaces listener registration with an explicit
// stream; slow consumers lose messages rather than stalling the pipeline.
type RangeCommitted struct {
	From, To      uint64
	Blocks        int
	Transactions  int
	Events        int
	FunctionCalls int
}

// Status is a point-in-time snapshot of the driver.
type Status struct {
	Cursor  uint64
	Head    uint64
	Lag     int64
	Running bool
}

func CreateBlockIndexer(cfg *config.Config, db *gorm.DB, client chain.Reader, resolver names.Resolver) *BlockIndexer {
	ci := &BlockIndexer{
		db:            db,
		params:        cfg.Indexer,
		client:        client,
		resolver:      resolver,
		tracked:       make(map[string]string),
		notifications: make(chan RangeCommitted, notificationsBuffer),
	}

	if ci.params.BatchSize == 0 {
		ci.params.BatchSize = config.BatchSizeDefault
	}
	if ci.params.SubBatchSize == 0 {
		ci.params.SubBatchSize = config.SubBatchSizeDefault
	}
	if ci.params.PollIntervalMillis == 0 {
		ci.params.PollIntervalMillis = config.PollIntervalDefault
	}
	if ci.params.FailureBackoffMillis == 0 {
		ci.params.FailureBackoffMillis = config.FailureBackoffDefault
	}

	for _, contract := range cfg.Indexer.Contracts {
		ci.tracked[contract.Address] = contract.Name
		ci.trackedAddrs = append(ci.trackedAddrs, common.HexToAddress(contract.Address))
	}

	return ci
}

// Init seeds the contract registry and the cursor. Must be called once
// before Run.
func (ci *BlockIndexer) Init(ctx context.Context) error {
	if err := ci.seedContracts(ctx); err != nil {
		return errors.Wrap(err, "Init")
	}
	if err := ci.seedCursor(ctx); err != nil {
		return errors.Wrap(err, "Init")
	}

	logger.Info("Indexer initialized: %d tracked contracts, cursor at block %d", len(ci.tracked), ci.cursor.Load())

	return nil
}

// seedContracts classifies each tracked address via its deployed code and
// upserts the registry. An address without code is tracked but flagged
// inactive; it is a configuration smell, not a fatal error.
func (ci *BlockIndexer) seedContracts(ctx context.Context) error {
	contracts := make([]database.Contract, 0, len(ci.trackedAddrs))

	for _, address := range ci.trackedAddrs {
		code, err := boff.RetryWithMaxTries(
			ctx,
			func() ([]byte, error) {
				ctx, cancelFunc := context.WithTimeout(ctx, config.Timeout)
				defer cancelFunc()

				return ci.client.CodeAt(ctx, address)
			},
			"CodeAt",
			config.BackoffMaxTries,
		)
		if err != nil {
			return errors.Wrap(err, "seedContracts")
		}

		normalized := toDBAddress(address)
		if len(code) == 0 {
			logger.Warn("address %s has no deployed code, marking inactive", normalized)
		}

		contracts = append(contracts, database.Contract{
			Address:  normalized,
			Name:     ci.tracked[normalized],
			IsActive: len(code) > 0,
		})
	}

	return database.UpsertContracts(ci.db, contracts)
}

// seedCursor resolves the resumption point, in priority order: an explicit
// configured start block, the current head ("latest"), or the persisted
// last_indexed_block. The explicit modes are the only sanctioned way to
// move the cursor backwards.
//
// "latest" deliberately seeds at head minus confirmations rather than the
// raw head: the cursor must never sit above the confirmation boundary, and
// this way the first proposed range is immediately eligible.
func (ci *BlockIndexer) seedCursor(ctx context.Context) error {
	mode, err := ci.params.StartMode()
	if err != nil {
		return err
	}

	switch {
	case mode.Latest:
		head, err := ci.headHeight(ctx)
		if err != nil {
			return errors.Wrap(err, "seedCursor")
		}

		cursor := uint64(0)
		if head > ci.params.Confirmations {
			cursor = head - ci.params.Confirmations
		}
		ci.cursor.Store(cursor)

	case mode.Resume:
		state, err := database.FetchState(ci.db, database.LastIndexedBlockState)
		if err != nil {
			return errors.Wrap(err, "seedCursor")
		}
		ci.cursor.Store(state.Value)

	default:
		cursor := uint64(0)
		if mode.Block > 0 {
			cursor = mode.Block - 1
		}
		ci.cursor.Store(cursor)
	}

	return database.UpsertState(ci.db, database.LastIndexedBlockState, ci.cursor.Load())
}

// Run executes the cooperative driver loop until ctx is cancelled. Ticks
// are serialized: a tick that is still running when the timer fires simply
// absorbs the missed tick instead of overlapping it. A failed tick logs,
// sleeps the failure backoff and leaves the cursor untouched, so the next
// tick recomputes the same range.
func (ci *BlockIndexer) Run(ctx context.Context) error {
	ci.running.Store(true)
	defer ci.running.Store(false)

	interval := time.Duration(ci.params.PollIntervalMillis) * time.Millisecond
	failureBackoff := time.Duration(ci.params.FailureBackoffMillis) * time.Millisecond

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		if err := ci.tick(ctx); err != nil {
			if ctx.Err() != nil {
				return nil
			}

			logger.Error("Indexing tick failed: %s", err)

			select {
			case <-ctx.Done():
				return nil
			case <-time.After(failureBackoff):
			}
		}

		// Drop a tick that fired while this one ran.
		select {
		case <-ticker.C:
		default:
		}

		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}

// RunOnce processes at most one range and reports whether there was
// anything to do.
func (ci *BlockIndexer) RunOnce(ctx context.Context) (bool, error) {
	return ci.runRange(ctx)
}

func (ci *BlockIndexer) tick(ctx context.Context) error {
	processed, err := ci.runRange(ctx)
	if err != nil {
		return err
	}
	if !processed {
		logger.Debug("Up to date, cursor at block %d", ci.cursor.Load())
	}

	return nil
}

func (ci *BlockIndexer) runRange(ctx context.Context) (bool, error) {
	head, err := ci.headHeight(ctx)
	if err != nil {
		return false, errors.Wrap(err, "headHeight")
	}
	ci.head.Store(head)

	if err := database.UpsertState(ci.db, database.LastChainBlockState, head); err != nil {
		return false, err
	}

	r, ok := nextRange(ci.cursor.Load(), head, ci.params.Confirmations, ci.params.BatchSize)
	if !ok {
		return false, nil
	}

	startTime := time.Now()

	results := ci.fetchRange(ctx, r)
	blocks, failed := contiguousPrefix(results)
	if failed != nil {
		if len(blocks) == 0 {
			return false, errors.Wrapf(failed.err, "block %d unavailable after retries", failed.number)
		}

		// Commit only the contiguous prefix; the cursor must not advance
		// past the gap. The next tick retries from the failed block.
		r.to = blocks[len(blocks)-1].NumberU64()
		logger.Warn(
			"Block %d unavailable after retries (%s), truncating range to [%d, %d]",
			failed.number, failed.err, r.from, r.to,
		)
	}

	txBatch := ci.filterBlocks(blocks)
	ci.fetchReceipts(ctx, txBatch)

	logs, err := ci.requestLogs(ctx, r)
	if err != nil {
		return false, errors.Wrap(err, "requestLogs")
	}

	data := &rangeData{
		Blocks: make([]*database.Block, len(blocks)),
		Events: ci.processLogs(logs),
	}
	for i, block := range blocks {
		data.Blocks[i] = convertBlockToDB(block)
	}
	data.Transactions, data.FunctionCalls, err = ci.processTransactions(txBatch)
	if err != nil {
		return false, err
	}

	if err := ci.saveRange(ctx, data, r.to); err != nil {
		return false, err
	}

	// Commit confirmed durable - only now may the cursor move.
	ci.cursor.Store(r.to)

	ci.counters.Blocks.Add(uint64(len(data.Blocks)))
	ci.counters.Transactions.Add(uint64(len(data.Transactions)))
	ci.counters.Events.Add(uint64(len(data.Events)))
	ci.counters.FunctionCalls.Add(uint64(len(data.FunctionCalls)))

	ci.notify(RangeCommitted{
		From:          r.from,
		To:            r.to,
		Blocks:        len(data.Blocks),
		Transactions:  len(data.Transactions),
		Events:        len(data.Events),
		FunctionCalls: len(data.FunctionCalls),
	})

	logger.Info(
		"Committed blocks %d to %d (%d transactions with %d receipts, %d events) in %d milliseconds",
		r.from, r.to, len(data.Transactions), countReceipts(txBatch), len(data.Events),
		time.Since(startTime).Milliseconds(),
	)

	return true, nil
}

func (ci *BlockIndexer) headHeight(ctx context.Context) (uint64, error) {
	return boff.RetryWithMaxTries(
		ctx,
		func() (uint64, error) {
			ctx, cancelFunc := context.WithTimeout(ctx, config.Timeout)
			defer cancelFunc()

			return ci.client.HeadHeight(ctx)
		},
		"HeadHeight",
		config.BackoffMaxTries,
	)
}

func (ci *BlockIndexer) notify(msg RangeCommitted) {
	select {
	case ci.notifications <- msg:
	default:
		logger.Debug("Notifications channel full, dropping commit message for range [%d, %d]", msg.From, msg.To)
	}
}

// Notifications is the stream of committed ranges for downstream consumers.
func (ci *BlockIndexer) Notifications() <-chan RangeCommitted {
	return ci.notifications
}

func (ci *BlockIndexer) Status() Status {
	cursor := ci.cursor.Load()
	head := ci.head.Load()

	return Status{
		Cursor:  cursor,
		Head:    head,
		Lag:     int64(head) - int64(cursor),
		Running: ci.running.Load(),
	}
}

// Totals reports the informational processing counters.
func (ci *BlockIndexer) Totals() (blocks, transactions, events, functionCalls uint64) {
	return ci.counters.Blocks.Load(),
		ci.counters.Transactions.Load(),
		ci.counters.Events.Load(),
		ci.counters.FunctionCalls.Load()
}
