package indexer

import (
	"context"
	"encoding/hex"
	"math/big"
	"strings"

	"evm-contract-indexer/boff"
	"evm-contract-indexer/config"
	"evm-contract-indexer/database"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/core/types"
)

// requestLogs queries logs for the whole range in a single filtered call
// against the tracked address set. One range-wide query instead of one call
// per block keeps the RPC volume flat regardless of batch size.
func (ci *BlockIndexer) requestLogs(ctx context.Context, r blockRange) ([]types.Log, error) {
	query := ethereum.FilterQuery{
		FromBlock: new(big.Int).SetUint64(r.from),
		ToBlock:   new(big.Int).SetUint64(r.to),
		Addresses: ci.trackedAddrs,
	}

	return boff.RetryWithMaxTries(
		ctx,
		func() ([]types.Log, error) {
			ctx, cancelFunc := context.WithTimeout(ctx, config.Timeout)
			defer cancelFunc()

			return ci.client.FilterLogs(ctx, query)
		},
		"FilterLogs",
		config.BackoffMaxTries,
	)
}

// processLogs converts raw logs into event rows. topic0 is the event
// signature; a signature missing from the resolver tables yields the
// unknown sentinel, never an error.
func (ci *BlockIndexer) processLogs(logs []types.Log) []*database.Event {
	events := make([]*database.Event, 0, len(logs))

	for i := range logs {
		log := &logs[i]
		if log.Removed {
			continue
		}

		topics := make([]string, len(log.Topics))
		for j, topic := range log.Topics {
			topics[j] = toDBHash(topic)
		}

		signature := ""
		if len(topics) > 0 {
			signature = topics[0]
		}

		events = append(events, &database.Event{
			TransactionHash: toDBHash(log.TxHash),
			BlockNumber:     log.BlockNumber,
			BlockHash:       toDBHash(log.BlockHash),
			LogIndex:        uint64(log.Index),
			ContractAddress: toDBAddress(log.Address),
			EventSignature:  signature,
			EventName:       ci.resolver.EventName(signature),
			Topics:          strings.Join(topics, ","),
			Data:            hex.EncodeToString(log.Data),
		})
	}

	return events
}
