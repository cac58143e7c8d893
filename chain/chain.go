// Package chain provides read-only access to the chain-data source. The
// indexer only ever consumes the Reader interface, so tests and future node
// failover layers can substitute the implementation.
package chain

import (
	"context"
	"math/big"

	"evm-contract-indexer/config"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/pkg/errors"
)

// Reader is the chain-data collaborator consumed by the pipeline.
type Reader interface {
	// HeadHeight returns the number of the latest block known to the node.
	HeadHeight(ctx context.Context) (uint64, error)

	// BlockByNumber returns the full block, transactions included. A nil
	// number requests the latest block.
	BlockByNumber(ctx context.Context, number *big.Int) (*types.Block, error)

	// TransactionReceipt returns the receipt of a mined transaction.
	TransactionReceipt(ctx context.Context, txHash common.Hash) (*types.Receipt, error)

	// FilterLogs returns logs matching the query, ordered by block number
	// and log index.
	FilterLogs(ctx context.Context, q ethereum.FilterQuery) ([]types.Log, error)

	// CodeAt returns the bytecode deployed at address, empty for EOAs.
	CodeAt(ctx context.Context, address common.Address) ([]byte, error)
}

// Client implements Reader on top of a single RPC node connection.
type Client struct {
	eth *ethclient.Client
}

func DialRPCNode(cfg config.ChainConfig) (*Client, error) {
	nodeURL, err := cfg.FullNodeURL()
	if err != nil {
		return nil, err
	}

	eth, err := ethclient.Dial(nodeURL.String())
	if err != nil {
		return nil, errors.Wrap(err, "ethclient.Dial")
	}

	return &Client{eth: eth}, nil
}

// NewClient wraps an existing ethclient connection.
func NewClient(eth *ethclient.Client) *Client {
	return &Client{eth: eth}
}

func (c *Client) HeadHeight(ctx context.Context) (uint64, error) {
	return c.eth.BlockNumber(ctx)
}

func (c *Client) BlockByNumber(ctx context.Context, number *big.Int) (*types.Block, error) {
	return c.eth.BlockByNumber(ctx, number)
}

func (c *Client) TransactionReceipt(ctx context.Context, txHash common.Hash) (*types.Receipt, error) {
	return c.eth.TransactionReceipt(ctx, txHash)
}

func (c *Client) FilterLogs(ctx context.Context, q ethereum.FilterQuery) ([]types.Log, error) {
	return c.eth.FilterLogs(ctx, q)
}

func (c *Client) CodeAt(ctx context.Context, address common.Address) ([]byte, error) {
	return c.eth.CodeAt(ctx, address, nil)
}
