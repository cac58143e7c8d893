// Package testing provides an in-process JSON-RPC chain for tests: a mock
// node that serves synthetic blocks, receipts and logs to a real ethclient.
package testing

import (
	"crypto/ecdsa"
	"encoding/json"
	"fmt"
	"io"
	"math/big"
	"net/http"
	"strings"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/trie"
	"github.com/gorilla/mux"
)

var MockChainID = big.NewInt(4242)

const blockGasLimit = 30_000_000

// MockTx describes one transaction to include in a mock block.
type MockTx struct {
	Key    *ecdsa.PrivateKey
	To     common.Address
	Value  *big.Int
	Data   []byte
	Failed bool // receipt status 0

	// Logs emitted by the transaction; block positions are filled in by
	// AddBlock.
	Logs []MockLog

	// NoReceipt simulates a node that cannot serve the receipt.
	NoReceipt bool
}

type MockLog struct {
	Address common.Address
	Topics  []common.Hash
	Data    []byte
}

// MockChain is an HTTP JSON-RPC server backed by a synthetic chain built
// with go-ethereum types, so responses are bit-compatible with what a real
// node returns to ethclient.
type MockChain struct {
	mu sync.RWMutex

	router    *mux.Router
	blocks    map[uint64]*types.Block
	receipts  map[common.Hash]*types.Receipt
	noReceipt map[common.Hash]bool
	logs      []types.Log
	code      map[common.Address][]byte
	nonces    map[common.Address]uint64
	head      uint64

	// remaining injected failures per block number; -1 fails forever
	blockFailures map[uint64]int
}

func NewMockChain() *MockChain {
	m := &MockChain{
		blocks:        make(map[uint64]*types.Block),
		receipts:      make(map[common.Hash]*types.Receipt),
		noReceipt:     make(map[common.Hash]bool),
		code:          make(map[common.Address][]byte),
		nonces:        make(map[common.Address]uint64),
		blockFailures: make(map[uint64]int),
	}

	m.router = mux.NewRouter()
	m.router.HandleFunc("/", m.handleRPC)

	// genesis
	m.addBlock(nil)

	return m
}

func (m *MockChain) Handler() http.Handler {
	return m.router
}

func (m *MockChain) Head() uint64 {
	m.mu.RLock()
	defer m.mu.RUnlock()

	return m.head
}

func (m *MockChain) SetCode(address common.Address, code []byte) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.code[address] = code
}

// FailBlock makes eth_getBlockByNumber for the given block return an error
// the next `times` calls; times < 0 fails it forever.
func (m *MockChain) FailBlock(number uint64, times int) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.blockFailures[number] = times
}

// AddBlock appends one block containing the given transactions and returns
// it. Receipts and logs are generated alongside so that the block, its
// receipts and eth_getLogs stay mutually consistent.
func (m *MockChain) AddBlock(mockTxs ...MockTx) *types.Block {
	m.mu.Lock()
	defer m.mu.Unlock()

	return m.addBlock(mockTxs)
}

// AddEmptyBlocks appends n transaction-less blocks, e.g. to push a block
// past the confirmation boundary.
func (m *MockChain) AddEmptyBlocks(n int) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for i := 0; i < n; i++ {
		m.addBlock(nil)
	}
}

func (m *MockChain) addBlock(mockTxs []MockTx) *types.Block {
	number := uint64(0)
	parentHash := common.Hash{}
	if parent, ok := m.blocks[m.head]; ok {
		number = m.head + 1
		parentHash = parent.Hash()
	}

	signer := types.LatestSignerForChainID(MockChainID)

	var txs []*types.Transaction
	var receipts []*types.Receipt
	cumulativeGas := uint64(0)
	logIndex := uint(0)

	for _, mockTx := range mockTxs {
		from := crypto.PubkeyToAddress(mockTx.Key.PublicKey)
		nonce := m.nonces[from]
		m.nonces[from] = nonce + 1

		value := mockTx.Value
		if value == nil {
			value = big.NewInt(0)
		}

		tx, err := types.SignNewTx(mockTx.Key, signer, &types.LegacyTx{
			Nonce:    nonce,
			To:       &mockTx.To,
			Value:    value,
			Gas:      100_000,
			GasPrice: big.NewInt(1_000_000_000),
			Data:     mockTx.Data,
		})
		if err != nil {
			panic(fmt.Sprintf("mock chain: sign tx: %v", err))
		}

		gasUsed := uint64(21_000 + 100*len(mockTx.Data))
		cumulativeGas += gasUsed

		status := types.ReceiptStatusSuccessful
		if mockTx.Failed {
			status = types.ReceiptStatusFailed
		}

		receipt := &types.Receipt{
			Type:              types.LegacyTxType,
			Status:            status,
			CumulativeGasUsed: cumulativeGas,
			GasUsed:           gasUsed,
			TxHash:            tx.Hash(),
			Logs:              []*types.Log{},
		}

		for _, mockLog := range mockTx.Logs {
			receipt.Logs = append(receipt.Logs, &types.Log{
				Address: mockLog.Address,
				Topics:  mockLog.Topics,
				Data:    mockLog.Data,
				TxHash:  tx.Hash(),
				Index:   logIndex,
			})
			logIndex++
		}
		receipt.Bloom = types.CreateBloom(types.Receipts{receipt})

		txs = append(txs, tx)
		receipts = append(receipts, receipt)
	}

	header := &types.Header{
		ParentHash: parentHash,
		Coinbase:   common.HexToAddress("0x00000000000000000000000000000000000c0ffe"),
		Difficulty: big.NewInt(1),
		Number:     new(big.Int).SetUint64(number),
		GasLimit:   blockGasLimit,
		GasUsed:    cumulativeGas,
		Time:       1_700_000_000 + number,
		Extra:      []byte{},
	}

	block := types.NewBlock(header, txs, nil, receipts, trie.NewStackTrie(nil))

	for i, receipt := range receipts {
		receipt.BlockHash = block.Hash()
		receipt.BlockNumber = new(big.Int).SetUint64(number)
		receipt.TransactionIndex = uint(i)

		for _, log := range receipt.Logs {
			log.BlockNumber = number
			log.BlockHash = block.Hash()
			log.TxIndex = uint(i)
			m.logs = append(m.logs, *log)
		}

		if mockTxs[i].NoReceipt {
			m.noReceipt[receipt.TxHash] = true
		} else {
			m.receipts[receipt.TxHash] = receipt
		}
	}

	m.blocks[number] = block
	m.head = number

	return block
}


type rpcRequest struct {
	ID     json.RawMessage   `json:"id"`
	Method string            `json:"method"`
	Params []json.RawMessage `json:"params"`
}

func (m *MockChain) handleRPC(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(r.Body)
	if err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}

	var req rpcRequest
	if err := json.Unmarshal(body, &req); err != nil {
		http.Error(w, "invalid json", http.StatusBadRequest)
		return
	}

	result, rpcErr := m.dispatch(&req)

	w.Header().Set("Content-Type", "application/json")
	resp := map[string]interface{}{
		"jsonrpc": "2.0",
		"id":      req.ID,
	}
	if rpcErr != nil {
		resp["error"] = map[string]interface{}{"code": -32000, "message": rpcErr.Error()}
	} else {
		resp["result"] = result
	}

	if err := json.NewEncoder(w).Encode(resp); err != nil {
		fmt.Printf("mock chain: error writing response: %v\n", err)
	}
}

func (m *MockChain) dispatch(req *rpcRequest) (interface{}, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	switch req.Method {
	case "eth_chainId":
		return hexutil.EncodeBig(MockChainID), nil

	case "eth_blockNumber":
		return hexutil.EncodeUint64(m.head), nil

	case "eth_getBlockByNumber":
		var tag string
		if err := json.Unmarshal(req.Params[0], &tag); err != nil {
			return nil, err
		}

		number := m.head
		if tag != "latest" {
			parsed, err := hexutil.DecodeUint64(tag)
			if err != nil {
				return nil, err
			}
			number = parsed
		}

		if remaining, ok := m.blockFailures[number]; ok && remaining != 0 {
			if remaining > 0 {
				m.blockFailures[number] = remaining - 1
			}
			return nil, fmt.Errorf("injected failure for block %d", number)
		}

		block, ok := m.blocks[number]
		if !ok {
			return nil, nil // null result -> ethereum.NotFound
		}
		return marshalBlock(block)

	case "eth_getTransactionReceipt":
		var hash common.Hash
		if err := json.Unmarshal(req.Params[0], &hash); err != nil {
			return nil, err
		}

		if m.noReceipt[hash] {
			return nil, fmt.Errorf("injected failure for receipt %s", hash.Hex())
		}

		receipt, ok := m.receipts[hash]
		if !ok {
			return nil, nil
		}
		return receipt, nil

	case "eth_getLogs":
		var args filterArgs
		if err := json.Unmarshal(req.Params[0], &args); err != nil {
			return nil, err
		}
		return m.filterLogs(&args)

	case "eth_getCode":
		var address common.Address
		if err := json.Unmarshal(req.Params[0], &address); err != nil {
			return nil, err
		}
		return hexutil.Bytes(m.code[address]), nil

	default:
		return nil, fmt.Errorf("method %s not supported by mock chain", req.Method)
	}
}

type filterArgs struct {
	FromBlock string           `json:"fromBlock"`
	ToBlock   string           `json:"toBlock"`
	Address   []common.Address `json:"address"`
}

func (m *MockChain) filterLogs(args *filterArgs) ([]types.Log, error) {
	from, err := hexutil.DecodeUint64(args.FromBlock)
	if err != nil {
		return nil, err
	}
	to, err := hexutil.DecodeUint64(args.ToBlock)
	if err != nil {
		return nil, err
	}

	addresses := make(map[common.Address]bool, len(args.Address))
	for _, address := range args.Address {
		addresses[address] = true
	}

	matched := []types.Log{}
	for _, log := range m.logs {
		if log.BlockNumber < from || log.BlockNumber > to {
			continue
		}
		if len(addresses) > 0 && !addresses[log.Address] {
			continue
		}
		matched = append(matched, log)
	}

	return matched, nil
}

// marshalBlock renders a block the way a node does for eth_getBlockByNumber
// with full transactions: the header fields (the client recomputes the hash
// from them) plus the transaction objects with their block position.
func marshalBlock(block *types.Block) (map[string]interface{}, error) {
	headerJSON, err := json.Marshal(block.Header())
	if err != nil {
		return nil, err
	}

	var fields map[string]interface{}
	if err := json.Unmarshal(headerJSON, &fields); err != nil {
		return nil, err
	}

	fields["size"] = hexutil.EncodeUint64(block.Size())
	fields["uncles"] = []string{}

	signer := types.LatestSignerForChainID(MockChainID)

	txs := make([]map[string]interface{}, 0, len(block.Transactions()))
	for i, tx := range block.Transactions() {
		txJSON, err := tx.MarshalJSON()
		if err != nil {
			return nil, err
		}

		var txFields map[string]interface{}
		if err := json.Unmarshal(txJSON, &txFields); err != nil {
			return nil, err
		}

		from, err := types.Sender(signer, tx)
		if err != nil {
			return nil, err
		}

		txFields["blockHash"] = block.Hash().Hex()
		txFields["blockNumber"] = hexutil.EncodeUint64(block.NumberU64())
		txFields["transactionIndex"] = hexutil.EncodeUint64(uint64(i))
		txFields["from"] = strings.ToLower(from.Hex())

		txs = append(txs, txFields)
	}
	fields["transactions"] = txs

	return fields, nil
}
