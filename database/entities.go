package database

// BaseEntity is an abstract entity, all other entities should be derived from it
type BaseEntity struct {
	ID uint64 `gorm:"primaryKey"`
}

// Block is one committed chain block. Rows are written only by the pipeline
// when a whole range commits and removed only by retention cleanup.
type Block struct {
	Number           uint64 `gorm:"primaryKey;autoIncrement:false"`
	Hash             string `gorm:"type:varchar(64);uniqueIndex"`
	ParentHash       string `gorm:"type:varchar(64)"`
	Timestamp        uint64 `gorm:"index"`
	GasLimit         uint64
	GasUsed          uint64
	Miner            string `gorm:"type:varchar(40)"`
	Difficulty       uint64
	Size             uint64
	TransactionCount uint64
}

func (Block) TableName() string {
	return "blocks"
}

// Transaction holds only transactions addressed to a tracked contract.
// Status and GasUsed stay NULL when the receipt could not be fetched.
type Transaction struct {
	BaseEntity
	Hash             string `gorm:"type:varchar(64);uniqueIndex"`
	BlockNumber      uint64 `gorm:"index"`
	BlockHash        string `gorm:"type:varchar(64)"`
	TransactionIndex uint64
	FromAddress      string `gorm:"type:varchar(40);index"`
	ToAddress        string `gorm:"type:varchar(40);index"`
	Value            string `gorm:"type:varchar(78)"`
	GasPrice         string `gorm:"type:varchar(78)"`
	GasLimit         uint64
	GasUsed          *uint64
	Nonce            uint64
	InputData        string `gorm:"type:text"`
	Status           *uint64
}

func (Transaction) TableName() string {
	return "transactions"
}

// Event is one log emitted by a tracked contract. Within a block events are
// totally ordered by LogIndex.
type Event struct {
	BaseEntity
	TransactionHash string  `gorm:"type:varchar(64);uniqueIndex:idx_events_tx_log"`
	BlockNumber     uint64  `gorm:"index"`
	BlockHash       string  `gorm:"type:varchar(64)"`
	LogIndex        uint64  `gorm:"uniqueIndex:idx_events_tx_log"`
	ContractAddress string  `gorm:"type:varchar(40);index"`
	EventSignature  string  `gorm:"type:varchar(64);index"`
	EventName       string  `gorm:"type:varchar(100)"`
	Topics          string  `gorm:"type:text"`
	Data            string  `gorm:"type:text"`
	DecodedData     *string `gorm:"type:text"` // reserved for ABI-aware decoding
}

func (Event) TableName() string {
	return "events"
}

// FunctionCall is the decoded-selector view of a tracked transaction with
// non-empty input, one row per transaction.
type FunctionCall struct {
	BaseEntity
	TransactionHash   string  `gorm:"type:varchar(64);uniqueIndex"`
	ContractAddress   string  `gorm:"type:varchar(40);index"`
	FunctionSignature string  `gorm:"type:varchar(8)"`
	FunctionName      string  `gorm:"type:varchar(100)"`
	InputData         string  `gorm:"type:text"`
	DecodedInput      *string `gorm:"type:text"`
	OutputData        *string `gorm:"type:text"`
	DecodedOutput     *string `gorm:"type:text"`
	Success           bool
}

func (FunctionCall) TableName() string {
	return "function_calls"
}

// Contract is a tracked contract. LastIndexedBlock is a per-contract
// watermark, informational only - the pipeline cursor in indexer_state is
// authoritative for range safety.
type Contract struct {
	Address          string `gorm:"type:varchar(40);primaryKey"`
	Name             string `gorm:"type:varchar(100)"`
	IsActive         bool
	LastIndexedBlock uint64
}

func (Contract) TableName() string {
	return "contracts"
}
