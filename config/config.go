package config

import (
	"flag"
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/kelseyhightower/envconfig"
)

var (
	GlobalConfigCallback ConfigCallback[GlobalConfig] = ConfigCallback[GlobalConfig]{}
	CfgFlag                                           = flag.String("config", "config.toml", "Configuration file (toml format)")

	// Timeout bounds a single RPC request, BackoffMaxTries the number of
	// attempts for one item before its failure is reported to the batch.
	Timeout              = 1 * time.Second
	BackoffMaxTries uint = 3
)

const (
	BatchSizeDefault      uint64 = 100
	SubBatchSizeDefault   uint64 = 10
	ConfirmationsDefault  uint64 = 12
	PollIntervalDefault          = 5000
	FailureBackoffDefault        = 5000
	TimeoutMillisDefault         = 1000
)

// StartLatest is the start_block value that seeds the cursor from the
// current chain head instead of a fixed block or the persisted state.
const StartLatest = "latest"

type GlobalConfig interface {
	LoggerConfig() LoggerConfig
	ChainConfig() ChainConfig
}

type Config struct {
	DB      DBConfig      `toml:"db"`
	Logger  LoggerConfig  `toml:"logger"`
	Chain   ChainConfig   `toml:"chain"`
	Indexer IndexerConfig `toml:"indexer"`
}

type LoggerConfig struct {
	Level       string `toml:"level"` // valid values are: DEBUG, INFO, WARN, ERROR, DPANIC, PANIC, FATAL (zap)
	File        string `toml:"file"`
	MaxFileSize int    `toml:"max_file_size"` // In megabytes
	Console     bool   `toml:"console"`
}

type DBConfig struct {
	Host             string `toml:"host" envconfig:"DB_HOST"`
	Port             int    `toml:"port" envconfig:"DB_PORT"`
	Database         string `toml:"database" envconfig:"DB_DATABASE"`
	Username         string `toml:"username" envconfig:"DB_USERNAME"`
	Password         string `toml:"password" envconfig:"DB_PASSWORD"`
	LogQueries       bool   `toml:"log_queries"`
	DropTableAtStart bool   `toml:"drop_table_at_start"`
	HistoryDrop      uint64 `toml:"history_drop"` // in seconds, 0 disables retention cleanup
}

type ChainConfig struct {
	NodeURL string `toml:"node_url" envconfig:"CHAIN_NODE_URL"`
	APIKey  string `toml:"api_key" envconfig:"CHAIN_API_KEY"`
}

type IndexerConfig struct {
	BatchSize            uint64 `toml:"batch_size"`     // max blocks per range
	SubBatchSize         uint64 `toml:"sub_batch_size"` // concurrent block fetches within a range
	Confirmations        uint64 `toml:"confirmations"`
	PollIntervalMillis   int    `toml:"poll_interval_millis"`
	FailureBackoffMillis int    `toml:"failure_backoff_millis"`
	TimeoutMillis        int    `toml:"timeout_millis"`
	StartBlock           string `toml:"start_block"` // empty (resume), "latest", or a block number

	Contracts []ContractInfo  `toml:"contracts"`
	Events    []SignatureInfo `toml:"events"`
	Functions []SignatureInfo `toml:"functions"`
}

// ContractInfo identifies a contract whose transactions and logs are
// collected. Addresses are normalized to lower case without the 0x prefix.
type ContractInfo struct {
	Address string `toml:"address"`
	Name    string `toml:"name"`
}

// SignatureInfo extends the built-in signature tables: an event topic0 or a
// 4-byte function selector together with its display name.
type SignatureInfo struct {
	Signature string `toml:"signature"`
	Name      string `toml:"name"`
}

func newConfig() *Config {
	return &Config{
		Indexer: IndexerConfig{
			BatchSize:            BatchSizeDefault,
			SubBatchSize:         SubBatchSizeDefault,
			Confirmations:        ConfirmationsDefault,
			PollIntervalMillis:   PollIntervalDefault,
			FailureBackoffMillis: FailureBackoffDefault,
			TimeoutMillis:        TimeoutMillisDefault,
		},
	}
}

func BuildConfig() (*Config, error) {
	cfgFileName := *CfgFlag

	cfg := newConfig()
	err := ParseConfigFile(cfg, cfgFileName)
	if err != nil {
		return nil, err
	}
	err = ReadEnv(cfg)
	if err != nil {
		return nil, err
	}
	err = cfg.Validate()
	if err != nil {
		return nil, err
	}
	return cfg, nil
}

func ParseConfigFile(cfg *Config, fileName string) error {
	content, err := os.ReadFile(fileName)
	if err != nil {
		return fmt.Errorf("error opening config file: %w", err)
	}

	_, err = toml.Decode(string(content), cfg)
	if err != nil {
		return fmt.Errorf("error parsing config file: %w", err)
	}
	return nil
}

func ReadEnv(cfg interface{}) error {
	err := envconfig.Process("", cfg)
	if err != nil {
		return fmt.Errorf("error reading env config: %w", err)
	}
	return nil
}

func (c *Config) Validate() error {
	if c.Chain.NodeURL == "" {
		return fmt.Errorf("chain.node_url is required")
	}
	if len(c.Indexer.Contracts) == 0 {
		return fmt.Errorf("indexer.contracts must list at least one tracked contract")
	}
	for i := range c.Indexer.Contracts {
		contract := &c.Indexer.Contracts[i]
		normalized, err := NormalizeAddress(contract.Address)
		if err != nil {
			return fmt.Errorf("indexer.contracts[%d]: %w", i, err)
		}
		contract.Address = normalized
	}
	if _, err := c.Indexer.StartMode(); err != nil {
		return err
	}
	if c.Indexer.TimeoutMillis > 0 {
		Timeout = time.Duration(c.Indexer.TimeoutMillis) * time.Millisecond
	}
	return nil
}

// StartMode interprets start_block: a fixed block number, the chain head, or
// resumption from the persisted cursor.
func (ic IndexerConfig) StartMode() (StartMode, error) {
	switch ic.StartBlock {
	case "":
		return StartMode{Resume: true}, nil
	case StartLatest:
		return StartMode{Latest: true}, nil
	default:
		block, err := strconv.ParseUint(ic.StartBlock, 10, 64)
		if err != nil {
			return StartMode{}, fmt.Errorf("indexer.start_block must be empty, %q or a block number: %w", StartLatest, err)
		}
		return StartMode{Block: block}, nil
	}
}

type StartMode struct {
	Resume bool
	Latest bool
	Block  uint64
}

func (c ChainConfig) FullNodeURL() (*url.URL, error) {
	u, err := url.Parse(c.NodeURL)
	if err != nil {
		return nil, fmt.Errorf("invalid node url: %w", err)
	}

	if c.APIKey != "" {
		q := u.Query()
		q.Set("x-apikey", c.APIKey)
		u.RawQuery = q.Encode()
	}

	return u, nil
}

// NormalizeAddress lower-cases a hex address and strips the 0x prefix so
// that all address comparisons and DB keys are collision-safe.
func NormalizeAddress(address string) (string, error) {
	normalized := strings.TrimPrefix(strings.ToLower(address), "0x")
	if len(normalized) != 40 {
		return "", fmt.Errorf("invalid contract address %q", address)
	}
	for _, r := range normalized {
		if (r < '0' || r > '9') && (r < 'a' || r > 'f') {
			return "", fmt.Errorf("invalid contract address %q", address)
		}
	}
	return normalized, nil
}

func (c Config) LoggerConfig() LoggerConfig {
	return c.Logger
}

func (c Config) ChainConfig() ChainConfig {
	return c.Chain
}
