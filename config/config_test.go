package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseConfigFile(t *testing.T) {
	content := `
[db]
host = "localhost"
port = 3306
database = "indexer"

[logger]
level = "DEBUG"
console = true

[chain]
node_url = "http://localhost:8545"

[indexer]
batch_size = 50
confirmations = 6
start_block = "latest"

[[indexer.contracts]]
address = "0x22474D350ec2dA53D717E30b96e9a2B7628Ede5b"
name = "TestToken"

[[indexer.functions]]
signature = "0xdeadbeef"
name = "customCall"
`
	path := filepath.Join(t.TempDir(), "config.toml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	cfg := newConfig()
	require.NoError(t, ParseConfigFile(cfg, path))
	require.NoError(t, cfg.Validate())

	assert.Equal(t, uint64(50), cfg.Indexer.BatchSize)
	assert.Equal(t, uint64(6), cfg.Indexer.Confirmations)

	// untouched fields keep their defaults
	assert.Equal(t, SubBatchSizeDefault, cfg.Indexer.SubBatchSize)
	assert.Equal(t, PollIntervalDefault, cfg.Indexer.PollIntervalMillis)

	require.Len(t, cfg.Indexer.Contracts, 1)
	assert.Equal(t, "22474d350ec2da53d717e30b96e9a2b7628ede5b", cfg.Indexer.Contracts[0].Address)
	assert.Equal(t, "TestToken", cfg.Indexer.Contracts[0].Name)

	require.Len(t, cfg.Indexer.Functions, 1)
	assert.Equal(t, "customCall", cfg.Indexer.Functions[0].Name)

	mode, err := cfg.Indexer.StartMode()
	require.NoError(t, err)
	assert.True(t, mode.Latest)
}

func TestValidate(t *testing.T) {
	valid := func() *Config {
		cfg := newConfig()
		cfg.Chain.NodeURL = "http://localhost:8545"
		cfg.Indexer.Contracts = []ContractInfo{
			{Address: "22474d350ec2da53d717e30b96e9a2b7628ede5b", Name: "TestToken"},
		}
		return cfg
	}

	require.NoError(t, valid().Validate())

	cfg := valid()
	cfg.Chain.NodeURL = ""
	assert.Error(t, cfg.Validate())

	cfg = valid()
	cfg.Indexer.Contracts = nil
	assert.Error(t, cfg.Validate())

	cfg = valid()
	cfg.Indexer.Contracts[0].Address = "0xnothex"
	assert.Error(t, cfg.Validate())

	cfg = valid()
	cfg.Indexer.StartBlock = "not-a-number"
	assert.Error(t, cfg.Validate())
}

func TestStartMode(t *testing.T) {
	mode, err := IndexerConfig{StartBlock: ""}.StartMode()
	require.NoError(t, err)
	assert.True(t, mode.Resume)

	mode, err = IndexerConfig{StartBlock: "latest"}.StartMode()
	require.NoError(t, err)
	assert.True(t, mode.Latest)

	mode, err = IndexerConfig{StartBlock: "12345"}.StartMode()
	require.NoError(t, err)
	assert.False(t, mode.Resume)
	assert.False(t, mode.Latest)
	assert.Equal(t, uint64(12345), mode.Block)

	_, err = IndexerConfig{StartBlock: "abc"}.StartMode()
	assert.Error(t, err)
}

func TestNormalizeAddress(t *testing.T) {
	tests := []struct {
		input string
		want  string
		ok    bool
	}{
		{input: "0x22474D350ec2dA53D717E30b96e9a2B7628Ede5b", want: "22474d350ec2da53d717e30b96e9a2b7628ede5b", ok: true},
		{input: "22474d350ec2da53d717e30b96e9a2b7628ede5b", want: "22474d350ec2da53d717e30b96e9a2b7628ede5b", ok: true},
		{input: "0X22474D350EC2DA53D717E30B96E9A2B7628EDE5B", want: "22474d350ec2da53d717e30b96e9a2b7628ede5b", ok: true},
		{input: "0x1234", ok: false},
		{input: "", ok: false},
		{input: "zz474d350ec2da53d717e30b96e9a2b7628ede5b", ok: false},
	}

	for _, test := range tests {
		normalized, err := NormalizeAddress(test.input)
		if !test.ok {
			assert.Error(t, err, "input %q", test.input)
			continue
		}
		require.NoError(t, err, "input %q", test.input)
		assert.Equal(t, test.want, normalized)
	}
}

func TestFullNodeURL(t *testing.T) {
	cfg := ChainConfig{NodeURL: "http://localhost:8545"}
	u, err := cfg.FullNodeURL()
	require.NoError(t, err)
	assert.Equal(t, "http://localhost:8545", u.String())

	cfg.APIKey = "secret"
	u, err = cfg.FullNodeURL()
	require.NoError(t, err)
	assert.Equal(t, "secret", u.Query().Get("x-apikey"))
}
