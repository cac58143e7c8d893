package names

import (
	"testing"

	"evm-contract-indexer/config"

	"github.com/stretchr/testify/assert"
)

func TestStaticResolverDefaults(t *testing.T) {
	r := NewStaticResolver(nil, nil)

	assert.Equal(t, "Transfer", r.EventName("ddf252ad1be2c89b69c2b068fc378daa952ba7f163c4a11628f55a4df523b3ef"))
	assert.Equal(t, "Transfer", r.EventName("0xDDF252AD1BE2C89B69C2B068FC378DAA952BA7F163C4A11628F55A4DF523B3EF"))
	assert.Equal(t, "transfer", r.FunctionName("a9059cbb"))
	assert.Equal(t, "approve", r.FunctionName("0x095EA7B3"))

	assert.Equal(t, Unknown, r.EventName("deadbeef"))
	assert.Equal(t, Unknown, r.FunctionName("00000000"))
	assert.Equal(t, Unknown, r.FunctionName(""))
}

func TestStaticResolverConfigEntries(t *testing.T) {
	events := []config.SignatureInfo{
		{Signature: "0x1111111111111111111111111111111111111111111111111111111111111111", Name: "Custom"},
		// override a built-in
		{Signature: "ddf252ad1be2c89b69c2b068fc378daa952ba7f163c4a11628f55a4df523b3ef", Name: "TokenMoved"},
	}
	functions := []config.SignatureInfo{
		{Signature: "0xDEADBEEF", Name: "customCall"},
	}

	r := NewStaticResolver(events, functions)

	assert.Equal(t, "Custom", r.EventName("1111111111111111111111111111111111111111111111111111111111111111"))
	assert.Equal(t, "TokenMoved", r.EventName("ddf252ad1be2c89b69c2b068fc378daa952ba7f163c4a11628f55a4df523b3ef"))
	assert.Equal(t, "customCall", r.FunctionName("deadbeef"))

	// untouched defaults still resolve
	assert.Equal(t, "Approval", r.EventName("8c5be1e5ebec7d5bd14f71427d1e84f3dd0314c0f7b2291e5b200ac8c7c3b925"))
}
