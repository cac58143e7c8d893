// Package names resolves event and function signatures to display names.
// Resolution is a static lookup, not ABI decoding: the Resolver interface
// exists so an ABI-aware decoder can be substituted without touching the
// pipeline.
package names

import "evm-contract-indexer/config"

// Unknown is the sentinel recorded for signatures absent from the tables.
// A miss is never an error and never blocks persistence.
const Unknown = "unknown"

type Resolver interface {
	// EventName resolves an event by topic0 (lower-case hex, no 0x prefix).
	EventName(topic0 string) string

	// FunctionName resolves a function by its 4-byte selector (lower-case
	// hex, no 0x prefix).
	FunctionName(selector string) string
}

// StaticResolver resolves from fixed tables seeded with common ERC-20/721
// signatures and extended from configuration.
type StaticResolver struct {
	events    map[string]string
	functions map[string]string
}

var defaultEvents = map[string]string{
	"ddf252ad1be2c89b69c2b068fc378daa952ba7f163c4a11628f55a4df523b3ef": "Transfer",
	"8c5be1e5ebec7d5bd14f71427d1e84f3dd0314c0f7b2291e5b200ac8c7c3b925": "Approval",
	"17307eab39ab6107e8899845ad3d59bd9653f200f220920489ca2b5937696c31": "ApprovalForAll",
	"8be0079c531659141344cd1fd0a4f28419497f9722a3daafe3b4186f6b6457e0": "OwnershipTransferred",
	"e1fffcc4923d04b559f4d29a8bfc6cda04eb5b0d3c460751c2402c5c5cc9109c": "Deposit",
	"7fcf532c15f0a6db0bd6d0e038bea71d30d808c7d98cb3bf7268a95bf5081b65": "Withdrawal",
}

var defaultFunctions = map[string]string{
	"a9059cbb": "transfer",
	"095ea7b3": "approve",
	"23b872dd": "transferFrom",
	"40c10f19": "mint",
	"42966c68": "burn",
	"d0e30db0": "deposit",
	"2e1a7d4d": "withdraw",
	"f2fde38b": "transferOwnership",
}

// NewStaticResolver merges the built-in tables with signatures from config.
// Config entries win on collision.
func NewStaticResolver(events, functions []config.SignatureInfo) *StaticResolver {
	r := &StaticResolver{
		events:    make(map[string]string, len(defaultEvents)+len(events)),
		functions: make(map[string]string, len(defaultFunctions)+len(functions)),
	}

	for sig, name := range defaultEvents {
		r.events[sig] = name
	}
	for sig, name := range defaultFunctions {
		r.functions[sig] = name
	}
	for _, e := range events {
		r.events[normalize(e.Signature)] = e.Name
	}
	for _, f := range functions {
		r.functions[normalize(f.Signature)] = f.Name
	}

	return r
}

func (r *StaticResolver) EventName(topic0 string) string {
	if name, ok := r.events[normalize(topic0)]; ok {
		return name
	}
	return Unknown
}

func (r *StaticResolver) FunctionName(selector string) string {
	if name, ok := r.functions[normalize(selector)]; ok {
		return name
	}
	return Unknown
}

func normalize(sig string) string {
	if len(sig) >= 2 && sig[0] == '0' && (sig[1] == 'x' || sig[1] == 'X') {
		sig = sig[2:]
	}

	lower := []byte(sig)
	for i, c := range lower {
		if c >= 'A' && c <= 'Z' {
			lower[i] = c + ('a' - 'A')
		}
	}
	return string(lower)
}
