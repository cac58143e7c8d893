package indexer

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestNextRange(t *testing.T) {
	tests := []struct {
		name          string
		cursor        uint64
		head          uint64
		confirmations uint64
		maxBatch      uint64
		want          blockRange
		ok            bool
	}{
		{name: "fullBatch", cursor: 100, head: 120, confirmations: 12, maxBatch: 5, want: blockRange{from: 101, to: 105}, ok: true},
		{name: "clampedToSafeHeight", cursor: 105, head: 120, confirmations: 12, maxBatch: 5, want: blockRange{from: 106, to: 108}, ok: true},
		{name: "caughtUp", cursor: 108, head: 120, confirmations: 12, maxBatch: 5, ok: false},
		{name: "cursorAheadOfSafeHeight", cursor: 115, head: 120, confirmations: 12, maxBatch: 5, ok: false},
		{name: "headBelowConfirmations", cursor: 0, head: 10, confirmations: 12, maxBatch: 5, ok: false},
		{name: "zeroConfirmations", cursor: 5, head: 10, confirmations: 0, maxBatch: 100, want: blockRange{from: 6, to: 10}, ok: true},
		{name: "singleBlock", cursor: 7, head: 20, confirmations: 12, maxBatch: 5, want: blockRange{from: 8, to: 8}, ok: true},
		{name: "fromGenesisCursor", cursor: 0, head: 15, confirmations: 12, maxBatch: 100, want: blockRange{from: 1, to: 3}, ok: true},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			r, ok := nextRange(test.cursor, test.head, test.confirmations, test.maxBatch)
			require.Equal(t, test.ok, ok)
			if ok {
				require.Equal(t, test.want, r)
				require.Equal(t, test.want.to-test.want.from+1, r.len())
			}
		})
	}
}
