package indexer

// blockRange is a contiguous, inclusive span of block numbers processed as
// one atomic unit.
type blockRange struct {
	from, to uint64
}

func (r blockRange) len() uint64 {
	return r.to - r.from + 1
}

// nextRange computes the next confirmation-safe range to index. It is a
// pure function of its inputs and safe to call every tick: the second
// return is false when the cursor has caught up with the confirmation
// boundary and there is nothing to do.
func nextRange(cursor, head, confirmations, maxBatch uint64) (blockRange, bool) {
	if head < confirmations {
		return blockRange{}, false
	}

	safeHeight := head - confirmations
	if cursor >= safeHeight {
		return blockRange{}, false
	}

	return blockRange{
		from: cursor + 1,
		to:   min(safeHeight, cursor+maxBatch),
	}, true
}
