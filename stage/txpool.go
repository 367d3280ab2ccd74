// Package stage implements the transaction ingest pipeline: validating an
// incoming batch, persisting it, folding it into the local Ego state, and
// broadcasting the resulting target to the mining pool.
package stage

import (
	"container/heap"
	"errors"

	"github.com/cauchynet/cauchy/core"
)

// ErrPoolFull is returned when a batch would exceed the pool's bound.
var ErrPoolFull = errors.New("stage: pool full")

// ErrNotSorted is returned when order validation is requested and the
// batch does not arrive in strictly ascending (time, id) order.
var ErrNotSorted = errors.New("stage: batch not sorted")

// txHeap is a (time, id)-ordered min-heap of transactions.
type txHeap []*core.Transaction

func (h txHeap) Len() int            { return len(h) }
func (h txHeap) Less(i, j int) bool  { return h[i].Less(h[j]) }
func (h txHeap) Swap(i, j int)       { h[i], h[j] = h[j], h[i] }
func (h *txHeap) Push(x interface{}) { *h = append(*h, x.(*core.Transaction)) }
func (h *txHeap) Pop() interface{} {
	old := *h
	n := len(old)
	item := old[n-1]
	*h = old[:n-1]
	return item
}

// TxPool is a bounded staging area for a single incoming batch: it checks
// capacity and, optionally, that the batch is already sorted, before
// admitting transactions.
type TxPool struct {
	items txHeap
	limit int
}

// NewTxPool returns an empty pool bounded at limit transactions.
func NewTxPool(limit int) *TxPool {
	return &TxPool{items: make(txHeap, 0, limit), limit: limit}
}

// InsertBatch admits txs, or rejects the whole batch with ErrPoolFull or
// ErrNotSorted.
func (p *TxPool) InsertBatch(txs []*core.Transaction, validateOrder bool) error {
	if len(p.items)+len(txs) > p.limit {
		return ErrPoolFull
	}
	if validateOrder {
		for i := 1; i < len(txs); i++ {
			if !txs[i-1].Less(txs[i]) {
				return ErrNotSorted
			}
		}
	}
	for _, tx := range txs {
		heap.Push(&p.items, tx)
	}
	return nil
}

// Len reports how many transactions are currently staged.
func (p *TxPool) Len() int { return len(p.items) }

// Drain removes and returns every staged transaction in ascending (time,
// id) order.
func (p *TxPool) Drain() []*core.Transaction {
	out := make([]*core.Transaction, 0, len(p.items))
	for p.items.Len() > 0 {
		out = append(out, heap.Pop(&p.items).(*core.Transaction))
	}
	return out
}
