package main

import "github.com/tos-network/tos-core/model"

// MempoolSink is the injection boundary for re-admitting transactions a
// rewind returned (spec §4.9 step 2). The core never implements a mempool
// itself — it only needs somewhere to hand popped transactions back to.
type MempoolSink interface {
	Readmit(txs []*model.Transaction)
}

// noopMempool discards readmitted transactions. It is the default sink
// for a node run without an external mempool wired in, e.g. a pruning-only
// archival process.
type noopMempool struct{}

func (noopMempool) Readmit([]*model.Transaction) {}
