// Package rewind implements C9: popping committed blocks off the tip of
// the chain and pruning history below a floor. There is no direct
// teacher analog — Teranode prunes via external UTXO-persister snapshots
// rather than an in-core pop/rewind — so this package follows spec §4.9
// directly, built in the store-transaction idiom stores/versioned
// establishes: every mutation goes through the same DeleteAt/DeleteBelow
// primitives C8 builds its commits on, run directly against the root
// store rather than a Snapshot, since rewind and ordinary block
// processing are never expected to run concurrently against the same
// chain.
package rewind

import (
	"github.com/tos-network/tos-core/config"
	"github.com/tos-network/tos-core/consensus/ghostdag"
	"github.com/tos-network/tos-core/consensus/reachability"
	"github.com/tos-network/tos-core/errors"
	"github.com/tos-network/tos-core/metrics"
	"github.com/tos-network/tos-core/model"
	"github.com/tos-network/tos-core/stores/blockstore"
	"github.com/tos-network/tos-core/stores/versioned"
	"github.com/tos-network/tos-core/ulogger"
)

// Rewinder is C9.
type Rewinder struct {
	store    versioned.Store
	reach    *reachability.Index
	ghostdag *ghostdag.Engine
	settings *config.Settings
	logger   ulogger.Logger
}

func New(store versioned.Store, reach *reachability.Index, engine *ghostdag.Engine, settings *config.Settings, logger ulogger.Logger) *Rewinder {
	return &Rewinder{store: store, reach: reach, ghostdag: engine, settings: settings, logger: logger}
}

// RewindBy pops n blocks off the tip of the chain (spec §4.9). untilFloor,
// when nonzero, raises the safety floor above pruned_topoheight +
// prune_safety_limit for a caller that wants to stop sooner than the
// configured buffer requires. It returns every transaction carried by a
// popped block, in newest-block-first order, for the caller to re-admit
// to the mempool.
func (rw *Rewinder) RewindBy(n uint64, untilFloor uint64) ([]*model.Transaction, error) {
	topTopo, found, err := blockstore.ReadTopTopoheight(rw.store)
	if err != nil {
		return nil, err
	}
	if !found || n == 0 || n > topTopo {
		return nil, errors.New(errors.ERR_SAFETY_LIMIT, "cannot rewind %d blocks from topoheight %d", n, topTopo)
	}

	pruned, _, err := blockstore.ReadPrunedTopoheight(rw.store)
	if err != nil {
		return nil, err
	}
	floor := pruned + rw.settings.PruneSafetyLimit
	if untilFloor > floor {
		floor = untilFloor
	}
	target := topTopo - n
	if target < floor {
		return nil, errors.New(errors.ERR_SAFETY_LIMIT, "rewind to topoheight %d violates safety floor %d", target, floor)
	}

	var reAdmit []*model.Transaction
	for cur := topTopo; cur > target; cur-- {
		if cur <= pruned {
			return reAdmit, rw.fatal("rewind reached topoheight %d, at or below pruned_topoheight %d", cur, pruned)
		}

		txs, err := rw.popBlock(cur)
		if err != nil {
			return reAdmit, err
		}
		reAdmit = append(reAdmit, txs...)
	}

	return reAdmit, nil
}

// fatal reports the spec §4.9 step 3 condition: the walk found the chain
// state itself untrustworthy, not just a bad request. The caller (node
// wiring) is expected to discard the entire store and resync, so this
// returns ERR_FATAL_CORRUPTION rather than attempting any further repair.
func (rw *Rewinder) fatal(format string, args ...interface{}) error {
	err := errors.New(errors.ERR_FATAL_CORRUPTION, format, args...)
	rw.logger.Errorf("%s: resync required", err.Error())
	return err
}

// popBlock undoes the single block committed at topoheight cur: its
// GHOSTDAG and reachability records, then every (column, key) its C8
// commit wrote, replayed from the write log C8 recorded alongside it.
func (rw *Rewinder) popBlock(cur uint64) ([]*model.Transaction, error) {
	hash, found, err := blockstore.ReadHashAtTopoheight(rw.store, cur)
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, rw.fatal("no hash recorded at topoheight %d", cur)
	}

	header, found, err := blockstore.ReadHeader(rw.store, hash)
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, rw.fatal("no header found for block %s at topoheight %d", hash.String(), cur)
	}

	body, _, err := blockstore.ReadBody(rw.store, hash)
	if err != nil {
		return nil, err
	}

	ghostdagData, err := rw.ghostdag.Get(hash)
	if err != nil {
		return nil, err
	}
	otherParents := make([]model.Hash, 0, len(header.ParentsByLevel))
	for _, parent := range header.ParentsByLevel {
		if parent != ghostdagData.SelectedParent {
			otherParents = append(otherParents, parent)
		}
	}
	if err := rw.reach.Undo(hash, ghostdagData.SelectedParent, otherParents, cur); err != nil {
		return nil, err
	}
	if err := rw.ghostdag.Delete(hash, cur); err != nil {
		return nil, err
	}

	entries, found, err := blockstore.ReadWriteLog(rw.store, cur)
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, rw.fatal("no write log recorded for topoheight %d", cur)
	}
	for _, e := range entries {
		if err := rw.store.DeleteAt(e.Col, e.Key, cur); err != nil {
			return nil, err
		}
	}
	if err := blockstore.DeleteWriteLog(rw.store, cur); err != nil {
		return nil, err
	}

	metrics.BlocksRewound.Inc()
	rw.logger.Infof("rewound block %s at topoheight %d, %d transactions returned to mempool", hash.String(), cur, len(body))
	return body, nil
}

// Prune advances pruned_topoheight to newPruned and, for every versioned
// column, invokes DeleteBelow(keep_last=true) on every key the column
// holds, so a read at any topoheight >= newPruned still resolves
// correctly (spec §4.9, §4.3). newPruned must be strictly greater than
// the current pruned_topoheight and must leave at least
// prune_safety_limit topoheights rewindable above it.
func (rw *Rewinder) Prune(newPruned uint64) error {
	topTopo, _, err := blockstore.ReadTopTopoheight(rw.store)
	if err != nil {
		return err
	}
	current, _, err := blockstore.ReadPrunedTopoheight(rw.store)
	if err != nil {
		return err
	}
	if newPruned <= current {
		return errors.New(errors.ERR_INVALID_ARGUMENT, "pruned_topoheight must advance: %d <= %d", newPruned, current)
	}
	if topTopo < rw.settings.PruneSafetyLimit || newPruned > topTopo-rw.settings.PruneSafetyLimit {
		return errors.New(errors.ERR_SAFETY_LIMIT, "pruning to %d leaves less than the %d-topoheight safety buffer above it", newPruned, rw.settings.PruneSafetyLimit)
	}

	enum, ok := rw.store.(versioned.Enumerable)
	if !ok {
		return errors.New(errors.ERR_INVALID_ARGUMENT, "store does not support key enumeration required for pruning")
	}

	for _, col := range versioned.AllColumns() {
		keys, err := enum.Keys(col)
		if err != nil {
			return err
		}
		for _, key := range keys {
			if err := rw.store.DeleteBelow(col, key, newPruned, true); err != nil {
				return err
			}
		}
	}

	if err := blockstore.WritePrunedTopoheight(rw.store, newPruned, topTopo); err != nil {
		return err
	}
	rw.logger.Infof("pruned history below topoheight %d", newPruned)
	return nil
}
