// Package versioned defines C3: a versioned key-value store keyed by
// (column, key, topoheight), where every write is retained rather than
// overwritten. Reads ask for "the value as of topoheight t"; the store
// walks a back-pointer chain of prior versions to answer it.
package versioned

import "github.com/tos-network/tos-core/errors"

// Column identifies one of the logical tables the node keeps versioned
// history for. Each column is an independent (key, topoheight) -> value
// space; there is no cross-column transaction beyond what a single
// Snapshot groups together.
type Column string

const (
	ColumnNonce            Column = "nonce"
	ColumnBalance          Column = "balance"
	ColumnConfidentialBal  Column = "confidential_balance"
	ColumnAccount          Column = "account"
	ColumnAsset            Column = "asset"
	ColumnAssetSupply      Column = "asset_supply"
	ColumnContract         Column = "contract"
	ColumnContractStorage  Column = "contract_storage"
	ColumnContractBalance  Column = "contract_balance"
	ColumnMultisig         Column = "multisig"
	ColumnNameRegistration Column = "name_registration"
	ColumnReferral         Column = "referral"
	ColumnEnergy           Column = "energy"
	ColumnKYC              Column = "kyc"
	ColumnEscrow           Column = "escrow"
	ColumnArbitration      Column = "arbitration"
	ColumnScheduledExec    Column = "scheduled_execution"

	ColumnBlockHeader      Column = "block_header"
	ColumnBlockBody        Column = "block_body"
	ColumnGhostdagData     Column = "ghostdag_data"
	ColumnReachabilityData Column = "reachability_data"
	ColumnHashByTopoheight Column = "hash_by_topoheight"
	ColumnTopoheightByHash Column = "topoheight_by_hash"
	ColumnTips             Column = "tips"
	ColumnPrunedTopoheight Column = "pruned_topoheight"
	// ColumnChainMeta holds the single-row top_topoheight/top_height/
	// blocks_count counters spec §4.3 lists as "top height/topoheight",
	// versioned the same as every other column so a commit that updates
	// them lands atomically with the rest of a block's writes.
	ColumnChainMeta          Column = "chain_meta"
	ColumnBlockExecutionOrder Column = "block_execution_order"
	ColumnBlocksAtHeight      Column = "blocks_at_height"
	// ColumnWriteLog records, per topoheight, every (column, key) pair a
	// block's snapshot wrote — C9's undo list (spec §4.9 step 2: "delete
	// all versioned cells written at that topoheight"). Populated by C8 as
	// part of the same snapshot a block commits through.
	ColumnWriteLog Column = "write_log"
)

// AllColumns lists every column this node keeps versioned history for,
// the sweep order C9's pruning pass visits (spec §4.9: "for every
// versioned column, delete_below is invoked").
func AllColumns() []Column {
	return []Column{
		ColumnNonce, ColumnBalance, ColumnConfidentialBal, ColumnAccount,
		ColumnAsset, ColumnAssetSupply, ColumnContract, ColumnContractStorage,
		ColumnContractBalance, ColumnMultisig, ColumnNameRegistration,
		ColumnReferral, ColumnEnergy, ColumnKYC, ColumnEscrow, ColumnArbitration,
		ColumnScheduledExec,
		ColumnBlockHeader, ColumnBlockBody, ColumnGhostdagData,
		ColumnReachabilityData, ColumnHashByTopoheight, ColumnTopoheightByHash,
		ColumnTips, ColumnPrunedTopoheight, ColumnChainMeta,
		ColumnBlockExecutionOrder, ColumnBlocksAtHeight, ColumnWriteLog,
	}
}

// Enumerable is implemented by a Store that can list every key ever
// written to a column, needed by C9's generic pruning sweep. A backend
// that can't support this cheaply (most real KV/SQL stores can run a
// native range-delete instead) simply doesn't implement it; C9 falls
// back to reporting that pruning isn't available on that store.
type Enumerable interface {
	Keys(col Column) ([][]byte, error)
}

// ErrNotFound is returned by callers that need to distinguish "no value"
// from a real I/O failure; Get* methods instead report absence via the
// boolean `found` return and reserve errors for corruption/I-O failures.
var ErrNotFound = errors.New(errors.ERR_NOT_FOUND, "key not found")

// Store is the C3 interface. Every method may be called concurrently;
// implementations are responsible for their own internal synchronization.
type Store interface {
	// Put records value as the version of (col, key) effective at
	// topoheight t. t must be strictly greater than any topoheight
	// previously written for (col, key) in normal (non-rewind) operation;
	// implementations do not enforce this, callers (C8) do.
	Put(col Column, key []byte, value []byte, topoheight uint64) error

	// GetLatest returns the most recently written version of (col, key),
	// regardless of topoheight.
	GetLatest(col Column, key []byte) (value []byte, at uint64, found bool, err error)

	// GetAtMost returns the version of (col, key) with the greatest
	// topoheight <= t, walking the back-pointer chain as needed.
	GetAtMost(col Column, key []byte, t uint64) (value []byte, at uint64, found bool, err error)

	// DeleteAt removes the version of (col, key) written at exactly
	// topoheight t. t must be the current latest topoheight for (col, key)
	// (used by C9 rewind, which always pops from the tip downward);
	// deleting a non-latest version returns ERR_INVALID_ARGUMENT.
	DeleteAt(col Column, key []byte, t uint64) error

	// DeleteAbove removes every version of (col, key) with topoheight > t,
	// leaving the latest remaining version (if any) at or below t as the
	// new latest.
	DeleteAbove(col Column, key []byte, t uint64) error

	// DeleteBelow prunes history below t for (col, key). When keepLast is
	// true (the normal pruning mode, spec §4.9), the highest version <= t
	// is kept and rewritten with its back-pointer cleared to None, and
	// every version below it is discarded. When keepLast is false, every
	// version <= t is discarded outright, including the boundary version.
	DeleteBelow(col Column, key []byte, t uint64, keepLast bool) error

	// Snapshot opens a writable overlay on top of the store. Writes made
	// through the returned Snapshot are visible to reads made through the
	// same Snapshot (read-your-own-writes) but are not visible to the
	// underlying Store, or any other Snapshot, until Commit is called.
	Snapshot() Snapshot
}

// TouchedKey identifies one (column, key) pair written through a
// Snapshot, as reported by Touched.
type TouchedKey struct {
	Col Column
	Key []byte
}

// Snapshot is a Store-shaped write buffer layered over a base Store. It
// is how C7 stages a block's account/contract mutations before C8 makes
// them durable in a single atomic step.
type Snapshot interface {
	Store

	// Commit applies every buffered write to the base store. Commit is
	// only ever called once per snapshot; calling it twice, or calling it
	// after Rollback, is a programming error.
	Commit() error

	// Rollback discards every buffered write. The base store is
	// untouched; the base store is left exactly as it was before the
	// snapshot was opened.
	Rollback()

	// Touched returns every (column, key) pair Put through this
	// snapshot, in write order with duplicates collapsed to their final
	// write. C8 records this list as the topoheight's write log so C9 can
	// undo the block precisely without knowing its contents in advance.
	Touched() []TouchedKey
}
