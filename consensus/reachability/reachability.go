// Package reachability implements C4: an interval-tree labelling of the
// GHOSTDAG selected-parent tree (spec §4.4), answering "is A an ancestor
// of B" queries in O(1) for tree ancestry and O(log n) for full DAG
// ancestry via each node's future covering set. There is no teacher
// analog — Teranode is a linear-chain node — so this package follows the
// spec's own algorithm description, structured the way the teacher
// structures a store-backed, cache-fronted algorithm package.
package reachability

import (
	"sort"
	"sync"

	"github.com/jellydator/ttlcache/v3"

	"github.com/tos-network/tos-core/errors"
	"github.com/tos-network/tos-core/model"
	"github.com/tos-network/tos-core/stores/versioned"
)

// fullRange is the interval handed to the DAG's genesis block. Given
// allocateChildInterval's bounded reservation scheme below, each level of
// an unbroken chain consumes about 2^32 slots, so 64 bits of address space
// holds roughly 4.3 billion levels — a block every second for a century
// (about 3.2 billion blocks) fits.
var fullRange = model.Interval{Start: 0, End: ^uint64(0)}

// Index is C4. It stores one model.ReachabilityData record per block in
// stores/versioned.Store, under ColumnReachabilityData, and keeps a small
// LRU in front of it per spec §9's "lookups go through C3 (with an LRU
// cache)" design note.
type Index struct {
	store versioned.Store
	cache *ttlcache.Cache[model.Hash, *model.ReachabilityData]

	// mu serializes interval allocation/reindexing; reads (IsChainAncestor,
	// IsDAGAncestor) do not take it since they only read already-committed
	// records.
	mu sync.Mutex
}

func New(store versioned.Store) *Index {
	cache := ttlcache.New[model.Hash, *model.ReachabilityData](
		ttlcache.WithCapacity[model.Hash, *model.ReachabilityData](4096),
	)
	go cache.Start()
	return &Index{store: store, cache: cache}
}

func (idx *Index) Close() { idx.cache.Stop() }

func (idx *Index) get(hash model.Hash) (*model.ReachabilityData, error) {
	if item := idx.cache.Get(hash); item != nil {
		return item.Value(), nil
	}
	raw, _, found, err := idx.store.GetLatest(versioned.ColumnReachabilityData, hash[:])
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, errors.New(errors.ERR_NOT_FOUND, "no reachability record for block")
	}
	data, err := model.DecodeReachabilityData(raw)
	if err != nil {
		return nil, err
	}
	idx.cache.Set(hash, data, ttlcache.DefaultTTL)
	return data, nil
}

func (idx *Index) put(hash model.Hash, data *model.ReachabilityData, topoheight uint64) error {
	if err := idx.store.Put(versioned.ColumnReachabilityData, hash[:], data.Encode(), topoheight); err != nil {
		return err
	}
	idx.cache.Set(hash, data, ttlcache.DefaultTTL)
	return nil
}

// InitGenesis creates the reachability-tree root record for the DAG's
// genesis block. It must be called exactly once, before any Insert.
func (idx *Index) InitGenesis(genesis model.Hash, topoheight uint64) error {
	idx.mu.Lock()
	defer idx.mu.Unlock()

	data := &model.ReachabilityData{
		Parent:   model.ZeroHash,
		Interval: fullRange,
		Height:   0,
	}
	return idx.put(genesis, data, topoheight)
}

// Insert adds block to the reachability tree as a child of selectedParent
// (its GHOSTDAG selected parent), and records block in the future
// covering set of every other DAG parent so DAG-ancestry queries that
// cross a non-tree edge still terminate in O(log n).
func (idx *Index) Insert(block, selectedParent model.Hash, otherParents []model.Hash, topoheight uint64) error {
	idx.mu.Lock()
	defer idx.mu.Unlock()

	parentData, err := idx.get(selectedParent)
	if err != nil {
		return err
	}

	childInterval, err := idx.allocateChildInterval(selectedParent, parentData, topoheight)
	if err != nil {
		return err
	}

	childData := &model.ReachabilityData{
		Parent:   selectedParent,
		Interval: childInterval,
		Height:   parentData.Height + 1,
	}
	parentData.Children = append(parentData.Children, block)
	if err := idx.put(selectedParent, parentData, topoheight); err != nil {
		return err
	}
	if err := idx.put(block, childData, topoheight); err != nil {
		return err
	}

	for _, other := range otherParents {
		if other == selectedParent {
			continue
		}
		if err := idx.addToFutureCoveringSet(other, block, topoheight); err != nil {
			return err
		}
	}
	return nil
}

// siblingReserve bounds how much of a parent's remaining interval is held
// back for that parent's future children (a later DAG fork at the same
// selected parent) rather than handed to the child being allocated right
// now. Capping the reservation, instead of always reserving half, is what
// keeps an unbroken selected-parent chain from decaying to nothing: halving
// on every level exhausts 64 bits of address space in ~64 blocks, while
// subtracting a bounded reserve lets a chain run for billions of blocks
// before the same exhaustion floor is reached.
const siblingReserve = 1 << 32

// allocateChildInterval reserves a fresh sub-interval for a new child of
// parent. The child gets everything left in parent's span except a bounded
// reserve held back for parent's future children — ample room for a
// realistic DAG fork width at this parent — so a long unbroken chain, which
// never needs that reserve, keeps almost all of its predecessor's capacity
// instead of losing half of it at every level.
func (idx *Index) allocateChildInterval(parentHash model.Hash, parent *model.ReachabilityData, topoheight uint64) (model.Interval, error) {
	freeStart := parent.Interval.Start + 1
	if n := len(parent.Children); n > 0 {
		last, err := idx.get(parent.Children[n-1])
		if err != nil {
			return model.Interval{}, err
		}
		freeStart = last.Interval.End + 1
	}
	if freeStart > parent.Interval.End {
		return model.Interval{}, errors.New(errors.ERR_CORRUPTED_DATA, "reachability subtree capacity exhausted")
	}

	remaining := parent.Interval.End - freeStart + 1
	reserve := remaining / 2
	if reserve > siblingReserve {
		reserve = siblingReserve
	}
	chunk := remaining - reserve
	if chunk == 0 {
		chunk = 1
	}
	return model.Interval{Start: freeStart, End: freeStart + chunk - 1}, nil
}

// addToFutureCoveringSet records block as reachable-from ancestorHash via
// a non-tree (merge) edge. The set is kept sorted by interval start, and
// an insertion that is already a chain-descendant of an existing member
// is redundant — that member already answers any future is_dag_ancestor
// query correctly — so it's skipped.
func (idx *Index) addToFutureCoveringSet(ancestorHash, block model.Hash, topoheight uint64) error {
	ancestorData, err := idx.get(ancestorHash)
	if err != nil {
		return err
	}
	blockData, err := idx.get(block)
	if err != nil {
		return err
	}

	for _, existing := range ancestorData.FutureCoveringSet {
		existingData, err := idx.get(existing)
		if err != nil {
			return err
		}
		if existingData.Interval.Contains(blockData.Interval) {
			return nil
		}
	}

	ancestorData.FutureCoveringSet = append(ancestorData.FutureCoveringSet, block)
	sort.Slice(ancestorData.FutureCoveringSet, func(i, j int) bool {
		di, _ := idx.get(ancestorData.FutureCoveringSet[i])
		dj, _ := idx.get(ancestorData.FutureCoveringSet[j])
		return di.Interval.Start < dj.Interval.Start
	})
	return idx.put(ancestorHash, ancestorData, topoheight)
}

// Undo reverses exactly the mutations a prior Insert(block, selectedParent,
// otherParents, topoheight) call made, for C9's rewind. It must be called
// in strict reverse topoheight order (highest-topoheight block first), the
// same order rewind pops blocks in, so that by the time an ancestor's
// record is touched here any later mutation of that same record has
// already been undone and this call's write is once again that record's
// latest version.
func (idx *Index) Undo(block, selectedParent model.Hash, otherParents []model.Hash, topoheight uint64) error {
	idx.mu.Lock()
	defer idx.mu.Unlock()

	// addToFutureCoveringSet only writes when block wasn't already
	// transitively covered, so only ancestors whose latest record is
	// exactly this topoheight actually need undoing.
	for _, other := range otherParents {
		if other == selectedParent {
			continue
		}
		_, at, found, err := idx.store.GetLatest(versioned.ColumnReachabilityData, other[:])
		if err != nil {
			return err
		}
		if !found || at != topoheight {
			continue
		}
		if err := idx.store.DeleteAt(versioned.ColumnReachabilityData, other[:], topoheight); err != nil {
			return err
		}
		idx.cache.Delete(other)
	}

	if err := idx.store.DeleteAt(versioned.ColumnReachabilityData, block[:], topoheight); err != nil {
		return err
	}
	idx.cache.Delete(block)

	if err := idx.store.DeleteAt(versioned.ColumnReachabilityData, selectedParent[:], topoheight); err != nil {
		return err
	}
	idx.cache.Delete(selectedParent)

	return nil
}

// IsChainAncestor reports whether ancestor lies on descendant's selected
// parent (reachability-tree) chain, answerable in O(1) via interval
// containment.
func (idx *Index) IsChainAncestor(ancestor, descendant model.Hash) (bool, error) {
	if ancestor == descendant {
		return true, nil
	}
	a, err := idx.get(ancestor)
	if err != nil {
		return false, err
	}
	d, err := idx.get(descendant)
	if err != nil {
		return false, err
	}
	return a.Interval.Contains(d.Interval), nil
}

// IsDAGAncestor reports whether ancestor is in descendant's DAG past,
// whether by tree ancestry or by a merge edge recorded in ancestor's
// future covering set. The set is sorted by interval start, so the
// candidate crossing block is found by binary search in O(log n).
func (idx *Index) IsDAGAncestor(ancestor, descendant model.Hash) (bool, error) {
	if ok, err := idx.IsChainAncestor(ancestor, descendant); err != nil || ok {
		return ok, err
	}

	a, err := idx.get(ancestor)
	if err != nil {
		return false, err
	}
	d, err := idx.get(descendant)
	if err != nil {
		return false, err
	}

	fcs := a.FutureCoveringSet
	if len(fcs) == 0 {
		return false, nil
	}

	intervals := make([]model.Interval, len(fcs))
	for i, h := range fcs {
		hd, err := idx.get(h)
		if err != nil {
			return false, err
		}
		intervals[i] = hd.Interval
	}

	// Find the rightmost entry whose interval starts at or before
	// descendant's interval start.
	i := sort.Search(len(intervals), func(i int) bool {
		return intervals[i].Start > d.Interval.Start
	}) - 1
	if i < 0 {
		return false, nil
	}
	return idx.IsChainAncestor(fcs[i], descendant)
}

// Rebuild reconstructs the reachability tree from scratch using GHOSTDAG
// selected-parent data, in blue-score order, per spec §4.4's
// rebuild-on-startup requirement. order must list every block exactly
// once, genesis first, each block appearing after its selected parent.
func (idx *Index) Rebuild(genesis model.Hash, order []model.Hash, selectedParentOf func(model.Hash) (model.Hash, []model.Hash, error), topoheight uint64) error {
	if err := idx.InitGenesis(genesis, topoheight); err != nil {
		return err
	}
	for _, block := range order {
		if block == genesis {
			continue
		}
		selectedParent, otherParents, err := selectedParentOf(block)
		if err != nil {
			return err
		}
		if err := idx.Insert(block, selectedParent, otherParents, topoheight); err != nil {
			return err
		}
	}
	return nil
}
