// Package ghostdag implements C5: GHOSTDAG block-DAG coloring (spec
// §4.5) — selected-parent choice, mergeset discovery via C4 reachability
// queries, k-cluster blue/red classification, and blue_score/blue_work
// accumulation. There is no direct teacher analog (Teranode orders a
// linear chain, not a DAG); this package is structured the way the
// teacher structures a stateless algorithm operating over store-backed
// records (services/blockvalidation): an LRU cache in front of C3, with
// singleflight coalescing concurrent cache misses for the same block.
package ghostdag

import (
	"sort"

	"github.com/jellydator/ttlcache/v3"
	"golang.org/x/sync/singleflight"

	"github.com/tos-network/tos-core/consensus/reachability"
	"github.com/tos-network/tos-core/errors"
	"github.com/tos-network/tos-core/model"
	"github.com/tos-network/tos-core/stores/versioned"
)

// ParentsFunc returns the full DAG parent set (header.ParentsByLevel) of
// an already-known block, used to walk the DAG during mergeset BFS.
type ParentsFunc func(hash model.Hash) ([]model.Hash, error)

// HeaderFunc returns the header of an already-known block, used to pull
// each mergeset member's difficulty bits for the blue_work accumulation.
type HeaderFunc func(hash model.Hash) (*model.BlockHeader, error)

// Engine is C5.
type Engine struct {
	store versioned.Store
	reach *reachability.Index
	k     uint8

	cache *ttlcache.Cache[model.Hash, *model.GhostdagData]
	group singleflight.Group
}

func New(store versioned.Store, reach *reachability.Index, k uint8) *Engine {
	cache := ttlcache.New[model.Hash, *model.GhostdagData](
		ttlcache.WithCapacity[model.Hash, *model.GhostdagData](4096),
	)
	go cache.Start()
	return &Engine{store: store, reach: reach, k: k, cache: cache}
}

func (e *Engine) Close() { e.cache.Stop() }

// Get returns the already-computed GHOSTDAG record for hash.
func (e *Engine) Get(hash model.Hash) (*model.GhostdagData, error) {
	if item := e.cache.Get(hash); item != nil {
		return item.Value(), nil
	}
	v, err, _ := e.group.Do(string(hash[:]), func() (interface{}, error) {
		raw, _, found, err := e.store.GetLatest(versioned.ColumnGhostdagData, hash[:])
		if err != nil {
			return nil, err
		}
		if !found {
			return nil, errors.New(errors.ERR_NOT_FOUND, "no ghostdag record for block")
		}
		data, err := model.DecodeGhostdagData(raw)
		if err != nil {
			return nil, err
		}
		e.cache.Set(hash, data, ttlcache.DefaultTTL)
		return data, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*model.GhostdagData), nil
}

// Put persists the GHOSTDAG record computed for hash.
func (e *Engine) Put(hash model.Hash, data *model.GhostdagData, topoheight uint64) error {
	if err := e.store.Put(versioned.ColumnGhostdagData, hash[:], data.Encode(), topoheight); err != nil {
		return err
	}
	e.cache.Set(hash, data, ttlcache.DefaultTTL)
	return nil
}

// Delete removes the GHOSTDAG record for hash written at topoheight,
// for C9's rewind. hash's record must be its only version at topoheight.
func (e *Engine) Delete(hash model.Hash, topoheight uint64) error {
	if err := e.store.DeleteAt(versioned.ColumnGhostdagData, hash[:], topoheight); err != nil {
		return err
	}
	e.cache.Delete(hash)
	return nil
}

// PutGenesis records the zero-valued GHOSTDAG record for the DAG root.
func (e *Engine) PutGenesis(genesis model.Hash, topoheight uint64) error {
	return e.Put(genesis, &model.GhostdagData{BluesAnticoneSizes: map[model.Hash]uint8{}}, topoheight)
}

// workFromBits converts a block's compact difficulty target into a work
// value, using the standard inverse-of-target relationship truncated to
// fit the 64-bit low limb of BigWork — sufficient for relative blue_work
// comparisons between blocks mined under realistic difficulty ranges.
func workFromBits(bits uint32) model.BigWork {
	target := compactToTarget(bits)
	if target == 0 {
		return model.BigWork{1, 0, 0}
	}
	return model.BigWork{^uint64(0) / target, 0, 0}
}

// compactToTarget expands Bitcoin-style compact "nBits" difficulty
// encoding (1-byte exponent, 3-byte mantissa) into a target value,
// saturated to fit uint64 for this package's work-comparison purposes.
func compactToTarget(bits uint32) uint64 {
	exponent := bits >> 24
	mantissa := uint64(bits & 0x007fffff)
	if exponent <= 3 {
		return mantissa >> (8 * (3 - exponent))
	}
	shift := 8 * (exponent - 3)
	if shift >= 64 {
		return ^uint64(0)
	}
	if mantissa == 0 {
		return 0
	}
	if shift > 0 && mantissa > (^uint64(0))>>shift {
		return ^uint64(0)
	}
	return mantissa << shift
}

// ComputeBlockData computes the full GHOSTDAG record for a new block
// given its header, using parentsOf/headerOf to walk already-known
// ancestors and reachability for anticone tests (spec §4.5 steps 1-4).
func (e *Engine) ComputeBlockData(header *model.BlockHeader, parentsOf ParentsFunc, headerOf HeaderFunc) (*model.GhostdagData, error) {
	parents := header.ParentsByLevel
	if len(parents) == 0 {
		return nil, errors.New(errors.ERR_INVALID_ARGUMENT, "block has no parents; genesis must be seeded via PutGenesis")
	}

	selectedParent, err := e.selectParent(parents)
	if err != nil {
		return nil, err
	}
	selectedParentData, err := e.Get(selectedParent)
	if err != nil {
		return nil, err
	}

	otherParents := make([]model.Hash, 0, len(parents)-1)
	for _, p := range parents {
		if p != selectedParent {
			otherParents = append(otherParents, p)
		}
	}

	mergeset, err := e.discoverMergeset(selectedParent, otherParents, parentsOf)
	if err != nil {
		return nil, err
	}
	if err := e.sortByBlueWork(mergeset); err != nil {
		return nil, err
	}

	blues, reds, anticoneSizes, err := e.classify(mergeset)
	if err != nil {
		return nil, err
	}

	blueWorkDelta := workFromBits(header.Bits)
	for _, b := range blues {
		bh, err := headerOf(b)
		if err != nil {
			return nil, err
		}
		blueWorkDelta = blueWorkDelta.Add(workFromBits(bh.Bits))
	}

	return &model.GhostdagData{
		BlueScore:          selectedParentData.BlueScore + 1 + uint64(len(blues)),
		BlueWork:           selectedParentData.BlueWork.Add(blueWorkDelta),
		SelectedParent:     selectedParent,
		MergesetBlues:      blues,
		MergesetReds:       reds,
		BluesAnticoneSizes: anticoneSizes,
	}, nil
}

// selectParent picks the parent with the greatest blue_work, breaking
// ties by the lexicographically greater hash (spec §4.5 step 1: ties
// must resolve deterministically the same way on every node).
func (e *Engine) selectParent(parents []model.Hash) (model.Hash, error) {
	var best model.Hash
	var bestData *model.GhostdagData
	for _, p := range parents {
		data, err := e.Get(p)
		if err != nil {
			return model.Hash{}, err
		}
		if bestData == nil {
			best, bestData = p, data
			continue
		}
		cmp := data.BlueWork.Cmp(bestData.BlueWork)
		if cmp > 0 || (cmp == 0 && p.Compare(best) > 0) {
			best, bestData = p, data
		}
	}
	return best, nil
}

// discoverMergeset finds every block reachable from otherParents that is
// not already in selectedParent's DAG past, by BFS over full DAG parent
// edges, pruning a branch as soon as it reaches selectedParent's past
// (everything further back is necessarily also in that past).
func (e *Engine) discoverMergeset(selectedParent model.Hash, otherParents []model.Hash, parentsOf ParentsFunc) ([]model.Hash, error) {
	visited := make(map[model.Hash]bool, 64)
	queue := append([]model.Hash{}, otherParents...)
	for _, h := range queue {
		visited[h] = true
	}

	var mergeset []model.Hash
	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]

		inPast, err := e.reach.IsDAGAncestor(cur, selectedParent)
		if err != nil {
			return nil, err
		}
		if inPast {
			continue
		}
		mergeset = append(mergeset, cur)

		curParents, err := parentsOf(cur)
		if err != nil {
			return nil, err
		}
		for _, p := range curParents {
			if !visited[p] {
				visited[p] = true
				queue = append(queue, p)
			}
		}
	}
	return mergeset, nil
}

// sortByBlueWork orders the mergeset into the deterministic processing
// order GHOSTDAG classification requires: ascending blue_work (every
// mergeset member already has a committed GHOSTDAG record, since it was
// processed as a block before the block currently being colored),
// breaking ties by hash.
func (e *Engine) sortByBlueWork(mergeset []model.Hash) error {
	data := make(map[model.Hash]*model.GhostdagData, len(mergeset))
	for _, h := range mergeset {
		d, err := e.Get(h)
		if err != nil {
			return err
		}
		data[h] = d
	}
	sort.Slice(mergeset, func(i, j int) bool {
		a, b := data[mergeset[i]], data[mergeset[j]]
		if cmp := a.BlueWork.Cmp(b.BlueWork); cmp != 0 {
			return cmp < 0
		}
		return mergeset[i].Compare(mergeset[j]) < 0
	})
	return nil
}

// classify applies the k-cluster rule (spec §4.5 step 3): a mergeset
// candidate is blue if its anticone among the blues accumulated so far
// does not exceed k, and admitting it does not push any already-blue
// block's own blue-anticone size past k either.
func (e *Engine) classify(mergeset []model.Hash) (blues, reds []model.Hash, anticoneSizes map[model.Hash]uint8, err error) {
	anticoneSizes = make(map[model.Hash]uint8, len(mergeset))
	var accepted []model.Hash

	for _, candidate := range mergeset {
		count := 0
		violates := false
		for _, b := range accepted {
			isAnticone, aerr := e.inAnticone(candidate, b)
			if aerr != nil {
				return nil, nil, nil, aerr
			}
			if !isAnticone {
				continue
			}
			count++
			if count > int(e.k) || anticoneSizes[b]+1 > e.k {
				violates = true
				break
			}
		}
		if violates {
			reds = append(reds, candidate)
			continue
		}
		for _, b := range accepted {
			isAnticone, aerr := e.inAnticone(candidate, b)
			if aerr != nil {
				return nil, nil, nil, aerr
			}
			if isAnticone {
				anticoneSizes[b]++
			}
		}
		anticoneSizes[candidate] = uint8(count)
		accepted = append(accepted, candidate)
	}
	return accepted, reds, anticoneSizes, nil
}

func (e *Engine) inAnticone(a, b model.Hash) (bool, error) {
	aAncestor, err := e.reach.IsDAGAncestor(a, b)
	if err != nil {
		return false, err
	}
	if aAncestor {
		return false, nil
	}
	bAncestor, err := e.reach.IsDAGAncestor(b, a)
	if err != nil {
		return false, err
	}
	return !bAncestor, nil
}
