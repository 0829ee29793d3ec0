package ghostdag

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/tos-network/tos-core/consensus/reachability"
	"github.com/tos-network/tos-core/model"
	"github.com/tos-network/tos-core/stores/versioned/memory"
)

type fixture struct {
	store     *memory.Store
	reach     *reachability.Index
	engine    *Engine
	headers   map[model.Hash]*model.BlockHeader
	parents   map[model.Hash][]model.Hash
	topoheight uint64
}

func newFixture(t *testing.T, k uint8) *fixture {
	store := memory.New()
	reach := reachability.New(store)
	engine := New(store, reach, k)
	return &fixture{
		store:   store,
		reach:   reach,
		engine:  engine,
		headers: map[model.Hash]*model.BlockHeader{},
		parents: map[model.Hash][]model.Hash{},
	}
}

func (f *fixture) parentsOf(h model.Hash) ([]model.Hash, error) { return f.parents[h], nil }
func (f *fixture) headerOf(h model.Hash) (*model.BlockHeader, error) {
	return f.headers[h], nil
}

func hashN(b byte) model.Hash {
	var h model.Hash
	h[0] = b
	return h
}

func (f *fixture) addGenesis(t *testing.T, h model.Hash) {
	f.topoheight++
	require.NoError(t, f.reach.InitGenesis(h, f.topoheight))
	require.NoError(t, f.engine.PutGenesis(h, f.topoheight))
	f.headers[h] = &model.BlockHeader{Bits: 0x207fffff}
}

func (f *fixture) addBlock(t *testing.T, h model.Hash, parents []model.Hash) *model.GhostdagData {
	f.topoheight++
	f.parents[h] = parents
	header := &model.BlockHeader{ParentsByLevel: parents, Bits: 0x207fffff}
	f.headers[h] = header

	data, err := f.engine.ComputeBlockData(header, f.parentsOf, f.headerOf)
	require.NoError(t, err)
	require.NoError(t, f.engine.Put(h, data, f.topoheight))
	require.NoError(t, f.reach.Insert(h, data.SelectedParent, parents, f.topoheight))
	return data
}

func TestLinearChainBlueScore(t *testing.T) {
	f := newFixture(t, 18)
	genesis := hashN(1)
	f.addGenesis(t, genesis)

	a := f.addBlock(t, hashN(2), []model.Hash{genesis})
	require.Equal(t, uint64(1), a.BlueScore)
	require.Empty(t, a.MergesetBlues)

	b := f.addBlock(t, hashN(3), []model.Hash{hashN(2)})
	require.Equal(t, uint64(2), b.BlueScore)
}

func TestMergeBlockClassifiesSiblingBlue(t *testing.T) {
	f := newFixture(t, 18)
	genesis := hashN(1)
	f.addGenesis(t, genesis)

	left := f.addBlock(t, hashN(2), []model.Hash{genesis})
	_ = left
	f.addBlock(t, hashN(3), []model.Hash{genesis})

	merge := f.addBlock(t, hashN(4), []model.Hash{hashN(2), hashN(3)})
	require.Equal(t, hashN(3), merge.SelectedParent)
	require.Contains(t, merge.MergesetBlues, hashN(2))
	require.Empty(t, merge.MergesetReds)
}

func TestDeleteRemovesRecordAndEvictsCache(t *testing.T) {
	f := newFixture(t, 18)
	genesis := hashN(1)
	f.addGenesis(t, genesis)

	a := hashN(2)
	f.addBlock(t, a, []model.Hash{genesis})

	_, err := f.engine.Get(a)
	require.NoError(t, err)

	require.NoError(t, f.engine.Delete(a, f.topoheight))

	_, err = f.engine.Get(a)
	require.Error(t, err)
}

func TestKClusterViolationTurnsRed(t *testing.T) {
	f := newFixture(t, 0)
	genesis := hashN(1)
	f.addGenesis(t, genesis)

	// Two independent siblings off genesis with k=0: merging both into one
	// block puts them in each other's anticone, which is allowed (they are
	// each other's candidates, not yet blue), but a third independent
	// sibling added on top should be forced red since k=0 tolerates no
	// anticone at all once a first blue candidate is accepted.
	f.addBlock(t, hashN(2), []model.Hash{genesis})
	f.addBlock(t, hashN(3), []model.Hash{genesis})
	f.addBlock(t, hashN(4), []model.Hash{genesis})

	merge := f.addBlock(t, hashN(5), []model.Hash{hashN(2), hashN(3), hashN(4)})
	require.NotEmpty(t, merge.MergesetReds)
}
