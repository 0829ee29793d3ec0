package blockstore

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/tos-network/tos-core/model"
	"github.com/tos-network/tos-core/stores/versioned/memory"
)

func sampleHeader() *model.BlockHeader {
	return &model.BlockHeader{
		Version:        model.VersionV1,
		ParentsByLevel: []model.Hash{{1}},
		Bits:           0x207fffff,
		Timestamp:      1700000000000,
	}
}

func TestHeaderRoundTrip(t *testing.T) {
	store := memory.New()
	h := sampleHeader()

	require.NoError(t, WriteHeader(store, h, 1))
	got, found, err := ReadHeader(store, h.Hash())
	require.NoError(t, err)
	require.True(t, found)
	require.Equal(t, h.Hash(), got.Hash())
}

func TestHeaderNotFound(t *testing.T) {
	store := memory.New()
	_, found, err := ReadHeader(store, model.Hash{0xAB})
	require.NoError(t, err)
	require.False(t, found)
}

func TestBodyRoundTrip(t *testing.T) {
	store := memory.New()
	tx := &model.Transaction{
		Version: 1, ChainID: 1,
		Data:      &model.BurnPayload{Asset: model.ZeroHash, Amount: 5},
		Reference: model.Reference{Hash: model.ZeroHash},
	}
	hash := model.Hash{9}

	require.NoError(t, WriteBody(store, hash, []*model.Transaction{tx}, 1))
	got, found, err := ReadBody(store, hash)
	require.NoError(t, err)
	require.True(t, found)
	require.Len(t, got, 1)
	require.Equal(t, tx.Hash(), got[0].Hash())
}

func TestHashTopoheightIndexRoundTrip(t *testing.T) {
	store := memory.New()
	hash := model.Hash{3}

	require.NoError(t, WriteHashAtTopoheight(store, 7, hash, 7))
	require.NoError(t, WriteTopoheightByHash(store, hash, 7, 7))

	gotHash, found, err := ReadHashAtTopoheight(store, 7)
	require.NoError(t, err)
	require.True(t, found)
	require.Equal(t, hash, gotHash)

	gotTopo, found, err := ReadTopoheightByHash(store, hash)
	require.NoError(t, err)
	require.True(t, found)
	require.Equal(t, uint64(7), gotTopo)
}

func TestBlocksAtHeightAccumulates(t *testing.T) {
	store := memory.New()
	a, b := model.Hash{1}, model.Hash{2}

	require.NoError(t, WriteBlocksAtHeight(store, 5, []model.Hash{a}, 1))
	got, err := ReadBlocksAtHeight(store, 5)
	require.NoError(t, err)
	require.Equal(t, []model.Hash{a}, got)

	require.NoError(t, WriteBlocksAtHeight(store, 5, append(got, b), 2))
	got, err = ReadBlocksAtHeight(store, 5)
	require.NoError(t, err)
	require.Equal(t, []model.Hash{a, b}, got)
}

func TestBlockExecutionOrderAndTipsRoundTrip(t *testing.T) {
	store := memory.New()
	a, b := model.Hash{1}, model.Hash{2}

	require.NoError(t, WriteBlockExecutionOrder(store, []model.Hash{a, b}, 2))
	order, err := ReadBlockExecutionOrder(store)
	require.NoError(t, err)
	require.Equal(t, []model.Hash{a, b}, order)

	require.NoError(t, WriteTips(store, []model.Hash{b}, 2))
	tips, err := ReadTips(store)
	require.NoError(t, err)
	require.Equal(t, []model.Hash{b}, tips)
}

func TestChainMetaCountersRoundTrip(t *testing.T) {
	store := memory.New()

	require.NoError(t, WriteTopTopoheight(store, 10, 10))
	require.NoError(t, WriteTopHeight(store, 4, 10))
	require.NoError(t, WriteBlocksCount(store, 11, 10))
	require.NoError(t, WritePrunedTopoheight(store, 2, 10))

	topo, found, err := ReadTopTopoheight(store)
	require.NoError(t, err)
	require.True(t, found)
	require.Equal(t, uint64(10), topo)

	height, found, err := ReadTopHeight(store)
	require.NoError(t, err)
	require.True(t, found)
	require.Equal(t, uint64(4), height)

	count, found, err := ReadBlocksCount(store)
	require.NoError(t, err)
	require.True(t, found)
	require.Equal(t, uint64(11), count)

	pruned, found, err := ReadPrunedTopoheight(store)
	require.NoError(t, err)
	require.True(t, found)
	require.Equal(t, uint64(2), pruned)
}

func TestChainMetaCountersNotFoundInitially(t *testing.T) {
	store := memory.New()

	_, found, err := ReadTopTopoheight(store)
	require.NoError(t, err)
	require.False(t, found)
}
