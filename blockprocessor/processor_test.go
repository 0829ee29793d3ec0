package blockprocessor

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/tos-network/tos-core/config"
	"github.com/tos-network/tos-core/consensus/ghostdag"
	"github.com/tos-network/tos-core/consensus/reachability"
	"github.com/tos-network/tos-core/errors"
	"github.com/tos-network/tos-core/model"
	"github.com/tos-network/tos-core/stores/accountstate"
	"github.com/tos-network/tos-core/stores/versioned/memory"
	"github.com/tos-network/tos-core/ulogger"
)

func testSettings() *config.Settings {
	return &config.Settings{
		Network:                       config.NetworkDevnet,
		StableLimit:                   24,
		PruneSafetyLimit:              240,
		KClusterSize:                  18,
		MaxBlockSize:                  1_250_000,
		MaxTransactionsPerBlock:       10_000,
		MaxParents:                    32,
		TimestampDriftToleranceMillis: 2 * 60 * 60 * 1000,
	}
}

func newTestProcessor(t *testing.T) (*Processor, *memory.Store) {
	store := memory.New()
	reach := reachability.New(store)
	engine := ghostdag.New(store, reach, 18)
	t.Cleanup(engine.Close)
	t.Cleanup(reach.Close)

	p, err := New(store, reach, engine, testSettings(), nil, ulogger.New("test"))
	require.NoError(t, err)
	return p, store
}

func genesisHeader(timestamp uint64) *model.BlockHeader {
	return &model.BlockHeader{
		Version:   model.VersionV1,
		Bits:      0x207fffff,
		Timestamp: timestamp,
	}
}

func childHeader(parents []model.Hash, miner [32]byte, timestamp uint64, txs []*model.Transaction) *model.BlockHeader {
	model.SortHashes(parents)
	return &model.BlockHeader{
		Version:        model.VersionV1,
		ParentsByLevel: parents,
		Bits:           0x207fffff,
		Timestamp:      timestamp,
		Miner:          miner,
		HashMerkleRoot: model.MerkleRoot(txs),
	}
}

func errCodeOf(t *testing.T, err error) errors.ERR {
	t.Helper()
	var e *errors.Error
	require.True(t, errors.As(err, &e), "expected a tagged *errors.Error, got %v", err)
	return e.Code
}

func TestProcessorGenesisAndLinearChain(t *testing.T) {
	p, store := newTestProcessor(t)
	clock := int64(1_700_000_000_000)
	p.Now = func() time.Time { return time.UnixMilli(clock) }

	genesis := genesisHeader(uint64(clock))
	require.NoError(t, p.InitGenesis(genesis))
	genesisHash := genesis.Hash()

	require.Equal(t, uint64(0), p.TopTopoheight())
	require.Equal(t, uint64(0), p.TopHeight())
	require.Equal(t, uint64(1), p.BlocksCount())
	require.Equal(t, []model.Hash{genesisHash}, p.Tips())

	miner1 := [32]byte{1}
	clock += 60_000
	h1 := childHeader([]model.Hash{genesisHash}, miner1, uint64(clock), nil)
	block1 := &model.Block{Header: h1}

	_, topo, err := p.ProcessBlock(context.Background(), block1.Encode())
	require.NoError(t, err)
	require.Equal(t, uint64(1), topo)
	require.Equal(t, uint64(1), p.TopTopoheight())
	require.Equal(t, uint64(1), p.TopHeight())
	require.Equal(t, uint64(2), p.BlocksCount())
	require.Equal(t, []model.Hash{h1.Hash()}, p.Tips())

	acc, found, err := accountstate.ReadAccount(store, miner1)
	require.NoError(t, err)
	require.True(t, found)
	require.Greater(t, acc.Balances[model.ZeroHash], uint64(0))

	miner2 := [32]byte{2}
	clock += 60_000
	h2 := childHeader([]model.Hash{h1.Hash()}, miner2, uint64(clock), nil)
	block2 := &model.Block{Header: h2}

	_, topo, err = p.ProcessBlock(context.Background(), block2.Encode())
	require.NoError(t, err)
	require.Equal(t, uint64(2), topo)
	require.Equal(t, uint64(2), p.TopHeight())
	require.Equal(t, uint64(3), p.BlocksCount())
	require.Equal(t, []model.Hash{h2.Hash()}, p.Tips())
}

func TestProcessorRejectsEmptyBlockWithMerkleRoot(t *testing.T) {
	p, _ := newTestProcessor(t)
	clock := int64(1_700_000_000_000)
	p.Now = func() time.Time { return time.UnixMilli(clock) }

	genesis := genesisHeader(uint64(clock))
	require.NoError(t, p.InitGenesis(genesis))

	clock += 60_000
	h := childHeader([]model.Hash{genesis.Hash()}, [32]byte{1}, uint64(clock), nil)
	h.HashMerkleRoot = model.Hash{0xFF}
	block := &model.Block{Header: h}

	_, _, err := p.ProcessBlock(context.Background(), block.Encode())
	require.Error(t, err)
	require.Equal(t, errors.ERR_EMPTY_BLOCK_WITH_MERKLE_ROOT, errCodeOf(t, err))
}

func TestProcessorRejectsNonSortedOrDuplicateParents(t *testing.T) {
	p, _ := newTestProcessor(t)
	clock := int64(1_700_000_000_000)
	p.Now = func() time.Time { return time.UnixMilli(clock) }

	genesis := genesisHeader(uint64(clock))
	require.NoError(t, p.InitGenesis(genesis))
	gHash := genesis.Hash()

	clock += 60_000
	h := &model.BlockHeader{
		Version:        model.VersionV1,
		ParentsByLevel: []model.Hash{gHash, gHash}, // duplicate, not ascending
		Bits:           0x207fffff,
		Timestamp:      uint64(clock),
	}
	block := &model.Block{Header: h}

	_, _, err := p.ProcessBlock(context.Background(), block.Encode())
	require.Error(t, err)
	require.Equal(t, errors.ERR_PARENTS_NOT_SORTED_OR_DUPLICATE, errCodeOf(t, err))
}

func TestProcessorRejectsReachableParent(t *testing.T) {
	p, _ := newTestProcessor(t)
	clock := int64(1_700_000_000_000)
	p.Now = func() time.Time { return time.UnixMilli(clock) }

	genesis := genesisHeader(uint64(clock))
	require.NoError(t, p.InitGenesis(genesis))
	gHash := genesis.Hash()

	clock += 60_000
	h1 := childHeader([]model.Hash{gHash}, [32]byte{1}, uint64(clock), nil)
	block1 := &model.Block{Header: h1}
	_, _, err := p.ProcessBlock(context.Background(), block1.Encode())
	require.NoError(t, err)

	clock += 60_000
	// gHash is an ancestor of h1.Hash(); naming both as parents must fail.
	bad := childHeader([]model.Hash{gHash, h1.Hash()}, [32]byte{2}, uint64(clock), nil)
	block2 := &model.Block{Header: bad}
	_, _, err = p.ProcessBlock(context.Background(), block2.Encode())
	require.Error(t, err)
	require.Equal(t, errors.ERR_PARENT_REACHABLE, errCodeOf(t, err))
}

func TestProcessorRejectsBadTimestamp(t *testing.T) {
	p, _ := newTestProcessor(t)
	clock := int64(1_700_000_000_000)
	p.Now = func() time.Time { return time.UnixMilli(clock) }

	genesis := genesisHeader(uint64(clock))
	require.NoError(t, p.InitGenesis(genesis))
	gHash := genesis.Hash()

	// timestamp equal to genesis's (the only past timestamp) must be rejected:
	// the median-past rule requires strictly greater.
	h := childHeader([]model.Hash{gHash}, [32]byte{1}, uint64(clock), nil)
	block := &model.Block{Header: h}

	_, _, err := p.ProcessBlock(context.Background(), block.Encode())
	require.Error(t, err)
	require.Equal(t, errors.ERR_BAD_TIMESTAMP, errCodeOf(t, err))
}

func TestProcessorRejectsOversizeBlock(t *testing.T) {
	p, _ := newTestProcessor(t)
	p.settings.MaxBlockSize = 8

	clock := int64(1_700_000_000_000)
	p.Now = func() time.Time { return time.UnixMilli(clock) }
	genesis := genesisHeader(uint64(clock))
	require.NoError(t, p.InitGenesis(genesis))

	clock += 60_000
	h := childHeader([]model.Hash{genesis.Hash()}, [32]byte{1}, uint64(clock), nil)
	block := &model.Block{Header: h}

	_, _, err := p.ProcessBlock(context.Background(), block.Encode())
	require.Error(t, err)
	require.Equal(t, errors.ERR_BLOCK_TOO_LARGE, errCodeOf(t, err))
}

func TestProcessorRejectsTooManyTransactions(t *testing.T) {
	p, _ := newTestProcessor(t)
	p.settings.MaxTransactionsPerBlock = 0

	clock := int64(1_700_000_000_000)
	p.Now = func() time.Time { return time.UnixMilli(clock) }
	genesis := genesisHeader(uint64(clock))
	require.NoError(t, p.InitGenesis(genesis))

	clock += 60_000
	tx := &model.Transaction{
		Version: 1, ChainID: 1,
		Data:      &model.BurnPayload{Asset: model.ZeroHash, Amount: 1},
		Reference: model.Reference{Hash: model.ZeroHash},
	}
	h := childHeader([]model.Hash{genesis.Hash()}, [32]byte{1}, uint64(clock), []*model.Transaction{tx})
	block := &model.Block{Header: h, Transactions: []*model.Transaction{tx}}

	_, _, err := p.ProcessBlock(context.Background(), block.Encode())
	require.Error(t, err)
	require.Equal(t, errors.ERR_TOO_MANY_TRANSACTIONS, errCodeOf(t, err))
}
