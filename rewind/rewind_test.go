package rewind

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/tos-network/tos-core/blockprocessor"
	"github.com/tos-network/tos-core/config"
	"github.com/tos-network/tos-core/consensus/ghostdag"
	"github.com/tos-network/tos-core/consensus/reachability"
	"github.com/tos-network/tos-core/errors"
	"github.com/tos-network/tos-core/model"
	"github.com/tos-network/tos-core/stores/blockstore"
	"github.com/tos-network/tos-core/stores/versioned/memory"
	"github.com/tos-network/tos-core/ulogger"
)

func testSettings() *config.Settings {
	return &config.Settings{
		Network:                       config.NetworkDevnet,
		StableLimit:                   24,
		PruneSafetyLimit:              2,
		KClusterSize:                  18,
		MaxBlockSize:                  1_250_000,
		MaxTransactionsPerBlock:       10_000,
		MaxParents:                    32,
		TimestampDriftToleranceMillis: 2 * 60 * 60 * 1000,
	}
}

// chain drives blockprocessor's real pipeline to build a fixture with
// genuine write logs, GHOSTDAG data and reachability records, so rewind
// is exercised against exactly what C8 actually produces.
type chain struct {
	store    *memory.Store
	reach    *reachability.Index
	ghostdag *ghostdag.Engine
	proc     *blockprocessor.Processor
	clock    int64
	hashes   []model.Hash
}

func newChain(t *testing.T, settings *config.Settings) *chain {
	t.Helper()
	store := memory.New()
	reach := reachability.New(store)
	engine := ghostdag.New(store, reach, 18)
	t.Cleanup(engine.Close)
	t.Cleanup(reach.Close)

	proc, err := blockprocessor.New(store, reach, engine, settings, nil, ulogger.New("test"))
	require.NoError(t, err)

	c := &chain{store: store, reach: reach, ghostdag: engine, proc: proc, clock: 1_700_000_000_000}
	proc.Now = func() time.Time { return time.UnixMilli(c.clock) }

	genesis := &model.BlockHeader{Version: model.VersionV1, Bits: 0x207fffff, Timestamp: uint64(c.clock)}
	require.NoError(t, proc.InitGenesis(genesis))
	c.hashes = append(c.hashes, genesis.Hash())
	return c
}

func (c *chain) addBlock(t *testing.T, miner byte, txs []*model.Transaction) model.Hash {
	t.Helper()
	c.clock += 60_000
	parent := c.hashes[len(c.hashes)-1]
	h := &model.BlockHeader{
		Version:        model.VersionV1,
		ParentsByLevel: []model.Hash{parent},
		Bits:           0x207fffff,
		Timestamp:      uint64(c.clock),
		Miner:          [32]byte{miner},
		HashMerkleRoot: model.MerkleRoot(txs),
	}
	block := &model.Block{Header: h, Transactions: txs}
	_, _, err := c.proc.ProcessBlock(context.Background(), block.Encode())
	require.NoError(t, err)
	c.hashes = append(c.hashes, h.Hash())
	return h.Hash()
}

func errCodeOf(t *testing.T, err error) errors.ERR {
	t.Helper()
	var e *errors.Error
	require.True(t, errors.As(err, &e), "expected a tagged *errors.Error, got %v", err)
	return e.Code
}

func TestRewindByPopsLatestBlockAndRestoresTips(t *testing.T) {
	settings := testSettings()
	settings.PruneSafetyLimit = 0
	c := newChain(t, settings)
	c.addBlock(t, 1, nil)
	h2 := c.addBlock(t, 2, nil)
	require.Equal(t, h2, c.hashes[len(c.hashes)-1])

	rw := New(c.store, c.reach, c.ghostdag, settings, ulogger.New("test"))
	_, err := rw.RewindBy(1, 0)
	require.NoError(t, err)

	topo, found, err := blockstore.ReadTopTopoheight(c.store)
	require.NoError(t, err)
	require.True(t, found)
	require.Equal(t, uint64(1), topo)

	tips, err := blockstore.ReadTips(c.store)
	require.NoError(t, err)
	require.Equal(t, []model.Hash{c.hashes[1]}, tips)

	require.NoError(t, c.proc.Reload())
	require.Equal(t, uint64(1), c.proc.TopTopoheight())
	require.Equal(t, []model.Hash{c.hashes[1]}, c.proc.Tips())
}

func TestRewindByReturnsTransactionsForMempoolReadmission(t *testing.T) {
	settings := testSettings()
	settings.PruneSafetyLimit = 0
	c := newChain(t, settings)

	tx := &model.Transaction{
		Version: 1, ChainID: 1,
		Data:      &model.BurnPayload{Asset: model.ZeroHash, Amount: 1},
		Reference: model.Reference{Hash: model.ZeroHash},
	}
	c.addBlock(t, 1, []*model.Transaction{tx})

	rw := New(c.store, c.reach, c.ghostdag, settings, ulogger.New("test"))
	txs, err := rw.RewindBy(1, 0)
	require.NoError(t, err)
	require.Len(t, txs, 1)
	require.Equal(t, tx.Hash(), txs[0].Hash())
}

func TestRewindByThenReprocessSameBlock(t *testing.T) {
	settings := testSettings()
	settings.PruneSafetyLimit = 0
	c := newChain(t, settings)
	c.clock += 60_000
	h := &model.BlockHeader{
		Version:        model.VersionV1,
		ParentsByLevel: []model.Hash{c.hashes[0]},
		Bits:           0x207fffff,
		Timestamp:      uint64(c.clock),
		Miner:          [32]byte{7},
	}
	block := &model.Block{Header: h}
	raw := block.Encode()
	_, _, err := c.proc.ProcessBlock(context.Background(), raw)
	require.NoError(t, err)
	c.hashes = append(c.hashes, h.Hash())

	rw := New(c.store, c.reach, c.ghostdag, settings, ulogger.New("test"))
	_, err = rw.RewindBy(1, 0)
	require.NoError(t, err)
	require.NoError(t, c.proc.Reload())

	_, topo, err := c.proc.ProcessBlock(context.Background(), raw)
	require.NoError(t, err)
	require.Equal(t, uint64(1), topo)
}

func TestRewindByRefusesBelowSafetyLimit(t *testing.T) {
	settings := testSettings()
	settings.PruneSafetyLimit = 10
	c := newChain(t, settings)
	c.addBlock(t, 1, nil)
	c.addBlock(t, 2, nil)

	rw := New(c.store, c.reach, c.ghostdag, settings, ulogger.New("test"))
	_, err := rw.RewindBy(1, 0)
	require.Error(t, err)
	require.Equal(t, errors.ERR_SAFETY_LIMIT, errCodeOf(t, err))
}

func TestRewindByRefusesMoreThanTopTopoheight(t *testing.T) {
	settings := testSettings()
	settings.PruneSafetyLimit = 0
	c := newChain(t, settings)
	c.addBlock(t, 1, nil)

	rw := New(c.store, c.reach, c.ghostdag, settings, ulogger.New("test"))
	_, err := rw.RewindBy(5, 0)
	require.Error(t, err)
	require.Equal(t, errors.ERR_SAFETY_LIMIT, errCodeOf(t, err))
}

func TestRewindByRefusesTargetBelowPrunedTopoheight(t *testing.T) {
	settings := testSettings()
	settings.PruneSafetyLimit = 0
	c := newChain(t, settings)
	c.addBlock(t, 1, nil)
	c.addBlock(t, 2, nil)

	// pruned_topoheight 1 with a zero safety limit puts the floor at 1, so
	// rewinding both blocks (target 0) is refused before any block is popped.
	require.NoError(t, blockstore.WritePrunedTopoheight(c.store, 1, 2))

	rw := New(c.store, c.reach, c.ghostdag, settings, ulogger.New("test"))
	_, err := rw.RewindBy(2, 0)
	require.Error(t, err)
	require.Equal(t, errors.ERR_SAFETY_LIMIT, errCodeOf(t, err))
}

func TestPruneAdvancesAndKeepsLatestVersion(t *testing.T) {
	settings := testSettings()
	settings.PruneSafetyLimit = 0
	c := newChain(t, settings)
	c.addBlock(t, 1, nil)
	c.addBlock(t, 2, nil)
	c.addBlock(t, 3, nil)

	rw := New(c.store, c.reach, c.ghostdag, settings, ulogger.New("test"))
	require.NoError(t, rw.Prune(2))

	pruned, found, err := blockstore.ReadPrunedTopoheight(c.store)
	require.NoError(t, err)
	require.True(t, found)
	require.Equal(t, uint64(2), pruned)

	// A block header committed before the prune boundary is still readable
	// as the kept "latest at or before" version.
	h2, found, err := blockstore.ReadHeader(c.store, c.hashes[2])
	require.NoError(t, err)
	require.True(t, found)
	require.Equal(t, c.hashes[2], h2.Hash())
}

func TestPruneRefusesNonAdvancing(t *testing.T) {
	settings := testSettings()
	settings.PruneSafetyLimit = 0
	c := newChain(t, settings)
	c.addBlock(t, 1, nil)

	rw := New(c.store, c.reach, c.ghostdag, settings, ulogger.New("test"))
	require.NoError(t, rw.Prune(1))

	err := rw.Prune(1)
	require.Error(t, err)
	require.Equal(t, errors.ERR_INVALID_ARGUMENT, errCodeOf(t, err))
}

func TestPruneRefusesBelowSafetyLimit(t *testing.T) {
	settings := testSettings()
	settings.PruneSafetyLimit = 5
	c := newChain(t, settings)
	c.addBlock(t, 1, nil)
	c.addBlock(t, 2, nil)

	rw := New(c.store, c.reach, c.ghostdag, settings, ulogger.New("test"))
	err := rw.Prune(1)
	require.Error(t, err)
	require.Equal(t, errors.ERR_SAFETY_LIMIT, errCodeOf(t, err))
}
