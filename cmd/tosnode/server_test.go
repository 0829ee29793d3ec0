package main

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/tos-network/tos-core/blockprocessor"
	"github.com/tos-network/tos-core/config"
	"github.com/tos-network/tos-core/consensus/ghostdag"
	"github.com/tos-network/tos-core/consensus/reachability"
	"github.com/tos-network/tos-core/executor"
	"github.com/tos-network/tos-core/model"
	"github.com/tos-network/tos-core/rewind"
	"github.com/tos-network/tos-core/stores/versioned/memory"
	"github.com/tos-network/tos-core/ulogger"
)

type recordingMempool struct {
	readmitted []*model.Transaction
}

func (m *recordingMempool) Readmit(txs []*model.Transaction) {
	m.readmitted = append(m.readmitted, txs...)
}

func newTestNode(t *testing.T) (*node, *memory.Store) {
	t.Helper()

	settings := &config.Settings{
		Network:                       config.NetworkDevnet,
		StableLimit:                   24,
		PruneSafetyLimit:              0,
		KClusterSize:                  18,
		MaxBlockSize:                  1_250_000,
		MaxTransactionsPerBlock:       10_000,
		MaxParents:                    32,
		TimestampDriftToleranceMillis: 2 * 60 * 60 * 1000,
	}

	store := memory.New()
	reach := reachability.New(store)
	engine := ghostdag.New(store, reach, uint8(settings.KClusterSize))
	t.Cleanup(engine.Close)
	t.Cleanup(reach.Close)

	proc, err := blockprocessor.New(store, reach, engine, settings, executor.NoOpExecutor{}, ulogger.New("test"))
	require.NoError(t, err)
	require.NoError(t, proc.InitGenesis(genesisHeader(settings)))

	rw := rewind.New(store, reach, engine, settings, ulogger.New("test"))

	return &node{
		logger:   ulogger.New("test"),
		settings: settings,
		proc:     proc,
		rewind:   rw,
		mempool:  &recordingMempool{},
	}, store
}

func TestHandleStatusReportsGenesis(t *testing.T) {
	n, _ := newTestNode(t)

	req := httptest.NewRequest(http.MethodGet, "/status", nil)
	rec := httptest.NewRecorder()
	n.handleStatus(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var resp statusResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Equal(t, uint64(0), resp.TopTopoheight)
	require.Len(t, resp.Tips, 1)
}

func TestHandleSubmitBlockAppliesAndAdvancesTopoheight(t *testing.T) {
	n, _ := newTestNode(t)

	genesisHash := n.proc.Tips()[0]
	header := &model.BlockHeader{
		Version:        model.VersionV1,
		ParentsByLevel: []model.Hash{genesisHash},
		Bits:           0x207fffff,
		Timestamp:      1_700_000_060_000,
		Miner:          [32]byte{9},
	}
	block := &model.Block{Header: header}
	raw := block.Encode()

	req := httptest.NewRequest(http.MethodPost, "/block", bytes.NewReader(raw))
	rec := httptest.NewRecorder()
	n.handleSubmitBlock(rec, req)

	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var resp submitBlockResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Equal(t, uint64(1), resp.Topoheight)
	require.Equal(t, header.Hash().String(), resp.Hash)
}

func TestHandleSubmitBlockRejectsGarbage(t *testing.T) {
	n, _ := newTestNode(t)

	req := httptest.NewRequest(http.MethodPost, "/block", bytes.NewReader([]byte("not a block")))
	rec := httptest.NewRecorder()
	n.handleSubmitBlock(rec, req)

	require.NotEqual(t, http.StatusOK, rec.Code)
}

func TestHandleRewindPopsBlockAndReadmitsTransactions(t *testing.T) {
	n, _ := newTestNode(t)
	pool := n.mempool.(*recordingMempool)

	genesisHash := n.proc.Tips()[0]
	tx := &model.Transaction{
		Version: 1, ChainID: 1,
		Data:      &model.BurnPayload{Asset: model.ZeroHash, Amount: 1},
		Reference: model.Reference{Hash: model.ZeroHash},
	}
	header := &model.BlockHeader{
		Version:        model.VersionV1,
		ParentsByLevel: []model.Hash{genesisHash},
		Bits:           0x207fffff,
		Timestamp:      1_700_000_060_000,
		Miner:          [32]byte{9},
		HashMerkleRoot: model.MerkleRoot([]*model.Transaction{tx}),
	}
	block := &model.Block{Header: header, Transactions: []*model.Transaction{tx}}
	_, _, err := n.proc.ProcessBlock(context.Background(), block.Encode())
	require.NoError(t, err)

	body, err := json.Marshal(rewindRequest{Blocks: 1})
	require.NoError(t, err)
	req := httptest.NewRequest(http.MethodPost, "/admin/rewind", bytes.NewReader(body))
	rec := httptest.NewRecorder()
	n.handleRewind(rec, req)

	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var resp rewindResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Equal(t, 1, resp.ReadmittedTransactions)
	require.Len(t, pool.readmitted, 1)
	require.Equal(t, uint64(0), n.proc.TopTopoheight())
}

func TestHandlePruneRejectsBelowSafetyLimit(t *testing.T) {
	n, _ := newTestNode(t)
	n.settings.PruneSafetyLimit = 5

	body, err := json.Marshal(pruneRequest{NewPruned: 1})
	require.NoError(t, err)
	req := httptest.NewRequest(http.MethodPost, "/admin/prune", bytes.NewReader(body))
	rec := httptest.NewRecorder()
	n.handlePrune(rec, req)

	require.NotEqual(t, http.StatusOK, rec.Code)
}
