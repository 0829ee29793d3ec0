package executor

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/tos-network/tos-core/config"
	"github.com/tos-network/tos-core/model"
	"github.com/tos-network/tos-core/stores/accountstate"
	"github.com/tos-network/tos-core/stores/versioned/memory"
	"github.com/tos-network/tos-core/ulogger"
)

func parallelTestSettings() *config.Settings {
	return &config.Settings{Network: config.NetworkDevnet, ParallelExecution: true, ParallelTestMode: true}
}

func TestApplyBlockParallelMatchesSequentialForDisjointTransfers(t *testing.T) {
	sources := [][32]byte{{1}, {2}, {3}}
	dests := [][32]byte{{11}, {12}, {13}}

	buildTxs := func() []*model.Transaction {
		txs := make([]*model.Transaction, len(sources))
		for i := range sources {
			txs[i] = &model.Transaction{
				Source:    sources[i],
				FeeType:   model.FeeTOS,
				Fee:       1,
				Reference: model.Reference{Topoheight: 1},
				Data:      &model.TransferPayload{Outputs: []model.TransferOutput{{Destination: dests[i], Asset: model.ZeroHash, Amount: 10}}},
			}
		}
		return txs
	}

	seed := func(store *memory.Store) {
		for _, s := range sources {
			seedBalance(t, store, s, model.ZeroHash, 100, 1)
		}
	}

	seqStore := memory.New()
	seed(seqStore)
	seqSnap := seqStore.Snapshot()
	_, err := ApplyBlock(context.Background(), seqSnap, testHeader(), buildTxs(), testExecSettings(), nil, 1, 2, ulogger.New("test"))
	require.NoError(t, err)
	require.NoError(t, seqSnap.Commit())

	parStore := memory.New()
	seed(parStore)
	parSnap := parStore.Snapshot()
	_, err = ApplyBlock(context.Background(), parSnap, testHeader(), buildTxs(), parallelTestSettings(), nil, 1, 2, ulogger.New("test"))
	require.NoError(t, err)
	require.NoError(t, parSnap.Commit())

	for i := range sources {
		seqAcc, _, err := accountstate.ReadAccount(seqStore, sources[i])
		require.NoError(t, err)
		parAcc, _, err := accountstate.ReadAccount(parStore, sources[i])
		require.NoError(t, err)
		require.Equal(t, seqAcc.Balances[model.ZeroHash], parAcc.Balances[model.ZeroHash])

		seqDst, _, err := accountstate.ReadAccount(seqStore, dests[i])
		require.NoError(t, err)
		parDst, _, err := accountstate.ReadAccount(parStore, dests[i])
		require.NoError(t, err)
		require.Equal(t, seqDst.Balances[model.ZeroHash], parDst.Balances[model.ZeroHash])
	}
}

func TestApplyBlockParallelRollsBackAllForksOnConflict(t *testing.T) {
	store := memory.New()
	source := [32]byte{1}
	other := [32]byte{2}
	seedBalance(t, store, source, model.ZeroHash, 5, 1)
	seedBalance(t, store, other, model.ZeroHash, 100, 1)

	bad := &model.Transaction{
		Source:    source,
		FeeType:   model.FeeTOS,
		Reference: model.Reference{Topoheight: 1},
		Data:      &model.TransferPayload{Outputs: []model.TransferOutput{{Destination: other, Asset: model.ZeroHash, Amount: 1000}}},
	}
	ok := &model.Transaction{
		Source:    other,
		FeeType:   model.FeeTOS,
		Reference: model.Reference{Topoheight: 1},
		Data:      &model.TransferPayload{Outputs: []model.TransferOutput{{Destination: source, Asset: model.ZeroHash, Amount: 1}}},
	}

	snap := store.Snapshot()
	_, err := ApplyBlock(context.Background(), snap, testHeader(), []*model.Transaction{bad, ok}, parallelTestSettings(), nil, 1, 2, ulogger.New("test"))
	require.Error(t, err)
}
