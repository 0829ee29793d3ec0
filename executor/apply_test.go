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

func testExecSettings() *config.Settings {
	return &config.Settings{Network: config.NetworkDevnet}
}

func testHeader() *model.BlockHeader {
	return &model.BlockHeader{
		Version:        model.VersionV1,
		ParentsByLevel: []model.Hash{model.ZeroHash},
		BlueScore:      1,
		Timestamp:      1000,
	}
}

func seedBalance(t *testing.T, store *memory.Store, pk [32]byte, asset model.Hash, amount uint64, topo uint64) {
	t.Helper()
	acc := model.NewAccount(pk)
	acc.Balances[asset] = amount
	require.NoError(t, accountstate.WriteAccount(store, acc, topo))
}

func TestApplyBlockTransferMovesBalance(t *testing.T) {
	store := memory.New()
	source, dest := [32]byte{1}, [32]byte{2}
	seedBalance(t, store, source, model.ZeroHash, 100, 1)

	tx := &model.Transaction{
		Source:    source,
		Fee:       5,
		FeeType:   model.FeeTOS,
		Reference: model.Reference{Topoheight: 1},
		Data:      &model.TransferPayload{Outputs: []model.TransferOutput{{Destination: dest, Asset: model.ZeroHash, Amount: 20}}},
	}

	snap := store.Snapshot()
	result, err := ApplyBlock(context.Background(), snap, testHeader(), []*model.Transaction{tx}, testExecSettings(), nil, 1, 2, ulogger.New("test"))
	require.NoError(t, err)
	require.NotNil(t, result)
	require.NoError(t, snap.Commit())

	srcAcc, found, err := accountstate.ReadAccount(store, source)
	require.NoError(t, err)
	require.True(t, found)
	require.Equal(t, uint64(100-5-20), srcAcc.Balances[model.ZeroHash])
	require.Equal(t, uint64(1), srcAcc.Nonce)

	dstAcc, found, err := accountstate.ReadAccount(store, dest)
	require.NoError(t, err)
	require.True(t, found)
	require.Equal(t, uint64(20), dstAcc.Balances[model.ZeroHash])
}

func TestApplyBlockRejectsInsufficientBalance(t *testing.T) {
	store := memory.New()
	source, dest := [32]byte{1}, [32]byte{2}
	seedBalance(t, store, source, model.ZeroHash, 5, 1)

	tx := &model.Transaction{
		Source:    source,
		FeeType:   model.FeeTOS,
		Reference: model.Reference{Topoheight: 1},
		Data:      &model.TransferPayload{Outputs: []model.TransferOutput{{Destination: dest, Asset: model.ZeroHash, Amount: 100}}},
	}

	snap := store.Snapshot()
	_, err := ApplyBlock(context.Background(), snap, testHeader(), []*model.Transaction{tx}, testExecSettings(), nil, 1, 2, ulogger.New("test"))
	require.Error(t, err)
}

func TestApplyBlockBurnReducesSupply(t *testing.T) {
	store := memory.New()
	source := [32]byte{1}
	seedBalance(t, store, source, model.ZeroHash, 50, 1)
	require.NoError(t, adjustSupply(store, model.ZeroHash, 1000, 1))

	tx := &model.Transaction{
		Source:    source,
		FeeType:   model.FeeTOS,
		Reference: model.Reference{Topoheight: 1},
		Data:      &model.BurnPayload{Asset: model.ZeroHash, Amount: 30},
	}

	snap := store.Snapshot()
	_, err := ApplyBlock(context.Background(), snap, testHeader(), []*model.Transaction{tx}, testExecSettings(), nil, 1, 2, ulogger.New("test"))
	require.NoError(t, err)
	require.NoError(t, snap.Commit())

	supply, err := readSupply(store, model.ZeroHash)
	require.NoError(t, err)
	require.Equal(t, uint64(970), supply)
}

func TestApplyBlockEnergyFreezeAndUnfreeze(t *testing.T) {
	store := memory.New()
	source := [32]byte{1}
	seedBalance(t, store, source, model.ZeroHash, 100, 1)

	freeze := &model.Transaction{
		Source:    source,
		FeeType:   model.FeeTOS,
		Reference: model.Reference{Topoheight: 1},
		Data:      &model.EnergyFreezePayload{Amount: 40},
	}

	snap := store.Snapshot()
	_, err := ApplyBlock(context.Background(), snap, testHeader(), []*model.Transaction{freeze}, testExecSettings(), nil, 1, 2, ulogger.New("test"))
	require.NoError(t, err)
	require.NoError(t, snap.Commit())

	acc, _, err := accountstate.ReadAccount(store, source)
	require.NoError(t, err)
	require.Equal(t, uint64(60), acc.Balances[model.ZeroHash])
	require.Equal(t, uint64(40), acc.EnergyFrozen)

	unfreeze := &model.Transaction{
		Source:    source,
		Nonce:     1,
		FeeType:   model.FeeTOS,
		Reference: model.Reference{Topoheight: 2},
		Data:      &model.EnergyUnfreezePayload{Amount: 15},
	}
	snap2 := store.Snapshot()
	_, err = ApplyBlock(context.Background(), snap2, testHeader(), []*model.Transaction{unfreeze}, testExecSettings(), nil, 2, 3, ulogger.New("test"))
	require.NoError(t, err)
	require.NoError(t, snap2.Commit())

	acc2, _, err := accountstate.ReadAccount(store, source)
	require.NoError(t, err)
	require.Equal(t, uint64(75), acc2.Balances[model.ZeroHash])
	require.Equal(t, uint64(25), acc2.EnergyFrozen)
}

func TestApplyBlockEnergyUnfreezeRejectsOverdraw(t *testing.T) {
	store := memory.New()
	source := [32]byte{1}
	acc := model.NewAccount(source)
	acc.EnergyFrozen = 5
	require.NoError(t, accountstate.WriteAccount(store, acc, 1))

	tx := &model.Transaction{
		Source:    source,
		FeeType:   model.FeeTOS,
		Reference: model.Reference{Topoheight: 1},
		Data:      &model.EnergyUnfreezePayload{Amount: 10},
	}

	snap := store.Snapshot()
	_, err := ApplyBlock(context.Background(), snap, testHeader(), []*model.Transaction{tx}, testExecSettings(), nil, 1, 2, ulogger.New("test"))
	require.Error(t, err)
}

func TestApplyBlockSetKYCStatus(t *testing.T) {
	store := memory.New()
	source, subject := [32]byte{1}, [32]byte{2}
	seedBalance(t, store, source, model.ZeroHash, 10, 1)

	tx := &model.Transaction{
		Source:    source,
		FeeType:   model.FeeTOS,
		Reference: model.Reference{Topoheight: 1},
		Data:      &model.SetKYCPayload{Subject: subject, Status: model.KYCApproved},
	}

	snap := store.Snapshot()
	_, err := ApplyBlock(context.Background(), snap, testHeader(), []*model.Transaction{tx}, testExecSettings(), nil, 1, 2, ulogger.New("test"))
	require.NoError(t, err)
	require.NoError(t, snap.Commit())

	subj, found, err := accountstate.ReadAccount(store, subject)
	require.NoError(t, err)
	require.True(t, found)
	require.Equal(t, model.KYCApproved, subj.KYCStatus)
}

// stubContractExecutor is a test-only ContractExecutor; the core's own
// default is NoOpExecutor, which always fails (spec §4.7's "the core ships
// a NoOpExecutor that fails any execution").
type stubContractExecutor struct {
	exitCode  uint32
	transfers []RequestedTransfer
	events    []Event
	gasUsed   uint64
}

func (s stubContractExecutor) SupportsFormat(bytecode []byte) bool { return true }

func (s stubContractExecutor) Execute(ctx context.Context, inv ContractInvocation, storage StorageProvider) (*ContractExecutionResult, error) {
	storage.Set("touched", []byte{1})
	return &ContractExecutionResult{
		GasUsed:   s.gasUsed,
		ExitCode:  s.exitCode,
		Transfers: s.transfers,
		Events:    s.events,
	}, nil
}

func (s stubContractExecutor) Name() string { return "stub" }

func TestApplyBlockContractInvokeSuccessMergesEffects(t *testing.T) {
	store := memory.New()
	source, recipient := [32]byte{1}, [32]byte{9}
	seedBalance(t, store, source, model.ZeroHash, 100, 1)

	contractAddr := model.Hash{0xaa}
	require.NoError(t, accountstate.WriteContract(store, model.NewContract(contractAddr, []byte{0x01}), 1))
	require.NoError(t, accountstate.WriteContractBalance(store, contractAddr, model.ZeroHash, 50, 1))

	exec := stubContractExecutor{
		exitCode: 0,
		transfers: []RequestedTransfer{{Destination: recipient, Asset: model.ZeroHash, Amount: 10}},
		events:    []Event{{Contract: contractAddr, Topic: "transfer"}},
	}

	tx := &model.Transaction{
		Source:    source,
		FeeType:   model.FeeTOS,
		Reference: model.Reference{Topoheight: 1},
		Data:      &model.ContractInvokePayload{Contract: contractAddr, MaxGas: 1000},
	}

	snap := store.Snapshot()
	result, err := ApplyBlock(context.Background(), snap, testHeader(), []*model.Transaction{tx}, testExecSettings(), exec, 1, 2, ulogger.New("test"))
	require.NoError(t, err)
	require.Len(t, result.Events, 1)
	require.NoError(t, snap.Commit())

	bal, err := accountstate.ReadContractBalance(store, contractAddr, model.ZeroHash)
	require.NoError(t, err)
	require.Equal(t, uint64(40), bal)

	recvAcc, found, err := accountstate.ReadAccount(store, recipient)
	require.NoError(t, err)
	require.True(t, found)
	require.Equal(t, uint64(10), recvAcc.Balances[model.ZeroHash])

	cell, found, err := accountstate.ReadContractStorageCell(store, contractAddr, "touched")
	require.NoError(t, err)
	require.True(t, found)
	require.Equal(t, []byte{1}, cell)
}

func TestApplyBlockContractInvokeNonZeroExitDiscardsEffects(t *testing.T) {
	store := memory.New()
	source := [32]byte{1}
	seedBalance(t, store, source, model.ZeroHash, 100, 1)

	contractAddr := model.Hash{0xaa}
	require.NoError(t, accountstate.WriteContract(store, model.NewContract(contractAddr, []byte{0x01}), 1))

	exec := stubContractExecutor{exitCode: 1}

	tx := &model.Transaction{
		Source:    source,
		FeeType:   model.FeeTOS,
		Reference: model.Reference{Topoheight: 1},
		Data:      &model.ContractInvokePayload{Contract: contractAddr},
	}

	snap := store.Snapshot()
	result, err := ApplyBlock(context.Background(), snap, testHeader(), []*model.Transaction{tx}, testExecSettings(), exec, 1, 2, ulogger.New("test"))
	require.NoError(t, err)
	require.Empty(t, result.Events)
	require.NoError(t, snap.Commit())

	_, found, err := accountstate.ReadContractStorageCell(store, contractAddr, "touched")
	require.NoError(t, err)
	require.False(t, found)
}

func TestApplyBlockContractInvokeUnsupportedFormatFails(t *testing.T) {
	store := memory.New()
	source := [32]byte{1}
	seedBalance(t, store, source, model.ZeroHash, 100, 1)

	contractAddr := model.Hash{0xaa}
	require.NoError(t, accountstate.WriteContract(store, model.NewContract(contractAddr, []byte{0x01}), 1))

	tx := &model.Transaction{
		Source:    source,
		FeeType:   model.FeeTOS,
		Reference: model.Reference{Topoheight: 1},
		Data:      &model.ContractInvokePayload{Contract: contractAddr},
	}

	snap := store.Snapshot()
	_, err := ApplyBlock(context.Background(), snap, testHeader(), []*model.Transaction{tx}, testExecSettings(), nil, 1, 2, ulogger.New("test"))
	require.Error(t, err)
}
