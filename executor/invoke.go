package executor

import (
	"context"

	"github.com/tos-network/tos-core/errors"
	"github.com/tos-network/tos-core/model"
	"github.com/tos-network/tos-core/stores/accountstate"
	"github.com/tos-network/tos-core/stores/versioned"
)

// storageProvider is the ContractExecutor-facing StorageProvider backed by
// C3's contract-storage column. Writes buffer in-memory until the
// invocation succeeds (spec §4.7 step 3: "on any non-zero exit or error,
// the cache is discarded").
type storageProvider struct {
	snap     versioned.Snapshot
	contract model.Hash
	cache    map[string][]byte
}

func newStorageProvider(snap versioned.Snapshot, contract model.Hash) *storageProvider {
	return &storageProvider{snap: snap, contract: contract, cache: make(map[string][]byte)}
}

func (s *storageProvider) Get(cell string) ([]byte, bool, error) {
	if v, ok := s.cache[cell]; ok {
		return v, true, nil
	}
	return accountstate.ReadContractStorageCell(s.snap, s.contract, cell)
}

func (s *storageProvider) Set(cell string, value []byte) { s.cache[cell] = value }

func (s *storageProvider) Cache() map[string][]byte { return s.cache }

// applyContractInvoke debits the transaction's declared deposits into the
// contract's balance, dispatches to the bound ContractExecutor, and
// either merges or discards its effects depending on the exit code (spec
// §4.7 steps 2-4).
func applyContractInvoke(ctx context.Context, snap versioned.Snapshot, source *model.Account, tx *model.Transaction, p *model.ContractInvokePayload, tc *txContext) ([]Event, error) {
	contract, found, err := accountstate.ReadContract(snap, p.Contract)
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, errors.New(errors.ERR_NOT_FOUND, "invoked contract does not exist")
	}
	if !tc.contractExec.SupportsFormat(contract.Bytecode) {
		return nil, errors.New(errors.ERR_UNSUPPORTED_CONTRACT_FORMAT, "bound executor %s does not support this contract's bytecode", tc.contractExec.Name())
	}

	for i, asset := range p.DepositAssets {
		amount := p.DepositAmount[i]
		if source.Balances[asset] < amount {
			return nil, errors.New(errors.ERR_INSUFFICIENT_BALANCE, "insufficient balance of asset %s for contract deposit", asset.String())
		}
		source.Balances[asset] -= amount
		bal, err := accountstate.ReadContractBalance(snap, p.Contract, asset)
		if err != nil {
			return nil, err
		}
		if err := accountstate.WriteContractBalance(snap, p.Contract, asset, bal+amount, tc.newTopo); err != nil {
			return nil, err
		}
	}

	storage := newStorageProvider(snap, p.Contract)
	inv := ContractInvocation{
		Bytecode:       contract.Bytecode,
		Topoheight:     tc.newTopo,
		Contract:       p.Contract,
		BlockHash:      tc.blockHash,
		BlockHeight:    tc.blockHeight,
		BlockTimestamp: tc.blockTimestamp,
		TxHash:         tx.Hash(),
		TxSender:       tx.Source,
		MaxGas:         p.MaxGas,
		Parameters:     p.Parameters,
	}

	result, err := tc.contractExec.Execute(ctx, inv, storage)
	if err != nil {
		return nil, errors.New(errors.ERR_CONTRACT_EXECUTION_FAILED, "contract execution error", err)
	}

	if err := adjustSupply(snap, model.ZeroHash, -int64(burnBasisPoints(result.GasUsed, gasBurnBasisPoints)), tc.newTopo); err != nil {
		return nil, err
	}

	if result.ExitCode != 0 {
		// effects discarded; fee and deposits already consumed stand.
		return nil, nil
	}

	for cell, value := range storage.Cache() {
		if err := accountstate.WriteContractStorageCell(snap, p.Contract, cell, value, tc.newTopo); err != nil {
			return nil, err
		}
	}

	for _, transfer := range result.Transfers {
		bal, err := accountstate.ReadContractBalance(snap, p.Contract, transfer.Asset)
		if err != nil {
			return nil, err
		}
		if bal < transfer.Amount {
			return nil, errors.New(errors.ERR_INSUFFICIENT_BALANCE, "contract requested transfer exceeds its held balance")
		}
		if err := accountstate.WriteContractBalance(snap, p.Contract, transfer.Asset, bal-transfer.Amount, tc.newTopo); err != nil {
			return nil, err
		}
		dest, found, err := accountstate.ReadAccount(snap, transfer.Destination)
		if err != nil {
			return nil, err
		}
		if !found {
			dest = model.NewAccount(transfer.Destination)
		}
		dest.Balances[transfer.Asset] += transfer.Amount
		if err := accountstate.WriteAccount(snap, dest, tc.newTopo); err != nil {
			return nil, err
		}
	}

	return result.Events, nil
}
