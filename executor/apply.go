package executor

import (
	"context"

	"github.com/tos-network/tos-core/config"
	"github.com/tos-network/tos-core/crypto"
	"github.com/tos-network/tos-core/errors"
	"github.com/tos-network/tos-core/model"
	"github.com/tos-network/tos-core/stores/accountstate"
	"github.com/tos-network/tos-core/stores/versioned"
	"github.com/tos-network/tos-core/txverify"
	"github.com/tos-network/tos-core/ulogger"
)

// BlockResult is everything applying a block's transactions produces
// beyond the mutated state itself: events for the block's sink and gas
// accounting for metrics/logging.
type BlockResult struct {
	Events      []Event
	TotalGasUsed uint64
}

// txContext bundles the per-block constants every transaction apply call
// needs, keeping applyTransaction's signature from growing with every new
// payload kind.
type txContext struct {
	settings       *config.Settings
	contractExec   ContractExecutor
	currentTopo    uint64 // reference snapshot topoheight, for VerifyAgainstState
	newTopo        uint64 // topoheight this block's writes land at
	blockHash      model.Hash
	blockHeight    uint64
	blockTimestamp uint64
	logger         ulogger.Logger
}

// ApplyBlock verify-then-applies every transaction in block over snap,
// dispatching sequentially or via the parallel conflict-group scheduler
// per spec §4.7. snap is expected to be a fresh C3 snapshot opened at
// newTopo; callers (C8) commit or roll it back based on the returned
// error.
func ApplyBlock(ctx context.Context, snap versioned.Snapshot, header *model.BlockHeader, txs []*model.Transaction, settings *config.Settings, contractExec ContractExecutor, currentTopo, newTopo uint64, logger ulogger.Logger) (*BlockResult, error) {
	if contractExec == nil {
		contractExec = NoOpExecutor{}
	}

	tc := &txContext{
		settings:       settings,
		contractExec:   contractExec,
		currentTopo:    currentTopo,
		newTopo:        newTopo,
		blockHash:      header.Hash(),
		blockHeight:    header.BlueScore,
		blockTimestamp: header.Timestamp,
		logger:         logger,
	}

	threshold := settings.MinTxsForParallel()
	if settings.ParallelTestMode {
		threshold = 2
	}

	if !settings.ParallelExecution || len(txs) < threshold {
		result := &BlockResult{}
		for _, tx := range txs {
			if err := applyTransaction(ctx, snap, tx, tc, result); err != nil {
				return nil, err
			}
		}
		return result, nil
	}

	return applyBlockParallel(ctx, snap, txs, tc)
}

// applyTransaction re-verifies stateful preconditions against the live
// overlay (spec §4.7 step 1, which matters because an earlier transaction
// in the same conflict group may have already credited the balance this
// one spends) and then mutates state.
func applyTransaction(ctx context.Context, snap versioned.Snapshot, tx *model.Transaction, tc *txContext, result *BlockResult) error {
	if err := txverify.VerifyAgainstState(tx, snap, tc.currentTopo); err != nil {
		return err
	}

	account, found, err := accountstate.ReadAccount(snap, tx.Source)
	if err != nil {
		return err
	}
	if !found {
		account = model.NewAccount(tx.Source)
	}
	account.Nonce++

	switch tx.FeeType {
	case model.FeeTOS:
		account.Balances[model.ZeroHash] -= tx.Fee
	case model.FeeEnergy:
		converted, err := txverify.ConvertEnergyFee(tx.Fee, account.EnergyFrozen)
		if err != nil {
			return err
		}
		account.EnergyFrozen -= converted
	}

	switch p := tx.Data.(type) {
	case *model.TransferPayload:
		if err := applyTransfer(snap, account, p, tc.newTopo); err != nil {
			return err
		}
	case *model.BurnPayload:
		account.Balances[p.Asset] -= p.Amount
		if err := adjustSupply(snap, p.Asset, -int64(p.Amount), tc.newTopo); err != nil {
			return err
		}
	case *model.ConfidentialTransferPayload:
		if err := applyConfidentialTransfer(snap, account, p, tc.newTopo); err != nil {
			return err
		}
	case *model.MultisigPayload:
		account.Multisig = &model.MultisigConfig{Threshold: p.Threshold, Signers: p.Signers}
	case *model.ContractDeployPayload:
		contractAddr := model.DomainHash(model.DomainContractAddr, append(append([]byte{}, tx.Source[:]...), p.Bytecode...))
		contract := model.NewContract(contractAddr, p.Bytecode)
		if err := accountstate.WriteContract(snap, contract, tc.newTopo); err != nil {
			return err
		}
	case *model.ContractInvokePayload:
		events, err := applyContractInvoke(ctx, snap, account, tx, p, tc)
		if err != nil {
			return err
		}
		result.Events = append(result.Events, events...)
	case *model.EnergyFreezePayload:
		account.Balances[model.ZeroHash] -= p.Amount
		account.EnergyFrozen += p.Amount
	case *model.EnergyUnfreezePayload:
		if p.Amount > account.EnergyFrozen {
			return errors.New(errors.ERR_INSUFFICIENT_BALANCE, "cannot unfreeze more energy than is frozen")
		}
		account.EnergyFrozen -= p.Amount
		account.Balances[model.ZeroHash] += p.Amount
	case *model.NameRegisterPayload:
		account.RegisteredName = p.Name
	case *model.SetKYCPayload:
		if err := setKYCStatus(snap, p.Subject, p.Status, tc.newTopo); err != nil {
			return err
		}
	case *model.RevokeKYCPayload:
		if err := setKYCStatus(snap, p.Subject, model.KYCRevoked, tc.newTopo); err != nil {
			return err
		}
	case *model.AppealKYCPayload:
		if err := setKYCStatus(snap, tx.Source, model.KYCAppealed, tc.newTopo); err != nil {
			return err
		}
	}

	return accountstate.WriteAccount(snap, account, tc.newTopo)
}

func applyTransfer(snap versioned.Snapshot, source *model.Account, p *model.TransferPayload, topoheight uint64) error {
	for _, out := range p.Outputs {
		if source.Balances[out.Asset] < out.Amount {
			return errors.New(errors.ERR_INSUFFICIENT_BALANCE, "insufficient balance of asset %s", out.Asset.String())
		}
		source.Balances[out.Asset] -= out.Amount

		if out.Destination == source.PublicKey {
			source.Balances[out.Asset] += out.Amount
			continue
		}
		dest, found, err := accountstate.ReadAccount(snap, out.Destination)
		if err != nil {
			return err
		}
		if !found {
			dest = model.NewAccount(out.Destination)
		}
		dest.Balances[out.Asset] += out.Amount
		if err := accountstate.WriteAccount(snap, dest, topoheight); err != nil {
			return err
		}
	}
	return nil
}

// applyConfidentialTransfer homomorphically moves an encrypted delta from
// source to destination: subtract the ciphertext components from the
// sender's balance, add them to the receiver's (spec §4.6's "ciphertext
// updates must be consistent with the stored ciphertext"; the consistency
// itself was already checked by txverify's range/equality proof
// verification before this ever runs).
func applyConfidentialTransfer(snap versioned.Snapshot, source *model.Account, p *model.ConfidentialTransferPayload, topoheight uint64) error {
	deltaC, err := crypto.DecodePoint(p.EncryptedAmount[:32])
	if err != nil {
		return err
	}
	deltaD, err := crypto.DecodePoint(p.EncryptedAmount[32:])
	if err != nil {
		return err
	}

	if err := adjustCiphertext(source, p.Asset, deltaC, deltaD, true); err != nil {
		return err
	}

	dest, found, err := accountstate.ReadAccount(snap, p.Destination)
	if err != nil {
		return err
	}
	if !found {
		dest = model.NewAccount(p.Destination)
	}
	if err := adjustCiphertext(dest, p.Asset, deltaC, deltaD, false); err != nil {
		return err
	}
	if err := accountstate.WriteAccount(snap, dest, topoheight); err != nil {
		return err
	}

	return adjustSupply(snap, p.Asset, -int64(unoTransferBurnFixed), topoheight)
}

func adjustCiphertext(acc *model.Account, asset model.Hash, deltaC, deltaD *crypto.Point, subtract bool) error {
	cur, has := acc.UNOBalances[asset]
	curC, curD := crypto.IdentityPoint(), crypto.IdentityPoint()
	if has {
		var err error
		curC, err = crypto.DecodePoint(cur.C[:])
		if err != nil {
			return err
		}
		curD, err = crypto.DecodePoint(cur.D[:])
		if err != nil {
			return err
		}
	}

	var newC, newD *crypto.Point
	if subtract {
		newC, newD = curC.Sub(deltaC), curD.Sub(deltaD)
	} else {
		newC, newD = curC.Add(deltaC), curD.Add(deltaD)
	}

	var out model.Ciphertext
	copy(out.C[:], newC.Encode())
	copy(out.D[:], newD.Encode())
	acc.UNOBalances[asset] = out
	return nil
}

func setKYCStatus(snap versioned.Snapshot, subject [32]byte, status model.KYCStatus, topoheight uint64) error {
	account, found, err := accountstate.ReadAccount(snap, subject)
	if err != nil {
		return err
	}
	if !found {
		account = model.NewAccount(subject)
	}
	account.KYCStatus = status
	return accountstate.WriteAccount(snap, account, topoheight)
}
