// Package txverify implements C6: transaction verification, split into
// a stateless shape check and a stateful check against account data.
// Nothing in the teacher verifies this transaction model (UTXO, no
// nonces); this package instead follows the teacher's habit
// (services/validator) of separating "cheap, stateless checks" from
// "store-backed, stateful checks" as two distinct entry points.
package txverify

import (
	"github.com/tos-network/tos-core/config"
	"github.com/tos-network/tos-core/crypto"
	"github.com/tos-network/tos-core/errors"
	"github.com/tos-network/tos-core/model"
	"github.com/tos-network/tos-core/stores/accountstate"
)

// VerifyShape performs every check that does not require chain state:
// decode round-trip (the caller already decoded tx; VerifyShape
// re-encodes and compares to catch any non-canonical encoding a lenient
// decoder might have accepted), chain id, signature, payload-embedded
// proofs and the multisig threshold (spec §4.6). The size limit is
// enforced by model.DecodeTransaction, not here.
func VerifyShape(tx *model.Transaction, raw []byte, settings *config.Settings) error {
	if reencoded := tx.Encode(); string(reencoded) != string(raw) {
		return errors.New(errors.ERR_INVALID_FORMAT, "transaction does not re-encode to its canonical form")
	}

	if tx.ChainID != settings.Network.ChainID() {
		return errors.New(errors.ERR_CHAIN_ID_MISMATCH, "transaction chain_id %d does not match network %d", tx.ChainID, settings.Network.ChainID())
	}

	if !crypto.Verify(tx.Source, tx.SigningBytes(), tx.Signature) {
		return errors.New(errors.ERR_INVALID_SIGNATURE, "transaction signature does not verify against source")
	}

	if ct, ok := tx.Data.(*model.ConfidentialTransferPayload); ok {
		if err := verifyConfidentialProofs(ct); err != nil {
			return err
		}
	}

	if ms, ok := tx.Data.(*model.MultisigPayload); ok {
		if ms.Threshold == 0 || int(ms.Threshold) > len(ms.Signers) {
			return errors.New(errors.ERR_INVALID_VALUE, "multisig threshold %d invalid for %d signers", ms.Threshold, len(ms.Signers))
		}
	}

	return nil
}

func verifyConfidentialProofs(ct *model.ConfidentialTransferPayload) error {
	if len(ct.EncryptedAmount) != 64 {
		return errors.New(errors.ERR_INVALID_PROOF, "confidential transfer ciphertext must be 64 bytes (C||D)")
	}
	ciphertextCommitment, err := crypto.DecodePoint(ct.EncryptedAmount[:32])
	if err != nil {
		return errors.New(errors.ERR_INVALID_PROOF, "invalid ciphertext commitment component", err)
	}

	rangeProof, err := crypto.DecodeRangeProof(ct.RangeProof)
	if err != nil {
		return errors.New(errors.ERR_INVALID_PROOF, "invalid range proof encoding", err)
	}
	rangeCommitment, err := rangeProof.ImpliedCommitment()
	if err != nil {
		return err
	}
	if err := crypto.VerifyRangeProof(rangeCommitment, rangeProof); err != nil {
		return errors.New(errors.ERR_INVALID_PROOF, "range proof does not verify", err)
	}

	eqProof, err := crypto.DecodeEqualityProof(ct.EqualityProof)
	if err != nil {
		return errors.New(errors.ERR_INVALID_PROOF, "invalid equality proof encoding", err)
	}
	g := crypto.GeneratorG()
	h := crypto.GeneratorH()
	if !crypto.VerifyEqualityProof(ciphertextCommitment, g, h, rangeCommitment.Point(), g, h, eqProof) {
		return errors.New(errors.ERR_INVALID_PROOF, "equality proof does not link ciphertext and range-proof commitments")
	}
	return nil
}

// VerifyAgainstState performs every check that requires chain state:
// reference validity, nonce sequencing, fee affordability, and balance
// sufficiency (spec §4.6). r is typically a versioned.Snapshot opened by
// C7 for the block currently being applied.
func VerifyAgainstState(tx *model.Transaction, r accountstate.Reader, currentTopoheight uint64) error {
	if tx.Reference.Topoheight > currentTopoheight {
		return errors.New(errors.ERR_INVALID_REFERENCE, "transaction references future topoheight %d > %d", tx.Reference.Topoheight, currentTopoheight)
	}

	account, found, err := accountstate.ReadAccount(r, tx.Source)
	if err != nil {
		return err
	}
	if !found {
		account = model.NewAccount(tx.Source)
	}

	if tx.Nonce != account.Nonce {
		return errors.New(errors.ERR_BAD_NONCE, "transaction nonce %d does not match account nonce %d", tx.Nonce, account.Nonce)
	}

	feeAsset := model.ZeroHash
	switch tx.FeeType {
	case model.FeeTOS:
		feeAsset = model.ZeroHash
	case model.FeeEnergy:
		converted, err := ConvertEnergyFee(tx.Fee, account.EnergyFrozen)
		if err != nil {
			return err
		}
		if converted > account.EnergyFrozen {
			return errors.New(errors.ERR_INSUFFICIENT_BALANCE, "insufficient frozen energy to cover fee")
		}
	case model.FeeUNO:
		return errors.New(errors.ERR_UNSUPPORTED_CONTRACT_FORMAT, "UNO-denominated fees are not yet supported")
	default:
		return errors.New(errors.ERR_INVALID_VALUE, "unknown fee_type %d", uint8(tx.FeeType))
	}

	if tx.FeeType == model.FeeTOS {
		if account.Balances[feeAsset] < tx.Fee {
			return errors.New(errors.ERR_INSUFFICIENT_BALANCE, "insufficient balance to cover fee")
		}
	}

	if transfer, ok := tx.Data.(*model.TransferPayload); ok {
		if err := verifyTransferBalances(account, transfer, tx.Fee, tx.FeeType); err != nil {
			return err
		}
	}
	if burn, ok := tx.Data.(*model.BurnPayload); ok {
		if account.Balances[burn.Asset] < burn.Amount {
			return errors.New(errors.ERR_INSUFFICIENT_BALANCE, "insufficient balance to burn")
		}
	}

	if inv, ok := tx.Data.(*model.ContractInvokePayload); ok {
		if _, found, err := accountstate.ReadContract(r, inv.Contract); err != nil {
			return err
		} else if !found {
			return errors.New(errors.ERR_NOT_FOUND, "invoked contract does not exist")
		}
	}

	return nil
}

func verifyTransferBalances(account *model.Account, transfer *model.TransferPayload, fee uint64, feeType model.FeeType) error {
	spent := make(map[model.Hash]uint64)
	for _, out := range transfer.Outputs {
		spent[out.Asset] += out.Amount
	}
	if feeType == model.FeeTOS {
		spent[model.ZeroHash] += fee
	}
	for asset, amount := range spent {
		if account.Balances[asset] < amount {
			return errors.New(errors.ERR_INSUFFICIENT_BALANCE, "insufficient balance of asset %s", asset.String())
		}
	}
	return nil
}

// ConvertEnergyFee converts a TOS-denominated fee into Energy units
// (supplemented feature, spec §9 SUPPLEMENTED FEATURES: energy_fee.rs).
// The conversion rate is fixed at 1:1 between a TOS-fee-equivalent unit
// and an Energy unit, and no error is ever returned. frozen is not
// consulted; VerifyAgainstState compares the converted fee against the
// account's frozen Energy itself.
func ConvertEnergyFee(tosFee uint64, frozen uint64) (uint64, error) {
	if tosFee == 0 {
		return 0, nil
	}
	return tosFee, nil
}
