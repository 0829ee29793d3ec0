package model

import (
	"github.com/tos-network/tos-core/errors"
)

// FeeType selects the asset a transaction's fee is paid in (spec §3).
type FeeType uint8

const (
	FeeTOS FeeType = iota
	FeeEnergy
	FeeUNO
)

// Reference anchors a transaction to a visible chain point (spec §3, §4.6).
type Reference struct {
	Hash       Hash
	Topoheight uint64
}

// PayloadKind discriminates the tagged-union transaction payload (spec §3).
type PayloadKind uint8

const (
	PayloadTransfer PayloadKind = iota
	PayloadConfidentialTransfer
	PayloadBurn
	PayloadMultisig
	PayloadContractDeploy
	PayloadContractInvoke
	PayloadEnergyFreeze
	PayloadEnergyUnfreeze
	PayloadNameRegister
	PayloadReferral
	PayloadSetKYC
	PayloadRevokeKYC
	PayloadAppealKYC
)

// Payload is implemented by every transaction payload variant. Encode/
// Decode handle only the variant body; the discriminant byte is written
// by Transaction.Encode.
type Payload interface {
	Kind() PayloadKind
	Encode(w *Writer)
	// AccessSet returns the (account) cells this payload statically
	// touches, used by C7 to partition transactions into conflict
	// groups (spec §4.7). Asset-qualified cells are encoded as
	// "account|asset" strings; contract cells as "contract:hash".
	AccessSet(source [32]byte) []string
}

// TransferOutput is one destination of a plaintext transfer.
type TransferOutput struct {
	Destination [32]byte
	Asset       Hash
	Amount      uint64
}

// TransferPayload moves plaintext balances from source to one or more
// destinations (spec §3).
type TransferPayload struct {
	Outputs []TransferOutput
}

func (p *TransferPayload) Kind() PayloadKind { return PayloadTransfer }

func (p *TransferPayload) Encode(w *Writer) {
	w.WriteU16(uint16(len(p.Outputs)))
	for _, o := range p.Outputs {
		w.WriteRaw(o.Destination[:])
		w.WriteFixedHash(o.Asset)
		w.WriteU64(o.Amount)
	}
}

func (p *TransferPayload) AccessSet(source [32]byte) []string {
	set := []string{accountAssetKey(source, ZeroHash)}
	for _, o := range p.Outputs {
		set = append(set, accountAssetKey(o.Destination, o.Asset))
		set = append(set, accountAssetKey(source, o.Asset))
	}
	return set
}

func decodeTransferPayload(r *Reader) *TransferPayload {
	n := int(r.ReadU16())
	outs := make([]TransferOutput, n)
	for i := 0; i < n; i++ {
		var dst [32]byte
		copy(dst[:], r.readFixed(32))
		outs[i] = TransferOutput{
			Destination: dst,
			Asset:       r.ReadFixedHash(),
			Amount:      r.ReadU64(),
		}
	}
	return &TransferPayload{Outputs: outs}
}

// BurnPayload destroys an amount of an asset from the source's balance.
type BurnPayload struct {
	Asset  Hash
	Amount uint64
}

func (p *BurnPayload) Kind() PayloadKind { return PayloadBurn }
func (p *BurnPayload) Encode(w *Writer) {
	w.WriteFixedHash(p.Asset)
	w.WriteU64(p.Amount)
}
func (p *BurnPayload) AccessSet(source [32]byte) []string {
	return []string{accountAssetKey(source, p.Asset)}
}
func decodeBurnPayload(r *Reader) *BurnPayload {
	return &BurnPayload{Asset: r.ReadFixedHash(), Amount: r.ReadU64()}
}

// ConfidentialTransferPayload moves ElGamal-ciphertext (UNO) balances
// (spec §3, §4.6). Proof bytes are opaque to the model layer; crypto
// verifies them.
type ConfidentialTransferPayload struct {
	Asset               Hash
	Destination         [32]byte
	EncryptedAmount     []byte // ciphertext delta
	EqualityProof       []byte
	RangeProof          []byte
}

func (p *ConfidentialTransferPayload) Kind() PayloadKind { return PayloadConfidentialTransfer }
func (p *ConfidentialTransferPayload) Encode(w *Writer) {
	w.WriteFixedHash(p.Asset)
	w.WriteRaw(p.Destination[:])
	w.WriteBytes16(p.EncryptedAmount)
	w.WriteBytes16(p.EqualityProof)
	w.WriteBytes32(p.RangeProof)
}
func (p *ConfidentialTransferPayload) AccessSet(source [32]byte) []string {
	return []string{
		accountAssetKey(source, p.Asset) + ":uno",
		accountAssetKey(p.Destination, p.Asset) + ":uno",
	}
}
func decodeConfidentialTransferPayload(r *Reader) *ConfidentialTransferPayload {
	asset := r.ReadFixedHash()
	var dst [32]byte
	copy(dst[:], r.readFixed(32))
	return &ConfidentialTransferPayload{
		Asset:           asset,
		Destination:     dst,
		EncryptedAmount: r.ReadBytes16(),
		EqualityProof:   r.ReadBytes16(),
		RangeProof:      r.ReadBytes32(),
	}
}

// MultisigPayload installs or replaces an account's multisig policy.
type MultisigPayload struct {
	Threshold uint8
	Signers   [][32]byte
}

func (p *MultisigPayload) Kind() PayloadKind { return PayloadMultisig }
func (p *MultisigPayload) Encode(w *Writer) {
	w.WriteU8(p.Threshold)
	w.WriteU8(uint8(len(p.Signers)))
	for _, s := range p.Signers {
		w.WriteRaw(s[:])
	}
}
func (p *MultisigPayload) AccessSet(source [32]byte) []string {
	return []string{accountAssetKey(source, ZeroHash) + ":multisig"}
}
func decodeMultisigPayload(r *Reader) *MultisigPayload {
	threshold := r.ReadU8()
	n := int(r.ReadU8())
	signers := make([][32]byte, n)
	for i := 0; i < n; i++ {
		copy(signers[i][:], r.readFixed(32))
	}
	return &MultisigPayload{Threshold: threshold, Signers: signers}
}

// ContractDeployPayload publishes a new contract module (spec §3, §4.6).
type ContractDeployPayload struct {
	Bytecode []byte
}

func (p *ContractDeployPayload) Kind() PayloadKind { return PayloadContractDeploy }
func (p *ContractDeployPayload) Encode(w *Writer)  { w.WriteBytes32(p.Bytecode) }
func (p *ContractDeployPayload) AccessSet(source [32]byte) []string {
	return []string{accountAssetKey(source, ZeroHash)}
}
func decodeContractDeployPayload(r *Reader) *ContractDeployPayload {
	return &ContractDeployPayload{Bytecode: r.ReadBytes32()}
}

// ContractInvokePayload calls an existing contract (spec §4.7's
// ContractExecutor.execute parameters).
type ContractInvokePayload struct {
	Contract      Hash
	MaxGas        uint64
	Parameters    []byte
	DepositAssets []Hash
	DepositAmount []uint64
}

func (p *ContractInvokePayload) Kind() PayloadKind { return PayloadContractInvoke }
func (p *ContractInvokePayload) Encode(w *Writer) {
	w.WriteFixedHash(p.Contract)
	w.WriteU64(p.MaxGas)
	w.WriteBytes16(p.Parameters)
	w.WriteU8(uint8(len(p.DepositAssets)))
	for i, a := range p.DepositAssets {
		w.WriteFixedHash(a)
		w.WriteU64(p.DepositAmount[i])
	}
}
func (p *ContractInvokePayload) AccessSet(source [32]byte) []string {
	set := []string{accountAssetKey(source, ZeroHash), "contract:" + p.Contract.String()}
	for i, a := range p.DepositAssets {
		_ = i
		set = append(set, accountAssetKey(source, a))
	}
	return set
}
func decodeContractInvokePayload(r *Reader) *ContractInvokePayload {
	contract := r.ReadFixedHash()
	maxGas := r.ReadU64()
	params := r.ReadBytes16()
	n := int(r.ReadU8())
	assets := make([]Hash, n)
	amounts := make([]uint64, n)
	for i := 0; i < n; i++ {
		assets[i] = r.ReadFixedHash()
		amounts[i] = r.ReadU64()
	}
	return &ContractInvokePayload{
		Contract: contract, MaxGas: maxGas, Parameters: params,
		DepositAssets: assets, DepositAmount: amounts,
	}
}

// EnergyFreezePayload locks TOS balance to accrue Energy (supplemented
// feature, grounded on common/src/utils/energy_fee.rs).
type EnergyFreezePayload struct {
	Amount uint64
}

func (p *EnergyFreezePayload) Kind() PayloadKind { return PayloadEnergyFreeze }
func (p *EnergyFreezePayload) Encode(w *Writer)  { w.WriteU64(p.Amount) }
func (p *EnergyFreezePayload) AccessSet(source [32]byte) []string {
	return []string{accountAssetKey(source, ZeroHash) + ":energy"}
}
func decodeEnergyFreezePayload(r *Reader) *EnergyFreezePayload {
	return &EnergyFreezePayload{Amount: r.ReadU64()}
}

// EnergyUnfreezePayload reverses an EnergyFreezePayload.
type EnergyUnfreezePayload struct {
	Amount uint64
}

func (p *EnergyUnfreezePayload) Kind() PayloadKind { return PayloadEnergyUnfreeze }
func (p *EnergyUnfreezePayload) Encode(w *Writer)  { w.WriteU64(p.Amount) }
func (p *EnergyUnfreezePayload) AccessSet(source [32]byte) []string {
	return []string{accountAssetKey(source, ZeroHash) + ":energy"}
}
func decodeEnergyUnfreezePayload(r *Reader) *EnergyUnfreezePayload {
	return &EnergyUnfreezePayload{Amount: r.ReadU64()}
}

// NameRegisterPayload claims a human-readable name for the source account.
type NameRegisterPayload struct {
	Name string
}

func (p *NameRegisterPayload) Kind() PayloadKind { return PayloadNameRegister }
func (p *NameRegisterPayload) Encode(w *Writer)  { w.WriteBytes8([]byte(p.Name)) }
func (p *NameRegisterPayload) AccessSet(source [32]byte) []string {
	return []string{accountAssetKey(source, ZeroHash) + ":name"}
}
func decodeNameRegisterPayload(r *Reader) *NameRegisterPayload {
	return &NameRegisterPayload{Name: string(r.ReadBytes8())}
}

// ReferralPayload registers a referral edge (supplemented feature,
// grounded on common/src/transaction/payload/referral.rs).
type ReferralPayload struct {
	Referrer [32]byte
}

func (p *ReferralPayload) Kind() PayloadKind { return PayloadReferral }
func (p *ReferralPayload) Encode(w *Writer)  { w.WriteRaw(p.Referrer[:]) }
func (p *ReferralPayload) AccessSet(source [32]byte) []string {
	return []string{accountAssetKey(source, ZeroHash) + ":referral", accountAssetKey(p.Referrer, ZeroHash) + ":referral"}
}
func decodeReferralPayload(r *Reader) *ReferralPayload {
	var ref [32]byte
	copy(ref[:], r.readFixed(32))
	return &ReferralPayload{Referrer: ref}
}

// KYCStatus (supplemented feature, grounded on
// common/src/transaction/payload/kyc/*.rs).
type KYCStatus uint8

const (
	KYCPending KYCStatus = iota
	KYCApproved
	KYCRevoked
	KYCAppealed
)

type SetKYCPayload struct {
	Subject [32]byte
	Status  KYCStatus
}

func (p *SetKYCPayload) Kind() PayloadKind { return PayloadSetKYC }
func (p *SetKYCPayload) Encode(w *Writer) {
	w.WriteRaw(p.Subject[:])
	w.WriteU8(uint8(p.Status))
}
func (p *SetKYCPayload) AccessSet(source [32]byte) []string {
	return []string{accountAssetKey(p.Subject, ZeroHash) + ":kyc"}
}
func decodeSetKYCPayload(r *Reader) *SetKYCPayload {
	var subj [32]byte
	copy(subj[:], r.readFixed(32))
	return &SetKYCPayload{Subject: subj, Status: KYCStatus(r.ReadU8())}
}

type RevokeKYCPayload struct {
	Subject [32]byte
}

func (p *RevokeKYCPayload) Kind() PayloadKind { return PayloadRevokeKYC }
func (p *RevokeKYCPayload) Encode(w *Writer)  { w.WriteRaw(p.Subject[:]) }
func (p *RevokeKYCPayload) AccessSet(source [32]byte) []string {
	return []string{accountAssetKey(p.Subject, ZeroHash) + ":kyc"}
}
func decodeRevokeKYCPayload(r *Reader) *RevokeKYCPayload {
	var subj [32]byte
	copy(subj[:], r.readFixed(32))
	return &RevokeKYCPayload{Subject: subj}
}

type AppealKYCPayload struct {
	Reason string
}

func (p *AppealKYCPayload) Kind() PayloadKind { return PayloadAppealKYC }
func (p *AppealKYCPayload) Encode(w *Writer)  { w.WriteBytes16([]byte(p.Reason)) }
func (p *AppealKYCPayload) AccessSet(source [32]byte) []string {
	return []string{accountAssetKey(source, ZeroHash) + ":kyc"}
}
func decodeAppealKYCPayload(r *Reader) *AppealKYCPayload {
	return &AppealKYCPayload{Reason: string(r.ReadBytes16())}
}

func accountAssetKey(account [32]byte, asset Hash) string {
	return string(account[:]) + "|" + string(asset[:])
}

// Transaction is the wire/consensus transaction (spec §3, §6).
type Transaction struct {
	Version   uint8
	ChainID   uint8
	Source    [32]byte
	Nonce     uint64
	Fee       uint64
	FeeType   FeeType
	Reference Reference
	Data      Payload
	Signature [64]byte

	hash *Hash
}

// SigningBytes returns the canonical encoding excluding the signature
// field, the message Ed25519 signs (spec §4.6).
func (t *Transaction) SigningBytes() []byte {
	w := NewWriter()
	t.encodeUnsigned(w)
	return w.Bytes()
}

func (t *Transaction) encodeUnsigned(w *Writer) {
	w.WriteU8(t.Version)
	w.WriteU8(t.ChainID)
	w.WriteRaw(t.Source[:])
	w.WriteU64(t.Nonce)
	w.WriteU64(t.Fee)
	w.WriteU8(uint8(t.FeeType))
	w.WriteFixedHash(t.Reference.Hash)
	w.WriteU64(t.Reference.Topoheight)
	w.WriteU8(uint8(t.Data.Kind()))
	t.Data.Encode(w)
}

// Encode produces the full wire format: unsigned body + 64-byte signature
// (spec §6).
func (t *Transaction) Encode() []byte {
	w := NewWriter()
	t.encodeUnsigned(w)
	w.WriteRaw(t.Signature[:])
	return w.Bytes()
}

const maxTransactionSize = 1 << 20 // 1 MiB, generous w.r.t. a 1.25 MiB block cap

// DecodeTransaction strictly decodes a transaction (spec §6): leading
// version byte, chain_id, source, nonce, fee, fee_type, reference, tagged
// payload, trailing 64-byte signature. Rejects trailing bytes and
// oversize/bad-tag input without panicking.
func DecodeTransaction(b []byte) (*Transaction, error) {
	if len(b) > maxTransactionSize {
		return nil, errors.New(errors.ERR_TX_TOO_LARGE, "transaction %d bytes exceeds limit", len(b))
	}
	r := NewReader(b)
	t := &Transaction{}

	t.Version = r.ReadU8()
	t.ChainID = r.ReadU8()
	copy(t.Source[:], r.readFixed(32))
	t.Nonce = r.ReadU64()
	t.Fee = r.ReadU64()
	t.FeeType = FeeType(r.ReadU8())
	t.Reference.Hash = r.ReadFixedHash()
	t.Reference.Topoheight = r.ReadU64()

	kind := PayloadKind(r.ReadU8())
	payload, err := decodePayload(r, kind)
	if err != nil {
		return nil, err
	}
	t.Data = payload

	copy(t.Signature[:], r.readFixed(64))

	if err := r.Strict(); err != nil {
		return nil, err
	}
	return t, nil
}

func decodePayload(r *Reader, kind PayloadKind) (Payload, error) {
	switch kind {
	case PayloadTransfer:
		return decodeTransferPayload(r), r.Err()
	case PayloadConfidentialTransfer:
		return decodeConfidentialTransferPayload(r), r.Err()
	case PayloadBurn:
		return decodeBurnPayload(r), r.Err()
	case PayloadMultisig:
		return decodeMultisigPayload(r), r.Err()
	case PayloadContractDeploy:
		return decodeContractDeployPayload(r), r.Err()
	case PayloadContractInvoke:
		return decodeContractInvokePayload(r), r.Err()
	case PayloadEnergyFreeze:
		return decodeEnergyFreezePayload(r), r.Err()
	case PayloadEnergyUnfreeze:
		return decodeEnergyUnfreezePayload(r), r.Err()
	case PayloadNameRegister:
		return decodeNameRegisterPayload(r), r.Err()
	case PayloadReferral:
		return decodeReferralPayload(r), r.Err()
	case PayloadSetKYC:
		return decodeSetKYCPayload(r), r.Err()
	case PayloadRevokeKYC:
		return decodeRevokeKYCPayload(r), r.Err()
	case PayloadAppealKYC:
		return decodeAppealKYCPayload(r), r.Err()
	default:
		return nil, errors.New(errors.ERR_INVALID_VALUE, "unknown payload tag %d", uint8(kind))
	}
}

// Hash returns (and caches) the domain-separated transaction hash.
func (t *Transaction) Hash() Hash {
	if t.hash != nil {
		return *t.hash
	}
	h := DomainHash(DomainTransaction, t.Encode())
	t.hash = &h
	return h
}
