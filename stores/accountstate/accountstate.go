// Package accountstate is the shared read/write layer C6 (txverify) and
// C7 (executor) both use to reach account, asset and contract records
// through stores/versioned. Keeping key layout and codec calls in one
// place means the two packages can never disagree about how an account
// is addressed or serialized.
package accountstate

import (
	"encoding/binary"

	"github.com/tos-network/tos-core/model"
	"github.com/tos-network/tos-core/stores/versioned"
)

// Reader is satisfied by both versioned.Store (reads as of "latest") and
// versioned.Snapshot (reads as of the overlay's pending writes).
type Reader interface {
	GetLatest(col versioned.Column, key []byte) (value []byte, at uint64, found bool, err error)
	GetAtMost(col versioned.Column, key []byte, t uint64) (value []byte, at uint64, found bool, err error)
}

// Writer is satisfied by versioned.Store and versioned.Snapshot.
type Writer interface {
	Put(col versioned.Column, key []byte, value []byte, topoheight uint64) error
}

func ReadAccount(r Reader, pubKey [32]byte) (*model.Account, bool, error) {
	raw, _, found, err := r.GetLatest(versioned.ColumnAccount, pubKey[:])
	if err != nil || !found {
		return nil, found, err
	}
	acc, err := model.DecodeAccount(raw)
	if err != nil {
		return nil, false, err
	}
	return acc, true, nil
}

func ReadAccountAt(r Reader, pubKey [32]byte, topoheight uint64) (*model.Account, bool, error) {
	raw, _, found, err := r.GetAtMost(versioned.ColumnAccount, pubKey[:], topoheight)
	if err != nil || !found {
		return nil, found, err
	}
	acc, err := model.DecodeAccount(raw)
	if err != nil {
		return nil, false, err
	}
	return acc, true, nil
}

func WriteAccount(w Writer, acc *model.Account, topoheight uint64) error {
	return w.Put(versioned.ColumnAccount, acc.PublicKey[:], acc.Encode(), topoheight)
}

func ReadAsset(r Reader, id model.Hash) (*model.Asset, bool, error) {
	raw, _, found, err := r.GetLatest(versioned.ColumnAsset, id[:])
	if err != nil || !found {
		return nil, found, err
	}
	asset, err := model.DecodeAsset(raw)
	if err != nil {
		return nil, false, err
	}
	return asset, true, nil
}

func WriteAsset(w Writer, asset *model.Asset, topoheight uint64) error {
	return w.Put(versioned.ColumnAsset, asset.ID[:], asset.Encode(), topoheight)
}

func ReadContract(r Reader, addr model.Hash) (*model.Contract, bool, error) {
	raw, _, found, err := r.GetLatest(versioned.ColumnContract, addr[:])
	if err != nil || !found {
		return nil, found, err
	}
	c, err := model.DecodeContract(raw)
	if err != nil {
		return nil, false, err
	}
	return c, true, nil
}

func WriteContract(w Writer, c *model.Contract, topoheight uint64) error {
	return w.Put(versioned.ColumnContract, c.Address[:], c.Encode(), topoheight)
}

func contractStorageKey(addr model.Hash, cell string) []byte {
	key := make([]byte, 0, 32+len(cell))
	key = append(key, addr[:]...)
	key = append(key, cell...)
	return key
}

func ReadContractStorageCell(r Reader, addr model.Hash, cell string) ([]byte, bool, error) {
	value, _, found, err := r.GetLatest(versioned.ColumnContractStorage, contractStorageKey(addr, cell))
	return value, found, err
}

func WriteContractStorageCell(w Writer, addr model.Hash, cell string, value []byte, topoheight uint64) error {
	return w.Put(versioned.ColumnContractStorage, contractStorageKey(addr, cell), value, topoheight)
}

func contractBalanceKey(addr model.Hash, asset model.Hash) []byte {
	key := make([]byte, 0, 64)
	key = append(key, addr[:]...)
	key = append(key, asset[:]...)
	return key
}

// ReadContractBalance and WriteContractBalance address the per-contract,
// per-asset deposit balance executor invocations hold (spec §4.7's
// deposit_assets/deposit_amount on ContractInvokePayload). The value is a
// fixed-width big-endian uint64 — a plain scalar, not a wire-exchanged
// tagged type, so it doesn't need the full canonical codec.
func ReadContractBalance(r Reader, addr, asset model.Hash) (uint64, error) {
	raw, _, found, err := r.GetLatest(versioned.ColumnContractBalance, contractBalanceKey(addr, asset))
	if err != nil || !found {
		return 0, err
	}
	return binary.BigEndian.Uint64(raw), nil
}

func WriteContractBalance(w Writer, addr, asset model.Hash, amount uint64, topoheight uint64) error {
	buf := make([]byte, 8)
	binary.BigEndian.PutUint64(buf, amount)
	return w.Put(versioned.ColumnContractBalance, contractBalanceKey(addr, asset), buf, topoheight)
}
