package executor

import (
	"encoding/binary"

	"github.com/tos-network/tos-core/model"
	"github.com/tos-network/tos-core/stores/accountstate"
	"github.com/tos-network/tos-core/stores/versioned"
)

// readSupply and adjustSupply maintain the per-asset global supply
// counter (spec §4.7: "Burn accounting ... accumulates into a global
// supply counter"). The value isn't part of model's canonical tagged
// encoding because it is a plain scalar, not a wire-exchanged type —
// a fixed-width big-endian uint64 is exactly as canonical and avoids
// pulling the full model.Writer machinery in for one integer.
func readSupply(r accountstate.Reader, asset model.Hash) (uint64, error) {
	raw, _, found, err := r.GetLatest(versioned.ColumnAssetSupply, asset[:])
	if err != nil {
		return 0, err
	}
	if !found {
		return 0, nil
	}
	return binary.BigEndian.Uint64(raw), nil
}

// adjustSupply applies delta (which may be negative, for a burn) to the
// asset's global supply counter at topoheight t.
func adjustSupply(rw interface {
	accountstate.Reader
	accountstate.Writer
}, asset model.Hash, delta int64, t uint64) error {
	cur, err := readSupply(rw, asset)
	if err != nil {
		return err
	}
	var next uint64
	if delta < 0 {
		burn := uint64(-delta)
		if burn > cur {
			next = 0
		} else {
			next = cur - burn
		}
	} else {
		next = cur + uint64(delta)
	}
	buf := make([]byte, 8)
	binary.BigEndian.PutUint64(buf, next)
	return rw.Put(versioned.ColumnAssetSupply, asset[:], buf, t)
}

// gasBurnBasisPoints is the fraction of a contract invocation's gas fee
// (paid in the TOS asset, at a fixed 1-gas-unit-per-fee-unit rate, spec
// §4.7 step 2/3) that is burned rather than staying in circulation.
// The rate is a fixed package constant; it is not configurable.
const gasBurnBasisPoints = 1000 // 10%

// unoTransferBurnFixed is the fixed per-transfer burn on confidential
// (UNO) transfers (spec §4.7: "fixed UNO per-transfer burn").
const unoTransferBurnFixed = 1

func burnBasisPoints(amount uint64, bps uint64) uint64 {
	return amount * bps / 10_000
}
