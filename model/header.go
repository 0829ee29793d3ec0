package model

import (
	"github.com/tos-network/tos-core/errors"
)

// Version enumerates protocol epochs (spec §3).
type Version uint8

const (
	VersionV1 Version = iota + 1
)

// BigWork is the 192-bit unsigned cumulative-difficulty counter (spec §3).
// It is stored as three little-endian 64-bit limbs (low, mid, high) so the
// canonical encoding stays fixed-width without a big.Int dependency.
type BigWork [3]uint64

func (w BigWork) IsZero() bool { return w[0] == 0 && w[1] == 0 && w[2] == 0 }

// Add returns w+o with 64-bit-limb carry propagation.
func (w BigWork) Add(o BigWork) BigWork {
	var out BigWork
	var carry uint64
	for i := 0; i < 3; i++ {
		sum := w[i] + o[i] + carry
		if sum < w[i] || (carry == 1 && sum == w[i]) {
			carry = 1
		} else {
			carry = 0
		}
		out[i] = sum
	}
	return out
}

// Cmp returns -1, 0, 1 comparing w to o as a 192-bit integer, most
// significant limb first.
func (w BigWork) Cmp(o BigWork) int {
	for i := 2; i >= 0; i-- {
		if w[i] != o[i] {
			if w[i] < o[i] {
				return -1
			}
			return 1
		}
	}
	return 0
}

// VRFData is the optional per-block VRF contribution (spec §3, §4.2).
type VRFData struct {
	PublicKey       [32]byte
	Output          [32]byte
	Proof           [64]byte
	BindingSignature [64]byte
}

// BlockHeader holds every consensus-critical header field (spec §3).
type BlockHeader struct {
	Version Version

	// ParentsByLevel must be sorted by hash ascending with no
	// duplicates (spec §3, §4.8) — 1 to MaxParents entries for every
	// block except the DAG's genesis, which has none.
	ParentsByLevel []Hash

	BlueScore uint64
	DAAScore  uint64
	BlueWork  BigWork

	Bits      uint32
	Timestamp uint64 // milliseconds
	ExtraNonce [32]byte
	Miner      [32]byte // compressed public key

	HashMerkleRoot        Hash
	PruningPoint          Hash
	AcceptedIDMerkleRoot  Hash
	UTXOCommitment        Hash // may be zero when no UTXO model in use

	VRF *VRFData // optional
}

// Encode produces the canonical byte representation in the field order
// listed in spec §3/§6.
func (h *BlockHeader) Encode() []byte {
	w := NewWriter()
	w.WriteU8(uint8(h.Version))

	w.WriteU8(uint8(len(h.ParentsByLevel)))
	for _, p := range h.ParentsByLevel {
		w.WriteFixedHash(p)
	}

	w.WriteU64(h.BlueScore)
	w.WriteU64(h.DAAScore)
	for _, limb := range h.BlueWork {
		w.WriteU64(limb)
	}

	w.WriteU32(h.Bits)
	w.WriteU64(h.Timestamp)
	w.WriteRaw(h.ExtraNonce[:])
	w.WriteRaw(h.Miner[:])

	w.WriteFixedHash(h.HashMerkleRoot)
	w.WriteFixedHash(h.PruningPoint)
	w.WriteFixedHash(h.AcceptedIDMerkleRoot)
	w.WriteFixedHash(h.UTXOCommitment)

	if h.VRF != nil {
		w.WriteBool(true)
		w.WriteRaw(h.VRF.PublicKey[:])
		w.WriteRaw(h.VRF.Output[:])
		w.WriteRaw(h.VRF.Proof[:])
		w.WriteRaw(h.VRF.BindingSignature[:])
	} else {
		w.WriteBool(false)
	}

	return w.Bytes()
}

// DecodeBlockHeader strictly decodes a canonical header; any trailing
// byte is an error (spec §4.1).
func DecodeBlockHeader(b []byte) (*BlockHeader, error) {
	r := NewReader(b)
	h := &BlockHeader{}

	h.Version = Version(r.ReadU8())

	n := int(r.ReadU8())
	if n > 32 {
		return nil, errors.New(errors.ERR_INVALID_SIZE, "parents count %d out of [0,32]", n)
	}
	// n == 0 is valid only for the DAG's genesis header; every other block
	// is additionally required (blockprocessor's shape check) to carry at
	// least one parent.
	h.ParentsByLevel = make([]Hash, n)
	for i := 0; i < n; i++ {
		h.ParentsByLevel[i] = r.ReadFixedHash()
	}

	h.BlueScore = r.ReadU64()
	h.DAAScore = r.ReadU64()
	for i := range h.BlueWork {
		h.BlueWork[i] = r.ReadU64()
	}

	h.Bits = r.ReadU32()
	h.Timestamp = r.ReadU64()
	copy(h.ExtraNonce[:], r.readFixed(32))
	copy(h.Miner[:], r.readFixed(32))

	h.HashMerkleRoot = r.ReadFixedHash()
	h.PruningPoint = r.ReadFixedHash()
	h.AcceptedIDMerkleRoot = r.ReadFixedHash()
	h.UTXOCommitment = r.ReadFixedHash()

	if r.ReadBool() {
		v := &VRFData{}
		copy(v.PublicKey[:], r.readFixed(32))
		copy(v.Output[:], r.readFixed(32))
		copy(v.Proof[:], r.readFixed(64))
		copy(v.BindingSignature[:], r.readFixed(64))
		h.VRF = v
	}

	if err := r.Strict(); err != nil {
		return nil, err
	}
	return h, nil
}

// Hash returns the domain-separated hash of the canonical-encoded header
// (spec §3: "A block's hash is the domain-separated hash of the
// canonical-encoded header").
func (h *BlockHeader) Hash() Hash {
	return DomainHash(DomainBlockHeader, h.Encode())
}
