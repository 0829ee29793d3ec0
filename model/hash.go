package model

import (
	"bytes"
	"encoding/hex"

	"github.com/tos-network/tos-core/errors"
)

// HashSize is the fixed width of every content address in the system
// (blocks, transactions, accounts, assets, contracts) per spec §3.
const HashSize = 32

// Hash is an opaque 32-byte content address.
type Hash [HashSize]byte

// ZeroHash is the all-zero sentinel used for, e.g., an empty block's
// hash_merkle_root (spec §4.8) or a reachability tree's genesis parent.
var ZeroHash = Hash{}

func (h Hash) IsZero() bool { return h == ZeroHash }

func (h Hash) String() string { return hex.EncodeToString(h[:]) }

func (h Hash) Bytes() []byte {
	b := make([]byte, HashSize)
	copy(b, h[:])
	return b
}

// Compare gives the ascending-by-bytes ordering used throughout the spec
// for canonicalisation tie-breaks (parent sort order, mergeset ordering).
func (h Hash) Compare(o Hash) int { return bytes.Compare(h[:], o[:]) }

// Less reports h < o in the byte-lexicographic order used for sorting.
func (h Hash) Less(o Hash) bool { return h.Compare(o) < 0 }

// HashFromBytes copies exactly HashSize bytes into a Hash.
func HashFromBytes(b []byte) (Hash, error) {
	var h Hash
	if len(b) != HashSize {
		return h, errors.New(errors.ERR_INVALID_SIZE, "hash must be %d bytes, got %d", HashSize, len(b))
	}
	copy(h[:], b)
	return h, nil
}

// HashFromHex decodes a hex string into a Hash.
func HashFromHex(s string) (Hash, error) {
	b, err := hex.DecodeString(s)
	if err != nil {
		return Hash{}, errors.New(errors.ERR_INVALID_HEX, "invalid hash hex", err)
	}
	return HashFromBytes(b)
}

// SortHashes sorts a slice of hashes ascending in place, the canonical
// tie-break order used for parents_by_level and mergeset ordering.
func SortHashes(hs []Hash) {
	// insertion sort: parent/mergeset lists are small (<=32 / a few
	// hundred at most), and this keeps the sort deterministic and
	// allocation-free without reaching for sort.Slice's reflection.
	for i := 1; i < len(hs); i++ {
		for j := i; j > 0 && hs[j].Less(hs[j-1]); j-- {
			hs[j], hs[j-1] = hs[j-1], hs[j]
		}
	}
}
