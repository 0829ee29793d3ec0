package model

import "github.com/tos-network/tos-core/errors"

// Block is a header plus its ordered transaction set (spec §3).
type Block struct {
	Header       *BlockHeader
	Transactions []*Transaction
}

// Hash is the block's identity: the header hash (spec §3).
func (b *Block) Hash() Hash { return b.Header.Hash() }

// Encode writes the canonical header followed by the length-prefixed
// transaction list (spec §6).
func (b *Block) Encode() []byte {
	w := NewWriter()
	w.WriteBytes32(b.Header.Encode())
	w.WriteU32(uint32(len(b.Transactions)))
	for _, tx := range b.Transactions {
		w.WriteBytes32(tx.Encode())
	}
	return w.Bytes()
}

// DecodeBlock strictly decodes a block.
func DecodeBlock(raw []byte) (*Block, error) {
	r := NewReader(raw)
	headerBytes := r.ReadBytes32()
	if err := r.Err(); err != nil {
		return nil, err
	}
	header, err := DecodeBlockHeader(headerBytes)
	if err != nil {
		return nil, err
	}

	n := r.ReadU32()
	const maxTxCount = 10_000
	if n > maxTxCount {
		return nil, errors.New(errors.ERR_TOO_MANY_TRANSACTIONS, "block claims %d transactions, max %d", n, maxTxCount)
	}
	txs := make([]*Transaction, 0, n)
	for i := uint32(0); i < n; i++ {
		txBytes := r.ReadBytes32()
		if err := r.Err(); err != nil {
			return nil, err
		}
		tx, err := DecodeTransaction(txBytes)
		if err != nil {
			return nil, err
		}
		txs = append(txs, tx)
	}

	if err := r.Strict(); err != nil {
		return nil, err
	}

	return &Block{Header: header, Transactions: txs}, nil
}

// MerkleRoot computes the Merkle root over the block's transaction
// hashes using a binary tree with domain-separated leaf/node hashing
// (spec §3, §4.8). An empty transaction list's root is the zero hash.
func MerkleRoot(txs []*Transaction) Hash {
	if len(txs) == 0 {
		return ZeroHash
	}
	level := make([]Hash, len(txs))
	for i, tx := range txs {
		level[i] = DomainHash(DomainMerkleLeaf, tx.Hash().Bytes())
	}
	for len(level) > 1 {
		next := make([]Hash, 0, (len(level)+1)/2)
		for i := 0; i < len(level); i += 2 {
			if i+1 < len(level) {
				buf := append(append([]byte{}, level[i].Bytes()...), level[i+1].Bytes()...)
				next = append(next, DomainHash(DomainMerkleNode, buf))
			} else {
				// odd node out: promote unchanged, matching the
				// teacher's Bitcoin-style "duplicate last" avoidance
				// by carrying the lone hash forward a level.
				next = append(next, level[i])
			}
		}
		level = next
	}
	return level[0]
}

// ValidateMerkleRoot enforces spec §4.8's anti-spoofing rule: an empty
// block must declare a zero merkle root, and a non-empty block's declared
// root must match what its transactions actually hash to.
func ValidateMerkleRoot(b *Block) error {
	computed := MerkleRoot(b.Transactions)
	if len(b.Transactions) == 0 {
		if !b.Header.HashMerkleRoot.IsZero() {
			return errors.New(errors.ERR_EMPTY_BLOCK_WITH_MERKLE_ROOT, "empty block declares non-zero merkle root")
		}
		return nil
	}
	if computed != b.Header.HashMerkleRoot {
		return errors.New(errors.ERR_INVALID_MERKLE_ROOT, "merkle root mismatch")
	}
	return nil
}
