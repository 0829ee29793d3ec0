package crypto

import "github.com/tos-network/tos-core/errors"

// EqualityProof proves that two Pedersen-style commitments built over
// independent generator pairs hide the same value v, without revealing
// v, r1 or r2 — the primitive a confidential transfer needs to link its
// ElGamal ciphertext commitment component (generators G, recipient
// public key) to its range-proof commitment (generators G, H) (spec
// §4.6's "equality proof" on a ConfidentialTransferPayload).
type EqualityProof struct {
	A1 *Point
	A2 *Point
	Zv *Scalar
	Zr1 *Scalar
	Zr2 *Scalar
}

// Encode serializes the proof as 5 concatenated 32-byte field elements.
func (p *EqualityProof) Encode() []byte {
	out := make([]byte, 0, 160)
	out = append(out, p.A1.Encode()...)
	out = append(out, p.A2.Encode()...)
	out = append(out, p.Zv.Encode()...)
	out = append(out, p.Zr1.Encode()...)
	out = append(out, p.Zr2.Encode()...)
	return out
}

func DecodeEqualityProof(b []byte) (*EqualityProof, error) {
	if len(b) != 160 {
		return nil, errors.New(errors.ERR_INVALID_SIZE, "equality proof must be 160 bytes")
	}
	a1, err := DecodePoint(b[0:32])
	if err != nil {
		return nil, err
	}
	a2, err := DecodePoint(b[32:64])
	if err != nil {
		return nil, err
	}
	zv, err := DecodeScalar(b[64:96])
	if err != nil {
		return nil, err
	}
	zr1, err := DecodeScalar(b[96:128])
	if err != nil {
		return nil, err
	}
	zr2, err := DecodeScalar(b[128:160])
	if err != nil {
		return nil, err
	}
	return &EqualityProof{A1: a1, A2: a2, Zv: zv, Zr1: zr1, Zr2: zr2}, nil
}

// VerifyEqualityProof checks that c1 = v*g1 + r1*h1 and c2 = v*g2 + r2*h2
// commit to the same v, for some r1, r2, using a standard two-relation
// Schnorr/Chaum-Pedersen sigma protocol bound together by a shared
// challenge.
func VerifyEqualityProof(c1, g1, h1, c2, g2, h2 *Point, proof *EqualityProof) bool {
	transcript := make([]byte, 0, 6*32)
	transcript = append(transcript, c1.Encode()...)
	transcript = append(transcript, c2.Encode()...)
	transcript = append(transcript, proof.A1.Encode()...)
	transcript = append(transcript, proof.A2.Encode()...)
	e := HashToScalar(transcript)

	lhs1 := g1.ScalarMult(proof.Zv).Add(h1.ScalarMult(proof.Zr1))
	rhs1 := proof.A1.Add(c1.ScalarMult(e))
	if !lhs1.Equal(rhs1) {
		return false
	}

	lhs2 := g2.ScalarMult(proof.Zv).Add(h2.ScalarMult(proof.Zr2))
	rhs2 := proof.A2.Add(c2.ScalarMult(e))
	return lhs2.Equal(rhs2)
}
