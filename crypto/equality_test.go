package crypto

import (
	"testing"

	"github.com/stretchr/testify/require"
)

// proveEquality is a test-only prover (the core never constructs proofs).
func proveEquality(t *testing.T, v *Scalar, g1, h1, g2, h2 *Point, r1, r2 *Scalar) (*Point, *Point, *EqualityProof) {
	c1 := g1.ScalarMult(v).Add(h1.ScalarMult(r1))
	c2 := g2.ScalarMult(v).Add(h2.ScalarMult(r2))

	kv, kr1, kr2 := randScalar(t), randScalar(t), randScalar(t)
	a1 := g1.ScalarMult(kv).Add(h1.ScalarMult(kr1))
	a2 := g2.ScalarMult(kv).Add(h2.ScalarMult(kr2))

	transcript := append(append([]byte{}, c1.Encode()...), c2.Encode()...)
	transcript = append(transcript, a1.Encode()...)
	transcript = append(transcript, a2.Encode()...)
	e := HashToScalar(transcript)

	zv := kv.Add(e.Mul(v))
	zr1 := kr1.Add(e.Mul(r1))
	zr2 := kr2.Add(e.Mul(r2))

	return c1, c2, &EqualityProof{A1: a1, A2: a2, Zv: zv, Zr1: zr1, Zr2: zr2}
}

func TestVerifyEqualityProof(t *testing.T) {
	g1 := &Point{e: gGen}
	h1 := &Point{e: hGen}
	g2 := &Point{e: gGen}
	// h2 stands in for a recipient's ElGamal public key.
	hBase := &Point{e: hGen}
	h2 := hBase.ScalarMult(NewScalarFromUint64(7))

	v := NewScalarFromUint64(500)
	r1, r2 := randScalar(t), randScalar(t)

	c1, c2, proof := proveEquality(t, v, g1, h1, g2, h2, r1, r2)
	require.True(t, VerifyEqualityProof(c1, g1, h1, c2, g2, h2, proof))

	wrongV := NewScalarFromUint64(501)
	badC1, _, badProof := proveEquality(t, wrongV, g1, h1, g2, h2, r1, r2)
	require.False(t, VerifyEqualityProof(badC1, g1, h1, c2, g2, h2, badProof))
}

func TestEqualityProofEncodeDecodeRoundTrip(t *testing.T) {
	g1 := &Point{e: gGen}
	h1 := &Point{e: hGen}
	v, r1, r2 := NewScalarFromUint64(9), randScalar(t), randScalar(t)
	_, _, proof := proveEquality(t, v, g1, h1, g1, h1, r1, r2)

	decoded, err := DecodeEqualityProof(proof.Encode())
	require.NoError(t, err)
	require.True(t, proof.Zv.Equal(decoded.Zv))
}
