package crypto

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestPedersenCommitOpenAndHomomorphism(t *testing.T) {
	v1, v2 := NewScalarFromUint64(10), NewScalarFromUint64(32)
	r1, r2 := randScalar(t), randScalar(t)

	c1 := Commit(v1, r1)
	c2 := Commit(v2, r2)

	require.True(t, VerifyOpening(c1, v1, r1))
	require.False(t, VerifyOpening(c1, v2, r1))

	sum := c1.Add(c2)
	expected := Commit(NewScalarFromUint64(42), r1.Add(r2))
	require.True(t, sum.Equal(expected))
}

func TestCommitmentEncodeDecodeRoundTrip(t *testing.T) {
	c := Commit(NewScalarFromUint64(99), randScalar(t))
	decoded, err := DecodeCommitment(c.Encode())
	require.NoError(t, err)
	require.True(t, c.Equal(decoded))
}
