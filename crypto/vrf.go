package crypto

import (
	"crypto/sha512"

	"github.com/tos-network/tos-core/errors"
)

// vrfInputTag and vrfDeriveTag domain-separate the VRF input pre-image
// (built by vrfInputBytes as tag length byte || tag || block_hash ||
// miner_pk) and the derived-randomness hash.
const vrfInputTag = "TOS-VRF-INPUT"
const vrfDeriveTag = "TOS-VRF-DERIVE"

func vrfInputBytes(blockHash, minerPubKey [32]byte) []byte {
	buf := make([]byte, 0, len(vrfInputTag)+64)
	buf = append(buf, byte(len(vrfInputTag)))
	buf = append(buf, vrfInputTag...)
	buf = append(buf, blockHash[:]...)
	buf = append(buf, minerPubKey[:]...)
	return buf
}

// hashToPoint maps arbitrary input to a Ristretto255 point with no known
// discrete log relative to the basepoint, the VRF's "H" generator.
func hashToPoint(input []byte) *Point {
	wide := sha512.Sum512(input)
	e := ristrettoFromUniform(wide[:])
	return &Point{e: e}
}

// VRFOutputs bundles the verified pre-output point and the final
// contract-visible random value.
type VRFOutputs struct {
	PreOutput [32]byte
	Random    [32]byte
}

// dleqProofSize: c (32 bytes) || s (32 bytes).
const dleqProofSize = 64

// VerifyVRF checks a block's VRF contribution per spec §4.2:
//   1. the Chaum-Pedersen DLEQ proof that Output = sk*H(vrf_input) using
//      the same sk whose public key is vrf.PublicKey (Y = sk*G);
//   2. the binding signature, an Ed25519 signature by the miner's key
//      over (vrf_input || Output), proving the miner authorized this
//      specific VRF contribution for this specific block.
// On success it returns the contract-visible derived randomness.
func VerifyVRF(blockHash [32]byte, minerPubKey [32]byte, vrfPublicKey [32]byte, output [32]byte, proof [64]byte, bindingSig [64]byte) (*VRFOutputs, error) {
	input := vrfInputBytes(blockHash, minerPubKey)
	hp := hashToPoint(input)

	y, err := DecodePoint(vrfPublicKey[:])
	if err != nil {
		return nil, errors.New(errors.ERR_INVALID_PROOF, "invalid vrf public key", err)
	}
	beta, err := DecodePoint(output[:])
	if err != nil {
		return nil, errors.New(errors.ERR_INVALID_PROOF, "invalid vrf output point", err)
	}

	c, err := DecodeScalar(proof[:32])
	if err != nil {
		return nil, errors.New(errors.ERR_INVALID_PROOF, "invalid vrf proof challenge", err)
	}
	s, err := DecodeScalar(proof[32:])
	if err != nil {
		return nil, errors.New(errors.ERR_INVALID_PROOF, "invalid vrf proof response", err)
	}

	// t1 = s*G - c*Y, t2 = s*Hp - c*Beta; recompute challenge and compare.
	g := &Point{e: gGen}
	t1 := g.ScalarMult(s).Sub(y.ScalarMult(c))
	t2 := hp.ScalarMult(s).Sub(beta.ScalarMult(c))

	transcript := make([]byte, 0, 32*6)
	transcript = append(transcript, g.Encode()...)
	transcript = append(transcript, y.Encode()...)
	transcript = append(transcript, hp.Encode()...)
	transcript = append(transcript, beta.Encode()...)
	transcript = append(transcript, t1.Encode()...)
	transcript = append(transcript, t2.Encode()...)
	expected := HashToScalar(transcript)

	if !expected.Equal(c) {
		return nil, errors.New(errors.ERR_INVALID_PROOF, "vrf DLEQ proof failed")
	}

	bindMsg := append(append([]byte{}, input...), output[:]...)
	if !Verify(minerPubKey, bindMsg, bindingSig) {
		return nil, errors.New(errors.ERR_INVALID_SIGNATURE, "vrf binding signature failed")
	}

	derive := make([]byte, 0, len(vrfDeriveTag)+64)
	derive = append(derive, byte(len(vrfDeriveTag)))
	derive = append(derive, vrfDeriveTag...)
	derive = append(derive, output[:]...)
	derive = append(derive, blockHash[:]...)
	random := sha512.Sum512(derive)

	out := &VRFOutputs{PreOutput: output}
	copy(out.Random[:], random[:32])
	return out, nil
}
