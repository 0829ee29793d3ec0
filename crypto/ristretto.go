package crypto

import (
	"crypto/sha512"

	"github.com/gtank/ristretto255"
	"github.com/tos-network/tos-core/errors"
)

// Point wraps a compressed Ristretto255 group element. Decompression
// validates canonical encoding and (by construction of the Ristretto
// encoding) membership in the prime-order subgroup — there is no
// cofactor to clear, unlike raw Edwards points (spec §4.2).
type Point struct{ e *ristretto255.Element }

// Scalar wraps a Ristretto255 scalar (mod the group order).
type Scalar struct{ s *ristretto255.Scalar }

// basepointG is the standard Ristretto255 basepoint, used as the "value"
// generator in Pedersen commitments.
func basepointG() *ristretto255.Element {
	return ristretto255.NewElement().Base()
}

// basepointH derives an independent "blinding" generator by hashing a
// fixed domain string with SHA-512 and mapping the 64-byte digest to a
// point via FromUniformBytes — the standard nothing-up-my-sleeve
// technique for a second Pedersen generator with no known discrete log
// relationship to G.
func basepointH() *ristretto255.Element {
	h := sha512.Sum512([]byte("TOS-PEDERSEN-H-GENERATOR"))
	return ristretto255.NewElement().FromUniformBytes(h[:])
}

var (
	gGen = basepointG()
	hGen = basepointH()
)

// GeneratorG and GeneratorH expose the Pedersen generator pair for
// protocols outside this file (e.g. the confidential-transfer equality
// proof) that need to build relations over the same base points.
func GeneratorG() *Point { return &Point{e: gGen} }
func GeneratorH() *Point { return &Point{e: hGen} }

// IdentityPoint returns the group identity element, the implicit "zero
// balance" ciphertext component for an asset an account has never held
// (executor's confidential-transfer ledger update starts from this rather
// than decoding an all-zero byte string, which is not a valid Ristretto255
// point encoding). Computed as G - G rather than relying on an assumed
// zero-value representation.
func IdentityPoint() *Point {
	return &Point{e: ristretto255.NewElement().Subtract(gGen, gGen)}
}

// ristrettoFromUniform maps 64 bytes of hash output to a uniformly
// distributed group element, used by the VRF's hash-to-point step.
func ristrettoFromUniform(wide []byte) *ristretto255.Element {
	return ristretto255.NewElement().FromUniformBytes(wide)
}

// DecodePoint decompresses and validates a 32-byte Ristretto255 encoding.
func DecodePoint(b []byte) (*Point, error) {
	e := ristretto255.NewElement()
	if _, err := e.Decode(b); err != nil {
		return nil, errors.New(errors.ERR_INVALID_VALUE, "invalid ristretto255 point encoding", err)
	}
	return &Point{e: e}, nil
}

func (p *Point) Encode() []byte {
	return p.e.Bytes()
}

func (p *Point) Add(o *Point) *Point {
	r := ristretto255.NewElement().Add(p.e, o.e)
	return &Point{e: r}
}

func (p *Point) Sub(o *Point) *Point {
	r := ristretto255.NewElement().Subtract(p.e, o.e)
	return &Point{e: r}
}

func (p *Point) Equal(o *Point) bool {
	return p.e.Equal(o.e) == 1
}

func (p *Point) ScalarMult(s *Scalar) *Point {
	r := ristretto255.NewElement().ScalarMult(s.s, p.e)
	return &Point{e: r}
}

// MultiScalarMult computes sum(scalars[i] * points[i]) in a single pass,
// the primitive spec §4.2 calls out explicitly for batch proof
// verification.
func MultiScalarMult(scalars []*Scalar, points []*Point) *Point {
	ss := make([]*ristretto255.Scalar, len(scalars))
	es := make([]*ristretto255.Element, len(points))
	for i := range scalars {
		ss[i] = scalars[i].s
		es[i] = points[i].e
	}
	r := ristretto255.NewElement().MultiscalarMult(ss, es)
	return &Point{e: r}
}

// NewScalarFromUint64 lifts a plaintext amount into the scalar field.
func NewScalarFromUint64(v uint64) *Scalar {
	buf := make([]byte, 64)
	for i := 0; i < 8; i++ {
		buf[i] = byte(v >> (8 * i))
	}
	return &Scalar{s: ristretto255.NewScalar().FromUniformBytes(buf)}
}

// RandomScalar derives a scalar from 64 bytes of randomness (caller
// supplies entropy; the core never generates randomness itself — that is
// the wallet's responsibility per spec §1).
func RandomScalar(entropy64 []byte) (*Scalar, error) {
	if len(entropy64) != 64 {
		return nil, errors.New(errors.ERR_INVALID_SIZE, "scalar entropy must be 64 bytes")
	}
	return &Scalar{s: ristretto255.NewScalar().FromUniformBytes(entropy64)}, nil
}

func DecodeScalar(b []byte) (*Scalar, error) {
	s := ristretto255.NewScalar()
	if _, err := s.Decode(b); err != nil {
		return nil, errors.New(errors.ERR_INVALID_VALUE, "invalid scalar encoding", err)
	}
	return &Scalar{s: s}, nil
}

func (s *Scalar) Encode() []byte { return s.s.Bytes() }

func (s *Scalar) Add(o *Scalar) *Scalar {
	return &Scalar{s: ristretto255.NewScalar().Add(s.s, o.s)}
}

func (s *Scalar) Sub(o *Scalar) *Scalar {
	return &Scalar{s: ristretto255.NewScalar().Subtract(s.s, o.s)}
}

func (s *Scalar) Mul(o *Scalar) *Scalar {
	return &Scalar{s: ristretto255.NewScalar().Multiply(s.s, o.s)}
}

func (s *Scalar) Equal(o *Scalar) bool {
	return s.s.Equal(o.s) == 1
}

// HashToScalar derives a Fiat-Shamir challenge scalar from a transcript.
func HashToScalar(transcript []byte) *Scalar {
	h := sha512.Sum512(transcript)
	return &Scalar{s: ristretto255.NewScalar().FromUniformBytes(h[:])}
}
