package crypto

// Commitment is a Pedersen commitment commit(v, r) = v*G + r*H over
// Ristretto255 (spec §4.2).
type Commitment struct{ P *Point }

// Commit computes v*G + r*H.
func Commit(v, r *Scalar) *Commitment {
	vg := (&Point{e: gGen}).ScalarMult(v)
	rh := (&Point{e: hGen}).ScalarMult(r)
	return &Commitment{P: vg.Add(rh)}
}

// Add exploits Pedersen's additive homomorphism:
// commit(v1,r1) + commit(v2,r2) = commit(v1+v2, r1+r2).
func (c *Commitment) Add(o *Commitment) *Commitment {
	return &Commitment{P: c.P.Add(o.P)}
}

func (c *Commitment) Sub(o *Commitment) *Commitment {
	return &Commitment{P: c.P.Sub(o.P)}
}

func (c *Commitment) Equal(o *Commitment) bool {
	return c.P.Equal(o.P)
}

func (c *Commitment) Encode() []byte { return c.P.Encode() }

// Point exposes the underlying group element for protocols (e.g. the
// confidential-transfer equality proof) that need to combine a
// Pedersen commitment with other Ristretto255 points directly.
func (c *Commitment) Point() *Point { return c.P }

func DecodeCommitment(b []byte) (*Commitment, error) {
	p, err := DecodePoint(b)
	if err != nil {
		return nil, err
	}
	return &Commitment{P: p}, nil
}

// VerifyOpening checks that commitment opens to (v, r) — used by tests
// and by any path that needs to re-derive a commitment it already knows
// the opening of (e.g. a contract crediting a known plaintext amount into
// a confidential balance).
func VerifyOpening(c *Commitment, v, r *Scalar) bool {
	return c.Equal(Commit(v, r))
}
