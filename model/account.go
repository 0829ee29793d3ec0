package model

// Ciphertext is an ElGamal ciphertext over Ristretto255 representing a
// confidential (UNO) balance (spec §3). The group elements themselves are
// opaque 32-byte compressed points at the model layer; crypto/ristretto.go
// decompresses them when needed.
type Ciphertext struct {
	C [32]byte // commitment component
	D [32]byte // decryption-handle component
}

// MultisigConfig is an account's optional multisig policy (spec §3).
type MultisigConfig struct {
	Threshold uint8
	Signers   [][32]byte
}

// AgentMeta is opaque application metadata an account may carry (spec §3);
// the core stores it verbatim and never interprets it.
type AgentMeta struct {
	Data []byte
}

// Account is the per-public-key, per-topoheight state record (spec §3).
type Account struct {
	PublicKey [32]byte

	Nonce uint64

	Balances    map[Hash]uint64
	UNOBalances map[Hash]Ciphertext

	Multisig       *MultisigConfig
	Agent          *AgentMeta
	RegisteredName string

	// EnergyFrozen is the supplemented Energy-fee primitive (spec §9
	// SUPPLEMENTED FEATURES: energy_fee.rs).
	EnergyFrozen uint64

	KYCStatus KYCStatus
}

// Encode produces the canonical byte representation stored under
// ColumnAccount (spec §4.1: sorted-by-key-bytes map encoding for
// Balances/UNOBalances).
func (a *Account) Encode() []byte {
	w := NewWriter()
	w.WriteRaw(a.PublicKey[:])
	w.WriteU64(a.Nonce)

	balanceKeys := make([][]byte, 0, len(a.Balances))
	for k := range a.Balances {
		k := k
		balanceKeys = append(balanceKeys, k[:])
	}
	SortedMapEntries(balanceKeys, func(w *Writer, key []byte) {
		var h Hash
		copy(h[:], key)
		w.WriteFixedHash(h)
		w.WriteU64(a.Balances[h])
	})(w)

	unoKeys := make([][]byte, 0, len(a.UNOBalances))
	for k := range a.UNOBalances {
		k := k
		unoKeys = append(unoKeys, k[:])
	}
	SortedMapEntries(unoKeys, func(w *Writer, key []byte) {
		var h Hash
		copy(h[:], key)
		w.WriteFixedHash(h)
		c := a.UNOBalances[h]
		w.WriteRaw(c.C[:])
		w.WriteRaw(c.D[:])
	})(w)

	if a.Multisig != nil {
		w.WriteBool(true)
		w.WriteU8(a.Multisig.Threshold)
		w.WriteU8(uint8(len(a.Multisig.Signers)))
		for _, s := range a.Multisig.Signers {
			w.WriteRaw(s[:])
		}
	} else {
		w.WriteBool(false)
	}

	if a.Agent != nil {
		w.WriteBool(true)
		w.WriteBytes32(a.Agent.Data)
	} else {
		w.WriteBool(false)
	}

	w.WriteBytes8([]byte(a.RegisteredName))
	w.WriteU64(a.EnergyFrozen)
	w.WriteU8(uint8(a.KYCStatus))
	return w.Bytes()
}

// DecodeAccount decodes the representation written by Encode.
func DecodeAccount(b []byte) (*Account, error) {
	r := NewReader(b)
	a := &Account{}
	copy(a.PublicKey[:], r.readFixed(32))
	a.Nonce = r.ReadU64()

	n := r.ReadU32()
	a.Balances = make(map[Hash]uint64, n)
	for i := uint32(0); i < n; i++ {
		h := r.ReadFixedHash()
		a.Balances[h] = r.ReadU64()
	}

	m := r.ReadU32()
	a.UNOBalances = make(map[Hash]Ciphertext, m)
	for i := uint32(0); i < m; i++ {
		h := r.ReadFixedHash()
		var c Ciphertext
		copy(c.C[:], r.readFixed(32))
		copy(c.D[:], r.readFixed(32))
		a.UNOBalances[h] = c
	}

	if r.ReadBool() {
		ms := &MultisigConfig{Threshold: r.ReadU8()}
		sc := int(r.ReadU8())
		ms.Signers = make([][32]byte, sc)
		for i := 0; i < sc; i++ {
			copy(ms.Signers[i][:], r.readFixed(32))
		}
		a.Multisig = ms
	}

	if r.ReadBool() {
		a.Agent = &AgentMeta{Data: r.ReadBytes32()}
	}

	a.RegisteredName = string(r.ReadBytes8())
	a.EnergyFrozen = r.ReadU64()
	a.KYCStatus = KYCStatus(r.ReadU8())

	if err := r.Strict(); err != nil {
		return nil, err
	}
	return a, nil
}

// NewAccount returns a freshly registered account with zeroed balances.
func NewAccount(pk [32]byte) *Account {
	return &Account{
		PublicKey:   pk,
		Balances:    make(map[Hash]uint64),
		UNOBalances: make(map[Hash]Ciphertext),
	}
}

// Clone deep-copies the account, used when C7 forks an overlay per
// conflict group (spec §4.7).
func (a *Account) Clone() *Account {
	c := &Account{
		PublicKey:      a.PublicKey,
		Nonce:          a.Nonce,
		Balances:       make(map[Hash]uint64, len(a.Balances)),
		UNOBalances:    make(map[Hash]Ciphertext, len(a.UNOBalances)),
		RegisteredName: a.RegisteredName,
		EnergyFrozen:   a.EnergyFrozen,
		KYCStatus:      a.KYCStatus,
	}
	for k, v := range a.Balances {
		c.Balances[k] = v
	}
	for k, v := range a.UNOBalances {
		c.UNOBalances[k] = v
	}
	if a.Multisig != nil {
		m := *a.Multisig
		m.Signers = append([][32]byte{}, a.Multisig.Signers...)
		c.Multisig = &m
	}
	if a.Agent != nil {
		ag := &AgentMeta{Data: append([]byte{}, a.Agent.Data...)}
		c.Agent = ag
	}
	return c
}
