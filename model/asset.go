package model

// Asset describes a fungible unit tracked by the account model (spec §3).
type Asset struct {
	ID         Hash
	Decimals   uint8
	Name       string
	Ticker     string
	MaxSupply  *uint64
	Controller *[32]byte

	Supply uint64
}

func (a *Asset) Clone() *Asset {
	c := *a
	if a.MaxSupply != nil {
		v := *a.MaxSupply
		c.MaxSupply = &v
	}
	if a.Controller != nil {
		v := *a.Controller
		c.Controller = &v
	}
	return &c
}

// Encode produces the canonical byte representation stored under
// ColumnAsset.
func (a *Asset) Encode() []byte {
	w := NewWriter()
	w.WriteFixedHash(a.ID)
	w.WriteU8(a.Decimals)
	w.WriteBytes8([]byte(a.Name))
	w.WriteBytes8([]byte(a.Ticker))
	if a.MaxSupply != nil {
		w.WriteBool(true)
		w.WriteU64(*a.MaxSupply)
	} else {
		w.WriteBool(false)
	}
	if a.Controller != nil {
		w.WriteBool(true)
		w.WriteRaw(a.Controller[:])
	} else {
		w.WriteBool(false)
	}
	w.WriteU64(a.Supply)
	return w.Bytes()
}

// DecodeAsset decodes the representation written by Encode.
func DecodeAsset(b []byte) (*Asset, error) {
	r := NewReader(b)
	a := &Asset{}
	a.ID = r.ReadFixedHash()
	a.Decimals = r.ReadU8()
	a.Name = string(r.ReadBytes8())
	a.Ticker = string(r.ReadBytes8())
	if r.ReadBool() {
		v := r.ReadU64()
		a.MaxSupply = &v
	}
	if r.ReadBool() {
		var c [32]byte
		copy(c[:], r.readFixed(32))
		a.Controller = &c
	}
	a.Supply = r.ReadU64()
	if err := r.Strict(); err != nil {
		return nil, err
	}
	return a, nil
}

// Contract is a deployed smart-contract module plus its storage map
// (spec §3). Storage cells are opaque byte strings to the core; only the
// injected ContractExecutor interprets them.
type Contract struct {
	Address  Hash
	Bytecode []byte
	Storage  map[string][]byte
}

func NewContract(addr Hash, bytecode []byte) *Contract {
	return &Contract{Address: addr, Bytecode: bytecode, Storage: make(map[string][]byte)}
}

func (c *Contract) Clone() *Contract {
	cl := &Contract{
		Address:  c.Address,
		Bytecode: append([]byte{}, c.Bytecode...),
		Storage:  make(map[string][]byte, len(c.Storage)),
	}
	for k, v := range c.Storage {
		cl.Storage[k] = append([]byte{}, v...)
	}
	return cl
}

// Encode produces the canonical byte representation stored under
// ColumnContract. Contract storage cells live under ColumnContractStorage
// instead, keyed by contract address + cell key, so a contract's storage
// does not need to be rewritten in full on every unrelated field change.
func (c *Contract) Encode() []byte {
	w := NewWriter()
	w.WriteFixedHash(c.Address)
	w.WriteBytes32(c.Bytecode)
	return w.Bytes()
}

// DecodeContract decodes the representation written by Encode. Storage is
// left empty; callers read individual cells from ColumnContractStorage.
func DecodeContract(b []byte) (*Contract, error) {
	r := NewReader(b)
	c := &Contract{Storage: make(map[string][]byte)}
	c.Address = r.ReadFixedHash()
	c.Bytecode = r.ReadBytes32()
	if err := r.Strict(); err != nil {
		return nil, err
	}
	return c, nil
}
