package model

// GhostdagData is the per-block GHOSTDAG record (spec §3, §4.5).
type GhostdagData struct {
	BlueScore    uint64
	BlueWork     BigWork
	SelectedParent Hash

	MergesetBlues []Hash
	MergesetReds  []Hash

	// BluesAnticoneSizes maps a mergeset-blue block to the count of
	// blues in its anticone within the mergeset (spec §4.5 step 3).
	BluesAnticoneSizes map[Hash]uint8
}

func (g *GhostdagData) Clone() *GhostdagData {
	c := &GhostdagData{
		BlueScore:      g.BlueScore,
		BlueWork:       g.BlueWork,
		SelectedParent: g.SelectedParent,
		MergesetBlues:  append([]Hash{}, g.MergesetBlues...),
		MergesetReds:   append([]Hash{}, g.MergesetReds...),
	}
	c.BluesAnticoneSizes = make(map[Hash]uint8, len(g.BluesAnticoneSizes))
	for k, v := range g.BluesAnticoneSizes {
		c.BluesAnticoneSizes[k] = v
	}
	return c
}

func (w *Writer) WriteHashSlice(hs []Hash) {
	w.WriteU32(uint32(len(hs)))
	for _, h := range hs {
		w.WriteFixedHash(h)
	}
}

func (r *Reader) ReadHashSlice() []Hash {
	n := r.ReadU32()
	out := make([]Hash, n)
	for i := uint32(0); i < n; i++ {
		out[i] = r.ReadFixedHash()
	}
	return out
}

// Encode produces a canonical byte representation for storage in C3
// under the "GHOSTDAG data" column.
func (g *GhostdagData) Encode() []byte {
	w := NewWriter()
	w.WriteU64(g.BlueScore)
	for _, limb := range g.BlueWork {
		w.WriteU64(limb)
	}
	w.WriteFixedHash(g.SelectedParent)
	w.WriteHashSlice(g.MergesetBlues)
	w.WriteHashSlice(g.MergesetReds)
	w.WriteU32(uint32(len(g.BluesAnticoneSizes)))

	keys := make([]Hash, 0, len(g.BluesAnticoneSizes))
	for k := range g.BluesAnticoneSizes {
		keys = append(keys, k)
	}
	SortHashesInPlace(keys)
	for _, k := range keys {
		w.WriteFixedHash(k)
		w.WriteU8(g.BluesAnticoneSizes[k])
	}
	return w.Bytes()
}

// SortHashesInPlace is an exported alias of the internal sort helper, used
// wherever a deterministic map-iteration order must be encoded.
func SortHashesInPlace(hs []Hash) { SortHashes(hs) }

// DecodeGhostdagData decodes the byte representation written by Encode.
func DecodeGhostdagData(b []byte) (*GhostdagData, error) {
	r := NewReader(b)
	g := &GhostdagData{}
	g.BlueScore = r.ReadU64()
	for i := range g.BlueWork {
		g.BlueWork[i] = r.ReadU64()
	}
	g.SelectedParent = r.ReadFixedHash()
	g.MergesetBlues = r.ReadHashSlice()
	g.MergesetReds = r.ReadHashSlice()

	n := r.ReadU32()
	g.BluesAnticoneSizes = make(map[Hash]uint8, n)
	for i := uint32(0); i < n; i++ {
		k := r.ReadFixedHash()
		v := r.ReadU8()
		g.BluesAnticoneSizes[k] = v
	}
	if err := r.Strict(); err != nil {
		return nil, err
	}
	return g, nil
}
