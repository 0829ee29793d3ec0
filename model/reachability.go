package model

// Interval is an inclusive [Start,End] range in the reachability
// labelling tree; containment answers chain ancestry in O(1) (spec §3,
// §4.4).
type Interval struct {
	Start uint64
	End   uint64
}

func (i Interval) Size() uint64 { return i.End - i.Start + 1 }

// Contains reports whether i fully contains o (i is a tree-ancestor of
// the block owning o, or the same block).
func (i Interval) Contains(o Interval) bool {
	return i.Start <= o.Start && o.End <= i.End
}

// ReachabilityData is the per-block reachability record (spec §3, §4.4).
type ReachabilityData struct {
	Parent   Hash // reachability-tree parent (== DAG selected parent)
	Interval Interval
	Height   uint64
	Children []Hash

	// FutureCoveringSet is ordered by interval start (spec §3 invariant).
	FutureCoveringSet []Hash
}

func (r *ReachabilityData) Clone() *ReachabilityData {
	return &ReachabilityData{
		Parent:            r.Parent,
		Interval:          r.Interval,
		Height:            r.Height,
		Children:          append([]Hash{}, r.Children...),
		FutureCoveringSet: append([]Hash{}, r.FutureCoveringSet...),
	}
}

func (r *ReachabilityData) Encode() []byte {
	w := NewWriter()
	w.WriteFixedHash(r.Parent)
	w.WriteU64(r.Interval.Start)
	w.WriteU64(r.Interval.End)
	w.WriteU64(r.Height)
	w.WriteHashSlice(r.Children)
	w.WriteHashSlice(r.FutureCoveringSet)
	return w.Bytes()
}

func DecodeReachabilityData(b []byte) (*ReachabilityData, error) {
	r := NewReader(b)
	d := &ReachabilityData{}
	d.Parent = r.ReadFixedHash()
	d.Interval.Start = r.ReadU64()
	d.Interval.End = r.ReadU64()
	d.Height = r.ReadU64()
	d.Children = r.ReadHashSlice()
	d.FutureCoveringSet = r.ReadHashSlice()
	if err := r.Strict(); err != nil {
		return nil, err
	}
	return d, nil
}
