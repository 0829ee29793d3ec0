// Package memory implements stores/versioned.Store entirely in process
// memory. It is grounded on the teacher's stores/utxo/memory/memory.go
// (mutex-guarded map-of-maps shape) and stores/blockchain/sql/StoreBlock.go
// (write-then-patch-pointers pattern), adapted to this spec's
// (column, key, topoheight) -> value model with back-pointer chains.
package memory

import (
	"sync"

	"github.com/dolthub/swiss"
	"github.com/google/uuid"
	"github.com/greatroar/blobloom"
	"github.com/spaolacci/murmur3"

	"github.com/tos-network/tos-core/errors"
	versioned "github.com/tos-network/tos-core/stores/versioned"
)

// version is one recorded write: the value itself, and the topoheight of
// the prior write for the same (col, key), if any.
type version struct {
	value        []byte
	hasPrevTopo  bool
	prevTopo     uint64
}

// columnData is the per-column backing storage: a pointer table mapping
// each key to its current latest topoheight, and a version table mapping
// (topoheight, key) to the version record written at that topoheight.
type columnData struct {
	pointer  *swiss.Map[string, uint64]
	versions *swiss.Map[string, *version]
}

func newColumnData() *columnData {
	return &columnData{
		pointer:  swiss.NewMap[string, uint64](64),
		versions: swiss.NewMap[string, *version](64),
	}
}

func versionKey(topoheight uint64, key string) string {
	buf := make([]byte, 8+len(key))
	buf[0] = byte(topoheight >> 56)
	buf[1] = byte(topoheight >> 48)
	buf[2] = byte(topoheight >> 40)
	buf[3] = byte(topoheight >> 32)
	buf[4] = byte(topoheight >> 24)
	buf[5] = byte(topoheight >> 16)
	buf[6] = byte(topoheight >> 8)
	buf[7] = byte(topoheight)
	copy(buf[8:], key)
	return string(buf)
}

// Store is the in-memory C3 implementation. Safe for concurrent use.
type Store struct {
	mu      sync.RWMutex
	columns map[versioned.Column]*columnData

	// seen is an existence filter over (column, key) pairs that have ever
	// been written, letting GetAtMost short-circuit a miss on a key that
	// was never touched in this column without a map probe. It is a pure
	// optimization: a false positive just falls through to the real
	// lookup, and it is never consulted for correctness.
	seen *blobloom.Filter
}

// New constructs an empty in-memory store.
func New() *Store {
	return &Store{
		columns: make(map[versioned.Column]*columnData),
		seen: blobloom.NewOptimized(blobloom.Config{
			Capacity: 1 << 20,
			FPRate:   0.01,
		}),
	}
}

func seenHash(col versioned.Column, key []byte) uint64 {
	h := murmur3.New64()
	_, _ = h.Write([]byte(col))
	_, _ = h.Write(key)
	return h.Sum64()
}

func (s *Store) columnFor(col versioned.Column) *columnData {
	cd, ok := s.columns[col]
	if !ok {
		cd = newColumnData()
		s.columns[col] = cd
	}
	return cd
}

func (s *Store) Put(col versioned.Column, key []byte, value []byte, topoheight uint64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	cd := s.columnFor(col)
	keyStr := string(key)

	v := &version{value: append([]byte(nil), value...)}
	if prev, ok := cd.pointer.Get(keyStr); ok {
		v.hasPrevTopo = true
		v.prevTopo = prev
	}
	cd.versions.Put(versionKey(topoheight, keyStr), v)
	cd.pointer.Put(keyStr, topoheight)
	s.seen.Add(seenHash(col, key))
	return nil
}

func (s *Store) GetLatest(col versioned.Column, key []byte) ([]byte, uint64, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if !s.seen.Has(seenHash(col, key)) {
		return nil, 0, false, nil
	}
	cd, ok := s.columns[col]
	if !ok {
		return nil, 0, false, nil
	}
	keyStr := string(key)
	topo, ok := cd.pointer.Get(keyStr)
	if !ok {
		return nil, 0, false, nil
	}
	v, ok := cd.versions.Get(versionKey(topo, keyStr))
	if !ok {
		return nil, 0, false, errors.New(errors.ERR_CORRUPTED_DATA, "pointer references missing version record")
	}
	return v.value, topo, true, nil
}

func (s *Store) GetAtMost(col versioned.Column, key []byte, t uint64) ([]byte, uint64, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.getAtMostLocked(col, key, t)
}

func (s *Store) getAtMostLocked(col versioned.Column, key []byte, t uint64) ([]byte, uint64, bool, error) {
	if !s.seen.Has(seenHash(col, key)) {
		return nil, 0, false, nil
	}
	cd, ok := s.columns[col]
	if !ok {
		return nil, 0, false, nil
	}
	keyStr := string(key)
	cur, ok := cd.pointer.Get(keyStr)
	if !ok {
		return nil, 0, false, nil
	}
	for {
		v, ok := cd.versions.Get(versionKey(cur, keyStr))
		if !ok {
			return nil, 0, false, errors.New(errors.ERR_CORRUPTED_DATA, "version chain references missing record")
		}
		if cur <= t {
			return v.value, cur, true, nil
		}
		if !v.hasPrevTopo {
			return nil, 0, false, nil
		}
		cur = v.prevTopo
	}
}

func (s *Store) DeleteAt(col versioned.Column, key []byte, t uint64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	cd, ok := s.columns[col]
	if !ok {
		return nil
	}
	keyStr := string(key)
	latest, ok := cd.pointer.Get(keyStr)
	if !ok {
		return nil
	}
	if latest != t {
		return errors.New(errors.ERR_INVALID_ARGUMENT, "delete_at requires t to be the current latest topoheight")
	}
	v, ok := cd.versions.Get(versionKey(t, keyStr))
	if !ok {
		return errors.New(errors.ERR_CORRUPTED_DATA, "pointer references missing version record")
	}
	cd.versions.Delete(versionKey(t, keyStr))
	if v.hasPrevTopo {
		cd.pointer.Put(keyStr, v.prevTopo)
	} else {
		cd.pointer.Delete(keyStr)
	}
	return nil
}

func (s *Store) DeleteAbove(col versioned.Column, key []byte, t uint64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	cd, ok := s.columns[col]
	if !ok {
		return nil
	}
	keyStr := string(key)
	for {
		latest, ok := cd.pointer.Get(keyStr)
		if !ok || latest <= t {
			return nil
		}
		v, ok := cd.versions.Get(versionKey(latest, keyStr))
		if !ok {
			return errors.New(errors.ERR_CORRUPTED_DATA, "version chain references missing record")
		}
		cd.versions.Delete(versionKey(latest, keyStr))
		if v.hasPrevTopo {
			cd.pointer.Put(keyStr, v.prevTopo)
		} else {
			cd.pointer.Delete(keyStr)
			return nil
		}
	}
}

func (s *Store) DeleteBelow(col versioned.Column, key []byte, t uint64, keepLast bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	cd, ok := s.columns[col]
	if !ok {
		return nil
	}
	keyStr := string(key)
	latest, ok := cd.pointer.Get(keyStr)
	if !ok {
		return nil
	}

	cur := latest
	var above *version
	for {
		v, ok := cd.versions.Get(versionKey(cur, keyStr))
		if !ok {
			return errors.New(errors.ERR_CORRUPTED_DATA, "version chain references missing record")
		}
		if cur <= t {
			break
		}
		if !v.hasPrevTopo {
			// every version is above t: nothing to prune yet.
			return nil
		}
		above = v
		cur = v.prevTopo
	}
	boundary := cur

	if keepLast {
		boundaryVersion, _ := cd.versions.Get(versionKey(boundary, keyStr))
		toDelete, hasMore := boundaryVersion.prevTopo, boundaryVersion.hasPrevTopo
		boundaryVersion.hasPrevTopo = false
		for hasMore {
			v, ok := cd.versions.Get(versionKey(toDelete, keyStr))
			if !ok {
				return errors.New(errors.ERR_CORRUPTED_DATA, "version chain references missing record")
			}
			cd.versions.Delete(versionKey(toDelete, keyStr))
			toDelete, hasMore = v.prevTopo, v.hasPrevTopo
		}
		return nil
	}

	cur = boundary
	for {
		v, ok := cd.versions.Get(versionKey(cur, keyStr))
		if !ok {
			return errors.New(errors.ERR_CORRUPTED_DATA, "version chain references missing record")
		}
		cd.versions.Delete(versionKey(cur, keyStr))
		if !v.hasPrevTopo {
			break
		}
		cur = v.prevTopo
	}
	if above != nil {
		above.hasPrevTopo = false
	} else {
		cd.pointer.Delete(keyStr)
	}
	return nil
}

// Keys implements versioned.Enumerable: every key with at least one live
// version in col, in no particular order.
func (s *Store) Keys(col versioned.Column) ([][]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	cd, ok := s.columns[col]
	if !ok {
		return nil, nil
	}
	out := make([][]byte, 0)
	cd.pointer.Iter(func(k string, _ uint64) bool {
		out = append(out, []byte(k))
		return false
	})
	return out, nil
}

func (s *Store) Snapshot() versioned.Snapshot {
	return &overlay{
		id:      uuid.New(),
		base:    s,
		columns: make(map[versioned.Column]*columnData),
	}
}

// overlay is a Store-shaped write buffer layered over a base Store.
// Because C8 commits exactly one topoheight at a time and all of a
// block's writes land at that single new topoheight, an overlay never
// needs to merge more than one pending version per (col, key): a second
// Put to the same (col, key) within the same overlay simply replaces the
// first, with the replaced value's back-pointer preserved so the chain
// stays correct once committed.
type overlay struct {
	mu       sync.Mutex
	id       uuid.UUID
	base     versioned.Store
	columns  map[versioned.Column]*columnData
	touched  []touchedKey
}

type touchedKey struct {
	col versioned.Column
	key string
}

func (o *overlay) columnFor(col versioned.Column) *columnData {
	cd, ok := o.columns[col]
	if !ok {
		cd = newColumnData()
		o.columns[col] = cd
	}
	return cd
}

func (o *overlay) Put(col versioned.Column, key []byte, value []byte, topoheight uint64) error {
	o.mu.Lock()
	defer o.mu.Unlock()

	cd := o.columnFor(col)
	keyStr := string(key)

	v := &version{value: append([]byte(nil), value...)}
	if existingTopo, ok := cd.pointer.Get(keyStr); ok && existingTopo == topoheight {
		// Same-topoheight rewrite (the common case: a second Put to this key
		// within the same block/overlay). Inherit the buffered version's own
		// back-pointer rather than pointing at existingTopo itself, which
		// would self-reference once this overwrite lands at the same
		// topoheight.
		if existing, ok := cd.versions.Get(versionKey(existingTopo, keyStr)); ok {
			v.hasPrevTopo = existing.hasPrevTopo
			v.prevTopo = existing.prevTopo
		}
	} else if ok {
		v.hasPrevTopo = true
		v.prevTopo = existingTopo
	} else {
		_, baseTopo, found, err := o.base.GetLatest(col, key)
		if err != nil {
			return err
		}
		if found {
			v.hasPrevTopo = true
			v.prevTopo = baseTopo
		}
	}
	cd.versions.Put(versionKey(topoheight, keyStr), v)
	cd.pointer.Put(keyStr, topoheight)
	o.touched = append(o.touched, touchedKey{col: col, key: keyStr})
	return nil
}

func (o *overlay) GetLatest(col versioned.Column, key []byte) ([]byte, uint64, bool, error) {
	o.mu.Lock()
	defer o.mu.Unlock()

	if cd, ok := o.columns[col]; ok {
		keyStr := string(key)
		if topo, ok := cd.pointer.Get(keyStr); ok {
			v, _ := cd.versions.Get(versionKey(topo, keyStr))
			return v.value, topo, true, nil
		}
	}
	return o.base.GetLatest(col, key)
}

func (o *overlay) GetAtMost(col versioned.Column, key []byte, t uint64) ([]byte, uint64, bool, error) {
	o.mu.Lock()
	defer o.mu.Unlock()

	if cd, ok := o.columns[col]; ok {
		keyStr := string(key)
		if topo, ok := cd.pointer.Get(keyStr); ok && topo <= t {
			v, _ := cd.versions.Get(versionKey(topo, keyStr))
			return v.value, topo, true, nil
		}
	}
	return o.base.GetAtMost(col, key, t)
}

// DeleteAt, DeleteAbove and DeleteBelow operate only on writes already
// buffered in this overlay; block processing (C8/C7) never deletes
// committed history mid-block, that is C9's job operating directly on
// the base store after a commit.
func (o *overlay) DeleteAt(col versioned.Column, key []byte, t uint64) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	cd, ok := o.columns[col]
	if !ok {
		return nil
	}
	keyStr := string(key)
	latest, ok := cd.pointer.Get(keyStr)
	if !ok || latest != t {
		return nil
	}
	v, _ := cd.versions.Get(versionKey(t, keyStr))
	cd.versions.Delete(versionKey(t, keyStr))
	if v.hasPrevTopo {
		cd.pointer.Put(keyStr, v.prevTopo)
	} else {
		cd.pointer.Delete(keyStr)
	}
	return nil
}

func (o *overlay) DeleteAbove(col versioned.Column, key []byte, t uint64) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	cd, ok := o.columns[col]
	if !ok {
		return nil
	}
	keyStr := string(key)
	for {
		latest, ok := cd.pointer.Get(keyStr)
		if !ok || latest <= t {
			return nil
		}
		v, _ := cd.versions.Get(versionKey(latest, keyStr))
		cd.versions.Delete(versionKey(latest, keyStr))
		if v.hasPrevTopo {
			cd.pointer.Put(keyStr, v.prevTopo)
		} else {
			cd.pointer.Delete(keyStr)
			return nil
		}
	}
}

func (o *overlay) DeleteBelow(col versioned.Column, key []byte, t uint64, keepLast bool) error {
	return errors.New(errors.ERR_INVALID_ARGUMENT, "delete_below is not supported on an uncommitted snapshot overlay")
}

func (o *overlay) Commit() error {
	o.mu.Lock()
	defer o.mu.Unlock()

	for _, tk := range o.dedupedTouched() {
		cd := o.columns[tk.col]
		topo, ok := cd.pointer.Get(tk.key)
		if !ok {
			continue
		}
		v, ok := cd.versions.Get(versionKey(topo, tk.key))
		if !ok {
			continue
		}
		if err := o.base.Put(tk.col, []byte(tk.key), v.value, topo); err != nil {
			return err
		}
	}
	o.touched = nil
	return nil
}

func (o *overlay) Rollback() {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.columns = make(map[versioned.Column]*columnData)
	o.touched = nil
}

// ID returns the overlay's uuid, used only for log/metric correlation.
func (o *overlay) ID() uuid.UUID { return o.id }

// dedupedTouched returns o.touched with repeats of the same (col, key)
// collapsed to one entry, in first-seen order. Callers must hold o.mu.
func (o *overlay) dedupedTouched() []touchedKey {
	seen := make(map[touchedKey]struct{}, len(o.touched))
	out := make([]touchedKey, 0, len(o.touched))
	for _, tk := range o.touched {
		if _, ok := seen[tk]; ok {
			continue
		}
		seen[tk] = struct{}{}
		out = append(out, tk)
	}
	return out
}

// Touched reports every (column, key) pair currently buffered in this
// overlay, deduplicated: a key Put more than once appears once.
func (o *overlay) Touched() []versioned.TouchedKey {
	o.mu.Lock()
	defer o.mu.Unlock()

	deduped := o.dedupedTouched()
	out := make([]versioned.TouchedKey, 0, len(deduped))
	for _, tk := range deduped {
		out = append(out, versioned.TouchedKey{Col: tk.col, Key: []byte(tk.key)})
	}
	return out
}

// Snapshot forks a nested overlay on top of this one: reads fall through
// to this overlay's pending writes before reaching the base store, and
// the fork's own writes stay invisible to it until the fork is committed.
// This is how C7's parallel batch scheduler gives each conflict group its
// own overlay fork off the block's primary overlay (spec §4.7).
func (o *overlay) Snapshot() versioned.Snapshot {
	return &overlay{
		id:      uuid.New(),
		base:    o,
		columns: make(map[versioned.Column]*columnData),
	}
}
