// Package blockstore is C8's read/write layer over C3 for everything a
// block processor needs beyond account state: headers, bodies, the
// hash/topoheight index, tips and the chain-tip counters. Kept separate
// from stores/accountstate the way the teacher keeps
// stores/blockchain distinct from stores/utxo — different record shapes,
// same versioned-store access pattern.
package blockstore

import (
	"encoding/binary"

	"github.com/tos-network/tos-core/model"
	"github.com/tos-network/tos-core/stores/versioned"
)

// Reader and Writer mirror stores/accountstate's: satisfied by both
// versioned.Store and versioned.Snapshot.
type Reader interface {
	GetLatest(col versioned.Column, key []byte) (value []byte, at uint64, found bool, err error)
	GetAtMost(col versioned.Column, key []byte, t uint64) (value []byte, at uint64, found bool, err error)
}

type Writer interface {
	Put(col versioned.Column, key []byte, value []byte, topoheight uint64) error
}

func ReadHeader(r Reader, hash model.Hash) (*model.BlockHeader, bool, error) {
	raw, _, found, err := r.GetLatest(versioned.ColumnBlockHeader, hash[:])
	if err != nil || !found {
		return nil, found, err
	}
	h, err := model.DecodeBlockHeader(raw)
	if err != nil {
		return nil, false, err
	}
	return h, true, nil
}

func WriteHeader(w Writer, header *model.BlockHeader, topoheight uint64) error {
	hash := header.Hash()
	return w.Put(versioned.ColumnBlockHeader, hash[:], header.Encode(), topoheight)
}

// encodeBody/decodeBody store a block's transaction list independent of
// its header, the way ColumnBlockBody is scoped in spec §4.3's column
// list (headers and bodies are separate columns so a light client can
// keep one without the other).
func encodeBody(txs []*model.Transaction) []byte {
	w := model.NewWriter()
	w.WriteU32(uint32(len(txs)))
	for _, tx := range txs {
		w.WriteBytes32(tx.Encode())
	}
	return w.Bytes()
}

func ReadBody(r Reader, hash model.Hash) ([]*model.Transaction, bool, error) {
	raw, _, found, err := r.GetLatest(versioned.ColumnBlockBody, hash[:])
	if err != nil || !found {
		return nil, found, err
	}
	rd := model.NewReader(raw)
	n := rd.ReadU32()
	txs := make([]*model.Transaction, 0, n)
	for i := uint32(0); i < n; i++ {
		txBytes := rd.ReadBytes32()
		if err := rd.Err(); err != nil {
			return nil, false, err
		}
		tx, err := model.DecodeTransaction(txBytes)
		if err != nil {
			return nil, false, err
		}
		txs = append(txs, tx)
	}
	if err := rd.Strict(); err != nil {
		return nil, false, err
	}
	return txs, true, nil
}

func WriteBody(w Writer, hash model.Hash, txs []*model.Transaction, topoheight uint64) error {
	return w.Put(versioned.ColumnBlockBody, hash[:], encodeBody(txs), topoheight)
}

func topoheightKey(t uint64) []byte {
	buf := make([]byte, 8)
	binary.BigEndian.PutUint64(buf, t)
	return buf
}

func ReadHashAtTopoheight(r Reader, t uint64) (model.Hash, bool, error) {
	raw, _, found, err := r.GetLatest(versioned.ColumnHashByTopoheight, topoheightKey(t))
	if err != nil || !found {
		return model.Hash{}, found, err
	}
	h, err := model.HashFromBytes(raw)
	return h, err == nil, err
}

func WriteHashAtTopoheight(w Writer, t uint64, hash model.Hash, topoheight uint64) error {
	return w.Put(versioned.ColumnHashByTopoheight, topoheightKey(t), hash.Bytes(), topoheight)
}

func ReadTopoheightByHash(r Reader, hash model.Hash) (uint64, bool, error) {
	raw, _, found, err := r.GetLatest(versioned.ColumnTopoheightByHash, hash[:])
	if err != nil || !found {
		return 0, found, err
	}
	return binary.BigEndian.Uint64(raw), true, nil
}

func WriteTopoheightByHash(w Writer, hash model.Hash, t uint64, topoheight uint64) error {
	buf := make([]byte, 8)
	binary.BigEndian.PutUint64(buf, t)
	return w.Put(versioned.ColumnTopoheightByHash, hash[:], buf, topoheight)
}

// blocksAtHeightKey/ReadBlocksAtHeight/WriteBlocksAtHeight track every
// block sharing a given blue_score-derived height, needed to recognize
// competing tips at the same height during tip-set maintenance.
func blocksAtHeightKey(height uint64) []byte {
	return topoheightKey(height)
}

func ReadBlocksAtHeight(r Reader, height uint64) ([]model.Hash, error) {
	raw, _, found, err := r.GetLatest(versioned.ColumnBlocksAtHeight, blocksAtHeightKey(height))
	if err != nil || !found {
		return nil, err
	}
	return decodeHashList(raw)
}

func WriteBlocksAtHeight(w Writer, height uint64, hashes []model.Hash, topoheight uint64) error {
	return w.Put(versioned.ColumnBlocksAtHeight, blocksAtHeightKey(height), encodeHashList(hashes), topoheight)
}

var blockExecutionOrderKey = []byte("order")

// ReadBlockExecutionOrder/AppendBlockExecutionOrder maintain the
// processing-order list spec §4.8 step 8 calls `block_execution_order`.
func ReadBlockExecutionOrder(r Reader) ([]model.Hash, error) {
	raw, _, found, err := r.GetLatest(versioned.ColumnBlockExecutionOrder, blockExecutionOrderKey)
	if err != nil || !found {
		return nil, err
	}
	return decodeHashList(raw)
}

func WriteBlockExecutionOrder(w Writer, order []model.Hash, topoheight uint64) error {
	return w.Put(versioned.ColumnBlockExecutionOrder, blockExecutionOrderKey, encodeHashList(order), topoheight)
}

var tipsKey = []byte("tips")

func ReadTips(r Reader) ([]model.Hash, error) {
	raw, _, found, err := r.GetLatest(versioned.ColumnTips, tipsKey)
	if err != nil || !found {
		return nil, err
	}
	return decodeHashList(raw)
}

func WriteTips(w Writer, tips []model.Hash, topoheight uint64) error {
	return w.Put(versioned.ColumnTips, tipsKey, encodeHashList(tips), topoheight)
}

func encodeHashList(hs []model.Hash) []byte {
	w := model.NewWriter()
	w.WriteU32(uint32(len(hs)))
	for _, h := range hs {
		w.WriteFixedHash(h)
	}
	return w.Bytes()
}

func decodeHashList(raw []byte) ([]model.Hash, error) {
	r := model.NewReader(raw)
	n := r.ReadU32()
	out := make([]model.Hash, n)
	for i := range out {
		out[i] = r.ReadFixedHash()
	}
	if err := r.Strict(); err != nil {
		return nil, err
	}
	return out, nil
}

var (
	topTopoheightKey = []byte("top_topoheight")
	topHeightKey     = []byte("top_height")
	blocksCountKey   = []byte("blocks_count")
	prunedKey        = []byte("pruned_topoheight")
)

func readPrunedU64(r Reader) (uint64, bool, error) {
	raw, _, found, err := r.GetLatest(versioned.ColumnPrunedTopoheight, prunedKey)
	if err != nil || !found {
		return 0, found, err
	}
	return binary.BigEndian.Uint64(raw), true, nil
}

func writePrunedU64(w Writer, v uint64, topoheight uint64) error {
	buf := make([]byte, 8)
	binary.BigEndian.PutUint64(buf, v)
	return w.Put(versioned.ColumnPrunedTopoheight, prunedKey, buf, topoheight)
}

func readMetaU64(r Reader, key []byte) (uint64, bool, error) {
	raw, _, found, err := r.GetLatest(versioned.ColumnChainMeta, key)
	if err != nil || !found {
		return 0, found, err
	}
	return binary.BigEndian.Uint64(raw), true, nil
}

func writeMetaU64(w Writer, key []byte, v uint64, topoheight uint64) error {
	buf := make([]byte, 8)
	binary.BigEndian.PutUint64(buf, v)
	return w.Put(versioned.ColumnChainMeta, key, buf, topoheight)
}

func ReadTopTopoheight(r Reader) (uint64, bool, error) { return readMetaU64(r, topTopoheightKey) }
func WriteTopTopoheight(w Writer, v uint64, t uint64) error {
	return writeMetaU64(w, topTopoheightKey, v, t)
}

func ReadTopHeight(r Reader) (uint64, bool, error) { return readMetaU64(r, topHeightKey) }
func WriteTopHeight(w Writer, v uint64, t uint64) error {
	return writeMetaU64(w, topHeightKey, v, t)
}

func ReadBlocksCount(r Reader) (uint64, bool, error) { return readMetaU64(r, blocksCountKey) }
func WriteBlocksCount(w Writer, v uint64, t uint64) error {
	return writeMetaU64(w, blocksCountKey, v, t)
}

func ReadPrunedTopoheight(r Reader) (uint64, bool, error) { return readPrunedU64(r) }
func WritePrunedTopoheight(w Writer, v uint64, t uint64) error {
	return writePrunedU64(w, v, t)
}

// encodeWriteLog/decodeWriteLog serialize the list of (column, key) pairs
// a block's snapshot wrote, used by C9 to undo a topoheight without
// needing to know its column layout in advance.
func encodeWriteLog(entries []versioned.TouchedKey) []byte {
	w := model.NewWriter()
	w.WriteU32(uint32(len(entries)))
	for _, e := range entries {
		w.WriteBytes32([]byte(e.Col))
		w.WriteBytes32(e.Key)
	}
	return w.Bytes()
}

func decodeWriteLog(raw []byte) ([]versioned.TouchedKey, error) {
	r := model.NewReader(raw)
	n := r.ReadU32()
	out := make([]versioned.TouchedKey, n)
	for i := range out {
		col := r.ReadBytes32()
		key := r.ReadBytes32()
		if err := r.Err(); err != nil {
			return nil, err
		}
		out[i] = versioned.TouchedKey{Col: versioned.Column(col), Key: key}
	}
	if err := r.Strict(); err != nil {
		return nil, err
	}
	return out, nil
}

func ReadWriteLog(r Reader, topoheight uint64) ([]versioned.TouchedKey, bool, error) {
	raw, _, found, err := r.GetLatest(versioned.ColumnWriteLog, topoheightKey(topoheight))
	if err != nil || !found {
		return nil, found, err
	}
	entries, err := decodeWriteLog(raw)
	return entries, true, err
}

func WriteWriteLog(w Writer, topoheight uint64, entries []versioned.TouchedKey, t uint64) error {
	return w.Put(versioned.ColumnWriteLog, topoheightKey(topoheight), encodeWriteLog(entries), t)
}

// DeleteWriteLog removes the write log recorded for topoheight, once C9
// has finished replaying it.
func DeleteWriteLog(store versioned.Store, topoheight uint64) error {
	return store.DeleteAt(versioned.ColumnWriteLog, topoheightKey(topoheight), topoheight)
}
