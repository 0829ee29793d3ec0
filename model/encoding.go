// Canonical encoding primitives (spec §4.1). Every on-disk and on-wire
// byte in the system is produced through these helpers: fixed-width
// little-endian integers, length-prefixed byte strings, u8-discriminant
// tagged unions, and length-prefixed sequences. Strict decoders consume
// every byte; a trailing byte is always a decode error.
package model

import (
	"bytes"
	"encoding/binary"
	"io"

	"github.com/tos-network/tos-core/errors"
)

// Writer accumulates a canonical encoding. It never fails — allocation
// failure aside — which keeps every type's Encode method error-free and
// lets callers defer the only fallible step (decoding) to the reader.
type Writer struct {
	buf bytes.Buffer
}

func NewWriter() *Writer { return &Writer{} }

func (w *Writer) Bytes() []byte { return w.buf.Bytes() }

func (w *Writer) WriteU8(v uint8)   { w.buf.WriteByte(v) }
func (w *Writer) WriteU16(v uint16) { _ = binary.Write(&w.buf, binary.LittleEndian, v) }
func (w *Writer) WriteU32(v uint32) { _ = binary.Write(&w.buf, binary.LittleEndian, v) }
func (w *Writer) WriteU64(v uint64) { _ = binary.Write(&w.buf, binary.LittleEndian, v) }
func (w *Writer) WriteI64(v int64)  { _ = binary.Write(&w.buf, binary.LittleEndian, v) }
func (w *Writer) WriteBool(v bool) {
	if v {
		w.WriteU8(1)
	} else {
		w.WriteU8(0)
	}
}

func (w *Writer) WriteRaw(b []byte) { w.buf.Write(b) }

func (w *Writer) WriteFixedHash(h Hash) { w.buf.Write(h[:]) }

// WriteBytes8/16/32 write a length-prefixed byte string, the length
// stored as the width the field is specified to support (spec §4.1).
func (w *Writer) WriteBytes8(b []byte) {
	w.WriteU8(uint8(len(b)))
	w.buf.Write(b)
}

func (w *Writer) WriteBytes16(b []byte) {
	w.WriteU16(uint16(len(b)))
	w.buf.Write(b)
}

func (w *Writer) WriteBytes32(b []byte) {
	w.WriteU32(uint32(len(b)))
	w.buf.Write(b)
}

// Reader consumes a canonical encoding. Strict() must be called after the
// last field is read to reject trailing bytes.
type Reader struct {
	r   *bytes.Reader
	err error
}

func NewReader(b []byte) *Reader { return &Reader{r: bytes.NewReader(b)} }

func (r *Reader) fail(code errors.ERR, msg string, params ...interface{}) {
	if r.err == nil {
		r.err = errors.New(code, msg, params...)
	}
}

func (r *Reader) Err() error { return r.err }

// Strict reports a decode error if any byte remains unconsumed (spec
// §4.1: "any trailing byte is a decode error").
func (r *Reader) Strict() error {
	if r.err != nil {
		return r.err
	}
	if r.r.Len() != 0 {
		return errors.New(errors.ERR_INVALID_FORMAT, "trailing %d byte(s) after decode", r.r.Len())
	}
	return nil
}

func (r *Reader) ReadU8() uint8 {
	if r.err != nil {
		return 0
	}
	b, err := r.r.ReadByte()
	if err != nil {
		r.fail(errors.ERR_INVALID_SIZE, "unexpected EOF reading u8")
		return 0
	}
	return b
}

func (r *Reader) readFixed(n int) []byte {
	if r.err != nil {
		return make([]byte, n)
	}
	buf := make([]byte, n)
	if _, err := io.ReadFull(r.r, buf); err != nil {
		r.fail(errors.ERR_INVALID_SIZE, "unexpected EOF reading fixed bytes")
	}
	return buf
}

func (r *Reader) ReadU16() uint16 {
	return binary.LittleEndian.Uint16(r.readFixed(2))
}

func (r *Reader) ReadU32() uint32 {
	return binary.LittleEndian.Uint32(r.readFixed(4))
}

func (r *Reader) ReadU64() uint64 {
	return binary.LittleEndian.Uint64(r.readFixed(8))
}

func (r *Reader) ReadI64() int64 {
	return int64(r.ReadU64())
}

func (r *Reader) ReadBool() bool { return r.ReadU8() != 0 }

func (r *Reader) ReadFixedHash() Hash {
	var h Hash
	copy(h[:], r.readFixed(HashSize))
	return h
}

const maxByteStringLen = 16 * 1024 * 1024

func (r *Reader) readLenPrefixed(length int) []byte {
	if r.err != nil {
		return nil
	}
	if length < 0 || length > maxByteStringLen {
		r.fail(errors.ERR_INVALID_SIZE, "byte string length %d exceeds limit", length)
		return nil
	}
	return r.readFixed(length)
}

func (r *Reader) ReadBytes8() []byte  { return r.readLenPrefixed(int(r.ReadU8())) }
func (r *Reader) ReadBytes16() []byte { return r.readLenPrefixed(int(r.ReadU16())) }
func (r *Reader) ReadBytes32() []byte { return r.readLenPrefixed(int(r.ReadU32())) }

// SortedMapEntries encodes a (key,value) map as a length-prefixed sequence
// ordered by key bytes ascending (spec §4.1: "Maps are never serialised
// directly").
func SortedMapEntries(keys [][]byte, writeEntry func(w *Writer, key []byte)) func(w *Writer) {
	order := make([]int, len(keys))
	for i := range order {
		order[i] = i
	}
	for i := 1; i < len(order); i++ {
		for j := i; j > 0 && bytes.Compare(keys[order[j]], keys[order[j-1]]) < 0; j-- {
			order[j], order[j-1] = order[j-1], order[j]
		}
	}
	return func(w *Writer) {
		w.WriteU32(uint32(len(keys)))
		for _, idx := range order {
			writeEntry(w, keys[idx])
		}
	}
}
