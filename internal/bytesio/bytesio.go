// Package bytesio provides the little-endian, no-padding primitive
// encoders and decoders shared by the node codec and the transaction
// footer/header. All on-disk integers are fixed width; there is no
// varint encoding anywhere in the format.
package bytesio

import (
	"encoding/binary"

	"github.com/pkg/errors"
)

// ErrShortBuffer is returned when a decode call is given fewer bytes
// than the field it is asked to read requires.
var ErrShortBuffer = errors.New("bytesio: buffer too short")

func PutUint16(dst []byte, v uint16) {
	binary.LittleEndian.PutUint16(dst, v)
}

func Uint16(src []byte) (uint16, error) {
	if len(src) < 2 {
		return 0, ErrShortBuffer
	}
	return binary.LittleEndian.Uint16(src), nil
}

func PutUint32(dst []byte, v uint32) {
	binary.LittleEndian.PutUint32(dst, v)
}

func Uint32(src []byte) (uint32, error) {
	if len(src) < 4 {
		return 0, ErrShortBuffer
	}
	return binary.LittleEndian.Uint32(src), nil
}

func PutUint64(dst []byte, v uint64) {
	binary.LittleEndian.PutUint64(dst, v)
}

func Uint64(src []byte) (uint64, error) {
	if len(src) < 8 {
		return 0, ErrShortBuffer
	}
	return binary.LittleEndian.Uint64(src), nil
}

// Writer accumulates an encoded block in a growable buffer, tracking the
// write offset. It plays the role of the teacher's byteCounter plus
// bytes.Buffer combined, specialized for the fixed on-disk layouts that
// never need io.Writer polymorphism.
type Writer struct {
	buf []byte
}

func NewWriter(capHint int) *Writer {
	return &Writer{buf: make([]byte, 0, capHint)}
}

func (w *Writer) Bytes() []byte { return w.buf }
func (w *Writer) Len() int      { return len(w.buf) }

func (w *Writer) U8(v uint8) {
	w.buf = append(w.buf, v)
}

func (w *Writer) U16(v uint16) {
	var tmp [2]byte
	PutUint16(tmp[:], v)
	w.buf = append(w.buf, tmp[:]...)
}

func (w *Writer) U32(v uint32) {
	var tmp [4]byte
	PutUint32(tmp[:], v)
	w.buf = append(w.buf, tmp[:]...)
}

func (w *Writer) U64(v uint64) {
	var tmp [8]byte
	PutUint64(tmp[:], v)
	w.buf = append(w.buf, tmp[:]...)
}

func (w *Writer) Raw(p []byte) {
	w.buf = append(w.buf, p...)
}

// Reader walks a fixed byte slice sequentially, matching the order
// fields were written in. Unlike encoding/binary.Read it never uses
// reflection, keeping the hot decode path allocation-free.
type Reader struct {
	buf []byte
	off int
}

func NewReader(buf []byte) *Reader {
	return &Reader{buf: buf}
}

func (r *Reader) Remaining() int { return len(r.buf) - r.off }

func (r *Reader) need(n int) error {
	if r.Remaining() < n {
		return ErrShortBuffer
	}
	return nil
}

func (r *Reader) U8() (uint8, error) {
	if err := r.need(1); err != nil {
		return 0, err
	}
	v := r.buf[r.off]
	r.off++
	return v, nil
}

func (r *Reader) U16() (uint16, error) {
	if err := r.need(2); err != nil {
		return 0, err
	}
	v := binary.LittleEndian.Uint16(r.buf[r.off:])
	r.off += 2
	return v, nil
}

func (r *Reader) U32() (uint32, error) {
	if err := r.need(4); err != nil {
		return 0, err
	}
	v := binary.LittleEndian.Uint32(r.buf[r.off:])
	r.off += 4
	return v, nil
}

func (r *Reader) U64() (uint64, error) {
	if err := r.need(8); err != nil {
		return 0, err
	}
	v := binary.LittleEndian.Uint64(r.buf[r.off:])
	r.off += 8
	return v, nil
}

// Raw returns the next n bytes without copying. Callers that keep the
// slice beyond the lifetime of the backing buffer must copy it first.
func (r *Reader) Raw(n int) ([]byte, error) {
	if err := r.need(n); err != nil {
		return nil, err
	}
	v := r.buf[r.off : r.off+n]
	r.off += n
	return v, nil
}
