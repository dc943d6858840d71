// Package store implements the on-disk block grammar described by the
// node codec: block-typed records (payload node, footer), the
// transaction header, and the node encoding itself (dense/sparse child
// table, prefix/value/meta sections). It is a pure codec — it knows
// nothing about trie structure or file offsets beyond what is encoded
// in a block, matching the teacher's split between NodeData.Write
// (serialization) and the store that calls it.
package store

import (
	"github.com/pkg/errors"

	"github.com/tidalforge/radixdb/internal/bytesio"
)

// BlockType is the first byte of every block in the file.
type BlockType uint8

const (
	BlockPayload       BlockType = 0
	BlockFooter        BlockType = 1
	BlockRemovedFooter BlockType = 2
)

// Node type flags, carried in the on-disk node's type byte.
const (
	HasValue uint8 = 1 << 0
	HasMeta  uint8 = 1 << 1
)

// DenseThreshold is the child count above which the children table is
// encoded densely (256 x u64) instead of sparsely (n x (u8 + u64)).
// 256 - 256/8 = 224: close to the point where the sparse encoding's
// 9 bytes per present child (9n) passes the dense table's flat 2048
// bytes, which happens from n = 228 on; for 225..227 children the dense
// table is chosen although it is up to 23 bytes larger.
const DenseThreshold = 256 - 256/8

// Signature identifies a radixdb file in the footer.
var Signature = [8]byte{'t', 'k', 'v', 'd', 'b', '0', '0', '3'}

const FooterSize = 1 + 8 + 8 + 8 + 8 + 8 + 8 // type + signature + 5*u64
const HeaderSize = 1 + 8                     // type + footer_off

// ErrIncomplete is returned by DecodeNode when buf holds fewer bytes
// than the node's encoded size demands. Need carries the total byte
// count the caller should re-read from the same offset.
type ErrIncomplete struct{ Need uint32 }

func (e *ErrIncomplete) Error() string {
	return "store: incomplete node buffer"
}

var (
	ErrBadBlockType = errors.New("store: unexpected block type")
	ErrBadSignature = errors.New("store: bad file signature")
	ErrBadSize      = errors.New("store: inconsistent node size")
)

// EncodedNode is the disk-level view of one trie node: a prefix, an
// optional value, an optional meta blob (always absent in this
// implementation, but round-tripped for forward compatibility) and a
// byte -> absolute-offset child table.
type EncodedNode struct {
	HasValue bool
	HasMeta  bool
	Prefix   []byte
	Value    []byte
	Meta     []byte
	// Children maps an edge byte to the absolute file offset of the
	// child node. Only present edges appear here.
	Children map[byte]uint64
}

// EncodeNode serializes n following the packed layout from spec.md §4.2:
//
//	u32 size
//	u8  type
//	u16 nsubnodes
//	u32 prefix_size
//	[u32 val_size]
//	[u32 meta_size]
//	children_table
//	prefix bytes
//	value bytes
//	meta bytes
func EncodeNode(n *EncodedNode) []byte {
	nsub := len(n.Children)

	typ := uint8(0)
	if n.HasValue {
		typ |= HasValue
	}
	if n.HasMeta {
		typ |= HasMeta
	}

	w := bytesio.NewWriter(64 + len(n.Prefix) + len(n.Value) + len(n.Meta) + nsub*9)
	w.U32(0) // size placeholder, patched below
	w.U8(typ)
	w.U16(uint16(nsub))
	w.U32(uint32(len(n.Prefix)))
	if n.HasValue {
		w.U32(uint32(len(n.Value)))
	}
	if n.HasMeta {
		w.U32(uint32(len(n.Meta)))
	}
	writeChildrenTable(w, n.Children, nsub)
	w.Raw(n.Prefix)
	if n.HasValue {
		w.Raw(n.Value)
	}
	if n.HasMeta {
		w.Raw(n.Meta)
	}

	buf := w.Bytes()
	bytesio.PutUint32(buf[0:4], uint32(len(buf)))
	return buf
}

func writeChildrenTable(w *bytesio.Writer, children map[byte]uint64, nsub int) {
	if nsub > DenseThreshold {
		var table [256]uint64
		for edge, off := range children {
			table[edge] = off
		}
		for _, off := range table {
			w.U64(off)
		}
		return
	}
	edges := make([]byte, 0, nsub)
	for edge := range children {
		edges = append(edges, edge)
	}
	for _, edge := range edges {
		w.U8(edge)
	}
	for _, edge := range edges {
		w.U64(children[edge])
	}
}

// DecodeNode parses one node out of buf, which must start exactly at
// the node's first byte but may be shorter than the node's full
// encoded size (e.g. a fixed-size read-ahead chunk). If buf is too
// short, DecodeNode returns *ErrIncomplete naming the byte count a
// caller should re-read (from the same offset) before retrying.
func DecodeNode(buf []byte) (*EncodedNode, uint32, error) {
	if len(buf) < 4 {
		return nil, 4, &ErrIncomplete{Need: 4}
	}
	size, _ := bytesio.Uint32(buf)
	if uint32(len(buf)) < size {
		return nil, size, &ErrIncomplete{Need: size}
	}

	r := bytesio.NewReader(buf[:size])
	if _, err := r.U32(); err != nil { // size, already consumed above
		return nil, 0, errors.Wrap(ErrBadSize, err.Error())
	}
	typ, err := r.U8()
	if err != nil {
		return nil, 0, err
	}
	nsub16, err := r.U16()
	if err != nil {
		return nil, 0, err
	}
	nsub := int(nsub16)
	prefixSize, err := r.U32()
	if err != nil {
		return nil, 0, err
	}

	hasValue := typ&HasValue != 0
	hasMeta := typ&HasMeta != 0

	var valSize, metaSize uint32
	if hasValue {
		if valSize, err = r.U32(); err != nil {
			return nil, 0, err
		}
	}
	if hasMeta {
		if metaSize, err = r.U32(); err != nil {
			return nil, 0, err
		}
	}

	children, err := readChildrenTable(r, nsub)
	if err != nil {
		return nil, 0, err
	}

	prefixBytes, err := r.Raw(int(prefixSize))
	if err != nil {
		return nil, 0, err
	}
	prefix := append([]byte(nil), prefixBytes...)

	var value, meta []byte
	if hasValue {
		vb, err := r.Raw(int(valSize))
		if err != nil {
			return nil, 0, err
		}
		value = append([]byte(nil), vb...)
	}
	if hasMeta {
		mb, err := r.Raw(int(metaSize))
		if err != nil {
			return nil, 0, err
		}
		meta = append([]byte(nil), mb...)
	}

	return &EncodedNode{
		HasValue: hasValue,
		HasMeta:  hasMeta,
		Prefix:   prefix,
		Value:    value,
		Meta:     meta,
		Children: children,
	}, size, nil
}

func readChildrenTable(r *bytesio.Reader, nsub int) (map[byte]uint64, error) {
	children := make(map[byte]uint64, nsub)
	if nsub > DenseThreshold {
		for edge := 0; edge < 256; edge++ {
			off, err := r.U64()
			if err != nil {
				return nil, err
			}
			if off != 0 {
				children[byte(edge)] = off
			}
		}
		return children, nil
	}
	edges := make([]byte, nsub)
	for i := 0; i < nsub; i++ {
		e, err := r.U8()
		if err != nil {
			return nil, err
		}
		edges[i] = e
	}
	for i := 0; i < nsub; i++ {
		off, err := r.U64()
		if err != nil {
			return nil, err
		}
		children[edges[i]] = off
	}
	return children, nil
}

// Header is the fixed record at the start of every transaction region.
type Header struct {
	FooterOff uint64
}

func EncodeHeader(h Header) []byte {
	w := bytesio.NewWriter(HeaderSize)
	w.U8(uint8(BlockPayload))
	w.U64(h.FooterOff)
	return w.Bytes()
}

func DecodeHeader(buf []byte) (Header, error) {
	r := bytesio.NewReader(buf)
	typ, err := r.U8()
	if err != nil {
		return Header{}, err
	}
	if BlockType(typ) != BlockPayload {
		return Header{}, ErrBadBlockType
	}
	off, err := r.U64()
	if err != nil {
		return Header{}, err
	}
	return Header{FooterOff: off}, nil
}

// Footer is the 49-byte record at EOF naming the live root and the
// reclaimable gap.
type Footer struct {
	RootOff         uint64
	TransactionSize uint64
	TransactionID   uint64
	GapBegin        uint64
	GapEnd          uint64
}

func EncodeFooter(f Footer) []byte {
	w := bytesio.NewWriter(FooterSize)
	w.U8(uint8(BlockFooter))
	w.Raw(Signature[:])
	w.U64(f.RootOff)
	w.U64(f.TransactionSize)
	w.U64(f.TransactionID)
	w.U64(f.GapBegin)
	w.U64(f.GapEnd)
	return w.Bytes()
}

func DecodeFooter(buf []byte) (Footer, error) {
	if len(buf) < FooterSize {
		return Footer{}, errors.Wrap(ErrBadSize, "short footer")
	}
	r := bytesio.NewReader(buf)
	typ, err := r.U8()
	if err != nil {
		return Footer{}, err
	}
	if BlockType(typ) != BlockFooter {
		return Footer{}, ErrBadBlockType
	}
	sig, err := r.Raw(8)
	if err != nil {
		return Footer{}, err
	}
	for i := range Signature {
		if sig[i] != Signature[i] {
			return Footer{}, ErrBadSignature
		}
	}
	var f Footer
	if f.RootOff, err = r.U64(); err != nil {
		return Footer{}, err
	}
	if f.TransactionSize, err = r.U64(); err != nil {
		return Footer{}, err
	}
	if f.TransactionID, err = r.U64(); err != nil {
		return Footer{}, err
	}
	if f.GapBegin, err = r.U64(); err != nil {
		return Footer{}, err
	}
	if f.GapEnd, err = r.U64(); err != nil {
		return Footer{}, err
	}
	return f, nil
}
