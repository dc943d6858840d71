package radixdb

import (
	"github.com/pkg/errors"

	"github.com/tidalforge/radixdb/internal/node"
	"github.com/tidalforge/radixdb/internal/store"
)

// Commit serializes every node touched by this transaction as one new
// transaction region (header, node payload, footer), matching
// tkvdb_commit / spec.md §4.4.4.
//
// Placement is chosen from the footer's gap bookkeeping: if the gap left
// behind by a prior Vacuum is large enough to hold the header+payload,
// they are written in-place at gap_begin, reusing that reclaimed space
// instead of growing the file; otherwise they are appended at EOF. The
// footer itself always lands at the file's true end either way (spec.md
// §4.4.4 step 6), so the tail-read recovery protocol in spec.md §6 keeps
// finding it regardless of which mode was used for the payload.
func (tr *Tx) Commit() error {
	if err := tr.requireStarted(); err != nil {
		return err
	}

	tr.db.mu.Lock()
	defer tr.db.mu.Unlock()

	if err := tr.db.reloadFooter(); err != nil {
		return err
	}
	if tr.db.size != tr.snapSize || tr.db.footer != tr.snapFooter {
		return errors.WithStack(ErrModified)
	}

	root := node.Deref(tr.root)
	payloadSize, err := tr.measure(root)
	if err != nil {
		return err
	}
	if tr.db.params.WriteBufLimit > 0 && uint64(payloadSize) > tr.db.params.WriteBufLimit {
		return errors.Wrap(ErrNoMem, "commit payload exceeds write buffer limit")
	}

	txSize := uint64(store.HeaderSize) + uint64(payloadSize)
	gapBegin, gapEnd := tr.db.footer.GapBegin, tr.db.footer.GapEnd
	inPlace := gapEnd > gapBegin && gapEnd-gapBegin >= txSize

	base := uint64(tr.db.size)
	if inPlace {
		base = gapBegin
	}
	// The footer is always appended at the file's current end, whether
	// or not the payload itself went into the gap.
	footerOff := uint64(tr.db.size)
	if !inPlace {
		footerOff = base + txSize
	}

	buf := make([]byte, 0, txSize)
	buf = append(buf, store.EncodeHeader(store.Header{FooterOff: footerOff})...)

	payloadBase := base + store.HeaderSize
	rootOff, err := tr.place(root, payloadBase, &buf)
	if err != nil {
		return err
	}

	newGapBegin, newGapEnd := gapBegin, gapEnd
	if inPlace {
		// The gap shrinks from the front by however much of it this
		// commit just consumed.
		newGapBegin = gapBegin + txSize
	}

	footer := store.Footer{
		RootOff:         rootOff,
		TransactionSize: txSize,
		TransactionID:   tr.db.footer.TransactionID + 1,
		GapBegin:        newGapBegin,
		GapEnd:          newGapEnd,
	}
	footerBuf := store.EncodeFooter(footer)

	if inPlace {
		if _, err := tr.db.file.WriteAt(buf, int64(base)); err != nil {
			return errors.Wrap(ErrIOError, err.Error())
		}
		if _, err := tr.db.file.WriteAt(footerBuf, int64(footerOff)); err != nil {
			return errors.Wrap(ErrIOError, err.Error())
		}
		tr.db.size = int64(footerOff) + int64(len(footerBuf))
	} else {
		buf = append(buf, footerBuf...)
		if _, err := tr.db.file.WriteAt(buf, int64(base)); err != nil {
			return errors.Wrap(ErrIOError, err.Error())
		}
		tr.db.size = int64(base) + int64(len(buf))
	}

	tr.db.footer = footer
	tr.db.hasData = true

	tr.root = nil
	tr.alloc.Reset()
	tr.started = false
	return nil
}

// measure computes the total encoded byte size of n and every dirty
// descendant reachable from it, without resolving any offsets, so that
// placement (and the write-buffer-limit check) can happen before a
// single byte is actually positioned.
func (tr *Tx) measure(n *node.Node) (uint32, error) {
	n = node.Deref(n)
	if !n.Dirty && n.DiskOff != 0 {
		return 0, nil
	}

	var sum uint32
	children := make(map[byte]uint64, n.NSub)
	for edge := 0; edge < 256; edge++ {
		slot := n.Children[edge]
		if slot.Empty() {
			continue
		}
		if slot.Mem != nil {
			child := node.Deref(slot.Mem)
			if child.Dirty || child.DiskOff == 0 {
				s, err := tr.measure(child)
				if err != nil {
					return 0, err
				}
				sum += s
				children[byte(edge)] = 0
			} else {
				children[byte(edge)] = child.DiskOff
			}
		} else {
			children[byte(edge)] = slot.DiskOff
		}
	}

	enc := &store.EncodedNode{
		HasValue: n.HasValue,
		HasMeta:  len(n.Meta) > 0,
		Prefix:   n.Prefix,
		Value:    n.Value,
		Meta:     n.Meta,
		Children: children,
	}
	sum += uint32(len(store.EncodeNode(enc)))
	return sum, nil
}

// place encodes n (and every dirty descendant) for real in depth-first
// pre-order, appending each to buf at an absolute offset computed from
// base, and records the result back onto the live node
// (DiskOff/DiskSize/Dirty) so a later commit in the same process sees
// it as clean. The transaction's root is therefore always the first
// node after the header.
func (tr *Tx) place(n *node.Node, base uint64, buf *[]byte) (uint64, error) {
	n = node.Deref(n)
	if !n.Dirty && n.DiskOff != 0 {
		return n.DiskOff, nil
	}

	children := make(map[byte]uint64, n.NSub)
	for edge := 0; edge < 256; edge++ {
		if !n.Children[edge].Empty() {
			children[byte(edge)] = 0
		}
	}
	enc := &store.EncodedNode{
		HasValue: n.HasValue,
		HasMeta:  len(n.Meta) > 0,
		Prefix:   n.Prefix,
		Value:    n.Value,
		Meta:     n.Meta,
		Children: children,
	}
	// buf already holds the header plus every payload byte written so
	// far; base is the absolute offset of the payload region, so this
	// node lands at base plus however much payload precedes it. Its slot
	// is reserved before its children are placed (an encoded node's size
	// does not depend on its child offsets' values) and filled in after.
	start := len(*buf)
	off := base + uint64(start-store.HeaderSize)
	*buf = append(*buf, make([]byte, len(store.EncodeNode(enc)))...)

	for edge := 0; edge < 256; edge++ {
		slot := n.Children[edge]
		if slot.Empty() {
			continue
		}
		if slot.Mem != nil {
			child := node.Deref(slot.Mem)
			childOff, err := tr.place(child, base, buf)
			if err != nil {
				return 0, err
			}
			children[byte(edge)] = childOff
			n.Children[edge] = node.ChildSlot{Mem: child, DiskOff: childOff}
		} else {
			children[byte(edge)] = slot.DiskOff
		}
	}

	encoded := store.EncodeNode(enc)
	copy((*buf)[start:], encoded)

	n.DiskOff = off
	n.DiskSize = uint32(len(encoded))
	n.Dirty = false
	return off, nil
}
