package radixdb

import (
	"github.com/pkg/errors"

	"github.com/tidalforge/radixdb/internal/node"
)

// Mode selects how Seek resolves a key that is not present exactly.
type Mode int

const (
	SeekEQ Mode = iota
	SeekGE
	SeekLE
)

// cursorDepthWarn is the frame-stack depth past which Cursor logs a
// soft warning. The stack itself is a plain growable slice with no
// hard cap; in a radix trie this depth tracks distinct byte values
// along a key, not key length, so 128 is already a very deep or
// pathological tree.
const cursorDepthWarn = 128

// frame is one level of the cursor's descent path.
type frame struct {
	n            *node.Node
	edge         int // byte used from the parent to reach n; -1 for the root
	keyLenBefore int // len(keyBuf) before this frame's edge+prefix were appended
	nextEdge     int // forward: next child edge to try ascending; backward: descending
	valueEmitted bool
}

// Cursor walks a transaction's tree in key order, matching
// tkvdb_cursor. It lazily loads on-disk children exactly like Get/Put/
// Del, through the owning Tx's node cache.
type Cursor struct {
	tr     *Tx
	stack  []frame
	keyBuf []byte
	valid  bool
}

// NewCursor opens a cursor over tr's current view of the tree. The
// transaction must already be started.
func (tr *Tx) NewCursor() (*Cursor, error) {
	if err := tr.requireStarted(); err != nil {
		return nil, err
	}
	if err := tr.ensureRoot(); err != nil {
		return nil, err
	}
	return &Cursor{tr: tr}, nil
}

func (c *Cursor) reset() {
	c.stack = c.stack[:0]
	c.keyBuf = c.keyBuf[:0]
	c.valid = false
}

func (c *Cursor) pushRoot(startEdge int) {
	n := node.Deref(c.tr.root)
	c.keyBuf = append(c.keyBuf[:0], n.Prefix...)
	c.stack = append(c.stack[:0], frame{n: n, edge: -1, keyLenBefore: 0, nextEdge: startEdge})
}

func (c *Cursor) pushChild(edge byte, child *node.Node, startEdge int) {
	keyLenBefore := len(c.keyBuf)
	c.keyBuf = append(c.keyBuf, edge)
	c.keyBuf = append(c.keyBuf, child.Prefix...)
	c.stack = append(c.stack, frame{n: child, edge: int(edge), keyLenBefore: keyLenBefore, nextEdge: startEdge})
	if len(c.stack) == cursorDepthWarn+1 {
		c.tr.db.log.Warn("cursor descent exceeds typical depth", "depth", len(c.stack))
	}
}

func (c *Cursor) pop() frame {
	top := c.stack[len(c.stack)-1]
	c.stack = c.stack[:len(c.stack)-1]
	c.keyBuf = c.keyBuf[:top.keyLenBefore]
	return top
}

// advance moves forward from the current stack, emitting a frame's own
// value (if not yet emitted) before descending into its children in
// ascending edge order. Used by First and by Seek/Next once positioned
// at the top of the subtree to search.
func (c *Cursor) advance() (bool, error) {
	for len(c.stack) > 0 {
		top := &c.stack[len(c.stack)-1]
		if !top.valueEmitted {
			top.valueEmitted = true
			if top.n.HasValue {
				c.valid = true
				return true, nil
			}
		}
		descended := false
		for e := top.nextEdge; e < 256; e++ {
			if top.n.Children[e].Empty() {
				continue
			}
			child, err := c.tr.child(top.n, byte(e))
			if err != nil {
				return false, err
			}
			top.nextEdge = e + 1
			c.pushChild(byte(e), child, 0)
			descended = true
			break
		}
		if descended {
			continue
		}
		c.pop()
	}
	c.valid = false
	return false, nil
}

// retreat is advance's mirror: it descends into children in descending
// edge order first, emitting a frame's own value only once every child
// has been exhausted, matching the fact that every key under a node is
// greater than the node's own key.
func (c *Cursor) retreat() (bool, error) {
	for len(c.stack) > 0 {
		top := &c.stack[len(c.stack)-1]
		descended := false
		for e := top.nextEdge; e >= 0; e-- {
			if top.n.Children[e].Empty() {
				continue
			}
			child, err := c.tr.child(top.n, byte(e))
			if err != nil {
				return false, err
			}
			top.nextEdge = e - 1
			c.pushChild(byte(e), child, 255)
			descended = true
			break
		}
		if descended {
			continue
		}
		if !top.valueEmitted && top.n.HasValue {
			top.valueEmitted = true
			c.valid = true
			return true, nil
		}
		c.pop()
	}
	c.valid = false
	return false, nil
}

// successorFromAncestors backtracks from the current top of stack,
// which has been fully disqualified, looking for the nearest ancestor
// with an untaken child edge greater than the one just explored.
func (c *Cursor) successorFromAncestors() (bool, error) {
	for len(c.stack) > 0 {
		child := c.pop()
		if len(c.stack) == 0 {
			return false, nil
		}
		top := &c.stack[len(c.stack)-1]
		found := false
		for e := child.edge + 1; e < 256; e++ {
			if top.n.Children[e].Empty() {
				continue
			}
			ch, err := c.tr.child(top.n, byte(e))
			if err != nil {
				return false, err
			}
			top.nextEdge = e + 1
			c.pushChild(byte(e), ch, 0)
			found = true
			break
		}
		if found {
			return c.advance()
		}
	}
	return false, nil
}

// predecessorFromAncestors is successorFromAncestors's mirror: find the
// nearest ancestor with an untaken child edge smaller than the one just
// explored, or, failing that, the ancestor's own value.
func (c *Cursor) predecessorFromAncestors() (bool, error) {
	for len(c.stack) > 0 {
		child := c.pop()
		if len(c.stack) == 0 {
			return false, nil
		}
		top := &c.stack[len(c.stack)-1]
		found := false
		for e := child.edge - 1; e >= 0; e-- {
			if top.n.Children[e].Empty() {
				continue
			}
			ch, err := c.tr.child(top.n, byte(e))
			if err != nil {
				return false, err
			}
			top.nextEdge = e - 1
			c.pushChild(byte(e), ch, 255)
			found = true
			break
		}
		if found {
			return c.retreat()
		}
		if !top.valueEmitted && top.n.HasValue {
			top.valueEmitted = true
			return true, nil
		}
	}
	return false, nil
}

// seek is the general descent shared by Seek, Next and Prev. strict
// excludes an exact structural match at target from the result, which
// is how Next/Prev reuse GE/LE logic to mean "strictly greater/less".
func (c *Cursor) seek(target []byte, mode Mode, strict bool) (bool, error) {
	root := node.Deref(c.tr.root)
	if len(root.Prefix) == 0 && !root.HasValue && root.NSub == 0 {
		return false, nil
	}
	c.pushRoot(0)
	return c.seekRec(target, 0, mode, strict)
}

func (c *Cursor) seekRec(target []byte, i int, mode Mode, strict bool) (bool, error) {
	top := &c.stack[len(c.stack)-1]
	avail := target[i:]
	pm := commonPrefixLen(top.n.Prefix, avail)

	switch {
	case pm == len(top.n.Prefix) && pm == len(avail):
		if top.n.HasValue && !strict {
			top.valueEmitted = true
			c.valid = true
			return true, nil
		}
		switch mode {
		case SeekEQ:
			return false, nil
		case SeekGE:
			top.valueEmitted = true
			top.nextEdge = 0
			return c.advance()
		case SeekLE:
			return c.predecessorFromAncestors()
		}

	case pm < len(top.n.Prefix):
		nodeGreater := pm == len(avail) || avail[pm] < top.n.Prefix[pm]
		switch mode {
		case SeekEQ:
			return false, nil
		case SeekGE:
			if nodeGreater {
				top.valueEmitted = false
				top.nextEdge = 0
				return c.advance()
			}
			return c.successorFromAncestors()
		case SeekLE:
			if nodeGreater {
				return c.predecessorFromAncestors()
			}
			top.valueEmitted = true
			top.nextEdge = 255
			return c.retreat()
		}

	default:
		i2 := i + pm
		edge := avail[pm]
		if mode == SeekGE {
			// target strictly extends past top's own key along this
			// edge, so top's own value can never be the GE answer; if
			// the search below backtracks into top, skip straight past
			// it instead of re-emitting it (seekRec advance/retreat
			// machinery otherwise only disqualifies frames it pushed
			// itself for sibling search, not ones visited on the way
			// down while matching target byte-for-byte).
			top.valueEmitted = true
		}
		child, err := c.tr.child(top.n, edge)
		if err != nil {
			return false, err
		}
		if child != nil {
			top.nextEdge = int(edge) + 1
			c.pushChild(edge, child, 0)
			return c.seekRec(target, i2+1, mode, strict)
		}
		switch mode {
		case SeekEQ:
			return false, nil
		case SeekGE:
			for e := int(edge) + 1; e < 256; e++ {
				if top.n.Children[e].Empty() {
					continue
				}
				ch, err := c.tr.child(top.n, byte(e))
				if err != nil {
					return false, err
				}
				top.nextEdge = e + 1
				c.pushChild(byte(e), ch, 0)
				return c.advance()
			}
			return c.successorFromAncestors()
		case SeekLE:
			for e := int(edge) - 1; e >= 0; e-- {
				if top.n.Children[e].Empty() {
					continue
				}
				ch, err := c.tr.child(top.n, byte(e))
				if err != nil {
					return false, err
				}
				top.nextEdge = e - 1
				c.pushChild(byte(e), ch, 255)
				return c.retreat()
			}
			if top.n.HasValue {
				top.valueEmitted = true
				return true, nil
			}
			return c.predecessorFromAncestors()
		}
	}
	return false, nil
}

// First positions the cursor at the smallest key.
func (c *Cursor) First() error {
	c.reset()
	root := node.Deref(c.tr.root)
	if len(root.Prefix) == 0 && !root.HasValue && root.NSub == 0 {
		return errors.WithStack(ErrEmpty)
	}
	c.pushRoot(0)
	ok, err := c.advance()
	if err != nil {
		return err
	}
	if !ok {
		return errors.WithStack(ErrNotFound)
	}
	return nil
}

// Last positions the cursor at the largest key.
func (c *Cursor) Last() error {
	c.reset()
	root := node.Deref(c.tr.root)
	if len(root.Prefix) == 0 && !root.HasValue && root.NSub == 0 {
		return errors.WithStack(ErrEmpty)
	}
	c.pushRoot(255)
	ok, err := c.retreat()
	if err != nil {
		return err
	}
	if !ok {
		return errors.WithStack(ErrNotFound)
	}
	return nil
}

// Seek positions the cursor at key (mode SeekEQ), or at the nearest
// qualifying key per mode SeekLE/SeekGE.
func (c *Cursor) Seek(key []byte, mode Mode) error {
	c.reset()
	ok, err := c.seek(key, mode, false)
	if err != nil {
		return err
	}
	if !ok {
		c.valid = false
		return errors.WithStack(ErrNotFound)
	}
	c.valid = true
	return nil
}

// Next advances to the next key in ascending order.
func (c *Cursor) Next() error {
	if !c.valid {
		return c.First()
	}
	cur := append([]byte(nil), c.keyBuf...)
	c.reset()
	ok, err := c.seek(cur, SeekGE, true)
	if err != nil {
		return err
	}
	if !ok {
		c.valid = false
		return errors.WithStack(ErrNotFound)
	}
	c.valid = true
	return nil
}

// Prev retreats to the previous key in ascending order.
func (c *Cursor) Prev() error {
	if !c.valid {
		return c.Last()
	}
	cur := append([]byte(nil), c.keyBuf...)
	c.reset()
	ok, err := c.seek(cur, SeekLE, true)
	if err != nil {
		return err
	}
	if !ok {
		c.valid = false
		return errors.WithStack(ErrNotFound)
	}
	c.valid = true
	return nil
}

// Key returns the current key, or nil if the cursor is not positioned.
func (c *Cursor) Key() []byte {
	if !c.valid {
		return nil
	}
	return append([]byte(nil), c.keyBuf...)
}

// Val returns the current value, or nil if the cursor is not positioned.
func (c *Cursor) Val() []byte {
	if !c.valid || len(c.stack) == 0 {
		return nil
	}
	return append([]byte(nil), c.stack[len(c.stack)-1].n.Value...)
}
