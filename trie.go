package radixdb

import (
	"github.com/pkg/errors"

	"github.com/tidalforge/radixdb/internal/node"
)

// Put inserts or replaces key's value, matching tkvdb_put / spec.md
// §4.4.2. A zero-length key or value is legal and round-trips.
func (tr *Tx) Put(key, value []byte) error {
	if err := tr.requireStarted(); err != nil {
		return err
	}
	if err := tr.ensureRoot(); err != nil {
		return err
	}
	newRoot, err := tr.putRec(node.Deref(tr.root), key, value)
	if err != nil {
		return err
	}
	tr.root = node.Deref(newRoot)
	return nil
}

// Get looks up key, returning ErrEmpty if nothing has been committed and
// this transaction has not built a tree yet, and ErrNotFound on a plain
// miss (including after every key has been deleted). A present key with
// a zero-length value yields a non-nil empty slice.
func (tr *Tx) Get(key []byte) ([]byte, error) {
	if err := tr.requireStarted(); err != nil {
		return nil, err
	}
	if tr.root == nil && !tr.db.hasData {
		return nil, errors.WithStack(ErrEmpty)
	}
	if err := tr.ensureRoot(); err != nil {
		return nil, err
	}
	n := node.Deref(tr.root)

	i := 0
	for {
		avail := key[i:]
		pm := commonPrefixLen(n.Prefix, avail)
		switch {
		case pm == len(n.Prefix) && pm == len(avail):
			if n.HasValue {
				if n.Value == nil {
					return []byte{}, nil
				}
				return n.Value, nil
			}
			return nil, errors.WithStack(ErrNotFound)
		case pm < len(n.Prefix):
			return nil, errors.WithStack(ErrNotFound)
		default:
			i += pm
			edge := avail[pm]
			child, err := tr.child(n, edge)
			if err != nil {
				return nil, err
			}
			if child == nil {
				return nil, errors.WithStack(ErrNotFound)
			}
			i++
			n = child
		}
	}
}

// Del removes key (delPrefix == false) or the whole subtree rooted at
// the node matching key (delPrefix == true), matching tkvdb_del /
// spec.md §4.4.3.
func (tr *Tx) Del(key []byte, delPrefix bool) error {
	if err := tr.requireStarted(); err != nil {
		return err
	}
	if err := tr.ensureRoot(); err != nil {
		return err
	}

	// path holds every ancestor from the root down to (not including)
	// target, deref'd at the moment it was visited; edges[k] is the byte
	// that led from path[k] to path[k+1] (or to target, for the last
	// entry). Needed so that a mutation anywhere below the root can mark
	// every ancestor back up to the root dirty, even when the ancestor's
	// own children table or value did not itself change.
	var path []*node.Node
	var edges []byte
	n := node.Deref(tr.root)
	i := 0
	partial := false
	for {
		avail := key[i:]
		pm := commonPrefixLen(n.Prefix, avail)
		if pm < len(avail) && pm < len(n.Prefix) {
			return errors.WithStack(ErrNotFound)
		}
		if pm == len(avail) {
			i += pm
			partial = pm < len(n.Prefix)
			break
		}
		i += pm
		edge := avail[pm]
		child, err := tr.child(n, edge)
		if err != nil {
			return err
		}
		if child == nil {
			return errors.WithStack(ErrNotFound)
		}
		path = append(path, n)
		edges = append(edges, edge)
		i++
		n = child
	}
	target := n

	markDirty := func() {
		for _, anc := range path {
			anc.Dirty = true
		}
		tr.root = node.Deref(tr.root)
	}

	var parent *node.Node
	var edgeFromParent byte
	if len(path) > 0 {
		parent = path[len(path)-1]
		edgeFromParent = edges[len(edges)-1]
	}

	if delPrefix {
		if parent == nil {
			fresh, err := tr.alloc.New()
			if err != nil {
				return errors.Wrap(ErrNoMem, err.Error())
			}
			tr.root = fresh
			return nil
		}
		parent.ClearChild(edgeFromParent)
		if _, _, err := tr.mergeIfNeeded(parent); err != nil {
			return err
		}
		markDirty()
		return nil
	}

	if partial || !target.HasValue {
		return errors.WithStack(ErrNotFound)
	}

	if target.NSub > 0 {
		oldLen := len(target.Value)
		target.HasValue = false
		target.Value = nil
		target.Dirty = true
		if err := tr.alloc.Charge(-oldLen); err != nil {
			return err
		}
		if _, _, err := tr.mergeIfNeeded(target); err != nil {
			return err
		}
		markDirty()
		return nil
	}

	if parent == nil {
		fresh, err := tr.alloc.New()
		if err != nil {
			return errors.Wrap(ErrNoMem, err.Error())
		}
		tr.root = fresh
		return nil
	}
	parent.ClearChild(edgeFromParent)
	if _, _, err := tr.mergeIfNeeded(parent); err != nil {
		return err
	}
	markDirty()
	return nil
}

// putRec descends from n looking for key's insertion point, returning
// the node that should now occupy n's slot (n itself, for mutations
// that only touch the children table; a fresh node reached via
// node.Replace(n, ...), for the structural cases in spec.md §4.4.2).
func (tr *Tx) putRec(n *node.Node, key, value []byte) (*node.Node, error) {
	pm := commonPrefixLen(n.Prefix, key)

	switch {
	case pm == len(n.Prefix) && pm == len(key):
		return tr.putExact(n, value)

	case pm < len(n.Prefix):
		if pm == len(key) {
			return tr.splitKeyInsidePrefix(n, pm, value)
		}
		return tr.splitMismatch(n, pm, key, value)

	default:
		remaining := key[pm:]
		edge := remaining[0]
		child, err := tr.child(n, edge)
		if err != nil {
			return nil, err
		}
		if child == nil {
			leaf, err := tr.newLeaf(remaining[1:], value)
			if err != nil {
				return nil, err
			}
			n.SetChildMem(edge, leaf)
			return n, nil
		}
		newChild, err := tr.putRec(child, remaining[1:], value)
		if err != nil {
			return nil, err
		}
		n.SetChildMem(edge, newChild)
		return n, nil
	}
}

// putExact handles the exact-key-match outcomes: an in-place overwrite
// when the value's byte length is unchanged (and non-zero), or a fresh
// node carrying the new value otherwise.
func (tr *Tx) putExact(n *node.Node, value []byte) (*node.Node, error) {
	if n.HasValue && len(value) > 0 && len(value) == len(n.Value) {
		n.Value = append([]byte(nil), value...)
		n.Dirty = true
		return n, nil
	}

	fresh, err := tr.alloc.New()
	if err != nil {
		return nil, errors.Wrap(ErrNoMem, err.Error())
	}
	if err := tr.alloc.Charge(len(n.Prefix) + len(value)); err != nil {
		return nil, errors.Wrap(ErrNoMem, err.Error())
	}
	fresh.Prefix = append([]byte(nil), n.Prefix...)
	fresh.Children = n.Children
	fresh.NSub = n.NSub
	fresh.HasValue = true
	fresh.Value = append([]byte(nil), value...)
	node.Replace(n, fresh)
	return fresh, nil
}

// splitKeyInsidePrefix handles "key ends inside prefix": the put key is
// a strict prefix of n's own prefix. A new head node takes the matched
// portion and the put value; a tail node keeps the remainder of n's
// old prefix together with n's old value and children.
func (tr *Tx) splitKeyInsidePrefix(n *node.Node, matched int, value []byte) (*node.Node, error) {
	tailEdge := n.Prefix[matched]
	tailPrefix := n.Prefix[matched+1:]

	tail, err := tr.alloc.New()
	if err != nil {
		return nil, errors.Wrap(ErrNoMem, err.Error())
	}
	if err := tr.alloc.Charge(len(tailPrefix) + len(n.Value)); err != nil {
		return nil, errors.Wrap(ErrNoMem, err.Error())
	}
	tail.Prefix = append([]byte(nil), tailPrefix...)
	tail.HasValue = n.HasValue
	tail.Value = append([]byte(nil), n.Value...)
	tail.Children = n.Children
	tail.NSub = n.NSub

	head, err := tr.alloc.New()
	if err != nil {
		return nil, errors.Wrap(ErrNoMem, err.Error())
	}
	if err := tr.alloc.Charge(matched + len(value)); err != nil {
		return nil, errors.Wrap(ErrNoMem, err.Error())
	}
	head.Prefix = append([]byte(nil), n.Prefix[:matched]...)
	head.HasValue = true
	head.Value = append([]byte(nil), value...)
	head.SetChildMem(tailEdge, tail)

	node.Replace(n, head)
	return head, nil
}

// splitMismatch handles the three-way split: n's prefix and the
// remaining key diverge at byte `matched`. A forking node with no
// value carries two children, one for each side of the divergence.
func (tr *Tx) splitMismatch(n *node.Node, matched int, key, value []byte) (*node.Node, error) {
	oldEdge := n.Prefix[matched]
	oldTailPrefix := n.Prefix[matched+1:]
	newEdge := key[matched]
	newTailKey := key[matched+1:]

	oldTail, err := tr.alloc.New()
	if err != nil {
		return nil, errors.Wrap(ErrNoMem, err.Error())
	}
	if err := tr.alloc.Charge(len(oldTailPrefix) + len(n.Value)); err != nil {
		return nil, errors.Wrap(ErrNoMem, err.Error())
	}
	oldTail.Prefix = append([]byte(nil), oldTailPrefix...)
	oldTail.HasValue = n.HasValue
	oldTail.Value = append([]byte(nil), n.Value...)
	oldTail.Children = n.Children
	oldTail.NSub = n.NSub

	newLeaf, err := tr.newLeaf(newTailKey, value)
	if err != nil {
		return nil, err
	}

	fork, err := tr.alloc.New()
	if err != nil {
		return nil, errors.Wrap(ErrNoMem, err.Error())
	}
	if err := tr.alloc.Charge(matched); err != nil {
		return nil, errors.Wrap(ErrNoMem, err.Error())
	}
	fork.Prefix = append([]byte(nil), n.Prefix[:matched]...)
	fork.SetChildMem(oldEdge, oldTail)
	fork.SetChildMem(newEdge, newLeaf)

	node.Replace(n, fork)
	return fork, nil
}

func (tr *Tx) newLeaf(prefix, value []byte) (*node.Node, error) {
	leaf, err := tr.alloc.New()
	if err != nil {
		return nil, errors.Wrap(ErrNoMem, err.Error())
	}
	if err := tr.alloc.Charge(len(prefix) + len(value)); err != nil {
		return nil, errors.Wrap(ErrNoMem, err.Error())
	}
	leaf.Prefix = append([]byte(nil), prefix...)
	leaf.HasValue = true
	leaf.Value = append([]byte(nil), value...)
	return leaf, nil
}

// mergeIfNeeded restores invariant 3.1 when n has been left with no
// value and exactly one child: n is merged into that child, producing
// a single node whose prefix is n's prefix + edge + child's prefix.
// This is the merge the reference implementation documents but never
// reliably executes (spec.md §4.4.3, §9); here it always runs.
func (tr *Tx) mergeIfNeeded(n *node.Node) (*node.Node, bool, error) {
	if n.HasValue || n.NSub != 1 {
		return n, false, nil
	}
	var edge byte
	for e := 0; e < 256; e++ {
		if !n.Children[e].Empty() {
			edge = byte(e)
			break
		}
	}
	child, err := tr.child(n, edge)
	if err != nil {
		return n, false, err
	}
	merged := node.Clone(child)
	merged.Prefix = concatPrefix(n.Prefix, edge, child.Prefix)
	node.Replace(child, merged)
	node.Replace(n, merged)
	return merged, true, nil
}

// commonPrefixLen returns how many leading bytes a and b share.
func commonPrefixLen(a, b []byte) int {
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	i := 0
	for i < n && a[i] == b[i] {
		i++
	}
	return i
}

func concatPrefix(a []byte, edge byte, b []byte) []byte {
	out := make([]byte, 0, len(a)+1+len(b))
	out = append(out, a...)
	out = append(out, edge)
	out = append(out, b...)
	return out
}
