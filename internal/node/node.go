// Package node holds the in-memory trie node representation: the
// mutable, copy-on-write structure the engine walks, splits and merges
// before a transaction's dirty subtree is serialized by the store
// codec. It is adapted from the teacher's bufferedNode
// (trie/node.go, trie/nodestore.go): where the teacher tracks a
// "newTerminal" and "modifiedChildren" set against a CommitmentModel,
// this package tracks a ReplacedBy forwarding pointer and a plain
// byte-offset child table instead, since there is no commitment scheme
// to update incrementally.
package node

// ChildSlot is one of a node's 256 possible outgoing edges. Per
// invariant 3.2, a slot may be absent, carry only a disk offset, carry
// only an in-memory node, or carry both — in which case Mem is
// authoritative and DiskOff is stale.
type ChildSlot struct {
	Mem     *Node
	DiskOff uint64
}

func (c ChildSlot) Empty() bool {
	return c.Mem == nil && c.DiskOff == 0
}

// Node is one trie node, live in memory. A node that has never been
// touched by a mutation and was loaded straight from disk has
// ReplacedBy == nil and ondisk fields populated; a node produced by a
// split/merge/overwrite during the current transaction is a fresh
// allocation linked in via the parent's ChildSlot.Mem (or, for the
// root, Tx.root).
type Node struct {
	HasValue bool
	Prefix   []byte
	Value    []byte
	Meta     []byte

	Children [256]ChildSlot
	NSub     int

	// ReplacedBy forms the copy-on-write forwarding chain: once set, a
	// node is dead and every reader must walk ReplacedBy to its
	// terminus before consulting Prefix/Value/Children. Chains are
	// collapsed (not walked one hop at a time) during commit's
	// pre-order assignment pass.
	ReplacedBy *Node

	// DiskOff/DiskSize are populated once this node's encoded form has
	// been placed during a commit. A node with DiskOff == 0 has never
	// been committed: offset 0 always holds a transaction header, never
	// a node.
	DiskOff  uint64
	DiskSize uint32

	// Dirty marks a node that must be re-encoded and re-placed at the
	// next commit: freshly allocated nodes, and any on-disk node whose
	// children table was mutated in place (its old bytes on disk are
	// still valid for their original transaction, but no longer
	// describe this node's current children). Cleared once the node
	// has been written out.
	Dirty bool
}

// Deref follows ReplacedBy to its terminus. Every read of a Node
// reachable from a ChildSlot or a Tx.root must go through Deref first.
func Deref(n *Node) *Node {
	for n != nil && n.ReplacedBy != nil {
		n = n.ReplacedBy
	}
	return n
}

// Replace points n at its successor, collapsing n itself out of the
// live tree. Callers only ever replace a node reached via its parent's
// ChildSlot or Tx.root, never a node with incoming references from
// more than one parent (invariant 3.5 in spec.md — mutation always
// allocates fresh nodes along the path being modified, never touches a
// shared ancestor in place).
func Replace(old, new *Node) {
	old.ReplacedBy = new
}

// SetChildMem installs an in-memory child at edge, adjusting NSub.
func (n *Node) SetChildMem(edge byte, child *Node) {
	slot := &n.Children[edge]
	wasEmpty := slot.Empty()
	slot.Mem = child
	isEmpty := slot.Empty()
	switch {
	case wasEmpty && !isEmpty:
		n.NSub++
	case !wasEmpty && isEmpty:
		n.NSub--
	}
	n.Dirty = true
}

// ClearChild removes edge entirely (both in-memory and disk halves),
// used by del_prefix and by plain deletion of a childless value node.
func (n *Node) ClearChild(edge byte) {
	if !n.Children[edge].Empty() {
		n.NSub--
	}
	n.Children[edge] = ChildSlot{}
	n.Dirty = true
}

// CountChildren recomputes the number of present children from
// scratch. The engine does not call it; it keeps NSub current through
// SetChildMem and ClearChild.
func (n *Node) CountChildren() int {
	c := 0
	for i := range n.Children {
		if !n.Children[i].Empty() {
			c++
		}
	}
	return c
}

// Clone returns a shallow-ish copy of n suitable as the replacement
// node in a copy-on-write step: Prefix/Value/Meta are copied (since the
// caller is about to mutate them independently of the original) but
// the Children table is copied by value, sharing ChildSlot.Mem
// pointers with the original (those subtrees are untouched by this
// mutation).
func Clone(n *Node) *Node {
	c := &Node{
		HasValue: n.HasValue,
		NSub:     n.NSub,
		Dirty:    true,
	}
	if n.Prefix != nil {
		c.Prefix = append([]byte(nil), n.Prefix...)
	}
	if n.Value != nil {
		c.Value = append([]byte(nil), n.Value...)
	}
	if n.Meta != nil {
		c.Meta = append([]byte(nil), n.Meta...)
	}
	c.Children = n.Children
	return c
}
