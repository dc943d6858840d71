package node

import "github.com/pkg/errors"

// ErrNoMem is returned by an Allocator once its configured byte budget
// is exhausted, surfaced by the engine as radixdb.ErrNoMem.
var ErrNoMem = errors.New("node: allocator budget exceeded")

// baseNodeCost is the flat per-node overhead charged against an
// allocator's budget in addition to the variable-length bytes
// (prefix/value/meta) charged via Charge. It approximates the fixed
// portion of a Node (256-entry children array dominates), matching the
// teacher's choice to budget transaction memory rather than leave it
// unbounded (common across the trie_buf_limit / write_buf_limit knobs
// in tkvdb_params).
const baseNodeCost = 256*16 + 96

// Allocator owns the lifetime of Node values for one transaction.
// Dynamic and bump-arena implementations are offered as a configuration
// choice (spec.md §4.3, §9), matching tkvdb_tr's dynalloc flag.
type Allocator interface {
	// New returns a fresh, zeroed Node, or ErrNoMem if the budget is
	// exhausted.
	New() (*Node, error)
	// Charge accounts extra bytes (e.g. a growing prefix/value) against
	// the budget, returning ErrNoMem without mutating state if it would
	// be exceeded.
	Charge(extra int) error
	// Release gives back a node that is provably unreachable. Nothing in
	// the engine calls it; nodes are reclaimed by Reset. A no-op on a bump
	// arena: individual frees cannot be expressed once bytes have been
	// carved out of one contiguous buffer.
	Release(*Node)
	// Reset reclaims everything allocated since the last Reset/creation.
	Reset()
	// Used reports current byte usage against the configured limit.
	Used() uint64
}

// dynamicAllocator delegates node lifetime to the Go allocator/GC: New
// allocates normally, Release decrements the tracked usage (a true
// individual free, unlike bump mode), and Reset simply drops the
// counter since the transaction's root reference is about to be
// dropped too, letting GC reclaim the rest.
type dynamicAllocator struct {
	limit uint64
	used  uint64
}

func NewDynamicAllocator(limit uint64) Allocator {
	return &dynamicAllocator{limit: limit}
}

func (a *dynamicAllocator) New() (*Node, error) {
	if err := a.Charge(baseNodeCost); err != nil {
		return nil, err
	}
	return &Node{Dirty: true}, nil
}

func (a *dynamicAllocator) Charge(extra int) error {
	if extra < 0 {
		if uint64(-extra) > a.used {
			a.used = 0
		} else {
			a.used -= uint64(-extra)
		}
		return nil
	}
	if a.limit > 0 && a.used+uint64(extra) > a.limit {
		return ErrNoMem
	}
	a.used += uint64(extra)
	return nil
}

func (a *dynamicAllocator) Release(*Node) {
	if a.used >= baseNodeCost {
		a.used -= baseNodeCost
	} else {
		a.used = 0
	}
}

func (a *dynamicAllocator) Reset() { a.used = 0 }
func (a *dynamicAllocator) Used() uint64 { return a.used }

// bumpAllocator carves Node values out of one pre-allocated pool, sized
// conservatively from limit. Allocation is monotonic and O(1); Reset
// is O(1) too (just rewinds the cursor), at the cost of never being
// able to reclaim a single node mid-transaction — matching spec.md
// §9's note that bump-arena frees must be treated as no-ops.
//
// limit == 0 means unbounded (db.go, spec.md §9's dynalloc knob), which
// a single pre-sized backing array can't express — there is no size to
// size it from. That case falls back to carving nodes individually off
// the heap into overflow instead; still monotonic, still only ever
// freed all at once via Reset, just without the one-array pool.
type bumpAllocator struct {
	limit     uint64
	pool      []Node
	overflow  []*Node
	cursor    int
	usedExtra uint64
}

func NewBumpAllocator(limit uint64) Allocator {
	a := &bumpAllocator{limit: limit}
	if limit > 0 {
		capNodes := int(limit / baseNodeCost)
		if capNodes < 1 {
			capNodes = 1
		}
		a.pool = make([]Node, capNodes)
	}
	return a
}

func (a *bumpAllocator) New() (*Node, error) {
	if a.limit == 0 {
		n := &Node{Dirty: true}
		a.overflow = append(a.overflow, n)
		return n, nil
	}
	// A node's base cost is accounted through cursor, not usedExtra.
	if a.cursor >= len(a.pool) || uint64(a.cursor+1)*baseNodeCost+a.usedExtra > a.limit {
		return nil, ErrNoMem
	}
	n := &a.pool[a.cursor]
	*n = Node{Dirty: true}
	a.cursor++
	return n, nil
}

func (a *bumpAllocator) Charge(extra int) error {
	if extra < 0 {
		// Bump arenas never give bytes back mid-transaction.
		return nil
	}
	if a.limit > 0 && uint64(a.cursor)*baseNodeCost+a.usedExtra+uint64(extra) > a.limit {
		return ErrNoMem
	}
	a.usedExtra += uint64(extra)
	return nil
}

// Release is a documented no-op: a bump arena cannot reclaim individual
// nodes, only the whole pool at once via Reset.
func (a *bumpAllocator) Release(*Node) {}

func (a *bumpAllocator) Reset() {
	a.cursor = 0
	a.overflow = nil
	a.usedExtra = 0
}

func (a *bumpAllocator) Used() uint64 {
	nodes := uint64(a.cursor) + uint64(len(a.overflow))
	return nodes*baseNodeCost + a.usedExtra
}
