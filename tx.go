package radixdb

import (
	"github.com/pkg/errors"

	"github.com/tidalforge/radixdb/internal/node"
	"github.com/tidalforge/radixdb/internal/store"
)

// Tx is a single read/write transaction bound to one DB, matching
// struct tkvdb_tr. At most one transaction is ever "started" against
// a given in-memory Tx value at a time; begin -> mutate -> commit |
// rollback -> begin again (spec.md §3.5).
type Tx struct {
	db       *DB
	limit    uint64
	dynalloc bool

	alloc node.Allocator
	root  *node.Node

	started bool

	// snapshot of db state taken at Begin, compared against the live
	// footer at Commit to detect concurrent writers (spec.md §4.4.4
	// step 1).
	snapFooter store.Footer
	snapSize   int64
}

// Begin starts (or restarts) tr against the database's last committed
// state. The root node itself is not eagerly loaded; get/put/del/cursor
// lazily fetch it on first use via ensureRoot.
func (tr *Tx) Begin() error {
	if tr.dynalloc {
		tr.alloc = node.NewDynamicAllocator(tr.limit)
	} else {
		tr.alloc = node.NewBumpAllocator(tr.limit)
	}
	tr.root = nil

	tr.db.mu.Lock()
	defer tr.db.mu.Unlock()
	if err := tr.db.reloadFooter(); err != nil {
		return err
	}
	tr.snapFooter = tr.db.footer
	tr.snapSize = tr.db.size
	tr.started = true
	return nil
}

// Rollback frees the transaction's arena and clears its root, matching
// tkvdb_rollback. The next Begin restarts from the last committed
// footer.
func (tr *Tx) Rollback() {
	if tr.alloc != nil {
		tr.alloc.Reset()
	}
	tr.root = nil
	tr.started = false
}

func (tr *Tx) requireStarted() error {
	if !tr.started {
		return errors.WithStack(ErrNotStarted)
	}
	return nil
}

// ensureRoot loads the root node into memory, bootstrapping an empty
// node if the file has never been written to (spec.md §4.4.2: "put
// bootstraps an empty tree").
func (tr *Tx) ensureRoot() error {
	if tr.root != nil {
		return nil
	}
	if !tr.db.hasData {
		n, err := tr.alloc.New()
		if err != nil {
			return errors.Wrap(ErrNoMem, err.Error())
		}
		tr.root = n
		return nil
	}
	n, err := tr.loadNode(tr.snapFooter.RootOff)
	if err != nil {
		return err
	}
	tr.root = n
	return nil
}

// loadNode reads the node block at off from the backing file and
// decodes it into a fresh in-memory node.Node. It is the single point
// where disk bytes become live trie structure, used by ensureRoot, by
// get/put/del descending into an as-yet-unloaded child, and by the
// cursor's lazy descent.
func (tr *Tx) loadNode(off uint64) (*node.Node, error) {
	const readAhead = 4096
	buf := make([]byte, readAhead)
	n, err := tr.db.file.ReadAt(buf, int64(off))
	if err != nil {
		return nil, errors.Wrapf(ErrIOError, "read node at %#x: %v", off, err)
	}
	buf = buf[:n]

	enc, size, err := store.DecodeNode(buf)
	if err != nil {
		var incomplete *store.ErrIncomplete
		if errors.As(err, &incomplete) {
			full := make([]byte, incomplete.Need)
			if _, err := tr.db.file.ReadAt(full, int64(off)); err != nil {
				return nil, errors.Wrapf(ErrIOError, "read node tail at %#x: %v", off, err)
			}
			enc, size, err = store.DecodeNode(full)
			if err != nil {
				return nil, errors.Wrapf(ErrCorrupted, "decode node at %#x: %v", off, err)
			}
		} else {
			return nil, errors.Wrapf(ErrCorrupted, "decode node at %#x: %v", off, err)
		}
	}

	mn, err := tr.alloc.New()
	if err != nil {
		return nil, errors.Wrap(ErrNoMem, err.Error())
	}
	if err := tr.alloc.Charge(len(enc.Prefix) + len(enc.Value) + len(enc.Meta)); err != nil {
		return nil, errors.Wrap(ErrNoMem, err.Error())
	}
	mn.HasValue = enc.HasValue
	mn.Prefix = enc.Prefix
	mn.Value = enc.Value
	mn.Meta = enc.Meta
	mn.DiskOff = off
	mn.DiskSize = size
	for edge, childOff := range enc.Children {
		mn.Children[edge] = node.ChildSlot{DiskOff: childOff}
	}
	mn.NSub = len(enc.Children)
	mn.Dirty = false
	return mn, nil
}

// child returns the live (in-memory, ReplacedBy-resolved) node reachable
// from parent's slot at edge, lazily loading it from disk and caching
// the result in parent.Children[edge].Mem if it had only a disk offset.
// Returns nil if the slot is empty.
func (tr *Tx) child(parent *node.Node, edge byte) (*node.Node, error) {
	slot := &parent.Children[edge]
	if slot.Mem != nil {
		return node.Deref(slot.Mem), nil
	}
	if slot.DiskOff == 0 {
		return nil, nil
	}
	n, err := tr.loadNode(slot.DiskOff)
	if err != nil {
		return nil, err
	}
	slot.Mem = n
	return n, nil
}
