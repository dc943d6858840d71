package radixdb

import "golang.org/x/xerrors"

// Sentinel errors, one per kind named in spec.md §7. Call sites wrap
// these with github.com/pkg/errors to attach context while keeping
// errors.Is(err, ErrIOError) (etc.) working for callers, matching the
// teacher's own split between xerrors.New leaf sentinels
// (trie/errors.go) and pkg/errors-style wrapping at I/O boundaries.
var (
	ErrIOError    = xerrors.New("radixdb: i/o error")
	ErrCorrupted  = xerrors.New("radixdb: corrupted on-disk state")
	ErrEmpty      = xerrors.New("radixdb: database or transaction is empty")
	ErrNotFound   = xerrors.New("radixdb: key not found")
	ErrNoMem      = xerrors.New("radixdb: allocator budget exceeded")
	ErrNotStarted = xerrors.New("radixdb: transaction not started")
	ErrModified   = xerrors.New("radixdb: database modified since begin")
	ErrLocked     = xerrors.New("radixdb: locked") // reserved, never returned
)
