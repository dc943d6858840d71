package radixdb

import "os"

// Params configures Open, mirroring tkvdb_params from the reference
// implementation. NewTx does not read it: a transaction's arena limit
// and allocator kind are NewTx's own arguments.
type Params struct {
	// Flags are passed to os.OpenFile for the backing file.
	Flags int
	// Mode is the file mode used when Flags includes os.O_CREATE.
	Mode os.FileMode

	// WriteBufLimit bounds a commit's node payload in bytes; Commit
	// fails with ErrNoMem above it. Zero means unbounded.
	WriteBufLimit uint64
	// WriteBufDynAlloc is carried but not consulted: Commit always
	// allocates a buffer of exactly the transaction's size.
	WriteBufDynAlloc bool

	// TrBufLimit is carried but not consulted; NewTx's limit argument
	// bounds a transaction's node arena instead.
	TrBufLimit uint64
	// DynAlloc is carried but not consulted; NewTx's dynalloc argument
	// selects the allocator instead.
	DynAlloc bool
}

// DefaultParams matches tkvdb_params_init: read/write, create if
// missing, unbounded dynamic buffers.
func DefaultParams() Params {
	return Params{
		Flags:            os.O_RDWR | os.O_CREATE,
		Mode:             0o600,
		WriteBufLimit:    0,
		WriteBufDynAlloc: true,
		TrBufLimit:       0,
		DynAlloc:         true,
	}
}
