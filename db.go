package radixdb

import (
	"sync"

	"github.com/inconshreveable/log15"
	"github.com/pkg/errors"

	"github.com/tidalforge/radixdb/internal/diskio"
	"github.com/tidalforge/radixdb/internal/store"
)

// DB owns the backing file and the last read footer, matching struct
// tkvdb in the reference implementation; each Commit builds its own
// write buffer, and the writeBuf field is not used. It is not
// safe to Commit concurrently from two transactions without external
// synchronization beyond the optimistic MODIFIED check (spec.md §5);
// the internal mutex here only serializes the footer read/compare/write
// sequence itself so two goroutines racing to commit get a clean
// MODIFIED rather than a torn footer.
type DB struct {
	file   diskio.File
	params Params
	log    log15.Logger

	mu         sync.Mutex
	footer     store.Footer
	size       int64
	hasData    bool
	writeBuf   []byte
}

// Info is the dbinfo() projection of the current footer.
type Info struct {
	RootOff       uint64 `yaml:"root_off"`
	GapBegin      uint64 `yaml:"gap_begin"`
	GapEnd        uint64 `yaml:"gap_end"`
	TransactionID uint64 `yaml:"transaction_id"`
}

// Open opens or creates the database file at path and reads its
// trailing footer, per the open/recovery protocol in spec.md §6.
func Open(path string, params Params) (*DB, error) {
	f, err := diskio.OpenFile(path, params.Flags, params.Mode)
	if err != nil {
		return nil, errors.Wrap(ErrIOError, err.Error())
	}
	db := &DB{
		file:   f,
		params: params,
		log:    log15.New("module", "radixdb"),
	}
	if err := db.reloadFooter(); err != nil {
		_ = f.Close()
		return nil, err
	}
	return db, nil
}

// reloadFooter re-reads the file's tail and refreshes db.footer/size.
// An empty file is valid and represents an empty database (spec.md §6
// step 5).
func (db *DB) reloadFooter() error {
	size, err := db.file.Size()
	if err != nil {
		return errors.Wrap(ErrIOError, err.Error())
	}
	db.size = size
	if size == 0 {
		db.hasData = false
		db.footer = store.Footer{}
		return nil
	}
	if size < store.FooterSize {
		return errors.Wrap(ErrCorrupted, "file smaller than one footer")
	}
	buf := make([]byte, store.FooterSize)
	if _, err := db.file.ReadAt(buf, size-store.FooterSize); err != nil {
		return errors.Wrap(ErrIOError, err.Error())
	}
	footer, err := store.DecodeFooter(buf)
	if err != nil {
		return errors.Wrap(ErrCorrupted, err.Error())
	}
	footerPos := size - store.FooterSize
	if int64(footer.TransactionSize) > footerPos {
		return errors.Wrap(ErrCorrupted, "transaction_size exceeds footer offset")
	}
	db.footer = footer
	db.hasData = true
	return nil
}

// Close releases the backing file. It does not implicitly sync; call
// Sync first if durability across process death is required.
func (db *DB) Close() error {
	return db.file.Close()
}

// Sync is a direct fsync passthrough, matching tkvdb_sync (declared but
// left unimplemented in the reference; spec.md §9 item 4).
func (db *DB) Sync() error {
	return db.file.Sync()
}

// Info reports the live root offset and the reclaimable gap.
func (db *DB) Info() (Info, error) {
	db.mu.Lock()
	defer db.mu.Unlock()
	if err := db.reloadFooter(); err != nil {
		return Info{}, err
	}
	return Info{
		RootOff:       db.footer.RootOff,
		GapBegin:      db.footer.GapBegin,
		GapEnd:        db.footer.GapEnd,
		TransactionID: db.footer.TransactionID,
	}, nil
}

// NewTx creates a transaction bound to db, matching tkvdb_tr_create_m.
// limit == 0 means unbounded; dynalloc selects the allocator strategy
// (spec.md §4.3).
func (db *DB) NewTx(limit uint64, dynalloc bool) *Tx {
	return &Tx{
		db:       db,
		limit:    limit,
		dynalloc: dynalloc,
	}
}
