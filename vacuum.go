package radixdb

import (
	"time"

	"github.com/pkg/errors"
	"golang.org/x/sync/errgroup"

	"github.com/tidalforge/radixdb/internal/node"
	"github.com/tidalforge/radixdb/internal/store"
)

// VacuumReport summarizes one Vacuum pass, logged at Info level and
// also handed back to the caller for a dbinfo-style report.
type VacuumReport struct {
	KeysMigrated   int           `yaml:"keys_migrated"`
	BytesReclaimed uint64        `yaml:"bytes_reclaimed"`
	Elapsed        time.Duration `yaml:"elapsed"`
}

type kvPair struct {
	key   []byte
	value []byte
}

// Vacuum reclaims tr_vac, the oldest historical transaction still on
// disk (the one immediately after the current gap), matching
// tkvdb_vacuum / spec.md §4.6. One call advances the gap by exactly
// tr_vac's own size plus its trailing footer; it does not rewrite the
// whole live tree. A caller
// that wants to collapse all reclaimable history calls Vacuum
// repeatedly until a pass reports BytesReclaimed == 0.
//
// Algorithm:
//  1. tr_vac's root is loaded directly from gap_end + header_size.
//  2. Its tree is walked once, recording every value-bearing key for
//     which at least one node on the root-to-leaf path physically lies
//     in [gap_end, gap_end+tr_vac.transaction_size) — i.e. a node tr_vac
//     itself wrote, as opposed to an older subtree it merely still
//     points to unchanged.
//  3. Each such key is re-read from the live head (tr_curr) — it may
//     have been overwritten or deleted since tr_vac — and, if still
//     present, re-`Put` into a fresh result transaction so it no longer
//     depends on tr_vac's region.
//  4. The result transaction is committed, then the footer's gap_end is
//     advanced to cover tr_vac's now fully dead region.
//
// The read-side walk of tr_curr's current values (step 3) and the
// write-side copy-out run concurrently, one errgroup goroutine feeding a
// channel of live key/value pairs while the calling goroutine drains it
// into Put calls on the result transaction: the store is single-writer,
// so this overlaps disk read latency during the walk with node
// allocation on the write side rather than parallelizing any mutation.
//
// Unlike the reference, which computes gap_begin/gap_end but never
// writes them back into the new footer, this always patches the just
// committed footer's gap fields in place once tr_vac's span is known.
// The patch only ever touches GapEnd: GapBegin, and the footer's
// RootOff/TransactionSize/TransactionID, already correct from Commit,
// are left untouched.
func (db *DB) Vacuum(limit uint64, dynalloc bool) (VacuumReport, error) {
	start := time.Now()

	db.mu.Lock()
	if err := db.reloadFooter(); err != nil {
		db.mu.Unlock()
		return VacuumReport{}, err
	}
	if !db.hasData || db.size == 0 {
		db.mu.Unlock()
		return VacuumReport{Elapsed: time.Since(start)}, nil
	}
	regionStart := db.footer.GapEnd
	if int64(regionStart) >= db.size-store.FooterSize {
		// Nothing committed beyond the gap to reclaim.
		db.mu.Unlock()
		return VacuumReport{Elapsed: time.Since(start)}, nil
	}
	vacFooter, err := db.readFooterAt(regionStart)
	if err != nil {
		db.mu.Unlock()
		return VacuumReport{}, err
	}
	// regionEnd bounds tr_vac's own nodes (spec.md §4.6 step 2); deadEnd
	// additionally covers tr_vac's own trailing footer, which is not a
	// node but becomes just as dead and must be skipped so the next
	// Vacuum call's regionStart lands on the following transaction's
	// header rather than on these now-stale footer bytes.
	regionEnd := regionStart + vacFooter.TransactionSize
	deadEnd := regionEnd + store.FooterSize
	db.mu.Unlock()

	// Load tr_vac's root directly (spec.md §4.6 step 1), through a
	// throwaway read-only transaction so its lazy child loads share the
	// ordinary loadNode/allocator path.
	vacTx := db.NewTx(limit, dynalloc)
	if err := vacTx.Begin(); err != nil {
		return VacuumReport{}, err
	}
	defer vacTx.Rollback()
	vacRoot, err := vacTx.loadNode(regionStart + store.HeaderSize)
	if err != nil {
		return VacuumReport{}, err
	}

	candidates, err := collectRegionKeys(vacTx, vacRoot, nil, regionStart, regionEnd, false)
	if err != nil {
		return VacuumReport{}, err
	}

	rtr := db.NewTx(limit, dynalloc)
	if err := rtr.Begin(); err != nil {
		return VacuumReport{}, err
	}
	defer rtr.Rollback()

	wtr := db.NewTx(limit, dynalloc)
	if err := wtr.Begin(); err != nil {
		return VacuumReport{}, err
	}
	if err := wtr.ensureRoot(); err != nil {
		wtr.Rollback()
		return VacuumReport{}, err
	}

	ch := make(chan kvPair, 64)
	var g errgroup.Group
	g.Go(func() error {
		defer close(ch)
		for _, key := range candidates {
			val, err := rtr.Get(key)
			if errors.Is(err, ErrNotFound) || errors.Is(err, ErrEmpty) {
				continue
			}
			if err != nil {
				return err
			}
			ch <- kvPair{
				key:   key,
				value: append([]byte(nil), val...),
			}
		}
		return nil
	})

	migrated := 0
	for kv := range ch {
		if err := wtr.Put(kv.key, kv.value); err != nil {
			wtr.Rollback()
			go func() {
				for range ch {
				}
			}()
			_ = g.Wait()
			return VacuumReport{}, err
		}
		migrated++
	}
	if err := g.Wait(); err != nil {
		wtr.Rollback()
		return VacuumReport{}, err
	}

	if err := wtr.Commit(); err != nil {
		return VacuumReport{}, err
	}

	db.mu.Lock()
	defer db.mu.Unlock()

	patched := db.footer
	patched.GapEnd = deadEnd
	buf := store.EncodeFooter(patched)
	if _, err := db.file.WriteAt(buf, db.size-store.FooterSize); err != nil {
		return VacuumReport{}, errors.Wrap(ErrIOError, err.Error())
	}
	db.footer = patched

	report := VacuumReport{
		KeysMigrated:   migrated,
		BytesReclaimed: deadEnd - regionStart,
		Elapsed:        time.Since(start),
	}
	db.log.Info("vacuum complete",
		"keys", report.KeysMigrated,
		"bytesReclaimed", report.BytesReclaimed,
		"elapsed", report.Elapsed)
	return report, nil
}

// readFooterAt follows one transaction's own header -> footer link,
// the same lookup the open/recovery protocol (spec.md §6) performs for
// the file's last transaction, applied here to an arbitrary historical
// one so Vacuum can learn tr_vac's own transaction_size.
func (db *DB) readFooterAt(headerOff uint64) (store.Footer, error) {
	hbuf := make([]byte, store.HeaderSize)
	if _, err := db.file.ReadAt(hbuf, int64(headerOff)); err != nil {
		return store.Footer{}, errors.Wrap(ErrIOError, err.Error())
	}
	header, err := store.DecodeHeader(hbuf)
	if err != nil {
		return store.Footer{}, errors.Wrap(ErrCorrupted, err.Error())
	}
	fbuf := make([]byte, store.FooterSize)
	if _, err := db.file.ReadAt(fbuf, int64(header.FooterOff)); err != nil {
		return store.Footer{}, errors.Wrap(ErrIOError, err.Error())
	}
	footer, err := store.DecodeFooter(fbuf)
	if err != nil {
		return store.Footer{}, errors.Wrap(ErrCorrupted, err.Error())
	}
	return footer, nil
}

// collectRegionKeys walks tr_vac's tree (rooted at n) once, returning
// every value-bearing key for which n itself or some ancestor on its
// path from tr_vac's root has a disk offset inside
// [regionStart, regionEnd) — spec.md §4.6 steps 1-2. Once an ancestor
// qualifies, every descendant key qualifies too regardless of where its
// own nodes happen to live, since the whole path would dangle once
// tr_vac's region is reclaimed.
func collectRegionKeys(tr *Tx, n *node.Node, prefix []byte, regionStart, regionEnd uint64, inRegion bool) ([][]byte, error) {
	n = node.Deref(n)
	key := append(append([]byte(nil), prefix...), n.Prefix...)
	inRegion = inRegion || (n.DiskOff >= regionStart && n.DiskOff < regionEnd)

	var keys [][]byte
	if inRegion && n.HasValue {
		keys = append(keys, key)
	}
	for edge := 0; edge < 256; edge++ {
		if n.Children[edge].Empty() {
			continue
		}
		child, err := tr.child(n, byte(edge))
		if err != nil {
			return nil, err
		}
		if child == nil {
			continue
		}
		childPrefix := append(append([]byte(nil), key...), byte(edge))
		sub, err := collectRegionKeys(tr, child, childPrefix, regionStart, regionEnd, inRegion)
		if err != nil {
			return nil, err
		}
		keys = append(keys, sub...)
	}
	return keys, nil
}
