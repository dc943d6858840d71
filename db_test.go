package radixdb

import (
	"testing"

	"github.com/inconshreveable/log15"
	"github.com/stretchr/testify/require"

	"github.com/tidalforge/radixdb/internal/diskio"
)

// newTestDB returns a DB backed by an in-memory file, bypassing Open's
// os.OpenFile so tests never touch the filesystem.
func newTestDB(t *testing.T) *DB {
	t.Helper()
	log := log15.New("module", "radixdb-test")
	log.SetHandler(log15.DiscardHandler())
	db := &DB{
		file:   diskio.NewMemFile(),
		params: DefaultParams(),
		log:    log,
	}
	require.NoError(t, db.reloadFooter())
	return db
}

func TestOpenEmptyFileRoundTrips(t *testing.T) {
	db := newTestDB(t)
	info, err := db.Info()
	require.NoError(t, err)
	require.Zero(t, info.RootOff)
	require.Zero(t, info.TransactionID)
}

func TestGetOnNeverWrittenTxIsEmpty(t *testing.T) {
	db := newTestDB(t)
	tr := db.NewTx(0, true)
	require.NoError(t, tr.Begin())
	defer tr.Rollback()

	_, err := tr.Get([]byte("a"))
	require.ErrorIs(t, err, ErrEmpty)
}

func TestCommitRejectsConcurrentModification(t *testing.T) {
	db := newTestDB(t)

	tr1 := db.NewTx(0, true)
	require.NoError(t, tr1.Begin())
	require.NoError(t, tr1.Put([]byte("a"), []byte("1")))

	tr2 := db.NewTx(0, true)
	require.NoError(t, tr2.Begin())
	require.NoError(t, tr2.Put([]byte("b"), []byte("2")))
	require.NoError(t, tr2.Commit())

	err := tr1.Commit()
	require.ErrorIs(t, err, ErrModified)
}

func TestSyncIsPlainFsyncPassthrough(t *testing.T) {
	db := newTestDB(t)
	require.NoError(t, db.Sync())
}
