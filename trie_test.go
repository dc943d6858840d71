package radixdb

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/tidalforge/radixdb/internal/node"
)

func TestPutGetRoundTrip(t *testing.T) {
	db := newTestDB(t)
	tr := db.NewTx(0, true)
	require.NoError(t, tr.Begin())

	require.NoError(t, tr.Put([]byte("hello"), []byte("world")))
	require.NoError(t, tr.Put([]byte(""), []byte("root-value")))
	require.NoError(t, tr.Put([]byte("h"), []byte("")))

	val, err := tr.Get([]byte("hello"))
	require.NoError(t, err)
	require.Equal(t, []byte("world"), val)

	val, err = tr.Get([]byte(""))
	require.NoError(t, err)
	require.Equal(t, []byte("root-value"), val)

	val, err = tr.Get([]byte("h"))
	require.NoError(t, err)
	require.Equal(t, []byte(""), val)

	require.NoError(t, tr.Commit())
}

func TestPutSplitInsidePrefix(t *testing.T) {
	db := newTestDB(t)
	tr := db.NewTx(0, true)
	require.NoError(t, tr.Begin())

	require.NoError(t, tr.Put([]byte("network"), []byte("1")))
	require.NoError(t, tr.Put([]byte("net"), []byte("2")))

	v1, err := tr.Get([]byte("network"))
	require.NoError(t, err)
	require.Equal(t, []byte("1"), v1)

	v2, err := tr.Get([]byte("net"))
	require.NoError(t, err)
	require.Equal(t, []byte("2"), v2)
}

func TestPutSplitMismatch(t *testing.T) {
	db := newTestDB(t)
	tr := db.NewTx(0, true)
	require.NoError(t, tr.Begin())

	require.NoError(t, tr.Put([]byte("team"), []byte("1")))
	require.NoError(t, tr.Put([]byte("test"), []byte("2")))

	v1, err := tr.Get([]byte("team"))
	require.NoError(t, err)
	require.Equal(t, []byte("1"), v1)

	v2, err := tr.Get([]byte("test"))
	require.NoError(t, err)
	require.Equal(t, []byte("2"), v2)

	_, err = tr.Get([]byte("te"))
	require.ErrorIs(t, err, ErrNotFound)
}

func TestPutOverwriteSameLength(t *testing.T) {
	db := newTestDB(t)
	tr := db.NewTx(0, true)
	require.NoError(t, tr.Begin())

	require.NoError(t, tr.Put([]byte("key"), []byte("aaa")))
	require.NoError(t, tr.Put([]byte("key"), []byte("bbb")))

	val, err := tr.Get([]byte("key"))
	require.NoError(t, err)
	require.Equal(t, []byte("bbb"), val)
}

func TestPutOverwriteDifferentLength(t *testing.T) {
	db := newTestDB(t)
	tr := db.NewTx(0, true)
	require.NoError(t, tr.Begin())

	require.NoError(t, tr.Put([]byte("key"), []byte("short")))
	require.NoError(t, tr.Put([]byte("key"), []byte("a much longer value")))

	val, err := tr.Get([]byte("key"))
	require.NoError(t, err)
	require.Equal(t, []byte("a much longer value"), val)
}

func TestDelWithMerge(t *testing.T) {
	db := newTestDB(t)
	tr := db.NewTx(0, true)
	require.NoError(t, tr.Begin())

	require.NoError(t, tr.Put([]byte("team"), []byte("1")))
	require.NoError(t, tr.Put([]byte("test"), []byte("2")))

	require.NoError(t, tr.Del([]byte("team"), false))

	_, err := tr.Get([]byte("team"))
	require.ErrorIs(t, err, ErrNotFound)

	val, err := tr.Get([]byte("test"))
	require.NoError(t, err)
	require.Equal(t, []byte("2"), val)

	// the surviving branch must have been merged back into a single
	// node: the fork "e" and the leaf "t" under edge 's' become one node
	// with prefix "est" under the root's 't' edge.
	merged := node.Deref(node.Deref(tr.root).Children['t'].Mem)
	require.Equal(t, []byte("est"), merged.Prefix)

	// re-inserting a key that shares the "te" prefix with "test" must
	// split the merged node again.
	require.NoError(t, tr.Put([]byte("te"), []byte("3")))
	val, err = tr.Get([]byte("te"))
	require.NoError(t, err)
	require.Equal(t, []byte("3"), val)
}

func TestDelPrefix(t *testing.T) {
	db := newTestDB(t)
	tr := db.NewTx(0, true)
	require.NoError(t, tr.Begin())

	require.NoError(t, tr.Put([]byte("app/a"), []byte("1")))
	require.NoError(t, tr.Put([]byte("app/b"), []byte("2")))
	require.NoError(t, tr.Put([]byte("app"), []byte("3")))

	require.NoError(t, tr.Del([]byte("app"), true))

	_, err := tr.Get([]byte("app"))
	require.ErrorIs(t, err, ErrNotFound)
	_, err = tr.Get([]byte("app/a"))
	require.ErrorIs(t, err, ErrNotFound)
	_, err = tr.Get([]byte("app/b"))
	require.ErrorIs(t, err, ErrNotFound)
}

func TestDelNotFound(t *testing.T) {
	db := newTestDB(t)
	tr := db.NewTx(0, true)
	require.NoError(t, tr.Begin())

	require.NoError(t, tr.Put([]byte("x"), []byte("1")))
	err := tr.Del([]byte("y"), false)
	require.ErrorIs(t, err, ErrNotFound)
}

func TestPutGetPersistsAcrossTransactions(t *testing.T) {
	db := newTestDB(t)

	tr := db.NewTx(0, true)
	require.NoError(t, tr.Begin())
	require.NoError(t, tr.Put([]byte("k1"), []byte("v1")))
	require.NoError(t, tr.Put([]byte("k2"), []byte("v2")))
	require.NoError(t, tr.Commit())

	tr2 := db.NewTx(0, true)
	require.NoError(t, tr2.Begin())
	val, err := tr2.Get([]byte("k1"))
	require.NoError(t, err)
	require.Equal(t, []byte("v1"), val)
	val, err = tr2.Get([]byte("k2"))
	require.NoError(t, err)
	require.Equal(t, []byte("v2"), val)
	require.NoError(t, tr2.Commit())
}

func TestBumpAllocatorFreesAreNoops(t *testing.T) {
	db := newTestDB(t)
	tr := db.NewTx(1<<20, false)
	require.NoError(t, tr.Begin())

	require.NoError(t, tr.Put([]byte("a"), []byte("1")))
	usedAfterPut := tr.alloc.Used()
	require.NoError(t, tr.Del([]byte("a"), false))
	// bump arena: a delete never reclaims bytes mid-transaction.
	require.GreaterOrEqual(t, tr.alloc.Used(), usedAfterPut)
}
