package radixdb

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func seedCursorTree(t *testing.T, tr *Tx) {
	t.Helper()
	keys := []string{"apple", "app", "application", "banana", "band", "bandana", ""}
	for i, k := range keys {
		require.NoError(t, tr.Put([]byte(k), []byte{byte(i)}))
	}
}

func collectForward(t *testing.T, cur *Cursor) []string {
	t.Helper()
	var out []string
	err := cur.First()
	for err == nil {
		out = append(out, string(cur.Key()))
		err = cur.Next()
	}
	require.ErrorIs(t, err, ErrNotFound)
	return out
}

func TestCursorFirstLastOrdering(t *testing.T) {
	db := newTestDB(t)
	tr := db.NewTx(0, true)
	require.NoError(t, tr.Begin())
	seedCursorTree(t, tr)

	cur, err := tr.NewCursor()
	require.NoError(t, err)

	forward := collectForward(t, cur)
	expected := []string{"", "app", "apple", "application", "banana", "band", "bandana"}
	require.Equal(t, expected, forward)

	require.NoError(t, cur.Last())
	require.Equal(t, "bandana", string(cur.Key()))
}

func TestCursorPrevMirrorsNext(t *testing.T) {
	db := newTestDB(t)
	tr := db.NewTx(0, true)
	require.NoError(t, tr.Begin())
	seedCursorTree(t, tr)

	cur, err := tr.NewCursor()
	require.NoError(t, err)

	require.NoError(t, cur.Last())
	var backward []string
	for {
		backward = append(backward, string(cur.Key()))
		if err := cur.Prev(); err != nil {
			require.ErrorIs(t, err, ErrNotFound)
			break
		}
	}
	expected := []string{"bandana", "band", "banana", "application", "apple", "app", ""}
	require.Equal(t, expected, backward)
}

func TestCursorSeekModes(t *testing.T) {
	db := newTestDB(t)
	tr := db.NewTx(0, true)
	require.NoError(t, tr.Begin())
	seedCursorTree(t, tr)

	cur, err := tr.NewCursor()
	require.NoError(t, err)

	require.NoError(t, cur.Seek([]byte("app"), SeekEQ))
	require.Equal(t, "app", string(cur.Key()))

	err = cur.Seek([]byte("appz"), SeekEQ)
	require.ErrorIs(t, err, ErrNotFound)

	require.NoError(t, cur.Seek([]byte("appz"), SeekGE))
	require.Equal(t, "banana", string(cur.Key()))

	require.NoError(t, cur.Seek([]byte("appz"), SeekLE))
	require.Equal(t, "application", string(cur.Key()))

	require.NoError(t, cur.Seek([]byte("aaa"), SeekGE))
	require.Equal(t, "app", string(cur.Key()))

	// "" sorts before every non-empty key, so it is the predecessor of
	// any key lexicographically ahead of every other stored key.
	require.NoError(t, cur.Seek([]byte("aaa"), SeekLE))
	require.Equal(t, "", string(cur.Key()))

	require.NoError(t, cur.Seek([]byte("zzz"), SeekLE))
	require.Equal(t, "bandana", string(cur.Key()))

	err = cur.Seek([]byte("zzz"), SeekGE)
	require.ErrorIs(t, err, ErrNotFound)
}

func TestCursorOnEmptyTree(t *testing.T) {
	db := newTestDB(t)
	tr := db.NewTx(0, true)
	require.NoError(t, tr.Begin())
	require.NoError(t, tr.ensureRoot())

	cur, err := tr.NewCursor()
	require.NoError(t, err)

	err = cur.First()
	require.ErrorIs(t, err, ErrEmpty)
}
