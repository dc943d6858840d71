package radixdb

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestVacuumPreservesLiveData(t *testing.T) {
	db := newTestDB(t)

	tr := db.NewTx(0, true)
	require.NoError(t, tr.Begin())
	require.NoError(t, tr.Put([]byte("k1"), []byte("v1")))
	require.NoError(t, tr.Put([]byte("k2"), []byte("v2")))
	require.NoError(t, tr.Commit())

	tr2 := db.NewTx(0, true)
	require.NoError(t, tr2.Begin())
	require.NoError(t, tr2.Put([]byte("k1"), []byte("overwritten, much longer value")))
	require.NoError(t, tr2.Del([]byte("k2"), false))
	require.NoError(t, tr2.Commit())

	sizeBeforeVacuum := db.size

	report, err := db.Vacuum(0, true)
	require.NoError(t, err)
	require.Equal(t, 1, report.KeysMigrated)
	require.Greater(t, sizeBeforeVacuum, int64(0))

	info, err := db.Info()
	require.NoError(t, err)
	require.Greater(t, info.GapEnd, uint64(0))
	require.Zero(t, info.GapBegin)

	tr3 := db.NewTx(0, true)
	require.NoError(t, tr3.Begin())
	val, err := tr3.Get([]byte("k1"))
	require.NoError(t, err)
	require.Equal(t, []byte("overwritten, much longer value"), val)

	_, err = tr3.Get([]byte("k2"))
	require.ErrorIs(t, err, ErrNotFound)
}

func TestVacuumOnEmptyDBIsNoop(t *testing.T) {
	db := newTestDB(t)
	report, err := db.Vacuum(0, true)
	require.NoError(t, err)
	require.Zero(t, report.KeysMigrated)
	require.Zero(t, report.BytesReclaimed)
}

func TestVacuumTwiceExtendsGap(t *testing.T) {
	db := newTestDB(t)

	tr := db.NewTx(0, true)
	require.NoError(t, tr.Begin())
	require.NoError(t, tr.Put([]byte("a"), []byte("1")))
	require.NoError(t, tr.Commit())

	_, err := db.Vacuum(0, true)
	require.NoError(t, err)
	firstInfo, err := db.Info()
	require.NoError(t, err)

	tr2 := db.NewTx(0, true)
	require.NoError(t, tr2.Begin())
	require.NoError(t, tr2.Put([]byte("b"), []byte("2")))
	require.NoError(t, tr2.Commit())

	_, err = db.Vacuum(0, true)
	require.NoError(t, err)
	secondInfo, err := db.Info()
	require.NoError(t, err)

	require.Greater(t, secondInfo.GapEnd, firstInfo.GapEnd)
}
