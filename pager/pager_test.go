package pager

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mwatts/libgavran/errs"
	"github.com/mwatts/libgavran/internal/layout"
)

func corruptMagic(t *testing.T, path string) {
	t.Helper()
	f, err := os.OpenFile(path, os.O_RDWR, 0o600)
	require.NoError(t, err)
	defer f.Close()
	_, err = f.WriteAt([]byte("XXXXXXXX"), 0)
	require.NoError(t, err)
}

func openTemp(t *testing.T) (*Pager, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "db.pages")
	p, err := Open(path, Options{})
	require.NoError(t, err)
	t.Cleanup(func() { p.Close() })
	return p, path
}

func TestOpenBootstrapsNewFile(t *testing.T) {
	p, _ := openTemp(t)

	assert.Equal(t, uint64(16), p.NumberOfPages())

	txn, err := p.CreateTransaction(false)
	require.NoError(t, err)
	defer txn.Close()

	for _, busy := range []PageNum{0, 1, 15} {
		meta, err := txn.getPageMetadata(busy)
		require.NoError(t, err)
		assert.Equal(t, layout.FlagSingle|layout.FlagMetadata, meta.Flags, "page %d", busy)
	}

	freeMeta, err := txn.getPageMetadata(2)
	require.NoError(t, err)
	assert.Equal(t, layout.FlagFree, freeMeta.Flags)
}

func TestReopenSeesBootstrappedState(t *testing.T) {
	path := filepath.Join(t.TempDir(), "db.pages")
	p1, err := Open(path, Options{})
	require.NoError(t, err)
	require.NoError(t, p1.Close())

	p2, err := Open(path, Options{})
	require.NoError(t, err)
	defer p2.Close()

	assert.Equal(t, uint64(16), p2.NumberOfPages())
}

func TestAllocateAndModifySinglePage(t *testing.T) {
	p, _ := openTemp(t)

	txn, err := p.CreateTransaction(true)
	require.NoError(t, err)

	page, err := txn.AllocatePage(0, 0)
	require.NoError(t, err)
	assert.Equal(t, PageNum(2), page, "first free page after the header/bitmap/metadata pages")

	buf, overflow, err := txn.ModifyPage(page)
	require.NoError(t, err)
	assert.EqualValues(t, 0, overflow)
	require.Len(t, buf, layout.PageSize)
	copy(buf, []byte("hello from a single page"))

	require.NoError(t, txn.Commit())

	readTxn, err := p.CreateTransaction(false)
	require.NoError(t, err)
	defer readTxn.Close()

	data, overflow, err := readTxn.GetPage(page)
	require.NoError(t, err)
	assert.EqualValues(t, 0, overflow)
	assert.Equal(t, "hello from a single page", string(data[:24]))
}

func TestAllocateOverflowRunRoundTrips(t *testing.T) {
	p, _ := openTemp(t)

	txn, err := p.CreateTransaction(true)
	require.NoError(t, err)

	const size = layout.PageSize + 100
	first, err := txn.AllocatePage(size, 0)
	require.NoError(t, err)

	buf, overflow, err := txn.ModifyPage(first)
	require.NoError(t, err)
	assert.EqualValues(t, size, overflow)
	require.Len(t, buf, 2*layout.PageSize)
	for i := range buf {
		buf[i] = byte(i)
	}
	require.NoError(t, txn.Commit())

	meta, err := func() (layout.PageMetadata, error) {
		rt, err := p.CreateTransaction(false)
		require.NoError(t, err)
		defer rt.Close()
		return rt.getPageMetadata(first + 1)
	}()
	require.NoError(t, err)
	assert.Equal(t, layout.FlagOverflowRest, meta.Flags)
	assert.EqualValues(t, size-layout.PageSize, meta.OverflowSize)

	rt, err := p.CreateTransaction(false)
	require.NoError(t, err)
	defer rt.Close()
	data, overflow, err := rt.GetPage(first)
	require.NoError(t, err)
	assert.EqualValues(t, size, overflow)
	require.Len(t, data, 2*layout.PageSize)
	for i := range data {
		assert.Equal(t, byte(i), data[i])
	}
}

func TestFreePageIsIdempotent(t *testing.T) {
	p, _ := openTemp(t)

	txn, err := p.CreateTransaction(true)
	require.NoError(t, err)
	page, err := txn.AllocatePage(0, 0)
	require.NoError(t, err)
	require.NoError(t, txn.FreePage(page))
	require.NoError(t, txn.Commit())

	txn2, err := p.CreateTransaction(true)
	require.NoError(t, err)
	defer txn2.Close()
	assert.NoError(t, txn2.FreePage(page))
}

func TestFreeOverflowRestPageIsRejected(t *testing.T) {
	p, _ := openTemp(t)

	txn, err := p.CreateTransaction(true)
	require.NoError(t, err)
	defer txn.Close()

	first, err := txn.AllocatePage(layout.PageSize+1, 0)
	require.NoError(t, err)

	err = txn.FreePage(first + 1)
	assert.ErrorIs(t, err, errs.ErrInvalidState)
}

func TestAllocatedPageIsReusedAfterFree(t *testing.T) {
	p, _ := openTemp(t)

	txn, err := p.CreateTransaction(true)
	require.NoError(t, err)
	page, err := txn.AllocatePage(0, 0)
	require.NoError(t, err)
	require.NoError(t, txn.FreePage(page))
	require.NoError(t, txn.Commit())

	txn2, err := p.CreateTransaction(true)
	require.NoError(t, err)
	defer txn2.Close()
	again, err := txn2.AllocatePage(0, 0)
	require.NoError(t, err)
	assert.Equal(t, page, again)
}

func TestReadOnlyTransactionRejectsWrites(t *testing.T) {
	p, _ := openTemp(t)

	txn, err := p.CreateTransaction(false)
	require.NoError(t, err)
	defer txn.Close()

	_, err = txn.AllocatePage(0, 0)
	assert.ErrorIs(t, err, errs.ErrInvalidState)

	_, _, err = txn.ModifyPage(2)
	assert.ErrorIs(t, err, errs.ErrInvalidState)

	err = txn.FreePage(2)
	assert.ErrorIs(t, err, errs.ErrInvalidState)
}

func TestModifyPageReturnsSameBufferWithinTransaction(t *testing.T) {
	p, _ := openTemp(t)

	txn, err := p.CreateTransaction(true)
	require.NoError(t, err)
	defer txn.Close()

	page, err := txn.AllocatePage(0, 0)
	require.NoError(t, err)

	buf1, _, err := txn.ModifyPage(page)
	require.NoError(t, err)
	buf1[0] = 42

	buf2, _, err := txn.ModifyPage(page)
	require.NoError(t, err)
	assert.Equal(t, byte(42), buf2[0])
}

func TestAllocateFailsWhenExhausted(t *testing.T) {
	p, _ := openTemp(t)

	txn, err := p.CreateTransaction(true)
	require.NoError(t, err)
	defer txn.Close()

	// Only pages 2..14 are free on a fresh 16-page file (0,1,15 are busy).
	for i := 0; i < 13; i++ {
		_, err := txn.AllocatePage(0, 0)
		require.NoError(t, err)
	}

	_, err = txn.AllocatePage(0, 0)
	assert.ErrorIs(t, err, errs.ErrNoSpace)
	assert.True(t, p.Diagnostics().Overflowed() || len(p.Diagnostics().Records()) > 0)
}

func TestOpenRejectsCorruptHeader(t *testing.T) {
	path := filepath.Join(t.TempDir(), "db.pages")
	p, err := Open(path, Options{})
	require.NoError(t, err)
	require.NoError(t, p.Close())

	corruptMagic(t, path)

	_, err = Open(path, Options{})
	assert.ErrorIs(t, err, errs.ErrCorruption)
}

func TestOpenRejectsPagesPerMetadataSectionMismatch(t *testing.T) {
	path := filepath.Join(t.TempDir(), "db.pages")
	p, err := Open(path, Options{PagesPerMetadataSection: 4096})
	require.NoError(t, err)
	require.NoError(t, p.Close())

	_, err = Open(path, Options{PagesPerMetadataSection: 8192})
	assert.ErrorIs(t, err, errs.ErrCorruption)
}

// TestOverflowRoundTripAcrossReopen is spec scenario S5: allocate a
// 12,288-byte (1.5-page) overflow value, write a recognizable pattern,
// commit, close, reopen, and read it back byte-exact.
func TestOverflowRoundTripAcrossReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "db.pages")
	p, err := Open(path, Options{})
	require.NoError(t, err)

	const size = 12288
	pattern := make([]byte, size)
	for i := range pattern {
		pattern[i] = byte(i % 251)
	}

	txn, err := p.CreateTransaction(true)
	require.NoError(t, err)
	page, err := txn.AllocatePage(size, 0)
	require.NoError(t, err)
	buf, _, err := txn.ModifyPage(page)
	require.NoError(t, err)
	require.Len(t, buf, 2*layout.PageSize)
	copy(buf, pattern)
	require.NoError(t, txn.Commit())
	require.NoError(t, p.Close())

	p2, err := Open(path, Options{})
	require.NoError(t, err)
	defer p2.Close()

	rt, err := p2.CreateTransaction(false)
	require.NoError(t, err)
	defer rt.Close()

	data, overflow, err := rt.GetPage(page)
	require.NoError(t, err)
	assert.EqualValues(t, size, overflow)
	assert.Equal(t, pattern, data[:size])
}

// TestAllocateNearPrefersLocalSmallestRun is spec scenario S6: with
// free runs at {10}, {20..22}, {100..110} and a request for 3 pages
// near page 5, the nearest sufficient run (20) wins over the larger,
// farther one (100), even though the farther run would also fit.
func TestAllocateNearPrefersLocalSmallestRun(t *testing.T) {
	path := filepath.Join(t.TempDir(), "db.pages")
	p, err := Open(path, Options{InitialSize: 200 * layout.PageSize})
	require.NoError(t, err)
	defer p.Close()

	free := map[PageNum]bool{
		10: true,
		20: true, 21: true, 22: true,
		100: true, 101: true, 102: true, 103: true, 104: true,
		105: true, 106: true, 107: true, 108: true, 109: true, 110: true,
	}

	txn, err := p.CreateTransaction(true)
	require.NoError(t, err)
	defer txn.Close()

	// Pages 0, 1, and 199 are already busy from bootstrap (header, the
	// sole bitmap page, and the trailing range's metadata page for a
	// 200-page file). Busy out every other free page except the runs
	// named by the scenario.
	for page := PageNum(2); page < 199; page++ {
		if free[page] {
			continue
		}
		require.NoError(t, txn.setBit(page))
		require.NoError(t, txn.modifyPageMetadata(page, func(m *layout.PageMetadata) {
			*m = layout.PageMetadata{Flags: layout.FlagSingle}
		}))
	}

	const size = 3 * layout.PageSize
	got, err := txn.AllocatePage(size, 5)
	require.NoError(t, err)
	assert.Equal(t, PageNum(20), got)
}
