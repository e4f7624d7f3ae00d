package pager

import (
	"encoding/binary"
	"fmt"
	"strings"

	"github.com/mwatts/libgavran/errs"
	"github.com/mwatts/libgavran/internal/layout"
	"github.com/mwatts/libgavran/internal/rangefind"
)

// getPageMetadata is the non-modifying read of page's metadata record.
// Metadata pages are always exactly one page (they carry
// FlagSingle|FlagMetadata and never overflow), so this always reads
// through rawGet with numPages=1 hardcoded rather than recursing into
// GetPage/getPageMetadata for the metadata page itself.
func (t *Txn) getPageMetadata(page PageNum) (layout.PageMetadata, error) {
	if page >= t.pager.header.NumberOfPages {
		return layout.PageMetadata{}, fmt.Errorf("pager: page %d out of range (file has %d pages): %w", page, t.pager.header.NumberOfPages, errs.ErrInvalidArgument)
	}
	metaPage, idx := layout.MetadataLocation(t.pager.header.NumberOfPages, page, t.pager.header.PagesPerMetadataSection)
	buf, err := t.rawGet(metaPage, 1)
	if err != nil {
		return layout.PageMetadata{}, err
	}
	off := idx * layout.RecordSize
	return layout.DecodeRecord(buf[off : off+layout.RecordSize]), nil
}

// modifyPageMetadata mutates page's metadata record in place. Like
// getPageMetadata, it touches the metadata page through ensureDirty
// with numPages=1 hardcoded, so modifying a page's own metadata record
// never triggers a second, recursive metadata lookup for that same
// page even when the metadata page is modifying itself.
func (t *Txn) modifyPageMetadata(page PageNum, mutate func(*layout.PageMetadata)) error {
	if !t.writable {
		return fmt.Errorf("pager: modifying metadata for page %d in a read-only transaction: %w", page, errs.ErrInvalidState)
	}
	if page >= t.pager.header.NumberOfPages {
		return fmt.Errorf("pager: page %d out of range (file has %d pages): %w", page, t.pager.header.NumberOfPages, errs.ErrInvalidArgument)
	}
	metaPage, idx := layout.MetadataLocation(t.pager.header.NumberOfPages, page, t.pager.header.PagesPerMetadataSection)
	buf, err := t.ensureDirty(metaPage, 1)
	if err != nil {
		return err
	}
	off := idx * layout.RecordSize
	rec := layout.DecodeRecord(buf[off : off+layout.RecordSize])
	mutate(&rec)
	rec.Encode(buf[off : off+layout.RecordSize])
	return nil
}

// DescribeFlags renders page's current metadata flags as a short,
// human-readable label, for tools like cmd/pagerctl.
func (t *Txn) DescribeFlags(page PageNum) (string, error) {
	meta, err := t.getPageMetadata(page)
	if err != nil {
		return "", err
	}
	if meta.Flags == layout.FlagFree {
		return "free", nil
	}

	var parts []string
	if meta.Flags&layout.FlagSingle != 0 {
		parts = append(parts, "single")
	}
	if meta.Flags&layout.FlagOverflowFirst != 0 {
		parts = append(parts, "overflow_first")
	}
	if meta.Flags&layout.FlagOverflowRest != 0 {
		parts = append(parts, "overflow_rest")
	}
	if meta.Flags&layout.FlagMetadata != 0 {
		parts = append(parts, "metadata")
	}
	if len(parts) == 0 {
		return fmt.Sprintf("unknown(%#x)", uint8(meta.Flags)), nil
	}
	return strings.Join(parts, "|"), nil
}

// setBit and clearBit touch a single bitmap bit through the same
// one-page-hardcoded path as the metadata helpers above: bitmap pages
// are likewise always single pages.
func (t *Txn) setBit(page PageNum) error {
	bp, byteOff, bit := layout.BitLocation(page)
	buf, err := t.ensureDirty(bp, 1)
	if err != nil {
		return err
	}
	buf[byteOff] |= 1 << bit
	return nil
}

func (t *Txn) clearBit(page PageNum) error {
	bp, byteOff, bit := layout.BitLocation(page)
	buf, err := t.ensureDirty(bp, 1)
	if err != nil {
		return err
	}
	buf[byteOff] &^= 1 << bit
	return nil
}

// bitmapWords builds the in-transaction view of the free-space bitmap
// as a slice of 64-bit words, one bitmap page at a time through rawGet
// (so a writer sees its own not-yet-committed bit changes), and marks
// every bit beyond NumberOfPages as busy so rangefind.FindFreeRange
// never proposes a page past the end of the file.
func (t *Txn) bitmapWords() ([]uint64, error) {
	k := layout.BitmapPageCount(t.pager.header.NumberOfPages)
	words := make([]uint64, 0, k*(layout.PageSize/8))
	for bp := uint64(1); bp <= k; bp++ {
		buf, err := t.rawGet(bp, 1)
		if err != nil {
			return nil, err
		}
		for off := 0; off < layout.PageSize; off += 8 {
			words = append(words, binary.LittleEndian.Uint64(buf[off:off+8]))
		}
	}
	maskTrailingBusy(words, t.pager.header.NumberOfPages)
	return words, nil
}

// maskTrailingBusy sets every bit at index >= nbits to 1 (busy), since
// the bitmap's last page is padded out to a full page of bits but only
// the first nbits of them name real pages.
func maskTrailingBusy(words []uint64, nbits uint64) {
	fullWords := nbits / 64
	if rem := nbits % 64; rem != 0 && fullWords < uint64(len(words)) {
		words[fullWords] |= ^uint64(0) << rem
		fullWords++
	}
	for i := fullWords; i < uint64(len(words)); i++ {
		words[i] = ^uint64(0)
	}
}

// AllocatePage finds a free run of requiredPages(overflowSize) pages
// near the page number near, marks it busy in the bitmap, and writes
// each page's metadata record: FlagSingle for a one-page value,
// FlagOverflowFirst on the run's first page and FlagOverflowRest (with
// a running OverflowSize) on the rest.
func (t *Txn) AllocatePage(overflowSize uint32, near PageNum) (PageNum, error) {
	if !t.writable {
		return 0, fmt.Errorf("pager: allocating in a read-only transaction: %w", errs.ErrInvalidState)
	}

	required := requiredPages(overflowSize)
	words, err := t.bitmapWords()
	if err != nil {
		return 0, err
	}

	first, ok := rangefind.FindFreeRange(words, t.pager.header.NumberOfPages, required, near)
	if !ok {
		t.pager.diag.Push(errs.ErrNoSpace, "allocate: no run of %d page(s) near %d", required, near)
		return 0, fmt.Errorf("pager: allocating %d page(s) near %d: %w", required, near, errs.ErrNoSpace)
	}

	for i := uint64(0); i < required; i++ {
		page := first + i
		if err := t.setBit(page); err != nil {
			return 0, err
		}

		var rec layout.PageMetadata
		switch {
		case required == 1:
			rec = layout.PageMetadata{Flags: layout.FlagSingle}
		case i == 0:
			rec = layout.PageMetadata{Flags: layout.FlagOverflowFirst, OverflowSize: overflowSize}
		default:
			rec = layout.PageMetadata{Flags: layout.FlagOverflowRest, OverflowSize: overflowSize - uint32(i*layout.PageSize)}
		}
		if err := t.modifyPageMetadata(page, func(m *layout.PageMetadata) { *m = rec }); err != nil {
			return 0, err
		}
	}

	return first, nil
}

// FreePage clears the bitmap bit and metadata record for page and every
// page in its overflow run. It is idempotent on an already-free page
// (a no-op), and returns ErrInvalidState if page names a continuation
// page rather than a run's first page, since that violates the caller
// contract that FreePage is always called on the page number an
// allocation or lookup returned.
func (t *Txn) FreePage(page PageNum) error {
	if !t.writable {
		return fmt.Errorf("pager: freeing page %d in a read-only transaction: %w", page, errs.ErrInvalidState)
	}

	meta, err := t.getPageMetadata(page)
	if err != nil {
		return err
	}
	if meta.Flags == layout.FlagFree {
		return nil
	}
	if meta.Flags&layout.FlagOverflowRest != 0 {
		return fmt.Errorf("pager: freeing page %d: not the first page of its run: %w", page, errs.ErrInvalidState)
	}

	required := requiredPages(meta.OverflowSize)
	for i := uint64(0); i < required; i++ {
		p := page + i
		if err := t.clearBit(p); err != nil {
			return err
		}
		if err := t.modifyPageMetadata(p, func(m *layout.PageMetadata) { *m = layout.PageMetadata{} }); err != nil {
			return err
		}
	}
	return nil
}
