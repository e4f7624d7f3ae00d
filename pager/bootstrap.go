package pager

import "github.com/mwatts/libgavran/internal/layout"

// bootstrap initializes a brand-new database file: it writes the
// header to page 0 and marks every page the pager itself occupies
// (page 0, the bitmap pages, and every range's metadata section) busy
// with FlagSingle|FlagMetadata, in one transaction.
func (p *Pager) bootstrap() error {
	t, err := p.CreateTransaction(true)
	if err != nil {
		return err
	}
	defer t.Close()

	headerBuf, err := t.ensureDirty(0, 1)
	if err != nil {
		return err
	}
	p.header.Encode(headerBuf)

	for _, page := range p.bootstrapBusyPages() {
		if err := t.setBit(page); err != nil {
			return err
		}
		if err := t.modifyPageMetadata(page, func(m *layout.PageMetadata) {
			*m = layout.PageMetadata{Flags: layout.FlagSingle | layout.FlagMetadata}
		}); err != nil {
			return err
		}
	}

	return t.Commit()
}

// bootstrapBusyPages enumerates every page the pager occupies on a
// fresh file: page 0, the K bitmap pages, and every range's metadata
// section (for the default initial size there's exactly one range, the
// file's sole trailing partial one, but the loop stays general so a
// caller-supplied larger InitialSize bootstraps correctly too).
func (p *Pager) bootstrapBusyPages() []PageNum {
	total := p.header.NumberOfPages
	s := p.header.PagesPerMetadataSection

	seen := map[PageNum]bool{0: true}
	pages := []PageNum{0}

	add := func(page PageNum) {
		if !seen[page] {
			seen[page] = true
			pages = append(pages, page)
		}
	}

	k := layout.BitmapPageCount(total)
	for bp := uint64(1); bp <= k; bp++ {
		add(bp)
	}

	for rangeStart := uint64(0); rangeStart < total; rangeStart += s {
		start, count := layout.MetadataSectionStart(total, rangeStart, s)
		for i := uint64(0); i < count; i++ {
			add(start + i)
		}
	}

	return pages
}
