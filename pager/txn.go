package pager

import (
	"fmt"

	"github.com/mwatts/libgavran/errs"
	"github.com/mwatts/libgavran/internal/layout"
)

// Txn is one begin/modify/commit/close transaction over a Pager. A
// writable Txn holds copy-on-write buffers for every page it touches in
// dirty, flushed to disk only on Commit; a read-only Txn sees the
// pager's mapping directly and never takes the writer lock.
type Txn struct {
	pager    *Pager
	writable bool
	dirty    map[PageNum][]byte
	closed   bool
}

// CreateTransaction begins a transaction. A writable transaction blocks
// until any other writable transaction on this Pager has closed or
// committed: single writer, multiple readers.
func (p *Pager) CreateTransaction(writable bool) (*Txn, error) {
	if writable {
		p.writerMu.Lock()
	}
	return &Txn{pager: p, writable: writable, dirty: map[PageNum][]byte{}}, nil
}

// GetPage returns the current contents of page (its full overflow run,
// if it is part of one) and the value's logical size in bytes. The
// returned slice must not be retained past the transaction's Close.
func (t *Txn) GetPage(page PageNum) ([]byte, uint32, error) {
	meta, err := t.getPageMetadata(page)
	if err != nil {
		return nil, 0, err
	}
	data, err := t.rawGet(page, requiredPages(meta.OverflowSize))
	if err != nil {
		return nil, 0, err
	}
	return data, meta.OverflowSize, nil
}

// ModifyPage returns a writable copy-on-write buffer for page, sized to
// its current overflow run, creating the copy on first touch within
// this transaction. It looks up sizing through the non-modifying
// getPageMetadata rather than through modifyPageMetadata, so modifying
// a metadata page never recurses into modifying its own record.
func (t *Txn) ModifyPage(page PageNum) ([]byte, uint32, error) {
	if !t.writable {
		return nil, 0, fmt.Errorf("pager: modifying page %d in a read-only transaction: %w", page, errs.ErrInvalidState)
	}
	meta, err := t.getPageMetadata(page)
	if err != nil {
		return nil, 0, err
	}
	buf, err := t.ensureDirty(page, requiredPages(meta.OverflowSize))
	if err != nil {
		return nil, 0, err
	}
	return buf, meta.OverflowSize, nil
}

// Commit writes every dirty page to the file with an explicit
// positional write and issues a single fsync barrier, then releases the
// writer lock. A Txn must not be used again after Commit; Close is safe
// to call afterward as a no-op.
func (t *Txn) Commit() error {
	if t.closed {
		return fmt.Errorf("pager: commit on a closed transaction: %w", errs.ErrInvalidState)
	}
	if !t.writable {
		return fmt.Errorf("pager: commit on a read-only transaction: %w", errs.ErrInvalidState)
	}

	for page, buf := range t.dirty {
		if err := t.pager.file.WriteAt(int64(page)*layout.PageSize, buf); err != nil {
			t.pager.diag.Push(err, "commit: writing page %d", page)
			return err
		}
	}
	if err := t.pager.file.Sync(); err != nil {
		t.pager.diag.Push(err, "commit: fsync")
		return err
	}

	t.dirty = nil
	t.closed = true
	t.pager.writerMu.Unlock()
	return nil
}

// Close discards the transaction. On a writable transaction that was
// never committed, every dirty buffer is thrown away and the writer
// lock is released. Safe to call more than once.
func (t *Txn) Close() error {
	if t.closed {
		return nil
	}
	t.dirty = nil
	t.closed = true
	if t.writable {
		t.pager.writerMu.Unlock()
	}
	return nil
}

// ensureDirty returns the writable buffer for page (numPages pages
// long), copying it from the mapping on first touch within this
// transaction and caching it for subsequent calls.
func (t *Txn) ensureDirty(page PageNum, numPages uint64) ([]byte, error) {
	if !t.writable {
		return nil, fmt.Errorf("pager: modifying page %d in a read-only transaction: %w", page, errs.ErrInvalidState)
	}
	if buf, ok := t.dirty[page]; ok {
		if uint64(len(buf)) != numPages*layout.PageSize {
			return nil, fmt.Errorf("pager: page %d run length changed mid-transaction: %w", page, errs.ErrInvalidState)
		}
		return buf, nil
	}

	src, err := t.rawGet(page, numPages)
	if err != nil {
		return nil, err
	}
	buf := make([]byte, len(src))
	copy(buf, src)
	t.dirty[page] = buf
	return buf, nil
}

// rawGet returns the current numPages-page view of page, preferring
// this transaction's own dirty copy over the pager's mapping.
func (t *Txn) rawGet(page PageNum, numPages uint64) ([]byte, error) {
	if buf, ok := t.dirty[page]; ok {
		if uint64(len(buf)) != numPages*layout.PageSize {
			return nil, fmt.Errorf("pager: page %d run length changed mid-transaction: %w", page, errs.ErrInvalidState)
		}
		return buf, nil
	}

	total := page + numPages
	if total > t.pager.header.NumberOfPages || numPages == 0 {
		return nil, fmt.Errorf("pager: page %d+%d out of range (file has %d pages): %w", page, numPages, t.pager.header.NumberOfPages, errs.ErrInvalidArgument)
	}

	data := t.pager.mapping.Slice(int64(page)*layout.PageSize, int64(numPages)*layout.PageSize)
	if data == nil {
		return nil, fmt.Errorf("pager: page %d+%d out of range: %w", page, numPages, errs.ErrInvalidArgument)
	}
	return data, nil
}
