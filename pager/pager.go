package pager

import (
	"fmt"
	"sync"

	"github.com/mwatts/libgavran/errs"
	"github.com/mwatts/libgavran/internal/diskio"
	"github.com/mwatts/libgavran/internal/layout"
)

// Pager owns one open database file: its read-only mapping, the header
// read from page 0, and the single-writer/multi-reader lock that
// transactions take out.
type Pager struct {
	file    *diskio.File
	mapping *diskio.Mapping
	header  layout.Header

	// writerMu serialises writers: at most one writable transaction is
	// open at a time. Readers never take it.
	writerMu sync.Mutex

	diag *errs.Log
	path string
}

// Open opens the database file at path, creating and bootstrapping it
// if it doesn't exist.
func Open(path string, opts Options) (*Pager, error) {
	f, err := diskio.CreateFile(path)
	if err != nil {
		return nil, err
	}

	size, err := f.Size()
	if err != nil {
		f.Close()
		return nil, err
	}

	isNew := size == 0
	if isNew {
		size = opts.initialSize()
		if err := f.EnsureMinimumSize(size); err != nil {
			f.Close()
			return nil, err
		}
	}

	mapping, err := diskio.Map(f, 0, size)
	if err != nil {
		f.Close()
		return nil, err
	}

	p := &Pager{file: f, mapping: mapping, diag: errs.NewLog(), path: path}

	if isNew {
		p.header = layout.Header{
			Version:                 layout.Version,
			PageSize:                layout.PageSize,
			NumberOfPages:           uint64(size) / layout.PageSize,
			PagesPerMetadataSection: opts.pagesPerMetadataSection(),
		}
		if err := p.bootstrap(); err != nil {
			mapping.Unmap()
			f.Close()
			return nil, err
		}
		return p, nil
	}

	magic, hdr := layout.Decode(mapping.Bytes()[:layout.PageSize])
	if magic != layout.Magic {
		mapping.Unmap()
		f.Close()
		return nil, fmt.Errorf("pager: %s: bad magic: %w", path, errs.ErrCorruption)
	}
	if hdr.Version != layout.Version {
		mapping.Unmap()
		f.Close()
		return nil, fmt.Errorf("pager: %s: unsupported version %d: %w", path, hdr.Version, errs.ErrCorruption)
	}
	if hdr.PageSize != layout.PageSize {
		mapping.Unmap()
		f.Close()
		return nil, fmt.Errorf("pager: %s: page size %d does not match build's %d: %w", path, hdr.PageSize, layout.PageSize, errs.ErrCorruption)
	}
	if hdr.PagesPerMetadataSection != opts.pagesPerMetadataSection() {
		mapping.Unmap()
		f.Close()
		return nil, fmt.Errorf("pager: %s: pages per metadata section %d does not match %d: %w", path, hdr.PagesPerMetadataSection, opts.pagesPerMetadataSection(), errs.ErrCorruption)
	}
	if int64(hdr.NumberOfPages)*layout.PageSize != size {
		mapping.Unmap()
		f.Close()
		return nil, fmt.Errorf("pager: %s: header claims %d pages but file is %d bytes: %w", path, hdr.NumberOfPages, size, errs.ErrCorruption)
	}

	p.header = hdr
	return p, nil
}

// Close unmaps the file and closes the underlying descriptor.
func (p *Pager) Close() error {
	if err := p.mapping.Unmap(); err != nil {
		return err
	}
	return p.file.Close()
}

// NumberOfPages returns the file's fixed page count.
func (p *Pager) NumberOfPages() uint64 { return p.header.NumberOfPages }

// PagesPerMetadataSection returns the section size S this file was
// bootstrapped with.
func (p *Pager) PagesPerMetadataSection() uint64 { return p.header.PagesPerMetadataSection }

// Diagnostics returns the pager's bounded error log, a per-Pager
// stand-in for a thread-local diagnostic channel.
func (p *Pager) Diagnostics() *errs.Log { return p.diag }
