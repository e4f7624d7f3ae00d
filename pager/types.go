// Package pager implements a transactional, page-oriented storage
// core: a single file addressed as fixed-size 8 KiB pages, a
// bitmap-backed free-space manager, O(1) per-page metadata, and a
// begin/modify/commit/close transaction envelope.
package pager

import "github.com/mwatts/libgavran/internal/layout"

// PageNum identifies a page by its 64-bit index in the file.
type PageNum = uint64

// DefaultInitialSize is the file size a brand-new database is
// preallocated to: 128 KiB, i.e. 16 pages.
const DefaultInitialSize = 128 * 1024

// Options configures Open. The zero value selects the defaults.
type Options struct {
	// InitialSize overrides the preallocated size of a brand-new
	// database file. Zero selects DefaultInitialSize. Ignored when
	// opening an existing file.
	InitialSize int64

	// PagesPerMetadataSection overrides the section size S used when
	// bootstrapping a brand-new database file. Zero selects
	// layout.DefaultPagesPerMetadataSection. When opening an existing
	// file, it must match the value the file was bootstrapped with.
	PagesPerMetadataSection uint64
}

func (o Options) initialSize() int64 {
	if o.InitialSize > 0 {
		return o.InitialSize
	}
	return DefaultInitialSize
}

func (o Options) pagesPerMetadataSection() uint64 {
	if o.PagesPerMetadataSection > 0 {
		return o.PagesPerMetadataSection
	}
	return layout.DefaultPagesPerMetadataSection
}

// requiredPages returns how many contiguous physical pages a value of
// overflowSize bytes needs: max(1, ceil(overflowSize/PageSize)).
func requiredPages(overflowSize uint32) uint64 {
	if overflowSize == 0 {
		return 1
	}
	n := ceilDiv(uint64(overflowSize), layout.PageSize)
	if n == 0 {
		n = 1
	}
	return n
}

func ceilDiv(a, b uint64) uint64 {
	return (a + b - 1) / b
}
