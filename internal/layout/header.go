// Package layout defines the on-disk shapes the pager works with: the
// file header on page 0, the packed page-metadata records, and the
// O(1) placement math that locates a page's metadata record without a
// centralised index.
package layout

import "encoding/binary"

const (
	// PageSize is the size in bytes of every page, including page 0.
	PageSize = 8192

	// DefaultPagesPerMetadataSection is the default range size: 2^20
	// pages (8 GiB of payload per range), chosen so a single overflow
	// value up to 4 GiB always fits inside one range's payload span.
	DefaultPagesPerMetadataSection = 1 << 20

	// Version is the on-disk format version this build writes and
	// requires on open.
	Version uint32 = 1
)

// Magic identifies a file as belonging to this pager. It is written
// verbatim to the first 8 bytes of page 0.
var Magic = [8]byte{'P', 'A', 'G', 'E', 'R', 'D', 'B', '1'}

// headerFieldsSize is the byte length of the fixed fields before the
// zero-filled padding that rounds the header out to a full page.
const headerFieldsSize = 8 + 4 + 4 + 8 + 8

// Header is the file header stored at page 0.
type Header struct {
	Version                 uint32
	PageSize                uint32
	NumberOfPages           uint64
	PagesPerMetadataSection uint64
}

// Encode writes h to buf, which must be at least PageSize bytes. Bytes
// beyond the fixed fields are zero-filled.
func (h *Header) Encode(buf []byte) {
	if len(buf) < PageSize {
		panic("layout: header buffer shorter than one page")
	}
	copy(buf[0:8], Magic[:])
	binary.LittleEndian.PutUint32(buf[8:12], h.Version)
	binary.LittleEndian.PutUint32(buf[12:16], h.PageSize)
	binary.LittleEndian.PutUint64(buf[16:24], h.NumberOfPages)
	binary.LittleEndian.PutUint64(buf[24:32], h.PagesPerMetadataSection)
	for i := headerFieldsSize; i < PageSize; i++ {
		buf[i] = 0
	}
}

// Decode reads a Header from buf, which must be at least PageSize
// bytes. It does not validate magic or version; callers check those
// against the build's own Magic/Version.
func Decode(buf []byte) (magic [8]byte, h Header) {
	copy(magic[:], buf[0:8])
	h.Version = binary.LittleEndian.Uint32(buf[8:12])
	h.PageSize = binary.LittleEndian.Uint32(buf[12:16])
	h.NumberOfPages = binary.LittleEndian.Uint64(buf[16:24])
	h.PagesPerMetadataSection = binary.LittleEndian.Uint64(buf[24:32])
	return magic, h
}
