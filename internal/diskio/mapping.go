package diskio

import (
	"fmt"

	"github.com/mwatts/libgavran/errs"
	"golang.org/x/sys/unix"
)

// Mapping is a read-only shared mapping of a region of a File.
type Mapping struct {
	data []byte
}

// Map creates a read-only shared mapping of size bytes starting at
// offset, which must be a multiple of the page size. Writers never
// touch this memory; all writes go through File.WriteAt so that reads
// via the mapping and writes via pwrite stay coherent.
func Map(f *File, offset, size int64) (*Mapping, error) {
	data, err := unix.Mmap(f.Fd(), offset, int(size), unix.PROT_READ, unix.MAP_SHARED)
	if err != nil {
		return nil, fmt.Errorf("diskio: mapping %s: %w", f.path, errs.ErrIO)
	}
	return &Mapping{data: data}, nil
}

// Unmap releases the mapping. The Mapping must not be used afterward.
func (m *Mapping) Unmap() error {
	if m.data == nil {
		return nil
	}
	if err := unix.Munmap(m.data); err != nil {
		return fmt.Errorf("diskio: unmapping: %w", errs.ErrIO)
	}
	m.data = nil
	return nil
}

// Bytes returns the entire mapped region. Callers must not retain
// slices derived from it past Unmap.
func (m *Mapping) Bytes() []byte { return m.data }

// Slice returns the mapped bytes in [offset, offset+length), or nil if
// the range falls outside the mapping.
func (m *Mapping) Slice(offset, length int64) []byte {
	if m.data == nil || offset < 0 || length < 0 || offset+length > int64(len(m.data)) {
		return nil
	}
	return m.data[offset : offset+length]
}
