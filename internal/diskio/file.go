// Package diskio implements the platform file primitives the pager
// needs: create/open with parent-directory durability barriers,
// explicit preallocation, a read-only shared mapping, and an explicit
// positional write path kept separate from the mapping so that reads
// (via the mapping) and writes (via pwrite) stay coherent across
// platforms.
package diskio

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/mwatts/libgavran/errs"
	"golang.org/x/sys/unix"
)

// File is an open database file plus the directory durability barriers
// the pager needs around it.
type File struct {
	f    *os.File
	path string
}

// CreateFile opens path, creating it (and any missing parent
// directories, with owner-only permissions) if it doesn't exist. A
// durability barrier is issued on the parent directory after each
// directory is created and again after the file itself is created.
func CreateFile(path string) (*File, error) {
	if path == "" {
		return nil, fmt.Errorf("diskio: empty path: %w", errs.ErrInvalidArgument)
	}

	dir := filepath.Dir(path)
	if err := ensureDir(dir); err != nil {
		return nil, err
	}

	if info, err := os.Stat(path); err == nil && info.IsDir() {
		return nil, fmt.Errorf("diskio: %s: %w", path, errs.ErrNotAFile)
	}

	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0o600)
	if err != nil {
		return nil, fmt.Errorf("diskio: opening %s: %w", path, errs.ErrIO)
	}

	if err := fsyncDir(dir); err != nil {
		f.Close()
		return nil, err
	}

	return &File{f: f, path: path}, nil
}

// ensureDir creates every missing component of dir with owner-only
// permissions, fsyncing each newly-created directory's parent.
func ensureDir(dir string) error {
	if dir == "" || dir == "." {
		return nil
	}

	if info, err := os.Stat(dir); err == nil {
		if !info.IsDir() {
			return fmt.Errorf("diskio: %s: %w", dir, errs.ErrNotAFile)
		}
		return nil
	}

	parent := filepath.Dir(dir)
	if parent != dir {
		if err := ensureDir(parent); err != nil {
			return err
		}
	}

	if err := os.Mkdir(dir, 0o700); err != nil && !os.IsExist(err) {
		return fmt.Errorf("diskio: creating %s: %w", dir, errs.ErrIO)
	}

	return fsyncDir(parent)
}

// fsyncDir flushes dir's entry list to stable storage.
func fsyncDir(dir string) error {
	if dir == "" {
		return nil
	}
	d, err := os.Open(dir)
	if err != nil {
		return fmt.Errorf("diskio: opening directory %s for fsync: %w", dir, errs.ErrIO)
	}
	defer d.Close()

	if err := d.Sync(); err != nil {
		return fmt.Errorf("diskio: fsyncing directory %s: %w", dir, errs.ErrIO)
	}
	return nil
}

// EnsureMinimumSize grows f to at least n bytes using an explicit
// preallocation primitive (not a truncate-induced hole), and is a
// no-op if the file is already at least n bytes. A parent-directory
// durability barrier follows a successful grow.
func (f *File) EnsureMinimumSize(n int64) error {
	info, err := f.f.Stat()
	if err != nil {
		return fmt.Errorf("diskio: stat %s: %w", f.path, errs.ErrIO)
	}
	if info.Size() >= n {
		return nil
	}

	if err := unix.Fallocate(int(f.f.Fd()), 0, 0, n); err != nil {
		return fmt.Errorf("diskio: preallocating %s to %d bytes: %w", f.path, n, errs.ErrNoSpace)
	}

	return fsyncDir(filepath.Dir(f.path))
}

// Size returns the file's current length in bytes.
func (f *File) Size() (int64, error) {
	info, err := f.f.Stat()
	if err != nil {
		return 0, fmt.Errorf("diskio: stat %s: %w", f.path, errs.ErrIO)
	}
	return info.Size(), nil
}

// Fd returns the underlying file descriptor, for use by Map.
func (f *File) Fd() int { return int(f.f.Fd()) }

// Sync issues a durability barrier on the file's data.
func (f *File) Sync() error {
	if err := unix.Fsync(f.Fd()); err != nil {
		return fmt.Errorf("diskio: fsyncing %s: %w", f.path, errs.ErrIO)
	}
	return nil
}

// Close closes the underlying file descriptor, surfacing any
// deferred write error the kernel reports at close time.
func (f *File) Close() error {
	if err := f.f.Close(); err != nil {
		return fmt.Errorf("diskio: closing %s: %w", f.path, errs.ErrIO)
	}
	return nil
}
