package diskio

import (
	"fmt"

	"github.com/mwatts/libgavran/errs"
	"golang.org/x/sys/unix"
)

// WriteAt writes buf to f at the given byte offset using an explicit
// positional write, retrying on signal interruption and looping until
// every byte is written.
func (f *File) WriteAt(offset int64, buf []byte) error {
	for len(buf) > 0 {
		n, err := unix.Pwrite(f.Fd(), buf, offset)
		if err != nil {
			if err == unix.EINTR {
				continue
			}
			return fmt.Errorf("diskio: writing %s at offset %d: %w", f.path, offset, errs.ErrIO)
		}
		if n == 0 {
			return fmt.Errorf("diskio: writing %s at offset %d: %w", f.path, offset, errs.ErrIO)
		}
		buf = buf[n:]
		offset += int64(n)
	}
	return nil
}
