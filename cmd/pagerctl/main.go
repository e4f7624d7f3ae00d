// Command pagerctl exercises the pager package from the command line:
// create a database file, allocate and free pages, write and read back
// values, and dump the file's header/bitmap/metadata state.
package main

import (
	"fmt"
	"os"

	"github.com/alecthomas/kong"

	"github.com/mwatts/libgavran/internal/layout"
	"github.com/mwatts/libgavran/pager"
)

var cli struct {
	Create CreateCmd `cmd:"" help:"Create (or open) a database file and print its header"`
	Alloc  AllocCmd  `cmd:"" help:"Allocate a page or overflow run"`
	Free   FreeCmd   `cmd:"" help:"Free a page"`
	Put    PutCmd    `cmd:"" help:"Write bytes into a page's run"`
	Get    GetCmd    `cmd:"" help:"Read bytes out of a page's run"`
	Dump   DumpCmd   `cmd:"" help:"Dump header, bitmap, and metadata state"`
}

func main() {
	ctx := kong.Parse(&cli, kong.Name("pagerctl"), kong.Description("Inspect and exercise a pager database file."))
	if err := ctx.Run(); err != nil {
		fmt.Fprintln(os.Stderr, "pagerctl:", err)
		os.Exit(1)
	}
}

// CreateCmd opens (bootstrapping if necessary) a database file.
type CreateCmd struct {
	Path string `arg:"" help:"Path to database file" type:"path"`
}

func (c *CreateCmd) Run() error {
	p, err := pager.Open(c.Path, pager.Options{})
	if err != nil {
		return err
	}
	defer p.Close()

	fmt.Printf("opened %s\n", c.Path)
	fmt.Printf("  pages: %d\n", p.NumberOfPages())
	fmt.Printf("  pages per metadata section: %d\n", p.PagesPerMetadataSection())
	return nil
}

// AllocCmd allocates a single page or, with --size, a multi-page
// overflow run, optionally near a given page number.
type AllocCmd struct {
	Path string `arg:"" help:"Path to database file" type:"path"`
	Size uint32 `help:"value size in bytes; 0 allocates a single empty page"`
	Near uint64 `help:"prefer allocating near this page number"`
}

func (c *AllocCmd) Run() error {
	p, err := pager.Open(c.Path, pager.Options{})
	if err != nil {
		return err
	}
	defer p.Close()

	txn, err := p.CreateTransaction(true)
	if err != nil {
		return err
	}
	defer txn.Close()

	page, err := txn.AllocatePage(c.Size, c.Near)
	if err != nil {
		return err
	}
	if err := txn.Commit(); err != nil {
		return err
	}

	fmt.Printf("allocated page %d\n", page)
	return nil
}

// FreeCmd frees the page (or run) starting at page.
type FreeCmd struct {
	Path string `arg:"" help:"Path to database file" type:"path"`
	Page uint64 `arg:"" help:"page number to free"`
}

func (c *FreeCmd) Run() error {
	p, err := pager.Open(c.Path, pager.Options{})
	if err != nil {
		return err
	}
	defer p.Close()

	txn, err := p.CreateTransaction(true)
	if err != nil {
		return err
	}
	defer txn.Close()

	if err := txn.FreePage(c.Page); err != nil {
		return err
	}
	if err := txn.Commit(); err != nil {
		return err
	}

	fmt.Printf("freed page %d\n", c.Page)
	return nil
}

// PutCmd overwrites page's run with the bytes of Data (truncated or
// zero-padded to the run's length).
type PutCmd struct {
	Path string `arg:"" help:"Path to database file" type:"path"`
	Page uint64 `arg:"" help:"page number"`
	Data string `arg:"" help:"bytes to write"`
}

func (c *PutCmd) Run() error {
	p, err := pager.Open(c.Path, pager.Options{})
	if err != nil {
		return err
	}
	defer p.Close()

	txn, err := p.CreateTransaction(true)
	if err != nil {
		return err
	}
	defer txn.Close()

	buf, overflow, err := txn.ModifyPage(c.Page)
	if err != nil {
		return err
	}
	n := copy(buf, c.Data)
	for i := n; i < len(buf); i++ {
		buf[i] = 0
	}

	if err := txn.Commit(); err != nil {
		return err
	}

	fmt.Printf("wrote %d byte(s) into page %d (run holds %d logical bytes)\n", n, c.Page, overflow)
	return nil
}

// GetCmd prints the bytes currently stored at page.
type GetCmd struct {
	Path string `arg:"" help:"Path to database file" type:"path"`
	Page uint64 `arg:"" help:"page number"`
}

func (c *GetCmd) Run() error {
	p, err := pager.Open(c.Path, pager.Options{})
	if err != nil {
		return err
	}
	defer p.Close()

	txn, err := p.CreateTransaction(false)
	if err != nil {
		return err
	}
	defer txn.Close()

	data, overflow, err := txn.GetPage(c.Page)
	if err != nil {
		return err
	}

	n := len(data)
	if overflow > 0 && uint32(n) > overflow {
		n = int(overflow)
	}
	fmt.Printf("page %d: %d logical byte(s)\n", c.Page, overflow)
	fmt.Printf("%q\n", data[:n])
	return nil
}

// DumpCmd prints the header and, for every page, its bitmap bit and
// metadata flags.
type DumpCmd struct {
	Path string `arg:"" help:"Path to database file" type:"path"`
}

func (c *DumpCmd) Run() error {
	p, err := pager.Open(c.Path, pager.Options{})
	if err != nil {
		return err
	}
	defer p.Close()

	fmt.Printf("path: %s\n", c.Path)
	fmt.Printf("pages: %d\n", p.NumberOfPages())
	fmt.Printf("pages per metadata section: %d\n", p.PagesPerMetadataSection())

	txn, err := p.CreateTransaction(false)
	if err != nil {
		return err
	}
	defer txn.Close()

	for page := uint64(0); page < p.NumberOfPages(); page++ {
		data, overflow, err := txn.GetPage(page)
		if err != nil {
			return err
		}
		required := uint64(len(data)) / layout.PageSize

		bitmapPage, byteOff, bit := layout.BitLocation(page)
		bitmap, _, err := txn.GetPage(bitmapPage)
		if err != nil {
			return err
		}
		busy := bitmap[byteOff]&(1<<bit) != 0

		flags, err := txn.DescribeFlags(page)
		if err != nil {
			return err
		}
		fmt.Printf("  page %5d  busy=%-5t flags=%-28s overflow_size=%-8d run=%d page(s)\n", page, busy, flags, overflow, required)
	}
	return nil
}
