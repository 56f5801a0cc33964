/**
 * Copyright (c) 2022, Xerra Earth Observation Institute.
 * Copyright (c) 2025, Simeon Miteff.
 *
 * See LICENSE.TXT in the root directory of this source tree.
 */

// hkmount mounts a raw ext4 image file read-only through pkg/ext4 and
// walks its root directory, printing every entry it finds. It exists
// to exercise the ext4 driver against a real image from the command
// line rather than only from in-memory fixtures.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"strings"

	"github.com/hk-project/hkgo/pkg/cmdline"
	"github.com/hk-project/hkgo/pkg/ext4"
	"github.com/hk-project/hkgo/pkg/vfs"
)

// fileBlockDevice adapts an *os.File to vfs.BlockDevice by treating the
// page index as a block number scaled by the caller-supplied buffer
// length (the filesystem's block size).
type fileBlockDevice struct {
	f *os.File
}

func (d *fileBlockDevice) ReadPage(ctx context.Context, device string, buffer []byte, pageIndex uint64) error {
	offset := int64(pageIndex) * int64(len(buffer))
	_, err := d.f.ReadAt(buffer, offset)
	return err
}

func main() {
	bootArgs := flag.String("cmdline", "", "kernel-style boot cmdline to parse root= from, in lieu of a positional image path")
	flag.Parse()

	var path string
	switch {
	case flag.NArg() >= 1:
		path = flag.Arg(0)
	case *bootArgs != "":
		opts := cmdline.Parse(*bootArgs)
		if opts.Root == "" {
			fmt.Fprintln(os.Stderr, "cmdline contained no root=")
			os.Exit(1)
		}
		path = strings.TrimPrefix(opts.Root, "/dev/")
	default:
		fmt.Fprintf(os.Stderr, "Usage: %s [-cmdline \"root=...\"] <ext4-image>\n", os.Args[0])
		os.Exit(1)
	}

	f, err := os.Open(path)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}
	defer f.Close()

	// The superblock lives at byte offset 1024 and the group descriptor
	// table starts at block first_data_block+1; Mount reads both from
	// this 64KB prefix, so block sizes of 64KB, or a descriptor table
	// that runs past 64KB, fail to mount.
	head := make([]byte, 65536)
	if _, err := f.ReadAt(head, 0); err != nil {
		fmt.Fprintln(os.Stderr, "reading superblock prefix:", err)
		os.Exit(2)
	}

	device := &fileBlockDevice{f: f}
	fs, err := ext4.Mount(head, device, path)
	if err != nil {
		fmt.Fprintln(os.Stderr, "mount:", err)
		os.Exit(2)
	}

	ctx := context.Background()
	sb := fs.Superblock()
	fmt.Printf("mounted %s: block size %d, %d groups, inode size %d\n", path, sb.BlockSize, sb.GroupCount, sb.InodeSize)

	root, err := fs.Root(ctx)
	if err != nil {
		fmt.Fprintln(os.Stderr, "reading root inode:", err)
		os.Exit(2)
	}

	err = fs.Readdir(ctx, root, func(e ext4.DirEntry) bool {
		kind := "file"
		if e.FileType == vfs.Directory {
			kind = "dir"
		}
		fmt.Printf("%8d  %-4s  %s\n", e.Ino, kind, e.Name)
		return true
	})
	if err != nil {
		fmt.Fprintln(os.Stderr, "reading root directory:", err)
		os.Exit(2)
	}
}
