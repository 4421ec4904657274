package cmd

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/go-apfsro/apfsro/internal/apfserr"
	"github.com/go-apfsro/apfsro/internal/catalog"
	"github.com/go-apfsro/apfsro/internal/inode"
	"github.com/go-apfsro/apfsro/internal/types"
	"github.com/spf13/cobra"
)

var catCmd = &cobra.Command{
	Use:   "cat <path>",
	Short: "Print a file's contents to stdout",
	Long: `Resolve path to a regular file and stream its contents to stdout,
following the file's extents and zero-filling any holes.

Example:
  apfsro --device backup.dmg cat /Users/alice/.bash_profile`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runCat(args[0])
	},
}

func init() {
	rootCmd.AddCommand(catCmd)
}

func runCat(path string) error {
	fs, err := openVolume(devicePath, mountOptions)
	if err != nil {
		return err
	}
	defer fs.Close()

	objectID, err := resolvePath(fs, path)
	if err != nil {
		return fmt.Errorf("resolve %s: %w", path, err)
	}

	_, value, err := fs.Catalog.Find(catalog.InodeKey(objectID))
	if err != nil {
		return fmt.Errorf("stat %s: %w", path, err)
	}
	v, err := catalog.DecodeInode(value)
	if err != nil {
		return err
	}
	if !catalog.IsRegular(v) {
		return fmt.Errorf("%s is not a regular file", path)
	}

	resolver := inode.NewResolver(fs.Catalog, fs.ContainerSB.NxBlockSize)
	ino := &inode.Inode{ObjectID: v.PrivateID}
	blockSize := uint64(fs.ContainerSB.NxBlockSize)

	remaining := v.UncompressedSize
	var iblock uint64
	for remaining > 0 {
		mapping, err := resolver.GetBlock(ino, iblock, 1)
		if err != nil {
			if errors.Is(err, apfserr.ErrNotFound) {
				break
			}
			return err
		}

		n := blockSize
		if n > remaining {
			n = remaining
		}

		if mapping.Hole {
			if _, err := io.CopyN(os.Stdout, zeroReader{}, int64(n)); err != nil {
				return err
			}
		} else {
			data, err := fs.Device.ReadBlock(types.Paddr(mapping.Physical))
			if err != nil {
				return err
			}
			if _, err := os.Stdout.Write(data[:n]); err != nil {
				return err
			}
		}

		remaining -= n
		iblock++
	}
	return nil
}

// zeroReader produces an endless stream of zero bytes, for filling holes
// in a sparse file's output without allocating a hole-sized buffer.
type zeroReader struct{}

func (zeroReader) Read(p []byte) (int, error) {
	for i := range p {
		p[i] = 0
	}
	return len(p), nil
}
