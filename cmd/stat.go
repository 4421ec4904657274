package cmd

import (
	"fmt"
	"time"

	"github.com/go-apfsro/apfsro/internal/catalog"
	"github.com/go-apfsro/apfsro/internal/statfs"
	"github.com/spf13/cobra"
)

var statCmd = &cobra.Command{
	Use:   "stat <path>",
	Short: "Show inode metadata for a path",
	Long: `Show the decoded inode fields (size, mode, timestamps, extended
attributes) for the file or directory at path.

Example:
  apfsro --device backup.dmg stat /Users/alice/.bash_profile`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runStat(args[0])
	},
}

var statFSCmd = &cobra.Command{
	Use:   "statfs",
	Short: "Show container- and volume-level space usage",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runStatFS()
	},
}

func init() {
	rootCmd.AddCommand(statCmd)
	rootCmd.AddCommand(statFSCmd)
}

func runStat(path string) error {
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

	fmt.Printf("object id:  %d\n", objectID)
	fmt.Printf("kind:       %s\n", kindLabel(v))
	fmt.Printf("size:       %d\n", v.UncompressedSize)
	fmt.Printf("mode:       %#o\n", v.Mode&0o7777)
	fmt.Printf("owner:      %d:%d\n", v.Owner, v.Group)
	fmt.Printf("created:    %s\n", time.Unix(0, int64(v.CreateTime)))
	fmt.Printf("modified:   %s\n", time.Unix(0, int64(v.ModTime)))

	xattrs, err := fs.Catalog.ListXattrs(objectID)
	if err != nil {
		return err
	}
	for _, x := range xattrs {
		fmt.Printf("xattr:      %s (%d bytes)\n", x.Name, len(x.Data))
	}
	return nil
}

func runStatFS() error {
	fs, err := openVolume(devicePath, mountOptions)
	if err != nil {
		return err
	}
	defer fs.Close()

	st, err := statfs.Compute(fs.Device, fs.ContainerSB, fs.ContainerOmapHeader(), fs.VolumeSB)
	if err != nil {
		return err
	}

	fmt.Printf("block size:    %d\n", st.BlockSize)
	fmt.Printf("total blocks:  %d\n", st.Blocks)
	fmt.Printf("free blocks:   %d\n", st.BlocksFree)
	fmt.Printf("files:         %d\n", st.Files)
	return nil
}
