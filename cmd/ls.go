package cmd

import (
	"fmt"

	"github.com/go-apfsro/apfsro/internal/catalog"
	"github.com/go-apfsro/apfsro/internal/types"
	"github.com/spf13/cobra"
)

var lsCmd = &cobra.Command{
	Use:   "ls [path]",
	Short: "List a directory's contents",
	Long: `List the directory entries at path within the mounted volume.

Examples:
  apfsro --device backup.dmg ls /
  apfsro --device backup.dmg ls /Users/alice/Documents`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		path := "/"
		if len(args) == 1 {
			path = args[0]
		}
		return runLs(path)
	},
}

func init() {
	rootCmd.AddCommand(lsCmd)
}

func runLs(path string) error {
	fs, err := openVolume(devicePath, mountOptions)
	if err != nil {
		return err
	}
	defer fs.Close()

	dirID, err := resolvePath(fs, path)
	if err != nil {
		return fmt.Errorf("resolve %s: %w", path, err)
	}

	entries, err := fs.Catalog.ListChildren(dirID)
	if err != nil {
		return fmt.Errorf("list %s: %w", path, err)
	}

	for _, e := range entries {
		_, value, err := fs.Catalog.Find(catalog.InodeKey(e.FileID))
		if err != nil {
			return fmt.Errorf("stat %s: %w", e.Name, err)
		}
		v, err := catalog.DecodeInode(value)
		if err != nil {
			return err
		}
		fmt.Printf("%-8s %10d  %s\n", kindLabel(v), v.UncompressedSize, e.Name)
	}
	return nil
}

// kindLabel renders an inode's mode bits the way `ls -l`'s first column
// does: d for directory, l for symlink, - for a regular file.
func kindLabel(v types.JInodeValT) string {
	switch {
	case catalog.IsDirectory(v):
		return "d"
	case catalog.IsSymlink(v):
		return "l"
	default:
		return "-"
	}
}
