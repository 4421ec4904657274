package cmd

import (
	"context"
	"fmt"

	"github.com/go-apfsro/apfsro/internal/fuseadapter"
	"github.com/google/uuid"
	"github.com/jacobsa/fuse"
	"github.com/jacobsa/fuse/fuseutil"
	"github.com/spf13/cobra"
)

var mountCmd = &cobra.Command{
	Use:   "mount <mountpoint>",
	Short: "Mount the volume read-only via FUSE",
	Long: `Mount the volume selected by --mount-options at mountpoint using
FUSE, and block until it is unmounted.

Example:
  apfsro --device backup.dmg mount /mnt/backup`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runMount(args[0])
	},
}

func init() {
	rootCmd.AddCommand(mountCmd)
}

func runMount(mountpoint string) error {
	// traceID has no on-disk meaning; it tags the log entries runMount
	// itself writes so concurrent mounts can be told apart in a shared log
	// stream. openVolume and the packages below it log without it.
	traceID := uuid.New().String()
	entry := log.WithField("mount_id", traceID)

	fs, err := openVolume(devicePath, mountOptions)
	if err != nil {
		return err
	}
	defer fs.Close()

	server := fuseutil.NewFileSystemServer(fuseadapter.New(fs))

	mfs, err := fuse.Mount(mountpoint, server, &fuse.MountConfig{
		FSName:   "apfsro",
		ReadOnly: true,
	})
	if err != nil {
		return fmt.Errorf("fuse.Mount: %w", err)
	}

	entry.WithField("mountpoint", mountpoint).Info("mounted")
	return mfs.Join(context.Background())
}
