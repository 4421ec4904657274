package cmd

import (
	"fmt"
	"os"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

var (
	devicePath   string
	mountOptions string
	verbose      bool

	log = logrus.New()
)

var rootCmd = &cobra.Command{
	Use:   "apfsro",
	Short: "Read-only APFS container and volume explorer",
	Long: `apfsro is a read-only command-line tool for exploring Apple File
System (APFS) containers: listing directories, reading file metadata, and
extracting file content directly from a raw disk, partition, or .dmg image.

It never writes to the device and never replays the journal.`,
	Version: "0.1.0-dev",
}

// Execute adds all child commands to the root command and runs it.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&devicePath, "device", "", "path to the container device, disk image, or .dmg file")
	rootCmd.PersistentFlags().StringVar(&mountOptions, "mount-options", "", "comma-separated mount options (vol=, uid=, gid=)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable debug-level logging")
	rootCmd.MarkPersistentFlagRequired("device")

	cobra.OnInitialize(func() {
		if verbose {
			log.SetLevel(logrus.DebugLevel)
		}
	})
}
