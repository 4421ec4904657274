package cmd

import (
	"fmt"
	"strings"

	"github.com/go-apfsro/apfsro/internal/device"
	"github.com/go-apfsro/apfsro/internal/interfaces"
	"github.com/go-apfsro/apfsro/internal/mount"
)

// provisionalBlockSize is passed to the block-device constructors before
// the container superblock's authoritative size is known.
const provisionalBlockSize = 4096

// openDevice opens path as a block device, choosing the DMG-wrapped or raw
// backend by file extension the way the teacher's device layer expects its
// caller to.
func openDevice(path string) (interfaces.BlockDevice, error) {
	if strings.HasSuffix(strings.ToLower(path), ".dmg") {
		cfg, err := device.LoadDMGConfig()
		if err != nil {
			return nil, fmt.Errorf("load dmg config: %w", err)
		}
		return device.OpenDMG(path, cfg, provisionalBlockSize)
	}
	return device.OpenFile(path, provisionalBlockSize)
}

// openVolume opens devicePath and mounts the volume selected by
// mountOptions, returning the mounted filesystem; closing it also closes
// the device.
func openVolume(devicePath, mountOptions string) (*mount.Filesystem, error) {
	dev, err := openDevice(devicePath)
	if err != nil {
		return nil, err
	}
	fs, err := mount.Mount(dev, mountOptions, log)
	if err != nil {
		dev.Close()
		return nil, err
	}
	return fs, nil
}
