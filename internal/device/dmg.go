package device

import (
	"encoding/binary"
	"fmt"
	"os"
	"path/filepath"

	"github.com/go-apfsro/apfsro/internal/types"
	"github.com/spf13/viper"
)

// kolyTrailerSize is the size of the UDIF 'koly' trailer block that ends a
// DMG-wrapped disk image.
const kolyTrailerSize = 512

// kolyMagic is "koly" read as a big-endian uint32, the signature at the
// start of the UDIF trailer.
const kolyMagic uint32 = 0x6b6f6c79

// DMGConfig holds the mount-time options understood for DMG-wrapped images,
// loaded through viper the same way the rest of the CLI loads its
// configuration: a named config file searched across a small set of
// directories. APFSRO_-prefixed environment variables override only keys
// that a found config file sets; with no config file, LoadDMGConfig returns
// the zero value and the environment is not consulted.
type DMGConfig struct {
	// DataForkOffset is the byte offset, within the DMG file, where the raw
	// APFS container data fork begins. Zero means "detect from the koly
	// trailer".
	DataForkOffset int64 `mapstructure:"data_fork_offset"`
	// DataForkLength is the byte length of the data fork. Zero means
	// "detect from the koly trailer".
	DataForkLength int64 `mapstructure:"data_fork_length"`
}

// LoadDMGConfig reads apfs-config.{yaml,yml,json} from the current
// directory, $HOME/.apfsro, or /etc/apfsro, falling back to the zero value
// (full auto-detection) if no config file is present.
func LoadDMGConfig() (*DMGConfig, error) {
	v := viper.New()
	v.SetConfigName("apfs-config")
	v.SetEnvPrefix("APFSRO")
	v.AutomaticEnv()

	v.AddConfigPath(".")
	if home, err := os.UserHomeDir(); err == nil {
		v.AddConfigPath(filepath.Join(home, ".apfsro"))
	}
	v.AddConfigPath("/etc/apfsro")

	cfg := &DMGConfig{}
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("read dmg config: %w", err)
		}
		return cfg, nil
	}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("parse dmg config: %w", err)
	}
	return cfg, nil
}

// koly layout, as documented by the (unofficial) UDIF reverse-engineering
// references: a 512-byte trailer at the end of the file, big-endian fields.
type kolyTrailer struct {
	Signature      uint32
	Version        uint32
	HeaderSize     uint32
	Flags          uint32
	RunningDataForkOffset uint64
	DataForkOffset uint64
	DataForkLength uint64
}

// detectDataFork reads the koly trailer at the end of f and returns the
// offset and length of the data fork it describes.
func detectDataFork(f *os.File) (offset, length int64, err error) {
	info, err := f.Stat()
	if err != nil {
		return 0, 0, fmt.Errorf("stat dmg: %w", err)
	}
	if info.Size() < kolyTrailerSize {
		return 0, 0, fmt.Errorf("dmg file too small to contain a koly trailer")
	}

	buf := make([]byte, kolyTrailerSize)
	if _, err := f.ReadAt(buf, info.Size()-kolyTrailerSize); err != nil {
		return 0, 0, fmt.Errorf("read koly trailer: %w", err)
	}

	var t kolyTrailer
	t.Signature = binary.BigEndian.Uint32(buf[0:4])
	t.Version = binary.BigEndian.Uint32(buf[4:8])
	t.HeaderSize = binary.BigEndian.Uint32(buf[8:12])
	t.Flags = binary.BigEndian.Uint32(buf[12:16])
	t.RunningDataForkOffset = binary.BigEndian.Uint64(buf[16:24])
	t.DataForkOffset = binary.BigEndian.Uint64(buf[24:32])
	t.DataForkLength = binary.BigEndian.Uint64(buf[32:40])

	if t.Signature != kolyMagic {
		return 0, 0, fmt.Errorf("not a UDIF image: missing koly signature")
	}

	return int64(t.DataForkOffset), int64(t.DataForkLength), nil
}

// OpenDMG opens a DMG-wrapped disk image and returns a FileDevice reading
// its embedded APFS container's data fork, honoring any offset/length
// override supplied in cfg.
func OpenDMG(path string, cfg *DMGConfig, blockSize uint32) (*FileDevice, error) {
	raw, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}

	offset, length := cfg.DataForkOffset, cfg.DataForkLength
	if offset == 0 && length == 0 {
		offset, length, err = detectDataFork(raw)
		if err != nil {
			raw.Close()
			return nil, fmt.Errorf("detect data fork in %s: %w", path, err)
		}
	}
	raw.Close()

	return openDataFork(path, offset, length, blockSize)
}

// openDataFork opens path and wraps it as a FileDevice restricted to the
// byte range [offset, offset+length).
func openDataFork(path string, offset, length int64, blockSize uint32) (*FileDevice, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	return &FileDevice{
		file:        f,
		base:        offset,
		size:        length,
		blockSize:   blockSize,
		cache:       make(map[types.Paddr][]byte),
		cacheBudget: defaultCacheBudget,
	}, nil
}
