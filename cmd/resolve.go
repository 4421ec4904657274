package cmd

import (
	"fmt"
	"strings"

	"github.com/go-apfsro/apfsro/internal/catalog"
	"github.com/go-apfsro/apfsro/internal/mount"
	"github.com/go-apfsro/apfsro/internal/types"
)

// resolvePath walks path's components from the volume's root directory,
// one DIR_REC lookup per component, and returns the object id of the final
// component.
func resolvePath(fs *mount.Filesystem, path string) (uint64, error) {
	objectID := uint64(types.RootDirInoNum)
	for _, name := range strings.Split(path, "/") {
		if name == "" {
			continue
		}
		_, value, err := fs.Catalog.Find(catalog.DirRecKey(objectID, name))
		if err != nil {
			return 0, fmt.Errorf("%s: %w", name, err)
		}
		entry, err := catalog.DecodeDirRec(catalog.DirRecKey(objectID, name), value)
		if err != nil {
			return 0, err
		}
		objectID = entry.FileID
	}
	return objectID, nil
}
