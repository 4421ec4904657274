// Package fuseadapter binds a mounted volume to jacobsa/fuse, exposing it
// as a read-only FUSE filesystem. It is a thin translation layer: every
// method either decodes a catalog record already fetched by
// internal/catalog or resolves a block through internal/inode, and
// converts this package's error taxonomy into the errno values fuse
// expects.
package fuseadapter

import (
	"context"
	"errors"
	"os"
	"sync"
	"syscall"
	"time"

	"github.com/go-apfsro/apfsro/internal/apfserr"
	"github.com/go-apfsro/apfsro/internal/catalog"
	"github.com/go-apfsro/apfsro/internal/inode"
	"github.com/go-apfsro/apfsro/internal/mount"
	"github.com/go-apfsro/apfsro/internal/statfs"
	"github.com/go-apfsro/apfsro/internal/types"
	"github.com/jacobsa/fuse"
	"github.com/jacobsa/fuse/fuseops"
	"github.com/jacobsa/fuse/fuseutil"
)

// symlinkXattr is the extended attribute APFS uses to store a symbolic
// link's target, in lieu of a dedicated on-disk record type.
const symlinkXattr = "com.apple.fs.symlink"

// never marks an attribute/entry cache entry as valid indefinitely: this
// reader never observes the volume change underneath it during one mount's
// lifetime.
var never = time.Now().Add(365 * 24 * time.Hour)

// FileSystem implements fuseutil.FileSystem over one mounted volume.
// Every write-path method is inherited from NotImplementedFileSystem,
// which answers ENOSYS to the kernel.
type FileSystem struct {
	fuseutil.NotImplementedFileSystem

	fs      *mount.Filesystem
	extents *inode.Resolver

	mu     sync.Mutex
	inodes map[uint64]*inode.Inode
}

// New returns a FileSystem ready to be wrapped with
// fuseutil.NewFileSystemServer and passed to fuse.Mount.
func New(fs *mount.Filesystem) *FileSystem {
	return &FileSystem{
		fs:      fs,
		extents: inode.NewResolver(fs.Catalog, fs.ContainerSB.NxBlockSize),
		inodes:  make(map[uint64]*inode.Inode),
	}
}

// toObjectID translates a FUSE inode id to the catalog object id it names.
// FUSE reserves inode 1 for the mount root; APFS's own root directory
// object id is RootDirInoNum (2).
func toObjectID(id fuseops.InodeID) uint64 {
	if id == fuseops.RootInodeID {
		return types.RootDirInoNum
	}
	return uint64(id)
}

// toFuseID is toObjectID's inverse.
func toFuseID(objectID uint64) fuseops.InodeID {
	if objectID == types.RootDirInoNum {
		return fuseops.RootInodeID
	}
	return fuseops.InodeID(objectID)
}

// translate maps this package's error taxonomy onto the errno values the
// kernel expects back from a fuseutil.FileSystem method.
func translate(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, apfserr.ErrNotFound):
		return fuse.ENOENT
	default:
		return fuse.EIO
	}
}

// inodeFor returns the cached extent-resolution state for the inode whose
// file extents are owned by extentID (a j_inode_val_t's PrivateID), creating
// it on first reference. Caching is keyed by extentID rather than the
// FUSE/catalog inode id since that's what the cached extent is valid for.
func (fs *FileSystem) inodeFor(extentID uint64) *inode.Inode {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	ino, ok := fs.inodes[extentID]
	if !ok {
		ino = &inode.Inode{ObjectID: extentID}
		fs.inodes[extentID] = ino
	}
	return ino
}

func (fs *FileSystem) lookupInode(objectID uint64) (types.JInodeValT, error) {
	_, value, err := fs.fs.Catalog.Find(catalog.InodeKey(objectID))
	if err != nil {
		return types.JInodeValT{}, err
	}
	return catalog.DecodeInode(value)
}

func modeFor(v types.JInodeValT) os.FileMode {
	perm := os.FileMode(v.Mode & 0o7777)
	switch {
	case catalog.IsDirectory(v):
		return os.ModeDir | perm
	case catalog.IsSymlink(v):
		return os.ModeSymlink | perm
	default:
		return perm
	}
}

// apfsTime converts an on-disk APFS timestamp (nanoseconds since the Unix
// epoch) to a time.Time.
func apfsTime(ns uint64) time.Time {
	return time.Unix(0, int64(ns))
}

func (fs *FileSystem) attributesFor(v types.JInodeValT) fuseops.InodeAttributes {
	nlink := uint32(1)
	if v.NchildrenOrNlink > 0 {
		nlink = uint32(v.NchildrenOrNlink)
	}
	uid, gid := v.Owner, v.Group
	if fs.fs.UIDOverride != nil {
		uid = *fs.fs.UIDOverride
	}
	if fs.fs.GIDOverride != nil {
		gid = *fs.fs.GIDOverride
	}
	return fuseops.InodeAttributes{
		Size:   v.UncompressedSize,
		Nlink:  nlink,
		Mode:   modeFor(v),
		Atime:  apfsTime(v.AccessTime),
		Mtime:  apfsTime(v.ModTime),
		Ctime:  apfsTime(v.ChangeTime),
		Crtime: apfsTime(v.CreateTime),
		Uid:    uid,
		Gid:    gid,
	}
}

func (fs *FileSystem) StatFS(ctx context.Context, op *fuseops.StatFSOp) error {
	st, err := statfs.Compute(fs.fs.Device, fs.fs.ContainerSB, fs.fs.ContainerOmapHeader(), fs.fs.VolumeSB)
	if err != nil {
		return translate(err)
	}
	op.BlockSize = st.BlockSize
	op.Blocks = st.Blocks
	op.BlocksFree = st.BlocksFree
	op.BlocksAvailable = st.BlocksAvail
	op.IoSize = st.BlockSize
	return nil
}

func (fs *FileSystem) LookUpInode(ctx context.Context, op *fuseops.LookUpInodeOp) error {
	parentID := toObjectID(op.Parent)

	_, value, err := fs.fs.Catalog.Find(catalog.DirRecKey(parentID, op.Name))
	if err != nil {
		if errors.Is(err, apfserr.ErrNotFound) {
			return nil // same as ENOENT when op.Entry.Child is left zero
		}
		return translate(err)
	}
	entry, err := catalog.DecodeDirRec(catalog.DirRecKey(parentID, op.Name), value)
	if err != nil {
		return translate(err)
	}

	v, err := fs.lookupInode(entry.FileID)
	if err != nil {
		return translate(err)
	}

	op.Entry.Child = toFuseID(entry.FileID)
	op.Entry.Attributes = fs.attributesFor(v)
	op.Entry.AttributesExpiration = never
	op.Entry.EntryExpiration = never
	return nil
}

func (fs *FileSystem) GetInodeAttributes(ctx context.Context, op *fuseops.GetInodeAttributesOp) error {
	v, err := fs.lookupInode(toObjectID(op.Inode))
	if err != nil {
		return translate(err)
	}
	op.Attributes = fs.attributesFor(v)
	op.AttributesExpiration = never
	return nil
}

func (fs *FileSystem) OpenDir(ctx context.Context, op *fuseops.OpenDirOp) error {
	v, err := fs.lookupInode(toObjectID(op.Inode))
	if err != nil {
		return translate(err)
	}
	if !catalog.IsDirectory(v) {
		return fuse.EIO
	}
	return nil
}

func (fs *FileSystem) ReadDir(ctx context.Context, op *fuseops.ReadDirOp) error {
	objectID := toObjectID(op.Inode)
	children, err := fs.fs.Catalog.ListChildren(objectID)
	if err != nil {
		return translate(err)
	}

	var entries []fuseutil.Dirent
	for _, c := range children {
		v, err := fs.lookupInode(c.FileID)
		if err != nil {
			return translate(err)
		}
		typ := fuseutil.DT_File
		switch {
		case catalog.IsDirectory(v):
			typ = fuseutil.DT_Directory
		case catalog.IsSymlink(v):
			typ = fuseutil.DT_Link
		}
		entries = append(entries, fuseutil.Dirent{
			Offset: fuseops.DirOffset(len(entries) + 1),
			Inode:  toFuseID(c.FileID),
			Name:   c.Name,
			Type:   typ,
		})
	}

	if op.Offset > fuseops.DirOffset(len(entries)) {
		return fuse.EIO
	}
	for _, e := range entries[op.Offset:] {
		n := fuseutil.WriteDirent(op.Dst[op.BytesRead:], e)
		if n == 0 {
			break
		}
		op.BytesRead += n
	}
	return nil
}

func (fs *FileSystem) OpenFile(ctx context.Context, op *fuseops.OpenFileOp) error {
	v, err := fs.lookupInode(toObjectID(op.Inode))
	if err != nil {
		return translate(err)
	}
	if !catalog.IsRegular(v) {
		return fuse.EIO
	}
	return nil
}

func (fs *FileSystem) ReadFile(ctx context.Context, op *fuseops.ReadFileOp) error {
	v, err := fs.lookupInode(toObjectID(op.Inode))
	if err != nil {
		return translate(err)
	}
	blockSize := uint64(fs.fs.ContainerSB.NxBlockSize)
	ino := fs.inodeFor(v.PrivateID)

	offset := uint64(op.Offset)
	total := 0
	for total < len(op.Dst) {
		iblock := offset / blockSize
		blockOff := offset % blockSize

		mapping, err := fs.extents.GetBlock(ino, iblock, 1)
		if err != nil {
			if errors.Is(err, apfserr.ErrNotFound) {
				break // read extends past the end of the file's extents
			}
			return translate(err)
		}

		n := int(blockSize - blockOff)
		if remaining := len(op.Dst) - total; n > remaining {
			n = remaining
		}

		if mapping.Hole {
			for i := 0; i < n; i++ {
				op.Dst[total+i] = 0
			}
		} else {
			data, err := fs.fs.Device.ReadBlock(types.Paddr(mapping.Physical))
			if err != nil {
				return translate(err)
			}
			copy(op.Dst[total:total+n], data[blockOff:uint64(blockOff)+uint64(n)])
		}

		total += n
		offset += uint64(n)
	}

	op.BytesRead = total
	return nil
}

func (fs *FileSystem) ReadSymlink(ctx context.Context, op *fuseops.ReadSymlinkOp) error {
	xattrs, err := fs.fs.Catalog.ListXattrs(toObjectID(op.Inode))
	if err != nil {
		return translate(err)
	}
	for _, x := range xattrs {
		if x.Name == symlinkXattr && x.Inline {
			op.Target = string(x.Data)
			return nil
		}
	}
	return fuse.EIO
}

func (fs *FileSystem) ListXattr(ctx context.Context, op *fuseops.ListXattrOp) error {
	xattrs, err := fs.fs.Catalog.ListXattrs(toObjectID(op.Inode))
	if err != nil {
		return translate(err)
	}
	for _, x := range xattrs {
		op.BytesRead += len(x.Name) + 1
	}
	if op.BytesRead > len(op.Dst) {
		if len(op.Dst) == 0 {
			return nil
		}
		return syscall.ERANGE
	}
	copied := 0
	for _, x := range xattrs {
		copy(op.Dst[copied:], x.Name)
		copied += len(x.Name) + 1
		op.Dst[copied-1] = 0
	}
	return nil
}

func (fs *FileSystem) GetXattr(ctx context.Context, op *fuseops.GetXattrOp) error {
	xattrs, err := fs.fs.Catalog.ListXattrs(toObjectID(op.Inode))
	if err != nil {
		return translate(err)
	}
	for _, x := range xattrs {
		if x.Name != op.Name {
			continue
		}
		op.BytesRead = len(x.Data)
		if op.BytesRead > len(op.Dst) {
			if len(op.Dst) == 0 {
				return nil
			}
			return syscall.ERANGE
		}
		copy(op.Dst, x.Data)
		return nil
	}
	return syscall.ENODATA
}

func (fs *FileSystem) Destroy() {}
