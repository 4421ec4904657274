package inode

import (
	"encoding/binary"
	"testing"

	"github.com/go-apfsro/apfsro/internal/apfserr"
	"github.com/go-apfsro/apfsro/internal/catalog"
	"github.com/go-apfsro/apfsro/internal/checksum"
	"github.com/go-apfsro/apfsro/internal/device"
	"github.com/go-apfsro/apfsro/internal/omap"
	"github.com/go-apfsro/apfsro/internal/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const blockSize = 4096

// entry is one encoded (key,value) pair destined for a leaf node's kv area.
type entry struct {
	key, value []byte
}

// nodeHeaderSize is the width of obj_phys_t plus the fixed btree_node_phys_t
// fields, matching package btree's own nodeHeaderSize.
const nodeHeaderSize = 56

// btreeInfoSize is the width of a root node's trailing btree_info_t footer,
// matching package btree's own btreeInfoSize.
const btreeInfoSize = 40

// writeLeafRootNode installs a single-level catalog leaf, addressed by
// block, whose virtual identity is oid.
func writeLeafRootNode(t *testing.T, dev *device.MemoryDevice, block types.Paddr, oid uint64, entries []entry) {
	t.Helper()
	n := len(entries)

	var keyBytes []byte
	koffs := make([]uint16, n)
	for i, e := range entries {
		koffs[i] = uint16(len(keyBytes))
		keyBytes = append(keyBytes, e.key...)
	}
	voffs := make([]uint16, n)
	total := 0
	for i := n - 1; i >= 0; i-- {
		total += len(entries[i].value)
		voffs[i] = uint16(total)
	}

	tocData := make([]byte, n*8)
	for i, e := range entries {
		binary.LittleEndian.PutUint16(tocData[i*8:i*8+2], koffs[i])
		binary.LittleEndian.PutUint16(tocData[i*8+2:i*8+4], uint16(len(e.key)))
		binary.LittleEndian.PutUint16(tocData[i*8+4:i*8+6], voffs[i])
		binary.LittleEndian.PutUint16(tocData[i*8+6:i*8+8], uint16(len(e.value)))
	}

	footer := make([]byte, btreeInfoSize)
	binary.LittleEndian.PutUint64(footer[24:32], uint64(n))
	binary.LittleEndian.PutUint64(footer[32:40], 1)

	// The key/value area spans everything between the toc and the root
	// footer, same as on disk: keys grow forward from its start, values grow
	// backward from its end, with unused free space between them.
	dataAreaLen := blockSize - nodeHeaderSize - len(footer)
	kvAreaLen := dataAreaLen - len(tocData)
	kvArea := make([]byte, kvAreaLen)
	copy(kvArea, keyBytes)
	for i, e := range entries {
		off := kvAreaLen - int(voffs[i])
		copy(kvArea[off:off+len(e.value)], e.value)
	}

	header := make([]byte, nodeHeaderSize)
	binary.LittleEndian.PutUint64(header[8:16], oid)
	binary.LittleEndian.PutUint64(header[16:24], 1)
	binary.LittleEndian.PutUint32(header[24:28], 3)
	binary.LittleEndian.PutUint16(header[32:34], types.BtnodeRoot|types.BtnodeLeaf)
	binary.LittleEndian.PutUint32(header[36:40], uint32(n))
	binary.LittleEndian.PutUint16(header[40:42], 0)
	binary.LittleEndian.PutUint16(header[42:44], uint16(len(tocData)))

	blockData := make([]byte, blockSize)
	copy(blockData, header)
	copy(blockData[nodeHeaderSize:], tocData)
	copy(blockData[nodeHeaderSize+len(tocData):], kvArea)
	copy(blockData[blockSize-len(footer):], footer)

	sum := checksum.Compute(blockData)
	copy(blockData[0:8], sum[:])

	dev.WriteBlock(block, blockData)
}

// writeOmapRootNode installs a one-entry, fixed-kv-size omap leaf mapping
// oid to addr.
func writeOmapRootNode(t *testing.T, dev *device.MemoryDevice, rootBlock types.Paddr, oid types.OidT, addr types.Paddr) {
	t.Helper()
	key := make([]byte, 16)
	binary.LittleEndian.PutUint64(key[0:8], uint64(oid))
	binary.LittleEndian.PutUint64(key[8:16], 1)

	value := make([]byte, 16)
	binary.LittleEndian.PutUint32(value[0:4], 0)
	binary.LittleEndian.PutUint32(value[4:8], blockSize)
	binary.LittleEndian.PutUint64(value[8:16], uint64(addr))

	tocData := make([]byte, 4)
	binary.LittleEndian.PutUint16(tocData[0:2], 0)
	binary.LittleEndian.PutUint16(tocData[2:4], 16)

	footer := make([]byte, btreeInfoSize)
	binary.LittleEndian.PutUint32(footer[8:12], 16)
	binary.LittleEndian.PutUint32(footer[12:16], 16)
	binary.LittleEndian.PutUint64(footer[24:32], 1)
	binary.LittleEndian.PutUint64(footer[32:40], 1)

	dataAreaLen := blockSize - nodeHeaderSize - len(footer)
	kvAreaLen := dataAreaLen - len(tocData)
	kvArea := make([]byte, kvAreaLen)
	copy(kvArea[0:len(key)], key)
	copy(kvArea[kvAreaLen-len(value):kvAreaLen], value)

	header := make([]byte, nodeHeaderSize)
	binary.LittleEndian.PutUint64(header[8:16], uint64(rootBlock))
	binary.LittleEndian.PutUint64(header[16:24], 1)
	binary.LittleEndian.PutUint32(header[24:28], 3)
	binary.LittleEndian.PutUint16(header[32:34], types.BtnodeRoot|types.BtnodeLeaf|types.BtnodeFixedKvSize)
	binary.LittleEndian.PutUint32(header[36:40], 1)
	binary.LittleEndian.PutUint16(header[40:42], 0)
	binary.LittleEndian.PutUint16(header[42:44], uint16(len(tocData)))

	blockData := make([]byte, blockSize)
	copy(blockData, header)
	copy(blockData[nodeHeaderSize:], tocData)
	copy(blockData[nodeHeaderSize+len(tocData):], kvArea)
	copy(blockData[blockSize-len(footer):], footer)
	sum := checksum.Compute(blockData)
	copy(blockData[0:8], sum[:])

	dev.WriteBlock(rootBlock, blockData)
}

func writeOmapHeader(dev *device.MemoryDevice, headerBlock, treeRoot types.Paddr) {
	block := make([]byte, blockSize)
	binary.LittleEndian.PutUint64(block[8:16], uint64(headerBlock))
	binary.LittleEndian.PutUint32(block[24:28], 0xb)
	binary.LittleEndian.PutUint64(block[48:56], uint64(treeRoot))
	dev.WriteBlock(headerBlock, block)
}

// newTestTree builds a one-node catalog whose single FILE_EXTENT record for
// object 16 starts at logical address 0 and carries extVal as its value.
func newTestTree(t *testing.T, extVal []byte) *catalog.Tree {
	t.Helper()
	dev := device.NewMemoryDevice(blockSize, 2048)

	const rootVirtualOid types.OidT = 42
	const rootPhysBlock types.Paddr = 20

	writeLeafRootNode(t, dev, rootPhysBlock, uint64(rootVirtualOid), []entry{
		{key: catalog.FileExtentKey(16, 0), value: extVal},
	})
	writeOmapRootNode(t, dev, 10, rootVirtualOid, rootPhysBlock)
	writeOmapHeader(dev, 1, 10)

	omapHeader, err := omap.ReadHeader(dev, 1)
	require.NoError(t, err)
	resolver := omap.NewResolver(dev, omapHeader)
	return catalog.Open(dev, resolver, rootVirtualOid, 5)
}

func extentValue(physBlockNum, length uint64) []byte {
	v := make([]byte, 24)
	binary.LittleEndian.PutUint64(v[0:8], length)
	binary.LittleEndian.PutUint64(v[8:16], physBlockNum)
	return v
}

func TestGetBlockResolvesAndCachesExtent(t *testing.T) {
	tree := newTestTree(t, extentValue(1000, 65536))
	r := NewResolver(tree, blockSize)
	ino := &Inode{ObjectID: 16}

	m, err := r.GetBlock(ino, 0, 1)
	require.NoError(t, err)
	assert.False(t, m.Hole)
	assert.EqualValues(t, 1000, m.Physical)
	assert.EqualValues(t, blockSize, m.RunLength)

	// Block 5 still falls within the same cached extent. The catalog is
	// dropped here, so any second catalog query would panic: the mapping
	// can only come from the extent cached by the first call (S2).
	r.Catalog = nil
	m, err = r.GetBlock(ino, 5, 1)
	require.NoError(t, err)
	assert.False(t, m.Hole)
	assert.EqualValues(t, 1005, m.Physical)
	assert.EqualValues(t, blockSize, m.RunLength)
}

func TestGetBlockReportsHole(t *testing.T) {
	tree := newTestTree(t, extentValue(0, 8192))
	r := NewResolver(tree, blockSize)
	ino := &Inode{ObjectID: 16}

	m, err := r.GetBlock(ino, 1, 1)
	require.NoError(t, err)
	assert.True(t, m.Hole)
	assert.EqualValues(t, 4096, m.RunLength)
}

func TestGetBlockRejectsMisalignedLength(t *testing.T) {
	tree := newTestTree(t, extentValue(1000, 4095))
	r := NewResolver(tree, blockSize)
	ino := &Inode{ObjectID: 16}

	_, err := r.GetBlock(ino, 0, 1)
	assert.ErrorIs(t, err, apfserr.ErrFSCorrupted)
}

func TestGetBlockBoundsRunLengthToRemainingExtent(t *testing.T) {
	tree := newTestTree(t, extentValue(1000, 65536))
	r := NewResolver(tree, blockSize)
	ino := &Inode{ObjectID: 16}

	m, err := r.GetBlock(ino, 5, 100)
	require.NoError(t, err)
	// 65536/4096 = 16 blocks total; block 5 leaves 11 blocks (45056 bytes),
	// regardless of how many the caller asked for.
	assert.EqualValues(t, 45056, m.RunLength)
}
