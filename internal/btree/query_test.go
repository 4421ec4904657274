package btree

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"testing"

	"github.com/go-apfsro/apfsro/internal/apfserr"
	"github.com/go-apfsro/apfsro/internal/checksum"
	"github.com/go-apfsro/apfsro/internal/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// singleNodeSource is a NodeSource over one already-parsed root/leaf node,
// used to exercise Query without a full multi-level tree or object map.
type singleNodeSource struct {
	root *Table
}

func (s singleNodeSource) Root() (*Table, error) { return s.root, nil }

func (s singleNodeSource) Child(value []byte, level uint16) (*Table, error) {
	panic("no children in a single-node tree")
}

func uint64Compare(a, b []byte) int {
	return bytes.Compare(a, b)
}

func key64(v uint64) []byte {
	b := make([]byte, 8)
	binary.LittleEndian.PutUint64(b, v)
	return b
}

func TestQueryExactFound(t *testing.T) {
	data := buildLeafRootNode(t, []uint64{10, 20, 30}, []uint64{100, 200, 300})
	tbl, err := ParseTable(data, binary.LittleEndian)
	require.NoError(t, err)

	_, v, err := Query(singleNodeSource{tbl}, key64(20), uint64Compare, Exact)
	require.NoError(t, err)
	assert.Equal(t, uint64(200), binary.LittleEndian.Uint64(v))
}

func TestQueryExactNotFound(t *testing.T) {
	data := buildLeafRootNode(t, []uint64{10, 20, 30}, []uint64{100, 200, 300})
	tbl, err := ParseTable(data, binary.LittleEndian)
	require.NoError(t, err)

	_, _, err = Query(singleNodeSource{tbl}, key64(25), uint64Compare, Exact)
	assert.ErrorIs(t, err, apfserr.ErrNotFound)
}

func TestQueryLEFindsNearestLower(t *testing.T) {
	data := buildLeafRootNode(t, []uint64{10, 20, 30}, []uint64{100, 200, 300})
	tbl, err := ParseTable(data, binary.LittleEndian)
	require.NoError(t, err)

	k, v, err := Query(singleNodeSource{tbl}, key64(25), uint64Compare, LE)
	require.NoError(t, err)
	assert.Equal(t, uint64(20), binary.LittleEndian.Uint64(k))
	assert.Equal(t, uint64(200), binary.LittleEndian.Uint64(v))
}

func TestQueryLEExactMatch(t *testing.T) {
	data := buildLeafRootNode(t, []uint64{10, 20, 30}, []uint64{100, 200, 300})
	tbl, err := ParseTable(data, binary.LittleEndian)
	require.NoError(t, err)

	k, v, err := Query(singleNodeSource{tbl}, key64(30), uint64Compare, LE)
	require.NoError(t, err)
	assert.Equal(t, uint64(30), binary.LittleEndian.Uint64(k))
	assert.Equal(t, uint64(300), binary.LittleEndian.Uint64(v))
}

func TestQueryLEBelowAllKeys(t *testing.T) {
	data := buildLeafRootNode(t, []uint64{10, 20, 30}, []uint64{100, 200, 300})
	tbl, err := ParseTable(data, binary.LittleEndian)
	require.NoError(t, err)

	_, _, err = Query(singleNodeSource{tbl}, key64(5), uint64Compare, LE)
	assert.ErrorIs(t, err, apfserr.ErrNotFound)
}

// buildFixedKVNode builds a single B-tree node with fixed 8-byte-key/
// 8-byte-value entries, the same kvoff_t layout buildLeafRootNode uses, but
// parameterized over level and leaf/root so a test can assemble a genuine
// multi-level tree. A non-root node carries no trailing btree_info_t footer
// and relies on its parent's SetFixedSizes call for its key/value widths,
// same as a real descent through Query.
func buildFixedKVNode(t *testing.T, oid, xid uint64, level uint16, isRoot, isLeaf bool, keys, values []uint64) []byte {
	t.Helper()
	require.Equal(t, len(keys), len(values))
	n := len(keys)

	const entrySize = 8
	kvData := make([]byte, n*entrySize*2)
	for i := 0; i < n; i++ {
		binary.LittleEndian.PutUint64(kvData[i*entrySize:(i+1)*entrySize], keys[i])
	}
	valStart := n * entrySize
	for i := 0; i < n; i++ {
		off := valStart + (n-1-i)*entrySize
		binary.LittleEndian.PutUint64(kvData[off:off+entrySize], values[i])
	}

	tocData := make([]byte, n*4)
	for i := 0; i < n; i++ {
		koff := uint16(i * entrySize)
		voff := uint16((i + 1) * entrySize)
		binary.LittleEndian.PutUint16(tocData[i*4:i*4+2], koff)
		binary.LittleEndian.PutUint16(tocData[i*4+2:i*4+4], voff)
	}

	var flags uint16 = types.BtnodeFixedKvSize
	if isRoot {
		flags |= types.BtnodeRoot
	}
	if isLeaf {
		flags |= types.BtnodeLeaf
	}

	body := append(append([]byte{}, tocData...), kvData...)
	if isRoot {
		footer := make([]byte, btreeInfoSize)
		binary.LittleEndian.PutUint32(footer[8:12], entrySize)
		binary.LittleEndian.PutUint32(footer[12:16], entrySize)
		binary.LittleEndian.PutUint64(footer[24:32], uint64(n))
		binary.LittleEndian.PutUint64(footer[32:40], 1)
		body = append(body, footer...)
	}

	header := make([]byte, 56)
	binary.LittleEndian.PutUint64(header[8:16], oid)
	binary.LittleEndian.PutUint64(header[16:24], xid)
	binary.LittleEndian.PutUint32(header[24:28], 3)
	binary.LittleEndian.PutUint16(header[32:34], flags)
	binary.LittleEndian.PutUint16(header[34:36], level)
	binary.LittleEndian.PutUint32(header[36:40], uint32(n))
	binary.LittleEndian.PutUint16(header[40:42], 0)
	binary.LittleEndian.PutUint16(header[42:44], uint16(len(tocData)))

	data := append(header, body...)

	sum := checksum.Compute(data)
	copy(data[0:8], sum[:])

	return data
}

// buildTwoLevelTree returns a parsed internal root (level 1) with two
// children, plus a lookup table of "block address" -> raw child block
// bytes, so a test's NodeSource.Child can resolve the root's child pointers
// the way a real omap or catalog descent would.
func buildTwoLevelTree(t *testing.T) (root *Table, blocks map[uint64][]byte) {
	t.Helper()
	leaf0 := buildFixedKVNode(t, 100, 1, 0, false, true, []uint64{10, 20}, []uint64{1000, 2000})
	leaf1 := buildFixedKVNode(t, 200, 1, 0, false, true, []uint64{30, 40, 50}, []uint64{3000, 4000, 5000})
	rootData := buildFixedKVNode(t, 1, 1, 1, true, false, []uint64{10, 30}, []uint64{100, 200})

	rootTbl, err := ParseTable(rootData, binary.LittleEndian)
	require.NoError(t, err)

	return rootTbl, map[uint64][]byte{100: leaf0, 200: leaf1}
}

// multiLevelSource resolves a root's child pointers (block addresses) to
// already-built child blocks, parsing them on demand the way omap's and
// catalog's real NodeSource implementations parse a freshly read block.
type multiLevelSource struct {
	root       *Table
	blocks     map[uint64][]byte
	childCalls int
}

func (s *multiLevelSource) Root() (*Table, error) { return s.root, nil }

func (s *multiLevelSource) Child(value []byte, level uint16) (*Table, error) {
	s.childCalls++
	addr := binary.LittleEndian.Uint64(value)
	data, ok := s.blocks[addr]
	if !ok {
		return nil, fmt.Errorf("no block at address %d", addr)
	}
	return ParseTable(data, binary.LittleEndian)
}

func TestQueryDescendsThroughInternalNode(t *testing.T) {
	root, blocks := buildTwoLevelTree(t)
	require.Equal(t, uint16(1), root.Level())
	require.False(t, root.IsLeaf())

	t.Run("exact in first child", func(t *testing.T) {
		src := &multiLevelSource{root: root, blocks: blocks}
		k, v, err := Query(src, key64(20), uint64Compare, Exact)
		require.NoError(t, err)
		assert.Equal(t, uint64(20), binary.LittleEndian.Uint64(k))
		assert.Equal(t, uint64(2000), binary.LittleEndian.Uint64(v))
		assert.Equal(t, 1, src.childCalls)
	})

	t.Run("exact in second child", func(t *testing.T) {
		src := &multiLevelSource{root: root, blocks: blocks}
		_, v, err := Query(src, key64(40), uint64Compare, Exact)
		require.NoError(t, err)
		assert.Equal(t, uint64(4000), binary.LittleEndian.Uint64(v))
		assert.Equal(t, 1, src.childCalls)
	})

	t.Run("le crosses into second child range", func(t *testing.T) {
		src := &multiLevelSource{root: root, blocks: blocks}
		k, v, err := Query(src, key64(45), uint64Compare, LE)
		require.NoError(t, err)
		assert.Equal(t, uint64(40), binary.LittleEndian.Uint64(k))
		assert.Equal(t, uint64(4000), binary.LittleEndian.Uint64(v))
		assert.Equal(t, 1, src.childCalls)
	})

	t.Run("below all keys clamps to the first child", func(t *testing.T) {
		src := &multiLevelSource{root: root, blocks: blocks}
		_, _, err := Query(src, key64(5), uint64Compare, Exact)
		assert.ErrorIs(t, err, apfserr.ErrNotFound)
		assert.Equal(t, 1, src.childCalls)
	})
}
