// Package apfserr defines the error taxonomy shared by every layer of the
// on-disk traversal stack: block I/O, the B-tree engine, the object map,
// mount bootstrap, and the extent resolver.
package apfserr

import "errors"

// Sentinel errors. Callers use errors.Is against these; wrapping with
// fmt.Errorf("...: %w", ErrX) preserves identity while adding context.
var (
	// ErrIO marks a failed block read from the underlying device.
	ErrIO = errors.New("apfs: block read failed")

	// ErrInvalid marks a bad mount option, a nonexistent volume index, or
	// a bad container/volume magic.
	ErrInvalid = errors.New("apfs: invalid")

	// ErrFSCorrupted marks a checksum mismatch, a malformed node, a
	// record whose size doesn't match its on-disk layout, or an extent
	// length that isn't a multiple of the block size.
	ErrFSCorrupted = errors.New("apfs: filesystem corrupted")

	// ErrNoMemory marks an allocation failure building query/key scratch
	// buffers.
	ErrNoMemory = errors.New("apfs: allocation failed")

	// ErrNotFound marks a B-tree query with no satisfying record.
	ErrNotFound = errors.New("apfs: not found")
)
