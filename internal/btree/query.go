package btree

import (
	"fmt"
	"sort"

	"github.com/go-apfsro/apfsro/internal/apfserr"
)

// KeyCompare orders two encoded keys the same way the tree's on-disk
// ordering does. Package omap compares (oid, xid) pairs; package catalog
// compares (object id, record type, name-or-offset).
type KeyCompare func(a, b []byte) int

// NodeSource lets Query descend through a tree without knowing whether its
// internal nodes carry physical block addresses (the container and volume
// object maps) or virtual object identifiers that must be resolved through
// an object map first (a volume's catalog tree). Each tree package supplies
// its own NodeSource.
type NodeSource interface {
	// Root returns the tree's root node.
	Root() (*Table, error)

	// Child resolves the value stored alongside a separator key in an
	// internal node into that child's Table. level is the child's level
	// (root's Level()-1, and so on down to zero for a leaf).
	Child(value []byte, level uint16) (*Table, error)
}

// Mode selects the matching behavior for Query.
type Mode int

const (
	// Exact requires a record whose key compares equal to the query key.
	Exact Mode = iota
	// LE finds the record with the largest key that doesn't exceed the
	// query key, used for offset/range style lookups such as locating the
	// file extent that covers a given logical offset, or the highest
	// transaction id not newer than the one a reader is resolving against.
	LE
)

// Query walks src from its root to a leaf, returning the value associated
// with key under mode. For Exact, key must match exactly. For LE, the
// returned key is the greatest key <= the query key anywhere in the tree;
// apfserr.ErrNotFound is returned if no such key exists (the query key is
// smaller than every key in the tree).
func Query(src NodeSource, key []byte, cmp KeyCompare, mode Mode) (foundKey, value []byte, err error) {
	node, err := src.Root()
	if err != nil {
		return nil, nil, fmt.Errorf("read root node: %w", err)
	}

	for {
		idx, exact, err := search(node, key, cmp)
		if err != nil {
			return nil, nil, err
		}

		if node.IsLeaf() {
			switch mode {
			case Exact:
				if !exact {
					return nil, nil, apfserr.ErrNotFound
				}
				k, err := node.LocateKey(idx)
				if err != nil {
					return nil, nil, err
				}
				v, err := node.LocateValue(idx)
				if err != nil {
					return nil, nil, err
				}
				return k, v, nil
			case LE:
				target := idx
				if !exact {
					target = idx - 1
				}
				if target < 0 {
					return nil, nil, apfserr.ErrNotFound
				}
				k, err := node.LocateKey(target)
				if err != nil {
					return nil, nil, err
				}
				v, err := node.LocateValue(target)
				if err != nil {
					return nil, nil, err
				}
				return k, v, nil
			default:
				return nil, nil, fmt.Errorf("unknown query mode %d", mode)
			}
		}

		// Internal node: descend into the child covering key. Entry i's key
		// is the smallest key reachable through child i (for i>0); child 0
		// covers everything up to (and, if exact, including) entries[0].
		childIdx := idx
		if !exact {
			childIdx = idx - 1
		}
		if childIdx < 0 {
			childIdx = 0
		}

		childVal, err := node.LocateValue(childIdx)
		if err != nil {
			return nil, nil, fmt.Errorf("locate child pointer %d: %w", childIdx, err)
		}
		child, err := src.Child(childVal, node.Level()-1)
		if err != nil {
			return nil, nil, fmt.Errorf("fetch child node: %w", err)
		}
		if node.HasFixedKVSize() && !child.HasFixedKVSize() {
			// nothing to propagate: a variable-size child declares its own widths
		} else if child.HasFixedKVSize() {
			if info, ok := node.Info(); ok {
				child.SetFixedSizes(info.BtFixed.BtKeySize, info.BtFixed.BtValSize)
			} else {
				child.SetFixedSizes(node.fixedKeySize, node.fixedValSize)
			}
		}
		node = child
	}
}

// search performs a binary search for key among node's entries using cmp.
// It returns the index of the first entry whose key is >= key, and whether
// that entry's key compares exactly equal. If every entry's key is < key,
// idx == node.KeyCount().
func search(node *Table, key []byte, cmp KeyCompare) (idx int, exact bool, err error) {
	n := node.KeyCount()
	var searchErr error
	i := sort.Search(n, func(i int) bool {
		k, e := node.LocateKey(i)
		if e != nil {
			searchErr = e
			return true
		}
		return cmp(k, key) >= 0
	})
	if searchErr != nil {
		return 0, false, searchErr
	}
	if i < n {
		k, e := node.LocateKey(i)
		if e != nil {
			return 0, false, e
		}
		if cmp(k, key) == 0 {
			return i, true, nil
		}
	}
	return i, false, nil
}
