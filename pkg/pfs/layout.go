// Copyright (c) 2025 Jeremy Hahn
// Copyright (c) 2025 Automate The Things, LLC
//
// This file is part of go-protectedfs.
//
// go-protectedfs is dual-licensed:
//
// 1. GNU Affero General Public License v3.0 (AGPL-3.0)
//    See LICENSE file or visit https://www.gnu.org/licenses/agpl-3.0.html
//
// 2. Commercial License
//    Contact licensing@automatethethings.com for commercial licensing options.

package pfs

import "encoding/binary"

const (
	// NodeSize is the size of every node on disk and in plaintext.
	NodeSize = 4096

	// KeySize and TagSize are the sizes of a node key and its GCM tag.
	KeySize = 16
	TagSize = 16

	// KDKSize is the required size of the caller's key-derivation key.
	KDKSize = 16

	slotSize = KeySize + TagSize

	// DataSlotsPerMHT is the number of data nodes one MHT node covers.
	DataSlotsPerMHT = 96

	// ChildMHTsPerMHT is the fan-out of the MHT.
	ChildMHTsPerMHT = 32

	// nodesPerGroup is one MHT node followed by the data nodes it covers.
	nodesPerGroup = 1 + DataSlotsPerMHT

	// InlineDataSize is the plaintext stored inside the metadata node.
	InlineDataSize = 3072

	// MaxNameLength is the longest file name that can be bound into the
	// metadata.
	MaxNameLength = 255

	// DefaultCacheSize is the node cache capacity.
	DefaultCacheSize = 48
)

type nodeKind uint8

const (
	kindMHT  nodeKind = 1
	kindData nodeKind = 2
)

func (k nodeKind) String() string {
	switch k {
	case kindMHT:
		return "mht"
	case kindData:
		return "data"
	default:
		return "unknown"
	}
}

// nodeRef names a node by kind and logical number. It doubles as the node
// cache key and as the lookup-only parent reference of a node.
type nodeRef struct {
	kind   nodeKind
	number uint64
}

var rootRef = nodeRef{kind: kindMHT, number: 0}

// MHT node n sits in front of the data nodes it covers:
//
//	physical 0        metadata
//	physical 1        MHT 0 (root)
//	physical 2..97    data 0..95
//	physical 98       MHT 1
//	physical 99..194  data 96..191
func mhtPhysical(n uint64) uint64 {
	return 1 + n*nodesPerGroup
}

func dataPhysical(d uint64) uint64 {
	return 2 + d/DataSlotsPerMHT + d
}

// dataParent returns the MHT node covering data node d and its slot.
func dataParent(d uint64) (uint64, int) {
	return d / DataSlotsPerMHT, int(d % DataSlotsPerMHT)
}

// mhtParent returns the parent of MHT node n > 0 and its child slot.
func mhtParent(n uint64) (uint64, int) {
	return (n - 1) / ChildMHTsPerMHT, int((n - 1) % ChildMHTsPerMHT)
}

// dataLocation maps a plaintext offset at or beyond InlineDataSize to a data
// node and an offset within it.
func dataLocation(offset int64) (uint64, int) {
	rel := offset - InlineDataSize
	return uint64(rel / NodeSize), int(rel % NodeSize)
}

// dataNodeCount is the number of data nodes a file of size bytes uses.
func dataNodeCount(size int64) uint64 {
	if size <= InlineDataSize {
		return 0
	}
	return uint64((size-InlineDataSize-1)/NodeSize) + 1
}

// mhtNodeCount is the number of MHT nodes a file of size bytes uses.
func mhtNodeCount(size int64) uint64 {
	d := dataNodeCount(size)
	if d == 0 {
		return 0
	}
	return (d-1)/DataSlotsPerMHT + 1
}

// nodeAAD is the GCM associated data of a node: its physical number.
func nodeAAD(physical uint64) []byte {
	var aad [8]byte
	binary.BigEndian.PutUint64(aad[:], physical)
	return aad[:]
}
